/*
Copyright (C) 2026  The Konpeito Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package cshim is the C Shim Generator (spec §4.7): it produces a
// companion C translation unit exposing compiled functions, native
// classes, and the initialization entry point to the host interpreter's
// C API. Emission writes directly to an io.Writer with fmt.Fprintf the
// way storage/storage-int.go's Serialize walks a record field-by-field
// into an io.Writer, rather than building an intermediate AST — the
// shim's output is flat, declarative C, and there is no reader side to
// justify a parsed representation.
package cshim

import (
	"fmt"
	"io"
	"sort"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

// Generator walks a compiled Program and emits its C shim.
type Generator struct {
	Prog       *hir.Program
	ModuleName string

	classByName map[string]*hir.Class
}

func New(prog *hir.Program, moduleName string) *Generator {
	g := &Generator{Prog: prog, ModuleName: moduleName, classByName: map[string]*hir.Class{}}
	for _, c := range prog.Classes {
		g.classByName[c.Name] = c
	}
	return g
}

// Generate writes the full companion C file: includes, per-native-class
// struct/TypedData/wrapper machinery, and the Init_<module> entry point.
func (g *Generator) Generate(w io.Writer) error {
	fmt.Fprintf(w, "/* generated by konpeito -- do not edit */\n")
	fmt.Fprintf(w, "#include <ruby.h>\n\n")

	// Native classes are emitted in a stable, deterministic order so
	// repeated compilations of the same source produce byte-identical
	// shims (spec §5: "a compilation is a pure function of its inputs").
	natives := g.nativeClasses()
	for _, c := range natives {
		g.emitStruct(w, c)
	}
	for _, c := range natives {
		if err := g.emitVtable(w, c); err != nil {
			return err
		}
	}
	for _, c := range natives {
		g.emitMethodWrappers(w, c)
	}
	return g.emitInit(w, natives)
}

func (g *Generator) nativeClasses() []*hir.Class {
	var out []*hir.Class
	names := make([]string, 0, len(g.classByName))
	for name := range g.classByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := g.classByName[name]
		if c.Native != nil {
			out = append(out, c)
		}
	}
	return out
}

// cStructName maps a konpeito class name to its shim-local struct tag.
func cStructName(class string) string { return "rn_" + class }

// cTypedDataName is the TypedData descriptor variable for class.
func cTypedDataName(class string) string { return "rn_" + class + "_type" }

func nativeOf(c *hir.Class) *types.Type { return types.Prune(c.Native) }

// superclassClass resolves n's superclass native descriptor, or nil if
// n has none or the superclass isn't itself native.
func (g *Generator) superclassClass(n *types.Type) *hir.Class {
	if n.Superclass == nil {
		return nil
	}
	super := types.Prune(n.Superclass)
	c, ok := g.classByName[super.Name]
	if !ok || c.Native == nil {
		return nil
	}
	return c
}
