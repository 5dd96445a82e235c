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

package cshim

import (
	"fmt"
	"io"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

// vtableOrder returns c's vtable slot names in inheritance-preserving
// order (spec §4.7: "a subclass's vtable extends its parent's in place:
// overrides at the same index, new methods at the tail" — also the
// quantified invariant in spec §8 that a method present in both a class
// and its superclass's vtable keeps the same index in both).
func (g *Generator) vtableOrder(c *hir.Class) []string {
	n := nativeOf(c)
	var order []string
	if parent := g.superclassClass(n); parent != nil {
		order = append(order, g.vtableOrder(parent)...)
	}
	seen := map[string]bool{}
	for _, name := range order {
		seen[name] = true
	}
	for _, m := range n.Methods {
		if m.Singleton || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		order = append(order, m.Name)
	}
	return order
}

// implementingClass walks from c up the superclass chain and returns
// the nearest class (c itself included) whose own native descriptor
// declares method, the way ordinary method resolution would.
func (g *Generator) implementingClass(c *hir.Class, method string) *hir.Class {
	for cur := c; cur != nil; cur = g.superclassClass(nativeOf(cur)) {
		for _, m := range nativeOf(cur).Methods {
			if m.Name == method && !m.Singleton {
				return cur
			}
		}
	}
	return c
}

func vtableTypeName(tag string) string  { return tag + "_vtable" }
func vtableInstanceName(tag string) string { return tag + "_vtable_instance" }

// emitVtable emits the static function-pointer array for a vtable
// native class (spec's glossary "Vtable"). Non-vtable classes are a
// no-op.
func (g *Generator) emitVtable(w io.Writer, c *hir.Class) error {
	n := nativeOf(c)
	if !types.HasAnnotation(n.Annotations, "vtable") {
		return nil
	}
	tag := cStructName(c.Name)
	order := g.vtableOrder(c)

	fmt.Fprintf(w, "struct %s {\n", vtableTypeName(tag))
	for _, name := range order {
		fmt.Fprintf(w, "    VALUE (*%s)(VALUE);\n", name)
	}
	fmt.Fprintf(w, "};\n\n")

	fmt.Fprintf(w, "static const struct %s %s = {\n", vtableTypeName(tag), vtableInstanceName(tag))
	for _, name := range order {
		impl := g.implementingClass(c, name)
		implTag := cStructName(impl.Name)
		fmt.Fprintf(w, "    .%s = %s,\n", name, wrapperFuncName(implTag, name))
	}
	fmt.Fprintf(w, "};\n\n")
	return nil
}
