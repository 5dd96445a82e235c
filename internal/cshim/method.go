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
	"strings"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

func wrapperFuncName(tag, method string) string { return tag + "_" + method + "_wrapper" }

// emitMethodWrappers emits one Ruby-convention wrapper per non-cfunc
// native method (spec §4.7: "per-method wrapper functions that unwrap
// self and arguments, call the emitted native function, and wrap the
// result"). `cfunc`-annotated methods are registered as a direct C call
// and get no wrapper (spec §4.1: "method is a direct C-level call, no
// wrapper").
func (g *Generator) emitMethodWrappers(w io.Writer, c *hir.Class) {
	n := nativeOf(c)
	tag := cStructName(c.Name)
	for _, m := range n.Methods {
		if sym, isCfunc := types.Annotated(m.Annotations, "cfunc"); isCfunc && strings.TrimPrefix(sym.Value, "name=") != "" {
			continue
		}
		g.emitMethodWrapper(w, c, tag, m)
	}
}

func (g *Generator) emitMethodWrapper(w io.Writer, c *hir.Class, tag string, m types.Method) {
	symbol := hir.MangledName(c.Name, m.Singleton, m.Name)
	wrapper := wrapperFuncName(tag, m.Name)
	arity := len(m.Params)

	fmt.Fprintf(w, "extern VALUE %s(VALUE", symbol)
	for i := 0; i < arity; i++ {
		fmt.Fprintf(w, ", VALUE")
	}
	fmt.Fprintf(w, ");\n")

	// Functions with variadic convention get registered with arity -1
	// (spec §4.6), so every wrapper uses the (argc, argv, self) Ruby
	// C-extension form rather than a fixed-arity signature.
	fmt.Fprintf(w, "static VALUE %s(int argc, VALUE *argv, VALUE self) {\n", wrapper)
	for i, name := range m.ParamNames {
		if i >= arity {
			break
		}
		if m.Params[i].Default {
			fmt.Fprintf(w, "    VALUE arg_%s = argc > %d ? argv[%d] : Qundef;\n", name, i, i)
		} else {
			fmt.Fprintf(w, "    VALUE arg_%s = argv[%d];\n", name, i)
		}
	}
	call := make([]string, 0, arity+1)
	call = append(call, "self")
	for _, name := range m.ParamNames[:min(arity, len(m.ParamNames))] {
		call = append(call, "arg_"+name)
	}
	fmt.Fprintf(w, "    return %s(%s);\n", symbol, strings.Join(call, ", "))
	fmt.Fprintf(w, "}\n\n")
}
