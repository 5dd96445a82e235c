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
)

// emitFunctionWrapper emits the Ruby-convention adapter for an ordinary
// compiled function (a non-native class's method, a module's method, or
// a top-level function registered on Object) and returns the wrapper's
// symbol, the way emitMethodWrapper does for a native class's methods
// (spec §4.7's "per-method wrapper functions" applies uniformly to every
// compiled function the init routine registers, not only native ones).
func (g *Generator) emitFunctionWrapper(w io.Writer, fn *hir.Function) string {
	symbol := hir.MangledName(fn.Owner, fn.Singleton, fn.Name)
	wrapper := "fn_" + symbol + "_wrapper"

	positional := make([]hir.Param, 0, len(fn.Params))
	for _, p := range fn.Params {
		if p.Kind == hir.ParamBlock {
			continue
		}
		positional = append(positional, p)
	}

	fmt.Fprintf(w, "extern VALUE %s(VALUE", symbol)
	for range positional {
		fmt.Fprintf(w, ", VALUE")
	}
	fmt.Fprintf(w, ");\n")

	fmt.Fprintf(w, "static VALUE %s(int argc, VALUE *argv, VALUE self) {\n", wrapper)
	for i, p := range positional {
		if p.HasDefault {
			fmt.Fprintf(w, "    VALUE arg_%s = argc > %d ? argv[%d] : Qundef;\n", p.Name, i, i)
		} else {
			fmt.Fprintf(w, "    VALUE arg_%s = argv[%d];\n", p.Name, i)
		}
	}
	call := make([]string, 0, len(positional)+1)
	call = append(call, "self")
	for _, p := range positional {
		call = append(call, "arg_"+p.Name)
	}
	fmt.Fprintf(w, "    return %s(%s);\n", symbol, strings.Join(call, ", "))
	fmt.Fprintf(w, "}\n\n")
	return wrapper
}
