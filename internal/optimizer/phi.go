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

package optimizer

import (
	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

// PromotePhis decides, per merge point, whether a Phi can be realized
// over an unboxed scalar or must fall back to a boxed VALUE (spec
// §4.5's phi-type promoter). It walks every function reachable from the
// program, including class/module methods, since merges inside method
// bodies are exactly as eligible as top-level ones.
func PromotePhis(prog *hir.Program) {
	for _, fn := range prog.Functions {
		promoteInFunction(fn)
	}
	for _, c := range prog.Classes {
		for _, fn := range c.Functions {
			promoteInFunction(fn)
		}
	}
	for _, m := range prog.Modules {
		for _, fn := range m.Functions {
			promoteInFunction(fn)
		}
	}
}

func promoteInFunction(fn *hir.Function) {
	for _, b := range fn.Blocks {
		for i, instr := range b.Instructions {
			if phi, ok := instr.(hir.Phi); ok {
				b.Instructions[i] = promotePhi(phi)
			}
		}
	}
}

// promotePhi sets phi.Type to an unboxed Int/Float when every incoming
// edge is itself unboxed-numeric, converting constant-int edges to
// float when the merge mixes both ("Integer-into-float merges promote
// via compile-time conversion when operands are constants"); any
// non-numeric or non-constant-incompatible edge falls back to a boxed
// Object phi.
func promotePhi(phi hir.Phi) hir.Phi {
	sawFloat, sawInt := false, false
	for _, e := range phi.Edges {
		t := argType(e.Value)
		if t == nil || !types.Unboxed(t) {
			phi.Type = types.Object()
			return phi
		}
		switch types.Prune(t).Kind {
		case types.KindFloat:
			sawFloat = true
		case types.KindInt:
			sawInt = true
		}
	}
	if sawFloat && sawInt {
		for _, e := range phi.Edges {
			if types.Prune(argType(e.Value)).Kind != types.KindInt {
				continue
			}
			if _, ok := e.Value.(hir.ConstInt); !ok {
				phi.Type = types.Object()
				return phi
			}
		}
		phi.Type = types.Float()
		for i, e := range phi.Edges {
			if ci, ok := e.Value.(hir.ConstInt); ok {
				phi.Edges[i].Value = hir.ConstFloat{V: float64(ci.V)}
			}
		}
		return phi
	}
	if sawFloat {
		phi.Type = types.Float()
	} else {
		phi.Type = types.Int()
	}
	return phi
}
