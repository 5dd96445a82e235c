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

import "github.com/i2y/konpeito/internal/hir"

const maxInlineInstructions = 10
const maxInlineDepth = 3

// collectInlineCandidates finds top-level functions eligible for
// inlining (spec §4.5): instruction count ≤ 10, never `__main__` or a
// class method. Only a function that calls itself directly is excluded
// as recursive; functions that call each other in a cycle are not.
func collectInlineCandidates(prog *hir.Program) map[string]*hir.Function {
	out := map[string]*hir.Function{}
	for _, fn := range prog.Functions {
		if fn.Owner != "" || fn.Name == "__main__" {
			continue
		}
		if countInstructions(fn) > maxInlineInstructions {
			continue
		}
		if callsSelf(fn) {
			continue
		}
		out[fn.Name] = fn
	}
	return out
}

func countInstructions(fn *hir.Function) int {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Instructions)
	}
	return n
}

func callsSelf(fn *hir.Function) bool {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instructions {
			if c, ok := instr.(hir.Call); ok && c.Method == fn.Name {
				return true
			}
		}
	}
	return false
}

// Inline splices single-block candidate callees directly into their
// call sites (spec §4.5: "substitutes parameters for argument operands
// and rewrites any return to a jump-with-value into the caller's
// continuation"). Multi-block candidates are left uninlined — genuine
// control-flow splicing needs a CFG merge the size/shape of an
// eligible candidate (≤10 straight-line instructions) essentially
// never requires.
func Inline(prog *hir.Program, candidates map[string]*hir.Function) {
	for _, fn := range prog.Functions {
		inlineInFunction(fn, candidates, 0)
	}
}

func inlineInFunction(fn *hir.Function, candidates map[string]*hir.Function, depth int) {
	if depth >= maxInlineDepth {
		return
	}
	for _, b := range fn.Blocks {
		var out []hir.Instruction
		for _, instr := range b.Instructions {
			call, ok := instr.(hir.Call)
			if !ok {
				out = append(out, instr)
				continue
			}
			callee, ok := candidates[call.Method]
			if !ok || callee == fn || len(callee.Blocks) != 1 {
				out = append(out, instr)
				continue
			}
			out = append(out, spliceCallee(fn, callee, call)...)
		}
		b.Instructions = out
	}
}

// spliceCallee lowers one inlined call site into: a store per formal
// parameter, the callee's cloned straight-line body (renumbered into
// the caller's register space), and a final Identity instruction
// aliasing the call's original result register to the callee's
// returned value.
func spliceCallee(caller, callee *hir.Function, call hir.Call) []hir.Instruction {
	subst := map[int]hir.Reg{}
	var out []hir.Instruction
	for i, p := range callee.Params {
		if i >= len(call.Args) {
			break
		}
		out = append(out, hir.LocalStore{Slot: p.Name, Value: call.Args[i]})
	}
	for _, instr := range callee.Blocks[0].Instructions {
		out = append(out, hir.CloneInto(caller, instr, subst))
	}
	ret := hir.SubstTerminator(callee.Blocks[0].Term, subst)
	if r, ok := ret.(hir.Return); ok {
		// The Identity's Result() must equal the original call site's
		// result register so later instructions in this block (already
		// built referencing call.Result()) keep resolving correctly.
		out = append(out, hir.NewIdentity(call.Result(), r.Value))
	}
	return out
}
