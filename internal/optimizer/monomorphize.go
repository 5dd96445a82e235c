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
	"sort"
	"strings"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

// maxMonomorphizeRounds bounds the fixed-point loop over newly generated
// specializations (a specialized body can itself call another
// union-parameterized function) the same way the inliner bounds splice
// depth.
const maxMonomorphizeRounds = 3

// Monomorphize implements spec §4.5's monomorphizer: call sites whose
// concrete argument types are known bake a specialization of the
// callee's union-typed parameters; call sites whose argument is itself
// a union expand into a type-dispatch tree, one specialized call per
// member, phi-merged at a dedicated block. Only the first union-typed
// argument of a call is expanded this way; a further union-typed
// argument keeps its union parameter type in each specialization, so
// no Cartesian product over several union arguments is formed.
func Monomorphize(prog *hir.Program) {
	funcs := map[string]*hir.Function{}
	for _, fn := range prog.Functions {
		if fn.Owner == "" && fn.Name != "__main__" {
			funcs[fn.Name] = fn
		}
	}

	specs := map[string]*hir.Function{}
	scanned := map[string]bool{}
	queue := append([]*hir.Function{}, prog.Functions...)
	for round := 0; round < maxMonomorphizeRounds && len(queue) > 0; round++ {
		for _, fn := range queue {
			monomorphizeFunction(fn, funcs, specs)
		}
		var next []*hir.Function
		for name, s := range specs {
			if !scanned[name] {
				scanned[name] = true
				next = append(next, s)
			}
		}
		queue = next
	}
	for _, s := range specs {
		prog.Functions = append(prog.Functions, s)
	}
}

func monomorphizeFunction(fn *hir.Function, funcs map[string]*hir.Function, specs map[string]*hir.Function) {
	for i := 0; i < len(fn.Blocks); i++ {
		monomorphizeBlock(fn, fn.Blocks[i], funcs, specs)
	}
}

// monomorphizeBlock rewrites every concrete-type call site of the block
// in place, but stops at the first union-dispatch split: the rest of
// the block then lives in an appended tail block, which the caller's
// index loop visits later.
func monomorphizeBlock(fn *hir.Function, b *hir.BasicBlock, funcs map[string]*hir.Function, specs map[string]*hir.Function) {
	for idx, instr := range b.Instructions {
		call, ok := instr.(hir.Call)
		if !ok {
			continue
		}
		callee, ok := funcs[call.Method]
		if !ok || callee == fn {
			continue
		}
		concrete, dispatchIdx, members := planSpecialization(callee, call)
		if dispatchIdx == -1 {
			if len(concrete) == 0 {
				continue
			}
			spec := specializeFor(callee, concrete, specs)
			nc := call
			nc.Method = spec.Name
			b.Instructions[idx] = nc
			continue
		}
		splitDispatch(fn, b, idx, callee, call, concrete, dispatchIdx, members, specs)
		return
	}
}

// planSpecialization inspects callee's union-typed parameters against
// the call's actual argument types: params bound to a single concrete
// type at this call site are collected into concrete; the first param
// whose argument is itself still a union is returned as the dispatch
// axis; later union-typed arguments are neither collected nor expanded.
func planSpecialization(callee *hir.Function, call hir.Call) (concrete map[int]*types.Type, dispatchIdx int, members []*types.Type) {
	concrete = map[int]*types.Type{}
	dispatchIdx = -1
	for i, p := range callee.Params {
		if p.Type == nil || types.Prune(p.Type).Kind != types.KindUnion {
			continue
		}
		if i >= len(call.Args) {
			continue
		}
		at := argType(call.Args[i])
		if at == nil {
			continue
		}
		at = types.Prune(at)
		if at.Kind == types.KindUnion {
			if dispatchIdx == -1 {
				dispatchIdx = i
				members = types.Members(at)
			}
			continue
		}
		concrete[i] = at
	}
	return concrete, dispatchIdx, members
}

func argType(v hir.Value) *types.Type {
	switch vv := v.(type) {
	case hir.Reg:
		return vv.Type
	case hir.ConstInt:
		return types.Int()
	case hir.ConstFloat:
		return types.Float()
	case hir.ConstString:
		return types.Str()
	case hir.ConstSymbol:
		return types.Symbol()
	case hir.ConstBool:
		return types.Bool()
	case hir.ConstNil:
		return types.Nil()
	default:
		return nil
	}
}

// splitDispatch replaces the call at b.Instructions[idx] with a
// type-dispatch tree: one "test member, call specialization" pair per
// union member, joined at a merge block whose Phi reuses the original
// call's own result register — the same register-identity trick
// internal/optimizer's inliner uses for Identity, so every instruction
// already built against call.Result() keeps resolving without a
// substitution pass.
func splitDispatch(fn *hir.Function, b *hir.BasicBlock, idx int, callee *hir.Function, call hir.Call, concrete map[int]*types.Type, dispatchIdx int, members []*types.Type, specs map[string]*hir.Function) {
	after := append([]hir.Instruction{}, b.Instructions[idx+1:]...)
	origTerm := b.Term
	b.Instructions = b.Instructions[:idx]

	tail := fn.NewBlock(b.Label + "_mono_tail")
	tail.Instructions = after
	tail.Term = origTerm

	resultType := call.Result().Type
	subject := call.Args[dispatchIdx]

	merge := fn.NewBlock(b.Label + "_mono_merge")
	merge.Term = hir.Jump{Target: tail.Label}

	prev := b
	var edges []hir.PhiEdge
	for _, member := range members {
		test := fn.NewBlock(b.Label + "_mono_test")
		prev.Term = hir.Jump{Target: test.Label}

		testReg := fn.NewReg(types.Bool())
		pt := hir.PatternTest{Kind: hir.PatternTestType, Subject: subject, TypeName: member.String()}
		pt.Reg = testReg
		test.Append(pt)

		callBlock := fn.NewBlock(b.Label + "_mono_call")
		next := fn.NewBlock(b.Label + "_mono_next")
		test.Term = hir.Branch{Cond: testReg, TrueTarget: callBlock.Label, FalseTarget: next.Label}

		overrides := map[int]*types.Type{dispatchIdx: member}
		for i, t := range concrete {
			overrides[i] = t
		}
		spec := specializeFor(callee, overrides, specs)
		callReg := fn.NewReg(resultType)
		nc := call
		nc.Method = spec.Name
		nc.Reg = callReg
		callBlock.Append(nc)
		callBlock.Term = hir.Jump{Target: merge.Label}
		edges = append(edges, hir.PhiEdge{Block: callBlock.Label, Value: callReg})

		prev = next
	}
	// No member matched: the inferrer guarantees exhaustiveness over a
	// union's own member list, so this path is unreachable at runtime.
	prev.Term = hir.Raise{ClassName: "TypeError", Message: hir.ConstString{V: "no matching specialization"}}

	phi := hir.Phi{Edges: edges, Type: resultType}
	phi.Reg = call.Result()
	merge.Instructions = append([]hir.Instruction{phi}, merge.Instructions...)
}

// specializeFor returns the (cached) specialization of callee with the
// given parameter-index -> concrete-type overrides applied, cloning the
// body once per distinct override set (spec §4.5: "generates (once) a
// specialization ... named by its type-argument tuple").
func specializeFor(callee *hir.Function, overrides map[int]*types.Type, specs map[string]*hir.Function) *hir.Function {
	idxs := make([]int, 0, len(overrides))
	for i := range overrides {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	parts := make([]string, len(idxs))
	for i, pi := range idxs {
		parts[i] = overrides[pi].String()
	}
	key := callee.Name + "$" + strings.Join(parts, ",")
	if existing, ok := specs[key]; ok {
		return existing
	}
	clone := cloneFunction(key, callee)
	for i, t := range overrides {
		if i < len(clone.Params) {
			clone.Params[i].Type = t
		}
	}
	specs[key] = clone
	return clone
}

// cloneFunction deep-copies src's blocks under a fresh register/label
// numbering owned by the returned function, the whole-function
// generalization of internal/hir's CloneInto (which only renumbers a
// single spliced instruction run into an existing function).
func cloneFunction(name string, src *hir.Function) *hir.Function {
	dst := hir.NewFunction(name, src.Owner)
	dst.Singleton = src.Singleton
	dst.Params = append([]hir.Param{}, src.Params...)
	dst.IsLambda = src.IsLambda
	dst.Variadic = src.Variadic
	dst.MayRaise = src.MayRaise
	dst.ResultType = src.ResultType

	labelMap := make(map[string]string, len(src.Blocks))
	newBlocks := make([]*hir.BasicBlock, len(src.Blocks))
	for i, b := range src.Blocks {
		nb := dst.NewBlock("b")
		labelMap[b.Label] = nb.Label
		newBlocks[i] = nb
	}

	subst := map[int]hir.Reg{}
	for i, b := range src.Blocks {
		nb := newBlocks[i]
		for _, instr := range b.Instructions {
			cloned := hir.CloneInto(dst, instr, subst)
			if phi, ok := cloned.(hir.Phi); ok {
				for ei := range phi.Edges {
					if nl, ok2 := labelMap[phi.Edges[ei].Block]; ok2 {
						phi.Edges[ei].Block = nl
					}
				}
				cloned = phi
			}
			nb.Append(cloned)
		}
		nb.Term = remapTerm(hir.SubstTerminator(b.Term, subst), labelMap)
	}
	dst.Entry = labelMap[src.Entry]
	return dst
}

func remapTerm(t hir.Terminator, labelMap map[string]string) hir.Terminator {
	switch term := t.(type) {
	case hir.Jump:
		return hir.Jump{Target: labelMap[term.Target]}
	case hir.Branch:
		return hir.Branch{Cond: term.Cond, TrueTarget: labelMap[term.TrueTarget], FalseTarget: labelMap[term.FalseTarget]}
	default:
		return t
	}
}
