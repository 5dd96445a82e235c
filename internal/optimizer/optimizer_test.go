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
	"testing"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

func TestInlineSplicesSingleBlockCallee(t *testing.T) {
	callee := hir.NewFunction("double", "")
	p := callee.NewReg(types.Int())
	callee.Params = []hir.Param{{Name: "x", Type: types.Int()}}
	entry := callee.NewBlock("entry")
	sum := callee.NewReg(types.Int())
	sumCall := hir.Call{Method: "+", Receiver: hir.Reg{ID: p.ID, Type: types.Int()}, Args: []hir.Value{hir.ConstInt{V: 2}}}
	sumCall.Reg = sum
	entry.Append(sumCall)
	entry.Term = hir.Return{Value: sum}

	caller := hir.NewFunction("__main__", "")
	cb := caller.NewBlock("entry")
	callReg := caller.NewReg(types.Int())
	call := hir.Call{Method: "double", Args: []hir.Value{hir.ConstInt{V: 5}}}
	call.Reg = callReg
	cb.Append(call)
	cb.Term = hir.Return{Value: callReg}

	prog := &hir.Program{Functions: []*hir.Function{callee, caller}}
	candidates := collectInlineCandidates(prog)
	if _, ok := candidates["double"]; !ok {
		t.Fatalf("expected double to be an inline candidate")
	}
	Inline(prog, candidates)

	found := false
	for _, instr := range cb.Instructions {
		if _, ok := instr.(hir.LocalStore); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inlined parameter store in caller block, got %#v", cb.Instructions)
	}
}

func TestHoistLoopInvariantsMovesPureCallToPreheader(t *testing.T) {
	fn := hir.NewFunction("__main__", "")
	pre := fn.NewBlock("entry")
	arrReg := fn.NewReg(types.Arr())
	pre.Append(hir.ArrayLit{Elems: nil})

	// whileExpr allocates cond/body/exit back to back from the same
	// counter; mirror that exactly so condLabelFor's suffix arithmetic
	// lines up the way it does for builder-emitted loops.
	cond := fn.NewBlock("whilecond")
	body := fn.NewBlock("whilebody")
	exit := fn.NewBlock("whileexit")
	pre.Term = hir.Jump{Target: cond.Label}

	condReg := fn.NewReg(types.Bool())
	cond.Append(hir.LitBool{Value: true})

	lenReg := fn.NewReg(types.Int())
	lenCall := hir.Call{Method: "length", Receiver: arrReg}
	lenCall.Reg = lenReg
	body.Append(lenCall)
	body.Term = hir.Jump{Target: cond.Label}

	exit.Term = hir.Return{Value: hir.ConstNil{}}

	cond.Term = hir.Branch{Cond: condReg, TrueTarget: body.Label, FalseTarget: exit.Label}

	prog := &hir.Program{Functions: []*hir.Function{fn}}
	HoistLoopInvariants(prog)

	hoisted := false
	for _, instr := range pre.Instructions {
		if c, ok := instr.(hir.Call); ok && c.Method == "length" {
			hoisted = true
		}
	}
	if !hoisted {
		t.Fatalf("expected length call hoisted into preheader, preheader=%#v body=%#v", pre.Instructions, body.Instructions)
	}
	for _, instr := range body.Instructions {
		if c, ok := instr.(hir.Call); ok && c.Method == "length" {
			t.Fatalf("length call should have been removed from loop body")
		}
	}
}

func TestPromotePhiPromotesMixedIntFloatToFloat(t *testing.T) {
	fn := hir.NewFunction("__main__", "")
	b := fn.NewBlock("merge")
	r := fn.NewReg(types.Object())
	phi := hir.Phi{
		Edges: []hir.PhiEdge{
			{Block: "a", Value: hir.ConstInt{V: 1}},
			{Block: "b", Value: hir.ConstFloat{V: 2.5}},
		},
		Type: types.Object(),
	}
	phi.Reg = r
	b.Append(phi)

	prog := &hir.Program{Functions: []*hir.Function{fn}}
	PromotePhis(prog)

	got := b.Instructions[0].(hir.Phi)
	if types.Prune(got.Type).Kind != types.KindFloat {
		t.Fatalf("expected promoted phi type Float, got %s", got.Type)
	}
	if ci, ok := got.Edges[0].Value.(hir.ConstFloat); !ok || ci.V != 1.0 {
		t.Fatalf("expected int edge converted to float constant, got %#v", got.Edges[0].Value)
	}
}

func TestMonomorphizeSpecializesConcreteCall(t *testing.T) {
	union := types.Union(types.Int(), types.Str())
	callee := hir.NewFunction("describe", "")
	callee.Params = []hir.Param{{Name: "v", Type: union}}
	cb := callee.NewBlock("entry")
	cb.Term = hir.Return{Value: hir.ConstString{V: "ok"}}

	caller := hir.NewFunction("__main__", "")
	mb := caller.NewBlock("entry")
	call := hir.Call{Method: "describe", Args: []hir.Value{hir.ConstInt{V: 1}}}
	call.Reg = caller.NewReg(types.Str())
	mb.Append(call)
	mb.Term = hir.Return{Value: hir.ConstNil{}}

	prog := &hir.Program{Functions: []*hir.Function{callee, caller}}
	Monomorphize(prog)

	rewritten := false
	for _, instr := range mb.Instructions {
		if c, ok := instr.(hir.Call); ok && c.Method == "describe$Integer" {
			rewritten = true
		}
	}
	if !rewritten {
		t.Fatalf("expected call rewritten to a concrete specialization, got %#v", mb.Instructions)
	}
	found := false
	for _, fn := range prog.Functions {
		if fn.Name == "describe$Integer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected specialization describe$Integer to be appended to program")
	}
}
