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

package hir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/sig"
	"github.com/i2y/konpeito/internal/typedast"
)

func newTestFuncBuilder() *funcBuilder {
	b := &Builder{
		reg:     sig.NewRegistry(diag.New()),
		info:    &typedast.Info{},
		d:       diag.New(),
		prog:    &Program{},
		classes: map[string]*Class{},
		modules: map[string]*Module{},
	}
	fn := NewFunction(mainFunctionName, "")
	fb := newFuncBuilder(b, fn)
	fb.cur = fn.NewBlock("entry")
	return fb
}

// callByReg finds the Call instruction that produced reg, or fails the
// test — used to walk an operand back to the instruction that computed
// it without assuming a fixed instruction index.
func callByReg(t *testing.T, instrs []Instruction, reg Reg) Call {
	t.Helper()
	for _, instr := range instrs {
		if instr.Result().ID == reg.ID {
			c, ok := instr.(Call)
			require.Truef(t, ok, "instruction defining reg %d is %T, not Call", reg.ID, instr)
			return c
		}
	}
	t.Fatalf("no instruction defines reg %d", reg.ID)
	return Call{}
}

func localStore(t *testing.T, instrs []Instruction, slot string) LocalStore {
	t.Helper()
	for _, instr := range instrs {
		if ls, ok := instr.(LocalStore); ok && ls.Slot == slot {
			return ls
		}
	}
	t.Fatalf("no LocalStore to slot %q found", slot)
	return LocalStore{}
}

// TestMultiAssignRestSlicesFromRuntimeLength exercises `a, *rest, c =
// arr`: the rest-splat bounds and every post-rest target must be
// computed from arr's actual runtime length, not from RestIndex alone,
// so the final target lands on arr's true last element regardless of
// how long arr turns out to be at runtime.
func TestMultiAssignRestSlicesFromRuntimeLength(t *testing.T) {
	fb := newTestFuncBuilder()

	node := &ast.MultiAssign{
		Targets:   []ast.Node{&ast.Ident{Name: "a"}, &ast.Ident{Name: "rest"}, &ast.Ident{Name: "c"}},
		RestIndex: 1,
		Value:     &ast.Ident{Name: "arr"},
	}
	fb.multiAssign(node)

	instrs := fb.cur.Instructions

	// The only way to know how many elements trail the rest-splat is to
	// ask the value for its length at runtime.
	var lengthReg Reg
	foundLength := false
	for _, instr := range instrs {
		if c, ok := instr.(Call); ok && c.Method == "length" {
			lengthReg = c.Result()
			foundLength = true
		}
	}
	require.True(t, foundLength, "expected a runtime \"length\" call, got %#v", instrs)

	// rest is bound to a slice call whose upper bound is derived from
	// the length register, not a compile-time constant.
	restStore := localStore(t, instrs, "rest")
	restCall := callByReg(t, instrs, restStore.Value.(Reg))
	require.Equal(t, "[]", restCall.Method)
	require.Len(t, restCall.Args, 2)
	hiCall := callByReg(t, instrs, restCall.Args[1].(Reg))
	assert.Equal(t, "-", hiCall.Method)
	assert.Equal(t, lengthReg.ID, hiCall.Receiver.(Reg).ID)

	// c is the sole post-rest target: it must resolve to length-1, the
	// true last element, never a fixed forward offset.
	cStore := localStore(t, instrs, "c")
	cCall := callByReg(t, instrs, cStore.Value.(Reg))
	require.Equal(t, "[]", cCall.Method)
	require.Len(t, cCall.Args, 1)
	idxCall := callByReg(t, instrs, cCall.Args[0].(Reg))
	assert.Equal(t, "-", idxCall.Method)
	assert.Equal(t, lengthReg.ID, idxCall.Receiver.(Reg).ID)
	offset, ok := idxCall.Args[0].(Reg)
	require.True(t, ok)
	offsetLit := callByRegLit(t, instrs, offset)
	assert.Equal(t, int64(1), offsetLit, "c is 1 element from the end regardless of arr's length")

	// a is unaffected by the rest-splat: plain forward index 0.
	aStore := localStore(t, instrs, "a")
	aCall := callByReg(t, instrs, aStore.Value.(Reg))
	require.Len(t, aCall.Args, 1)
	assert.Equal(t, int64(0), callByRegLit(t, instrs, aCall.Args[0].(Reg)))
}

func callByRegLit(t *testing.T, instrs []Instruction, reg Reg) int64 {
	t.Helper()
	for _, instr := range instrs {
		if instr.Result().ID == reg.ID {
			li, ok := instr.(LitInt)
			require.Truef(t, ok, "instruction defining reg %d is %T, not LitInt", reg.ID, instr)
			return li.Value
		}
	}
	t.Fatalf("no instruction defines reg %d", reg.ID)
	return 0
}

// TestBeginRescueAsValueThreadsResultAcrossEnsure exercises a begin/
// ensure expression used as a value: the result must flow from the
// body through the ensure funnel block into the merge block via a
// slot store/load, since ensureBlock is the merge block's only real
// predecessor and a phi keyed on pre-ensure blocks would be invalid.
func TestBeginRescueAsValueThreadsResultAcrossEnsure(t *testing.T) {
	fb := newTestFuncBuilder()

	node := &ast.BeginRescue{
		Body:   []ast.Node{&ast.IntLit{Value: 42}},
		Ensure: []ast.Node{&ast.IntLit{Value: 0}},
	}
	result := fb.beginRescue(node)

	resultReg, ok := result.(Reg)
	require.True(t, ok)

	// Find the block the builder left as "current" (the merge block)
	// and confirm its value comes from a LocalLoad, not a phi whose
	// edges don't dominate it.
	mergeInstrs := fb.cur.Instructions
	var load LocalLoad
	foundLoad := false
	for _, instr := range mergeInstrs {
		if ll, ok := instr.(LocalLoad); ok && ll.Result().ID == resultReg.ID {
			load = ll
			foundLoad = true
		}
		_, isPhi := instr.(Phi)
		assert.Falsef(t, isPhi, "begin/rescue merge block must not use a phi across the ensure funnel")
	}
	require.True(t, foundLoad, "expected the merge block's result to come from a LocalLoad")

	// The slot loaded in the merge block must be the same slot some
	// predecessor of ensureBlock stored into before jumping there.
	storeFound := false
	for _, fn := range []*Function{fb.fn} {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instructions {
				if ls, ok := instr.(LocalStore); ok && ls.Slot == load.Slot {
					storeFound = true
				}
			}
		}
	}
	assert.True(t, storeFound, "expected some block to store into slot %q before the merge block loads it", load.Slot)
}
