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

package llvmgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

func TestEmitProgramUsesUnboxedArithmeticForSameKindOperands(t *testing.T) {
	fn := hir.NewFunction("double", "")
	fn.Params = []hir.Param{{Name: "x", Type: types.Int()}}
	fn.ResultType = types.Int()
	p := fn.NewReg(types.Int())
	entry := fn.NewBlock("entry")
	// the parameter reaches the body through its local slot, as the HIR
	// builder lowers parameter reads.
	load := hir.LocalLoad{Slot: "x"}
	load.Reg = p
	entry.Append(load)
	sum := hir.Call{Method: "+", Receiver: hir.Reg{ID: p.ID, Type: types.Int()}, Args: []hir.Value{hir.ConstInt{V: 2}}}
	sumReg := fn.NewReg(types.Int())
	sum.Reg = sumReg
	entry.Append(sum)
	entry.Term = hir.Return{Value: sumReg}

	e := New("test_module")
	require.NoError(t, e.EmitProgram(&hir.Program{Functions: []*hir.Function{fn}}))

	out := e.Module.String()
	assert.Contains(t, out, "@double")
	assert.Contains(t, out, "i64 %x")
	assert.Contains(t, out, "add i64")
	// the dynamic-dispatch path must not fire for a same-kind unboxed op.
	assert.NotContains(t, out, "call i8* @konpeito_funcall")
}

func TestEmitProgramFallsBackToDynamicDispatchForBoxedReceiver(t *testing.T) {
	fn := hir.NewFunction("call_unknown", "")
	fn.ResultType = types.Object()
	entry := fn.NewBlock("entry")
	r := fn.NewReg(types.Object())
	call := hir.Call{Method: "greet", Receiver: hir.ConstNil{}}
	call.Reg = r
	entry.Append(call)
	entry.Term = hir.Return{Value: r}

	e := New("test_module")
	require.NoError(t, e.EmitProgram(&hir.Program{Functions: []*hir.Function{fn}}))

	out := e.Module.String()
	assert.Contains(t, out, "call i8* @konpeito_funcall")
}

func TestMethodIDInternsStably(t *testing.T) {
	e := New("test_module")
	first := e.methodID("length")
	second := e.methodID("length")
	other := e.methodID("size")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}
