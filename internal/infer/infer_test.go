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

package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/typedast"
	"github.com/i2y/konpeito/internal/types"
)

func TestCollectEmitsReturnConstraintAgainstMethodResultTypeVar(t *testing.T) {
	resultTV := types.Fresh()
	lit := &ast.IntLit{Value: 7}
	ret := &ast.Return{Value: lit}
	method := &ast.MethodDef{Name: "double", Body: []ast.Node{ret}}

	info := &typedast.Info{
		Types: map[ast.Node]*types.Type{lit: types.Int()},
		Methods: map[typedast.MethodKey]*typedast.MethodSig{
			{Method: "double"}: {Result: resultTV},
		},
	}

	cs := NewCollector(info).Collect(&ast.Program{Body: []ast.Node{method}})

	require.Len(t, cs, 1)
	assert.Equal(t, "return", cs[0].Why)
	assert.Same(t, resultTV, cs[0].A)
}

func TestCollectSkipsConstraintWhenEitherSideUntyped(t *testing.T) {
	ret := &ast.Return{Value: &ast.Ident{Name: "mystery"}}
	method := &ast.MethodDef{Name: "m", Body: []ast.Node{ret}}

	info := &typedast.Info{
		Methods: map[typedast.MethodKey]*typedast.MethodSig{
			{Method: "m"}: {Result: types.Fresh()},
		},
	}

	cs := NewCollector(info).Collect(&ast.Program{Body: []ast.Node{method}})
	assert.Empty(t, cs)
}

func TestCallConstrainsArgumentAndResultAgainstCalleeSignature(t *testing.T) {
	arg := &ast.IntLit{Value: 3}
	call := &ast.Call{Method: "square", Args: []ast.Node{arg}}

	paramTV := types.Fresh()
	resultTV := types.Fresh()
	info := &typedast.Info{
		Types:   map[ast.Node]*types.Type{arg: types.Int(), call: resultTV},
		Untyped: map[ast.Node]bool{call: true},
		Methods: map[typedast.MethodKey]*typedast.MethodSig{
			{Method: "square"}: {Params: []*types.Type{paramTV}, Result: resultTV},
		},
	}

	cs := NewCollector(info).Collect(&ast.Program{Body: []ast.Node{call}})

	require.Len(t, cs, 2)
	assert.Equal(t, "argument passing", cs[0].Why)
	assert.Same(t, paramTV, cs[0].A)
	assert.Equal(t, "call result", cs[1].Why)
}

func TestSolverBindsTypeVarToConcreteType(t *testing.T) {
	tv := types.Fresh()
	s := NewSolver(diag.New())

	err := s.Solve([]Constraint{{A: tv, B: types.Int()}})

	require.NoError(t, err)
	assert.Equal(t, types.KindInt, types.Prune(tv).Kind)
}

func TestSolverAllowsNumericWideningWithoutConflict(t *testing.T) {
	s := NewSolver(diag.New())
	err := s.Solve([]Constraint{{A: types.Int(), B: types.Float(), Why: "widening"}})
	assert.NoError(t, err)
}

func TestSolverReportsConflictOnIncompatibleConcreteTypes(t *testing.T) {
	s := NewSolver(diag.New())
	err := s.Solve([]Constraint{{A: types.Str(), B: types.Bool(), Why: "assignment"}})
	assert.Error(t, err)
}

func TestSolverFailsOccursCheckOnSelfReferentialBinding(t *testing.T) {
	tv := types.Fresh()
	box := types.ClassInstance("Box", tv)
	s := NewSolver(diag.New())

	err := s.Solve([]Constraint{{A: tv, B: box, Why: "recursive"}})
	assert.Error(t, err)
}

func TestRunCollectsAndSolvesInOnePass(t *testing.T) {
	resultTV := types.Fresh()
	lit := &ast.IntLit{Value: 1}
	ret := &ast.Return{Value: lit}
	method := &ast.MethodDef{Name: "one", Body: []ast.Node{ret}}

	info := &typedast.Info{
		Types: map[ast.Node]*types.Type{lit: types.Int()},
		Methods: map[typedast.MethodKey]*typedast.MethodSig{
			{Method: "one"}: {Result: resultTV},
		},
	}

	err := Run(&ast.Program{Body: []ast.Node{method}}, info, diag.New())

	require.NoError(t, err)
	assert.Equal(t, types.KindInt, types.Prune(resultTV).Kind)
}
