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

package typedast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/sig"
	"github.com/i2y/konpeito/internal/types"
)

func TestBuildAnnotatesAssignAndPropagatesLocalType(t *testing.T) {
	b := NewBuilder(sig.NewRegistry(diag.New()), diag.New())

	lit := &ast.IntLit{Value: 5}
	target := &ast.Ident{Name: "x"}
	assign := &ast.Assign{Target: target, Value: lit}
	use := &ast.Ident{Name: "x"}

	info := b.Build(&ast.Program{Body: []ast.Node{assign, use}})

	require.NotNil(t, info.TypeOf(assign))
	assert.Equal(t, types.KindInt, info.TypeOf(assign).Kind)
	assert.Equal(t, types.KindInt, info.TypeOf(use).Kind)
	assert.False(t, info.Untyped[use])
}

func TestBuildMarksUnresolvedIdentAsUntyped(t *testing.T) {
	b := NewBuilder(sig.NewRegistry(diag.New()), diag.New())
	use := &ast.Ident{Name: "mystery"}

	info := b.Build(&ast.Program{Body: []ast.Node{use}})

	assert.True(t, info.Untyped[use])
	assert.Equal(t, types.KindTypeVar, info.TypeOf(use).Kind)
}

func TestBuildMultiAssignBindsRestTargetAsArray(t *testing.T) {
	b := NewBuilder(sig.NewRegistry(diag.New()), diag.New())

	rhs := &ast.ArrayLit{Elems: []ast.Node{&ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}}}
	restIdent := &ast.Ident{Name: "rest"}
	node := &ast.MultiAssign{
		Targets:   []ast.Node{&ast.Ident{Name: "a"}, restIdent, &ast.Ident{Name: "c"}},
		RestIndex: 1,
		Value:     rhs,
	}
	useRest := &ast.Ident{Name: "rest"}

	info := b.Build(&ast.Program{Body: []ast.Node{node, useRest}})

	assert.Equal(t, types.KindArray, info.TypeOf(useRest).Kind)
}

func TestBuildIfUnifiesThenElseIntoUnion(t *testing.T) {
	b := NewBuilder(sig.NewRegistry(diag.New()), diag.New())

	ifNode := &ast.If{
		Cond: &ast.BoolLit{Value: true},
		Then: []ast.Node{&ast.IntLit{Value: 1}},
		Else: []ast.Node{&ast.StringLit{Value: "x"}},
	}

	info := b.Build(&ast.Program{Body: []ast.Node{ifNode}})

	result := info.TypeOf(ifNode)
	require.Equal(t, types.KindUnion, result.Kind)
	assert.Len(t, result.Members, 2)
}
