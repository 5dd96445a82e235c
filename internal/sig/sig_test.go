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

package sig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/types"
)

func pointClass() *types.Type {
	return types.NativeClass("Point", nil,
		[]types.Field{
			{Name: "x", Kind: types.FieldPrimitiveFloat64},
			{Name: "y", Kind: types.FieldPrimitiveFloat64},
		},
		[]types.Method{
			{Name: "move", Params: []types.Param{{Type: types.Int()}}, ParamNames: []string{"dx"}, Result: types.SelfType()},
			{Name: "move", Params: []types.Param{{Type: types.Float()}}, ParamNames: []string{"dx"}, Result: types.SelfType()},
		},
		[]types.Annotation{{Name: "native"}},
	)
}

func TestResolveOverloadPicksFirstAdmittingSignature(t *testing.T) {
	r := NewRegistry(diag.New())
	require.NoError(t, r.DeclareClass(pointClass()))

	m, ok := r.ResolveOverload("Point", "move", false, []*types.Type{types.Int()})
	require.True(t, ok)
	assert.Equal(t, types.KindInt, m.Params[0].Type.Kind)

	// integer widens to the float overload too, but the int overload was
	// declared first and must win.
	m2, ok := r.ResolveOverload("Point", "move", false, []*types.Type{types.Int()})
	require.True(t, ok)
	assert.Equal(t, m.Params[0].Type.Kind, m2.Params[0].Type.Kind)
}

func TestResolveOverloadWideningAdmitsIntArgToFloatParam(t *testing.T) {
	r := NewRegistry(diag.New())
	onlyFloat := types.NativeClass("Scale", nil, nil,
		[]types.Method{{Name: "by", Params: []types.Param{{Type: types.Float()}}, ParamNames: []string{"f"}}},
		nil)
	require.NoError(t, r.DeclareClass(onlyFloat))

	_, ok := r.ResolveOverload("Scale", "by", false, []*types.Type{types.Int()})
	assert.True(t, ok)
	_, ok = r.ResolveOverload("Scale", "by", false, []*types.Type{types.Str()})
	assert.False(t, ok)
}

func TestDeclareClassRejectsConflictingNativeRedeclaration(t *testing.T) {
	r := NewRegistry(diag.New())
	require.NoError(t, r.DeclareClass(pointClass()))

	conflicting := types.NativeClass("Point", nil,
		[]types.Field{{Name: "x", Kind: types.FieldPrimitiveInt64}}, nil,
		[]types.Annotation{{Name: "native"}})
	err := r.DeclareClass(conflicting)
	assert.Error(t, err)
}

func TestCFuncMethodDetectsAnnotation(t *testing.T) {
	r := NewRegistry(diag.New())
	native := types.NativeClass("Fast", nil, nil,
		[]types.Method{
			{Name: "go_fast", Annotations: []types.Annotation{{Name: "cfunc"}}},
			{Name: "go_slow"},
		}, nil)
	require.NoError(t, r.DeclareClass(native))

	assert.True(t, r.CFuncMethod("Fast", "go_fast", false))
	assert.False(t, r.CFuncMethod("Fast", "go_slow", false))
}

func TestFFILibrariesCollectsDeclaredLibraryNames(t *testing.T) {
	r := NewRegistry(diag.New())
	native := types.NativeClass("SQLite", nil, nil, nil,
		[]types.Annotation{{Name: "ffi", Value: "lib=sqlite3"}})
	require.NoError(t, r.DeclareClass(native))

	assert.ElementsMatch(t, []string{"sqlite3"}, r.FFILibraries())
}

func TestGenericSubstitutePanicsOnArityMismatch(t *testing.T) {
	tv := types.Fresh()
	assert.Panics(t, func() {
		Substitute(types.ClassInstance("Box", tv), []GenericParam{{Name: "T", TV: tv}}, nil)
	})
}
