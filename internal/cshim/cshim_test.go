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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

func vector2Class() *hir.Class {
	native := types.NativeClass("Vector2", nil,
		[]types.Field{
			{Name: "x", Kind: types.FieldPrimitiveFloat64},
			{Name: "y", Kind: types.FieldPrimitiveFloat64},
		},
		[]types.Method{
			{Name: "length_squared", Params: nil, ParamNames: nil, Result: types.Float()},
			{Name: "scale", Params: []types.Param{{Type: types.Float()}}, ParamNames: []string{"factor"}, Result: types.SelfType(),
				Annotations: []types.Annotation{{Name: "struct"}}},
		},
		nil,
	)
	return &hir.Class{Name: "Vector2", Native: native}
}

func vtableShapeClass() *hir.Class {
	base := types.NativeClass("Shape", nil, nil,
		[]types.Method{{Name: "area", Result: types.Float()}},
		[]types.Annotation{{Name: "vtable"}, {Name: "native"}},
	)
	return &hir.Class{Name: "Shape", Native: base}
}

func vtableCircleClass(shape *hir.Class) *hir.Class {
	circle := types.NativeClass("Circle", shape.Native,
		[]types.Field{{Name: "radius", Kind: types.FieldPrimitiveFloat64}},
		[]types.Method{
			{Name: "area", Result: types.Float()},
			{Name: "circumference", Result: types.Float()},
		},
		[]types.Annotation{{Name: "vtable"}, {Name: "native"}},
	)
	return &hir.Class{Name: "Circle", Superclass: "Shape", Native: circle}
}

func newTestGenerator(classes ...*hir.Class) *Generator {
	return New(&hir.Program{Classes: classes}, "konpeito_test")
}

func TestEmitStructLayoutAndAccessors(t *testing.T) {
	c := vector2Class()
	g := newTestGenerator(c)

	var buf strings.Builder
	g.emitStruct(&buf, c)
	out := buf.String()

	assert.Contains(t, out, "struct rn_Vector2 {")
	assert.Contains(t, out, "double x;")
	assert.Contains(t, out, "double y;")
	assert.Contains(t, out, "static const rb_data_type_t rn_Vector2_type = {")
	assert.Contains(t, out, "static VALUE rn_Vector2_alloc(VALUE klass) {")
	assert.Contains(t, out, "rn_Vector2_get_x")
	assert.Contains(t, out, "rn_Vector2_set_x")
	assert.Contains(t, out, "DBL2NUM(self->x)")
	assert.Contains(t, out, "self->x = NUM2DBL(v);")
	// no VALUE/reference fields: no GC mark callback should be emitted.
	assert.NotContains(t, out, "_mark(void *ptr)")
}

func TestEmitStructEmitsGCMarkWhenReferenceFieldPresent(t *testing.T) {
	native := types.NativeClass("Box", nil,
		[]types.Field{{Name: "payload", Kind: types.FieldValue}}, nil, nil)
	c := &hir.Class{Name: "Box", Native: native}
	g := newTestGenerator(c)

	var buf strings.Builder
	g.emitStruct(&buf, c)
	out := buf.String()

	require.Contains(t, out, "rn_Box_mark(void *ptr)")
	assert.Contains(t, out, "rb_gc_mark(self->payload);")
	assert.Contains(t, out, "{ rn_Box_mark, RUBY_DEFAULT_FREE, 0, },")
}

func TestVtableOrderPreservesParentIndicesAcrossInheritance(t *testing.T) {
	shape := vtableShapeClass()
	circle := vtableCircleClass(shape)
	g := newTestGenerator(shape, circle)

	shapeOrder := g.vtableOrder(shape)
	circleOrder := g.vtableOrder(circle)

	require.Equal(t, []string{"area"}, shapeOrder)
	require.Equal(t, []string{"area", "circumference"}, circleOrder)

	// "area" must occupy the same index in both vtables: the core
	// inheritance-preserving invariant the vtable layout exists to
	// guarantee.
	assert.Equal(t, indexOf(shapeOrder, "area"), indexOf(circleOrder, "area"))
}

func TestEmitVtableReferencesNearestImplementation(t *testing.T) {
	shape := vtableShapeClass()
	circle := vtableCircleClass(shape)
	g := newTestGenerator(shape, circle)

	var buf strings.Builder
	require.NoError(t, g.emitVtable(&buf, circle))
	out := buf.String()

	assert.Contains(t, out, "struct rn_Circle_vtable {")
	assert.Contains(t, out, ".area = rn_Circle_area_wrapper,")
	assert.Contains(t, out, ".circumference = rn_Circle_circumference_wrapper,")
}

func TestEmitVtableNoopForNonVtableClass(t *testing.T) {
	c := vector2Class()
	g := newTestGenerator(c)

	var buf strings.Builder
	require.NoError(t, g.emitVtable(&buf, c))
	assert.Empty(t, buf.String())
}

func TestEmitMethodWrappersSkipsCfuncWithExplicitSymbol(t *testing.T) {
	native := types.NativeClass("Fast", nil, nil,
		[]types.Method{
			{Name: "go_fast", Annotations: []types.Annotation{{Name: "cfunc", Value: "name=konpeito_go_fast"}}},
			{Name: "go_slow"},
		}, nil)
	c := &hir.Class{Name: "Fast", Native: native}
	g := newTestGenerator(c)

	var buf strings.Builder
	g.emitMethodWrappers(&buf, c)
	out := buf.String()

	assert.NotContains(t, out, "go_fast_wrapper")
	assert.Contains(t, out, "rn_Fast_go_slow_wrapper")
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
