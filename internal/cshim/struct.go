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
	"fmt"
	"io"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

// cFieldType maps a native field's Kind to its C member type (spec
// §4.7: "primitives, VALUE marker, embedded native-class name,
// reference-to-native-class marker").
func cFieldType(f types.Field) string {
	switch f.Kind {
	case types.FieldPrimitiveInt64:
		return "int64_t"
	case types.FieldPrimitiveFloat64:
		return "double"
	case types.FieldPrimitiveBool:
		return "bool"
	case types.FieldValue, types.FieldReference:
		return "VALUE"
	case types.FieldEmbedded:
		return "struct " + cStructName(f.Native)
	default:
		return "VALUE"
	}
}

// emitStruct writes the forward declaration and full struct definition
// for a native class, in the order spec §4.7 names: optional vptr
// first, then fields in declared order.
func (g *Generator) emitStruct(w io.Writer, c *hir.Class) {
	n := nativeOf(c)
	tag := cStructName(c.Name)
	fmt.Fprintf(w, "struct %s;\n", tag)
	fmt.Fprintf(w, "struct %s {\n", tag)
	if types.HasAnnotation(n.Annotations, "vtable") {
		fmt.Fprintf(w, "    const struct %s_vtable *vptr;\n", tag)
	}
	for _, f := range n.Fields {
		fmt.Fprintf(w, "    %s %s;\n", cFieldType(f), f.Name)
	}
	fmt.Fprintf(w, "};\n\n")

	g.emitGCMark(w, c)
	g.emitTypedData(w, c)
	g.emitAllocator(w, c)
	g.emitAccessors(w, c)
}

// hasGCFields reports whether n has any field the GC must trace: a
// VALUE/reference field, or an embedded struct that itself has one.
func (g *Generator) hasGCFields(n *types.Type) bool {
	for _, f := range n.Fields {
		switch f.Kind {
		case types.FieldValue, types.FieldReference:
			return true
		case types.FieldEmbedded:
			if emb, ok := g.classByName[f.Native]; ok && g.hasGCFields(nativeOf(emb)) {
				return true
			}
		}
	}
	return false
}

// emitGCMark emits the optional GC mark callback, iterating over VALUE
// and reference fields (spec §4.7); classes with no such field get no
// callback at all and the TypedData descriptor passes a null dmark.
func (g *Generator) emitGCMark(w io.Writer, c *hir.Class) {
	n := nativeOf(c)
	if !g.hasGCFields(n) {
		return
	}
	tag := cStructName(c.Name)
	fmt.Fprintf(w, "static void %s_mark(void *ptr) {\n", tag)
	fmt.Fprintf(w, "    struct %s *self = (struct %s *)ptr;\n", tag, tag)
	g.emitMarkFields(w, n, "self")
	fmt.Fprintf(w, "}\n\n")
}

func (g *Generator) emitMarkFields(w io.Writer, n *types.Type, selfExpr string) {
	for _, f := range n.Fields {
		switch f.Kind {
		case types.FieldValue, types.FieldReference:
			fmt.Fprintf(w, "    rb_gc_mark(%s->%s);\n", selfExpr, f.Name)
		case types.FieldEmbedded:
			if emb, ok := g.classByName[f.Native]; ok {
				g.emitMarkFields(w, nativeOf(emb), fmt.Sprintf("(&%s->%s)", selfExpr, f.Name))
			}
		}
	}
}

// emitTypedData emits the TypedData descriptor (spec §3 glossary
// "TypedData ... carrying user-supplied allocator, GC-mark, and free
// callbacks").
func (g *Generator) emitTypedData(w io.Writer, c *hir.Class) {
	n := nativeOf(c)
	tag := cStructName(c.Name)
	mark := "0"
	if g.hasGCFields(n) {
		mark = tag + "_mark"
	}
	fmt.Fprintf(w, "static const rb_data_type_t %s = {\n", cTypedDataName(c.Name))
	fmt.Fprintf(w, "    \"%s\",\n", c.Name)
	fmt.Fprintf(w, "    { %s, RUBY_DEFAULT_FREE, 0, },\n", mark)
	fmt.Fprintf(w, "    0, 0, RUBY_TYPED_FREE_IMMEDIATELY,\n")
	fmt.Fprintf(w, "};\n\n")
}

// emitAllocator emits the allocator function (spec §4.7: "returning a
// wrapped struct with zeroed primitives and nil references, and vptr
// initialized to the class's vtable if any").
func (g *Generator) emitAllocator(w io.Writer, c *hir.Class) {
	n := nativeOf(c)
	tag := cStructName(c.Name)
	fmt.Fprintf(w, "static VALUE %s_alloc(VALUE klass) {\n", tag)
	fmt.Fprintf(w, "    struct %s *self;\n", tag)
	fmt.Fprintf(w, "    VALUE obj = TypedData_Make_Struct(klass, struct %s, &%s, self);\n", tag, cTypedDataName(c.Name))
	if types.HasAnnotation(n.Annotations, "vtable") {
		fmt.Fprintf(w, "    self->vptr = &%s_vtable_instance;\n", tag)
	}
	for _, f := range n.Fields {
		switch f.Kind {
		case types.FieldValue, types.FieldReference:
			fmt.Fprintf(w, "    self->%s = Qnil;\n", f.Name)
		case types.FieldPrimitiveBool:
			fmt.Fprintf(w, "    self->%s = false;\n", f.Name)
		case types.FieldPrimitiveInt64, types.FieldPrimitiveFloat64:
			fmt.Fprintf(w, "    self->%s = 0;\n", f.Name)
		}
	}
	fmt.Fprintf(w, "    return obj;\n")
	fmt.Fprintf(w, "}\n\n")
}

// emitAccessors emits getter/setter pairs converting between host
// values and native fields, with full copy semantics for embedded
// structs (spec §4.7).
func (g *Generator) emitAccessors(w io.Writer, c *hir.Class) {
	n := nativeOf(c)
	tag := cStructName(c.Name)
	for _, f := range n.Fields {
		g.emitGetter(w, tag, f)
		g.emitSetter(w, tag, f)
	}
}

func (g *Generator) emitGetter(w io.Writer, tag string, f types.Field) {
	fmt.Fprintf(w, "static VALUE %s_get_%s(VALUE self_v) {\n", tag, f.Name)
	fmt.Fprintf(w, "    struct %s *self;\n", tag)
	fmt.Fprintf(w, "    TypedData_Get_Struct(self_v, struct %s, &%s, self);\n", tag, tag+"_type")
	switch f.Kind {
	case types.FieldPrimitiveInt64:
		fmt.Fprintf(w, "    return LL2NUM(self->%s);\n", f.Name)
	case types.FieldPrimitiveFloat64:
		fmt.Fprintf(w, "    return DBL2NUM(self->%s);\n", f.Name)
	case types.FieldPrimitiveBool:
		fmt.Fprintf(w, "    return self->%s ? Qtrue : Qfalse;\n", f.Name)
	case types.FieldValue, types.FieldReference:
		fmt.Fprintf(w, "    return self->%s;\n", f.Name)
	case types.FieldEmbedded:
		embTag := cStructName(f.Native)
		fmt.Fprintf(w, "    VALUE copy = %s_alloc(%s_class);\n", embTag, embTag)
		fmt.Fprintf(w, "    struct %s *dst;\n", embTag)
		fmt.Fprintf(w, "    TypedData_Get_Struct(copy, struct %s, &%s, dst);\n", embTag, cTypedDataName(f.Native))
		fmt.Fprintf(w, "    *dst = self->%s;\n", f.Name)
		fmt.Fprintf(w, "    return copy;\n")
	}
	fmt.Fprintf(w, "}\n\n")
}

func (g *Generator) emitSetter(w io.Writer, tag string, f types.Field) {
	fmt.Fprintf(w, "static VALUE %s_set_%s(VALUE self_v, VALUE v) {\n", tag, f.Name)
	fmt.Fprintf(w, "    struct %s *self;\n", tag)
	fmt.Fprintf(w, "    TypedData_Get_Struct(self_v, struct %s, &%s, self);\n", tag, tag+"_type")
	switch f.Kind {
	case types.FieldPrimitiveInt64:
		fmt.Fprintf(w, "    self->%s = NUM2LL(v);\n", f.Name)
	case types.FieldPrimitiveFloat64:
		fmt.Fprintf(w, "    self->%s = NUM2DBL(v);\n", f.Name)
	case types.FieldPrimitiveBool:
		fmt.Fprintf(w, "    self->%s = RTEST(v);\n", f.Name)
	case types.FieldValue, types.FieldReference:
		fmt.Fprintf(w, "    self->%s = v;\n", f.Name)
	case types.FieldEmbedded:
		embTag := cStructName(f.Native)
		fmt.Fprintf(w, "    struct %s *src;\n", embTag)
		fmt.Fprintf(w, "    TypedData_Get_Struct(v, struct %s, &%s, src);\n", embTag, cTypedDataName(f.Native))
		fmt.Fprintf(w, "    self->%s = *src;\n", f.Name)
	}
	fmt.Fprintf(w, "    return v;\n")
	fmt.Fprintf(w, "}\n\n")
}
