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

// Package types implements the small type lattice konpeito carries from
// signature loading through monomorphization (spec §3).
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the shape of a Type the way scm.Scmer tags a runtime value:
// a small integer discriminant plus kind-specific payload fields.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindSymbol
	KindNil
	KindUnit
	KindString
	KindArray
	KindHash
	KindRange
	KindRegexp
	KindObject // boxed host-interpreter VALUE, unknown shape
	KindClassInstance
	KindUnion
	KindFunction
	KindNativeClass
	KindTypeVar
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindSymbol:
		return "Symbol"
	case KindNil:
		return "Nil"
	case KindUnit:
		return "Unit"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindHash:
		return "Hash"
	case KindRange:
		return "Range"
	case KindRegexp:
		return "Regexp"
	case KindObject:
		return "Object"
	case KindClassInstance:
		return "ClassInstance"
	case KindUnion:
		return "Union"
	case KindFunction:
		return "Function"
	case KindNativeClass:
		return "NativeClass"
	case KindTypeVar:
		return "TypeVar"
	}
	return "?"
}

// FieldKind distinguishes how a native class's field is represented on
// the struct (spec §3, Native-class descriptor).
type FieldKind uint8

const (
	FieldPrimitiveInt64 FieldKind = iota
	FieldPrimitiveFloat64
	FieldPrimitiveBool
	FieldValue    // VALUE marker: host-interpreter-managed string/array/hash/opaque
	FieldEmbedded // struct-in-struct: an embedded native-class name
	FieldReference
)

// Annotation is one of the marker tags a native class or method may
// carry in a signature file (spec §4.1): vtable, struct, native, cfunc,
// ffi. Annotations compose; a native class may be both "native" and
// "vtable".
type Annotation struct {
	Name  string // "vtable" | "struct" | "native" | "cfunc" | "ffi"
	Value string // e.g. cfunc's "name=..." or ffi's "lib=..."
}

func (a Annotation) String() string {
	if a.Value == "" {
		return a.Name
	}
	return a.Name + " " + a.Value
}

// Type is the single representation for every member of the lattice in
// spec §3. Only the fields relevant to Kind are populated; this mirrors
// the tagged-union discipline of a compact value representation without
// resorting to an interface per kind, which would make exhaustive
// dispatch in the inferrer and emitter error-prone.
type Type struct {
	Kind Kind

	// KindClassInstance, KindNativeClass
	Name     string
	TypeArgs []*Type

	// KindUnion
	Members []*Type

	// KindFunction
	Params   []*Type
	Result   *Type
	MayRaise bool

	// KindNativeClass
	Superclass  *Type // nil if none
	Fields      []Field
	Methods     []Method
	Annotations []Annotation

	// KindTypeVar
	VarID int
	// Bound is non-nil once the unifier has resolved this variable;
	// union-find style: callers must call Prune before inspecting Kind.
	Bound *Type
}

// Field is one entry of a native class's ordered field mapping.
type Field struct {
	Name string
	Kind FieldKind
	// Native holds the embedded or referenced native-class name when
	// Kind is FieldEmbedded or FieldReference.
	Native string
}

// Method is a signature record: params, names, return type, flags.
type Method struct {
	Name       string
	Params     []Param
	ParamNames []string
	Result     *Type // may be SelfType()
	Singleton  bool
	Visibility Visibility
	Annotations []Annotation
}

// Param describes one formal parameter's passing convention (spec §4.4
// keyword-argument handling and §3 function record).
type Param struct {
	Type    *Type
	Kind    ParamKind
	Default bool // has a default-value expression
}

type ParamKind uint8

const (
	ParamNormal ParamKind = iota
	ParamKeyword
	ParamRest
	ParamKeywordRest
	ParamBlock
)

type Visibility uint8

const (
	Public Visibility = iota
	Private
	Protected
)

// Constructors

func Int() *Type    { return &Type{Kind: KindInt} }
func Float() *Type  { return &Type{Kind: KindFloat} }
func Bool() *Type   { return &Type{Kind: KindBool} }
func Symbol() *Type { return &Type{Kind: KindSymbol} }
func Nil() *Type    { return &Type{Kind: KindNil} }
func Unit() *Type   { return &Type{Kind: KindUnit} }
func Str() *Type    { return &Type{Kind: KindString} }
func Arr() *Type    { return &Type{Kind: KindArray} }
func Hash() *Type   { return &Type{Kind: KindHash} }
func Object() *Type { return &Type{Kind: KindObject} }

// SelfType marks a method's declared return type as "Self" (spec §4.1).
// It is represented as a ClassInstance named "self" the checker resolves
// against the enclosing receiver at call-site time.
func SelfType() *Type { return &Type{Kind: KindClassInstance, Name: "self"} }

func ClassInstance(name string, args ...*Type) *Type {
	return &Type{Kind: KindClassInstance, Name: name, TypeArgs: args}
}

// Union builds a normalized Union(member...): duplicates collapsed,
// members sorted by string form so two unions built from different
// orderings compare equal. A single-member union degenerates to that
// member, per spec §3's "unordered set of at-least-two members".
func Union(members ...*Type) *Type {
	seen := map[string]*Type{}
	for _, m := range members {
		m = Prune(m)
		if m.Kind == KindUnion {
			for _, mm := range m.Members {
				seen[mm.String()] = mm
			}
			continue
		}
		seen[m.String()] = m
	}
	if len(seen) == 1 {
		for _, m := range seen {
			return m
		}
	}
	out := make([]*Type, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return &Type{Kind: KindUnion, Members: out}
}

// Optional builds Optional(T) = Union(T, nil).
func Optional(t *Type) *Type { return Union(t, Nil()) }

func Func(params []*Type, result *Type, mayRaise bool) *Type {
	return &Type{Kind: KindFunction, Params: params, Result: result, MayRaise: mayRaise}
}

func NativeClass(name string, super *Type, fields []Field, methods []Method, anns []Annotation) *Type {
	return &Type{Kind: KindNativeClass, Name: name, Superclass: super, Fields: fields, Methods: methods, Annotations: anns}
}

var freshCounter int

// Fresh returns a new, globally unique type variable. The typed-AST
// builder (internal/typedast) creates them at unresolved positions for
// the HM inferrer (internal/infer) to solve; freshCounter is process-global the way
// the signature registry is a per-compilation singleton (spec §9).
func Fresh() *Type {
	freshCounter++
	return &Type{Kind: KindTypeVar, VarID: freshCounter}
}

// ResetFreshCounter is exposed for tests and for the driver to guarantee
// "no cross-compilation leakage" (spec §9) between successive Compile
// calls within one process.
func ResetFreshCounter() { freshCounter = 0 }

// Prune follows a type variable's Bound chain to its representative
// type, union-find style. It is the single point every consumer of a
// Type must pass through before switching on Kind.
func Prune(t *Type) *Type {
	for t.Kind == KindTypeVar && t.Bound != nil {
		t = t.Bound
	}
	return t
}

// HasAnnotation reports whether a native class or method carries the
// named marker tag.
func HasAnnotation(anns []Annotation, name string) bool {
	for _, a := range anns {
		if a.Name == name {
			return true
		}
	}
	return false
}

func Annotated(anns []Annotation, name string) (Annotation, bool) {
	for _, a := range anns {
		if a.Name == name {
			return a, true
		}
	}
	return Annotation{}, false
}

// String renders a Type for diagnostics, matching the compact,
// single-line textual style scm/printer.go uses for Scmer printing.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	t = Prune(t)
	switch t.Kind {
	case KindClassInstance:
		if len(t.TypeArgs) == 0 {
			return t.Name
		}
		parts := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s<%s>", t.Name, strings.Join(parts, ", "))
	case KindUnion:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return strings.Join(parts, " | ")
	case KindFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		ret := "Unit"
		if t.Result != nil {
			ret = t.Result.String()
		}
		return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), ret)
	case KindNativeClass:
		return t.Name
	case KindTypeVar:
		return fmt.Sprintf("t%d", t.VarID)
	default:
		return t.Kind.String()
	}
}

// Equal performs structural equality modulo Prune; it does not unify
// (that is internal/infer's job), it only decides whether two already-
// resolved types denote the same lattice element.
func Equal(a, b *Type) bool {
	a, b = Prune(a), Prune(b)
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindClassInstance, KindNativeClass:
		if a.Name != b.Name || len(a.TypeArgs) != len(b.TypeArgs) {
			return false
		}
		for i := range a.TypeArgs {
			if !Equal(a.TypeArgs[i], b.TypeArgs[i]) {
				return false
			}
		}
		return true
	case KindUnion:
		if len(a.Members) != len(b.Members) {
			return false
		}
		for i := range a.Members {
			if !Equal(a.Members[i], b.Members[i]) {
				return false
			}
		}
		return true
	case KindFunction:
		if len(a.Params) != len(b.Params) || a.MayRaise != b.MayRaise {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return Equal(a.Result, b.Result)
	case KindTypeVar:
		return a.VarID == b.VarID
	default:
		return true
	}
}

// Unboxed reports whether t is a machine scalar usable directly in
// arithmetic/comparison instructions without a box/unbox round-trip
// (spec §4.5 phi-type promoter, §4.6 "canonical host ... constants").
func Unboxed(t *Type) bool {
	t = Prune(t)
	return t.Kind == KindInt || t.Kind == KindFloat
}

// WideningAdmits reports whether an argument of type 'arg' may be
// passed where 'param' is declared, including integer-to-float widening
// (spec §4.1 overload resolution: "with integer widening to float
// allowed").
func WideningAdmits(param, arg *Type) bool {
	param, arg = Prune(param), Prune(arg)
	if Equal(param, arg) {
		return true
	}
	if param.Kind == KindFloat && arg.Kind == KindInt {
		return true
	}
	if param.Kind == KindUnion {
		for _, m := range param.Members {
			if WideningAdmits(m, arg) {
				return true
			}
		}
	}
	if arg.Kind == KindUnion {
		// every member of the argument union must be admitted
		for _, m := range arg.Members {
			if !WideningAdmits(param, m) {
				return false
			}
		}
		return true
	}
	return false
}

// Members returns the flattened member list of t if t is a Union, or a
// single-element slice [t] otherwise. Used by the monomorphizer to list
// the members of the union-typed argument a call site dispatches on
// (spec §4.5).
func Members(t *Type) []*Type {
	t = Prune(t)
	if t.Kind == KindUnion {
		return t.Members
	}
	return []*Type{t}
}
