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

// Package sig implements the signature loader (spec §4.1): it reads
// external RBS-style signature documents and merges them into a
// Registry that the typed-AST builder and the HM inferrer treat as
// ground truth for external declarations.
//
// The registry's per-class method table is a btree.BTreeG, the same
// structure storage/index.go uses for ordered scans — here it keeps
// overloads grouped by (class, method, singleton) and iterable in
// declaration order without a second sort pass.
package sig

import (
	"fmt"

	"github.com/google/btree"

	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/types"
)

// methodKey orders entries first by class, then method name, then
// singleton-ness, then declaration order (Seq) so that multiple
// overloads of the same method stay adjacent and ordered as declared.
type methodKey struct {
	Class     string
	Method    string
	Singleton bool
	Seq       int
}

func lessMethodKey(a, b methodKey) bool {
	if a.Class != b.Class {
		return a.Class < b.Class
	}
	if a.Method != b.Method {
		return a.Method < b.Method
	}
	if a.Singleton != b.Singleton {
		return !a.Singleton
	}
	return a.Seq < b.Seq
}

type methodEntry struct {
	key methodKey
	sig types.Method
}

// Registry is the merged view of every signature document loaded for a
// compilation. It is a per-compilation singleton (spec §9): constructed
// fresh at the start of the pipeline, discarded at the end.
type Registry struct {
	classes   map[string]*types.Type // class name -> ClassInstance or NativeClass type
	modules   map[string]*types.Type
	methods   *btree.BTreeG[methodEntry]
	ffiLibs   map[string]bool
	seq       int
	diag      *diag.Collector
}

func NewRegistry(d *diag.Collector) *Registry {
	return &Registry{
		classes: map[string]*types.Type{},
		modules: map[string]*types.Type{},
		methods: btree.NewG(32, func(a, b methodEntry) bool { return lessMethodKey(a.key, b.key) }),
		ffiLibs: map[string]bool{},
		diag:    d,
	}
}

// DeclareClass registers a class type. Redeclaring a native class with
// a different field layout is a conflicting redeclaration (fatal, per
// spec §4.1 loader failure kinds). Any other redeclaration, such as a
// reopening with an identical NativeClass layout or a repeated
// non-native class, replaces the registered type and adds its methods
// next to those already declared.
func (r *Registry) DeclareClass(t *types.Type) error {
	if existing, ok := r.classes[t.Name]; ok {
		if existing.Kind == types.KindNativeClass && t.Kind == types.KindNativeClass && !sameNativeLayout(existing, t) {
			return r.diag.Fatalf(diag.Position{}, diag.KindValidation,
				"conflicting redeclaration of native class %q", t.Name)
		}
	}
	r.classes[t.Name] = t
	for _, m := range t.Methods {
		r.seq++
		r.methods.ReplaceOrInsert(methodEntry{
			key: methodKey{Class: t.Name, Method: m.Name, Singleton: m.Singleton, Seq: r.seq},
			sig: m,
		})
	}
	for _, a := range t.Annotations {
		if a.Name == "ffi" {
			lib := ffiLibName(a.Value)
			if lib != "" {
				r.ffiLibs[lib] = true
			}
		}
	}
	return nil
}

func (r *Registry) DeclareModule(name string, t *types.Type) error {
	if _, ok := r.modules[name]; ok {
		// modules may always be reopened (spec §4.4 "Class reopening"
		// applies identically to modules); merge method lists.
	}
	r.modules[name] = t
	for _, m := range t.Methods {
		r.seq++
		r.methods.ReplaceOrInsert(methodEntry{
			key: methodKey{Class: name, Method: m.Name, Singleton: m.Singleton, Seq: r.seq},
			sig: m,
		})
	}
	return nil
}

func sameNativeLayout(a, b *types.Type) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

func ffiLibName(value string) string {
	// value looks like `lib=sqlite3`
	const prefix = "lib="
	if len(value) > len(prefix) && value[:len(prefix)] == prefix {
		return value[len(prefix):]
	}
	return value
}

// NativeClass reports whether name is known and declared with the
// "native" annotation.
func (r *Registry) NativeClass(name string) bool {
	t, ok := r.classes[name]
	return ok && t.Kind == types.KindNativeClass
}

// NativeClassType returns the full native-class descriptor, or nil.
func (r *Registry) NativeClassType(name string) *types.Type {
	t, ok := r.classes[name]
	if !ok || t.Kind != types.KindNativeClass {
		return nil
	}
	return t
}

// ClassType returns any declared class or module type by name.
func (r *Registry) ClassType(name string) (*types.Type, bool) {
	if t, ok := r.classes[name]; ok {
		return t, true
	}
	t, ok := r.modules[name]
	return t, ok
}

// CFuncMethod reports whether class.method (instance or singleton) is
// annotated `cfunc` — a direct C-level call with no wrapper (spec
// §4.1).
func (r *Registry) CFuncMethod(class, method string, singleton bool) bool {
	found := false
	r.forEachOverload(class, method, singleton, func(m types.Method) bool {
		if types.HasAnnotation(m.Annotations, "cfunc") {
			found = true
			return false
		}
		return true
	})
	return found
}

// ResolveOverload picks the first declared signature for class.method
// whose parameter types admit the given argument types under the type
// lattice, with integer-to-float widening allowed (spec §4.1). It
// returns the matching Method and true, or the zero value and false.
func (r *Registry) ResolveOverload(class, method string, singleton bool, args []*types.Type) (types.Method, bool) {
	var best types.Method
	found := false
	r.forEachOverload(class, method, singleton, func(m types.Method) bool {
		if admits(m, args) {
			best = m
			found = true
			return false
		}
		return true
	})
	return best, found
}

func admits(m types.Method, args []*types.Type) bool {
	if len(args) != len(m.Params) {
		return false
	}
	for i, p := range m.Params {
		if !types.WideningAdmits(p.Type, args[i]) {
			return false
		}
	}
	return true
}

// forEachOverload walks every declared overload for (class, method,
// singleton) in declaration order, stopping early when fn returns
// false — the same ascend-and-stop idiom storage/index.go's
// iterateIndex uses for its scans.
func (r *Registry) forEachOverload(class, method string, singleton bool, fn func(types.Method) bool) {
	lo := methodKey{Class: class, Method: method, Singleton: singleton, Seq: 0}
	r.methods.AscendGreaterOrEqual(methodEntry{key: lo}, func(e methodEntry) bool {
		if e.key.Class != class || e.key.Method != method || e.key.Singleton != singleton {
			return false
		}
		return fn(e.sig)
	})
}

// FFILibraries returns the set of library names referenced by `ffi`
// annotations, used by the driver to build linker flags (spec §6,
// "-l<name> for every library named in an FFI annotation").
func (r *Registry) FFILibraries() []string {
	out := make([]string, 0, len(r.ffiLibs))
	for name := range r.ffiLibs {
		out = append(out, name)
	}
	return out
}

// GenericParam binds a generic type parameter at class scope (spec
// §4.1 "Generic parameters are represented as type variables bound at
// class scope and substituted at instantiation").
type GenericParam struct {
	Name string
	TV   *types.Type // the bound type variable
}

// Substitute replaces occurrences of a generic parameter with a
// concrete type argument throughout t, used when instantiating a
// parameterized ClassInstance or NativeClass.
func Substitute(t *types.Type, params []GenericParam, args []*types.Type) *types.Type {
	if len(params) != len(args) {
		panic(fmt.Sprintf("sig: Substitute arity mismatch: %d params, %d args", len(params), len(args)))
	}
	bind := map[int]*types.Type{}
	for i, p := range params {
		bind[p.TV.VarID] = args[i]
	}
	return substitute(t, bind)
}

func substitute(t *types.Type, bind map[int]*types.Type) *types.Type {
	t = types.Prune(t)
	switch t.Kind {
	case types.KindTypeVar:
		if r, ok := bind[t.VarID]; ok {
			return r
		}
		return t
	case types.KindClassInstance:
		args := make([]*types.Type, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = substitute(a, bind)
		}
		return types.ClassInstance(t.Name, args...)
	case types.KindUnion:
		members := make([]*types.Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = substitute(m, bind)
		}
		return types.Union(members...)
	case types.KindFunction:
		params := make([]*types.Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = substitute(p, bind)
		}
		return types.Func(params, substitute(t.Result, bind), t.MayRaise)
	default:
		return t
	}
}
