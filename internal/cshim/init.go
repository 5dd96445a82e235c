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
	"sort"
	"strings"

	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/types"
)

// coreClassHandles maps a class/module name already known to the host
// runtime to its pre-existing C global, so the init routine resolves
// rather than redefines it (spec §4.7: "known host exception/core
// classes resolve to pre-existing runtime handles").
var coreClassHandles = map[string]string{
	"Object":          "rb_cObject",
	"BasicObject":     "rb_cBasicObject",
	"Exception":       "rb_eException",
	"StandardError":   "rb_eStandardError",
	"RuntimeError":    "rb_eRuntimeError",
	"ArgumentError":   "rb_eArgError",
	"TypeError":       "rb_eTypeError",
	"NameError":       "rb_eNameError",
	"NoMethodError":   "rb_eNoMethodError",
	"ZeroDivisionError": "rb_eZeroDivError",
	"IndexError":      "rb_eIndexError",
	"KeyError":        "rb_eKeyError",
	"RangeError":      "rb_eRangeError",
	"NotImplementedError": "rb_eNotImpError",
	"IOError":         "rb_eIOError",
	"StopIteration":   "rb_eStopIteration",
	"Integer":         "rb_cInteger",
	"Float":           "rb_cFloat",
	"Numeric":         "rb_cNumeric",
	"String":          "rb_cString",
	"Array":           "rb_cArray",
	"Hash":            "rb_cHash",
	"Symbol":          "rb_cSymbol",
	"Range":           "rb_cRange",
	"Proc":            "rb_cProc",
	"NilClass":        "rb_cNilClass",
	"TrueClass":       "rb_cTrueClass",
	"FalseClass":      "rb_cFalseClass",
	"Comparable":      "rb_mComparable",
	"Kernel":          "rb_mKernel",
	"Enumerable":      "rb_mEnumerable",
}

func classVarName(name string) string { return "konpeito_class_" + name }
func moduleVarName(name string) string { return "konpeito_module_" + name }

// classHandle resolves the C expression referring to name's VALUE,
// whether a core handle, a module, or a class this shim itself defines.
func (g *Generator) classHandle(name string) string {
	if name == "" {
		return "rb_cObject"
	}
	if h, ok := coreClassHandles[name]; ok {
		return h
	}
	return classVarName(name)
}

func valueLiteral(v hir.Value) string {
	switch c := v.(type) {
	case hir.ConstInt:
		return fmt.Sprintf("LL2NUM(%dLL)", c.V)
	case hir.ConstFloat:
		return fmt.Sprintf("DBL2NUM(%g)", c.V)
	case hir.ConstString:
		return fmt.Sprintf("rb_utf8_str_new_cstr(%q)", c.V)
	case hir.ConstSymbol:
		return fmt.Sprintf("ID2SYM(rb_intern(%q))", c.V)
	case hir.ConstBool:
		if c.V {
			return "Qtrue"
		}
		return "Qfalse"
	case hir.ConstNil:
		return "Qnil"
	default:
		return "Qnil"
	}
}

// nonNativeClassOrder topologically sorts the classes this shim itself
// must define (native classes are ordered separately by emitInit, ahead
// of these), so a subclass is always defined after its superclass.
func nonNativeClassOrder(classes []*hir.Class) []*hir.Class {
	byName := map[string]*hir.Class{}
	var names []string
	for _, c := range classes {
		if c.Native == nil {
			byName[c.Name] = c
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)

	var out []*hir.Class
	visited := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		if c, ok := byName[name]; ok {
			visit(c.Superclass)
			out = append(out, c)
		}
	}
	for _, name := range names {
		visit(name)
	}
	return out
}

func visibilityFor(vis map[string]types.Visibility, name string) types.Visibility {
	if vis == nil {
		return types.Public
	}
	return vis[name]
}

// defineMethod emits the rb_define_* call matching visibility, plus the
// follow-up rb_funcall to flip a method protected when the C API has no
// dedicated entry point for it.
func defineMethod(w io.Writer, classExpr, methodName, symbol string, arity int, singleton bool, vis types.Visibility) {
	target := classExpr
	def := "rb_define_method"
	if singleton {
		def = "rb_define_singleton_method"
	} else if vis == types.Private {
		def = "rb_define_private_method"
	}
	fmt.Fprintf(w, "    %s(%s, \"%s\", %s, %d);\n", def, target, methodName, symbol, arity)
	if !singleton && vis == types.Protected {
		fmt.Fprintf(w, "    rb_funcall(%s, rb_intern(\"protected\"), 1, ID2SYM(rb_intern(\"%s\")));\n", target, methodName)
	}
}

func applyMixins(w io.Writer, classExpr string, includes []hir.MixinRef) {
	for _, kind := range []string{"prepend", "include", "extend"} {
		for _, m := range includes {
			if m.Kind != kind {
				continue
			}
			handle := moduleVarName(m.Name)
			if h, ok := coreClassHandles[m.Name]; ok {
				handle = h
			}
			switch m.Kind {
			case "include":
				fmt.Fprintf(w, "    rb_include_module(%s, %s);\n", classExpr, handle)
			case "extend":
				fmt.Fprintf(w, "    rb_extend_object(%s, %s);\n", classExpr, handle)
			case "prepend":
				fmt.Fprintf(w, "    rb_prepend_module(%s, %s);\n", classExpr, handle)
			}
		}
	}
}

func emitConstsAndCVars(w io.Writer, classExpr string, consts, cvars map[string]hir.Value) {
	names := make([]string, 0, len(consts))
	for name := range consts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    rb_define_const(%s, \"%s\", %s);\n", classExpr, name, valueLiteral(consts[name]))
	}
	names = names[:0]
	for name := range cvars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    rb_cv_set(%s, \"%s\", %s);\n", classExpr, name, valueLiteral(cvars[name]))
	}
}

func emitAliases(w io.Writer, classExpr string, aliases map[string]string) {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, newName := range names {
		fmt.Fprintf(w, "    rb_define_alias(%s, \"%s\", \"%s\");\n", classExpr, newName, aliases[newName])
	}
}

// ffiLibraries collects the distinct "ffi" annotation values (spec
// §4.1's "lib=..." marker) across every native class, in declaration
// order, so emitInit can load them before anything that might depend on
// them at load time.
func (g *Generator) ffiLibraries(natives []*hir.Class) []string {
	seen := map[string]bool{}
	var libs []string
	for _, c := range natives {
		for _, a := range nativeOf(c).Annotations {
			if a.Name != "ffi" || a.Value == "" || seen[a.Value] {
				continue
			}
			seen[a.Value] = true
			libs = append(libs, a.Value)
		}
	}
	return libs
}

// emitInit emits Init_<module>, the companion file's single entry point,
// following spec §4.7's ordering: load FFI deps, define modules, define
// native classes, define non-native classes topologically, register
// methods/aliases/constants/cvars honoring visibility, then register
// top-level functions as private methods on Object.
func (g *Generator) emitInit(w io.Writer, natives []*hir.Class) error {
	// Every rb_define_* call in Init_ must reference an already-defined C
	// symbol, so ordinary-function wrappers are generated into a
	// separate buffer first and flushed ahead of the Init_ body itself
	// (native method wrappers are already flushed earlier by
	// Generate's own emitMethodWrappers pass).
	var wrappers strings.Builder
	var body strings.Builder

	fmt.Fprintf(&body, "void Init_%s(void) {\n", g.ModuleName)

	for _, lib := range g.ffiLibraries(natives) {
		fmt.Fprintf(&body, "    rb_require(\"%s\");\n", lib)
	}

	for _, m := range g.Prog.Modules {
		mv := moduleVarName(m.Name)
		fmt.Fprintf(&body, "    VALUE %s = rb_define_module(\"%s\");\n", mv, m.Name)
		names := make([]string, 0, len(m.Functions))
		for name := range m.Functions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fn := m.Functions[name]
			wrapper := g.emitFunctionWrapper(&wrappers, fn)
			defineMethod(&body, mv, name, wrapper, -1, fn.Singleton, visibilityFor(m.Visibility, name))
		}
		emitConstsAndCVars(&body, mv, m.Constants, m.ClassVars)
	}

	for _, c := range natives {
		cv := classVarName(c.Name)
		n := nativeOf(c)
		super := g.classHandle(c.Superclass)
		fmt.Fprintf(&body, "    VALUE %s = rb_define_class(\"%s\", %s);\n", cv, c.Name, super)
		tag := cStructName(c.Name)
		fmt.Fprintf(&body, "    rb_define_alloc_func(%s, %s_alloc);\n", cv, tag)
		for _, f := range n.Fields {
			fmt.Fprintf(&body, "    rb_define_method(%s, \"%s\", %s_get_%s, 0);\n", cv, f.Name, tag, f.Name)
			fmt.Fprintf(&body, "    rb_define_method(%s, \"%s=\", %s_set_%s, 1);\n", cv, f.Name, tag, f.Name)
		}
		for _, m := range n.Methods {
			if sym, isCfunc := types.Annotated(m.Annotations, "cfunc"); isCfunc {
				if cname := strings.TrimPrefix(sym.Value, "name="); cname != "" {
					defineMethod(&body, cv, m.Name, cname, len(m.Params), m.Singleton, m.Visibility)
					continue
				}
			}
			defineMethod(&body, cv, m.Name, wrapperFuncName(tag, m.Name), -1, m.Singleton, m.Visibility)
		}
		applyMixins(&body, cv, c.Includes)
		emitConstsAndCVars(&body, cv, c.Constants, c.ClassVars)
		emitAliases(&body, cv, c.Aliases)
	}

	for _, c := range nonNativeClassOrder(g.Prog.Classes) {
		cv := classVarName(c.Name)
		super := g.classHandle(c.Superclass)
		fmt.Fprintf(&body, "    VALUE %s = rb_define_class(\"%s\", %s);\n", cv, c.Name, super)
		applyMixins(&body, cv, c.Includes)
		names := make([]string, 0, len(c.Functions))
		for name := range c.Functions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fn := c.Functions[name]
			wrapper := g.emitFunctionWrapper(&wrappers, fn)
			defineMethod(&body, cv, name, wrapper, -1, fn.Singleton, visibilityFor(c.Visibility, name))
		}
		emitConstsAndCVars(&body, cv, c.Constants, c.ClassVars)
		emitAliases(&body, cv, c.Aliases)
	}

	topNames := make([]string, 0, len(g.Prog.Functions))
	fnByName := map[string]*hir.Function{}
	for _, fn := range g.Prog.Functions {
		fnByName[fn.Name] = fn
		topNames = append(topNames, fn.Name)
	}
	sort.Strings(topNames)
	for _, name := range topNames {
		fn := fnByName[name]
		wrapper := g.emitFunctionWrapper(&wrappers, fn)
		defineMethod(&body, "rb_cObject", name, wrapper, -1, false, types.Private)
	}

	fmt.Fprintf(&body, "}\n")

	io.WriteString(w, wrappers.String())
	io.WriteString(w, body.String())
	return nil
}
