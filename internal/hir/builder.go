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
	"fmt"

	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/sig"
	"github.com/i2y/konpeito/internal/typedast"
	"github.com/i2y/konpeito/internal/types"
)

// mainFunctionName is the synthetic top-level function every
// non-declaration statement at file scope is gathered into; the
// inliner explicitly excludes it from candidacy (spec §4.5).
const mainFunctionName = "__main__"

// Builder lowers typed-AST output into a hir.Program (spec §4.4). One
// Builder lowers exactly one compilation unit.
type Builder struct {
	reg  *sig.Registry
	info *typedast.Info
	d    *diag.Collector

	prog       *Program
	classes    map[string]*Class
	classOrder []string
	modules    map[string]*Module
}

func NewBuilder(reg *sig.Registry, info *typedast.Info, d *diag.Collector) *Builder {
	return &Builder{
		reg:     reg,
		info:    info,
		d:       d,
		prog:    &Program{},
		classes: map[string]*Class{},
		modules: map[string]*Module{},
	}
}

// Build lowers prog into the returned HIR program.
func (b *Builder) Build(prog *ast.Program) *Program {
	mainFn := NewFunction(mainFunctionName, "")
	mfb := newFuncBuilder(b, mainFn)
	mfb.cur = mainFn.NewBlock("entry")

	for _, n := range prog.Body {
		switch node := n.(type) {
		case *ast.MethodDef:
			b.prog.Functions = append(b.prog.Functions, b.buildMethod("", node))
		case *ast.ClassDef:
			b.buildClass(node)
		case *ast.ModuleDef:
			b.buildModule(node)
		default:
			mfb.stmt(n)
		}
	}
	mfb.cur.Term = Return{Value: ConstNil{}}
	b.prog.Functions = append(b.prog.Functions, mainFn)

	for _, name := range b.classOrder {
		b.prog.Classes = append(b.prog.Classes, b.classes[name])
	}
	for _, m := range b.modules {
		b.prog.Modules = append(b.prog.Modules, m)
	}
	return b.prog
}

func (b *Builder) classFor(name string) *Class {
	if c, ok := b.classes[name]; ok {
		return c
	}
	c := &Class{
		Name:       name,
		Aliases:    map[string]string{},
		Constants:  map[string]Value{},
		ClassVars:  map[string]Value{},
		Visibility: map[string]types.Visibility{},
		Functions:  map[string]*Function{},
	}
	b.classes[name] = c
	b.classOrder = append(b.classOrder, name)
	return c
}

// buildClass lowers a class definition, merging into an existing
// record when the name was already seen in this compilation unit
// (spec §4.4 "Class reopening").
func (b *Builder) buildClass(node *ast.ClassDef) {
	_, seen := b.classes[node.Name]
	c := b.classFor(node.Name)
	if seen {
		c.Reopened = true
	}
	if node.Superclass != "" {
		c.Superclass = node.Superclass
	}
	if nt := b.reg.NativeClassType(node.Name); nt != nil {
		c.Native = nt
	}
	for _, n := range node.Body {
		b.classMember(c, n, false)
	}
}

func (b *Builder) buildModule(node *ast.ModuleDef) {
	m, ok := b.modules[node.Name]
	if !ok {
		m = &Module{
			Name:       node.Name,
			Constants:  map[string]Value{},
			ClassVars:  map[string]Value{},
			Visibility: map[string]types.Visibility{},
			Functions:  map[string]*Function{},
		}
		b.modules[node.Name] = m
	}
	fakeClass := &Class{Name: node.Name, Constants: m.Constants, ClassVars: m.ClassVars, Visibility: m.Visibility, Functions: m.Functions}
	for _, n := range node.Body {
		b.classMember(fakeClass, n, false)
	}
	m.InstanceMethods = fakeClass.InstanceMethods
	m.SingletonMethods = fakeClass.SingletonMethods
}

func (b *Builder) classMember(c *Class, n ast.Node, singleton bool) {
	switch node := n.(type) {
	case *ast.MethodDef:
		fn := b.buildMethod(c.Name, node)
		fn.Singleton = node.Singleton || singleton
		c.Functions[methodMapKey(node.Name, fn.Singleton)] = fn
		if fn.Singleton {
			c.SingletonMethods = append(c.SingletonMethods, node.Name)
		} else {
			c.InstanceMethods = append(c.InstanceMethods, node.Name)
		}
		if node.Visibility != "" {
			c.Visibility[node.Name] = parseVisibility(node.Visibility)
		}
	case *ast.SingletonClassDef:
		// Methods defined inside `class << self` are appended to the
		// enclosing class's singleton-method list (spec §4.4).
		for _, s := range node.Body {
			b.classMember(c, s, true)
		}
	case *ast.Include:
		c.Includes = append(c.Includes, MixinRef{Kind: node.Kind, Name: node.Name})
	case *ast.Alias:
		c.Aliases[node.New] = node.Old
	case *ast.ConstAssign:
		c.Constants[node.Name] = b.constFold(node.Value)
	case *ast.CVarAssign:
		c.ClassVars[node.Name] = b.constFold(node.Value)
	case *ast.ClassDef:
		// nested class definition: lower at top level under its own name.
		b.buildClass(node)
	case *ast.ModuleDef:
		b.buildModule(node)
	}
}

func methodMapKey(name string, singleton bool) string {
	if singleton {
		return "self." + name
	}
	return name
}

func parseVisibility(v string) types.Visibility {
	switch v {
	case "private":
		return types.Private
	case "protected":
		return types.Protected
	default:
		return types.Public
	}
}

// constFold evaluates a class body constant/class-variable initializer
// that is restricted to compile-time literal expressions; anything
// richer is represented as a nil placeholder the driver resolves at
// class-definition time against the host interpreter instead (spec
// §4.7 "class-variable initial values").
func (b *Builder) constFold(n ast.Node) Value {
	switch node := n.(type) {
	case *ast.IntLit:
		return ConstInt{V: node.Value}
	case *ast.FloatLit:
		return ConstFloat{V: node.Value}
	case *ast.StringLit:
		return ConstString{V: node.Value}
	case *ast.SymbolLit:
		return ConstSymbol{V: node.Value}
	case *ast.BoolLit:
		return ConstBool{V: node.Value}
	default:
		return ConstNil{}
	}
}

func (b *Builder) buildMethod(owner string, node *ast.MethodDef) *Function {
	fn := NewFunction(node.Name, owner)
	fb := newFuncBuilder(b, fn)
	fb.cur = fn.NewBlock("entry")

	for _, p := range node.Params {
		kind := ParamKind(p.Kind)
		if kind == ParamRest || kind == ParamKeywordRest {
			fn.Variadic = true
		}
		pt := types.Fresh()
		if sigRec := b.info.Methods[typedast.MethodKey{Class: owner, Method: node.Name, Singleton: node.Singleton}]; sigRec != nil {
			for i, name := range sigRec.ParamNames {
				if name == p.Name {
					pt = sigRec.Params[i]
				}
			}
		}
		fn.Params = append(fn.Params, Param{Name: p.Name, Kind: kind, Type: pt, HasDefault: p.Default != nil})
		fb.slotType[p.Name] = pt
		if kind == ParamKeyword && p.Default == nil {
			fb.emitRequiredKeywordCheck(p.Name)
		} else if p.Default != nil {
			fb.emitDefaultedParam(p.Name, p.Default)
		}
	}

	var last Value = ConstNil{}
	for _, s := range node.Body {
		last = fb.stmt(s)
	}
	if fb.cur.Term == nil {
		fb.cur.Term = Return{Value: last}
	}
	if sigRec := b.info.Methods[typedast.MethodKey{Class: owner, Method: node.Name, Singleton: node.Singleton}]; sigRec != nil {
		fn.ResultType = sigRec.Result
	}
	return fn
}

// emitRequiredKeywordCheck lowers "required keywords generate an
// explicit missing-keyword branch testing for an undefined sentinel
// and raising an argument error" (spec §4.4).
func (fb *funcBuilder) emitRequiredKeywordCheck(name string) {
	test := fb.fn.NewReg(types.Bool())
	fb.cur.Append(LocalLoad{base: base{Reg: test}, Slot: "__missing_kw_" + name})
	okBlock := fb.fn.NewBlock("kw_ok")
	missBlock := fb.fn.NewBlock("kw_missing")
	fb.cur.Term = Branch{Cond: test, TrueTarget: missBlock.Label, FalseTarget: okBlock.Label}
	missBlock.Term = Raise{ClassName: "ArgumentError", Message: ConstString{V: "missing keyword: " + name}}
	fb.cur = okBlock
}

// emitDefaultedParam lowers an optional parameter falling back to its
// default expression (spec §4.4 "optional keywords fall back to their
// default expression").
func (fb *funcBuilder) emitDefaultedParam(name string, def ast.Node) {
	test := fb.fn.NewReg(types.Bool())
	fb.cur.Append(LocalLoad{base: base{Reg: test}, Slot: "__missing_kw_" + name})
	defBlock := fb.fn.NewBlock("kw_default")
	contBlock := fb.fn.NewBlock("kw_cont")
	fb.cur.Term = Branch{Cond: test, TrueTarget: defBlock.Label, FalseTarget: contBlock.Label}

	fb.cur = defBlock
	v := fb.expr(def)
	fb.cur.Append(LocalStore{Slot: name, Value: v})
	defBlock.Term = Jump{Target: contBlock.Label}

	fb.cur = contBlock
}

// funcBuilder lowers one function/method/lambda body. Its loop and
// rescue stacks implement break/next targeting and ensure-threading
// (spec §4.4).
type funcBuilder struct {
	b        *Builder
	fn       *Function
	cur      *BasicBlock
	slotType map[string]*types.Type
	loops    []loopCtx
	ensures  []string // enclosing ensure-block labels, innermost last
}

type loopCtx struct {
	continueTarget string
	breakTarget    string
}

func newFuncBuilder(b *Builder, fn *Function) *funcBuilder {
	return &funcBuilder{b: b, fn: fn, slotType: map[string]*types.Type{}}
}

func (fb *funcBuilder) errf(n ast.Node, format string, args ...any) {
	p := n.Position()
	fb.b.d.Fatalf(diag.Position{File: p.File, Line: p.Line, Col: p.Col}, diag.KindLowering, format, args...)
}

// stmt lowers a statement, returning the value it produces (every
// source-language construct is an expression, spec §1 scope implies
// the host language's expression-oriented statement grammar).
func (fb *funcBuilder) stmt(n ast.Node) Value {
	switch node := n.(type) {
	case *ast.MethodDef, *ast.ClassDef, *ast.ModuleDef, *ast.SingletonClassDef,
		*ast.Include, *ast.Alias, *ast.ConstAssign, *ast.CVarAssign:
		// Nested declarations inside a method body are not part of this
		// lowering's scope (spec §4.4 covers class/module bodies, not
		// statements nested inside a method); ignore defensively.
		return ConstNil{}
	default:
		return fb.expr(n)
	}
}

func (fb *funcBuilder) expr(n ast.Node) Value {
	switch node := n.(type) {
	case *ast.IntLit:
		r := fb.fn.NewReg(types.Int())
		fb.cur.Append(LitInt{base: base{Reg: r}, Value: node.Value})
		return r
	case *ast.FloatLit:
		r := fb.fn.NewReg(types.Float())
		fb.cur.Append(LitFloat{base: base{Reg: r}, Value: node.Value})
		return r
	case *ast.StringLit:
		r := fb.fn.NewReg(types.Str())
		fb.cur.Append(LitString{base: base{Reg: r}, Value: node.Value})
		return r
	case *ast.SymbolLit:
		r := fb.fn.NewReg(types.Symbol())
		fb.cur.Append(LitSymbol{base: base{Reg: r}, Value: node.Value})
		return r
	case *ast.BoolLit:
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(LitBool{base: base{Reg: r}, Value: node.Value})
		return r
	case *ast.NilLit:
		r := fb.fn.NewReg(types.Nil())
		fb.cur.Append(LitNil{base: base{Reg: r}})
		return r
	case *ast.ArrayLit:
		elems := make([]Value, len(node.Elems))
		for i, e := range node.Elems {
			elems[i] = fb.expr(e)
		}
		r := fb.fn.NewReg(types.Arr())
		fb.cur.Append(ArrayLit{base: base{Reg: r}, Elems: elems})
		return r
	case *ast.HashLit:
		keys := make([]Value, len(node.Keys))
		vals := make([]Value, len(node.Values))
		for i := range node.Keys {
			keys[i] = fb.expr(node.Keys[i])
			vals[i] = fb.expr(node.Values[i])
		}
		r := fb.fn.NewReg(types.Hash())
		fb.cur.Append(HashLit{base: base{Reg: r}, Keys: keys, Values: vals})
		return r
	case *ast.RangeLit:
		low := fb.expr(node.Low)
		high := fb.expr(node.High)
		r := fb.fn.NewReg(types.ClassInstance("Range"))
		fb.cur.Append(RangeLit{base: base{Reg: r}, Low: low, High: high, Exclusive: node.Exclusive})
		return r
	case *ast.RegexpLit:
		r := fb.fn.NewReg(types.ClassInstance("Regexp"))
		fb.cur.Append(RegexpLit{base: base{Reg: r}, Source: node.Source})
		return r
	case *ast.SelfExpr:
		r := fb.fn.NewReg(types.Object())
		fb.cur.Append(LocalLoad{base: base{Reg: r}, Slot: "self"})
		return r
	case *ast.Ident:
		t := fb.typeOf(n, types.Object())
		r := fb.fn.NewReg(t)
		fb.cur.Append(LocalLoad{base: base{Reg: r}, Slot: node.Name})
		return r
	case *ast.IVarRef:
		self := fb.loadSelf()
		t := fb.typeOf(n, types.Object())
		r := fb.fn.NewReg(t)
		fb.cur.Append(IVarLoad{base: base{Reg: r}, Self: self, Name: node.Name})
		return r
	case *ast.CVarRef:
		t := fb.typeOf(n, types.Object())
		r := fb.fn.NewReg(t)
		fb.cur.Append(CVarLoad{base: base{Reg: r}, Name: node.Name})
		return r
	case *ast.GVarRef:
		r := fb.fn.NewReg(types.Object())
		fb.cur.Append(GlobalLoad{base: base{Reg: r}, Name: node.Name})
		return r
	case *ast.ConstRef:
		r := fb.fn.NewReg(types.ClassInstance(node.Name))
		fb.cur.Append(GlobalLoad{base: base{Reg: r}, Name: node.Name})
		return r
	case *ast.Assign:
		v := fb.expr(node.Value)
		fb.assignTo(node.Target, v)
		return v
	case *ast.MultiAssign:
		return fb.multiAssign(node)
	case *ast.CompoundAssign:
		return fb.compoundAssign(node)
	case *ast.If:
		return fb.ifExpr(node)
	case *ast.While:
		return fb.whileExpr(node)
	case *ast.Break:
		return fb.breakStmt(node)
	case *ast.Next:
		return fb.nextStmt(node)
	case *ast.Return:
		return fb.returnStmt(node)
	case *ast.Call:
		return fb.call(node)
	case *ast.Lambda:
		return fb.procNew(node.Params, node.Body, true)
	case *ast.CaseIn:
		return fb.caseIn(node)
	case *ast.BeginRescue:
		return fb.beginRescue(node)
	case *ast.Raise:
		return fb.raiseStmt(node)
	case *ast.Yield:
		return fb.yieldExpr(node)
	case *ast.FiberNew:
		return fb.fiberNew(node)
	case *ast.FiberYield:
		return fb.fiberYield(node)
	default:
		fb.errf(n, "unsupported construct %T", n)
		return ConstNil{}
	}
}

func (fb *funcBuilder) typeOf(n ast.Node, fallback *types.Type) *types.Type {
	if t := fb.b.info.TypeOf(n); t != nil {
		return t
	}
	return fallback
}

func (fb *funcBuilder) loadSelf() Value {
	r := fb.fn.NewReg(types.Object())
	fb.cur.Append(LocalLoad{base: base{Reg: r}, Slot: "self"})
	return r
}

func (fb *funcBuilder) assignTo(target ast.Node, v Value) {
	switch t := target.(type) {
	case *ast.Ident:
		fb.cur.Append(LocalStore{Slot: t.Name, Value: v})
	case *ast.IVarRef:
		self := fb.loadSelf()
		fb.cur.Append(IVarStore{Self: self, Name: t.Name, Value: v})
	case *ast.CVarRef:
		fb.cur.Append(CVarStore{Name: t.Name, Value: v})
	case *ast.GVarRef:
		fb.cur.Append(GlobalStore{Name: t.Name, Value: v})
	case *ast.Call:
		// `recv.attr = v` / `recv[i] = v` desugars to a setter call.
		recv := fb.expr(t.Receiver)
		fb.cur.Append(Call{Receiver: recv, Method: t.Method + "=", Args: append([]Value{}, v)})
	default:
		fb.errf(target, "unsupported assignment target %T", target)
	}
}

// litInt emits a fresh integer literal register, a one-off used wherever
// an instruction needs a constant operand rather than a named temporary.
func (fb *funcBuilder) litInt(n int64) Value {
	r := fb.fn.NewReg(types.Int())
	fb.cur.Append(LitInt{base: base{Reg: r}, Value: n})
	return r
}

// multiAssign lowers `a, b, *rest, c = expr` by evaluating expr once,
// querying its actual length, and assigning by index with a rest-slice
// where present (spec §4.4). Targets after the rest-splat are indexed
// from the value's real runtime length rather than their literal
// position, so they land on the true trailing elements regardless of
// how long the right-hand array turns out to be.
func (fb *funcBuilder) multiAssign(node *ast.MultiAssign) Value {
	v := fb.expr(node.Value)
	n := len(node.Targets)

	var length Value
	if node.RestIndex >= 0 {
		lr := fb.fn.NewReg(types.Int())
		fb.cur.Append(Call{base: base{Reg: lr}, Receiver: v, Method: "length"})
		length = lr
	}

	for i, target := range node.Targets {
		var elem Value
		switch {
		case node.RestIndex >= 0 && i == node.RestIndex:
			lo := fb.litInt(int64(node.RestIndex))
			trailingCount := n - node.RestIndex - 1
			hi := fb.fn.NewReg(types.Int())
			fb.cur.Append(Call{base: base{Reg: hi}, Receiver: length, Method: "-", Args: []Value{fb.litInt(int64(trailingCount))}})
			r := fb.fn.NewReg(types.Arr())
			fb.cur.Append(Call{base: base{Reg: r}, Receiver: v, Method: "[]", Args: []Value{lo, hi}})
			elem = r
		case node.RestIndex >= 0 && i > node.RestIndex:
			offsetFromEnd := n - i
			idx := fb.fn.NewReg(types.Int())
			fb.cur.Append(Call{base: base{Reg: idx}, Receiver: length, Method: "-", Args: []Value{fb.litInt(int64(offsetFromEnd))}})
			r := fb.fn.NewReg(types.Object())
			fb.cur.Append(Call{base: base{Reg: r}, Receiver: v, Method: "[]", Args: []Value{idx}})
			elem = r
		default:
			idx := fb.litInt(int64(i))
			r := fb.fn.NewReg(types.Object())
			fb.cur.Append(Call{base: base{Reg: r}, Receiver: v, Method: "[]", Args: []Value{idx}})
			elem = r
		}
		fb.assignTo(target, elem)
	}
	return v
}

// compoundAssign lowers `x op= e`: a read, a call to op, a write, with
// `||=`/`&&=` as conditional writes (spec §4.4).
func (fb *funcBuilder) compoundAssign(node *ast.CompoundAssign) Value {
	cur := fb.expr(node.Target)
	if node.Op == "||" || node.Op == "&&" {
		origBlock := fb.cur
		truthy := fb.fn.NewReg(types.Bool())
		fb.cur.Append(Call{base: base{Reg: truthy}, Receiver: cur, Method: "truthy?"})
		assignBlock := fb.fn.NewBlock("condassign")
		contBlock := fb.fn.NewBlock("condassign_cont")
		if node.Op == "||" {
			origBlock.Term = Branch{Cond: truthy, TrueTarget: contBlock.Label, FalseTarget: assignBlock.Label}
		} else {
			origBlock.Term = Branch{Cond: truthy, TrueTarget: assignBlock.Label, FalseTarget: contBlock.Label}
		}
		fb.cur = assignBlock
		v := fb.expr(node.Value)
		fb.assignTo(node.Target, v)
		assignBlock.Term = Jump{Target: contBlock.Label}
		fb.cur = contBlock
		result := fb.fn.NewReg(fb.typeOf(node, types.Object()))
		fb.cur.Append(Phi{base: base{Reg: result}, Edges: []PhiEdge{{Block: assignBlock.Label, Value: v}, {Block: origBlock.Label, Value: cur}}})
		return result
	}
	rhs := fb.expr(node.Value)
	result := fb.fn.NewReg(fb.typeOf(node, types.Object()))
	fb.cur.Append(Call{base: base{Reg: result}, Receiver: cur, Method: node.Op, Args: []Value{rhs}})
	fb.assignTo(node.Target, result)
	return result
}

// ifExpr lowers `if`/`unless` into condition/then/else/merge blocks
// with a phi joining the result (spec §4.6 "Control flow").
func (fb *funcBuilder) ifExpr(node *ast.If) Value {
	cond := fb.expr(node.Cond)
	thenBlock := fb.fn.NewBlock("then")
	elseBlock := fb.fn.NewBlock("else")
	mergeBlock := fb.fn.NewBlock("endif")

	if node.Unless {
		fb.cur.Term = Branch{Cond: cond, TrueTarget: elseBlock.Label, FalseTarget: thenBlock.Label}
	} else {
		fb.cur.Term = Branch{Cond: cond, TrueTarget: thenBlock.Label, FalseTarget: elseBlock.Label}
	}

	fb.cur = thenBlock
	var thenV Value = ConstNil{}
	for _, s := range node.Then {
		thenV = fb.stmt(s)
	}
	thenEnd := fb.cur
	if thenEnd.Term == nil {
		thenEnd.Term = Jump{Target: mergeBlock.Label}
	}

	fb.cur = elseBlock
	var elseV Value = ConstNil{}
	for _, s := range node.Else {
		elseV = fb.stmt(s)
	}
	elseEnd := fb.cur
	if elseEnd.Term == nil {
		elseEnd.Term = Jump{Target: mergeBlock.Label}
	}

	fb.cur = mergeBlock
	result := fb.fn.NewReg(fb.typeOf(node, types.Object()))
	fb.cur.Append(Phi{base: base{Reg: result}, Edges: []PhiEdge{
		{Block: thenEnd.Label, Value: thenV},
		{Block: elseEnd.Label, Value: elseV},
	}})
	return result
}

// whileExpr lowers `while`/`until` into condition/body/exit blocks
// (spec §4.6: "loops use condition/body/exit blocks with a preheader
// for hoists"). No separate preheader block is emitted: the optimizer's
// loop-invariant hoister uses the block that jumps into the condition
// block as the preheader.
func (fb *funcBuilder) whileExpr(node *ast.While) Value {
	condBlock := fb.fn.NewBlock("whilecond")
	bodyBlock := fb.fn.NewBlock("whilebody")
	exitBlock := fb.fn.NewBlock("whileexit")

	if node.DoWhile {
		fb.cur.Term = Jump{Target: bodyBlock.Label}
	} else {
		fb.cur.Term = Jump{Target: condBlock.Label}
	}

	fb.cur = condBlock
	cond := fb.expr(node.Cond)
	if node.Until {
		fb.cur.Term = Branch{Cond: cond, TrueTarget: exitBlock.Label, FalseTarget: bodyBlock.Label}
	} else {
		fb.cur.Term = Branch{Cond: cond, TrueTarget: bodyBlock.Label, FalseTarget: exitBlock.Label}
	}

	fb.loops = append(fb.loops, loopCtx{continueTarget: condBlock.Label, breakTarget: exitBlock.Label})
	fb.cur = bodyBlock
	for _, s := range node.Body {
		fb.stmt(s)
	}
	if fb.cur.Term == nil {
		fb.cur.Term = Jump{Target: condBlock.Label}
	}
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.cur = exitBlock
	r := fb.fn.NewReg(types.Nil())
	fb.cur.Append(LitNil{base: base{Reg: r}})
	return r
}

func (fb *funcBuilder) breakStmt(node *ast.Break) Value {
	if len(fb.loops) == 0 {
		fb.errf(node, "break outside loop")
		return ConstNil{}
	}
	target := fb.loops[len(fb.loops)-1].breakTarget
	if node.Value != nil {
		fb.expr(node.Value)
	}
	fb.cur.Term = Jump{Target: target}
	return ConstNil{}
}

func (fb *funcBuilder) nextStmt(node *ast.Next) Value {
	if len(fb.loops) == 0 {
		fb.errf(node, "next outside loop")
		return ConstNil{}
	}
	target := fb.loops[len(fb.loops)-1].continueTarget
	if node.Value != nil {
		fb.expr(node.Value)
	}
	fb.cur.Term = Jump{Target: target}
	return ConstNil{}
}

func (fb *funcBuilder) returnStmt(node *ast.Return) Value {
	var v Value = ConstNil{}
	if node.Value != nil {
		v = fb.expr(node.Value)
	}
	fb.threadEnsures()
	fb.cur.Term = Return{Value: v}
	return v
}

// threadEnsures emits an EnsureLeave marker for every ensure region the
// current point is nested inside, so the optimizer/emitter can jump
// through each ensure body exactly once on this exit path (spec §4.4
// "ensure is threaded into every exit path ... exactly once").
func (fb *funcBuilder) threadEnsures() {
	for i := len(fb.ensures) - 1; i >= 0; i-- {
		fb.cur.Append(EnsureLeave{})
	}
}

// call lowers a method call, dispatching to NativeCall for
// signature-registered `cfunc`/native-class receivers and to SuperCall
// for `super` (spec §3, §4.6).
func (fb *funcBuilder) call(node *ast.Call) Value {
	var recv Value
	if node.Receiver != nil {
		recv = fb.expr(node.Receiver)
	} else {
		recv = fb.loadSelf()
	}

	args := make([]Value, len(node.Args))
	for i, a := range node.Args {
		args[i] = fb.expr(a)
	}
	var kwargs []KeywordArg
	for _, kw := range node.KeywordArgs {
		kwargs = append(kwargs, KeywordArg{Name: kw.Name, Value: fb.expr(kw.Value)})
	}
	var block Value
	if node.Block != nil {
		block = fb.procNew(node.Block.Params, node.Block.Body, false)
	}

	resultType := fb.typeOf(node, types.Object())
	r := fb.fn.NewReg(resultType)

	if node.IsSuper {
		fb.cur.Append(SuperCall{base: base{Reg: r}, Self: recv, Args: args})
		return r
	}

	if node.Receiver != nil {
		if rt := fb.b.info.TypeOf(node.Receiver); rt != nil {
			className := types.Prune(rt).Name
			if fb.b.reg.CFuncMethod(className, node.Method, false) || fb.b.reg.NativeClass(className) {
				fb.cur.Append(NativeCall{base: base{Reg: r}, Receiver: recv, Class: className, Method: node.Method, Args: args})
				return r
			}
		}
	}

	fb.cur.Append(Call{base: base{Reg: r}, Receiver: recv, Method: node.Method, Args: args, KeywordArgs: kwargs, Block: block, SafeNav: node.ReceiverKind == ast.ReceiverSafeNav})
	return r
}

// procNew lowers a block/lambda literal into a captured closure value
// plus a separately-built callback function (spec §4.4 "Blocks and
// closures"; spec §4.6 "Closures").
func (fb *funcBuilder) procNew(params []ast.Param, body []ast.Node, lambda bool) Value {
	bodyFn := NewFunction(fmt.Sprintf("%s$block%d", fb.fn.Name, len(fb.b.prog.Functions)), fb.fn.Owner)
	bodyFn.IsLambda = lambda
	bfb := newFuncBuilder(fb.b, bodyFn)
	bfb.cur = bodyFn.NewBlock("entry")
	for _, p := range params {
		bodyFn.Params = append(bodyFn.Params, Param{Name: p.Name, Kind: ParamKind(p.Kind), Type: types.Fresh()})
	}
	var last Value = ConstNil{}
	for _, s := range body {
		last = bfb.stmt(s)
	}
	if bfb.cur.Term == nil {
		bfb.cur.Term = Return{Value: last}
	}
	fb.b.prog.Functions = append(fb.b.prog.Functions, bodyFn)

	captures := capturedLocals(fb.slotType, body)
	r := fb.fn.NewReg(types.Func(nil, types.Object(), false))
	fb.cur.Append(ProcNew{base: base{Reg: r}, BodyFunc: bodyFn.Name, Captures: captures, Lambda: lambda})
	return r
}

// capturedLocals reports which of the enclosing function's known
// locals the block body references, approximating "a snapshot of the
// surrounding local frame" (spec §4.4) without a full free-variable
// dataflow pass.
func capturedLocals(known map[string]*types.Type, body []ast.Node) []string {
	used := map[string]bool{}
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n == nil {
			return
		}
		if id, ok := n.(*ast.Ident); ok {
			if _, isKnown := known[id.Name]; isKnown {
				used[id.Name] = true
			}
		}
	}
	for _, s := range body {
		ast.Walk(s, walk)
	}
	out := make([]string, 0, len(used))
	for name := range used {
		out = append(out, name)
	}
	return out
}

// yieldExpr lowers `yield(args)` (spec §3 "yield").
func (fb *funcBuilder) yieldExpr(node *ast.Yield) Value {
	args := make([]Value, len(node.Args))
	for i, a := range node.Args {
		args[i] = fb.expr(a)
	}
	r := fb.fn.NewReg(fb.typeOf(node, types.Object()))
	fb.cur.Append(Yield{base: base{Reg: r}, Args: args})
	return r
}

// fiberNew / fiberYield implement the fiber contract: "the fiber body
// is a host-interpreter-provided coroutine; the compiler emits the
// callback and preserves assign-result-of-yield by allocating a slot
// for yield's return value" (spec §4.4).
func (fb *funcBuilder) fiberNew(node *ast.FiberNew) Value {
	bodyFn := NewFunction(fmt.Sprintf("%s$fiber%d", fb.fn.Name, len(fb.b.prog.Functions)), fb.fn.Owner)
	bfb := newFuncBuilder(fb.b, bodyFn)
	bfb.cur = bodyFn.NewBlock("entry")
	var last Value = ConstNil{}
	for _, s := range node.Body {
		last = bfb.stmt(s)
	}
	if bfb.cur.Term == nil {
		bfb.cur.Term = Return{Value: last}
	}
	fb.b.prog.Functions = append(fb.b.prog.Functions, bodyFn)
	captures := capturedLocals(fb.slotType, node.Body)
	r := fb.fn.NewReg(types.ClassInstance("Fiber"))
	fb.cur.Append(FiberNew{base: base{Reg: r}, BodyFunc: bodyFn.Name, Captures: captures})
	return r
}

func (fb *funcBuilder) fiberYield(node *ast.FiberYield) Value {
	args := make([]Value, len(node.Args))
	for i, a := range node.Args {
		args[i] = fb.expr(a)
	}
	// yield's return value (what the resumer passes to the next Resume)
	// needs a stable slot, per the fiber contract above.
	r := fb.fn.NewReg(fb.typeOf(node, types.Object()))
	fb.cur.Append(FiberYield{base: base{Reg: r}, Args: args})
	fb.cur.Append(LocalStore{Slot: "__fiber_yield_result", Value: r})
	return r
}

func (fb *funcBuilder) raiseStmt(node *ast.Raise) Value {
	var msg Value = ConstNil{}
	if node.Message != nil {
		msg = fb.expr(node.Message)
	}
	fb.threadEnsures()
	fb.cur.Term = Raise{ClassName: node.ClassName, Message: msg}
	// raise never falls through; start a fresh unreachable block so
	// callers of expr/stmt can keep appending without nil-Term panics.
	fb.cur = fb.fn.NewBlock("unreachable")
	return ConstNil{}
}
