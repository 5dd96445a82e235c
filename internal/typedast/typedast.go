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

// Package typedast implements the typed-AST builder (spec §4.2). It
// follows the same annotate-the-existing-tree discipline as go/types'
// Info.Types map rather than constructing a parallel tree — the
// signature loader (internal/sig) and parser output (internal/ast) are
// walked once, bottom-up, and every node gets an entry in Info.
package typedast

import (
	"fmt"

	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/sig"
	"github.com/i2y/konpeito/internal/types"
)

// Info is the output of the typed-AST builder: per-node types and
// per-call receiver kinds, keyed by pointer identity the way
// go/types.Info keys its maps by ast.Expr identity.
type Info struct {
	Types     map[ast.Node]*types.Type
	Receivers map[*ast.Call]ast.ReceiverKind
	// Untyped marks nodes the builder could not resolve from a
	// declaration or a propagation rule; internal/infer treats these as
	// fresh unification variables.
	Untyped map[ast.Node]bool
	// Methods records the parameter and result type variables assigned
	// to every user-defined method body (keyed by MethodKey), so
	// internal/infer can unify them against call-site argument types
	// across the whole call graph even though this builder only ever
	// sees one method body at a time.
	Methods map[MethodKey]*MethodSig
}

// MethodKey identifies a user-defined method for cross-function
// constraint collection. Class is "" for top-level functions.
type MethodKey struct {
	Class     string
	Method    string
	Singleton bool
}

type MethodSig struct {
	ParamNames []string
	Params     []*types.Type
	Result     *types.Type
}

func newInfo() *Info {
	return &Info{
		Types:     map[ast.Node]*types.Type{},
		Receivers: map[*ast.Call]ast.ReceiverKind{},
		Untyped:   map[ast.Node]bool{},
		Methods:   map[MethodKey]*MethodSig{},
	}
}

// TypeOf returns the resolved type for a node, or nil if never visited.
func (i *Info) TypeOf(n ast.Node) *types.Type { return i.Types[n] }

// scope is one lexical frame: local-variable types, the enclosing
// class/module (for `self` and instance-variable lookup), and whether
// the current method may raise keyword-argument errors.
type scope struct {
	parent *scope
	locals map[string]*types.Type
	self   *types.Type
}

func (s *scope) lookup(name string) (*types.Type, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if t, ok := sc.locals[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (s *scope) define(name string, t *types.Type) { s.locals[name] = t }

func (s *scope) child() *scope {
	return &scope{parent: s, locals: map[string]*types.Type{}, self: s.self}
}

// Builder walks parser output once and produces Info, consulting the
// signature registry for declarations and overload resolution (spec
// §4.2).
type Builder struct {
	reg        *sig.Registry
	d          *diag.Collector
	info       *Info
	ivars      map[string]map[string]*types.Type // class name -> ivar name -> type
	classVars  map[string]map[string]*types.Type
	classStack []string
}

func NewBuilder(reg *sig.Registry, d *diag.Collector) *Builder {
	return &Builder{
		reg:       reg,
		d:         d,
		info:      newInfo(),
		ivars:     map[string]map[string]*types.Type{},
		classVars: map[string]map[string]*types.Type{},
	}
}

// Build annotates prog and returns the accumulated Info. It never
// returns a fatal error itself — unresolved names become untyped
// placeholders per spec §4.2; internal/infer may later refine them, and
// genuinely unsupported constructs are reported as lowering errors by
// internal/hir, not here.
func (b *Builder) Build(prog *ast.Program) *Info {
	top := &scope{locals: map[string]*types.Type{}, self: types.ClassInstance("Object")}
	for _, n := range prog.Body {
		b.stmt(n, top)
	}
	return b.info
}

func (b *Builder) set(n ast.Node, t *types.Type) *types.Type {
	b.info.Types[n] = t
	return t
}

func (b *Builder) untyped(n ast.Node) *types.Type {
	t := types.Fresh()
	b.info.Types[n] = t
	b.info.Untyped[n] = true
	return t
}

func (b *Builder) stmt(n ast.Node, sc *scope) {
	switch node := n.(type) {
	case *ast.MethodDef:
		b.methodDef(node, sc)
	case *ast.ClassDef:
		b.classDef(node, sc)
	case *ast.ModuleDef:
		b.moduleDef(node, sc)
	case *ast.SingletonClassDef:
		for _, s := range node.Body {
			b.stmt(s, sc)
		}
	case *ast.Include, *ast.Alias:
		b.set(n, types.Unit())
	case *ast.ConstAssign:
		v := b.expr(node.Value, sc)
		b.set(n, v)
	case *ast.CVarAssign:
		v := b.expr(node.Value, sc)
		b.recordClassVar(sc, node.Name, v)
		b.set(n, v)
	default:
		b.expr(n, sc)
	}
}

func (b *Builder) recordClassVar(sc *scope, name string, t *types.Type) {
	cls := b.currentClass()
	if b.classVars[cls] == nil {
		b.classVars[cls] = map[string]*types.Type{}
	}
	b.classVars[cls][name] = t
}

func (b *Builder) currentClass() string {
	if len(b.classStack) == 0 {
		return ""
	}
	return b.classStack[len(b.classStack)-1]
}

func (b *Builder) classDef(node *ast.ClassDef, sc *scope) {
	self := types.ClassInstance(node.Name)
	if node.Superclass != "" {
		if super, ok := b.reg.ClassType(node.Superclass); ok {
			self.Superclass = super
		} else {
			self.Superclass = types.ClassInstance(node.Superclass)
		}
	}
	b.classStack = append(b.classStack, node.Name)
	inner := &scope{locals: map[string]*types.Type{}, self: self}
	for _, n := range node.Body {
		b.stmt(n, inner)
	}
	b.classStack = b.classStack[:len(b.classStack)-1]
	b.set(node, self)
}

func (b *Builder) moduleDef(node *ast.ModuleDef, sc *scope) {
	self := types.ClassInstance(node.Name)
	b.classStack = append(b.classStack, node.Name)
	inner := &scope{locals: map[string]*types.Type{}, self: self}
	for _, n := range node.Body {
		b.stmt(n, inner)
	}
	b.classStack = b.classStack[:len(b.classStack)-1]
	b.set(node, self)
}

func (b *Builder) methodDef(node *ast.MethodDef, sc *scope) {
	inner := sc.child()
	paramTypes := make([]*types.Type, len(node.Params))
	paramNames := make([]string, len(node.Params))
	for i, p := range node.Params {
		var pt *types.Type
		if p.Type != "" {
			pt = declaredParamType(p.Type)
		} else if m, ok := b.reg.ResolveOverload(b.currentClass(), node.Name, node.Singleton, nil); ok && len(m.Params) > 0 {
			pt = m.Result // best-effort; precise per-param match happens at call sites
		} else {
			pt = types.Fresh()
		}
		inner.define(p.Name, pt)
		paramTypes[i] = pt
		paramNames[i] = p.Name
	}
	for _, n := range node.Body {
		b.stmt(n, inner)
	}
	var ret *types.Type
	if node.ReturnType != "" {
		ret = declaredParamType(node.ReturnType)
	} else if len(node.Body) > 0 {
		if t, ok := b.info.Types[node.Body[len(node.Body)-1]]; ok {
			ret = t
		}
	}
	if ret == nil {
		ret = types.Fresh()
	}
	b.set(node, ret)
	b.info.Methods[MethodKey{Class: b.currentClass(), Method: node.Name, Singleton: node.Singleton}] = &MethodSig{
		ParamNames: paramNames,
		Params:     paramTypes,
		Result:     ret,
	}
}

func declaredParamType(name string) *types.Type {
	switch name {
	case "Integer", "Int":
		return types.Int()
	case "Float":
		return types.Float()
	case "Bool", "Boolean":
		return types.Bool()
	case "String":
		return types.Str()
	case "Self":
		return types.SelfType()
	case "":
		return types.Object()
	default:
		return types.ClassInstance(name)
	}
}

// expr is the bottom-up propagation switch (spec §4.2): binary
// operators follow well-known overloads, calls resolve against the
// signature registry, self takes the enclosing class/module type, and
// unresolved names fall back to fresh unification variables.
func (b *Builder) expr(n ast.Node, sc *scope) *types.Type {
	switch node := n.(type) {
	case *ast.IntLit:
		return b.set(n, types.Int())
	case *ast.FloatLit:
		return b.set(n, types.Float())
	case *ast.StringLit:
		return b.set(n, types.Str())
	case *ast.SymbolLit:
		return b.set(n, types.Symbol())
	case *ast.BoolLit:
		return b.set(n, types.Bool())
	case *ast.NilLit:
		return b.set(n, types.Nil())
	case *ast.ArrayLit:
		for _, e := range node.Elems {
			b.expr(e, sc)
		}
		return b.set(n, types.Arr())
	case *ast.HashLit:
		for i := range node.Keys {
			b.expr(node.Keys[i], sc)
			b.expr(node.Values[i], sc)
		}
		return b.set(n, types.Hash())
	case *ast.RangeLit:
		b.expr(node.Low, sc)
		b.expr(node.High, sc)
		return b.set(n, types.ClassInstance("Range"))
	case *ast.RegexpLit:
		return b.set(n, types.ClassInstance("Regexp"))
	case *ast.SelfExpr:
		return b.set(n, sc.self)
	case *ast.Ident:
		if t, ok := sc.lookup(node.Name); ok {
			return b.set(n, t)
		}
		return b.untyped(n)
	case *ast.IVarRef:
		if t, ok := b.ivars[b.currentClass()][node.Name]; ok {
			return b.set(n, t)
		}
		return b.untyped(n)
	case *ast.CVarRef:
		if t, ok := b.classVars[b.currentClass()][node.Name]; ok {
			return b.set(n, t)
		}
		return b.untyped(n)
	case *ast.GVarRef:
		return b.untyped(n)
	case *ast.ConstRef:
		if t, ok := b.reg.ClassType(node.Name); ok {
			return b.set(n, t)
		}
		return b.set(n, types.ClassInstance(node.Name))
	case *ast.Assign:
		v := b.expr(node.Value, sc)
		b.bindTarget(node.Target, v, sc)
		return b.set(n, v)
	case *ast.MultiAssign:
		v := b.expr(node.Value, sc)
		for i, t := range node.Targets {
			if i == node.RestIndex {
				b.bindTarget(t, types.Arr(), sc)
			} else {
				b.bindTarget(t, types.Fresh(), sc)
			}
		}
		return b.set(n, v)
	case *ast.CompoundAssign:
		cur := b.expr(node.Target, sc)
		rhs := b.expr(node.Value, sc)
		result := binOpType(node.Op, cur, rhs)
		b.bindTarget(node.Target, result, sc)
		return b.set(n, result)
	case *ast.If:
		b.expr(node.Cond, sc)
		var thenT, elseT *types.Type
		for _, s := range node.Then {
			thenT = b.stmtType(s, sc)
		}
		for _, s := range node.Else {
			elseT = b.stmtType(s, sc)
		}
		if thenT == nil {
			thenT = types.Nil()
		}
		if elseT == nil {
			elseT = types.Nil()
		}
		return b.set(n, types.Union(thenT, elseT))
	case *ast.While:
		b.expr(node.Cond, sc)
		for _, s := range node.Body {
			b.stmt(s, sc)
		}
		return b.set(n, types.Nil())
	case *ast.Break:
		if node.Value != nil {
			b.expr(node.Value, sc)
		}
		return b.set(n, types.Nil())
	case *ast.Next:
		if node.Value != nil {
			b.expr(node.Value, sc)
		}
		return b.set(n, types.Nil())
	case *ast.Return:
		if node.Value != nil {
			return b.set(n, b.expr(node.Value, sc))
		}
		return b.set(n, types.Nil())
	case *ast.Call:
		return b.call(node, sc)
	case *ast.Lambda:
		return b.lambda(node, sc)
	case *ast.CaseIn:
		return b.caseIn(node, sc)
	case *ast.BeginRescue:
		return b.beginRescue(node, sc)
	case *ast.Raise:
		if node.Message != nil {
			b.expr(node.Message, sc)
		}
		return b.set(n, types.Unit())
	case *ast.Yield:
		for _, a := range node.Args {
			b.expr(a, sc)
		}
		return b.untyped(n)
	case *ast.FiberNew:
		for _, s := range node.Body {
			b.stmt(s, sc)
		}
		return b.set(n, types.ClassInstance("Fiber"))
	case *ast.FiberYield:
		for _, a := range node.Args {
			b.expr(a, sc)
		}
		return b.untyped(n)
	default:
		return b.untyped(n)
	}
}

func (b *Builder) stmtType(n ast.Node, sc *scope) *types.Type {
	b.stmt(n, sc)
	return b.info.Types[n]
}

func (b *Builder) bindTarget(target ast.Node, t *types.Type, sc *scope) {
	switch tgt := target.(type) {
	case *ast.Ident:
		sc.define(tgt.Name, t)
		b.set(target, t)
	case *ast.IVarRef:
		cls := b.currentClass()
		if b.ivars[cls] == nil {
			b.ivars[cls] = map[string]*types.Type{}
		}
		b.ivars[cls][tgt.Name] = t
		b.set(target, t)
	case *ast.CVarRef:
		b.recordClassVar(sc, tgt.Name, t)
		b.set(target, t)
	case *ast.GVarRef:
		b.set(target, t)
	default:
		b.expr(target, sc)
	}
}

func (b *Builder) lambda(node *ast.Lambda, sc *scope) *types.Type {
	inner := sc.child()
	params := make([]*types.Type, len(node.Params))
	for i, p := range node.Params {
		pt := types.Fresh()
		if p.Type != "" {
			pt = declaredParamType(p.Type)
		}
		params[i] = pt
		inner.define(p.Name, pt)
	}
	var ret *types.Type
	for _, s := range node.Body {
		ret = b.stmtType(s, inner)
	}
	if ret == nil {
		ret = types.Nil()
	}
	return b.set(node, types.Func(params, ret, true))
}

// call resolves the receiver kind and, when the signature registry
// knows the receiver's class, the overload (spec §4.2, §4.1).
func (b *Builder) call(node *ast.Call, sc *scope) *types.Type {
	var recvType *types.Type
	switch {
	case node.IsSuper:
		node.ReceiverKind = ast.ReceiverSelf
		recvType = sc.self
	case node.Receiver == nil:
		node.ReceiverKind = ast.ReceiverImplicit
		recvType = sc.self
	case isSelfExpr(node.Receiver):
		node.ReceiverKind = ast.ReceiverSelf
		recvType = b.expr(node.Receiver, sc)
	default:
		node.ReceiverKind = ast.ReceiverExplicit
		recvType = b.expr(node.Receiver, sc)
	}
	b.info.Receivers[node] = node.ReceiverKind

	argTypes := make([]*types.Type, 0, len(node.Args))
	for _, a := range node.Args {
		argTypes = append(argTypes, b.expr(a, sc))
	}
	for _, kw := range node.KeywordArgs {
		b.expr(kw.Value, sc)
	}
	if node.Block != nil {
		inner := sc.child()
		for _, p := range node.Block.Params {
			inner.define(p.Name, types.Fresh())
		}
		for _, s := range node.Block.Body {
			b.stmt(s, inner)
		}
	}

	if recvType != nil {
		className := types.Prune(recvType).Name
		if m, ok := b.reg.ResolveOverload(className, node.Method, false, argTypes); ok {
			return b.set(node, resolveSelf(m.Result, recvType))
		}
	}
	if bt := builtinOperatorType(node.Method, recvType, argTypes); bt != nil {
		return b.set(node, bt)
	}
	return b.untyped(node)
}

func resolveSelf(result, self *types.Type) *types.Type {
	if result != nil && types.Prune(result).Kind == types.KindClassInstance && types.Prune(result).Name == "self" {
		return self
	}
	return result
}

func isSelfExpr(n ast.Node) bool {
	_, ok := n.(*ast.SelfExpr)
	return ok
}

// builtinOperatorType implements "binary operator types follow the
// host language's well-known overloads" (spec §4.2) for the primitive
// arithmetic/comparison operators the emitter can specialize (spec
// §4.6).
func builtinOperatorType(op string, recv *types.Type, args []*types.Type) *types.Type {
	if len(args) != 1 || recv == nil {
		return nil
	}
	return binOpType(op, recv, args[0])
}

func binOpType(op string, a, b *types.Type) *types.Type {
	a, b = types.Prune(a), types.Prune(b)
	switch op {
	case "+", "-", "*", "/", "%":
		if a.Kind == types.KindInt && b.Kind == types.KindInt {
			return types.Int()
		}
		if (a.Kind == types.KindInt || a.Kind == types.KindFloat) && (b.Kind == types.KindInt || b.Kind == types.KindFloat) {
			return types.Float()
		}
		if a.Kind == types.KindString && b.Kind == types.KindString && op == "+" {
			return types.Str()
		}
		return nil
	case "==", "!=", "<", ">", "<=", ">=":
		return types.Bool()
	case "||", "&&":
		return types.Union(a, b)
	default:
		return nil
	}
}

// caseIn lowers typing for `case/in`: each clause's bound pattern
// variables are scoped to that clause only (spec §4.4).
func (b *Builder) caseIn(node *ast.CaseIn, sc *scope) *types.Type {
	b.expr(node.Subject, sc)
	var results []*types.Type
	for _, cl := range node.Clauses {
		inner := sc.child()
		b.bindPattern(cl.Pattern, inner)
		if cl.Guard != nil {
			b.expr(cl.Guard, inner)
		}
		var t *types.Type
		for _, s := range cl.Body {
			t = b.stmtType(s, inner)
		}
		if t == nil {
			t = types.Nil()
		}
		results = append(results, t)
	}
	if node.Else != nil {
		inner := sc.child()
		var t *types.Type
		for _, s := range node.Else {
			t = b.stmtType(s, inner)
		}
		if t == nil {
			t = types.Nil()
		}
		results = append(results, t)
	}
	if len(results) == 0 {
		return b.set(node, types.Nil())
	}
	return b.set(node, types.Union(results...))
}

func (b *Builder) bindPattern(p ast.Pattern, sc *scope) {
	switch pat := p.(type) {
	case *ast.TypePattern:
		if pat.Bind != "" {
			sc.define(pat.Bind, declaredParamType(pat.TypeName))
		}
	case *ast.CapturePattern:
		sc.define(pat.Name, types.Fresh())
	case *ast.ArrayPattern:
		for _, sub := range pat.Head {
			b.bindPattern(sub, sc)
		}
		if pat.HasRest && pat.Rest != "" {
			sc.define(pat.Rest, types.Arr())
		}
		for _, sub := range pat.Tail {
			b.bindPattern(sub, sc)
		}
	case *ast.HashPattern:
		for _, e := range pat.Required {
			if e.Pattern != nil {
				b.bindPattern(e.Pattern, sc)
			} else {
				sc.define(e.Key, types.Fresh())
			}
		}
		if pat.HasRest && pat.Rest != "" {
			sc.define(pat.Rest, types.Hash())
		}
	case *ast.AlternationPattern:
		for _, alt := range pat.Alternatives {
			b.bindPattern(alt, sc)
		}
	case *ast.PinPattern, *ast.LiteralPattern, *ast.WildcardPattern:
		// no bindings
	default:
		panic(fmt.Sprintf("typedast: unknown pattern %T", p))
	}
}

func (b *Builder) beginRescue(node *ast.BeginRescue, sc *scope) *types.Type {
	var bodyT *types.Type
	for _, s := range node.Body {
		bodyT = b.stmtType(s, sc)
	}
	results := []*types.Type{}
	if bodyT != nil {
		results = append(results, bodyT)
	}
	for _, r := range node.Rescues {
		inner := sc.child()
		if r.BindName != "" {
			inner.define(r.BindName, types.ClassInstance("StandardError"))
		}
		var t *types.Type
		for _, s := range r.Body {
			t = b.stmtType(s, inner)
		}
		if t != nil {
			results = append(results, t)
		}
	}
	for _, s := range node.Else {
		b.stmt(s, sc)
	}
	for _, s := range node.Ensure {
		b.stmt(s, sc)
	}
	if len(results) == 0 {
		return b.set(node, types.Nil())
	}
	return b.set(node, types.Union(results...))
}
