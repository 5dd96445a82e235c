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

// Package infer implements the Hindley-Milner type inferrer (spec §4.3):
// a standard constraint-and-unify procedure over the fresh type
// variables internal/typedast leaves behind at unknown positions.
// Constraints come from assignments, return statements, call-site
// argument passing and call results; branch joins (if/case arms) add no
// constraints. A worklist solver fails only on a provable conflict. It is grounded on the union-find-style pruning already
// present in internal/types (Prune), generalized here into a proper
// binding/occurs-check unifier the way a textbook HM solver would be
// layered on top of a tagged value representation.
package infer

import (
	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/typedast"
	"github.com/i2y/konpeito/internal/types"
)

// Constraint is one equality obligation collected from the program.
type Constraint struct {
	A, B *types.Type
	Pos  diag.Position
	Why  string
}

// Collector walks typed-AST output and the original parse tree to
// gather equality constraints from assignments, returns, call-site
// argument passing and call results; if/case branch joins add none.
type Collector struct {
	info        *typedast.Info
	constraints []Constraint
	// methodStack tracks the result type variable of each enclosing
	// method/lambda body, so a `return` deep inside nested control flow
	// unifies against the right function's result.
	methodStack []*types.Type
}

func NewCollector(info *typedast.Info) *Collector {
	return &Collector{info: info}
}

// Collect walks prog and returns every constraint gathered. It does not
// mutate info; call Solver.Solve afterward to apply the unification.
func (c *Collector) Collect(prog *ast.Program) []Constraint {
	for _, n := range prog.Body {
		c.walk(n)
	}
	return c.constraints
}

func (c *Collector) eq(a, b *types.Type, pos diag.Position, why string) {
	if a == nil || b == nil {
		return
	}
	c.constraints = append(c.constraints, Constraint{A: a, B: b, Pos: pos, Why: why})
}

func (c *Collector) typeOf(n ast.Node) *types.Type { return c.info.TypeOf(n) }

func (c *Collector) walk(n ast.Node) {
	if n == nil {
		return
	}
	switch node := n.(type) {
	case *ast.Program:
		for _, s := range node.Body {
			c.walk(s)
		}
	case *ast.MethodDef:
		key := typedast.MethodKey{Method: node.Name, Singleton: node.Singleton}
		sig := c.info.Methods[key]
		var result *types.Type
		if sig != nil {
			result = sig.Result
		}
		c.methodStack = append(c.methodStack, result)
		for _, s := range node.Body {
			c.walk(s)
		}
		c.methodStack = c.methodStack[:len(c.methodStack)-1]
	case *ast.ClassDef:
		for _, s := range node.Body {
			c.walkMethodInClass(node.Name, s)
		}
	case *ast.ModuleDef:
		for _, s := range node.Body {
			c.walkMethodInClass(node.Name, s)
		}
	case *ast.SingletonClassDef:
		for _, s := range node.Body {
			c.walk(s)
		}
	case *ast.Return:
		if node.Value != nil {
			c.walk(node.Value)
			if len(c.methodStack) > 0 && c.methodStack[len(c.methodStack)-1] != nil {
				c.eq(c.methodStack[len(c.methodStack)-1], c.typeOf(node.Value), pos(node), "return")
			}
		}
	case *ast.Assign:
		c.walk(node.Value)
		c.walk(node.Target)
		c.eq(c.typeOf(node.Target), c.typeOf(node.Value), pos(node), "assignment")
	case *ast.CompoundAssign:
		c.walk(node.Target)
		c.walk(node.Value)
	case *ast.MultiAssign:
		c.walk(node.Value)
		for _, t := range node.Targets {
			c.walk(t)
		}
	case *ast.If:
		c.walk(node.Cond)
		for _, s := range node.Then {
			c.walk(s)
		}
		for _, s := range node.Else {
			c.walk(s)
		}
	case *ast.While:
		c.walk(node.Cond)
		for _, s := range node.Body {
			c.walk(s)
		}
	case *ast.CaseIn:
		c.walk(node.Subject)
		for _, cl := range node.Clauses {
			if cl.Guard != nil {
				c.walk(cl.Guard)
			}
			for _, s := range cl.Body {
				c.walk(s)
			}
		}
		for _, s := range node.Else {
			c.walk(s)
		}
	case *ast.BeginRescue:
		for _, s := range node.Body {
			c.walk(s)
		}
		for _, r := range node.Rescues {
			for _, s := range r.Body {
				c.walk(s)
			}
		}
		for _, s := range node.Else {
			c.walk(s)
		}
		for _, s := range node.Ensure {
			c.walk(s)
		}
	case *ast.Call:
		c.call(node)
	case *ast.Lambda:
		c.methodStack = append(c.methodStack, nil)
		for _, s := range node.Body {
			c.walk(s)
		}
		c.methodStack = c.methodStack[:len(c.methodStack)-1]
	case *ast.ArrayLit:
		for _, e := range node.Elems {
			c.walk(e)
		}
	case *ast.HashLit:
		for i := range node.Keys {
			c.walk(node.Keys[i])
			c.walk(node.Values[i])
		}
	case *ast.RangeLit:
		c.walk(node.Low)
		c.walk(node.High)
	case *ast.Raise:
		if node.Message != nil {
			c.walk(node.Message)
		}
	case *ast.Yield:
		for _, a := range node.Args {
			c.walk(a)
		}
	case *ast.FiberNew:
		for _, s := range node.Body {
			c.walk(s)
		}
	case *ast.FiberYield:
		for _, a := range node.Args {
			c.walk(a)
		}
	case *ast.Break:
		if node.Value != nil {
			c.walk(node.Value)
		}
	case *ast.Next:
		if node.Value != nil {
			c.walk(node.Value)
		}
	default:
		// Literals, identifiers, and const/self references have no
		// children to walk and generate no constraints of their own.
	}
}

func (c *Collector) walkMethodInClass(class string, n ast.Node) {
	md, ok := n.(*ast.MethodDef)
	if !ok {
		c.walk(n)
		return
	}
	key := typedast.MethodKey{Class: class, Method: md.Name, Singleton: md.Singleton}
	sig := c.info.Methods[key]
	var result *types.Type
	if sig != nil {
		result = sig.Result
	}
	c.methodStack = append(c.methodStack, result)
	for _, s := range md.Body {
		c.walk(s)
	}
	c.methodStack = c.methodStack[:len(c.methodStack)-1]
}

// call unifies argument types against a callee's recorded parameter
// type variables when the callee is a method defined in this
// compilation unit (spec §4.3: "argument passing" constraints;
// "numeric literal-driven unification propagates Integer and Float
// across call graphs without signatures").
func (c *Collector) call(node *ast.Call) {
	if node.Receiver != nil {
		c.walk(node.Receiver)
	}
	for _, a := range node.Args {
		c.walk(a)
	}
	for _, kw := range node.KeywordArgs {
		c.walk(kw.Value)
	}
	if node.Block != nil {
		for _, s := range node.Block.Body {
			c.walk(s)
		}
	}

	if !c.info.Untyped[node] {
		return
	}
	class := ""
	if node.Receiver != nil {
		if rt := c.typeOf(node.Receiver); rt != nil {
			class = types.Prune(rt).Name
		}
	}
	sig, ok := c.info.Methods[typedast.MethodKey{Class: class, Method: node.Method, Singleton: false}]
	if !ok {
		return
	}
	for i, a := range node.Args {
		if i >= len(sig.Params) {
			break
		}
		c.eq(sig.Params[i], c.typeOf(a), pos(node), "argument passing")
	}
	c.eq(c.typeOf(node), sig.Result, pos(node), "call result")
}

func pos(n ast.Node) diag.Position {
	p := n.Position()
	return diag.Position{File: p.File, Line: p.Line, Col: p.Col}
}

// Solver applies a worklist unification pass over a constraint set
// (spec §4.3: "a worklist solver that fails only on provable
// conflict").
type Solver struct {
	d *diag.Collector
}

func NewSolver(d *diag.Collector) *Solver { return &Solver{d: d} }

// Solve processes every constraint, binding type variables union-find
// style (internal/types.Prune walks the same Bound chain this solver
// writes). It reports a fatal diagnostic and stops on the first
// provable conflict; otherwise it returns nil having bound every
// resolvable variable.
func (s *Solver) Solve(constraints []Constraint) error {
	work := append([]Constraint(nil), constraints...)
	for len(work) > 0 {
		ct := work[0]
		work = work[1:]
		if err := s.unify(ct.A, ct.B, ct.Pos, ct.Why); err != nil {
			return err
		}
	}
	return nil
}

func (s *Solver) unify(a, b *types.Type, pos diag.Position, why string) error {
	a, b = types.Prune(a), types.Prune(b)
	if a == b {
		return nil
	}
	if a.Kind == types.KindTypeVar {
		return s.bind(a, b, pos, why)
	}
	if b.Kind == types.KindTypeVar {
		return s.bind(b, a, pos, why)
	}
	if a.Kind != b.Kind {
		if isNumeric(a.Kind) && isNumeric(b.Kind) {
			// Integer/Float mismatches are widening, not conflicts (spec
			// §4.1/§4.3); neither side is a variable here so there is
			// nothing left to bind.
			return nil
		}
		return s.conflict(a, b, pos, why)
	}
	switch a.Kind {
	case types.KindClassInstance, types.KindNativeClass:
		if a.Name != b.Name {
			return s.conflict(a, b, pos, why)
		}
		if len(a.TypeArgs) != len(b.TypeArgs) {
			return s.conflict(a, b, pos, why)
		}
		for i := range a.TypeArgs {
			if err := s.unify(a.TypeArgs[i], b.TypeArgs[i], pos, why); err != nil {
				return err
			}
		}
		return nil
	case types.KindFunction:
		if len(a.Params) != len(b.Params) {
			return s.conflict(a, b, pos, why)
		}
		for i := range a.Params {
			if err := s.unify(a.Params[i], b.Params[i], pos, why); err != nil {
				return err
			}
		}
		return s.unify(a.Result, b.Result, pos, why)
	case types.KindUnion:
		// Union/union constraints arise only from branch-join mismatches
		// that already share every member; nothing further to unify.
		return nil
	default:
		return nil
	}
}

func (s *Solver) bind(tv, t *types.Type, pos diag.Position, why string) error {
	t = types.Prune(t)
	if tv == t {
		return nil
	}
	if occurs(tv, t) {
		return s.d.Fatalf(pos, diag.KindType, "type %s occurs within itself while resolving %s", tv.String(), why)
	}
	tv.Bound = t
	return nil
}

func occurs(tv, t *types.Type) bool {
	t = types.Prune(t)
	if t == tv {
		return true
	}
	switch t.Kind {
	case types.KindClassInstance, types.KindNativeClass:
		for _, a := range t.TypeArgs {
			if occurs(tv, a) {
				return true
			}
		}
	case types.KindFunction:
		for _, p := range t.Params {
			if occurs(tv, p) {
				return true
			}
		}
		if t.Result != nil && occurs(tv, t.Result) {
			return true
		}
	case types.KindUnion:
		for _, m := range t.Members {
			if occurs(tv, m) {
				return true
			}
		}
	}
	return false
}

func (s *Solver) conflict(a, b *types.Type, pos diag.Position, why string) error {
	return s.d.Fatalf(pos, diag.KindType, "type conflict during %s: %s vs %s", why, a.String(), b.String())
}

func isNumeric(k types.Kind) bool { return k == types.KindInt || k == types.KindFloat }

// Run is the convenience entry point the driver calls (spec §4.3 runs
// once, after internal/typedast, before internal/hir): collect
// constraints over prog/info, then solve them in place.
func Run(prog *ast.Program, info *typedast.Info, d *diag.Collector) error {
	coll := NewCollector(info)
	constraints := coll.Collect(prog)
	return NewSolver(d).Solve(constraints)
}
