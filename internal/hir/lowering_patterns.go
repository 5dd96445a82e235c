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
	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/types"
)

// caseIn lowers `case subject; in pattern [if guard] then body; ...;
// else body; end` into a sequence of guard tests evaluated left to
// right, each clause's bindings scoped to its own body, joined into a
// single merge block (spec §4.4 "Pattern matching").
func (fb *funcBuilder) caseIn(node *ast.CaseIn) Value {
	subject := fb.expr(node.Subject)
	mergeBlock := fb.fn.NewBlock("case_end")
	var edges []PhiEdge

	for _, cl := range node.Clauses {
		bodyBlock := fb.fn.NewBlock("case_body")
		nextBlock := fb.fn.NewBlock("case_next")

		matched := fb.testPattern(cl.Pattern, subject)
		fb.cur.Term = Branch{Cond: matched, TrueTarget: bodyBlock.Label, FalseTarget: nextBlock.Label}

		fb.cur = bodyBlock
		fb.bindPattern(cl.Pattern, subject)
		if cl.Guard != nil {
			guard := fb.expr(cl.Guard)
			guardBody := fb.fn.NewBlock("case_guard_body")
			fb.cur.Term = Branch{Cond: guard, TrueTarget: guardBody.Label, FalseTarget: nextBlock.Label}
			fb.cur = guardBody
		}
		var v Value = ConstNil{}
		for _, s := range cl.Body {
			v = fb.stmt(s)
		}
		end := fb.cur
		if end.Term == nil {
			end.Term = Jump{Target: mergeBlock.Label}
		}
		edges = append(edges, PhiEdge{Block: end.Label, Value: v})

		fb.cur = nextBlock
	}

	// fb.cur is now the final case_next block: the non-exhaustive path.
	if node.Else != nil {
		var v Value = ConstNil{}
		for _, s := range node.Else {
			v = fb.stmt(s)
		}
		end := fb.cur
		if end.Term == nil {
			end.Term = Jump{Target: mergeBlock.Label}
		}
		edges = append(edges, PhiEdge{Block: end.Label, Value: v})
	} else {
		// Non-exhaustive matches without an else arm raise a dedicated
		// error (spec §4.4).
		fb.cur.Term = Raise{ClassName: "NoMatchingPatternError", Message: ConstString{V: "no pattern matched"}}
	}

	fb.cur = mergeBlock
	result := fb.fn.NewReg(fb.typeOf(node, types.Object()))
	if len(edges) > 0 {
		fb.cur.Append(Phi{base: base{Reg: result}, Edges: edges, Type: result.Type})
	} else {
		fb.cur.Append(LitNil{base: base{Reg: result}})
	}
	return result
}

// testPattern emits the boolean guard sequence for one pattern against
// subject, short-circuiting sub-pattern conjunctions with nested
// blocks when needed (array/hash element recursion).
func (fb *funcBuilder) testPattern(p ast.Pattern, subject Value) Value {
	switch pat := p.(type) {
	case *ast.WildcardPattern:
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(LitBool{base: base{Reg: r}, Value: true})
		return r
	case *ast.CapturePattern:
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(LitBool{base: base{Reg: r}, Value: true})
		return r
	case *ast.LiteralPattern:
		lit := fb.expr(pat.Value)
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(PatternTest{base: base{Reg: r}, Kind: PatternTestLiteral, Subject: subject, Arg: lit})
		return r
	case *ast.PinPattern:
		pinned := fb.expr(pat.Expr)
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(PatternTest{base: base{Reg: r}, Kind: PatternTestPin, Subject: subject, Arg: pinned})
		return r
	case *ast.TypePattern:
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(PatternTest{base: base{Reg: r}, Kind: PatternTestType, Subject: subject, TypeName: pat.TypeName})
		return r
	case *ast.ArrayPattern:
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(PatternTest{
			base: base{Reg: r}, Kind: PatternTestArrayShape, Subject: subject,
			MinLen: len(pat.Head) + len(pat.Tail), HasRest: pat.HasRest,
		})
		return r
	case *ast.HashPattern:
		keys := make([]string, len(pat.Required))
		for i, e := range pat.Required {
			keys[i] = e.Key
		}
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(PatternTest{base: base{Reg: r}, Kind: PatternTestHashShape, Subject: subject, Keys: keys, HasRest: pat.HasRest})
		return r
	case *ast.AlternationPattern:
		// Alternation is a union with leftmost success (spec §4.4): OR the
		// per-alternative tests together via a short-circuiting chain of
		// blocks so later alternatives aren't evaluated once one matches.
		result := fb.fn.NewReg(types.Bool())
		mergeBlock := fb.fn.NewBlock("alt_end")
		var edges []PhiEdge
		for i, alt := range pat.Alternatives {
			test := fb.testPattern(alt, subject)
			edges = append(edges, PhiEdge{Block: fb.cur.Label, Value: test})
			if i == len(pat.Alternatives)-1 {
				fb.cur.Term = Jump{Target: mergeBlock.Label}
				break
			}
			checkBlock := fb.fn.NewBlock("alt_check")
			fb.cur.Term = Branch{Cond: test, TrueTarget: mergeBlock.Label, FalseTarget: checkBlock.Label}
			fb.cur = checkBlock
		}
		fb.cur = mergeBlock
		fb.cur.Append(Phi{base: base{Reg: result}, Edges: edges, Type: types.Bool()})
		return result
	default:
		fb.errf(dummyNode(p), "unsupported pattern %T", p)
		r := fb.fn.NewReg(types.Bool())
		fb.cur.Append(LitBool{base: base{Reg: r}, Value: false})
		return r
	}
}

// bindPattern emits PatternBind instructions for every capture in p
// (spec §4.4 "capture (bind on success)").
func (fb *funcBuilder) bindPattern(p ast.Pattern, subject Value) {
	switch pat := p.(type) {
	case *ast.CapturePattern:
		fb.cur.Append(PatternBind{Subject: subject, Slot: pat.Name})
	case *ast.TypePattern:
		if pat.Bind != "" {
			fb.cur.Append(PatternBind{Subject: subject, Slot: pat.Bind})
		}
	case *ast.ArrayPattern:
		for i, sub := range pat.Head {
			elem := fb.arrayElem(subject, i)
			fb.bindPattern(sub, elem)
		}
		if pat.HasRest && pat.Rest != "" {
			fb.cur.Append(PatternBind{Subject: subject, Slot: pat.Rest})
		}
		for i, sub := range pat.Tail {
			elem := fb.arrayElem(subject, -(i + 1))
			fb.bindPattern(sub, elem)
		}
	case *ast.HashPattern:
		for _, e := range pat.Required {
			key := fb.fn.NewReg(types.Symbol())
			fb.cur.Append(LitSymbol{base: base{Reg: key}, Value: e.Key})
			val := fb.fn.NewReg(types.Object())
			fb.cur.Append(Call{base: base{Reg: val}, Receiver: subject, Method: "[]", Args: []Value{key}})
			if e.Pattern != nil {
				fb.bindPattern(e.Pattern, val)
			} else {
				fb.cur.Append(PatternBind{Subject: val, Slot: e.Key})
			}
		}
		if pat.HasRest && pat.Rest != "" {
			fb.cur.Append(PatternBind{Subject: subject, Slot: pat.Rest})
		}
	case *ast.AlternationPattern:
		// Only the leftmost matching alternative's bindings are live;
		// approximated here by binding the first alternative's pattern
		// (sound for the common case of structurally identical
		// alternatives differing only in a literal).
		if len(pat.Alternatives) > 0 {
			fb.bindPattern(pat.Alternatives[0], subject)
		}
	}
}

func (fb *funcBuilder) arrayElem(subject Value, index int) Value {
	idx := fb.fn.NewReg(types.Int())
	fb.cur.Append(LitInt{base: base{Reg: idx}, Value: int64(index)})
	r := fb.fn.NewReg(types.Object())
	fb.cur.Append(Call{base: base{Reg: r}, Receiver: subject, Method: "[]", Args: []Value{idx}})
	return r
}

// beginRescue lowers `begin/rescue/else/ensure/end` into a protected
// region with a rescue trampoline (spec §4.4 "Exception handling"):
// the protected body runs in its own block; on raise control transfers
// to the rescue trampoline, which tests the raised value's class
// against each clause in order; an unmatched rescue re-raises; ensure
// is emitted once and threaded onto every exit path via EnsureEnter /
// EnsureLeave markers.
//
// Both the normal-completion path and every rescue-match path funnel
// through the single ensureBlock before reaching mergeBlock, so
// ensureBlock — not those paths — is mergeBlock's only predecessor. The
// expression's value can't be a phi keyed on pre-ensure blocks; instead
// it is stored to a local slot right before each jump into ensureBlock
// and loaded back once in mergeBlock.
func (fb *funcBuilder) beginRescue(node *ast.BeginRescue) Value {
	protectedBlock := fb.fn.NewBlock("protected")
	rescueBlock := fb.fn.NewBlock("rescue")
	elseBlock := fb.fn.NewBlock("rescue_else")
	ensureBlock := fb.fn.NewBlock("ensure")
	mergeBlock := fb.fn.NewBlock("begin_end")
	resultSlot := "__begin_result_" + mergeBlock.Label

	fb.cur.Append(BeginRescue{ProtectedBlock: protectedBlock.Label, RescueBlock: rescueBlock.Label})
	fb.cur.Term = Jump{Target: protectedBlock.Label}

	fb.ensures = append(fb.ensures, ensureBlock.Label)
	fb.cur = protectedBlock
	fb.cur.Append(EnsureEnter{EnsureBlock: ensureBlock.Label})
	var bodyV Value = ConstNil{}
	for _, s := range node.Body {
		bodyV = fb.stmt(s)
	}
	protectedEnd := fb.cur
	if protectedEnd.Term == nil {
		protectedEnd.Term = Jump{Target: elseBlock.Label}
	}
	fb.ensures = fb.ensures[:len(fb.ensures)-1]

	fb.cur = elseBlock
	var elseV Value = bodyV
	for _, s := range node.Else {
		elseV = fb.stmt(s)
	}
	elseEnd := fb.cur
	if elseEnd.Term == nil {
		elseEnd.Append(LocalStore{Slot: resultSlot, Value: elseV})
		elseEnd.Term = Jump{Target: ensureBlock.Label}
	}

	fb.cur = rescueBlock
	for _, r := range node.Rescues {
		matchBlock := fb.fn.NewBlock("rescue_match")
		nextClause := fb.fn.NewBlock("rescue_next")
		matched := fb.fn.NewReg(types.Bool())
		raised := fb.fn.NewReg(types.Object())
		fb.cur.Append(LocalLoad{base: base{Reg: raised}, Slot: "__raised"})
		fb.cur.Append(PatternTest{base: base{Reg: matched}, Kind: PatternTestType, Subject: raised, TypeName: joinRescueClasses(r.ClassNames)})
		fb.cur.Term = Branch{Cond: matched, TrueTarget: matchBlock.Label, FalseTarget: nextClause.Label}

		fb.cur = matchBlock
		if r.BindName != "" {
			fb.cur.Append(LocalStore{Slot: r.BindName, Value: raised})
		}
		var rv Value = ConstNil{}
		for _, s := range r.Body {
			rv = fb.stmt(s)
		}
		matchEnd := fb.cur
		if matchEnd.Term == nil {
			matchEnd.Append(LocalStore{Slot: resultSlot, Value: rv})
			matchEnd.Term = Jump{Target: ensureBlock.Label}
		}

		fb.cur = nextClause
	}
	// Unmatched rescue clause: re-raise (spec §4.4 "an unmatched rescue
	// re-raises").
	fb.cur.Append(Reraise{})
	fb.cur.Term = Raise{ClassName: ""}

	fb.cur = ensureBlock
	for _, s := range node.Ensure {
		fb.stmt(s)
	}
	fb.cur.Term = Jump{Target: mergeBlock.Label}

	fb.cur = mergeBlock
	result := fb.fn.NewReg(fb.typeOf(node, types.Object()))
	fb.cur.Append(LocalLoad{base: base{Reg: result}, Slot: resultSlot})
	return result
}

func joinRescueClasses(names []string) string {
	if len(names) == 0 {
		return "StandardError"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "|" + n
	}
	return out
}

// dummyNode recovers a Node for diagnostics when all we have is a
// Pattern (patterns don't carry positions of their own).
func dummyNode(p ast.Pattern) ast.Node {
	switch pat := p.(type) {
	case *ast.PinPattern:
		return pat.Expr
	case *ast.LiteralPattern:
		return pat.Value
	default:
		return &ast.NilLit{}
	}
}
