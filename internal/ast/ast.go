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

// Package ast is the concrete syntax tree shape produced by the source
// language's parser. Spec §1 places the parser itself out of scope
// ("consumed as an external library producing a concrete syntax tree");
// this package is the stand-in node vocabulary the rest of the pipeline
// (internal/typedast, internal/infer, internal/hir) is written against,
// the same way golang.org/x/tools/go/ssa is built against go/ast rather
// than owning its own parser.
package ast

import "fmt"

// Pos is a source position, carried on every node the way scm.SourceInfo
// decorates every token (scm/parser.go).
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col) }

// Node is implemented by every syntax node. The sealed marker method
// keeps the node set closed to this package, which HIR lowering relies
// on for exhaustive type switches.
type Node interface {
	node()
	Position() Pos
}

type base struct{ Pos Pos }

func (base) node()                {}
func (b base) Position() Pos      { return b.Pos }

// Program is a whole parsed source file: top-level statements plus any
// class/module/method definitions found at the top level.
type Program struct {
	base
	Body []Node
}

// Literals

type IntLit struct {
	base
	Value int64
}

type FloatLit struct {
	base
	Value float64
}

type StringLit struct {
	base
	Value string
}

type SymbolLit struct {
	base
	Value string
}

type BoolLit struct {
	base
	Value bool
}

type NilLit struct{ base }

type ArrayLit struct {
	base
	Elems []Node
}

type HashLit struct {
	base
	Keys   []Node
	Values []Node
}

type RangeLit struct {
	base
	Low, High Node
	Exclusive bool
}

type RegexpLit struct {
	base
	Source string
}

// Identifiers and variable references

type Ident struct {
	base
	Name string
}

type IVarRef struct {
	base
	Name string // "@x"
}

type CVarRef struct {
	base
	Name string // "@@x"
}

type GVarRef struct {
	base
	Name string // "$x"
}

type ConstRef struct {
	base
	Name string
}

type SelfExpr struct{ base }

// ReceiverKind distinguishes how a call or variable access names its
// receiver (spec §4.2: "distinguishes receiver kinds (self / explicit /
// implicit) because code generation of safe-navigation and operator
// overloads depends on it").
type ReceiverKind uint8

const (
	ReceiverImplicit ReceiverKind = iota
	ReceiverSelf
	ReceiverExplicit
	ReceiverSafeNav // &.
)

// Call covers ordinary method calls, operator calls, and super calls.
// Super is modeled as Call{IsSuper: true}; HIR lowering turns it into a
// SuperCall instruction (spec §4.4, scenario 4 in spec §8).
type Call struct {
	base
	Receiver     Node // nil for implicit/self
	ReceiverKind ReceiverKind
	Method       string
	Args         []Node
	KeywordArgs  []KeywordArg
	Block        *BlockLit // nil if no block literal is attached
	IsSuper      bool
}

type KeywordArg struct {
	Name  string
	Value Node
}

// BlockLit is a `{ |params| ... }` / `do |params| ... end` block
// attached to a call.
type BlockLit struct {
	base
	Params []Param
	Body   []Node
}

// Lambda is a `->(x) { ... }` or `lambda { ... }` literal; unlike
// BlockLit it carries strict-arity semantics (spec §4.4 "Lambdas carry
// a flag distinguishing strict vs lenient arity").
type Lambda struct {
	base
	Params []Param
	Body   []Node
	Strict bool
}

type Param struct {
	Name    string
	Kind    ParamKind
	Default Node // nil if none
	Type    string // declared type name, "" if absent (signature covers it)
}

type ParamKind uint8

const (
	ParamNormal ParamKind = iota
	ParamKeyword
	ParamRest
	ParamKeywordRest
	ParamBlock
)

// Assign covers plain assignment and instance/class/global variable
// writes uniformly; Target distinguishes which.
type Assign struct {
	base
	Target Node // Ident, IVarRef, CVarRef, GVarRef, or an index/attr Call
	Value  Node
}

// MultiAssign is `a, b, *rest, c = expr` (spec §4.4).
type MultiAssign struct {
	base
	Targets    []Node
	RestIndex  int // index of the *rest target, -1 if none
	Value      Node
}

// CompoundAssign is `x op= e`, including the `||=`/`&&=` special forms
// (spec §4.4).
type CompoundAssign struct {
	base
	Target Node
	Op     string // "+", "-", "||", "&&", ...
	Value  Node
}

// If covers `if`/`unless`/ternary uniformly (Unless negates Cond at
// lowering time).
type If struct {
	base
	Cond   Node
	Then   []Node
	Else   []Node
	Unless bool
}

// While/Until loops.
type While struct {
	base
	Cond   Node
	Body   []Node
	Until  bool
	DoWhile bool // post-condition (begin...end while cond)
}

type Break struct {
	base
	Value Node
}

type Next struct {
	base
	Value Node
}

// CaseIn is `case expr; in pattern [if guard] then body; ...; else body; end`
// (spec §4.4 pattern matching).
type CaseIn struct {
	base
	Subject Node
	Clauses []InClause
	Else    []Node // nil if no else arm -> non-exhaustive raise (spec §8)
}

type InClause struct {
	Pattern Pattern
	Guard   Node // nil if no `if` guard
	Body    []Node
}

// Pattern is the pattern-matching sublanguage (spec §4.4): literal
// equality, type check, array shape, hash shape, pin, capture,
// alternation.
type Pattern interface{ pattern() }

type basePattern struct{}

func (basePattern) pattern() {}

type LiteralPattern struct {
	basePattern
	Value Node // IntLit/FloatLit/StringLit/SymbolLit/BoolLit/NilLit
}

type TypePattern struct {
	basePattern
	TypeName string
	Bind     string // "" if no `=> name` capture
}

type ArrayPattern struct {
	basePattern
	Head []Pattern
	Rest string // rest-variable name, "" if no splat
	HasRest bool
	Tail []Pattern
}

type HashPattern struct {
	basePattern
	Required []HashPatternEntry
	Rest     string
	HasRest  bool
}

type HashPatternEntry struct {
	Key     string
	Pattern Pattern // nil for shorthand `key:` binding
}

type PinPattern struct {
	basePattern
	Expr Node
}

type CapturePattern struct {
	basePattern
	Name string
}

type WildcardPattern struct{ basePattern }

type AlternationPattern struct {
	basePattern
	Alternatives []Pattern
}

// BeginRescue is `begin ... rescue ... else ... ensure ... end` (spec
// §4.4 exception handling).
type BeginRescue struct {
	base
	Body    []Node
	Rescues []RescueClause
	Else    []Node
	Ensure  []Node
}

type RescueClause struct {
	ClassNames []string // exception class names rescued
	BindName   string   // "" if `=> e` omitted
	Body       []Node
}

type Raise struct {
	base
	ClassName string // "" for bare re-raise
	Message   Node
}

// Yield is `yield(args)` inside a method that was invoked with a block.
type Yield struct {
	base
	Args []Node
}

// FiberNew / FiberYield model `Fiber.new { ... }` and `Fiber.yield(v)`
// (spec §4.4 fibers/generators).
type FiberNew struct {
	base
	Body []Node
}

type FiberYield struct {
	base
	Args []Node
}

// Return is an explicit `return expr`.
type Return struct {
	base
	Value Node // nil for bare return
}

// MethodDef is `def name(params) ... end`, possibly inside a class,
// module, or singleton-class body.
type MethodDef struct {
	base
	Name      string
	Params    []Param
	Body      []Node
	Singleton bool // defined inside `class << self`
	Visibility string // "public" | "private" | "protected"
	ReturnType string // declared return type name, "" if inferred
}

// ClassDef is `class Name < Super ... end`. Reopening is not recorded
// on this node: internal/hir's builder sets hir.Class.Reopened when the
// same name was already seen in this compilation unit (spec §4.4
// "Class reopening").
type ClassDef struct {
	base
	Name       string
	Superclass string
	Body       []Node
}

type ModuleDef struct {
	base
	Name string
	Body []Node
}

// SingletonClassDef is `class << self ... end` (spec §4.4).
type SingletonClassDef struct {
	base
	Body []Node
}

type Include struct {
	base
	Kind string // "include" | "extend" | "prepend"
	Name string
}

type Alias struct {
	base
	New, Old string
}

type ConstAssign struct {
	base
	Name  string
	Value Node
}

type CVarAssign struct {
	base
	Name  string
	Value Node
}
