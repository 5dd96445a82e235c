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

import "github.com/i2y/konpeito/internal/types"

// Instruction is any non-terminating HIR operation (spec §3's
// instruction list). Every instruction that produces a value exposes
// it via Result(); instructions with no result (stores, ensure
// markers) return the zero Reg.
type Instruction interface {
	instr()
	Result() Reg
}

type base struct{ Reg Reg }

func (base) instr()        {}
func (b base) Result() Reg { return b.Reg }

// Literals

type LitInt struct {
	base
	Value int64
}

type LitFloat struct {
	base
	Value float64
}

type LitString struct {
	base
	Value string
}

type LitSymbol struct {
	base
	Value string
}

type LitBool struct {
	base
	Value bool
}

type LitNil struct{ base }

// Local/global/class/instance variable access.

type LocalLoad struct {
	base
	Slot string
}

type LocalStore struct {
	base
	Slot  string
	Value Value
}

type GlobalLoad struct {
	base
	Name string
}

type GlobalStore struct {
	base
	Name  string
	Value Value
}

type CVarLoad struct {
	base
	Name string
}

type CVarStore struct {
	base
	Name  string
	Value Value
}

type IVarLoad struct {
	base
	Self Value
	Name string
}

type IVarStore struct {
	base
	Self  Value
	Name  string
	Value Value
}

// Composite literals.

type ArrayLit struct {
	base
	Elems []Value
}

type HashLit struct {
	base
	Keys   []Value
	Values []Value
}

type RangeLit struct {
	base
	Low, High Value
	Exclusive bool
}

type RegexpLit struct {
	base
	Source string
}

// Calls.

// Call is an ordinary dynamic method call (spec §4.6: "a
// funcall-equivalent variadic helper with an interned method id").
type Call struct {
	base
	Receiver    Value
	Method      string
	Args        []Value
	KeywordArgs []KeywordArg
	Block       Value // proc-new result or nil
	SafeNav     bool
}

type KeywordArg struct {
	Name  string
	Value Value
}

// SuperCall dispatches to the method of the same name on the
// receiver's superclass (spec §4.2 "IsSuper").
type SuperCall struct {
	base
	Self Value
	Args []Value
}

// NativeCall is a direct, struct-aware dispatch to a `cfunc`-annotated
// or native-class method — no dynamic lookup, no argument-conversion
// wrapper (spec §3 "native-method-call").
type NativeCall struct {
	base
	Receiver Value
	Class    string
	Method   string
	Args     []Value
}

// ProcNew creates a closure value capturing a snapshot of the
// surrounding local frame; BodyFunc names the separately-emitted
// callback function (spec §4.4 "Blocks and closures").
type ProcNew struct {
	base
	BodyFunc string
	Captures []string // captured local-slot names
	Lambda   bool
}

// Yield invokes the block passed to the enclosing function.
type Yield struct {
	base
	Args []Value
}

// FiberNew / FiberYield / FiberResume model coroutine control (spec
// §4.4 "Fibers / generators").
type FiberNew struct {
	base
	BodyFunc string
	Captures []string
}

type FiberYield struct {
	base
	Args []Value
}

type FiberResume struct {
	base
	Fiber Value
	Args  []Value
}

// Pattern matching primitives (spec §4.4): each `case/in` clause
// lowers to a sequence of PatternTest (guard, branches on failure) and
// PatternBind (binds on success) instructions.
type PatternTestKind uint8

const (
	PatternTestLiteral PatternTestKind = iota
	PatternTestType
	PatternTestArrayShape
	PatternTestHashShape
	PatternTestPin
)

type PatternTest struct {
	base // Result is a Bool register
	Kind PatternTestKind
	Subject Value
	// Literal/Pin comparison value. PatternTestType carries its class
	// name in TypeName and PatternTestArrayShape its minimum length in
	// MinLen instead.
	Arg     Value
	TypeName string
	MinLen   int
	HasRest  bool
	Keys     []string
}

type PatternBind struct {
	base
	Subject Value
	Slot    string
}

// Exception handling (spec §4.4 "Exception handling" / §4.6 "Exception
// regions"). BeginRescue marks entry into a protected region whose
// rescue trampoline is a separately-built set of blocks referenced by
// label; EnsureEnter/EnsureLeave bracket the ensure-threading described
// in spec §4.4 ("ensure is threaded into every exit path ... exactly
// once").
type BeginRescue struct {
	base
	ProtectedBlock string
	RescueBlock    string
}

type EnsureEnter struct {
	base
	EnsureBlock string
}

type EnsureLeave struct{ base }

// Reraise re-raises the currently-handled exception, popping to the
// next enclosing handler (spec §4.4 "Re-raise ... pops back to the
// next enclosing handler").
type Reraise struct{ base }

// Terminator is exactly one per block (spec §3 invariant).
type Terminator interface{ term() }

type Jump struct{ Target string }

type Branch struct {
	Cond        Value
	TrueTarget  string
	FalseTarget string
}

type Return struct{ Value Value }

type Raise struct {
	ClassName string // "" for bare re-raise
	Message   Value
}

func (Jump) term()   {}
func (Branch) term() {}
func (Return) term() {}
func (Raise) term()  {}

// Identity aliases Result() to Value with no other effect. The
// inliner (spec §4.5) emits it when splicing a callee's return value
// into the caller's register numbering, playing the role spec §4.5
// describes as "rewrites any return to a jump-with-value into the
// caller's continuation" for the common single-block callee case.
type Identity struct {
	base
	Value Value
}

// NewIdentity builds an Identity instruction whose Result() is exactly
// reg — used by internal/optimizer's inliner to alias a call site's
// result register to a spliced callee's return value.
func NewIdentity(reg Reg, v Value) Identity {
	return Identity{base: base{Reg: reg}, Value: v}
}

// Phi is not a Terminator; it is a pseudo-instruction that must appear
// first in a block, one per incoming merged value, the way ssa.Phi
// does in golang.org/x/tools/go/ssa (grounded on tools/jitgen's walk of
// *ssa.Phi). The optimizer's phi-type promoter (spec §4.5) decides
// whether Type is an unboxed scalar or a boxed VALUE.
type Phi struct {
	base
	Edges []PhiEdge
	Type  *types.Type
}

type PhiEdge struct {
	Block string
	Value Value
}
