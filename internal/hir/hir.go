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

// Package hir is the block-structured, SSA-like intermediate
// representation (spec §3 "HIR program" / "Basic block") that sits
// between the typed AST and the optimizer/LLVM emitter. Its register
// and block-label vocabulary is grounded on the way
// golang.org/x/tools/go/ssa models ssa.Function/ssa.BasicBlock/ssa.Phi
// (see tools/jitgen/main.go, which walks exactly that shape to drive
// code generation) — konpeito owns its IR instead of reusing go/ssa
// because its value set (boxed host VALUEs, proc closures, fiber
// handles) has no go/ssa counterpart.
package hir

import (
	"strconv"

	"github.com/i2y/konpeito/internal/types"
)

// Program is the whole compilation unit (spec §3: "a tuple of
// (top-level functions, classes, modules)").
type Program struct {
	Functions []*Function
	Classes   []*Class
	Modules   []*Module
}

// Class is spec §3's class record.
type Class struct {
	Name             string
	Superclass       string // "" if none
	InstanceMethods  []string
	SingletonMethods []string
	Includes         []MixinRef
	Aliases          map[string]string // new -> old
	Constants        map[string]Value
	ClassVars        map[string]Value
	Visibility       map[string]types.Visibility
	Reopened         bool
	Native           *types.Type // non-nil for a NativeClass-backed class
	Functions        map[string]*Function
}

// MixinRef is one include/extend/prepend directive, recorded in
// declaration order. The C shim's Init_ applies a class's prepends
// first, then its includes, then its extends, each kind in declaration
// order (spec §4.7 init order).
type MixinRef struct {
	Kind string // "include" | "extend" | "prepend"
	Name string
}

// Module mirrors Class minus the superclass/native fields (spec §3:
// "structurally similar minus superclass").
type Module struct {
	Name             string
	InstanceMethods  []string
	SingletonMethods []string
	Constants        map[string]Value
	ClassVars        map[string]Value
	Visibility       map[string]types.Visibility
	Functions        map[string]*Function
}

// Function is spec §3's function record.
type Function struct {
	Name       string
	Owner      string // class or module name, "" for top-level
	Singleton  bool
	Params     []Param
	IsLambda   bool // strict arity vs lenient proc/block arity
	Variadic   bool // any *args/**kwargs param (spec §4.4 keyword args)
	MayRaise   bool
	Blocks     []*BasicBlock
	Entry      string // label of entry block
	ResultType *types.Type

	nextReg   int
	nextBlock int
}

// ParamKind mirrors ast.ParamKind; duplicated here (rather than
// imported) because HIR's parameter list is the lowering's own
// normalized shape, independent of surface syntax.
type ParamKind uint8

const (
	ParamNormal ParamKind = iota
	ParamKeyword
	ParamRest
	ParamKeywordRest
	ParamBlock
)

type Param struct {
	Name     string
	Kind     ParamKind
	Type     *types.Type
	HasDefault bool
	Default  *BasicBlock // left nil by Builder, which lowers default expressions inline (emitDefaultedParam)
}

// BasicBlock is spec §3's "ordered list of SSA-style instructions plus
// exactly one terminator."
type BasicBlock struct {
	Label        string
	Instructions []Instruction
	Term         Terminator
	Preds        []string
}

func (b *BasicBlock) Append(i Instruction) { b.Instructions = append(b.Instructions, i) }

// Value is anything an instruction or terminator can reference as an
// operand: a register produced by a prior instruction, or a compile-
// time constant.
type Value interface{ value() }

// Reg is an SSA register: the result of exactly one instruction,
// referenced by subsequent instructions in a dominating block.
type Reg struct {
	ID   int
	Type *types.Type
}

func (Reg) value() {}

// Constants usable directly as operands without an instruction.
type ConstInt struct{ V int64 }
type ConstFloat struct{ V float64 }
type ConstString struct{ V string }
type ConstSymbol struct{ V string }
type ConstBool struct{ V bool }
type ConstNil struct{}

func (ConstInt) value()    {}
func (ConstFloat) value()  {}
func (ConstString) value() {}
func (ConstSymbol) value() {}
func (ConstBool) value()   {}
func (ConstNil) value()    {}

// NewFunction allocates an (initially block-less) function record.
func NewFunction(name, owner string) *Function {
	return &Function{Name: name, Owner: owner}
}

// MangledName is the single naming convention the LLVM emitter and C
// shim generator both rely on to find each other's symbols: top-level
// functions keep their bare name, methods get an owner/kind/name triple
// so an instance and singleton method of the same name never collide.
func MangledName(owner string, singleton bool, name string) string {
	if owner == "" {
		return name
	}
	kind := "i"
	if singleton {
		kind = "s"
	}
	return owner + "_" + kind + "_" + name
}

// NewReg allocates a fresh SSA register in fn, the way ssa.Function
// hands out new Value instances per instruction build (grounded on
// tools/jitgen's register walk).
func (fn *Function) NewReg(t *types.Type) Reg {
	fn.nextReg++
	return Reg{ID: fn.nextReg, Type: t}
}

// NewBlock appends and returns a fresh, empty block with a unique
// label derived from hint.
func (fn *Function) NewBlock(hint string) *BasicBlock {
	fn.nextBlock++
	b := &BasicBlock{Label: hint + "." + strconv.Itoa(fn.nextBlock)}
	fn.Blocks = append(fn.Blocks, b)
	if fn.Entry == "" {
		fn.Entry = b.Label
	}
	return b
}
