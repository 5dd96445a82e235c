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

package llvmgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/i2y/konpeito/internal/hir"
	ktypes "github.com/i2y/konpeito/internal/types"
)

// operatorMethods mirrors internal/optimizer's pureAllowlist arithmetic
// subset: the only method names eligible for the direct-instruction
// fast path spec §4.6 describes ("arithmetic/comparison instructions
// are emitted directly" when both operands share an unboxed type).
var operatorMethods = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

// funcEmitter holds the per-function state spec §2 item 6 names:
// "per-function value maps, block maps, allocas for mutable locals".
type funcEmitter struct {
	e      *Emitter
	hirFn  *hir.Function
	llvmFn *ir.Func
	blocks map[string]*ir.Block
	regs   map[int]value.Value
	types  map[int]*ktypes.Type
	locals map[string]*ir.InstAlloca
}

func (e *Emitter) emitFunction(fn *hir.Function) error {
	if len(fn.Blocks) == 0 {
		return nil // a declaration with no body (e.g. a native/cfunc stub) has nothing to emit here
	}
	retType := llvmType(fn.ResultType)
	params := make([]*ir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ir.NewParam(p.Name, llvmType(p.Type))
	}
	lf := e.Module.NewFunc(hir.MangledName(fn.Owner, fn.Singleton, fn.Name), retType, params...)

	fe := &funcEmitter{
		e:      e,
		hirFn:  fn,
		llvmFn: lf,
		blocks: map[string]*ir.Block{},
		regs:   map[int]value.Value{},
		types:  map[int]*ktypes.Type{},
		locals: map[string]*ir.InstAlloca{},
	}
	for _, b := range fn.Blocks {
		fe.blocks[b.Label] = lf.NewBlock(b.Label)
	}
	entry := fe.blocks[fn.Entry]
	if entry == nil && len(fn.Blocks) > 0 {
		entry = fe.blocks[fn.Blocks[0].Label]
	}
	fe.declareLocals(entry)
	for i, p := range fn.Params {
		if a, ok := fe.locals[p.Name]; ok {
			entry.NewStore(lf.Params[i], a)
		}
	}
	for _, b := range fn.Blocks {
		fe.emitBlock(fe.blocks[b.Label], b)
	}
	return nil
}

// declareLocals pre-allocates one alloca per distinct local slot name
// in the entry block, so every alloca dominates every later load/store
// regardless of which block first references the slot (spec §2 item 6:
// "allocas for mutable locals").
func (fe *funcEmitter) declareLocals(entry *ir.Block) {
	slotTypes := map[string]types.Type{}
	for _, b := range fe.hirFn.Blocks {
		for _, instr := range b.Instructions {
			switch in := instr.(type) {
			case hir.LocalLoad:
				slotTypes[in.Slot] = llvmType(in.Reg.Type)
			case hir.LocalStore:
				if _, ok := slotTypes[in.Slot]; !ok {
					slotTypes[in.Slot] = llvmType(fe.staticType(in.Value))
				}
			}
		}
	}
	for name, t := range slotTypes {
		fe.locals[name] = entry.NewAlloca(t)
	}
}

func (fe *funcEmitter) emitBlock(b *ir.Block, hb *hir.BasicBlock) {
	for _, instr := range hb.Instructions {
		fe.emitInstruction(b, instr)
	}
	fe.emitTerminator(b, hb.Term)
}

// staticType recovers the konpeito type of a Value operand without a
// full type-inference pass, the same constant-classification internal
// /optimizer's argType performs, duplicated locally since llvmgen and
// optimizer are siblings with no shared dependency between them.
func (fe *funcEmitter) staticType(v hir.Value) *ktypes.Type {
	switch vv := v.(type) {
	case hir.Reg:
		return vv.Type
	case hir.ConstInt:
		return ktypes.Int()
	case hir.ConstFloat:
		return ktypes.Float()
	case hir.ConstString:
		return ktypes.Str()
	case hir.ConstSymbol:
		return ktypes.Symbol()
	case hir.ConstBool:
		return ktypes.Bool()
	case hir.ConstNil:
		return ktypes.Nil()
	default:
		return nil
	}
}

// raw returns v's unboxed LLVM representation (valid only when
// staticType(v) is itself unboxed); boxed returns the VALUE pointer
// representation, boxing an unboxed register or constant on demand.
func (fe *funcEmitter) raw(b *ir.Block, v hir.Value) value.Value {
	switch vv := v.(type) {
	case hir.Reg:
		return fe.regs[vv.ID]
	case hir.ConstInt:
		return constant.NewInt(types.I64, vv.V)
	case hir.ConstFloat:
		return constant.NewFloat(types.Double, vv.V)
	case hir.ConstBool:
		return constant.NewBool(vv.V)
	default:
		return fe.boxed(b, v)
	}
}

func (fe *funcEmitter) boxed(b *ir.Block, v hir.Value) value.Value {
	switch vv := v.(type) {
	case hir.Reg:
		return fe.boxIfNeeded(b, fe.regs[vv.ID], vv.Type)
	case hir.ConstInt:
		return b.NewCall(fe.e.boxInt, constant.NewInt(types.I64, vv.V))
	case hir.ConstFloat:
		return b.NewCall(fe.e.boxFloat, constant.NewFloat(types.Double, vv.V))
	case hir.ConstBool:
		return b.NewCall(fe.e.boxBool, constant.NewBool(vv.V))
	case hir.ConstNil:
		return b.NewCall(fe.e.boxNil)
	case hir.ConstString:
		return fe.boxStringLiteral(b, vv.V)
	case hir.ConstSymbol:
		return fe.boxSymbolLiteral(b, vv.V)
	default:
		return constant.NewNull(valueType)
	}
}

func (fe *funcEmitter) boxIfNeeded(b *ir.Block, v value.Value, t *ktypes.Type) value.Value {
	if v == nil {
		return b.NewCall(fe.e.boxNil)
	}
	if t == nil {
		return v
	}
	switch ktypes.Prune(t).Kind {
	case ktypes.KindInt:
		return b.NewCall(fe.e.boxInt, v)
	case ktypes.KindFloat:
		return b.NewCall(fe.e.boxFloat, v)
	case ktypes.KindBool:
		return b.NewCall(fe.e.boxBool, v)
	default:
		return v
	}
}

func (fe *funcEmitter) stringPtr(b *ir.Block, s string) value.Value {
	g := fe.e.globalString(s)
	zero := constant.NewInt(types.I32, 0)
	return constant.NewGetElementPtr(g.ContentType, g, zero, zero)
}

func (fe *funcEmitter) boxStringLiteral(b *ir.Block, s string) value.Value {
	return b.NewCall(fe.e.boxString, fe.stringPtr(b, s), constant.NewInt(types.I64, int64(len(s))))
}

func (fe *funcEmitter) boxSymbolLiteral(b *ir.Block, s string) value.Value {
	return b.NewCall(fe.e.boxSymbol, fe.stringPtr(b, s), constant.NewInt(types.I64, int64(len(s))))
}

// emitVarargs spills args onto the stack as a [N x VALUE] array and
// returns an i8*-style VALUE* pointer to its first element plus N,
// konpeito_funcall's ABI for "a funcall-equivalent variadic helper"
// (spec §4.6).
func (fe *funcEmitter) emitVarargs(b *ir.Block, args []value.Value) (value.Value, int64) {
	n := int64(len(args))
	if n == 0 {
		return constant.NewNull(types.NewPointer(valueType)), 0
	}
	arrType := types.NewArray(uint64(n), valueType)
	arr := b.NewAlloca(arrType)
	zero := constant.NewInt(types.I32, 0)
	for i, a := range args {
		gep := b.NewGetElementPtr(arrType, arr, zero, constant.NewInt(types.I32, int32(i)))
		b.NewStore(a, gep)
	}
	first := b.NewGetElementPtr(arrType, arr, zero, zero)
	return first, n
}

func (fe *funcEmitter) setResult(instr hir.Instruction, v value.Value) {
	r := instr.Result()
	if r.ID == 0 {
		return
	}
	fe.regs[r.ID] = v
	fe.types[r.ID] = r.Type
}

func (fe *funcEmitter) emitInstruction(b *ir.Block, instr hir.Instruction) {
	switch in := instr.(type) {
	case hir.LitInt:
		fe.setResult(in, constant.NewInt(types.I64, in.Value))
	case hir.LitFloat:
		fe.setResult(in, constant.NewFloat(types.Double, in.Value))
	case hir.LitString:
		fe.setResult(in, fe.boxStringLiteral(b, in.Value))
	case hir.LitSymbol:
		fe.setResult(in, fe.boxSymbolLiteral(b, in.Value))
	case hir.LitBool:
		fe.setResult(in, constant.NewBool(in.Value))
	case hir.LitNil:
		fe.setResult(in, b.NewCall(fe.e.boxNil))
	case hir.LocalLoad:
		a, ok := fe.locals[in.Slot]
		if !ok {
			a = b.NewAlloca(llvmType(in.Reg.Type))
			fe.locals[in.Slot] = a
		}
		fe.setResult(in, b.NewLoad(a.ElemType, a))
	case hir.LocalStore:
		a, ok := fe.locals[in.Slot]
		if !ok {
			a = b.NewAlloca(llvmType(fe.staticType(in.Value)))
			fe.locals[in.Slot] = a
		}
		b.NewStore(fe.valueFor(b, in.Value, a.ElemType), a)
	case hir.GlobalLoad:
		fe.setResult(in, b.NewCall(fe.e.globalGet, fe.stringPtr(b, in.Name)))
	case hir.GlobalStore:
		b.NewCall(fe.e.globalSet, fe.stringPtr(b, in.Name), fe.boxed(b, in.Value))
	case hir.CVarLoad:
		fe.setResult(in, b.NewCall(fe.e.cvarGet, fe.stringPtr(b, fe.hirFn.Owner), fe.stringPtr(b, in.Name)))
	case hir.CVarStore:
		b.NewCall(fe.e.cvarSet, fe.stringPtr(b, fe.hirFn.Owner), fe.stringPtr(b, in.Name), fe.boxed(b, in.Value))
	case hir.IVarLoad:
		fe.setResult(in, b.NewCall(fe.e.ivarGet, fe.boxed(b, in.Self), fe.stringPtr(b, in.Name)))
	case hir.IVarStore:
		b.NewCall(fe.e.ivarSet, fe.boxed(b, in.Self), fe.stringPtr(b, in.Name), fe.boxed(b, in.Value))
	case hir.ArrayLit:
		elems := make([]value.Value, len(in.Elems))
		for i, el := range in.Elems {
			elems[i] = fe.boxed(b, el)
		}
		ptr, n := fe.emitVarargs(b, elems)
		fe.setResult(in, b.NewCall(fe.e.arrayNew, constant.NewInt(types.I32, int32(n)), ptr))
	case hir.HashLit:
		keys := make([]value.Value, len(in.Keys))
		for i, k := range in.Keys {
			keys[i] = fe.boxed(b, k)
		}
		vals := make([]value.Value, len(in.Values))
		for i, v := range in.Values {
			vals[i] = fe.boxed(b, v)
		}
		kptr, n := fe.emitVarargs(b, keys)
		vptr, _ := fe.emitVarargs(b, vals)
		fe.setResult(in, b.NewCall(fe.e.hashNew, constant.NewInt(types.I32, int32(n)), kptr, vptr))
	case hir.RangeLit:
		fe.setResult(in, b.NewCall(fe.e.rangeNew, fe.boxed(b, in.Low), fe.boxed(b, in.High), constant.NewBool(in.Exclusive)))
	case hir.RegexpLit:
		fe.setResult(in, fe.boxStringLiteral(b, in.Source))
	case hir.Call:
		fe.setResult(in, fe.emitCall(b, in))
	case hir.SuperCall:
		args := make([]value.Value, len(in.Args))
		for i, a := range in.Args {
			args[i] = fe.boxed(b, a)
		}
		ptr, n := fe.emitVarargs(b, args)
		fe.setResult(in, b.NewCall(fe.e.superFuncall, fe.boxed(b, in.Self), constant.NewInt(types.I64, fe.e.methodID(fe.hirFn.Name)), constant.NewInt(types.I32, int32(n)), ptr))
	case hir.NativeCall:
		fe.setResult(in, fe.emitNativeCall(b, in))
	case hir.ProcNew:
		captures := make([]value.Value, len(in.Captures))
		for i, name := range in.Captures {
			a, ok := fe.locals[name]
			if !ok {
				captures[i] = constant.NewNull(valueType)
				continue
			}
			captures[i] = b.NewLoad(a.ElemType, a)
		}
		ptr, n := fe.emitVarargs(b, captures)
		fe.setResult(in, b.NewCall(fe.e.procNew, fe.stringPtr(b, in.BodyFunc), constant.NewInt(types.I32, int32(n)), ptr, constant.NewBool(in.Lambda)))
	case hir.Yield:
		args := make([]value.Value, len(in.Args))
		for i, a := range in.Args {
			args[i] = fe.boxed(b, a)
		}
		ptr, n := fe.emitVarargs(b, args)
		fe.setResult(in, b.NewCall(fe.e.yieldFn, constant.NewInt(types.I32, int32(n)), ptr))
	case hir.FiberNew:
		captures := make([]value.Value, len(in.Captures))
		for i, name := range in.Captures {
			if a, ok := fe.locals[name]; ok {
				captures[i] = b.NewLoad(a.ElemType, a)
			} else {
				captures[i] = constant.NewNull(valueType)
			}
		}
		ptr, n := fe.emitVarargs(b, captures)
		fe.setResult(in, b.NewCall(fe.e.fiberNew, fe.stringPtr(b, in.BodyFunc), constant.NewInt(types.I32, int32(n)), ptr))
	case hir.FiberYield:
		args := make([]value.Value, len(in.Args))
		for i, a := range in.Args {
			args[i] = fe.boxed(b, a)
		}
		ptr, n := fe.emitVarargs(b, args)
		fe.setResult(in, b.NewCall(fe.e.fiberYield, constant.NewInt(types.I32, int32(n)), ptr))
	case hir.FiberResume:
		args := make([]value.Value, len(in.Args))
		for i, a := range in.Args {
			args[i] = fe.boxed(b, a)
		}
		ptr, n := fe.emitVarargs(b, args)
		fe.setResult(in, b.NewCall(fe.e.fiberResume, fe.boxed(b, in.Fiber), constant.NewInt(types.I32, int32(n)), ptr))
	case hir.PatternTest:
		kindCode := constant.NewInt(types.I32, int32(in.Kind))
		arg := fe.boxed(b, in.Arg)
		name := fe.stringPtr(b, in.TypeName)
		fe.setResult(in, b.NewCall(fe.e.patternTest, kindCode, fe.boxed(b, in.Subject), arg, name, constant.NewInt(types.I64, int64(in.MinLen)), constant.NewBool(in.HasRest)))
	case hir.PatternBind:
		a, ok := fe.locals[in.Slot]
		if !ok {
			a = b.NewAlloca(valueType)
			fe.locals[in.Slot] = a
		}
		b.NewStore(fe.boxed(b, in.Subject), a)
	case hir.BeginRescue:
		// protected/rescue block wiring is already expressed as control
		// flow by the HIR builder; the marker itself carries no runtime
		// effect beyond documenting the region's boundaries for tooling.
	case hir.EnsureEnter:
	case hir.EnsureLeave:
	case hir.Reraise:
		b.NewCall(fe.e.reraiseFn)
	case hir.Identity:
		fe.setResult(in, fe.valueFor(b, in.Value, llvmType(in.Result().Type)))
	case hir.Phi:
		fe.emitPhi(b, in)
	default:
		// Unhandled instruction kinds degrade to a nil VALUE rather than
		// a panic; the driver's diagnostic pass is expected to catch any
		// HIR shape the emitter doesn't yet know before this point runs.
	}
}

// valueFor returns v's representation coerced to want (raw scalar or
// boxed VALUE), used where an instruction's declared result type
// dictates which form downstream consumers expect.
func (fe *funcEmitter) valueFor(b *ir.Block, v hir.Value, want types.Type) value.Value {
	if want == valueType {
		return fe.boxed(b, v)
	}
	return fe.raw(b, v)
}

// emitPhi builds the incoming list straight from each edge's operand,
// coerced to the promoted phi type: no deferred-patch pass is needed
// since every HIR Phi's predecessors are built before the merge block
// (see the builder's if/else, case/in, begin/rescue, and compound-
// assignment lowerings), so edge.Value never references a register
// from a block this pass hasn't reached yet.
func (fe *funcEmitter) emitPhi(b *ir.Block, in hir.Phi) {
	want := llvmType(in.Type)
	incs := make([]*ir.Incoming, 0, len(in.Edges))
	for _, edge := range in.Edges {
		pred, ok := fe.blocks[edge.Block]
		if !ok {
			continue
		}
		incs = append(incs, ir.NewIncoming(fe.valueFor(pred, edge.Value, want), pred))
	}
	fe.setResult(in, b.NewPhi(incs...))
}

func (fe *funcEmitter) emitTerminator(b *ir.Block, t hir.Terminator) {
	switch term := t.(type) {
	case hir.Jump:
		b.NewBr(fe.blocks[term.Target])
	case hir.Branch:
		cond := fe.raw(b, term.Cond)
		b.NewCondBr(cond, fe.blocks[term.TrueTarget], fe.blocks[term.FalseTarget])
	case hir.Return:
		if term.Value == nil {
			b.NewRet(nil)
			return
		}
		b.NewRet(fe.valueFor(b, term.Value, fe.llvmFn.Sig.RetType))
	case hir.Raise:
		msg := fe.boxed(b, term.Message)
		b.NewCall(fe.e.raiseFn, fe.stringPtr(b, term.ClassName), msg)
		b.NewUnreachable()
	default:
		b.NewUnreachable()
	}
}

func (fe *funcEmitter) emitCall(b *ir.Block, call hir.Call) value.Value {
	if len(call.Args) == 1 && operatorMethods[call.Method] {
		rt := fe.staticType(call.Receiver)
		at := fe.staticType(call.Args[0])
		if rt != nil && at != nil && ktypes.Unboxed(rt) && ktypes.Unboxed(at) {
			rk, ak := ktypes.Prune(rt).Kind, ktypes.Prune(at).Kind
			if rk == ak {
				if v := fe.emitUnboxedOp(b, call.Method, fe.raw(b, call.Receiver), fe.raw(b, call.Args[0]), rk); v != nil {
					return v
				}
			}
		}
	}
	recv := fe.boxed(b, call.Receiver)
	args := make([]value.Value, len(call.Args))
	for i, a := range call.Args {
		args[i] = fe.boxed(b, a)
	}
	for _, kw := range call.KeywordArgs {
		args = append(args, fe.boxSymbolLiteral(b, kw.Name), fe.boxed(b, kw.Value))
	}
	if call.Block != nil {
		args = append(args, fe.boxed(b, call.Block))
	}
	ptr, n := fe.emitVarargs(b, args)
	return b.NewCall(fe.e.funcall, recv, constant.NewInt(types.I64, fe.e.methodID(call.Method)), constant.NewInt(types.I32, int32(n)), ptr)
}

func (fe *funcEmitter) emitUnboxedOp(b *ir.Block, method string, l, r value.Value, kind ktypes.Kind) value.Value {
	switch kind {
	case ktypes.KindInt:
		switch method {
		case "+":
			return b.NewAdd(l, r)
		case "-":
			return b.NewSub(l, r)
		case "*":
			return b.NewMul(l, r)
		case "/":
			return b.NewSDiv(l, r)
		case "==":
			return b.NewICmp(enum.IPredEQ, l, r)
		case "!=":
			return b.NewICmp(enum.IPredNE, l, r)
		case "<":
			return b.NewICmp(enum.IPredSLT, l, r)
		case ">":
			return b.NewICmp(enum.IPredSGT, l, r)
		case "<=":
			return b.NewICmp(enum.IPredSLE, l, r)
		case ">=":
			return b.NewICmp(enum.IPredSGE, l, r)
		}
	case ktypes.KindFloat:
		switch method {
		case "+":
			return b.NewFAdd(l, r)
		case "-":
			return b.NewFSub(l, r)
		case "*":
			return b.NewFMul(l, r)
		case "/":
			return b.NewFDiv(l, r)
		case "==":
			return b.NewFCmp(enum.FPredOEQ, l, r)
		case "!=":
			return b.NewFCmp(enum.FPredONE, l, r)
		case "<":
			return b.NewFCmp(enum.FPredOLT, l, r)
		case ">":
			return b.NewFCmp(enum.FPredOGT, l, r)
		case "<=":
			return b.NewFCmp(enum.FPredOLE, l, r)
		case ">=":
			return b.NewFCmp(enum.FPredOGE, l, r)
		}
	}
	return nil
}

// emitNativeCall dispatches directly to a mangled native-method symbol
// (spec §3 "native-method-call": "no dynamic lookup, no argument-
// conversion wrapper"), declaring the extern lazily on first use.
func (fe *funcEmitter) emitNativeCall(b *ir.Block, in hir.NativeCall) value.Value {
	symbol := fmt.Sprintf("%s_i_%s", in.Class, in.Method)
	fn, ok := fe.e.nativeCall[symbol]
	if !ok {
		params := make([]types.Type, len(in.Args)+1)
		for i := range params {
			params[i] = valueType
		}
		fn = fe.e.declare(symbol, valueType, params...)
		fe.e.nativeCall[symbol] = fn
	}
	args := make([]value.Value, len(in.Args)+1)
	args[0] = fe.boxed(b, in.Receiver)
	for i, a := range in.Args {
		args[i+1] = fe.boxed(b, a)
	}
	return b.NewCall(fn, args...)
}
