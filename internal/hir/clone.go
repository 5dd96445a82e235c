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

// CloneInto renumbers instr's registers into dst's own counter and
// rewrites every Value operand through subst, recording instr's old
// result register (if any) into subst so later instructions in the
// same clone batch resolve correctly. Exported for internal/optimizer,
// which is the only caller (the inliner splices a callee's
// instructions into a caller's block and must not let the two
// functions' independent register counters collide).
func CloneInto(dst *Function, instr Instruction, subst map[int]Reg) Instruction {
	sv := func(v Value) Value { return substValue(v, subst) }
	svs := func(vs []Value) []Value {
		out := make([]Value, len(vs))
		for i, v := range vs {
			out[i] = sv(v)
		}
		return out
	}
	newBase := func(t *Reg) base {
		nr := dst.NewReg(t.Type)
		subst[t.ID] = nr
		return base{Reg: nr}
	}

	switch in := instr.(type) {
	case LitInt:
		return LitInt{base: newBase(&in.Reg), Value: in.Value}
	case LitFloat:
		return LitFloat{base: newBase(&in.Reg), Value: in.Value}
	case LitString:
		return LitString{base: newBase(&in.Reg), Value: in.Value}
	case LitSymbol:
		return LitSymbol{base: newBase(&in.Reg), Value: in.Value}
	case LitBool:
		return LitBool{base: newBase(&in.Reg), Value: in.Value}
	case LitNil:
		return LitNil{base: newBase(&in.Reg)}
	case LocalLoad:
		return LocalLoad{base: newBase(&in.Reg), Slot: in.Slot}
	case LocalStore:
		return LocalStore{base: newBase(&in.Reg), Slot: in.Slot, Value: sv(in.Value)}
	case GlobalLoad:
		return GlobalLoad{base: newBase(&in.Reg), Name: in.Name}
	case GlobalStore:
		return GlobalStore{base: newBase(&in.Reg), Name: in.Name, Value: sv(in.Value)}
	case CVarLoad:
		return CVarLoad{base: newBase(&in.Reg), Name: in.Name}
	case CVarStore:
		return CVarStore{base: newBase(&in.Reg), Name: in.Name, Value: sv(in.Value)}
	case IVarLoad:
		return IVarLoad{base: newBase(&in.Reg), Self: sv(in.Self), Name: in.Name}
	case IVarStore:
		return IVarStore{base: newBase(&in.Reg), Self: sv(in.Self), Name: in.Name, Value: sv(in.Value)}
	case ArrayLit:
		return ArrayLit{base: newBase(&in.Reg), Elems: svs(in.Elems)}
	case HashLit:
		return HashLit{base: newBase(&in.Reg), Keys: svs(in.Keys), Values: svs(in.Values)}
	case RangeLit:
		return RangeLit{base: newBase(&in.Reg), Low: sv(in.Low), High: sv(in.High), Exclusive: in.Exclusive}
	case RegexpLit:
		return RegexpLit{base: newBase(&in.Reg), Source: in.Source}
	case Call:
		kw := make([]KeywordArg, len(in.KeywordArgs))
		for i, k := range in.KeywordArgs {
			kw[i] = KeywordArg{Name: k.Name, Value: sv(k.Value)}
		}
		return Call{base: newBase(&in.Reg), Receiver: sv(in.Receiver), Method: in.Method, Args: svs(in.Args), KeywordArgs: kw, Block: sv(in.Block), SafeNav: in.SafeNav}
	case SuperCall:
		return SuperCall{base: newBase(&in.Reg), Self: sv(in.Self), Args: svs(in.Args)}
	case NativeCall:
		return NativeCall{base: newBase(&in.Reg), Receiver: sv(in.Receiver), Class: in.Class, Method: in.Method, Args: svs(in.Args)}
	case ProcNew:
		return ProcNew{base: newBase(&in.Reg), BodyFunc: in.BodyFunc, Captures: in.Captures, Lambda: in.Lambda}
	case Yield:
		return Yield{base: newBase(&in.Reg), Args: svs(in.Args)}
	case FiberNew:
		return FiberNew{base: newBase(&in.Reg), BodyFunc: in.BodyFunc, Captures: in.Captures}
	case FiberYield:
		return FiberYield{base: newBase(&in.Reg), Args: svs(in.Args)}
	case FiberResume:
		return FiberResume{base: newBase(&in.Reg), Fiber: sv(in.Fiber), Args: svs(in.Args)}
	case PatternTest:
		return PatternTest{base: newBase(&in.Reg), Kind: in.Kind, Subject: sv(in.Subject), Arg: sv(in.Arg), TypeName: in.TypeName, MinLen: in.MinLen, HasRest: in.HasRest, Keys: in.Keys}
	case PatternBind:
		return PatternBind{base: newBase(&in.Reg), Subject: sv(in.Subject), Slot: in.Slot}
	case BeginRescue:
		return BeginRescue{base: newBase(&in.Reg), ProtectedBlock: in.ProtectedBlock, RescueBlock: in.RescueBlock}
	case EnsureEnter:
		return EnsureEnter{base: newBase(&in.Reg), EnsureBlock: in.EnsureBlock}
	case EnsureLeave:
		return EnsureLeave{base: newBase(&in.Reg)}
	case Reraise:
		return Reraise{base: newBase(&in.Reg)}
	case Identity:
		return Identity{base: newBase(&in.Reg), Value: sv(in.Value)}
	case Phi:
		edges := make([]PhiEdge, len(in.Edges))
		for i, e := range in.Edges {
			edges[i] = PhiEdge{Block: e.Block, Value: sv(e.Value)}
		}
		return Phi{base: newBase(&in.Reg), Edges: edges, Type: in.Type}
	default:
		return instr
	}
}

func substValue(v Value, subst map[int]Reg) Value {
	r, ok := v.(Reg)
	if !ok {
		return v
	}
	if nr, ok := subst[r.ID]; ok {
		return nr
	}
	return r
}

// SubstTerminator rewrites a cloned terminator's Value operands
// through subst (the inliner needs this to read a callee's Return
// value in the caller's renumbered space).
func SubstTerminator(t Terminator, subst map[int]Reg) Terminator {
	switch term := t.(type) {
	case Return:
		return Return{Value: substValue(term.Value, subst)}
	case Branch:
		return Branch{Cond: substValue(term.Cond, subst), TrueTarget: term.TrueTarget, FalseTarget: term.FalseTarget}
	case Raise:
		return Raise{ClassName: term.ClassName, Message: substValue(term.Message, subst)}
	default:
		return t
	}
}
