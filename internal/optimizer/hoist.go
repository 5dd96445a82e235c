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

package optimizer

import (
	"strconv"
	"strings"

	"github.com/i2y/konpeito/internal/hir"
)

// HoistLoopInvariants moves pure, loop-external-operand instructions
// from a loop body into its preheader (spec §4.5 "Loop-invariant
// hoist"). Loops are recognized by the builder's own "whilecond." /
// "whilebody." / "whileexit." block-label convention (internal/hir's
// whileExpr) rather than a full dominator-tree analysis — sound here
// because every loop in this IR is built by that one lowering path.
func HoistLoopInvariants(prog *hir.Program) {
	for _, fn := range prog.Functions {
		hoistInFunction(fn)
	}
}

func hoistInFunction(fn *hir.Function) {
	for _, b := range fn.Blocks {
		if !strings.HasPrefix(b.Label, "whilebody.") {
			continue
		}
		condLabel, ok := condLabelFor(b.Label)
		if !ok {
			continue
		}
		preheader := findPredecessor(fn, condLabel, b)
		if preheader == nil || preheader.Term == nil {
			continue
		}
		hoistBlock(b, preheader)
	}
}

// condLabelFor derives a whilebody block's matching whilecond label.
// whileExpr (internal/hir/builder.go) allocates condBlock then
// bodyBlock back to back from the same per-function counter, so the
// body's numeric suffix is always exactly one more than its cond's.
func condLabelFor(bodyLabel string) (string, bool) {
	dot := strings.LastIndex(bodyLabel, ".")
	if dot == -1 {
		return "", false
	}
	n, err := strconv.Atoi(bodyLabel[dot+1:])
	if err != nil {
		return "", false
	}
	return "whilecond." + strconv.Itoa(n-1), true
}

// findPredecessor returns the loop's preheader: the single block other
// than body that jumps unconditionally to target, or nil if
// none/ambiguous. Every ordinary while/until loop has exactly two jumps
// into its condition block — the preheader's initial jump and the
// body's own back-edge fallthrough (internal/hir/builder.go's
// whileExpr emits both) — so the body's own jump is excluded from
// consideration rather than treated as a second, ambiguous predecessor.
func findPredecessor(fn *hir.Function, target string, body *hir.BasicBlock) *hir.BasicBlock {
	var found *hir.BasicBlock
	for _, b := range fn.Blocks {
		if b == body {
			continue
		}
		if j, ok := b.Term.(hir.Jump); ok && j.Target == target {
			if found != nil {
				return nil
			}
			found = b
		}
	}
	return found
}

func hoistBlock(body, preheader *hir.BasicBlock) {
	localDefs := map[int]bool{}
	var keep []hir.Instruction
	// preheader's terminator already exists (a Jump into the loop
	// condition); hoisted instructions are inserted just before it, in
	// the order discovered, which preserves their relative ordering.
	for _, instr := range body.Instructions {
		if call, ok := instr.(hir.Call); ok && isHoistable(call, localDefs) {
			preheader.Instructions = append(preheader.Instructions, instr)
		} else {
			keep = append(keep, instr)
		}
		localDefs[instr.Result().ID] = true
	}
	body.Instructions = keep
}

func isHoistable(call hir.Call, localDefs map[int]bool) bool {
	if !pureAllowlist[call.Method] || call.Block != nil || len(call.KeywordArgs) > 0 {
		return false
	}
	if definedLocally(call.Receiver, localDefs) {
		return false
	}
	for _, a := range call.Args {
		if definedLocally(a, localDefs) {
			return false
		}
	}
	return true
}

func definedLocally(v hir.Value, localDefs map[int]bool) bool {
	r, ok := v.(hir.Reg)
	if !ok {
		return false
	}
	return localDefs[r.ID]
}
