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

// Package optimizer runs the HIR-to-HIR passes of spec §4.5: inliner,
// loop-invariant hoister, monomorphizer, phi-type promoter. Each pass
// mutates the program in place via structural edits, never raw pointer
// fixups (spec §3 "Lifecycle"), the same discipline scm/optimizer.go's
// (stubbed) AST-rewrite passes document, generalized here into real
// transformations over konpeito's own IR.
package optimizer

import (
	"github.com/i2y/konpeito/internal/hir"
)

// Pipeline runs every pass in the fixed order spec §4.5 lists them.
func Pipeline(prog *hir.Program) {
	inlineCandidates := collectInlineCandidates(prog)
	Inline(prog, inlineCandidates)
	HoistLoopInvariants(prog)
	Monomorphize(prog)
	PromotePhis(prog)
}

// pureAllowlist names the side-effect-free methods the loop-invariant
// hoister is permitted to move (spec §4.5: "operands are all defined
// outside the loop and whose opcode is on a pure-method allowlist").
var pureAllowlist = map[string]bool{
	"length": true, "size": true, "+": true, "-": true, "*": true, "/": true,
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}
