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

package main

import (
	"fmt"
	"os"

	"github.com/i2y/konpeito/internal/ast"
)

// Parse turns the primary input file into the *ast.Program driver.Compile
// consumes. Spec §1 places the source-language parser itself out of
// scope ("consumed as an external library producing a concrete syntax
// tree"): internal/ast is deliberately a node vocabulary with no parser
// of its own, the way golang.org/x/tools/go/ssa is built against
// go/parser's output rather than owning a lexer. A real deployment
// wires this seam to whatever concrete-syntax-tree front end it ships;
// this build verifies the input is reachable and reports the missing
// seam explicitly rather than silently producing an empty program.
var Parse = func(path string) (*ast.Program, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no source-language parser is configured: %s must be produced by an external front end and passed to driver.Compile as an *ast.Program", path)
}
