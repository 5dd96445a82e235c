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

package driver

import (
	"fmt"
	"path/filepath"

	"github.com/i2y/konpeito/internal/depgraph"
)

// recordDependencies loads the persisted dependency graph (spec §6),
// records that opts.InputPath depends on every signature file consulted
// this build, and writes it back atomically. A fresh build with no
// prior state starts from an empty graph (depgraph.LoadFile's missing-
// file-is-empty semantics).
func recordDependencies(opts Options) error {
	if opts.InputPath == "" {
		return nil
	}
	g, err := depgraph.LoadFile(opts.DepGraphPath)
	if err != nil {
		return fmt.Errorf("loading dependency graph: %w", err)
	}

	input, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return fmt.Errorf("resolving input path: %w", err)
	}
	for _, rbs := range opts.RBSPaths {
		abs, err := filepath.Abs(rbs)
		if err != nil {
			return fmt.Errorf("resolving signature path %s: %w", rbs, err)
		}
		g.AddDependency(input, abs)
	}

	if err := g.SaveFile(opts.DepGraphPath); err != nil {
		return fmt.Errorf("saving dependency graph: %w", err)
	}
	return nil
}
