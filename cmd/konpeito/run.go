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
	"os/exec"
)

// runCompiledModule hands the freshly built shared library to the host
// interpreter's own `require` so `--run` can observe its effect
// (spec §6's CLI surface names --run but the host process that loads
// Init_<module_name> is never konpeito itself — only the host
// interpreter links against its own C API symbols). This shells out the
// same way storage/scan_helper.go's Estimator spawns a helper process,
// piping Stdout/Stderr straight through.
func runCompiledModule(libPath, moduleName string) error {
	cmd := exec.Command("ruby", "-e", fmt.Sprintf("require %q; STDOUT.puts 'loaded %s'", libPath, moduleName))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
