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
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// toolchain is the set of external tools the driver shells out to
// (spec §6: "an LLVM IR optimizer (optional), an LLVM static compiler
// (required), a C compiler for the shim (required), a linker invoked
// via the C compiler (required)"). Every invocation follows the
// teacher's sole os/exec idiom (storage/scan_helper.go's Estimator:
// build the *exec.Cmd, wire Stdout/Stderr straight to the parent
// process, Run it, surface a wrapped error on failure) rather than
// capturing output for re-parsing.
type toolchain struct {
	opt string // optional
	llc string
	cc  string
}

// installHint names a platform package manager command for a missing
// tool (spec §7: "Tool-not-found errors ... surface with a
// platform-specific install hint").
func installHint(tool string) string {
	switch runtime.GOOS {
	case "darwin":
		return fmt.Sprintf("brew install llvm # provides %s", tool)
	case "windows":
		return fmt.Sprintf("winget install LLVM.LLVM # provides %s", tool)
	default:
		return fmt.Sprintf("apt-get install clang llvm # provides %s", tool)
	}
}

// discoverTools resolves llc and cc (required) from PATH, failing fast
// with an install hint per spec §7. opt is resolved too but its absence
// is not fatal (spec §4.7: "Optional passes ... degrade gracefully: if
// unavailable, emission proceeds without them").
func discoverTools() (*toolchain, error) {
	llc, err := findTool("llc")
	if err != nil {
		return nil, err
	}
	cc, err := findTool("cc")
	if err != nil {
		if cc, err = findTool("clang"); err != nil {
			return nil, fmt.Errorf("no C compiler found on PATH (tried cc, clang): %s", installHint("cc"))
		}
	}
	opt, _ := exec.LookPath("opt")
	return &toolchain{opt: opt, llc: llc, cc: cc}, nil
}

func findTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("required tool %q not found on PATH: %s", name, installHint(name))
	}
	return path, nil
}

// ToolStatus reports one external tool's availability, for the `doctor`
// subcommand (SPEC_FULL.md §C).
type ToolStatus struct {
	Name      string
	Required  bool
	Path      string // "" if not found
	Available bool
}

// Doctor reports the presence of every external tool spec §6 names,
// surfacing the "Tool error" failure kind (spec §7) before a real
// compilation is attempted.
func Doctor() []ToolStatus {
	check := func(name string, required bool) ToolStatus {
		path, err := exec.LookPath(name)
		return ToolStatus{Name: name, Required: required, Path: path, Available: err == nil}
	}
	statuses := []ToolStatus{check("opt", false), check("llc", true)}
	if cc := check("cc", true); cc.Available {
		statuses = append(statuses, cc)
	} else {
		statuses = append(statuses, check("clang", true))
	}
	return statuses
}

func (t *toolchain) run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}

// assemble runs the optional IR optimizer (best-effort) and then the
// required static compiler, producing module.o.
func (t *toolchain) assemble(scratch *scratchDir, llPath string) (string, error) {
	input := llPath
	if t.opt != "" {
		optPath := scratch.join("module.opt.ll")
		if err := t.run(t.opt, "-O2", "-S", input, "-o", optPath); err == nil {
			input = optPath
		}
		// a failing optimizer pass degrades gracefully (spec §4.7): fall
		// through using the unoptimized IR rather than aborting.
	}
	objPath := scratch.join("module.o")
	if err := t.run(t.llc, "-filetype=obj", "-relocation-model=pic", input, "-o", objPath); err != nil {
		return "", err
	}
	return objPath, nil
}

// compileShim compiles the generated C shim to an object file,
// position-independent per spec §6 ("Shared library: ... position-
// independent"). classpath is forwarded as an include search path for
// targets that resolve host headers through it.
func (t *toolchain) compileShim(scratch *scratchDir, shimPath, classpath string) (string, error) {
	objPath := scratch.join("shim.o")
	args := []string{"-c", "-fPIC", shimPath, "-o", objPath}
	if classpath != "" {
		args = append(args, "-I", classpath)
	}
	if err := t.run(t.cc, args...); err != nil {
		return "", err
	}
	return objPath, nil
}

// link invokes the linker via the C compiler (spec §6), producing a
// position-independent shared library and adding -l<name> for every
// FFI-declared library (spec §6's "Linker flags additionally include
// -l<name> for every library named in an FFI annotation").
func (t *toolchain) link(outPath string, objPaths []string, ffiLibs []string) error {
	args := []string{"-shared", "-fPIC", "-o", outPath}
	args = append(args, objPaths...)
	for _, lib := range ffiLibs {
		args = append(args, "-l"+lib)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil && filepath.Dir(outPath) != "." {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return t.run(t.cc, args...)
}
