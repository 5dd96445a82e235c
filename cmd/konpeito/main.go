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

// Command konpeito is the CLI surface (spec §6): `build --target
// <cruby|jvm> --classpath <cp> [--rbs <path>]... [--run] -o <output>
// <input.rb>`, plus the doctor subcommand (SPEC_FULL.md §C) that
// reports external-tool availability before a real build is attempted.
// Flags bind straight onto driver.Options fields with the standard
// flag package, the same direct style storage/settings.go uses for its
// package-level tunables (no CLI framework appears in any example
// repo's go.mod).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/i2y/konpeito/internal/driver"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "doctor":
		runDoctor()
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  konpeito build --target <cruby|jvm> [--classpath <cp>] [--rbs <path>]... [--run] [--profile] -o <output> <input.rb>
  konpeito doctor`)
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	target := fs.String("target", "cruby", "host runtime the shared library targets: cruby or jvm")
	classpath := fs.String("classpath", "", "host interpreter header/classpath search path")
	output := fs.String("o", "", "output shared library path (default: <module>"+defaultSuffix()+")")
	run := fs.Bool("run", false, "load and invoke the compiled module's entry point after a successful build")
	profile := fs.Bool("profile", false, "emit a companion <module>_profile.json at runtime finalize")
	keepIntermediates := fs.Bool("keep-intermediates", false, "retain the scratch directory's .ll/.o/.c artifacts instead of deleting them")
	compressIntermediates := fs.Bool("compress-intermediates", false, "lz4-compress retained intermediates (implies --keep-intermediates)")
	depGraph := fs.String("dep-graph", "", "path to the persisted incremental-build dependency graph")
	var rbsPaths stringList
	fs.Var(&rbsPaths, "rbs", "signature file to load (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	input := fs.Arg(0)

	moduleName := moduleNameFor(input)
	prog, err := Parse(input)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", input, err)
	}

	opts := driver.Options{
		Target:                driver.Target(*target),
		Classpath:             *classpath,
		RBSPaths:              rbsPaths,
		Output:                *output,
		ModuleName:            moduleName,
		Run:                   *run,
		Profile:               *profile,
		KeepIntermediates:     *keepIntermediates || *compressIntermediates,
		CompressIntermediates: *compressIntermediates,
		DepGraphPath:          *depGraph,
		InputPath:             input,
	}

	result, err := driver.Compile(prog, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", result.OutputPath)
	if result.ProfilePath != "" {
		fmt.Fprintf(os.Stdout, "profiling enabled: %s\n", result.ProfilePath)
	}
	if opts.Run {
		return runCompiledModule(result.OutputPath, moduleName)
	}
	return nil
}

func runDoctor() {
	ok := true
	for _, s := range driver.Doctor() {
		status := "found"
		if !s.Available {
			status = "MISSING"
			if s.Required {
				ok = false
			}
		}
		req := "optional"
		if s.Required {
			req = "required"
		}
		fmt.Printf("%-8s %-10s %-8s %s\n", s.Name, req, status, s.Path)
	}
	if !ok {
		os.Exit(1)
	}
}
