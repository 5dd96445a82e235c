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

// Package driver runs the per-compilation-unit state machine (spec
// §4.7: "LOAD_SIGNATURES -> BUILD_TYPED_AST -> INFER -> BUILD_HIR ->
// OPTIMIZE -> EMIT_IR -> EMIT_C_SHIM -> ASSEMBLE -> LINK -> DONE") and
// owns the scratch directory, external-tool invocation, and persisted
// dependency-graph state around it. It never parses source itself:
// spec §1 places the source-language parser out of scope ("consumed as
// an external library producing a concrete syntax tree"), so Compile
// accepts an already-built *ast.Program the way internal/ast's package
// comment describes — the same boundary golang.org/x/tools/go/ssa
// draws against go/parser.
package driver

import (
	"fmt"
	"io"

	"github.com/i2y/konpeito/internal/ast"
	"github.com/i2y/konpeito/internal/cshim"
	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/hir"
	"github.com/i2y/konpeito/internal/infer"
	"github.com/i2y/konpeito/internal/llvmgen"
	"github.com/i2y/konpeito/internal/optimizer"
	"github.com/i2y/konpeito/internal/sig"
	"github.com/i2y/konpeito/internal/typedast"
)

// Target names the host runtime the shim is generated against (CLI
// surface per spec §6: "build --target <cruby|jvm> ...").
type Target string

const (
	TargetCRuby Target = "cruby"
	TargetJVM   Target = "jvm"
)

// Options bind the CLI's flags (spec §6) to driver behavior; the
// standard flag package in cmd/konpeito populates these directly onto
// struct fields, the way storage/settings.go exposes tunables as
// package vars rather than through a config-object builder.
type Options struct {
	Target     Target
	Classpath  string
	RBSPaths   []string
	Output     string
	ModuleName string
	Run        bool
	Profile    bool

	// KeepIntermediates retains the scratch directory's .ll/.o/.c
	// artifacts instead of removing them on success (spec §4.7: "cleaned
	// unless debug retention is requested").
	KeepIntermediates bool
	// CompressIntermediates lz4-compresses retained artifacts in place
	// (the CLI's --compress-intermediates flag, which also sets
	// KeepIntermediates).
	CompressIntermediates bool

	// DepGraphPath persists the incremental-build dependency graph
	// (spec §6). Empty disables persistence.
	DepGraphPath string

	// InputPath is the primary source file, recorded for dependency-
	// graph edges and diagnostics; require_relative resolution itself is
	// a driver concern per spec §6 but is carried out by the caller
	// supplying one *ast.Program per unit.
	InputPath string
}

// Stage names one step of the state machine, in pipeline order.
type Stage int

const (
	StageLoadSignatures Stage = iota
	StageBuildTypedAST
	StageInfer
	StageBuildHIR
	StageOptimize
	StageEmitIR
	StageEmitCShim
	StageAssemble
	StageLink
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageLoadSignatures:
		return "LOAD_SIGNATURES"
	case StageBuildTypedAST:
		return "BUILD_TYPED_AST"
	case StageInfer:
		return "INFER"
	case StageBuildHIR:
		return "BUILD_HIR"
	case StageOptimize:
		return "OPTIMIZE"
	case StageEmitIR:
		return "EMIT_IR"
	case StageEmitCShim:
		return "EMIT_C_SHIM"
	case StageAssemble:
		return "ASSEMBLE"
	case StageLink:
		return "LINK"
	case StageDone:
		return "DONE"
	}
	return "?"
}

// Result is what a successful Compile produced.
type Result struct {
	OutputPath  string // the emitted shared library
	ProfilePath string // "" unless Options.Profile
	Stage       Stage  // always StageDone on success
	Diagnostics []diag.Diagnostic
}

// StageError reports which state the machine was in when a fatal
// diagnostic terminated the compilation (spec §4.7: "any fatal error
// terminates with a diagnostic").
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Compile runs the full state machine for one compilation unit. prog is
// the already-parsed primary input; opts.RBSPaths names the signature
// files to load for it.
//
// Recovery isolates one compilation's fatal error the same way
// scm/scheduler.go's runTask recovers around a single task: a panic
// anywhere in the pipeline is converted into a StageError rather than
// taking down a host process that may be compiling other units.
func Compile(prog *ast.Program, opts Options) (res *Result, err error) {
	d := diag.New()
	stage := StageLoadSignatures
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
			res = nil
		}
	}()

	if opts.Target != TargetCRuby && opts.Target != TargetJVM {
		return nil, &StageError{Stage: stage, Err: fmt.Errorf("unknown target %q", opts.Target)}
	}
	if opts.Target == TargetJVM {
		return nil, &StageError{Stage: stage, Err: fmt.Errorf("target %q is accepted but not yet implemented: the C shim generator only emits the CRuby C-API ABI", opts.Target)}
	}

	scratch, err := newScratchDir(opts.ModuleName)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	defer scratch.cleanup(opts.KeepIntermediates, opts.CompressIntermediates)

	reg, err := sig.LoadFiles(opts.RBSPaths, d)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	stage = StageBuildTypedAST
	info := typedast.NewBuilder(reg, d).Build(prog)

	stage = StageInfer
	if err := infer.Run(prog, info, d); err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	stage = StageBuildHIR
	hirProg := hir.NewBuilder(reg, info, d).Build(prog)
	if d.HasFatal() {
		return nil, &StageError{Stage: stage, Err: fmt.Errorf("malformed HIR, see diagnostics")}
	}

	stage = StageOptimize
	optimizer.Pipeline(hirProg)

	stage = StageEmitIR
	emitter := llvmgen.New(opts.ModuleName)
	if err := emitter.EmitProgram(hirProg); err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	llPath, err := scratch.writeText("module.ll", emitter.Module.String())
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	stage = StageEmitCShim
	shimPath, err := scratch.writeGenerated("shim.c", func(w io.Writer) error {
		return cshim.New(hirProg, opts.ModuleName).Generate(w)
	})
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	stage = StageAssemble
	tools, err := discoverTools()
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	objPath, err := tools.assemble(scratch, llPath)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	shimObjPath, err := tools.compileShim(scratch, shimPath, opts.Classpath)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	stage = StageLink
	libs := reg.FFILibraries()
	outPath := opts.Output
	if outPath == "" {
		outPath = opts.ModuleName + libSuffix()
	}
	if err := tools.link(outPath, []string{objPath, shimObjPath}, libs); err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	if opts.DepGraphPath != "" {
		if err := recordDependencies(opts); err != nil {
			return nil, &StageError{Stage: StageDone, Err: err}
		}
	}

	stage = StageDone
	result := &Result{OutputPath: outPath, Stage: StageDone, Diagnostics: d.Items()}
	if opts.Profile {
		result.ProfilePath = opts.ModuleName + "_profile.json"
	}
	return result, nil
}
