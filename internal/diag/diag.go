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

// Package diag collects and prints compiler diagnostics. It follows the
// teacher's direct style (fmt-based, no structured logging framework):
// see scm/trace.go and storage/database.go for the same terse texture.
package diag

import (
	"fmt"
	"io"
)

// Severity orders diagnostics by user impact, mirroring spec §7's table.
type Severity int

const (
	SeverityDiagnostic Severity = iota // recoverable, e.g. missing RBS
	SeverityValidation                 // degrade with warning
	SeverityWarning
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityDiagnostic:
		return "note"
	case SeverityValidation:
		return "validation"
	case SeverityWarning:
		return "warning"
	case SeverityFatal:
		return "error"
	}
	return "?"
}

// Position is a source location; Line/Col are 1-based, zero means
// unknown (signature files and synthesized HIR nodes often lack one).
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	if p.Line == 0 {
		return p.File
	}
	if p.Col == 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Kind names the failure categories from spec §7's table, used so
// callers and tests can match on category rather than message text.
type Kind string

const (
	KindDiagnostic Kind = "diagnostic" // missing RBS, fall back untyped
	KindValidation Kind = "validation" // struct class with reference field
	KindType       Kind = "type"       // unifier conflict
	KindShape      Kind = "shape"      // non-exhaustive pattern match
	KindLowering   Kind = "lowering"   // unsupported construct
	KindTool       Kind = "tool"       // LLVM/cc/linker missing
	KindLink       Kind = "link"       // undefined symbol in shim
)

// Diagnostic is one accumulated message.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Pos      Position
	Message  string
}

func (d Diagnostic) String() string {
	if d.Pos.File == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Collector accumulates diagnostics across pipeline stages the way a
// single compilation threads one registry through the whole run (spec
// §9 "per-compilation singletons"). It is not safe for concurrent use
// across goroutines because the compiler itself is single-threaded
// (spec §5).
type Collector struct {
	items []Diagnostic
}

func New() *Collector { return &Collector{} }

func (c *Collector) Notef(pos Position, kind Kind, format string, args ...any) {
	c.add(SeverityDiagnostic, pos, kind, format, args...)
}

func (c *Collector) Warnf(pos Position, kind Kind, format string, args ...any) {
	c.add(SeverityWarning, pos, kind, format, args...)
}

func (c *Collector) Validationf(pos Position, kind Kind, format string, args ...any) {
	c.add(SeverityValidation, pos, kind, format, args...)
}

func (c *Collector) add(sev Severity, pos Position, kind Kind, format string, args ...any) {
	c.items = append(c.items, Diagnostic{Kind: kind, Severity: sev, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Fatal records a fatal diagnostic and returns it as an error so the
// call site can `return nil, c.Fatalf(...)` in one line.
func (c *Collector) Fatalf(pos Position, kind Kind, format string, args ...any) error {
	d := Diagnostic{Kind: kind, Severity: SeverityFatal, Pos: pos, Message: fmt.Sprintf(format, args...)}
	c.items = append(c.items, d)
	return fmt.Errorf("%s", d.String())
}

func (c *Collector) Items() []Diagnostic { return c.items }

func (c *Collector) HasFatal() bool {
	for _, d := range c.items {
		if d.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// Print writes every accumulated diagnostic to w, one per line, in
// accumulation order.
func (c *Collector) Print(w io.Writer) {
	for _, d := range c.items {
		fmt.Fprintln(w, d.String())
	}
}
