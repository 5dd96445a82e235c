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

package sig

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/i2y/konpeito/internal/diag"
	"github.com/i2y/konpeito/internal/types"
)

// sourceInfo tracks file/line the way scm.SourceInfo decorates tokens
// (scm/parser.go) so a malformed-signature error can point at a line.
type sourceInfo struct {
	file string
	line int
}

func (s sourceInfo) pos() diag.Position { return diag.Position{File: s.file, Line: s.line} }

// LoadFiles reads one or more signature documents from disk and merges
// them into a single Registry (spec §4.1). A malformed signature or a
// native class redeclared with a different field layout is fatal and
// aborts the whole load. An undeclared superclass name is not an error:
// it is recorded as a placeholder ClassInstance.
func LoadFiles(paths []string, d *diag.Collector) (*Registry, error) {
	r := NewRegistry(d)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, d.Fatalf(diag.Position{File: p}, diag.KindLowering, "cannot open signature file: %v", err)
		}
		err = loadOne(r, p, f, d)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Load parses a single in-memory signature document, used by tests and
// by tools that synthesize signatures on the fly.
func Load(name, body string, d *diag.Collector) (*Registry, error) {
	r := NewRegistry(d)
	if err := loadOne(r, name, strings.NewReader(body), d); err != nil {
		return nil, err
	}
	return r, nil
}

// parser walks a signature document one logical line at a time. The
// grammar is deliberately small (spec §4.1 is concerned with the
// registry's semantics, not a full RBS grammar): `class Name[< Super]`,
// `module Name`, `end`, annotation lines (`native`, `native: vtable`,
// `struct`, `ffi lib=...`), field lines (`@name: Type`), and method
// lines (`def name(params) -> Type`, optionally ending in a bracketed
// method annotation such as `[cfunc name=...]`).
type parser struct {
	file string
	d    *diag.Collector
	line int
}

func loadOne(r *Registry, file string, body io.Reader, d *diag.Collector) error {
	sc := bufio.NewScanner(body)
	p := &parser{file: file, d: d}
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return p.parse(r, lines)
}

func (p *parser) parse(r *Registry, rawLines []string) error {
	i := 0
	for i < len(rawLines) {
		p.line = i + 1
		line := strings.TrimSpace(stripComment(rawLines[i]))
		i++
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "class "):
			rest := strings.TrimSpace(line[len("class "):])
			name, super, genericNames := parseClassHead(rest)
			body, consumed := p.collectBlock(rawLines, i)
			i += consumed
			t, err := p.buildClass(r, name, super, genericNames, body)
			if err != nil {
				return err
			}
			if err := r.DeclareClass(t); err != nil {
				return err
			}
		case strings.HasPrefix(line, "module "):
			name := strings.TrimSpace(line[len("module "):])
			body, consumed := p.collectBlock(rawLines, i)
			i += consumed
			t, err := p.buildModule(body)
			if err != nil {
				return err
			}
			if err := r.DeclareModule(name, t); err != nil {
				return err
			}
		default:
			return p.d.Fatalf(sourceInfo{p.file, p.line}.pos(), diag.KindLowering,
				"malformed signature: unexpected top-level line %q", line)
		}
	}
	return nil
}

// collectBlock gathers lines until a matching "end", tracking nested
// class/module blocks (singleton-class bodies use "class << self").
func (p *parser) collectBlock(lines []string, start int) ([]string, int) {
	depth := 1
	var out []string
	i := start
	for i < len(lines) {
		raw := strings.TrimSpace(stripComment(lines[i]))
		i++
		if raw == "" {
			continue
		}
		if raw == "end" {
			depth--
			if depth == 0 {
				break
			}
			out = append(out, raw)
			continue
		}
		if strings.HasPrefix(raw, "class ") || strings.HasPrefix(raw, "module ") || strings.HasPrefix(raw, "class <<") {
			depth++
		}
		out = append(out, raw)
	}
	return out, i - start
}

func stripComment(s string) string {
	if idx := strings.Index(s, "#"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func parseClassHead(rest string) (name string, super string, generics []string) {
	if idx := strings.Index(rest, "["); idx >= 0 {
		genPart := rest[idx+1:]
		genPart = strings.TrimSuffix(strings.TrimSpace(genPart), "]")
		for _, g := range strings.Split(genPart, ",") {
			g = strings.TrimSpace(g)
			if g != "" {
				generics = append(generics, g)
			}
		}
		rest = strings.TrimSpace(rest[:idx])
	}
	if idx := strings.Index(rest, "<"); idx >= 0 {
		name = strings.TrimSpace(rest[:idx])
		super = strings.TrimSpace(rest[idx+1:])
		return
	}
	return strings.TrimSpace(rest), "", generics
}

func (p *parser) buildClass(r *Registry, name, superName string, generics []string, body []string) (*types.Type, error) {
	var anns []types.Annotation
	var fields []types.Field
	var methods []types.Method
	inSingleton := false

	for _, line := range body {
		switch {
		case line == "class << self":
			inSingleton = true
		case strings.HasPrefix(line, "native"):
			rest := strings.TrimSpace(line[len("native"):])
			if strings.HasPrefix(rest, ":") {
				anns = append(anns, types.Annotation{Name: "native"})
				anns = append(anns, types.Annotation{Name: strings.TrimSpace(rest[1:])})
			} else {
				anns = append(anns, types.Annotation{Name: "native"})
			}
		case line == "struct":
			anns = append(anns, types.Annotation{Name: "struct"})
		case strings.HasPrefix(line, "ffi "):
			anns = append(anns, types.Annotation{Name: "ffi", Value: strings.TrimSpace(line[len("ffi "):])})
		case strings.HasPrefix(line, "@"):
			f, err := p.parseField(line)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		case strings.HasPrefix(line, "def "):
			m, err := p.parseMethod(line, inSingleton)
			if err != nil {
				return nil, err
			}
			methods = append(methods, m)
		default:
			return nil, p.d.Fatalf(sourceInfo{p.file, p.line}.pos(), diag.KindLowering,
				"malformed signature: unexpected class body line %q", line)
		}
	}

	// struct classes may not contain reference fields (spec §3 invariant).
	if types.HasAnnotation(anns, "struct") {
		for _, f := range fields {
			if f.Kind == types.FieldReference {
				p.d.Validationf(sourceInfo{p.file, p.line}.pos(), diag.KindValidation,
					"struct class %q has reference field %q; degrading to reference type", name, f.Name)
				// degrade: drop the struct annotation so downstream
				// treats this as an ordinary reference-semantics class
				filtered := anns[:0]
				for _, a := range anns {
					if a.Name != "struct" {
						filtered = append(filtered, a)
					}
				}
				anns = filtered
				break
			}
		}
	}

	var super *types.Type
	if superName != "" {
		if s, ok := r.ClassType(superName); ok {
			super = s
		} else {
			// forward reference to a class defined later in this file,
			// or a known host core/exception class resolved at HIR time;
			// record a placeholder ClassInstance, not fatal here.
			super = types.ClassInstance(superName)
		}
	}

	isNative := types.HasAnnotation(anns, "native")
	if isNative || len(fields) > 0 {
		return types.NativeClass(name, super, fields, methods, anns), nil
	}
	t := types.ClassInstance(name)
	t.Methods = methods
	t.Annotations = anns
	t.Superclass = super
	return t, nil
}

func (p *parser) buildModule(body []string) (*types.Type, error) {
	var methods []types.Method
	inSingleton := false
	for _, line := range body {
		switch {
		case line == "class << self":
			inSingleton = true
		case strings.HasPrefix(line, "def "):
			m, err := p.parseMethod(line, inSingleton)
			if err != nil {
				return nil, err
			}
			methods = append(methods, m)
		default:
			return nil, p.d.Fatalf(sourceInfo{p.file, p.line}.pos(), diag.KindLowering,
				"malformed signature: unexpected module body line %q", line)
		}
	}
	t := types.ClassInstance("")
	t.Methods = methods
	return t, nil
}

func (p *parser) parseField(line string) (types.Field, error) {
	// "@x: Float" or "@data: VALUE" or "@child: Native(Vector2)" or "@ref: Ref(Vector2)"
	rest := strings.TrimPrefix(line, "@")
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return types.Field{}, p.d.Fatalf(sourceInfo{p.file, p.line}.pos(), diag.KindLowering,
			"malformed field declaration: %q", line)
	}
	name := strings.TrimSpace(parts[0])
	typeName := strings.TrimSpace(parts[1])
	switch {
	case typeName == "Int" || typeName == "Integer":
		return types.Field{Name: name, Kind: types.FieldPrimitiveInt64}, nil
	case typeName == "Float":
		return types.Field{Name: name, Kind: types.FieldPrimitiveFloat64}, nil
	case typeName == "Bool":
		return types.Field{Name: name, Kind: types.FieldPrimitiveBool}, nil
	case strings.HasPrefix(typeName, "Native(") && strings.HasSuffix(typeName, ")"):
		return types.Field{Name: name, Kind: types.FieldEmbedded, Native: typeName[len("Native(") : len(typeName)-1]}, nil
	case strings.HasPrefix(typeName, "Ref(") && strings.HasSuffix(typeName, ")"):
		return types.Field{Name: name, Kind: types.FieldReference, Native: typeName[len("Ref(") : len(typeName)-1]}, nil
	default:
		return types.Field{Name: name, Kind: types.FieldValue}, nil
	}
}

func (p *parser) parseMethod(line string, singleton bool) (types.Method, error) {
	// "def name(a: Integer, b: Float = ?) -> Integer" with optional
	// trailing annotation: "def name(...) -> T [cfunc name=rn_foo]"
	rest := strings.TrimPrefix(line, "def ")
	openParen := strings.Index(rest, "(")
	closeParen := strings.LastIndex(rest, ")")
	if openParen < 0 || closeParen < openParen {
		return types.Method{}, p.d.Fatalf(sourceInfo{p.file, p.line}.pos(), diag.KindLowering,
			"malformed method signature: %q", line)
	}
	name := strings.TrimSpace(rest[:openParen])
	paramStr := rest[openParen+1 : closeParen]
	tail := strings.TrimSpace(rest[closeParen+1:])

	var annotations []types.Annotation
	resultStr := "Unit"
	if idx := strings.Index(tail, "["); idx >= 0 && strings.HasSuffix(tail, "]") {
		annStr := tail[idx+1 : len(tail)-1]
		resultPart := strings.TrimSpace(tail[:idx])
		resultStr = strings.TrimPrefix(resultPart, "->")
		resultStr = strings.TrimSpace(resultStr)
		for _, a := range strings.Split(annStr, ",") {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			if sp := strings.IndexByte(a, ' '); sp >= 0 {
				annotations = append(annotations, types.Annotation{Name: a[:sp], Value: strings.TrimSpace(a[sp+1:])})
			} else {
				annotations = append(annotations, types.Annotation{Name: a})
			}
		}
	} else if strings.HasPrefix(tail, "->") {
		resultStr = strings.TrimSpace(tail[2:])
	}
	if resultStr == "" {
		resultStr = "Unit"
	}

	var params []types.Param
	var names []string
	if strings.TrimSpace(paramStr) != "" {
		for _, raw := range splitTopLevel(paramStr, ',') {
			param, pname, err := p.parseParam(raw)
			if err != nil {
				return types.Method{}, err
			}
			params = append(params, param)
			names = append(names, pname)
		}
	}

	result := resolveTypeName(resultStr, name)
	return types.Method{
		Name:        name,
		Params:      params,
		ParamNames:  names,
		Result:      result,
		Singleton:   singleton,
		Annotations: annotations,
	}, nil
}

// splitTopLevel splits on sep, ignoring separators nested inside
// parentheses (so `Native(Foo, Bar)` style nested generics stay whole).
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func (p *parser) parseParam(raw string) (types.Param, string, error) {
	raw = strings.TrimSpace(raw)
	kind := types.ParamNormal
	switch {
	case strings.HasPrefix(raw, "**"):
		kind = types.ParamKeywordRest
		raw = raw[2:]
	case strings.HasPrefix(raw, "*"):
		kind = types.ParamRest
		raw = raw[1:]
	case strings.HasPrefix(raw, "&"):
		kind = types.ParamBlock
		raw = raw[1:]
	}
	hasDefault := false
	if idx := strings.Index(raw, "="); idx >= 0 {
		hasDefault = true
		raw = raw[:idx]
	}
	parts := strings.SplitN(raw, ":", 2)
	name := strings.TrimSpace(parts[0])
	typeName := "Object"
	if len(parts) == 2 {
		typeName = strings.TrimSpace(parts[1])
	}
	// a normal parameter whose type text contains the word "keyword"
	// (`name: keyword Type`) is a keyword parameter; the word is removed
	// before the type name is resolved.
	if kind == types.ParamNormal && strings.HasSuffix(parts[0], "") && len(parts) == 2 && strings.Contains(raw, ":") && strings.Contains(typeName, "keyword") {
		kind = types.ParamKeyword
		typeName = strings.TrimSpace(strings.Replace(typeName, "keyword", "", 1))
	}
	return types.Param{Type: resolveTypeName(typeName, name), Kind: kind, Default: hasDefault}, name, nil
}

func resolveTypeName(name, context string) *types.Type {
	name = strings.TrimSpace(name)
	if name == "Self" {
		return types.SelfType()
	}
	switch name {
	case "Integer", "Int":
		return types.Int()
	case "Float":
		return types.Float()
	case "Bool", "Boolean":
		return types.Bool()
	case "String":
		return types.Str()
	case "Symbol":
		return types.Symbol()
	case "Array":
		return types.Arr()
	case "Hash":
		return types.Hash()
	case "Object", "":
		return types.Object()
	case "Unit", "void":
		return types.Unit()
	case "nil":
		return types.Nil()
	}
	if strings.Contains(name, "|") {
		var members []*types.Type
		for _, m := range strings.Split(name, "|") {
			members = append(members, resolveTypeName(strings.TrimSpace(m), context))
		}
		return types.Union(members...)
	}
	return types.ClassInstance(name)
}
