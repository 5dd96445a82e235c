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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestModuleNameForSanitizesInput(t *testing.T) {
	cases := map[string]string{
		"vector2.rb":     "vector2",
		"./lib/my-lib.rb": "my_lib",
		"3d_shapes.rb":    "_3d_shapes",
		"../a b.rb":       "a_b",
	}
	for input, want := range cases {
		if got := moduleNameFor(input); got != want {
			t.Errorf("moduleNameFor(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDefaultSuffixIsNonEmpty(t *testing.T) {
	if defaultSuffix() == "" {
		t.Fatal("defaultSuffix returned an empty string")
	}
}

func TestParseReportsMissingFrontEndNotMissingFile(t *testing.T) {
	if _, err := Parse("does-not-exist.rb"); err == nil {
		t.Fatal("expected an error for a nonexistent input")
	}
	present := filepath.Join(t.TempDir(), "present.rb")
	if err := os.WriteFile(present, []byte("puts 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Parse(present)
	if err == nil || !strings.Contains(err.Error(), "no source-language parser") {
		t.Fatalf("expected a missing-front-end error for an existing input, got %v", err)
	}
}
