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

package depgraph

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"
)

func TestAddDependencyPopulatesBothDirections(t *testing.T) {
	g := New()
	g.AddDependency("/src/main.rb", "/src/lib.rb")
	g.AddDependency("/src/main.rb", "/sig/lib.rbs")

	if got := g.Dependencies("/src/main.rb"); !reflect.DeepEqual(got, []string{"/sig/lib.rbs", "/src/lib.rb"}) {
		t.Fatalf("Dependencies = %v", got)
	}
	if got := g.Dependents("/src/lib.rb"); !reflect.DeepEqual(got, []string{"/src/main.rb"}) {
		t.Fatalf("Dependents = %v", got)
	}
}

func TestInvalidatePropagatesTransitively(t *testing.T) {
	g := New()
	g.AddDependency("/src/a.rb", "/src/b.rb")
	g.AddDependency("/src/b.rb", "/src/c.rb")

	affected := g.Invalidate("/src/c.rb")
	want := []string{"/src/a.rb", "/src/b.rb", "/src/c.rb"}
	if !reflect.DeepEqual(affected, want) {
		t.Fatalf("Invalidate = %v, want %v", affected, want)
	}
	if deps := g.Dependencies("/src/b.rb"); len(deps) != 0 {
		t.Fatalf("expected b's dependency on c to be gone, got %v", deps)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	g := New()
	g.AddDependency("/src/main.rb", "/src/lib.rb")
	g.AddDependency("/src/main.rb", "/sig/lib.rbs")
	g.AddDependency("/src/other.rb", "/src/lib.rb")

	var buf bytes.Buffer
	if err := g.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	g2 := New()
	if err := g2.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got := g2.Dependencies("/src/main.rb"); !reflect.DeepEqual(got, []string{"/sig/lib.rbs", "/src/lib.rb"}) {
		t.Fatalf("round-tripped Dependencies = %v", got)
	}
	if got := g2.Dependents("/src/lib.rb"); !reflect.DeepEqual(got, []string{"/src/main.rb", "/src/other.rb"}) {
		t.Fatalf("round-tripped Dependents = %v", got)
	}
}

func TestSaveFileLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depgraph.json")

	g := New()
	g.AddDependency("/src/main.rb", "/src/lib.rb")
	if err := g.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	g2, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := g2.Dependencies("/src/main.rb"); !reflect.DeepEqual(got, []string{"/src/lib.rb"}) {
		t.Fatalf("Dependencies after reload = %v", got)
	}
}

func TestLoadFileMissingIsEmptyNotError(t *testing.T) {
	g, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFile on missing path returned error: %v", err)
	}
	if files := g.AllFiles(); len(files) != 0 {
		t.Fatalf("expected empty graph, got %v", files)
	}
}
