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
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
)

// scratchDir is the per-compilation working directory (spec §5: "no
// shared mutable caches other than per-process scratch directories").
// Its name embeds a uuid the way storage/fast_uuid.go mints session ids,
// so concurrent `konpeito build` invocations against the same module
// name never collide on disk.
type scratchDir struct {
	path string
}

func newScratchDir(moduleName string) (*scratchDir, error) {
	name := fmt.Sprintf("konpeito-%s-%s", moduleName, uuid.NewString())
	path := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &scratchDir{path: path}, nil
}

func (s *scratchDir) join(name string) string { return filepath.Join(s.path, name) }

func (s *scratchDir) writeText(name, contents string) (string, error) {
	path := s.join(name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// writeGenerated streams gen's output straight to disk rather than
// building the whole artifact as a string first, the way
// storage/storage-int.go emits field-by-field into an io.Writer.
func (s *scratchDir) writeGenerated(name string, gen func(io.Writer) error) (string, error) {
	path := s.join(name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()
	if err := gen(f); err != nil {
		return "", fmt.Errorf("generating %s: %w", name, err)
	}
	return path, nil
}

// cleanup removes the scratch directory on success unless debug
// retention was requested (spec §4.7/§5: "intermediate artifacts are
// cleaned unless debug retention is requested"). With retention and
// compression both requested, every retained file is lz4-compressed in
// place and the uncompressed original removed, the same way
// storage/persistence-files.go uses lz4 to shrink persisted blobs.
func (s *scratchDir) cleanup(keep, compress bool) {
	if !keep {
		os.RemoveAll(s.path)
		return
	}
	if !compress {
		return
	}
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		compressFile(s.join(e.Name()))
	}
}

func compressFile(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(path + ".lz4")
	if err != nil {
		return
	}
	zw := lz4.NewWriter(out)
	if _, err := io.Copy(zw, in); err == nil {
		if err := zw.Close(); err == nil {
			out.Close()
			os.Remove(path)
			return
		}
	}
	zw.Close()
	out.Close()
	os.Remove(path + ".lz4")
}

// libSuffix names the platform-specific shared-library extension (spec
// §6: ".so, .bundle, .dll").
func libSuffix() string { return LibSuffix() }

// LibSuffix is libSuffix exported for the CLI layer's default -o naming.
func LibSuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return ".bundle"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}
