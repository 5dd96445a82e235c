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
	"path/filepath"
	"strings"
	"unicode"

	"github.com/i2y/konpeito/internal/driver"
)

// moduleNameFor derives the Init_<module_name> symbol's module name
// from the input path's base name, sanitizing anything that isn't a
// valid C identifier character (spec §6: "exporting a single entry
// point Init_<module_name>").
func moduleNameFor(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	var b strings.Builder
	for i, r := range base {
		switch {
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "konpeito_module"
	}
	return b.String()
}

func defaultSuffix() string { return driver.LibSuffix() }
