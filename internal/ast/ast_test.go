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

package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosString(t *testing.T) {
	p := Pos{File: "example.rb", Line: 3, Col: 7}
	assert.Equal(t, "example.rb:3:7", p.String())
}

// every node type embeds base, so any concrete node plugged in as a Node
// must report the position it was constructed with.
func TestNodePositionIsPromotedFromBase(t *testing.T) {
	var n Node = &IntLit{Value: 42}
	assert.Equal(t, Pos{}, n.Position())

	lit := &StringLit{Value: "hi"}
	lit.Pos = Pos{File: "a.rb", Line: 1, Col: 1}
	n = lit
	assert.Equal(t, "a.rb:1:1", n.Position().String())
}

func TestMultiAssignRestIndexMarksTheSplatTarget(t *testing.T) {
	node := &MultiAssign{
		Targets:   []Node{&Ident{Name: "a"}, &Ident{Name: "rest"}, &Ident{Name: "c"}},
		RestIndex: 1,
	}
	assert.Equal(t, "rest", node.Targets[node.RestIndex].(*Ident).Name)
}

func TestRescueClauseKeepsDeclaredClassNames(t *testing.T) {
	clause := RescueClause{ClassNames: nil}
	assert.Empty(t, clause.ClassNames)

	clause2 := RescueClause{ClassNames: []string{"IOError", "TypeError"}}
	assert.Equal(t, []string{"IOError", "TypeError"}, clause2.ClassNames)
}
