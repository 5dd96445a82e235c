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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionNormalizesDuplicatesAndSingleMember(t *testing.T) {
	u := Union(Int(), Str(), Int())
	assert.Equal(t, "Integer | String", u.String())

	single := Union(Int())
	assert.Equal(t, KindInt, single.Kind)
}

func TestUnionFlattensNestedUnions(t *testing.T) {
	inner := Union(Int(), Str())
	u := Union(inner, Bool())
	assert.Equal(t, KindUnion, u.Kind)
	assert.Len(t, u.Members, 3)
}

func TestWideningAdmitsIntegerToFloat(t *testing.T) {
	assert.True(t, WideningAdmits(Float(), Int()))
	assert.False(t, WideningAdmits(Int(), Float()))
	assert.True(t, WideningAdmits(Int(), Int()))
}

func TestWideningAdmitsUnionParamAcceptsAnyMember(t *testing.T) {
	param := Union(Int(), Str())
	assert.True(t, WideningAdmits(param, Int()))
	assert.True(t, WideningAdmits(param, Str()))
	assert.False(t, WideningAdmits(param, Bool()))
}

func TestWideningAdmitsUnionArgRequiresEveryMemberAdmitted(t *testing.T) {
	param := Float()
	arg := Union(Int(), Float())
	assert.True(t, WideningAdmits(param, arg))

	arg2 := Union(Int(), Str())
	assert.False(t, WideningAdmits(param, arg2))
}

func TestPruneFollowsBoundChain(t *testing.T) {
	tv := Fresh()
	tv.Bound = Int()
	assert.Equal(t, KindInt, Prune(tv).Kind)
}

func TestEqualComparesClassInstanceTypeArgs(t *testing.T) {
	a := ClassInstance("Box", Int())
	b := ClassInstance("Box", Int())
	c := ClassInstance("Box", Str())
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestSubstituteReplacesBoundTypeVariable(t *testing.T) {
	tv := Fresh()
	generic := ClassInstance("Box", tv)
	out := substitute(generic, map[int]*Type{tv.VarID: Str()})
	assert.Equal(t, "Box<String>", out.String())
}

func TestUnboxedIdentifiesScalarKinds(t *testing.T) {
	assert.True(t, Unboxed(Int()))
	assert.True(t, Unboxed(Float()))
	assert.False(t, Unboxed(Str()))
	assert.False(t, Unboxed(Object()))
}
