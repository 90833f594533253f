// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package ast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkSource(t *testing.T, src string) *TranslationUnit {
	t.Helper()
	tu := ParseFile("test.c", strings.NewReader(src))
	return Check(tu)
}

func TestCheckResolvesForwardCall(t *testing.T) {
	tu := checkSource(t, `int foo(int x); int main(){return foo(3);} int foo(int x){return x+1;}`)
	require.Len(t, tu.Funcs, 2)
}

func TestCheckRejectsUndeclaredIdentifier(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a semantic error for an undeclared identifier")
		_, ok := r.(*CompileError)
		assert.True(t, ok, "expected *CompileError, got %T", r)
	}()
	checkSource(t, `int main(){return undeclared_name;}`)
}

func TestCheckRejectsBreakOutsideLoop(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a semantic error for break outside a loop or switch")
	}()
	checkSource(t, `int main(){break; return 0;}`)
}

func TestCheckRejectsDuplicateCase(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a semantic error for a duplicate case value")
	}()
	checkSource(t, `int main(){switch(1){case 1: case 1: return 0;} return 1;}`)
}

func TestCheckFoldsGlobalConstantInitializer(t *testing.T) {
	tu := checkSource(t, `int g = 1+2*3;`)
	vd, ok := tu.Decls[0].(*VarDecl)
	require.True(t, ok)
	assert.Equal(t, "g", vd.Name)
	lit, ok := vd.Init.(*IntLit)
	require.True(t, ok, "initializer was not folded, got %T", vd.Init)
	assert.EqualValues(t, 7, lit.Value)
}
