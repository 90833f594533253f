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

func TestParseSimpleFunction(t *testing.T) {
	src := `int main() { return 5+6*7; }`
	tu := ParseFile("test.c", strings.NewReader(src))
	require.Len(t, tu.Funcs, 1)
	assert.Equal(t, "main", tu.Funcs[0].Name)
	require.Len(t, tu.Funcs[0].Body.Stmts, 1)
	_, ok := tu.Funcs[0].Body.Stmts[0].(*ReturnStmt)
	assert.True(t, ok, "expected a single return statement")
}

func TestParseSwitchFallthrough(t *testing.T) {
	src := `int main(){int x=0;switch(1){case 1:x+=1;default:x+=10;}return x;}`
	tu := ParseFile("test.c", strings.NewReader(src))
	require.Len(t, tu.Funcs, 1)
	body := tu.Funcs[0].Body.Stmts
	require.Len(t, body, 3)
	sw, ok := body[1].(*SwitchStmt)
	require.True(t, ok, "expected a switch statement")
	assert.NotEmpty(t, sw.Body)
}

func TestParseMissingSemicolonIsFatal(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a parse error for a missing semicolon")
		_, ok := r.(*CompileError)
		assert.True(t, ok, "expected *CompileError, got %T", r)
	}()
	ParseFile("test.c", strings.NewReader("int main() { return 0 }"))
}

func TestParseStructDecl(t *testing.T) {
	src := `int main(){struct{char x;int y;}s;s.x=1;s.y=2;return s.x+s.y;}`
	tu := ParseFile("test.c", strings.NewReader(src))
	require.Len(t, tu.Funcs, 1)
	decl, ok := tu.Funcs[0].Body.Stmts[0].(*DeclStmt)
	require.True(t, ok, "expected the struct variable declaration to parse as a DeclStmt")
	require.Len(t, decl.Decls, 1)
	assert.Equal(t, "s", decl.Decls[0].Name)
}
