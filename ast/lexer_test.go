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

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	lex := NewLexer("test.c", strings.NewReader(src))
	var toks []Token
	for {
		tok := lex.NextToken()
		toks = append(toks, tok)
		if tok.Kind == TK_EOF {
			break
		}
	}
	return toks
}

func TestLexerKeywordsAndIdents(t *testing.T) {
	toks := lexAll(t, "int main(void) { return 0; }")
	require.NotEmpty(t, toks)
	assert.Equal(t, KW_INT, toks[0].Kind)
	assert.Equal(t, TK_IDENT, toks[1].Kind)
	assert.Equal(t, "main", toks[1].Text)
	assert.Equal(t, TK_EOF, toks[len(toks)-1].Kind)
}

func TestLexerIntegerLiteral(t *testing.T) {
	toks := lexAll(t, "42")
	require.True(t, len(toks) >= 1)
	assert.Equal(t, LIT_INT, toks[0].Kind)
	assert.EqualValues(t, 42, toks[0].IVal)
}

func TestLexerUnterminatedStringIsFatal(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic for an unterminated string literal")
		_, ok := r.(*CompileError)
		assert.True(t, ok, "expected *CompileError, got %T", r)
	}()
	lexAll(t, `char *s = "unterminated;`)
}
