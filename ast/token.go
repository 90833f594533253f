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

import "fmt"

// TokenKind enumerates every lexical category the preprocessor can hand the
// parser: keywords, identifiers, literals and punctuators.
type TokenKind int

const (
	TK_INVALID TokenKind = iota
	TK_EOF

	TK_IDENT
	LIT_INT
	LIT_FLOAT
	LIT_CHAR
	LIT_STR

	// keywords
	KW_INT
	KW_CHAR
	KW_SHORT
	KW_LONG
	KW_SIGNED
	KW_UNSIGNED
	KW_VOID
	KW_FLOAT
	KW_DOUBLE
	KW_STRUCT
	KW_UNION
	KW_ENUM
	KW_TYPEDEF
	KW_STATIC
	KW_EXTERN
	KW_CONST
	KW_SIZEOF
	KW_IF
	KW_ELSE
	KW_WHILE
	KW_DO
	KW_FOR
	KW_SWITCH
	KW_CASE
	KW_DEFAULT
	KW_BREAK
	KW_CONTINUE
	KW_RETURN
	KW_GOTO

	// punctuators
	TK_LPAREN
	TK_RPAREN
	TK_LBRACE
	TK_RBRACE
	TK_LBRACKET
	TK_RBRACKET
	TK_COMMA
	TK_SEMICOLON
	TK_COLON
	TK_DOT
	TK_ARROW
	TK_QUESTION
	TK_ELLIPSIS

	TK_PLUS
	TK_MINUS
	TK_STAR
	TK_SLASH
	TK_PERCENT
	TK_AMP
	TK_PIPE
	TK_CARET
	TK_TILDE
	TK_BANG
	TK_LSHIFT
	TK_RSHIFT
	TK_INC
	TK_DEC

	TK_LOGAND
	TK_LOGOR
	TK_EQ
	TK_NE
	TK_LT
	TK_GT
	TK_LE
	TK_GE

	TK_ASSIGN
	TK_PLUS_ASSIGN
	TK_MINUS_ASSIGN
	TK_STAR_ASSIGN
	TK_SLASH_ASSIGN
	TK_PERCENT_ASSIGN
	TK_AMP_ASSIGN
	TK_PIPE_ASSIGN
	TK_CARET_ASSIGN
	TK_LSHIFT_ASSIGN
	TK_RSHIFT_ASSIGN

	// preprocessor-only
	TK_HASH
	TK_HASHHASH
	TK_NEWLINE
)

var Keywords = map[string]TokenKind{
	"int":      KW_INT,
	"char":     KW_CHAR,
	"short":    KW_SHORT,
	"long":     KW_LONG,
	"signed":   KW_SIGNED,
	"unsigned": KW_UNSIGNED,
	"void":     KW_VOID,
	"float":    KW_FLOAT,
	"double":   KW_DOUBLE,
	"struct":   KW_STRUCT,
	"union":    KW_UNION,
	"enum":     KW_ENUM,
	"typedef":  KW_TYPEDEF,
	"static":   KW_STATIC,
	"extern":   KW_EXTERN,
	"const":    KW_CONST,
	"sizeof":   KW_SIZEOF,
	"if":       KW_IF,
	"else":     KW_ELSE,
	"while":    KW_WHILE,
	"do":       KW_DO,
	"for":      KW_FOR,
	"switch":   KW_SWITCH,
	"case":     KW_CASE,
	"default":  KW_DEFAULT,
	"break":    KW_BREAK,
	"continue": KW_CONTINUE,
	"return":   KW_RETURN,
	"goto":     KW_GOTO,
}

// IsTypeKeyword reports whether tk can start a declaration-specifier.
func (tk TokenKind) IsTypeKeyword() bool {
	switch tk {
	case KW_INT, KW_CHAR, KW_SHORT, KW_LONG, KW_SIGNED, KW_UNSIGNED,
		KW_VOID, KW_FLOAT, KW_DOUBLE, KW_STRUCT, KW_UNION, KW_ENUM:
		return true
	}
	return false
}

func (tk TokenKind) IsAssignOp() bool {
	switch tk {
	case TK_ASSIGN, TK_PLUS_ASSIGN, TK_MINUS_ASSIGN, TK_STAR_ASSIGN, TK_SLASH_ASSIGN,
		TK_PERCENT_ASSIGN, TK_AMP_ASSIGN, TK_PIPE_ASSIGN, TK_CARET_ASSIGN,
		TK_LSHIFT_ASSIGN, TK_RSHIFT_ASSIGN:
		return true
	}
	return false
}

func (tk TokenKind) IsRelOp() bool {
	switch tk {
	case TK_EQ, TK_NE, TK_LT, TK_GT, TK_LE, TK_GE:
		return true
	}
	return false
}

// Pos is a source location: originating file, 1-based line, 1-based column.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Token is produced by the lexer and consumed linearly by the parser, which
// may peek one token ahead.
type Token struct {
	Kind    TokenKind
	Text    string // the spelling, e.g. "123", "\"hi\"", "+="
	IVal    int64
	FVal    float64
	Pos     Pos
	Expands []string // macro-expansion trail, innermost last
}

func (t Token) String() string {
	return fmt.Sprintf("[%v %q @%v]", t.Kind, t.Text, t.Pos)
}
