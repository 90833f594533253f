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

package driver

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"xcc/ast"
)

// printCompileError renders a *ast.CompileError as FILE:LINE:COL:
// message, then the offending source line, then a caret and tildes
// spanning the token.
func printCompileError(w *os.File, e *ast.CompileError) {
	fmt.Fprintf(w, "%s: %s\n", e.Pos.String(), e.Message)
	line, ok := sourceLine(e.Pos.File, e.Pos.Line)
	if !ok {
		return
	}
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, caretLine(line, e.Pos.Column))
}

// sourceLine re-reads line n (1-based) of file straight off disk; the
// lexer doesn't retain its own source buffer past tokenizing, so the
// diagnostic printer opens the file a second time rather than threading a
// copy of every byte through the compile pipeline just for error paths.
func sourceLine(file string, n int) (string, bool) {
	f, err := os.Open(file)
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i := 1; sc.Scan(); i++ {
		if i == n {
			return sc.Text(), true
		}
	}
	return "", false
}

// caretLine builds the "   ^~~~" marker under column col (1-based),
// spanning to the end of the identifier/number/operator run starting
// there, or a single caret if col is past the end of line or on
// whitespace.
func caretLine(line string, col int) string {
	if col < 1 {
		col = 1
	}
	idx := col - 1
	span := 1
	if idx < len(line) && !isSpace(line[idx]) {
		for idx+span < len(line) && isWordByte(line[idx+span]) == isWordByte(line[idx]) {
			span++
		}
	}
	var b strings.Builder
	for i := 0; i < idx && i < len(line); i++ {
		if line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('^')
	for i := 1; i < span; i++ {
		b.WriteByte('~')
	}
	return b.String()
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
