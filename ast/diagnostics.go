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

// CompileError is a fatal, source-pointed diagnostic. All
// lex/parse/type/semantic errors in this package are reported by panicking
// with one of these; the driver recovers exactly once at the top level and
// prints FILE:LINE:COL: message followed by the source line with a caret.
type CompileError struct {
	Pos     Pos
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %s", e.Pos, e.Message)
}

func errorAt(pos Pos, format string, args ...interface{}) {
	panic(&CompileError{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// syntaxError panics a position-less CompileError, kept for call sites that
// don't have precise source coordinates at hand.
func syntaxError(format string, args ...interface{}) {
	panic(&CompileError{Message: fmt.Sprintf(format, args...)})
}
