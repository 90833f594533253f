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

import "github.com/dolthub/swiss"

// Name is an interned identifier. Equality is pointer equality on the
// returned *Name after interning: two spellings that intern equal always
// yield the same *Name. Case-sensitive, as C requires.
type Name struct {
	Text string
	Pos  Pos
}

func (n *Name) String() string { return n.Text }

// Interner is the process-wide, grow-only name table: a well-scoped
// registry with controlled lifetime rather than a package-level mutable
// global. Callers thread an explicit *Interner through the
// lexer/parser/linker.
type Interner struct {
	table *swiss.Map[string, *Name]
}

func NewInterner() *Interner {
	return &Interner{table: swiss.NewMap[string, *Name](1024)}
}

// Intern returns the canonical *Name for text, creating it on first use.
// pos records the first-seen source location for diagnostics; later
// interns of the same text keep the original position.
func (in *Interner) Intern(text string, pos Pos) *Name {
	if n, ok := in.table.Get(text); ok {
		return n
	}
	n := &Name{Text: text, Pos: pos}
	in.table.Put(text, n)
	return n
}

func (in *Interner) Len() int { return in.table.Count() }
