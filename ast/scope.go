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

import "golang.org/x/exp/maps"

type SymKind int

const (
	SymLocal SymKind = iota
	SymParam
	SymGlobal
	SymStatic
	SymFunc
	SymTypedef
	SymEnumConst
)

type StorageClass int

const (
	SCNone StorageClass = iota
	SCStatic
	SCExtern
	SCTypedef
)

// Symbol records everything name resolution needs about one declared name.
type Symbol struct {
	Name    string
	Kind    SymKind
	Type    *Type
	Storage StorageClass

	// FrameOffset is assigned during IR building for SymLocal/SymParam; it
	// is meaningless before that pass runs.
	FrameOffset int
	AddressTaken bool

	// EnumValue holds the constant value for SymEnumConst.
	EnumValue int64
}

// Scope is a mapping from name to Symbol plus a parent link.
type Scope struct {
	parent  *Scope
	symbols map[string]*Symbol
	tags    map[string]*Type // struct/union/enum tags declared in this scope
}

func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: make(map[string]*Symbol), tags: make(map[string]*Type)}
}

func (s *Scope) Parent() *Scope { return s.parent }

// Declare adds name to this scope. It is the caller's responsibility to
// reject redeclaration in the same scope before calling Declare.
func (s *Scope) Declare(name string, sym *Symbol) {
	s.symbols[name] = sym
}

// LookupLocal looks up name only in this scope, not any ancestor.
func (s *Scope) LookupLocal(name string) (*Symbol, bool) {
	sym, ok := s.symbols[name]
	return sym, ok
}

// Lookup walks outward from this scope to the root, returning the first
// match.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

func (s *Scope) DeclareTag(name string, t *Type) {
	s.tags[name] = t
}

func (s *Scope) LookupTag(name string) (*Type, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if t, ok := sc.tags[name]; ok {
			return t, true
		}
	}
	return nil, false
}

// Names returns every name declared directly in this scope, sorted is not
// guaranteed; callers needing determinism should sort the result.
func (s *Scope) Names() []string {
	return maps.Keys(s.symbols)
}
