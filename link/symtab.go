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

// Package link merges one or more compile/assemble.Objects into a single
// ET_EXEC ELF64 binary: section concatenation, global symbol resolution,
// load-address assignment, relocation application, entry-point lookup.
// This is the separate-compilation counterpart of compile/assemble:
// `-c` and multi-object linking require resolving references across
// translation units, which a single in-process compile never has to do.
package link

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// resolvedSymbol is where a global symbol's bytes finally ended up: which
// merged output section, and the byte value (offset within that merged
// section; Link adds the section's load address when it applies
// relocations and resolves the entry point).
type resolvedSymbol struct {
	section string
	value   int64
	size    int64
	defined bool
	global  bool
	common  bool // tentative definition, still open to a merge or a real override
}

// symtab is the per-Link, grow-only map from symbol name to its
// resolved definition, built while objects are merged one at a time
// (earlier objects may only forward-declare a symbol that a later object
// defines, so resolution happens in two passes: merge, then relocate).
// Uses the same swiss.Map the front end's Interner does, the natural
// choice for a large, append-mostly string-keyed table.
type symtab struct {
	table *swiss.Map[string, *resolvedSymbol]
}

func newSymtab() *symtab {
	return &symtab{table: swiss.NewMap[string, *resolvedSymbol](1024)}
}

// define records name's definition. ast/check.go only ever sees one
// translation unit at a time, so it cannot reject two files that both
// define the same externally-visible symbol (a "multiple definition"
// linker error); that check has to live here, the one place that sees
// every object at once. Restricted to global (non-static)
// symbols: two TUs' file-scope statics sharing a spelling are a distinct,
// smaller gap this symbol table does not yet close (see DESIGN.md).
//
// common marks a tentative definition (C's "int x;" with no
// initializer). Two tentative definitions of the same name merge,
// keeping the larger size and its backing storage, instead of
// conflicting; a real definition always wins over a tentative one.
func (t *symtab) define(name, section string, value, size int64, global, common bool) error {
	if name == "" {
		return nil
	}
	existing, ok := t.table.Get(name)
	if !ok || !existing.defined {
		t.table.Put(name, &resolvedSymbol{section: section, value: value, size: size, defined: true, global: global, common: common})
		return nil
	}
	switch {
	case existing.common && common:
		if size > existing.size {
			existing.section, existing.value, existing.size = section, value, size
		}
		return nil
	case existing.common && !common:
		existing.section, existing.value, existing.size, existing.common = section, value, size, false
		return nil
	case !existing.common && common:
		return nil // already strongly defined; the tentative definition adds nothing
	default:
		if existing.global && global {
			return fmt.Errorf("link: multiple definition of %q", name)
		}
		return nil // first definition wins among non-conflicting (static) duplicates
	}
}

func (t *symtab) declare(name string) {
	if name == "" {
		return
	}
	if _, ok := t.table.Get(name); ok {
		return
	}
	t.table.Put(name, &resolvedSymbol{})
}

func (t *symtab) lookup(name string) (*resolvedSymbol, bool) {
	s, ok := t.table.Get(name)
	return s, ok
}

func (t *symtab) undefined() []string {
	var out []string
	t.table.Iter(func(name string, s *resolvedSymbol) bool {
		if !s.defined {
			out = append(out, name)
		}
		return false
	})
	return out
}
