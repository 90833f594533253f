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

package ir

import (
	"fmt"

	"golang.org/x/exp/maps"
)

// StringPool deduplicates string-literal rodata across every function of
// a translation unit, handing out a stable ".LC<n>" label the Sofs
// opcode addresses and compile/assemble later emits into a .rodata
// section fragment, the conventional "dedup by content, one label per
// distinct value" idiom most assemblers use for string pooling.
type StringPool struct {
	labels map[string]string
	order  []string
}

func NewStringPool() *StringPool {
	return &StringPool{labels: map[string]string{}}
}

func (p *StringPool) Intern(value string) string {
	if l, ok := p.labels[value]; ok {
		return l
	}
	label := fmt.Sprintf(".LC%d", len(p.labels))
	p.labels[value] = label
	p.order = append(p.order, value)
	return label
}

// Entries returns every (label, value) pair in first-interned order.
func (p *StringPool) Entries() []struct{ Label, Value string } {
	out := make([]struct{ Label, Value string }, 0, len(p.order))
	for _, v := range p.order {
		out = append(out, struct{ Label, Value string }{p.labels[v], v})
	}
	return out
}

// Values returns every interned string value in no particular order, for
// tests that only need membership, using
// golang.org/x/exp/maps the way ast/scope.go already does for
// deterministic-friendly enumeration elsewhere in this module.
func (p *StringPool) Values() []string { return maps.Keys(p.labels) }
