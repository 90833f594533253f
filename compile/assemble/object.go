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

package assemble

import "xcc/elf"

// Reloc is a pending relocation: "at byte Offset into this Section's
// Data, patch in the address of Symbol (plus Addend) using Type's
// architecture-specific encoding." Offsets are resolved against this
// object's own symbol table during link.Link.
type Reloc struct {
	Offset  int64
	Symbol  string
	Type    uint32
	Addend  int64
	Section string // section the relocation lives in, e.g. ".text"
}

// Symbol is one entry destined for the object's ELF symbol table.
type Symbol struct {
	Name    string
	Section string // "" for an undefined/external symbol
	Value   int64  // offset into Section's Data
	Size    int64
	Global  bool
	Func    bool // STT_FUNC vs STT_OBJECT
	Common  bool // tentative definition (C's "int x;" with no initializer)
}

// Section is one named, flag-tagged byte range (".text", ".data",
// ".rodata", ".bss") accumulated while assembling every function and
// global in a translation unit.
type Section struct {
	Name  string
	Flags uint64 // SHF_* bits, mirrors elf.SHF_*
	Data  []byte
	Zero  int64 // .bss-style size with no backing Data bytes
}

// Object is one translation unit's assembled output: everything
// compile/assemble needs either to serialize straight to an ELF64 REL
// file (the -c flow) or to hand directly to link.Link in-memory (the
// single-invocation compile-and-link flow), reusing elf/elf.go's
// Ehdr/Shdr/Sym layouts for both paths.
type Object struct {
	Target  string
	Sections map[string]*Section
	Order    []string // section insertion order, kept stable for output
	Symbols  []Symbol
	Relocs   []Reloc
}

func NewObject(target string) *Object {
	return &Object{Target: target, Sections: map[string]*Section{}}
}

func (o *Object) section(name string, flags uint64) *Section {
	if s, ok := o.Sections[name]; ok {
		return s
	}
	s := &Section{Name: name, Flags: flags}
	o.Sections[name] = s
	o.Order = append(o.Order, name)
	return s
}

func (o *Object) Text() *Section    { return o.section(".text", elf.SHF_ALLOC|elf.SHF_EXECINSTR) }
func (o *Object) Data() *Section    { return o.section(".data", elf.SHF_ALLOC|elf.SHF_WRITE) }
func (o *Object) Rodata() *Section  { return o.section(".rodata", elf.SHF_ALLOC) }
func (o *Object) BSS() *Section     { return o.section(".bss", elf.SHF_ALLOC|elf.SHF_WRITE) }

func (o *Object) AddSymbol(s Symbol) { o.Symbols = append(o.Symbols, s) }

func (o *Object) AddReloc(r Reloc) { o.Relocs = append(o.Relocs, r) }
