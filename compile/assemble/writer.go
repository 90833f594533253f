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

import (
	"fmt"

	"xcc/elf"
)

// WriteObject serializes obj into an ET_REL ELF64 file, the format the
// driver's -c flow writes straight to disk and link.Link reads back in
// for separate compilation, using elf/elf.go's Ehdr/Shdr/Sym/Rela
// shapes. The section layout (NULL, .text, .data, .rodata, .bss, one
// .rela.* per section that needed relocations, .symtab, .strtab,
// .shstrtab) follows the conventional System V REL object shape.
func WriteObject(obj *Object) ([]byte, error) {
	machine, err := machineFor(obj.Target)
	if err != nil {
		return nil, err
	}

	shstrtab := elf.NewStrTab()
	strtab := elf.NewStrTab()

	type section struct {
		name string
		shdr elf.Shdr
		data []byte
	}
	var secs []section
	secIndex := map[string]int{"": 0} // SHN_UNDEF

	for _, name := range obj.Order {
		s := obj.Sections[name]
		shdr := elf.Shdr{
			Type:      elf.SHT_PROGBITS,
			Flags:     s.Flags,
			AddrAlign: 8,
		}
		data := s.Data
		if s.Zero > 0 && len(s.Data) == 0 {
			shdr.Type = elf.SHT_NOBITS
			shdr.Size = uint64(s.Zero)
			data = nil
		} else {
			shdr.Size = uint64(len(data))
		}
		secIndex[name] = len(secs) + 1 // 1-based, NULL section occupies 0
		secs = append(secs, section{name: name, shdr: shdr, data: data})
	}

	// Group relocations by the section they apply to, matching
	// AssembleFunc's own convention of stamping Reloc.Section with the
	// name of the section the referring instruction lives in.
	relocsBySection := map[string][]Reloc{}
	for _, r := range obj.Relocs {
		relocsBySection[r.Section] = append(relocsBySection[r.Section], r)
	}

	// Symbol table: index 0 is the mandatory null symbol, locals next,
	// globals after (STB_LOCAL < STB_GLOBAL is a hard ELF requirement,
	// sh_info on .symtab names the first global's index).
	type symEnt struct {
		elf.Sym
		name string
	}
	var locals, globals []symEnt
	symIndex := map[string]int{}
	for _, s := range obj.Symbols {
		shndx := uint16(elf.SHN_UNDEF)
		if idx, ok := secIndex[s.Section]; ok && s.Section != "" {
			shndx = uint16(idx)
		}
		typ := byte(elf.STT_NOTYPE)
		if s.Func {
			typ = elf.STT_FUNC
		} else if s.Section != "" {
			typ = elf.STT_OBJECT
		}
		bind := byte(elf.STB_LOCAL)
		if s.Global || s.Section == "" {
			bind = elf.STB_GLOBAL
		}
		ent := symEnt{
			Sym: elf.Sym{
				Name:  strtab.Add(s.Name),
				Info:  elf.STInfo(bind, typ),
				Shndx: shndx,
				Value: uint64(s.Value),
				Size:  uint64(s.Size),
			},
			name: s.Name,
		}
		if bind == elf.STB_LOCAL {
			locals = append(locals, ent)
		} else {
			globals = append(globals, ent)
		}
	}
	allSyms := append([]symEnt{{}}, locals...) // index 0: null symbol
	allSyms = append(allSyms, globals...)
	for i, e := range allSyms {
		if i == 0 {
			continue
		}
		symIndex[e.name] = i
	}
	firstGlobal := 1 + len(locals)

	var symtabData []byte
	for _, e := range allSyms {
		symtabData = append(symtabData, e.Sym.Marshal()...)
	}

	// Build one .rela.<section> per section with pending relocations.
	type relaSec struct {
		name   string
		target string
		data   []byte
	}
	var relas []relaSec
	for _, name := range obj.Order {
		rs, ok := relocsBySection[name]
		if !ok {
			continue
		}
		var data []byte
		for _, r := range rs {
			symIdx, ok := symIndex[r.Symbol]
			if !ok {
				return nil, fmt.Errorf("assemble: relocation against unknown symbol %q", r.Symbol)
			}
			rela := elf.Rela{
				Offset: uint64(r.Offset),
				Info:   elf.ELF64RInfo(uint32(symIdx), r.Type),
				Addend: r.Addend,
			}
			data = append(data, rela.Marshal()...)
		}
		relas = append(relas, relaSec{name: ".rela" + name, target: name, data: data})
	}

	// Lay out file offsets: header, then every PROGBITS section's bytes,
	// then .rela.* sections, then .symtab, .strtab, .shstrtab, then the
	// section header table itself.
	offset := uint64(elf.EhdrSize)
	for i := range secs {
		if secs[i].shdr.Type == elf.SHT_NOBITS {
			secs[i].shdr.Offset = offset
			continue
		}
		secs[i].shdr.Offset = offset
		offset += uint64(len(secs[i].data))
	}
	relaOffsets := make([]uint64, len(relas))
	for i, r := range relas {
		relaOffsets[i] = offset
		offset += uint64(len(r.data))
	}
	symtabOffset := offset
	offset += uint64(len(symtabData))
	strtabOffset := offset
	offset += uint64(len(strtab.Bytes()))

	// Section header string table needs every name registered before
	// serializing, including the synthetic .symtab/.strtab/.shstrtab.
	secNameIdx := make([]uint32, len(secs))
	for i, s := range secs {
		secNameIdx[i] = shstrtab.Add(s.name)
	}
	relaNameIdx := make([]uint32, len(relas))
	for i, r := range relas {
		relaNameIdx[i] = shstrtab.Add(r.name)
	}
	symtabNameIdx := shstrtab.Add(".symtab")
	strtabNameIdx := shstrtab.Add(".strtab")
	shstrtabNameIdx := shstrtab.Add(".shstrtab")

	shstrtabOffset := offset
	offset += uint64(len(shstrtab.Bytes()))

	shoff := offset

	// Section header order: NULL, data sections, rela sections,
	// .symtab, .strtab, .shstrtab.
	shnum := 1 + len(secs) + len(relas) + 3
	symtabIdx := uint32(1 + len(secs) + len(relas))
	strtabIdx := symtabIdx + 1
	shstrtabIdx := strtabIdx + 1

	var shdrs []elf.Shdr
	shdrs = append(shdrs, elf.Shdr{}) // NULL
	for i, s := range secs {
		hdr := s.shdr
		hdr.Name = secNameIdx[i]
		shdrs = append(shdrs, hdr)
	}
	for i, r := range relas {
		shdrs = append(shdrs, elf.Shdr{
			Name:      relaNameIdx[i],
			Type:      elf.SHT_RELA,
			Flags:     elf.SHF_INFO_LINK,
			Offset:    relaOffsets[i],
			Size:      uint64(len(r.data)),
			Link:      symtabIdx,
			Info:      uint32(secIndex[r.target]),
			AddrAlign: 8,
			EntSize:   elf.RelaSize,
		})
	}
	shdrs = append(shdrs, elf.Shdr{
		Name:      symtabNameIdx,
		Type:      elf.SHT_SYMTAB,
		Offset:    symtabOffset,
		Size:      uint64(len(symtabData)),
		Link:      strtabIdx,
		Info:      uint32(firstGlobal),
		AddrAlign: 8,
		EntSize:   elf.SymSize,
	})
	shdrs = append(shdrs, elf.Shdr{
		Name:      strtabNameIdx,
		Type:      elf.SHT_STRTAB,
		Offset:    strtabOffset,
		Size:      uint64(len(strtab.Bytes())),
		AddrAlign: 1,
	})
	shdrs = append(shdrs, elf.Shdr{
		Name:      shstrtabNameIdx,
		Type:      elf.SHT_STRTAB,
		Offset:    shstrtabOffset,
		Size:      uint64(len(shstrtab.Bytes())),
		AddrAlign: 1,
	})

	ehdr := elf.NewEhdr(machine, elf.ET_REL)
	ehdr.Shoff = shoff
	ehdr.Shnum = uint16(shnum)
	ehdr.Shstrndx = uint16(shstrtabIdx)
	ehdr.Shentsize = elf.ShdrSize

	var out []byte
	out = append(out, ehdr.Marshal()...)
	for _, s := range secs {
		if s.shdr.Type == elf.SHT_NOBITS {
			continue
		}
		out = append(out, s.data...)
	}
	for _, r := range relas {
		out = append(out, r.data...)
	}
	out = append(out, symtabData...)
	out = append(out, strtab.Bytes()...)
	out = append(out, shstrtab.Bytes()...)
	for _, h := range shdrs {
		out = append(out, h.Marshal()...)
	}
	return out, nil
}

func machineFor(target string) (uint16, error) {
	switch target {
	case "x86_64":
		return elf.EM_X86_64, nil
	case "arm64":
		return elf.EM_AARCH64, nil
	case "riscv64":
		return elf.EM_RISCV, nil
	}
	return 0, fmt.Errorf("assemble: unknown target %q", target)
}
