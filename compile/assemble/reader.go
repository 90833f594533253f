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

// ReadObject parses b (an ELF64 REL file previously produced by
// WriteObject) back into an *Object, the inverse conversion separate
// compilation needs: `cc -c a.c` writes a.o to disk, then a later
// `cc a.o b.o -o prog` invocation must read both back in and hand them
// to link.Link exactly as if they had stayed in memory. debug/elf in the
// standard library only reads ET_EXEC/ET_DYN section contents, not the
// symbol/relocation detail link.Link needs in Object form, so this
// mirrors WriteObject's own layout assumptions directly against package
// elf's Unmarshal helpers.
func ReadObject(b []byte) (*Object, error) {
	ehdr, err := elf.UnmarshalEhdr(b)
	if err != nil {
		return nil, err
	}
	if ehdr.Type != elf.ET_REL {
		return nil, fmt.Errorf("assemble: not an ET_REL object (e_type=%d)", ehdr.Type)
	}
	target, err := elf.TargetName(ehdr.Machine)
	if err != nil {
		return nil, err
	}

	shdrs := make([]*elf.Shdr, ehdr.Shnum)
	for i := 0; i < int(ehdr.Shnum); i++ {
		off := int(ehdr.Shoff) + i*elf.ShdrSize
		if off+elf.ShdrSize > len(b) {
			return nil, fmt.Errorf("assemble: truncated section header table")
		}
		sh, err := elf.UnmarshalShdr(b[off : off+elf.ShdrSize])
		if err != nil {
			return nil, err
		}
		shdrs[i] = sh
	}
	if int(ehdr.Shstrndx) >= len(shdrs) {
		return nil, fmt.Errorf("assemble: bad shstrndx")
	}
	shstrtab := sectionBytes(b, shdrs[ehdr.Shstrndx])

	obj := NewObject(target)

	// First pass: instantiate every PROGBITS/NOBITS section by name so
	// later symbol/relocation references can look sections up by index.
	secNameByIndex := make([]string, len(shdrs))
	for i, sh := range shdrs {
		name := elf.StrAt(shstrtab, sh.Name)
		secNameByIndex[i] = name
		switch sh.Type {
		case elf.SHT_PROGBITS:
			s := obj.section(name, sh.Flags)
			s.Data = append([]byte(nil), sectionBytes(b, sh)...)
		case elf.SHT_NOBITS:
			s := obj.section(name, sh.Flags)
			s.Zero = int64(sh.Size)
		}
	}

	var symtabShdr, strtabShdr *elf.Shdr
	for i, sh := range shdrs {
		if sh.Type == elf.SHT_SYMTAB {
			symtabShdr = shdrs[i]
			if int(sh.Link) < len(shdrs) {
				strtabShdr = shdrs[sh.Link]
			}
		}
	}
	if symtabShdr == nil || strtabShdr == nil {
		return nil, fmt.Errorf("assemble: object has no symbol table")
	}
	strtab := sectionBytes(b, strtabShdr)

	symData := sectionBytes(b, symtabShdr)
	numSyms := len(symData) / elf.SymSize
	names := make([]string, numSyms)
	for i := 0; i < numSyms; i++ {
		sym, err := elf.UnmarshalSym(symData[i*elf.SymSize : (i+1)*elf.SymSize])
		if err != nil {
			return nil, err
		}
		name := elf.StrAt(strtab, sym.Name)
		names[i] = name
		if i == 0 {
			continue // mandatory null symbol
		}
		section := ""
		if int(sym.Shndx) > 0 && int(sym.Shndx) < len(secNameByIndex) {
			section = secNameByIndex[sym.Shndx]
		}
		obj.AddSymbol(Symbol{
			Name:    name,
			Section: section,
			Value:   int64(sym.Value),
			Size:    int64(sym.Size),
			Global:  elf.STBind(sym.Info) == elf.STB_GLOBAL,
			Func:    elf.STType(sym.Info) == elf.STT_FUNC,
		})
	}

	for i, sh := range shdrs {
		if sh.Type != elf.SHT_RELA {
			continue
		}
		target := secNameByIndex[sh.Info]
		data := sectionBytes(b, shdrs[i])
		for off := 0; off+elf.RelaSize <= len(data); off += elf.RelaSize {
			rela, err := elf.UnmarshalRela(data[off : off+elf.RelaSize])
			if err != nil {
				return nil, err
			}
			symIdx := elf.ELF64RSym(rela.Info)
			if int(symIdx) >= len(names) {
				return nil, fmt.Errorf("assemble: relocation references out-of-range symbol %d", symIdx)
			}
			obj.AddReloc(Reloc{
				Offset:  int64(rela.Offset),
				Symbol:  names[symIdx],
				Type:    elf.ELF64RType(rela.Info),
				Addend:  rela.Addend,
				Section: target,
			})
		}
	}

	return obj, nil
}

func sectionBytes(file []byte, sh *elf.Shdr) []byte {
	if sh.Type == elf.SHT_NOBITS {
		return nil
	}
	start := int(sh.Offset)
	end := start + int(sh.Size)
	if start < 0 || end > len(file) || start > end {
		return nil
	}
	return file[start:end]
}
