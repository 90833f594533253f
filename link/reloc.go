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

import (
	"encoding/binary"
	"fmt"

	"xcc/elf"
)

// applyReloc patches one relocation in place. off is the byte offset of
// the relocation field within sectionData; patchAddr is that same
// field's final virtual address (the "P" in the standard S+A-P/S+A
// relocation formulas).
//
// compile/assemble's AArch64 encoder never emits a real ADRP; every
// symbol-address load is a MOVZ+3xMOVK absolute-immediate sequence (see
// encode_aarch64.go's armMovImm64), because this target set never needs
// position-independent code. This linker only ever processes objects
// produced by that encoder, so R_AARCH64_ADR_PREL_PG_HI21 and
// R_AARCH64_ADD_ABS_LO12_NC are repurposed here to mean "patch the
// 16-byte MOVZ+MOVK sequence starting at this offset with the symbol's
// full absolute address", not their standard page-relative ELF meaning.
// That divergence is confined entirely to this function and is never
// observed outside this self-contained toolchain.
func applyReloc(sectionData []byte, off int64, typ uint32, symAddr, addend int64, patchAddr uint64) error {
	switch typ {
	case elf.R_X86_64_64:
		binary.LittleEndian.PutUint64(sectionData[off:off+8], uint64(symAddr+addend))
		return nil

	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
		v := symAddr + addend - int64(patchAddr)
		if v < -(1<<31) || v >= (1<<31) {
			return fmt.Errorf("PC32 relocation out of range: %d", v)
		}
		binary.LittleEndian.PutUint32(sectionData[off:off+4], uint32(int32(v)))
		return nil

	case elf.R_AARCH64_ADR_PREL_PG_HI21, elf.R_AARCH64_ADD_ABS_LO12_NC:
		patchMovImm64(sectionData, off, uint64(symAddr+addend))
		return nil

	case elf.R_AARCH64_CALL26:
		v := symAddr + addend - int64(patchAddr)
		if v%4 != 0 {
			return fmt.Errorf("CALL26 relocation target not 4-byte aligned")
		}
		imm26 := (v / 4) & 0x3ffffff
		word := binary.LittleEndian.Uint32(sectionData[off : off+4])
		word = (word &^ 0x3ffffff) | uint32(imm26)
		binary.LittleEndian.PutUint32(sectionData[off:off+4], word)
		return nil
	}
	return fmt.Errorf("unsupported relocation type %d", typ)
}

// patchMovImm64 rewrites the 16-bit immediate field of a MOVZ followed by
// three MOVK instructions (armMovImm64's exact output shape) to encode
// value's four 16-bit halves, each instruction's opcode/shift/register
// bits left untouched.
func patchMovImm64(data []byte, off int64, value uint64) {
	for i := 0; i < 4; i++ {
		word := binary.LittleEndian.Uint32(data[off+int64(i)*4 : off+int64(i)*4+4])
		imm16 := uint32((value >> (16 * i)) & 0xffff)
		word = (word &^ (0xffff << 5)) | (imm16 << 5)
		binary.LittleEndian.PutUint32(data[off+int64(i)*4:off+int64(i)*4+4], word)
	}
}
