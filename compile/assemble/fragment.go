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

// Package assemble turns the structured assembly fragments compile/emit
// produces into an in-memory ELF64 relocatable object: one Fragment per
// label, machine instruction, or raw data blob, encoded by a per-target
// Encoder (encode_x86_64.go/encode_aarch64.go). Emission and immediate
// encoding are kept as separate concerns so the fragment stream stays
// target-independent and only the Encoder is target-specific; fragments
// are structured Go values rather than re-lexed assembly text.
package assemble

import "xcc/compile/ir"

type FragKind int

const (
	FragLabel FragKind = iota
	FragInstr
	FragData // raw bytes, e.g. one rodata string literal
	FragZero // zeroed .bss-style reservation, N bytes
)

// Operand is a fully resolved location: compile/emit has already run the
// register allocator and frame-layout pass, so by the time a Fragment
// exists every vreg has become either a physical register or a
// frame-relative memory operand.
type Operand interface{ isAsmOperand() }

type RegOperand struct {
	Index int
	Class ir.RegClass
}

func (RegOperand) isAsmOperand() {}

// MemOperand is [BaseReg + Disp], the only addressing mode this
// assembler needs since every local/spill access is frame-pointer
// relative and every global/string access goes through a register first
// (compile/ir's Bofs/Iofs/Sofs instructions already did that).
type MemOperand struct {
	BaseReg int
	Disp    int64
}

func (MemOperand) isAsmOperand() {}

type ImmOperand struct{ Value int64 }

func (ImmOperand) isAsmOperand() {}

// SymOperand names a symbol whose address should be loaded as an
// absolute 64-bit immediate (Iofs/Sofs lowering) or branched/called to
// (Jmp/Call lowering); compile/assemble turns this into a relocation
// against the named symbol.
type SymOperand struct{ Name string }

func (SymOperand) isAsmOperand() {}

// Fragment is one assembler input unit.
type Fragment struct {
	Kind FragKind

	Label string // FragLabel, or the target name a Call/Jmp Fragment branches to

	Op ir.Op
	CC ir.CondCode

	Dst  Operand
	Args []Operand

	Width int // operand width in bytes: 1,2,4,8

	Data []byte // FragData
	Zero int    // FragZero

	Comment string
}
