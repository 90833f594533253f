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

package target

// x86-64 logical register numbering, carried over unchanged from
// compile/codegen/register_x86.go's RAX_..RSP_ index assignment:
// rax=0, rbx=1, rcx=2, rdx=3, rsi=4, rdi=5, r8..r15=6..13, rbp=14,
// rsp=15. compile/assemble/encode_x86_64.go's hwTable is the only place
// that ever translates this numbering into the real ModRM/REX encoding.
const (
	regRAX = 0
	regRBX = 1
	regRCX = 2
	regRDX = 3
	regRSI = 4
	regRDI = 5
	regR8  = 6
	regR9  = 7
	regR10 = 8
	regR11 = 9
	regR12 = 10
	regR13 = 11
	regR14 = 12
	regR15 = 13
	regRBP = 14
	regRSP = 15
)

// Float registers are numbered 0-15 for xmm0-xmm15; this pool has no
// relationship to the integer numbering above.
const (
	regXMM0 = 0
	regXMM1 = 1
	regXMM2 = 2
	regXMM3 = 3
	regXMM4 = 4
	regXMM5 = 5
	regXMM6 = 6
	regXMM7 = 7
)

// X8664 is the System V AMD64 ABI target: the calling convention
// arch_x86.go's ArgReg/CallerSaveRegs/CalleeSaveRegs describe, fitted
// onto register_x86.go's index numbering.
type X8664 struct{}

func (X8664) Name() string    { return "x86_64" }
func (X8664) Incomplete() bool { return false }

func (X8664) Regs() *RegBank {
	return &RegBank{
		allocInt: []int{
			regRAX, regRBX, regRCX, regRDX, regRSI, regRDI,
			regR8, regR9, regR12, regR13, regR14, regR15,
		},
		allocFloat:      []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		CalleeSavedInt:  []int{regRBX, regR12, regR13, regR14, regR15},
		FramePointerReg: regRBP,
		// SysV passes the first six integer/pointer args in
		// rdi,rsi,rdx,rcx,r8,r9.
		IntParamRegs:   []int{regRDI, regRSI, regRDX, regRCX, regR8, regR9},
		FloatParamRegs: []int{regXMM0, regXMM1, regXMM2, regXMM3, regXMM4, regXMM5, regXMM6, regXMM7},
		ReturnIntReg:   regRAX,
		ReturnFloatReg: regXMM0,
		DivDividendReg: regRAX,
		ShiftCountReg:  regRCX,
		// r10/r11 are caller-saved and outside SysV's argument and
		// return registers, the conventional free-for-the-compiler pair
		// (the same role %r10/%r11 play as linker-inserted scratch
		// registers in PLT stubs).
		ScratchInt:  regR10,
		ScratchInt2: regR11,
	}
}

// DetectExtraOccupied reports idiv's implicit rax:rdx clobber (beyond
// whichever half is the instruction's own declared Dst) and the shift
// family's implicit pin of the count to cl/rcx.
func (X8664) DetectExtraOccupied(op int) []int {
	switch op {
	case opDiv, opMod:
		return []int{regRAX, regRDX}
	case opShl, opShr:
		return []int{regRCX}
	}
	return nil
}

// ImmFitsDirectly matches encAlu's imm32 field (sign-extended, per the
// add/sub/and/or/xor opcode encodings); compile/assemble's Mov handles
// any int64 directly via movabs, so a value this rejects still encodes
// correctly after tweak.go hoists it through a scratch register, just
// with one extra instruction.
func (X8664) ImmFitsDirectly(v int64) bool {
	return v >= -(1<<31) && v < (1<<31)
}
