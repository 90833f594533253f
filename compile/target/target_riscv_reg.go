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

// RV64 integer register numbers match the hardware ABI names directly:
// x0=zero, x1=ra, x2=sp, x3=gp, x4=tp, x5-x7=t0-t2, x8-x9=s0-s1,
// x10-x17=a0-a7, x18-x27=s2-s11, x28-x31=t3-t6.
const (
	rvZero = 0
	rvRA   = 1
	rvSP   = 2
	rvGP   = 3
	rvTP   = 4
	rvT0   = 5
	rvT1   = 6
	rvS0   = 8 // frame pointer by convention
	rvA0   = 10
)

// Riscv64 is the RV64 LP64D (general-purpose + double-float ABI)
// target. Per this repository's open-question resolution (DESIGN.md),
// it is deliberately incomplete: compile/assemble has no riscv64
// encoder, and the driver refuses to compile for this target rather
// than emit code nobody verified. The register bank below is still a
// faithful RV64 ABI description — useful documentation, and enough for
// a future encoder to wire against — even though nothing in this
// repository's pipeline reaches it today.
type Riscv64 struct{}

func (Riscv64) Name() string     { return "riscv64" }
func (Riscv64) Incomplete() bool { return true }

func (Riscv64) Regs() *RegBank {
	allocInt := []int{7, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31}
	calleeSaved := []int{9, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27}
	allocFloat := make([]int, 32)
	for i := range allocFloat {
		allocFloat[i] = i
	}
	return &RegBank{
		allocInt:        allocInt,
		allocFloat:      allocFloat,
		CalleeSavedInt:  calleeSaved,
		FramePointerReg: rvS0,
		IntParamRegs:    []int{10, 11, 12, 13, 14, 15, 16, 17}, // a0-a7
		FloatParamRegs:  []int{10, 11, 12, 13, 14, 15, 16, 17}, // fa0-fa7
		ReturnIntReg:    rvA0,
		ReturnFloatReg:  10,
		DivDividendReg:  -1, // div/rem are plain three-register instructions
		ShiftCountReg:   -1, // sll/srl/sra take the count from any register
		ScratchInt:     rvT0,
		ScratchInt2:    rvT1,
	}
}

// DetectExtraOccupied is empty: RV64's arithmetic, divide and shift
// instructions are all plain three-register forms with no implicit
// clobber.
func (Riscv64) DetectExtraOccupied(op int) []int { return nil }

// ImmFitsDirectly matches RV64's 12-bit signed I-type immediate field
// (addi/andi/ori/xori/slli/srli/srai's immediate range); values outside
// it would need the lui+addi sequence a future encoder would emit via
// compile/ir/tweak.go's scratch-register path.
func (Riscv64) ImmFitsDirectly(v int64) bool {
	return v >= -(1<<11) && v < (1<<11)
}
