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

// AArch64 register numbering matches the hardware encoding directly
// (x0..x30, sp=31), so compile/assemble/encode_aarch64.go never needs a
// translation table the way encode_x86_64.go's hwTable does.
const (
	a64X0  = 0
	a64X16 = 16 // IP0, the first of AAPCS64's two intra-procedure-call scratch registers
	a64X17 = 17 // IP1
	a64X18 = 18 // platform register; reserved on some AAPCS64 platforms, never allocated here
	a64X19 = 19
	a64X28 = 28
	a64FP  = 29 // x29, frame pointer
	a64LR  = 30 // x30, link register
	a64SP  = 31
)

const (
	v64V0 = 0
)

// Arm64 is the AAPCS64 (ARM64 procedure call standard) target.
type Arm64 struct{}

func (Arm64) Name() string     { return "arm64" }
func (Arm64) Incomplete() bool { return false }

func (Arm64) Regs() *RegBank {
	allocInt := make([]int, 0, 26)
	for r := a64X0; r < a64X16; r++ {
		allocInt = append(allocInt, r)
	}
	for r := a64X19; r <= a64X28; r++ {
		allocInt = append(allocInt, r)
	}
	calleeSaved := make([]int, 0, 10)
	for r := a64X19; r <= a64X28; r++ {
		calleeSaved = append(calleeSaved, r)
	}
	allocFloat := make([]int, 32)
	for i := range allocFloat {
		allocFloat[i] = i
	}
	return &RegBank{
		allocInt:        allocInt,
		allocFloat:      allocFloat,
		CalleeSavedInt:  calleeSaved,
		FramePointerReg: a64FP,
		IntParamRegs:    []int{0, 1, 2, 3, 4, 5, 6, 7},
		FloatParamRegs:  []int{v64V0, 1, 2, 3, 4, 5, 6, 7},
		ReturnIntReg:    a64X0,
		ReturnFloatReg:  v64V0,
		// sdiv/udiv are plain three-register instructions; lsl/lsr/asr
		// take the count from any general register. Neither pins an
		// operand to a fixed physical register the way x86-64's
		// idiv/shift-by-cl do.
		DivDividendReg: -1,
		ShiftCountReg:  -1,
		ScratchInt:     a64X16,
		ScratchInt2:    a64X17,
	}
}

// DetectExtraOccupied is empty on AArch64: sdiv/udiv/lsl/lsr/asr are all
// plain register-register-register instructions with no implicit
// clobber beyond their declared Dst/Args.
func (Arm64) DetectExtraOccupied(op int) []int { return nil }

// ImmFitsDirectly always returns false: encode_aarch64.go's armAluOpcode
// only emits the register-register ALU form (ADD/SUB/AND/ORR/EOR take
// Rd,Rn,Rm, never an immediate), so every immediate operand must be
// materialised into compile/ir/tweak.go's scratch register first. The
// one instruction that does take an arbitrary 64-bit immediate
// (armMov's MOVZ/MOVK sequence) never consults ImmFitsDirectly, so
// rejecting everything here costs that case nothing.
func (Arm64) ImmFitsDirectly(v int64) bool { return false }
