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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForNameResolvesAllThreeTriples(t *testing.T) {
	for _, name := range []string{"x86_64", "arm64", "riscv64"} {
		tgt, ok := ForName(name)
		require.True(t, ok, "ForName(%q)", name)
		assert.Equal(t, name, tgt.Name())
	}
}

func TestForNameRejectsUnknownTriple(t *testing.T) {
	_, ok := ForName("mips64")
	assert.False(t, ok)
}

func TestRiscv64IsIncompleteX8664AndArm64AreNot(t *testing.T) {
	assert.True(t, Riscv64{}.Incomplete())
	assert.False(t, X8664{}.Incomplete())
	assert.False(t, Arm64{}.Incomplete())
}

// regBankInvariants checks the handful of properties every RegBank must
// hold regardless of target: the frame pointer and the two scratch
// registers are never in the allocatable set (the allocator must never
// be handed a register compile/emit or compile/ir/tweak.go assumes it
// owns outright), and every callee-saved register is itself allocatable.
func regBankInvariants(t *testing.T, tgt Target) {
	t.Helper()
	bank := tgt.Regs()
	alloc := bank.AllocatableInt()

	assert.NotContains(t, alloc, bank.FramePointerReg)
	assert.NotContains(t, alloc, bank.ScratchInt)
	assert.NotContains(t, alloc, bank.ScratchInt2)
	assert.NotEqual(t, bank.ScratchInt, bank.ScratchInt2)

	for _, r := range bank.CalleeSavedInt {
		assert.Contains(t, alloc, r, "callee-saved register %d is not allocatable", r)
		assert.True(t, bank.IsCalleeSavedInt(r))
	}
	assert.False(t, bank.IsCalleeSavedInt(bank.ScratchInt))
}

func TestX8664RegBankInvariants(t *testing.T) { regBankInvariants(t, X8664{}) }
func TestArm64RegBankInvariants(t *testing.T)  { regBankInvariants(t, Arm64{}) }

func TestX8664ParamRegsMatchSystemVOrder(t *testing.T) {
	bank := X8664{}.Regs()
	assert.Equal(t, []int{regRDI, regRSI, regRDX, regRCX, regR8, regR9}, bank.IntParamRegs)
	assert.Equal(t, regRAX, bank.ReturnIntReg)
	assert.Equal(t, regRAX, bank.DivDividendReg)
	assert.Equal(t, regRCX, bank.ShiftCountReg)
}

func TestX8664DetectExtraOccupiedCoversDivModAndShifts(t *testing.T) {
	tgt := X8664{}
	assert.ElementsMatch(t, []int{regRAX, regRDX}, tgt.DetectExtraOccupied(opDiv))
	assert.ElementsMatch(t, []int{regRAX, regRDX}, tgt.DetectExtraOccupied(opMod))
	assert.ElementsMatch(t, []int{regRCX}, tgt.DetectExtraOccupied(opShl))
	assert.ElementsMatch(t, []int{regRCX}, tgt.DetectExtraOccupied(opShr))
	assert.Empty(t, tgt.DetectExtraOccupied(opAdd))
}

func TestX8664ImmFitsDirectlyMatchesImm32Range(t *testing.T) {
	tgt := X8664{}
	assert.True(t, tgt.ImmFitsDirectly(0))
	assert.True(t, tgt.ImmFitsDirectly(1<<31-1))
	assert.True(t, tgt.ImmFitsDirectly(-(1 << 31)))
	assert.False(t, tgt.ImmFitsDirectly(1<<31))
	assert.False(t, tgt.ImmFitsDirectly(-(1<<31) - 1))
}

func TestArm64ImmFitsDirectlyAlwaysFalse(t *testing.T) {
	tgt := Arm64{}
	assert.False(t, tgt.ImmFitsDirectly(0))
	assert.False(t, tgt.ImmFitsDirectly(1))
}

func TestArm64HasNoFixedDividendOrShiftCountRegister(t *testing.T) {
	bank := Arm64{}.Regs()
	assert.Equal(t, -1, bank.DivDividendReg)
	assert.Equal(t, -1, bank.ShiftCountReg)
}

func TestRiscv64ImmFitsDirectlyMatches12BitSignedRange(t *testing.T) {
	tgt := Riscv64{}
	assert.True(t, tgt.ImmFitsDirectly(0))
	assert.True(t, tgt.ImmFitsDirectly(1<<11-1))
	assert.True(t, tgt.ImmFitsDirectly(-(1 << 11)))
	assert.False(t, tgt.ImmFitsDirectly(1<<11))
}
