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

package ir

import "fmt"

// RegClass distinguishes the integer and floating-point register banks;
// the allocator (lsra.go) runs one independent pass per class.
type RegClass int

const (
	ClassInt RegClass = iota
	ClassFloat
)

// VReg is a virtual register: an SSA-free, mutable three-address value
// slot. Func.NewVReg hands out increasing Id values per class; the
// allocator (lsra.go) assigns each one exactly one of PhysReg (a
// compile/target register bank index) or StackSlot (a spill slot, byte
// offset from the frame base) by the time compile/emit runs.
type VReg struct {
	Id    int
	Class RegClass
	Width int // bytes: 1,2,4,8 for ints; 4,8 for floats

	PhysReg   int
	Spilled   bool
	StackSlot int // valid iff Spilled

	// Fixed marks a vreg whose PhysReg is pinned by calling-convention
	// placement (an incoming parameter register, or the ABI return
	// register written just before a Jmp-as-return) rather than chosen
	// by lsra.go; the allocator leaves these alone instead of handing
	// their register out to something else live across the same point.
	Fixed bool
}

func (v *VReg) String() string { return fmt.Sprintf("v%d", v.Id) }

// Operand is anything an Instr can read: a virtual register, an
// immediate, or a reference to a named symbol (global variable or
// function) resolved at link time. This set is deliberately narrow:
// addressing modes are expressed by separate Bofs/Iofs/Sofs/Load/Store
// instructions rather than folded into the operand, keeping every
// memory access explicit.
type Operand interface {
	isOperand()
}

type VRegOperand struct{ Reg *VReg }

func (VRegOperand) isOperand() {}

func Reg(v *VReg) Operand { return VRegOperand{Reg: v} }

type ImmOperand struct{ Value int64 }

func (ImmOperand) isOperand() {}

func Imm(v int64) Operand { return ImmOperand{Value: v} }

type FImmOperand struct{ Value float64 }

func (FImmOperand) isOperand() {}

func FImm(v float64) Operand { return FImmOperand{Value: v} }

// SymOperand names a global/extern symbol; Iofs uses it to request that
// symbol's address, Call uses it for a direct call target.
type SymOperand struct{ Name string }

func (SymOperand) isOperand() {}

func Sym(name string) Operand { return SymOperand{Name: name} }
