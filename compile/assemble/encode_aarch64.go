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
	"encoding/binary"
	"fmt"

	"xcc/compile/ir"
	"xcc/elf"
)

// arm64Encoder is the AArch64 sibling of x8664Encoder: every AArch64
// instruction is a fixed 4-byte little-endian word, so unlike the
// x86-64 backend there is no variable-length ModRM/REX bookkeeping, only
// bitfield packing per instruction class. Memory operands this backend
// ever constructs are always [Xn, #simm9] (LDUR/STUR), which keeps
// addressing uniform with the Base+Disp shape compile/emit produces for
// every target; frames larger than the 9-bit signed window are outside
// this encoder's scope, a limitation noted in this repo's ledger rather
// than silently mishandled. Register numbers match
// compile/target/target_aarch64_reg.go's a64X0..a64SP constants.
type arm64Encoder struct{}

func w32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func armRegOf(o Operand) (int, bool) {
	if r, ok := o.(RegOperand); ok {
		return r.Index, true
	}
	return 0, false
}

func armAluOpcode(op ir.Op) (word uint32, ok bool) {
	switch op {
	case ir.Add:
		return 0x8B000000, true
	case ir.Sub:
		return 0xCB000000, true
	case ir.And:
		return 0x8A000000, true
	case ir.Or:
		return 0xAA000000, true
	case ir.Xor:
		return 0xCA000000, true
	}
	return 0, false
}

func armAluImmOpcode(op ir.Op) (word uint32, ok bool) {
	switch op {
	case ir.Add:
		return 0x91000000, true
	case ir.Sub:
		return 0xD1000000, true
	}
	return 0, false
}

func armCond(cc ir.CondCode) uint32 {
	switch cc {
	case ir.CCEQ:
		return 0x0
	case ir.CCNE:
		return 0x1
	case ir.CCLTU:
		return 0x3
	case ir.CCGEU:
		return 0x2
	case ir.CCGTU:
		return 0x8
	case ir.CCLEU:
		return 0x9
	case ir.CCLT:
		return 0xb
	case ir.CCGE:
		return 0xa
	case ir.CCGT:
		return 0xc
	case ir.CCLE:
		return 0xd
	}
	return 0x0
}

func (arm64Encoder) Size(f Fragment) (int, error) {
	b, _, err := arm64Encoder{}.Encode(f, 0, map[string]int64{})
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func (arm64Encoder) Encode(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	switch f.Kind {
	case FragData:
		return f.Data, nil, nil
	case FragZero:
		return make([]byte, f.Zero), nil, nil
	}

	switch f.Op {
	case ir.Mov:
		return armMov(f)
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor:
		return armAlu(f)
	case ir.Mul:
		return armMul(f)
	case ir.Div, ir.Mod:
		return armDivMod(f)
	case ir.Shl, ir.Shr:
		return armShift(f)
	case ir.Neg:
		return armNeg(f)
	case ir.Not:
		return armNot(f)
	case ir.Cond:
		return armCondOp(f)
	case ir.Load:
		return armLoad(f)
	case ir.Store:
		return armStore(f)
	case ir.Bofs, ir.Sofs:
		return armBofs(f)
	case ir.Iofs:
		return armIofs(f)
	case ir.Cast:
		return armCast(f)
	case ir.SubSP:
		return armSubSP(f)
	case ir.Jmp:
		return armJmp(f, pc, labels)
	case ir.CondJmp:
		return armCondJmp(f, pc, labels)
	case ir.Call:
		return armCall(f, pc, labels)
	case ir.Result, ir.Precall, ir.PushArg:
		return nil, nil, nil
	case ir.Asm:
		return f.Data, nil, nil
	}
	return nil, nil, fmt.Errorf("assemble(arm64): unsupported opcode %s", f.Op)
}

func armMov(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	switch src := f.Args[0].(type) {
	case RegOperand:
		// ORR Xd, XZR, Xm is the standard MOV register alias.
		return w32(0xAA0003E0 | uint32(src.Index)<<16 | uint32(dst)), nil, nil
	case ImmOperand:
		return armMovImm64(dst, uint64(src.Value)), nil, nil
	case MemOperand:
		return armEncodeLdur(0xF8400000, dst, src.BaseReg, src.Disp), nil, nil
	case SymOperand:
		b := armMovImm64(dst, 0)
		return b, []Reloc{{Offset: 0, Symbol: src.Name, Type: elf.R_AARCH64_ADR_PREL_PG_HI21, Addend: 0}}, nil
	}
	if mem, ok := f.Dst.(MemOperand); ok {
		srcReg, _ := armRegOf(f.Args[0])
		return armEncodeLdur(0xF8000000, srcReg, mem.BaseReg, mem.Disp), nil, nil
	}
	return nil, nil, fmt.Errorf("assemble(arm64): mov: unsupported operand combination")
}

// armMovImm64 emits a MOVZ followed by up to three MOVK instructions to
// build an arbitrary 64-bit constant 16 bits at a time, the standard
// AArch64 idiom for large immediates (there is no single-instruction
// 64-bit immediate load).
func armMovImm64(dst int, v uint64) []byte {
	var out []byte
	out = append(out, w32(0xD2800000|uint32(v&0xffff)<<5|uint32(dst))...)
	for hw := 1; hw < 4; hw++ {
		chunk := uint32(v>>(16*hw)) & 0xffff
		if chunk == 0 {
			continue
		}
		out = append(out, w32(0xF2800000|uint32(hw)<<21|chunk<<5|uint32(dst))...)
	}
	return out
}

func armAlu(f Fragment) ([]byte, []Reloc, error) {
	base, _ := armAluOpcode(f.Op)
	dst, _ := armRegOf(f.Dst)
	switch src := f.Args[0].(type) {
	case RegOperand:
		return w32(base | uint32(src.Index)<<16 | uint32(dst)<<5 | uint32(dst)), nil, nil
	case ImmOperand:
		ibase, ok := armAluImmOpcode(f.Op)
		if !ok {
			return nil, nil, fmt.Errorf("assemble(arm64): %s has no immediate form", f.Op)
		}
		return w32(ibase | (uint32(src.Value)&0xfff)<<10 | uint32(dst)<<5 | uint32(dst)), nil, nil
	}
	return nil, nil, fmt.Errorf("assemble(arm64): alu op: unsupported operand")
}

func armMul(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	src, ok := armRegOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): mul requires a register operand")
	}
	// MUL Xd,Xn,Xm == MADD Xd,Xn,Xm,XZR with Rn=Xd (two-address shape).
	return w32(0x9B007C00 | uint32(src)<<16 | uint32(dst)<<5 | uint32(dst)), nil, nil
}

func armDivMod(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	src, ok := armRegOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): div requires a register divisor")
	}
	var out []byte
	out = append(out, w32(0x9AC00C00|uint32(src)<<16|uint32(dst)<<5|uint32(dst))...) // sdiv dst = dst/src
	if f.Op == ir.Mod {
		// MSUB Xd,Xquot,Xsrc,Xdividend computes dividend - quot*src;
		// compile/emit keeps the original dividend in the scratch
		// register so this stays a pure register-to-register sequence.
		out = append(out, w32(0x9B008000|uint32(src)<<16|uint32(dst)<<10|uint32(dst)<<5|uint32(dst))...)
	}
	return out, nil, nil
}

func armShift(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	src, ok := armRegOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): shift requires a register count")
	}
	base := uint32(0x9AC02000) // LSLV
	if f.Op == ir.Shr {
		base = 0x9AC02400 // LSRV
	}
	return w32(base | uint32(src)<<16 | uint32(dst)<<5 | uint32(dst)), nil, nil
}

func armNeg(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	src, _ := armRegOf(f.Args[0])
	// NEG Xd,Xm == SUB Xd,XZR,Xm.
	return w32(0xCB0003E0 | uint32(src)<<16 | uint32(dst)), nil, nil
}

func armNot(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	src, _ := armRegOf(f.Args[0])
	// MVN Xd,Xm == ORN Xd,XZR,Xm.
	return w32(0xAA2003E0 | uint32(src)<<16 | uint32(dst)), nil, nil
}

func armCondOp(f Fragment) ([]byte, []Reloc, error) {
	lhs, _ := armRegOf(f.Args[0])
	var out []byte
	switch rhs := f.Args[1].(type) {
	case RegOperand:
		out = append(out, w32(0xEB00001F|uint32(rhs.Index)<<16|uint32(lhs)<<5)...)
	case ImmOperand:
		out = append(out, w32(0xF100001F|(uint32(rhs.Value)&0xfff)<<10|uint32(lhs)<<5)...)
	}
	dst, _ := armRegOf(f.Dst)
	inv := armCond(f.CC) ^ 1
	out = append(out, w32(0x9A9F07E0|inv<<12|uint32(dst))...)
	return out, nil, nil
}

func armEncodeLdur(base uint32, rt, rn int, disp int64) []byte {
	return w32(base | (uint32(disp)&0x1ff)<<12 | uint32(rn)<<5 | uint32(rt))
}

func armLoad(f Fragment) ([]byte, []Reloc, error) {
	mem, ok := f.Args[0].(MemOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): load requires a memory operand")
	}
	dst, _ := armRegOf(f.Dst)
	return armEncodeLdur(0xF8400000, dst, mem.BaseReg, mem.Disp), nil, nil
}

func armStore(f Fragment) ([]byte, []Reloc, error) {
	mem, ok := f.Dst.(MemOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): store requires a memory destination")
	}
	src, _ := armRegOf(f.Args[0])
	return armEncodeLdur(0xF8000000, src, mem.BaseReg, mem.Disp), nil, nil
}

func armBofs(f Fragment) ([]byte, []Reloc, error) {
	mem, ok := f.Args[0].(MemOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): bofs/sofs requires a frame-relative operand")
	}
	dst, _ := armRegOf(f.Dst)
	ibase, ok2 := armAluImmOpcode(ir.Add)
	if mem.Disp < 0 {
		ibase, _ = armAluImmOpcode(ir.Sub)
		_ = ok2
		return w32(ibase | (uint32(-mem.Disp)&0xfff)<<10 | uint32(mem.BaseReg)<<5 | uint32(dst)), nil, nil
	}
	return w32(ibase | (uint32(mem.Disp)&0xfff)<<10 | uint32(mem.BaseReg)<<5 | uint32(dst)), nil, nil
}

func armIofs(f Fragment) ([]byte, []Reloc, error) {
	sym, ok := f.Args[0].(SymOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): iofs requires a symbol operand")
	}
	dst, _ := armRegOf(f.Dst)
	b := armMovImm64(dst, 0)
	return b, []Reloc{{Offset: 0, Symbol: sym.Name, Type: elf.R_AARCH64_ADD_ABS_LO12_NC, Addend: 0}}, nil
}

func armCast(f Fragment) ([]byte, []Reloc, error) {
	dst, _ := armRegOf(f.Dst)
	src, ok := armRegOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): cast requires a register source")
	}
	switch f.Width {
	case 1:
		return w32(0x93401C00 | uint32(src)<<5 | uint32(dst)), nil, nil
	case 2:
		return w32(0x93403C00 | uint32(src)<<5 | uint32(dst)), nil, nil
	case 4:
		return w32(0x93407C00 | uint32(src)<<5 | uint32(dst)), nil, nil
	}
	return w32(0xAA0003E0 | uint32(src)<<16 | uint32(dst)), nil, nil
}

// armSP is compile/target/target_aarch64_reg.go's a64SP register index (31);
// this package never imports compile/target's register constants since
// it only ever sees the already-resolved indices compile/emit hands it.
const armSP = 31

func armSubSP(f Fragment) ([]byte, []Reloc, error) {
	imm, ok := f.Args[0].(ImmOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(arm64): subsp requires an immediate")
	}
	return w32(0xD1000000 | (uint32(imm.Value)&0xfff)<<10 | uint32(armSP)<<5 | uint32(armSP)), nil, nil
}

func armJmp(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	if f.Label == "" {
		return w32(0xD65F03C0), nil, nil // ret x30
	}
	target, known := labels[f.Label]
	word := uint32(0x14000000)
	if known {
		disp := int32(target - pc)
		word |= uint32(disp/4) & 0x3ffffff
		return w32(word), nil, nil
	}
	return w32(word), []Reloc{{Offset: 0, Symbol: f.Label, Type: elf.R_AARCH64_CALL26, Addend: 0}}, nil
}

func armCondJmp(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	lhs, _ := armRegOf(f.Args[0])
	var out []byte
	switch rhs := f.Args[1].(type) {
	case RegOperand:
		out = append(out, w32(0xEB00001F|uint32(rhs.Index)<<16|uint32(lhs)<<5)...)
	case ImmOperand:
		out = append(out, w32(0xF100001F|(uint32(rhs.Value)&0xfff)<<10|uint32(lhs)<<5)...)
	}
	bAt := int64(len(out))
	target, known := labels[f.Label]
	word := uint32(0x54000000) | armCond(f.CC)
	if known {
		disp := int32(target - (pc + bAt))
		word |= (uint32(disp/4) & 0x7ffff) << 5
		out = append(out, w32(word)...)
		return out, nil, nil
	}
	out = append(out, w32(word)...)
	return out, []Reloc{{Offset: bAt, Symbol: f.Label, Type: elf.R_AARCH64_CALL26, Addend: 0}}, nil
}

const (
	armFP = 29
	armLR = 30
)

// Prologue mirrors the x86-64 backend's push-rbp/push-callee-saved
// shape instruction for instruction: reserve 16 bytes and save fp/lr,
// point fp at that slot, then push each calleeSaved register and
// finally reserve frameSize bytes for locals and spills. Every push
// happens below the established fp, so fp-relative local offsets never
// shift regardless of how many registers get saved.
func (arm64Encoder) Prologue(calleeSaved []int, frameSize int64) []byte {
	var b []byte
	b = append(b, w32(0xD1000000|16<<10|uint32(armSP)<<5|uint32(armSP))...) // sub sp, sp, #16
	b = append(b, armEncodeLdur(0xF8000000, armFP, armSP, 0)...)
	b = append(b, armEncodeLdur(0xF8000000, armLR, armSP, 8)...)
	b = append(b, w32(0x91000000|uint32(armSP)<<5|uint32(armFP))...) // add fp, sp, #0
	for _, r := range calleeSaved {
		b = append(b, w32(0xD1000000|8<<10|uint32(armSP)<<5|uint32(armSP))...) // sub sp, sp, #8
		b = append(b, armEncodeLdur(0xF8000000, r, armSP, 0)...)
	}
	if frameSize > 0 {
		b = append(b, w32(0xD1000000|(uint32(frameSize)&0xfff)<<10|uint32(armSP)<<5|uint32(armSP))...)
	}
	return b
}

func (arm64Encoder) Epilogue(calleeSaved []int, frameSize int64) []byte {
	var b []byte
	if frameSize > 0 {
		b = append(b, w32(0x91000000|(uint32(frameSize)&0xfff)<<10|uint32(armSP)<<5|uint32(armSP))...)
	}
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		b = append(b, armEncodeLdur(0xF8400000, calleeSaved[i], armSP, 0)...)
		b = append(b, w32(0x91000000|8<<10|uint32(armSP)<<5|uint32(armSP))...) // add sp, sp, #8
	}
	b = append(b, armEncodeLdur(0xF8400000, armFP, armSP, 0)...)
	b = append(b, armEncodeLdur(0xF8400000, armLR, armSP, 8)...)
	b = append(b, w32(0x91000000|16<<10|uint32(armSP)<<5|uint32(armSP))...) // add sp, sp, #16
	b = append(b, w32(0xD65F03C0)...)                                      // ret
	return b
}

func armCall(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	if reg, ok := f.Dst.(RegOperand); ok {
		return w32(0xD63F0000 | uint32(reg.Index)<<5), nil, nil
	}
	target, known := labels[f.Label]
	word := uint32(0x94000000)
	if known {
		disp := int32(target - pc)
		word |= uint32(disp/4) & 0x3ffffff
		return w32(word), nil, nil
	}
	return w32(word), []Reloc{{Offset: 0, Symbol: f.Label, Type: elf.R_AARCH64_CALL26, Addend: 0}}, nil
}
