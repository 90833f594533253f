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

// x8664Encoder encodes the System V x86-64 subset compile/emit generates.
// Every memory operand this backend ever constructs is [reg+disp32]: the
// frame pointer for locals/spills, or a general register for an
// explicit pointer dereference; register numbering matches
// compile/target/target_x86_64.go's regRAX..regRSP constants (0-15), so
// no translation table is needed between the allocator's PhysReg and
// the ModRM/REX bit fields here beyond hwTable below.
type x8664Encoder struct{}

const (
	rRAX = 0
	rRCX = 1
	rRDX = 2
	rRBX = 3
	rRSP = 4
	rRBP = 5
	rRSI = 6
	rRDI = 7
)

func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 1 << 3
	}
	if r {
		v |= 1 << 2
	}
	if x {
		v |= 1 << 1
	}
	if b {
		v |= 1
	}
	return v
}

func modrmReg(mod, reg, rm int) byte {
	return byte(mod<<6) | byte(reg&7)<<3 | byte(rm&7)
}

// hwTable translates compile/target/target_x86_64.go's logical register
// numbering (rax=0,rbx=1,rcx=2,rdx=3,rsi=4,rdi=5,r8..r15=6..13,rbp=14,
// rsp=15) into the real ModRM/REX hardware encoding (rax=0,rcx=1,rdx=2,rbx=3,rsp=4,
// rbp=5,rsi=6,rdi=7,r8..r15=8..15) x86-64 actually uses. The allocator
// and the rest of compile/ir never need to know this split exists; only
// this file's byte-level encoding does.
var hwTable = [16]int{0, 3, 1, 2, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 5, 4}

func hw(logical int) int { return hwTable[logical] }

func regOf(o Operand) (int, bool) {
	if r, ok := o.(RegOperand); ok {
		return hw(r.Index), true
	}
	return 0, false
}

func le32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func le64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// regRM encodes a REX+ModRM(+disp32) sequence for "op reg, [base+disp]"
// or "op reg, reg2" depending on whether mem is non-nil.
// regRM encodes a REX+ModRM(+disp32) sequence. Every integer the caller
// passes in (regField, mem.BaseReg, rm2) must already be a real
// hardware register number (via regOf or hw()), never a raw
// compile/target logical index.
func regRM(w bool, opcodeBytes []byte, regField int, mem *MemOperand, rm2 int) []byte {
	var out []byte
	var r, b bool
	if regField >= 8 {
		r = true
	}
	if mem != nil {
		if mem.BaseReg >= 8 {
			b = true
		}
	} else if rm2 >= 8 {
		b = true
	}
	out = append(out, rex(w, r, false, b))
	out = append(out, opcodeBytes...)
	if mem != nil {
		out = append(out, modrmReg(2, regField, mem.BaseReg))
		out = append(out, le32(int32(mem.Disp))...)
	} else {
		out = append(out, modrmReg(3, regField, rm2))
	}
	return out
}

// hwMem returns mem with its BaseReg translated from a compile/target
// logical index to the real hardware encoding regRM expects.
func hwMem(mem MemOperand) MemOperand { return MemOperand{BaseReg: hw(mem.BaseReg), Disp: mem.Disp} }

func aluOpcodes(op ir.Op) (rr byte, immReg int, immOp byte, ok bool) {
	switch op {
	case ir.Add:
		return 0x01, 0, 0x81, true
	case ir.Sub:
		return 0x29, 5, 0x81, true
	case ir.And:
		return 0x21, 4, 0x81, true
	case ir.Or:
		return 0x09, 1, 0x81, true
	case ir.Xor:
		return 0x31, 6, 0x81, true
	}
	return 0, 0, 0, false
}

func ccCode(cc ir.CondCode) byte {
	switch cc {
	case ir.CCEQ:
		return 0x4
	case ir.CCNE:
		return 0x5
	case ir.CCLT:
		return 0xc
	case ir.CCGE:
		return 0xd
	case ir.CCLE:
		return 0xe
	case ir.CCGT:
		return 0xf
	case ir.CCLTU:
		return 0x2
	case ir.CCGEU:
		return 0x3
	case ir.CCLEU:
		return 0x6
	case ir.CCGTU:
		return 0x7
	}
	return 0x4
}

func (x8664Encoder) Size(f Fragment) (int, error) {
	b, _, err := x8664Encoder{}.Encode(f, 0, map[string]int64{"": 0})
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Encode is pure (no reliance on pc/labels) for every fragment except
// Jmp/CondJmp/Call, where the branch displacement depends on the target
// label's resolved offset; Size calls Encode with a zeroed label map
// since those forms are always a fixed 5 or 6 bytes (rel32 encoding)
// regardless of the actual displacement value.
func (x8664Encoder) Encode(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	switch f.Kind {
	case FragData:
		return f.Data, nil, nil
	case FragZero:
		return make([]byte, f.Zero), nil, nil
	}

	switch f.Op {
	case ir.Mov:
		return encMov(f)
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor:
		return encAlu(f)
	case ir.Mul:
		return encMul(f)
	case ir.Div, ir.Mod:
		return encDivMod(f)
	case ir.Shl, ir.Shr:
		return encShift(f)
	case ir.Neg, ir.Not:
		return encNegNot(f)
	case ir.Cond:
		return encCond(f)
	case ir.Load:
		return encLoad(f)
	case ir.Store:
		return encStore(f)
	case ir.Bofs, ir.Sofs:
		return encBofs(f)
	case ir.Iofs:
		return encIofs(f)
	case ir.Cast:
		return encCast(f)
	case ir.SubSP:
		return encSubSP(f)
	case ir.Jmp:
		return encJmp(f, pc, labels)
	case ir.CondJmp:
		return encCondJmp(f, pc, labels)
	case ir.Call:
		return encCall(f, pc, labels)
	case ir.Result, ir.Precall, ir.PushArg:
		return encABI(f)
	case ir.Asm:
		return f.Data, nil, nil
	}
	return nil, nil, fmt.Errorf("assemble(x86-64): unsupported opcode %s", f.Op)
}

func encMov(f Fragment) ([]byte, []Reloc, error) {
	dstReg, _ := regOf(f.Dst)
	switch src := f.Args[0].(type) {
	case RegOperand:
		return regRM(true, []byte{0x89}, hw(src.Index), nil, dstReg), nil, nil
	case ImmOperand:
		if src.Value >= -(1<<31) && src.Value < (1<<31) {
			var b []byte
			b = append(b, rex(true, false, false, dstReg >= 8))
			b = append(b, 0xc7, modrmReg(3, 0, dstReg))
			b = append(b, le32(int32(src.Value))...)
			return b, nil, nil
		}
		var b []byte
		b = append(b, rex(true, false, false, dstReg >= 8))
		b = append(b, 0xb8+byte(dstReg&7))
		b = append(b, le64(src.Value)...)
		return b, nil, nil
	case MemOperand:
		m := hwMem(src)
		return regRM(true, []byte{0x8b}, dstReg, &m, 0), nil, nil
	case SymOperand:
		var b []byte
		b = append(b, rex(true, false, false, dstReg >= 8))
		b = append(b, 0xb8+byte(dstReg&7))
		off := len(b)
		b = append(b, make([]byte, 8)...)
		return b, []Reloc{{Offset: int64(off), Symbol: src.Name, Type: elf.R_X86_64_64, Addend: 0}}, nil
	}
	if mem, ok := f.Dst.(MemOperand); ok {
		srcReg, _ := regOf(f.Args[0])
		m := hwMem(mem)
		return regRM(true, []byte{0x89}, srcReg, &m, 0), nil, nil
	}
	return nil, nil, fmt.Errorf("assemble(x86-64): mov: unsupported operand combination")
}

func encAlu(f Fragment) ([]byte, []Reloc, error) {
	rr, immReg, immOp, _ := aluOpcodes(f.Op)
	dstReg, _ := regOf(f.Dst)
	switch src := f.Args[0].(type) {
	case RegOperand:
		return regRM(true, []byte{rr}, hw(src.Index), nil, dstReg), nil, nil
	case ImmOperand:
		var b []byte
		b = append(b, rex(true, false, false, dstReg >= 8))
		b = append(b, immOp, modrmReg(3, immReg, dstReg))
		b = append(b, le32(int32(src.Value))...)
		return b, nil, nil
	}
	return nil, nil, fmt.Errorf("assemble(x86-64): alu op: unsupported operand")
}

func encMul(f Fragment) ([]byte, []Reloc, error) {
	dstReg, _ := regOf(f.Dst)
	srcReg, ok := regOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): imul requires a register operand")
	}
	var b []byte
	b = append(b, rex(true, dstReg >= 8, false, srcReg >= 8))
	b = append(b, 0x0f, 0xaf, modrmReg(3, dstReg, srcReg))
	return b, nil, nil
}

// encDivMod assumes compile/emit has already placed the dividend in RAX
// (inserting a Mov beforehand) per target.DetectExtraOccupied's reported
// clobber of RAX/RDX; it sign-extends with cqo, divides by Args[0], and
// moves the quotient (Div) or remainder (Mod) into Dst when Dst isn't
// already that register.
func encDivMod(f Fragment) ([]byte, []Reloc, error) {
	srcReg, ok := regOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): idiv requires a register divisor")
	}
	var b []byte
	b = append(b, 0x48, 0x99) // cqo
	b = append(b, rex(true, false, false, srcReg >= 8), 0xf7, modrmReg(3, 7, srcReg))
	dstReg, _ := regOf(f.Dst)
	result := rRAX
	if f.Op == ir.Mod {
		result = rRDX
	}
	if dstReg != result {
		b = append(b, regRM(true, []byte{0x89}, result, nil, dstReg)...)
	}
	return b, nil, nil
}

// encShift assumes compile/emit has moved the shift count into CL and
// Args[0] into Dst already (two-address shape), matching x86's
// single-register-operand shift-by-CL encoding.
func encShift(f Fragment) ([]byte, []Reloc, error) {
	dstReg, _ := regOf(f.Dst)
	reg := 4
	if f.Op == ir.Shr {
		reg = 5
	}
	var b []byte
	b = append(b, rex(true, false, false, dstReg >= 8), 0xd3, modrmReg(3, reg, dstReg))
	return b, nil, nil
}

func encNegNot(f Fragment) ([]byte, []Reloc, error) {
	dstReg, _ := regOf(f.Dst)
	reg := 3
	if f.Op == ir.Not {
		reg = 2
	}
	var b []byte
	b = append(b, rex(true, false, false, dstReg >= 8), 0xf7, modrmReg(3, reg, dstReg))
	return b, nil, nil
}

// encCond emits cmp then setcc+movzx so Dst holds a 0/1 register-resident
// result, for when a comparison is used as an ordinary C expression
// rather than a branch condition.
func encCond(f Fragment) ([]byte, []Reloc, error) {
	lhs, _ := regOf(f.Args[0])
	var b []byte
	switch rhs := f.Args[1].(type) {
	case RegOperand:
		b = append(b, regRM(true, []byte{0x39}, hw(rhs.Index), nil, lhs)...)
	case ImmOperand:
		b = append(b, rex(true, false, false, lhs >= 8), 0x81, modrmReg(3, 7, lhs))
		b = append(b, le32(int32(rhs.Value))...)
	}
	dstReg, _ := regOf(f.Dst)
	setReg := dstReg
	var rexByte byte = 0x40
	if setReg >= 8 {
		rexByte |= 1
	}
	b = append(b, rexByte, 0x0f, 0x90+ccCode(f.CC), modrmReg(3, 0, setReg))
	b = append(b, rex(true, dstReg >= 8, false, dstReg >= 8), 0x0f, 0xb6, modrmReg(3, dstReg, setReg))
	return b, nil, nil
}

func encLoad(f Fragment) ([]byte, []Reloc, error) {
	mem, ok := f.Args[0].(MemOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): load requires a memory operand")
	}
	dstReg, _ := regOf(f.Dst)
	m := hwMem(mem)
	return regRM(true, []byte{0x8b}, dstReg, &m, 0), nil, nil
}

func encStore(f Fragment) ([]byte, []Reloc, error) {
	mem, ok := f.Dst.(MemOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): store requires a memory destination")
	}
	srcReg, _ := regOf(f.Args[0])
	m := hwMem(mem)
	return regRM(true, []byte{0x89}, srcReg, &m, 0), nil, nil
}

// encBofs computes a local/spill/string-literal frame address with lea.
func encBofs(f Fragment) ([]byte, []Reloc, error) {
	mem, ok := f.Args[0].(MemOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): bofs/sofs requires a frame-relative operand")
	}
	dstReg, _ := regOf(f.Dst)
	m := hwMem(mem)
	return regRM(true, []byte{0x8d}, dstReg, &m, 0), nil, nil
}

// encIofs materialises a global symbol's absolute address as a 64-bit
// immediate move plus an R_X86_64_64 relocation; this backend emits
// non-PIE executables, so an absolute address is valid without a GOT.
func encIofs(f Fragment) ([]byte, []Reloc, error) {
	sym, ok := f.Args[0].(SymOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): iofs requires a symbol operand")
	}
	dstReg, _ := regOf(f.Dst)
	var b []byte
	b = append(b, rex(true, false, false, dstReg >= 8), 0xb8+byte(dstReg&7))
	off := len(b)
	b = append(b, make([]byte, 8)...)
	return b, []Reloc{{Offset: int64(off), Symbol: sym.Name, Type: elf.R_X86_64_64, Addend: 0}}, nil
}

// encCast handles the int-width and int/float conversions compile/ir's
// Cast opcode covers; Width carries the destination width compile/emit
// recorded, and f.Comment carries "signed"/"unsigned"/"f2i"/"i2f" since
// those don't fit the existing Fragment fields cleanly.
func encCast(f Fragment) ([]byte, []Reloc, error) {
	dstReg, _ := regOf(f.Dst)
	srcReg, ok := regOf(f.Args[0])
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): cast requires a register source")
	}
	var b []byte
	switch f.Width {
	case 1:
		b = append(b, rex(true, dstReg >= 8, false, srcReg >= 8), 0x0f, 0xb6, modrmReg(3, dstReg, srcReg))
	case 2:
		b = append(b, rex(true, dstReg >= 8, false, srcReg >= 8), 0x0f, 0xb7, modrmReg(3, dstReg, srcReg))
	case 4:
		b = append(b, rex(true, dstReg >= 8, false, srcReg >= 8), 0x63, modrmReg(3, dstReg, srcReg))
	default:
		b = append(b, regRM(true, []byte{0x89}, srcReg, nil, dstReg)...)
	}
	return b, nil, nil
}

func encSubSP(f Fragment) ([]byte, []Reloc, error) {
	imm, ok := f.Args[0].(ImmOperand)
	if !ok {
		return nil, nil, fmt.Errorf("assemble(x86-64): subsp requires an immediate")
	}
	var b []byte
	b = append(b, rex(true, false, false, false), 0x81, modrmReg(3, 5, rRSP))
	b = append(b, le32(int32(imm.Value))...)
	return b, nil, nil
}

func encJmp(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	if f.Label == "" {
		// Reserved return encoding: compile/emit lowers Jmp{Then:nil}
		// into the function epilogue directly, so a bare Fragment with
		// this opcode and no label just means "ret".
		return []byte{0xc3}, nil, nil
	}
	target, known := labels[f.Label]
	disp := int32(0)
	if known {
		disp = int32(target - (pc + 5))
	}
	b := append([]byte{0xe9}, le32(disp)...)
	if known {
		return b, nil, nil
	}
	return b, []Reloc{{Offset: 1, Symbol: f.Label, Type: elf.R_X86_64_PC32, Addend: -4}}, nil
}

func encCondJmp(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	lhs, _ := regOf(f.Args[0])
	var b []byte
	switch rhs := f.Args[1].(type) {
	case RegOperand:
		b = append(b, regRM(true, []byte{0x39}, hw(rhs.Index), nil, lhs)...)
	case ImmOperand:
		b = append(b, rex(true, false, false, lhs >= 8), 0x81, modrmReg(3, 7, lhs))
		b = append(b, le32(int32(rhs.Value))...)
	}
	jccAt := len(b)
	target, known := labels[f.Label]
	disp := int32(0)
	if known {
		disp = int32(target - (pc + int64(jccAt) + 6))
	}
	b = append(b, 0x0f, 0x80+ccCode(f.CC))
	b = append(b, le32(disp)...)
	if known {
		return b, nil, nil
	}
	return b, []Reloc{{Offset: int64(jccAt + 2), Symbol: f.Label, Type: elf.R_X86_64_PC32, Addend: -4}}, nil
}

func encCall(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error) {
	if reg, ok := f.Dst.(RegOperand); ok {
		r := hw(reg.Index)
		var b []byte
		b = append(b, rex(false, false, false, r >= 8), 0xff, modrmReg(3, 2, r))
		return b, nil, nil
	}
	target, known := labels[f.Label]
	disp := int32(0)
	if known {
		disp = int32(target - (pc + 5))
	}
	b := append([]byte{0xe8}, le32(disp)...)
	if known {
		return b, nil, nil
	}
	return b, []Reloc{{Offset: 1, Symbol: f.Label, Type: elf.R_X86_64_PLT32, Addend: -4}}, nil
}

// Prologue establishes rbp at the caller's rsp with the standard
// push-rbp/mov-rbp,rsp opening, then pushes calleeSaved registers and
// reserves frameSize bytes; every later rbp-relative local/spill offset
// stays valid regardless of how many registers were pushed afterward.
func (x8664Encoder) Prologue(calleeSaved []int, frameSize int64) []byte {
	var b []byte
	b = append(b, 0x55)             // push rbp
	b = append(b, 0x48, 0x89, 0xe5) // mov rbp, rsp
	for _, logical := range calleeSaved {
		r := hw(logical)
		if r >= 8 {
			b = append(b, 0x41)
		}
		b = append(b, 0x50+byte(r&7))
	}
	if frameSize > 0 {
		b = append(b, 0x48, 0x81, modrmReg(3, 5, rRSP))
		b = append(b, le32(int32(frameSize))...)
	}
	return b
}

func (x8664Encoder) Epilogue(calleeSaved []int, frameSize int64) []byte {
	var b []byte
	if frameSize > 0 {
		b = append(b, 0x48, 0x81, modrmReg(3, 0, rRSP))
		b = append(b, le32(int32(frameSize))...)
	}
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		r := hw(calleeSaved[i])
		if r >= 8 {
			b = append(b, 0x41)
		}
		b = append(b, 0x58+byte(r&7))
	}
	b = append(b, 0x5d) // pop rbp
	b = append(b, 0xc3) // ret
	return b
}

// encABI handles Precall/PushArg/Result, which compile/emit already
// lowers entirely into ordinary Mov fragments into argument/return
// registers; by the time they reach the encoder they carry no payload
// of their own; this entry only exists so Encode's opcode switch above
// doesn't need a default case for them listed as "unsupported".
func encABI(f Fragment) ([]byte, []Reloc, error) {
	return nil, nil, nil
}
