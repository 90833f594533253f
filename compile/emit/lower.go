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

package emit

import (
	"fmt"

	"xcc/compile/assemble"
	"xcc/compile/ir"
)

// lower turns one ir.Instr into zero or more Fragments. Most opcodes map
// one-to-one; a handful need more than one Fragment because this
// target's addressing model and the allocator's output don't line up
// perfectly with a single machine instruction (Div/Mod/Shl/Shr's fixed-
// register ABI, the reserved "return" Jmp encoding, TableJmp's compare
// chain).
func (e *Emitter) lower(in *ir.Instr, b *ir.Block, idx int) ([]assemble.Fragment, error) {
	switch in.Op {
	case ir.Jmp:
		if in.Then == nil {
			return []assemble.Fragment{{Kind: assemble.FragData, Data: e.enc.Epilogue(e.calleeSaved, e.totalFrame)}}, nil
		}
		return []assemble.Fragment{{Op: ir.Jmp, Label: e.labels[in.Then]}}, nil

	case ir.CondJmp:
		return e.lowerCondJmp(in, b, idx)

	case ir.TableJmp:
		return e.lowerTableJmp(in)

	case ir.Div, ir.Mod:
		return e.lowerDivMod(in)

	case ir.Shl, ir.Shr:
		return e.lowerShift(in)

	case ir.Precall:
		return nil, nil

	case ir.PushArg:
		dst := assemble.RegOperand{Index: int(in.Imm), Class: in.ArgClass}
		if int(in.Imm) < 0 {
			return nil, fmt.Errorf("stack-passed arguments beyond the register-allocated ABI slots are not yet supported")
		}
		return []assemble.Fragment{{Op: ir.Mov, Dst: dst, Args: []assemble.Operand{e.resolveOperand(in.Args[0])}}}, nil

	case ir.Call:
		var dst assemble.Operand
		label := in.Sym
		if len(in.Args) > 0 {
			dst = e.resolveOperand(in.Args[0])
			label = ""
		}
		return []assemble.Fragment{{Op: ir.Call, Dst: dst, Label: label}}, nil

	case ir.Result:
		bank := e.tgt.Regs()
		src := bank.ReturnIntReg
		if in.Dst.Class == ir.ClassFloat {
			src = bank.ReturnFloatReg
		}
		return []assemble.Fragment{{Op: ir.Mov, Dst: e.resolve(in.Dst), Args: []assemble.Operand{assemble.RegOperand{Index: src, Class: in.Dst.Class}}}}, nil

	case ir.Bofs:
		mem := assemble.MemOperand{BaseReg: e.tgt.Regs().FramePointerReg, Disp: -in.Imm}
		return []assemble.Fragment{{Op: ir.Bofs, Dst: e.resolve(in.Dst), Args: []assemble.Operand{mem}}}, nil

	case ir.Iofs, ir.Sofs:
		return []assemble.Fragment{{Op: in.Op, Dst: e.resolve(in.Dst), Args: []assemble.Operand{assemble.SymOperand{Name: in.Sym}}}}, nil

	case ir.Load:
		base := e.resolveOperand(in.Args[0])
		mem, ok := base.(assemble.RegOperand)
		if !ok {
			return nil, fmt.Errorf("load: pointer operand did not resolve to a register")
		}
		return []assemble.Fragment{{Op: ir.Load, Dst: e.resolve(in.Dst), Width: in.Dst.Width, Args: []assemble.Operand{assemble.MemOperand{BaseReg: mem.Index, Disp: in.Imm}}}}, nil

	case ir.Store:
		base := e.resolveOperand(in.Args[0])
		mem, ok := base.(assemble.RegOperand)
		if !ok {
			return nil, fmt.Errorf("store: pointer operand did not resolve to a register")
		}
		return []assemble.Fragment{{Op: ir.Store, Dst: assemble.MemOperand{BaseReg: mem.Index, Disp: in.Imm}, Args: []assemble.Operand{e.resolveOperand(in.Args[1])}}}, nil

	case ir.SubSP:
		return []assemble.Fragment{{Op: ir.SubSP, Args: []assemble.Operand{e.resolveOperand(in.Args[0])}}}, nil

	case ir.Cast:
		return []assemble.Fragment{{Op: ir.Cast, Dst: e.resolve(in.Dst), Width: in.Dst.Width, Args: []assemble.Operand{e.resolveOperand(in.Args[0])}}}, nil

	case ir.Cond:
		return []assemble.Fragment{{Op: ir.Cond, CC: in.CC, Dst: e.resolve(in.Dst), Args: []assemble.Operand{e.resolveOperand(in.Args[0]), e.resolveOperand(in.Args[1])}}}, nil

	case ir.Asm:
		return []assemble.Fragment{{Kind: assemble.FragData, Data: []byte(in.Comment), Comment: "inline asm"}}, nil

	default:
		// Mov, Add, Sub, Mul, And, Or, Xor, Neg, Not: one Fragment each,
		// a direct translation of operands through resolve/resolveOperand.
		f := assemble.Fragment{Op: in.Op, Dst: e.resolve(in.Dst)}
		for _, a := range in.Args {
			f.Args = append(f.Args, e.resolveOperand(a))
		}
		return []assemble.Fragment{f}, nil
	}
}

// lowerCondJmp emits the comparison+branch Fragment for Then, and, when
// Else isn't simply the next block in layout order, an explicit
// unconditional Jmp Fragment to Else (CondJmp's implicit "otherwise
// fall through" only holds when the builder's block order already
// placed Else right after this one).
func (e *Emitter) lowerCondJmp(in *ir.Instr, b *ir.Block, idx int) ([]assemble.Fragment, error) {
	f := assemble.Fragment{Op: ir.CondJmp, CC: in.CC, Label: e.labels[in.Then],
		Args: []assemble.Operand{e.resolveOperand(in.Args[0]), e.resolveOperand(in.Args[1])}}
	frags := []assemble.Fragment{f}
	if in.Else != nil && !e.fallsThroughTo(b, in.Else) {
		frags = append(frags, assemble.Fragment{Op: ir.Jmp, Label: e.labels[in.Else]})
	}
	return frags, nil
}

func (e *Emitter) fallsThroughTo(b *ir.Block, target *ir.Block) bool {
	for i, blk := range e.fn.Blocks {
		if blk == b {
			return i+1 < len(e.fn.Blocks) && e.fn.Blocks[i+1] == target
		}
	}
	return false
}

// lowerTableJmp expands a dense-switch TableJmp into a linear chain of
// equality compares against each table entry. The real dense-jump-table
// form (index into a base+offset*8 table of code addresses) needs a
// scaled-index addressing mode this target's encoders deliberately
// don't have (every MemOperand here is Base+Disp, no index register);
// compile/ir's builder still decides dense-vs-sparse via its own
// span/case-count heuristic, but this backend executes both forms
// identically. A true indexed jump table is future work, not a silent
// gap: see DESIGN.md. The final unconditional Jmp to Else handles the
// out-of-range case (the switch default), matching opcode.go's
// TableJmp doc.
func (e *Emitter) lowerTableJmp(in *ir.Instr) ([]assemble.Fragment, error) {
	idx := e.resolveOperand(in.Args[0])
	var frags []assemble.Fragment
	for i, target := range in.Table {
		if target == nil {
			continue
		}
		val := in.Imm + int64(i)
		frags = append(frags, assemble.Fragment{
			Op: ir.CondJmp, CC: ir.CCEQ, Label: e.labels[target],
			Args: []assemble.Operand{idx, assemble.ImmOperand{Value: val}},
		})
	}
	if in.Else != nil {
		frags = append(frags, assemble.Fragment{Op: ir.Jmp, Label: e.labels[in.Else]})
	}
	return frags, nil
}

// lowerDivMod funnels the dividend through the target's fixed dividend
// register (rax on x86-64; a plain three-register sdiv on AArch64 needs
// no such dance, DivDividendReg is -1 there and this degenerates to a
// single Fragment) per target.RegBank.DivDividendReg, matching
// target.Target.DetectExtraOccupied's documented rdx:rax clobber.
func (e *Emitter) lowerDivMod(in *ir.Instr) ([]assemble.Fragment, error) {
	bank := e.tgt.Regs()
	dividend := e.resolveOperand(in.Args[0])
	divisor := e.resolveOperand(in.Args[1])
	dst := e.resolve(in.Dst)

	if bank.DivDividendReg < 0 {
		return []assemble.Fragment{{Op: in.Op, Dst: dst, Args: []assemble.Operand{dividend, divisor}}}, nil
	}

	var frags []assemble.Fragment
	rax := assemble.RegOperand{Index: bank.DivDividendReg, Class: ir.ClassInt}
	if r, ok := dividend.(assemble.RegOperand); !ok || r.Index != bank.DivDividendReg {
		frags = append(frags, assemble.Fragment{Op: ir.Mov, Dst: rax, Args: []assemble.Operand{dividend}})
	}
	frags = append(frags, assemble.Fragment{Op: in.Op, Dst: dst, Args: []assemble.Operand{rax, divisor}})
	return frags, nil
}

// lowerShift funnels the shift count through the target's fixed count
// register (cl on x86-64) when one exists.
func (e *Emitter) lowerShift(in *ir.Instr) ([]assemble.Fragment, error) {
	bank := e.tgt.Regs()
	src := e.resolveOperand(in.Args[0])
	count := e.resolveOperand(in.Args[1])
	dst := e.resolve(in.Dst)

	var frags []assemble.Fragment
	if r, ok := dst.(assemble.RegOperand); !ok || !operandEqual(src, r) {
		frags = append(frags, assemble.Fragment{Op: ir.Mov, Dst: dst, Args: []assemble.Operand{src}})
	}
	if bank.ShiftCountReg >= 0 {
		ccount := assemble.RegOperand{Index: bank.ShiftCountReg, Class: ir.ClassInt}
		if r, ok := count.(assemble.RegOperand); !ok || r.Index != bank.ShiftCountReg {
			frags = append(frags, assemble.Fragment{Op: ir.Mov, Dst: ccount, Args: []assemble.Operand{count}})
		}
		frags = append(frags, assemble.Fragment{Op: in.Op, Dst: dst, Args: []assemble.Operand{dst}})
		return frags, nil
	}
	frags = append(frags, assemble.Fragment{Op: in.Op, Dst: dst, Args: []assemble.Operand{dst, count}})
	return frags, nil
}

func operandEqual(a assemble.Operand, b assemble.RegOperand) bool {
	r, ok := a.(assemble.RegOperand)
	return ok && r.Index == b.Index && r.Class == b.Class
}
