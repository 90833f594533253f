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

import (
	"xcc/ast"
	"xcc/utils"
)

func classOf(t *ast.Type) RegClass {
	if t.IsFloat() {
		return ClassFloat
	}
	return ClassInt
}

func widthOf(t *ast.Type) int {
	if t.IsArray() || t.IsFunc() {
		return 8
	}
	return t.SizeOf()
}

// -----------------------------------------------------------------------------
// Addressing

func (b *Builder) emitBofs(frameOffset int) *VReg {
	v := b.f.NewVReg(ClassInt, 8)
	b.cur.Append(&Instr{Op: Bofs, Dst: v, Imm: int64(frameOffset)})
	return v
}

func (b *Builder) emitIofs(name string) *VReg {
	v := b.f.NewVReg(ClassInt, 8)
	b.cur.Append(&Instr{Op: Iofs, Dst: v, Sym: name})
	return v
}

func (b *Builder) emitSofs(label string) *VReg {
	v := b.f.NewVReg(ClassInt, 8)
	b.cur.Append(&Instr{Op: Sofs, Dst: v, Sym: label})
	return v
}

func (b *Builder) emitAddImm(base *VReg, imm int64) *VReg {
	if imm == 0 {
		return base
	}
	v := b.f.NewVReg(ClassInt, 8)
	b.cur.Append(&Instr{Op: Add, Dst: v, Args: []Operand{Reg(base), Imm(imm)}})
	return v
}

func (b *Builder) emitLoad(addr *VReg, t *ast.Type) *VReg {
	v := b.f.NewVReg(classOf(t), widthOf(t))
	b.cur.Append(&Instr{Op: Load, Dst: v, Args: []Operand{Reg(addr)}})
	return v
}

func (b *Builder) emitStore(addr *VReg, val Operand, t *ast.Type) {
	b.cur.Append(&Instr{Op: Store, Args: []Operand{Reg(addr), val}})
}

// genAddr computes the address of an lvalue expression into a register.
func (b *Builder) genAddr(e ast.AstExpr) *VReg {
	switch n := e.(type) {
	case *ast.Ident:
		switch n.Sym.Kind {
		case ast.SymLocal, ast.SymParam:
			return b.emitBofs(n.Sym.FrameOffset)
		case ast.SymGlobal, ast.SymStatic, ast.SymFunc:
			return b.emitIofs(n.Name)
		default:
			utils.Unimplement()
		}
	case *ast.UnaryExpr:
		if n.Op == ast.UnaryDeref {
			return b.genExpr(n.X)
		}
	case *ast.MemberExpr:
		var base *VReg
		if n.Arrow {
			base = b.genExpr(n.X)
		} else {
			base = b.genAddr(n.X)
		}
		return b.emitAddImm(base, int64(n.Offset))
	case *ast.IndexExpr:
		base := b.genExpr(n.X)
		idx := b.genExpr(n.Index)
		elemSize := n.GetType().SizeOf()
		return b.indexAddr(base, idx, elemSize)
	}
	utils.Unimplement()
	return nil
}

func (b *Builder) indexAddr(base, idx *VReg, elemSize int) *VReg {
	scaled := idx
	if elemSize != 1 {
		scaled = b.f.NewVReg(ClassInt, 8)
		b.cur.Append(&Instr{Op: Mul, Dst: scaled, Args: []Operand{Reg(idx), Imm(int64(elemSize))}})
	}
	addr := b.f.NewVReg(ClassInt, 8)
	b.cur.Append(&Instr{Op: Add, Dst: addr, Args: []Operand{Reg(base), Reg(scaled)}})
	return addr
}

// -----------------------------------------------------------------------------
// Expressions

func (b *Builder) genExpr(e ast.AstExpr) *VReg {
	switch n := e.(type) {
	case *ast.IntLit:
		v := b.f.NewVReg(ClassInt, widthOf(n.GetType()))
		b.cur.Append(&Instr{Op: Mov, Dst: v, Args: []Operand{Imm(n.Value)}})
		return v
	case *ast.CharLit:
		v := b.f.NewVReg(ClassInt, 1)
		b.cur.Append(&Instr{Op: Mov, Dst: v, Args: []Operand{Imm(int64(n.Value))}})
		return v
	case *ast.FloatLit:
		v := b.f.NewVReg(ClassFloat, widthOf(n.GetType()))
		b.cur.Append(&Instr{Op: Mov, Dst: v, Args: []Operand{FImm(n.Value)}})
		return v
	case *ast.StrLit:
		label := b.strs.Intern(n.Value)
		return b.emitSofs(label)
	case *ast.Ident:
		if n.Sym.Kind == ast.SymFunc {
			return b.emitIofs(n.Name)
		}
		if n.Sym.Kind == ast.SymEnumConst {
			v := b.f.NewVReg(ClassInt, 4)
			b.cur.Append(&Instr{Op: Mov, Dst: v, Args: []Operand{Imm(n.Sym.EnumValue)}})
			return v
		}
		t := n.GetType()
		if t.IsArray() {
			return b.genAddr(n)
		}
		return b.emitLoad(b.genAddr(n), t)
	case *ast.UnaryExpr:
		return b.genUnary(n)
	case *ast.BinaryExpr:
		return b.genBinary(n)
	case *ast.AssignExpr:
		return b.genAssign(n)
	case *ast.CondExpr:
		return b.genCond(n)
	case *ast.CallExpr:
		return b.genCall(n)
	case *ast.MemberExpr:
		return b.emitLoad(b.genAddr(n), n.GetType())
	case *ast.IndexExpr:
		t := n.GetType()
		addr := b.genAddr(n)
		if t.IsArray() {
			return addr
		}
		return b.emitLoad(addr, t)
	case *ast.CastExpr:
		return b.genCast(n)
	case *ast.SizeofExpr:
		var t *ast.Type
		if n.OfType != nil {
			t = n.OfType
		} else {
			t = n.X.GetType()
		}
		v := b.f.NewVReg(ClassInt, 8)
		b.cur.Append(&Instr{Op: Mov, Dst: v, Args: []Operand{Imm(int64(t.SizeOf()))}})
		return v
	}
	utils.Unimplement()
	return nil
}

func (b *Builder) genCast(n *ast.CastExpr) *VReg {
	src := b.genExpr(n.X)
	dstT := n.GetType()
	if dstT.Equal(n.X.GetType()) {
		return src
	}
	v := b.f.NewVReg(classOf(dstT), widthOf(dstT))
	b.cur.Append(&Instr{Op: Cast, Dst: v, Args: []Operand{Reg(src)}})
	return v
}

func (b *Builder) genUnary(n *ast.UnaryExpr) *VReg {
	switch n.Op {
	case ast.UnaryAddr:
		return b.genAddr(n.X)
	case ast.UnaryDeref:
		addr := b.genExpr(n.X)
		t := n.GetType()
		if t.IsArray() {
			return addr
		}
		return b.emitLoad(addr, t)
	case ast.UnaryNeg:
		x := b.genExpr(n.X)
		v := b.f.NewVReg(classOf(n.GetType()), widthOf(n.GetType()))
		b.cur.Append(&Instr{Op: Neg, Dst: v, Args: []Operand{Reg(x)}})
		return v
	case ast.UnaryPlus:
		return b.genExpr(n.X)
	case ast.UnaryBitNot:
		x := b.genExpr(n.X)
		v := b.f.NewVReg(ClassInt, widthOf(n.GetType()))
		b.cur.Append(&Instr{Op: Not, Dst: v, Args: []Operand{Reg(x)}})
		return v
	case ast.UnaryNot:
		x := b.genExpr(n.X)
		v := b.f.NewVReg(ClassInt, 4)
		b.cur.Append(&Instr{Op: Cond, Dst: v, CC: CCEQ, Args: []Operand{Reg(x), Imm(0)}})
		return v
	case ast.UnaryPreInc, ast.UnaryPreDec, ast.UnaryPostInc, ast.UnaryPostDec:
		return b.genIncDec(n)
	}
	utils.Unimplement()
	return nil
}

func (b *Builder) genIncDec(n *ast.UnaryExpr) *VReg {
	addr := b.genAddr(n.X)
	t := n.X.GetType()
	old := b.emitLoad(addr, t)
	step := int64(1)
	if t.IsPointer() {
		step = int64(t.Elem.SizeOf())
	}
	op := Add
	if n.Op == ast.UnaryPreDec || n.Op == ast.UnaryPostDec {
		op = Sub
	}
	updated := b.f.NewVReg(classOf(t), widthOf(t))
	b.cur.Append(&Instr{Op: op, Dst: updated, Args: []Operand{Reg(old), Imm(step)}})
	b.emitStore(addr, Reg(updated), t)
	if n.Op == ast.UnaryPreInc || n.Op == ast.UnaryPreDec {
		return updated
	}
	return old
}

func (b *Builder) genBinary(n *ast.BinaryExpr) *VReg {
	switch n.Op {
	case ast.BinLogAnd, ast.BinLogOr:
		return b.genShortCircuit(n)
	case ast.BinComma:
		b.genExpr(n.Left)
		return b.genExpr(n.Right)
	case ast.BinEQ, ast.BinNE, ast.BinLT, ast.BinGT, ast.BinLE, ast.BinGE:
		l := b.genExpr(n.Left)
		r := b.genExpr(n.Right)
		v := b.f.NewVReg(ClassInt, 4)
		b.cur.Append(&Instr{Op: Cond, Dst: v, CC: ccFor(n.Op, n.Left.GetType()), Args: []Operand{Reg(l), Reg(r)}})
		return v
	}

	lt := n.Left.GetType().Decay()
	rt := n.Right.GetType().Decay()
	l := b.genExpr(n.Left)
	r := b.genExpr(n.Right)

	// Pointer arithmetic: ptr +/- int scales the integer by the pointee
	// size; ptr - ptr divides the byte difference by the pointee size.
	if (n.Op == ast.BinAdd || n.Op == ast.BinSub) && lt.IsPointer() {
		if rt.IsPointer() {
			diff := b.f.NewVReg(ClassInt, 8)
			b.cur.Append(&Instr{Op: Sub, Dst: diff, Args: []Operand{Reg(l), Reg(r)}})
			out := b.f.NewVReg(ClassInt, 8)
			b.cur.Append(&Instr{Op: Div, Dst: out, Args: []Operand{Reg(diff), Imm(int64(lt.Elem.SizeOf()))}})
			return out
		}
		scaled := r
		if sz := lt.Elem.SizeOf(); sz != 1 {
			scaled = b.f.NewVReg(ClassInt, 8)
			b.cur.Append(&Instr{Op: Mul, Dst: scaled, Args: []Operand{Reg(r), Imm(int64(sz))}})
		}
		v := b.f.NewVReg(ClassInt, 8)
		op := Add
		if n.Op == ast.BinSub {
			op = Sub
		}
		b.cur.Append(&Instr{Op: op, Dst: v, Args: []Operand{Reg(l), Reg(scaled)}})
		return v
	}
	if n.Op == ast.BinAdd && rt.IsPointer() {
		scaled := l
		if sz := rt.Elem.SizeOf(); sz != 1 {
			scaled = b.f.NewVReg(ClassInt, 8)
			b.cur.Append(&Instr{Op: Mul, Dst: scaled, Args: []Operand{Reg(l), Imm(int64(sz))}})
		}
		v := b.f.NewVReg(ClassInt, 8)
		b.cur.Append(&Instr{Op: Add, Dst: v, Args: []Operand{Reg(r), Reg(scaled)}})
		return v
	}

	v := b.f.NewVReg(classOf(n.GetType()), widthOf(n.GetType()))
	b.cur.Append(&Instr{Op: binOpcode(n.Op), Dst: v, Args: []Operand{Reg(l), Reg(r)}})
	return v
}

func binOpcode(op ast.BinOp) Op {
	switch op {
	case ast.BinAdd:
		return Add
	case ast.BinSub:
		return Sub
	case ast.BinMul:
		return Mul
	case ast.BinDiv:
		return Div
	case ast.BinMod:
		return Mod
	case ast.BinAnd:
		return And
	case ast.BinOr:
		return Or
	case ast.BinXor:
		return Xor
	case ast.BinShl:
		return Shl
	case ast.BinShr:
		return Shr
	}
	utils.Unimplement()
	return Add
}

func ccFor(op ast.BinOp, operandType *ast.Type) CondCode {
	unsigned := operandType.IsInteger() && operandType.Unsigned
	switch op {
	case ast.BinEQ:
		return CCEQ
	case ast.BinNE:
		return CCNE
	case ast.BinLT:
		if unsigned {
			return CCLTU
		}
		return CCLT
	case ast.BinGT:
		if unsigned {
			return CCGTU
		}
		return CCGT
	case ast.BinLE:
		if unsigned {
			return CCLEU
		}
		return CCLE
	case ast.BinGE:
		if unsigned {
			return CCGEU
		}
		return CCGE
	}
	return CCEQ
}

// genShortCircuit lowers && and || with real control flow rather than a
// branchless bitwise-and/or, so the right operand is only evaluated when
// its side effects are required.
func (b *Builder) genShortCircuit(n *ast.BinaryExpr) *VReg {
	result := b.f.NewVReg(ClassInt, 4)
	rhsB := b.f.NewBlock("sc.rhs")
	shortB := b.f.NewBlock("sc.short")
	endB := b.f.NewBlock("sc.end")

	l := b.genExpr(n.Left)
	if n.Op == ast.BinLogAnd {
		b.cur.Append(&Instr{Op: CondJmp, CC: CCNE, Args: []Operand{Reg(l), Imm(0)}, Then: rhsB, Else: shortB})
	} else {
		b.cur.Append(&Instr{Op: CondJmp, CC: CCEQ, Args: []Operand{Reg(l), Imm(0)}, Then: rhsB, Else: shortB})
	}
	AddSucc(b.cur, rhsB)
	AddSucc(b.cur, shortB)

	shortVal := int64(0)
	if n.Op == ast.BinLogOr {
		shortVal = 1
	}
	b.cur = shortB
	b.cur.Append(&Instr{Op: Mov, Dst: result, Args: []Operand{Imm(shortVal)}})
	b.jump(endB)

	b.cur = rhsB
	r := b.genExpr(n.Right)
	rv := b.f.NewVReg(ClassInt, 4)
	b.cur.Append(&Instr{Op: Cond, Dst: rv, CC: CCNE, Args: []Operand{Reg(r), Imm(0)}})
	b.cur.Append(&Instr{Op: Mov, Dst: result, Args: []Operand{Reg(rv)}})
	b.jump(endB)

	b.cur = endB
	return result
}

func (b *Builder) genCondBranch(cond ast.AstExpr, trueB, falseB *Block) {
	if bin, ok := cond.(*ast.BinaryExpr); ok {
		switch bin.Op {
		case ast.BinLogAnd:
			mid := b.f.NewBlock("and.rhs")
			b.genCondBranch(bin.Left, mid, falseB)
			b.cur = mid
			b.genCondBranch(bin.Right, trueB, falseB)
			return
		case ast.BinLogOr:
			mid := b.f.NewBlock("or.rhs")
			b.genCondBranch(bin.Left, trueB, mid)
			b.cur = mid
			b.genCondBranch(bin.Right, trueB, falseB)
			return
		case ast.BinEQ, ast.BinNE, ast.BinLT, ast.BinGT, ast.BinLE, ast.BinGE:
			l := b.genExpr(bin.Left)
			r := b.genExpr(bin.Right)
			b.cur.Append(&Instr{Op: CondJmp, CC: ccFor(bin.Op, bin.Left.GetType()), Args: []Operand{Reg(l), Reg(r)}, Then: trueB, Else: falseB})
			AddSucc(b.cur, trueB)
			AddSucc(b.cur, falseB)
			return
		}
	}
	if u, ok := cond.(*ast.UnaryExpr); ok && u.Op == ast.UnaryNot {
		b.genCondBranch(u.X, falseB, trueB)
		return
	}
	v := b.genExpr(cond)
	b.cur.Append(&Instr{Op: CondJmp, CC: CCNE, Args: []Operand{Reg(v), Imm(0)}, Then: trueB, Else: falseB})
	AddSucc(b.cur, trueB)
	AddSucc(b.cur, falseB)
}

func (b *Builder) genCond(n *ast.CondExpr) *VReg {
	thenB := b.f.NewBlock("cond.then")
	elseB := b.f.NewBlock("cond.else")
	endB := b.f.NewBlock("cond.end")
	b.genCondBranch(n.Cond, thenB, elseB)

	result := b.f.NewVReg(classOf(n.GetType()), widthOf(n.GetType()))

	b.cur = thenB
	tv := b.genExpr(n.Then)
	b.cur.Append(&Instr{Op: Mov, Dst: result, Args: []Operand{Reg(tv)}})
	b.jump(endB)

	b.cur = elseB
	ev := b.genExpr(n.Else)
	b.cur.Append(&Instr{Op: Mov, Dst: result, Args: []Operand{Reg(ev)}})
	b.jump(endB)

	b.cur = endB
	return result
}

func (b *Builder) genAssign(n *ast.AssignExpr) *VReg {
	addr := b.genAddr(n.Left)
	t := n.Left.GetType()
	if !n.IsCompound {
		v := b.genExpr(n.Right)
		b.emitStore(addr, Reg(v), t)
		return v
	}
	old := b.emitLoad(addr, t)
	r := b.genExpr(n.Right)
	v := b.f.NewVReg(classOf(t), widthOf(t))
	b.cur.Append(&Instr{Op: binOpcode(n.Op), Dst: v, Args: []Operand{Reg(old), Reg(r)}})
	b.emitStore(addr, Reg(v), t)
	return v
}

func (b *Builder) genCall(n *ast.CallExpr) *VReg {
	bank := b.tgt.Regs()
	var argVRegs []*VReg
	var argTypes []*ast.Type
	for _, a := range n.Args {
		argVRegs = append(argVRegs, b.genExpr(a))
		argTypes = append(argTypes, a.GetType())
	}

	b.cur.Append(&Instr{Op: Precall})

	intIdx, floatIdx := 0, 0
	for i, v := range argVRegs {
		class, reg := ClassInt, -1
		if argTypes[i].IsFloat() {
			class = ClassFloat
			if floatIdx < len(bank.FloatParamRegs) {
				reg = bank.FloatParamRegs[floatIdx]
			}
			floatIdx++
		} else {
			if intIdx < len(bank.IntParamRegs) {
				reg = bank.IntParamRegs[intIdx]
			}
			intIdx++
		}
		b.cur.Append(&Instr{Op: PushArg, Args: []Operand{Reg(v)}, ArgClass: class, Imm: int64(reg)})
	}

	call := &Instr{Op: Call, Args: nil}
	if id, ok := n.Callee.(*ast.Ident); ok && id.Sym != nil && id.Sym.Kind == ast.SymFunc {
		call.Sym = id.Name
	} else {
		callee := b.genExpr(n.Callee)
		call.Args = []Operand{Reg(callee)}
	}
	b.cur.Append(call)

	retType := n.GetType()
	if retType.IsVoid() {
		return nil
	}
	res := b.f.NewVReg(classOf(retType), widthOf(retType))
	b.cur.Append(&Instr{Op: Result, Dst: res})
	return res
}
