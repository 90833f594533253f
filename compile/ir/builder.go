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
	"xcc/compile/target"
	"xcc/utils"
)

// Builder lowers one checked *ast.FuncDecl into a *Func. Every local and
// parameter is given a frame slot up front (allocLocals below) and
// addressed through Bofs+Load/Store, the same "every C local lives in
// memory, the allocator only ever holds temporaries in registers"
// strategy small single-pass C compilers use; it sidesteps needing a
// phi-node/SSA-join story for locals that are written and read across
// different basic blocks, which this IR's plain three-address,
// non-SSA form does not model.
type Builder struct {
	f    *Func
	cur  *Block
	tgt  target.Target
	strs *StringPool

	frameOffset int

	breakStack    []*Block
	continueStack []*Block
	labels        map[string]*Block

	switchEnd []*Block
}

// BuildFunc lowers fn's body. strs is shared across every function in a
// translation unit so identical string literals anywhere in the file
// dedup to one rodata label.
func BuildFunc(fn *ast.FuncDecl, tgt target.Target, strs *StringPool) *Func {
	b := &Builder{tgt: tgt, strs: strs, labels: map[string]*Block{}}
	b.f = NewFunc(fn.Name, tgt)
	b.f.Variadic = fn.Type.Variadic
	b.cur = b.f.NewBlock("entry")
	b.f.Entry = b.cur

	b.allocLocals(fn)
	b.collectLabels(fn.Body)
	b.prologue(fn)
	b.genStmt(fn.Body)

	// A function falling off the end of its body without an explicit
	// return is only valid for a void return type; emit the implicit
	// `return;` every such function needs so every block ends in a
	// terminator compile/emit can rely on.
	if !b.cur.sealed {
		b.cur.Append(&Instr{Op: Jmp})
	}
	return b.f
}

// allocLocals assigns every parameter and local variable a byte offset
// within the frame, rounding each up to its type's alignment (the same
// layout invariant that applies to struct members applies to locals).
func (b *Builder) allocLocals(fn *ast.FuncDecl) {
	for i, sym := range fn.ParamSyms {
		_ = i
		b.assignSlot(sym)
	}
	b.walkDecls(fn.Body)
}

func (b *Builder) assignSlot(sym *ast.Symbol) {
	sz := sym.Type.SizeOf()
	al := sym.Type.AlignOf()
	b.frameOffset = alignUp(b.frameOffset+sz, al)
	sym.FrameOffset = b.frameOffset
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

func (b *Builder) walkDecls(s ast.AstStmt) {
	switch n := s.(type) {
	case *ast.Block:
		for _, st := range n.Stmts {
			b.walkDecls(st)
		}
	case *ast.DeclStmt:
		for _, vd := range n.Decls {
			if vd.Sym != nil {
				b.assignSlot(vd.Sym)
			}
		}
	case *ast.IfStmt:
		b.walkDecls(n.Then)
		if n.Else != nil {
			b.walkDecls(n.Else)
		}
	case *ast.WhileStmt:
		b.walkDecls(n.Body)
	case *ast.DoWhileStmt:
		b.walkDecls(n.Body)
	case *ast.ForStmt:
		if n.Init != nil {
			b.walkDecls(n.Init)
		}
		b.walkDecls(n.Body)
	case *ast.SwitchStmt:
		for _, st := range n.Body {
			b.walkDecls(st)
		}
	case *ast.LabelStmt:
		b.walkDecls(n.Stmt)
	}
}

func (b *Builder) collectLabels(s ast.AstStmt) {
	switch n := s.(type) {
	case *ast.Block:
		for _, st := range n.Stmts {
			b.collectLabels(st)
		}
	case *ast.IfStmt:
		b.collectLabels(n.Then)
		if n.Else != nil {
			b.collectLabels(n.Else)
		}
	case *ast.WhileStmt:
		b.collectLabels(n.Body)
	case *ast.DoWhileStmt:
		b.collectLabels(n.Body)
	case *ast.ForStmt:
		b.collectLabels(n.Body)
	case *ast.SwitchStmt:
		for _, st := range n.Body {
			b.collectLabels(st)
		}
	case *ast.LabelStmt:
		b.labels[n.Name] = b.f.NewBlock("label." + n.Name)
		b.collectLabels(n.Stmt)
	}
}

// prologue stores each incoming parameter (already classified into
// integer/float ABI registers by compile/target.RegBank.IntParamRegs/
// FloatParamRegs) into its frame slot.
func (b *Builder) prologue(fn *ast.FuncDecl) {
	bank := b.tgt.Regs()
	intIdx, floatIdx := 0, 0
	for i, sym := range fn.ParamSyms {
		pt := fn.Type.Params[i]
		addr := b.emitBofs(sym.FrameOffset)
		var v *VReg
		if pt.IsFloat() {
			v = b.f.NewVReg(ClassFloat, pt.SizeOf())
			if floatIdx < len(bank.FloatParamRegs) {
				v.PhysReg = bank.FloatParamRegs[floatIdx]
				v.Fixed = true
			}
			floatIdx++
		} else {
			v = b.f.NewVReg(ClassInt, 8)
			if intIdx < len(bank.IntParamRegs) {
				v.PhysReg = bank.IntParamRegs[intIdx]
				v.Fixed = true
			}
			intIdx++
		}
		b.f.Params = append(b.f.Params, v)
		b.emitStore(addr, Reg(v), pt)
	}
}

// -----------------------------------------------------------------------------
// Statements

func (b *Builder) genStmt(s ast.AstStmt) {
	if b.cur.sealed {
		// Dead code after an unconditional branch/return (e.g. code
		// following a `return` inside a block); start a fresh
		// unreachable block so later lowering still has somewhere to
		// append to, tolerating trailing statements after a terminator.
		b.cur = b.f.NewBlock("unreachable")
	}
	switch n := s.(type) {
	case *ast.Block:
		for _, st := range n.Stmts {
			b.genStmt(st)
		}
	case *ast.ExprStmt:
		if n.X != nil {
			b.genExpr(n.X)
		}
	case *ast.DeclStmt:
		b.genDeclStmt(n)
	case *ast.IfStmt:
		b.genIf(n)
	case *ast.WhileStmt:
		b.genWhile(n)
	case *ast.DoWhileStmt:
		b.genDoWhile(n)
	case *ast.ForStmt:
		b.genFor(n)
	case *ast.SwitchStmt:
		b.genSwitch(n)
	case *ast.BreakStmt:
		target := b.breakStack[len(b.breakStack)-1]
		b.jump(target)
	case *ast.ContinueStmt:
		target := b.continueStack[len(b.continueStack)-1]
		b.jump(target)
	case *ast.ReturnStmt:
		b.genReturn(n)
	case *ast.GotoStmt:
		b.jump(b.labels[n.Label])
	case *ast.LabelStmt:
		target := b.labels[n.Name]
		b.jump(target)
		b.cur = target
		b.genStmt(n.Stmt)
	case *ast.CaseStmt, *ast.DefaultStmt:
		// handled by genSwitch scanning ahead; nothing to lower here.
	default:
		utils.Unimplement()
	}
}

func (b *Builder) jump(target *Block) {
	if b.cur.sealed {
		return
	}
	b.cur.Append(&Instr{Op: Jmp, Then: target})
	AddSucc(b.cur, target)
}

func (b *Builder) genDeclStmt(n *ast.DeclStmt) {
	for _, vd := range n.Decls {
		if vd.Sym == nil {
			continue
		}
		addr := b.emitBofs(vd.Sym.FrameOffset)
		if vd.Init != nil {
			v := b.genExpr(vd.Init)
			b.emitStore(addr, Reg(v), vd.Type)
		}
		if vd.InitList != nil {
			b.genInitList(addr, 0, vd.InitList, vd.Type)
		}
	}
}

func (b *Builder) genInitList(base *VReg, baseOffset int, il *ast.InitList, t *ast.Type) {
	nextIndex := 0
	for _, item := range il.Items {
		var elemType *ast.Type
		var offset int
		if t.Kind == ast.TyArray {
			idx := nextIndex
			if item.IsIndex {
				idx = int(item.Index)
			}
			nextIndex = idx + 1
			elemType = t.Elem
			offset = baseOffset + idx*elemType.SizeOf()
		} else {
			var m *ast.Member
			if item.FieldName != "" {
				m = t.Member(item.FieldName)
			} else if nextIndex < len(t.Members) {
				m = t.Members[nextIndex]
			}
			nextIndex++
			if m == nil {
				continue
			}
			elemType = m.Type
			offset = baseOffset + m.Offset
		}
		if item.Nested != nil {
			b.genInitList(base, offset, item.Nested, elemType)
			continue
		}
		if item.Value == nil {
			continue
		}
		v := b.genExpr(item.Value)
		addr := base
		if offset != 0 {
			addr = b.emitAddImm(base, int64(offset))
		}
		b.emitStore(addr, Reg(v), elemType)
	}
}

func (b *Builder) genIf(n *ast.IfStmt) {
	thenB := b.f.NewBlock("if.then")
	endB := b.f.NewBlock("if.end")
	elseB := endB
	if n.Else != nil {
		elseB = b.f.NewBlock("if.else")
	}
	b.genCondBranch(n.Cond, thenB, elseB)

	b.cur = thenB
	b.genStmt(n.Then)
	b.jump(endB)

	if n.Else != nil {
		b.cur = elseB
		b.genStmt(n.Else)
		b.jump(endB)
	}
	b.cur = endB
}

func (b *Builder) genWhile(n *ast.WhileStmt) {
	head := b.f.NewBlock("while.cond")
	body := b.f.NewBlock("while.body")
	end := b.f.NewBlock("while.end")

	b.jump(head)
	b.cur = head
	b.genCondBranch(n.Cond, body, end)

	b.cur = body
	b.breakStack = append(b.breakStack, end)
	b.continueStack = append(b.continueStack, head)
	b.genStmt(n.Body)
	b.breakStack = b.breakStack[:len(b.breakStack)-1]
	b.continueStack = b.continueStack[:len(b.continueStack)-1]
	b.jump(head)

	b.cur = end
}

func (b *Builder) genDoWhile(n *ast.DoWhileStmt) {
	body := b.f.NewBlock("do.body")
	cond := b.f.NewBlock("do.cond")
	end := b.f.NewBlock("do.end")

	b.jump(body)
	b.cur = body
	b.breakStack = append(b.breakStack, end)
	b.continueStack = append(b.continueStack, cond)
	b.genStmt(n.Body)
	b.breakStack = b.breakStack[:len(b.breakStack)-1]
	b.continueStack = b.continueStack[:len(b.continueStack)-1]
	b.jump(cond)

	b.cur = cond
	b.genCondBranch(n.Cond, body, end)

	b.cur = end
}

func (b *Builder) genFor(n *ast.ForStmt) {
	if n.Init != nil {
		b.genStmt(n.Init)
	}
	head := b.f.NewBlock("for.cond")
	body := b.f.NewBlock("for.body")
	post := b.f.NewBlock("for.post")
	end := b.f.NewBlock("for.end")

	b.jump(head)
	b.cur = head
	if n.Cond != nil {
		b.genCondBranch(n.Cond, body, end)
	} else {
		b.jump(body)
	}

	b.cur = body
	b.breakStack = append(b.breakStack, end)
	b.continueStack = append(b.continueStack, post)
	b.genStmt(n.Body)
	b.breakStack = b.breakStack[:len(b.breakStack)-1]
	b.continueStack = b.continueStack[:len(b.continueStack)-1]
	b.jump(post)

	b.cur = post
	if n.Post != nil {
		b.genExpr(n.Post)
	}
	b.jump(head)

	b.cur = end
}

// genSwitch lowers with a sparse compare-and-branch chain when the case
// values are few or spread out, or a dense TableJmp when they densely
// cover a small range, following the classic density heuristic for
// choosing between a jump table and a compare chain.
func (b *Builder) genSwitch(n *ast.SwitchStmt) {
	end := b.f.NewBlock("switch.end")
	b.breakStack = append(b.breakStack, end)
	defer func() { b.breakStack = b.breakStack[:len(b.breakStack)-1] }()

	tagType := n.Tag.GetType()
	tag := b.genExpr(n.Tag)

	var cases []caseEntry
	var defaultBlock *Block
	bodyBlocks := make([]*Block, len(n.Body))
	var cur *Block
	for i, st := range n.Body {
		switch cs := st.(type) {
		case *ast.CaseStmt:
			if cur == nil || len(cur.Instrs) > 0 {
				cur = b.f.NewBlock("case")
			}
			cases = append(cases, caseEntry{value: cs.Value, block: cur})
		case *ast.DefaultStmt:
			if cur == nil || len(cur.Instrs) > 0 {
				cur = b.f.NewBlock("default")
			}
			defaultBlock = cur
		default:
			if cur == nil {
				cur = b.f.NewBlock("case")
			}
		}
		bodyBlocks[i] = cur
	}
	if defaultBlock == nil {
		defaultBlock = end
	}

	dispatch := b.cur
	lo, hi, dense := caseRange(cases)
	if dense {
		table := make([]*Block, hi-lo+1)
		for i := range table {
			table[i] = defaultBlock
		}
		for _, ce := range cases {
			table[ce.value-lo] = ce.block
		}
		for _, t := range table {
			AddSucc(dispatch, t)
		}
		AddSucc(dispatch, defaultBlock)
		dispatch.Append(&Instr{Op: TableJmp, Args: []Operand{Reg(tag)}, Imm: lo, Table: table, Else: defaultBlock})
	} else {
		for _, ce := range cases {
			nextCmp := b.f.NewBlock("switch.cmp")
			cc := ccFor(ast.BinEQ, tagType)
			b.cur = dispatch
			b.cur.Append(&Instr{Op: CondJmp, CC: cc, Args: []Operand{Reg(tag), Imm(ce.value)}, Then: ce.block, Else: nextCmp})
			AddSucc(b.cur, ce.block)
			AddSucc(b.cur, nextCmp)
			dispatch = nextCmp
		}
		b.jumpFrom(dispatch, defaultBlock)
	}

	for i, st := range n.Body {
		b.cur = bodyBlocks[i]
		switch st.(type) {
		case *ast.CaseStmt, *ast.DefaultStmt:
			// marker only, nothing to lower
		default:
			b.genStmt(st)
		}
		var fallTo *Block
		if i+1 < len(bodyBlocks) {
			fallTo = bodyBlocks[i+1]
		} else {
			fallTo = end
		}
		b.jump(fallTo)
	}

	b.cur = end
}

func (b *Builder) jumpFrom(from, target *Block) {
	if from.sealed {
		return
	}
	from.Append(&Instr{Op: Jmp, Then: target})
	AddSucc(from, target)
}

// caseEntry is one resolved switch case: its folded constant value and
// the block its body starts in.
type caseEntry struct {
	value int64
	block *Block
}

func caseRange(cases []caseEntry) (int64, int64, bool) {
	if len(cases) == 0 {
		return 0, 0, false
	}
	lo, hi := cases[0].value, cases[0].value
	for _, c := range cases {
		if c.value < lo {
			lo = c.value
		}
		if c.value > hi {
			hi = c.value
		}
	}
	span := hi - lo + 1
	// Dense enough to beat a linear compare chain when the table isn't
	// wildly larger than the number of actual cases.
	return lo, hi, span > 0 && span <= int64(len(cases))*4 && span <= 4096
}

func (b *Builder) genReturn(n *ast.ReturnStmt) {
	if n.X != nil {
		v := b.genExpr(n.X)
		class := ClassInt
		if n.X.GetType().IsFloat() {
			class = ClassFloat
		}
		ret := &VReg{Id: -1, Class: class, Width: 8, Fixed: true}
		bank := b.tgt.Regs()
		if class == ClassFloat {
			ret.PhysReg = bank.ReturnFloatReg
		} else {
			ret.PhysReg = bank.ReturnIntReg
		}
		b.cur.Append(&Instr{Op: Mov, Dst: ret, Args: []Operand{Reg(v)}})
	}
	b.cur.Append(&Instr{Op: Jmp})
}
