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
package ast

import "xcc/utils"

// Checker is the semantic analysis pass: it walks the
// syntax-only AST the Parser produced, resolves every identifier against a
// scope chain, types every expression, rejects ill-typed programs, and
// folds static initializers to constants. It is a separate pass (rather
// than folded into parsing) because C's scoping and type rules need the
// whole declaration in view, not just the token being read.
type Checker struct {
	global *Scope
	cur    *Scope

	breakTargets    []bool
	continueTargets []bool
	switchCases     []*utils.Set[int64]
	curFunc         *FuncDecl
}

func NewChecker() *Checker {
	g := NewScope(nil)
	return &Checker{global: g, cur: g}
}

// Check resolves and types every declaration in tu in place, returning the
// same tu for convenience. Panics with *CompileError on any semantic
// violation: all semantic errors are treated as fatal.
func Check(tu *TranslationUnit) *TranslationUnit {
	c := NewChecker()
	c.checkUnit(tu)
	return tu
}

func (c *Checker) pushScope() { c.cur = NewScope(c.cur) }
func (c *Checker) popScope()  { c.cur = c.cur.Parent() }

func (c *Checker) declare(name string, sym *Symbol, pos Pos) {
	if _, ok := c.cur.LookupLocal(name); ok {
		errorAt(pos, "redefinition of %q", name)
	}
	c.cur.Declare(name, sym)
}

func (c *Checker) checkUnit(tu *TranslationUnit) {
	// Pre-declare every function and global so forward calls and mutual
	// recursion resolve regardless of textual order.
	for _, d := range tu.Decls {
		switch n := d.(type) {
		case *FuncDecl:
			c.declareFuncProto(n)
		case *VarDecl:
			c.declareGlobal(n)
		case *EnumConstDecl:
			c.declare(n.Name, &Symbol{Name: n.Name, Kind: SymEnumConst, Type: n.Type, EnumValue: n.Value}, Pos{})
		}
	}
	for _, d := range tu.Decls {
		if fn, ok := d.(*FuncDecl); ok && fn.Body != nil {
			c.checkFunc(fn)
		}
	}
}

func (c *Checker) declareFuncProto(n *FuncDecl) {
	if existing, ok := c.cur.LookupLocal(n.Name); ok {
		if !existing.Type.Equal(n.Type) {
			errorAt(n.Pos, "conflicting types for %q", n.Name)
		}
		n.Sym = existing
		return
	}
	sym := &Symbol{Name: n.Name, Kind: SymFunc, Type: n.Type, Storage: n.Storage}
	c.cur.Declare(n.Name, sym)
	n.Sym = sym
}

func (c *Checker) declareGlobal(n *VarDecl) {
	kind := SymGlobal
	if n.Storage == SCStatic {
		kind = SymStatic
	}
	sym := &Symbol{Name: n.Name, Kind: kind, Type: n.Type, Storage: n.Storage}
	c.declare(n.Name, sym, n.Pos)
	n.Sym = sym
	if n.Init != nil {
		n.Init = c.checkExpr(n.Init)
		if n.Init.GetType().IsInteger() {
			// static storage duration requires a constant initializer;
			// non-foldable expressions panic here with a CompileError,
			// which is the desired fatal diagnostic. The folded value
			// replaces the expression so later stages see a literal.
			v := foldConstInt(n.Init)
			n.Init = &IntLit{Expr: Expr{Type: n.Init.GetType(), Pos: n.Init.Loc()}, Value: v}
		}
	}
	if n.InitList != nil {
		c.checkInitList(n.InitList, n.Type)
	}
}

func (c *Checker) checkFunc(fn *FuncDecl) {
	c.curFunc = fn
	c.pushScope()
	defer func() { c.popScope(); c.curFunc = nil }()

	fn.ParamSyms = make([]*Symbol, len(fn.ParamNames))
	for i, pname := range fn.ParamNames {
		sym := &Symbol{Name: pname, Kind: SymParam, Type: fn.Type.Params[i]}
		fn.ParamSyms[i] = sym
		if pname == "" {
			continue
		}
		c.declare(pname, sym, fn.Pos)
	}
	c.checkBlock(fn.Body)
}

func (c *Checker) checkBlock(b *Block) {
	c.pushScope()
	defer c.popScope()
	for i, s := range b.Stmts {
		b.Stmts[i] = c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(s AstStmt) AstStmt {
	switch n := s.(type) {
	case *Block:
		c.checkBlock(n)
	case *ExprStmt:
		if n.X != nil {
			n.X = c.checkExpr(n.X)
		}
	case *DeclStmt:
		c.checkDeclStmt(n)
	case *IfStmt:
		n.Cond = c.checkExpr(n.Cond)
		n.Then = c.checkStmt(n.Then)
		if n.Else != nil {
			n.Else = c.checkStmt(n.Else)
		}
	case *WhileStmt:
		n.Cond = c.checkExpr(n.Cond)
		c.pushLoop()
		n.Body = c.checkStmt(n.Body)
		c.popLoop()
	case *DoWhileStmt:
		c.pushLoop()
		n.Body = c.checkStmt(n.Body)
		c.popLoop()
		n.Cond = c.checkExpr(n.Cond)
	case *ForStmt:
		c.pushScope()
		if n.Init != nil {
			n.Init = c.checkStmt(n.Init)
		}
		if n.Cond != nil {
			n.Cond = c.checkExpr(n.Cond)
		}
		if n.Post != nil {
			n.Post = c.checkExpr(n.Post)
		}
		c.pushLoop()
		n.Body = c.checkStmt(n.Body)
		c.popLoop()
		c.popScope()
	case *SwitchStmt:
		n.Tag = c.checkExpr(n.Tag)
		if !n.Tag.GetType().IsInteger() {
			errorAt(n.Tag.Loc(), "switch quantity not an integer")
		}
		c.breakTargets = append(c.breakTargets, true)
		c.switchCases = append(c.switchCases, utils.NewSet[int64]())
		for i, sub := range n.Body {
			n.Body[i] = c.checkStmt(sub)
		}
		c.switchCases = c.switchCases[:len(c.switchCases)-1]
		c.breakTargets = c.breakTargets[:len(c.breakTargets)-1]
	case *CaseStmt:
		if len(c.switchCases) == 0 {
			errorAt(Pos{}, "case label not within a switch statement")
		}
		top := c.switchCases[len(c.switchCases)-1]
		if !top.Add(n.Value) {
			errorAt(Pos{}, "duplicate case value %d", n.Value)
		}
	case *DefaultStmt:
		if len(c.switchCases) == 0 {
			errorAt(Pos{}, "default label not within a switch statement")
		}
	case *BreakStmt:
		if len(c.breakTargets) == 0 {
			errorAt(Pos{}, "break statement not within a loop or switch")
		}
	case *ContinueStmt:
		if len(c.continueTargets) == 0 {
			errorAt(Pos{}, "continue statement not within a loop")
		}
	case *ReturnStmt:
		if n.X != nil {
			n.X = c.checkExpr(n.X)
			n.X = c.convertAssign(n.X, c.curFunc.Type.Ret, n.X.Loc())
		}
	case *GotoStmt, *LabelStmt:
		if l, ok := s.(*LabelStmt); ok {
			l.Stmt = c.checkStmt(l.Stmt)
		}
	}
	return s
}

func (c *Checker) pushLoop() {
	c.breakTargets = append(c.breakTargets, true)
	c.continueTargets = append(c.continueTargets, true)
}
func (c *Checker) popLoop() {
	c.breakTargets = c.breakTargets[:len(c.breakTargets)-1]
	c.continueTargets = c.continueTargets[:len(c.continueTargets)-1]
}

func (c *Checker) checkDeclStmt(n *DeclStmt) {
	for _, e := range n.Enums {
		c.declare(e.Name, &Symbol{Name: e.Name, Kind: SymEnumConst, Type: e.Type, EnumValue: e.Value}, Pos{})
	}
	for _, vd := range n.Decls {
		kind := SymLocal
		if vd.Storage == SCStatic {
			kind = SymStatic
		}
		sym := &Symbol{Name: vd.Name, Kind: kind, Type: vd.Type, Storage: vd.Storage}
		c.declare(vd.Name, sym, vd.Pos)
		vd.Sym = sym
		if vd.Init != nil {
			vd.Init = c.checkExpr(vd.Init)
			vd.Init = c.convertAssign(vd.Init, vd.Type, vd.Init.Loc())
		}
		if vd.InitList != nil {
			c.checkInitList(vd.InitList, vd.Type)
		}
	}
}

func (c *Checker) checkInitList(il *InitList, t *Type) {
	for _, item := range il.Items {
		if item.Nested != nil {
			elemType := t.Elem
			if t.Kind == TyStruct || t.Kind == TyUnion {
				if item.FieldName != "" {
					if m := t.Member(item.FieldName); m != nil {
						elemType = m.Type
					}
				} else if len(t.Members) > 0 {
					elemType = t.Members[0].Type
				}
			}
			c.checkInitList(item.Nested, elemType)
			continue
		}
		if item.Value != nil {
			item.Value = c.checkExpr(item.Value)
		}
	}
}

// -----------------------------------------------------------------------------
// Expressions

func (c *Checker) checkExpr(e AstExpr) AstExpr {
	switch n := e.(type) {
	case *IntLit, *FloatLit, *CharLit:
		return e
	case *StrLit:
		return n
	case *Ident:
		sym, ok := c.cur.Lookup(n.Name)
		if !ok {
			errorAt(n.Pos, "use of undeclared identifier %q", n.Name)
		}
		n.Sym = sym
		n.SetType(sym.Type)
		n.SetLvalue(sym.Kind != SymEnumConst && sym.Kind != SymFunc)
		return n
	case *UnaryExpr:
		return c.checkUnary(n)
	case *BinaryExpr:
		return c.checkBinary(n)
	case *AssignExpr:
		return c.checkAssign(n)
	case *CondExpr:
		n.Cond = c.checkExpr(n.Cond)
		n.Then = c.checkExpr(n.Then)
		n.Else = c.checkExpr(n.Else)
		n.SetType(UsualArithConversion(decayed(n.Then), decayed(n.Else)))
		return n
	case *CallExpr:
		return c.checkCall(n)
	case *MemberExpr:
		return c.checkMember(n)
	case *IndexExpr:
		return c.checkIndex(n)
	case *CastExpr:
		n.X = c.checkExpr(n.X)
		return n
	case *SizeofExpr:
		if n.X != nil {
			n.X = c.checkExpr(n.X)
		}
		return n
	}
	return e
}

func decayed(e AstExpr) *Type { return e.GetType().Decay() }

func (c *Checker) checkUnary(n *UnaryExpr) AstExpr {
	n.X = c.checkExpr(n.X)
	switch n.Op {
	case UnaryAddr:
		if !n.X.IsLvalue() {
			errorAt(n.Loc(), "cannot take the address of an rvalue")
		}
		if id, ok := n.X.(*Ident); ok && id.Sym != nil {
			id.Sym.AddressTaken = true
		}
		n.SetType(PointerTo(n.X.GetType()))
	case UnaryDeref:
		t := decayed(n.X)
		if !t.IsPointer() {
			errorAt(n.Loc(), "indirection requires pointer operand")
		}
		n.SetType(t.Elem)
		n.SetLvalue(true)
	case UnaryPreInc, UnaryPreDec, UnaryPostInc, UnaryPostDec:
		if !n.X.IsLvalue() {
			errorAt(n.Loc(), "expression is not assignable")
		}
		n.SetType(n.X.GetType())
		n.SetLvalue(n.Op == UnaryPreInc || n.Op == UnaryPreDec)
	case UnaryNot:
		n.SetType(TInt)
	default:
		n.SetType(promote(decayed(n.X)))
	}
	return n
}

func (c *Checker) checkBinary(n *BinaryExpr) AstExpr {
	n.Left = c.checkExpr(n.Left)
	n.Right = c.checkExpr(n.Right)
	lt, rt := decayed(n.Left), decayed(n.Right)

	switch n.Op {
	case BinLogAnd, BinLogOr, BinEQ, BinNE, BinLT, BinGT, BinLE, BinGE:
		n.SetType(TInt)
		return n
	case BinComma:
		n.SetType(rt)
		return n
	case BinAdd:
		if lt.IsPointer() && rt.IsInteger() {
			n.SetType(lt)
			return n
		}
		if rt.IsPointer() && lt.IsInteger() {
			n.SetType(rt)
			return n
		}
	case BinSub:
		if lt.IsPointer() && rt.IsInteger() {
			n.SetType(lt)
			return n
		}
		if lt.IsPointer() && rt.IsPointer() {
			n.SetType(TLong)
			return n
		}
	}
	if !lt.IsArith() || !rt.IsArith() {
		errorAt(n.Loc(), "invalid operands to binary expression (%v and %v)", lt, rt)
	}
	n.SetType(UsualArithConversion(lt, rt))
	return n
}

func (c *Checker) checkAssign(n *AssignExpr) AstExpr {
	n.Left = c.checkExpr(n.Left)
	n.Right = c.checkExpr(n.Right)
	if !n.Left.IsLvalue() {
		errorAt(n.Loc(), "expression is not assignable")
	}
	n.Right = c.convertAssign(n.Right, n.Left.GetType(), n.Loc())
	n.SetType(n.Left.GetType())
	return n
}

// convertAssign enforces C's assignment compatibility rule: matching
// types, arithmetic<->arithmetic, pointer compatibility with
// void* relaxation, or literal 0 -> pointer.
func (c *Checker) convertAssign(rhs AstExpr, target *Type, pos Pos) AstExpr {
	rt := decayed(rhs)
	if target.Equal(rt) {
		return rhs
	}
	if target.IsArith() && rt.IsArith() {
		return &CastExpr{Expr: Expr{Type: target, Pos: pos}, X: rhs}
	}
	if target.IsPointer() {
		if lit, ok := rhs.(*IntLit); ok && lit.Value == 0 {
			return &CastExpr{Expr: Expr{Type: target, Pos: pos}, X: rhs}
		}
	}
	errorAt(pos, "incompatible types assigning to %v from %v", target, rt)
	return rhs
}

func (c *Checker) checkCall(n *CallExpr) AstExpr {
	n.Callee = c.checkExpr(n.Callee)
	for i, a := range n.Args {
		n.Args[i] = c.checkExpr(a)
	}
	ft := n.Callee.GetType()
	if ft.IsPointer() {
		ft = ft.Elem
	}
	if !ft.IsFunc() {
		errorAt(n.Loc(), "called object is not a function")
	}
	n.SetType(ft.Ret)
	return n
}

func (c *Checker) checkMember(n *MemberExpr) AstExpr {
	n.X = c.checkExpr(n.X)
	t := n.X.GetType()
	if n.Arrow {
		if !t.IsPointer() {
			errorAt(n.Loc(), "member reference type %v is not a pointer", t)
		}
		t = t.Elem
	}
	if !t.IsAggregate() {
		errorAt(n.Loc(), "member reference base type %v is not a struct or union", t)
	}
	m := t.Member(n.Name)
	if m == nil {
		errorAt(n.Loc(), "no member named %q in %v", n.Name, t)
	}
	n.Offset = m.Offset
	n.SetType(m.Type)
	n.SetLvalue(true)
	return n
}

func (c *Checker) checkIndex(n *IndexExpr) AstExpr {
	n.X = c.checkExpr(n.X)
	n.Index = c.checkExpr(n.Index)
	t := decayed(n.X)
	if !t.IsPointer() {
		errorAt(n.Loc(), "subscripted value is not an array or pointer")
	}
	n.SetType(t.Elem)
	n.SetLvalue(true)
	return n
}
