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

// foldConstInt evaluates an integer constant expression at parse time, used
// for array dimensions, case labels, and enum initializers, which C
// requires to be foldable without running the compiled program.
func foldConstInt(e AstExpr) int64 {
	switch n := e.(type) {
	case *IntLit:
		return n.Value
	case *CharLit:
		return int64(n.Value)
	case *UnaryExpr:
		v := foldConstInt(n.X)
		switch n.Op {
		case UnaryNeg:
			return -v
		case UnaryPlus:
			return v
		case UnaryBitNot:
			return ^v
		case UnaryNot:
			if v == 0 {
				return 1
			}
			return 0
		default:
			errorAt(n.Loc(), "not a constant expression")
		}
	case *BinaryExpr:
		l := foldConstInt(n.Left)
		switch n.Op {
		case BinAdd:
			return l + foldConstInt(n.Right)
		case BinSub:
			return l - foldConstInt(n.Right)
		case BinMul:
			return l * foldConstInt(n.Right)
		case BinDiv:
			r := foldConstInt(n.Right)
			if r == 0 {
				errorAt(n.Loc(), "division by zero in constant expression")
			}
			return l / r
		case BinMod:
			r := foldConstInt(n.Right)
			if r == 0 {
				errorAt(n.Loc(), "division by zero in constant expression")
			}
			return l % r
		case BinShl:
			return l << uint(foldConstInt(n.Right))
		case BinShr:
			return l >> uint(foldConstInt(n.Right))
		case BinAnd:
			return l & foldConstInt(n.Right)
		case BinOr:
			return l | foldConstInt(n.Right)
		case BinXor:
			return l ^ foldConstInt(n.Right)
		case BinLogAnd:
			if l != 0 && foldConstInt(n.Right) != 0 {
				return 1
			}
			return 0
		case BinLogOr:
			if l != 0 || foldConstInt(n.Right) != 0 {
				return 1
			}
			return 0
		case BinEQ:
			if l == foldConstInt(n.Right) {
				return 1
			}
			return 0
		case BinNE:
			if l != foldConstInt(n.Right) {
				return 1
			}
			return 0
		case BinLT:
			if l < foldConstInt(n.Right) {
				return 1
			}
			return 0
		case BinGT:
			if l > foldConstInt(n.Right) {
				return 1
			}
			return 0
		case BinLE:
			if l <= foldConstInt(n.Right) {
				return 1
			}
			return 0
		case BinGE:
			if l >= foldConstInt(n.Right) {
				return 1
			}
			return 0
		case BinComma:
			return foldConstInt(n.Right)
		}
	case *CondExpr:
		if foldConstInt(n.Cond) != 0 {
			return foldConstInt(n.Then)
		}
		return foldConstInt(n.Else)
	case *CastExpr:
		return foldConstInt(n.X)
	case *SizeofExpr:
		if n.OfType != nil {
			return int64(n.OfType.SizeOf())
		}
		return int64(n.X.GetType().SizeOf())
	}
	errorAt(e.Loc(), "expected a constant expression")
	return 0
}
