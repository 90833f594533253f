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

import (
	"fmt"
	"strings"

	"xcc/utils"
)

// TypeKind is the discriminator of the Type tagged union.
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyInt            // signed/unsigned integer, Width in {1,2,4,8}
	TyFloat          // floating, Width in {4,8}
	TyPointer
	TyArray
	TyFunc
	TyStruct
	TyUnion
	TyEnum
)

// Member is one named field of a struct/union, with its computed offset.
type Member struct {
	Name   string
	Type   *Type
	Offset int
}

// Type is a tagged C type. Derived types (e.g. "pointer to int") are built
// fresh by each constructor and compared structurally by Equal; tagged
// structs/unions are identified by their tag Name and never compare equal
// to a different tag even if the two happen to have identical members.
type Type struct {
	Kind TypeKind

	// TyInt
	Width    int // bytes: 1,2,4,8
	Unsigned bool

	// TyFloat
	// Width reused: 4 = float, 8 = double

	// TyPointer / TyArray
	Elem   *Type
	Length int // TyArray: element count; 0 with HasLen false when unknown/incomplete
	HasLen bool

	// TyFunc
	Ret        *Type
	Params     []*Type
	Variadic   bool
	ParamNames []string // parameter names, as spelled at the declarator that built this type

	// TyStruct / TyUnion / TyEnum
	Tag      string
	Members  []*Member
	Size     int
	Align    int
	Complete bool

	// qualifiers
	IsConst bool
}

// Canonical scalar types. Structurally identical types elsewhere are built
// fresh (pointers/arrays/functions) but always compare by Kind/Width/Elem,
// never by pointer identity, except for tagged struct/union/enum types.
var (
	TVoid   = &Type{Kind: TyVoid}
	TChar   = &Type{Kind: TyInt, Width: 1, Unsigned: false}
	TUChar  = &Type{Kind: TyInt, Width: 1, Unsigned: true}
	TShort  = &Type{Kind: TyInt, Width: 2, Unsigned: false}
	TUShort = &Type{Kind: TyInt, Width: 2, Unsigned: true}
	TInt    = &Type{Kind: TyInt, Width: 4, Unsigned: false}
	TUInt   = &Type{Kind: TyInt, Width: 4, Unsigned: true}
	TLong   = &Type{Kind: TyInt, Width: 8, Unsigned: false}
	TULong  = &Type{Kind: TyInt, Width: 8, Unsigned: true}
	TFloat  = &Type{Kind: TyFloat, Width: 4}
	TDouble = &Type{Kind: TyFloat, Width: 8}
)

func PointerTo(elem *Type) *Type {
	return &Type{Kind: TyPointer, Elem: elem, Width: 8}
}

func ArrayOf(elem *Type, length int, hasLen bool) *Type {
	t := &Type{Kind: TyArray, Elem: elem, Length: length, HasLen: hasLen}
	if hasLen {
		t.Size = elem.SizeOf() * length
		t.Align = elem.AlignOf()
		t.Complete = true
	}
	return t
}

func FuncOf(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: TyFunc, Ret: ret, Params: params, Variadic: variadic}
}

func (t *Type) IsInteger() bool { return t.Kind == TyInt || t.Kind == TyEnum }
func (t *Type) IsFloat() bool   { return t.Kind == TyFloat }
func (t *Type) IsArith() bool   { return t.IsInteger() || t.IsFloat() }
func (t *Type) IsPointer() bool { return t.Kind == TyPointer }
func (t *Type) IsArray() bool   { return t.Kind == TyArray }
func (t *Type) IsFunc() bool    { return t.Kind == TyFunc }
func (t *Type) IsVoid() bool    { return t.Kind == TyVoid }
func (t *Type) IsAggregate() bool {
	return t.Kind == TyStruct || t.Kind == TyUnion
}
func (t *Type) IsScalar() bool {
	return t.IsArith() || t.IsPointer()
}

// Decay implements array-to-pointer and function-to-pointer decay, which
// applies everywhere except as the operand of sizeof, &, and a string
// literal initialising a char array.
func (t *Type) Decay() *Type {
	switch t.Kind {
	case TyArray:
		return PointerTo(t.Elem)
	case TyFunc:
		return PointerTo(t)
	}
	return t
}

// SizeOf returns the size in bytes of a complete type.
func (t *Type) SizeOf() int {
	switch t.Kind {
	case TyVoid:
		return 1 // GNU extension size, only relevant to pointer arithmetic on void*
	case TyInt, TyFloat:
		return t.Width
	case TyPointer:
		return 8
	case TyArray:
		utils.Assert(t.HasLen, "sizeof of incomplete array")
		return t.Size
	case TyStruct, TyUnion:
		utils.Assert(t.Complete, "sizeof of incomplete aggregate")
		return t.Size
	case TyEnum:
		return 4
	default:
		utils.Unimplement()
	}
	return 0
}

func (t *Type) AlignOf() int {
	switch t.Kind {
	case TyInt, TyFloat:
		return t.Width
	case TyPointer:
		return 8
	case TyArray:
		return t.Elem.AlignOf()
	case TyStruct, TyUnion:
		return t.Align
	case TyEnum:
		return 4
	default:
		return 1
	}
}

// Equal reports structural equality after qualifier stripping, used for
// assignment compatibility checks.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TyVoid:
		return true
	case TyInt:
		return t.Width == o.Width && t.Unsigned == o.Unsigned
	case TyFloat:
		return t.Width == o.Width
	case TyPointer:
		// void* is compatible with any object pointer
		if t.Elem.Kind == TyVoid || o.Elem.Kind == TyVoid {
			return true
		}
		return t.Elem.Equal(o.Elem)
	case TyArray:
		return t.Elem.Equal(o.Elem)
	case TyStruct, TyUnion, TyEnum:
		return t.Tag == o.Tag && t.Tag != ""
	case TyFunc:
		if !t.Ret.Equal(o.Ret) || len(t.Params) != len(o.Params) || t.Variadic != o.Variadic {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (t *Type) String() string {
	switch t.Kind {
	case TyVoid:
		return "void"
	case TyInt:
		s := map[int]string{1: "char", 2: "short", 4: "int", 8: "long"}[t.Width]
		if t.Unsigned {
			return "unsigned " + s
		}
		return s
	case TyFloat:
		if t.Width == 4 {
			return "float"
		}
		return "double"
	case TyPointer:
		return fmt.Sprintf("%s*", t.Elem)
	case TyArray:
		if t.HasLen {
			return fmt.Sprintf("%s[%d]", t.Elem, t.Length)
		}
		return fmt.Sprintf("%s[]", t.Elem)
	case TyFunc:
		var ps []string
		for _, p := range t.Params {
			ps = append(ps, p.String())
		}
		variadic := ""
		if t.Variadic {
			variadic = ", ..."
		}
		return fmt.Sprintf("%s(%s%s)", t.Ret, strings.Join(ps, ", "), variadic)
	case TyStruct:
		return fmt.Sprintf("struct %s", t.Tag)
	case TyUnion:
		return fmt.Sprintf("union %s", t.Tag)
	case TyEnum:
		return fmt.Sprintf("enum %s", t.Tag)
	}
	return "<?type>"
}

// LayoutStruct computes member offsets, total size and alignment for a
// struct, honoring each member's own alignment. Invariant: every member
// offset is a multiple of that member's alignment, the final size is
// rounded up to a multiple of the struct's alignment, and size >= sum of
// member sizes.
func LayoutStruct(t *Type) {
	utils.Assert(t.Kind == TyStruct, "LayoutStruct on non-struct")
	offset := 0
	maxAlign := 1
	for _, m := range t.Members {
		a := m.Type.AlignOf()
		if a > maxAlign {
			maxAlign = a
		}
		offset = alignUp(offset, a)
		m.Offset = offset
		offset += m.Type.SizeOf()
	}
	t.Size = alignUp(offset, maxAlign)
	t.Align = maxAlign
	t.Complete = true
}

// LayoutUnion computes the size/alignment of a union: every member starts
// at offset 0, and the union's size is the widest member rounded up to the
// widest alignment.
func LayoutUnion(t *Type) {
	utils.Assert(t.Kind == TyUnion, "LayoutUnion on non-union")
	size, align := 0, 1
	for _, m := range t.Members {
		m.Offset = 0
		if s := m.Type.SizeOf(); s > size {
			size = s
		}
		if a := m.Type.AlignOf(); a > align {
			align = a
		}
	}
	t.Size = alignUp(size, align)
	t.Align = align
	t.Complete = true
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// Member looks up a named field of a struct/union type.
func (t *Type) Member(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// UsualArithConversion implements C's integer promotions plus the
// usual arithmetic conversions: anything narrower than int widens to int,
// then the common type of two arithmetic operands is the wider one, ties
// broken toward unsigned.
func UsualArithConversion(a, b *Type) *Type {
	a = promote(a)
	b = promote(b)
	if a.Kind == TyFloat || b.Kind == TyFloat {
		if a.Kind == TyFloat && (b.Kind != TyFloat || a.Width >= b.Width) {
			return a
		}
		if b.Kind == TyFloat {
			return b
		}
		return a
	}
	if a.Width == b.Width {
		if a.Unsigned || b.Unsigned {
			if a.Unsigned {
				return a
			}
			return b
		}
		return a
	}
	if a.Width > b.Width {
		return a
	}
	return b
}

// promote applies integer promotion: anything narrower than int becomes int.
func promote(t *Type) *Type {
	if t.Kind == TyInt && t.Width < 4 {
		return TInt
	}
	if t.Kind == TyEnum {
		return TInt
	}
	return t
}
