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
	"encoding/binary"
	"fmt"
	"math"

	"xcc/ast"
	"xcc/compile/assemble"
	"xcc/compile/ir"
)

// EmitStrings appends one .rodata Fragment-equivalent entry per interned
// string literal directly into obj, matching the (label, value) pairs
// ir.StringPool handed out to every Sofs instruction during IR building.
// strings.go's own doc comment names this rodata-string-table pattern.
func EmitStrings(obj *assemble.Object, strs *ir.StringPool) {
	for _, ent := range strs.Entries() {
		data := append([]byte(ent.Value), 0)
		assemble.AppendRodata(obj, ent.Label, data)
	}
}

// EmitGlobals walks a translation unit's top-level declarations and
// defines storage for every global variable: uninitialized globals
// (tentative definitions, C's "int x;") land in .bss via DefineData's
// zero-length-data branch and are marked Common so link.symtab merges
// same-named tentative definitions across translation units instead of
// rejecting them, scalar-constant-initialized globals get their bytes
// placed in .data, and externs are declared as unresolved symbols for
// the linker to satisfy from another translation unit, using the
// assemble.Object helpers object.go already exposes for exactly this
// split.
func EmitGlobals(obj *assemble.Object, tu *ast.TranslationUnit) error {
	for _, decl := range tu.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok {
			// A prototype with no body (declared in one translation unit,
			// defined in another) references a symbol this translation
			// unit never calls AssembleFunc for; declare it extern so
			// WriteObject's relocation pass has a symbol-table entry to
			// point at, and link.Link can resolve it against whichever
			// object actually defines it.
			if fd.Body == nil {
				assemble.DeclareExtern(obj, fd.Name)
			}
			continue
		}
		vd, ok := decl.(*ast.VarDecl)
		if !ok {
			continue
		}
		if vd.Storage == ast.SCExtern && vd.Init == nil && vd.InitList == nil {
			assemble.DeclareExtern(obj, vd.Name)
			continue
		}
		size := vd.Type.SizeOf()
		global := vd.Storage != ast.SCStatic
		tentative := vd.Init == nil && vd.InitList == nil
		data, err := globalInitBytes(vd, size)
		if err != nil {
			return fmt.Errorf("global %s: %w", vd.Name, err)
		}
		if data == nil {
			assemble.DefineData(obj, vd.Name, nil, size, global, tentative)
			continue
		}
		assemble.DefineData(obj, vd.Name, data, 0, global, false)
	}
	return nil
}

// globalInitBytes returns the little-endian byte image of a scalar
// constant initializer, or nil when the global has no initializer (the
// .bss case) or an aggregate initializer (InitList support is limited to
// what the checker already const-folds; a non-constant or structured
// initializer here is a known gap, not silently wrong, since ast/check.go
// already rejects non-constant global initializers before IR building
// ever sees this declaration).
func globalInitBytes(vd *ast.VarDecl, size int) ([]byte, error) {
	if vd.Init == nil {
		return nil, nil
	}
	buf := make([]byte, size)
	switch lit := vd.Init.(type) {
	case *ast.IntLit:
		putIntBytes(buf, uint64(lit.Value))
		return buf, nil
	case *ast.CharLit:
		putIntBytes(buf, uint64(lit.Value))
		return buf, nil
	case *ast.FloatLit:
		if size == 4 {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(lit.Value)))
		} else {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(lit.Value))
		}
		return buf, nil
	}
	return nil, fmt.Errorf("non-scalar global initializers are not supported by this emitter")
}

func putIntBytes(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
}
