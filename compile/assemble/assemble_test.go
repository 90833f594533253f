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

package assemble_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcc/ast"
	. "xcc/compile/assemble"
	"xcc/compile/emit"
	"xcc/compile/ir"
	"xcc/compile/target"
)

// compileToObject runs a translation unit through C3/C4/C5 the same way
// driver.compileUnit does, minus the driver's -S/-c branching, so these
// tests exercise exactly what AssembleFunc/WriteObject/ReadObject see in
// the real pipeline rather than a hand-built Object.
func compileToObject(t *testing.T, src string) *Object {
	t.Helper()
	tgt := target.X8664{}
	tu := ast.Check(ast.ParseFile("test.c", strings.NewReader(src)))
	obj := NewObject(tgt.Name())
	enc, err := EncoderFor(tgt.Name())
	require.NoError(t, err)

	strs := ir.NewStringPool()
	for _, fn := range tu.Funcs {
		f := ir.BuildFunc(fn, tgt, strs)
		ir.Allocate(f)
		frags, err := emit.EmitFunc(tgt, f)
		require.NoError(t, err)
		global := fn.Storage != ast.SCStatic
		require.NoError(t, AssembleFunc(obj, enc, fn.Name, global, frags))
	}
	emit.EmitStrings(obj, strs)
	require.NoError(t, emit.EmitGlobals(obj, tu))
	return obj
}

func TestAssembleFuncRegistersGlobalFunctionSymbol(t *testing.T) {
	obj := compileToObject(t, "int add(int a, int b){return a+b;}")
	require.Len(t, obj.Symbols, 1)
	sym := obj.Symbols[0]
	assert.Equal(t, "add", sym.Name)
	assert.Equal(t, ".text", sym.Section)
	assert.True(t, sym.Global)
	assert.True(t, sym.Func)
	assert.NotZero(t, sym.Size)
}

func TestAssembleFuncStaticFunctionIsLocal(t *testing.T) {
	obj := compileToObject(t, "static int helper(void){return 1;} int call(void){return helper();}")
	var helper *Symbol
	for i := range obj.Symbols {
		if obj.Symbols[i].Name == "helper" {
			helper = &obj.Symbols[i]
		}
	}
	require.NotNil(t, helper, "expected a symbol for the static function")
	assert.False(t, helper.Global, "a static function must not be STB_GLOBAL")
}

func TestEmitGlobalsDeclaresExternForUncalledPrototype(t *testing.T) {
	obj := compileToObject(t, "int foo(int x); int main(void){return foo(1);}")
	var foo *Symbol
	for i := range obj.Symbols {
		if obj.Symbols[i].Name == "foo" {
			foo = &obj.Symbols[i]
		}
	}
	require.NotNil(t, foo, "expected an undefined extern symbol for the called-but-not-defined prototype")
	assert.Equal(t, "", foo.Section, "an extern declaration has no defining section")
}

func TestWriteObjectThenReadObjectRoundTrips(t *testing.T) {
	obj := compileToObject(t, `
		int helper(int x){return x*2;}
		int main(void){return helper(21);}
	`)
	b, err := WriteObject(obj)
	require.NoError(t, err)
	require.NotEmpty(t, b)

	got, err := ReadObject(b)
	require.NoError(t, err)
	assert.Equal(t, obj.Target, got.Target)
	assert.Equal(t, obj.Text().Data, got.Text().Data)

	wantByName := map[string]Symbol{}
	for _, s := range obj.Symbols {
		wantByName[s.Name] = s
	}
	require.Len(t, got.Symbols, len(obj.Symbols))
	for _, s := range got.Symbols {
		want, ok := wantByName[s.Name]
		require.True(t, ok, "unexpected symbol %q after round trip", s.Name)
		assert.Equal(t, want.Section, s.Section)
		assert.Equal(t, want.Value, s.Value)
		assert.Equal(t, want.Global, s.Global)
		assert.Equal(t, want.Func, s.Func)
	}

	require.Len(t, got.Relocs, len(obj.Relocs))
	for i, r := range got.Relocs {
		assert.Equal(t, obj.Relocs[i].Symbol, r.Symbol)
		assert.Equal(t, obj.Relocs[i].Type, r.Type)
		assert.Equal(t, obj.Relocs[i].Addend, r.Addend)
		assert.Equal(t, obj.Relocs[i].Section, r.Section)
	}
}

func TestReadObjectRejectsNonRelFile(t *testing.T) {
	obj := compileToObject(t, "int main(void){return 0;}")
	b, err := WriteObject(obj)
	require.NoError(t, err)
	// Flip e_type away from ET_REL to confirm ReadObject checks it
	// rather than trusting whatever section layout happens to parse.
	b[16] = 0xff
	_, err = ReadObject(b)
	assert.Error(t, err)
}
