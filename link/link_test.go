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

package link

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yalue/elf_reader"

	"xcc/compile/assemble"
	"xcc/elf"
)

// callerObject builds a tiny translation unit's worth of .text by hand:
// a 5-byte call instruction (opcode e8 + rel32 operand) to an external
// symbol, the shape separate compilation needs for "a.c declares and
// calls foo, defined in b.c". The call operand bytes are left zero;
// link.Link's relocation pass is what has to fill them in.
func callerObject(name, calleeName string) *assemble.Object {
	obj := assemble.NewObject("x86_64")
	text := obj.Text()
	text.Data = append(text.Data, 0xe8, 0x00, 0x00, 0x00, 0x00) // call rel32
	obj.AddSymbol(assemble.Symbol{Name: name, Section: ".text", Value: 0, Size: 5, Global: true, Func: true})
	obj.AddReloc(assemble.Reloc{Offset: 1, Symbol: calleeName, Type: elf.R_X86_64_PC32, Addend: -4, Section: ".text"})
	return obj
}

// calleeObject defines calleeName as a one-byte "ret" (0xc3) function,
// optionally static (non-global) to exercise the static/global
// "multiple definition" distinction.
func calleeObject(calleeName string, global bool) *assemble.Object {
	obj := assemble.NewObject("x86_64")
	text := obj.Text()
	text.Data = append(text.Data, 0xc3)
	obj.AddSymbol(assemble.Symbol{Name: calleeName, Section: ".text", Value: 0, Size: 1, Global: global, Func: true})
	return obj
}

func startObject() *assemble.Object {
	obj := assemble.NewObject("x86_64")
	text := obj.Text()
	text.Data = append(text.Data, 0xc3)
	obj.AddSymbol(assemble.Symbol{Name: "_start", Section: ".text", Value: 0, Size: 1, Global: true, Func: true})
	return obj
}

// paddingObject contributes four inert bytes to .text with no symbols
// of its own, just to put daylight between the caller's call instruction
// and the callee's address so the relocation math below isn't a
// coincidental zero offset.
func paddingObject() *assemble.Object {
	obj := assemble.NewObject("x86_64")
	text := obj.Text()
	text.Data = append(text.Data, 0x90, 0x90, 0x90, 0x90)
	return obj
}

func TestLinkPatchesCrossObjectCallRelocation(t *testing.T) {
	a := callerObject("foo_caller", "foo")
	b := calleeObject("foo", true)
	start := startObject()
	pad := paddingObject()

	bin, err := Link([]*assemble.Object{start, a, pad, b}, "x86_64", "_start")
	require.NoError(t, err)
	require.NotEmpty(t, bin)

	ef, err := elf_reader.ParseELFFile(bin)
	require.NoError(t, err)
	_, is64 := ef.(*elf_reader.ELF64File)
	assert.True(t, is64)
	assert.Greater(t, int(ef.GetSectionCount()), 0)

	// foo_caller's instruction landed at .text's start address in the
	// merged section, interleaved after _start's single byte; decode the
	// patched rel32 directly from the returned ELF binary's .text bytes
	// using our own elf package rather than guessing elf_reader's
	// section-content API.
	ehdr, err := elf.UnmarshalEhdr(bin)
	require.NoError(t, err)
	var textBytes []byte
	for i := 0; i < int(ehdr.Shnum); i++ {
		off := int(ehdr.Shoff) + i*elf.ShdrSize
		sh, err := elf.UnmarshalShdr(bin[off : off+elf.ShdrSize])
		require.NoError(t, err)
		if sh.Type == elf.SHT_PROGBITS && sh.Flags&elf.SHF_EXECINSTR != 0 {
			textBytes = bin[sh.Offset : sh.Offset+sh.Size]
		}
	}
	require.NotEmpty(t, textBytes)
	// Layout: _start's ret (1 byte) at 0, foo_caller's call (5 bytes) at
	// 1..6, four NOP padding bytes at 6..10, foo's ret at 10.
	require.GreaterOrEqual(t, len(textBytes), 10)
	assert.Equal(t, byte(0xe8), textBytes[1])
	rel32 := int32(binary.LittleEndian.Uint32(textBytes[2:6]))
	assert.Equal(t, int32(4), rel32, "call rel32 must point at foo, 4 bytes past the call's end")
}

func TestLinkRejectsMultipleGlobalDefinitions(t *testing.T) {
	a := calleeObject("dup", true)
	b := calleeObject("dup", true)
	start := startObject()
	_, err := Link([]*assemble.Object{start, a, b}, "x86_64", "_start")
	assert.Error(t, err)
}

func TestLinkAllowsStaticDuplicateNames(t *testing.T) {
	a := calleeObject("dup", false)
	b := calleeObject("dup", false)
	start := startObject()
	_, err := Link([]*assemble.Object{start, a, b}, "x86_64", "_start")
	assert.NoError(t, err)
}

// tentativeObject defines name as a Common (tentative) global of size
// bytes reserved in .bss, the shape two translation units each writing
// "int counter;" with no initializer produce.
func tentativeObject(name string, size int64) *assemble.Object {
	obj := assemble.NewObject("x86_64")
	obj.BSS().Zero = size
	obj.AddSymbol(assemble.Symbol{Name: name, Section: ".bss", Value: 0, Size: size, Global: true, Common: true})
	return obj
}

func TestLinkMergesTentativeDefinitionsByLargestSize(t *testing.T) {
	a := tentativeObject("counter", 4)
	b := tentativeObject("counter", 8)
	start := startObject()
	bin, err := Link([]*assemble.Object{start, a, b}, "x86_64", "_start")
	require.NoError(t, err)
	require.NotEmpty(t, bin)

	// Link keeps no handle on its symbol table, so check the merge rule
	// on a symtab fed the same two tentative definitions directly.
	syms := newSymtab()
	require.NoError(t, syms.define("counter", ".bss", 0, 4, true, true))
	require.NoError(t, syms.define("counter", ".bss", 4, 8, true, true))
	sym, ok := syms.lookup("counter")
	require.True(t, ok)
	assert.EqualValues(t, 8, sym.size)
}

func TestLinkRejectsUndefinedSymbol(t *testing.T) {
	a := callerObject("foo_caller", "never_defined")
	start := startObject()
	_, err := Link([]*assemble.Object{start, a}, "x86_64", "_start")
	assert.Error(t, err)
}

func TestLinkRejectsMissingEntrySymbol(t *testing.T) {
	b := calleeObject("foo", true)
	_, err := Link([]*assemble.Object{b}, "x86_64", "_start")
	assert.Error(t, err)
}

func TestLinkRejectsEmptyObjectList(t *testing.T) {
	_, err := Link(nil, "x86_64", "_start")
	assert.Error(t, err)
}
