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

import "fmt"

// Encoder turns one Fragment into machine code. Size must agree with the
// length Encode actually returns for the same Fragment, since Assembler
// runs a first sizing pass to resolve intra-function label offsets
// before a second pass emits bytes, the textbook two-pass assembler
// structure needed once forward branches to not-yet-known local labels
// are possible.
type Encoder interface {
	Size(f Fragment) (int, error)
	Encode(f Fragment, pc int64, labels map[string]int64) ([]byte, []Reloc, error)

	// Prologue/Epilogue emit the target's function entry/exit sequence:
	// establish the frame pointer, save calleeSaved (physical register
	// indices), and reserve/release frameSize bytes of locals+spills.
	// compile/emit calls these directly rather than routing them through
	// Encode/Size, since they are a handful of fixed instructions with
	// no Fragment-level representation of their own.
	Prologue(calleeSaved []int, frameSize int64) []byte
	Epilogue(calleeSaved []int, frameSize int64) []byte
}

func EncoderFor(target string) (Encoder, error) {
	switch target {
	case "x86_64":
		return x8664Encoder{}, nil
	case "arm64":
		return arm64Encoder{}, nil
	}
	return nil, fmt.Errorf("assemble: no encoder for target %q", target)
}

// AssembleFunc lowers one function's Fragment stream into obj's .text
// section, registering a STT_FUNC symbol named funcName and any
// relocations the encoder reports.
func AssembleFunc(obj *Object, enc Encoder, funcName string, global bool, frags []Fragment) error {
	text := obj.Text()
	base := int64(len(text.Data))

	labels := map[string]int64{}
	sizes := make([]int, len(frags))
	cursor := base
	for i, f := range frags {
		if f.Kind == FragLabel {
			labels[f.Label] = cursor
			continue
		}
		n, err := enc.Size(f)
		if err != nil {
			return err
		}
		sizes[i] = n
		cursor += int64(n)
	}

	funcStart := base
	cursor = base
	for i, f := range frags {
		if f.Kind == FragLabel {
			continue
		}
		bytes, relocs, err := enc.Encode(f, cursor, labels)
		if err != nil {
			return err
		}
		if len(bytes) != sizes[i] {
			return fmt.Errorf("assemble: %s encoder size/encode mismatch for %s (%d vs %d)", obj.Target, f.Op, sizes[i], len(bytes))
		}
		for _, r := range relocs {
			r.Offset += cursor
			r.Section = ".text"
			obj.AddReloc(r)
		}
		text.Data = append(text.Data, bytes...)
		cursor += int64(len(bytes))
	}

	obj.AddSymbol(Symbol{
		Name:    funcName,
		Section: ".text",
		Value:   funcStart,
		Size:    cursor - funcStart,
		Global:  global,
		Func:    true,
	})
	return nil
}

// AppendRodata copies data into obj's .rodata section and registers a
// local symbol for it under label, the name compile/emit's Sofs
// lowering references.
func AppendRodata(obj *Object, label string, data []byte) {
	sec := obj.Rodata()
	off := int64(len(sec.Data))
	sec.Data = append(sec.Data, data...)
	obj.AddSymbol(Symbol{Name: label, Section: ".rodata", Value: off, Size: int64(len(data))})
}

// DefineData appends an initialized global to .data (or reserves space
// in .bss when zero is true) and registers its symbol. common marks the
// .bss reservation as a tentative definition (C's "int x;" with no
// initializer), which link.symtab merges by largest size across
// translation units instead of rejecting as a multiple definition.
func DefineData(obj *Object, name string, data []byte, zero int, global bool, common bool) {
	if zero > 0 && len(data) == 0 {
		sec := obj.BSS()
		off := sec.Zero
		sec.Zero += int64(zero)
		obj.AddSymbol(Symbol{Name: name, Section: ".bss", Value: off, Size: int64(zero), Global: global, Common: common})
		return
	}
	sec := obj.Data()
	off := int64(len(sec.Data))
	sec.Data = append(sec.Data, data...)
	obj.AddSymbol(Symbol{Name: name, Section: ".data", Value: off, Size: int64(len(data)), Global: global})
}

// DeclareExtern registers an undefined symbol reference (an extern
// global or a function declared but not defined in this translation
// unit) so link.Link can resolve it against another object.
func DeclareExtern(obj *Object, name string) {
	for _, s := range obj.Symbols {
		if s.Name == name {
			return
		}
	}
	obj.AddSymbol(Symbol{Name: name, Global: true})
}
