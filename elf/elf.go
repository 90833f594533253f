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

// Package elf implements just enough of the ELF64 file format to serve
// as the wire format both compile/assemble (REL objects) and link (EXEC
// binaries) produce. Field layout, constant values and struct shapes
// match the standard ELF64 header definitions; debug/elf in the
// standard library is read-only, so writing is done directly against
// encoding/binary and bytes.Buffer.
package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	ELFMAG0 = 0x7f
	ELFMAG1 = 'E'
	ELFMAG2 = 'L'
	ELFMAG3 = 'F'

	ELFCLASS64  = 2
	ELFDATA2LSB = 1
	EV_CURRENT  = 1
	ELFOSABI_SYSV = 0
)

// e_machine values, per the ELF64 ABI.
const (
	EM_X86_64  = 62
	EM_AARCH64 = 183
	EM_RISCV   = 243
)

const (
	ET_REL  = 1
	ET_EXEC = 2
)

const (
	PT_LOAD = 1

	PF_X = 1 << 0
	PF_W = 1 << 1
	PF_R = 1 << 2
)

const (
	SHT_NULL     = 0
	SHT_PROGBITS = 1
	SHT_SYMTAB   = 2
	SHT_STRTAB   = 3
	SHT_RELA     = 4
	SHT_NOBITS   = 8
)

const (
	SHF_WRITE     = 1 << 0
	SHF_ALLOC     = 1 << 1
	SHF_EXECINSTR = 1 << 2
	SHF_INFO_LINK = 1 << 6
)

const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xff00
	SHN_COMMON    = 0xfff2
)

const (
	STB_LOCAL  = 0
	STB_GLOBAL = 1
)

const (
	STT_NOTYPE  = 0
	STT_OBJECT  = 1
	STT_FUNC    = 2
	STT_SECTION = 3
)

func STInfo(bind, typ byte) byte { return (bind << 4) + (typ & 0xf) }
func STBind(info byte) byte      { return info >> 4 }
func STType(info byte) byte      { return info & 0xf }

// Relocation type numbers. x86-64 and AArch64 share the Elf64_Rela shape;
// RISC-V's are listed for completeness; nothing in this repository emits
// or applies them.
const (
	R_X86_64_64    = 1
	R_X86_64_PC32  = 2
	R_X86_64_PLT32 = 4

	R_AARCH64_ADR_PREL_PG_HI21 = 275
	R_AARCH64_ADD_ABS_LO12_NC  = 277
	R_AARCH64_CALL26           = 283

	R_RISCV_CALL       = 18
	R_RISCV_PCREL_HI20 = 23
	R_RISCV_PCREL_LO12_I = 24
	R_RISCV_BRANCH     = 16
)

func ELF64RSym(info uint64) uint32  { return uint32(info >> 32) }
func ELF64RType(info uint64) uint32 { return uint32(info) }
func ELF64RInfo(sym uint32, typ uint32) uint64 {
	return (uint64(sym) << 32) + uint64(typ)
}

// Ehdr is Elf64_Ehdr.
type Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

const EhdrSize = 64

func NewEhdr(machine uint16, typ uint16) *Ehdr {
	e := &Ehdr{Type: typ, Machine: machine, Version: EV_CURRENT, Ehsize: EhdrSize}
	e.Ident[0], e.Ident[1], e.Ident[2], e.Ident[3] = ELFMAG0, ELFMAG1, ELFMAG2, ELFMAG3
	e.Ident[4] = ELFCLASS64
	e.Ident[5] = ELFDATA2LSB
	e.Ident[6] = EV_CURRENT
	e.Ident[7] = ELFOSABI_SYSV
	return e
}

// UnmarshalEhdr reads an Elf64_Ehdr from the front of b, the inverse of
// Marshal; compile/assemble's object reader starts here when reading a
// file back in.
func UnmarshalEhdr(b []byte) (*Ehdr, error) {
	if len(b) < EhdrSize {
		return nil, fmt.Errorf("elf: short file, want %d header bytes, got %d", EhdrSize, len(b))
	}
	e := &Ehdr{}
	copy(e.Ident[:], b[0:16])
	if e.Ident[0] != ELFMAG0 || e.Ident[1] != ELFMAG1 || e.Ident[2] != ELFMAG2 || e.Ident[3] != ELFMAG3 {
		return nil, fmt.Errorf("elf: bad magic")
	}
	r := bytes.NewReader(b[16:EhdrSize])
	for _, v := range []interface{}{&e.Type, &e.Machine, &e.Version, &e.Entry, &e.Phoff, &e.Shoff,
		&e.Flags, &e.Ehsize, &e.Phentsize, &e.Phnum, &e.Shentsize, &e.Shnum, &e.Shstrndx} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("elf: malformed ehdr: %w", err)
		}
	}
	return e, nil
}

func (e *Ehdr) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(e.Ident[:])
	binary.Write(&buf, binary.LittleEndian, e.Type)
	binary.Write(&buf, binary.LittleEndian, e.Machine)
	binary.Write(&buf, binary.LittleEndian, e.Version)
	binary.Write(&buf, binary.LittleEndian, e.Entry)
	binary.Write(&buf, binary.LittleEndian, e.Phoff)
	binary.Write(&buf, binary.LittleEndian, e.Shoff)
	binary.Write(&buf, binary.LittleEndian, e.Flags)
	binary.Write(&buf, binary.LittleEndian, e.Ehsize)
	binary.Write(&buf, binary.LittleEndian, e.Phentsize)
	binary.Write(&buf, binary.LittleEndian, e.Phnum)
	binary.Write(&buf, binary.LittleEndian, e.Shentsize)
	binary.Write(&buf, binary.LittleEndian, e.Shnum)
	binary.Write(&buf, binary.LittleEndian, e.Shstrndx)
	return buf.Bytes()
}

// Phdr is Elf64_Phdr, the program header entry describing one loadable
// segment.
type Phdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

const PhdrSize = 56

func (p *Phdr) Marshal() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, p.Type)
	binary.Write(&buf, binary.LittleEndian, p.Flags)
	binary.Write(&buf, binary.LittleEndian, p.Offset)
	binary.Write(&buf, binary.LittleEndian, p.Vaddr)
	binary.Write(&buf, binary.LittleEndian, p.Paddr)
	binary.Write(&buf, binary.LittleEndian, p.Filesz)
	binary.Write(&buf, binary.LittleEndian, p.Memsz)
	binary.Write(&buf, binary.LittleEndian, p.Align)
	return buf.Bytes()
}

// Shdr is Elf64_Shdr.
type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

const ShdrSize = 64

// UnmarshalShdr reads one Elf64_Shdr from b.
func UnmarshalShdr(b []byte) (*Shdr, error) {
	if len(b) < ShdrSize {
		return nil, fmt.Errorf("elf: short shdr")
	}
	s := &Shdr{}
	r := bytes.NewReader(b[:ShdrSize])
	for _, v := range []interface{}{&s.Name, &s.Type, &s.Flags, &s.Addr, &s.Offset, &s.Size,
		&s.Link, &s.Info, &s.AddrAlign, &s.EntSize} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("elf: malformed shdr: %w", err)
		}
	}
	return s, nil
}

func (s *Shdr) Marshal() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, s.Name)
	binary.Write(&buf, binary.LittleEndian, s.Type)
	binary.Write(&buf, binary.LittleEndian, s.Flags)
	binary.Write(&buf, binary.LittleEndian, s.Addr)
	binary.Write(&buf, binary.LittleEndian, s.Offset)
	binary.Write(&buf, binary.LittleEndian, s.Size)
	binary.Write(&buf, binary.LittleEndian, s.Link)
	binary.Write(&buf, binary.LittleEndian, s.Info)
	binary.Write(&buf, binary.LittleEndian, s.AddrAlign)
	binary.Write(&buf, binary.LittleEndian, s.EntSize)
	return buf.Bytes()
}

// Sym is Elf64_Sym.
type Sym struct {
	Name  uint32
	Info  byte
	Other byte
	Shndx uint16
	Value uint64
	Size  uint64
}

const SymSize = 24

// UnmarshalSym reads one Elf64_Sym from b.
func UnmarshalSym(b []byte) (*Sym, error) {
	if len(b) < SymSize {
		return nil, fmt.Errorf("elf: short sym")
	}
	s := &Sym{Info: b[4], Other: b[5]}
	r := bytes.NewReader(b[:4])
	if err := binary.Read(r, binary.LittleEndian, &s.Name); err != nil {
		return nil, err
	}
	r2 := bytes.NewReader(b[6:SymSize])
	if err := binary.Read(r2, binary.LittleEndian, &s.Shndx); err != nil {
		return nil, err
	}
	if err := binary.Read(r2, binary.LittleEndian, &s.Value); err != nil {
		return nil, err
	}
	if err := binary.Read(r2, binary.LittleEndian, &s.Size); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sym) Marshal() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, s.Name)
	buf.WriteByte(s.Info)
	buf.WriteByte(s.Other)
	binary.Write(&buf, binary.LittleEndian, s.Shndx)
	binary.Write(&buf, binary.LittleEndian, s.Value)
	binary.Write(&buf, binary.LittleEndian, s.Size)
	return buf.Bytes()
}

// Rela is Elf64_Rela.
type Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

const RelaSize = 24

// UnmarshalRela reads one Elf64_Rela from b.
func UnmarshalRela(b []byte) (*Rela, error) {
	if len(b) < RelaSize {
		return nil, fmt.Errorf("elf: short rela")
	}
	rl := &Rela{}
	r := bytes.NewReader(b[:RelaSize])
	for _, v := range []interface{}{&rl.Offset, &rl.Info, &rl.Addend} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return rl, nil
}

func (r *Rela) Marshal() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, r.Offset)
	binary.Write(&buf, binary.LittleEndian, r.Info)
	binary.Write(&buf, binary.LittleEndian, r.Addend)
	return buf.Bytes()
}

// StrAt reads the NUL-terminated string starting at byte offset off of a
// serialized string table, the read-side counterpart to StrTab.Add.
func StrAt(tab []byte, off uint32) string {
	if int(off) >= len(tab) {
		return ""
	}
	end := int(off)
	for end < len(tab) && tab[end] != 0 {
		end++
	}
	return string(tab[off:end])
}

// StrTab is an ELF string table builder: byte 0 is always the empty string,
// matching every section/symbol name table's NUL-indexed convention.
type StrTab struct {
	buf    bytes.Buffer
	offset map[string]uint32
}

func NewStrTab() *StrTab {
	st := &StrTab{offset: map[string]uint32{}}
	st.buf.WriteByte(0)
	return st
}

func (st *StrTab) Add(name string) uint32 {
	if name == "" {
		return 0
	}
	if off, ok := st.offset[name]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.buf.WriteString(name)
	st.buf.WriteByte(0)
	st.offset[name] = off
	return off
}

func (st *StrTab) Bytes() []byte { return st.buf.Bytes() }

// TargetName maps an e_machine value back to the target-triple string
// package target and package link key their dispatch on, the inverse of
// compile/assemble's own machineFor.
func TargetName(m uint16) (string, error) {
	switch m {
	case EM_X86_64:
		return "x86_64", nil
	case EM_AARCH64:
		return "arm64", nil
	case EM_RISCV:
		return "riscv64", nil
	}
	return "", fmt.Errorf("elf: unknown machine %d", m)
}

func MachineName(m uint16) string {
	switch m {
	case EM_X86_64:
		return "x86-64"
	case EM_AARCH64:
		return "aarch64"
	case EM_RISCV:
		return "riscv64"
	}
	return fmt.Sprintf("machine(%d)", m)
}
