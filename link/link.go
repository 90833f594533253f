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
	"fmt"

	"xcc/compile/assemble"
	"xcc/elf"
)

// loadBase is the virtual address the first loadable segment is placed
// at, the conventional non-zero base static-PIE-less ELF executables use
// to keep NULL-pointer dereferences from aliasing valid code.
const loadBase = 0x400000

const pageSize = 0x1000

// merged accumulates one output section's bytes across every input
// Object, recording each object's section as a (startOffset) so
// relocations (which are offsets within one object's section) can be
// translated into offsets within the merged section.
type merged struct {
	name  string
	flags uint64
	nobit bool // true once any contributing object used the .bss zero-fill form
	data  []byte
	zero  int64
}

// Link merges objs (every translation unit's assembled Object, all for
// the same target) into a position-dependent ET_EXEC ELF64 binary whose
// entry point is the symbol named entry (conventionally "_start", the
// runtime startup stub that calls main and then exits).
func Link(objs []*assemble.Object, target string, entry string) ([]byte, error) {
	if len(objs) == 0 {
		return nil, fmt.Errorf("link: no input objects")
	}
	machine, err := machineFor(target)
	if err != nil {
		return nil, err
	}

	order := []string{".text", ".rodata", ".data", ".bss"}
	sections := map[string]*merged{}
	for _, name := range order {
		sections[name] = &merged{name: name}
	}

	syms := newSymtab()
	// objSecBase[i][name] = byte offset within the merged section where
	// object i's own copy of that section begins.
	objSecBase := make([]map[string]int64, len(objs))

	for i, obj := range objs {
		objSecBase[i] = map[string]int64{}
		for _, name := range obj.Order {
			sec := obj.Sections[name]
			m, ok := sections[name]
			if !ok {
				m = &merged{name: name}
				sections[name] = m
				order = append(order, name)
			}
			if sec.Zero > 0 && len(sec.Data) == 0 {
				objSecBase[i][name] = m.zero
				m.zero += sec.Zero
				m.nobit = true
			} else {
				objSecBase[i][name] = int64(len(m.data))
				m.data = append(m.data, sec.Data...)
			}
			m.flags |= sec.Flags
		}
	}

	for i, obj := range objs {
		for _, s := range obj.Symbols {
			if s.Section == "" {
				syms.declare(s.Name)
				continue
			}
			base := objSecBase[i][s.Section]
			if err := syms.define(s.Name, s.Section, base+s.Value, s.Size, s.Global, s.Common); err != nil {
				return nil, err
			}
		}
	}
	if undef := syms.undefined(); len(undef) > 0 {
		return nil, fmt.Errorf("link: undefined symbol%s: %v", plural(len(undef)), undef)
	}

	// Section-relative -> virtual address. Sections load in `order`,
	// page-aligned, .text first (PF_X), then the read-only/read-write
	// data sections, matching the two-segment PT_LOAD layout finalize
	// below builds.
	var present []string
	for _, name := range order {
		m := sections[name]
		if m.data != nil || m.zero != 0 {
			present = append(present, name)
		}
	}
	addr := uint64(loadBase) + uint64(elf.EhdrSize) + uint64(len(present))*uint64(elf.PhdrSize)
	sectionAddr := map[string]uint64{}
	for _, name := range present {
		m := sections[name]
		addr = alignUp64(addr, pageSize)
		sectionAddr[name] = addr
		addr += uint64(len(m.data)) + uint64(m.zero)
	}

	for i, obj := range objs {
		for _, r := range obj.Relocs {
			sym, ok := syms.lookup(r.Symbol)
			if !ok || !sym.defined {
				return nil, fmt.Errorf("link: relocation against undefined symbol %q", r.Symbol)
			}
			symAddr := sectionAddr[sym.section] + uint64(sym.value)
			secBase := objSecBase[i][r.Section]
			off := secBase + r.Offset
			m := sections[r.Section]
			patchAddr := sectionAddr[r.Section] + uint64(off)
			if err := applyReloc(m.data, off, r.Type, int64(symAddr), r.Addend, patchAddr); err != nil {
				return nil, fmt.Errorf("link: %w", err)
			}
		}
	}

	entrySym, ok := syms.lookup(entry)
	if !ok || !entrySym.defined {
		return nil, fmt.Errorf("link: entry symbol %q not defined", entry)
	}
	entryAddr := sectionAddr[entrySym.section] + uint64(entrySym.value)

	return finalize(machine, order, sections, sectionAddr, entryAddr)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func alignUp64(n, a uint64) uint64 { return (n + a - 1) / a * a }

func machineFor(target string) (uint16, error) {
	switch target {
	case "x86_64":
		return elf.EM_X86_64, nil
	case "arm64":
		return elf.EM_AARCH64, nil
	case "riscv64":
		return elf.EM_RISCV, nil
	}
	return 0, fmt.Errorf("unknown target %q", target)
}
