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

// Package emit walks an already-allocated compile/ir.Func (ir.Allocate
// has assigned every VReg a PhysReg or a spill slot) and produces the
// structured compile/assemble.Fragment stream for one function, plus the
// rodata/data fragments a translation unit's globals and string
// literals need. The walk produces target-independent Fragments, and
// only compile/assemble's per-target Encoder turns them into bytes, so
// one Emitter serves every target this repository supports.
package emit

import (
	"fmt"

	"xcc/compile/assemble"
	"xcc/compile/ir"
	"xcc/compile/target"
)

// Emitter holds the per-function frame layout decisions (spill-area
// placement, which callee-saved registers actually need saving) that
// have to be computed once before Fragments can reference them.
type Emitter struct {
	tgt target.Target
	enc assemble.Encoder

	intSpillBase   int
	floatSpillBase int
	totalFrame     int64
	calleeSaved    []int

	labels map[*ir.Block]string
	fn     *ir.Func
}

// EmitFunc lowers one allocated function into a Fragment stream ready
// for assemble.AssembleFunc. Call ir.Allocate(f) first.
func EmitFunc(t target.Target, f *ir.Func) ([]assemble.Fragment, error) {
	enc, err := assemble.EncoderFor(t.Name())
	if err != nil {
		return nil, err
	}
	e := &Emitter{tgt: t, enc: enc, fn: f, labels: map[*ir.Block]string{}}
	e.layout()

	var frags []assemble.Fragment
	frags = append(frags, assemble.Fragment{Kind: assemble.FragData, Data: enc.Prologue(e.calleeSaved, e.totalFrame)})

	for i, b := range f.Blocks {
		e.labels[b] = fmt.Sprintf("%s.L%d", f.Name, i)
	}
	for _, b := range f.Blocks {
		frags = append(frags, assemble.Fragment{Kind: assemble.FragLabel, Label: e.labels[b]})
		for idx, in := range b.Instrs {
			fs, err := e.lower(in, b, idx)
			if err != nil {
				return nil, fmt.Errorf("emit %s: %w", f.Name, err)
			}
			frags = append(frags, fs...)
		}
	}
	return frags, nil
}

// layout decides where spilled vregs of each class live relative to the
// builder's local-variable frame area, and which callee-saved physical
// registers this function actually uses and so must save/restore.
func (e *Emitter) layout() {
	f := e.fn
	bank := e.tgt.Regs()

	intSpillBytes, floatSpillBytes := 0, 0
	used := map[int]bool{}
	for _, v := range f.AllVRegs(ir.ClassInt) {
		if v.Spilled {
			w := v.Width
			if w < 8 {
				w = 8
			}
			if end := v.StackSlot + w; end > intSpillBytes {
				intSpillBytes = end
			}
		} else if bank.IsCalleeSavedInt(v.PhysReg) {
			used[v.PhysReg] = true
		}
	}
	for _, v := range f.AllVRegs(ir.ClassFloat) {
		if v.Spilled {
			w := v.Width
			if w < 8 {
				w = 8
			}
			if end := v.StackSlot + w; end > floatSpillBytes {
				floatSpillBytes = end
			}
		}
	}

	e.intSpillBase = f.FrameSize
	e.floatSpillBase = e.intSpillBase + intSpillBytes
	e.totalFrame = int64(alignUp(e.floatSpillBase+floatSpillBytes, 16))

	for _, r := range bank.CalleeSavedInt {
		if used[r] {
			e.calleeSaved = append(e.calleeSaved, r)
		}
	}
}

func alignUp(n, a int) int { return (n + a - 1) / a * a }

// resolve turns an ir.VReg into the assemble.Operand compile/assemble's
// encoders expect: a physical register, or a frame-relative memory
// operand for a spilled value. Every local/spill/address-of offset this
// package ever produces is expressed as "FramePointerReg minus some
// positive byte count", matching the builder's own frameOffset
// convention (ir/builder.go's assignSlot: offsets grow from 0 upward as
// locals are declared, and the frame pointer sits just above them).
func (e *Emitter) resolve(v *ir.VReg) assemble.Operand {
	if !v.Spilled {
		return assemble.RegOperand{Index: v.PhysReg, Class: v.Class}
	}
	base := e.intSpillBase
	if v.Class == ir.ClassFloat {
		base = e.floatSpillBase
	}
	w := v.Width
	if w < 8 {
		w = 8
	}
	off := base + v.StackSlot + w
	return assemble.MemOperand{BaseReg: e.tgt.Regs().FramePointerReg, Disp: -int64(off)}
}

func (e *Emitter) resolveOperand(o ir.Operand) assemble.Operand {
	switch a := o.(type) {
	case ir.VRegOperand:
		return e.resolve(a.Reg)
	case ir.ImmOperand:
		return assemble.ImmOperand{Value: a.Value}
	case ir.FImmOperand:
		// Float immediates are materialised through the same rodata
		// pool as string literals by the builder before reaching here;
		// genExpr never hands a Cast/Mov a bare FImmOperand without
		// first routing it through a load, so this path is unreached
		// for the scenarios this target set covers.
		return assemble.ImmOperand{Value: int64(a.Value)}
	case ir.SymOperand:
		return assemble.SymOperand{Name: a.Name}
	}
	return nil
}
