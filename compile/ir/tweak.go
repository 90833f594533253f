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

package ir

// Tweak is the post-allocation immediate-legalisation pass: a final walk
// over every instruction that widens an immediate operand the target
// can't encode directly into a Mov-to-scratch-register-then-use
// sequence, using the scratch register compile/target.RegBank reserves
// for exactly this purpose. Keeping it as a separate IR-to-IR rewrite
// means compile/emit's per-target emitter never has to special-case
// immediate width itself.
func Tweak(f *Func) {
	t := f.Target
	bank := t.Regs()
	for _, b := range f.Blocks {
		var out []*Instr
		for _, in := range b.Instrs {
			out = append(out, legalizeImmediates(in, t.ImmFitsDirectly, bank.ScratchInt, bank.ScratchInt2)...)
		}
		b.Instrs = out
	}
}

// legalizeImmediates rewrites in-place any ImmOperand argument fitsDirect
// rejects into a preceding Mov into one of the two reserved scratch
// registers, alternating scratch/scratch2 so an instruction with two
// oversized immediate operands (rare, but e.g. two wide constants folded
// into one comparison) doesn't clobber the first while materialising the
// second.
func legalizeImmediates(in *Instr, fitsDirect func(int64) bool, scratch, scratch2 int) []*Instr {
	var pre []*Instr
	slot := 0
	for i, a := range in.Args {
		imm, ok := a.(ImmOperand)
		if !ok || fitsDirect(imm.Value) {
			continue
		}
		reg := scratch
		if slot == 1 {
			reg = scratch2
		}
		slot++
		tmp := &VReg{Id: -1, Class: ClassInt, Width: 8, PhysReg: reg}
		pre = append(pre, &Instr{Op: Mov, Dst: tmp, Args: []Operand{a}})
		in.Args[i] = Reg(tmp)
	}
	return append(pre, in)
}
