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

import "xcc/utils"

// Block is a basic block: a straight-line instruction run ending in at
// most one branch, with predecessor/successor lists built incrementally
// as control flow is lowered, over plain mutable VReg reads/writes
// rather than SSA values.
type Block struct {
	Id    int
	Name  string // diagnostic label, e.g. "if.then.3"
	Instrs []*Instr

	Preds []*Block
	Succs []*Block

	// LiveIn/LiveOut are populated by liveness.go, indexed by VReg.Id
	// within one register class at a time (liveness runs once per class).
	LiveIn  *utils.BitMap
	LiveOut *utils.BitMap

	sealed bool
}

func (b *Block) Append(instr *Instr) {
	utils.Assert(!b.sealed, "append to a block already terminated by a branch/return")
	b.Instrs = append(b.Instrs, instr)
	if instr.IsBranch() {
		b.sealed = true
	}
}

// AddSucc links b -> s in both directions, skipping duplicate edges (a
// block that both falls through and jumps to the same target, as an
// empty "if" body lowers to, should only appear once in each list).
func AddSucc(b, s *Block) {
	for _, e := range b.Succs {
		if e == s {
			return
		}
	}
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}

func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if last.IsBranch() {
		return last
	}
	return nil
}
