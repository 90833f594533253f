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

// ComputeRPO walks the block graph from Entry and records a reverse
// postorder in f.RPO; both liveness and instruction numbering need blocks
// visited in an order where a block's predecessors (loop back-edges
// aside) come first.
func (f *Func) ComputeRPO() {
	visited := make(map[*Block]bool)
	var post []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(f.Entry)
	rpo := make([]*Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	f.RPO = rpo
}

// ComputeLiveness runs iterative backward dataflow for one register class,
// filling every block's LiveIn/LiveOut with utils.BitMap sets indexed by
// position in the class-ordered VReg slice `regs` returns (not by VReg.Id,
// since params and temporaries of one class interleave arbitrarily), the
// classic "def/use per block, iterate to a fixed point" liveness
// algorithm that Interval-building in lsra_interval.go assumes already ran.
func (f *Func) ComputeLiveness(class RegClass) map[*VReg]int {
	regs := f.AllVRegs(class)
	index := make(map[*VReg]int, len(regs))
	for i, r := range regs {
		index[r] = i
	}
	n := len(regs)

	type blockSets struct {
		use, def *utils.BitMap
	}
	sets := make(map[*Block]*blockSets, len(f.Blocks))
	for _, b := range f.Blocks {
		bu, bd := utils.NewBitMap(n), utils.NewBitMap(n)
		// Walk instructions backward within the block so a def that
		// precedes a later use of the same vreg (rare but legal for a
		// reused temporary) still marks "use" correctly.
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			in := b.Instrs[i]
			if d := in.Defs(); d != nil && d.Class == class {
				idx := index[d]
				bd.Set(idx)
				bu.Reset(idx)
			}
			for _, u := range in.Uses() {
				if u.Class == class {
					bu.Set(index[u])
				}
			}
		}
		b.LiveIn = utils.NewBitMap(n)
		b.LiveOut = utils.NewBitMap(n)
		sets[b] = &blockSets{use: bu, def: bd}
	}

	changed := true
	for changed {
		changed = false
		for i := len(f.RPO) - 1; i >= 0; i-- {
			b := f.RPO[i]
			out := utils.NewBitMap(n)
			for _, s := range b.Succs {
				out.Unite(s.LiveIn)
			}
			in := out.Copy()
			in.Remove(sets[b].def)
			in.Unite(sets[b].use)

			if b.LiveOut.SetFrom(out) {
				changed = true
			}
			if b.LiveIn.SetFrom(in) {
				changed = true
			}
		}
	}
	return index
}
