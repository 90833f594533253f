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

import (
	"sort"

	"golang.org/x/exp/slices"
)

// LSRA is a linear-scan register allocator instance for one Func and one
// register class, run twice per function (once for ClassInt, once for
// ClassFloat). It runs an active-set/spill-furthest-use loop over
// compile/ir's Op/VReg types, asking compile/target.Target for the
// allocatable register set and extra-clobber table instead of
// hardcoding any one architecture.
type LSRA struct {
	f         *Func
	class     RegClass
	intervals []*Interval
	byVReg    map[*VReg]*Interval

	free  []int // physical register indices not currently active
	active []*Interval
}

// Allocate runs liveness, interval-building and linear scan for both
// register classes of f, then rewrites every VReg to carry its assigned
// PhysReg or Spilled/StackSlot, and finally runs tweak.go's
// target-specific post-allocation legalisation pass.
func Allocate(f *Func) {
	f.ComputeRPO()
	f.NumberInstrs()
	runLSRA(f, ClassInt)
	runLSRA(f, ClassFloat)
	Tweak(f)
}

func runLSRA(f *Func, class RegClass) {
	index := f.ComputeLiveness(class)
	regs := make([]*VReg, len(index))
	for v, i := range index {
		regs[i] = v
	}
	if len(regs) == 0 {
		return
	}

	ra := &LSRA{f: f, class: class, byVReg: map[*VReg]*Interval{}}
	for _, v := range regs {
		iv := newInterval(v)
		ra.intervals = append(ra.intervals, iv)
		ra.byVReg[v] = iv
	}

	// reserved[pos] lists physical int registers that compile/target's
	// DetectExtraOccupied hook says this instruction point implicitly
	// clobbers (e.g. cqo/idiv's rax:rdx) beyond its declared
	// Dst/Args, so the scan below never hands one of those out to an
	// unrelated live value across that exact point.
	reserved := map[int][]int{}
	if class == ClassInt {
		for _, b := range f.RPO {
			for _, in := range b.Instrs {
				if extra := f.Target.DetectExtraOccupied(int(in.Op)); len(extra) > 0 {
					reserved[in.id] = extra
				}
			}
		}
	}

	// Build per-block liveness-derived ranges first (a vreg live across
	// an entire block contributes [blockStart, blockEnd) to its
	// interval), then narrow/extend with exact def/use instruction ids,
	// the two-pass approach compile/codegen/lsra.go's buildIntervals
	// (largely commented out in the teacher copy) was scaffolded for.
	for _, b := range f.RPO {
		if len(b.Instrs) == 0 {
			continue
		}
		blockFrom := b.Instrs[0].id
		blockTo := b.Instrs[len(b.Instrs)-1].id + 2
		for i := 0; i < len(regs); i++ {
			if b.LiveIn.IsSet(i) && b.LiveOut.IsSet(i) {
				ra.intervals[i].addRange(blockFrom, blockTo)
			}
		}
		for pos, in := range b.Instrs {
			_ = pos
			if d := in.Defs(); d != nil && d.Class == class {
				iv := ra.byVReg[d]
				iv.addRange(in.id, blockTo)
				iv.addUsePoint(in.id, UseReg)
			}
			for _, u := range in.Uses() {
				if u.Class != class {
					continue
				}
				iv := ra.byVReg[u]
				iv.addRange(blockFrom, in.id+1)
				iv.addUsePoint(in.id, UseReg)
			}
		}
	}

	var live []*Interval
	for _, iv := range ra.intervals {
		// Fixed vregs (incoming parameters still in their ABI register,
		// the value about to be returned) already carry their final
		// PhysReg; the allocator must not recolor or spill them.
		if iv.ranges != nil && !iv.vreg.Fixed {
			live = append(live, iv)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].from() < live[j].from() })

	bank := f.Target.Regs()
	var allocatable []int
	if class == ClassInt {
		allocatable = bank.AllocatableInt()
	} else {
		allocatable = bank.AllocatableFloat()
	}
	nextSlot := 0

	for _, iv := range live {
		// Expire active intervals that ended before iv starts, freeing
		// their physical registers back to the pool.
		still := ra.active[:0]
		for _, a := range ra.active {
			if a.to() <= iv.from() {
				ra.free = append(ra.free, a.phyRegIndex)
			} else {
				still = append(still, a)
			}
		}
		ra.active = still

		assigned := -1
		for _, r := range allocatable {
			if slices.Contains(usedBy(ra.active), r) {
				continue
			}
			if reservedConflict(iv, r, reserved) {
				continue
			}
			assigned = r
			break
		}

		if assigned == -1 {
			// No free register: spill whichever active interval (or the
			// new one) has the furthest next use, compile/codegen/
			// lsra.go's documented "spill furthest use" heuristic.
			worstIdx, worstPos := -1, iv.nextUseAfter(iv.from())
			for i, a := range ra.active {
				if p := a.nextUseAfter(iv.from()); p > worstPos {
					worstIdx, worstPos = i, p
				}
			}
			if worstIdx == -1 {
				iv.spilled = true
				iv.stackSlot = nextSlot
				nextSlot += slotWidth(iv.vreg)
			} else {
				victim := ra.active[worstIdx]
				victim.spilled = true
				victim.stackSlot = nextSlot
				nextSlot += slotWidth(victim.vreg)
				iv.phyRegIndex = victim.phyRegIndex
				ra.active = append(ra.active[:worstIdx], ra.active[worstIdx+1:]...)
				ra.active = append(ra.active, iv)
			}
		} else {
			iv.phyRegIndex = assigned
			ra.active = append(ra.active, iv)
		}
	}

	for _, iv := range ra.intervals {
		v := iv.vreg
		if iv.spilled {
			v.Spilled = true
			v.StackSlot = iv.stackSlot
			v.PhysReg = -1
		} else if iv.phyRegIndex != -1 {
			v.PhysReg = iv.phyRegIndex
		}
	}
}

// reservedConflict reports whether physical register r is named by
// reserved at any instruction point iv's ranges cover, i.e. whether
// assigning r to iv would collide with an instruction that implicitly
// clobbers r at a point iv is live across.
func reservedConflict(iv *Interval, r int, reserved map[int][]int) bool {
	if len(reserved) == 0 {
		return false
	}
	for pos, regs := range reserved {
		if !slices.Contains(regs, r) {
			continue
		}
		if iv.cover(pos) {
			return true
		}
	}
	return false
}

func usedBy(active []*Interval) []int {
	out := make([]int, 0, len(active))
	for _, a := range active {
		out = append(out, a.phyRegIndex)
	}
	return out
}

func slotWidth(v *VReg) int {
	if v.Width < 8 {
		return 8
	}
	return v.Width
}
