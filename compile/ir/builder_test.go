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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcc/ast"
	"xcc/compile/target"
)

func buildFirstFunc(t *testing.T, src string, tgt target.Target) *Func {
	t.Helper()
	tu := ast.Check(ast.ParseFile("test.c", strings.NewReader(src)))
	require.NotEmpty(t, tu.Funcs)
	return BuildFunc(tu.Funcs[0], tgt, NewStringPool())
}

func TestBuildFuncSingleExitBlockPerReturn(t *testing.T) {
	f := buildFirstFunc(t, "int main(){return 5+6*7;}", target.X8664{})
	assert.NotEmpty(t, f.Blocks)
	last := f.Blocks[len(f.Blocks)-1].Instrs
	require.NotEmpty(t, last)
	assert.True(t, last[len(last)-1].IsBranch() || last[len(last)-1].Op == Jmp)
}

func TestBuildFuncIfElseProducesThreeBlocksAtLeast(t *testing.T) {
	f := buildFirstFunc(t, "int main(){int x; if(1) x=1; else x=2; return x;}", target.X8664{})
	assert.GreaterOrEqual(t, len(f.Blocks), 3)
}

func TestAllocateAssignsEveryVRegARegisterOrASpillSlot(t *testing.T) {
	f := buildFirstFunc(t, "int main(){int a=1,b=2,c=3,d=4,e=5,f=6,g=7,h=8; return a+b+c+d+e+f+g+h;}", target.X8664{})
	Allocate(f)
	for _, v := range f.AllVRegs(ClassInt) {
		if v.Fixed {
			continue
		}
		assert.True(t, v.Spilled || v.PhysReg >= 0, "vreg %d got neither a register nor a spill slot", v.Id)
	}
}

func TestEveryBlockEndsInExactlyOneControlFlowInstr(t *testing.T) {
	f := buildFirstFunc(t, "int main(){int x=0; while(x<10){x+=1;} return x;}", target.X8664{})
	for _, b := range f.Blocks {
		require.NotEmpty(t, b.Instrs, "block %s has no instructions", b.Name)
		last := b.Instrs[len(b.Instrs)-1]
		assert.True(t, last.IsBranch(), "block %s does not end in a control-flow instruction", b.Name)
		for _, in := range b.Instrs[:len(b.Instrs)-1] {
			assert.False(t, in.IsBranch(), "block %s has a non-terminal control-flow instruction", b.Name)
		}
	}
}
