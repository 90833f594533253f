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

package driver

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcc/compile/assemble"
	"xcc/elf"
)

// writeStartObject writes a synthetic _start.o to dir: a minimal crt0
// that calls main, moves its return value into the exit syscall's
// argument register, and exits. Real crt0 startup code also reads
// argc/argv off the stack before calling main, which is out of scope
// here since every test program ignores its arguments; callers of `cc`
// are expected to link their own _start.o (or a real system crt1.o) in
// alongside the objects this driver produces. This stub exercises
// exactly what link.Link needs: a "main" reference resolved by
// relocation against another object, and a merged .text section placed
// such that the binary actually runs and exits with main's return value.
//
//	call main        e8 00 00 00 00   (relocated: R_X86_64_PLT32 "main")
//	mov  edi, eax    89 c7
//	mov  eax, 60     b8 3c 00 00 00
//	syscall          0f 05
func writeStartObject(t *testing.T, dir string) string {
	t.Helper()
	obj := assemble.NewObject("x86_64")
	text := obj.Text()
	code := []byte{
		0xe8, 0x00, 0x00, 0x00, 0x00, // call main
		0x89, 0xc7, // mov edi, eax
		0xb8, 0x3c, 0x00, 0x00, 0x00, // mov eax, 60
		0x0f, 0x05, // syscall
	}
	text.Data = append(text.Data, code...)
	obj.AddSymbol(assemble.Symbol{Name: "_start", Section: ".text", Value: 0, Size: int64(len(code)), Global: true, Func: true})
	obj.AddReloc(assemble.Reloc{Offset: 1, Symbol: "main", Type: elf.R_X86_64_PLT32, Addend: -4, Section: ".text"})
	b, err := assemble.WriteObject(obj)
	require.NoError(t, err)
	path := filepath.Join(dir, "_start.o")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

// runBinary executes the ELF binary at path and returns its exit code.
func runBinary(t *testing.T, path string) int {
	t.Helper()
	cmd := exec.Command(path)
	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		t.Fatalf("running %s: %v", path, err)
	}
	return cmd.ProcessState.ExitCode()
}

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func runScenario(t *testing.T, src string) (string, int) {
	t.Helper()
	dir := t.TempDir()
	start := writeStartObject(t, dir)
	c := writeSource(t, dir, "t.c", src)
	out := filepath.Join(dir, "a.out")
	code := Run([]string{c, start, "-o", out})
	return out, code
}

func TestScenarioArithmetic(t *testing.T) {
	out, code := runScenario(t, "int main(){return 5+6*7;}")
	require.Equal(t, 0, code)
	assertEntryResolvable(t, out)
	assert.Equal(t, 47, runBinary(t, out))
}

func TestScenarioSwitchFallthrough(t *testing.T) {
	out, code := runScenario(t, "int main(){int x=0;switch(1){case 1:x+=1;default:x+=10;}return x;}")
	require.Equal(t, 0, code)
	assertEntryResolvable(t, out)
	assert.Equal(t, 11, runBinary(t, out))
}

func TestScenarioPointerAndArray(t *testing.T) {
	out, code := runScenario(t, "int main(){int a[2];a[0]=10;a[1]=20;int *p=a;return *(++p);}")
	require.Equal(t, 0, code)
	assertEntryResolvable(t, out)
	assert.Equal(t, 20, runBinary(t, out))
}

func TestScenarioStructFieldLayout(t *testing.T) {
	out, code := runScenario(t, "int main(){struct{char x;int y;}s;s.x=1;s.y=2;return s.x+s.y;}")
	require.Equal(t, 0, code)
	assertEntryResolvable(t, out)
	assert.Equal(t, 3, runBinary(t, out))
}

func TestScenarioFunctionPointerCall(t *testing.T) {
	out, code := runScenario(t, `
		int sub(int a, int b){return a-b;}
		int apply(int (*f)(int,int), int a, int b){return f(a,b);}
		int main(){return apply(&sub,15,6);}
	`)
	require.Equal(t, 0, code)
	assertEntryResolvable(t, out)
	assert.Equal(t, 9, runBinary(t, out))
}

func TestScenarioSeparateCompilation(t *testing.T) {
	dir := t.TempDir()
	start := writeStartObject(t, dir)
	a := writeSource(t, dir, "a.c", "int foo(void); int main(void){return foo();}")
	b := writeSource(t, dir, "b.c", "int foo(void){return 42;}")

	aObj := filepath.Join(dir, "a.o")
	bObj := filepath.Join(dir, "b.o")
	require.Equal(t, 0, Run([]string{"-c", a, "-o", aObj}))
	require.Equal(t, 0, Run([]string{"-c", b, "-o", bObj}))

	out := filepath.Join(dir, "prog")
	code := Run([]string{aObj, bObj, start, "-o", out})
	require.Equal(t, 0, code)
	assertEntryResolvable(t, out)
	assert.Equal(t, 42, runBinary(t, out))
}

// assertEntryResolvable confirms the produced file parses as an ET_EXEC
// ELF64 binary with a non-zero entry point; it does not check which
// segment the entry address falls in.
func assertEntryResolvable(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	ehdr, err := elf.UnmarshalEhdr(b)
	require.NoError(t, err)
	assert.Equal(t, elf.ET_EXEC, ehdr.Type)
	assert.NotZero(t, ehdr.Entry)
}

func TestRunRejectsUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	c := writeSource(t, dir, "t.c", "int main(){return 0;}")
	code := Run([]string{"-march=bogus", c})
	assert.Equal(t, 2, code)
}

func TestRunRefusesIncompleteRiscV(t *testing.T) {
	dir := t.TempDir()
	c := writeSource(t, dir, "t.c", "int main(){return 0;}")
	code := Run([]string{"-march=riscv64", c})
	assert.Equal(t, 2, code)
}

func TestRunReportsCompileErrorExitCode(t *testing.T) {
	dir := t.TempDir()
	c := writeSource(t, dir, "t.c", "int main() { return 0 }")
	code := Run([]string{c})
	assert.Equal(t, 1, code)
}

func TestRunRejectsUnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	bogus := writeSource(t, dir, "t.txt", "not a c file")
	code := Run([]string{bogus})
	assert.Equal(t, 2, code)
}

func TestRunVersionAndHelpExitZero(t *testing.T) {
	assert.Equal(t, 0, Run([]string{"--version"}))
	assert.Equal(t, 0, Run([]string{"--help"}))
}

func TestRunObjectModeWritesFile(t *testing.T) {
	dir := t.TempDir()
	c := writeSource(t, dir, "t.c", "int main(){return 1;}")
	out := filepath.Join(dir, "t.o")
	code := Run([]string{"-c", c, "-o", out})
	require.Equal(t, 0, code)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	ehdr, err := elf.UnmarshalEhdr(b)
	require.NoError(t, err)
	assert.Equal(t, elf.ET_REL, ehdr.Type)
}
