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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xcc/ast"
	"xcc/compile/assemble"
	"xcc/compile/emit"
	"xcc/compile/ir"
	"xcc/compile/target"
	"xcc/link"

	"github.com/kylelemons/godebug/pretty"
)

// Debug dumps, gated by package-level booleans rather than compiled-in
// constants so main can flip them on from a flag without a rebuild.
var (
	DebugPrintTokens bool
	DebugPrintAst    bool
	DebugDumpIR      bool
)

// Run parses args, drives the requested pipeline stage(s) over every
// source file, and returns the process exit code: 0 success, 1
// compilation error, 2 usage error (including the -march=riscv64
// refusal, since that's caught before a single byte of the requested
// target's output could be trusted).
func Run(args []string) int {
	opt, err := ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if opt.Help {
		fmt.Print(usage)
		return 0
	}
	if opt.Version {
		fmt.Println(version)
		return 0
	}

	tgt, ok := target.ForName(opt.March)
	if !ok {
		fmt.Fprintf(os.Stderr, "cc: unknown target %q\n", opt.March)
		return 2
	}
	if tgt.Incomplete() {
		fmt.Fprintf(os.Stderr, "cc: target %q is not implemented; refusing to compile\n", opt.March)
		return 2
	}

	envIncludes, err := LoadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cc:", err)
		return 2
	}
	includeDirs := append(append([]string{}, opt.Includes...), envIncludes...)

	return runPipeline(opt, tgt, includeDirs)
}

// runPipeline recovers a single *ast.CompileError (one fatal diagnostic
// per translation unit, no recovery attempted beyond reporting it and
// stopping the whole driver) and turns it into exit code 1; everything
// else (I/O errors, link errors) is reported as a plain message, also
// exit 1. utils.Assert/Fatal/Unimplement failures are not recovered
// here — they are supposed to abort the process outright as internal
// assertion failures.
func runPipeline(opt *Options, tgt target.Target, includeDirs []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*ast.CompileError); ok {
				printCompileError(os.Stderr, ce)
				code = 1
				return
			}
			panic(r)
		}
	}()

	interner := ast.NewInterner()
	opener := ast.DefaultIncludeOpener(includeDirs)
	defines := map[string]string{}
	for k, v := range opt.Defines {
		defines[k] = v
	}
	for _, name := range opt.Undefines {
		delete(defines, name)
	}

	var objs []*assemble.Object
	for _, src := range opt.Sources {
		ext := strings.ToLower(filepath.Ext(src))
		switch ext {
		case ".o":
			obj, err := readObjectFile(src)
			if err != nil {
				fmt.Fprintln(os.Stderr, "cc:", err)
				return 1
			}
			objs = append(objs, obj)
			continue
		case ".c":
			// fall through to compilation below
		default:
			fmt.Fprintf(os.Stderr, "cc: unrecognized input file %q\n", src)
			return 2
		}

		f, err := os.Open(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cc:", err)
			return 1
		}
		pp := ast.NewPreprocessor(src, f, opener, interner, defines)

		if opt.Mode == ModePreprocess {
			dumpPreprocessed(os.Stdout, pp)
			f.Close()
			continue
		}

		tu := ast.NewParser(pp).Parse()
		f.Close()
		if DebugPrintAst {
			fmt.Fprintf(os.Stderr, "-- ast: %s --\n%s\n", src, pretty.Sprint(tu))
		}

		tu = ast.Check(tu)

		obj, err := compileUnit(src, tu, tgt, opt.Mode)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cc:", err)
			return 1
		}
		if obj == nil {
			// -S stopped us before object assembly; compileUnit already
			// wrote the .s file.
			continue
		}
		objs = append(objs, obj)

		if opt.Mode == ModeObject {
			out := opt.Output
			if out == "" {
				out = replaceExt(src, ".o")
			}
			if err := writeObjectFile(out, obj); err != nil {
				fmt.Fprintln(os.Stderr, "cc:", err)
				return 1
			}
		}
	}

	if opt.Mode == ModePreprocess || opt.Mode == ModeAssembly || opt.Mode == ModeObject {
		return 0
	}

	out := opt.Output
	if out == "" {
		out = "a.out"
	}
	bin, err := link.Link(objs, tgt.Name(), "_start")
	if err != nil {
		fmt.Fprintln(os.Stderr, "cc:", err)
		return 1
	}
	if err := os.WriteFile(out, bin, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "cc:", err)
		return 1
	}
	return 0
}

// compileUnit runs C3/C4/C5 over one already-checked translation unit:
// build+allocate+emit every function, assemble the rodata/data globals,
// and hand back the assembled Object (or, under -S, write the textual
// assembly dump and return nil).
func compileUnit(src string, tu *ast.TranslationUnit, tgt target.Target, mode Mode) (*assemble.Object, error) {
	obj := assemble.NewObject(tgt.Name())
	enc, err := assemble.EncoderFor(tgt.Name())
	if err != nil {
		return nil, err
	}

	strs := ir.NewStringPool()
	var asmText strings.Builder

	for _, fn := range tu.Funcs {
		f := ir.BuildFunc(fn, tgt, strs)
		if DebugDumpIR {
			fmt.Fprintf(os.Stderr, "-- ir: %s --\n", f.Name)
		}
		ir.Allocate(f)

		frags, err := emit.EmitFunc(tgt, f)
		if err != nil {
			return nil, err
		}
		if mode == ModeAssembly {
			dumpFragments(&asmText, f.Name, frags)
			continue
		}

		global := fn.Storage != ast.SCStatic
		if err := assemble.AssembleFunc(obj, enc, fn.Name, global, frags); err != nil {
			return nil, err
		}
	}

	if mode == ModeAssembly {
		out := replaceExt(src, ".s")
		return nil, os.WriteFile(out, []byte(asmText.String()), 0o644)
	}

	emit.EmitStrings(obj, strs)
	if err := emit.EmitGlobals(obj, tu); err != nil {
		return nil, err
	}
	return obj, nil
}

func dumpFragments(w *strings.Builder, funcName string, frags []assemble.Fragment) {
	fmt.Fprintf(w, "%s:\n", funcName)
	for _, fr := range frags {
		fmt.Fprintf(w, "\t%v\n", fr)
	}
}

func dumpPreprocessed(w *os.File, pp *ast.Preprocessor) {
	line := -1
	for {
		t := pp.NextToken()
		if t.Kind == ast.TK_EOF {
			break
		}
		if t.Pos.Line != line {
			if line != -1 {
				fmt.Fprintln(w)
			}
			line = t.Pos.Line
		} else {
			fmt.Fprint(w, " ")
		}
		fmt.Fprint(w, t.Text)
	}
	fmt.Fprintln(w)
}

func readObjectFile(path string) (*assemble.Object, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return assemble.ReadObject(b)
}

func writeObjectFile(path string, obj *assemble.Object) error {
	b, err := assemble.WriteObject(obj)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func replaceExt(path, ext string) string {
	trimmed := strings.TrimSuffix(path, filepath.Ext(path))
	return trimmed + ext
}
