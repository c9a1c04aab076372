// Command wasmrun loads a core WebAssembly module, lists its exports,
// and calls a chosen export with typed arguments, either directly from
// flags or via an interactive bubbletea TUI.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-corecc/compiler"
	"github.com/wippyai/wasm-corecc/engine"
	"github.com/wippyai/wasm-corecc/linker"
	"github.com/wippyai/wasm-corecc/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to a core wasm module")
		funcName    = flag.String("func", "", "Function to call (optional)")
		argStr      = flag.String("args", "", "Comma-separated argument values")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		dumpAST     = flag.String("dump-ast", "", "Compile the named exported function, print its signature and exit")
		dumpSrc     = flag.Bool("dump-src", false, "With -dump-ast, also print the function's parameter and result counts")
		verbose     = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	if *verbose {
		l, _ := zap.NewDevelopment()
		engine.SetLogger(l)
		linker.SetLogger(l)
		compiler.SetLogger(l)
	}

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmrun -wasm <file.wasm> [-func name] [-args v1,v2,...]")
		fmt.Fprintln(os.Stderr, "       wasmrun -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       wasmrun -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(runOpts{
		wasmFile: *wasmFile,
		funcName: *funcName,
		argStr:   *argStr,
		listOnly: *list,
		dumpAST:  *dumpAST,
		dumpSrc:  *dumpSrc,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOpts struct {
	wasmFile string
	funcName string
	argStr   string
	listOnly bool
	dumpAST  string
	dumpSrc  bool
}

func run(opts runOpts) error {
	ctx := context.Background()

	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	mod, err := engine.Load(data, &linker.Imports{})
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	fmt.Printf("Module: %s\n", opts.wasmFile)
	exports := mod.Exports()
	fmt.Printf("Exports: %d\n\n", len(exports))
	for _, name := range exports {
		f, err := mod.Function(name)
		if err != nil {
			continue
		}
		params, results, err := f.Sig()
		if err != nil {
			fmt.Printf("  %s(<compile error: %v>)\n", name, err)
			continue
		}
		fmt.Printf("  %s\n", formatSig(name, params, results))
	}

	if opts.dumpAST != "" {
		return dumpFunction(mod, opts.dumpAST, opts.dumpSrc)
	}
	if opts.listOnly {
		return nil
	}

	funcName := opts.funcName
	if funcName == "" {
		for _, name := range []string{"_start", "run", "main"} {
			for _, f := range exports {
				if f == name {
					funcName = name
					break
				}
			}
			if funcName != "" {
				break
			}
		}
		if funcName == "" && len(exports) == 1 {
			funcName = exports[0]
		}
		if funcName == "" {
			fmt.Println("\nNo function specified and no common entry point found. Use -func.")
			return nil
		}
	}

	f, err := mod.Function(funcName)
	if err != nil {
		return err
	}
	params, _, err := f.Sig()
	if err != nil {
		return fmt.Errorf("compile %s: %w", funcName, err)
	}

	args, err := parseArgs(opts.argStr, params)
	if err != nil {
		return fmt.Errorf("parse args: %w", err)
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, opts.argStr)
	result, err := f.Call(ctx, args)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %v\n", result)
	return nil
}

func formatSig(name string, params, results []wasm.ValType) string {
	var ps []string
	for i, p := range params {
		ps = append(ps, fmt.Sprintf("arg%d: %s", i, p))
	}
	out := name + "(" + strings.Join(ps, ", ") + ")"
	if len(results) > 0 {
		var rs []string
		for _, r := range results {
			rs = append(rs, r.String())
		}
		out += " -> " + strings.Join(rs, ", ")
	}
	return out
}

func parseArgs(argStr string, params []wasm.ValType) ([]uint64, error) {
	if argStr == "" {
		if len(params) != 0 {
			return nil, fmt.Errorf("function takes %d argument(s), none given", len(params))
		}
		return nil, nil
	}
	parts := strings.Split(argStr, ",")
	if len(parts) != len(params) {
		return nil, fmt.Errorf("function takes %d argument(s), %d given", len(params), len(parts))
	}
	args := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := convertArg(strings.TrimSpace(p), params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func convertArg(value string, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, err
		}
		return uint64(uint32(v)), nil
	case wasm.ValI64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return 0, err
		}
		return uint64(math.Float32bits(float32(v))), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, err
		}
		return math.Float64bits(v), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", t)
	}
}

func dumpFunction(mod *engine.Module, name string, withSrc bool) error {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	f, err := mod.Function(name)
	if err != nil {
		return err
	}
	params, results, err := f.Sig()
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	line := formatSig(f.Name(), params, results)
	if len(line) > width {
		line = line[:width-3] + "..."
	}
	fmt.Println(line)
	if withSrc {
		fmt.Printf("params=%d results=%d\n", len(params), len(results))
	}
	return nil
}
