package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/artifact"
	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/runner"
	"github.com/wippyai/wasm-dualgen/source"
)

func main() {
	var (
		inFile      = flag.String("in", "", "Path to YAML declaration file")
		outFile     = flag.String("out", "", "Output module path (default: input with .wasm extension)")
		verify      = flag.Bool("verify", false, "Instantiate the module with echo hosts")
		funcName    = flag.String("call", "", "Function to call after instantiation (implies -verify)")
		callArgs    = flag.String("args", "", "Comma-separated arguments for -call")
		trace       = flag.Bool("trace", false, "Print the generation events of every output")
		verbose     = flag.Bool("v", false, "Debug logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *inFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: dualgen -in <decl.yaml> [-out mod.wasm] [-trace] [-v]")
		fmt.Fprintln(os.Stderr, "       dualgen -in <decl.yaml> -verify [-call name -args 1,2]")
		fmt.Fprintln(os.Stderr, "       dualgen -in <decl.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer l.Sync()
		setLoggers(l)
	}

	if *interactive {
		if err := runInteractive(*inFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*inFile, *outFile, *funcName, *callArgs, *verify, *trace); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setLoggers(l *zap.Logger) {
	source.SetLogger(l.Named("source"))
	codegen.SetLogger(l.Named("codegen"))
	asyncify.SetLogger(l.Named("asyncify"))
	artifact.SetLogger(l.Named("artifact"))
	runner.SetLogger(l.Named("runner"))
}

func run(inFile, outFile, funcName, argStr string, verify, trace bool) error {
	ctx := context.Background()

	b, err := compile(inFile)
	if err != nil {
		return err
	}

	if outFile == "" {
		outFile = strings.TrimSuffix(inFile, filepath.Ext(inFile)) + ".wasm"
	}
	if err := os.WriteFile(outFile, b.compiled.Module, 0o644); err != nil {
		return fmt.Errorf("write module: %w", err)
	}

	fmt.Printf("Module: %s (%d bytes)\n", outFile, len(b.compiled.Module))
	fmt.Printf("Imports: %d\n", len(b.program.Imports))
	if len(b.compiled.Suspending) > 0 {
		fmt.Printf("Suspending: %s\n", strings.Join(b.compiled.Suspending, ", "))
	}

	fmt.Printf("\nOutputs:\n")
	for _, w := range b.compiled.Builder.Functions() {
		fmt.Printf("  %s%s\n", w.Name(), w.Slot().Descriptor)
		if flags := b.flags(w.Slot()); flags != "" {
			fmt.Printf("    %s\n", flags)
		}
	}

	if trace {
		for _, rec := range b.traces {
			fmt.Printf("\n--- %s ---\n%s", rec.Name(), rec.String())
		}
	}

	if !verify && funcName == "" {
		return nil
	}

	r, err := runner.New(ctx, b.compiled.Module, b.hosts(), runner.Config{})
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer r.Close(ctx)

	fmt.Printf("\nInstantiated, exports: %s\n", strings.Join(r.Exports(), ", "))
	if funcName == "" {
		return nil
	}

	desc, ok := b.descriptor(funcName)
	if !ok {
		return fmt.Errorf("function %q is not exported", funcName)
	}
	var inputs []string
	if argStr != "" {
		inputs = strings.Split(argStr, ",")
	}
	args, err := encodeArgs(desc, inputs)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argStr)
	results, err := r.Call(ctx, funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %s\n", formatResult(desc, results))
	if r.Asyncified() {
		fmt.Printf("Suspensions: %d\n", r.Suspensions())
	}
	return nil
}
