// Package wasmdualgen generates WebAssembly functions in two forms from a
// single source: a suspension-capable primary body and a straight-line
// secondary body meant for inlining.
//
// A function that calls a suspending host import is rewritten into an
// asyncify state machine so the host can unwind the guest stack, do its work
// outside the guest, and rewind back into the call. Inliners cannot use that
// body; they get a private copy named f$$forInline, generated in the same
// pass from the same header events.
//
// # Architecture Overview
//
//	wasmdualgen/
//	├── emit/        Generation event protocol and the fan-out multiplexers
//	├── codegen/     Function metadata, body strategies, suspend-inline wrapper
//	├── asyncify/    Unwind/rewind rewrite of statement-structured bodies
//	├── artifact/    Module builder: function outputs, custom sections, encoding
//	├── runner/      wazero runtime with the asyncify driver and scheduler
//	├── source/      YAML declarations, instruction mnemonics, Compile
//	├── wasm/        Core WASM binary model and encoder
//	├── errors/      Structured error types
//	└── cmd/dualgen  CLI and interactive inspector
//
// # Quick Start
//
// Compile a declaration file and run it:
//
//	prog, err := source.LoadFile("decl.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	compiled, err := source.Compile(prog, source.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := runner.New(ctx, compiled.Module, hosts, runner.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close(ctx)
//
//	result, err := r.Call(ctx, "f", 4)
//
// # Event Fan-out
//
// Every generated output is an emit.FuncSink. emit.NewFuncMux forwards each
// event to several sinks in order and derives a child multiplexer for every
// nested annotation, so header metadata written once reaches both outputs.
// A sink error stops the fan-out at the failing sink; sinks already notified
// are not rolled back.
//
// # Custom Sections
//
// Generated modules carry dualgen.annotations, dualgen.attributes,
// dualgen.lines and dualgen.synthetic next to the standard name section.
package wasmdualgen
