// Package runner executes generated modules with wazero.
//
// Host functions marked Suspend are driven through the asyncify protocol:
// on first entry the host function registers a PendingOp and starts an
// unwind; the Scheduler stops the unwind, runs the operation, starts a
// rewind and calls the export again. When the rewound body re-enters the
// host function, it stops the rewind and returns the operation's result.
//
//	r, err := runner.New(ctx, wasmBytes, []runner.HostFunc{{
//		Module:  "env",
//		Name:    "sleep",
//		Type:    wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}},
//		Suspend: true,
//		Fn:      sleep,
//	}}, runner.Config{})
//	results, err := r.Call(ctx, "f")
//
// Modules without the asyncify helpers run their host functions inline.
package runner
