// Package codegen generates function bodies into emit sinks.
//
// A Strategy prepares the sink for an allocated output and runs a content
// pass over a function's Body. Default emits the body as written.
// StateMachine buffers the content until End and replays it rewritten by
// the asyncify package, so the host can unwind the function at a
// suspending call and rewind into it later.
//
// SuspendInline combines both for one function:
//
//	out       := alloc.Allocate(meta.PrimarySlot())
//	header    := s.Wrap(out, meta)     // FuncMux(primary, secondary)
//	EmitHeader(header, meta)           // reaches both outputs
//	s.Generate(ctx, sig)               // one content pass per output
//	s.Finish()                         // End through the mux
//
// The secondary output is named meta.Name+SecondarySuffix. It is private,
// synthetic, and keeps the untransformed body for a call-site inliner.
// Abstract functions get the primary output only.
//
// FunctionCodegen runs these steps for any BodyStrategy.
package codegen
