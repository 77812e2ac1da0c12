// Package asyncify rewrites generated function bodies so the host can
// suspend them at calls to suspending functions and resume them later.
//
// Reference implementation: Binaryen asyncify pass
// https://github.com/WebAssembly/binaryen/blob/main/src/passes/Asyncify.cpp
//
// # Overview
//
// A function body arrives as a sequence of statements, each a stack-neutral
// instruction list that starts at a label. A statement holding a call to a
// suspending function is a suspension point. Rewrite instruments the body so
// that, at each suspension point, the callee can start an unwind: the
// function saves its call index and locals to a frame in linear memory and
// returns. When the host later starts a rewind and calls the function again,
// the frame is restored, statements before the suspension point are skipped,
// and the call is made again so the callee can deliver its result.
//
// State machine:
//
//	Normal (0) --[start_unwind]--> Unwinding (1) --[stop_unwind]--> Normal (0)
//	Normal (0) --[start_rewind]--> Rewinding (2) --[stop_rewind]--> Normal (0)
//
// # Layout
//
//	if rewinding: restore locals from frame
//	block (result i32)          ;; outer: receives the call index on unwind
//	  block                     ;; middle
//	    block                   ;; inner
//	      if rewinding: load call index
//	      if normal: statement
//	      if normal || (rewinding && index == i): args; call; if unwinding: br outer
//	    end
//	    tail; return
//	  end
//	  unreachable
//	end
//	save frame
//
// Suspending calls must sit at block depth zero of their statement and take
// their arguments from locals and constants, so re-executing the statement on
// rewind reproduces the call.
//
// # Exported Functions
//
// Helpers returns the functions a module exports for host control:
//
//	asyncify_get_state() -> i32      // Get current state (0/1/2)
//	asyncify_start_unwind(data: i32) // Begin unwinding with data pointer
//	asyncify_stop_unwind()           // Complete unwind, return to normal
//	asyncify_start_rewind(data: i32) // Begin rewinding with data pointer
//	asyncify_stop_rewind()           // Complete rewind, return to normal
//
// # Data Layout
//
// The data pointer passed to start_unwind/start_rewind points to:
//
//	offset 0: stack_ptr (i32) - current position in the stack
//	offset 4: stack_end (i32) - end of stack (for overflow detection)
//
// Each saved frame holds the call index followed by every parameter and
// local in index order. Reference-typed and v128 locals cannot be saved.
package asyncify
