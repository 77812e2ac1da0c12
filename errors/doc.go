// Package errors provides structured error types for the wasm-dualgen module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: nesting path, function name, protocol event and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEmit, errors.KindConfiguration).
//		Event("Annotation").
//		Path("annotation", "array").
//		Detail("sink %d returned no child", 1).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Configuration("NewFuncMux", "no sinks")
//	err := errors.Metadata("f", "concrete function has no body")
//	err := errors.Sink("Instr", 2, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
