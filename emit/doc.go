// Package emit defines the event protocol generated function bodies are
// written through, and the multiplexers that drive several sinks as one.
//
// A FuncSink receives the events of one function: header events (parameter
// names, attributes, annotations), content events (locals, labels, line
// numbers, instructions) and a final End. Child-yielding events return an
// AnnotationSink for nested values; every opened sink receives exactly one End.
//
// FuncMux and AnnotationMux forward each event to an ordered, fixed set of
// sinks. Child-yielding events return a new AnnotationMux with one child per
// wrapped sink, so nesting is handled uniformly at any depth:
//
//	mux, err := emit.NewFuncMux(primary, secondary)
//	ann, err := mux.Annotation("deprecated", true)
//	arr, err := ann.Array("since")
//	err = arr.Value("", "1.2")
//	err = arr.End()
//	err = ann.End()
//
// An error from any wrapped sink stops forwarding immediately and is returned
// as an errors.KindSink error; sinks already notified are not rolled back.
//
// Recorder is a FuncSink that keeps a textual trace of every event it
// receives, used for tracing and tests.
package emit
