// Package codegen provides instruction emission for the asyncify rewrite.
//
// The Emitter builds instruction sequences through a chained API so that the
// state checks, save/restore sequences and control-flow wrappers read close
// to the text format they produce.
//
// This package is internal to the asyncify transformer.
package codegen
