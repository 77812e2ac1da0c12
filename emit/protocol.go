package emit

import (
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Label marks a position in a function body. Labels are numbered by the
// generator in emission order.
type Label struct {
	ID uint32
}

// FrameKind describes how a Frame relates to the previous one.
type FrameKind byte

const (
	FrameFull FrameKind = iota
	FrameSame
	FrameAppend
	FrameChop
)

// Frame describes the local and operand-stack types at the current position.
type Frame struct {
	Locals []wasm.ValType
	Stack  []wasm.ValType
	Kind   FrameKind
}

// LocalVar declares a body local. Index is its position in the function's
// local index space (parameters first).
type LocalVar struct {
	Name  string
	Start Label
	End   Label
	Index uint32
	Type  wasm.ValType
}

// LocalRange is the live range of a local variable slot.
type LocalRange struct {
	Start Label
	End   Label
	Index uint32
}

// TryCatch declares a protected range and its handler.
type TryCatch struct {
	Tag     string
	Start   Label
	End     Label
	Handler Label
}

// TypeRef identifies the type use an annotation applies to.
type TypeRef uint32

// TypePath locates an annotated component inside a type use. Empty means
// the whole type.
type TypePath string

// FuncSink receives the generation events of one function body.
type FuncSink interface {
	// Header events.
	Parameter(name string, flags uint32) error
	Annotation(desc string, visible bool) (AnnotationSink, error)
	ParameterAnnotation(param int, desc string, visible bool) (AnnotationSink, error)
	TypeAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error)
	AnnotationDefault() (AnnotationSink, error)
	Attribute(name string, data []byte) error

	// Content events.
	Code() error
	Instr(instr wasm.Instruction) error
	InstrAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error)
	Label(l Label) error
	LineNumber(line int, at Label) error
	Frame(f Frame) error
	LocalVariable(v LocalVar) error
	LocalVariableAnnotation(ref TypeRef, path TypePath, ranges []LocalRange, desc string, visible bool) (AnnotationSink, error)
	TryCatchRange(tc TryCatch) error
	TryCatchAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error)
	MaxStackAndLocals(maxStack, maxLocals int) error

	// End finalizes the body. No event may follow it.
	End() error
}

// AnnotationSink receives the elements of one annotation or array value.
type AnnotationSink interface {
	Value(name string, v any) error
	Enum(name, desc, value string) error
	Annotation(name, desc string) (AnnotationSink, error)
	Array(name string) (AnnotationSink, error)
	End() error
}
