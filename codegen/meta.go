package codegen

import (
	"fmt"

	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// SecondarySuffix is appended to a function name to form the name of its
// inliner-facing secondary output.
const SecondarySuffix = "$$forInline"

// Origin references the declaration a function was generated from.
type Origin struct {
	File        string
	Declaration string
	Line        int
}

func (o Origin) String() string {
	switch {
	case o.File == "" && o.Declaration == "":
		return "<unknown>"
	case o.File == "":
		return o.Declaration
	case o.Line > 0:
		return fmt.Sprintf("%s:%d", o.File, o.Line)
	default:
		return o.File
	}
}

// Local is a body local declared after the parameters.
type Local struct {
	Name string
	Type wasm.ValType
}

// Stmt is one stack-neutral source statement.
type Stmt struct {
	Instrs []wasm.Instruction
	Line   int
}

// Body is the source of a concrete function: statements run in order, then
// Result leaves the return value on the stack.
type Body struct {
	Locals     []Local
	Statements []Stmt
	Result     []wasm.Instruction
}

// ElementKind selects which field of an Element holds its value.
type ElementKind uint8

const (
	ElementValue ElementKind = iota
	ElementEnum
	ElementArray
	ElementAnnotation
)

// Element is one named element of an annotation. Array elements have no name.
type Element struct {
	Value  any
	Nested *Annotation
	Enum   EnumValue
	Name   string
	Array  []Element
	Kind   ElementKind
}

// EnumValue is an enum constant reference.
type EnumValue struct {
	Desc  string
	Value string
}

// Annotation is a header annotation. Param is the parameter index for
// parameter annotations and -1 for function annotations.
type Annotation struct {
	Desc     string
	Elements []Element
	Param    int
	Visible  bool
}

// Attribute is an opaque named header attribute.
type Attribute struct {
	Name string
	Data []byte
}

// FunctionMeta describes one source function. Abstract functions have no body.
type FunctionMeta struct {
	Body        *Body
	Name        string
	Origin      Origin
	Descriptor  Descriptor
	ParamNames  []string
	Annotations []Annotation
	Attributes  []Attribute
	Abstract    bool
}

// Validate checks that the body matches the abstract flag.
func (m *FunctionMeta) Validate() error {
	switch {
	case m.Name == "":
		return errors.Metadata("", "function has no name")
	case !m.Abstract && m.Body == nil:
		return errors.New(errors.PhaseWrap, errors.KindMetadata).
			Function(m.Name).
			Value(m.Origin.String()).
			Detail("concrete function has no body (declared at %s)", m.Origin).
			Build()
	case m.Abstract && m.Body != nil:
		return errors.New(errors.PhaseWrap, errors.KindMetadata).
			Function(m.Name).
			Value(m.Origin.String()).
			Detail("abstract function has a body (declared at %s)", m.Origin).
			Build()
	}
	return nil
}

// Signature flattens the descriptor.
func (m *FunctionMeta) Signature() (Signature, error) {
	ft, err := m.Descriptor.FuncType()
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Function = m.Name
		}
		return Signature{}, err
	}
	return Signature{Descriptor: m.Descriptor, Type: ft}, nil
}

// PrimarySlot is the output carrying the function under its own name.
func (m *FunctionMeta) PrimarySlot() Slot {
	return Slot{
		Name:       m.Name,
		Descriptor: m.Descriptor,
		Abstract:   m.Abstract,
		Origin:     m.Origin,
	}
}

// SecondarySlot is the private synthetic output kept for the inliner.
func (m *FunctionMeta) SecondarySlot() Slot {
	return Slot{
		Name:       m.Name + SecondarySuffix,
		Descriptor: m.Descriptor,
		Private:    true,
		Synthetic:  true,
		Origin:     m.Origin,
	}
}

// Signature is the descriptor together with its flattened core type.
type Signature struct {
	Descriptor Descriptor
	Type       wasm.FuncType
}

// Slot describes an output to allocate.
type Slot struct {
	Name       string
	Origin     Origin
	Descriptor Descriptor
	Private    bool
	Synthetic  bool
	Abstract   bool
}
