package artifact

import (
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
)

// Annotation targets, as encoded in the annotations section.
const (
	targetFunction byte = iota
	targetParameter
	targetType
	targetDefault
	targetInstr
	targetLocal
	targetTryCatch
)

var targetNames = map[byte]string{
	targetFunction:  "annotation",
	targetParameter: "parameter",
	targetType:      "type",
	targetDefault:   "default",
	targetInstr:     "instr",
	targetLocal:     "local",
	targetTryCatch:  "trycatch",
}

// Element tags.
const (
	elemValue byte = iota
	elemEnum
	elemAnnotation
	elemArray
)

type annotationNode struct {
	desc     string
	path     string
	elements []*element
	index    uint32
	target   byte
	visible  bool
}

type element struct {
	value     any
	nested    *annotationNode
	name      string
	enumDesc  string
	enumValue string
	array     []*element
	tag       byte
}

// annotationWriter appends elements to one annotation or array.
type annotationWriter struct {
	fw    *FunctionWriter
	elems *[]*element
	path  []string
	ended bool
}

var _ emit.AnnotationSink = (*annotationWriter)(nil)

func (a *annotationWriter) check(event string) error {
	if a.ended {
		return errors.New(errors.PhaseEmit, errors.KindInvalidState).
			Function(a.fw.slot.Name).
			Event(event).
			Path(a.path...).
			Detail("event after End").
			Build()
	}
	return nil
}

func (a *annotationWriter) Value(name string, v any) error {
	if err := a.check("Value"); err != nil {
		return err
	}
	if !encodable(v) {
		return errors.New(errors.PhaseHeader, errors.KindUnsupported).
			Function(a.fw.slot.Name).
			Event("Value").
			Path(a.path...).
			Value(v).
			Detail("annotation value %s has type %T", name, v).
			Build()
	}
	*a.elems = append(*a.elems, &element{tag: elemValue, name: name, value: v})
	return nil
}

func (a *annotationWriter) Enum(name, desc, value string) error {
	if err := a.check("Enum"); err != nil {
		return err
	}
	*a.elems = append(*a.elems, &element{tag: elemEnum, name: name, enumDesc: desc, enumValue: value})
	return nil
}

func (a *annotationWriter) Annotation(name, desc string) (emit.AnnotationSink, error) {
	if err := a.check("Annotation"); err != nil {
		return nil, err
	}
	el := &element{tag: elemAnnotation, name: name, nested: &annotationNode{desc: desc}}
	*a.elems = append(*a.elems, el)
	return a.child(&el.nested.elements, "annotation"), nil
}

func (a *annotationWriter) Array(name string) (emit.AnnotationSink, error) {
	if err := a.check("Array"); err != nil {
		return nil, err
	}
	el := &element{tag: elemArray, name: name}
	*a.elems = append(*a.elems, el)
	return a.child(&el.array, "array"), nil
}

func (a *annotationWriter) child(elems *[]*element, step string) *annotationWriter {
	a.fw.open++
	path := append(append([]string(nil), a.path...), step)
	return &annotationWriter{fw: a.fw, elems: elems, path: path}
}

func (a *annotationWriter) End() error {
	if err := a.check("End"); err != nil {
		return err
	}
	a.ended = true
	a.fw.open--
	return nil
}

func encodable(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64, []byte:
		return true
	}
	return false
}
