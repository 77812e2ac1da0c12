package emit

import (
	"github.com/wippyai/wasm-dualgen/errors"
)

type bufferedOp struct {
	child *AnnotationBuffer
	value any
	op    string
	name  string
	desc  string
	enum  string
}

// AnnotationBuffer is an AnnotationSink that keeps its subtree until it is
// replayed into another sink.
type AnnotationBuffer struct {
	ops   []bufferedOp
	ended bool
}

var _ AnnotationSink = (*AnnotationBuffer)(nil)

// NewAnnotationBuffer returns an empty buffer.
func NewAnnotationBuffer() *AnnotationBuffer {
	return &AnnotationBuffer{}
}

func (b *AnnotationBuffer) add(op bufferedOp) error {
	if b.ended {
		return errors.New(errors.PhaseEmit, errors.KindInvalidState).
			Event(op.op).
			Detail("event after End").
			Build()
	}
	b.ops = append(b.ops, op)
	return nil
}

func (b *AnnotationBuffer) Value(name string, v any) error {
	return b.add(bufferedOp{op: "Value", name: name, value: v})
}

func (b *AnnotationBuffer) Enum(name, desc, value string) error {
	return b.add(bufferedOp{op: "Enum", name: name, desc: desc, enum: value})
}

func (b *AnnotationBuffer) Annotation(name, desc string) (AnnotationSink, error) {
	child := NewAnnotationBuffer()
	if err := b.add(bufferedOp{op: "Annotation", name: name, desc: desc, child: child}); err != nil {
		return nil, err
	}
	return child, nil
}

func (b *AnnotationBuffer) Array(name string) (AnnotationSink, error) {
	child := NewAnnotationBuffer()
	if err := b.add(bufferedOp{op: "Array", name: name, child: child}); err != nil {
		return nil, err
	}
	return child, nil
}

func (b *AnnotationBuffer) End() error {
	if b.ended {
		return errors.New(errors.PhaseEmit, errors.KindInvalidState).
			Event("End").
			Detail("event after End").
			Build()
	}
	b.ended = true
	return nil
}

// Complete reports whether the buffer and every nested buffer were ended.
func (b *AnnotationBuffer) Complete() bool {
	if !b.ended {
		return false
	}
	for _, op := range b.ops {
		if op.child != nil && !op.child.Complete() {
			return false
		}
	}
	return true
}

// Replay sends the buffered subtree to sink, ending sink and every child it
// opens.
func (b *AnnotationBuffer) Replay(sink AnnotationSink) error {
	for _, op := range b.ops {
		var err error
		switch op.op {
		case "Value":
			err = sink.Value(op.name, op.value)
		case "Enum":
			err = sink.Enum(op.name, op.desc, op.enum)
		case "Annotation", "Array":
			var child AnnotationSink
			if op.op == "Annotation" {
				child, err = sink.Annotation(op.name, op.desc)
			} else {
				child, err = sink.Array(op.name)
			}
			if err == nil && isNil(child) {
				err = errors.Configuration(op.op, "sink returned no child")
			}
			if err == nil {
				err = op.child.Replay(child)
			}
		}
		if err != nil {
			return err
		}
	}
	return sink.End()
}
