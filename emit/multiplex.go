package emit

import (
	"github.com/wippyai/wasm-dualgen/wasm"
)

// FuncMux forwards every FuncSink event to a fixed, ordered set of sinks.
// It is itself a FuncSink, so muxes can be nested.
//
// Terminal events go to each sink in construction order and stop at the
// first failing sink. Child-yielding events collect one child per sink into
// an AnnotationMux.
type FuncMux struct {
	fanout fanout[FuncSink]
}

var _ FuncSink = (*FuncMux)(nil)

// NewFuncMux wraps sinks in construction order. It fails with a
// configuration error when sinks is empty or holds a nil sink.
func NewFuncMux(sinks ...FuncSink) (*FuncMux, error) {
	f, err := newFanout("NewFuncMux", nil, sinks)
	if err != nil {
		return nil, err
	}
	return &FuncMux{fanout: f}, nil
}

// Len returns the number of wrapped sinks.
func (m *FuncMux) Len() int { return m.fanout.len() }

// Sinks returns a copy of the wrapped sinks in order.
func (m *FuncMux) Sinks() []FuncSink { return m.fanout.list() }

// Equal reports whether both muxes wrap the same sinks in the same order.
func (m *FuncMux) Equal(other *FuncMux) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil {
		return false
	}
	return m.fanout.equal(other.fanout)
}

// Parameter forwards the event to every sink in order.
func (m *FuncMux) Parameter(name string, flags uint32) error {
	return m.fanout.each("Parameter", func(s FuncSink) error {
		return s.Parameter(name, flags)
	})
}

// Annotation opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) Annotation(desc string, visible bool) (AnnotationSink, error) {
	return m.fanout.derive("Annotation", "annotation", func(s FuncSink) (AnnotationSink, error) {
		return s.Annotation(desc, visible)
	})
}

// ParameterAnnotation opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) ParameterAnnotation(param int, desc string, visible bool) (AnnotationSink, error) {
	return m.fanout.derive("ParameterAnnotation", "parameter", func(s FuncSink) (AnnotationSink, error) {
		return s.ParameterAnnotation(param, desc, visible)
	})
}

// TypeAnnotation opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) TypeAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error) {
	return m.fanout.derive("TypeAnnotation", "type", func(s FuncSink) (AnnotationSink, error) {
		return s.TypeAnnotation(ref, path, desc, visible)
	})
}

// AnnotationDefault opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) AnnotationDefault() (AnnotationSink, error) {
	return m.fanout.derive("AnnotationDefault", "default", func(s FuncSink) (AnnotationSink, error) {
		return s.AnnotationDefault()
	})
}

// Attribute forwards the event to every sink in order.
func (m *FuncMux) Attribute(name string, data []byte) error {
	return m.fanout.each("Attribute", func(s FuncSink) error {
		return s.Attribute(name, data)
	})
}

// Code forwards the event to every sink in order.
func (m *FuncMux) Code() error {
	return m.fanout.each("Code", func(s FuncSink) error {
		return s.Code()
	})
}

// Instr forwards the event to every sink in order.
func (m *FuncMux) Instr(instr wasm.Instruction) error {
	return m.fanout.each("Instr", func(s FuncSink) error {
		return s.Instr(instr)
	})
}

// InstrAnnotation opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) InstrAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error) {
	return m.fanout.derive("InstrAnnotation", "instr", func(s FuncSink) (AnnotationSink, error) {
		return s.InstrAnnotation(ref, path, desc, visible)
	})
}

// Label forwards the event to every sink in order.
func (m *FuncMux) Label(l Label) error {
	return m.fanout.each("Label", func(s FuncSink) error {
		return s.Label(l)
	})
}

// LineNumber forwards the event to every sink in order.
func (m *FuncMux) LineNumber(line int, at Label) error {
	return m.fanout.each("LineNumber", func(s FuncSink) error {
		return s.LineNumber(line, at)
	})
}

// Frame forwards the event to every sink in order.
func (m *FuncMux) Frame(f Frame) error {
	return m.fanout.each("Frame", func(s FuncSink) error {
		return s.Frame(f)
	})
}

// LocalVariable forwards the event to every sink in order.
func (m *FuncMux) LocalVariable(v LocalVar) error {
	return m.fanout.each("LocalVariable", func(s FuncSink) error {
		return s.LocalVariable(v)
	})
}

// LocalVariableAnnotation opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) LocalVariableAnnotation(ref TypeRef, path TypePath, ranges []LocalRange, desc string, visible bool) (AnnotationSink, error) {
	return m.fanout.derive("LocalVariableAnnotation", "local", func(s FuncSink) (AnnotationSink, error) {
		return s.LocalVariableAnnotation(ref, path, ranges, desc, visible)
	})
}

// TryCatchRange forwards the event to every sink in order.
func (m *FuncMux) TryCatchRange(tc TryCatch) error {
	return m.fanout.each("TryCatchRange", func(s FuncSink) error {
		return s.TryCatchRange(tc)
	})
}

// TryCatchAnnotation opens one child per sink and returns them as an AnnotationMux.
func (m *FuncMux) TryCatchAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error) {
	return m.fanout.derive("TryCatchAnnotation", "trycatch", func(s FuncSink) (AnnotationSink, error) {
		return s.TryCatchAnnotation(ref, path, desc, visible)
	})
}

// MaxStackAndLocals forwards the event to every sink in order.
func (m *FuncMux) MaxStackAndLocals(maxStack, maxLocals int) error {
	return m.fanout.each("MaxStackAndLocals", func(s FuncSink) error {
		return s.MaxStackAndLocals(maxStack, maxLocals)
	})
}

// End forwards End to every sink in order.
func (m *FuncMux) End() error {
	return m.fanout.each("End", func(s FuncSink) error {
		return s.End()
	})
}
