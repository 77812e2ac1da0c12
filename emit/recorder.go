package emit

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Event is one recorded protocol call. Depth is 0 for function events and
// grows by one per nested annotation or array.
type Event struct {
	Op    string
	Args  string
	Depth int
}

func (e Event) String() string {
	indent := strings.Repeat("  ", e.Depth)
	if e.Args == "" {
		return indent + e.Op
	}
	return indent + e.Op + " " + e.Args
}

// trace is shared by a Recorder and every annotation recorder it opens.
type trace struct {
	failures map[string]error
	name     string
	events   []Event
	open     int
}

func (t *trace) record(depth int, op, format string, args ...any) error {
	if err, ok := t.failures[op]; ok {
		return err
	}
	t.events = append(t.events, Event{Op: op, Args: fmt.Sprintf(format, args...), Depth: depth})
	return nil
}

func (t *trace) afterEnd(op string) error {
	return errors.New(errors.PhaseEmit, errors.KindInvalidState).
		Function(t.name).
		Event(op).
		Detail("event after End").
		Build()
}

// Recorder is a FuncSink that records every event it receives, including
// events of nested annotation sinks, in one ordered trace.
type Recorder struct {
	trace *trace
	ended bool
}

var _ FuncSink = (*Recorder)(nil)

// NewRecorder creates a recorder for the output called name.
func NewRecorder(name string) *Recorder {
	return &Recorder{trace: &trace{name: name}}
}

// Name returns the output name the recorder was created for.
func (r *Recorder) Name() string { return r.trace.name }

// FailOn makes every later call of op, on this recorder or its nested
// sinks, return err without recording.
func (r *Recorder) FailOn(op string, err error) {
	if r.trace.failures == nil {
		r.trace.failures = make(map[string]error)
	}
	r.trace.failures[op] = err
}

// Events returns a copy of the recorded trace.
func (r *Recorder) Events() []Event {
	return append([]Event(nil), r.trace.events...)
}

// Ops returns the recorded operation names in order.
func (r *Recorder) Ops() []string {
	ops := make([]string, len(r.trace.events))
	for i, e := range r.trace.events {
		ops[i] = e.Op
	}
	return ops
}

// Contains reports whether any recorded event renders to a string containing s.
func (r *Recorder) Contains(s string) bool {
	for _, e := range r.trace.events {
		if strings.Contains(e.String(), s) {
			return true
		}
	}
	return false
}

// Ended reports whether End was received.
func (r *Recorder) Ended() bool { return r.ended }

func (r *Recorder) String() string {
	var b strings.Builder
	for _, e := range r.trace.events {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Recorder) record(op, format string, args ...any) error {
	if r.ended {
		return r.trace.afterEnd(op)
	}
	return r.trace.record(0, op, format, args...)
}

func (r *Recorder) child(op, format string, args ...any) (AnnotationSink, error) {
	if err := r.record(op, format, args...); err != nil {
		return nil, err
	}
	r.trace.open++
	return &AnnotationRecorder{trace: r.trace, depth: 1}, nil
}

func (r *Recorder) Parameter(name string, flags uint32) error {
	return r.record("Parameter", "%s %d", name, flags)
}

func (r *Recorder) Annotation(desc string, visible bool) (AnnotationSink, error) {
	return r.child("Annotation", "%s %t", desc, visible)
}

func (r *Recorder) ParameterAnnotation(param int, desc string, visible bool) (AnnotationSink, error) {
	return r.child("ParameterAnnotation", "%d %s %t", param, desc, visible)
}

func (r *Recorder) TypeAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error) {
	return r.child("TypeAnnotation", "%d %q %s %t", ref, path, desc, visible)
}

func (r *Recorder) AnnotationDefault() (AnnotationSink, error) {
	return r.child("AnnotationDefault", "")
}

func (r *Recorder) Attribute(name string, data []byte) error {
	return r.record("Attribute", "%s %x", name, data)
}

func (r *Recorder) Code() error {
	return r.record("Code", "")
}

func (r *Recorder) Instr(instr wasm.Instruction) error {
	return r.record("Instr", "%s", instr)
}

func (r *Recorder) InstrAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error) {
	return r.child("InstrAnnotation", "%d %q %s %t", ref, path, desc, visible)
}

func (r *Recorder) Label(l Label) error {
	return r.record("Label", "L%d", l.ID)
}

func (r *Recorder) LineNumber(line int, at Label) error {
	return r.record("LineNumber", "%d L%d", line, at.ID)
}

func (r *Recorder) Frame(f Frame) error {
	return r.record("Frame", "%d locals=%v stack=%v", f.Kind, f.Locals, f.Stack)
}

func (r *Recorder) LocalVariable(v LocalVar) error {
	return r.record("LocalVariable", "%d %s %s L%d-L%d", v.Index, v.Name, v.Type, v.Start.ID, v.End.ID)
}

func (r *Recorder) LocalVariableAnnotation(ref TypeRef, path TypePath, ranges []LocalRange, desc string, visible bool) (AnnotationSink, error) {
	return r.child("LocalVariableAnnotation", "%d %q %v %s %t", ref, path, ranges, desc, visible)
}

func (r *Recorder) TryCatchRange(tc TryCatch) error {
	return r.record("TryCatchRange", "L%d-L%d L%d %s", tc.Start.ID, tc.End.ID, tc.Handler.ID, tc.Tag)
}

func (r *Recorder) TryCatchAnnotation(ref TypeRef, path TypePath, desc string, visible bool) (AnnotationSink, error) {
	return r.child("TryCatchAnnotation", "%d %q %s %t", ref, path, desc, visible)
}

func (r *Recorder) MaxStackAndLocals(maxStack, maxLocals int) error {
	return r.record("MaxStackAndLocals", "%d %d", maxStack, maxLocals)
}

// End records the end of the body. It fails if a nested sink opened from
// this recorder has not been ended.
func (r *Recorder) End() error {
	if r.ended {
		return r.trace.afterEnd("End")
	}
	if r.trace.open > 0 {
		return errors.New(errors.PhaseEmit, errors.KindInvalidState).
			Function(r.trace.name).
			Event("End").
			Detail("%d nested sink(s) not ended", r.trace.open).
			Build()
	}
	if err := r.trace.record(0, "End", ""); err != nil {
		return err
	}
	r.ended = true
	return nil
}

// AnnotationRecorder records annotation events into its parent Recorder's trace.
type AnnotationRecorder struct {
	trace *trace
	depth int
	ended bool
}

var _ AnnotationSink = (*AnnotationRecorder)(nil)

func (a *AnnotationRecorder) record(op, format string, args ...any) error {
	if a.ended {
		return a.trace.afterEnd(op)
	}
	return a.trace.record(a.depth, op, format, args...)
}

func (a *AnnotationRecorder) child(op, format string, args ...any) (AnnotationSink, error) {
	if err := a.record(op, format, args...); err != nil {
		return nil, err
	}
	a.trace.open++
	return &AnnotationRecorder{trace: a.trace, depth: a.depth + 1}, nil
}

func (a *AnnotationRecorder) Value(name string, v any) error {
	return a.record("Value", "%s=%v", name, v)
}

func (a *AnnotationRecorder) Enum(name, desc, value string) error {
	return a.record("Enum", "%s=%s.%s", name, desc, value)
}

func (a *AnnotationRecorder) Annotation(name, desc string) (AnnotationSink, error) {
	return a.child("Annotation", "%s %s", name, desc)
}

func (a *AnnotationRecorder) Array(name string) (AnnotationSink, error) {
	return a.child("Array", "%s", name)
}

func (a *AnnotationRecorder) End() error {
	if a.ended {
		return a.trace.afterEnd("End")
	}
	if err := a.trace.record(a.depth, "End", ""); err != nil {
		return err
	}
	a.ended = true
	a.trace.open--
	return nil
}
