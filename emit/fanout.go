package emit

import (
	"reflect"

	"github.com/wippyai/wasm-dualgen/errors"
)

// fanout is an ordered, fixed set of sinks of one protocol.
type fanout[S any] struct {
	sinks []S
	path  []string // nesting path below the root sink, for diagnostics
}

func newFanout[S any](event string, path []string, sinks []S) (fanout[S], error) {
	if len(sinks) == 0 {
		return fanout[S]{}, errors.New(errors.PhaseEmit, errors.KindConfiguration).
			Event(event).
			Path(path...).
			Detail("no sinks").
			Build()
	}
	for i, s := range sinks {
		if isNil(s) {
			return fanout[S]{}, errors.New(errors.PhaseEmit, errors.KindConfiguration).
				Event(event).
				Path(path...).
				Value(i).
				Detail("sink %d is nil", i).
				Build()
		}
	}
	owned := make([]S, len(sinks))
	copy(owned, sinks)
	return fanout[S]{sinks: owned, path: path}, nil
}

// each calls fn on every sink in order and stops at the first error.
func (f fanout[S]) each(event string, fn func(S) error) error {
	for i, s := range f.sinks {
		if err := fn(s); err != nil {
			return f.sinkErr(event, i, err)
		}
	}
	return nil
}

// derive collects one child per sink, in order, into a new AnnotationMux.
func (f fanout[S]) derive(event, step string, fn func(S) (AnnotationSink, error)) (AnnotationSink, error) {
	path := f.childPath(step)
	children := make([]AnnotationSink, len(f.sinks))
	for i, s := range f.sinks {
		child, err := fn(s)
		if err != nil {
			return nil, f.sinkErr(event, i, err)
		}
		if isNil(child) {
			return nil, errors.New(errors.PhaseEmit, errors.KindConfiguration).
				Event(event).
				Path(path...).
				Value(i).
				Detail("sink %d returned no child", i).
				Build()
		}
		children[i] = child
	}
	return &AnnotationMux{fanout: fanout[AnnotationSink]{sinks: children, path: path}}, nil
}

func (f fanout[S]) childPath(step string) []string {
	path := make([]string, len(f.path), len(f.path)+1)
	copy(path, f.path)
	return append(path, step)
}

func (f fanout[S]) sinkErr(event string, index int, cause error) error {
	err := errors.Sink(event, index, cause)
	if len(f.path) > 0 {
		err.Path = f.path
	}
	return err
}

func (f fanout[S]) len() int {
	return len(f.sinks)
}

func (f fanout[S]) list() []S {
	out := make([]S, len(f.sinks))
	copy(out, f.sinks)
	return out
}

// equal compares sinks element-wise with ==. Sinks whose values cannot be
// compared are never equal.
func (f fanout[S]) equal(other fanout[S]) bool {
	if len(f.sinks) != len(other.sinks) {
		return false
	}
	for i := range f.sinks {
		if !sameSink(f.sinks[i], other.sinks[i]) {
			return false
		}
	}
	return true
}

func sameSink(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

// isNil reports an absent sink, including typed nil pointers held in an
// interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
