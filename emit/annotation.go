package emit

// AnnotationMux forwards AnnotationSink events to a fixed, ordered set of
// sinks. Events stop at the first failing sink. Nested annotations and arrays
// yield muxes of the same arity.
type AnnotationMux struct {
	fanout fanout[AnnotationSink]
}

var _ AnnotationSink = (*AnnotationMux)(nil)

// NewAnnotationMux wraps sinks in construction order. It fails with a
// configuration error when sinks is empty or holds a nil sink.
func NewAnnotationMux(sinks ...AnnotationSink) (*AnnotationMux, error) {
	f, err := newFanout("NewAnnotationMux", nil, sinks)
	if err != nil {
		return nil, err
	}
	return &AnnotationMux{fanout: f}, nil
}

// Len returns the number of wrapped sinks.
func (m *AnnotationMux) Len() int { return m.fanout.len() }

// Sinks returns a copy of the wrapped sinks in order.
func (m *AnnotationMux) Sinks() []AnnotationSink { return m.fanout.list() }

// Path returns the nesting path of this mux below its root, e.g.
// [annotation array annotation].
func (m *AnnotationMux) Path() []string {
	return append([]string(nil), m.fanout.path...)
}

// Equal reports whether both muxes wrap the same sinks in the same order.
func (m *AnnotationMux) Equal(other *AnnotationMux) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil {
		return false
	}
	return m.fanout.equal(other.fanout)
}

// Value forwards the event to every sink in order.
func (m *AnnotationMux) Value(name string, v any) error {
	return m.fanout.each("Value", func(s AnnotationSink) error {
		return s.Value(name, v)
	})
}

// Enum forwards the event to every sink in order.
func (m *AnnotationMux) Enum(name, desc, value string) error {
	return m.fanout.each("Enum", func(s AnnotationSink) error {
		return s.Enum(name, desc, value)
	})
}

// Annotation opens one child per sink and returns them as an AnnotationMux.
func (m *AnnotationMux) Annotation(name, desc string) (AnnotationSink, error) {
	return m.fanout.derive("Annotation", "annotation", func(s AnnotationSink) (AnnotationSink, error) {
		return s.Annotation(name, desc)
	})
}

// Array opens one child per sink and returns them as an AnnotationMux.
func (m *AnnotationMux) Array(name string) (AnnotationSink, error) {
	return m.fanout.derive("Array", "array", func(s AnnotationSink) (AnnotationSink, error) {
		return s.Array(name)
	})
}

// End forwards End to every sink in order.
func (m *AnnotationMux) End() error {
	return m.fanout.each("End", func(s AnnotationSink) error {
		return s.End()
	})
}
