package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in generation the error occurred
type Phase string

const (
	PhaseWrap     Phase = "wrap"     // output allocation and sink wrapping
	PhaseHeader   Phase = "header"   // header/metadata events
	PhaseBody     Phase = "body"     // instruction content passes
	PhaseFinalize Phase = "finalize" // end-of-body finalization
	PhaseEmit     Phase = "emit"     // event fan-out
	PhaseEncode   Phase = "encode"   // artifact encoding
	PhaseLoad     Phase = "load"     // declaration loading
	PhaseVerify   Phase = "verify"   // artifact verification
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindMetadata      Kind = "metadata"
	KindSink          Kind = "sink"
	KindInvalidState  Kind = "invalid_state"
	KindUnsupported   Kind = "unsupported"
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidData   Kind = "invalid_data"
	KindNotFound      Kind = "not_found"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Function string
	Event    string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Function != "" || e.Event != "" {
		b.WriteString(": ")
		if e.Function != "" && e.Event != "" {
			b.WriteString("function ")
			b.WriteString(e.Function)
			b.WriteString(", event ")
			b.WriteString(e.Event)
		} else if e.Function != "" {
			b.WriteString("function ")
			b.WriteString(e.Function)
		} else {
			b.WriteString("event ")
			b.WriteString(e.Event)
		}
	}

	if e.Detail != "" {
		if e.Function != "" || e.Event != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the nesting path (e.g. annotation, array, nested annotation)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Function sets the function or output name
func (b *Builder) Function(name string) *Builder {
	b.err.Function = name
	return b
}

// Event sets the protocol event name
func (b *Builder) Event(name string) *Builder {
	b.err.Event = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Configuration creates a fan-out configuration error (empty sink set,
// absent child sink).
func Configuration(event, detail string) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindConfiguration,
		Event:  event,
		Detail: detail,
	}
}

// Metadata creates an inconsistent function metadata error
func Metadata(function, detail string) *Error {
	return &Error{
		Phase:    PhaseWrap,
		Kind:     KindMetadata,
		Function: function,
		Detail:   detail,
	}
}

// Sink wraps an error raised by a wrapped sink during fan-out.
// Sinks notified before the failing one are not rolled back.
func Sink(event string, index int, cause error) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindSink,
		Event:  event,
		Detail: fmt.Sprintf("sink %d failed", index),
		Value:  index,
		Cause:  cause,
	}
}

// InvalidState creates an out-of-order call error
func InvalidState(phase Phase, function, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidState,
		Function: function,
		Detail:   detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a declaration parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Errors collects one error per generated function, keeping declaration order.
type Errors struct {
	Failed []FunctionError
}

// FunctionError pairs a function name with its generation error
type FunctionError struct {
	Err      error
	Function string
}

// Add records err for function if err is non-nil
func (e *Errors) Add(function string, err error) {
	if err == nil {
		return
	}
	e.Failed = append(e.Failed, FunctionError{Function: function, Err: err})
}

// Err returns nil when nothing failed
func (e *Errors) Err() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e
}

func (e *Errors) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d function(s) failed to generate:\n", len(e.Failed)))
	for _, f := range e.Failed {
		b.WriteString("\n  ")
		b.WriteString(f.Function)
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual errors to errors.Is/As
func (e *Errors) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f.Err
	}
	return out
}
