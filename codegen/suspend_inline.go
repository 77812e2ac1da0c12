package codegen

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
)

// State is the lifecycle position of a SuspendInline.
type State int

const (
	NotStarted State = iota
	HeaderWrapped
	BodyEmitted
	Finalized
	// Failed is terminal: a failed function is restarted with a new
	// SuspendInline from Wrap.
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case HeaderWrapped:
		return "header-wrapped"
	case BodyEmitted:
		return "body-emitted"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SuspendInline produces two outputs from one concrete function: the
// primary, rewritten by the state-machine strategy, and a private secondary
// named Name+SecondarySuffix holding the plain body for an inliner. Header
// events reach both through a FuncMux; each body comes from its own content
// pass. Abstract functions get the primary only.
//
// A SuspendInline drives a single function and is not reusable.
type SuspendInline struct {
	allocator    Allocator
	stateMachine Strategy
	plain        Strategy
	meta         *FunctionMeta
	wrapped      emit.FuncSink
	primary      emit.FuncSink
	secondary    emit.FuncSink
	state        State
}

// NewSuspendInline creates the strategy. The secondary output is allocated
// from alloc during Wrap.
func NewSuspendInline(alloc Allocator, stateMachine, plain Strategy) *SuspendInline {
	if plain == nil {
		plain = Default{}
	}
	return &SuspendInline{allocator: alloc, stateMachine: stateMachine, plain: plain}
}

// State returns the lifecycle position.
func (s *SuspendInline) State() State { return s.state }

// Primary returns the sink the state-machine body is generated into.
func (s *SuspendInline) Primary() emit.FuncSink { return s.primary }

// Secondary returns the inliner sink, nil for abstract functions.
func (s *SuspendInline) Secondary() emit.FuncSink { return s.secondary }

// Wrap prepares the outputs for meta and returns the sink header events go
// to. Metadata is validated before any output is touched.
func (s *SuspendInline) Wrap(out emit.FuncSink, meta *FunctionMeta) (emit.FuncSink, error) {
	if err := s.expect(NotStarted, "Wrap"); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if s.stateMachine == nil {
		return nil, errors.New(errors.PhaseWrap, errors.KindConfiguration).
			Function(meta.Name).
			Detail("no state-machine strategy").
			Build()
	}

	s.meta = meta
	primary, err := s.stateMachine.PrepareSink(out, meta.PrimarySlot())
	if err != nil {
		return nil, s.fail(err)
	}
	s.primary = primary

	if meta.Abstract {
		s.wrapped = primary
		s.state = HeaderWrapped
		Logger().Debug("wrapped abstract function", zap.String("function", meta.Name))
		return s.wrapped, nil
	}

	if s.allocator == nil {
		return nil, s.fail(errors.New(errors.PhaseWrap, errors.KindConfiguration).
			Function(meta.Name).
			Detail("no allocator for the secondary output").
			Build())
	}
	slot := meta.SecondarySlot()
	secondaryOut, err := s.allocator.Allocate(slot)
	if err != nil {
		return nil, s.fail(errors.New(errors.PhaseWrap, errors.KindConfiguration).
			Function(meta.Name).
			Value(slot.Name).
			Detail("allocate %s", slot.Name).
			Cause(err).
			Build())
	}
	secondary, err := s.plain.PrepareSink(secondaryOut, slot)
	if err != nil {
		return nil, s.fail(err)
	}
	mux, err := emit.NewFuncMux(primary, secondary)
	if err != nil {
		return nil, s.fail(err)
	}

	s.secondary = secondary
	s.wrapped = mux
	s.state = HeaderWrapped
	Logger().Debug("wrapped function",
		zap.String("function", meta.Name),
		zap.String("secondary", slot.Name),
		zap.Int("sinks", mux.Len()))
	return s.wrapped, nil
}

// Generate runs the state-machine content pass into the primary and, for a
// concrete function, the plain content pass into the secondary.
func (s *SuspendInline) Generate(ctx *Context, sig Signature) error {
	if err := s.expect(HeaderWrapped, "Generate"); err != nil {
		return err
	}
	if err := s.stateMachine.GenerateBody(ctx, s.primary, sig); err != nil {
		return s.fail(err)
	}
	if s.secondary != nil {
		if err := s.plain.GenerateBody(ctx, s.secondary, sig); err != nil {
			return s.fail(err)
		}
	}
	s.state = BodyEmitted
	return nil
}

// Finish ends the wrapped sink once, which ends every output.
func (s *SuspendInline) Finish() error {
	if err := s.expect(BodyEmitted, "Finish"); err != nil {
		return err
	}
	s.state = Finalized
	if err := s.wrapped.End(); err != nil {
		return err
	}
	Logger().Debug("finished function", zap.String("function", s.meta.Name))
	return nil
}

// fail abandons the function; every later call reports invalid state.
func (s *SuspendInline) fail(err error) error {
	s.state = Failed
	Logger().Debug("function abandoned", zap.String("function", s.meta.Name), zap.Error(err))
	return err
}

func (s *SuspendInline) expect(want State, op string) error {
	if s.state == want {
		return nil
	}
	name := ""
	if s.meta != nil {
		name = s.meta.Name
	}
	return errors.New(phaseOf(op), errors.KindInvalidState).
		Function(name).
		Event(op).
		Detail("%s called in state %s, want %s", op, s.state, want).
		Build()
}

func phaseOf(op string) errors.Phase {
	switch op {
	case "Wrap":
		return errors.PhaseWrap
	case "Generate":
		return errors.PhaseBody
	default:
		return errors.PhaseFinalize
	}
}
