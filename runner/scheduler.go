package runner

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/errors"
)

// PendingOp is the work a suspending host function hands to the scheduler.
type PendingOp interface {
	Execute(ctx context.Context) (uint64, error)
}

// OpFunc adapts a function to PendingOp.
type OpFunc func(ctx context.Context) (uint64, error)

func (f OpFunc) Execute(ctx context.Context) (uint64, error) { return f(ctx) }

type StepStatus int

const (
	StepContinue StepStatus = iota // yielded an operation, expects resume
	StepDone                       // execution complete
)

type StepResult struct {
	PendingOp PendingOp
	Results   []uint64
	Status    StepStatus
}

// YieldResult is the outcome of a pending operation, delivered on resume.
type YieldResult struct {
	Error error
	Value uint64
}

// Scheduler runs one exported function to completion across suspensions:
// each unwind yields the pending operation, and the next step rewinds into
// the function with the operation's result.
type Scheduler struct {
	fn          api.Function
	pendingOp   PendingOp
	err         error
	driver      *Driver
	args        []uint64
	result      uint64
	suspensions int
	initialized bool
}

func NewScheduler(driver *Driver) *Scheduler {
	return &Scheduler{driver: driver}
}

func (s *Scheduler) SetPending(op PendingOp) {
	s.pendingOp = op
}

func (s *Scheduler) Result() (uint64, error) {
	return s.result, s.err
}

func (s *Scheduler) ClearPending() {
	s.pendingOp = nil
	s.result = 0
	s.err = nil
}

// Suspensions counts the unwinds seen since the scheduler was created.
func (s *Scheduler) Suspensions() int { return s.suspensions }

// Execute prepares a call. Step advances it.
func (s *Scheduler) Execute(_ context.Context, fn api.Function, args ...uint64) error {
	if !s.driver.IsNormal() {
		return errors.InvalidState(errors.PhaseVerify, "", "asyncify is not in the normal state")
	}
	s.fn = fn
	s.args = args
	s.initialized = true
	s.driver.ResetStack()
	return nil
}

// Step advances execution. Pass nil on the first step and the outcome of
// the yielded operation afterwards.
func (s *Scheduler) Step(ctx context.Context, yr *YieldResult) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if !s.initialized {
		return StepResult{}, errors.InvalidState(errors.PhaseVerify, "", "Step called before Execute")
	}

	if yr != nil {
		s.result = yr.Value
		s.err = yr.Error
		if s.err != nil {
			return StepResult{}, s.err
		}
		if err := s.driver.StartRewind(ctx); err != nil {
			return StepResult{}, errors.Wrap(errors.PhaseVerify, errors.KindInvalidState, err, "start rewind")
		}
	}

	results, callErr := s.fn.Call(ctx, s.args...)

	if s.driver.IsUnwinding() {
		if err := s.driver.StopUnwind(ctx); err != nil {
			return StepResult{}, errors.Wrap(errors.PhaseVerify, errors.KindInvalidState, err, "stop unwind")
		}
		if s.pendingOp == nil {
			return StepResult{}, errors.InvalidState(errors.PhaseVerify, "", "unwound without a pending operation")
		}
		op := s.pendingOp
		s.pendingOp = nil
		s.suspensions++
		Logger().Debug("suspended", zap.Int("suspensions", s.suspensions))
		return StepResult{Status: StepContinue, PendingOp: op}, nil
	}

	if callErr != nil {
		return StepResult{}, callErr
	}
	if !s.driver.IsNormal() {
		return StepResult{}, errors.InvalidState(errors.PhaseVerify, "", "call returned while rewinding")
	}

	s.initialized = false
	return StepResult{Status: StepDone, Results: results}, nil
}

func (s *Scheduler) Reset() {
	s.fn = nil
	s.args = nil
	s.pendingOp = nil
	s.result = 0
	s.err = nil
	s.initialized = false
}

// Run steps until the call completes, executing each yielded operation inline.
func (s *Scheduler) Run(ctx context.Context, fn api.Function, args ...uint64) ([]uint64, error) {
	if err := s.Execute(ctx, fn, args...); err != nil {
		return nil, err
	}

	var yr *YieldResult
	for {
		sr, err := s.Step(ctx, yr)
		if err != nil {
			return nil, err
		}
		switch sr.Status {
		case StepDone:
			return sr.Results, nil
		case StepContinue:
			val, opErr := sr.PendingOp.Execute(ctx)
			yr = &YieldResult{Value: val, Error: opErr}
		}
	}
}

type ctxKeyScheduler struct{}
type ctxKeyDriver struct{}

func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, ctxKeyScheduler{}, s)
}

func GetScheduler(ctx context.Context) *Scheduler {
	if v := ctx.Value(ctxKeyScheduler{}); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

func WithDriver(ctx context.Context, d *Driver) context.Context {
	return context.WithValue(ctx, ctxKeyDriver{}, d)
}

func GetDriver(ctx context.Context) *Driver {
	if v := ctx.Value(ctxKeyDriver{}); v != nil {
		return v.(*Driver)
	}
	return nil
}

// Suspend registers op and starts unwinding. Called by host functions.
func Suspend(ctx context.Context, op PendingOp) error {
	sched, driver := GetScheduler(ctx), GetDriver(ctx)
	if sched == nil || driver == nil {
		return errors.InvalidState(errors.PhaseVerify, "", "suspend: no scheduler in context")
	}
	sched.SetPending(op)
	return driver.StartUnwind(ctx)
}

// Resume returns the result of the operation and stops rewinding. Called
// by the host function when it is re-entered during a rewind.
func Resume(ctx context.Context) (uint64, error) {
	sched, driver := GetScheduler(ctx), GetDriver(ctx)
	if sched == nil || driver == nil {
		return 0, errors.InvalidState(errors.PhaseVerify, "", "resume: no scheduler in context")
	}
	result, err := sched.Result()
	if err != nil {
		return 0, err
	}
	if err := driver.StopRewind(ctx); err != nil {
		return 0, err
	}
	sched.ClearPending()
	return result, nil
}

// MakeAsyncHandler wraps an operation factory into a host function that
// suspends on first entry and delivers the result when rewound into.
// Without a driver in the context it runs fallback instead.
func MakeAsyncHandler(createOp func(ctx context.Context, mod api.Module, stack []uint64) PendingOp, fallback api.GoModuleFunc) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		driver := GetDriver(ctx)
		if driver == nil {
			fallback(ctx, mod, stack)
			return
		}

		if driver.IsRewinding() {
			result, err := Resume(ctx)
			if err != nil {
				panic(err)
			}
			if len(stack) > 0 {
				stack[0] = result
			}
			return
		}

		if op := createOp(ctx, mod, stack); op != nil {
			if err := Suspend(ctx, op); err != nil {
				Logger().Warn("failed to suspend for pending operation", zap.Error(err))
			}
		}
	}
}
