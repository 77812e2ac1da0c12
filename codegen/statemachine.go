package codegen

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Names of the locals the rewrite adds.
const (
	ScratchSaveName   = "$async.save_index"
	ScratchRewindName = "$async.rewind_index"
	ScratchStackName  = "$async.stack_ptr"
)

// StateMachine generates a body that can be unwound at every call to a
// suspending function and rewound to it later.
type StateMachine struct {
	Suspending asyncify.FunctionMatcher
	Globals    asyncify.Globals
}

// PrepareSink wraps out so header events pass through and content events
// are buffered until End, rewritten, and replayed into out.
func (s StateMachine) PrepareSink(out emit.FuncSink, slot Slot) (emit.FuncSink, error) {
	if out == nil {
		return nil, errors.New(errors.PhaseWrap, errors.KindConfiguration).
			Function(slot.Name).
			Detail("no output to wrap").
			Build()
	}
	return &stateMachineSink{out: out, slot: slot, cfg: s, lines: make(map[uint32]int)}, nil
}

// GenerateBody runs the plain content pass; the rewrite happens on End.
func (s StateMachine) GenerateBody(ctx *Context, sink emit.FuncSink, sig Signature) error {
	return emitContent(ctx, sink, sig)
}

type segment struct {
	instrs  []wasm.Instruction
	label   emit.Label
	labeled bool
}

// pendingAnnotation is a content annotation held back with the body.
type pendingAnnotation struct {
	open  func(emit.FuncSink) (emit.AnnotationSink, error)
	buf   *emit.AnnotationBuffer
	event string
	seg   int
}

type stateMachineSink struct {
	out         emit.FuncSink
	annotations []pendingAnnotation
	cfg        StateMachine
	lines      map[uint32]int
	slot       Slot
	locals     []emit.LocalVar
	segments   []segment
	tryCatches []emit.TryCatch
	raw        []func(emit.FuncSink) error
	frames     int
	maxStack   int
	maxLocals  int
	code       bool
	hasMax     bool
	ended      bool
}

func (s *stateMachineSink) check(event string) error {
	if s.ended {
		return errors.New(errors.PhaseFinalize, errors.KindInvalidState).
			Function(s.slot.Name).
			Event(event).
			Detail("event after End").
			Build()
	}
	return nil
}

func (s *stateMachineSink) buffer(event string, fn func(emit.FuncSink) error) error {
	if err := s.check(event); err != nil {
		return err
	}
	s.raw = append(s.raw, fn)
	return nil
}

func (s *stateMachineSink) Parameter(name string, flags uint32) error {
	if err := s.check("Parameter"); err != nil {
		return err
	}
	return s.out.Parameter(name, flags)
}

func (s *stateMachineSink) Annotation(desc string, visible bool) (emit.AnnotationSink, error) {
	if err := s.check("Annotation"); err != nil {
		return nil, err
	}
	return s.out.Annotation(desc, visible)
}

func (s *stateMachineSink) ParameterAnnotation(param int, desc string, visible bool) (emit.AnnotationSink, error) {
	if err := s.check("ParameterAnnotation"); err != nil {
		return nil, err
	}
	return s.out.ParameterAnnotation(param, desc, visible)
}

func (s *stateMachineSink) TypeAnnotation(ref emit.TypeRef, path emit.TypePath, desc string, visible bool) (emit.AnnotationSink, error) {
	if err := s.check("TypeAnnotation"); err != nil {
		return nil, err
	}
	return s.out.TypeAnnotation(ref, path, desc, visible)
}

func (s *stateMachineSink) AnnotationDefault() (emit.AnnotationSink, error) {
	if err := s.check("AnnotationDefault"); err != nil {
		return nil, err
	}
	return s.out.AnnotationDefault()
}

func (s *stateMachineSink) Attribute(name string, data []byte) error {
	if err := s.check("Attribute"); err != nil {
		return err
	}
	return s.out.Attribute(name, data)
}

// hold buffers a content annotation. It is replayed in body order, or for
// a rewritten body after the statement it was emitted in.
func (s *stateMachineSink) hold(event string, open func(emit.FuncSink) (emit.AnnotationSink, error)) (emit.AnnotationSink, error) {
	p := pendingAnnotation{open: open, buf: emit.NewAnnotationBuffer(), event: event, seg: len(s.segments) - 1}
	if err := s.buffer(event, func(out emit.FuncSink) error { return replayAnnotation(out, p) }); err != nil {
		return nil, err
	}
	s.annotations = append(s.annotations, p)
	return p.buf, nil
}

func replayAnnotation(out emit.FuncSink, p pendingAnnotation) error {
	child, err := p.open(out)
	if err != nil {
		return err
	}
	if child == nil {
		return errors.Configuration(p.event, "output returned no child")
	}
	return p.buf.Replay(child)
}

func (s *stateMachineSink) InstrAnnotation(ref emit.TypeRef, path emit.TypePath, desc string, visible bool) (emit.AnnotationSink, error) {
	return s.hold("InstrAnnotation", func(out emit.FuncSink) (emit.AnnotationSink, error) {
		return out.InstrAnnotation(ref, path, desc, visible)
	})
}

func (s *stateMachineSink) LocalVariableAnnotation(ref emit.TypeRef, path emit.TypePath, ranges []emit.LocalRange, desc string, visible bool) (emit.AnnotationSink, error) {
	return s.hold("LocalVariableAnnotation", func(out emit.FuncSink) (emit.AnnotationSink, error) {
		return out.LocalVariableAnnotation(ref, path, ranges, desc, visible)
	})
}

func (s *stateMachineSink) TryCatchAnnotation(ref emit.TypeRef, path emit.TypePath, desc string, visible bool) (emit.AnnotationSink, error) {
	return s.hold("TryCatchAnnotation", func(out emit.FuncSink) (emit.AnnotationSink, error) {
		return out.TryCatchAnnotation(ref, path, desc, visible)
	})
}

// replayHeld sends the held annotations of event, restricted to segment seg
// unless seg is negative.
func (s *stateMachineSink) replayHeld(event string, seg int) error {
	for _, p := range s.annotations {
		if p.event != event || (seg >= 0 && max(p.seg, 0) != seg) {
			continue
		}
		if err := replayAnnotation(s.out, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *stateMachineSink) Code() error {
	s.code = true
	return s.buffer("Code", func(out emit.FuncSink) error { return out.Code() })
}

func (s *stateMachineSink) Instr(instr wasm.Instruction) error {
	if err := s.buffer("Instr", func(out emit.FuncSink) error { return out.Instr(instr) }); err != nil {
		return err
	}
	if len(s.segments) == 0 {
		s.segments = append(s.segments, segment{})
	}
	last := &s.segments[len(s.segments)-1]
	last.instrs = append(last.instrs, instr)
	return nil
}

func (s *stateMachineSink) Label(l emit.Label) error {
	if err := s.buffer("Label", func(out emit.FuncSink) error { return out.Label(l) }); err != nil {
		return err
	}
	s.segments = append(s.segments, segment{label: l, labeled: true})
	return nil
}

func (s *stateMachineSink) LineNumber(line int, at emit.Label) error {
	if err := s.buffer("LineNumber", func(out emit.FuncSink) error { return out.LineNumber(line, at) }); err != nil {
		return err
	}
	s.lines[at.ID] = line
	return nil
}

func (s *stateMachineSink) Frame(f emit.Frame) error {
	if err := s.buffer("Frame", func(out emit.FuncSink) error { return out.Frame(f) }); err != nil {
		return err
	}
	s.frames++
	return nil
}

func (s *stateMachineSink) LocalVariable(v emit.LocalVar) error {
	if err := s.buffer("LocalVariable", func(out emit.FuncSink) error { return out.LocalVariable(v) }); err != nil {
		return err
	}
	s.locals = append(s.locals, v)
	return nil
}

func (s *stateMachineSink) TryCatchRange(tc emit.TryCatch) error {
	if err := s.buffer("TryCatchRange", func(out emit.FuncSink) error { return out.TryCatchRange(tc) }); err != nil {
		return err
	}
	s.tryCatches = append(s.tryCatches, tc)
	return nil
}

func (s *stateMachineSink) MaxStackAndLocals(maxStack, maxLocals int) error {
	if err := s.buffer("MaxStackAndLocals", func(out emit.FuncSink) error {
		return out.MaxStackAndLocals(maxStack, maxLocals)
	}); err != nil {
		return err
	}
	s.maxStack, s.maxLocals, s.hasMax = maxStack, maxLocals, true
	return nil
}

// End rewrites the buffered content, replays it into the output and ends it.
func (s *stateMachineSink) End() error {
	if err := s.check("End"); err != nil {
		return err
	}
	s.ended = true

	for _, p := range s.annotations {
		if !p.buf.Complete() {
			return errors.New(errors.PhaseFinalize, errors.KindInvalidState).
				Function(s.slot.Name).
				Event(p.event).
				Detail("annotation not ended").
				Build()
		}
	}

	if !s.code {
		return s.replayRaw()
	}

	fn, err := s.function()
	if err != nil {
		return err
	}
	res, err := asyncify.Rewrite(fn, asyncify.Config{Suspending: s.cfg.Suspending, Globals: s.cfg.Globals})
	if err != nil {
		return err
	}

	if !res.Changed {
		return s.replayRaw()
	}

	if s.frames > 0 {
		Logger().Debug("dropping stale frames",
			zap.String("function", s.slot.Name),
			zap.Int("frames", s.frames))
	}
	if err := s.replay(res); err != nil {
		return err
	}
	return s.out.End()
}

func (s *stateMachineSink) replayRaw() error {
	for _, replay := range s.raw {
		if err := replay(s.out); err != nil {
			return err
		}
	}
	return s.out.End()
}

// function turns the buffer into rewrite input. The last labeled segment is
// the result expression.
func (s *stateMachineSink) function() (asyncify.Function, error) {
	ft, err := s.slot.Descriptor.FuncType()
	if err != nil {
		return asyncify.Function{}, err
	}

	locals, err := s.localTypes(len(ft.Params))
	if err != nil {
		return asyncify.Function{}, err
	}

	fn := asyncify.Function{Name: s.slot.Name, Type: ft, Locals: locals}
	if len(s.segments) == 0 {
		return fn, nil
	}
	for _, seg := range s.segments[:len(s.segments)-1] {
		fn.Statements = append(fn.Statements, asyncify.Statement{
			Instrs: seg.instrs,
			Label:  seg.label.ID,
			Line:   s.lines[seg.label.ID],
		})
	}
	fn.Tail = s.segments[len(s.segments)-1].instrs
	return fn, nil
}

// localTypes orders the declared locals by index. Indices must be dense
// and follow the parameters.
func (s *stateMachineSink) localTypes(params int) ([]wasm.ValType, error) {
	sorted := append([]emit.LocalVar(nil), s.locals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	types := make([]wasm.ValType, 0, len(sorted))
	for i, v := range sorted {
		if want := uint32(params + i); v.Index != want {
			return nil, errors.New(errors.PhaseFinalize, errors.KindInvalidInput).
				Function(s.slot.Name).
				Event("LocalVariable").
				Value(v.Index).
				Detail("local %q has index %d, want %d", v.Name, v.Index, want).
				Build()
		}
		types = append(types, v.Type)
	}
	return types, nil
}

func (s *stateMachineSink) replay(res asyncify.Result) error {
	out := s.out
	if err := out.Code(); err != nil {
		return err
	}
	for _, v := range s.locals {
		if err := out.LocalVariable(v); err != nil {
			return err
		}
	}

	first := s.segments[0].label
	last := s.segments[len(s.segments)-1].label
	scratch := []struct {
		name  string
		index uint32
	}{
		{ScratchSaveName, res.Scratch.SaveIndex},
		{ScratchRewindName, res.Scratch.RewindIndex},
		{ScratchStackName, res.Scratch.StackPtr},
	}
	for _, sc := range scratch {
		err := out.LocalVariable(emit.LocalVar{
			Name:  sc.name,
			Index: sc.index,
			Type:  wasm.ValI32,
			Start: first,
			End:   last,
		})
		if err != nil {
			return err
		}
	}
	if err := s.replayHeld("LocalVariableAnnotation", -1); err != nil {
		return err
	}

	if err := emitAll(out, res.Prologue); err != nil {
		return err
	}
	for i, st := range res.Statements {
		if err := s.mark(s.segments[i]); err != nil {
			return err
		}
		if err := emitAll(out, st.Instrs); err != nil {
			return err
		}
		if err := s.replayHeld("InstrAnnotation", i); err != nil {
			return err
		}
	}
	if err := s.mark(s.segments[len(s.segments)-1]); err != nil {
		return err
	}
	if err := emitAll(out, res.Epilogue); err != nil {
		return err
	}
	if err := s.replayHeld("InstrAnnotation", len(s.segments)-1); err != nil {
		return err
	}

	for _, tc := range s.tryCatches {
		if err := out.TryCatchRange(tc); err != nil {
			return err
		}
	}
	if err := s.replayHeld("TryCatchAnnotation", -1); err != nil {
		return err
	}
	if s.hasMax {
		added := len(res.Locals) - len(s.locals)
		if err := out.MaxStackAndLocals(s.maxStack+asyncify.ExtraStack, s.maxLocals+added); err != nil {
			return err
		}
	}

	Logger().Debug("replayed rewritten body",
		zap.String("function", s.slot.Name),
		zap.Int("call_sites", res.CallSites),
		zap.Uint32("frame_size", res.FrameSize))
	return nil
}

// mark re-emits a segment's label and line number.
func (s *stateMachineSink) mark(seg segment) error {
	if !seg.labeled {
		return nil
	}
	if err := s.out.Label(seg.label); err != nil {
		return err
	}
	if line, ok := s.lines[seg.label.ID]; ok {
		return s.out.LineNumber(line, seg.label)
	}
	return nil
}

func emitAll(sink emit.FuncSink, instrs []wasm.Instruction) error {
	for _, instr := range instrs {
		if err := sink.Instr(instr); err != nil {
			return fmt.Errorf("replay %s: %w", instr, err)
		}
	}
	return nil
}
