package codegen

import (
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// recordingAllocator hands out one Recorder per allocated slot.
type recordingAllocator struct {
	outputs map[string]*emit.Recorder
	fail    error
	slots   []Slot
}

func newRecordingAllocator() *recordingAllocator {
	return &recordingAllocator{outputs: make(map[string]*emit.Recorder)}
}

func (a *recordingAllocator) Allocate(slot Slot) (emit.FuncSink, error) {
	if a.fail != nil && len(a.slots) > 0 {
		return nil, a.fail
	}
	a.slots = append(a.slots, slot)
	r := emit.NewRecorder(slot.Name)
	a.outputs[slot.Name] = r
	return r, nil
}

func (a *recordingAllocator) names() []string {
	out := make([]string, len(a.slots))
	for i, s := range a.slots {
		out[i] = s.Name
	}
	return out
}

// countingStrategy counts the calls made to the wrapped strategy.
type countingStrategy struct {
	inner    Strategy
	prepared int
	bodies   int
}

func (c *countingStrategy) PrepareSink(out emit.FuncSink, slot Slot) (emit.FuncSink, error) {
	c.prepared++
	return c.inner.PrepareSink(out, slot)
}

func (c *countingStrategy) GenerateBody(ctx *Context, sink emit.FuncSink, sig Signature) error {
	c.bodies++
	return c.inner.GenerateBody(ctx, sink, sig)
}

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func localGet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: idx}}
}

func localSet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: idx}}
}

func call(name string) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.SymbolImm{Name: name}}
}

var callees = map[string]wasm.FuncType{
	"sleep": {Params: []wasm.ValType{wasm.ValI32}},
}

func stateMachine() StateMachine {
	return StateMachine{
		Suspending: asyncify.NewFunctionNameMatcher([]string{"sleep"}),
		Globals:    asyncify.Globals{State: 0, Data: 1},
	}
}

// fMeta is a concrete ()->Unit function that sleeps once.
func fMeta() *FunctionMeta {
	return &FunctionMeta{
		Name:       "f",
		Descriptor: Descriptor{},
		Origin:     Origin{File: "f.yaml", Line: 3},
		Attributes: []Attribute{{Name: "origin", Data: []byte("f.yaml")}},
		Annotations: []Annotation{{
			Desc:     "suspend",
			Param:    -1,
			Visible:  true,
			Elements: []Element{{Name: "reason", Value: "io"}},
		}},
		Body: &Body{
			Locals: []Local{{Name: "x", Type: wasm.ValI32}},
			Statements: []Stmt{
				{Line: 1, Instrs: []wasm.Instruction{i32Const(7), localSet(0)}},
				{Line: 2, Instrs: []wasm.Instruction{i32Const(10), call("sleep")}},
			},
		},
	}
}

// gMeta is an abstract function.
func gMeta() *FunctionMeta {
	return &FunctionMeta{
		Name:       "g",
		Abstract:   true,
		Descriptor: Descriptor{Params: []wit.Type{wit.U32{}}, Result: wit.U32{}},
		ParamNames: []string{"n"},
	}
}

func header(r *emit.Recorder) []emit.Event {
	events := r.Events()
	for i, e := range events {
		if e.Op == "Code" {
			return events[:i]
		}
	}
	return events
}

func TestSuspendInline_Concrete(t *testing.T) {
	alloc := newRecordingAllocator()
	plain := &countingStrategy{inner: Default{}}
	s := NewSuspendInline(alloc, stateMachine(), plain)
	gen := NewFunctionCodegen(alloc)

	meta := fMeta()
	if err := gen.Generate(NewContext(meta, callees), meta, s); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if want := []string{"f", "f$$forInline"}; !reflect.DeepEqual(alloc.names(), want) {
		t.Fatalf("outputs = %v, want %v", alloc.names(), want)
	}
	for _, slot := range alloc.slots {
		if got := slot.Descriptor.String(); got != "()->Unit" {
			t.Errorf("%s descriptor = %s, want ()->Unit", slot.Name, got)
		}
	}
	secondary := alloc.slots[1]
	if !secondary.Private || !secondary.Synthetic {
		t.Errorf("secondary slot = %+v, want private and synthetic", secondary)
	}
	if !secondary.Descriptor.Equal(meta.Descriptor) {
		t.Error("secondary descriptor differs from primary")
	}

	f, inline := alloc.outputs["f"], alloc.outputs["f$$forInline"]
	if !f.Ended() || !inline.Ended() {
		t.Fatal("both outputs should be ended")
	}
	if s.State() != Finalized {
		t.Errorf("state = %s, want finalized", s.State())
	}
	if plain.prepared != 1 || plain.bodies != 1 {
		t.Errorf("plain strategy prepared=%d bodies=%d, want 1/1", plain.prepared, plain.bodies)
	}

	for _, marker := range []string{ScratchSaveName, "global.get 0", "br 4"} {
		if !f.Contains(marker) {
			t.Errorf("f has no %q:\n%s", marker, f)
		}
		if inline.Contains(marker) {
			t.Errorf("f$$forInline has %q:\n%s", marker, inline)
		}
	}

	if !reflect.DeepEqual(header(f), header(inline)) {
		t.Errorf("headers differ:\nf:\n%v\nf$$forInline:\n%v", header(f), header(inline))
	}
	if !f.Contains("MaxStackAndLocals 5 4") {
		t.Errorf("f stack/locals not adjusted:\n%s", f)
	}
	if !inline.Contains("MaxStackAndLocals 1 1") {
		t.Errorf("f$$forInline stack/locals:\n%s", inline)
	}
}

func TestSuspendInline_Abstract(t *testing.T) {
	alloc := newRecordingAllocator()
	plain := &countingStrategy{inner: Default{}}
	s := NewSuspendInline(alloc, stateMachine(), plain)

	meta := gMeta()
	out, _ := alloc.Allocate(meta.PrimarySlot())
	wrapped, err := s.Wrap(out, meta)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if wrapped != s.Primary() {
		t.Error("abstract wrap should return the state-machine sink alone")
	}
	if _, ok := wrapped.(*emit.FuncMux); ok {
		t.Error("abstract wrap returned a mux")
	}
	if s.Secondary() != nil {
		t.Error("abstract function has a secondary sink")
	}

	if err := EmitHeader(wrapped, meta); err != nil {
		t.Fatal(err)
	}
	if err := s.Generate(NewContext(meta, nil), Signature{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}

	if want := []string{"g"}; !reflect.DeepEqual(alloc.names(), want) {
		t.Errorf("outputs = %v, want %v", alloc.names(), want)
	}
	if plain.prepared != 0 || plain.bodies != 0 {
		t.Errorf("default strategy used: prepared=%d bodies=%d", plain.prepared, plain.bodies)
	}
	g := alloc.outputs["g"]
	if want := []string{"Parameter", "End"}; !reflect.DeepEqual(g.Ops(), want) {
		t.Errorf("g ops = %v, want %v", g.Ops(), want)
	}
}

func TestSuspendInline_Metadata(t *testing.T) {
	tests := []struct {
		name string
		meta *FunctionMeta
	}{
		{
			name: "concrete without body",
			meta: &FunctionMeta{Name: "f"},
		},
		{
			name: "abstract with body",
			meta: &FunctionMeta{Name: "g", Abstract: true, Body: &Body{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := newRecordingAllocator()
			out := emit.NewRecorder(tt.meta.Name)
			s := NewSuspendInline(alloc, stateMachine(), Default{})

			_, err := s.Wrap(out, tt.meta)
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseWrap, Kind: errors.KindMetadata}) {
				t.Fatalf("expected metadata error, got %v", err)
			}
			if len(alloc.slots) != 0 {
				t.Errorf("allocated %v before validation", alloc.names())
			}
			if len(out.Events()) != 0 {
				t.Errorf("output touched: %v", out.Ops())
			}
			if s.State() != NotStarted {
				t.Errorf("state = %s, want not-started", s.State())
			}
		})
	}
}

func TestSuspendInline_OutOfOrder(t *testing.T) {
	isInvalidState := func(err error) bool {
		var e *errors.Error
		return stderrors.As(err, &e) && e.Kind == errors.KindInvalidState
	}

	s := NewSuspendInline(newRecordingAllocator(), stateMachine(), Default{})
	meta := fMeta()
	sig, _ := meta.Signature()
	ctx := NewContext(meta, callees)

	if err := s.Generate(ctx, sig); !isInvalidState(err) {
		t.Errorf("Generate before Wrap: %v", err)
	}
	if err := s.Finish(); !isInvalidState(err) {
		t.Errorf("Finish before Wrap: %v", err)
	}

	if _, err := s.Wrap(emit.NewRecorder("f"), meta); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Wrap(emit.NewRecorder("f"), meta); !isInvalidState(err) {
		t.Errorf("second Wrap: %v", err)
	}
	if err := s.Finish(); !isInvalidState(err) {
		t.Errorf("Finish before Generate: %v", err)
	}
	if err := s.Generate(ctx, sig); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(); !isInvalidState(err) {
		t.Errorf("second Finish: %v", err)
	}
}

func TestSuspendInline_SecondaryAllocationFails(t *testing.T) {
	alloc := newRecordingAllocator()
	alloc.fail = stderrors.New("module sealed")
	primary, _ := alloc.Allocate(fMeta().PrimarySlot())

	s := NewSuspendInline(alloc, stateMachine(), Default{})
	_, err := s.Wrap(primary, fMeta())
	if !stderrors.Is(err, alloc.fail) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if !strings.Contains(err.Error(), "f$$forInline") {
		t.Errorf("error %q does not name the secondary", err)
	}
	if s.State() != Failed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

// failingStrategy fails its first content pass.
type failingStrategy struct {
	Default
	err   error
	calls int
}

func (f *failingStrategy) GenerateBody(ctx *Context, sink emit.FuncSink, sig Signature) error {
	f.calls++
	if f.calls == 1 {
		return f.err
	}
	return f.Default.GenerateBody(ctx, sink, sig)
}

func TestSuspendInline_FailedPassIsAbandoned(t *testing.T) {
	plain := &failingStrategy{err: stderrors.New("disk full")}
	s := NewSuspendInline(newRecordingAllocator(), stateMachine(), plain)
	meta := fMeta()
	sig, _ := meta.Signature()
	ctx := NewContext(meta, callees)

	if _, err := s.Wrap(emit.NewRecorder("f"), meta); err != nil {
		t.Fatal(err)
	}
	if err := s.Generate(ctx, sig); !stderrors.Is(err, plain.err) {
		t.Fatalf("Generate: %v", err)
	}
	if s.State() != Failed {
		t.Fatalf("state = %s, want failed", s.State())
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"Generate", func() error { return s.Generate(ctx, sig) }},
		{"Finish", s.Finish},
		{"Wrap", func() error {
			_, err := s.Wrap(emit.NewRecorder("f"), meta)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *errors.Error
			if err := tt.call(); !stderrors.As(err, &e) || e.Kind != errors.KindInvalidState {
				t.Errorf("%s after failure: %v", tt.name, err)
			}
		})
	}
	if plain.calls != 1 {
		t.Errorf("plain pass ran %d times, want 1", plain.calls)
	}
}

func TestDefault_ContentOrder(t *testing.T) {
	meta := fMeta()
	sig, err := meta.Signature()
	if err != nil {
		t.Fatal(err)
	}
	r := emit.NewRecorder("f")
	if err := (Default{}).GenerateBody(NewContext(meta, callees), r, sig); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Code",
		"LocalVariable 0 x i32 L0-L2",
		"Label L0",
		"LineNumber 1 L0",
		"Instr i32.const 7",
		"Instr local.set 0",
		"Label L1",
		"LineNumber 2 L1",
		"Instr i32.const 10",
		"Instr call $sleep",
		"Label L2",
		"MaxStackAndLocals 1 1",
	}
	var got []string
	for _, e := range r.Events() {
		got = append(got, e.String())
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestStateMachine_NoSuspensionReplaysVerbatim(t *testing.T) {
	meta := fMeta()
	meta.Body.Statements = meta.Body.Statements[:1]
	sig, _ := meta.Signature()
	ctx := NewContext(meta, callees)

	direct := emit.NewRecorder("direct")
	if err := (Default{}).GenerateBody(ctx, direct, sig); err != nil {
		t.Fatal(err)
	}
	if err := direct.End(); err != nil {
		t.Fatal(err)
	}

	out := emit.NewRecorder("f")
	sink, err := stateMachine().PrepareSink(out, meta.PrimarySlot())
	if err != nil {
		t.Fatal(err)
	}
	if err := stateMachine().GenerateBody(ctx, sink, sig); err != nil {
		t.Fatal(err)
	}
	if len(out.Events()) != 0 {
		t.Fatalf("content reached the output before End: %v", out.Ops())
	}
	if err := sink.End(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out.Events(), direct.Events()) {
		t.Errorf("replay differs:\n%s\nwant:\n%s", out, direct)
	}
	if err := sink.Instr(i32Const(1)); err == nil {
		t.Error("event after End should fail")
	}
}

func TestStateMachine_HeaderPassesThrough(t *testing.T) {
	out := emit.NewRecorder("f")
	sink, err := stateMachine().PrepareSink(out, fMeta().PrimarySlot())
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Parameter("a", 0); err != nil {
		t.Fatal(err)
	}
	if err := sink.Attribute("k", nil); err != nil {
		t.Fatal(err)
	}
	if want := []string{"Parameter", "Attribute"}; !reflect.DeepEqual(out.Ops(), want) {
		t.Errorf("ops = %v, want %v", out.Ops(), want)
	}
}

func TestStateMachine_RewriteErrorSurfacesOnEnd(t *testing.T) {
	meta := fMeta()
	meta.Body.Result = []wasm.Instruction{i32Const(1), call("sleep")}
	sig, _ := meta.Signature()

	out := emit.NewRecorder("f")
	sink, _ := stateMachine().PrepareSink(out, meta.PrimarySlot())
	if err := stateMachine().GenerateBody(NewContext(meta, callees), sink, sig); err != nil {
		t.Fatal(err)
	}
	err := sink.End()
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBody, Kind: errors.KindUnsupported}) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if out.Ended() {
		t.Error("output ended despite rewrite failure")
	}
}

func indexOf(events []emit.Event, op, args string) int {
	for i, e := range events {
		if e.Op == op && (args == "" || e.Args == args) {
			return i
		}
	}
	return -1
}

func TestStateMachine_ContentAnnotationsKeepBodyOrder(t *testing.T) {
	out := emit.NewRecorder("f")
	sink, err := stateMachine().PrepareSink(out, fMeta().PrimarySlot())
	if err != nil {
		t.Fatal(err)
	}

	steps := []func() error{
		sink.Code,
		func() error { return sink.Label(emit.Label{ID: 0}) },
		func() error { return sink.Instr(i32Const(1)) },
		func() error { return sink.Instr(wasm.Instruction{Opcode: wasm.OpDrop}) },
		func() error {
			child, err := sink.InstrAnnotation(0, "", "Lnonnull;", true)
			if err != nil {
				return err
			}
			if err := child.Value("level", 2); err != nil {
				return err
			}
			return child.End()
		},
		func() error { return sink.Label(emit.Label{ID: 1}) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if len(out.Events()) != 0 {
		t.Fatalf("content reached the output before End: %v", out.Ops())
	}
	if err := sink.End(); err != nil {
		t.Fatal(err)
	}

	want := []string{"Code", "Label", "Instr", "Instr", "InstrAnnotation", "Value", "End", "Label", "End"}
	if !reflect.DeepEqual(out.Ops(), want) {
		t.Errorf("ops = %v, want %v", out.Ops(), want)
	}
}

func TestStateMachine_ContentAnnotationsAfterRewrite(t *testing.T) {
	out := emit.NewRecorder("f")
	sink, err := stateMachine().PrepareSink(out, fMeta().PrimarySlot())
	if err != nil {
		t.Fatal(err)
	}

	annotate := func(open func() (emit.AnnotationSink, error)) func() error {
		return func() error {
			child, err := open()
			if err != nil {
				return err
			}
			return child.End()
		}
	}
	l0, l1, l2 := emit.Label{ID: 0}, emit.Label{ID: 1}, emit.Label{ID: 2}
	steps := []func() error{
		sink.Code,
		func() error {
			return sink.LocalVariable(emit.LocalVar{Name: "x", Index: 0, Type: wasm.ValI32, Start: l0, End: l2})
		},
		annotate(func() (emit.AnnotationSink, error) {
			return sink.LocalVariableAnnotation(0, "", []emit.LocalRange{{Start: l0, End: l2}}, "Lx;", true)
		}),
		func() error { return sink.Label(l0) },
		func() error { return sink.Instr(i32Const(7)) },
		func() error { return sink.Instr(localSet(0)) },
		func() error { return sink.Label(l1) },
		func() error { return sink.Instr(i32Const(10)) },
		func() error { return sink.Instr(call("sleep")) },
		annotate(func() (emit.AnnotationSink, error) {
			return sink.InstrAnnotation(0, "", "Lsuspends;", true)
		}),
		func() error { return sink.Label(l2) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := sink.End(); err != nil {
		t.Fatal(err)
	}

	events := out.Events()
	if !out.Contains(ScratchSaveName) {
		t.Fatalf("body was not rewritten:\n%s", out)
	}

	localAnn := indexOf(events, "LocalVariableAnnotation", "")
	firstInstr := indexOf(events, "Instr", "")
	if localAnn < 0 || localAnn > firstInstr || events[localAnn-1].Op != "LocalVariable" {
		t.Errorf("local annotation at %d, first instruction at %d:\n%s", localAnn, firstInstr, out)
	}

	instrAnn := indexOf(events, "InstrAnnotation", "")
	start, next := indexOf(events, "Label", "L1"), indexOf(events, "Label", "L2")
	if instrAnn < start || instrAnn > next || events[instrAnn-1].Op != "Instr" {
		t.Errorf("instruction annotation at %d, want between L1 (%d) and L2 (%d):\n%s", instrAnn, start, next, out)
	}
	if n := strings.Count(strings.Join(out.Ops(), " "), "Annotation"); n != 2 {
		t.Errorf("%d annotations replayed, want 2", n)
	}
}

func TestStateMachine_OpenContentAnnotation(t *testing.T) {
	out := emit.NewRecorder("f")
	sink, _ := stateMachine().PrepareSink(out, fMeta().PrimarySlot())
	if err := sink.Code(); err != nil {
		t.Fatal(err)
	}
	if _, err := sink.InstrAnnotation(0, "", "Lopen;", true); err != nil {
		t.Fatal(err)
	}
	err := sink.End()
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseFinalize, Kind: errors.KindInvalidState}) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if out.Ended() {
		t.Error("output ended with an open annotation")
	}
}

func TestStackSize(t *testing.T) {
	tests := []struct {
		name   string
		body   *Body
		want   int
		hasErr bool
	}{
		{
			name: "empty",
			body: &Body{},
			want: 0,
		},
		{
			name: "binary op",
			body: &Body{Result: []wasm.Instruction{i32Const(1), i32Const(2), {Opcode: wasm.OpI32Add}}},
			want: 2,
		},
		{
			name: "statements start empty",
			body: &Body{Statements: []Stmt{
				{Instrs: []wasm.Instruction{i32Const(1), localSet(0)}},
				{Instrs: []wasm.Instruction{i32Const(1), i32Const(2), i32Const(3), {Opcode: wasm.OpSelect}, localSet(0)}},
			}},
			want: 3,
		},
		{
			name: "call consumes arguments",
			body: &Body{Result: []wasm.Instruction{i32Const(1), call("sleep"), localGet(0)}},
			want: 1,
		},
		{
			name:   "unknown callee",
			body:   &Body{Result: []wasm.Instruction{call("missing")}},
			hasErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stackSize(&Context{Function: "f", Callees: callees}, tt.body)
			if tt.hasErr {
				if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBody, Kind: errors.KindNotFound}) {
					t.Errorf("expected not found error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("stackSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEmitHeader_NestedAnnotations(t *testing.T) {
	meta := &FunctionMeta{
		Name:       "h",
		Abstract:   true,
		ParamNames: []string{"a", "b"},
		Annotations: []Annotation{
			{
				Desc:    "api",
				Param:   -1,
				Visible: true,
				Elements: []Element{
					{Name: "version", Value: 2},
					{Name: "level", Kind: ElementEnum, Enum: EnumValue{Desc: "Level", Value: "HIGH"}},
					{Name: "tags", Kind: ElementArray, Array: []Element{
						{Value: "x"},
						{Kind: ElementAnnotation, Nested: &Annotation{
							Desc:     "note",
							Elements: []Element{{Name: "text", Value: "deep"}},
						}},
					}},
				},
			},
			{Desc: "nonnull", Param: 1},
		},
	}

	r := emit.NewRecorder("h")
	a, b := emit.NewRecorder("h"), emit.NewRecorder("h")
	mux, err := emit.NewFuncMux(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := EmitHeader(r, meta); err != nil {
		t.Fatal(err)
	}
	if err := EmitHeader(mux, meta); err != nil {
		t.Fatal(err)
	}

	maxDepth := 0
	for _, e := range r.Events() {
		maxDepth = max(maxDepth, e.Depth)
	}
	if maxDepth != 3 {
		t.Errorf("max depth = %d, want 3:\n%s", maxDepth, r)
	}
	if !r.Contains("ParameterAnnotation 1 nonnull") {
		t.Errorf("parameter annotation missing:\n%s", r)
	}
	for _, rec := range []*emit.Recorder{a, b} {
		if !reflect.DeepEqual(rec.Events(), r.Events()) {
			t.Errorf("mux output differs:\n%s\nwant:\n%s", rec, r)
		}
	}
	if err := r.End(); err != nil {
		t.Errorf("nested sinks left open: %v", err)
	}
}

func TestFunctionCodegen_Plain(t *testing.T) {
	alloc := newRecordingAllocator()
	meta := fMeta()
	meta.Name = "plain"
	if err := NewFunctionCodegen(alloc).Generate(NewContext(meta, callees), meta, &PlainStrategy{}); err != nil {
		t.Fatal(err)
	}
	if want := []string{"plain"}; !reflect.DeepEqual(alloc.names(), want) {
		t.Errorf("outputs = %v, want %v", alloc.names(), want)
	}
	r := alloc.outputs["plain"]
	if !r.Ended() || r.Contains(ScratchSaveName) {
		t.Errorf("plain output:\n%s", r)
	}
}
