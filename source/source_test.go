package source

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/runner"
	"github.com/wippyai/wasm-dualgen/wasm"
)

const demo = `module: demo
imports:
  - {module: env, name: sleep, params: [u32], result: u32, suspend: true}
functions:
  - name: f
    params: [{name: n, type: u32}]
    result: u32
    inline_suspend: true
    locals: [{name: t, type: i32}]
    body:
      - code: [local.get 0, i32.const 1, i32.add, local.set 0]
      - code: [local.get 0, call sleep, local.set 1]
    return: [local.get 0, local.get 1, i32.add]
    annotations:
      - desc: Lapi/Entry;
        elements:
          - {name: weight, value: 3}
          - name: tags
            array:
              - annotation: {desc: Lapi/Tag;, elements: [{name: level, enum: {desc: Lapi/Level;, value: HIGH}}]}
      - {param: 0, desc: Lapi/NonNeg;, hidden: true}
    attributes:
      - {name: origin, data: demo}
  - name: g
    descriptor: (u32)->u32
    params: [{name: n}]
    locals: [{name: r, type: i32}]
    body:
      - {line: 40, code: [local.get 0, call f, local.set 1]}
    return: [local.get 1, i32.const 1, i32.add]
  - name: probe
    descriptor: (u32)->u32
    return: [local.get 0, call f$$forInline]
`

const ext = `  - name: ext
    descriptor: (u32)->Unit
    abstract: true
`

var i32ToI32 = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}

func load(t *testing.T, doc string) *Program {
	t.Helper()
	p, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	p := load(t, demo+ext)

	if p.Module != "demo" || len(p.Imports) != 1 || len(p.Functions) != 4 {
		t.Fatalf("module %q, %d imports, %d functions", p.Module, len(p.Imports), len(p.Functions))
	}
	if imp := p.Imports[0]; !imp.Suspending || !reflect.DeepEqual(imp.Type, i32ToI32) {
		t.Errorf("import = %+v", imp)
	}

	f := p.Functions[0]
	if !f.InlineSuspend || f.Meta.Descriptor.String() != "(u32)->u32" {
		t.Errorf("f: inline=%v descriptor=%s", f.InlineSuspend, f.Meta.Descriptor)
	}
	if f.Meta.Origin != (codegen.Origin{Declaration: "f", Line: 5}) {
		t.Errorf("f origin = %+v", f.Meta.Origin)
	}
	if !reflect.DeepEqual(f.Meta.ParamNames, []string{"n"}) {
		t.Errorf("f params = %v", f.Meta.ParamNames)
	}
	body := f.Meta.Body
	if len(body.Locals) != 1 || body.Locals[0] != (codegen.Local{Name: "t", Type: wasm.ValI32}) {
		t.Errorf("f locals = %v", body.Locals)
	}
	var lines []int
	for _, st := range body.Statements {
		lines = append(lines, st.Line)
	}
	if !reflect.DeepEqual(lines, []int{11, 12}) {
		t.Errorf("statement lines = %v, want [11 12]", lines)
	}
	if name, ok := body.Statements[1].Instrs[1].CallName(); !ok || name != "sleep" {
		t.Errorf("call = %v", body.Statements[1].Instrs[1])
	}
	if len(body.Result) != 3 {
		t.Errorf("result = %v", body.Result)
	}

	anns := f.Meta.Annotations
	if len(anns) != 2 {
		t.Fatalf("annotations = %d", len(anns))
	}
	if anns[0].Param != -1 || !anns[0].Visible || anns[0].Elements[0].Value != 3 {
		t.Errorf("function annotation = %+v", anns[0])
	}
	tags := anns[0].Elements[1]
	if tags.Kind != codegen.ElementArray || tags.Array[0].Kind != codegen.ElementAnnotation {
		t.Fatalf("tags = %+v", tags)
	}
	if level := tags.Array[0].Nested.Elements[0]; level.Kind != codegen.ElementEnum || level.Enum.Value != "HIGH" {
		t.Errorf("level = %+v", level)
	}
	if anns[1].Param != 0 || anns[1].Visible {
		t.Errorf("parameter annotation = %+v", anns[1])
	}
	if len(f.Meta.Attributes) != 1 || string(f.Meta.Attributes[0].Data) != "demo" {
		t.Errorf("attributes = %+v", f.Meta.Attributes)
	}

	g := p.Functions[1]
	if g.Meta.Body.Statements[0].Line != 40 || !reflect.DeepEqual(g.Meta.ParamNames, []string{"n"}) {
		t.Errorf("g = %+v", g.Meta)
	}

	e := p.Functions[3]
	if !e.Meta.Abstract || e.Meta.Body != nil || e.Meta.Descriptor.Result != nil {
		t.Errorf("ext = %+v", e.Meta)
	}

	callees := p.Callees()
	for _, name := range []string{"sleep", "f", "f" + codegen.SecondarySuffix, "g", "probe", "ext"} {
		if _, ok := callees[name]; !ok {
			t.Errorf("callee %s missing", name)
		}
	}
	if _, ok := callees["g"+codegen.SecondarySuffix]; ok {
		t.Error("g has no secondary output")
	}
}

func TestLoad_Errors(t *testing.T) {
	fn := func(body string) string {
		return "functions:\n  - name: f\n" + body
	}
	tests := []struct {
		name  string
		doc   string
		phase errors.Phase
		kind  errors.Kind
	}{
		{"unknown field", "functoins: []\n", errors.PhaseLoad, errors.KindInvalidData},
		{"malformed yaml", "functions: [\n", errors.PhaseLoad, errors.KindInvalidData},
		{"unknown instruction", fn("    return: [i32.frob]\n"), errors.PhaseLoad, errors.KindNotFound},
		{"unknown type", fn("    params: [{name: n, type: u128}]\n"), errors.PhaseLoad, errors.KindInvalidInput},
		{"unknown local type", fn("    locals: [{name: x, type: externref}]\n"), errors.PhaseLoad, errors.KindInvalidInput},
		{"string result", fn("    result: string\n"), errors.PhaseWrap, errors.KindUnsupported},
		{"abstract with body", fn("    abstract: true\n    return: [nop]\n"), errors.PhaseWrap, errors.KindMetadata},
		{"no name", "functions:\n  - return: [nop]\n", errors.PhaseWrap, errors.KindMetadata},
		{"typed twice", fn("    descriptor: (u32)->Unit\n    params: [{name: n, type: u32}]\n"), errors.PhaseLoad, errors.KindInvalidInput},
		{"bad descriptor", fn("    descriptor: u32->u32\n"), errors.PhaseLoad, errors.KindInvalidInput},
		{"parameter out of range", fn("    annotations: [{param: 1, desc: X}]\n"), errors.PhaseLoad, errors.KindInvalidInput},
		{
			"element sets two values",
			fn("    annotations: [{desc: X, elements: [{name: a, value: 1, enum: {desc: E, value: V}}]}]\n"),
			errors.PhaseLoad, errors.KindInvalidInput,
		},
		{"import without name", "imports: [{module: env}]\nfunctions: []\n", errors.PhaseLoad, errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			if !stderrors.Is(err, &errors.Error{Phase: tt.phase, Kind: tt.kind}) {
				t.Errorf("expected [%s] %s, got %v", tt.phase, tt.kind, err)
			}
		})
	}
}

func TestSuspension(t *testing.T) {
	doc := `suspend_imports: ["host.*"]
imports:
  - {module: host, name: wait, params: [u32], result: u32}
  - {module: env, name: log, params: [u32], result: u32}
functions:
  - name: leaf
    descriptor: (u32)->u32
    return: [local.get 0, call wait]
  - name: mid
    descriptor: (u32)->u32
    body:
      - code: [local.get 0, call leaf, drop]
    return: [i32.const 0]
  - name: top
    descriptor: (u32)->u32
    body:
      - code: [local.get 0, call mid, drop]
    return: [i32.const 0]
  - name: quiet
    descriptor: (u32)->u32
    return: [local.get 0, call log]
`
	p := load(t, doc)
	if roots := p.SuspendingRoots(); !reflect.DeepEqual(roots, map[string]bool{"wait": true}) {
		t.Errorf("roots = %v", roots)
	}
	m := p.Suspension()
	for name, want := range map[string]bool{"wait": true, "leaf": true, "mid": true, "top": true, "quiet": false, "log": false} {
		if got := m.MatchFunction(name); got != want {
			t.Errorf("%s suspending = %v, want %v", name, got, want)
		}
	}
}

func TestCompile_Observe(t *testing.T) {
	p := load(t, demo)
	recorders := make(map[string]*emit.Recorder)
	var order []string
	compiled, err := Compile(p, Options{
		Observe: func(slot codegen.Slot, out emit.FuncSink) (emit.FuncSink, error) {
			rec := emit.NewRecorder(slot.Name)
			recorders[slot.Name] = rec
			order = append(order, slot.Name)
			return emit.NewFuncMux(out, rec)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if want := []string{"f", "f" + codegen.SecondarySuffix, "g", "probe"}; !reflect.DeepEqual(order, want) {
		t.Errorf("allocation order = %v, want %v", order, want)
	}
	if want := []string{"f", "g"}; !reflect.DeepEqual(compiled.Suspending, want) {
		t.Errorf("suspending = %v, want %v", compiled.Suspending, want)
	}
	for name, rec := range recorders {
		if !rec.Ended() {
			t.Errorf("%s not ended", name)
		}
	}
	if !recorders["f"].Contains(codegen.ScratchSaveName) {
		t.Error("f should carry the state machine locals")
	}
	if recorders["f"+codegen.SecondarySuffix].Contains(codegen.ScratchSaveName) {
		t.Error("secondary output should be straight-line")
	}
	if w, ok := compiled.Builder.Function("f" + codegen.SecondarySuffix); !ok || !w.Slot().Private || !w.Slot().Synthetic {
		t.Error("secondary output should be private and synthetic")
	}
}

func sleepHost(suspend bool, calls *int) runner.HostFunc {
	return runner.HostFunc{
		Module:  "env",
		Name:    "sleep",
		Type:    i32ToI32,
		Suspend: suspend,
		Fn: func(_ context.Context, args []uint64) ([]uint64, error) {
			*calls++
			return []uint64{args[0] * 10}, nil
		},
	}
}

func TestCompile_Run(t *testing.T) {
	compiled, err := Compile(load(t, demo), Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("suspending host", func(t *testing.T) {
		var calls int
		r, err := runner.New(ctx, compiled.Module, []runner.HostFunc{sleepHost(true, &calls)}, runner.Config{})
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close(ctx)

		got, err := r.Call(ctx, "f", 4)
		if err != nil || got[0] != 55 {
			t.Fatalf("f(4) = %v, %v; want 55", got, err)
		}
		got, err = r.Call(ctx, "g", 4)
		if err != nil || got[0] != 56 {
			t.Fatalf("g(4) = %v, %v; want 56", got, err)
		}
		if r.Suspensions() != 2 || calls != 2 {
			t.Errorf("suspensions = %d, sleep calls = %d, want 2 and 2", r.Suspensions(), calls)
		}
	})

	t.Run("direct host", func(t *testing.T) {
		var calls int
		r, err := runner.New(ctx, compiled.Module, []runner.HostFunc{sleepHost(false, &calls)}, runner.Config{})
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close(ctx)

		for _, name := range []string{"f", "probe"} {
			got, err := r.Call(ctx, name, 4)
			if err != nil || got[0] != 55 {
				t.Errorf("%s(4) = %v, %v; want 55", name, got, err)
			}
		}
		if r.Suspensions() != 0 {
			t.Errorf("suspensions = %d, want 0", r.Suspensions())
		}
	})
}

func TestCompile_Errors(t *testing.T) {
	doc := `functions:
  - name: f
    descriptor: ()->u32
    return: [call missing]
  - name: g
    descriptor: ()->u32
    return: [i32.const 1]
`
	_, err := Compile(load(t, doc), Options{})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBody, Kind: errors.KindNotFound}) {
		t.Errorf("expected missing callee error, got %v", err)
	}
	var errs *errors.Errors
	if !stderrors.As(err, &errs) || len(errs.Failed) != 1 || errs.Failed[0].Function != "f" {
		t.Errorf("expected one failed function, got %v", err)
	}
}
