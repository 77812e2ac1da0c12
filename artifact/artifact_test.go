package artifact

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

var u32ToU32 = codegen.Descriptor{Params: []wit.Type{wit.U32{}}, Result: wit.U32{}}

func isError(err error, phase errors.Phase, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

// identity writes "return param 0" into w.
func identity(t *testing.T, w *FunctionWriter) {
	t.Helper()
	steps := []error{
		w.Code(),
		w.Label(emit.Label{ID: 0}),
		w.LineNumber(7, emit.Label{ID: 0}),
		w.Instr(wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}}),
		w.MaxStackAndLocals(1, 1),
		w.End(),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatal(err)
		}
	}
}

// sections splits an encoded module into its custom sections.
func sections(t *testing.T, module []byte) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	b := module[8:]
	for len(b) > 0 {
		id := b[0]
		size, n := readU32(b[1:])
		payload := b[1+n : 1+n+int(size)]
		b = b[1+n+int(size):]
		if id != wasm.SectionCustom {
			continue
		}
		nameLen, m := readU32(payload)
		out[string(payload[m:m+int(nameLen)])] = payload[m+int(nameLen):]
	}
	return out
}

func readU32(b []byte) (uint32, int) {
	var v uint32
	var shift uint
	for i, c := range b {
		v |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(b)
}

func TestBuilder_IndexSpace(t *testing.T) {
	b := NewBuilder(Config{})
	if err := b.Import(HostImport{Module: "host", Name: "now", Type: wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}}}); err != nil {
		t.Fatal(err)
	}

	pub, err := b.NewFunction(codegen.Slot{Name: "id", Descriptor: u32ToU32})
	if err != nil {
		t.Fatal(err)
	}
	identity(t, pub)

	priv, err := b.NewFunction(codegen.Slot{Name: "id$$forInline", Descriptor: u32ToU32, Private: true, Synthetic: true})
	if err != nil {
		t.Fatal(err)
	}
	identity(t, priv)

	abs, err := b.NewFunction(codegen.Slot{Name: "ext", Descriptor: u32ToU32, Abstract: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := abs.End(); err != nil {
		t.Fatal(err)
	}

	out, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	compiled, err := rt.CompileModule(ctx, out)
	if err != nil {
		t.Fatalf("wazero rejected the module: %v", err)
	}

	imports := compiled.ImportedFunctions()
	if len(imports) != 2 {
		t.Fatalf("imports = %d, want 2", len(imports))
	}
	for i, want := range [][2]string{{"host", "now"}, {"env", "ext"}} {
		module, name, _ := imports[i].Import()
		if module != want[0] || name != want[1] {
			t.Errorf("import %d = %s.%s, want %s.%s", i, module, name, want[0], want[1])
		}
	}

	exports := compiled.ExportedFunctions()
	if _, ok := exports["id"]; !ok {
		t.Error("public function not exported")
	}
	if _, ok := exports["id$$forInline"]; ok {
		t.Error("private function exported")
	}

	custom := sections(t, out)
	if _, ok := custom["name"]; !ok {
		t.Error("name section missing")
	}
	// id$$forInline is function 3: now, ext, id, id$$forInline
	if got, want := custom[SectionSynthetic], []byte{1, 3}; string(got) != string(want) {
		t.Errorf("synthetic section = % x, want % x", got, want)
	}
	// two functions, each one line at instruction 0
	if got, want := custom[SectionLines], []byte{2, 2, 1, 0, 7, 3, 1, 0, 7}; string(got) != string(want) {
		t.Errorf("lines section = % x, want % x", got, want)
	}
}

func TestBuilder_Asyncify(t *testing.T) {
	b := NewBuilder(Config{MemoryPages: 2})
	globals := b.EnableAsyncify()
	if globals != (asyncify.Globals{State: 0, Data: 1}) {
		t.Errorf("globals = %+v", globals)
	}
	if again := b.EnableAsyncify(); again != globals {
		t.Error("EnableAsyncify should be idempotent")
	}

	out, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !asyncify.IsAsyncified(out) {
		t.Error("helper exports missing")
	}

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	compiled, err := rt.CompileModule(ctx, out)
	if err != nil {
		t.Fatalf("wazero rejected the module: %v", err)
	}
	exports := compiled.ExportedFunctions()
	for _, name := range []string{
		asyncify.ExportGetState, asyncify.ExportStartUnwind, asyncify.ExportStopUnwind,
		asyncify.ExportStartRewind, asyncify.ExportStopRewind,
	} {
		if _, ok := exports[name]; !ok {
			t.Errorf("%s not exported", name)
		}
	}
	if _, ok := compiled.ExportedMemories()[MemoryExport]; !ok {
		t.Error("memory not exported")
	}
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder) error
		phase errors.Phase
		kind  errors.Kind
	}{
		{
			name: "duplicate name",
			build: func(b *Builder) error {
				b.Import(HostImport{Module: "env", Name: "f"})
				_, err := b.Allocate(codegen.Slot{Name: "f"})
				return err
			},
			phase: errors.PhaseWrap,
			kind:  errors.KindConfiguration,
		},
		{
			name: "unended function",
			build: func(b *Builder) error {
				b.Allocate(codegen.Slot{Name: "f"})
				_, err := b.Encode()
				return err
			},
			phase: errors.PhaseEncode,
			kind:  errors.KindInvalidState,
		},
		{
			name: "unknown call target",
			build: func(b *Builder) error {
				w, _ := b.NewFunction(codegen.Slot{Name: "f"})
				w.Code()
				w.Instr(wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.SymbolImm{Name: "missing"}})
				w.End()
				_, err := b.Encode()
				return err
			},
			phase: errors.PhaseEncode,
			kind:  errors.KindNotFound,
		},
		{
			name: "helper name collision",
			build: func(b *Builder) error {
				b.EnableAsyncify()
				w, _ := b.NewFunction(codegen.Slot{Name: asyncify.ExportGetState})
				w.Code()
				w.End()
				_, err := b.Encode()
				return err
			},
			phase: errors.PhaseEncode,
			kind:  errors.KindConfiguration,
		},
		{
			name: "line without label",
			build: func(b *Builder) error {
				w, _ := b.NewFunction(codegen.Slot{Name: "f"})
				w.Code()
				w.LineNumber(3, emit.Label{ID: 9})
				w.End()
				_, err := b.Encode()
				return err
			},
			phase: errors.PhaseEncode,
			kind:  errors.KindInvalidData,
		},
		{
			name: "sparse locals",
			build: func(b *Builder) error {
				w, _ := b.NewFunction(codegen.Slot{Name: "f"})
				w.Code()
				w.LocalVariable(emit.LocalVar{Name: "x", Index: 2, Type: wasm.ValI32})
				w.End()
				_, err := b.Encode()
				return err
			},
			phase: errors.PhaseEncode,
			kind:  errors.KindInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(NewBuilder(Config{}))
			if !isError(err, tt.phase, tt.kind) {
				t.Errorf("expected [%s] %s, got %v", tt.phase, tt.kind, err)
			}
		})
	}
}

func TestFunctionWriter_Events(t *testing.T) {
	newWriter := func(slot codegen.Slot) *FunctionWriter {
		w, err := NewBuilder(Config{}).NewFunction(slot)
		if err != nil {
			t.Fatal(err)
		}
		return w
	}

	tests := []struct {
		name string
		slot codegen.Slot
		run  func(w *FunctionWriter) error
		kind errors.Kind
	}{
		{
			name: "event after end",
			slot: codegen.Slot{Name: "f"},
			run: func(w *FunctionWriter) error {
				w.Code()
				w.End()
				return w.Instr(wasm.Instruction{Opcode: wasm.OpNop})
			},
			kind: errors.KindInvalidState,
		},
		{
			name: "content before code",
			slot: codegen.Slot{Name: "f"},
			run: func(w *FunctionWriter) error {
				return w.Instr(wasm.Instruction{Opcode: wasm.OpNop})
			},
			kind: errors.KindInvalidState,
		},
		{
			name: "code on abstract",
			slot: codegen.Slot{Name: "f", Abstract: true},
			run:  func(w *FunctionWriter) error { return w.Code() },
			kind: errors.KindInvalidInput,
		},
		{
			name: "concrete without code",
			slot: codegen.Slot{Name: "f"},
			run:  func(w *FunctionWriter) error { return w.End() },
			kind: errors.KindInvalidInput,
		},
		{
			name: "try catch",
			slot: codegen.Slot{Name: "f"},
			run: func(w *FunctionWriter) error {
				w.Code()
				return w.TryCatchRange(emit.TryCatch{Start: emit.Label{ID: 0}, End: emit.Label{ID: 1}})
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "local overlaps parameter",
			slot: codegen.Slot{Name: "f", Descriptor: u32ToU32},
			run: func(w *FunctionWriter) error {
				w.Code()
				return w.LocalVariable(emit.LocalVar{Name: "x", Index: 0, Type: wasm.ValI32})
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "too many parameters",
			slot: codegen.Slot{Name: "f", Descriptor: u32ToU32},
			run: func(w *FunctionWriter) error {
				w.Parameter("a", 0)
				return w.Parameter("b", 0)
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "open annotation at end",
			slot: codegen.Slot{Name: "f"},
			run: func(w *FunctionWriter) error {
				a, _ := w.Annotation("api", true)
				a.Array("tags")
				a.End()
				w.Code()
				return w.End()
			},
			kind: errors.KindInvalidState,
		},
		{
			name: "unsupported annotation value",
			slot: codegen.Slot{Name: "f"},
			run: func(w *FunctionWriter) error {
				a, _ := w.Annotation("api", true)
				return a.Value("v", struct{}{})
			},
			kind: errors.KindUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(newWriter(tt.slot))
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != tt.kind {
				t.Errorf("expected %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestFunctionWriter_Annotations(t *testing.T) {
	b := NewBuilder(Config{})
	w, err := b.NewFunction(codegen.Slot{Name: "f"})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := w.Annotation("api", true)
	a.Value("v", int32(2))
	arr, _ := a.Array("tags")
	nested, _ := arr.Annotation("", "note")
	nested.Enum("level", "Level", "HIGH")
	nested.End()
	a.Value("after", true)
	arr.End()
	a.End()
	w.Attribute("origin", []byte("x"))
	w.Code()
	if err := w.End(); err != nil {
		t.Fatal(err)
	}

	root := w.annotations[0]
	if len(root.elements) != 3 {
		t.Fatalf("root elements = %d, want 3", len(root.elements))
	}
	if root.elements[1].tag != elemArray || root.elements[2].name != "after" {
		t.Errorf("element order changed: %+v", root.elements)
	}
	inner := root.elements[1].array[0]
	if inner.tag != elemAnnotation || inner.nested.elements[0].enumValue != "HIGH" {
		t.Errorf("nested annotation = %+v", inner)
	}

	out, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	custom := sections(t, out)
	if len(custom[SectionAnnotations]) == 0 || len(custom[SectionAttributes]) == 0 {
		t.Errorf("metadata sections missing: %v", custom)
	}
}
