package emit

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

func TestRecorder_EventAfterEnd(t *testing.T) {
	r := NewRecorder("f")
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
	err := r.Instr(wasm.Instruction{Opcode: wasm.OpNop})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEmit, Kind: errors.KindInvalidState}) {
		t.Errorf("expected invalid state, got %v", err)
	}
	if err := r.End(); err == nil {
		t.Error("second End should fail")
	}
}

func TestRecorder_OpenChildBlocksEnd(t *testing.T) {
	r := NewRecorder("f")
	ann, err := r.Annotation("x", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err == nil {
		t.Fatal("End with an open annotation should fail")
	}
	if err := ann.End(); err != nil {
		t.Fatal(err)
	}
	if err := ann.Value("late", 1); err == nil {
		t.Error("annotation event after End should fail")
	}
	if err := r.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestRecorder_String(t *testing.T) {
	r := NewRecorder("f")
	ann, _ := r.Annotation("deprecated", true)
	arr, _ := ann.Array("since")
	_ = arr.Value("", "1.0")
	_ = arr.End()
	_ = ann.End()
	_ = r.Instr(wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 3}})

	want := strings.Join([]string{
		"Annotation deprecated true",
		"  Array since",
		"    Value =1.0",
		"    End",
		"  End",
		"Instr i32.const 3",
		"",
	}, "\n")
	if got := r.String(); got != want {
		t.Errorf("String() =\n%s\nwant:\n%s", got, want)
	}
	if !r.Contains("i32.const 3") {
		t.Error("Contains should match rendered instruction")
	}
	if r.Name() != "f" {
		t.Errorf("Name() = %q", r.Name())
	}
}
