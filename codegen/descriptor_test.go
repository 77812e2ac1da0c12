package codegen

import (
	stderrors "errors"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

func TestDescriptor_String(t *testing.T) {
	tests := []struct {
		desc Descriptor
		want string
	}{
		{Descriptor{}, "()->Unit"},
		{Descriptor{Params: []wit.Type{wit.U32{}, wit.U32{}}, Result: wit.U32{}}, "(u32,u32)->u32"},
		{Descriptor{Params: []wit.Type{wit.String{}, wit.F64{}}}, "(string,f64)->Unit"},
		{Descriptor{Result: wit.Bool{}}, "()->bool"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.desc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := ParseDescriptor(tt.want)
			if err != nil {
				t.Fatalf("ParseDescriptor: %v", err)
			}
			if !parsed.Equal(tt.desc) {
				t.Errorf("parsed %s, want %s", parsed, tt.desc)
			}
		})
	}
}

func TestParseDescriptor_Invalid(t *testing.T) {
	for _, s := range []string{"", "u32", "(u32)", "(u32)->", "(int)->Unit", "(u32)->list"} {
		t.Run(s, func(t *testing.T) {
			if _, err := ParseDescriptor(s); err == nil {
				t.Errorf("ParseDescriptor(%q) should fail", s)
			}
		})
	}
}

func TestDescriptor_FuncType(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want wasm.FuncType
	}{
		{
			name: "unit",
			desc: Descriptor{},
			want: wasm.FuncType{},
		},
		{
			name: "small ints widen to i32",
			desc: Descriptor{Params: []wit.Type{wit.U8{}, wit.S16{}, wit.Char{}, wit.Bool{}}, Result: wit.S32{}},
			want: wasm.FuncType{
				Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
				Results: []wasm.ValType{wasm.ValI32},
			},
		},
		{
			name: "wide and float",
			desc: Descriptor{Params: []wit.Type{wit.U64{}, wit.F32{}}, Result: wit.F64{}},
			want: wasm.FuncType{
				Params:  []wasm.ValType{wasm.ValI64, wasm.ValF32},
				Results: []wasm.ValType{wasm.ValF64},
			},
		},
		{
			name: "string is pointer and length",
			desc: Descriptor{Params: []wit.Type{wit.String{}}},
			want: wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.desc.FuncType()
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("FuncType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDescriptor_StringResultUnsupported(t *testing.T) {
	_, err := Descriptor{Result: wit.String{}}.FuncType()
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseWrap, Kind: errors.KindUnsupported}) {
		t.Errorf("expected unsupported error, got %v", err)
	}
}

func TestFunctionMeta_Slots(t *testing.T) {
	meta := fMeta()
	primary, secondary := meta.PrimarySlot(), meta.SecondarySlot()
	if primary.Name != "f" || primary.Private || primary.Synthetic {
		t.Errorf("primary = %+v", primary)
	}
	if secondary.Name != "f"+SecondarySuffix || !secondary.Private || !secondary.Synthetic {
		t.Errorf("secondary = %+v", secondary)
	}
	if secondary.Origin != meta.Origin {
		t.Errorf("secondary origin = %s, want %s", secondary.Origin, meta.Origin)
	}
	if got := meta.Origin.String(); got != "f.yaml:3" {
		t.Errorf("Origin.String() = %q", got)
	}
}
