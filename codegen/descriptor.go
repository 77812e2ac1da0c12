package codegen

import (
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Descriptor is a function signature in WIT types. A nil Result means the
// function returns nothing.
type Descriptor struct {
	Result wit.Type
	Params []wit.Type
}

// String renders the descriptor as "(u32,u32)->u32", or "()->Unit" when
// there is no result.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range d.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(TypeName(p))
	}
	b.WriteString(")->")
	if d.Result == nil {
		b.WriteString("Unit")
	} else {
		b.WriteString(TypeName(d.Result))
	}
	return b.String()
}

// Equal reports whether both descriptors have the same parameter and result types.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.String() == other.String()
}

// FuncType flattens the descriptor to a core wasm signature. Strings pass as
// (pointer, length) parameters and cannot be returned.
func (d Descriptor) FuncType() (wasm.FuncType, error) {
	var ft wasm.FuncType
	for _, p := range d.Params {
		flat, err := flatten(p)
		if err != nil {
			return wasm.FuncType{}, err
		}
		ft.Params = append(ft.Params, flat...)
	}
	if d.Result != nil {
		flat, err := flatten(d.Result)
		if err != nil {
			return wasm.FuncType{}, err
		}
		if len(flat) != 1 {
			return wasm.FuncType{}, errors.Unsupported(errors.PhaseWrap,
				"result type "+TypeName(d.Result)+" does not flatten to a single value")
		}
		ft.Results = flat
	}
	return ft, nil
}

func flatten(t wit.Type) ([]wasm.ValType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []wasm.ValType{wasm.ValI32}, nil
	case wit.U64, wit.S64:
		return []wasm.ValType{wasm.ValI64}, nil
	case wit.F32:
		return []wasm.ValType{wasm.ValF32}, nil
	case wit.F64:
		return []wasm.ValType{wasm.ValF64}, nil
	case wit.String:
		return []wasm.ValType{wasm.ValI32, wasm.ValI32}, nil
	default:
		return nil, errors.Unsupported(errors.PhaseWrap, "type "+TypeName(t)+" has no flat representation")
	}
}

// TypeName returns the WIT spelling of t.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	case nil:
		return "Unit"
	default:
		return "unknown"
	}
}

var primitives = map[string]wit.Type{
	"bool":   wit.Bool{},
	"u8":     wit.U8{},
	"s8":     wit.S8{},
	"u16":    wit.U16{},
	"s16":    wit.S16{},
	"u32":    wit.U32{},
	"s32":    wit.S32{},
	"u64":    wit.U64{},
	"s64":    wit.S64{},
	"f32":    wit.F32{},
	"f64":    wit.F64{},
	"char":   wit.Char{},
	"string": wit.String{},
}

// ParseType resolves a WIT primitive type name.
func ParseType(name string) (wit.Type, error) {
	name = strings.TrimSpace(name)
	if t, ok := primitives[name]; ok {
		return t, nil
	}
	return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Value(name).
		Detail("unknown type %q", name).
		Build()
}

// ParseDescriptor parses the form produced by Descriptor.String.
func ParseDescriptor(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	closing := strings.Index(s, ")->")
	if open != 0 || closing < 0 {
		return Descriptor{}, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Value(s).
			Detail("descriptor %q is not of the form (params)->result", s).
			Build()
	}

	var d Descriptor
	if params := strings.TrimSpace(s[1:closing]); params != "" {
		for _, p := range strings.Split(params, ",") {
			t, err := ParseType(p)
			if err != nil {
				return Descriptor{}, err
			}
			d.Params = append(d.Params, t)
		}
	}
	if result := strings.TrimSpace(s[closing+3:]); result != "Unit" {
		t, err := ParseType(result)
		if err != nil {
			return Descriptor{}, err
		}
		d.Result = t
	}
	return d, nil
}
