package source

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

var valTypes = map[string]wasm.ValType{
	"i32": wasm.ValI32,
	"i64": wasm.ValI64,
	"f32": wasm.ValF32,
	"f64": wasm.ValF64,
}

var blockTypes = map[string]int32{
	"i32": wasm.BlockTypeI32,
	"i64": wasm.BlockTypeI64,
	"f32": wasm.BlockTypeF32,
	"f64": wasm.BlockTypeF64,
}

// ParseValType resolves a core value type name.
func ParseValType(name string) (wasm.ValType, error) {
	if t, ok := valTypes[strings.TrimSpace(name)]; ok {
		return t, nil
	}
	return 0, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Value(name).
		Detail("unknown value type %q", name).
		Build()
}

// ParseInstr parses one instruction in text-format style:
//
//	local.get 0
//	i32.const -7
//	call $sleep
//	block i32
//	i32.load offset=8 align=2
//	br_table 0 1 2
//
// Calls stay symbolic until the module is encoded.
func ParseInstr(s string) (wasm.Instruction, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return wasm.Instruction{}, errors.InvalidInput(errors.PhaseLoad, "empty instruction")
	}
	info, ok := wasm.LookupOpcode(fields[0])
	if !ok {
		return wasm.Instruction{}, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Value(fields[0]).
			Detail("unknown instruction %q", fields[0]).
			Build()
	}
	args := fields[1:]
	instr := wasm.Instruction{Opcode: info.Opcode}

	bad := func(format string, v ...any) (wasm.Instruction, error) {
		return wasm.Instruction{}, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Value(s).
			Detail("%s: "+format, append([]any{info.Name}, v...)...).
			Build()
	}
	one := func() (string, bool) {
		if len(args) != 1 {
			return "", false
		}
		return args[0], true
	}
	index := func() (uint32, bool) {
		arg, ok := one()
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseUint(arg, 10, 32)
		return uint32(v), err == nil
	}

	switch info.Imm {
	case wasm.ImmNone:
		if len(args) != 0 {
			return bad("takes no operand")
		}
	case wasm.ImmLocal:
		idx, ok := index()
		if !ok {
			return bad("expected a local index")
		}
		instr.Imm = wasm.LocalImm{LocalIdx: idx}
	case wasm.ImmGlobal:
		idx, ok := index()
		if !ok {
			return bad("expected a global index")
		}
		instr.Imm = wasm.GlobalImm{GlobalIdx: idx}
	case wasm.ImmLabel:
		idx, ok := index()
		if !ok {
			return bad("expected a label depth")
		}
		instr.Imm = wasm.BranchImm{LabelIdx: idx}
	case wasm.ImmFunc:
		name, ok := one()
		if !ok || strings.TrimPrefix(name, "$") == "" {
			return bad("expected a function name")
		}
		instr.Imm = wasm.SymbolImm{Name: strings.TrimPrefix(name, "$")}
	case wasm.ImmI32:
		arg, _ := one()
		v, err := strconv.ParseInt(arg, 0, 32)
		if err != nil {
			return bad("invalid i32 %q", arg)
		}
		instr.Imm = wasm.I32Imm{Value: int32(v)}
	case wasm.ImmI64:
		arg, _ := one()
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return bad("invalid i64 %q", arg)
		}
		instr.Imm = wasm.I64Imm{Value: v}
	case wasm.ImmF32:
		arg, _ := one()
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return bad("invalid f32 %q", arg)
		}
		instr.Imm = wasm.F32Imm{Value: float32(v)}
	case wasm.ImmF64:
		arg, _ := one()
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return bad("invalid f64 %q", arg)
		}
		instr.Imm = wasm.F64Imm{Value: v}
	case wasm.ImmBlock:
		bt := wasm.BlockTypeVoid
		if len(args) > 0 {
			arg, ok := one()
			if !ok {
				return bad("expected at most one result type")
			}
			if bt, ok = blockTypes[arg]; !ok {
				return bad("invalid block type %q", arg)
			}
		}
		instr.Imm = wasm.BlockImm{Type: bt}
	case wasm.ImmMemarg:
		imm := wasm.MemoryImm{Align: info.NaturalAlign}
		for _, arg := range args {
			key, val, found := strings.Cut(arg, "=")
			if !found {
				return bad("expected offset=N or align=N, got %q", arg)
			}
			n, err := strconv.ParseUint(val, 0, 64)
			if err != nil {
				return bad("invalid %s %q", key, val)
			}
			switch key {
			case "offset":
				imm.Offset = n
			case "align":
				// byte alignment in text, log2 in the binary
				if n == 0 || n&(n-1) != 0 {
					return bad("alignment %d is not a power of two", n)
				}
				imm.Align = uint32(bits.TrailingZeros64(n))
			default:
				return bad("unknown memory argument %q", key)
			}
		}
		instr.Imm = imm
	case wasm.ImmMemIdx:
		if len(args) != 0 {
			return bad("takes no operand")
		}
		instr.Imm = wasm.MemoryIdxImm{}
	default:
		if info.Opcode != wasm.OpBrTable || len(args) == 0 {
			return wasm.Instruction{}, errors.Unsupported(errors.PhaseLoad, "instruction "+info.Name)
		}
		labels := make([]uint32, len(args))
		for i, arg := range args {
			v, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return bad("invalid label %q", arg)
			}
			labels[i] = uint32(v)
		}
		instr.Imm = wasm.BrTableImm{Labels: labels[:len(labels)-1], Default: labels[len(labels)-1]}
	}
	return instr, nil
}

// ParseInstrs parses a sequence of instructions, reporting the position of
// the first failure in the error path.
func ParseInstrs(lines []string) ([]wasm.Instruction, error) {
	out := make([]wasm.Instruction, 0, len(lines))
	for i, line := range lines {
		instr, err := ParseInstr(line)
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Path = append([]string{strconv.Itoa(i)}, e.Path...)
			}
			return nil, err
		}
		out = append(out, instr)
	}
	return out, nil
}
