package wasm

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-dualgen/wasm/internal/binary"
)

// Opcode constants are defined in constants.go

// Instruction represents a single WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop and if instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// SymbolImm names a call target by symbol. It must be resolved to a CallImm
// before the instruction is encoded.
type SymbolImm struct {
	Name string
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint64
	Align  uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the value for i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the value for i64.const.
type I64Imm struct {
	Value int64
}

// F32Imm holds the value for f32.const.
type F32Imm struct {
	Value float32
}

// F64Imm holds the value for f64.const.
type F64Imm struct {
	Value float64
}

// GetCallTarget returns the call target if this is a call instruction
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// CallName returns the symbolic call target if this is an unresolved call.
func (i Instruction) CallName() (string, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(SymbolImm); ok {
			return imm.Name, true
		}
	}
	return "", false
}

// IsIndirectCall returns true if this is a call_indirect instruction
func (i Instruction) IsIndirectCall() bool {
	return i.Opcode == OpCallIndirect
}

// IsControl reports whether the instruction opens, splits or closes a structured block.
func (i Instruction) IsControl() bool {
	switch i.Opcode {
	case OpBlock, OpLoop, OpIf, OpElse, OpEnd:
		return true
	}
	return false
}

// String renders the instruction in text-format style, e.g. "local.get 2".
func (i Instruction) String() string {
	name := OpcodeName(i.Opcode)
	switch imm := i.Imm.(type) {
	case nil:
		return name
	case BlockImm:
		switch imm.Type {
		case BlockTypeVoid:
			return name
		case BlockTypeI32:
			return name + " (result i32)"
		case BlockTypeI64:
			return name + " (result i64)"
		case BlockTypeF32:
			return name + " (result f32)"
		case BlockTypeF64:
			return name + " (result f64)"
		default:
			return fmt.Sprintf("%s (type %d)", name, imm.Type)
		}
	case BranchImm:
		return fmt.Sprintf("%s %d", name, imm.LabelIdx)
	case BrTableImm:
		var b strings.Builder
		b.WriteString(name)
		for _, l := range imm.Labels {
			fmt.Fprintf(&b, " %d", l)
		}
		fmt.Fprintf(&b, " %d", imm.Default)
		return b.String()
	case CallImm:
		return fmt.Sprintf("%s %d", name, imm.FuncIdx)
	case SymbolImm:
		return fmt.Sprintf("%s $%s", name, imm.Name)
	case CallIndirectImm:
		return fmt.Sprintf("%s %d (type %d)", name, imm.TableIdx, imm.TypeIdx)
	case LocalImm:
		return fmt.Sprintf("%s %d", name, imm.LocalIdx)
	case GlobalImm:
		return fmt.Sprintf("%s %d", name, imm.GlobalIdx)
	case MemoryImm:
		if imm.Offset == 0 {
			return name
		}
		return fmt.Sprintf("%s offset=%d", name, imm.Offset)
	case MemoryIdxImm:
		return name
	case I32Imm:
		return fmt.Sprintf("%s %d", name, imm.Value)
	case I64Imm:
		return fmt.Sprintf("%s %d", name, imm.Value)
	case F32Imm:
		return fmt.Sprintf("%s %g", name, imm.Value)
	case F64Imm:
		return fmt.Sprintf("%s %g", name, imm.Value)
	default:
		return fmt.Sprintf("%s %v", name, imm)
	}
}

// EncodeInstructionTo writes a single instruction to w.
func EncodeInstructionTo(w *binary.Writer, instr *Instruction) error {
	w.Byte(instr.Opcode)

	var ok bool
	switch instr.Opcode {
	case OpBlock, OpLoop, OpIf:
		var imm BlockImm
		if imm, ok = instr.Imm.(BlockImm); ok {
			w.WriteS64(int64(imm.Type))
		}

	case OpBr, OpBrIf:
		var imm BranchImm
		if imm, ok = instr.Imm.(BranchImm); ok {
			w.WriteU32(imm.LabelIdx)
		}

	case OpBrTable:
		var imm BrTableImm
		if imm, ok = instr.Imm.(BrTableImm); ok {
			w.WriteU32(uint32(len(imm.Labels)))
			for _, l := range imm.Labels {
				w.WriteU32(l)
			}
			w.WriteU32(imm.Default)
		}

	case OpCall:
		if sym, isSym := instr.Imm.(SymbolImm); isSym {
			return fmt.Errorf("encode: unresolved call target $%s", sym.Name)
		}
		var imm CallImm
		if imm, ok = instr.Imm.(CallImm); ok {
			w.WriteU32(imm.FuncIdx)
		}

	case OpCallIndirect:
		var imm CallIndirectImm
		if imm, ok = instr.Imm.(CallIndirectImm); ok {
			w.WriteU32(imm.TypeIdx)
			w.WriteU32(imm.TableIdx)
		}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		var imm LocalImm
		if imm, ok = instr.Imm.(LocalImm); ok {
			w.WriteU32(imm.LocalIdx)
		}

	case OpGlobalGet, OpGlobalSet:
		var imm GlobalImm
		if imm, ok = instr.Imm.(GlobalImm); ok {
			w.WriteU32(imm.GlobalIdx)
		}

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store:
		var imm MemoryImm
		if imm, ok = instr.Imm.(MemoryImm); ok {
			w.WriteU32(imm.Align)
			w.WriteU64(imm.Offset)
		}

	case OpMemorySize, OpMemoryGrow:
		var imm MemoryIdxImm
		if imm, ok = instr.Imm.(MemoryIdxImm); ok {
			w.WriteU32(imm.MemIdx)
		}

	case OpI32Const:
		var imm I32Imm
		if imm, ok = instr.Imm.(I32Imm); ok {
			w.WriteS32(imm.Value)
		}

	case OpI64Const:
		var imm I64Imm
		if imm, ok = instr.Imm.(I64Imm); ok {
			w.WriteS64(imm.Value)
		}

	case OpF32Const:
		var imm F32Imm
		if imm, ok = instr.Imm.(F32Imm); ok {
			w.WriteF32(imm.Value)
		}

	case OpF64Const:
		var imm F64Imm
		if imm, ok = instr.Imm.(F64Imm); ok {
			w.WriteF64(imm.Value)
		}

	default:
		if _, known := opcodeInfo[instr.Opcode]; !known {
			return fmt.Errorf("encode: unsupported opcode %#x", instr.Opcode)
		}
		ok = instr.Imm == nil
	}

	if !ok {
		return fmt.Errorf("encode: %s has immediate %T", OpcodeName(instr.Opcode), instr.Imm)
	}
	return nil
}

// EncodeInstructionsTo writes multiple instructions to w.
func EncodeInstructionsTo(w *binary.Writer, instrs []Instruction) error {
	for i := range instrs {
		if err := EncodeInstructionTo(w, &instrs[i]); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

// EncodeInstructions encodes instructions to bytes
func EncodeInstructions(instrs []Instruction) ([]byte, error) {
	w := binary.NewWriter()
	if err := EncodeInstructionsTo(w, instrs); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
