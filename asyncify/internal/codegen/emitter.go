package codegen

import (
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Block types for Block, Loop and If.
const (
	BlockVoid = wasm.BlockTypeVoid
	BlockI32  = wasm.BlockTypeI32
)

// Emitter accumulates instructions.
type Emitter struct {
	instrs []wasm.Instruction
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Len returns the number of emitted instructions.
func (e *Emitter) Len() int { return len(e.instrs) }

// Instrs returns a copy of the emitted instructions.
func (e *Emitter) Instrs() []wasm.Instruction {
	out := make([]wasm.Instruction, len(e.instrs))
	copy(out, e.instrs)
	return out
}

// Reset discards all emitted instructions.
func (e *Emitter) Reset() {
	e.instrs = e.instrs[:0]
}

// EmitInstr appends an arbitrary instruction.
func (e *Emitter) EmitInstr(instr wasm.Instruction) *Emitter {
	e.instrs = append(e.instrs, instr)
	return e
}

// EmitAll appends instrs in order.
func (e *Emitter) EmitAll(instrs []wasm.Instruction) *Emitter {
	e.instrs = append(e.instrs, instrs...)
	return e
}

func (e *Emitter) op(opcode byte) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: opcode})
}

// Control flow

func (e *Emitter) Block(bt int32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: bt}})
}

func (e *Emitter) Loop(bt int32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: bt}})
}

func (e *Emitter) If(bt int32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: bt}})
}

func (e *Emitter) Else() *Emitter        { return e.op(wasm.OpElse) }
func (e *Emitter) End() *Emitter         { return e.op(wasm.OpEnd) }
func (e *Emitter) Unreachable() *Emitter { return e.op(wasm.OpUnreachable) }
func (e *Emitter) Return() *Emitter      { return e.op(wasm.OpReturn) }
func (e *Emitter) Drop() *Emitter        { return e.op(wasm.OpDrop) }

func (e *Emitter) Br(depth uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: depth}})
}

// Variables

func (e *Emitter) LocalGet(idx uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: idx}})
}

func (e *Emitter) LocalSet(idx uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: idx}})
}

func (e *Emitter) LocalTee(idx uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: idx}})
}

func (e *Emitter) GlobalGet(idx uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}})
}

func (e *Emitter) GlobalSet(idx uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: idx}})
}

// Constants

func (e *Emitter) I32Const(v int32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}})
}

func (e *Emitter) I64Const(v int64) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}})
}

func (e *Emitter) F32Const(v float32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: v}})
}

func (e *Emitter) F64Const(v float64) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}})
}

// ZeroOf pushes the zero value of vt.
func (e *Emitter) ZeroOf(vt wasm.ValType) *Emitter {
	switch vt {
	case wasm.ValI64:
		return e.I64Const(0)
	case wasm.ValF32:
		return e.F32Const(0)
	case wasm.ValF64:
		return e.F64Const(0)
	default:
		return e.I32Const(0)
	}
}

// i32 arithmetic and comparison

func (e *Emitter) I32Add() *Emitter { return e.op(wasm.OpI32Add) }
func (e *Emitter) I32Sub() *Emitter { return e.op(wasm.OpI32Sub) }
func (e *Emitter) I32And() *Emitter { return e.op(wasm.OpI32And) }
func (e *Emitter) I32Or() *Emitter  { return e.op(wasm.OpI32Or) }
func (e *Emitter) I32Eqz() *Emitter { return e.op(wasm.OpI32Eqz) }
func (e *Emitter) I32Eq() *Emitter  { return e.op(wasm.OpI32Eq) }
func (e *Emitter) I32Ne() *Emitter  { return e.op(wasm.OpI32Ne) }
func (e *Emitter) I32GtU() *Emitter { return e.op(wasm.OpI32GtU) }

// Memory

func (e *Emitter) I32Load(align uint32, offset uint64) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: align, Offset: offset}})
}

func (e *Emitter) I32Store(align uint32, offset uint64) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: wasm.OpI32Store, Imm: wasm.MemoryImm{Align: align, Offset: offset}})
}

// Load emits the natural load of vt at offset.
func (e *Emitter) Load(vt wasm.ValType, offset uint64) *Emitter {
	op, align := loadOp(vt)
	return e.EmitInstr(wasm.Instruction{Opcode: op, Imm: wasm.MemoryImm{Align: align, Offset: offset}})
}

// Store emits the natural store of vt at offset.
func (e *Emitter) Store(vt wasm.ValType, offset uint64) *Emitter {
	op, align := storeOp(vt)
	return e.EmitInstr(wasm.Instruction{Opcode: op, Imm: wasm.MemoryImm{Align: align, Offset: offset}})
}

// StateCheck pushes (state global == state) as an i32 condition.
func (e *Emitter) StateCheck(stateGlobal uint32, state int32) *Emitter {
	e.GlobalGet(stateGlobal)
	if state == 0 {
		return e.I32Eqz()
	}
	return e.I32Const(state).I32Eq()
}

func loadOp(vt wasm.ValType) (byte, uint32) {
	switch vt {
	case wasm.ValI64:
		return wasm.OpI64Load, 3
	case wasm.ValF32:
		return wasm.OpF32Load, 2
	case wasm.ValF64:
		return wasm.OpF64Load, 3
	default:
		return wasm.OpI32Load, 2
	}
}

func storeOp(vt wasm.ValType) (byte, uint32) {
	switch vt {
	case wasm.ValI64:
		return wasm.OpI64Store, 3
	case wasm.ValF32:
		return wasm.OpF32Store, 2
	case wasm.ValF64:
		return wasm.OpF64Store, 3
	default:
		return wasm.OpI32Store, 2
	}
}
