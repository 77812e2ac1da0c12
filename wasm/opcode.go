package wasm

// ImmKind classifies the immediate operand an opcode carries.
type ImmKind int

const (
	ImmNone   ImmKind = iota
	ImmLocal          // local.get, local.set, local.tee
	ImmGlobal         // global.get, global.set
	ImmLabel          // br, br_if
	ImmFunc           // call
	ImmI32            // i32.const
	ImmI64            // i64.const
	ImmF32            // f32.const
	ImmF64            // f64.const
	ImmBlock          // block type
	ImmMemarg         // memory operations (align, offset)
	ImmMemIdx         // memory.size/grow (memory index)
	ImmOther          // br_table, call_indirect
)

// OpInfo describes one opcode: its text name, immediate kind and fixed stack
// effect. Pops and Pushes are -1 when the effect depends on a type (call,
// return, blocks).
type OpInfo struct {
	Name         string
	Opcode       byte
	Imm          ImmKind
	Pops         int
	Pushes       int
	NaturalAlign uint32
}

// LookupOpcode returns the opcode info for a text-format mnemonic.
func LookupOpcode(name string) (OpInfo, bool) {
	op, ok := opcodeByName[name]
	if !ok {
		return OpInfo{}, false
	}
	return opcodeInfo[op], true
}

// Info returns the opcode info for op.
func Info(op byte) (OpInfo, bool) {
	info, ok := opcodeInfo[op]
	return info, ok
}

// OpcodeName returns the text-format mnemonic of op.
func OpcodeName(op byte) string {
	if info, ok := opcodeInfo[op]; ok {
		return info.Name
	}
	return "unknown"
}

var opcodeInfo = map[byte]OpInfo{
	// Control
	OpUnreachable:  {"unreachable", OpUnreachable, ImmNone, 0, 0, 0},
	OpNop:          {"nop", OpNop, ImmNone, 0, 0, 0},
	OpBlock:        {"block", OpBlock, ImmBlock, -1, -1, 0},
	OpLoop:         {"loop", OpLoop, ImmBlock, -1, -1, 0},
	OpIf:           {"if", OpIf, ImmBlock, -1, -1, 0},
	OpElse:         {"else", OpElse, ImmNone, -1, -1, 0},
	OpEnd:          {"end", OpEnd, ImmNone, -1, -1, 0},
	OpBr:           {"br", OpBr, ImmLabel, -1, -1, 0},
	OpBrIf:         {"br_if", OpBrIf, ImmLabel, -1, -1, 0},
	OpBrTable:      {"br_table", OpBrTable, ImmOther, -1, -1, 0},
	OpReturn:       {"return", OpReturn, ImmNone, -1, -1, 0},
	OpCall:         {"call", OpCall, ImmFunc, -1, -1, 0},
	OpCallIndirect: {"call_indirect", OpCallIndirect, ImmOther, -1, -1, 0},

	// Parametric
	OpDrop:   {"drop", OpDrop, ImmNone, 1, 0, 0},
	OpSelect: {"select", OpSelect, ImmNone, 3, 1, 0},

	// Variables
	OpLocalGet:  {"local.get", OpLocalGet, ImmLocal, 0, 1, 0},
	OpLocalSet:  {"local.set", OpLocalSet, ImmLocal, 1, 0, 0},
	OpLocalTee:  {"local.tee", OpLocalTee, ImmLocal, 1, 1, 0},
	OpGlobalGet: {"global.get", OpGlobalGet, ImmGlobal, 0, 1, 0},
	OpGlobalSet: {"global.set", OpGlobalSet, ImmGlobal, 1, 0, 0},

	// Memory
	OpI32Load:    {"i32.load", OpI32Load, ImmMemarg, 1, 1, 2},
	OpI64Load:    {"i64.load", OpI64Load, ImmMemarg, 1, 1, 3},
	OpF32Load:    {"f32.load", OpF32Load, ImmMemarg, 1, 1, 2},
	OpF64Load:    {"f64.load", OpF64Load, ImmMemarg, 1, 1, 3},
	OpI32Store:   {"i32.store", OpI32Store, ImmMemarg, 2, 0, 2},
	OpI64Store:   {"i64.store", OpI64Store, ImmMemarg, 2, 0, 3},
	OpF32Store:   {"f32.store", OpF32Store, ImmMemarg, 2, 0, 2},
	OpF64Store:   {"f64.store", OpF64Store, ImmMemarg, 2, 0, 3},
	OpMemorySize: {"memory.size", OpMemorySize, ImmMemIdx, 0, 1, 0},
	OpMemoryGrow: {"memory.grow", OpMemoryGrow, ImmMemIdx, 1, 1, 0},

	// Constants
	OpI32Const: {"i32.const", OpI32Const, ImmI32, 0, 1, 0},
	OpI64Const: {"i64.const", OpI64Const, ImmI64, 0, 1, 0},
	OpF32Const: {"f32.const", OpF32Const, ImmF32, 0, 1, 0},
	OpF64Const: {"f64.const", OpF64Const, ImmF64, 0, 1, 0},

	// Comparison
	OpI32Eqz: {"i32.eqz", OpI32Eqz, ImmNone, 1, 1, 0},
	OpI32Eq:  {"i32.eq", OpI32Eq, ImmNone, 2, 1, 0},
	OpI32Ne:  {"i32.ne", OpI32Ne, ImmNone, 2, 1, 0},
	OpI32LtS: {"i32.lt_s", OpI32LtS, ImmNone, 2, 1, 0},
	OpI32LtU: {"i32.lt_u", OpI32LtU, ImmNone, 2, 1, 0},
	OpI32GtS: {"i32.gt_s", OpI32GtS, ImmNone, 2, 1, 0},
	OpI32GtU: {"i32.gt_u", OpI32GtU, ImmNone, 2, 1, 0},
	OpI32LeS: {"i32.le_s", OpI32LeS, ImmNone, 2, 1, 0},
	OpI32LeU: {"i32.le_u", OpI32LeU, ImmNone, 2, 1, 0},
	OpI32GeS: {"i32.ge_s", OpI32GeS, ImmNone, 2, 1, 0},
	OpI32GeU: {"i32.ge_u", OpI32GeU, ImmNone, 2, 1, 0},
	OpI64Eqz: {"i64.eqz", OpI64Eqz, ImmNone, 1, 1, 0},
	OpI64Eq:  {"i64.eq", OpI64Eq, ImmNone, 2, 1, 0},
	OpI64Ne:  {"i64.ne", OpI64Ne, ImmNone, 2, 1, 0},

	// Arithmetic
	OpI32Add:  {"i32.add", OpI32Add, ImmNone, 2, 1, 0},
	OpI32Sub:  {"i32.sub", OpI32Sub, ImmNone, 2, 1, 0},
	OpI32Mul:  {"i32.mul", OpI32Mul, ImmNone, 2, 1, 0},
	OpI32DivS: {"i32.div_s", OpI32DivS, ImmNone, 2, 1, 0},
	OpI32DivU: {"i32.div_u", OpI32DivU, ImmNone, 2, 1, 0},
	OpI32RemS: {"i32.rem_s", OpI32RemS, ImmNone, 2, 1, 0},
	OpI32RemU: {"i32.rem_u", OpI32RemU, ImmNone, 2, 1, 0},
	OpI32And:  {"i32.and", OpI32And, ImmNone, 2, 1, 0},
	OpI32Or:   {"i32.or", OpI32Or, ImmNone, 2, 1, 0},
	OpI32Xor:  {"i32.xor", OpI32Xor, ImmNone, 2, 1, 0},
	OpI32Shl:  {"i32.shl", OpI32Shl, ImmNone, 2, 1, 0},
	OpI32ShrS: {"i32.shr_s", OpI32ShrS, ImmNone, 2, 1, 0},
	OpI32ShrU: {"i32.shr_u", OpI32ShrU, ImmNone, 2, 1, 0},
	OpI64Add:  {"i64.add", OpI64Add, ImmNone, 2, 1, 0},
	OpI64Sub:  {"i64.sub", OpI64Sub, ImmNone, 2, 1, 0},
	OpI64Mul:  {"i64.mul", OpI64Mul, ImmNone, 2, 1, 0},
}

var opcodeByName = func() map[string]byte {
	m := make(map[string]byte, len(opcodeInfo))
	for op, info := range opcodeInfo {
		m[info.Name] = op
	}
	return m
}()
