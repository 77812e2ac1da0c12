package asyncify

import (
	"github.com/wippyai/wasm-dualgen/asyncify/internal/codegen"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Helper is one runtime support function the host calls to drive the
// asyncify state machine. Body excludes the final end.
type Helper struct {
	Name string
	Type wasm.FuncType
	Body []wasm.Instruction
}

// Helpers returns the five helper functions in export order.
func Helpers(g Globals) []Helper {
	ptr := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	void := wasm.FuncType{}
	return []Helper{
		{Name: ExportGetState, Type: wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, Body: buildGetState(g)},
		{Name: ExportStartUnwind, Type: ptr, Body: buildStart(g, StateUnwinding)},
		{Name: ExportStopUnwind, Type: void, Body: buildStop(g, StateUnwinding)},
		{Name: ExportStartRewind, Type: ptr, Body: buildStart(g, StateRewinding)},
		{Name: ExportStopRewind, Type: void, Body: buildStop(g, StateRewinding)},
	}
}

func buildGetState(g Globals) []wasm.Instruction {
	em := codegen.NewEmitter()
	em.GlobalGet(g.State)
	return em.Instrs()
}

// buildStart moves from normal to state and stores the data pointer.
// Traps unless the current state is normal.
func buildStart(g Globals, state int32) []wasm.Instruction {
	em := codegen.NewEmitter()

	em.GlobalGet(g.State).
		I32Const(StateNormal).
		I32Ne().
		If(codegen.BlockVoid).Unreachable().End()

	em.I32Const(state).GlobalSet(g.State)
	em.LocalGet(0).GlobalSet(g.Data)

	emitStackValidation(em, g)
	return em.Instrs()
}

// buildStop returns to normal. Traps unless the current state is state.
func buildStop(g Globals, state int32) []wasm.Instruction {
	em := codegen.NewEmitter()

	em.GlobalGet(g.State).
		I32Const(state).
		I32Ne().
		If(codegen.BlockVoid).Unreachable().End()

	em.I32Const(StateNormal).GlobalSet(g.State)

	emitStackValidation(em, g)
	return em.Instrs()
}

// emitStackValidation traps if stack_ptr > stack_end.
// Data layout: [stack_ptr at offset 0, stack_end at offset 4]
func emitStackValidation(em *codegen.Emitter, g Globals) {
	em.GlobalGet(g.Data).I32Load(2, 0)
	em.GlobalGet(g.Data).I32Load(2, 4)
	em.I32GtU()
	em.If(codegen.BlockVoid).Unreachable().End()
}
