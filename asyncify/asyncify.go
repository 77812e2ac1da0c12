package asyncify

import (
	"bytes"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/asyncify/internal/codegen"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Asyncify states held in the state global.
const (
	StateNormal    int32 = 0
	StateUnwinding int32 = 1
	StateRewinding int32 = 2
)

// Helper export names.
const (
	ExportGetState    = "asyncify_get_state"
	ExportStartUnwind = "asyncify_start_unwind"
	ExportStopUnwind  = "asyncify_stop_unwind"
	ExportStartRewind = "asyncify_start_rewind"
	ExportStopRewind  = "asyncify_stop_rewind"
)

// Scratch local offsets, relative to the first local after the function's own.
const (
	scratchCallIndexSave = iota
	scratchCallIndexRewind
	scratchStackPtr
	scratchLocalCount
)

// branch depth from inside an unwind check to the outer save block:
// unwind-if, call-site-if, inner, middle, outer
const unwindBranchDepth = 4

// ExtraStack is the operand stack depth the rewrite's own scaffolding needs.
const ExtraStack = 4

const maxFrameSize = math.MaxInt32

// asyncifyExports are the functions added by EnableAsyncify.
var asyncifyExports = [][]byte{
	[]byte(ExportStartUnwind),
	[]byte(ExportStopUnwind),
	[]byte(ExportStartRewind),
	[]byte(ExportStopRewind),
}

// IsAsyncified checks if a WASM module carries the asyncify helper exports.
func IsAsyncified(wasmBytes []byte) bool {
	for _, exp := range asyncifyExports {
		if bytes.Contains(wasmBytes, exp) {
			return true
		}
	}
	return false
}

// Globals holds the global indices of the asyncify state and data pointer.
type Globals struct {
	State uint32
	Data  uint32
}

// Config configures the rewrite of one function.
type Config struct {
	// Suspending matches callee names whose calls may suspend.
	Suspending FunctionMatcher
	Globals    Globals
}

// Statement is a stack-neutral instruction sequence starting at a label.
type Statement struct {
	Instrs []wasm.Instruction
	Line   int
	Label  uint32
}

// Function is the input of Rewrite.
type Function struct {
	Name       string
	Type       wasm.FuncType
	Locals     []wasm.ValType // body locals after the parameters
	Statements []Statement
	Tail       []wasm.Instruction // leaves the function results on the stack
}

// Scratch holds the indices of the locals added by the rewrite.
type Scratch struct {
	SaveIndex   uint32
	RewindIndex uint32
	StackPtr    uint32
}

// Result is the rewritten function. Prologue, Statements and Epilogue
// concatenate into the body, without the final end.
type Result struct {
	Locals     []wasm.ValType
	Prologue   []wasm.Instruction
	Statements []Statement
	Epilogue   []wasm.Instruction
	Scratch    Scratch
	CallSites  int
	FrameSize  uint32
	Changed    bool
}

// Body concatenates the rewritten instructions.
func (r Result) Body() []wasm.Instruction {
	var out []wasm.Instruction
	out = append(out, r.Prologue...)
	for _, st := range r.Statements {
		out = append(out, st.Instrs...)
	}
	return append(out, r.Epilogue...)
}

// callSite is a statement split around its suspending call.
type callSite struct {
	args     []wasm.Instruction
	call     wasm.Instruction
	epilogue []wasm.Instruction
}

// Rewrite instruments fn so it can be unwound at each suspending call and
// rewound to the same call later. A function without suspending calls is
// returned unchanged.
//
// The frame saved on unwind holds the call index followed by every parameter
// and local in index order.
func Rewrite(fn Function, cfg Config) (Result, error) {
	sites := make(map[int]callSite)
	for i, st := range fn.Statements {
		site, ok, err := splitCallSite(fn.Name, st, cfg.Suspending)
		if err != nil {
			return Result{}, err
		}
		if ok {
			sites[i] = site
		}
	}

	for _, instr := range fn.Tail {
		if isSuspendingCall(instr, cfg.Suspending) {
			return Result{}, errors.New(errors.PhaseBody, errors.KindUnsupported).
				Function(fn.Name).
				Path("result").
				Detail("suspending call %s in the result expression; assign it to a local first", instr).
				Build()
		}
	}

	if len(sites) == 0 {
		Logger().Debug("no suspension points", zap.String("function", fn.Name))
		return Result{
			Locals:     append([]wasm.ValType(nil), fn.Locals...),
			Statements: fn.Statements,
			Epilogue:   fn.Tail,
		}, nil
	}

	for _, st := range fn.Statements {
		if err := checkBranches(fn.Name, st); err != nil {
			return Result{}, err
		}
	}

	localTypes := make([]wasm.ValType, 0, len(fn.Type.Params)+len(fn.Locals))
	localTypes = append(localTypes, fn.Type.Params...)
	localTypes = append(localTypes, fn.Locals...)

	frameSize := uint32(4)
	for i, vt := range localTypes {
		size := vt.Size()
		if vt.IsRef() || vt == wasm.ValV128 || size == 0 {
			return Result{}, errors.New(errors.PhaseBody, errors.KindUnsupported).
				Function(fn.Name).
				Value(i).
				Detail("local %d has type %s which cannot be saved to linear memory", i, vt).
				Build()
		}
		frameSize += size
	}
	if frameSize > maxFrameSize {
		return Result{}, errors.New(errors.PhaseBody, errors.KindUnsupported).
			Function(fn.Name).
			Detail("frame size %d exceeds maximum %d", frameSize, uint32(maxFrameSize)).
			Build()
	}

	base := uint32(len(localTypes))
	scratch := Scratch{
		SaveIndex:   base + scratchCallIndexSave,
		RewindIndex: base + scratchCallIndexRewind,
		StackPtr:    base + scratchStackPtr,
	}
	locals := append([]wasm.ValType(nil), fn.Locals...)
	for i := 0; i < scratchLocalCount; i++ {
		locals = append(locals, wasm.ValI32)
	}

	rw := &rewriter{globals: cfg.Globals, scratch: scratch, localTypes: localTypes, frameSize: frameSize}

	prologue := rw.prologue()

	statements := make([]Statement, len(fn.Statements))
	callIndex := int32(0)
	for i, st := range fn.Statements {
		out := Statement{Label: st.Label, Line: st.Line}
		if site, ok := sites[i]; ok {
			out.Instrs = rw.callSite(site, callIndex)
			callIndex++
		} else {
			out.Instrs = rw.guarded(st.Instrs)
		}
		statements[i] = out
	}

	epilogue := rw.epilogue(fn.Type, fn.Tail)

	Logger().Debug("rewrote function",
		zap.String("function", fn.Name),
		zap.Int("call_sites", len(sites)),
		zap.Uint32("frame_size", frameSize))

	return Result{
		Locals:     locals,
		Prologue:   prologue,
		Statements: statements,
		Epilogue:   epilogue,
		Scratch:    scratch,
		CallSites:  len(sites),
		FrameSize:  frameSize,
		Changed:    true,
	}, nil
}

type rewriter struct {
	localTypes []wasm.ValType
	globals    Globals
	scratch    Scratch
	frameSize  uint32
}

// prologue restores the frame when rewinding and opens the three blocks.
func (rw *rewriter) prologue() []wasm.Instruction {
	em := codegen.NewEmitter()
	g := rw.globals

	em.StateCheck(g.State, StateRewinding).If(codegen.BlockVoid)
	// stack_ptr -= frameSize
	em.GlobalGet(g.Data).
		GlobalGet(g.Data).
		I32Load(2, 0).
		I32Const(int32(rw.frameSize)).
		I32Sub().
		I32Store(2, 0)
	offset := uint64(4)
	for idx, vt := range rw.localTypes {
		em.GlobalGet(g.Data).I32Load(2, 0).Load(vt, offset).LocalSet(uint32(idx))
		offset += uint64(vt.Size())
	}
	em.End()

	em.Block(codegen.BlockI32).Block(codegen.BlockVoid).Block(codegen.BlockVoid)

	// frame base is at stack_ptr, call index at offset 0
	em.StateCheck(g.State, StateRewinding).If(codegen.BlockVoid)
	em.GlobalGet(g.Data).
		I32Load(2, 0).
		I32Load(2, 0).
		LocalSet(rw.scratch.RewindIndex).
		End()

	return em.Instrs()
}

// guarded runs instrs only in the normal state.
func (rw *rewriter) guarded(instrs []wasm.Instruction) []wasm.Instruction {
	if len(instrs) == 0 {
		return nil
	}
	em := codegen.NewEmitter()
	em.StateCheck(rw.globals.State, StateNormal).If(codegen.BlockVoid)
	em.EmitAll(instrs)
	em.End()
	return em.Instrs()
}

// callSite runs the call when normal, or when rewinding to this call index,
// and branches to the save path if the callee started an unwind.
func (rw *rewriter) callSite(site callSite, index int32) []wasm.Instruction {
	em := codegen.NewEmitter()
	g := rw.globals

	// if (normal || (rewinding && call_index == index))
	em.StateCheck(g.State, StateNormal).
		LocalGet(rw.scratch.RewindIndex).
		I32Const(index).
		I32Eq().
		StateCheck(g.State, StateRewinding).
		I32And().
		I32Or().
		If(codegen.BlockVoid)

	em.EmitAll(site.args).EmitInstr(site.call)

	em.StateCheck(g.State, StateUnwinding).
		If(codegen.BlockVoid).
		I32Const(index).
		Br(unwindBranchDepth).
		End()

	em.EmitAll(site.epilogue)
	em.End()
	return em.Instrs()
}

// epilogue closes the blocks, returns normally, and saves the frame on unwind.
func (rw *rewriter) epilogue(ft wasm.FuncType, tail []wasm.Instruction) []wasm.Instruction {
	em := codegen.NewEmitter()
	g := rw.globals
	sp := rw.scratch.StackPtr

	em.End() // inner
	em.EmitAll(tail).Return()
	em.End() // middle
	em.Unreachable()
	em.End() // outer, leaves the call index
	em.LocalSet(rw.scratch.SaveIndex)

	em.StateCheck(g.State, StateUnwinding).If(codegen.BlockVoid)
	em.GlobalGet(g.Data).I32Load(2, 0).LocalSet(sp)

	// (stack_ptr + frameSize) > stack_end traps
	em.LocalGet(sp).
		I32Const(int32(rw.frameSize)).
		I32Add().
		GlobalGet(g.Data).I32Load(2, 4).
		I32GtU().
		If(codegen.BlockVoid).Unreachable().End()

	em.LocalGet(sp).LocalGet(rw.scratch.SaveIndex).I32Store(2, 0)
	offset := uint64(4)
	for idx, vt := range rw.localTypes {
		em.LocalGet(sp).LocalGet(uint32(idx)).Store(vt, offset)
		offset += uint64(vt.Size())
	}

	em.GlobalGet(g.Data).
		LocalGet(sp).
		I32Const(int32(offset)).
		I32Add().
		I32Store(2, 0)
	em.End()

	for _, rt := range ft.Results {
		em.ZeroOf(rt)
	}
	return em.Instrs()
}

// splitCallSite finds the suspending call of st, if any. A suspension
// statement holds exactly one suspending call at block depth zero, and its
// arguments are built from locals and constants only.
func splitCallSite(fn string, st Statement, suspending FunctionMatcher) (callSite, bool, error) {
	found := -1
	depth := 0
	for i, instr := range st.Instrs {
		switch instr.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			depth--
		}
		if !isSuspendingCall(instr, suspending) {
			continue
		}
		if depth > 0 {
			return callSite{}, false, unsupported(fn, st, "suspending call inside a block")
		}
		if found >= 0 {
			return callSite{}, false, unsupported(fn, st, "more than one suspending call in a statement")
		}
		found = i
	}
	if found < 0 {
		return callSite{}, false, nil
	}

	for _, arg := range st.Instrs[:found] {
		switch arg.Opcode {
		case wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		default:
			return callSite{}, false, unsupported(fn, st,
				fmt.Sprintf("suspending call argument %s is not a local or constant", wasm.OpcodeName(arg.Opcode)))
		}
	}
	return callSite{
		args:     st.Instrs[:found],
		call:     st.Instrs[found],
		epilogue: st.Instrs[found+1:],
	}, true, nil
}

func isSuspendingCall(instr wasm.Instruction, suspending FunctionMatcher) bool {
	if suspending == nil {
		return false
	}
	name, ok := instr.CallName()
	return ok && suspending.MatchFunction(name)
}

// checkBranches rejects branches that leave their statement; the guards
// added around each statement would change their targets.
func checkBranches(fn string, st Statement) error {
	depth := uint32(0)
	for _, instr := range st.Instrs {
		switch instr.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			depth--
		case wasm.OpBr, wasm.OpBrIf:
			if imm, ok := instr.Imm.(wasm.BranchImm); ok && imm.LabelIdx >= depth {
				return unsupported(fn, st, "branch leaves its statement")
			}
		case wasm.OpBrTable:
			if imm, ok := instr.Imm.(wasm.BrTableImm); ok {
				if imm.Default >= depth {
					return unsupported(fn, st, "branch leaves its statement")
				}
				for _, l := range imm.Labels {
					if l >= depth {
						return unsupported(fn, st, "branch leaves its statement")
					}
				}
			}
		}
	}
	return nil
}

func unsupported(fn string, st Statement, detail string) error {
	return errors.New(errors.PhaseBody, errors.KindUnsupported).
		Function(fn).
		Path(fmt.Sprintf("line %d", st.Line)).
		Detail("%s", detail).
		Build()
}
