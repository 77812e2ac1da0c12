package codegen

import (
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Allocator creates outputs in the artifact under construction.
type Allocator interface {
	Allocate(slot Slot) (emit.FuncSink, error)
}

// AllocatorFunc adapts a function to Allocator.
type AllocatorFunc func(slot Slot) (emit.FuncSink, error)

func (f AllocatorFunc) Allocate(slot Slot) (emit.FuncSink, error) { return f(slot) }

// Strategy turns an allocated output into the sink a body is generated into,
// and generates the body content.
type Strategy interface {
	PrepareSink(out emit.FuncSink, slot Slot) (emit.FuncSink, error)
	GenerateBody(ctx *Context, sink emit.FuncSink, sig Signature) error
}

// Context carries what a content pass needs besides the signature.
type Context struct {
	// Callees maps call targets to their core types, for stack sizing.
	Callees  map[string]wasm.FuncType
	Body     *Body
	Function string
}

// NewContext builds the context for meta.
func NewContext(meta *FunctionMeta, callees map[string]wasm.FuncType) *Context {
	return &Context{Function: meta.Name, Body: meta.Body, Callees: callees}
}

// Default emits the body as written.
type Default struct{}

// PrepareSink returns out unchanged.
func (Default) PrepareSink(out emit.FuncSink, _ Slot) (emit.FuncSink, error) {
	return out, nil
}

// GenerateBody emits the content events of ctx.Body. Abstract functions
// have no body and produce no content.
func (Default) GenerateBody(ctx *Context, sink emit.FuncSink, sig Signature) error {
	return emitContent(ctx, sink, sig)
}

// emitContent is the content pass shared by every strategy. Statement i
// starts at label i; the result expression starts at label len(Statements).
func emitContent(ctx *Context, sink emit.FuncSink, sig Signature) error {
	body := ctx.Body
	if body == nil {
		return nil
	}

	maxStack, err := stackSize(ctx, body)
	if err != nil {
		return err
	}

	if err := sink.Code(); err != nil {
		return err
	}

	params := len(sig.Type.Params)
	end := emit.Label{ID: uint32(len(body.Statements))}
	for i, l := range body.Locals {
		err := sink.LocalVariable(emit.LocalVar{
			Name:  l.Name,
			Index: uint32(params + i),
			Type:  l.Type,
			Start: emit.Label{ID: 0},
			End:   end,
		})
		if err != nil {
			return err
		}
	}

	for i, st := range body.Statements {
		label := emit.Label{ID: uint32(i)}
		if err := sink.Label(label); err != nil {
			return err
		}
		if st.Line > 0 {
			if err := sink.LineNumber(st.Line, label); err != nil {
				return err
			}
		}
		for _, instr := range st.Instrs {
			if err := sink.Instr(instr); err != nil {
				return err
			}
		}
	}

	if err := sink.Label(end); err != nil {
		return err
	}
	for _, instr := range body.Result {
		if err := sink.Instr(instr); err != nil {
			return err
		}
	}

	return sink.MaxStackAndLocals(maxStack, params+len(body.Locals))
}

// stackSize estimates the operand stack depth of the body. Each statement
// starts from an empty stack.
func stackSize(ctx *Context, body *Body) (int, error) {
	maxDepth := 0
	for _, st := range body.Statements {
		d, err := depthOf(ctx, st.Instrs)
		if err != nil {
			return 0, err
		}
		maxDepth = max(maxDepth, d)
	}
	d, err := depthOf(ctx, body.Result)
	if err != nil {
		return 0, err
	}
	return max(maxDepth, d), nil
}

func depthOf(ctx *Context, instrs []wasm.Instruction) (int, error) {
	depth, maxDepth := 0, 0
	for _, instr := range instrs {
		pops, pushes, err := stackEffect(ctx, instr)
		if err != nil {
			return 0, err
		}
		depth = max(depth-pops, 0) + pushes
		maxDepth = max(maxDepth, depth)
	}
	return maxDepth, nil
}

func stackEffect(ctx *Context, instr wasm.Instruction) (int, int, error) {
	switch instr.Opcode {
	case wasm.OpIf, wasm.OpBrIf, wasm.OpBrTable:
		return 1, 0, nil
	case wasm.OpCall:
		name, ok := instr.CallName()
		if !ok {
			// resolved index, type unknown here
			return 0, 0, nil
		}
		ft, ok := ctx.Callees[name]
		if !ok {
			return 0, 0, errors.New(errors.PhaseBody, errors.KindNotFound).
				Function(ctx.Function).
				Value(name).
				Detail("call target %q is not declared", name).
				Build()
		}
		return len(ft.Params), len(ft.Results), nil
	}
	info, ok := wasm.Info(instr.Opcode)
	if !ok || info.Pops < 0 {
		return 0, 0, nil
	}
	return info.Pops, info.Pushes, nil
}
