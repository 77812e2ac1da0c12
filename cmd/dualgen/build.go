package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/runner"
	"github.com/wippyai/wasm-dualgen/source"
)

// build is a compiled declaration file with the event trace of every output.
type build struct {
	program  *source.Program
	compiled *source.Compiled
	traces   []*emit.Recorder
}

func compile(path string) (*build, error) {
	prog, err := source.LoadFile(path)
	if err != nil {
		return nil, err
	}
	b := &build{program: prog}
	compiled, err := source.Compile(prog, source.Options{Observe: b.observe})
	if err != nil {
		return nil, err
	}
	b.compiled = compiled
	return b, nil
}

func (b *build) observe(slot codegen.Slot, out emit.FuncSink) (emit.FuncSink, error) {
	rec := emit.NewRecorder(slot.Name)
	b.traces = append(b.traces, rec)
	return emit.NewFuncMux(out, rec)
}

func (b *build) trace(name string) (*emit.Recorder, bool) {
	for _, rec := range b.traces {
		if rec.Name() == name {
			return rec, true
		}
	}
	return nil, false
}

func (b *build) flags(slot codegen.Slot) string {
	var flags []string
	if slot.Abstract {
		flags = append(flags, "abstract")
	}
	if slot.Private {
		flags = append(flags, "private")
	}
	if slot.Synthetic {
		flags = append(flags, "synthetic")
	}
	for _, name := range b.compiled.Suspending {
		if name == slot.Name {
			flags = append(flags, "suspending")
		}
	}
	return strings.Join(flags, " ")
}

// descriptor returns the signature of an exported function.
func (b *build) descriptor(name string) (codegen.Descriptor, bool) {
	for _, w := range b.compiled.Builder.Functions() {
		slot := w.Slot()
		if slot.Name == name && !slot.Abstract && !slot.Private {
			return slot.Descriptor, true
		}
	}
	return codegen.Descriptor{}, false
}

// hosts binds every import to a stub returning its first argument, or zero.
func (b *build) hosts() []runner.HostFunc {
	hosts := make([]runner.HostFunc, 0, len(b.program.Imports))
	for _, imp := range b.program.Imports {
		name, results := imp.Module+"."+imp.Name, len(imp.Type.Results)
		hosts = append(hosts, runner.HostFunc{
			Module:  imp.Module,
			Name:    imp.Name,
			Type:    imp.Type,
			Suspend: imp.Suspending,
			Fn: func(_ context.Context, args []uint64) ([]uint64, error) {
				out := make([]uint64, results)
				if results > 0 && len(args) > 0 {
					out[0] = args[0]
				}
				runner.Logger().Debug("echo host", zap.String("import", name), zap.Uint64s("args", args))
				return out, nil
			},
		})
	}
	return hosts
}

func encodeArgs(desc codegen.Descriptor, inputs []string) ([]uint64, error) {
	if len(inputs) != len(desc.Params) {
		return nil, fmt.Errorf("expected %d arguments for %s, got %d", len(desc.Params), desc, len(inputs))
	}
	args := make([]uint64, len(inputs))
	for i, in := range inputs {
		v, err := encodeArg(strings.TrimSpace(in), desc.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func encodeArg(value string, t wit.Type) (uint64, error) {
	switch t.(type) {
	case wit.U8, wit.U16, wit.U32:
		v, err := strconv.ParseUint(value, 10, 32)
		return uint64(uint32(v)), err
	case wit.S8, wit.S16, wit.S32:
		v, err := strconv.ParseInt(value, 10, 32)
		return api.EncodeI32(int32(v)), err
	case wit.U64:
		return strconv.ParseUint(value, 10, 64)
	case wit.S64:
		v, err := strconv.ParseInt(value, 10, 64)
		return api.EncodeI64(v), err
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v)), err
	case wit.F64:
		v, err := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v), err
	case wit.Bool:
		if value == "true" || value == "1" {
			return 1, nil
		}
		return 0, nil
	case wit.Char:
		r := []rune(value)
		if len(r) != 1 {
			return 0, fmt.Errorf("char %q is not one rune", value)
		}
		return uint64(r[0]), nil
	default:
		return 0, fmt.Errorf("type %s cannot be passed from the command line", codegen.TypeName(t))
	}
}

func formatResult(desc codegen.Descriptor, results []uint64) string {
	if desc.Result == nil || len(results) == 0 {
		return "()"
	}
	r := results[0]
	switch desc.Result.(type) {
	case wit.S8, wit.S16, wit.S32:
		return strconv.FormatInt(int64(api.DecodeI32(r)), 10)
	case wit.S64:
		return strconv.FormatInt(int64(r), 10)
	case wit.U8, wit.U16, wit.U32:
		return strconv.FormatUint(uint64(uint32(r)), 10)
	case wit.F32:
		return strconv.FormatFloat(float64(api.DecodeF32(r)), 'g', -1, 32)
	case wit.F64:
		return strconv.FormatFloat(api.DecodeF64(r), 'g', -1, 64)
	case wit.Bool:
		return strconv.FormatBool(r != 0)
	case wit.Char:
		return strconv.QuoteRune(rune(r))
	default:
		return strconv.FormatUint(r, 10)
	}
}
