package runner

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// HostFunc is a host function provided to the module.
type HostFunc struct {
	// Fn receives the flattened arguments and returns the flattened results.
	Fn     func(ctx context.Context, args []uint64) ([]uint64, error)
	Module string
	Name   string
	Type   wasm.FuncType
	// Suspend makes the call unwind the module and run Fn outside of it.
	// Only the first result is delivered on resume.
	Suspend bool
}

// Config configures a Runner.
type Config struct {
	MemoryLimitPages uint32
	DataAddr         uint32
	StackSize        uint32
}

// Runner instantiates one module in wazero and calls its exports, driving
// suspensions when the module carries the asyncify helpers.
type Runner struct {
	runtime wazero.Runtime
	mod     api.Module
	driver  *Driver
	sched   *Scheduler
}

// New compiles and instantiates wasmBytes with hosts bound to their import
// modules.
func New(ctx context.Context, wasmBytes []byte, hosts []HostFunc, cfg Config) (*Runner, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	r := &Runner{runtime: rt}

	if err := r.bindHosts(ctx, hosts); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseVerify, errors.KindInvalidData, err, "compile module")
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseVerify, errors.KindInvalidData, err, "instantiate module")
	}
	r.mod = mod

	if mod.ExportedFunction(asyncify.ExportGetState) != nil {
		r.driver = NewDriver(cfg.DataAddr, cfg.StackSize)
		if err := r.driver.Init(mod); err != nil {
			rt.Close(ctx)
			return nil, err
		}
		r.sched = NewScheduler(r.driver)
	}

	Logger().Debug("module instantiated",
		zap.Int("hosts", len(hosts)),
		zap.Bool("asyncify", r.driver != nil))
	return r, nil
}

func (r *Runner) bindHosts(ctx context.Context, hosts []HostFunc) error {
	var order []string
	byModule := make(map[string][]HostFunc)
	for _, h := range hosts {
		if _, ok := byModule[h.Module]; !ok {
			order = append(order, h.Module)
		}
		byModule[h.Module] = append(byModule[h.Module], h)
	}

	for _, module := range order {
		builder := r.runtime.NewHostModuleBuilder(module)
		for _, h := range byModule[module] {
			params, err := valueTypes(h.Type.Params)
			if err != nil {
				return err
			}
			results, err := valueTypes(h.Type.Results)
			if err != nil {
				return err
			}
			builder.NewFunctionBuilder().
				WithGoModuleFunction(hostFunction(h), params, results).
				Export(h.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Wrap(errors.PhaseVerify, errors.KindInvalidInput, err, "instantiate host module "+module)
		}
	}
	return nil
}

func hostFunction(h HostFunc) api.GoModuleFunc {
	n := len(h.Type.Params)
	direct := func(ctx context.Context, _ api.Module, stack []uint64) {
		results, err := h.Fn(ctx, stack[:n])
		if err != nil {
			panic(err)
		}
		copy(stack, results)
	}
	if !h.Suspend {
		return direct
	}
	return MakeAsyncHandler(func(_ context.Context, _ api.Module, stack []uint64) PendingOp {
		args := append([]uint64(nil), stack[:n]...)
		return OpFunc(func(ctx context.Context) (uint64, error) {
			results, err := h.Fn(ctx, args)
			if err != nil || len(results) == 0 {
				return 0, err
			}
			return results[0], nil
		})
	}, direct)
}

func valueTypes(types []wasm.ValType) ([]api.ValueType, error) {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case wasm.ValI32:
			out[i] = api.ValueTypeI32
		case wasm.ValI64:
			out[i] = api.ValueTypeI64
		case wasm.ValF32:
			out[i] = api.ValueTypeF32
		case wasm.ValF64:
			out[i] = api.ValueTypeF64
		default:
			return nil, errors.Unsupported(errors.PhaseVerify, "host value type "+t.String())
		}
	}
	return out, nil
}

// Asyncified reports whether the module exports the asyncify helpers.
func (r *Runner) Asyncified() bool { return r.driver != nil }

// Suspensions counts the unwinds driven so far.
func (r *Runner) Suspensions() int {
	if r.sched == nil {
		return 0
	}
	return r.sched.Suspensions()
}

// Driver returns the asyncify driver, nil for plain modules.
func (r *Runner) Driver() *Driver { return r.driver }

// Exports lists the exported function names, sorted.
func (r *Runner) Exports() []string {
	defs := r.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the export name, running suspending host functions to
// completion.
func (r *Runner) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := r.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseVerify, "export", name)
	}
	if r.driver == nil {
		return fn.Call(ctx, args...)
	}

	ctx = WithScheduler(WithDriver(ctx, r.driver), r.sched)
	r.sched.Reset()
	return r.sched.Run(ctx, fn, args...)
}

// Close releases the runtime.
func (r *Runner) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
