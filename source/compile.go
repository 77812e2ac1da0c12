package source

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/artifact"
	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
)

// ObserveFunc may replace an allocated output, typically with a FuncMux that
// also feeds a recorder.
type ObserveFunc func(slot codegen.Slot, out emit.FuncSink) (emit.FuncSink, error)

// Options configures Compile.
type Options struct {
	// Observe sees every allocated output, secondary outputs included.
	Observe ObserveFunc

	// MemoryPages is the module memory size when asyncify is needed.
	MemoryPages uint32
}

// Compiled is the result of Compile.
type Compiled struct {
	Builder *artifact.Builder
	Module  []byte
	// Suspending lists the defined functions rewritten for unwind and rewind.
	Suspending []string
}

// SuspendingRoots returns the names of imports that suspend, either flagged
// in their declaration or matched by SuspendImports. Abstract functions are
// matched against ImportModule.
func (p *Program) SuspendingRoots() map[string]bool {
	m := asyncify.NewPatternMatcher(p.SuspendImports)
	roots := make(map[string]bool)
	for _, imp := range p.Imports {
		if imp.Suspending || m.Match(imp.Module, imp.Name) {
			roots[imp.Name] = true
		}
	}
	module := p.ImportModule
	if module == "" {
		module = "env"
	}
	for _, fn := range p.Functions {
		if fn.Meta.Abstract && m.Match(module, fn.Meta.Name) {
			roots[fn.Meta.Name] = true
		}
	}
	return roots
}

// Suspension returns a matcher for every name that can suspend: the roots
// and each function reaching one through direct calls. Calls to a
// secondary output never suspend.
func (p *Program) Suspension() *asyncify.FunctionNameMatcher {
	funcs := make([]asyncify.Function, 0, len(p.Functions))
	for _, fn := range p.Functions {
		if fn.Meta.Body == nil {
			continue
		}
		af := asyncify.Function{Name: fn.Meta.Name, Tail: fn.Meta.Body.Result}
		for _, st := range fn.Meta.Body.Statements {
			af.Statements = append(af.Statements, asyncify.Statement{Instrs: st.Instrs})
		}
		funcs = append(funcs, af)
	}
	return asyncify.BuildCallGraph(funcs).Suspending(p.SuspendingRoots())
}

// Compile generates every declared function into one module. Functions
// that can suspend go through the state machine strategy; inline-suspend
// functions also get a private f$$forInline output.
func Compile(p *Program, opts Options) (*Compiled, error) {
	b := artifact.NewBuilder(artifact.Config{
		ModuleName:   p.Module,
		ImportModule: p.ImportModule,
		MemoryPages:  opts.MemoryPages,
	})
	for _, imp := range p.Imports {
		if err := b.Import(imp); err != nil {
			return nil, err
		}
	}

	suspension := p.Suspension()
	var suspending []string
	for _, fn := range p.Functions {
		if !fn.Meta.Abstract && suspension.MatchFunction(fn.Meta.Name) {
			suspending = append(suspending, fn.Meta.Name)
		}
	}
	sort.Strings(suspending)

	sm := codegen.StateMachine{Suspending: suspension}
	if len(suspending) > 0 {
		sm.Globals = b.EnableAsyncify()
	}

	var alloc codegen.Allocator = b
	if opts.Observe != nil {
		alloc = codegen.AllocatorFunc(func(slot codegen.Slot) (emit.FuncSink, error) {
			out, err := b.Allocate(slot)
			if err != nil {
				return nil, err
			}
			return opts.Observe(slot, out)
		})
	}

	gen := codegen.NewFunctionCodegen(alloc)
	callees := p.Callees()
	var errs errors.Errors
	for i := range p.Functions {
		fn := &p.Functions[i]
		var strategy codegen.BodyStrategy
		if fn.InlineSuspend {
			strategy = codegen.NewSuspendInline(alloc, sm, codegen.Default{})
		} else {
			strategy = &codegen.PlainStrategy{Strategy: sm}
		}
		errs.Add(fn.Meta.Name, gen.Generate(codegen.NewContext(&fn.Meta, callees), &fn.Meta, strategy))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	module, err := b.Encode()
	if err != nil {
		return nil, err
	}
	Logger().Debug("compiled program",
		zap.String("module", p.Module),
		zap.Strings("suspending", suspending),
		zap.Int("bytes", len(module)))
	return &Compiled{Builder: b, Module: module, Suspending: suspending}, nil
}
