package artifact

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// Custom section names written by Encode.
const (
	SectionAnnotations = "dualgen.annotations"
	SectionAttributes  = "dualgen.attributes"
	SectionLines       = "dualgen.lines"
	SectionSynthetic   = "dualgen.synthetic"
)

// MemoryExport is the export name of the module memory.
const MemoryExport = "memory"

// Config configures a Builder.
type Config struct {
	// ModuleName goes to the name section when set.
	ModuleName string
	// ImportModule is the import module of abstract functions. Default "env".
	ImportModule string
	// MemoryPages is the initial memory size when asyncify is enabled. Default 1.
	MemoryPages uint32
}

func (c Config) withDefaults() Config {
	if c.ImportModule == "" {
		c.ImportModule = "env"
	}
	if c.MemoryPages == 0 {
		c.MemoryPages = 1
	}
	return c
}

// HostImport is a host function the module imports.
type HostImport struct {
	Module     string
	Name       string
	Type       wasm.FuncType
	Suspending bool
}

// Builder assembles one wasm module from allocated function outputs. It
// implements codegen.Allocator.
type Builder struct {
	byName   map[string]bool
	imports  []HostImport
	writers  []*FunctionWriter
	cfg      Config
	globals  asyncify.Globals
	asyncify bool
}

var _ codegen.Allocator = (*Builder)(nil)

// NewBuilder creates an empty module builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults(), byName: make(map[string]bool)}
}

// Import declares a host function. Bodies call it by name.
func (b *Builder) Import(imp HostImport) error {
	if err := b.claim(imp.Name); err != nil {
		return err
	}
	b.imports = append(b.imports, imp)
	Logger().Debug("import",
		zap.String("module", imp.Module),
		zap.String("name", imp.Name),
		zap.Bool("suspending", imp.Suspending))
	return nil
}

// Imports returns the declared host functions.
func (b *Builder) Imports() []HostImport {
	return append([]HostImport(nil), b.imports...)
}

// SuspendingImports returns the names of host functions marked suspending.
func (b *Builder) SuspendingImports() map[string]bool {
	roots := make(map[string]bool)
	for _, imp := range b.imports {
		if imp.Suspending {
			roots[imp.Name] = true
		}
	}
	return roots
}

// Allocate creates the output for slot. Abstract slots become imports from
// Config.ImportModule; other slots become defined functions, exported
// unless private.
func (b *Builder) Allocate(slot codegen.Slot) (emit.FuncSink, error) {
	w, err := b.NewFunction(slot)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewFunction is Allocate returning the concrete writer.
func (b *Builder) NewFunction(slot codegen.Slot) (*FunctionWriter, error) {
	ft, err := slot.Descriptor.FuncType()
	if err != nil {
		return nil, err
	}
	if err := b.claim(slot.Name); err != nil {
		return nil, err
	}
	w := newFunctionWriter(slot, ft)
	b.writers = append(b.writers, w)
	Logger().Debug("allocate",
		zap.String("function", slot.Name),
		zap.String("descriptor", slot.Descriptor.String()),
		zap.Bool("abstract", slot.Abstract),
		zap.Bool("private", slot.Private))
	return w, nil
}

// Function returns the writer allocated for name.
func (b *Builder) Function(name string) (*FunctionWriter, bool) {
	for _, w := range b.writers {
		if w.slot.Name == name {
			return w, true
		}
	}
	return nil, false
}

// Functions returns the allocated writers in allocation order.
func (b *Builder) Functions() []*FunctionWriter {
	return append([]*FunctionWriter(nil), b.writers...)
}

// EnableAsyncify adds the memory, the state and data globals and the
// helper exports used to drive rewritten functions.
func (b *Builder) EnableAsyncify() asyncify.Globals {
	if !b.asyncify {
		b.asyncify = true
		b.globals = asyncify.Globals{State: 0, Data: 1}
		Logger().Debug("asyncify enabled", zap.Uint32("memory_pages", b.cfg.MemoryPages))
	}
	return b.globals
}

// Asyncify reports whether EnableAsyncify was called, with the globals.
func (b *Builder) Asyncify() (asyncify.Globals, bool) {
	return b.globals, b.asyncify
}

func (b *Builder) claim(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseWrap, "function name is empty")
	}
	if b.byName[name] {
		return errors.New(errors.PhaseWrap, errors.KindConfiguration).
			Function(name).
			Value(name).
			Detail("function %q is already declared", name).
			Build()
	}
	b.byName[name] = true
	return nil
}
