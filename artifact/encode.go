package artifact

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

type indexedWriter struct {
	w   *FunctionWriter
	idx uint32
}

// Encode assembles the module. Every allocated writer must be ended. The
// function index space is host imports, abstract functions, defined
// functions in allocation order, then the asyncify helpers.
func (b *Builder) Encode() ([]byte, error) {
	for _, w := range b.writers {
		if !w.ended {
			return nil, errors.InvalidState(errors.PhaseEncode, w.slot.Name, "function was not ended")
		}
	}

	m := &wasm.Module{}
	index := make(map[string]uint32)
	names := wasm.Names{Funcs: make(wasm.NameMap), Locals: make(map[uint32]wasm.NameMap), Module: b.cfg.ModuleName}

	next := uint32(0)
	for _, imp := range b.imports {
		m.Imports = append(m.Imports, wasm.Import{
			Module: imp.Module,
			Name:   imp.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: m.EnsureType(imp.Type)},
		})
		index[imp.Name] = next
		names.Funcs[next] = imp.Name
		next++
	}

	var indexed []indexedWriter
	for _, w := range b.writers {
		if !w.slot.Abstract {
			continue
		}
		m.Imports = append(m.Imports, wasm.Import{
			Module: b.cfg.ImportModule,
			Name:   w.slot.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: m.EnsureType(w.ft)},
		})
		index[w.slot.Name] = next
		indexed = append(indexed, indexedWriter{w: w, idx: next})
		next++
	}

	var defined []indexedWriter
	for _, w := range b.writers {
		if w.slot.Abstract {
			continue
		}
		index[w.slot.Name] = next
		defined = append(defined, indexedWriter{w: w, idx: next})
		next++
	}
	indexed = append(indexed, defined...)

	var helpers []asyncify.Helper
	if b.asyncify {
		helpers = asyncify.Helpers(b.globals)
		for _, h := range helpers {
			if _, taken := index[h.Name]; taken {
				return nil, errors.New(errors.PhaseEncode, errors.KindConfiguration).
					Function(h.Name).
					Detail("function name collides with an asyncify helper").
					Build()
			}
			index[h.Name] = next
			next++
		}
	}

	for _, f := range indexed {
		names.Funcs[f.idx] = f.w.slot.Name
		if locals := f.w.localNames(); len(locals) > 0 {
			names.Locals[f.idx] = locals
		}
	}

	for _, f := range defined {
		body, err := f.w.encodeBody(index)
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, m.EnsureType(f.w.ft))
		m.Code = append(m.Code, body)
		if !f.w.slot.Private {
			m.Exports = append(m.Exports, wasm.Export{Name: f.w.slot.Name, Kind: wasm.KindFunc, Idx: f.idx})
		}
	}

	if b.asyncify {
		if err := b.addAsyncify(m, helpers, index, names.Funcs); err != nil {
			return nil, err
		}
	}

	if len(names.Funcs) > 0 || names.Module != "" {
		m.CustomSections = append(m.CustomSections, names.Section())
	}
	for _, s := range []struct {
		name string
		data []byte
	}{
		{SectionAnnotations, annotationsSection(indexed)},
		{SectionAttributes, attributesSection(indexed)},
		{SectionLines, linesSection(indexed)},
		{SectionSynthetic, syntheticSection(indexed)},
	} {
		if s.data != nil {
			m.CustomSections = append(m.CustomSections, wasm.CustomSection{Name: s.name, Data: s.data})
		}
	}

	out := m.Encode()
	Logger().Debug("encoded module",
		zap.Int("imports", len(m.Imports)),
		zap.Int("functions", len(m.Funcs)),
		zap.Int("exports", len(m.Exports)),
		zap.Int("bytes", len(out)))
	return out, nil
}

func (b *Builder) addAsyncify(m *wasm.Module, helpers []asyncify.Helper, index map[string]uint32, funcNames wasm.NameMap) error {
	m.Memories = append(m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: uint64(b.cfg.MemoryPages)}})
	m.Exports = append(m.Exports, wasm.Export{Name: MemoryExport, Kind: wasm.KindMemory, Idx: 0})

	zero, err := wasm.ConstExpr(wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}})
	if err != nil {
		return err
	}
	// state, then data
	for i := 0; i < 2; i++ {
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
			Init: zero,
		})
	}

	for _, h := range helpers {
		code, err := wasm.EncodeInstructions(append(append([]wasm.Instruction(nil), h.Body...), wasm.Instruction{Opcode: wasm.OpEnd}))
		if err != nil {
			return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode "+h.Name)
		}
		idx := index[h.Name]
		m.Funcs = append(m.Funcs, m.EnsureType(h.Type))
		m.Code = append(m.Code, wasm.FuncBody{Code: code})
		m.Exports = append(m.Exports, wasm.Export{Name: h.Name, Kind: wasm.KindFunc, Idx: idx})
		funcNames[idx] = h.Name
	}
	return nil
}

// encodeBody resolves symbolic calls and encodes the body with its locals.
func (w *FunctionWriter) encodeBody(index map[string]uint32) (wasm.FuncBody, error) {
	for _, l := range w.lines {
		if _, ok := w.labels[l.label.ID]; !ok {
			return wasm.FuncBody{}, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Function(w.slot.Name).
				Value(l.label.ID).
				Detail("line %d refers to label L%d which was never placed", l.line, l.label.ID).
				Build()
		}
	}

	locals, err := w.localTypes()
	if err != nil {
		return wasm.FuncBody{}, err
	}

	instrs := make([]wasm.Instruction, 0, len(w.body)+1)
	for _, instr := range w.body {
		if name, ok := instr.CallName(); ok {
			idx, found := index[name]
			if !found {
				return wasm.FuncBody{}, errors.New(errors.PhaseEncode, errors.KindNotFound).
					Function(w.slot.Name).
					Value(name).
					Detail("call target %q is not declared", name).
					Build()
			}
			instr = wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: idx}}
		}
		instrs = append(instrs, instr)
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})

	code, err := wasm.EncodeInstructions(instrs)
	if err != nil {
		return wasm.FuncBody{}, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Function(w.slot.Name).
			Detail("encode body").
			Cause(err).
			Build()
	}
	return wasm.FuncBody{Locals: wasm.CompressLocals(locals), Code: code}, nil
}
