package artifact

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

type localDecl struct {
	name string
	typ  wasm.ValType
}

type lineEntry struct {
	label emit.Label
	line  int
}

// FunctionWriter records the events of one output. Header events become
// custom section entries; content events become the function body.
type FunctionWriter struct {
	labels      map[uint32]int
	locals      map[uint32]localDecl
	slot        codegen.Slot
	params      []string
	attributes  []codegen.Attribute
	annotations []*annotationNode
	body        []wasm.Instruction
	lines       []lineEntry
	ft          wasm.FuncType
	frames      int
	maxStack    int
	maxLocals   int
	open        int
	code        bool
	ended       bool
}

var _ emit.FuncSink = (*FunctionWriter)(nil)

func newFunctionWriter(slot codegen.Slot, ft wasm.FuncType) *FunctionWriter {
	return &FunctionWriter{
		slot:   slot,
		ft:     ft,
		labels: make(map[uint32]int),
		locals: make(map[uint32]localDecl),
	}
}

// Slot returns the slot the writer was allocated for.
func (w *FunctionWriter) Slot() codegen.Slot { return w.slot }

// Name returns the function name.
func (w *FunctionWriter) Name() string { return w.slot.Name }

// Type returns the flattened signature.
func (w *FunctionWriter) Type() wasm.FuncType { return w.ft }

// Ended reports whether End was received.
func (w *FunctionWriter) Ended() bool { return w.ended }

// Body returns the recorded instructions, without the final end.
func (w *FunctionWriter) Body() []wasm.Instruction {
	return append([]wasm.Instruction(nil), w.body...)
}

// MaxStack returns the declared operand stack depth.
func (w *FunctionWriter) MaxStack() int { return w.maxStack }

func (w *FunctionWriter) fail(phase errors.Phase, kind errors.Kind, event, format string, args ...any) error {
	return errors.New(phase, kind).
		Function(w.slot.Name).
		Event(event).
		Detail(format, args...).
		Build()
}

func (w *FunctionWriter) check(event string) error {
	if w.ended {
		return w.fail(errors.PhaseEmit, errors.KindInvalidState, event, "event after End")
	}
	return nil
}

func (w *FunctionWriter) checkContent(event string) error {
	if err := w.check(event); err != nil {
		return err
	}
	if w.slot.Abstract {
		return w.fail(errors.PhaseBody, errors.KindInvalidInput, event, "abstract function has no code")
	}
	if !w.code {
		return w.fail(errors.PhaseBody, errors.KindInvalidState, event, "content before Code")
	}
	return nil
}

func (w *FunctionWriter) Parameter(name string, _ uint32) error {
	if err := w.check("Parameter"); err != nil {
		return err
	}
	if len(w.params) >= len(w.ft.Params) {
		return w.fail(errors.PhaseHeader, errors.KindInvalidInput, "Parameter",
			"parameter %q exceeds the %d core parameters", name, len(w.ft.Params))
	}
	w.params = append(w.params, name)
	return nil
}

func (w *FunctionWriter) annotation(event string, node *annotationNode) (emit.AnnotationSink, error) {
	if err := w.check(event); err != nil {
		return nil, err
	}
	w.annotations = append(w.annotations, node)
	w.open++
	return &annotationWriter{fw: w, elems: &node.elements, path: []string{targetNames[node.target]}}, nil
}

func (w *FunctionWriter) Annotation(desc string, visible bool) (emit.AnnotationSink, error) {
	return w.annotation("Annotation", &annotationNode{target: targetFunction, desc: desc, visible: visible})
}

func (w *FunctionWriter) ParameterAnnotation(param int, desc string, visible bool) (emit.AnnotationSink, error) {
	if param < 0 || param >= len(w.ft.Params) {
		return nil, w.fail(errors.PhaseHeader, errors.KindInvalidInput, "ParameterAnnotation",
			"parameter %d out of range", param)
	}
	return w.annotation("ParameterAnnotation", &annotationNode{
		target: targetParameter, index: uint32(param), desc: desc, visible: visible,
	})
}

func (w *FunctionWriter) TypeAnnotation(ref emit.TypeRef, path emit.TypePath, desc string, visible bool) (emit.AnnotationSink, error) {
	return w.annotation("TypeAnnotation", &annotationNode{
		target: targetType, index: uint32(ref), path: string(path), desc: desc, visible: visible,
	})
}

func (w *FunctionWriter) AnnotationDefault() (emit.AnnotationSink, error) {
	return w.annotation("AnnotationDefault", &annotationNode{target: targetDefault, visible: true})
}

func (w *FunctionWriter) Attribute(name string, data []byte) error {
	if err := w.check("Attribute"); err != nil {
		return err
	}
	w.attributes = append(w.attributes, codegen.Attribute{Name: name, Data: append([]byte(nil), data...)})
	return nil
}

func (w *FunctionWriter) Code() error {
	if err := w.check("Code"); err != nil {
		return err
	}
	if w.slot.Abstract {
		return w.fail(errors.PhaseBody, errors.KindInvalidInput, "Code", "abstract function has no code")
	}
	if w.code {
		return w.fail(errors.PhaseBody, errors.KindInvalidState, "Code", "Code received twice")
	}
	w.code = true
	return nil
}

func (w *FunctionWriter) Instr(instr wasm.Instruction) error {
	if err := w.checkContent("Instr"); err != nil {
		return err
	}
	w.body = append(w.body, instr)
	return nil
}

func (w *FunctionWriter) InstrAnnotation(ref emit.TypeRef, path emit.TypePath, desc string, visible bool) (emit.AnnotationSink, error) {
	return w.annotation("InstrAnnotation", &annotationNode{
		target: targetInstr, index: uint32(len(w.body)), path: fmt.Sprintf("%d:%s", ref, path), desc: desc, visible: visible,
	})
}

func (w *FunctionWriter) Label(l emit.Label) error {
	if err := w.checkContent("Label"); err != nil {
		return err
	}
	if _, ok := w.labels[l.ID]; ok {
		return w.fail(errors.PhaseBody, errors.KindInvalidInput, "Label", "label L%d placed twice", l.ID)
	}
	w.labels[l.ID] = len(w.body)
	return nil
}

func (w *FunctionWriter) LineNumber(line int, at emit.Label) error {
	if err := w.checkContent("LineNumber"); err != nil {
		return err
	}
	w.lines = append(w.lines, lineEntry{label: at, line: line})
	return nil
}

// Frame is accepted and dropped; wasm has no stack map frames.
func (w *FunctionWriter) Frame(emit.Frame) error {
	if err := w.checkContent("Frame"); err != nil {
		return err
	}
	w.frames++
	return nil
}

func (w *FunctionWriter) LocalVariable(v emit.LocalVar) error {
	if err := w.checkContent("LocalVariable"); err != nil {
		return err
	}
	if int(v.Index) < len(w.ft.Params) {
		return w.fail(errors.PhaseBody, errors.KindInvalidInput, "LocalVariable",
			"local %q index %d overlaps the parameters", v.Name, v.Index)
	}
	if v.Type.IsRef() || v.Type.Size() == 0 {
		return w.fail(errors.PhaseBody, errors.KindUnsupported, "LocalVariable",
			"local %q has unsupported type %s", v.Name, v.Type)
	}
	if prev, ok := w.locals[v.Index]; ok && prev.typ != v.Type {
		return w.fail(errors.PhaseBody, errors.KindInvalidInput, "LocalVariable",
			"local %d declared as %s and %s", v.Index, prev.typ, v.Type)
	}
	w.locals[v.Index] = localDecl{name: v.Name, typ: v.Type}
	return nil
}

func (w *FunctionWriter) LocalVariableAnnotation(ref emit.TypeRef, path emit.TypePath, ranges []emit.LocalRange, desc string, visible bool) (emit.AnnotationSink, error) {
	index := uint32(0)
	if len(ranges) > 0 {
		index = ranges[0].Index
	}
	return w.annotation("LocalVariableAnnotation", &annotationNode{
		target: targetLocal, index: index, path: fmt.Sprintf("%d:%s", ref, path), desc: desc, visible: visible,
	})
}

// TryCatchRange is rejected: the module is emitted without exception handling.
func (w *FunctionWriter) TryCatchRange(tc emit.TryCatch) error {
	if err := w.checkContent("TryCatchRange"); err != nil {
		return err
	}
	return w.fail(errors.PhaseBody, errors.KindUnsupported, "TryCatchRange",
		"protected range L%d-L%d needs exception handling", tc.Start.ID, tc.End.ID)
}

func (w *FunctionWriter) TryCatchAnnotation(ref emit.TypeRef, path emit.TypePath, desc string, visible bool) (emit.AnnotationSink, error) {
	return w.annotation("TryCatchAnnotation", &annotationNode{
		target: targetTryCatch, index: uint32(ref), path: string(path), desc: desc, visible: visible,
	})
}

func (w *FunctionWriter) MaxStackAndLocals(maxStack, maxLocals int) error {
	if err := w.checkContent("MaxStackAndLocals"); err != nil {
		return err
	}
	w.maxStack, w.maxLocals = maxStack, maxLocals
	return nil
}

// End seals the writer. Every annotation opened from it must be ended.
func (w *FunctionWriter) End() error {
	if err := w.check("End"); err != nil {
		return err
	}
	if w.open > 0 {
		return w.fail(errors.PhaseFinalize, errors.KindInvalidState, "End", "%d annotation(s) not ended", w.open)
	}
	if !w.slot.Abstract && !w.code {
		return w.fail(errors.PhaseFinalize, errors.KindInvalidInput, "End", "concrete function has no code")
	}
	if w.frames > 0 {
		Logger().Debug("frames dropped", zap.String("function", w.slot.Name), zap.Int("frames", w.frames))
	}
	w.ended = true
	return nil
}

// localTypes returns the body locals in index order. Indices must be dense
// after the parameters.
func (w *FunctionWriter) localTypes() ([]wasm.ValType, error) {
	types := make([]wasm.ValType, len(w.locals))
	base := uint32(len(w.ft.Params))
	for idx, decl := range w.locals {
		pos := idx - base
		if int(pos) >= len(types) {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Function(w.slot.Name).
				Value(idx).
				Detail("local indices are not dense: %d with %d locals", idx, len(types)).
				Build()
		}
		types[pos] = decl.typ
	}
	if w.maxLocals > 0 && w.maxLocals < int(base)+len(types) {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Function(w.slot.Name).
			Detail("max locals %d below the %d declared", w.maxLocals, int(base)+len(types)).
			Build()
	}
	return types, nil
}

// localNames maps parameter and local indices to their names.
func (w *FunctionWriter) localNames() wasm.NameMap {
	names := make(wasm.NameMap)
	for i, p := range w.params {
		if p != "" {
			names[uint32(i)] = p
		}
	}
	for idx, decl := range w.locals {
		if decl.name != "" {
			names[idx] = decl.name
		}
	}
	return names
}
