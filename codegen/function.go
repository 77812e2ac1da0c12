package codegen

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/emit"
	"github.com/wippyai/wasm-dualgen/errors"
)

// BodyStrategy drives the outputs of one function: Wrap, then Generate,
// then Finish.
type BodyStrategy interface {
	Wrap(out emit.FuncSink, meta *FunctionMeta) (emit.FuncSink, error)
	Generate(ctx *Context, sig Signature) error
	Finish() error
}

// PlainStrategy generates a single output with one Strategy, Default when
// unset.
type PlainStrategy struct {
	Strategy Strategy
	sink     emit.FuncSink
	meta     *FunctionMeta
}

func (p *PlainStrategy) strategy() Strategy {
	if p.Strategy == nil {
		return Default{}
	}
	return p.Strategy
}

func (p *PlainStrategy) Wrap(out emit.FuncSink, meta *FunctionMeta) (emit.FuncSink, error) {
	if p.sink != nil {
		return nil, errors.InvalidState(errors.PhaseWrap, meta.Name, "Wrap called twice")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	sink, err := p.strategy().PrepareSink(out, meta.PrimarySlot())
	if err != nil {
		return nil, err
	}
	p.sink, p.meta = sink, meta
	return sink, nil
}

func (p *PlainStrategy) Generate(ctx *Context, sig Signature) error {
	if p.sink == nil {
		return errors.InvalidState(errors.PhaseBody, ctx.Function, "Generate called before Wrap")
	}
	return p.strategy().GenerateBody(ctx, p.sink, sig)
}

func (p *PlainStrategy) Finish() error {
	if p.sink == nil {
		return errors.InvalidState(errors.PhaseFinalize, "", "Finish called before Wrap")
	}
	if err := p.sink.End(); err != nil {
		return err
	}
	Logger().Debug("finished function", zap.String("function", p.meta.Name))
	return nil
}

// FunctionCodegen generates functions into outputs from an Allocator.
type FunctionCodegen struct {
	allocator Allocator
}

// NewFunctionCodegen creates a generator allocating primary outputs from alloc.
func NewFunctionCodegen(alloc Allocator) *FunctionCodegen {
	return &FunctionCodegen{allocator: alloc}
}

// Generate allocates the primary output of meta, wraps it with strategy,
// emits the header, then the body, then finishes.
func (g *FunctionCodegen) Generate(ctx *Context, meta *FunctionMeta, strategy BodyStrategy) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	sig, err := meta.Signature()
	if err != nil {
		return err
	}

	out, err := g.allocator.Allocate(meta.PrimarySlot())
	if err != nil {
		return errors.New(errors.PhaseWrap, errors.KindConfiguration).
			Function(meta.Name).
			Detail("allocate primary output").
			Cause(err).
			Build()
	}

	sink, err := strategy.Wrap(out, meta)
	if err != nil {
		return err
	}
	if err := EmitHeader(sink, meta); err != nil {
		return err
	}
	if ctx == nil {
		ctx = NewContext(meta, nil)
	}
	if err := strategy.Generate(ctx, sig); err != nil {
		return err
	}
	if err := strategy.Finish(); err != nil {
		return err
	}

	Logger().Debug("generated function",
		zap.String("function", meta.Name),
		zap.String("descriptor", meta.Descriptor.String()))
	return nil
}

// EmitHeader sends the parameter names, attributes and annotations of meta.
func EmitHeader(sink emit.FuncSink, meta *FunctionMeta) error {
	for _, name := range meta.ParamNames {
		if err := sink.Parameter(name, 0); err != nil {
			return err
		}
	}
	for _, attr := range meta.Attributes {
		if err := sink.Attribute(attr.Name, attr.Data); err != nil {
			return err
		}
	}
	for i := range meta.Annotations {
		a := &meta.Annotations[i]
		var child emit.AnnotationSink
		var err error
		if a.Param >= 0 {
			child, err = sink.ParameterAnnotation(a.Param, a.Desc, a.Visible)
		} else {
			child, err = sink.Annotation(a.Desc, a.Visible)
		}
		if err != nil {
			return err
		}
		if err := emitElements(child, a.Elements); err != nil {
			return err
		}
	}
	return nil
}

// emitElements writes elements into sink and ends it.
func emitElements(sink emit.AnnotationSink, elements []Element) error {
	for _, el := range elements {
		var err error
		switch el.Kind {
		case ElementValue:
			err = sink.Value(el.Name, el.Value)
		case ElementEnum:
			err = sink.Enum(el.Name, el.Enum.Desc, el.Enum.Value)
		case ElementArray:
			var child emit.AnnotationSink
			if child, err = sink.Array(el.Name); err == nil {
				err = emitElements(child, el.Array)
			}
		case ElementAnnotation:
			if el.Nested == nil {
				return errors.InvalidInput(errors.PhaseHeader, "nested annotation "+el.Name+" has no value")
			}
			var child emit.AnnotationSink
			if child, err = sink.Annotation(el.Name, el.Nested.Desc); err == nil {
				err = emitElements(child, el.Nested.Elements)
			}
		}
		if err != nil {
			return err
		}
	}
	return sink.End()
}
