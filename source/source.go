package source

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-dualgen/artifact"
	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/errors"
	"github.com/wippyai/wasm-dualgen/wasm"
)

// File is a declaration document.
type File struct {
	// Module names the generated module in the name section.
	Module string `yaml:"module,omitempty"`

	// ImportModule is the import module of abstract functions. Default "env".
	ImportModule string `yaml:"import_module,omitempty"`

	// SuspendImports marks imports as suspending by pattern: "module.name",
	// "module#name", "module.*", a bare name, or "*".
	SuspendImports []string `yaml:"suspend_imports,omitempty"`

	Imports   []ImportDecl   `yaml:"imports,omitempty"`
	Functions []FunctionDecl `yaml:"functions"`
}

// ImportDecl declares a host function.
type ImportDecl struct {
	Module  string   `yaml:"module"`
	Name    string   `yaml:"name"`
	Params  []string `yaml:"params,omitempty"`
	Result  string   `yaml:"result,omitempty"`
	Suspend bool     `yaml:"suspend,omitempty"`
}

// FunctionDecl declares one source function. The signature is either a
// descriptor string such as "(u32)->u32" or typed params plus result.
type FunctionDecl struct {
	Name          string           `yaml:"name"`
	Descriptor    string           `yaml:"descriptor,omitempty"`
	Params        []ParamDecl      `yaml:"params,omitempty"`
	Result        string           `yaml:"result,omitempty"`
	Abstract      bool             `yaml:"abstract,omitempty"`
	InlineSuspend bool             `yaml:"inline_suspend,omitempty"`
	Locals        []ParamDecl      `yaml:"locals,omitempty"`
	Body          []StmtDecl       `yaml:"body,omitempty"`
	Return        []string         `yaml:"return,omitempty"`
	Annotations   []AnnotationDecl `yaml:"annotations,omitempty"`
	Attributes    []AttributeDecl  `yaml:"attributes,omitempty"`
}

// ParamDecl names a parameter or local. Parameter types are WIT types,
// local types are core value types.
type ParamDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// StmtDecl is one statement. Line defaults to the line of the entry in the
// declaration file.
type StmtDecl struct {
	Line int      `yaml:"line,omitempty"`
	Code []string `yaml:"code"`
}

// AnnotationDecl is a function annotation, or a parameter annotation when
// Param is set.
type AnnotationDecl struct {
	Param    *int          `yaml:"param,omitempty"`
	Desc     string        `yaml:"desc"`
	Hidden   bool          `yaml:"hidden,omitempty"`
	Elements []ElementDecl `yaml:"elements,omitempty"`
}

// ElementDecl is one annotation element. Exactly one of Value, Enum, Array
// and Annotation is set.
type ElementDecl struct {
	Name       string          `yaml:"name,omitempty"`
	Value      any             `yaml:"value,omitempty"`
	Enum       *EnumDecl       `yaml:"enum,omitempty"`
	Array      []ElementDecl   `yaml:"array,omitempty"`
	Annotation *AnnotationDecl `yaml:"annotation,omitempty"`
}

// EnumDecl references an enum constant.
type EnumDecl struct {
	Desc  string `yaml:"desc"`
	Value string `yaml:"value"`
}

// AttributeDecl is an opaque attribute.
type AttributeDecl struct {
	Name string `yaml:"name"`
	Data string `yaml:"data"`
}

// Function is a loaded function declaration.
type Function struct {
	Meta          codegen.FunctionMeta
	InlineSuspend bool
}

// Program is a loaded declaration file.
type Program struct {
	Module         string
	ImportModule   string
	SuspendImports []string
	Imports        []artifact.HostImport
	Functions      []Function
}

// LoadFile reads declarations from path. Origins refer to path.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "read "+path)
	}
	return parse(data, path)
}

// Load reads declarations from r.
func Load(r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "read declarations")
	}
	return parse(data, "")
}

func parse(data []byte, file string) (*Program, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.ParseFailed("declarations", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.ParseFailed("declarations", err)
	}
	pos := positionsOf(&root)

	p := &Program{
		Module:         f.Module,
		ImportModule:   f.ImportModule,
		SuspendImports: f.SuspendImports,
	}
	for i, d := range f.Imports {
		imp, err := d.hostImport()
		if err != nil {
			return nil, withPath(err, "imports", strconv.Itoa(i))
		}
		p.Imports = append(p.Imports, imp)
	}

	var errs errors.Errors
	for i, d := range f.Functions {
		fn, err := d.function(file, pos.functionLine(i), pos.statementLines(i))
		if err != nil {
			errs.Add(d.Name, err)
			continue
		}
		p.Functions = append(p.Functions, fn)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	Logger().Debug("loaded declarations",
		zap.String("file", file),
		zap.Int("imports", len(p.Imports)),
		zap.Int("functions", len(p.Functions)))
	return p, nil
}

func (d ImportDecl) hostImport() (artifact.HostImport, error) {
	desc := codegen.Descriptor{}
	for _, p := range d.Params {
		t, err := codegen.ParseType(p)
		if err != nil {
			return artifact.HostImport{}, err
		}
		desc.Params = append(desc.Params, t)
	}
	if d.Result != "" {
		t, err := codegen.ParseType(d.Result)
		if err != nil {
			return artifact.HostImport{}, err
		}
		desc.Result = t
	}
	ft, err := desc.FuncType()
	if err != nil {
		return artifact.HostImport{}, err
	}
	if d.Name == "" {
		return artifact.HostImport{}, errors.InvalidInput(errors.PhaseLoad, "import has no name")
	}
	module := d.Module
	if module == "" {
		module = "env"
	}
	return artifact.HostImport{Module: module, Name: d.Name, Type: ft, Suspending: d.Suspend}, nil
}

func (d FunctionDecl) function(file string, line int, stmtLines []int) (Function, error) {
	meta := codegen.FunctionMeta{
		Name:     d.Name,
		Abstract: d.Abstract,
		Origin:   codegen.Origin{File: file, Declaration: d.Name, Line: line},
	}

	desc, names, err := d.signature()
	if err != nil {
		return Function{}, err
	}
	if _, err := desc.FuncType(); err != nil {
		return Function{}, err
	}
	meta.Descriptor, meta.ParamNames = desc, names

	if !d.Abstract {
		body, err := d.body(stmtLines)
		if err != nil {
			return Function{}, err
		}
		meta.Body = body
	} else if len(d.Body) > 0 || len(d.Return) > 0 || len(d.Locals) > 0 {
		return Function{}, errors.Metadata(d.Name, "abstract function declares a body")
	}

	for i, a := range d.Annotations {
		ann, err := a.annotation()
		if err != nil {
			return Function{}, withPath(err, "annotations", strconv.Itoa(i))
		}
		if ann.Param >= len(desc.Params) {
			return Function{}, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Function(d.Name).
				Value(ann.Param).
				Detail("annotation %q targets parameter %d of %d", ann.Desc, ann.Param, len(desc.Params)).
				Build()
		}
		meta.Annotations = append(meta.Annotations, ann)
	}
	for _, a := range d.Attributes {
		meta.Attributes = append(meta.Attributes, codegen.Attribute{Name: a.Name, Data: []byte(a.Data)})
	}

	if err := meta.Validate(); err != nil {
		return Function{}, err
	}
	return Function{Meta: meta, InlineSuspend: d.InlineSuspend}, nil
}

func (d FunctionDecl) signature() (codegen.Descriptor, []string, error) {
	var names []string
	for _, p := range d.Params {
		names = append(names, p.Name)
	}

	if d.Descriptor != "" {
		desc, err := codegen.ParseDescriptor(d.Descriptor)
		if err != nil {
			return codegen.Descriptor{}, nil, err
		}
		if d.Result != "" || len(names) > len(desc.Params) {
			return codegen.Descriptor{}, nil, errors.InvalidInput(errors.PhaseLoad,
				"descriptor conflicts with the declared params or result")
		}
		for _, p := range d.Params {
			if p.Type != "" {
				return codegen.Descriptor{}, nil, errors.InvalidInput(errors.PhaseLoad,
					"parameter "+p.Name+" is typed by both the descriptor and the declaration")
			}
		}
		return desc, names, nil
	}

	var desc codegen.Descriptor
	for _, p := range d.Params {
		t, err := codegen.ParseType(p.Type)
		if err != nil {
			return codegen.Descriptor{}, nil, err
		}
		desc.Params = append(desc.Params, t)
	}
	if d.Result != "" && d.Result != "Unit" {
		t, err := codegen.ParseType(d.Result)
		if err != nil {
			return codegen.Descriptor{}, nil, err
		}
		desc.Result = t
	}
	return desc, names, nil
}

func (d FunctionDecl) body(stmtLines []int) (*codegen.Body, error) {
	body := &codegen.Body{}
	for _, l := range d.Locals {
		t, err := ParseValType(l.Type)
		if err != nil {
			return nil, withPath(err, "locals", l.Name)
		}
		body.Locals = append(body.Locals, codegen.Local{Name: l.Name, Type: t})
	}
	for i, s := range d.Body {
		instrs, err := ParseInstrs(s.Code)
		if err != nil {
			return nil, withPath(err, "body", strconv.Itoa(i))
		}
		line := s.Line
		if line == 0 && i < len(stmtLines) {
			line = stmtLines[i]
		}
		body.Statements = append(body.Statements, codegen.Stmt{Instrs: instrs, Line: line})
	}
	result, err := ParseInstrs(d.Return)
	if err != nil {
		return nil, withPath(err, "return")
	}
	body.Result = result
	return body, nil
}

func (a AnnotationDecl) annotation() (codegen.Annotation, error) {
	ann := codegen.Annotation{Desc: a.Desc, Param: -1, Visible: !a.Hidden}
	if a.Param != nil {
		if *a.Param < 0 {
			return codegen.Annotation{}, errors.InvalidInput(errors.PhaseLoad, "negative parameter index")
		}
		ann.Param = *a.Param
	}
	elems, err := elements(a.Elements)
	if err != nil {
		return codegen.Annotation{}, err
	}
	ann.Elements = elems
	return ann, nil
}

func elements(decls []ElementDecl) ([]codegen.Element, error) {
	var out []codegen.Element
	for i, d := range decls {
		set := 0
		el := codegen.Element{Name: d.Name}
		if d.Value != nil {
			set++
			el.Kind, el.Value = codegen.ElementValue, d.Value
		}
		if d.Enum != nil {
			set++
			el.Kind, el.Enum = codegen.ElementEnum, codegen.EnumValue{Desc: d.Enum.Desc, Value: d.Enum.Value}
		}
		if d.Array != nil {
			set++
			arr, err := elements(d.Array)
			if err != nil {
				return nil, withPath(err, "array")
			}
			el.Kind, el.Array = codegen.ElementArray, arr
		}
		if d.Annotation != nil {
			set++
			nested, err := d.Annotation.annotation()
			if err != nil {
				return nil, withPath(err, "annotation")
			}
			el.Kind, el.Nested = codegen.ElementAnnotation, &nested
		}
		if set != 1 {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Path("element", strconv.Itoa(i)).
				Detail("element %q sets %d of value, enum, array and annotation", d.Name, set).
				Build()
		}
		out = append(out, el)
	}
	return out, nil
}

// Callees returns the core signature of every callable name: imports,
// functions, and the secondary outputs of inline-suspend functions.
func (p *Program) Callees() map[string]wasm.FuncType {
	callees := make(map[string]wasm.FuncType)
	for _, imp := range p.Imports {
		callees[imp.Name] = imp.Type
	}
	for _, fn := range p.Functions {
		ft, err := fn.Meta.Descriptor.FuncType()
		if err != nil {
			continue
		}
		callees[fn.Meta.Name] = ft
		if fn.InlineSuspend && !fn.Meta.Abstract {
			callees[fn.Meta.Name+codegen.SecondarySuffix] = ft
		}
	}
	return callees
}

func withPath(err error, path ...string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append(path, e.Path...)
	}
	return err
}

// positions holds the declaration lines of functions and their statements.
type positions struct {
	functions  []int
	statements [][]int
}

func (p positions) functionLine(i int) int {
	if i < len(p.functions) {
		return p.functions[i]
	}
	return 0
}

func (p positions) statementLines(i int) []int {
	if i < len(p.statements) {
		return p.statements[i]
	}
	return nil
}

func positionsOf(root *yaml.Node) positions {
	var pos positions
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	funcs := mappingValue(doc, "functions")
	if funcs == nil || funcs.Kind != yaml.SequenceNode {
		return pos
	}
	for _, fn := range funcs.Content {
		pos.functions = append(pos.functions, fn.Line)
		var lines []int
		if body := mappingValue(fn, "body"); body != nil && body.Kind == yaml.SequenceNode {
			for _, st := range body.Content {
				lines = append(lines, st.Line)
			}
		}
		pos.statements = append(pos.statements, lines)
	}
	return pos
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
