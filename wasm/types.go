package wasm

import "strings"

// Module is a WebAssembly core module under construction.
type Module struct {
	Types          []FuncType
	Imports        []Import
	Funcs          []uint32 // Type indices for defined functions
	Memories       []MemoryType
	Globals        []Global
	Exports        []Export
	Code           []FuncBody
	CustomSections []CustomSection
}

// FuncType represents a WebAssembly function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether both signatures have identical params and results.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

func (ft FuncType) String() string {
	var b strings.Builder
	b.WriteString("(func")
	if len(ft.Params) > 0 {
		b.WriteString(" (param")
		for _, p := range ft.Params {
			b.WriteByte(' ')
			b.WriteString(p.String())
		}
		b.WriteByte(')')
	}
	if len(ft.Results) > 0 {
		b.WriteString(" (result")
		for _, r := range ft.Results {
			b.WriteByte(' ')
			b.WriteString(r.String())
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Size returns the byte size of a numeric value type in linear memory,
// or 0 for types that cannot be stored there.
func (v ValType) Size() uint32 {
	switch v {
	case ValI32, ValF32:
		return 4
	case ValI64, ValF64:
		return 8
	case ValV128:
		return 16
	default:
		return 0
	}
}

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool {
	return v == ValFuncRef || v == ValExtern
}

// Import represents an imported function, memory or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindMemory or KindGlobal.
type ImportDesc struct {
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for memories.
type Limits struct {
	Max *uint64
	Min uint64
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Type GlobalType
	Init []byte // Raw init expression bytes
}

// Export represents an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody represents a function body in the code section.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including end opcode
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// CustomSection represents a named custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			count++
		}
	}
	return count
}

// NumImportedGlobals returns the number of imported globals
func (m *Module) NumImportedGlobals() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			count++
		}
	}
	return count
}

// GetFuncType returns the signature of the function at funcIdx in the
// function index space, or nil if out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	numImported := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if numImported == funcIdx {
			return m.typeAt(imp.Desc.TypeIdx)
		}
		numImported++
	}
	local := funcIdx - numImported
	if int(local) >= len(m.Funcs) {
		return nil
	}
	return m.typeAt(m.Funcs[local])
}

func (m *Module) typeAt(idx uint32) *FuncType {
	if int(idx) >= len(m.Types) {
		return nil
	}
	return &m.Types[idx]
}

// EnsureType returns the index of ft in the type section, appending it if absent.
func (m *Module) EnsureType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// CompressLocals groups consecutive locals of the same type into entries.
func CompressLocals(types []ValType) []LocalEntry {
	var entries []LocalEntry
	for _, vt := range types {
		if n := len(entries); n > 0 && entries[n-1].ValType == vt {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, LocalEntry{Count: 1, ValType: vt})
	}
	return entries
}
