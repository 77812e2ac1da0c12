package wasm

import (
	"sort"

	"github.com/wippyai/wasm-dualgen/wasm/internal/binary"
)

// NameMap associates indices with names in the name section.
type NameMap map[uint32]string

// Names holds the contents of the "name" custom section.
type Names struct {
	Funcs  NameMap
	Locals map[uint32]NameMap // function index -> local names
	Module string
}

// Encode renders the name section payload. Subsections are written in id
// order and maps are sorted by index.
func (n *Names) Encode() []byte {
	w := binary.NewWriter()

	if n.Module != "" {
		sub := binary.NewWriter()
		sub.WriteName(n.Module)
		w.Section(NameSubsectionModule, sub.Bytes())
	}

	if len(n.Funcs) > 0 {
		sub := binary.NewWriter()
		writeNameMap(sub, n.Funcs)
		w.Section(NameSubsectionFunction, sub.Bytes())
	}

	if len(n.Locals) > 0 {
		sub := binary.NewWriter()
		funcs := sortedKeys(n.Locals)
		sub.WriteU32(uint32(len(funcs)))
		for _, idx := range funcs {
			sub.WriteU32(idx)
			writeNameMap(sub, n.Locals[idx])
		}
		w.Section(NameSubsectionLocal, sub.Bytes())
	}

	return w.Bytes()
}

// Section returns the name section as a custom section.
func (n *Names) Section() CustomSection {
	return CustomSection{Name: "name", Data: n.Encode()}
}

func writeNameMap(w *binary.Writer, m NameMap) {
	keys := sortedKeys(m)
	w.WriteU32(uint32(len(keys)))
	for _, k := range keys {
		w.WriteU32(k)
		w.WriteName(m[k])
	}
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
