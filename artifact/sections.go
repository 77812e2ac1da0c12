package artifact

import (
	"fmt"
	"sort"

	"github.com/wippyai/wasm-dualgen/wasm"
)

// Value tags inside an annotation element.
const (
	valueString byte = 's'
	valueInt    byte = 'i'
	valueUint   byte = 'u'
	valueFloat  byte = 'f'
	valueBool   byte = 'z'
	valueBytes  byte = 'b'
)

// annotationsSection encodes
//
//	vec(func_idx u32, target byte, index u32, path name, desc name,
//	    visible byte, elements)
//	elements := vec(name, tag byte, payload)
func annotationsSection(funcs []indexedWriter) []byte {
	var entries []struct {
		idx  uint32
		node *annotationNode
	}
	for _, f := range funcs {
		for _, node := range f.w.annotations {
			entries = append(entries, struct {
				idx  uint32
				node *annotationNode
			}{f.idx, node})
		}
	}
	if len(entries) == 0 {
		return nil
	}

	p := wasm.NewPayload().U32(uint32(len(entries)))
	for _, e := range entries {
		p.U32(e.idx).
			Byte(e.node.target).
			U32(e.node.index).
			Name(e.node.path).
			Name(e.node.desc)
		if e.node.visible {
			p.Byte(1)
		} else {
			p.Byte(0)
		}
		writeElements(p, e.node.elements)
	}
	return p.Data()
}

func writeElements(p *wasm.Payload, elems []*element) {
	p.U32(uint32(len(elems)))
	for _, el := range elems {
		p.Name(el.name).Byte(el.tag)
		switch el.tag {
		case elemValue:
			writeValue(p, el.value)
		case elemEnum:
			p.Name(el.enumDesc).Name(el.enumValue)
		case elemAnnotation:
			p.Name(el.nested.desc)
			writeElements(p, el.nested.elements)
		case elemArray:
			writeElements(p, el.array)
		}
	}
}

func writeValue(p *wasm.Payload, v any) {
	switch x := v.(type) {
	case string:
		p.Byte(valueString).Name(x)
	case bool:
		p.Byte(valueBool)
		if x {
			p.Byte(1)
		} else {
			p.Byte(0)
		}
	case int:
		p.Byte(valueInt).S64(int64(x))
	case int8:
		p.Byte(valueInt).S64(int64(x))
	case int16:
		p.Byte(valueInt).S64(int64(x))
	case int32:
		p.Byte(valueInt).S64(int64(x))
	case int64:
		p.Byte(valueInt).S64(x)
	case uint8:
		p.Byte(valueUint).U32(uint32(x))
	case uint16:
		p.Byte(valueUint).U32(uint32(x))
	case uint32:
		p.Byte(valueUint).U32(x)
	case float32:
		p.Byte(valueFloat).F64(float64(x))
	case float64:
		p.Byte(valueFloat).F64(x)
	case []byte:
		p.Byte(valueBytes).Bytes(x)
	default:
		p.Byte(valueString).Name(fmt.Sprint(x))
	}
}

// attributesSection encodes vec(func_idx u32, name, bytes).
func attributesSection(funcs []indexedWriter) []byte {
	count := 0
	for _, f := range funcs {
		count += len(f.w.attributes)
	}
	if count == 0 {
		return nil
	}
	p := wasm.NewPayload().U32(uint32(count))
	for _, f := range funcs {
		for _, a := range f.w.attributes {
			p.U32(f.idx).Name(a.Name).Bytes(a.Data)
		}
	}
	return p.Data()
}

// linesSection encodes vec(func_idx u32, vec(instr u32, line u32)), where
// instr is the instruction position in the body as generated.
func linesSection(funcs []indexedWriter) []byte {
	var with []indexedWriter
	for _, f := range funcs {
		if len(f.w.lines) > 0 {
			with = append(with, f)
		}
	}
	if len(with) == 0 {
		return nil
	}
	p := wasm.NewPayload().U32(uint32(len(with)))
	for _, f := range with {
		type entry struct{ at, line uint32 }
		entries := make([]entry, 0, len(f.w.lines))
		for _, l := range f.w.lines {
			at, ok := f.w.labels[l.label.ID]
			if !ok {
				continue
			}
			entries = append(entries, entry{uint32(at), uint32(l.line)})
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].at < entries[j].at })
		p.U32(f.idx).U32(uint32(len(entries)))
		for _, e := range entries {
			p.U32(e.at).U32(e.line)
		}
	}
	return p.Data()
}

// syntheticSection encodes vec(func_idx u32).
func syntheticSection(funcs []indexedWriter) []byte {
	var idx []uint32
	for _, f := range funcs {
		if f.w.slot.Synthetic {
			idx = append(idx, f.idx)
		}
	}
	if len(idx) == 0 {
		return nil
	}
	p := wasm.NewPayload().U32(uint32(len(idx)))
	for _, i := range idx {
		p.U32(i)
	}
	return p.Data()
}
