package wasm

import "github.com/wippyai/wasm-dualgen/wasm/internal/binary"

// Payload builds custom section contents with the module's LEB128 and name
// encodings.
type Payload struct {
	w *binary.Writer
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{w: binary.NewWriter()}
}

// U32 appends v as unsigned LEB128.
func (p *Payload) U32(v uint32) *Payload {
	p.w.WriteU32(v)
	return p
}

// S64 appends v as signed LEB128.
func (p *Payload) S64(v int64) *Payload {
	p.w.WriteS64(v)
	return p
}

// F64 appends v as little-endian IEEE 754.
func (p *Payload) F64(v float64) *Payload {
	p.w.WriteF64(v)
	return p
}

// Byte appends b.
func (p *Payload) Byte(b byte) *Payload {
	p.w.Byte(b)
	return p
}

// Name appends a length-prefixed UTF-8 string.
func (p *Payload) Name(s string) *Payload {
	p.w.WriteName(s)
	return p
}

// Bytes appends a length-prefixed byte vector.
func (p *Payload) Bytes(data []byte) *Payload {
	p.w.WriteU32(uint32(len(data)))
	p.w.WriteBytes(data)
	return p
}

// Len returns the number of bytes written.
func (p *Payload) Len() int { return p.w.Len() }

// Data returns the encoded payload.
func (p *Payload) Data() []byte { return p.w.Bytes() }
