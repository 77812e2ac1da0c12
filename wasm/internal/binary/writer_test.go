package binary

import (
	"bytes"
	"testing"
)

func TestWriterU32(t *testing.T) {
	tests := []struct {
		want []byte
		v    uint32
	}{
		{v: 0, want: []byte{0x00}},
		{v: 1, want: []byte{0x01}},
		{v: 127, want: []byte{0x7f}},
		{v: 128, want: []byte{0x80, 0x01}},
		{v: 624485, want: []byte{0xe5, 0x8e, 0x26}},
		{v: 0xFFFFFFFF, want: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteU32(tt.v)
		if !bytes.Equal(w.Bytes(), tt.want) {
			t.Errorf("WriteU32(%d) = %x, want %x", tt.v, w.Bytes(), tt.want)
		}
	}
}

func TestWriterS32(t *testing.T) {
	tests := []struct {
		want []byte
		v    int32
	}{
		{v: 0, want: []byte{0x00}},
		{v: 2, want: []byte{0x02}},
		{v: -1, want: []byte{0x7f}},
		{v: 63, want: []byte{0x3f}},
		{v: 64, want: []byte{0xc0, 0x00}},
		{v: -64, want: []byte{0x40}},
		{v: -65, want: []byte{0xbf, 0x7f}},
		{v: -123456, want: []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteS32(tt.v)
		if !bytes.Equal(w.Bytes(), tt.want) {
			t.Errorf("WriteS32(%d) = %x, want %x", tt.v, w.Bytes(), tt.want)
		}
	}
}

func TestWriterName(t *testing.T) {
	w := NewWriter()
	w.WriteName("f$$forInline")
	got := w.Bytes()
	if got[0] != 12 {
		t.Fatalf("length prefix = %d, want 12", got[0])
	}
	if string(got[1:]) != "f$$forInline" {
		t.Errorf("name = %q", got[1:])
	}
}

func TestWriterSection(t *testing.T) {
	w := NewWriter()
	w.Section(7, []byte{0xaa, 0xbb})
	if !bytes.Equal(w.Bytes(), []byte{7, 2, 0xaa, 0xbb}) {
		t.Errorf("Section = %x", w.Bytes())
	}
}

func TestWriterFloats(t *testing.T) {
	w := NewWriter()
	w.WriteF32(1.0)
	w.WriteF64(1.0)
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("floats = %x, want %x", w.Bytes(), want)
	}
}
