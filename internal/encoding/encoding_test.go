package encoding

import (
	"errors"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.U8(0xab)
	w.U16(0x1234)
	w.U32(0xdeadbeef)
	w.U64(1 << 40)
	w.I64(-7)
	w.F32(1.5)
	w.F64(-2.25)
	w.Zero(4)
	w.String("hello")
	w.Bytes32([]byte{9, 8, 7})

	r := NewReader(w.Bytes())
	if got := r.U8(); got != 0xab {
		t.Errorf("u8 = %#x", got)
	}
	if got := r.U16(); got != 0x1234 {
		t.Errorf("u16 = %#x", got)
	}
	if got := r.U32(); got != 0xdeadbeef {
		t.Errorf("u32 = %#x", got)
	}
	if got := r.U64(); got != 1<<40 {
		t.Errorf("u64 = %d", got)
	}
	if got := r.I64(); got != -7 {
		t.Errorf("i64 = %d", got)
	}
	if got := r.F32(); got != 1.5 {
		t.Errorf("f32 = %v", got)
	}
	if got := r.F64(); got != -2.25 {
		t.Errorf("f64 = %v", got)
	}
	r.Skip(4)
	if got := r.String(); got != "hello" {
		t.Errorf("string = %q", got)
	}
	b := r.Bytes32()
	if len(b) != 3 || b[0] != 9 {
		t.Errorf("bytes32 = %v", b)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("err = %v", err)
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining = %d", r.Remaining())
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if got := r.U32(); got != 0 {
		t.Errorf("short u32 = %d, want 0", got)
	}
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", r.Err())
	}
	// Every later read stays zero-valued.
	if r.U8() != 0 || r.U64() != 0 || r.String() != "" || r.Bytes32() != nil {
		t.Error("reads after error returned data")
	}
}

func TestReaderStringLengthBeyondBuffer(t *testing.T) {
	w := NewWriter(8)
	w.U32(1000)
	r := NewReader(w.Bytes())
	if got := r.String(); got != "" {
		t.Errorf("string = %q, want empty", got)
	}
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Errorf("err = %v, want ErrShortBuffer", r.Err())
	}
}
