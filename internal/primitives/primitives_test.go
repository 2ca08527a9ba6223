package primitives

import (
	"bytes"
	"testing"

	"github.com/Def-Try/hyphen0/internal/xerrors"
)

func TestFixedWidthRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(0xAB)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteInt8(-5)
	w.WriteInt16(-1000)
	w.WriteInt32(-70000)
	w.WriteBool(true)
	w.WriteBool(false)

	r := NewReader(w.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 0xAB {
		t.Fatalf("uint8: got %v, %v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x1234 {
		t.Fatalf("uint16: got %v, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("uint32: got %v, %v", v, err)
	}
	if v, err := r.ReadInt8(); err != nil || v != -5 {
		t.Fatalf("int8: got %v, %v", v, err)
	}
	if v, err := r.ReadInt16(); err != nil || v != -1000 {
		t.Fatalf("int16: got %v, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -70000 {
		t.Fatalf("int32: got %v, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != true {
		t.Fatalf("bool: got %v, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != false {
		t.Fatalf("bool: got %v, %v", v, err)
	}
}

func TestLittleEndian(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(1)
	if !bytes.Equal(w.Bytes(), []byte{1, 0, 0, 0}) {
		t.Fatalf("expected little-endian layout, got %v", w.Bytes())
	}
}

func TestCStringRoundTrip(t *testing.T) {
	w := NewWriter()
	if err := w.WriteCString([]byte("hello")); err != nil {
		t.Fatalf("WriteCString: %v", err)
	}
	w.WriteUint8(0x42) // trailing field must not be swallowed by the terminator

	r := NewReader(w.Bytes())
	got, err := r.ReadCString()
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
	next, err := r.ReadUint8()
	if err != nil || next != 0x42 {
		t.Fatalf("neighboring field leaked into terminator: got %v, %v", next, err)
	}
}

func TestCStringRejectsEmbeddedNul(t *testing.T) {
	w := NewWriter()
	if err := w.WriteCString([]byte("a\x00b")); err == nil {
		t.Fatal("expected error for embedded NUL")
	}
}

func TestCStringIncompleteUntilTerminator(t *testing.T) {
	r := NewReader([]byte("no terminator here"))
	if _, err := r.ReadCString(); err != xerrors.ErrIncompleteData {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestFixedRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7}, 32)
	w := NewWriter()
	w.WriteFixed(payload)
	w.WriteUint8(9)

	r := NewReader(w.Bytes())
	got, err := r.ReadFixed(32)
	if err != nil {
		t.Fatalf("ReadFixed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("fixed payload mismatch")
	}
	if v, err := r.ReadUint8(); err != nil || v != 9 {
		t.Fatalf("trailing field corrupted: %v, %v", v, err)
	}
}

func TestFixedIncomplete(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadFixed(4); err != xerrors.ErrIncompleteData {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	items := []string{"aes", "chacha", "none"}
	w := NewWriter()
	WriteArray(w, items, func(w *Writer, s string) {
		_ = w.WriteCString([]byte(s))
	})
	// a field after the array must not be disturbed by the uint16 count
	w.WriteUint32(777)

	r := NewReader(w.Bytes())
	got, err := ReadArray(r, func(r *Reader) (string, error) {
		b, err := r.ReadCString()
		return string(b), err
	})
	if err != nil {
		t.Fatalf("ReadArray: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(got))
	}
	for i := range items {
		if got[i] != items[i] {
			t.Fatalf("item %d: expected %q, got %q", i, items[i], got[i])
		}
	}
	if v, err := r.ReadUint32(); err != nil || v != 777 {
		t.Fatalf("trailing field after array corrupted: %v, %v", v, err)
	}
}

func TestArrayEmpty(t *testing.T) {
	w := NewWriter()
	WriteArray(w, []string{}, func(w *Writer, s string) { _ = w.WriteCString([]byte(s)) })
	r := NewReader(w.Bytes())
	got, err := ReadArray(r, func(r *Reader) (string, error) {
		b, err := r.ReadCString()
		return string(b), err
	})
	if err != nil {
		t.Fatalf("ReadArray: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty array, got %v", got)
	}
}

func TestArrayIncompleteMidway(t *testing.T) {
	w := NewWriter()
	WriteArray(w, []string{"first", "second"}, func(w *Writer, s string) { _ = w.WriteCString([]byte(s)) })
	truncated := w.Bytes()[:len(w.Bytes())-3]

	r := NewReader(truncated)
	_, err := ReadArray(r, func(r *Reader) (string, error) {
		b, err := r.ReadCString()
		return string(b), err
	})
	if err != xerrors.ErrIncompleteData {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}
