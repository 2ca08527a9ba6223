// Package primitives implements the leaf binary encodings that every packet
// is built from: fixed-width little-endian integers, NUL-terminated
// strings, length-prefixed arrays, and fixed-size blobs.
//
// The shape mirrors a conventional hand-rolled binary codec (see mini-rpc's
// codec/binary_codec.go for the manual-offset style this generalizes): a
// Writer appends fields to a growing buffer, a Reader consumes a cursor
// across an immutable byte slice and reports xerrors.ErrIncompleteData when
// it runs short, leaving the reader's position untouched so the caller can
// retry once more bytes arrive.
package primitives

import (
	"bytes"
	"encoding/binary"

	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// Writer accumulates a packet's wire encoding.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns everything written so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) WriteUint8(v uint8)   { w.buf.WriteByte(v) }
func (w *Writer) WriteInt8(v int8)     { w.buf.WriteByte(byte(v)) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

// WriteCString writes v followed by a single NUL byte. It returns an error
// if v itself contains a NUL, since that would make the terminator
// ambiguous on the wire.
func (w *Writer) WriteCString(v []byte) error {
	if bytes.IndexByte(v, 0) != -1 {
		return errCStringHasNul
	}
	w.buf.Write(v)
	w.buf.WriteByte(0)
	return nil
}

// WriteFixed writes exactly len(v) bytes with no length prefix. The caller
// is responsible for knowing the expected size on both ends.
func (w *Writer) WriteFixed(v []byte) { w.buf.Write(v) }

// WriteArray writes a uint16 element count followed by each element,
// encoded in turn by enc. This is the generic analogue of spec §3's
// array(T): T is whatever enc knows how to write.
func WriteArray[T any](w *Writer, items []T, enc func(*Writer, T)) {
	w.WriteUint16(uint16(len(items)))
	for _, item := range items {
		enc(w, item)
	}
}

// Reader consumes a byte slice field by field.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps data for sequential field reads starting at offset 0.
func NewReader(data []byte) *Reader { return &Reader{data: data} }

// Consumed returns how many bytes have been read so far.
func (r *Reader) Consumed() int { return r.off }

// Remaining returns the bytes not yet consumed.
func (r *Reader) Remaining() []byte { return r.data[r.off:] }

func (r *Reader) need(n int) ([]byte, error) {
	if len(r.data)-r.off < n {
		return nil, xerrors.ErrIncompleteData
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.need(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadCString reads bytes up to (not including) the first NUL, consuming
// the NUL as well. It reports ErrIncompleteData if no NUL appears in the
// remaining buffer yet.
func (r *Reader) ReadCString() ([]byte, error) {
	idx := bytes.IndexByte(r.data[r.off:], 0)
	if idx == -1 {
		return nil, xerrors.ErrIncompleteData
	}
	out := make([]byte, idx)
	copy(out, r.data[r.off:r.off+idx])
	r.off += idx + 1
	return out, nil
}

// ReadFixed reads exactly n bytes with no length prefix.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.need(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadArray reads a uint16 count followed by that many elements, each
// decoded by dec.
func ReadArray[T any](r *Reader, dec func(*Reader) (T, error)) ([]T, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, count)
	for i := uint16(0); i < count; i++ {
		item, err := dec(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

var errCStringHasNul = cstringNulError{}

type cstringNulError struct{}

func (cstringNulError) Error() string { return "cstring payload contains a NUL byte" }
