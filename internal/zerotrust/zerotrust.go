// Package zerotrust implements the pluggable obfuscation layer that can
// wrap a connection's byte stream in innocuous-looking envelopes. It has no
// direct analogue in mini-rpc (a plain binary-over-TCP protocol with no
// obfuscation concerns); the buffering discipline is grounded on mini-rpc's
// protocol package length-prefix contract, generalized from "one fixed
// header shape" to "a pluggable wrap/unwrap envelope", and the wire
// semantics themselves follow the original Python reference's
// zerotrust/_layer.py and zerotrust/layers/http.py.
package zerotrust

import (
	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// DefaultChunkSize is the default amount of plaintext bundled into a single
// wrapped envelope.
const DefaultChunkSize = 1024

// Layer is a pluggable obfuscation codec. Wrap takes a plaintext chunk and
// returns an envelope that looks like something else on the wire. Unwrap
// takes a buffer that may hold zero, one, or a fragment of one envelope and
// returns how many bytes the first complete envelope consumed plus its
// payload; it must return xerrors.ErrIncompleteData (not panic) when the
// buffer doesn't yet hold a full envelope.
type Layer interface {
	Wrap(data []byte) []byte
	Unwrap(data []byte) (consumed int, payload []byte, err error)
}

// Identity is the default "none" layer: envelopes are just the payload
// itself, unchanged.
type Identity struct{}

func (Identity) Wrap(data []byte) []byte { return data }

func (Identity) Unwrap(data []byte) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, xerrors.ErrIncompleteData
	}
	return len(data), data, nil
}

// Buffers holds the three internal buffers spec.md's ZTLayer contract
// describes: recvBuf accumulates raw (still-wrapped) bytes off the wire;
// unwrappedRecvBuf holds unwrapped payload left over after an unwrap
// produced more than the caller's requested PullRecv size; sendBuf holds
// plaintext waiting to be chunked and wrapped.
type Buffers struct {
	layer            Layer
	chunkSize        int
	recvBuf          []byte
	unwrappedRecvBuf []byte
	sendBuf          []byte
}

// New wraps layer with the push/pull buffering contract, chunking outbound
// plaintext at chunkSize bytes per envelope (0 selects DefaultChunkSize).
func New(layer Layer, chunkSize int) *Buffers {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Buffers{layer: layer, chunkSize: chunkSize}
}

// PushSend appends plaintext to the outbound buffer.
func (b *Buffers) PushSend(data []byte) { b.sendBuf = append(b.sendBuf, data...) }

// CanPullSend reports whether there is plaintext waiting to be wrapped.
func (b *Buffers) CanPullSend() bool { return len(b.sendBuf) > 0 }

// PullSend takes up to chunkSize bytes of pending plaintext and returns
// them wrapped into a single envelope, ready to hand to the transport's
// Send.
func (b *Buffers) PullSend() []byte {
	if !b.CanPullSend() {
		return nil
	}
	n := b.chunkSize
	if n > len(b.sendBuf) {
		n = len(b.sendBuf)
	}
	chunk := b.sendBuf[:n]
	b.sendBuf = b.sendBuf[n:]
	return b.layer.Wrap(chunk)
}

// PushRecv appends raw (still-wrapped) bytes received off the wire.
func (b *Buffers) PushRecv(data []byte) { b.recvBuf = append(b.recvBuf, data...) }

// CanPullRecv reports whether there is any unwrapped or still-wrapped data
// available.
func (b *Buffers) CanPullRecv() bool {
	return len(b.unwrappedRecvBuf) > 0 || len(b.recvBuf) > 0
}

// PullRecv unwraps as many complete envelopes as are available, returning
// up to n bytes of plaintext and retaining any surplus in
// unwrappedRecvBuf for the next call. A malformed envelope is a fatal
// framing error, matching spec.md's "malformed headers are a fatal framing
// error"; a merely-incomplete one is not an error at all — PullRecv simply
// returns whatever plaintext is already available (possibly none) and
// leaves the partial envelope in recvBuf for next time.
func (b *Buffers) PullRecv(n int) ([]byte, error) {
	for len(b.recvBuf) > 0 {
		consumed, payload, err := b.layer.Unwrap(b.recvBuf)
		if err == xerrors.ErrIncompleteData {
			break
		}
		if err != nil {
			return nil, err
		}
		b.recvBuf = b.recvBuf[consumed:]
		b.unwrappedRecvBuf = append(b.unwrappedRecvBuf, payload...)
	}

	if len(b.unwrappedRecvBuf) == 0 {
		return nil, nil
	}
	if len(b.unwrappedRecvBuf) <= n {
		out := b.unwrappedRecvBuf
		b.unwrappedRecvBuf = nil
		return out, nil
	}
	out := b.unwrappedRecvBuf[:n]
	b.unwrappedRecvBuf = b.unwrappedRecvBuf[n:]
	return out, nil
}
