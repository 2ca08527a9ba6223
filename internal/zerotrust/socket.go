package zerotrust

import "github.com/Def-Try/hyphen0/internal/xerrors"

// innerTransport is the byte-stream this package wraps — normally a
// basicsocket.Transport, kept as a narrow local interface so this package
// doesn't need to import basicsocket at all.
type innerTransport interface {
	RecvNonBlocking(max int) ([]byte, error)
	Send(data []byte) error
}

// rawReadSize bounds how many wrapped-envelope bytes are pulled off the
// wire per poll. Envelopes carry header and base64 overhead on top of the
// plaintext chunk_size, so this is deliberately larger than any single
// caller's requested plaintext size.
const rawReadSize = 8192

// Socket adapts a raw byte-stream transport to the same two-method
// Transport shape protosocket expects, interposing Buffers' wrap/unwrap
// discipline. This is the ZerotrustSocket of spec.md §4.4: composition
// over the inner transport rather than a type-changing "cast", per the
// module's design notes on reimplementing the reference's subclass-swap
// pattern.
type Socket struct {
	inner   innerTransport
	buffers *Buffers
}

// NewSocket wraps inner with layer's wrap/unwrap contract, chunking
// outbound plaintext at chunkSize bytes per envelope.
func NewSocket(inner innerTransport, layer Layer, chunkSize int) *Socket {
	return &Socket{inner: inner, buffers: New(layer, chunkSize)}
}

// RecvNonBlocking feeds any freshly-arrived wrapped bytes into the buffer,
// unwraps what it can, and returns up to max bytes of plaintext. It
// reports xerrors.ErrTimeout whenever no plaintext is ready this call,
// including when the inner transport delivered only part of an envelope.
func (s *Socket) RecvNonBlocking(max int) ([]byte, error) {
	raw, err := s.inner.RecvNonBlocking(rawReadSize)
	if err != nil && err != xerrors.ErrTimeout {
		return nil, err
	}
	if err == nil {
		s.buffers.PushRecv(raw)
	}

	out, perr := s.buffers.PullRecv(max)
	if perr != nil {
		return nil, perr
	}
	if len(out) == 0 {
		return nil, xerrors.ErrTimeout
	}
	return out, nil
}

// Send enqueues data and eagerly drains every envelope it produces through
// the inner transport before returning.
func (s *Socket) Send(data []byte) error {
	s.buffers.PushSend(data)
	for s.buffers.CanPullSend() {
		if err := s.inner.Send(s.buffers.PullSend()); err != nil {
			return err
		}
	}
	return nil
}
