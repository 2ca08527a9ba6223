package zerotrust

import (
	"bytes"
	"sync"
	"testing"

	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// pipeTransport is a trivial in-memory innerTransport: Send on one end
// appends to a shared buffer that RecvNonBlocking on the other end drains.
type pipeTransport struct {
	mu  sync.Mutex
	buf []byte
}

func (p *pipeTransport) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, data...)
	return nil
}

func (p *pipeTransport) RecvNonBlocking(max int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil, xerrors.ErrTimeout
	}
	n := max
	if n > len(p.buf) {
		n = len(p.buf)
	}
	out := p.buf[:n]
	p.buf = p.buf[n:]
	return out, nil
}

func TestSocketSendRecvRoundTrip(t *testing.T) {
	wire := &pipeTransport{}
	sender := NewSocket(wire, HTTPLayer{}, 64)
	receiver := NewSocket(wire, HTTPLayer{}, 64)

	payload := bytes.Repeat([]byte("packet-bytes-"), 20)
	if err := sender.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got []byte
	for len(got) < len(payload) {
		chunk, err := receiver.RecvNonBlocking(4096)
		if err == xerrors.ErrTimeout {
			continue
		}
		if err != nil {
			t.Fatalf("RecvNonBlocking: %v", err)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-tripped payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestSocketRecvNonBlockingTimesOutWithNothingQueued(t *testing.T) {
	wire := &pipeTransport{}
	receiver := NewSocket(wire, HTTPLayer{}, 64)
	_, err := receiver.RecvNonBlocking(64)
	if err != xerrors.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
