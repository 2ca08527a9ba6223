package zerotrust

import (
	"bytes"
	"math/rand"
	"strconv"
	"testing"

	"github.com/Def-Try/hyphen0/internal/xerrors"
)

func TestIdentityPassesThroughUnchanged(t *testing.T) {
	id := Identity{}
	wrapped := id.Wrap([]byte("hello"))
	if string(wrapped) != "hello" {
		t.Fatalf("expected identity wrap to be unchanged, got %q", wrapped)
	}
	consumed, payload, err := id.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if consumed != len(wrapped) || string(payload) != "hello" {
		t.Fatalf("unexpected unwrap result: consumed=%d payload=%q", consumed, payload)
	}
}

func TestBuffersRoundTripArbitrarySplit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	payload := make([]byte, 10_000)
	rng.Read(payload)

	sendSide := New(HTTPLayer{}, 256)
	recvSide := New(HTTPLayer{}, 256)

	// Feed the payload into the send side in arbitrary chunks, draining
	// wrapped envelopes straight into the receive side's PushRecv — this
	// mirrors spec.md's "any byte sequence split arbitrarily across
	// push_send/pull_send calls" testable property.
	offset := 0
	for offset < len(payload) {
		n := 1 + rng.Intn(700)
		if offset+n > len(payload) {
			n = len(payload) - offset
		}
		sendSide.PushSend(payload[offset : offset+n])
		offset += n
		for sendSide.CanPullSend() {
			env := sendSide.PullSend()
			recvSide.PushRecv(env)
		}
	}

	var got []byte
	for {
		chunk, err := recvSide.PullRecv(4096)
		if err != nil {
			t.Fatalf("PullRecv: %v", err)
		}
		if len(chunk) == 0 {
			break
		}
		got = append(got, chunk...)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("round-tripped payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestHTTPLayerWrapProducesValidContentLength(t *testing.T) {
	l := HTTPLayer{}
	data := []byte("the quick brown fox jumps over the lazy dog")
	wrapped := l.Wrap(data)

	if !bytes.HasPrefix(wrapped, []byte("POST /")) {
		t.Fatalf("expected request line to start with 'POST /', got %q", wrapped[:20])
	}
	idx := bytes.Index(wrapped, []byte("Content-Length: "))
	if idx == -1 {
		t.Fatal("missing Content-Length header")
	}
	headerEnd := bytes.Index(wrapped, []byte("\n\n"))
	if headerEnd == -1 {
		t.Fatal("missing end-of-headers marker")
	}
	body := wrapped[headerEnd+2:]
	lenField := wrapped[idx+len("Content-Length: ") : headerEnd]
	n, err := strconv.Atoi(string(lenField))
	if err != nil {
		t.Fatalf("parsing Content-Length: %v", err)
	}
	if n != len(body) {
		t.Fatalf("Content-Length %d does not match actual body size %d", n, len(body))
	}
}

func TestHTTPLayerUnwrapRoundTrip(t *testing.T) {
	l := HTTPLayer{}
	data := []byte{0x00, 0x01, 0xFF, 0xAB, 0xCD}
	wrapped := l.Wrap(data)
	consumed, payload, err := l.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if consumed != len(wrapped) {
		t.Fatalf("expected to consume the whole envelope (%d), consumed %d", len(wrapped), consumed)
	}
	if !bytes.Equal(payload, data) {
		t.Fatalf("expected %x, got %x", data, payload)
	}
}

func TestHTTPLayerUnwrapIncompleteHeader(t *testing.T) {
	l := HTTPLayer{}
	wrapped := l.Wrap([]byte("abc"))
	headerEnd := bytes.Index(wrapped, []byte("\n\n"))
	truncated := wrapped[:headerEnd] // cut before the end-of-headers marker
	_, _, err := l.Unwrap(truncated)
	if err != xerrors.ErrIncompleteData {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestHTTPLayerUnwrapIncompleteBody(t *testing.T) {
	l := HTTPLayer{}
	wrapped := l.Wrap([]byte("a longer payload than one byte"))
	truncated := wrapped[:len(wrapped)-3]
	_, _, err := l.Unwrap(truncated)
	if err != xerrors.ErrIncompleteData {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestHTTPLayerUnwrapRejectsForeignBytes(t *testing.T) {
	l := HTTPLayer{}
	_, _, err := l.Unwrap([]byte("this is not an envelope at all"))
	if err == nil || err == xerrors.ErrIncompleteData {
		t.Fatalf("expected a fatal framing error, got %v", err)
	}
}

