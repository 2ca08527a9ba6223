// Package xerrors collects the error taxonomy shared by every transport
// layer: codec, socket, handshake. Framing errors never escape their layer;
// everything else is fatal to the connection that raised it.
package xerrors

import (
	"errors"
	"fmt"
)

// ErrIncompleteData means deserialisation ran out of bytes. It is always
// recovered locally by buffering more data; it must never reach an
// application caller.
var ErrIncompleteData = errors.New("incomplete data")

// ErrSocketClosed means the remote half of a TCP connection went away
// without warning (a zero-byte read).
var ErrSocketClosed = errors.New("socket closed")

// ErrSocketFlatlined means the remote peer stopped answering heartbeats.
var ErrSocketFlatlined = errors.New("socket flatlined: too many missed heartbeats")

// ErrTimeout means a bounded wait (recv/send/wait-for-packet) expired.
var ErrTimeout = errors.New("timed out")

// ErrWereKicked means the server gracefully terminated this client's
// connection.
var ErrWereKicked = errors.New("kicked by remote")

// ErrWereDisconnected means a client gracefully disconnected from the
// server.
var ErrWereDisconnected = errors.New("remote disconnected")

// UnknownPacketError is raised when a frame's pid has no registered packet
// type in the direction it was read from.
type UnknownPacketError struct {
	PID         byte
	Serverbound bool
}

func (e *UnknownPacketError) Error() string {
	realm := "clientbound"
	if e.Serverbound {
		realm = "serverbound"
	}
	return fmt.Sprintf("unknown packet pid=%d in %s realm", e.PID, realm)
}

// DirectionMismatchError is raised when code attempts to serialise a packet
// for the direction opposite the one it was declared with.
type DirectionMismatchError struct {
	Requested   bool
	PacketKind  string
	Declared    bool
}

func (e *DirectionMismatchError) Error() string {
	return fmt.Sprintf("attempted to serialise %s (serverbound=%v) for serverbound=%v sending",
		e.PacketKind, e.Declared, e.Requested)
}

// HandshakeFailureError wraps any misstep in the handshake dance: an
// unexpected packet type, a cancel from the peer, or a mismatched cipher
// test echo.
type HandshakeFailureError struct {
	Reason string
	Err    error
}

func (e *HandshakeFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}

func (e *HandshakeFailureError) Unwrap() error { return e.Err }

// NewHandshakeFailure builds a HandshakeFailureError with an optional
// wrapped cause.
func NewHandshakeFailure(reason string, cause error) *HandshakeFailureError {
	return &HandshakeFailureError{Reason: reason, Err: cause}
}
