// Package basicsocket wraps a raw TCP connection with the cooperative
// suspension semantics the upper layers build on: connect/accept/recv/send
// all return to the caller's goroutine only once their condition is met or
// a timeout expires. Go's scheduler already yields the calling goroutine's
// OS thread during a blocking syscall, so a manual poll-and-yield loop (the
// reference implementation's cooperative-scheduler pattern) would just be
// reinventing what net.Conn's blocking Read/Write already give us for free —
// the suspension point is the blocking call itself.
//
// Grounded on mini-rpc's raw net.Listener/net.Conn usage in server.Serve's
// Accept loop and client.getTransport's net.Dial, generalized to expose
// deadline-based recv/send and a rate-limited accept instead of an
// immediately-spawned per-connection goroutine.
package basicsocket

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// DefaultConnectTimeout bounds how long Connect will wait for the TCP
// handshake to complete.
const DefaultConnectTimeout = 10 * time.Second

// Socket is a single TCP connection, opened either by Connect or handed
// back from a Listener's Accept.
type Socket struct {
	conn net.Conn
}

// Connect dials host:port, bounded by timeout (use 0 for DefaultConnectTimeout).
func Connect(host string, port int, timeout time.Duration) (*Socket, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

// Conn exposes the underlying net.Conn for callers that need RemoteAddr or
// similar, without letting them bypass Recv/Send's error translation.
func (s *Socket) Conn() net.Conn { return s.conn }

// Recv returns up to n bytes. With strict=true it blocks until exactly n
// bytes are available or the timeout/connection closure intervenes; without
// it returns whatever is available from a single Read, at least one byte.
func (s *Socket) Recv(n int, timeout time.Duration, strict bool) ([]byte, error) {
	if timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer s.conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, n)
	if strict {
		read, err := io.ReadFull(s.conn, buf)
		if err != nil {
			return nil, translateReadErr(err, read)
		}
		return buf, nil
	}

	read, err := s.conn.Read(buf)
	if err != nil {
		return nil, translateReadErr(err, read)
	}
	return buf[:read], nil
}

func translateReadErr(err error, read int) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return xerrors.ErrTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return xerrors.ErrSocketClosed
	}
	if read == 0 {
		return xerrors.ErrSocketClosed
	}
	return err
}

// Send writes all of data or fails; it never performs a short write.
func (s *Socket) Send(data []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	_, err := s.conn.Write(data)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return xerrors.ErrTimeout
		}
		return err
	}
	return nil
}

// Close tears down the underlying connection.
func (s *Socket) Close() error { return s.conn.Close() }

// nonBlockingPoll bounds how long RecvNonBlocking waits for at least one
// byte before reporting xerrors.ErrTimeout — short enough that a tight
// ProtoSocket.Update loop stays responsive, long enough to not spin the CPU.
const nonBlockingPoll = 2 * time.Millisecond

// defaultSendTimeout bounds RecvNonBlocking's sibling Send call when no
// caller-supplied timeout is available (the protosocket.Transport
// interface has no timeout parameter of its own).
const defaultSendTimeout = 10 * time.Second

// Transport adapts a Socket to protosocket.Transport's two-method,
// timeout-free shape (its caller, ProtoSocket.Update, already bounds its
// own tick length and has no per-call timeout of its own to pass through).
type Transport struct {
	Socket *Socket
}

// RecvNonBlocking attempts a single bounded read and returns
// xerrors.ErrTimeout if nothing arrived within nonBlockingPoll, so a
// caller's update tick never blocks for long.
func (t Transport) RecvNonBlocking(max int) ([]byte, error) {
	return t.Socket.Recv(max, nonBlockingPoll, false)
}

// Send writes the entire buffer within defaultSendTimeout or fails.
func (t Transport) Send(data []byte) error {
	return t.Socket.Send(data, defaultSendTimeout)
}

// Listener accepts inbound connections, shedding excess attempts with a
// token-bucket limiter the same way mini-rpc's RateLimitMiddleware shields
// a handler — here applied to connection attempts instead of RPC calls.
type Listener struct {
	ln      net.Listener
	limiter *rate.Limiter
}

// Bind listens on iface:port. backlog is accepted for interface parity with
// spec.md's bind(iface, port, backlog=8) but Go's net package does not
// expose the listen(2) backlog knob directly, so it is otherwise unused;
// the OS default backlog applies. acceptRate/acceptBurst configure the
// token bucket guarding Accept; pass 0 for both to accept unthrottled.
func Bind(iface string, port int, backlog int, acceptRate float64, acceptBurst int) (*Listener, error) {
	addr := net.JoinHostPort(iface, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if acceptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(acceptRate), acceptBurst)
	}
	return &Listener{ln: ln, limiter: limiter}, nil
}

// Accept suspends until a new connection arrives or ctx is cancelled. When a
// rate limiter is configured it first waits for a token, shedding load
// before the accept(2) call is even attempted. Cancelling ctx while
// accept(2) is blocked closes the listener, which is what unblocks it.
func (l *Listener) Accept(ctx context.Context) (*Socket, net.Addr, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()
	conn, err := l.ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}
	return &Socket{conn: conn}, conn.RemoteAddr(), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

