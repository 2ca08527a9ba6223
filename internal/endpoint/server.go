package endpoint

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Def-Try/hyphen0/internal/basicsocket"
	"github.com/Def-Try/hyphen0/internal/eventhub"
	"github.com/Def-Try/hyphen0/internal/handshake"
	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/protosocket"
	"github.com/Def-Try/hyphen0/internal/xerrors"
	"github.com/Def-Try/hyphen0/internal/zerotrust"
)

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithServerZeroTrust wraps every accepted connection's byte stream in
// layer's obfuscation envelope.
func WithServerZeroTrust(layer zerotrust.Layer, chunkSize int) ServerOption {
	return func(s *Server) {
		s.ztLayer = layer
		s.ztChunkSize = chunkSize
	}
}

// WithServerCipherModes overrides the cipher preference list the server
// intersects against each connecting client's offer.
func WithServerCipherModes(modes ...string) ServerOption {
	return func(s *Server) { s.cipherModes = modes }
}

// WithServerHeartbeatPolicy overrides the default heartbeat interval/miss
// count applied to every accepted connection.
func WithServerHeartbeatPolicy(interval time.Duration, maxMisses int) ServerOption {
	return func(s *Server) { s.heartbeatInterval, s.heartbeatMaxMisses = interval, maxMisses }
}

// WithServerAcceptRate throttles how fast the server accepts new
// connections, the same token-bucket shedding basicsocket.Listener applies
// to raw accept(2) calls.
func WithServerAcceptRate(rate float64, burst int) ServerOption {
	return func(s *Server) { s.acceptRate, s.acceptBurst = rate, burst }
}

// Conn is one server-side client connection, handed to hooks and to
// Server.Kick.
type Conn struct {
	addr   string
	socket *protosocket.ProtoSocket
	result *handshake.Result

	rawSocket  *basicsocket.Socket
	stopUpdate chan struct{}
	updateDone chan struct{}
	updateErr  error
}

// Addr returns the remote address this connection was accepted from, used
// as its key in the Server's client table.
func (c *Conn) Addr() string { return c.addr }

// CipherName reports the cipher this connection's handshake negotiated.
func (c *Conn) CipherName() string {
	if c.result == nil {
		return ""
	}
	return c.result.CipherName
}

// WritePacket enqueues a packet for transmission to this client.
func (c *Conn) WritePacket(p packet.Packet) { c.socket.WritePacket(p) }

// Server accepts connections, runs the server side of the handshake on
// each, and dispatches their packets through Hooks, mirroring the original
// reference's Hyphen0Server.mainloop/_client_connected/work methods.
type Server struct {
	host string
	port int

	keypair     *handshake.Keypair
	cipherModes []string
	ztLayer     zerotrust.Layer
	ztChunkSize int

	heartbeatInterval  time.Duration
	heartbeatMaxMisses int
	acceptRate         float64
	acceptBurst        int

	// Hooks dispatches the same handshake/connection-lifecycle event names
	// as Client.Hooks, plus "client_disconnecting" before a Conn is evicted,
	// "client_killed" when a connection's update loop dies unsolicited
	// (flatline, socket closed, ...), and "client_disconnected" carrying the
	// xerrors.ErrWereDisconnected-wrapped reason once a peer-initiated
	// Disconnect has been processed. Handlers registered here receive the
	// *Conn as their first arg.
	Hooks *eventhub.Hub

	listener *basicsocket.Listener

	mu      sync.Mutex
	clients map[string]*Conn
}

// NewServer builds a Server that will bind host:port, identifying itself
// to clients with keypair.
func NewServer(host string, port int, keypair *handshake.Keypair, opts ...ServerOption) *Server {
	s := &Server{
		host:               host,
		port:               port,
		keypair:            keypair,
		cipherModes:        DefaultCipherModes,
		heartbeatInterval:  protosocket.DefaultHeartbeatInterval,
		heartbeatMaxMisses: protosocket.DefaultMaxHeartbeatMisses,
		Hooks:              &eventhub.Hub{},
		clients:            make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the server's address. Call it before Serve.
func (s *Server) Listen(backlog int) error {
	ln, err := basicsocket.Bind(s.host, s.port, backlog, s.acceptRate, s.acceptBurst)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the address Listen bound, or nil if Listen hasn't been
// called yet.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Clients returns every currently connected client.
func (s *Server) Clients() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Serve accepts connections until ctx is cancelled or the listener errors,
// handshaking each one in its own goroutine the way mini-rpc's
// Server.Serve spawns one handleConn goroutine per accepted net.Conn.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("endpoint: call Listen before Serve")
	}
	log.Printf("[hyphen0] serving on %s:%d", s.host, s.port)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sock, addr, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Printf("[hyphen0] new client connected: %s", addr)
		go s.acceptClient(sock, addr.String())
	}
}

func (s *Server) acceptClient(sock *basicsocket.Socket, addr string) {
	var transport protosocket.Transport = basicsocket.Transport{Socket: sock}
	if s.ztLayer != nil {
		transport = zerotrust.NewSocket(basicsocket.Transport{Socket: sock}, s.ztLayer, s.ztChunkSize)
	}

	socket := protosocket.New(transport, protosocket.PlainFramer{Registry: packet.Core}, packet.Serverbound, serverHeartbeatPair())
	socket.SetHeartbeatPolicy(s.heartbeatInterval, s.heartbeatMaxMisses)

	conn := &Conn{addr: addr, socket: socket, rawSocket: sock}

	result, err := handshake.RunServer(socket, s.keypair, s.cipherModes, hubEmitter{hub: s.Hooks, conn: conn})
	if err != nil {
		log.Printf("[hyphen0] [%s] handshake failed: %v", addr, err)
		sock.Close()
		return
	}
	conn.result = result

	conn.stopUpdate = make(chan struct{})
	conn.updateDone = make(chan struct{})
	go func() {
		defer close(conn.updateDone)
		if err := socket.RunUpdateLoop(conn.stopUpdate, fmt.Sprintf("[hyphen0] [%s]", addr)); err != nil {
			conn.updateErr = err
		}
	}()

	s.mu.Lock()
	s.clients[addr] = conn
	s.mu.Unlock()

	s.Hooks.Emit("client_connected", conn)
	if err := s.work(conn); err != nil {
		log.Printf("[hyphen0] [%s] %v", addr, err)
	}
}

// work dispatches a connected client's queued packets to Hooks until it
// disconnects, is kicked, or its background update loop dies — the server
// side of the original reference's work() loop. Its error return is how the
// application observes a peer-initiated graceful disconnect
// (xerrors.ErrWereDisconnected), the server-side mirror of Client.Run
// surfacing xerrors.ErrWereKicked.
func (s *Server) work(conn *Conn) error {
	for {
		s.mu.Lock()
		_, stillConnected := s.clients[conn.addr]
		s.mu.Unlock()
		if !stillConnected {
			return nil
		}

		select {
		case <-conn.updateDone:
			// The update loop died on its own (flatline, socket closed,
			// decryption failure, ...) while conn was still registered, so
			// nothing else has evicted it yet — this is the unsolicited
			// death spec.md §4.7/§8 scenario 4 names "client_killed" for.
			s.Hooks.Emit("client_killed", conn)
			s.evict(conn)
			return conn.updateErr
		default:
		}

		p, ok := conn.socket.ReadPacket()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if d, ok := p.(*packet.Disconnect); ok {
			log.Printf("[hyphen0] [%s] disconnected: %s", conn.addr, d.Message)
			s.Hooks.Emit("client_disconnecting", conn)
			s.evict(conn)
			err := fmt.Errorf("%w: %s", xerrors.ErrWereDisconnected, d.Message)
			s.Hooks.Emit("client_disconnected", conn, err)
			return err
		}
		s.Hooks.Emit("packet_received", conn, p)
		s.Hooks.Emit("ptype_"+packetTypeName(p)+"_received", conn, p)
	}
}

// Kick forcibly ends a client's connection, sending a Kick packet first
// unless graceful is false. conn is removed from the client table before
// its update loop is stopped, so work does not mistake the stop for an
// unsolicited death. The background update loop is stopped before the Kick
// packet is flushed so the write isn't racing that loop's own concurrent
// use of the transport.
func (s *Server) Kick(conn *Conn, message string, graceful bool) {
	s.Hooks.Emit("client_disconnecting", conn)
	s.mu.Lock()
	delete(s.clients, conn.addr)
	s.mu.Unlock()
	s.stopConnUpdateLoop(conn)
	if graceful {
		conn.socket.WritePacket(&packet.Kick{Message: message})
		conn.socket.FlushOutbound()
	}
	conn.rawSocket.Close()
}

func (s *Server) evict(conn *Conn) {
	s.mu.Lock()
	delete(s.clients, conn.addr)
	s.mu.Unlock()
	s.stopConnUpdateLoop(conn)
	conn.rawSocket.Close()
}

// stopConnUpdateLoop signals conn's background update goroutine to stop and
// waits for it to exit, so callers can safely drive conn.socket directly
// afterward (e.g. to flush a final Kick packet) without racing the loop's
// own concurrent transport use. Safe to call more than once for the same
// conn, and safe if the loop already stopped on its own (socket died).
func (s *Server) stopConnUpdateLoop(conn *Conn) {
	if conn.stopUpdate == nil {
		return
	}
	select {
	case <-conn.stopUpdate:
	default:
		close(conn.stopUpdate)
	}
	<-conn.updateDone
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// hubEmitter adapts a Server's shared Hub to handshake.Emitter for one
// connection, prefixing every emitted event with conn so server-side hook
// handlers can tell which client it came from the way the original
// reference's _call_hook(client, event, *args) did.
type hubEmitter struct {
	hub  *eventhub.Hub
	conn *Conn
}

func (h hubEmitter) Emit(event string, args ...any) {
	h.hub.Emit(event, append([]any{h.conn}, args...)...)
}
