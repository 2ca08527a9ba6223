// Package protosocket layers packet framing, inbound/outbound queues, and
// the heartbeat liveness sublayer on top of a raw byte-stream transport.
//
// The framing itself is pluggable — a Framer turns packets into wire bytes
// and back — so that CryptSocket's AEAD framing (internal/crypt) can be
// installed mid-connection without changing ProtoSocket's type, mirroring
// the Strategy-pattern pluggable Codec in mini-rpc's codec package
// (Codec interface + GetCodec factory) generalized from "choose a
// serialization format up front" to "swap framing once a cipher comes
// online".
package protosocket

import (
	"crypto/rand"
	"encoding/binary"
	"log"
	"sync"
	"time"

	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// Transport is the byte-stream underneath ProtoSocket: either a raw TCP
// basicsocket.Socket, or a zerotrust-wrapped one. RecvNonBlocking attempts
// a single bounded read and returns xerrors.ErrTimeout if nothing arrived
// yet; Send writes the entire buffer or fails.
type Transport interface {
	RecvNonBlocking(max int) ([]byte, error)
	Send(data []byte) error
}

// Framer turns packets into wire bytes and back. PlainFramer (below) is the
// default; internal/crypt's Framer is installed once the handshake
// derives a session key.
type Framer interface {
	// TryDecode attempts to decode one packet from buf for the given
	// incoming direction. It returns xerrors.ErrIncompleteData if buf does
	// not yet hold a full frame.
	TryDecode(buf []byte, dir packet.Direction) (consumed int, p packet.Packet, err error)
	Encode(p packet.Packet, dir packet.Direction) ([]byte, error)
}

// PlainFramer frames packets exactly as pid || fields with no outer length
// prefix, delegating to the shared packet registry. This is the framing in
// effect before a cipher is installed, and for connections that never
// install one.
type PlainFramer struct {
	Registry *packet.Registry
}

func (f PlainFramer) TryDecode(buf []byte, dir packet.Direction) (int, packet.Packet, error) {
	return f.Registry.Decode(buf, dir)
}

func (f PlainFramer) Encode(p packet.Packet, dir packet.Direction) ([]byte, error) {
	return f.Registry.Encode(p, dir)
}

// Defaults matching spec.md's configuration options.
const (
	DefaultHeartbeatInterval  = 10 * time.Second
	DefaultMaxHeartbeatMisses = 5
	recvChunk                 = 4096
)

// randomNonce draws a 32-bit heartbeat nonce from a CSPRNG. A predictable
// nonce source would let an on-path attacker forge heartbeat echoes.
func randomNonce() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint32(b[:])
}

// HeartbeatPair names the two direction-specific heartbeat packet types one
// ProtoSocket instance sends and expects.
type HeartbeatPair struct {
	// NewOutgoing builds this side's heartbeat packet (initiating or echo).
	NewOutgoing func(initiating bool, nonce uint32) packet.Packet
	// IsIncoming reports whether p is the opposite side's heartbeat type,
	// and if so extracts its fields.
	IsIncoming func(p packet.Packet) (initiating bool, nonce uint32, ok bool)
}

// ProtoSocket decouples application packet I/O from the underlying
// transport via inbound/outbound FIFOs, and keeps the connection alive with
// periodic heartbeat probes.
type ProtoSocket struct {
	transport Transport
	framer    Framer
	dir       packet.Direction // this endpoint's incoming direction
	heartbeat HeartbeatPair

	heartbeatInterval time.Duration
	maxMisses         int

	mu         sync.Mutex
	recvBuf    []byte
	inbound    []packet.Packet
	outbound   []packet.Packet
	lastActive time.Time

	pendingNonce       *uint32
	missedHeartbeat    int
	lastHeartbeatCheck time.Time

	flatlined error
}

// New builds a ProtoSocket reading dir-bound frames (serverbound if this is
// the server's view, clientbound if this is the client's) over transport.
func New(transport Transport, framer Framer, dir packet.Direction, hb HeartbeatPair) *ProtoSocket {
	return &ProtoSocket{
		transport:         transport,
		framer:            framer,
		dir:               dir,
		heartbeat:         hb,
		heartbeatInterval:  DefaultHeartbeatInterval,
		maxMisses:          DefaultMaxHeartbeatMisses,
		lastActive:         time.Now(),
		lastHeartbeatCheck: time.Now(),
	}
}

// SetHeartbeatPolicy overrides the interval/max-misses defaults.
func (s *ProtoSocket) SetHeartbeatPolicy(interval time.Duration, maxMisses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeatInterval = interval
	s.maxMisses = maxMisses
}

// InstallFramer swaps the active framing strategy — this is how CryptSocket
// upgrades a ProtoSocket in place once the handshake derives a session key,
// instead of mutating the connection's Go type.
func (s *ProtoSocket) InstallFramer(f Framer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framer = f
}

// WritePacket enqueues p for transmission; it never blocks.
func (s *ProtoSocket) WritePacket(p packet.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbound = append(s.outbound, p)
}

// ReadPacket dequeues the oldest inbound packet, or (nil, false) if none is
// waiting.
func (s *ProtoSocket) ReadPacket() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbound) == 0 {
		return nil, false
	}
	p := s.inbound[0]
	s.inbound = s.inbound[1:]
	return p, true
}

// WaitForPacket suspends until a packet matching match is anywhere in the
// inbound queue (not only its head), removing and returning it. It scans
// the whole queue each poll so handshake packets and application traffic
// can arrive interleaved.
func (s *ProtoSocket) WaitForPacket(match func(packet.Packet) bool, timeout time.Duration) (packet.Packet, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		for i, p := range s.inbound {
			if match(p) {
				s.inbound = append(s.inbound[:i], s.inbound[i+1:]...)
				s.mu.Unlock()
				return p, nil
			}
		}
		flatlined := s.flatlined
		s.mu.Unlock()
		if flatlined != nil {
			return nil, flatlined
		}
		if timeout > 0 && time.Now().After(deadline) {
			return nil, xerrors.ErrTimeout
		}
		if err := s.Update(); err != nil {
			return nil, err
		}
		time.Sleep(time.Millisecond)
	}
}

// Update performs one tick: a bounded-length non-blocking recv attempt,
// decoding of every complete frame then buffered, at most one outbound
// send, and the heartbeat check. It
// never blocks indefinitely. Callers are expected to invoke it in a tight
// loop from a dedicated goroutine, the same shape as mini-rpc's recvLoop
// except merged with a single-send-per-tick write path instead of a
// separate heartbeatLoop goroutine.
func (s *ProtoSocket) Update() error {
	if err := s.readTick(); err != nil {
		return err
	}
	if err := s.writeTick(); err != nil {
		return err
	}
	return s.heartbeatTick()
}

func (s *ProtoSocket) readTick() error {
	chunk, err := s.transport.RecvNonBlocking(recvChunk)
	if err != nil {
		if err == xerrors.ErrTimeout {
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.recvBuf = append(s.recvBuf, chunk...)
	framer := s.framer
	for {
		consumed, p, decErr := framer.TryDecode(s.recvBuf, s.dir)
		if decErr == xerrors.ErrIncompleteData {
			break
		}
		if decErr != nil {
			s.mu.Unlock()
			return decErr
		}
		s.recvBuf = s.recvBuf[consumed:]
		s.lastActive = time.Now()
		if !s.handleIfHeartbeatLocked(p) {
			s.inbound = append(s.inbound, p)
		}
	}
	s.mu.Unlock()
	return nil
}

// handleIfHeartbeatLocked applies the heartbeat echo rules to p if it is
// this connection's incoming heartbeat type. Caller holds s.mu.
func (s *ProtoSocket) handleIfHeartbeatLocked(p packet.Packet) bool {
	if s.heartbeat.IsIncoming == nil {
		return false
	}
	initiating, nonce, ok := s.heartbeat.IsIncoming(p)
	if !ok {
		return false
	}
	if initiating {
		s.missedHeartbeat = 0
		s.pendingNonce = nil
		s.outbound = append(s.outbound, s.heartbeat.NewOutgoing(false, nonce))
	} else if s.pendingNonce != nil && *s.pendingNonce == nonce {
		s.missedHeartbeat = 0
		s.pendingNonce = nil
	}
	return true
}

// FlushOutbound synchronously drains and sends every packet currently
// queued for transmission, using whichever framer is active at the time
// each packet is sent. Handshake code calls this before InstallFramer so
// a packet enqueued under the old framing (e.g. HandshakeCryptOK, which
// must reach the peer in the clear) is actually on the wire before the
// framer is swapped out from under it — WritePacket alone only queues,
// it doesn't send.
func (s *ProtoSocket) FlushOutbound() error {
	for {
		s.mu.Lock()
		pending := len(s.outbound) > 0
		s.mu.Unlock()
		if !pending {
			return nil
		}
		if err := s.writeTick(); err != nil {
			return err
		}
	}
}

func (s *ProtoSocket) writeTick() error {
	s.mu.Lock()
	if len(s.outbound) == 0 {
		s.mu.Unlock()
		return nil
	}
	p := s.outbound[0]
	s.outbound = s.outbound[1:]
	framer := s.framer
	s.mu.Unlock()

	wire, err := framer.Encode(p, oppositeDirection(s.dir))
	if err != nil {
		return err
	}
	return s.transport.Send(wire)
}

// heartbeatTick re-evaluates liveness at most once per heartbeatInterval,
// gated by lastHeartbeatCheck rather than lastActive: lastActive reflects
// real traffic (reset only by readTick), while lastHeartbeatCheck paces the
// "has an interval elapsed since we last looked" decision in spec.md rule 3
// so a run of unanswered nonces increments missedHeartbeat once per
// interval instead of once per tick.
func (s *ProtoSocket) heartbeatTick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeat.NewOutgoing == nil {
		return nil
	}
	if time.Since(s.lastActive) < s.heartbeatInterval {
		return nil
	}
	if time.Since(s.lastHeartbeatCheck) < s.heartbeatInterval {
		return nil
	}
	s.lastHeartbeatCheck = time.Now()
	if s.pendingNonce != nil {
		s.missedHeartbeat++
		if s.missedHeartbeat > s.maxMisses {
			s.flatlined = xerrors.ErrSocketFlatlined
			return xerrors.ErrSocketFlatlined
		}
		return nil
	}
	nonce := randomNonce()
	s.pendingNonce = &nonce
	s.outbound = append(s.outbound, s.heartbeat.NewOutgoing(true, nonce))
	return nil
}

func oppositeDirection(dir packet.Direction) packet.Direction {
	if dir == packet.Serverbound {
		return packet.Clientbound
	}
	return packet.Serverbound
}

// RunUpdateLoop ticks Update in a loop until it returns an error or stop is
// closed, logging the terminal error the way mini-rpc's recvLoop logs a
// broken connection before returning.
func (s *ProtoSocket) RunUpdateLoop(stop <-chan struct{}, logPrefix string) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if err := s.Update(); err != nil {
			log.Printf("%s update loop stopping: %v", logPrefix, err)
			return err
		}
		time.Sleep(time.Millisecond)
	}
}
