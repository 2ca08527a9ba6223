// Package endpoint glues the transport layers together into the
// connection lifecycle applications actually drive: dial, handshake,
// background update loop, packet dispatch through named hooks, and a
// graceful or forced close.
//
// Grounded on the original Python reference's Hyphen0Client/Hyphen0Server
// mainloop methods (client.py/server.py): stage tracking through a plain
// string field, a background "serve update" task started once the socket
// exists, and a foreground work loop that turns queued packets into hook
// calls. The onion-model middleware composition mini-rpc's client/server
// packages build their call path from has no direct use here (hyphen0 has
// no per-call response to wrap) but the same "construct once at startup,
// not per packet" discipline mini-rpc's Serve/Call methods follow is kept:
// ProtoSocket is assembled once in Connect/acceptClient and never rebuilt;
// the handshake only swaps its Framer.
package endpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/Def-Try/hyphen0/internal/basicsocket"
	"github.com/Def-Try/hyphen0/internal/eventhub"
	"github.com/Def-Try/hyphen0/internal/handshake"
	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/protosocket"
	"github.com/Def-Try/hyphen0/internal/xerrors"
	"github.com/Def-Try/hyphen0/internal/zerotrust"
)

// DefaultCipherModes is the cipher preference list offered when no other
// list is configured; "aes" names the AES-256-GCM profile crypt.GCMCipher
// implements.
var DefaultCipherModes = []string{"aes"}

func clientHeartbeatPair() protosocket.HeartbeatPair {
	return protosocket.HeartbeatPair{
		NewOutgoing: func(initiating bool, nonce uint32) packet.Packet {
			return &packet.HeartbeatServerbound{Initiating: initiating, Nonce: nonce}
		},
		IsIncoming: func(p packet.Packet) (bool, uint32, bool) {
			hb, ok := p.(*packet.HeartbeatClientbound)
			if !ok {
				return false, 0, false
			}
			return hb.Initiating, hb.Nonce, true
		},
	}
}

func serverHeartbeatPair() protosocket.HeartbeatPair {
	return protosocket.HeartbeatPair{
		NewOutgoing: func(initiating bool, nonce uint32) packet.Packet {
			return &packet.HeartbeatClientbound{Initiating: initiating, Nonce: nonce}
		},
		IsIncoming: func(p packet.Packet) (bool, uint32, bool) {
			hb, ok := p.(*packet.HeartbeatServerbound)
			if !ok {
				return false, 0, false
			}
			return hb.Initiating, hb.Nonce, true
		},
	}
}

// ClientOption configures a Client at construction time, the functional
// options style this module's ambient stack uses in place of a config
// struct (see SPEC_FULL.md's AMBIENT STACK / Configuration section).
type ClientOption func(*Client)

// WithZeroTrust wraps the connection's byte stream in layer's obfuscation
// envelope, chunked at chunkSize bytes of plaintext per envelope (0 selects
// zerotrust.DefaultChunkSize).
func WithZeroTrust(layer zerotrust.Layer, chunkSize int) ClientOption {
	return func(c *Client) {
		c.ztLayer = layer
		c.ztChunkSize = chunkSize
	}
}

// WithCipherModes overrides the cipher preference list offered during the
// handshake's cipher negotiation phase.
func WithCipherModes(modes ...string) ClientOption {
	return func(c *Client) { c.cipherModes = modes }
}

// WithHeartbeatPolicy overrides the default heartbeat interval/miss count.
func WithHeartbeatPolicy(interval time.Duration, maxMisses int) ClientOption {
	return func(c *Client) { c.heartbeatInterval, c.heartbeatMaxMisses = interval, maxMisses }
}

// Client is one connection's full lifecycle: dial, handshake, background
// keepalive/IO, and a foreground packet dispatch loop.
type Client struct {
	host string
	port int

	keypair     *handshake.Keypair
	cipherModes []string
	ztLayer     zerotrust.Layer
	ztChunkSize int

	heartbeatInterval  time.Duration
	heartbeatMaxMisses int

	// Hooks dispatches "client_handshake", "crypt_modeselected", etc during
	// the handshake, and "packet_received" / "ptype_<Name>_received" once
	// running. Callers register additional hooks before calling Connect.
	Hooks *eventhub.Hub

	rawSocket *basicsocket.Socket
	socket    *protosocket.ProtoSocket
	result    *handshake.Result

	stage      string
	closed     bool
	stopUpdate chan struct{}
	updateDone chan struct{}
	updateErr  error
}

// NewClient builds a Client for host:port, identified to the server by
// keypair.
func NewClient(host string, port int, keypair *handshake.Keypair, opts ...ClientOption) *Client {
	c := &Client{
		host:               host,
		port:               port,
		keypair:            keypair,
		cipherModes:        DefaultCipherModes,
		heartbeatInterval:  protosocket.DefaultHeartbeatInterval,
		heartbeatMaxMisses: protosocket.DefaultMaxHeartbeatMisses,
		Hooks:              &eventhub.Hub{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stage reports which phase of the connection lifecycle this client is in:
// "connecting", "handshaking", "running", or "closed".
func (c *Client) Stage() string { return c.stage }

// Connect dials the server, runs the handshake, and starts the background
// update loop. On success the client is in the "running" stage and Run may
// be called to begin dispatching packets.
func (c *Client) Connect(dialTimeout time.Duration) error {
	c.stage = "connecting"
	sock, err := basicsocket.Connect(c.host, c.port, dialTimeout)
	if err != nil {
		c.stage = "closed"
		return err
	}
	c.rawSocket = sock

	var transport protosocket.Transport = basicsocket.Transport{Socket: sock}
	if c.ztLayer != nil {
		transport = zerotrust.NewSocket(basicsocket.Transport{Socket: sock}, c.ztLayer, c.ztChunkSize)
	}

	c.socket = protosocket.New(transport, protosocket.PlainFramer{Registry: packet.Core}, packet.Clientbound, clientHeartbeatPair())
	c.socket.SetHeartbeatPolicy(c.heartbeatInterval, c.heartbeatMaxMisses)

	c.stage = "handshaking"
	result, err := handshake.RunClient(c.socket, c.keypair, c.cipherModes, c.Hooks)
	if err != nil {
		sock.Close()
		c.stage = "closed"
		return err
	}
	c.result = result

	c.stopUpdate = make(chan struct{})
	c.updateDone = make(chan struct{})
	go func() {
		defer close(c.updateDone)
		if err := c.socket.RunUpdateLoop(c.stopUpdate, "[hyphen0] [LOCAL]"); err != nil {
			c.updateErr = err
		}
	}()

	c.stage = "running"
	c.Hooks.Emit("client_connected")
	return nil
}

// CipherName reports the cipher the handshake negotiated, once Connect has
// succeeded.
func (c *Client) CipherName() string {
	if c.result == nil {
		return ""
	}
	return c.result.CipherName
}

// WritePacket enqueues a packet for transmission without blocking.
func (c *Client) WritePacket(p packet.Packet) { c.socket.WritePacket(p) }

// Run dispatches queued inbound packets to Hooks until ctx is cancelled or
// the server ends the connection, mirroring the original reference's work()
// loop: a Kick packet is treated as the server closing the connection and
// surfaces xerrors.ErrWereKicked.
func (c *Client) Run(ctx context.Context) error {
	for {
		if c.closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.updateDone:
			c.closed = true
			c.stage = "closed"
			c.rawSocket.Close()
			if c.updateErr != nil {
				// The update loop died on its own (flatline, socket closed,
				// decryption failure, ...) rather than being stopped by a
				// voluntary Close — this is the "client_killed" case spec.md
				// §4.7/§8 scenario 4 names.
				c.Hooks.Emit("client_killed")
			}
			return c.updateErr
		default:
		}

		p, ok := c.socket.ReadPacket()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if kick, ok := p.(*packet.Kick); ok {
			c.Close("", false)
			return fmt.Errorf("%w: %s", xerrors.ErrWereKicked, kick.Message)
		}
		c.Hooks.Emit("packet_received", p)
		c.Hooks.Emit("ptype_"+packetTypeName(p)+"_received", p)
	}
}

// Close ends the connection. With graceful set it sends a Disconnect packet
// first; either way it stops the background update loop and closes the
// underlying socket.
func (c *Client) Close(message string, graceful bool) error {
	if c.closed {
		return nil
	}
	close(c.stopUpdate)
	<-c.updateDone // wait for the background loop to stop touching the transport
	if graceful {
		c.socket.WritePacket(&packet.Disconnect{Message: message})
		c.socket.FlushOutbound()
	}
	c.closed = true
	c.stage = "closed"
	return c.rawSocket.Close()
}

func packetTypeName(p packet.Packet) string {
	if n, ok := p.(packet.Name); ok {
		return n.PacketName()
	}
	return fmt.Sprintf("%T", p)
}
