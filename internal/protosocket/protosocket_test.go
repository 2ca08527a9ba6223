package protosocket

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Def-Try/hyphen0/internal/basicsocket"
	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// clientHeartbeatPair is what a client-side ProtoSocket uses: it sends the
// serverbound heartbeat type and watches for the clientbound one echoed (or
// initiated) by the server — the two directions are deliberately distinct
// packet types so each side can tell an incoming heartbeat from its own
// outgoing echo.
func clientHeartbeatPair() HeartbeatPair {
	return HeartbeatPair{
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

// serverHeartbeatPair is the server-side mirror of clientHeartbeatPair.
func serverHeartbeatPair() HeartbeatPair {
	return HeartbeatPair{
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

// pipePair returns two connected basicsocket.Transports over a real TCP
// loopback connection (ProtoSocket relies on independent read/write
// deadlines that net.Pipe's synchronous semantics don't model well).
func pipePair(t *testing.T) (basicsocket.Transport, basicsocket.Transport) {
	t.Helper()
	ln, err := basicsocket.Bind("127.0.0.1", 0, 8, 0, 0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ln.Close()

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected addr type %T", ln.Addr())
	}

	accepted := make(chan *basicsocket.Socket, 1)
	go func() {
		sock, _, err := ln.Accept(context.Background())
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- sock
	}()

	client, err := basicsocket.Connect("127.0.0.1", tcpAddr.Port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-accepted
	return basicsocket.Transport{Socket: client}, basicsocket.Transport{Socket: server}
}

func TestPacketRoundTripsThroughUpdateLoop(t *testing.T) {
	clientTransport, serverTransport := pipePair(t)

	client := New(clientTransport, PlainFramer{Registry: packet.Core}, packet.Clientbound, HeartbeatPair{})
	server := New(serverTransport, PlainFramer{Registry: packet.Core}, packet.Serverbound, HeartbeatPair{})

	client.WritePacket(&packet.HandshakeInitiate{})

	deadline := time.Now().Add(2 * time.Second)
	var got packet.Packet
	for time.Now().Before(deadline) {
		if err := client.Update(); err != nil {
			t.Fatalf("client.Update: %v", err)
		}
		if err := server.Update(); err != nil {
			t.Fatalf("server.Update: %v", err)
		}
		if p, ok := server.ReadPacket(); ok {
			got = p
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got == nil {
		t.Fatal("server never received HandshakeInitiate")
	}
	if _, ok := got.(*packet.HandshakeInitiate); !ok {
		t.Fatalf("expected *packet.HandshakeInitiate, got %T", got)
	}
}

func TestWaitForPacketScansWholeQueue(t *testing.T) {
	clientTransport, serverTransport := pipePair(t)
	client := New(clientTransport, PlainFramer{Registry: packet.Core}, packet.Clientbound, HeartbeatPair{})
	server := New(serverTransport, PlainFramer{Registry: packet.Core}, packet.Serverbound, HeartbeatPair{})

	client.WritePacket(&packet.Disconnect{Message: "first"})
	client.WritePacket(&packet.HandshakeInitiate{})

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			client.Update()
			time.Sleep(time.Millisecond)
		}
	}()
	defer close(done)

	p, err := server.WaitForPacket(func(p packet.Packet) bool {
		_, ok := p.(*packet.HandshakeInitiate)
		return ok
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForPacket: %v", err)
	}
	if _, ok := p.(*packet.HandshakeInitiate); !ok {
		t.Fatalf("expected *packet.HandshakeInitiate, got %T", p)
	}

	// The Disconnect packet that arrived first but didn't match must still
	// be sitting in the queue, not dropped.
	next, ok := server.ReadPacket()
	if !ok {
		t.Fatal("expected the non-matching Disconnect packet to remain queued")
	}
	if d, ok := next.(*packet.Disconnect); !ok || d.Message != "first" {
		t.Fatalf("expected queued Disconnect{first}, got %#v", next)
	}
}

func TestHeartbeatExchangeNeverFlatlinesWhenBothSidesUpdate(t *testing.T) {
	clientTransport, serverTransport := pipePair(t)
	client := New(clientTransport, PlainFramer{Registry: packet.Core}, packet.Clientbound, clientHeartbeatPair())
	server := New(serverTransport, PlainFramer{Registry: packet.Core}, packet.Serverbound, serverHeartbeatPair())
	client.SetHeartbeatPolicy(30*time.Millisecond, 3)
	server.SetHeartbeatPolicy(30*time.Millisecond, 3)

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := client.Update(); err != nil {
			t.Fatalf("client flatlined unexpectedly: %v", err)
		}
		if err := server.Update(); err != nil {
			t.Fatalf("server flatlined unexpectedly: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHeartbeatFlatlinesWhenPeerNeverEchoes(t *testing.T) {
	clientTransport, _ := pipePair(t)
	client := New(clientTransport, PlainFramer{Registry: packet.Core}, packet.Clientbound, clientHeartbeatPair())
	client.SetHeartbeatPolicy(10*time.Millisecond, 2)

	deadline := time.Now().Add(2 * time.Second)
	var flatlineErr error
	for time.Now().Before(deadline) {
		if err := client.Update(); err != nil {
			flatlineErr = err
			break
		}
		time.Sleep(time.Millisecond)
	}
	if flatlineErr != xerrors.ErrSocketFlatlined {
		t.Fatalf("expected ErrSocketFlatlined, got %v", flatlineErr)
	}
}
