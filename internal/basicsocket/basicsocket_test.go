package basicsocket

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Def-Try/hyphen0/internal/xerrors"
)

func listenOnLoopback(t *testing.T) (*Listener, int) {
	t.Helper()
	ln, err := Bind("127.0.0.1", 0, 8, 0, 0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return ln, addrPort(t, ln)
}

func addrPort(t *testing.T, ln *Listener) int {
	t.Helper()
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("listener address %v is not a *net.TCPAddr", ln.Addr())
	}
	return tcpAddr.Port
}

func TestConnectAcceptRoundTrip(t *testing.T) {
	ln, port := listenOnLoopback(t)
	defer ln.Close()

	accepted := make(chan *Socket, 1)
	go func() {
		sock, _, err := ln.Accept(context.Background())
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- sock
	}()

	client, err := Connect("127.0.0.1", port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	if err := client.Send([]byte("hello"), time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Recv(5, time.Second, true)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestRecvStrictTimesOutWithoutEnoughBytes(t *testing.T) {
	ln, port := listenOnLoopback(t)
	defer ln.Close()

	accepted := make(chan *Socket, 1)
	go func() {
		sock, _, _ := ln.Accept(context.Background())
		accepted <- sock
	}()
	client, err := Connect("127.0.0.1", port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	server := <-accepted
	defer server.Close()

	if err := client.Send([]byte("ab"), time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, err = server.Recv(5, 100*time.Millisecond, true)
	if err != xerrors.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRecvNonStrictReturnsWhateverIsAvailable(t *testing.T) {
	ln, port := listenOnLoopback(t)
	defer ln.Close()

	accepted := make(chan *Socket, 1)
	go func() {
		sock, _, _ := ln.Accept(context.Background())
		accepted <- sock
	}()
	client, err := Connect("127.0.0.1", port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	server := <-accepted
	defer server.Close()

	if err := client.Send([]byte("ab"), time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Recv(5, time.Second, false)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(got) == 0 || len(got) > 2 {
		t.Fatalf("expected 1-2 bytes, got %d", len(got))
	}
}

func TestRecvReportsSocketClosedOnRemoteHalfClose(t *testing.T) {
	ln, port := listenOnLoopback(t)
	defer ln.Close()

	accepted := make(chan *Socket, 1)
	go func() {
		sock, _, _ := ln.Accept(context.Background())
		accepted <- sock
	}()
	client, err := Connect("127.0.0.1", port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-accepted
	defer server.Close()

	client.Close()
	_, err = server.Recv(1, time.Second, false)
	if err != xerrors.ErrSocketClosed {
		t.Fatalf("expected ErrSocketClosed, got %v", err)
	}
}

func TestAcceptRespectsContextCancellation(t *testing.T) {
	ln, err := Bind("127.0.0.1", 0, 8, 1, 1)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ln.Close()
	// Take the only token: the next one is about a second away, past ctx's
	// deadline, so the limiter wait inside Accept must give up.
	ln.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = ln.Accept(ctx)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}
