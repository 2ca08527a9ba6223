// Command chat-server is the illustration chat server built on top of the
// hyphen0 transport core: it runs the handshake/heartbeat/framing machinery
// exactly like any other hyphen0 server and layers a small set of chat
// packets (internal/chat) over it via EventHub hooks, the way
// SimpleChatServer does in the original Python reference's hyphen0/server.py.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Def-Try/hyphen0/internal/chat"
	"github.com/Def-Try/hyphen0/internal/endpoint"
	"github.com/Def-Try/hyphen0/internal/handshake"
	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/zerotrust"
)

var motd = "Welcome to the Demo Server\n" +
	"This is just a simple end-to-end encrypted chat; the protocol can carry arbitrary packets."

// clientState tracks the per-connection chat identity the bare
// *endpoint.Conn doesn't carry on its own.
type clientState struct {
	uid      uint8
	username string
}

type chatServer struct {
	srv *endpoint.Server

	mu       sync.Mutex
	freeUIDs []uint8
	states   map[*endpoint.Conn]*clientState
}

func newChatServer(srv *endpoint.Server) *chatServer {
	free := make([]uint8, 256)
	for i := range free {
		free[i] = uint8(i)
	}
	return &chatServer{srv: srv, freeUIDs: free, states: make(map[*endpoint.Conn]*clientState)}
}

func (s *chatServer) register(conn *endpoint.Conn) (*clientState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.freeUIDs) == 0 {
		return nil, fmt.Errorf("no free user ids")
	}
	uid := s.freeUIDs[0]
	s.freeUIDs = s.freeUIDs[1:]
	st := &clientState{uid: uid}
	s.states[conn] = st
	return st, nil
}

func (s *chatServer) forget(conn *endpoint.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[conn]
	if !ok {
		return
	}
	delete(s.states, conn)
	s.freeUIDs = append(s.freeUIDs, st.uid)
}

func (s *chatServer) wireHooks() {
	s.srv.Hooks.On("ptype_ChatUserAuthenticate_received", "chat-register", func(args ...any) {
		conn := args[0].(*endpoint.Conn)
		auth := args[1].(*chat.UserAuthenticate)

		st, err := s.register(conn)
		if err != nil {
			s.srv.Kick(conn, err.Error(), true)
			return
		}
		st.username = auth.Info.Username
		conn.WritePacket(&chat.UserAdd{UID: st.uid, Info: chat.UserInfo{Username: st.username}})

		s.mu.Lock()
		others := make(map[*endpoint.Conn]*clientState, len(s.states))
		for c, o := range s.states {
			others[c] = o
		}
		s.mu.Unlock()
		for other, otherState := range others {
			if other == conn {
				continue
			}
			other.WritePacket(&chat.UserAdd{UID: st.uid, Info: chat.UserInfo{Username: st.username}})
			conn.WritePacket(&chat.UserAdd{UID: otherState.uid, Info: chat.UserInfo{Username: otherState.username}})
		}

		conn.WritePacket(&chat.SVMessage{Sender: "MOTD", Content: motd})
		log.Printf("[chat] %s authenticated as %q (uid %d)", conn.Addr(), st.username, st.uid)
	})

	s.srv.Hooks.On("client_disconnecting", "chat-evict", func(args ...any) {
		conn := args[0].(*endpoint.Conn)
		s.mu.Lock()
		st, ok := s.states[conn]
		s.mu.Unlock()
		if !ok {
			return
		}
		s.forget(conn)
		s.broadcastExcept(conn, &chat.UserRemove{UID: st.uid})
	})

	s.srv.Hooks.On("ptype_ChatSendMessage_received", "chat-broadcast", func(args ...any) {
		conn := args[0].(*endpoint.Conn)
		send := args[1].(*chat.SendMessage)

		s.mu.Lock()
		st, ok := s.states[conn]
		s.mu.Unlock()
		if !ok {
			return
		}
		log.Printf("[chat] %s: %s", st.username, send.Content)
		s.broadcastExcept(nil, &chat.Message{Nonce: send.Nonce, UID: st.uid, Content: send.Content})
	})
}

// broadcastExcept writes p to every connected chat client except exclude
// (pass nil to reach everyone), mirroring the original reference's
// "for broadcast_client in self.get_clients()" fan-out.
func (s *chatServer) broadcastExcept(exclude *endpoint.Conn, p packet.Packet) {
	s.mu.Lock()
	targets := make([]*endpoint.Conn, 0, len(s.states))
	for c := range s.states {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.WritePacket(p)
	}
}

func main() {
	host := flag.String("host", "", "interface to bind")
	port := flag.Int("port", 12345, "port to listen on")
	useHTTP := flag.Bool("zerotrust-http", false, "wrap traffic in HTTP/1.1-looking envelopes")
	flag.Parse()

	keypair, err := handshake.GenerateKeypair()
	if err != nil {
		log.Fatalf("generating server keypair: %v", err)
	}

	opts := []endpoint.ServerOption{}
	if *useHTTP {
		opts = append(opts, endpoint.WithServerZeroTrust(zerotrust.HTTPLayer{}, zerotrust.DefaultChunkSize))
	}

	srv := endpoint.NewServer(*host, *port, keypair, opts...)
	cs := newChatServer(srv)
	cs.wireHooks()

	if err := srv.Listen(8); err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("[chat] serving on %s:%d", *host, *port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("serve: %v", err)
	}
}
