// Command chat-client is the terminal half of the illustration chat
// application: it authenticates with a username, prints user join/leave and
// message events as they're dispatched through Client.Hooks, and reads
// stdin lines to send as chat messages, mirroring SimpleChatClient's event
// wiring in the original Python reference's hyphen0/client.py.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/Def-Try/hyphen0/internal/chat"
	"github.com/Def-Try/hyphen0/internal/endpoint"
	"github.com/Def-Try/hyphen0/internal/handshake"
	"github.com/Def-Try/hyphen0/internal/zerotrust"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 12345, "server port")
	username := flag.String("username", "", "chat username to authenticate with")
	useHTTP := flag.Bool("zerotrust-http", false, "wrap traffic in HTTP/1.1-looking envelopes")
	flag.Parse()

	if *username == "" {
		fmt.Println("usage: chat-client -username <name> [-host host] [-port port]")
		os.Exit(2)
	}

	keypair, err := handshake.GenerateKeypair()
	if err != nil {
		log.Fatalf("generating client keypair: %v", err)
	}

	opts := []endpoint.ClientOption{}
	if *useHTTP {
		opts = append(opts, endpoint.WithZeroTrust(zerotrust.HTTPLayer{}, zerotrust.DefaultChunkSize))
	}

	client := endpoint.NewClient(*host, *port, keypair, opts...)

	userNames := map[uint8]string{}
	client.Hooks.On("client_connected", "chat-auth", func(args ...any) {
		client.WritePacket(&chat.UserAuthenticate{Info: chat.UserInfo{Username: *username}})
	})
	client.Hooks.On("ptype_ChatUserAdd_received", "chat-track", func(args ...any) {
		p := args[0].(*chat.UserAdd)
		userNames[p.UID] = p.Info.Username
		fmt.Printf("* %s joined\n", p.Info.Username)
	})
	client.Hooks.On("ptype_ChatUserRemove_received", "chat-untrack", func(args ...any) {
		p := args[0].(*chat.UserRemove)
		name := userNames[p.UID]
		delete(userNames, p.UID)
		fmt.Printf("* %s left\n", name)
	})
	client.Hooks.On("ptype_ChatMessage_received", "chat-print", func(args ...any) {
		p := args[0].(*chat.Message)
		fmt.Printf("<%s> %s\n", userNames[p.UID], p.Content)
	})
	client.Hooks.On("ptype_ChatSVMessage_received", "chat-print-sv", func(args ...any) {
		p := args[0].(*chat.SVMessage)
		fmt.Printf("[%s] %s\n", p.Sender, p.Content)
	})

	if err := client.Connect(0); err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Printf("connected, cipher=%s\n", client.CipherName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			client.WritePacket(&chat.SendMessage{Nonce: rand.Uint32(), Content: line})
		}
		cancel()
	}()

	if err := <-runErr; err != nil {
		log.Printf("connection ended: %v", err)
	}
}
