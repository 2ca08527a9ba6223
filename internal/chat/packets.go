// Package chat is the illustration application layered on the core
// transport: a handful of additional packet types registered into the same
// packet.Core registry the handshake and heartbeat packets share, so chat
// traffic and core traffic ride the same pid space per direction.
//
// Grounded on the original Python reference's
// protocol/packets/chat.py (ChatUserInfo/ChatUserAuthenticate/ChatUserAdd/
// ChatUserRemove/ChatSendMessage/ChatMessage/ChatSVMessage) and the
// SimpleChatClient/SimpleChatServer event-hook wiring in hyphen0/client.py
// and hyphen0/server.py (client_gui/client.py carries the same shape). This
// package is illustration code riding on top of the transport core, not
// part of it — see SPEC_FULL.md's Supplemented features section.
package chat

import (
	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/primitives"
)

// pid assignment continues from wherever packet.Core's core catalog left
// off, in the order declared here, matching the "registration order is
// authoritative" invariant spec.md §4.1 states for the core catalog.
var (
	PIDChatUserAdd    = packet.Core.Register(packet.Clientbound, "ChatUserAdd", func() packet.Packet { return &UserAdd{} })
	PIDChatUserRemove = packet.Core.Register(packet.Clientbound, "ChatUserRemove", func() packet.Packet { return &UserRemove{} })
	PIDChatMessage    = packet.Core.Register(packet.Clientbound, "ChatMessage", func() packet.Packet { return &Message{} })
	PIDChatSVMessage  = packet.Core.Register(packet.Clientbound, "ChatSVMessage", func() packet.Packet { return &SVMessage{} })

	PIDChatUserAuthenticate = packet.Core.Register(packet.Serverbound, "ChatUserAuthenticate", func() packet.Packet { return &UserAuthenticate{} })
	PIDChatSendMessage      = packet.Core.Register(packet.Serverbound, "ChatSendMessage", func() packet.Packet { return &SendMessage{} })
)

// UserInfo is the nested cstruct the original chat.py declares as
// ChatUserInfo: a transparent concatenation of fields with no length or tag
// of its own, exactly spec.md §3's struct{...} descriptor.
type UserInfo struct {
	Username string
}

func (u UserInfo) encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(u.Username))
}

func (u *UserInfo) decode(r *primitives.Reader) error {
	b, err := r.ReadCString()
	if err != nil {
		return err
	}
	u.Username = string(b)
	return nil
}

// UserAuthenticate is the first packet a connecting chat client sends,
// carrying the username it would like to use.
type UserAuthenticate struct {
	Info UserInfo
}

func (*UserAuthenticate) PacketName() string  { return "ChatUserAuthenticate" }
func (*UserAuthenticate) Direction() packet.Direction { return packet.Serverbound }
func (p *UserAuthenticate) Encode(w *primitives.Writer) { p.Info.encode(w) }
func (p *UserAuthenticate) Decode(r *primitives.Reader) error { return p.Info.decode(r) }

// UserAdd announces a user (the newly-authenticated one, or an existing one
// being introduced to a fresh connection) to a client.
type UserAdd struct {
	UID  uint8
	Info UserInfo
}

func (*UserAdd) PacketName() string  { return "ChatUserAdd" }
func (*UserAdd) Direction() packet.Direction { return packet.Clientbound }
func (p *UserAdd) Encode(w *primitives.Writer) {
	w.WriteUint8(p.UID)
	p.Info.encode(w)
}
func (p *UserAdd) Decode(r *primitives.Reader) error {
	uid, err := r.ReadUint8()
	if err != nil {
		return err
	}
	p.UID = uid
	return p.Info.decode(r)
}

// UserRemove announces a user has left.
type UserRemove struct {
	UID uint8
}

func (*UserRemove) PacketName() string  { return "ChatUserRemove" }
func (*UserRemove) Direction() packet.Direction { return packet.Clientbound }
func (p *UserRemove) Encode(w *primitives.Writer) { w.WriteUint8(p.UID) }
func (p *UserRemove) Decode(r *primitives.Reader) error {
	uid, err := r.ReadUint8()
	if err != nil {
		return err
	}
	p.UID = uid
	return nil
}

// SendMessage carries a chat line from a client to the server, nonce-tagged
// so the client can correlate its own echo if it chooses to.
type SendMessage struct {
	Nonce   uint32
	Content string
}

func (*SendMessage) PacketName() string  { return "ChatSendMessage" }
func (*SendMessage) Direction() packet.Direction { return packet.Serverbound }
func (p *SendMessage) Encode(w *primitives.Writer) {
	w.WriteUint32(p.Nonce)
	_ = w.WriteCString([]byte(p.Content))
}
func (p *SendMessage) Decode(r *primitives.Reader) error {
	nonce, err := r.ReadUint32()
	if err != nil {
		return err
	}
	content, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Nonce, p.Content = nonce, string(content)
	return nil
}

// Message is the server's broadcast of another user's chat line.
type Message struct {
	Nonce   uint32
	UID     uint8
	Content string
}

func (*Message) PacketName() string  { return "ChatMessage" }
func (*Message) Direction() packet.Direction { return packet.Clientbound }
func (p *Message) Encode(w *primitives.Writer) {
	w.WriteUint32(p.Nonce)
	w.WriteUint8(p.UID)
	_ = w.WriteCString([]byte(p.Content))
}
func (p *Message) Decode(r *primitives.Reader) error {
	nonce, err := r.ReadUint32()
	if err != nil {
		return err
	}
	uid, err := r.ReadUint8()
	if err != nil {
		return err
	}
	content, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Nonce, p.UID, p.Content = nonce, uid, string(content)
	return nil
}

// SVMessage is a server-originated announcement (e.g. the MOTD) with no
// associated user id, sent as if from a named system sender.
type SVMessage struct {
	Sender  string
	Content string
}

func (*SVMessage) PacketName() string  { return "ChatSVMessage" }
func (*SVMessage) Direction() packet.Direction { return packet.Clientbound }
func (p *SVMessage) Encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(p.Sender))
	_ = w.WriteCString([]byte(p.Content))
}
func (p *SVMessage) Decode(r *primitives.Reader) error {
	sender, err := r.ReadCString()
	if err != nil {
		return err
	}
	content, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Sender, p.Content = string(sender), string(content)
	return nil
}
