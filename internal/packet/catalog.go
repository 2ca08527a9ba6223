package packet

import "github.com/Def-Try/hyphen0/internal/primitives"

// Core is the registry instance holding every packet type the transport
// itself defines. Application layers (see internal/chat) register their own
// packets into the same Registry instance alongside these, rather than
// replacing it, so handshake/heartbeat/kick traffic and application traffic
// share one pid space per direction.
var Core = NewRegistry()

// Clientbound catalog, registered in the order spec.md's packet catalog
// lists them so pids line up across independent implementations.
var (
	PIDHandshakeConfirm         = Core.Register(Clientbound, "HandshakeConfirm", func() Packet { return &HandshakeConfirm{} })
	PIDHandshakeCancel          = Core.Register(Clientbound, "HandshakeCancel", func() Packet { return &HandshakeCancel{} })
	PIDHandshakeCryptModeSelect = Core.Register(Clientbound, "HandshakeCryptModeSelect", func() Packet { return &HandshakeCryptModeSelect{} })
	PIDHandshakeCryptOK         = Core.Register(Clientbound, "HandshakeCryptOK", func() Packet { return &HandshakeCryptOK{} })
	PIDHandshakeCryptKEXServer  = Core.Register(Clientbound, "HandshakeCryptKEXServer", func() Packet { return &HandshakeCryptKEXServer{} })
	PIDHandshakeCryptTestPong   = Core.Register(Clientbound, "HandshakeCryptTestPong", func() Packet { return &HandshakeCryptTestPong{} })
	PIDHeartbeatClientbound     = Core.Register(Clientbound, "HeartbeatClientbound", func() Packet { return &HeartbeatClientbound{} })
	PIDKick                     = Core.Register(Clientbound, "Kick", func() Packet { return &Kick{} })
)

// Serverbound catalog, same ordering discipline.
var (
	PIDHandshakeInitiate       = Core.Register(Serverbound, "HandshakeInitiate", func() Packet { return &HandshakeInitiate{} })
	PIDHandshakeOK             = Core.Register(Serverbound, "HandshakeOK", func() Packet { return &HandshakeOK{} })
	PIDHandshakeCryptModesList = Core.Register(Serverbound, "HandshakeCryptModesList", func() Packet { return &HandshakeCryptModesList{} })
	PIDHandshakeCryptKEXClient = Core.Register(Serverbound, "HandshakeCryptKEXClient", func() Packet { return &HandshakeCryptKEXClient{} })
	PIDHandshakeCryptTestPing  = Core.Register(Serverbound, "HandshakeCryptTestPing", func() Packet { return &HandshakeCryptTestPing{} })
	PIDHeartbeatServerbound    = Core.Register(Serverbound, "HeartbeatServerbound", func() Packet { return &HeartbeatServerbound{} })
	PIDDisconnect              = Core.Register(Serverbound, "Disconnect", func() Packet { return &Disconnect{} })
)

// --- clientbound ---

// HandshakeConfirm answers HandshakeInitiate; it carries no fields.
type HandshakeConfirm struct{}

func (*HandshakeConfirm) PacketName() string                 { return "HandshakeConfirm" }
func (*HandshakeConfirm) Direction() Direction                { return Clientbound }
func (*HandshakeConfirm) Encode(w *primitives.Writer)         {}
func (*HandshakeConfirm) Decode(r *primitives.Reader) error   { return nil }

// HandshakeCancel aborts the handshake with a human-readable reason.
type HandshakeCancel struct {
	Message string
}

func (*HandshakeCancel) PacketName() string  { return "HandshakeCancel" }
func (*HandshakeCancel) Direction() Direction { return Clientbound }
func (p *HandshakeCancel) Encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(p.Message))
}
func (p *HandshakeCancel) Decode(r *primitives.Reader) error {
	b, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Message = string(b)
	return nil
}

// HandshakeCryptModeSelect tells the client which cipher the server picked.
type HandshakeCryptModeSelect struct {
	Mode string
}

func (*HandshakeCryptModeSelect) PacketName() string  { return "HandshakeCryptModeSelect" }
func (*HandshakeCryptModeSelect) Direction() Direction { return Clientbound }
func (p *HandshakeCryptModeSelect) Encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(p.Mode))
}
func (p *HandshakeCryptModeSelect) Decode(r *primitives.Reader) error {
	b, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Mode = string(b)
	return nil
}

// HandshakeCryptOK signals both sides should derive the session key and
// upgrade to AEAD framing.
type HandshakeCryptOK struct{}

func (*HandshakeCryptOK) PacketName() string               { return "HandshakeCryptOK" }
func (*HandshakeCryptOK) Direction() Direction              { return Clientbound }
func (*HandshakeCryptOK) Encode(w *primitives.Writer)       {}
func (*HandshakeCryptOK) Decode(r *primitives.Reader) error { return nil }

// HandshakeCryptKEXServer carries the server's half of the key exchange:
// the session salt, the desired key length, and the server's PEM-encoded
// ECDH public key.
type HandshakeCryptKEXServer struct {
	Salt      [32]byte
	KeyLen    uint16
	PublicKey string
}

func (*HandshakeCryptKEXServer) PacketName() string  { return "HandshakeCryptKEXServer" }
func (*HandshakeCryptKEXServer) Direction() Direction { return Clientbound }
func (p *HandshakeCryptKEXServer) Encode(w *primitives.Writer) {
	w.WriteFixed(p.Salt[:])
	w.WriteUint16(p.KeyLen)
	_ = w.WriteCString([]byte(p.PublicKey))
}
func (p *HandshakeCryptKEXServer) Decode(r *primitives.Reader) error {
	salt, err := r.ReadFixed(32)
	if err != nil {
		return err
	}
	keyLen, err := r.ReadUint16()
	if err != nil {
		return err
	}
	pub, err := r.ReadCString()
	if err != nil {
		return err
	}
	copy(p.Salt[:], salt)
	p.KeyLen = keyLen
	p.PublicKey = string(pub)
	return nil
}

// HandshakeCryptTestPong echoes the client's liveness-test payload back
// verbatim.
type HandshakeCryptTestPong struct {
	Test [512]byte
}

func (*HandshakeCryptTestPong) PacketName() string  { return "HandshakeCryptTestPong" }
func (*HandshakeCryptTestPong) Direction() Direction { return Clientbound }
func (p *HandshakeCryptTestPong) Encode(w *primitives.Writer) {
	w.WriteFixed(p.Test[:])
}
func (p *HandshakeCryptTestPong) Decode(r *primitives.Reader) error {
	b, err := r.ReadFixed(512)
	if err != nil {
		return err
	}
	copy(p.Test[:], b)
	return nil
}

// HeartbeatClientbound is the server-to-client half of the heartbeat
// sublayer; see HeartbeatServerbound for the mirrored type and
// protosocket for the echo rules.
type HeartbeatClientbound struct {
	Initiating bool
	Nonce      uint32
}

func (*HeartbeatClientbound) PacketName() string  { return "HeartbeatClientbound" }
func (*HeartbeatClientbound) Direction() Direction { return Clientbound }
func (p *HeartbeatClientbound) Encode(w *primitives.Writer) {
	w.WriteBool(p.Initiating)
	w.WriteUint32(p.Nonce)
}
func (p *HeartbeatClientbound) Decode(r *primitives.Reader) error {
	initiating, err := r.ReadBool()
	if err != nil {
		return err
	}
	nonce, err := r.ReadUint32()
	if err != nil {
		return err
	}
	p.Initiating = initiating
	p.Nonce = nonce
	return nil
}

// Kick is sent by the server to forcibly end a connection, graceful or not.
type Kick struct {
	Message string
}

func (*Kick) PacketName() string  { return "Kick" }
func (*Kick) Direction() Direction { return Clientbound }
func (p *Kick) Encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(p.Message))
}
func (p *Kick) Decode(r *primitives.Reader) error {
	b, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Message = string(b)
	return nil
}

// --- serverbound ---

// HandshakeInitiate opens the handshake dance; it carries no fields.
type HandshakeInitiate struct{}

func (*HandshakeInitiate) PacketName() string               { return "HandshakeInitiate" }
func (*HandshakeInitiate) Direction() Direction              { return Serverbound }
func (*HandshakeInitiate) Encode(w *primitives.Writer)       {}
func (*HandshakeInitiate) Decode(r *primitives.Reader) error { return nil }

// HandshakeOK commits the handshake; sent by the client once the cipher
// test has matched.
type HandshakeOK struct{}

func (*HandshakeOK) PacketName() string               { return "HandshakeOK" }
func (*HandshakeOK) Direction() Direction              { return Serverbound }
func (*HandshakeOK) Encode(w *primitives.Writer)       {}
func (*HandshakeOK) Decode(r *primitives.Reader) error { return nil }

// HandshakeCryptModesList is the client's ordered list of supported cipher
// names, offered for the server to intersect against its own.
type HandshakeCryptModesList struct {
	Modes []string
}

func (*HandshakeCryptModesList) PacketName() string  { return "HandshakeCryptModesList" }
func (*HandshakeCryptModesList) Direction() Direction { return Serverbound }
func (p *HandshakeCryptModesList) Encode(w *primitives.Writer) {
	primitives.WriteArray(w, p.Modes, func(w *primitives.Writer, s string) {
		_ = w.WriteCString([]byte(s))
	})
}
func (p *HandshakeCryptModesList) Decode(r *primitives.Reader) error {
	modes, err := primitives.ReadArray(r, func(r *primitives.Reader) (string, error) {
		b, err := r.ReadCString()
		return string(b), err
	})
	if err != nil {
		return err
	}
	p.Modes = modes
	return nil
}

// HandshakeCryptKEXClient carries the client's PEM-encoded ECDH public key,
// completing the key exchange started by HandshakeCryptKEXServer.
type HandshakeCryptKEXClient struct {
	PublicKey string
}

func (*HandshakeCryptKEXClient) PacketName() string  { return "HandshakeCryptKEXClient" }
func (*HandshakeCryptKEXClient) Direction() Direction { return Serverbound }
func (p *HandshakeCryptKEXClient) Encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(p.PublicKey))
}
func (p *HandshakeCryptKEXClient) Decode(r *primitives.Reader) error {
	b, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.PublicKey = string(b)
	return nil
}

// HandshakeCryptTestPing carries 512 random bytes the server must echo
// verbatim over the newly-installed cipher, proving both sides derived the
// same session key.
type HandshakeCryptTestPing struct {
	Test [512]byte
}

func (*HandshakeCryptTestPing) PacketName() string  { return "HandshakeCryptTestPing" }
func (*HandshakeCryptTestPing) Direction() Direction { return Serverbound }
func (p *HandshakeCryptTestPing) Encode(w *primitives.Writer) {
	w.WriteFixed(p.Test[:])
}
func (p *HandshakeCryptTestPing) Decode(r *primitives.Reader) error {
	b, err := r.ReadFixed(512)
	if err != nil {
		return err
	}
	copy(p.Test[:], b)
	return nil
}

// HeartbeatServerbound is the client-to-server half of the heartbeat
// sublayer.
type HeartbeatServerbound struct {
	Initiating bool
	Nonce      uint32
}

func (*HeartbeatServerbound) PacketName() string  { return "HeartbeatServerbound" }
func (*HeartbeatServerbound) Direction() Direction { return Serverbound }
func (p *HeartbeatServerbound) Encode(w *primitives.Writer) {
	w.WriteBool(p.Initiating)
	w.WriteUint32(p.Nonce)
}
func (p *HeartbeatServerbound) Decode(r *primitives.Reader) error {
	initiating, err := r.ReadBool()
	if err != nil {
		return err
	}
	nonce, err := r.ReadUint32()
	if err != nil {
		return err
	}
	p.Initiating = initiating
	p.Nonce = nonce
	return nil
}

// Disconnect is sent by the client to gracefully end its own connection.
type Disconnect struct {
	Message string
}

func (*Disconnect) PacketName() string  { return "Disconnect" }
func (*Disconnect) Direction() Direction { return Serverbound }
func (p *Disconnect) Encode(w *primitives.Writer) {
	_ = w.WriteCString([]byte(p.Message))
}
func (p *Disconnect) Decode(r *primitives.Reader) error {
	b, err := r.ReadCString()
	if err != nil {
		return err
	}
	p.Message = string(b)
	return nil
}
