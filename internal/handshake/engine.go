package handshake

import (
	"crypto/rand"
	"crypto/subtle"
	"time"

	"github.com/Def-Try/hyphen0/internal/crypt"
	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/protosocket"
	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// StepTimeout bounds how long each handshake phase waits for its expected
// reply before failing the connection.
const StepTimeout = 10 * time.Second

// Emitter is the narrow slice of EventHub this package depends on, kept as
// a local interface so handshake doesn't need to import eventhub directly
// — any type with a matching Emit method (eventhub.Hub included) works.
type Emitter interface {
	Emit(event string, args ...any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, ...any) {}

// Result carries what a completed handshake produced: the derived session
// key and the cipher name both sides agreed on.
type Result struct {
	SessionKey []byte
	CipherName string
}

// installCipher builds a GCMCipher from the derived key and swaps the
// socket's framer, the Go composition this module uses in place of the
// reference implementation's subclass-swap ("cast") of a ProtoSocket into
// a CryptSocket.
func installCipher(socket *protosocket.ProtoSocket, sessionKey []byte) error {
	cipher, err := crypt.NewGCMCipher(sessionKey)
	if err != nil {
		return err
	}
	socket.InstallFramer(crypt.Framer{Registry: packet.Core, Cipher: cipher})
	return nil
}

func waitFor[T packet.Packet](socket *protosocket.ProtoSocket, timeout time.Duration) (T, error) {
	var zero T
	p, err := socket.WaitForPacket(func(p packet.Packet) bool {
		_, ok := p.(T)
		return ok
	}, timeout)
	if err != nil {
		return zero, err
	}
	return p.(T), nil
}

// RunClient drives the client side of the handshake described in spec.md
// §4.6 over socket, offering cipherModes in preference order, and using
// keypair as this endpoint's long-lived ECDH identity. emit may be nil.
func RunClient(socket *protosocket.ProtoSocket, keypair *Keypair, cipherModes []string, emit Emitter) (*Result, error) {
	if emit == nil {
		emit = noopEmitter{}
	}

	// Phase 1: init.
	socket.WritePacket(&packet.HandshakeInitiate{})
	if _, err := waitFor[*packet.HandshakeConfirm](socket, StepTimeout); err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeConfirm", err)
	}
	emit.Emit("client_handshake")

	// Phase 2: cipher negotiation.
	socket.WritePacket(&packet.HandshakeCryptModesList{Modes: cipherModes})
	selected, cancel, err := waitForModeSelectOrCancel(socket)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for cipher negotiation reply", err)
	}
	if cancel != nil {
		emit.Emit("crypt_modeselectfail")
		emit.Emit("client_killed")
		return nil, xerrors.NewHandshakeFailure("server cancelled: "+cancel.Message, nil)
	}
	emit.Emit("crypt_modeselected", selected.Mode)

	// Phase 3: key exchange.
	kexServer, err := waitFor[*packet.HandshakeCryptKEXServer](socket, StepTimeout)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeCryptKEXServer", err)
	}
	clientPub, err := keypair.PublicKeyPEM()
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("exporting client public key", err)
	}
	socket.WritePacket(&packet.HandshakeCryptKEXClient{PublicKey: clientPub})
	emit.Emit("crypt_kexok")

	// Phase 4: cipher ready.
	secret, err := keypair.SharedSecret(kexServer.PublicKey)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("computing ECDH shared secret", err)
	}
	emit.Emit("crypt_starting")
	sessionKey, err := DeriveSessionKey(secret, kexServer.Salt[:], int(kexServer.KeyLen))
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("deriving session key", err)
	}
	if _, err := waitFor[*packet.HandshakeCryptOK](socket, StepTimeout); err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeCryptOK", err)
	}
	if err := installCipher(socket, sessionKey); err != nil {
		return nil, xerrors.NewHandshakeFailure("installing session cipher", err)
	}

	// Phase 5: cipher test.
	var test [512]byte
	if _, err := rand.Read(test[:]); err != nil {
		return nil, xerrors.NewHandshakeFailure("generating cipher test payload", err)
	}
	socket.WritePacket(&packet.HandshakeCryptTestPing{Test: test})
	pong, err := waitFor[*packet.HandshakeCryptTestPong](socket, StepTimeout)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeCryptTestPong", err)
	}
	if subtle.ConstantTimeCompare(pong.Test[:], test[:]) != 1 {
		emit.Emit("crypt_testfail")
		return nil, xerrors.NewHandshakeFailure("cipher test echo mismatch", nil)
	}
	emit.Emit("crypt_complete")

	// Phase 6: commit.
	socket.WritePacket(&packet.HandshakeOK{})

	return &Result{SessionKey: sessionKey, CipherName: selected.Mode}, nil
}

// RunServer drives the server side of the handshake. supportedModes is
// this server's ordered cipher preference list, used to resolve the
// intersection with whatever the client offers.
func RunServer(socket *protosocket.ProtoSocket, keypair *Keypair, supportedModes []string, emit Emitter) (*Result, error) {
	if emit == nil {
		emit = noopEmitter{}
	}

	// Phase 1: init.
	if _, err := waitFor[*packet.HandshakeInitiate](socket, StepTimeout); err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeInitiate", err)
	}
	socket.WritePacket(&packet.HandshakeConfirm{})

	// Phase 2: cipher negotiation.
	modesList, err := waitFor[*packet.HandshakeCryptModesList](socket, StepTimeout)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeCryptModesList", err)
	}
	selected, ok := intersectModes(supportedModes, modesList.Modes)
	if !ok {
		reason := "no shared encryption modes found"
		emit.Emit("crypt_modeselectfail")
		socket.WritePacket(&packet.HandshakeCancel{Message: reason})
		if err := socket.FlushOutbound(); err != nil {
			return nil, xerrors.NewHandshakeFailure("sending HandshakeCancel", err)
		}
		emit.Emit("client_killed")
		return nil, xerrors.NewHandshakeFailure(reason, nil)
	}
	socket.WritePacket(&packet.HandshakeCryptModeSelect{Mode: selected})

	// Phase 3: key exchange.
	salt, err := RandomSalt()
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("generating session salt", err)
	}
	serverPub, err := keypair.PublicKeyPEM()
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("exporting server public key", err)
	}
	const keyLen = crypt.KeyLen
	socket.WritePacket(&packet.HandshakeCryptKEXServer{Salt: salt, KeyLen: keyLen, PublicKey: serverPub})
	kexClient, err := waitFor[*packet.HandshakeCryptKEXClient](socket, StepTimeout)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeCryptKEXClient", err)
	}

	// Phase 4: cipher ready.
	secret, err := keypair.SharedSecret(kexClient.PublicKey)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("computing ECDH shared secret", err)
	}
	sessionKey, err := DeriveSessionKey(secret, salt[:], keyLen)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("deriving session key", err)
	}
	socket.WritePacket(&packet.HandshakeCryptOK{})
	if err := socket.FlushOutbound(); err != nil {
		return nil, xerrors.NewHandshakeFailure("sending HandshakeCryptOK", err)
	}
	if err := installCipher(socket, sessionKey); err != nil {
		return nil, xerrors.NewHandshakeFailure("installing session cipher", err)
	}

	// Phase 5: cipher test.
	ping, err := waitFor[*packet.HandshakeCryptTestPing](socket, StepTimeout)
	if err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeCryptTestPing", err)
	}
	socket.WritePacket(&packet.HandshakeCryptTestPong{Test: ping.Test})

	// Phase 6: commit.
	if _, err := waitFor[*packet.HandshakeOK](socket, StepTimeout); err != nil {
		return nil, xerrors.NewHandshakeFailure("waiting for HandshakeOK", err)
	}

	return &Result{SessionKey: sessionKey, CipherName: selected}, nil
}

// intersectModes walks ours in order and returns the first name also
// present in theirs — spec.md §4.6's "the server computes the intersection
// with its own and picks the first element of the resulting set in its own
// iteration order".
func intersectModes(ours, theirs []string) (string, bool) {
	set := make(map[string]struct{}, len(theirs))
	for _, name := range theirs {
		set[name] = struct{}{}
	}
	for _, name := range ours {
		if _, ok := set[name]; ok {
			return name, true
		}
	}
	return "", false
}

// waitForModeSelectOrCancel waits for either a HandshakeCryptModeSelect or
// a HandshakeCancel, since the server may reject the client's cipher
// offer outright.
func waitForModeSelectOrCancel(socket *protosocket.ProtoSocket) (*packet.HandshakeCryptModeSelect, *packet.HandshakeCancel, error) {
	p, err := socket.WaitForPacket(func(p packet.Packet) bool {
		switch p.(type) {
		case *packet.HandshakeCryptModeSelect, *packet.HandshakeCancel:
			return true
		default:
			return false
		}
	}, StepTimeout)
	if err != nil {
		return nil, nil, err
	}
	if sel, ok := p.(*packet.HandshakeCryptModeSelect); ok {
		return sel, nil, nil
	}
	return nil, p.(*packet.HandshakeCancel), nil
}
