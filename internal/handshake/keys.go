// Package handshake drives the six-phase client/server dance that
// negotiates a cipher, exchanges ECDH public keys, derives a shared
// session key, and proves both sides hold it before handing the
// connection off to application traffic.
//
// Grounded on mini-rpc's client.Call / server.Serve multi-step connection
// setup sequencing (discover → balance → transport → call), generalized
// from one RPC round trip to a fixed six-phase handshake; the exact phase
// order and packet names follow the original Python reference's
// hyphen0/client.py and hyphen0/server.py mainloop methods.
package handshake

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keypair is a long-lived P-256 ECDH keypair, injected by the application
// or generated per process if not persisted (spec.md §4.6).
type Keypair struct {
	priv *ecdh.PrivateKey
}

// GenerateKeypair creates a fresh P-256 ECDH keypair from a CSPRNG.
func GenerateKeypair() (*Keypair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromPrivateKey wraps an already-generated P-256 ECDH private key,
// for applications that persist their identity across restarts.
func KeypairFromPrivateKey(priv *ecdh.PrivateKey) *Keypair {
	return &Keypair{priv: priv}
}

// PublicKeyPEM exports this keypair's public half as a PEM-encoded SPKI
// block, the wire format spec.md §4.6 specifies for public key exchange.
func (k *Keypair) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.priv.PublicKey())
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// SharedSecret computes the ECDH shared secret between this keypair's
// private key and a peer's PEM-encoded SPKI public key.
func (k *Keypair) SharedSecret(peerPEM string) ([]byte, error) {
	block, _ := pem.Decode([]byte(peerPEM))
	if block == nil {
		return nil, fmt.Errorf("handshake: peer public key is not valid PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("handshake: parsing peer public key: %w", err)
	}
	ecdhPub, ok := pub.(*ecdh.PublicKey)
	if !ok {
		return nil, fmt.Errorf("handshake: peer public key is not a P-256 ECDH key")
	}
	return k.priv.ECDH(ecdhPub)
}

// DeriveSessionKey runs HKDF-SHA256 over the shared secret with the given
// salt and an empty info string, producing keyLen bytes — spec.md §4.6's
// "HKDF-SHA256(shared_secret, salt=handshake.salt, info=empty,
// length=key_len)".
func DeriveSessionKey(sharedSecret, salt []byte, keyLen int) ([]byte, error) {
	kdf := hkdf.New(sha256.New, sharedSecret, salt, nil)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// RandomSalt draws the 32-byte session salt the server chooses and echoes
// to the client in HandshakeCryptKEXServer.
func RandomSalt() ([32]byte, error) {
	var salt [32]byte
	_, err := rand.Read(salt[:])
	return salt, err
}
