// Package crypt implements the AEAD cipher abstraction and the
// length-prefixed encrypted packet framing installed once a handshake
// derives a session key. On the wire each packet becomes
// u32 length || nonce || AEAD-sealed(pid || fields); before a cipher is
// installed a ProtoSocket keeps using protosocket.PlainFramer, so
// handshake packets always travel in the clear as spec.md §4.5 requires.
//
// Grounded on mini-rpc's protocol.Encode/Decode length-prefix discipline
// (protocol/protocol.go), re-applied here over ciphertext instead of a
// plaintext RPC body.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// KeyLen is the AES-256 key size spec.md's "aes" cipher-mode profile
// requests ("key_len is 32 for the AES-OCB profile" — AES-256-GCM keeps
// the same 32-byte key size).
const KeyLen = 32

// AEAD is the cipher abstraction Framer drives: Encrypt returns
// nonce || sealed-ciphertext, Decrypt is its inverse. Any decryption
// failure is fatal to the connection per spec.md §4.5.
type AEAD interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(framed []byte) ([]byte, error)
}

// GCMCipher is the AES-256-GCM AEAD backing the "aes" cipher-mode name.
//
// spec.md's reference profile is AES-OCB with a 15-byte nonce and 16-byte
// tag; no maintained third-party AES-OCB implementation exists anywhere in
// the retrieval pack (see DESIGN.md), so this substitutes the stdlib's
// AES-GCM — built from the same underlying crypto/aes block cipher —
// keeping the substitution inside stdlib crypto primitives rather than
// reaching for an unrelated AEAD. The nonce is 12 bytes (GCM's standard
// size, not OCB's 15) and is generated fresh per message from a CSPRNG,
// matching spec.md §9(ii)'s own verification note about nonce uniqueness.
type GCMCipher struct {
	aead cipher.AEAD
}

// NewGCMCipher builds a GCMCipher from a 32-byte session key.
func NewGCMCipher(key []byte) (*GCMCipher, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("crypt: session key must be %d bytes, got %d", KeyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &GCMCipher{aead: aead}, nil
}

// Encrypt seals plain under a fresh random nonce and returns nonce||sealed.
func (c *GCMCipher) Encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := c.aead.Seal(nil, nonce, plain, nil)
	return append(nonce, sealed...), nil
}

// Decrypt splits framed into nonce||sealed and opens it.
func (c *GCMCipher) Decrypt(framed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(framed) < n {
		return nil, fmt.Errorf("crypt: ciphertext shorter than nonce size %d", n)
	}
	nonce, sealed := framed[:n], framed[n:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypt: decryption failed: %w", err)
	}
	return plain, nil
}
