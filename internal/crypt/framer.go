package crypt

import (
	"encoding/binary"
	"fmt"

	"github.com/Def-Try/hyphen0/internal/packet"
	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// Framer implements protosocket.Framer, replacing plaintext pid||fields
// framing with u32-length-prefixed AEAD frames once installed via
// ProtoSocket.InstallFramer. This is the CryptSocket specialization of
// spec.md §4.5, realized as a swapped strategy rather than a subclass.
type Framer struct {
	Registry *packet.Registry
	Cipher   AEAD
}

// Encode serializes p's fields via Registry, seals them, and prefixes the
// ciphertext with its u32 little-endian length.
func (f Framer) Encode(p packet.Packet, dir packet.Direction) ([]byte, error) {
	plain, err := f.Registry.Encode(p, dir)
	if err != nil {
		return nil, err
	}
	ciphertext, err := f.Cipher.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(ciphertext))
	binary.LittleEndian.PutUint32(out, uint32(len(ciphertext)))
	copy(out[4:], ciphertext)
	return out, nil
}

// TryDecode reads the length prefix, waits for the full ciphertext to
// arrive, decrypts it, and decodes the resulting plaintext as a packet.
// Any decryption failure is fatal to the connection, matching spec.md
// §4.5's "any decryption failure is fatal" rule — it is returned as an
// ordinary error rather than xerrors.ErrIncompleteData so the caller does
// not mistake it for a short read.
func (f Framer) TryDecode(buf []byte, dir packet.Direction) (int, packet.Packet, error) {
	if len(buf) < 4 {
		return 0, nil, xerrors.ErrIncompleteData
	}
	ciphertextLen := int(binary.LittleEndian.Uint32(buf))
	total := 4 + ciphertextLen
	if len(buf) < total {
		return 0, nil, xerrors.ErrIncompleteData
	}
	plain, err := f.Cipher.Decrypt(buf[4:total])
	if err != nil {
		return 0, nil, err
	}
	consumed, p, err := f.Registry.Decode(plain, dir)
	if err != nil {
		return 0, nil, err
	}
	if consumed != len(plain) {
		return 0, nil, fmt.Errorf("crypt: decrypted frame had %d trailing bytes after packet fields", len(plain)-consumed)
	}
	return total, p, nil
}
