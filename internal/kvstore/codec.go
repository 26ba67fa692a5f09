package kvstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms persisted payloads before they reach a backend.
type Codec interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(encoded []byte) ([]byte, error)
}

// Passthrough stores payloads unchanged. It is the default for non-sensitive data.
type Passthrough struct{}

func (Passthrough) Name() string { return "none" }

func (Passthrough) Encode(plain []byte) ([]byte, error) { return plain, nil }

func (Passthrough) Decode(encoded []byte) ([]byte, error) { return encoded, nil }

// XORObfuscator XORs payloads with a repeating key and base64-encodes the
// result so stored values are not readable at a glance.
//
// This is obfuscation, NOT encryption. Anyone with access to the store and
// one known plaintext can recover the key. Use SealedCodec when the data
// needs confidentiality.
type XORObfuscator struct {
	key []byte
}

// NewXORObfuscator returns an obfuscator for the given key.
func NewXORObfuscator(key string) (*XORObfuscator, error) {
	if key == "" {
		return nil, errors.New("kvstore: obfuscation key must not be empty")
	}
	return &XORObfuscator{key: []byte(key)}, nil
}

func (o *XORObfuscator) Name() string { return "obfuscate" }

func (o *XORObfuscator) Encode(plain []byte) ([]byte, error) {
	mixed := o.xor(plain)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(mixed)))
	base64.StdEncoding.Encode(out, mixed)
	return out, nil
}

func (o *XORObfuscator) Decode(encoded []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(raw, encoded)
	if err != nil {
		return nil, fmt.Errorf("kvstore: deobfuscate: %w", err)
	}
	return o.xor(raw[:n]), nil
}

func (o *XORObfuscator) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ o.key[i%len(o.key)]
	}
	return out
}

// SealedCodec encrypts payloads with XChaCha20-Poly1305. Each payload gets a
// random 24-byte nonce, stored in front of the ciphertext.
type SealedCodec struct {
	aead cipher.AEAD
}

// NewSealedCodec returns a codec for a 32-byte key.
func NewSealedCodec(key []byte) (*SealedCodec, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("kvstore: sealed codec: %w", err)
	}
	return &SealedCodec{aead: aead}, nil
}

func (s *SealedCodec) Name() string { return "sealed" }

func (s *SealedCodec) Encode(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("kvstore: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *SealedCodec) Decode(encoded []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(encoded) < ns+s.aead.Overhead() {
		return nil, errors.New("kvstore: sealed payload too short")
	}
	plain, err := s.aead.Open(nil, encoded[:ns], encoded[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open sealed payload: %w", err)
	}
	return plain, nil
}
