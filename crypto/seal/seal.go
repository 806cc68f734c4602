// Package seal encrypts small payloads to an X25519 public key. It is used
// to hand revealed plaintexts to the requester only: the runtime seals, the
// requester opens with the ephemeral key pair it registered in the
// decryption request.
//
// Sealed format: ephemeral public key (32) || nonce (12) || ciphertext+tag.
package seal

import (
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of X25519 public and private keys.
	KeySize = 32

	hkdfInfo = "skillrating-reveal-v1"
)

// KeyPair is an X25519 key pair used to receive sealed values.
type KeyPair struct {
	Private *ecdh.PrivateKey
}

// GenerateKeyPair creates a fresh X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	sk, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("x25519 keygen: %w", err)
	}
	return &KeyPair{Private: sk}, nil
}

// KeyPairFromBytes imports a raw X25519 private key.
func KeyPairFromBytes(sk []byte) (*KeyPair, error) {
	priv, err := ecdh.X25519().NewPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeyPair{Private: priv}, nil
}

// PublicKey returns the raw public key bytes.
func (k *KeyPair) PublicKey() []byte {
	return k.Private.PublicKey().Bytes()
}

// Seal encrypts data to the recipient public key. The associated data is
// authenticated but not encrypted, and must be passed unchanged to Open.
func Seal(recipient, data, associated []byte) ([]byte, error) {
	curve := ecdh.X25519()
	pk, err := curve.NewPublicKey(recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient public key: %w", err)
	}
	eph, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ephemeral keygen: %w", err)
	}
	shared, err := eph.ECDH(pk)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	aead, err := newAEAD(shared, eph.PublicKey().Bytes(), recipient)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	out := make([]byte, 0, KeySize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, eph.PublicKey().Bytes()...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, associated), nil
}

// Open decrypts a payload produced by Seal.
func (k *KeyPair) Open(sealed, associated []byte) ([]byte, error) {
	if len(sealed) < KeySize+chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}
	ephBytes := sealed[:KeySize]
	nonce := sealed[KeySize : KeySize+chacha20poly1305.NonceSize]
	ct := sealed[KeySize+chacha20poly1305.NonceSize:]

	eph, err := ecdh.X25519().NewPublicKey(ephBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral key: %w", err)
	}
	shared, err := k.Private.ECDH(eph)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	aead, err := newAEAD(shared, ephBytes, k.PublicKey())
	if err != nil {
		return nil, err
	}
	data, err := aead.Open(nil, nonce, ct, associated)
	if err != nil {
		return nil, fmt.Errorf("open sealed data: %w", err)
	}
	return data, nil
}

// newAEAD derives the symmetric key with HKDF-SHA256, salted with both
// public keys so a key is bound to one exchange.
func newAEAD(shared, ephPub, recipientPub []byte) (cipher.AEAD, error) {
	salt := make([]byte, 0, 2*KeySize)
	salt = append(salt, ephPub...)
	salt = append(salt, recipientPub...)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return chacha20poly1305.New(key)
}
