package audit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrNoKey is returned when encryption is requested without key material.
	ErrNoKey = errors.New("audit: encryption key not configured")
	// ErrCiphertext is returned when a sealed payload cannot be opened.
	ErrCiphertext = errors.New("audit: malformed or tampered ciphertext")
)

const (
	keySize   = 32 // AES-256
	nonceSize = 16
)

var hkdfInfo = []byte("constitutional-audit-violations-v1")

// DeriveKey stretches a passphrase into a 32-byte AES key with HKDF-SHA256.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrNoKey
	}
	r := hkdf.New(sha256.New, []byte(passphrase), salt, hkdfInfo)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("DeriveKey: %w", err)
	}
	return key, nil
}

// sealer encrypts violation payloads with AES-256-GCM and a random 16-byte
// nonce per record. Output layout is nonce || ciphertext || tag.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("newSealer: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("newSealer: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("newSealer: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+s.aead.Overhead() {
		return nil, ErrCiphertext
	}
	plaintext, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return plaintext, nil
}
