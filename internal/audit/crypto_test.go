package audit

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey("correct horse", []byte("salt"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if len(k1) != keySize {
		t.Fatalf("key length = %d, want %d", len(k1), keySize)
	}
	k2, _ := DeriveKey("correct horse", []byte("salt"))
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt should derive the same key")
	}
	k3, _ := DeriveKey("correct horse", []byte("pepper"))
	if bytes.Equal(k1, k3) {
		t.Error("different salt should derive a different key")
	}
	if _, err := DeriveKey("", nil); !errors.Is(err, ErrNoKey) {
		t.Errorf("empty passphrase err = %v, want ErrNoKey", err)
	}
}

func testSealer(t *testing.T) *sealer {
	t.Helper()
	key, err := DeriveKey("test-passphrase", nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := newSealer(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := testSealer(t)
	plain := []byte(`[{"type":"privacy","severity":"medium"}]`)

	a, err := s.seal(plain)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, _ := s.seal(plain)
	if bytes.Equal(a, b) {
		t.Error("two seals of the same payload should use different nonces")
	}
	if len(a) != nonceSize+len(plain)+s.aead.Overhead() {
		t.Errorf("sealed length = %d", len(a))
	}

	got, err := s.open(a)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("open = %q, want %q", got, plain)
	}
}

func TestSealer_RejectsTampering(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.seal([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"flipped ciphertext bit", func(b []byte) []byte { b[nonceSize] ^= 0x01; return b }},
		{"flipped tag bit", func(b []byte) []byte { b[len(b)-1] ^= 0x80; return b }},
		{"flipped nonce bit", func(b []byte) []byte { b[0] ^= 0x01; return b }},
		{"truncated", func(b []byte) []byte { return b[:nonceSize+4] }},
		{"empty", func([]byte) []byte { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.mutate(append([]byte(nil), sealed...))
			if _, err := s.open(in); !errors.Is(err, ErrCiphertext) {
				t.Errorf("open err = %v, want ErrCiphertext", err)
			}
		})
	}
}

func TestSealer_WrongKey(t *testing.T) {
	s := testSealer(t)
	sealed, _ := s.seal([]byte("payload"))

	otherKey, _ := DeriveKey("other-passphrase", nil)
	other, err := newSealer(otherKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.open(sealed); !errors.Is(err, ErrCiphertext) {
		t.Errorf("open with wrong key err = %v, want ErrCiphertext", err)
	}
}

func TestNewSealer_KeyLength(t *testing.T) {
	if _, err := newSealer(nil); !errors.Is(err, ErrNoKey) {
		t.Errorf("nil key err = %v, want ErrNoKey", err)
	}
	if _, err := newSealer(make([]byte, 16)); err == nil {
		t.Error("expected error for 16-byte key")
	}
}
