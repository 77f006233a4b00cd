package storage

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Cipher seals and opens sensitive profile fields with NaCl secretbox.
// Each sealed value carries its own random 24-byte nonce prefix, so equal
// plaintexts produce different ciphertexts.
type Cipher struct {
	key [32]byte
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key *[32]byte) *Cipher {
	c := &Cipher{}
	copy(c.key[:], key[:])
	return c
}

// Seal encrypts plaintext. Empty input stays empty so optional fields
// round-trip as NULL-ish values.
func (c *Cipher) Seal(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("storage: generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key), nil
}

// Open decrypts a value produced by Seal.
func (c *Cipher) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < 24+secretbox.Overhead {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
