package models

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSecretDecrypt is returned by SecretString.Reveal when the ciphertext
// cannot be opened with the configured key (wrong key, or key changed after
// encryption).
var ErrSecretDecrypt = errors.New("secret: failed to decrypt")

// SecretKeySize is the key length nacl/secretbox requires.
const SecretKeySize = 32

// SecretCipher encrypts/decrypts SecretStrings. It replaces the source's
// attribute-level intercept (encrypt on set, decrypt on get) with an
// explicit type boundary: a SecretString can only be constructed through
// Encrypt, and can only be read back through Reveal.
//
// When no key is configured, real encryption is disabled but the engine
// must still round-trip stored secrets, so NewSecretCipher falls back to
// a reversible, non-secret base64 encoding —
// the same degrade-gracefully behavior the source falls back to (b64encode/
// b64decode in place of Fernet).
type SecretCipher struct {
	key *[SecretKeySize]byte // nil => base64 fallback, no real encryption
}

// NewSecretCipher builds a cipher from a configured key. An empty key
// selects the base64 fallback.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) == 0 {
		return &SecretCipher{}, nil
	}
	if len(key) != SecretKeySize {
		return nil, fmt.Errorf("secret: encryption key must be %d bytes, got %d", SecretKeySize, len(key))
	}
	var k [SecretKeySize]byte
	copy(k[:], key)
	return &SecretCipher{key: &k}, nil
}

// SecretString is an at-rest encrypted value; the only way to read the
// plaintext back is Reveal, which requires the same cipher used to
// construct it.
type SecretString struct {
	ciphertext []byte
}

// Encrypt wraps plaintext into a SecretString.
func (c *SecretCipher) Encrypt(plaintext string) (SecretString, error) {
	if c.key == nil {
		return SecretString{ciphertext: []byte(base64.StdEncoding.EncodeToString([]byte(plaintext)))}, nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return SecretString{}, fmt.Errorf("secret: failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, c.key)
	return SecretString{ciphertext: sealed}, nil
}

// Reveal decrypts a SecretString back to plaintext.
func (c *SecretCipher) Reveal(s SecretString) (string, error) {
	if c.key == nil {
		plain, err := base64.StdEncoding.DecodeString(string(s.ciphertext))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSecretDecrypt, err)
		}
		return string(plain), nil
	}
	if len(s.ciphertext) < 24 {
		return "", ErrSecretDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], s.ciphertext[:24])
	plain, ok := secretbox.Open(nil, s.ciphertext[24:], &nonce, c.key)
	if !ok {
		return "", ErrSecretDecrypt
	}
	return string(plain), nil
}

// MarshalText lets SecretString round-trip through JSON/env storage as the
// raw ciphertext, never the plaintext.
func (s SecretString) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(s.ciphertext)), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *SecretString) UnmarshalText(text []byte) error {
	raw, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	s.ciphertext = raw
	return nil
}
