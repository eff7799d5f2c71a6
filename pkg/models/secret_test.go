package models

import "testing"

func TestSecretCipher_Base64FallbackRoundTrips(t *testing.T) {
	c, err := NewSecretCipher(nil)
	if err != nil {
		t.Fatalf("NewSecretCipher(nil): %v", err)
	}
	enc, err := c.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plain, err := c.Reveal(enc)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if plain != "hunter2" {
		t.Fatalf("Reveal() = %q, want hunter2", plain)
	}
}

func TestSecretCipher_SecretboxRoundTrips(t *testing.T) {
	key := make([]byte, SecretKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewSecretCipher(key)
	if err != nil {
		t.Fatalf("NewSecretCipher: %v", err)
	}
	enc, err := c.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plain, err := c.Reveal(enc)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if plain != "hunter2" {
		t.Fatalf("Reveal() = %q, want hunter2", plain)
	}
}

func TestSecretCipher_RejectsWrongKeySize(t *testing.T) {
	if _, err := NewSecretCipher([]byte("too-short")); err == nil {
		t.Fatal("expected error for wrong key size")
	}
}

func TestSecretCipher_RevealFailsWithDifferentKey(t *testing.T) {
	key1 := make([]byte, SecretKeySize)
	key2 := make([]byte, SecretKeySize)
	key2[0] = 1
	c1, _ := NewSecretCipher(key1)
	c2, _ := NewSecretCipher(key2)

	enc, err := c1.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Reveal(enc); err == nil {
		t.Fatal("expected decrypt failure with mismatched key")
	}
}

func TestSecretString_MarshalUnmarshalTextRoundTrips(t *testing.T) {
	c, _ := NewSecretCipher(nil)
	enc, err := c.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	text, err := enc.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var roundTripped SecretString
	if err := roundTripped.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	plain, err := c.Reveal(roundTripped)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if plain != "hunter2" {
		t.Fatalf("Reveal() after round trip = %q, want hunter2", plain)
	}
}
