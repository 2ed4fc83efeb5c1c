package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := randBytes(t, SaltSize)
	k1, err := DeriveKey("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("derive 1: %v", err)
	}
	k2, err := DeriveKey("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("derive 2: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("same password+salt produced different keys")
	}

	// The two derivations must decrypt each other's ciphertexts.
	ev, err := Encrypt(k1, "interchangeable")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := Decrypt(k2, ev.Nonce, ev.Ciphertext)
	if err != nil {
		t.Fatalf("decrypt with re-derived key: %v", err)
	}
	if got != "interchangeable" {
		t.Fatalf("plaintext mismatch: %q", got)
	}
}

func TestDeriveKeyDistinctSalts(t *testing.T) {
	s1 := randBytes(t, SaltSize)
	s2 := randBytes(t, SaltSize)
	k1, err := DeriveKey("pw", s1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := DeriveKey("pw", s2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if bytes.Equal(k1, k2) {
		t.Fatal("different salts produced the same key")
	}
}

func TestDeriveKeyRejectsShortSalt(t *testing.T) {
	if _, err := DeriveKey("pw", randBytes(t, SaltSize-1)); err == nil {
		t.Fatal("expected error for short salt")
	}
	if _, err := DeriveKey("", randBytes(t, SaltSize)); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestGenerateSaltLengthAndUniqueness(t *testing.T) {
	s1, err := GenerateSalt(0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(s1) != SaltSize {
		t.Fatalf("default salt length = %d, want %d", len(s1), SaltSize)
	}
	s2, err := GenerateSalt(SaltSize)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Fatal("two generated salts are equal")
	}
}
