package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the symmetric key length in bytes (256 bits).
	KeySize = 32

	// SaltSize is the minimum salt length accepted by DeriveKey.
	SaltSize = 16

	// Iterations is the fixed PBKDF2 iteration count. Changing it would
	// orphan every ciphertext derived under the old count.
	Iterations = 100_000
)

var ErrKeyDerivation = errors.New("crypto: key derivation failed")

// Key is a symmetric key usable only with Encrypt/Decrypt.
type Key []byte

// DeriveKey stretches a password into a 256-bit key with
// PBKDF2-HMAC-SHA256. Same password and salt always yield the same key;
// that determinism is what lets a password "become" a key without the key
// ever being stored.
func DeriveKey(password string, salt []byte) (Key, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrKeyDerivation)
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d", ErrKeyDerivation, SaltSize, len(salt))
	}
	return Key(pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)), nil
}

// GenerateSalt returns n cryptographically random bytes. Callers generate a
// salt exactly once per identity (primary key) or once per protected record
// (secondary key) and never regenerate it.
func GenerateSalt(n int) ([]byte, error) {
	if n <= 0 {
		n = SaltSize
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return b, nil
}
