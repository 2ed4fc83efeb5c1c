package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// NonceSize is the AES-GCM nonce length in bytes.
const NonceSize = 12

// ErrDecryptionFailed is returned for every authentication failure: wrong
// key, corrupted ciphertext, or nonce mismatch. The message deliberately
// does not say which, so a caller guessing passwords learns nothing.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// EncryptedValue is a nonce/ciphertext pair as produced by Encrypt. Both
// fields are raw bytes; base64 happens only at the storage boundary.
type EncryptedValue struct {
	Nonce      []byte
	Ciphertext []byte
}

// Encrypt seals plaintext with AES-256-GCM under key, generating a fresh
// random nonce for every call. Nonces are never persisted for reuse;
// repeating a nonce under the same key would break confidentiality.
func Encrypt(key Key, plaintext string) (EncryptedValue, error) {
	aead, err := newGCM(key)
	if err != nil {
		return EncryptedValue{}, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedValue{}, fmt.Errorf("crypto: nonce generation: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return EncryptedValue{Nonce: nonce, Ciphertext: ct}, nil
}

// Decrypt opens an AES-256-GCM ciphertext. Any tag verification failure
// surfaces as ErrDecryptionFailed.
func Decrypt(key Key, nonce, ciphertext []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(nonce) != NonceSize {
		return "", ErrDecryptionFailed
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
