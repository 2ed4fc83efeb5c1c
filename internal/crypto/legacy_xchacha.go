package crypto

import (
	xchacha "golang.org/x/crypto/chacha20poly1305"
)

// DecryptAny decrypts like Decrypt but also accepts the legacy
// XChaCha20-Poly1305 format written by clients before the cipher
// migration. Legacy values are recognizable by their 24-byte nonce; current
// AES-GCM values carry 12 bytes. New writes always use Encrypt.
func DecryptAny(key Key, nonce, ciphertext []byte) (string, error) {
	if len(nonce) != xchacha.NonceSizeX {
		return Decrypt(key, nonce, ciphertext)
	}
	aead, err := xchacha.NewX(key)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}
