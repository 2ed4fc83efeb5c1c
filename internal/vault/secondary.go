package vault

import (
	"encoding/json"
	"fmt"

	"github.com/Savvy-Save/Aetherium/internal/crypto"
	"github.com/Savvy-Save/Aetherium/internal/storage"
)

// secondaryPayload is the combined plaintext encrypted once under the
// secondary-derived key. Secondary-protected records never store the two
// fields individually.
type secondaryPayload struct {
	Password string `json:"password"`
	Pin      string `json:"pin"`
}

// UnlockedSecrets is the transient result of a successful secondary
// unlock. It is handed to the caller and never written back into the
// shared cache entry; a caller wanting it again re-requests it.
type UnlockedSecrets struct {
	Password string
	Pin      string
}

// encryptSecondaryPayload derives a one-off key from secondaryPassword and
// a fresh salt, and seals {password, pin} as a single payload. The derived
// key is zeroed before returning.
func encryptSecondaryPayload(secondaryPassword, password, pin string) (string, *storage.EncryptedField, error) {
	salt, err := crypto.GenerateSalt(crypto.SaltSize)
	if err != nil {
		return "", nil, err
	}
	key, err := crypto.DeriveKey(secondaryPassword, salt)
	if err != nil {
		return "", nil, err
	}
	defer crypto.Zero(key)

	pt, err := json.Marshal(secondaryPayload{Password: password, Pin: pin})
	if err != nil {
		return "", nil, err
	}
	ev, err := crypto.Encrypt(key, string(pt))
	if err != nil {
		return "", nil, err
	}
	return crypto.EncodeBytes(salt), encodeField(ev), nil
}

// UnlockRecord derives a one-off key from secondaryPassword and the
// record's salt and opens the combined payload. A wrong password and a
// corrupted payload both fail with crypto.ErrDecryptionFailed; they are
// deliberately indistinguishable. There is no recovery path: a lost
// secondary password loses these fields permanently.
func UnlockRecord(rec SecretRecord, secondaryPassword string) (UnlockedSecrets, error) {
	if rec.Protection != ProtectionSecondary {
		return UnlockedSecrets{}, fmt.Errorf("%w: record is not secondary-protected", ErrValidation)
	}
	if rec.secondaryWrap == nil || rec.SecondarySalt == "" {
		return UnlockedSecrets{}, crypto.ErrDecryptionFailed
	}
	salt, err := crypto.DecodeBytes(rec.SecondarySalt)
	if err != nil {
		return UnlockedSecrets{}, crypto.ErrDecryptionFailed
	}
	key, err := crypto.DeriveKey(secondaryPassword, salt)
	if err != nil {
		return UnlockedSecrets{}, err
	}
	defer crypto.Zero(key)

	pt, err := decryptField(key, rec.secondaryWrap)
	if err != nil {
		return UnlockedSecrets{}, crypto.ErrDecryptionFailed
	}
	var payload secondaryPayload
	if err := json.Unmarshal([]byte(pt), &payload); err != nil {
		return UnlockedSecrets{}, crypto.ErrDecryptionFailed
	}
	return UnlockedSecrets{Password: payload.Password, Pin: payload.Pin}, nil
}
