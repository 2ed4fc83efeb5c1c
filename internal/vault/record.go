package vault

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Savvy-Save/Aetherium/internal/crypto"
	"github.com/Savvy-Save/Aetherium/internal/storage"
)

// Protection selects the key material guarding a record's secret fields.
type Protection string

const (
	ProtectionNone       Protection = "none"
	ProtectionSessionKey Protection = "sessionKey"
	ProtectionSecondary  Protection = "secondarySecret"
)

// decryptFailedSuffix marks records whose ciphertext could not be opened
// during a bulk fetch.
const decryptFailedSuffix = " (Decryption Failed)"

var (
	ErrRecordNotFound = errors.New("vault: record not found")
	ErrValidation     = errors.New("vault: invalid record")
)

// SecretRecord is a vault entry as held in the session cache. Username and
// email are plaintext metadata by design (matches the stored shape; an
// accepted scope reduction, not an oversight). SecretPassword and SecretPin
// are plaintext only in memory; for secondary-protected records both stay
// nil until the caller runs UnlockRecord, and the encrypted payload and
// salt ride along so unlocking needs no store round-trip.
type SecretRecord struct {
	ID              string
	Title           string
	Username        string
	Email           string
	SecretPassword  *string
	SecretPin       *string
	ImageBlob       string
	Protection      Protection
	SecondarySalt   string // base64, only when Protection == ProtectionSecondary
	secondaryWrap   *storage.EncryptedField
	DecryptionError bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecord is the plaintext input to AddRecord.
type NewRecord struct {
	Title          string
	Username       string
	Email          string
	SecretPassword string
	SecretPin      string // optional, 4-16 digits
	ImageBlob      string
	Protection     Protection
	// SecondaryPassword is consumed, never stored. Required when
	// Protection is ProtectionSecondary. Losing it later loses the
	// record's protected fields permanently; there is no recovery path.
	SecondaryPassword string
}

// RecordEdit is the full plaintext form of an edited record. Fields equal
// to the cached original are omitted from the store update so their
// ciphertext bytes stay untouched. An empty SecretPin removes an existing
// PIN.
type RecordEdit struct {
	Title          string
	Username       string
	Email          string
	ImageBlob      string
	SecretPassword string
	SecretPin      string
}

func (n NewRecord) validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title required", ErrValidation)
	}
	if n.SecretPassword == "" {
		return fmt.Errorf("%w: password required", ErrValidation)
	}
	if n.Protection == "" {
		return fmt.Errorf("%w: protection required", ErrValidation)
	}
	switch n.Protection {
	case ProtectionNone, ProtectionSessionKey:
	case ProtectionSecondary:
		if n.SecondaryPassword == "" {
			return fmt.Errorf("%w: secondary password required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown protection %q", ErrValidation, n.Protection)
	}
	if n.SecretPin != "" {
		if err := validatePinFormat(n.SecretPin); err != nil {
			return err
		}
	}
	return nil
}

func validatePinFormat(pin string) error {
	if len(pin) < 4 || len(pin) > 16 {
		return fmt.Errorf("%w: pin must be 4-16 digits", ErrValidation)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: pin must be 4-16 digits", ErrValidation)
		}
	}
	return nil
}

// encodeField converts a freshly encrypted value to its stored text form.
func encodeField(ev crypto.EncryptedValue) *storage.EncryptedField {
	return &storage.EncryptedField{
		Nonce:      crypto.EncodeBytes(ev.Nonce),
		Ciphertext: crypto.EncodeBytes(ev.Ciphertext),
	}
}

// decryptField opens a stored field with key, accepting the legacy cipher
// format for records written before the migration.
func decryptField(key crypto.Key, f *storage.EncryptedField) (string, error) {
	nonce, err := crypto.DecodeBytes(f.Nonce)
	if err != nil {
		return "", crypto.ErrDecryptionFailed
	}
	ct, err := crypto.DecodeBytes(f.Ciphertext)
	if err != nil {
		return "", crypto.ErrDecryptionFailed
	}
	return crypto.DecryptAny(key, nonce, ct)
}
