package vault

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/audit"
	"github.com/Savvy-Save/Aetherium/internal/crypto"
	"github.com/Savvy-Save/Aetherium/internal/session"
	"github.com/Savvy-Save/Aetherium/internal/storage"
)

// Service is the secret record model: it owns the cache, talks to the
// record store, and is the only component that encrypts or decrypts record
// fields. One Service serves one session; it is constructed around a
// session.Manager rather than ambient globals so isolated sessions (and
// tests) can run side by side.
type Service struct {
	store   storage.RecordStore
	session *session.Manager
	cache   *Cache
	auditor *audit.Log
	logger  *zap.Logger
}

func NewService(store storage.RecordStore, sess *session.Manager, auditor *audit.Log, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		session: sess,
		cache:   NewCache(),
		auditor: auditor,
		logger:  logger,
	}
	// Key and cache reset together.
	sess.OnClear(s.cache.Clear)
	return s
}

// Cache exposes read access for the UI layer. Consumers read records only
// from here, never from the store.
func (s *Service) Cache() *Cache { return s.cache }

// FetchAndDecryptAll loads every stored record for the session's identity,
// decrypts session-key-protected fields, and atomically replaces the cache
// with the result. A record whose ciphertext fails to open is kept with
// DecryptionError set and its title suffixed, so one corrupt record never
// blocks the rest of the vault. Secondary-protected records are returned
// locked, with nil secret fields.
func (s *Service) FetchAndDecryptAll(ctx context.Context) ([]SecretRecord, error) {
	key, err := s.session.Key()
	if err != nil {
		return nil, err
	}
	userID := s.session.UserID()

	docs, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("vault: list records: %w", err)
	}

	records := make([]SecretRecord, 0, len(docs))
	failed := 0
	for _, doc := range docs {
		rec := s.decryptDocument(key, doc)
		if rec.DecryptionError {
			failed++
		}
		records = append(records, rec)
	}
	s.cache.Replace(records)

	if s.auditor != nil {
		s.auditor.Append("vault.fetch user=%s records=%d failed=%d", userID, len(records), failed)
	}
	if failed > 0 {
		s.logger.Warn("some records failed to decrypt",
			zap.String("user", userID), zap.Int("failed", failed))
	}
	return s.cache.All(), nil
}

func (s *Service) decryptDocument(key crypto.Key, doc storage.RecordDocument) SecretRecord {
	rec := SecretRecord{
		ID:            doc.ID,
		Title:         doc.Title,
		Username:      doc.Username,
		Email:         doc.Email,
		ImageBlob:     doc.ImageBlob,
		Protection:    Protection(doc.Protection),
		SecondarySalt: doc.SecondarySalt,
		secondaryWrap: doc.SecondaryPayload,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}

	if rec.Protection == ProtectionSecondary {
		// Locked until the caller supplies the secondary password.
		return rec
	}

	if doc.EncryptedPassword != nil {
		pw, err := decryptField(key, doc.EncryptedPassword)
		if err != nil {
			return markFailed(rec)
		}
		rec.SecretPassword = &pw
	}
	if doc.EncryptedPin != nil {
		pin, err := decryptField(key, doc.EncryptedPin)
		if err != nil {
			return markFailed(rec)
		}
		rec.SecretPin = &pin
	}
	return rec
}

func markFailed(rec SecretRecord) SecretRecord {
	rec.DecryptionError = true
	rec.SecretPassword = nil
	rec.SecretPin = nil
	rec.Title += decryptFailedSuffix
	return rec
}

// AddRecord validates and encrypts a new record, writes it to the store,
// and only then appends it to the cache. A failed store write leaves the
// cache untouched.
func (s *Service) AddRecord(ctx context.Context, rec NewRecord) (string, error) {
	key, err := s.session.Key()
	if err != nil {
		return "", err
	}
	if err := rec.validate(); err != nil {
		return "", err
	}
	userID := s.session.UserID()

	doc := storage.RecordDocument{
		Owner:      userID,
		Title:      rec.Title,
		Username:   rec.Username,
		Email:      rec.Email,
		ImageBlob:  rec.ImageBlob,
		Protection: string(rec.Protection),
	}

	cached := SecretRecord{
		Title:      rec.Title,
		Username:   rec.Username,
		Email:      rec.Email,
		ImageBlob:  rec.ImageBlob,
		Protection: rec.Protection,
	}

	if rec.Protection == ProtectionSecondary {
		saltB64, wrap, err := encryptSecondaryPayload(rec.SecondaryPassword, rec.SecretPassword, rec.SecretPin)
		if err != nil {
			return "", err
		}
		// Only the combined payload and its salt are stored; the
		// individual plaintext fields and the secondary password never
		// leave this function.
		doc.SecondarySalt = saltB64
		doc.SecondaryPayload = wrap
		cached.SecondarySalt = saltB64
		cached.secondaryWrap = wrap
	} else {
		ev, err := crypto.Encrypt(key, rec.SecretPassword)
		if err != nil {
			return "", err
		}
		doc.EncryptedPassword = encodeField(ev)
		pw := rec.SecretPassword
		cached.SecretPassword = &pw

		if rec.SecretPin != "" {
			ev, err := crypto.Encrypt(key, rec.SecretPin)
			if err != nil {
				return "", err
			}
			doc.EncryptedPin = encodeField(ev)
			pin := rec.SecretPin
			cached.SecretPin = &pin
		}
	}

	stored, err := s.store.Create(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("vault: create record: %w", err)
	}
	// Carry the store-assigned id and timestamps into the cache so a read
	// right after the add matches what a fresh fetch would return.
	cached.ID = stored.ID
	cached.CreatedAt = stored.CreatedAt
	cached.UpdatedAt = stored.UpdatedAt
	s.cache.Insert(cached)

	if s.auditor != nil {
		s.auditor.Append("record.add user=%s id=%s protection=%s", userID, stored.ID, rec.Protection)
	}
	return stored.ID, nil
}

// EditRecord re-encrypts only the fields that changed relative to the
// cached original; unchanged fields are omitted from the store update so
// their ciphertext bytes are preserved. For secondary-protected records
// only the plaintext metadata can be edited here; the combined payload is
// immutable without the secondary password.
func (s *Service) EditRecord(ctx context.Context, id string, edit RecordEdit) error {
	key, err := s.session.Key()
	if err != nil {
		return err
	}
	orig, ok := s.cache.Get(id)
	if !ok {
		return ErrRecordNotFound
	}
	userID := s.session.UserID()

	var upd storage.RecordUpdate
	updated := orig
	changed := false

	if edit.Title != orig.Title {
		if edit.Title == "" {
			return fmt.Errorf("%w: title required", ErrValidation)
		}
		t := edit.Title
		upd.Title = &t
		updated.Title = t
		changed = true
	}
	if edit.Username != orig.Username {
		u := edit.Username
		upd.Username = &u
		updated.Username = u
		changed = true
	}
	if edit.Email != orig.Email {
		e := edit.Email
		upd.Email = &e
		updated.Email = e
		changed = true
	}
	if edit.ImageBlob != orig.ImageBlob {
		b := edit.ImageBlob
		upd.ImageBlob = &b
		updated.ImageBlob = b
		changed = true
	}

	if orig.Protection != ProtectionSecondary {
		if edit.SecretPassword != "" && (orig.SecretPassword == nil || *orig.SecretPassword != edit.SecretPassword) {
			ev, err := crypto.Encrypt(key, edit.SecretPassword)
			if err != nil {
				return err
			}
			upd.EncryptedPassword = encodeField(ev)
			pw := edit.SecretPassword
			updated.SecretPassword = &pw
			changed = true
		}

		origPin := ""
		if orig.SecretPin != nil {
			origPin = *orig.SecretPin
		}
		switch {
		case edit.SecretPin == origPin:
			// untouched
		case edit.SecretPin == "":
			upd.ClearPin = true
			updated.SecretPin = nil
			changed = true
		default:
			if err := validatePinFormat(edit.SecretPin); err != nil {
				return err
			}
			ev, err := crypto.Encrypt(key, edit.SecretPin)
			if err != nil {
				return err
			}
			upd.EncryptedPin = encodeField(ev)
			pin := edit.SecretPin
			updated.SecretPin = &pin
			changed = true
		}
	}

	if !changed {
		return nil
	}

	if err := s.store.Update(ctx, userID, id, upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("vault: update record: %w", err)
	}
	s.cache.Update(updated)

	if s.auditor != nil {
		s.auditor.Append("record.edit user=%s id=%s", userID, id)
	}
	return nil
}

// DeleteRecord removes the record from the store, then from the cache. On
// store failure the cache is unchanged and the error propagates.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if _, err := s.session.Key(); err != nil {
		return err
	}
	userID := s.session.UserID()
	if err := s.store.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("vault: delete record: %w", err)
	}
	s.cache.Remove(id)

	if s.auditor != nil {
		s.auditor.Append("record.delete user=%s id=%s", userID, id)
	}
	return nil
}

// HasPin reports whether the cached record carries a decrypted PIN.
func (s *Service) HasPin(id string) bool {
	rec, ok := s.cache.Get(id)
	return ok && rec.SecretPin != nil
}

// ValidatePin compares candidate against the decrypted cache value. This
// is a plain comparison, not a cryptographic check: the PIN gates local UI
// actions on data that is already decrypted, so it is deliberately a
// weaker second factor than the vault password.
func (s *Service) ValidatePin(id, candidate string) bool {
	rec, ok := s.cache.Get(id)
	if !ok || rec.SecretPin == nil {
		return false
	}
	return *rec.SecretPin == candidate
}
