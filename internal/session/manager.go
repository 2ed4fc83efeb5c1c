// Package session owns the single session-scoped symmetric key. The key is
// derived exactly once per login from the user's password and stored salt,
// lives only in memory, and is destroyed on logout or expiry. The password
// bytes are zeroed the moment derivation completes, so the key can never be
// re-derived without a fresh login.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/crypto"
	"github.com/Savvy-Save/Aetherium/internal/storage"
)

var (
	// ErrNoSessionKey means no key is established; the caller must
	// re-authenticate.
	ErrNoSessionKey = errors.New("session: no key established")

	// ErrProfileIncomplete means the identity has no stored credential
	// salt. This is a store inconsistency, not a wrong password.
	ErrProfileIncomplete = errors.New("session: profile missing credential salt")
)

// Manager is the only writer of the session key reference. One Manager
// serves one logical session; tests and multi-session hosts construct their
// own instead of sharing ambient globals.
type Manager struct {
	mu        sync.Mutex
	profiles  storage.ProfileStore
	policy    Policy
	logger    *zap.Logger
	key       crypto.Key
	userID    string
	expiresAt time.Time
	onClear   []func()
}

func NewManager(profiles storage.ProfileStore, policy Policy, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{profiles: profiles, policy: policy, logger: logger}
}

// OnClear registers a hook invoked whenever the key is dropped. The vault
// cache registers itself here so key and cache reset together.
func (m *Manager) OnClear(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClear = append(m.onClear, fn)
}

// EnsureProfile generates and stores the identity's credential salt if no
// profile exists yet. The salt is created exactly once, at account
// creation; an existing profile is never overwritten, since regenerating
// the salt would orphan all data encrypted under keys derived from it.
func EnsureProfile(ctx context.Context, profiles storage.ProfileStore, userID, email string) error {
	if _, err := profiles.GetProfile(ctx, userID); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	salt, err := crypto.GenerateSalt(crypto.SaltSize)
	if err != nil {
		return err
	}
	return profiles.PutProfile(ctx, storage.Profile{
		UserID: userID,
		Salt:   crypto.EncodeBytes(salt),
		Email:  email,
	})
}

// Establish derives the session key for userID from password and the
// identity's stored salt. password is zeroed before Establish returns,
// success or not. Any previously established key is cleared first.
func (m *Manager) Establish(ctx context.Context, userID string, password []byte) error {
	defer crypto.Zero(password)

	profile, err := m.profiles.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrProfileIncomplete
	}
	if err != nil {
		return fmt.Errorf("session: load profile: %w", err)
	}
	if profile.Salt == "" {
		return ErrProfileIncomplete
	}
	salt, err := crypto.DecodeBytes(profile.Salt)
	if err != nil {
		return fmt.Errorf("%w: undecodable salt", ErrProfileIncomplete)
	}

	key, err := crypto.DeriveKey(string(password), salt)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	if err := crypto.LockMemory(key); err != nil {
		m.logger.Warn("mlock unavailable, key may be swappable", zap.Error(err))
	}
	m.key = key
	m.userID = userID
	m.touchLocked()
	m.logger.Info("session key established", zap.String("user", userID))
	return nil
}

// Key returns the session key, or ErrNoSessionKey if none is established
// or the idle timeout has elapsed. Each successful call extends the idle
// window.
func (m *Manager) Key() (crypto.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil {
		return nil, ErrNoSessionKey
	}
	if !m.expiresAt.IsZero() && time.Now().After(m.expiresAt) {
		m.logger.Info("session key expired", zap.String("user", m.userID))
		m.clearLocked()
		return nil, ErrNoSessionKey
	}
	m.touchLocked()
	return m.key, nil
}

// UserID reports the identity the current key belongs to, empty when none.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Active reports whether a usable key is established.
func (m *Manager) Active() bool {
	_, err := m.Key()
	return err == nil
}

// Clear zeroes and drops the key and runs the registered purge hooks. Safe
// to call when no key is held.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	if m.key != nil {
		crypto.Zero(m.key)
		_ = crypto.UnlockMemory(m.key)
		m.key = nil
		m.logger.Info("session key cleared", zap.String("user", m.userID))
	}
	m.userID = ""
	m.expiresAt = time.Time{}
	for _, fn := range m.onClear {
		fn()
	}
}

func (m *Manager) touchLocked() {
	if m.policy.LockTimeout > 0 {
		m.expiresAt = time.Now().Add(m.policy.LockTimeout)
	}
}
