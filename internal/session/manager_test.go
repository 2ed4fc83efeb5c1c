package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/storage"
)

func TestEstablishRequiresProfile(t *testing.T) {
	mgr := NewManager(storage.NewMemoryStore(), Policy{}, zap.NewNop())
	err := mgr.Establish(context.Background(), "ghost", []byte("pw"))
	assert.ErrorIs(t, err, ErrProfileIncomplete)
}

func TestEstablishAndKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mgr := NewManager(store, Policy{}, zap.NewNop())
	require.NoError(t, EnsureProfile(ctx, store, "u1", "u1@example.com"))

	require.NoError(t, mgr.Establish(ctx, "u1", []byte("Master-Pass-123!")))
	key, err := mgr.Key()
	require.NoError(t, err)
	assert.Len(t, []byte(key), 32)
	assert.Equal(t, "u1", mgr.UserID())
	assert.True(t, mgr.Active())
}

func TestEstablishZeroesPassword(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mgr := NewManager(store, Policy{}, zap.NewNop())
	require.NoError(t, EnsureProfile(ctx, store, "u1", ""))

	pw := []byte("Master-Pass-123!")
	require.NoError(t, mgr.Establish(ctx, "u1", pw))
	assert.True(t, bytes.Equal(pw, make([]byte, len(pw))), "password bytes must be zeroed after derivation")
}

func TestClearDropsKeyAndRunsHooks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mgr := NewManager(store, Policy{}, zap.NewNop())
	require.NoError(t, EnsureProfile(ctx, store, "u1", ""))

	purged := false
	mgr.OnClear(func() { purged = true })

	require.NoError(t, mgr.Establish(ctx, "u1", []byte("pw-long-enough")))
	mgr.Clear()

	_, err := mgr.Key()
	assert.ErrorIs(t, err, ErrNoSessionKey)
	assert.True(t, purged)
	assert.Empty(t, mgr.UserID())
}

func TestIdleTimeoutExpiresKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mgr := NewManager(store, Policy{LockTimeout: time.Millisecond}, zap.NewNop())
	require.NoError(t, EnsureProfile(ctx, store, "u1", ""))
	require.NoError(t, mgr.Establish(ctx, "u1", []byte("pw-long-enough")))

	time.Sleep(5 * time.Millisecond)
	_, err := mgr.Key()
	assert.ErrorIs(t, err, ErrNoSessionKey)
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, EnsureProfile(ctx, store, "u1", "a@example.com"))
	p1, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, EnsureProfile(ctx, store, "u1", "a@example.com"))
	p2, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, p1.Salt, p2.Salt, "salt must never be regenerated")
}

func TestEstablishReplacesPreviousSession(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mgr := NewManager(store, Policy{}, zap.NewNop())
	require.NoError(t, EnsureProfile(ctx, store, "u1", ""))
	require.NoError(t, EnsureProfile(ctx, store, "u2", ""))

	require.NoError(t, mgr.Establish(ctx, "u1", []byte("pw-one-long-enough")))
	k1, err := mgr.Key()
	require.NoError(t, err)
	k1Copy := append([]byte(nil), k1...)

	require.NoError(t, mgr.Establish(ctx, "u2", []byte("pw-two-long-enough")))
	k2, err := mgr.Key()
	require.NoError(t, err)

	assert.Equal(t, "u2", mgr.UserID())
	assert.False(t, bytes.Equal(k1Copy, k2))
}
