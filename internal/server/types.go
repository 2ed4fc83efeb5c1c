package server

import (
	"time"

	"github.com/Savvy-Save/Aetherium/internal/auth"
	"github.com/Savvy-Save/Aetherium/internal/session"
	"github.com/Savvy-Save/Aetherium/internal/vault"
)

// userSession pairs the per-user key manager with the vault service bound
// to it. Dropping the manager's key purges the service's cache through the
// OnClear hook, so the pair is created and discarded together.
type userSession struct {
	keys    *session.Manager
	records *vault.Service
}

type resetToken struct {
	Username string
	Email    string
	Expires  time.Time
}

// twoFAChallenge holds the master password bytes between the password check
// and the TOTP verification. Master is zeroed whenever the challenge is
// consumed, replaced, or expires.
type twoFAChallenge struct {
	Username string
	Roles    []auth.Role
	Master   []byte
	Expires  time.Time
}

type mailer interface {
	SendResetPassword(to, token string, expires time.Time) error
	Enabled() bool
}
