package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidCredentials covers every authentication failure uniformly:
// unknown identifier, wrong password. No oracle for account enumeration.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Provider is the identity boundary consumed by the rest of the system:
// who is this, and can they prove their credential again.
type Provider interface {
	// Authenticate accepts a username or an email address as identifier.
	Authenticate(ctx context.Context, identifier, secret string) (Principal, error)
	// Reverify re-checks the password of an already authenticated user,
	// for operations that demand fresh proof.
	Reverify(ctx context.Context, username, secret string) error
}

type storeProvider struct {
	users UserStore
}

func NewProvider(users UserStore) Provider {
	return &storeProvider{users: users}
}

func (p *storeProvider) Authenticate(_ context.Context, identifier, secret string) (Principal, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return Principal{}, ErrInvalidCredentials
	}
	user, err := p.users.FindByUsername(identifier)
	if err != nil {
		user, err = p.users.FindByEmail(identifier)
	}
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(secret, user.PassHash)
	if err != nil || !ok {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{
		ID:            user.Username,
		Username:      user.Username,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Roles:         user.Roles,
	}, nil
}

func (p *storeProvider) Reverify(_ context.Context, username, secret string) error {
	user, err := p.users.FindByUsername(username)
	if err != nil {
		return ErrInvalidCredentials
	}
	ok, err := VerifyPassword(secret, user.PassHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	return nil
}
