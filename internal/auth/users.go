package auth

import (
	"errors"
	"strings"
	"sync"
)

var ErrUserNotFound = errors.New("auth: user not found")

// MemoryUserStore backs tests and the dev server.
type MemoryUserStore struct {
	mu         sync.Mutex
	byUsername map[string]*User
	byEmail    map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byUsername: map[string]*User{},
		byEmail:    map[string]*User{},
	}
}

func (s *MemoryUserStore) Add(u *User) error {
	if u == nil {
		return errors.New("auth: user is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[u.Username]; exists {
		return errors.New("auth: user already exists")
	}
	email := normalizeEmail(u.Email)
	if email != "" {
		if _, exists := s.byEmail[email]; exists {
			return errors.New("auth: email already exists")
		}
	}
	clone := *u
	clone.Email = email
	s.byUsername[u.Username] = &clone
	if email != "" {
		s.byEmail[email] = &clone
	}
	return nil
}

func (s *MemoryUserStore) FindByUsername(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byUsername[username]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) FindByEmail(email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byEmail[normalizeEmail(email)]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) UpdatePassword(username, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byUsername[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PassHash = newHash
	return nil
}

func (s *MemoryUserStore) MarkEmailVerified(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byUsername[username]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
