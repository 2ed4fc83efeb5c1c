package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore/ProfileStore for tests and the
// dev server.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]RecordDocument // keyed by record id
	profiles map[string]Profile        // keyed by user id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  map[string]RecordDocument{},
		profiles: map[string]Profile{},
	}
}

func (s *MemoryStore) Create(_ context.Context, doc RecordDocument) (RecordDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.records[doc.ID] = cloneDoc(doc)
	return doc, nil
}

func (s *MemoryStore) List(_ context.Context, owner string) ([]RecordDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecordDocument
	for _, doc := range s.records {
		if doc.Owner == owner {
			out = append(out, cloneDoc(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, owner, id string, upd RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.records[id]
	if !ok || doc.Owner != owner {
		return ErrNotFound
	}
	if upd.Title != nil {
		doc.Title = *upd.Title
	}
	if upd.Username != nil {
		doc.Username = *upd.Username
	}
	if upd.Email != nil {
		doc.Email = *upd.Email
	}
	if upd.ImageBlob != nil {
		doc.ImageBlob = *upd.ImageBlob
	}
	if upd.EncryptedPassword != nil {
		f := *upd.EncryptedPassword
		doc.EncryptedPassword = &f
	}
	if upd.ClearPin {
		doc.EncryptedPin = nil
	} else if upd.EncryptedPin != nil {
		f := *upd.EncryptedPin
		doc.EncryptedPin = &f
	}
	doc.UpdatedAt = time.Now().UTC()
	s.records[id] = doc
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.records[id]
	if !ok || doc.Owner != owner {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PutProfile(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.profiles[p.UserID] = p
	return nil
}

func cloneDoc(doc RecordDocument) RecordDocument {
	if doc.EncryptedPassword != nil {
		f := *doc.EncryptedPassword
		doc.EncryptedPassword = &f
	}
	if doc.EncryptedPin != nil {
		f := *doc.EncryptedPin
		doc.EncryptedPin = &f
	}
	if doc.SecondaryPayload != nil {
		f := *doc.SecondaryPayload
		doc.SecondaryPayload = &f
	}
	return doc
}
