package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stored, err := s.Create(ctx, RecordDocument{
		Owner:             "u1",
		Title:             "mail",
		EncryptedPassword: &EncryptedField{Nonce: "n", Ciphertext: "c"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("empty id")
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Fatal("create did not return assigned timestamps")
	}
	id := stored.ID

	docs, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "mail" {
		t.Fatalf("unexpected list result: %+v", docs)
	}
	if docs[0].CreatedAt.IsZero() || docs[0].UpdatedAt.IsZero() {
		t.Fatal("timestamps not set on create")
	}

	newTitle := "mail2"
	if err := s.Update(ctx, "u1", id, RecordUpdate{Title: &newTitle}); err != nil {
		t.Fatalf("update: %v", err)
	}
	docs, _ = s.List(ctx, "u1")
	if docs[0].Title != "mail2" {
		t.Fatalf("title not updated: %q", docs[0].Title)
	}

	if err := s.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	docs, _ = s.List(ctx, "u1")
	if len(docs) != 0 {
		t.Fatal("record not deleted")
	}
}

func TestMemoryStoreOwnerScoping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stored, err := s.Create(ctx, RecordDocument{Owner: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := stored.ID

	if docs, _ := s.List(ctx, "u2"); len(docs) != 0 {
		t.Fatal("records leaked across owners")
	}
	if err := s.Delete(ctx, "u2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner delete: got %v, want ErrNotFound", err)
	}
	if err := s.Update(ctx, "u2", id, RecordUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner update: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUpdateClearPin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stored, _ := s.Create(ctx, RecordDocument{
		Owner:        "u1",
		Title:        "t",
		EncryptedPin: &EncryptedField{Nonce: "n", Ciphertext: "c"},
	})
	id := stored.ID

	if err := s.Update(ctx, "u1", id, RecordUpdate{ClearPin: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	docs, _ := s.List(ctx, "u1")
	if docs[0].EncryptedPin != nil {
		t.Fatal("pin ciphertext not removed")
	}
}

func TestMemoryStoreUntouchedFieldsKeepCiphertext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stored, _ := s.Create(ctx, RecordDocument{
		Owner:             "u1",
		Title:             "t",
		EncryptedPassword: &EncryptedField{Nonce: "n1", Ciphertext: "c1"},
	})
	id := stored.ID

	newTitle := "t2"
	if err := s.Update(ctx, "u1", id, RecordUpdate{Title: &newTitle}); err != nil {
		t.Fatalf("update: %v", err)
	}
	docs, _ := s.List(ctx, "u1")
	if docs[0].EncryptedPassword == nil || docs[0].EncryptedPassword.Ciphertext != "c1" {
		t.Fatal("password ciphertext changed on a metadata-only update")
	}
}

func TestMemoryStoreProfiles(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing profile: got %v, want ErrNotFound", err)
	}
	if err := s.PutProfile(ctx, Profile{UserID: "u1", Salt: "abc"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Salt != "abc" {
		t.Fatalf("salt = %q", p.Salt)
	}
}
