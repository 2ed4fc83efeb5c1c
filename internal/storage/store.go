package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Profile is the per-identity document holding the credential-derivation
// salt. The salt is generated once at account creation and never
// regenerated; losing or replacing it orphans every ciphertext the identity
// ever wrote.
type Profile struct {
	UserID    string    `bson:"_id" json:"userId"`
	Salt      string    `bson:"salt" json:"salt"` // base64
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// EncryptedField is the stored form of one encrypted value: base64 nonce
// and ciphertext, per the record wire shape.
type EncryptedField struct {
	Nonce      string `bson:"nonce" json:"nonce"`
	Ciphertext string `bson:"ciphertext" json:"ciphertext"`
}

// RecordDocument is a vault record as persisted in the document store. All
// sensitive fields are ciphertext; the store never sees plaintext secrets
// or key material.
type RecordDocument struct {
	ID                string          `bson:"_id,omitempty" json:"id"`
	Owner             string          `bson:"owner" json:"-"`
	Title             string          `bson:"title" json:"title"`
	Username          string          `bson:"username,omitempty" json:"username,omitempty"`
	Email             string          `bson:"email,omitempty" json:"email,omitempty"`
	ImageBlob         string          `bson:"imageBlob,omitempty" json:"imageBlob,omitempty"`
	Protection        string          `bson:"protection" json:"protection"`
	EncryptedPassword *EncryptedField `bson:"encryptedPassword,omitempty" json:"encryptedPassword,omitempty"`
	EncryptedPin      *EncryptedField `bson:"encryptedPin,omitempty" json:"encryptedPin,omitempty"`
	SecondarySalt     string          `bson:"secondarySalt,omitempty" json:"secondarySalt,omitempty"`
	SecondaryPayload  *EncryptedField `bson:"secondaryEncryptedPayload,omitempty" json:"secondaryEncryptedPayload,omitempty"`
	CreatedAt         time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// RecordUpdate is a partial update. Nil pointer fields are left untouched
// in the store, which is how unchanged ciphertext bytes survive an edit.
// ClearPin removes the PIN ciphertext entirely.
type RecordUpdate struct {
	Title             *string
	Username          *string
	Email             *string
	ImageBlob         *string
	EncryptedPassword *EncryptedField
	EncryptedPin      *EncryptedField
	ClearPin          bool
}

// RecordStore is the per-identity record collection: standard CRUD plus an
// ordered listing (title ascending, case-sensitive). Create returns the
// stored document so callers see the id and timestamps the store assigned.
type RecordStore interface {
	Create(ctx context.Context, doc RecordDocument) (RecordDocument, error)
	List(ctx context.Context, owner string) ([]RecordDocument, error)
	Update(ctx context.Context, owner, id string, upd RecordUpdate) error
	Delete(ctx context.Context, owner, id string) error
}

// ProfileStore holds the per-identity profile documents.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	PutProfile(ctx context.Context, p Profile) error
}
