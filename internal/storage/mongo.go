package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements RecordStore and ProfileStore on two collections of
// one Mongo database.
type MongoStore struct {
	client   *mongo.Client
	records  *mongo.Collection
	profiles *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("storage: mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	// Verify connection quickly
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}

	db := cli.Database(dbName)
	records := db.Collection("records")
	profiles := db.Collection("profiles")

	// Listing is always owner-scoped and title-ordered.
	_, _ = records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "title", Value: 1}},
	})

	return &MongoStore{client: cli, records: records, profiles: profiles}, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ---------- RECORDS ----------

func (m *MongoStore) Create(ctx context.Context, doc RecordDocument) (RecordDocument, error) {
	if doc.Owner == "" {
		return RecordDocument{}, errors.New("storage: empty owner")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := m.records.InsertOne(ctx, doc); err != nil {
		return RecordDocument{}, err
	}
	return doc, nil
}

func (m *MongoStore) List(ctx context.Context, owner string) ([]RecordDocument, error) {
	if owner == "" {
		return nil, errors.New("storage: empty owner")
	}
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}})
	cur, err := m.records.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []RecordDocument
	for cur.Next(ctx) {
		var doc RecordDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, cur.Err()
}

func (m *MongoStore) Update(ctx context.Context, owner, id string, upd RecordUpdate) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	unset := bson.M{}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Username != nil {
		set["username"] = *upd.Username
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.ImageBlob != nil {
		set["imageBlob"] = *upd.ImageBlob
	}
	if upd.EncryptedPassword != nil {
		set["encryptedPassword"] = *upd.EncryptedPassword
	}
	if upd.ClearPin {
		unset["encryptedPin"] = ""
	} else if upd.EncryptedPin != nil {
		set["encryptedPin"] = *upd.EncryptedPin
	}

	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}
	res, err := m.records.UpdateOne(ctx, bson.M{"_id": id, "owner": owner}, change)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, owner, id string) error {
	res, err := m.records.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------- PROFILES ----------

func (m *MongoStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := m.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (m *MongoStore) PutProfile(ctx context.Context, p Profile) error {
	if p.UserID == "" {
		return errors.New("storage: empty profile user id")
	}
	_, err := m.profiles.UpdateByID(
		ctx,
		p.UserID,
		bson.M{
			"$set": bson.M{
				"salt":  p.Salt,
				"email": p.Email,
			},
			"$setOnInsert": bson.M{
				"createdAt": time.Now().UTC(),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
