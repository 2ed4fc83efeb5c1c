package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUserStore struct {
	cli  *mongo.Client
	coll *mongo.Collection
}

func NewMongoUserStore(ctx context.Context, uri, db, coll string) (*MongoUserStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}

	c := cli.Database(db).Collection(coll)

	// Unique identities by username and email.
	_, _ = c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	_, _ = c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoUserStore{cli: cli, coll: c}, nil
}

func (s *MongoUserStore) Close(ctx context.Context) error {
	return s.cli.Disconnect(ctx)
}

type userDoc struct {
	Username      string `bson:"username"`
	Email         string `bson:"email"`
	EmailVerified bool   `bson:"email_verified"`
	PassHash      string `bson:"pass_hash"`
	Roles         []Role `bson:"roles"`
	TOTPSecret    string `bson:"totp_secret"`
}

func (s *MongoUserStore) Add(u *User) error {
	doc := userDoc{
		Username:      u.Username,
		Email:         normalizeEmail(u.Email),
		EmailVerified: u.EmailVerified,
		PassHash:      u.PassHash,
		Roles:         u.Roles,
		TOTPSecret:    u.TOTPSecret,
	}
	_, err := s.coll.InsertOne(context.Background(), doc)
	var wex mongo.WriteException
	if errors.As(err, &wex) {
		for _, we := range wex.WriteErrors {
			if we.Code == 11000 { // duplicate key
				return errors.New("auth: username or email already exists")
			}
		}
	}
	return err
}

func (s *MongoUserStore) FindByUsername(username string) (*User, error) {
	return s.findOne(bson.M{"username": username})
}

func (s *MongoUserStore) FindByEmail(email string) (*User, error) {
	return s.findOne(bson.M{"email": normalizeEmail(email)})
}

func (s *MongoUserStore) findOne(filter any) (*User, error) {
	var doc userDoc
	err := s.coll.FindOne(context.Background(), filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &User{
		Username:      doc.Username,
		Email:         doc.Email,
		EmailVerified: doc.EmailVerified,
		PassHash:      doc.PassHash,
		Roles:         doc.Roles,
		TOTPSecret:    doc.TOTPSecret,
	}, nil
}

func (s *MongoUserStore) UpdatePassword(username, newHash string) error {
	return s.setField(username, bson.M{"pass_hash": newHash})
}

func (s *MongoUserStore) MarkEmailVerified(username string) error {
	return s.setField(username, bson.M{"email_verified": true})
}

func (s *MongoUserStore) setField(username string, set bson.M) error {
	res, err := s.coll.UpdateOne(
		context.Background(),
		bson.M{"username": username},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
