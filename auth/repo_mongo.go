package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoAccountRepository struct {
	collection *mongo.Collection
}

type dbAccount struct {
	ID         ID               `bson:"_id"`
	Username   string           `bson:"username"`
	Email      string           `bson:"email"`
	Password   string           `bson:"password"`
	PublicID   string           `bson:"uid"`
	Token      string           `bson:"token"`
	Created    time.Time        `bson:"created"`
	Uploaded   map[string]int64 `bson:"uploaded"`
	Downloaded map[string]int64 `bson:"downloaded"`
}

func NewMongoAccountRepository(c *mongo.Collection) *MongoAccountRepository {
	return &MongoAccountRepository{collection: c}
}

// EnsureIndexes creates the unique indexes Store relies on to reject
// duplicates. It is idempotent.
func (m *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_1")},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_1")},
		{Keys: bson.D{{Key: "uid", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uid_1")},
	})
	if err != nil {
		return fmt.Errorf("error creating account indexes: %w", err)
	}
	return nil
}

func (m *MongoAccountRepository) NextID() ID {
	return NewID()
}

func (m *MongoAccountRepository) FindByName(ctx context.Context, username string) (*Account, error) {
	return m.findAccountBy(ctx, bson.M{"username": username})
}

func (m *MongoAccountRepository) FindByNameOrEmail(ctx context.Context, username, email string) (*Account, error) {
	return m.findAccountBy(ctx, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}})
}

func (m *MongoAccountRepository) FindByID(ctx context.Context, id ID) (*Account, error) {
	return m.findAccountBy(ctx, bson.M{"_id": string(id)})
}

func (m *MongoAccountRepository) findAccountBy(ctx context.Context, filter bson.M) (*Account, error) {
	var a dbAccount
	sr := m.collection.FindOne(ctx, filter)

	if errors.Is(sr.Err(), mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}

	if err := sr.Decode(&a); err != nil {
		return nil, fmt.Errorf("error decoding account: %w", err)
	}

	return accountFromDBAccount(a), nil
}

func (m *MongoAccountRepository) Store(ctx context.Context, acc *Account) error {
	dba := dbAccountFromAccount(acc)
	_, err := m.collection.InsertOne(ctx, &dba)
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return mongoDuplicateError(err)
	}
	return fmt.Errorf("error saving account: %w", err)
}

func (m *MongoAccountRepository) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, readpref.Primary())
}

var duplicateIndexRe = regexp.MustCompile(`index: (\S+) dup key`)

// mongoDuplicateError names the index that rejected the insert. The index name
// is read from the "index: <name> dup key" part of the server's E11000 message;
// the rest of the message echoes the duplicate value.
func mongoDuplicateError(err error) error {
	switch duplicateIndex(err) {
	case "uid_1":
		return fmt.Errorf("%w: %v", ErrDuplicatePublicID, err)
	case "email_1":
		return fmt.Errorf("%w: email", ErrDuplicateAccount)
	case "username_1":
		return fmt.Errorf("%w: username", ErrDuplicateAccount)
	default:
		return fmt.Errorf("%w: %v", ErrDuplicateAccount, err)
	}
}

func duplicateIndex(err error) string {
	msgs := []string{}

	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				msgs = append(msgs, e.Message)
			}
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, err.Error())
	}

	for _, msg := range msgs {
		if m := duplicateIndexRe.FindStringSubmatch(msg); m != nil {
			return m[1]
		}
	}
	return ""
}

func dbAccountFromAccount(a *Account) dbAccount {
	return dbAccount{
		ID:         a.ID,
		Username:   a.Credentials.Username,
		Email:      a.Credentials.Email,
		Password:   a.Credentials.Password,
		PublicID:   a.PublicID,
		Token:      a.Token,
		Created:    a.CreatedAt,
		Uploaded:   copyCounters(a.Uploaded),
		Downloaded: copyCounters(a.Downloaded),
	}
}

func accountFromDBAccount(a dbAccount) *Account {
	return &Account{
		ID:       a.ID,
		PublicID: a.PublicID,
		Credentials: Credentials{
			Username: a.Username,
			Email:    a.Email,
			Password: a.Password,
		},
		Token:      a.Token,
		CreatedAt:  a.Created,
		Uploaded:   copyCounters(a.Uploaded),
		Downloaded: copyCounters(a.Downloaded),
	}
}
