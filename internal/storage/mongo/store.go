// Package mongo provides a MongoDB-backed implementation of the storage.Store
// interface. Mutations are single-document atomic updates or, for purchase
// redemption, a unique claim document followed by one update, so no
// multi-document transactions (and no replica set) are required.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/mmynk/groupledger/internal/config"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Collection names.
const (
	colUsers     = "users"
	colGroups    = "groups"
	colExpenses  = "expenses"
	colAudit     = "audit_entries"
	colPurchases = "purchases"
)

var _ storage.Store = (*MongoStore)(nil)

// MongoStore implements storage.Store using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client from DatabaseConfig, pings the primary and returns
// a store bound to the configured database.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, cfg.MongoDatabase), nil
}

// New returns a store over an existing client.
func New(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

// Migrate creates the indexes the store relies on. The unique email index
// is what turns a duplicate CreateUser into models.ErrConflict.
func (s *MongoStore) Migrate(ctx context.Context) error {
	for col, idx := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) users() *mongo.Collection    { return s.db.Collection(colUsers) }
func (s *MongoStore) groups() *mongo.Collection   { return s.db.Collection(colGroups) }
func (s *MongoStore) expenses() *mongo.Collection { return s.db.Collection(colExpenses) }
func (s *MongoStore) purchases() *mongo.Collection {
	return s.db.Collection(colPurchases)
}

// mapError converts driver errors to model errors.
func mapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", entity, id, models.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s %s: %w", entity, id, models.ErrConflict)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

// sortFor returns the listing order for a page.
func sortFor(p *models.PageRequest) bson.D {
	dir := -1
	if p == nil || p.Sort == models.SortOldest {
		dir = 1
	}
	return bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colGroups: {
			{Keys: bson.D{{Key: "members", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colExpenses: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "is_settled", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colPurchases: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}
}
