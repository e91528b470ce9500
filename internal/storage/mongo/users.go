package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/groupledger/internal/models"
)

// CreateUser inserts a new user.
func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}
	if _, err := s.users().InsertOne(ctx, toUserModel(user)); err != nil {
		return mapError(err, "user", user.Email)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id}, id)
}

// GetUserByEmail retrieves a user by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email}, email)
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M, key string) (*models.User, error) {
	var m userModel
	if err := s.users().FindOne(ctx, filter).Decode(&m); err != nil {
		return nil, mapError(err, "user", key)
	}
	return fromUserModel(&m), nil
}

// DecrementCredits spends one credit. The positive-balance guard is part of
// the update filter, so concurrent callers cannot overdraw.
func (s *MongoStore) DecrementCredits(ctx context.Context, userID string) (int, error) {
	var m userModel
	err := s.users().FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "credits": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"credits": -1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := s.GetUserByID(ctx, userID); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("user %s: %w", userID, models.ErrInsufficientCredits)
	}
	if err != nil {
		return 0, mapError(err, "user", userID)
	}
	return m.Credits, nil
}

// IncrementCredits adds amount credits.
func (s *MongoStore) IncrementCredits(ctx context.Context, userID string, amount int) (int, error) {
	var m userModel
	err := s.users().FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"credits": amount}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return 0, mapError(err, "user", userID)
	}
	return m.Credits, nil
}
