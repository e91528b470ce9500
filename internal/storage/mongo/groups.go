package mongo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// CreateGroup inserts a new group with version 1.
func (s *MongoStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	group.Version = 1
	if _, err := s.groups().InsertOne(ctx, toGroupModel(group)); err != nil {
		return mapError(err, "group", group.ID)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *MongoStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var m groupModel
	if err := s.groups().FindOne(ctx, bson.M{"_id": groupID}).Decode(&m); err != nil {
		return nil, mapError(err, "group", groupID)
	}
	return fromGroupModel(&m), nil
}

// UpdateGroup writes name and description guarded by the version field.
func (s *MongoStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	res, err := s.groups().UpdateOne(ctx,
		bson.M{"_id": group.ID, "version": group.Version},
		bson.M{
			"$set": bson.M{"name": group.Name, "description": group.Description},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return mapError(err, "group", group.ID)
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetGroup(ctx, group.ID); err != nil {
			return err
		}
		return fmt.Errorf("group %s version %d: %w", group.ID, group.Version, models.ErrConflict)
	}
	group.Version++
	return nil
}

// AddGroupMembers adds emails to the member set.
func (s *MongoStore) AddGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error) {
	return s.updateMembers(ctx, groupID, bson.M{
		"$addToSet": bson.M{"members": bson.M{"$each": emails}},
		"$inc":      bson.M{"version": 1},
	})
}

// RemoveGroupMembers removes emails from the member set. The admin is
// excluded from the pull.
func (s *MongoStore) RemoveGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error) {
	current, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	remove := slices.DeleteFunc(slices.Clone(emails), func(e string) bool { return e == current.AdminEmail })
	if remove == nil {
		remove = []string{}
	}
	return s.updateMembers(ctx, groupID, bson.M{
		"$pull": bson.M{"members": bson.M{"$in": remove}},
		"$inc":  bson.M{"version": 1},
	})
}

func (s *MongoStore) updateMembers(ctx context.Context, groupID string, update bson.M) (*models.Group, error) {
	var m groupModel
	err := s.groups().FindOneAndUpdate(ctx, bson.M{"_id": groupID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, mapError(err, "group", groupID)
	}
	return fromGroupModel(&m), nil
}

// ListGroups returns the groups a member belongs to, one page at a time.
func (s *MongoStore) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, int, error) {
	q := bson.M{"members": filter.MemberEmail}
	if filter.IsPaid != nil {
		q["payment.is_paid"] = *filter.IsPaid
	}

	total, err := s.groups().CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}

	page := filter.Page
	cur, err := s.groups().Find(ctx, q, options.Find().
		SetSort(sortFor(&page)).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}
	var ms []groupModel
	if err := cur.All(ctx, &ms); err != nil {
		return nil, 0, fmt.Errorf("decode groups: %w", err)
	}

	groups := make([]*models.Group, len(ms))
	for i := range ms {
		groups[i] = fromGroupModel(&ms[i])
	}
	return groups, int(total), nil
}

// SettleGroup flips every unsettled expense with one UpdateMany, then resets
// the payment status unless nothing flipped and the group is already paid.
func (s *MongoStore) SettleGroup(ctx context.Context, groupID string, settledAt int64) (int, *models.Group, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return 0, nil, err
	}

	res, err := s.expenses().UpdateMany(ctx,
		bson.M{"group_id": groupID, "is_settled": false},
		bson.M{"$set": bson.M{"is_settled": true}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return 0, nil, fmt.Errorf("settle expenses: %w", err)
	}

	groupFilter := bson.M{"_id": groupID}
	if res.ModifiedCount == 0 {
		groupFilter["payment.is_paid"] = false
	}
	_, err = s.groups().UpdateOne(ctx, groupFilter, bson.M{
		"$set": bson.M{
			"payment.amount":          0.0,
			"payment.is_paid":         true,
			"payment.last_settled_at": settledAt,
		},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("reset payment status: %w", err)
	}

	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return 0, nil, err
	}
	return int(res.ModifiedCount), group, nil
}
