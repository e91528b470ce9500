package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/models"
)

var _ audit.Trail = (*AuditTrail)(nil)

// AuditTrail stores audit entries in their own collection. Entry ids are
// UUIDv7, so (created_at, _id) sorts in append order.
type AuditTrail struct {
	col *mongo.Collection
	now func() time.Time
}

// AuditTrail returns a trail in this store's database.
func (s *MongoStore) AuditTrail() *AuditTrail {
	return &AuditTrail{col: s.db.Collection(colAudit), now: time.Now}
}

// Append inserts one entry.
func (t *AuditTrail) Append(ctx context.Context, groupID, message string) error {
	entryID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate audit entry id: %w", err)
	}
	_, err = t.col.InsertOne(ctx, auditModel{
		ID:        entryID.String(),
		GroupID:   groupID,
		Message:   message,
		CreatedAt: t.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Read returns the group's entries in append order.
func (t *AuditTrail) Read(ctx context.Context, groupID string) ([]models.AuditEntry, error) {
	cur, err := t.col.Find(ctx, bson.M{"group_id": groupID}, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	var ms []auditModel
	if err := cur.All(ctx, &ms); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}

	entries := make([]models.AuditEntry, len(ms))
	for i, m := range ms {
		entries[i] = models.AuditEntry{Timestamp: m.CreatedAt.UTC(), GroupID: m.GroupID, Message: m.Message}
	}
	return entries, nil
}
