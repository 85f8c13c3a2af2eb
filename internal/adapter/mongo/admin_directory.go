package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/serverlist/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID      string `bson:"_id"`
	IsAdmin bool   `bson:"isAdmin"`
}

// AdminDirectory reads capability flags from the users collection.
type AdminDirectory struct {
	coll *mongo.Collection
}

var _ domain.AdminDirectory = (*AdminDirectory)(nil)

func NewAdminDirectory(db *mongo.Database) *AdminDirectory {
	return &AdminDirectory{coll: db.Collection(usersCollection)}
}

// IsAdmin reports false for unknown users. Lookup errors are returned; callers decide how to fail.
func (d *AdminDirectory) IsAdmin(ctx context.Context, uid string) (bool, error) {
	var doc userDoc
	err := d.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return doc.IsAdmin, nil
}

// SetAdmin grants or revokes the admin flag, creating the user document if needed.
func (d *AdminDirectory) SetAdmin(ctx context.Context, uid string, admin bool) error {
	_, err := d.coll.UpdateOne(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": bson.M{"isAdmin": admin}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set admin flag: %w", err)
	}
	return nil
}
