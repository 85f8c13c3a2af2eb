package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/serverlist/internal/platform/retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	serversCollection = "servers"
	usersCollection   = "users"
)

// Connect opens a client, verifies it with a ping and returns the named database.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*mongo.Database, error) {
	clientOpts := options.Client().ApplyURI(uri)
	for _, opt := range opts {
		opt(clientOpts)
	}

	// Connect does no I/O; it only fails on invalid options.
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to connect to mongo: %w", err))
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	slog.Info("Mongo connected", "database", database)
	return client.Database(database), nil
}

// EnsureIndexes creates the secondary indexes the listing queries rely on. Idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(serversCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create listing indexes: %w", err)
	}
	return nil
}
