package database

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolhub/social-api/internal/config"
	"github.com/schoolhub/social-api/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB connects to MongoDB and pings it.
func ConnectDB(cfg *config.Config) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	logger.Log.Info("Connected to MongoDB")
	return client.Database(cfg.DBName), nil
}

// EnsureIndexes creates the indexes the social layer relies on. The partial
// unique index on pending friend requests is the backstop for concurrent
// duplicate submissions: the pre-insert checks are best effort, the index
// makes the race fail at insert time.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type spec struct {
		collection string
		model      mongo.IndexModel
	}

	specs := []spec{
		{
			collection: "friend_requests",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "sender_id", Value: 1},
					{Key: "sender_role", Value: 1},
					{Key: "receiver_id", Value: 1},
					{Key: "receiver_role", Value: 1},
				},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": "pending"}),
			},
		},
		{
			collection: "conversation_members",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "member_id", Value: 1},
					{Key: "conversation_id", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: "messages",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "conversation_id", Value: 1},
					{Key: "created_at", Value: -1},
				},
			},
		},
		{
			collection: "friendships",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "conversation_id", Value: 1}},
			},
		},
	}

	for _, role := range []string{"admins", "teachers", "students", "parents"} {
		specs = append(specs,
			spec{
				collection: role,
				model: mongo.IndexModel{
					Keys:    bson.D{{Key: "username", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
			},
			spec{
				collection: role,
				model: mongo.IndexModel{
					Keys:    bson.D{{Key: "external_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
			},
		)
	}

	for _, s := range specs {
		if _, err := db.Collection(s.collection).Indexes().CreateOne(ctx, s.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %v", s.collection, err)
		}
	}

	return nil
}
