package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	PostsCollection = "posts"
	UsersCollection = "users"

	connectAttempts = 3
	retryDelay      = 2 * time.Second
)

// Connect dials MongoDB and pings it, retrying a few times while the
// server comes up.
func Connect(ctx context.Context, uri string, log *zap.Logger) (*mongo.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		client, err := connectOnce(ctx, uri)
		if err == nil {
			log.Info("MongoDB connected", zap.Int("attempt", attempt))
			return client, nil
		}
		lastErr = err
		log.Warn("MongoDB connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt < connectAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("connect to mongodb: %w", lastErr)
}

func connectOnce(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Disconnect closes the client with a bounded timeout.
func Disconnect(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the queries rely on. Creating an
// existing index is a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	_, err = db.Collection(PostsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "date", Value: -1}},
			Options: options.Index().SetName("date_desc"),
		},
		{
			Keys:    bson.D{{Key: "likes.count", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("likes_rank"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetName("category_date"),
		},
		{
			Keys:    bson.D{{Key: "tags", Value: 1}},
			Options: options.Index().SetName("tags"),
		},
		{
			Keys:    bson.D{{Key: "comments._id", Value: 1}},
			Options: options.Index().SetName("comment_ids"),
		},
	})
	if err != nil {
		return fmt.Errorf("posts indexes: %w", err)
	}
	return nil
}
