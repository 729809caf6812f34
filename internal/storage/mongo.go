package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each index to a collection in one database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: slog.Default().With("component", "storage", "backend", "mongo"),
	}, nil
}

func (s *MongoStore) InsertDocument(ctx context.Context, doc any, index string) error {
	if _, err := s.db.Collection(index).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert document into %s: %w", index, err)
	}
	return nil
}

func (s *MongoStore) InsertDocuments(ctx context.Context, docs []any, index string) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.db.Collection(index).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert %d documents into %s: %w", len(docs), index, err)
	}
	s.logger.Debug("documents inserted", "index", index, "count", len(docs))
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
