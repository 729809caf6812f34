// Package events publishes crawl lifecycle events to a redis stream so
// downstream consumers (enrichment, alerting) can react without polling the
// store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event.
type EventType string

const (
	// EventTypeSessionCompleted is published once per finished crawl run.
	EventTypeSessionCompleted EventType = "SESSION_COMPLETED"
)

// SessionCompletedPayload summarizes one crawl run.
type SessionCompletedPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	Marketplace  string    `json:"marketplace"`
	Query        string    `json:"query"`
	Listings     int       `json:"listings"`
	Reviews      int       `json:"reviews"`
	Diagnostics  int       `json:"diagnostics"`
	DurationSecs float64   `json:"duration_secs"`
	Failed       bool      `json:"failed"`
}

// Publisher appends events to a redis stream.
type Publisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewPublisher connects to redis and verifies the connection.
func NewPublisher(ctx context.Context, addr, password string, db int, stream string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: slog.Default().With("component", "event_publisher"),
	}, nil
}

// PublishSessionCompleted appends a SESSION_COMPLETED event to the stream.
func (p *Publisher) PublishSessionCompleted(ctx context.Context, payload *SessionCompletedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeSessionCompleted)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_type": payload.EventType,
			"session_id": payload.SessionID,
			"payload":    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"session_id", payload.SessionID,
		"stream_id", id,
	)
	return nil
}

// Close releases the redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
