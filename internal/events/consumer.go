package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes one session summary. Returning an error leaves the
// message unacknowledged so another consumer can pick it up.
type Handler func(ctx context.Context, payload *SessionCompletedPayload) error

// Consumer reads session events off the stream through a consumer group.
type Consumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	logger   *slog.Logger
}

// NewConsumer connects to redis and ensures the consumer group exists.
func NewConsumer(ctx context.Context, addr, password string, db int, stream, group, consumer string) (*Consumer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	// BUSYGROUP just means another instance created it first.
	if err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil && !isBusyGroup(err) {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &Consumer{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		logger:   slog.Default().With("component", "event_consumer", "group", group),
	}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Run blocks reading the stream until the context is cancelled, handing each
// SESSION_COMPLETED payload to the handler. Unknown event types are
// acknowledged and skipped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.logger.Info("consuming session events", "stream", c.stream, "consumer", c.consumer)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				payload, err := DecodeSessionCompleted(msg.Values)
				if err != nil {
					c.logger.Warn("skipping undecodable message", "id", msg.ID, "error", err)
					c.ack(ctx, msg.ID)
					continue
				}
				if payload == nil {
					c.ack(ctx, msg.ID)
					continue
				}
				if err := handle(ctx, payload); err != nil {
					c.logger.Error("handler failed, leaving message pending", "id", msg.ID, "error", err)
					continue
				}
				c.ack(ctx, msg.ID)
			}
		}
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", id, "error", err)
	}
}

// DecodeSessionCompleted parses a stream message into a session summary.
// Messages of other event types decode to nil.
func DecodeSessionCompleted(values map[string]any) (*SessionCompletedPayload, error) {
	eventType, _ := values["event_type"].(string)
	if eventType != string(EventTypeSessionCompleted) {
		return nil, nil
	}
	raw, ok := values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("message has no payload field")
	}
	var payload SessionCompletedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return &payload, nil
}

// Close releases the redis connection.
func (c *Consumer) Close() error {
	return c.client.Close()
}
