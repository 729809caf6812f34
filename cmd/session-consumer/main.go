// session-consumer tails the crawl event stream and records one summary
// document per finished run, giving dashboards a persistent session history
// without access to the crawler's own store writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/events"
	"github.com/solver-ai/market-crawler/internal/storage"
)

func main() {
	var (
		group    = flag.String("group", "session-consumers", "Consumer group name")
		consumer = flag.String("consumer", "consumer-1", "Consumer name within the group")
		index    = flag.String("index", "sessions", "Index the summaries are written to")
	)
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	c, err := events.NewConsumer(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Stream, *group, *consumer)
	if err != nil {
		logger.Error("failed to connect consumer", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	handle := func(ctx context.Context, payload *events.SessionCompletedPayload) error {
		logger.Info("session completed",
			"session_id", payload.SessionID,
			"marketplace", payload.Marketplace,
			"query", payload.Query,
			"listings", payload.Listings,
			"reviews", payload.Reviews,
			"diagnostics", payload.Diagnostics,
			"failed", payload.Failed,
		)
		return store.InsertDocument(ctx, payload, *index)
	}
	if err := c.Run(ctx, handle); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer shut down")
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Gateway, error) {
	switch cfg.Backend {
	case "mongo":
		return storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return storage.NewFileStore(cfg.FileDir)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
