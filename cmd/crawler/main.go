package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/solver-ai/market-crawler/internal/browser"
	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/events"
	"github.com/solver-ai/market-crawler/internal/rules"
	"github.com/solver-ai/market-crawler/internal/scraper"
	"github.com/solver-ai/market-crawler/internal/storage"
)

func main() {
	var (
		marketplace = flag.String("marketplace", "danawa", "Marketplace to crawl: danawa, m11st or navershopping")
		productName = flag.String("product", "", "Product name to search for")
		brandName   = flag.String("brand", "", "Brand name to search for")
		sessionID   = flag.String("session", "", "Session id (generated when empty)")
		maxListings = flag.Int("listings", 0, "Listing target (0 = configured default, -1 = unbounded)")
		maxReviews  = flag.Int("reviews", 0, "Review target per listing (0 = configured default, -1 = unbounded)")
	)
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if *productName == "" {
		logger.Error("product name is required")
		os.Exit(1)
	}
	meta, ok := cfg.Marketplaces[*marketplace]
	if !ok {
		logger.Error("unknown marketplace", "marketplace", *marketplace)
		os.Exit(1)
	}
	if *maxListings == 0 {
		*maxListings = cfg.Crawler.MaxListings
	}
	if *maxReviews == 0 {
		*maxReviews = cfg.Crawler.MaxReviews
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	freeWords := meta.FreeWords
	if len(freeWords) == 0 {
		freeWords = cfg.Crawler.FreeWords
	}
	engine := &rules.Engine{FreeWords: freeWords}
	profile, err := scraper.ProfileFor(*marketplace, engine, meta, cfg.Crawler)
	if err != nil {
		logger.Error("failed to build profile", "error", err)
		os.Exit(1)
	}

	session, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		Locale:         cfg.Browser.Locale,
		TimezoneID:     cfg.Browser.TimezoneID,
		ProxyServer:    cfg.Browser.ProxyServer,
	})
	if err != nil {
		logger.Error("failed to acquire browser session", "error", err)
		os.Exit(1)
	}

	crawler := scraper.New(profile, session, store, meta, cfg.Crawler, *sessionID, *productName, *brandName)

	started := time.Now()
	result, runErr := crawler.Run(ctx, *maxListings, *maxReviews)
	if runErr != nil {
		logger.Error("crawl finished with error", "error", runErr)
	}

	publishSummary(ctx, cfg, crawler, *marketplace, result, time.Since(started), runErr != nil, logger)

	logger.Info("crawl summary",
		"session_id", crawler.Session().ID,
		"marketplace", *marketplace,
		"query", crawler.Session().Query,
		"listings", len(result.Listings),
		"reviews", len(result.Reviews),
		"diagnostics", len(result.Diagnostics),
		"duration", time.Since(started).Round(time.Second).String(),
	)
	for _, d := range result.Diagnostics {
		logger.Warn("diagnostic", "kind", d.Kind, "listing_url", d.ListingURL, "detail", d.Detail)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func publishSummary(ctx context.Context, cfg *config.Config, c *scraper.Crawler, marketplace string, result *scraper.Result, elapsed time.Duration, failed bool, logger *slog.Logger) {
	publisher, err := events.NewPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Stream)
	if err != nil {
		logger.Warn("event publishing disabled", "error", err)
		return
	}
	defer publisher.Close()

	err = publisher.PublishSessionCompleted(ctx, &events.SessionCompletedPayload{
		SessionID:    c.Session().ID,
		Marketplace:  marketplace,
		Query:        c.Session().Query,
		Listings:     len(result.Listings),
		Reviews:      len(result.Reviews),
		Diagnostics:  len(result.Diagnostics),
		DurationSecs: elapsed.Seconds(),
		Failed:       failed,
	})
	if err != nil {
		logger.Warn("failed to publish session event", "error", err)
	}
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
