package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/solver-ai/market-crawler/internal/api"
	"github.com/solver-ai/market-crawler/internal/browser"
	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/rules"
	"github.com/solver-ai/market-crawler/internal/scraper"
	"github.com/solver-ai/market-crawler/internal/storage"
)

func main() {
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

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	jobManager := api.NewManager(ctx, func(ctx context.Context, req api.CrawlRequest) (*scraper.Result, error) {
		return runCrawl(ctx, cfg, store, req)
	}, logger)

	marketplaces := make([]string, 0, len(cfg.Marketplaces))
	for name := range cfg.Marketplaces {
		marketplaces = append(marketplaces, name)
	}
	sort.Strings(marketplaces)
	handlers := api.NewHandlers(jobManager, marketplaces, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/marketplaces", handlers.ListMarketplaces)
		r.Post("/crawls", handlers.CreateCrawl)
		r.Get("/crawls", handlers.ListCrawls)
		r.Get("/crawls/{jobID}", handlers.GetCrawl)
		r.Get("/stats", handlers.GetStats)
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// runCrawl executes one crawl request with a fresh browser session.
func runCrawl(ctx context.Context, cfg *config.Config, store storage.Gateway, req api.CrawlRequest) (*scraper.Result, error) {
	meta, ok := cfg.Marketplaces[req.Marketplace]
	if !ok {
		return nil, fmt.Errorf("unknown marketplace %q", req.Marketplace)
	}

	freeWords := meta.FreeWords
	if len(freeWords) == 0 {
		freeWords = cfg.Crawler.FreeWords
	}
	engine := &rules.Engine{FreeWords: freeWords}
	profile, err := scraper.ProfileFor(req.Marketplace, engine, meta, cfg.Crawler)
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}

	maxListings := req.MaxListings
	if maxListings == 0 {
		maxListings = cfg.Crawler.MaxListings
	}
	maxReviews := req.MaxReviews
	if maxReviews == 0 {
		maxReviews = cfg.Crawler.MaxReviews
	}

	crawler := scraper.New(profile, session, store, meta, cfg.Crawler, req.SessionID, req.ProductName, req.BrandName)
	return crawler.Run(ctx, maxListings, maxReviews)
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
