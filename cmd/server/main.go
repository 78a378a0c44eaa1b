// The MatrixRain backend server.
//
// It proxies the configured RSS feeds past browser cross-origin
// restrictions, tokenizes them, and caches the aggregate for the frontend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/matrixrain/backend/internal/cache"
	"github.com/matrixrain/backend/internal/feed"
	"github.com/matrixrain/backend/internal/feedlist"
	"github.com/matrixrain/backend/internal/logger"
	"github.com/matrixrain/backend/internal/rain"
)

type config struct {
	Port      int    `env:"PORT, default=5000"`
	FeedsFile string `env:"FEEDS_FILE, default=rss_feeds.json"`

	CacheTTL     time.Duration `env:"CACHE_TTL, default=5m"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT, default=10s"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	// A .env file is optional, mostly for local runs.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.Setup(cfg.LoggerFormat)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "config", cfg)

	srvr := rain.NewServer(
		rain.Config{Port: cfg.Port},
		feedlist.New(cfg.FeedsFile),
		feed.NewAggregator(cfg.FetchTimeout),
		cache.New(cfg.CacheTTL),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
