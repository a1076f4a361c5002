package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkearny/contrabot/internal/api"
	"github.com/mkearny/contrabot/internal/api/handlers"
	"github.com/mkearny/contrabot/internal/coordinator"
	"github.com/mkearny/contrabot/internal/filter"
	"github.com/mkearny/contrabot/internal/ledger"
	"github.com/mkearny/contrabot/internal/pricefeed"
	"github.com/mkearny/contrabot/internal/reddit"
	"github.com/mkearny/contrabot/internal/scheduler"
	"github.com/mkearny/contrabot/internal/scheduler/jobs"
	llm "github.com/mkearny/contrabot/internal/signal"
	"github.com/mkearny/contrabot/internal/store"
	"github.com/mkearny/contrabot/internal/venue"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/database"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
	"github.com/mkearny/contrabot/pkg/redis"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full bot",
	Long: `Starts the complete pipeline: subreddit polling, signal extraction,
ledger admission, paper execution, the holding-period sweep, and the
status API.

The bot polls on POLL_INTERVAL, refreshes open-position marks every
five minutes, and shuts down cleanly on SIGINT/SIGTERM, letting an
in-flight cycle finish first.

Example:
  go run ./cmd/contrabot run`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"mode":       cfg.Trading.Mode,
		"subreddits": cfg.Trading.Subreddits,
		"markets":    cfg.Trading.MarketsEnabled,
		"interval":   cfg.Trading.PollInterval,
	}).Info("Starting contrabot")

	ctx := context.Background()

	// 3. Connect to database and migrate
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	log.Info("Connected to database")

	// 4. Connect to Redis (no-op client when disabled)
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	cache := redis.NewCache(redisClient, "contrabot")

	// 5. Create repositories
	postRepo := store.NewPostRepository(db.Pool)
	signalRepo := store.NewSignalRepository(db.Pool, cache)
	positionRepo := store.NewPositionRepository(db.Pool)
	auditRepo := store.NewAuditRepository(db.Pool)
	pendingRepo := store.NewPendingOrderRepository(db.Pool)

	// 6. Create HTTP clients, rate limited per upstream when Redis is on
	redditHTTP := httputil.New(cfg, log)
	alpacaHTTP := httputil.New(cfg, log)
	llmHTTP := httputil.NewWithTimeout(cfg, log, cfg.Anthropic.Timeout)

	if redisClient.Enabled() {
		limiter := redis.NewRateLimiter(redisClient, "contrabot")
		redditHTTP.WithRateLimiter(limiter, redis.RedditRateLimit)
		alpacaHTTP.WithRateLimiter(limiter, redis.AlpacaRateLimit)
		llmHTTP.WithRateLimiter(limiter, redis.AnthropicRateLimit)
	}

	// 7. Create the execution venue and price feed
	alpaca := venue.NewAlpacaClient(cfg, alpacaHTTP, log)

	priceCache := pricefeed.NewCache(redis.TTLShort, log)
	stream := pricefeed.NewStream(cfg, priceCache, log)
	feed := pricefeed.NewFeed(priceCache, cache, alpaca, log)

	// 8. Restore the ledger from persisted open positions
	book := ledger.New(cfg, positionRepo, signalRepo, feed, log)
	if err := book.Restore(ctx); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	// 9. Create the pipeline stages
	redditClient := reddit.NewClient(cfg, redditHTTP, log)
	interpreter := llm.NewAnthropicInterpreter(cfg, llmHTTP, log)
	normalizer := llm.NewNormalizer(cfg, log)
	contentFilter := filter.New(filter.Config{MinAuthorKarma: cfg.Trading.MinAuthorKarma}, log)

	coord := coordinator.New(cfg, coordinator.Config{
		Source:      redditClient,
		Filter:      contentFilter,
		Interpreter: interpreter,
		Normalizer:  normalizer,
		Ledger:      book,
		Venue:       alpaca,
		Stream:      stream,
		Posts:       postRepo,
		Audit:       auditRepo,
		Pending:     pendingRepo,
		SeenCache:   cache,
	}, log)

	// 10. Start the price stream and re-subscribe restored positions
	if err := stream.Start(ctx); err != nil {
		log.WithError(err).Warn("Price stream unavailable, falling back to REST quotes")
	} else {
		snapshot, err := book.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot ledger: %w", err)
		}
		for _, pos := range snapshot.Positions {
			stream.Subscribe(pos.Ticker)
		}
	}

	// 11. Schedule jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewPollJob(coord, cfg.Trading.PollInterval, log)); err != nil {
		return fmt.Errorf("add poll job: %w", err)
	}
	if err := sched.AddJob(jobs.NewPnLRefreshJob(book, log)); err != nil {
		return fmt.Errorf("add pnl job: %w", err)
	}
	sched.Start()

	// 12. Start the status API
	statusHandler := handlers.NewStatusHandler(book, auditRepo, sched, log)
	server := api.New(cfg, log, api.NewRouter(statusHandler, log))

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("API server stopped")
		}
	}()

	log.WithField("port", cfg.Port).Info("Contrabot running")

	// 13. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	// Stop() waits for an in-flight polling cycle to finish.
	sched.Stop()
	stream.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API server shutdown failed")
	}

	log.Info("Contrabot stopped")
	return nil
}
