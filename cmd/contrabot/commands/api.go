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
	"github.com/mkearny/contrabot/internal/ledger"
	"github.com/mkearny/contrabot/internal/pricefeed"
	"github.com/mkearny/contrabot/internal/scheduler"
	"github.com/mkearny/contrabot/internal/store"
	"github.com/mkearny/contrabot/internal/venue"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/database"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
	"github.com/mkearny/contrabot/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the status API only",
	Long: `Starts the read-only status API without the polling pipeline.

Endpoints:
  GET  /health                 - Health check
  GET  /api/summary            - Book snapshot with realized/unrealized P&L
  GET  /api/positions          - Open positions
  GET  /api/posts/{id}/audit   - Pipeline audit trail for one post
  GET  /api/jobs               - Scheduler job statistics

Example:
  go run ./cmd/contrabot api
  go run ./cmd/contrabot api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	ctx := context.Background()

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Connect to Redis (no-op client when disabled)
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	cache := redis.NewCache(redisClient, "contrabot")

	// 5. Create repositories
	signalRepo := store.NewSignalRepository(db.Pool, cache)
	positionRepo := store.NewPositionRepository(db.Pool)
	auditRepo := store.NewAuditRepository(db.Pool)

	// 6. Create the price lookup (REST quotes only, no stream)
	httpClient := httputil.New(cfg, log)
	alpaca := venue.NewAlpacaClient(cfg, httpClient, log)
	priceCache := pricefeed.NewCache(redis.TTLShort, log)
	feed := pricefeed.NewFeed(priceCache, cache, alpaca, log)

	// 7. Restore the ledger for read-only snapshots
	book := ledger.New(cfg, positionRepo, signalRepo, feed, log)
	if err := book.Restore(ctx); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	// 8. Start the server
	statusHandler := handlers.NewStatusHandler(book, auditRepo, scheduler.New(log), log)
	server := api.New(cfg, log, api.NewRouter(statusHandler, log))

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("API server stopped")
		}
	}()

	log.WithField("port", cfg.Port).Info("API server running")

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
