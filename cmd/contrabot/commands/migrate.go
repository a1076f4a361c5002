package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkearny/contrabot/internal/store"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/database"
	"github.com/mkearny/contrabot/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Applies the schema: posts, signals, positions, audit_records and
pending_orders tables with their indexes. Safe to run repeatedly.

Example:
  go run ./cmd/contrabot migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db.Pool); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	log.Info("Schema migrated")
	fmt.Println("Migration complete")
	return nil
}
