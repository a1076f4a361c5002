package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkearny/contrabot/internal/store"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/database"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current book and realized P&L",
	Long: `Reads open positions and realized P&L straight from the database.
Works whether or not the bot is running.

Example:
  go run ./cmd/contrabot status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	positionRepo := store.NewPositionRepository(db.Pool)

	open, err := positionRepo.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	realized, err := positionRepo.RealizedPnL(ctx)
	if err != nil {
		return fmt.Errorf("load realized pnl: %w", err)
	}

	fmt.Printf("Open positions: %d / %d\n", len(open), cfg.Trading.MaxOpenPositions)
	for _, pos := range open {
		unrealized := pos.UnrealizedPnL(pos.CurrentPrice)
		fmt.Printf("  %-8s %-6s %-5s qty=%-10.4f entry=%-10.2f mark=%-10.2f upl=%+.2f (opened %s)\n",
			pos.Ticker, pos.AssetType, pos.Direction, pos.Qty,
			pos.EntryPrice, pos.CurrentPrice, unrealized,
			pos.OpenedAt.Format("2006-01-02"))
	}
	fmt.Printf("Realized P&L: %+.2f USD\n", realized)
	return nil
}
