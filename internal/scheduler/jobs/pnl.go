package jobs

import (
	"context"

	"github.com/mkearny/contrabot/internal/ledger"
	"github.com/mkearny/contrabot/pkg/logger"
)

// PnLRefreshJob re-marks open positions at current prices so the status API
// and the stored book stay close to the market between polls.
type PnLRefreshJob struct {
	ledger *ledger.Ledger
	logger *logger.Logger
}

// NewPnLRefreshJob creates the P&L refresh job.
func NewPnLRefreshJob(l *ledger.Ledger, log *logger.Logger) *PnLRefreshJob {
	return &PnLRefreshJob{ledger: l, logger: log}
}

// Name returns the job name
func (j *PnLRefreshJob) Name() string {
	return "pnl_refresh"
}

// Schedule returns the cron schedule
func (j *PnLRefreshJob) Schedule() string {
	return "@every 5m"
}

// Run refreshes every open position's mark.
func (j *PnLRefreshJob) Run(ctx context.Context) error {
	j.ledger.RefreshPnL(ctx)
	return nil
}
