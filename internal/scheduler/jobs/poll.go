package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mkearny/contrabot/internal/coordinator"
	"github.com/mkearny/contrabot/internal/scheduler"
	"github.com/mkearny/contrabot/pkg/logger"
)

// PollJob runs one full coordinator cycle on the configured interval.
// Overlapping runs are skipped: a slow cycle (interpreter backlog, venue
// retries) must finish before the next one starts.
type PollJob struct {
	coordinator *coordinator.Coordinator
	interval    time.Duration
	running     atomic.Bool
	logger      *logger.Logger
}

// NewPollJob creates the polling job.
func NewPollJob(coord *coordinator.Coordinator, interval time.Duration, log *logger.Logger) *PollJob {
	return &PollJob{
		coordinator: coord,
		interval:    interval,
		logger:      log,
	}
}

// Name returns the job name
func (j *PollJob) Name() string {
	return "poll"
}

// Schedule returns the cron schedule
func (j *PollJob) Schedule() string {
	return fmt.Sprintf("@every %s", j.interval)
}

// Run executes one polling cycle.
func (j *PollJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return scheduler.ErrSkipped
	}
	defer j.running.Store(false)

	j.coordinator.RunCycle(ctx)
	return nil
}
