// Package workers runs the periodic background jobs: deferred collector
// assignment, expired OTP sweeping and pending payout polling.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Runner starts jobs on tickers and waits for them on shutdown.
type Runner struct {
	wg sync.WaitGroup
}

// Every runs job each interval until ctx is cancelled. A non-positive
// interval disables the job.
func (r *Runner) Every(ctx context.Context, name string, interval time.Duration, job Job) {
	if interval <= 0 {
		slog.Info("worker disabled", "worker", name)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("worker started", "worker", name, "interval", interval.String())
		for {
			select {
			case <-ticker.C:
				if err := job(ctx); err != nil {
					slog.Error("worker run failed", "worker", name, "error", err)
				}
			case <-ctx.Done():
				slog.Info("worker stopped", "worker", name)
				return
			}
		}
	}()
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
