// Package pipeline sequences the ingestion run: discovery, scheduling,
// polling, download, validation, attribution and aggregation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/pkg/impact"
)

// PollConfig bounds the export job poll loop.
type PollConfig struct {
	// MaxAttempts is the number of status checks before giving up.
	MaxAttempts int
	// InitialDelay is the wait after the first non-terminal check. The loop
	// never polls faster than this, regardless of lower-layer retries.
	InitialDelay time.Duration
	// MaxDelay caps the growing delay.
	MaxDelay time.Duration
	// Multiplier grows the delay after each check: next = min(cur*mult, max).
	Multiplier float64
}

// DefaultPollConfig matches the upstream's export turnaround characteristics.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts:  10,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   1.5,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1.5
	}
	return c
}

// PollTimeoutError means the job did not reach a terminal state within the
// attempt budget. Recoverable for the orchestrator, since the job may still
// complete upstream, but terminal for the current run.
type PollTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("poll: job %s not terminal after %d attempts", e.JobID, e.Attempts)
}

// JobPoller drives a scheduled export job to a terminal status.
type JobPoller struct {
	gateway impact.Client
	cfg     PollConfig

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewJobPoller creates a poller over the given gateway.
func NewJobPoller(gateway impact.Client, cfg PollConfig) *JobPoller {
	return &JobPoller{
		gateway: gateway,
		cfg:     cfg.withDefaults(),
		sleep:   sleepCtx,
	}
}

// PollUntilTerminal queries the job status with bounded exponential backoff
// until it completes, fails, or the attempt budget is exhausted. The
// returned job reflects the last observed state; status transitions are
// applied monotonically.
func (p *JobPoller) PollUntilTerminal(ctx context.Context, job model.ExportJob) (model.ExportJob, error) {
	log := zap.L().With(zap.String("report_id", job.ReportID), zap.String("job_id", job.JobID))

	delay := p.cfg.InitialDelay
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		update, err := p.gateway.CheckJobStatus(ctx, job.JobID)
		if err != nil {
			return job, eris.Wrapf(err, "poll: status check %d", attempt)
		}
		job.Advance(update)

		switch job.Status {
		case model.JobStatusCompleted:
			log.Info("export job completed", zap.Int("attempts", attempt))
			return job, nil
		case model.JobStatusFailed:
			log.Warn("export job failed upstream", zap.String("upstream_error", job.Error))
			return job, eris.Errorf("poll: job %s failed upstream: %s", job.JobID, job.Error)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}

		log.Debug("export job not terminal, waiting",
			zap.String("status", string(job.Status)),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return job, err
		}

		delay = time.Duration(float64(delay) * p.cfg.Multiplier)
		if delay > p.cfg.MaxDelay {
			delay = p.cfg.MaxDelay
		}
	}

	job.Advance(model.ExportJob{Status: model.JobStatusTimedOut})
	return job, &PollTimeoutError{JobID: job.JobID, Attempts: p.cfg.MaxAttempts}
}

// sleepCtx suspends only the calling goroutine, waking early on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
