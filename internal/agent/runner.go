// Package agent drives the feedback processing loop. The actual
// model-backed categorization lives behind the Processor interface and
// runs out of repository scope; this package owns only the bookkeeping:
// claiming unprocessed feedback, the agent_log audit trail, and cache
// invalidation once new analysis lands.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicpulse/civicpulse/internal/storage"
)

// Result is the analysis a Processor produces for one feedback row.
type Result struct {
	Category   storage.Category
	Sentiment  float64
	Confidence float64
}

// Processor analyzes a single piece of feedback.
type Processor interface {
	Process(ctx context.Context, fb storage.Feedback) (Result, error)
}

const (
	// How many backlog rows one claim looks at, so rows sitting in their
	// failure backoff do not block the ones behind them.
	claimBatch = 10

	// How long a row whose processing failed is skipped before it is
	// eligible for another attempt.
	failureBackoff = 30 * time.Second
)

// Runner polls for unprocessed feedback and runs it through the
// Processor, recording each invocation in the agent log. Not safe for
// concurrent use; run one Runner per store.
type Runner struct {
	repos   *storage.Repos
	proc    Processor
	poll    time.Duration
	logger  *slog.Logger
	retryAt map[string]time.Time
}

// NewRunner creates a Runner. If pollInterval is <= 0, it defaults to 500ms.
func NewRunner(repos *storage.Repos, proc Processor, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Runner{
		repos:   repos,
		proc:    proc,
		poll:    pollInterval,
		logger:  slog.Default(),
		retryAt: make(map[string]time.Time),
	}
}

// Run polls for work until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("agent iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce claims and processes a single unprocessed feedback row.
// Returns true if a row was handled, regardless of the outcome; a
// Processor failure is recorded in the agent log, not returned, and the
// row is skipped for failureBackoff before it can be claimed again.
// When every eligible row is backing off, RunOnce reports no work so
// the poll loop sleeps instead of spinning.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	candidates, err := r.repos.Feedback.Unprocessed(ctx, claimBatch)
	if err != nil {
		return false, fmt.Errorf("claiming feedback: %w", err)
	}

	now := time.Now()
	var fb *storage.Feedback
	for i := range candidates {
		if now.Before(r.retryAt[candidates[i].ID]) {
			continue
		}
		fb = &candidates[i]
		break
	}
	if fb == nil {
		return false, nil
	}

	entry, err := r.repos.AgentLog.Create(ctx, storage.AgentCategorizer, fb.ID)
	if err != nil {
		return false, fmt.Errorf("creating agent log entry: %w", err)
	}
	if _, err := r.repos.AgentLog.Start(ctx, entry.ID); err != nil {
		return false, fmt.Errorf("starting agent log entry: %w", err)
	}

	started := time.Now()
	result, err := r.proc.Process(ctx, *fb)
	took := time.Since(started)

	if err != nil {
		r.logger.Warn("processing failed", "feedback_id", fb.ID, "error", err)
		if _, failErr := r.repos.AgentLog.Fail(ctx, entry.ID, err.Error(), took); failErr != nil {
			r.logger.Error("failed to record agent failure", "log_id", entry.ID, "error", failErr)
		}
		r.retryAt[fb.ID] = time.Now().Add(failureBackoff)
		return true, nil
	}

	if !result.Category.Valid() {
		r.logger.Warn("processor returned unknown category", "feedback_id", fb.ID, "category", result.Category)
		if _, failErr := r.repos.AgentLog.Fail(ctx, entry.ID, fmt.Sprintf("unknown category %q", result.Category), took); failErr != nil {
			r.logger.Error("failed to record agent failure", "log_id", entry.ID, "error", failErr)
		}
		r.retryAt[fb.ID] = time.Now().Add(failureBackoff)
		return true, nil
	}

	if _, err := r.repos.Feedback.MarkProcessed(ctx, fb.ID, result.Category, result.Sentiment, result.Confidence); err != nil {
		return true, fmt.Errorf("marking feedback processed: %w", err)
	}
	delete(r.retryAt, fb.ID)

	// New analysis makes cached summaries stale for both the affected
	// category and the global rollup.
	if _, err := r.repos.Summaries.Invalidate(ctx, string(result.Category)); err != nil {
		r.logger.Warn("invalidating category summary", "category", result.Category, "error", err)
	}
	if _, err := r.repos.Summaries.Invalidate(ctx, ""); err != nil {
		r.logger.Warn("invalidating global summary", "error", err)
	}

	if _, err := r.repos.AgentLog.Complete(ctx, entry.ID, took); err != nil {
		return true, fmt.Errorf("completing agent log entry: %w", err)
	}

	r.logger.Info("feedback processed", "feedback_id", fb.ID, "category", result.Category, "took_ms", took.Milliseconds())
	return true, nil
}
