package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicpulse/civicpulse/internal/storage"
)

// Summarizer recomputes the cached per-category and global rollups from
// processed feedback. Key issue and trend extraction belong to the
// model-backed pipeline; this summarizer fills the counters storage can
// derive on its own.
type Summarizer struct {
	repos *storage.Repos
	ttl   time.Duration
}

// NewSummarizer creates a Summarizer whose entries stay fresh for ttl.
// If ttl is <= 0, it defaults to 15 minutes.
func NewSummarizer(repos *storage.Repos, ttl time.Duration) *Summarizer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Summarizer{repos: repos, ttl: ttl}
}

// RefreshAll rewrites the cached summary for every category plus the
// global rollup, recording the sweep as one agent log entry.
func (s *Summarizer) RefreshAll(ctx context.Context) error {
	entry, err := s.repos.AgentLog.Create(ctx, storage.AgentSummarizer, "")
	if err != nil {
		return fmt.Errorf("creating agent log entry: %w", err)
	}
	if _, err := s.repos.AgentLog.Start(ctx, entry.ID); err != nil {
		return fmt.Errorf("starting agent log entry: %w", err)
	}

	started := time.Now()
	scopes := make([]string, 0, len(storage.Categories)+1)
	for _, cat := range storage.Categories {
		scopes = append(scopes, string(cat))
	}
	scopes = append(scopes, "")

	for _, scope := range scopes {
		if err := s.refresh(ctx, scope); err != nil {
			if _, failErr := s.repos.AgentLog.Fail(ctx, entry.ID, err.Error(), time.Since(started)); failErr != nil {
				return failErr
			}
			return err
		}
	}

	if _, err := s.repos.AgentLog.Complete(ctx, entry.ID, time.Since(started)); err != nil {
		return fmt.Errorf("completing agent log entry: %w", err)
	}
	return nil
}

func (s *Summarizer) refresh(ctx context.Context, category string) error {
	avg, n, err := s.repos.Feedback.AverageSentiment(ctx, storage.Category(category))
	if err != nil {
		return err
	}

	summary := storage.CategorySummary{
		Category:         category,
		Count:            n,
		AverageSentiment: avg,
		KeyIssues:        []string{},
		Trends:           []string{},
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling summary for %q: %w", category, err)
	}

	_, err = s.repos.Summaries.Set(ctx, storage.SummaryKey(category), category, data, s.ttl)
	return err
}
