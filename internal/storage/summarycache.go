package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var summaryMapping = Mapping[SummaryEntry]{
	Table: "summary_cache",
	Columns: []string{
		"id", "cache_key", "category", "summary_data",
		"created_at", "updated_at", "expires_at",
	},
	Scan: scanSummary,
}

func scanSummary(row RowScanner) (SummaryEntry, error) {
	var e SummaryEntry
	var category sql.NullString
	var data string
	var createdAt, updatedAt, expiresAt string
	err := row.Scan(&e.ID, &e.Key, &category, &data, &createdAt, &updatedAt, &expiresAt)
	if err != nil {
		return SummaryEntry{}, err
	}
	e.Category = category.String
	e.Data = json.RawMessage(data)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return SummaryEntry{}, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return SummaryEntry{}, err
	}
	if e.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return SummaryEntry{}, err
	}
	return e, nil
}

// SummaryCacheRepo stores computed summaries with a TTL. Expiry is
// logical: reads treat stale rows as misses without deleting them, and
// PurgeExpired reclaims them whenever the caller chooses to run it.
type SummaryCacheRepo struct {
	t *Table[SummaryEntry]
}

func newSummaryCacheRepo(q Querier) *SummaryCacheRepo {
	return &SummaryCacheRepo{t: NewTable(q, summaryMapping)}
}

// SummaryKey derives the cache key for a category scope; an empty
// category names the global summary.
func SummaryKey(category string) string {
	if category == "" {
		return "summary:all"
	}
	return "summary:" + category
}

// Get returns the entry for key, or nil when there is none or its
// expiry has passed. now >= expires_at counts as a miss even while the
// row still physically exists. RFC3339 UTC strings compare
// chronologically, so the expiry check binds as a plain text predicate.
func (r *SummaryCacheRepo) Get(ctx context.Context, key string) (*SummaryEntry, error) {
	f := Where().Eq("cache_key", key).Gt("expires_at", formatTime(time.Now()))
	entries, err := r.t.FindMany(ctx, f, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Set upserts the entry for key: an existing row keeps its identity and
// creation time but gets new payload, category and expiry. The new
// expiry is now + ttl; ttl must be positive.
func (r *SummaryCacheRepo) Set(ctx context.Context, key, category string, data json.RawMessage, ttl time.Duration) (*SummaryEntry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("summary cache ttl must be positive, got %s", ttl)
	}

	now := time.Now().UTC().Truncate(time.Second)
	expires := now.Add(ttl)

	_, err := r.t.q.ExecContext(ctx, `
		INSERT INTO summary_cache (id, cache_key, category, summary_data, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			category = excluded.category,
			summary_data = excluded.summary_data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		uuid.NewString(), key, category, string(data),
		formatTime(now), formatTime(now), formatTime(expires),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting summary %q: %w", key, err)
	}

	return r.Get(ctx, key)
}

// Invalidate removes every cached summary for a category, plus the
// global entry when category is empty. Used when new feedback changes
// the data the summaries were computed from.
func (r *SummaryCacheRepo) Invalidate(ctx context.Context, category string) (int, error) {
	res, err := r.t.q.ExecContext(ctx, "DELETE FROM summary_cache WHERE category = ? OR cache_key = ?",
		category, SummaryKey(category))
	if err != nil {
		return 0, fmt.Errorf("invalidating summaries for %q: %w", category, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PurgeExpired deletes rows whose expiry has passed and reports how many
// were removed. Scheduling is the caller's responsibility; there is no
// internal timer.
func (r *SummaryCacheRepo) PurgeExpired(ctx context.Context) (int, error) {
	return r.t.DeleteMany(ctx, Where().Lte("expires_at", formatTime(time.Now())))
}
