package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var feedbackMapping = Mapping[Feedback]{
	Table: "feedback",
	Columns: []string{
		"id", "text", "category", "sentiment", "confidence",
		"timestamp", "processed", "vector_embedding", "created_at", "updated_at",
	},
	Scan: scanFeedback,
}

func scanFeedback(row RowScanner) (Feedback, error) {
	var f Feedback
	var timestamp, createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.Text, &f.Category, &f.Sentiment, &f.Confidence,
		&timestamp, &f.Processed, &f.Embedding, &createdAt, &updatedAt)
	if err != nil {
		return Feedback{}, err
	}
	if f.Timestamp, err = parseTime(timestamp); err != nil {
		return Feedback{}, err
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return Feedback{}, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Feedback{}, err
	}
	return f, nil
}

// FeedbackRepo persists resident feedback.
type FeedbackRepo struct {
	t *Table[Feedback]
}

func newFeedbackRepo(q Querier) *FeedbackRepo {
	return &FeedbackRepo{t: NewTable(q, feedbackMapping)}
}

// Create inserts a new feedback row. When in.ID is empty an identifier
// is generated. Input validity is the caller's concern; run
// ValidateFeedback first at intake boundaries.
func (r *FeedbackRepo) Create(ctx context.Context, in FeedbackInput) (*Feedback, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	fields := map[string]any{
		"id":         id,
		"text":       in.Text,
		"category":   string(in.Category),
		"sentiment":  in.Sentiment,
		"confidence": in.Confidence,
		"timestamp":  formatTime(ts),
		"processed":  false,
		"created_at": formatTime(now),
		"updated_at": formatTime(now),
	}
	if in.Embedding != nil {
		fields["vector_embedding"] = in.Embedding
	}

	if _, err := r.t.Insert(ctx, fields); err != nil {
		return nil, err
	}

	return &Feedback{
		ID:         id,
		Text:       in.Text,
		Category:   in.Category,
		Sentiment:  in.Sentiment,
		Confidence: in.Confidence,
		Timestamp:  ts.UTC().Truncate(time.Second),
		Processed:  false,
		Embedding:  in.Embedding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Get returns the feedback with the given id, or nil when it does not exist.
func (r *FeedbackRepo) Get(ctx context.Context, id string) (*Feedback, error) {
	return r.t.FindByID(ctx, id)
}

// Delete removes a feedback row. Exposed for completeness; the normal
// intake flow never deletes feedback.
func (r *FeedbackRepo) Delete(ctx context.Context, id string) (bool, error) {
	return r.t.DeleteByID(ctx, id)
}

// ListQuery narrows and pages a feedback listing. Category and
// Processed are optional; Page starts at 1.
type ListQuery struct {
	Category  Category
	Processed *bool
	Page      int
	Limit     int
}

// FeedbackPage is one page of results plus the total match count, so
// callers can render paged views with a single round trip.
type FeedbackPage struct {
	Items []Feedback `json:"feedback"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// List returns feedback filtered by category and/or processed flag,
// newest first.
func (r *FeedbackRepo) List(ctx context.Context, q ListQuery) (*FeedbackPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	f := Where()
	if q.Category != "" {
		f.Eq("category", string(q.Category))
	}
	if q.Processed != nil {
		f.Eq("processed", *q.Processed)
	}

	total, err := r.t.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	items, err := r.t.FindMany(ctx, f, "created_at DESC, id DESC", q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Feedback{}
	}

	return &FeedbackPage{Items: items, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// Unprocessed returns up to limit feedback rows the agent pipeline has
// not handled yet, oldest first.
func (r *FeedbackRepo) Unprocessed(ctx context.Context, limit int) ([]Feedback, error) {
	return r.t.FindMany(ctx, Where().Eq("processed", false), "created_at ASC, id ASC", limit, 0)
}

// NextUnprocessed returns the oldest feedback row the agent pipeline has
// not handled yet, or nil when the backlog is empty.
func (r *FeedbackRepo) NextUnprocessed(ctx context.Context) (*Feedback, error) {
	items, err := r.Unprocessed(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// MarkProcessed records the agent pipeline's analysis for one feedback
// row. Returns false when the id does not exist.
func (r *FeedbackRepo) MarkProcessed(ctx context.Context, id string, category Category, sentiment, confidence float64) (bool, error) {
	return r.t.UpdateByID(ctx, id, map[string]any{
		"category":   string(category),
		"sentiment":  sentiment,
		"confidence": confidence,
		"processed":  true,
		"updated_at": formatTime(time.Now()),
	})
}

// Sentiment bucket thresholds. Scores within (-0.2, 0.2) count as neutral.
const (
	positiveThreshold = 0.2
	negativeThreshold = -0.2
)

// Stats aggregates category and sentiment counters across all feedback.
// Sentiment buckets only consider processed rows; unprocessed scores are
// placeholders.
func (r *FeedbackRepo) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: make(map[string]int)}

	var err error
	if stats.Total, err = r.t.Count(ctx, Where()); err != nil {
		return nil, err
	}
	if stats.Processed, err = r.t.Count(ctx, Where().Eq("processed", true)); err != nil {
		return nil, err
	}

	rows, err := r.t.q.QueryContext(ctx, "SELECT category, COUNT(*) FROM feedback GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("counting feedback by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.t.q.QueryRowContext(ctx, `SELECT
		COUNT(CASE WHEN sentiment >= ? THEN 1 END),
		COUNT(CASE WHEN sentiment > ? AND sentiment < ? THEN 1 END),
		COUNT(CASE WHEN sentiment <= ? THEN 1 END)
		FROM feedback WHERE processed = 1`,
		positiveThreshold, negativeThreshold, positiveThreshold, negativeThreshold,
	).Scan(&stats.Sentiment.Positive, &stats.Sentiment.Neutral, &stats.Sentiment.Negative)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("counting sentiment buckets: %w", err)
	}

	return stats, nil
}

// AverageSentiment returns the mean sentiment of processed feedback and
// the number of rows it covers. An empty category means all categories.
func (r *FeedbackRepo) AverageSentiment(ctx context.Context, category Category) (float64, int, error) {
	f := Where().Eq("processed", true)
	if category != "" {
		f.Eq("category", string(category))
	}
	clause, args := f.clause()

	var avg sql.NullFloat64
	var n int
	err := r.t.q.QueryRowContext(ctx, "SELECT AVG(sentiment), COUNT(*) FROM feedback"+clause, args...).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("averaging sentiment for %q: %w", category, err)
	}
	return avg.Float64, n, nil
}
