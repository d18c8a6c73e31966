package storage

import (
	"context"
	"testing"
	"time"
)

// TestFeedbackCreateGetRoundTrip creates feedback and reads it back.
func TestFeedbackCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	created, err := s.Feedback.Create(ctx, FeedbackInput{
		ID:         "fb-001",
		Text:       "broken water main on 5th street",
		Category:   CategoryInfrastructure,
		Sentiment:  -0.6,
		Confidence: 0.9,
		Timestamp:  ts,
		Embedding:  []byte{0x01, 0x02, 0x03},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Feedback.Get(ctx, "fb-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing feedback")
	}

	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
	if got.Text != "broken water main on 5th street" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Category != CategoryInfrastructure {
		t.Errorf("Category = %q", got.Category)
	}
	if got.Sentiment != -0.6 {
		t.Errorf("Sentiment = %v", got.Sentiment)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %v", got.Confidence)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.Processed {
		t.Error("new feedback should not be processed")
	}
	if string(got.Embedding) != "\x01\x02\x03" {
		t.Errorf("Embedding = %v", got.Embedding)
	}
}

// TestFeedbackCreateGeneratesID verifies an identifier is assigned when
// the caller supplies none.
func TestFeedbackCreateGeneratesID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fb, err := s.Feedback.Create(ctx, FeedbackInput{Text: "no id given", Category: CategoryOther})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if fb.ID == "" {
		t.Error("Create should generate an identifier")
	}

	got, err := s.Feedback.Get(ctx, fb.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Error("generated id does not resolve")
	}
}

func seedFeedback(t *testing.T, s *Store, n int, category Category) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		fb, err := s.Feedback.Create(ctx, FeedbackInput{
			Text:     "seeded feedback",
			Category: category,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, fb.ID)
	}
	return ids
}

// TestFeedbackListFilters verifies category and processed filters plus
// the pagination envelope.
func TestFeedbackListFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	seedFeedback(t, s, 3, CategoryHealth)
	safetyIDs := seedFeedback(t, s, 2, CategorySafety)

	if _, err := s.Feedback.MarkProcessed(ctx, safetyIDs[0], CategorySafety, 0.5, 0.8); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	page, err := s.Feedback.List(ctx, ListQuery{Category: CategoryHealth})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 3 {
		t.Errorf("health listing: total=%d len=%d, want 3/3", page.Total, len(page.Items))
	}

	processed := true
	page, err = s.Feedback.List(ctx, ListQuery{Processed: &processed})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("processed listing total = %d, want 1", page.Total)
	}

	page, err = s.Feedback.List(ctx, ListQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	if page.Page != 2 || page.Limit != 2 {
		t.Errorf("envelope = page %d limit %d, want 2/2", page.Page, page.Limit)
	}
	if len(page.Items) != 2 {
		t.Errorf("page 2 has %d items, want 2", len(page.Items))
	}

	page, err = s.Feedback.List(ctx, ListQuery{Page: 9})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("past-the-end page has %d items, want 0", len(page.Items))
	}
	if page.Items == nil {
		t.Error("Items should be an empty slice, not nil")
	}
}

// TestMarkProcessedMissing verifies a missing id reports false.
func TestMarkProcessedMissing(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.Feedback.MarkProcessed(context.Background(), "missing", CategoryHealth, 0, 0)
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if ok {
		t.Error("MarkProcessed on missing id = true, want false")
	}
}

// TestNextUnprocessed claims the oldest unprocessed row and skips
// processed ones.
func TestNextUnprocessed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fb, err := s.Feedback.NextUnprocessed(ctx)
	if err != nil {
		t.Fatalf("NextUnprocessed: %v", err)
	}
	if fb != nil {
		t.Fatalf("NextUnprocessed on empty table = %+v, want nil", fb)
	}

	ids := seedFeedback(t, s, 2, CategoryOther)
	if _, err := s.Feedback.MarkProcessed(ctx, ids[0], CategoryHealth, 0.1, 0.5); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	fb, err = s.Feedback.NextUnprocessed(ctx)
	if err != nil {
		t.Fatalf("NextUnprocessed: %v", err)
	}
	if fb == nil || fb.ID != ids[1] {
		t.Errorf("NextUnprocessed = %+v, want id %s", fb, ids[1])
	}
}

// TestStats verifies the aggregate counters.
func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// One positive, one negative, one neutral, one unprocessed.
	ids := seedFeedback(t, s, 4, CategoryHealth)
	s.Feedback.MarkProcessed(ctx, ids[0], CategoryHealth, 0.8, 0.9)
	s.Feedback.MarkProcessed(ctx, ids[1], CategorySafety, -0.7, 0.9)
	s.Feedback.MarkProcessed(ctx, ids[2], CategorySafety, 0.05, 0.9)

	stats, err := s.Feedback.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3", stats.Processed)
	}
	if stats.ByCategory["health"] != 2 || stats.ByCategory["safety"] != 2 {
		t.Errorf("ByCategory = %v", stats.ByCategory)
	}
	if stats.Sentiment.Positive != 1 || stats.Sentiment.Neutral != 1 || stats.Sentiment.Negative != 1 {
		t.Errorf("Sentiment = %+v, want 1/1/1", stats.Sentiment)
	}
}

func TestAverageSentiment(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	avg, n, err := s.Feedback.AverageSentiment(ctx, CategoryHealth)
	if err != nil {
		t.Fatalf("AverageSentiment: %v", err)
	}
	if n != 0 || avg != 0 {
		t.Errorf("empty category: avg=%v n=%d, want 0/0", avg, n)
	}

	ids := seedFeedback(t, s, 2, CategoryHealth)
	s.Feedback.MarkProcessed(ctx, ids[0], CategoryHealth, 0.4, 0.9)
	s.Feedback.MarkProcessed(ctx, ids[1], CategoryHealth, 0.8, 0.9)

	avg, n, err = s.Feedback.AverageSentiment(ctx, CategoryHealth)
	if err != nil {
		t.Fatalf("AverageSentiment: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
	if avg < 0.59 || avg > 0.61 {
		t.Errorf("avg = %v, want ~0.6", avg)
	}

	// Empty category covers every processed row.
	avg, n, err = s.Feedback.AverageSentiment(ctx, "")
	if err != nil {
		t.Fatalf("AverageSentiment: %v", err)
	}
	if n != 2 {
		t.Errorf("global n = %d, want 2", n)
	}
	if avg < 0.59 || avg > 0.61 {
		t.Errorf("global avg = %v, want ~0.6", avg)
	}
}

func TestFeedbackDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ids := seedFeedback(t, s, 1, CategoryOther)

	removed, err := s.Feedback.Delete(ctx, ids[0])
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Error("Delete on existing feedback = false")
	}

	got, err := s.Feedback.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("deleted feedback still resolves")
	}
}
