package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testFeedbackFields(id, text string) map[string]any {
	now := formatTime(time.Now())
	return map[string]any{
		"id":         id,
		"text":       text,
		"category":   "other",
		"sentiment":  0.0,
		"confidence": 0.0,
		"timestamp":  now,
		"processed":  false,
		"created_at": now,
		"updated_at": now,
	}
}

// TestInsertFindByIDRoundTrip inserts through the generic table and
// reads the row back by id.
func TestInsertFindByIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	id, err := tbl.Insert(ctx, testFeedbackFields("fb-1", "streetlight out on Oak Ave"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != "fb-1" {
		t.Errorf("Insert returned id %q, want %q", id, "fb-1")
	}

	got, err := tbl.FindByID(ctx, "fb-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil {
		t.Fatal("FindByID returned nil for existing row")
	}
	if got.Text != "streetlight out on Oak Ave" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Category != CategoryOther {
		t.Errorf("Category = %q, want other", got.Category)
	}
}

// TestFindByIDAbsent verifies absence is reported as nil, not an error.
func TestFindByIDAbsent(t *testing.T) {
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	got, err := tbl.FindByID(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got != nil {
		t.Errorf("FindByID for missing id = %+v, want nil", got)
	}
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	fields := testFeedbackFields("fb-x", "text")
	fields["nefarious"] = "DROP TABLE feedback"

	if _, err := tbl.Insert(context.Background(), fields); err == nil {
		t.Error("Insert with unknown column should fail")
	}
}

// TestInsertEngineGeneratedID verifies the engine rowid is returned when
// the field map carries no identifier.
func TestInsertEngineGeneratedID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	fields := testFeedbackFields("", "no explicit id")
	delete(fields, "id")

	id, err := tbl.Insert(ctx, fields)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == "" {
		t.Error("Insert without map id should return the engine-generated identifier")
	}
}

// TestUpdateByIDMissing verifies updating a non-existent id reports
// false and mutates nothing.
func TestUpdateByIDMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	if _, err := tbl.Insert(ctx, testFeedbackFields("fb-1", "original")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := tbl.UpdateByID(ctx, "missing", map[string]any{"text": "changed"})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if ok {
		t.Error("UpdateByID on missing id = true, want false")
	}

	got, err := tbl.FindByID(ctx, "fb-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Text != "original" {
		t.Errorf("existing row mutated: Text = %q", got.Text)
	}
}

func TestUpdateByIDUnknownColumn(t *testing.T) {
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	if _, err := tbl.UpdateByID(context.Background(), "fb-1", map[string]any{"bogus": 1}); err == nil {
		t.Error("UpdateByID with unknown column should fail")
	}
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	if _, err := tbl.Insert(ctx, testFeedbackFields("fb-1", "x")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	removed, err := tbl.DeleteByID(ctx, "fb-1")
	if err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if !removed {
		t.Error("DeleteByID on existing row = false, want true")
	}

	removed, err = tbl.DeleteByID(ctx, "fb-1")
	if err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if removed {
		t.Error("DeleteByID on missing row = true, want false")
	}
}

// TestFindManyOffsetPolicy verifies offset is ignored unless a limit is set.
func TestFindManyOffsetPolicy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := tbl.Insert(ctx, testFeedbackFields(id, "row "+id)); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	rows, err := tbl.FindMany(ctx, Where(), "id ASC", 0, 2)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("offset without limit returned %d rows, want all 3", len(rows))
	}

	rows, err = tbl.FindMany(ctx, Where(), "id ASC", 2, 1)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "b" || rows[1].ID != "c" {
		t.Errorf("limit 2 offset 1 returned wrong page: %+v", rows)
	}
}

func TestCountWithFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	n, err := tbl.Count(ctx, Where().Eq("category", "safety"))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count on empty table = %d, want 0", n)
	}

	fields := testFeedbackFields("fb-1", "pothole")
	fields["category"] = "infrastructure"
	if _, err := tbl.Insert(ctx, fields); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err = tbl.Count(ctx, Where().Eq("category", "infrastructure"))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

// TestDeleteMany removes rows through the filter builder and leaves the
// rest untouched.
func TestDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tbl := NewTable(s.db, feedbackMapping)

	for id, sentiment := range map[string]float64{"a": 0.1, "b": 0.5, "c": 0.9} {
		fields := testFeedbackFields(id, "row "+id)
		fields["sentiment"] = sentiment
		if _, err := tbl.Insert(ctx, fields); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	n, err := tbl.DeleteMany(ctx, Where().Lte("sentiment", 0.5))
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteMany removed %d rows, want 2", n)
	}

	rows, err := tbl.FindMany(ctx, Where(), "id ASC", 0, 0)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "c" {
		t.Errorf("remaining rows = %+v, want only c", rows)
	}
}

// TestTransactRollback verifies writes inside a failed unit of work are
// not visible afterwards.
func TestTransactRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	boom := errors.New("boom")
	err := s.Transact(ctx, func(r *Repos) error {
		if _, err := r.Feedback.Create(ctx, FeedbackInput{Text: "inside tx", Category: CategoryOther}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transact returned %v, want the unit-of-work error", err)
	}

	page, err := s.Feedback.List(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("rolled-back insert is visible: total = %d", page.Total)
	}
}

func TestTransactCommit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Transact(ctx, func(r *Repos) error {
		if _, err := r.Feedback.Create(ctx, FeedbackInput{Text: "first", Category: CategoryOther}); err != nil {
			return err
		}
		_, err := r.Feedback.Create(ctx, FeedbackInput{Text: "second", Category: CategorySafety})
		return err
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	page, err := s.Feedback.List(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("committed inserts missing: total = %d, want 2", page.Total)
	}
}

func TestFilterClause(t *testing.T) {
	clause, args := Where().clause()
	if clause != "" || args != nil {
		t.Errorf("empty filter rendered %q with args %v", clause, args)
	}

	clause, args = Where().Eq("category", "health").Eq("processed", true).clause()
	if clause != " WHERE category = ? AND processed = ?" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 2 {
		t.Errorf("args = %v, want 2 values", args)
	}
}
