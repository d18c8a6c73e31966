package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

var agentLogMapping = Mapping[AgentLog]{
	Table: "agent_log",
	Columns: []string{
		"id", "agent_type", "feedback_id", "status",
		"error_message", "processing_time_ms", "created_at", "updated_at",
	},
	Scan: scanAgentLog,
}

func scanAgentLog(row RowScanner) (AgentLog, error) {
	var l AgentLog
	var feedbackID, errMsg sql.NullString
	var durationMS sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.AgentType, &feedbackID, &l.Status,
		&errMsg, &durationMS, &createdAt, &updatedAt)
	if err != nil {
		return AgentLog{}, err
	}
	l.FeedbackID = feedbackID.String
	l.Error = errMsg.String
	l.DurationMS = durationMS.Int64
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return AgentLog{}, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return AgentLog{}, err
	}
	return l, nil
}

// AgentLogRepo is the audit log for agent invocations. It exposes one
// update operation per status so error_message and processing_time_ms
// can only ever be written together with the status they belong to.
// Whether a transition is legal (e.g. never completed -> processing) is
// the calling agent's responsibility.
type AgentLogRepo struct {
	t *Table[AgentLog]
}

func newAgentLogRepo(q Querier) *AgentLogRepo {
	return &AgentLogRepo{t: NewTable(q, agentLogMapping)}
}

// Create records the start of an agent invocation in the pending state.
// feedbackID may be empty for runs not tied to a single feedback row
// (e.g. the summarizer).
func (r *AgentLogRepo) Create(ctx context.Context, agentType AgentType, feedbackID string) (*AgentLog, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	fields := map[string]any{
		"id":         id,
		"agent_type": string(agentType),
		"status":     string(StatusPending),
		"created_at": formatTime(now),
		"updated_at": formatTime(now),
	}
	if feedbackID != "" {
		fields["feedback_id"] = feedbackID
	}

	if _, err := r.t.Insert(ctx, fields); err != nil {
		return nil, err
	}

	return &AgentLog{
		ID:         id,
		AgentType:  agentType,
		FeedbackID: feedbackID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Get returns the log entry with the given id, or nil when it does not exist.
func (r *AgentLogRepo) Get(ctx context.Context, id string) (*AgentLog, error) {
	return r.t.FindByID(ctx, id)
}

// Start moves an entry to processing. Returns false when the id does
// not exist.
func (r *AgentLogRepo) Start(ctx context.Context, id string) (bool, error) {
	return r.t.UpdateByID(ctx, id, map[string]any{
		"status":     string(StatusProcessing),
		"updated_at": formatTime(time.Now()),
	})
}

// Complete moves an entry to completed and records how long processing
// took.
func (r *AgentLogRepo) Complete(ctx context.Context, id string, took time.Duration) (bool, error) {
	return r.t.UpdateByID(ctx, id, map[string]any{
		"status":             string(StatusCompleted),
		"processing_time_ms": took.Milliseconds(),
		"updated_at":         formatTime(time.Now()),
	})
}

// Fail moves an entry to failed with the error message. A negative took
// leaves processing_time_ms unset.
func (r *AgentLogRepo) Fail(ctx context.Context, id string, errMsg string, took time.Duration) (bool, error) {
	fields := map[string]any{
		"status":        string(StatusFailed),
		"error_message": errMsg,
		"updated_at":    formatTime(time.Now()),
	}
	if took >= 0 {
		fields["processing_time_ms"] = took.Milliseconds()
	}
	return r.t.UpdateByID(ctx, id, fields)
}

// ListForFeedback returns the audit trail for one feedback row, oldest
// first.
func (r *AgentLogRepo) ListForFeedback(ctx context.Context, feedbackID string) ([]AgentLog, error) {
	return r.t.FindMany(ctx, Where().Eq("feedback_id", feedbackID), "created_at ASC, id ASC", 0, 0)
}

// ListByStatus returns up to limit entries with the given status, oldest
// first.
func (r *AgentLogRepo) ListByStatus(ctx context.Context, status AgentStatus, limit int) ([]AgentLog, error) {
	return r.t.FindMany(ctx, Where().Eq("status", string(status)), "created_at ASC, id ASC", limit, 0)
}
