package storage

import (
	"encoding/json"
	"time"
)

// Category classifies a piece of feedback.
type Category string

const (
	CategoryHealth         Category = "health"
	CategoryInfrastructure Category = "infrastructure"
	CategorySafety         Category = "safety"
	CategoryOther          Category = "other"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{CategoryHealth, CategoryInfrastructure, CategorySafety, CategoryOther}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// AgentType identifies which agent produced a log entry.
type AgentType string

const (
	AgentCategorizer AgentType = "categorizer"
	AgentSentiment   AgentType = "sentiment"
	AgentSummarizer  AgentType = "summarizer"
)

// AgentStatus tracks the lifecycle of one agent invocation.
// Transitions: pending -> processing -> completed | failed.
// Legality of a transition is the caller's responsibility; the
// repository only guarantees that error_message and processing_time_ms
// are written together with their corresponding status.
type AgentStatus string

const (
	StatusPending    AgentStatus = "pending"
	StatusProcessing AgentStatus = "processing"
	StatusCompleted  AgentStatus = "completed"
	StatusFailed     AgentStatus = "failed"
)

// Feedback is one resident submission. Category, sentiment, confidence
// and the processed flag are filled in later by the agent pipeline.
type Feedback struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Category   Category  `json:"category"`
	Sentiment  float64   `json:"sentiment"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Processed  bool      `json:"processed"`
	Embedding  []byte    `json:"-"` // opaque embedding blob, may be nil
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SummaryEntry is one row of the computed-summary cache. Data is opaque
// to the storage layer; Category is empty for the global scope.
type SummaryEntry struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Category  string          `json:"category,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// AgentLog records a single agent invocation against a feedback row.
type AgentLog struct {
	ID         string      `json:"id"`
	AgentType  AgentType   `json:"agentType"`
	FeedbackID string      `json:"feedbackId,omitempty"`
	Status     AgentStatus `json:"status"`
	Error      string      `json:"errorMessage,omitempty"`
	DurationMS int64       `json:"processingTimeMs,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Migration is one row of the schema ledger.
type Migration struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// CategorySummary is the payload shape the summarizer agent caches per
// category. The storage layer treats it as opaque; it is defined here so
// the API and the summarizer agree on the wire shape.
type CategorySummary struct {
	Category         string   `json:"category"`
	Count            int      `json:"count"`
	AverageSentiment float64  `json:"averageSentiment"`
	KeyIssues        []string `json:"keyIssues"`
	Trends           []string `json:"trends"`
}

// SentimentCounts buckets processed feedback by sentiment score.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Stats aggregates counters for the dashboard.
type Stats struct {
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	ByCategory map[string]int  `json:"byCategory"`
	Sentiment  SentimentCounts `json:"sentiment"`
}
