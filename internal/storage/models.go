package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document statuses, in lifecycle order.
const (
	DocStatusUploaded   = "uploaded"
	DocStatusProcessing = "processing"
	DocStatusProcessed  = "processed"
	DocStatusFailed     = "failed"
)

// QALog is the durable record of one chat turn (question + answer).
type QALog struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	SessionID string    `json:"session_id,omitempty"`
	LinkID    string    `json:"link_id,omitempty"`
	IsFailed  bool      `json:"is_failed"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is an uploaded file tracked through the indexing pipeline.
// Content holds the raw uploaded bytes until indexing extracts and chunks them.
type Document struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	OriginalFileName string    `json:"original_file_name"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	GroupID          string    `json:"group_id,omitempty"`
	Content          []byte    `json:"-"`
	Status           string    `json:"status"`
	ChunkCount       int       `json:"chunk_count"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ShareLink is a public, read-only chat entry point scoped to a document group.
type ShareLink struct {
	ID             string     `json:"id"`
	GroupID        string     `json:"group_id"`
	Title          string     `json:"title,omitempty"`
	IsActive       bool       `json:"is_active"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SurveyResponse is one submitted satisfaction rating.
type SurveyResponse struct {
	ID        string    `json:"id"`
	Rating    int       `json:"rating"`
	Reasons   string    `json:"reasons"` // JSON array stored as text
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is a queued background task (document indexing).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// KeywordCount is a dashboard aggregate of question keywords.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// RecentQuestion is a dashboard row for the latest asked questions.
type RecentQuestion struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyCount is the number of chat turns on one calendar day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// FailedQuestion groups failed turns by their normalized question text.
type FailedQuestion struct {
	NormalizedQuestion string     `json:"normalized_question"`
	SampleQuestion     string     `json:"sample_question"`
	FailCount          int        `json:"fail_count"`
	LastAskedAt        *time.Time `json:"last_asked_at,omitempty"`
}
