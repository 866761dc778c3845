package conversation

import (
	"context"
	"time"
)

// LogEntry is one persisted question/answer pair from the remote history.
type LogEntry struct {
	ID        string
	Question  string
	Answer    string
	CreatedAt time.Time
}

// HistorySource lists persisted conversation pairs, oldest first.
type HistorySource interface {
	ListLogs(ctx context.Context) ([]LogEntry, error)
}

// AnswerRequest carries one question to the answering backend.
type AnswerRequest struct {
	Question string
	TopK     int
	GroupID  string
}

// AnswerResponse is the backend's reply to one question.
type AnswerResponse struct {
	Answer string
}

// Answerer produces an answer for a user question.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error)
}

// HistoryClearer deletes all persisted conversation pairs.
type HistoryClearer interface {
	ClearLogs(ctx context.Context) error
}

// QAPair is one completed turn to persist. Failed turns carry a fixed
// placeholder answer and IsFailed set.
type QAPair struct {
	Question  string
	Answer    string
	SessionID string
	IsFailed  bool
}

// PairRecorder persists completed turns. Recording is best-effort: the
// engine swallows its errors.
type PairRecorder interface {
	RecordPair(ctx context.Context, pair QAPair) error
}

// TokenSource reports the current credential. An empty token means no
// authenticated session exists.
type TokenSource interface {
	Token() string
}
