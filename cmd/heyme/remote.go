package main

import (
	"context"
	"fmt"
	"time"

	"github.com/codeme/heyme/internal/conversation"
)

// remoteBackend adapts the HTTP API to the conversation engine's
// collaborator interfaces.
type remoteBackend struct {
	client *apiClient
}

func (b *remoteBackend) Token() string {
	return b.client.token
}

func (b *remoteBackend) ListLogs(ctx context.Context) ([]conversation.LogEntry, error) {
	resp, err := b.client.get(ctx, "/api/v1/chat/logs")
	if err != nil {
		return nil, err
	}

	var logs []struct {
		ID        string    `json:"id"`
		Question  string    `json:"question"`
		Answer    string    `json:"answer"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := decodeJSON(resp, &logs); err != nil {
		return nil, err
	}

	entries := make([]conversation.LogEntry, len(logs))
	for i, l := range logs {
		entries[i] = conversation.LogEntry{
			ID:        l.ID,
			Question:  l.Question,
			Answer:    l.Answer,
			CreatedAt: l.CreatedAt,
		}
	}
	return entries, nil
}

func (b *remoteBackend) Answer(ctx context.Context, req conversation.AnswerRequest) (conversation.AnswerResponse, error) {
	resp, err := b.client.post(ctx, "/api/v1/chat/rag", map[string]any{
		"question": req.Question,
		"group_id": req.GroupID,
		"top_k":    req.TopK,
	})
	if err != nil {
		return conversation.AnswerResponse{}, err
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return conversation.AnswerResponse{}, err
	}
	return conversation.AnswerResponse{Answer: out.Answer}, nil
}

func (b *remoteBackend) ClearLogs(ctx context.Context) error {
	resp, err := b.client.delete(ctx, "/api/v1/chat/logs")
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

func (b *remoteBackend) RecordPair(ctx context.Context, pair conversation.QAPair) error {
	resp, err := b.client.post(ctx, "/api/v1/qa-logs", map[string]any{
		"question":   pair.Question,
		"answer":     pair.Answer,
		"session_id": pair.SessionID,
		"is_failed":  pair.IsFailed,
	})
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

func (b *remoteBackend) submitSurvey(ctx context.Context, result conversation.SurveyResult, sessionID string) error {
	resp, err := b.client.post(ctx, "/api/v1/chat/survey", map[string]any{
		"rating":     result.Rating,
		"reasons":    result.Reasons,
		"session_id": sessionID,
	})
	if err != nil {
		return err
	}
	var out map[string]string
	if err := decodeJSON(resp, &out); err != nil {
		return fmt.Errorf("submitting survey: %w", err)
	}
	return nil
}
