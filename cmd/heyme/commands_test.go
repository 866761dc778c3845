package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codeme/heyme/internal/conversation"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAPIClient_SendsBearerToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/v1/chat/logs": `[]`,
	})

	resp, err := ts.client().get(ctx, "/api/v1/chat/logs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want it to mention the status", err)
	}
}

func TestRemoteBackend_ListLogs(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/v1/chat/logs": `[
			{"id":"l1","question":"first?","answer":"one","created_at":"2026-03-01T10:00:00Z"},
			{"id":"l2","question":"second?","answer":"two","created_at":"2026-03-01T11:00:00Z"}
		]`,
	})
	backend := &remoteBackend{client: ts.client()}

	entries, err := backend.ListLogs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "l1" || entries[0].Question != "first?" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].CreatedAt.Hour() != 11 {
		t.Errorf("entries[1].CreatedAt = %v", entries[1].CreatedAt)
	}
}

func TestRemoteBackend_Answer(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/v1/chat/rag": `{"question":"q","answer":"the answer","sources":[]}`,
	})
	backend := &remoteBackend{client: ts.client()}

	resp, err := backend.Answer(ctx, conversation.AnswerRequest{
		Question: "q", TopK: 5, GroupID: "team-a",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("answer = %q", resp.Answer)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["question"] != "q" || body["group_id"] != "team-a" {
		t.Errorf("body = %v", body)
	}
	if body["top_k"].(float64) != 5 {
		t.Errorf("top_k = %v, want 5", body["top_k"])
	}
}

func TestRemoteBackend_Answer_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	backend := &remoteBackend{client: ts.client()}

	if _, err := backend.Answer(ctx, conversation.AnswerRequest{Question: "q"}); err == nil {
		t.Fatal("expected error for failing server")
	}
}

func TestRemoteBackend_RecordPair(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/v1/qa-logs": `{"id":"l1","status":"saved"}`,
	})
	backend := &remoteBackend{client: ts.client()}

	err := backend.RecordPair(ctx, conversation.QAPair{
		Question: "q", Answer: "a", SessionID: "s1", IsFailed: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["session_id"] != "s1" {
		t.Errorf("session_id = %v", body["session_id"])
	}
	if body["is_failed"] != true {
		t.Errorf("is_failed = %v, want true", body["is_failed"])
	}
}

func TestRemoteBackend_ClearLogs(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/v1/chat/logs": `{"status":"cleared"}`,
	})
	backend := &remoteBackend{client: ts.client()}

	if err := backend.ClearLogs(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q, want DELETE", ts.requests[0].Method)
	}
}

func TestRemoteBackend_SubmitSurvey(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/v1/chat/survey": `{"id":"s1","status":"saved"}`,
	})
	backend := &remoteBackend{client: ts.client()}

	err := backend.submitSurvey(ctx, conversation.SurveyResult{
		Rating: 2, Reasons: []string{"Unhelpful answer"},
	}, "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["rating"].(float64) != 2 {
		t.Errorf("rating = %v, want 2", body["rating"])
	}
	if body["session_id"] != "session-1" {
		t.Errorf("session_id = %v", body["session_id"])
	}
}
