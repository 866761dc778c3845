package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeme/heyme/internal/retrieval"
	"github.com/codeme/heyme/internal/storage"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type mockVectorSink struct {
	mu       sync.Mutex
	inserted []retrieval.Record
	insertFn func(records []retrieval.Record) error
}

func (m *mockVectorSink) Insert(records []retrieval.Record) error {
	if m.insertFn != nil {
		return m.insertFn(records)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, records...)
	return nil
}

func (m *mockVectorSink) DeleteByDocument(_ string) error { return nil }

func (m *mockVectorSink) records() []retrieval.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]retrieval.Record, len(m.inserted))
	copy(out, m.inserted)
	return out
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, docID, content string) {
	t.Helper()
	doc := storage.Document{
		ID:               docID,
		Title:            "Test Doc",
		OriginalFileName: "test.txt",
		MimeType:         "text/plain",
		SizeBytes:        int64(len(content)),
		Content:          []byte(content),
	}
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	payload, _ := json.Marshal(map[string]string{"document_id": docID})
	job := storage.Job{
		ID:          "job-" + docID,
		Type:        JobIndexDocument,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "doc-1", "Hello world")

	sink := &mockVectorSink{}
	w := NewWorker(store, &mockEmbedder{}, sink, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	recs := sink.records()
	if len(recs) != 1 {
		t.Fatalf("inserted %d records, want 1", len(recs))
	}
	if recs[0].DocumentID != "doc-1" {
		t.Errorf("DocumentID = %q, want %q", recs[0].DocumentID, "doc-1")
	}
	if recs[0].ChunkID != 0 {
		t.Errorf("ChunkID = %d, want 0", recs[0].ChunkID)
	}

	doc, err := store.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != storage.DocStatusProcessed {
		t.Errorf("Status = %q, want %q", doc.Status, storage.DocStatusProcessed)
	}
	if doc.ChunkCount != 1 {
		t.Errorf("ChunkCount = %d, want 1", doc.ChunkCount)
	}
}

func TestWorker_ChunksLongDocument(t *testing.T) {
	store := openTestStore(t)
	para := strings.Repeat("some words here ", 60) // ~960 runes
	content := para + "\n\n" + para + "\n\n" + para
	enqueueTestJob(t, store, "doc-1", content)

	sink := &mockVectorSink{}
	w := NewWorker(store, &mockEmbedder{}, sink, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	recs := sink.records()
	if len(recs) < 2 {
		t.Fatalf("inserted %d records, want multiple chunks", len(recs))
	}
	for i, r := range recs {
		if r.ChunkID != i {
			t.Errorf("records[%d].ChunkID = %d", i, r.ChunkID)
		}
	}

	doc, _ := store.GetDocument("doc-1")
	if doc.ChunkCount != len(recs) {
		t.Errorf("ChunkCount = %d, want %d", doc.ChunkCount, len(recs))
	}
}

func TestWorker_NoJobIsIdle(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockEmbedder{}, &mockVectorSink{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if didWork {
		t.Fatal("RunOnce returned true with an empty queue")
	}
}

func TestWorker_EmbedFailureMarksDocumentFailed(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "doc-1", "content")

	w := NewWorker(store, &mockEmbedder{
		embedFn: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("model offline")
		},
	}, &mockVectorSink{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	doc, err := store.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != storage.DocStatusFailed {
		t.Errorf("Status = %q, want %q", doc.Status, storage.DocStatusFailed)
	}
	if !strings.Contains(doc.ErrorMessage, "model offline") {
		t.Errorf("ErrorMessage = %q, want the embed error", doc.ErrorMessage)
	}
}

func TestWorker_RetrySucceedsAfterTransientFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "doc-1", "content")

	fails := 1
	w := NewWorker(store, &mockEmbedder{
		embedFn: func(_ context.Context, texts []string) ([][]float32, error) {
			if fails > 0 {
				fails--
				return nil, errors.New("transient")
			}
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{0.5}
			}
			return out, nil
		},
	}, &mockVectorSink{}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	resetRunAfter(t, store, "job-doc-1")

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	doc, _ := store.GetDocument("doc-1")
	if doc.Status != storage.DocStatusProcessed {
		t.Errorf("Status = %q after retry, want %q", doc.Status, storage.DocStatusProcessed)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockEmbedder{}, &mockVectorSink{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
