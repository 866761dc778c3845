package retrieval

import (
	"context"
	"errors"
	"testing"
)

// mockVectorStore implements VectorStore for testing.
type mockVectorStore struct {
	searchFn func(vector []float32, topK int, groupID string) ([]ScoredRecord, error)
	insertFn func(records []Record) error
	deleteFn func(documentID string) error
	countFn  func() (int, error)
}

func (m *mockVectorStore) Search(vector []float32, topK int, groupID string) ([]ScoredRecord, error) {
	return m.searchFn(vector, topK, groupID)
}
func (m *mockVectorStore) Insert(records []Record) error {
	if m.insertFn != nil {
		return m.insertFn(records)
	}
	return nil
}
func (m *mockVectorStore) DeleteByDocument(documentID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(documentID)
	}
	return nil
}
func (m *mockVectorStore) Count() (int, error) {
	if m.countFn != nil {
		return m.countFn()
	}
	return 0, nil
}

func TestRetrieve_MapsRecordsToChunks(t *testing.T) {
	embedder := NewEmbedder(&mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return makeVector(8), nil
		},
	}, "nomic-embed-text")

	store := &mockVectorStore{
		searchFn: func(_ []float32, topK int, groupID string) ([]ScoredRecord, error) {
			if topK != 5 {
				t.Errorf("topK = %d, want 5", topK)
			}
			if groupID != "work" {
				t.Errorf("groupID = %q, want %q", groupID, "work")
			}
			return []ScoredRecord{
				{Record: Record{ID: "r1", DocumentID: "d1", GroupID: "work", ChunkID: 2, TextChunk: "notes"}, Score: 0.9},
			}, nil
		},
	}

	r := NewRetriever(embedder, store)
	chunks, err := r.Retrieve(context.Background(), "where are my notes", 5, "work")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.ID != "r1" || c.DocumentID != "d1" || c.ChunkID != 2 || c.Text != "notes" || c.Score != 0.9 {
		t.Errorf("unexpected chunk: %+v", c)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	embedder := NewEmbedder(&mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return nil, errors.New("no model")
		},
	}, "nomic-embed-text")

	r := NewRetriever(embedder, &mockVectorStore{})
	if _, err := r.Retrieve(context.Background(), "q", 5, ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	embedder := NewEmbedder(&mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return makeVector(8), nil
		},
	}, "nomic-embed-text")

	store := &mockVectorStore{
		searchFn: func(_ []float32, _ int, _ string) ([]ScoredRecord, error) {
			return nil, errors.New("disk on fire")
		},
	}

	r := NewRetriever(embedder, store)
	if _, err := r.Retrieve(context.Background(), "q", 5, ""); err == nil {
		t.Fatal("expected error")
	}
}
