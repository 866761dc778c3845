package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

// mockEmbeddingClient implements EmbeddingClient for testing.
type mockEmbeddingClient struct {
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEmbeddingClient) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return m.embedFn(ctx, model, text)
}

func makeVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	return v
}

func TestEmbed_ReturnsDimension(t *testing.T) {
	mock := &mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return makeVector(384), nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("got %d dimensions, want 384", len(vec))
	}
}

func TestEmbed_ClientError(t *testing.T) {
	mock := &mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error %q does not wrap the client error", err)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	mock := &mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			// Encode the text length so each result is distinguishable.
			return []float32{float32(len(text))}, nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		if vecs[i][0] != float32(len(text)) {
			t.Errorf("result %d out of order: got %f, want %f", i, vecs[i][0], float32(len(text)))
		}
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	e := NewEmbedder(&mockEmbeddingClient{}, "nomic-embed-text")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestEmbedBatch_PropagatesError(t *testing.T) {
	var calls atomic.Int32
	mock := &mockEmbeddingClient{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			calls.Add(1)
			if text == "bad" {
				return nil, errors.New("model exploded")
			}
			return makeVector(4), nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	_, err := e.EmbedBatch(context.Background(), []string{"good", "bad", "good"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model exploded") {
		t.Errorf("error %q does not wrap the client error", err)
	}
}
