package retrieval

import (
	"context"
	"time"
)

// ContextChunk is a retrieved document fragment with its similarity score.
type ContextChunk struct {
	ID         string
	DocumentID string
	GroupID    string
	ChunkID    int
	Text       string
	Score      float32
	CreatedAt  time.Time
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar document
// chunks. A non-empty groupID restricts results to that document group.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, groupID string) ([]ContextChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(vec, topK, groupID)
	if err != nil {
		return nil, err
	}

	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ID:         s.ID,
			DocumentID: s.DocumentID,
			GroupID:    s.GroupID,
			ChunkID:    s.ChunkID,
			Text:       s.TextChunk,
			Score:      s.Score,
			CreatedAt:  s.CreatedAt,
		}
	}
	return chunks, nil
}
