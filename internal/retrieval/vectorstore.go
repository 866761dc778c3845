package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The current implementation uses SQLite with brute-force cosine
// similarity, which is plenty for a personal document collection.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector.
	// A non-empty groupID restricts the search to that document group.
	Search(vector []float32, topK int, groupID string) ([]ScoredRecord, error)

	// DeleteByDocument removes all records belonging to a document.
	DeleteByDocument(documentID string) error

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record represents one embedded chunk of a document.
type Record struct {
	ID         string
	DocumentID string
	GroupID    string
	ChunkID    int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
