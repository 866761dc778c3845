package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeme/heyme/internal/retrieval"
	"github.com/codeme/heyme/internal/storage"
	"github.com/google/uuid"
)

// JobIndexDocument is the job type enqueued for every uploaded document.
const JobIndexDocument = "index_document"

// JobStore abstracts the job queue and document status operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	UpdateDocumentStatus(id, status, errMsg string) error
	MarkDocumentIndexed(id string, chunkCount int) error
}

// ContentEmbedder generates embeddings for document chunks.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink stores embedded chunks.
type VectorSink interface {
	Insert(records []retrieval.Record) error
	DeleteByDocument(documentID string) error
}

// Worker processes index_document jobs from the SQLite job queue: extract
// text, chunk it, embed the chunks, store the vectors, and flip the
// document's status.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorSink
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorSink, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobIndexDocument})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type indexPayload struct {
	DocumentID string `json:"document_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	if err := w.store.UpdateDocumentStatus(doc.ID, storage.DocStatusProcessing, ""); err != nil {
		return fmt.Errorf("marking document processing: %w", err)
	}

	if err := w.indexDocument(ctx, doc); err != nil {
		if statusErr := w.store.UpdateDocumentStatus(doc.ID, storage.DocStatusFailed, err.Error()); statusErr != nil {
			w.logger.Error("failed to mark document as failed", "document_id", doc.ID, "error", statusErr)
		}
		return err
	}
	return nil
}

func (w *Worker) indexDocument(ctx context.Context, doc storage.Document) error {
	text, err := ExtractText(doc.MimeType, doc.Content)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}

	chunks := SplitChunks(text, 0)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no extractable text", doc.ID)
	}

	embeddings, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	// Retried jobs may have left partial vectors behind.
	if err := w.vectors.DeleteByDocument(doc.ID); err != nil {
		return fmt.Errorf("clearing stale vectors: %w", err)
	}

	records := make([]retrieval.Record, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			GroupID:    doc.GroupID,
			ChunkID:    i,
			TextChunk:  chunk,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting vectors: %w", err)
	}

	if err := w.store.MarkDocumentIndexed(doc.ID, len(chunks)); err != nil {
		return fmt.Errorf("marking document indexed: %w", err)
	}
	return nil
}
