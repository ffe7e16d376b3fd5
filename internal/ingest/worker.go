// Package ingest turns saved knowledge-base documents into embedded,
// searchable chunks. Documents are queued as kb_embed jobs; a background
// worker claims them, chunks the text, embeds every chunk and fills the
// vector store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lavrabot/lavra/internal/retrieval"
	"github.com/lavrabot/lavra/internal/storage"
)

// JobTypeEmbed is the job type this worker consumes.
const JobTypeEmbed = "kb_embed"

// JobStore abstracts the job queue and document operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetKBDoc(id string) (storage.KBDoc, error)
	UpdateKBDocVectorID(id, vectorID string) error
}

// ContentEmbedder generates embeddings for text chunks.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink receives the embedded chunks.
type VectorSink interface {
	Insert(ctx context.Context, records []retrieval.Record) error
	DeleteBySource(ctx context.Context, sourceID string) error
}

// Worker processes kb_embed jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorSink
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorSink, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   logger,
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

// RunOnce claims and processes a single kb_embed job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeEmbed})
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

// EmbedPayload is the JSON payload of a kb_embed job.
type EmbedPayload struct {
	KBDocID string `json:"kb_doc_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload EmbedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetKBDoc(payload.KBDocID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.KBDocID, err)
	}

	chunks := SplitText(doc.Content, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no embeddable content", doc.ID)
	}

	vectors, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	// Re-ingesting a document replaces its old chunks.
	if err := w.vectors.DeleteBySource(ctx, doc.ID); err != nil {
		return fmt.Errorf("removing stale vectors: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.NewString(),
			SourceID:   doc.ID,
			SourceType: "kb_doc",
			TextChunk:  chunk,
			Embedding:  vectors[i],
			CreatedAt:  now,
			Tags:       doc.Tags,
		}
	}

	if err := w.vectors.Insert(ctx, records); err != nil {
		return fmt.Errorf("inserting %d vectors: %w", len(records), err)
	}

	if err := w.store.UpdateKBDocVectorID(doc.ID, records[0].ID); err != nil {
		return fmt.Errorf("updating vector_id: %w", err)
	}

	w.logger.Info("document embedded", "doc_id", doc.ID, "chunks", len(chunks))
	return nil
}
