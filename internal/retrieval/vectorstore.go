// Package retrieval stores knowledge-base embeddings and finds the chunks
// most similar to a question. The backend is SQLite with brute-force cosine
// similarity, which is comfortable at the scale of a single association's
// document base.
package retrieval

import (
	"context"
	"time"
)

// VectorStore stores embedded text chunks and searches them by similarity.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(ctx context.Context, records []Record) error

	// Search returns the top-K records most similar to vector, best first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteBySource removes every record derived from the given source
	// document. Used before re-ingesting a document.
	DeleteBySource(ctx context.Context, sourceID string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record is one embedded text chunk.
type Record struct {
	ID         string
	SourceID   string
	SourceType string
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
	Tags       string // JSON array stored as text
}

// ScoredRecord is a Record with its similarity score.
type ScoredRecord struct {
	Record
	Score float32
}
