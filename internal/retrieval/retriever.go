package retrieval

import (
	"context"
	"time"
)

// Snippet is a retrieved knowledge-base fragment with its similarity score.
type Snippet struct {
	ID         string
	SourceID   string
	SourceType string
	Text       string
	Score      float32
	CreatedAt  time.Time
}

// Retriever combines embedding and vector search to answer "what do we know
// about this" questions.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar snippets.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	snippets := make([]Snippet, len(scored))
	for i, s := range scored {
		snippets[i] = Snippet{
			ID:         s.ID,
			SourceID:   s.SourceID,
			SourceType: s.SourceType,
			Text:       s.TextChunk,
			Score:      s.Score,
			CreatedAt:  s.CreatedAt,
		}
	}
	return snippets, nil
}
