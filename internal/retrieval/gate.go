package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// QueryEmbedder generates an embedding for a search query.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gate fronts the vector store for conversational retrieval. It answers
// "is this thread indexed yet" cheaply and returns empty results rather
// than errors for threads whose embeddings have not caught up, so callers
// can degrade gracefully while ingestion jobs drain.
type Gate struct {
	store    VectorStore
	embedder QueryEmbedder
	logger   *slog.Logger

	mu      sync.RWMutex
	indexed map[string]bool // positive-only cache; absence means "check the store"
}

// NewGate creates a Gate over the given store and embedder.
func NewGate(store VectorStore, embedder QueryEmbedder) *Gate {
	return &Gate{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
		indexed:  make(map[string]bool),
	}
}

// HasIndex reports whether the thread has at least one indexed vector.
// Positive answers are cached; a store error is treated as "not indexed"
// so the caller falls back instead of failing the turn.
func (g *Gate) HasIndex(threadID string) bool {
	g.mu.RLock()
	cached := g.indexed[threadID]
	g.mu.RUnlock()
	if cached {
		return true
	}

	count, err := g.store.CountByThread(threadID)
	if err != nil {
		g.logger.Warn("index check failed", "thread_id", threadID, "error", err)
		return false
	}
	if count == 0 {
		return false
	}

	g.mu.Lock()
	g.indexed[threadID] = true
	g.mu.Unlock()
	return true
}

// Invalidate drops the cached index state for a thread. Called when a
// thread's resume is replaced and its vectors are rebuilt.
func (g *Gate) Invalidate(threadID string) {
	g.mu.Lock()
	delete(g.indexed, threadID)
	g.mu.Unlock()
}

// Query embeds the query text and searches the thread's vectors. Returns
// an empty result set when the thread has no index yet.
func (g *Gate) Query(ctx context.Context, threadID, query string, topK int) ([]ScoredRecord, error) {
	if !g.HasIndex(threadID) {
		return nil, nil
	}

	vec, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := g.store.Search(threadID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching thread %s: %w", threadID, err)
	}
	return results, nil
}
