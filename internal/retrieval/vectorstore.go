package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The current implementation uses SQLite with brute-force cosine
// similarity; every operation is scoped to a single conversation thread so
// one user's resume never surfaces in another's search.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search performs vector similarity search within one thread,
	// returning the top-K most similar records.
	Search(threadID string, vector []float32, topK int) ([]ScoredRecord, error)

	// CountByThread returns the number of indexed vectors for a thread.
	CountByThread(threadID string) (int, error)

	// DeleteByThread removes all vectors for a thread. Idempotent.
	DeleteByThread(threadID string) error
}

// Record represents a row in the vector store.
type Record struct {
	ID         string
	ThreadID   string
	ChunkIndex int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
