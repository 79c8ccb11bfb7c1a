package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/velichko/resumed/internal/storage"
)

// ChunkStore abstracts the storage operations the ingestor needs.
type ChunkStore interface {
	SaveThread(t storage.Thread) error
	SaveResumeChunks(threadID string, chunks []storage.ResumeChunk) error
	EnqueueJob(job storage.Job) error
}

// VectorPurger removes a thread's rows from the vector index.
type VectorPurger interface {
	DeleteByThread(threadID string) error
}

// IndexCache drops cached index-readiness state for a thread.
type IndexCache interface {
	Invalidate(threadID string)
}

// IngestResult summarizes a completed ingestion. FullText is available
// immediately; vector indexing happens asynchronously.
type IngestResult struct {
	FullText string
	Pages    int
	Chunks   int
}

// Ingestor turns uploaded resume documents into stored chunks and queued
// embedding jobs.
type Ingestor struct {
	store     ChunkStore
	vectors   VectorPurger
	cache     IndexCache
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor with default chunking parameters.
func NewIngestor(store ChunkStore, vectors VectorPurger, cache IndexCache) *Ingestor {
	return &Ingestor{
		store:     store,
		vectors:   vectors,
		cache:     cache,
		chunkSize: defaultChunkSize,
		overlap:   defaultChunkOverlap,
		logger:    slog.Default(),
	}
}

// Ingest extracts text from an uploaded resume, stores the chunks, and
// enqueues one embedding job per chunk. The chunks are queryable as full
// text immediately; vector search becomes available once the jobs drain.
func (in *Ingestor) Ingest(ctx context.Context, data []byte, threadID, ownerID, filename string) (IngestResult, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".pdf" {
		return IngestResult{}, fmt.Errorf("unsupported file format %q: only pdf is accepted", ext)
	}
	if len(data) == 0 {
		return IngestResult{}, fmt.Errorf("empty upload")
	}

	text, pages, err := ExtractPDF(data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extracting text from %s: %w", filename, err)
	}

	return in.persist(threadID, ownerID, filename, text, pages)
}

// persist stores the extracted resume. A re-upload replaces the thread's
// chunk rows, so the previous resume's vectors are purged and the index
// cache invalidated before any new embed jobs are enqueued; otherwise
// stale content would stay searchable.
func (in *Ingestor) persist(threadID, ownerID, filename, text string, pages int) (IngestResult, error) {
	pieces := SplitText(text, in.chunkSize, in.overlap)
	chunks := make([]storage.ResumeChunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = storage.ResumeChunk{
			ID:         uuid.New().String(),
			ThreadID:   threadID,
			ChunkIndex: i,
			Content:    content,
		}
	}

	if err := in.store.SaveThread(storage.Thread{
		ThreadID: threadID,
		OwnerID:  ownerID,
		Filename: filename,
		Pages:    pages,
		Chunks:   len(chunks),
	}); err != nil {
		return IngestResult{}, fmt.Errorf("saving thread: %w", err)
	}

	if err := in.store.SaveResumeChunks(threadID, chunks); err != nil {
		return IngestResult{}, fmt.Errorf("saving chunks: %w", err)
	}

	if err := in.vectors.DeleteByThread(threadID); err != nil {
		return IngestResult{}, fmt.Errorf("clearing stale vectors: %w", err)
	}
	in.cache.Invalidate(threadID)

	for _, c := range chunks {
		payload, err := json.Marshal(embedPayload{ChunkID: c.ID})
		if err != nil {
			return IngestResult{}, fmt.Errorf("encoding job payload: %w", err)
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        "embed_resume",
			PayloadJSON: string(payload),
		}
		if err := in.store.EnqueueJob(job); err != nil {
			return IngestResult{}, fmt.Errorf("enqueuing embed job for chunk %s: %w", c.ID, err)
		}
	}

	in.logger.Info("resume ingested",
		"thread_id", threadID,
		"filename", filename,
		"pages", pages,
		"chunks", len(chunks),
	)

	return IngestResult{FullText: text, Pages: pages, Chunks: len(chunks)}, nil
}
