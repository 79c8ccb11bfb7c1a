package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/velichko/resumed/internal/retrieval"
	"github.com/velichko/resumed/internal/storage"
)

// embedBatchSize bounds how many embed jobs one worker pass claims; the
// claimed chunks are embedded concurrently in a single batch.
const embedBatchSize = 8

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetResumeChunk(id string) (storage.ResumeChunk, error)
}

// ContentEmbedder generates embeddings for a batch of texts.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into the vector store.
type VectorInserter interface {
	Insert(records []retrieval.Record) error
}

// Worker processes embed_resume jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorInserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, pollInterval time.Duration) *Worker {
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

// RunOnce claims up to embedBatchSize embed_resume jobs and processes
// them as one embedding batch. Returns true if any job was claimed
// (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	claimed := 0
	var jobs []*storage.Job
	var chunks []storage.ResumeChunk
	for claimed < embedBatchSize {
		job, err := w.store.ClaimNextJob([]string{"embed_resume"})
		if err != nil {
			if claimed == 0 {
				return false, fmt.Errorf("claiming job: %w", err)
			}
			break
		}
		if job == nil {
			break
		}
		claimed++

		chunk, err := w.loadChunk(job)
		if err != nil {
			w.failJob(job, err)
			continue
		}
		jobs = append(jobs, job)
		chunks = append(chunks, chunk)
	}
	if claimed == 0 {
		return false, nil
	}
	if len(jobs) == 0 {
		return true, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		for _, job := range jobs {
			w.failJob(job, fmt.Errorf("embedding content: %w", err))
		}
		return true, nil
	}

	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			ThreadID:   c.ThreadID,
			ChunkIndex: c.ChunkIndex,
			TextChunk:  c.Content,
			Embedding:  vecs[i],
			CreatedAt:  time.Now().UTC(),
		}
	}
	if err := w.vectors.Insert(records); err != nil {
		for _, job := range jobs {
			w.failJob(job, fmt.Errorf("inserting vectors: %w", err))
		}
		return true, nil
	}

	for _, job := range jobs {
		if err := w.store.CompleteJob(job.ID); err != nil {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
	}
	return true, nil
}

type embedPayload struct {
	ChunkID string `json:"chunk_id"`
}

func (w *Worker) loadChunk(job *storage.Job) (storage.ResumeChunk, error) {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return storage.ResumeChunk{}, fmt.Errorf("parsing payload: %w", err)
	}

	chunk, err := w.store.GetResumeChunk(payload.ChunkID)
	if err != nil {
		return storage.ResumeChunk{}, fmt.Errorf("loading chunk %s: %w", payload.ChunkID, err)
	}
	return chunk, nil
}

func (w *Worker) failJob(job *storage.Job, err error) {
	w.logger.Warn("job failed", "job_id", job.ID, "error", err)
	if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
	}
}
