package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/velichko/resumed/internal/retrieval"
	"github.com/velichko/resumed/internal/storage"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.embedFn(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

type mockVectorInserter struct {
	mu       sync.Mutex
	inserted []retrieval.Record
	insertFn func(records []retrieval.Record) error
}

func (m *mockVectorInserter) Insert(records []retrieval.Record) error {
	if m.insertFn != nil {
		return m.insertFn(records)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, records...)
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, threadID, chunkID, content string) {
	t.Helper()
	chunk := storage.ResumeChunk{
		ID:       chunkID,
		ThreadID: threadID,
		Content:  content,
	}
	if err := store.SaveResumeChunks(threadID, []storage.ResumeChunk{chunk}); err != nil {
		t.Fatalf("SaveResumeChunks: %v", err)
	}
	payload, _ := json.Marshal(map[string]string{"chunk_id": chunkID})
	job := storage.Job{
		ID:          "job-" + chunkID,
		Type:        "embed_resume",
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "thread-1", "chunk-1", "Experienced engineer with Go and SQL")

	inserter := &mockVectorInserter{}
	w := NewWorker(store, &mockEmbedder{
		embedFn: func(_ context.Context, _ string) ([]float32, error) {
			return []float32{0.1, 0.2, 0.3}, nil
		},
	}, inserter, 0)

	ctx := context.Background()
	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	inserter.mu.Lock()
	defer inserter.mu.Unlock()
	if len(inserter.inserted) != 1 {
		t.Fatalf("inserted %d records, want 1", len(inserter.inserted))
	}
	rec := inserter.inserted[0]
	if rec.ThreadID != "thread-1" {
		t.Errorf("ThreadID = %q, want %q", rec.ThreadID, "thread-1")
	}
	if rec.TextChunk != "Experienced engineer with Go and SQL" {
		t.Errorf("TextChunk = %q", rec.TextChunk)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "thread-r", "chunk-r", "retry content")

	var calls atomic.Int32
	inserter := &mockVectorInserter{}
	w := NewWorker(store, &mockEmbedder{
		embedFn: func(_ context.Context, _ string) ([]float32, error) {
			n := calls.Add(1)
			if n <= 2 {
				return nil, fmt.Errorf("transient error %d", n)
			}
			return []float32{0.1, 0.2, 0.3}, nil
		},
	}, inserter, 0)

	ctx := context.Background()

	// 1st attempt fails and reschedules.
	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce 1 error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce 1 returned false")
	}

	var status1 string
	var attempts1 int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = 'job-chunk-r'`).Scan(&status1, &attempts1); err != nil {
		t.Fatalf("query after 1st fail: %v", err)
	}
	if status1 != "pending" || attempts1 != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status1, attempts1)
	}

	resetRunAfter(t, store, "job-chunk-r")

	// 2nd attempt fails again.
	didWork, err = w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce 2 error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce 2 returned false")
	}

	resetRunAfter(t, store, "job-chunk-r")

	// 3rd attempt succeeds.
	didWork, err = w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce 3 error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce 3 returned false")
	}

	var status3 string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-chunk-r'`).Scan(&status3); err != nil {
		t.Fatalf("query after 3rd attempt: %v", err)
	}
	if status3 != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", status3)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "thread-m", "chunk-m", "max retry content")

	inserter := &mockVectorInserter{}
	w := NewWorker(store, &mockEmbedder{
		embedFn: func(_ context.Context, _ string) ([]float32, error) {
			return nil, fmt.Errorf("permanent error")
		},
	}, inserter, 0)

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, "job-chunk-m")
		}
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-chunk-m'`).Scan(&status); err != nil {
		t.Fatalf("query final status: %v", err)
	}
	if status != "failed" {
		t.Errorf("final status = %q, want %q", status, "failed")
	}
}

func TestWorker_NoJobAvailable(t *testing.T) {
	store := openTestStore(t)

	w := NewWorker(store, &mockEmbedder{
		embedFn: func(_ context.Context, _ string) ([]float32, error) {
			t.Fatal("embedder should not be called")
			return nil, nil
		},
	}, &mockVectorInserter{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce reported work with empty queue")
	}
}

func TestWorker_DrainsQueue(t *testing.T) {
	store := openTestStore(t)

	const total = 20
	chunks := make([]storage.ResumeChunk, total)
	for j := 0; j < total; j++ {
		chunks[j] = storage.ResumeChunk{
			ID:         fmt.Sprintf("chunk-%d", j),
			ThreadID:   "thread-d",
			ChunkIndex: j,
			Content:    fmt.Sprintf("content %d", j),
		}
	}
	if err := store.SaveResumeChunks("thread-d", chunks); err != nil {
		t.Fatalf("SaveResumeChunks: %v", err)
	}
	for j := 0; j < total; j++ {
		payload, _ := json.Marshal(map[string]string{"chunk_id": fmt.Sprintf("chunk-%d", j)})
		if err := store.EnqueueJob(storage.Job{
			ID:          fmt.Sprintf("job-%d", j),
			Type:        "embed_resume",
			PayloadJSON: string(payload),
		}); err != nil {
			t.Fatalf("EnqueueJob %d: %v", j, err)
		}
	}

	inserter := &mockVectorInserter{}
	w := NewWorker(store, &mockEmbedder{
		embedFn: func(_ context.Context, _ string) ([]float32, error) {
			return []float32{0.1, 0.2, 0.3}, nil
		},
	}, inserter, 0)

	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	passes := 0
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out after %d passes", passes)
		default:
		}
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce error on pass %d: %v", passes, err)
		}
		if !didWork {
			break
		}
		passes++
	}

	inserter.mu.Lock()
	defer inserter.mu.Unlock()
	if len(inserter.inserted) != total {
		t.Errorf("inserted %d records, want %d", len(inserter.inserted), total)
	}
	// 20 jobs at a batch size of 8 drain in three passes.
	if passes != 3 {
		t.Errorf("drained in %d passes, want 3", passes)
	}
}
