package retrieval

import (
	"testing"

	"github.com/velichko/resumed/internal/storage"
)

func newTestVectorStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLiteStore(s.DB())
}

func TestSearchRanksBySimilarity(t *testing.T) {
	vs := newTestVectorStore(t)

	records := []Record{
		{ID: "r1", ThreadID: "t1", ChunkIndex: 0, TextChunk: "python and machine learning", Embedding: []float32{1, 0, 0}},
		{ID: "r2", ThreadID: "t1", ChunkIndex: 1, TextChunk: "marketing experience", Embedding: []float32{0, 1, 0}},
		{ID: "r3", ThreadID: "t1", ChunkIndex: 2, TextChunk: "python scripting", Embedding: []float32{0.9, 0.1, 0}},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := vs.Search("t1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "r1" {
		t.Errorf("top result = %s, want r1", results[0].ID)
	}
	if results[1].ID != "r3" {
		t.Errorf("second result = %s, want r3", results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}
}

func TestSearchIsThreadScoped(t *testing.T) {
	vs := newTestVectorStore(t)

	records := []Record{
		{ID: "a1", ThreadID: "alice", TextChunk: "alice resume", Embedding: []float32{1, 0}},
		{ID: "b1", ThreadID: "bob", TextChunk: "bob resume", Embedding: []float32{1, 0}},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := vs.Search("alice", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ThreadID != "alice" {
		t.Errorf("leaked record from thread %q", results[0].ThreadID)
	}
}

func TestSearchEmptyThread(t *testing.T) {
	vs := newTestVectorStore(t)

	results, err := vs.Search("nobody", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	vs := newTestVectorStore(t)

	if err := vs.Insert([]Record{{ID: "r1", ThreadID: "t1", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := vs.Search("t1", []float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for zero vector, got %v", results)
	}
}

func TestCountAndDeleteByThread(t *testing.T) {
	vs := newTestVectorStore(t)

	records := []Record{
		{ID: "r1", ThreadID: "t1", Embedding: []float32{1, 0}},
		{ID: "r2", ThreadID: "t1", Embedding: []float32{0, 1}},
		{ID: "r3", ThreadID: "t2", Embedding: []float32{0, 1}},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	count, err := vs.CountByThread("t1")
	if err != nil {
		t.Fatalf("CountByThread: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if err := vs.DeleteByThread("t1"); err != nil {
		t.Fatalf("DeleteByThread: %v", err)
	}
	count, err = vs.CountByThread("t1")
	if err != nil {
		t.Fatalf("CountByThread after delete: %v", err)
	}
	if count != 0 {
		t.Errorf("count after delete = %d, want 0", count)
	}

	// Other threads are untouched.
	other, err := vs.CountByThread("t2")
	if err != nil {
		t.Fatalf("CountByThread t2: %v", err)
	}
	if other != 1 {
		t.Errorf("t2 count = %d, want 1", other)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	original := []float32{0.1, -2.5, 1000.25, 0}
	decoded, err := decodeFloat32s(encodeFloat32s(original))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("index %d: %v != %v", i, decoded[i], original[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
