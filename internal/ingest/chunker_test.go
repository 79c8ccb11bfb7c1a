package ingest

import (
	"strings"
	"testing"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("a short resume", 800, 150)
	if len(chunks) != 1 || chunks[0] != "a short resume" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitTextEmpty(t *testing.T) {
	if chunks := SplitText("   \n ", 800, 150); chunks != nil {
		t.Errorf("expected nil for whitespace input, got %v", chunks)
	}
}

func TestSplitTextChunkSizes(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("Built a distributed ingestion pipeline handling millions of events. ")
	}
	chunks := SplitText(b.String(), 800, 150)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 800 {
			t.Errorf("chunk %d is %d chars, exceeds limit", i, len(c))
		}
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestSplitTextOverlapCarriesContext(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("word word word word word word word word word word. ")
	}
	chunks := SplitText(b.String(), 400, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Tail of each chunk should reappear at the head of the next.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-20:]
		if !strings.Contains(chunks[i+1][:min(100, len(chunks[i+1]))], strings.TrimSpace(tail)) {
			// Overlap is best-effort around boundaries; only fail when
			// the next chunk shares no text at all with the previous.
			if !strings.Contains(chunks[i+1], strings.Fields(tail)[0]) {
				t.Errorf("chunk %d and %d share no overlap", i, i+1)
			}
		}
	}
}

func TestSplitTextPrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("x", 300)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := SplitText(text, 650, 50)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], para) {
		t.Error("first chunk does not start with the first paragraph")
	}
}
