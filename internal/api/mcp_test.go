package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/velichko/resumed/internal/retrieval"
	"github.com/velichko/resumed/internal/storage"
	"github.com/velichko/resumed/internal/tools"
)

// --- mocks ---

type mockMCPSearcher struct {
	records []retrieval.ScoredRecord
	err     error
}

func (m *mockMCPSearcher) Query(_ context.Context, _ string, _ string, _ int) ([]retrieval.ScoredRecord, error) {
	return m.records, m.err
}

type mockMCPWeb struct {
	results []tools.SearchResult
	err     error
}

func (m *mockMCPWeb) Search(_ context.Context, _ string) ([]tools.SearchResult, error) {
	return m.results, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:    store,
		Searcher: &mockMCPSearcher{},
		Web:      &mockMCPWeb{},
	}, store
}

func saveTestResume(t *testing.T, store *storage.Store, threadID, text string) {
	t.Helper()
	if err := store.SaveThread(storage.Thread{ThreadID: threadID}); err != nil {
		t.Fatalf("SaveThread: %v", err)
	}
	err := store.SaveResumeChunks(threadID, []storage.ResumeChunk{
		{ID: threadID + "-c0", ThreadID: threadID, ChunkIndex: 0, Content: text, CreatedAt: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("SaveResumeChunks: %v", err)
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ResumeLookup(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Searcher = &mockMCPSearcher{
		records: []retrieval.ScoredRecord{
			{Record: retrieval.Record{ChunkIndex: 2, TextChunk: "5 years of Go"}, Score: 0.93},
			{Record: retrieval.Record{ChunkIndex: 0, TextChunk: "BSc Computer Science"}, Score: 0.71},
		},
	}
	handler := mcpResumeLookup(deps)

	req := makeCallToolRequest("resume_lookup", map[string]interface{}{
		"thread_id": "t1",
		"query":     "programming experience",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}

	var passages []struct {
		ChunkIndex int     `json:"chunk_index"`
		Text       string  `json:"text"`
		Score      float32 `json:"score"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &passages); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	if passages[0].Text != "5 years of Go" {
		t.Errorf("first passage = %q", passages[0].Text)
	}
}

func TestMCPTool_ResumeLookup_EmptyIndex(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResumeLookup(deps)

	req := makeCallToolRequest("resume_lookup", map[string]interface{}{
		"thread_id": "t1",
		"query":     "anything",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_ResumeLookup_MissingThreadID(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResumeLookup(deps)

	req := makeCallToolRequest("resume_lookup", map[string]interface{}{
		"query": "anything",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result without thread_id")
	}
}

func TestMCPTool_ResumeLookup_SearchError(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Searcher = &mockMCPSearcher{err: errors.New("embed failed")}
	handler := mcpResumeLookup(deps)

	req := makeCallToolRequest("resume_lookup", map[string]interface{}{
		"thread_id": "t1",
		"query":     "anything",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_ATSScore(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	saveTestResume(t, store, "t1", "Experienced in python with strong leadership. Achieved great results. jane@example.com linkedin.com/in/jane")
	handler := mcpATSScore(deps)

	req := makeCallToolRequest("ats_score", map[string]interface{}{
		"thread_id": "t1",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}

	var report struct {
		Total       int      `json:"total"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &report); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if report.Total != 33 {
		t.Errorf("total = %d, want 33", report.Total)
	}
	if len(report.Suggestions) == 0 {
		t.Error("expected suggestions for a low-scoring resume")
	}
}

func TestMCPTool_ATSScore_NoResume(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpATSScore(deps)

	req := makeCallToolRequest("ats_score", map[string]interface{}{
		"thread_id": "empty-thread",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for a thread with no resume")
	}
	if !strings.Contains(toolText(t, result), "no resume") {
		t.Errorf("unexpected message: %s", toolText(t, result))
	}
}

func TestMCPTool_JobSearch(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Web = &mockMCPWeb{
		results: []tools.SearchResult{
			{Title: "Senior Go Engineer - Berlin", Snippet: "Remote friendly."},
		},
	}
	handler := mcpJobSearch(deps)

	req := makeCallToolRequest("job_search", map[string]interface{}{
		"query": "golang berlin",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}

	var results []tools.SearchResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Senior Go Engineer - Berlin" {
		t.Errorf("results = %+v", results)
	}
}

func TestMCPTool_JobSearch_NoBackend(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Web = nil
	handler := mcpJobSearch(deps)

	req := makeCallToolRequest("job_search", map[string]interface{}{
		"query": "golang berlin",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result without a web backend")
	}
}

func TestMCPResource_Threads(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	if err := store.SaveThread(storage.Thread{ThreadID: "t1", Filename: "resume.pdf", Pages: 2, Chunks: 3}); err != nil {
		t.Fatalf("SaveThread: %v", err)
	}
	if err := store.UpdateScore("t1", 64); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}

	handler := mcpResourceThreads(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("resumed://threads"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []struct {
		ThreadID string `json:"thread_id"`
		Filename string `json:"filename"`
		ATSScore *int   `json:"ats_score"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(summaries))
	}
	if summaries[0].ThreadID != "t1" || summaries[0].Filename != "resume.pdf" {
		t.Errorf("summary = %+v", summaries[0])
	}
	if summaries[0].ATSScore == nil || *summaries[0].ATSScore != 64 {
		t.Errorf("ats_score = %v, want 64", summaries[0].ATSScore)
	}
}
