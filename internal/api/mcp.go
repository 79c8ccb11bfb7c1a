package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/velichko/resumed/internal/retrieval"
	"github.com/velichko/resumed/internal/scoring"
	"github.com/velichko/resumed/internal/storage"
	"github.com/velichko/resumed/internal/tools"
)

// MCPSnippetSearcher abstracts semantic resume search for the MCP layer.
type MCPSnippetSearcher interface {
	Query(ctx context.Context, threadID, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// MCPWebSearcher abstracts web search for the MCP layer.
type MCPWebSearcher interface {
	Search(ctx context.Context, query string) ([]tools.SearchResult, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Searcher MCPSnippetSearcher
	Web      MCPWebSearcher // optional; if nil, job_search returns an error
}

// NewMCPServer creates an MCP server exposing resume analysis tools to
// external clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"resumed",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("resumed — local resume analysis: ATS scoring, semantic resume search, and job search."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("resume_lookup",
			mcp.WithDescription("Semantically search an uploaded resume and return the most relevant passages."),
			mcp.WithString("thread_id", mcp.Description("Conversation thread holding the resume"), mcp.Required()),
			mcp.WithString("query", mcp.Description("What to look for in the resume"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 5)")),
		),
		mcpResumeLookup(deps),
	)

	s.AddTool(
		mcp.NewTool("ats_score",
			mcp.WithDescription("Compute the deterministic ATS compatibility score (0-100) for an uploaded resume, with breakdown and improvement suggestions."),
			mcp.WithString("thread_id", mcp.Description("Conversation thread holding the resume"), mcp.Required()),
		),
		mcpATSScore(deps),
	)

	s.AddTool(
		mcp.NewTool("job_search",
			mcp.WithDescription("Search the web for current job openings matching a role, skill set, or location."),
			mcp.WithString("query", mcp.Description("Job search query, e.g. role plus location"), mcp.Required()),
		),
		mcpJobSearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"resumed://threads",
			"Recent Threads",
			mcp.WithResourceDescription("Last 10 conversation threads with their analysis state"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceThreads(deps),
	)

	return s
}

func mcpResumeLookup(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("thread_id")
		if err != nil {
			return mcpError("thread_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 20 {
			limit = 20
		}

		records, err := deps.Searcher.Query(ctx, threadID, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("resume lookup failed: %v", err)), nil
		}
		if len(records) == 0 {
			return mcpText("[]"), nil
		}

		type passage struct {
			ChunkIndex int     `json:"chunk_index"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}

		passages := make([]passage, len(records))
		for i, r := range records {
			passages[i] = passage{
				ChunkIndex: r.ChunkIndex,
				Text:       r.TextChunk,
				Score:      r.Score,
			}
		}

		b, err := json.Marshal(passages)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal passages: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpATSScore(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("thread_id")
		if err != nil {
			return mcpError("thread_id is required"), nil
		}

		text, err := deps.Store.FullResumeText(threadID)
		if err != nil {
			return mcpError(fmt.Sprintf("loading resume text: %v", err)), nil
		}
		if text == "" {
			return mcpError(fmt.Sprintf("no resume has been uploaded for thread %s", threadID)), nil
		}

		r := scoring.Score(text)

		type scoreReport struct {
			Total           int               `json:"total"`
			Breakdown       scoring.Breakdown `json:"breakdown"`
			MatchedKeywords []string          `json:"matched_keywords"`
			MatchedVerbs    []string          `json:"matched_verbs"`
			Suggestions     []string          `json:"suggestions"`
		}

		b, err := json.Marshal(scoreReport{
			Total:           r.Total,
			Breakdown:       r.Breakdown,
			MatchedKeywords: r.MatchedKeywords,
			MatchedVerbs:    r.MatchedVerbs,
			Suggestions:     scoring.FallbackSuggestions(r),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal score: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpJobSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Web == nil {
			return mcpError("job search not available: no web search backend configured"), nil
		}

		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		results, err := deps.Web.Search(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("job search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceThreads(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		threads, err := deps.Store.ListRecentThreads(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list threads: %w", err)
		}

		type threadSummary struct {
			ThreadID         string `json:"thread_id"`
			Filename         string `json:"filename,omitempty"`
			ATSScore         *int   `json:"ats_score,omitempty"`
			AnalysisComplete bool   `json:"analysis_complete"`
			UpdatedAt        string `json:"updated_at"`
		}

		summaries := make([]threadSummary, len(threads))
		for i, t := range threads {
			summaries[i] = threadSummary{
				ThreadID:         t.ThreadID,
				Filename:         t.Filename,
				ATSScore:         t.ATSScore,
				AnalysisComplete: t.AnalysisComplete,
				UpdatedAt:        t.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal threads: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
