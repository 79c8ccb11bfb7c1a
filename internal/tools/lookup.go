package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/velichko/resumed/internal/engine"
	"github.com/velichko/resumed/internal/retrieval"
)

const lookupTopK = 5

// SnippetSearcher answers semantic queries against one thread's resume.
type SnippetSearcher interface {
	Query(ctx context.Context, threadID, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// lookupResult is what the model receives back from resume_lookup.
type lookupResult struct {
	Snippets []string `json:"snippets,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// NewResumeLookup builds the resume_lookup tool over the retrieval gate.
func NewResumeLookup(searcher SnippetSearcher) Tool {
	return Tool{
		Name:        "resume_lookup",
		Description: "Search the uploaded resume for passages relevant to a query. Use this before answering questions about the candidate's background.",
		Parameters: engine.Schema{
			Type: "object",
			Properties: map[string]engine.SchemaProperty{
				"query": {Type: "string", Description: "What to look for in the resume"},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("parsing arguments: %w", err)
			}
			if in.Query == "" {
				return nil, fmt.Errorf("query must not be empty")
			}

			records, err := searcher.Query(ctx, threadID, in.Query, lookupTopK)
			if err != nil {
				return nil, fmt.Errorf("searching resume: %w", err)
			}
			if len(records) == 0 {
				return lookupResult{
					Message: "No resume content is indexed for this conversation yet. Ask the user to upload a resume, or try again shortly if one was just uploaded.",
				}, nil
			}

			snippets := make([]string, len(records))
			for i, r := range records {
				snippets[i] = r.TextChunk
			}
			return lookupResult{Snippets: snippets}, nil
		},
	}
}
