package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/velichko/resumed/internal/engine"
	"github.com/velichko/resumed/internal/scoring"
)

// ResumeTextLoader returns the full extracted text of a thread's resume.
type ResumeTextLoader interface {
	FullResumeText(threadID string) (string, error)
}

// scoreResult is what the model receives back from ats_score.
type scoreResult struct {
	Total           int               `json:"total"`
	Breakdown       scoring.Breakdown `json:"breakdown"`
	MatchedKeywords []string          `json:"matched_keywords"`
	MatchedVerbs    []string          `json:"matched_verbs"`
	Message         string            `json:"message,omitempty"`
}

// NewATSScore builds the ats_score tool. Scoring runs on the stored full
// resume text, so the result is identical to the upload-time analysis.
func NewATSScore(loader ResumeTextLoader) Tool {
	return Tool{
		Name:        "ats_score",
		Description: "Compute the deterministic ATS compatibility score (0-100) for the uploaded resume, with a per-category breakdown.",
		Parameters: engine.Schema{
			Type:       "object",
			Properties: map[string]engine.SchemaProperty{},
		},
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			text, err := loader.FullResumeText(threadID)
			if err != nil {
				return nil, fmt.Errorf("loading resume text: %w", err)
			}
			if text == "" {
				return scoreResult{
					Message: "No resume has been uploaded in this conversation, so there is nothing to score.",
				}, nil
			}

			r := scoring.Score(text)
			return scoreResult{
				Total:           r.Total,
				Breakdown:       r.Breakdown,
				MatchedKeywords: r.MatchedKeywords,
				MatchedVerbs:    r.MatchedVerbs,
			}, nil
		},
	}
}
