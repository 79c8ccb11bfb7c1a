package scoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/velichko/resumed/internal/engine"
)

const factsTimeout = 15 * time.Second

// Facts holds structured biographical details extracted from a resume.
type Facts struct {
	ExperienceYears  float64 `json:"experience_years"`
	EducationSummary string  `json:"education_summary"`
}

// FactsExtractor uses a local LLM to pull structured facts out of resume
// text. Extraction is best-effort decoration on top of the deterministic
// score: on any failure it returns zero-value Facts rather than an error.
type FactsExtractor struct {
	engine engine.Engine
	model  string
	logger *slog.Logger
}

// NewFactsExtractor creates a FactsExtractor using the given engine and model.
func NewFactsExtractor(e engine.Engine, model string) *FactsExtractor {
	return &FactsExtractor{engine: e, model: model, logger: slog.Default()}
}

// Extract analyses the resume text and returns structured Facts.
func (f *FactsExtractor) Extract(ctx context.Context, resumeText string) Facts {
	if resumeText == "" {
		return Facts{}
	}

	ctx, cancel := context.WithTimeout(ctx, factsTimeout)
	defer cancel()

	messages := []engine.Message{
		{Role: "system", Content: "Extract facts from the resume. Reply with JSON: {\"experience_years\": number, \"education_summary\": \"one sentence\"}. Use 0 and an empty string when the resume does not say."},
		{Role: "user", Content: resumeText},
	}

	raw, err := f.engine.Chat(ctx, f.model, messages, nil, factsSchema())
	if err != nil {
		f.logger.Warn("facts extraction chat failed", "error", err)
		return Facts{}
	}

	var result Facts
	if err := json.Unmarshal([]byte(raw.Content), &result); err != nil {
		f.logger.Warn("failed to unmarshal facts from LLM response", "error", err, "response", raw.Content)
		return Facts{}
	}
	return result
}

func factsSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"experience_years":  {Type: "number", Description: "Total years of professional experience"},
			"education_summary": {Type: "string", Description: "Highest degree and institution in one sentence"},
		},
		Required: []string{"experience_years", "education_summary"},
	}
}
