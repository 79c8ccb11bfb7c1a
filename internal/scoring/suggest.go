package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/velichko/resumed/internal/engine"
)

const (
	suggestTimeout = 20 * time.Second
	maxSuggestions = 7
)

// Suggester produces tailored improvement suggestions for a scored resume
// using a local LLM, with a deterministic fallback when the model is
// unavailable or returns garbage. Suggestions are never empty.
type Suggester struct {
	engine engine.Engine
	model  string
	logger *slog.Logger
}

// NewSuggester creates a Suggester using the given engine and chat model.
func NewSuggester(e engine.Engine, model string) *Suggester {
	return &Suggester{engine: e, model: model, logger: slog.Default()}
}

// Suggest returns improvement suggestions for the scored resume. On any
// model failure it falls back to rule-based suggestions derived from the
// score breakdown.
func (s *Suggester) Suggest(ctx context.Context, resumeText string, result Result) []string {
	ctx, cancel := context.WithTimeout(ctx, suggestTimeout)
	defer cancel()

	messages := []engine.Message{
		{Role: "system", Content: "You are a resume reviewer. Given a resume and its keyword-based score breakdown, reply with JSON: {\"suggestions\": [\"...\"]}. Each suggestion is one concrete, actionable sentence. No preamble."},
		{Role: "user", Content: fmt.Sprintf(
			"Score: %d/100 (technical %d, soft skills %d, action verbs %d, formatting %d).\n\nResume:\n%s",
			result.Total, result.Breakdown.Technical, result.Breakdown.Soft,
			result.Breakdown.Verbs, result.Breakdown.Formatting, resumeText,
		)},
	}

	raw, err := s.engine.Chat(ctx, s.model, messages, nil, suggestionSchema())
	if err != nil {
		s.logger.Warn("suggestion chat failed, using fallback", "error", err)
		return FallbackSuggestions(result)
	}

	suggestions, err := parseSuggestions(raw.Content)
	if err != nil {
		s.logger.Warn("failed to parse suggestions from LLM response", "error", err, "response", raw.Content)
		return FallbackSuggestions(result)
	}
	if len(suggestions) == 0 {
		return FallbackSuggestions(result)
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

func suggestionSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"suggestions": {Type: "array", Description: "Concrete resume improvement suggestions"},
		},
		Required: []string{"suggestions"},
	}
}

// parseSuggestions robustly extracts the suggestions array from an LLM
// response. Small local models frequently wrap JSON in markdown code
// fences or prepend conversational filler, so the parser strips fences
// and extracts the outermost JSON object by brace position.
func parseSuggestions(resp string) ([]string, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal suggestions: %w", err)
	}

	out := obj.Suggestions[:0]
	for _, sug := range obj.Suggestions {
		if t := strings.TrimSpace(sug); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// FallbackSuggestions derives rule-based suggestions from the score
// breakdown. Each weak category gets one suggestion; a generic
// quantification tip is always included.
func FallbackSuggestions(result Result) []string {
	var out []string
	if result.Breakdown.Technical < 20 {
		out = append(out, "Add more technical keywords relevant to your target roles, such as languages, frameworks, and cloud platforms.")
	}
	if result.Breakdown.Soft < 10 {
		out = append(out, "Show evidence of soft skills like leadership, communication, or collaboration in your experience bullets.")
	}
	if result.Breakdown.Verbs < 9 {
		out = append(out, "Start experience bullets with strong action verbs such as built, led, delivered, or optimized.")
	}
	if result.Breakdown.Formatting < 30 {
		out = append(out, "Make sure your contact section includes an email address, a phone number, and a LinkedIn profile.")
	}
	out = append(out, "Quantify your achievements with concrete numbers, percentages, or timeframes wherever possible.")
	return out
}
