package agent

import "github.com/velichko/resumed/internal/scoring"

// Mode is the caller's requested conversation mode. The controller may
// override it: once a thread's analysis is complete, analysis requests
// route to chat instead of re-running.
type Mode string

const (
	// ModeAuto lets the controller pick based on thread state.
	ModeAuto Mode = ""
	// ModeAnalysis requests a full resume analysis.
	ModeAnalysis Mode = "analysis"
	// ModeChat requests a conversational reply.
	ModeChat Mode = "chat"
)

// State is the controller's view of where a thread sits in its lifecycle.
type State int

const (
	// StateNoResume means nothing has been uploaded yet.
	StateNoResume State = iota
	// StateNeedsAnalysis means a resume is present but unanalyzed.
	StateNeedsAnalysis
	// StateChat means analysis is done and the thread is conversational.
	StateChat
)

// AnalysisResult is the full outcome of analyzing a resume: the
// deterministic score plus LLM-derived decoration.
type AnalysisResult struct {
	Score            int               `json:"score"`
	Breakdown        scoring.Breakdown `json:"breakdown"`
	MatchedKeywords  []string          `json:"matched_keywords"`
	MatchedVerbs     []string          `json:"matched_verbs"`
	Suggestions      []string          `json:"suggestions"`
	ExperienceYears  float64           `json:"experience_years"`
	EducationSummary string            `json:"education_summary,omitempty"`
}

// Reply is the outcome of one conversation turn. Analysis is non-nil only
// when the turn ran a resume analysis.
type Reply struct {
	ThreadID string          `json:"thread_id"`
	Content  string          `json:"content"`
	Analysis *AnalysisResult `json:"analysis,omitempty"`
}
