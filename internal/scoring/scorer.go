package scoring

import (
	"regexp"
	"strings"
)

// Per-category point values and caps.
const (
	technicalPoints = 5
	technicalCap    = 35
	softPoints      = 5
	softCap         = 20
	verbPoints      = 3
	verbCap         = 15
	formattingEach  = 10
	formattingCap   = 30
	totalCap        = 100
)

var (
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`\+?\(?[0-9]{1,3}\)?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,6}`)
)

// Breakdown is the per-category decomposition of an ATS score.
type Breakdown struct {
	Technical  int `json:"technical"`
	Soft       int `json:"soft"`
	Verbs      int `json:"verbs"`
	Formatting int `json:"formatting"`
}

// Result is the complete outcome of scoring one resume text. Scoring is
// deterministic: the same text always yields the same result.
type Result struct {
	Total           int       `json:"total"`
	Breakdown       Breakdown `json:"breakdown"`
	MatchedKeywords []string  `json:"matched_keywords"`
	MatchedVerbs    []string  `json:"matched_verbs"`
}

// Score computes the ATS score for a resume text. Keyword matching is
// case-insensitive substring search; each distinct table entry counts at
// most once. Category subtotals are capped independently.
func Score(text string) Result {
	lower := strings.ToLower(text)

	var r Result

	technicalCount := 0
	for _, kw := range technicalKeywords {
		if strings.Contains(lower, kw) {
			technicalCount++
			r.MatchedKeywords = append(r.MatchedKeywords, kw)
		}
	}
	r.Breakdown.Technical = capped(technicalCount*technicalPoints, technicalCap)

	softCount := 0
	for _, kw := range softKeywords {
		if strings.Contains(lower, kw) {
			softCount++
			r.MatchedKeywords = append(r.MatchedKeywords, kw)
		}
	}
	r.Breakdown.Soft = capped(softCount*softPoints, softCap)

	verbCount := 0
	for _, v := range actionVerbs {
		if strings.Contains(lower, v) {
			verbCount++
			r.MatchedVerbs = append(r.MatchedVerbs, v)
		}
	}
	r.Breakdown.Verbs = capped(verbCount*verbPoints, verbCap)

	formatting := 0
	if emailPattern.MatchString(text) {
		formatting += formattingEach
	}
	if phonePattern.MatchString(text) {
		formatting += formattingEach
	}
	if strings.Contains(lower, "linkedin") {
		formatting += formattingEach
	}
	r.Breakdown.Formatting = capped(formatting, formattingCap)

	r.Total = capped(
		r.Breakdown.Technical+r.Breakdown.Soft+r.Breakdown.Verbs+r.Breakdown.Formatting,
		totalCap,
	)
	return r
}

func capped(v, max int) int {
	if v > max {
		return max
	}
	return v
}
