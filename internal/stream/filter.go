package stream

import "strings"

// answerMarkers are phrases that signal the model has stopped narrating
// its tool use and started the actual answer. Matching is case-insensitive.
var answerMarkers = []string{
	"based on",
	"here is",
	"here are",
	"according to",
	"looking at your resume",
	"your resume",
	"i recommend",
	"i found",
	"to answer",
	"in summary",
}

// trailingLines is how much buffered text survives when a post-tool
// stream ends without any marker. Keeping the tail salvages answers from
// models that skip the expected phrasing.
const trailingLines = 3

// Filter suppresses tool-call narration from token streams. Before any
// tool runs, tokens pass through untouched. Tokens produced while a tool
// is executing are dropped. After a tool finishes, tokens are buffered
// until an answer marker appears; everything from the marker onward is
// forwarded. Every run emits exactly one KindFinal followed by one
// KindDone, regardless of errors.
type Filter struct {
	markers []string
}

// NewFilter creates a Filter with the default marker set.
func NewFilter() *Filter {
	return &Filter{markers: answerMarkers}
}

// Run consumes events from in and writes filtered events to the returned
// channel. The returned channel is closed after KindDone is sent.
func (f *Filter) Run(in <-chan Event) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		var visible strings.Builder
		var buffer strings.Builder
		toolUsed := false
		inTool := 0 // counter tolerates overlapping tool spans
		forwarding := false
		errored := false

		for ev := range in {
			switch ev.Kind {
			case KindToolStart:
				toolUsed = true
				inTool++
				forwarding = false
				buffer.Reset()
				out <- ev
			case KindToolEnd:
				if inTool > 0 {
					inTool--
				}
				buffer.Reset()
				out <- ev
			case KindToken:
				if inTool > 0 {
					continue
				}
				if !toolUsed || forwarding {
					visible.WriteString(ev.Text)
					out <- Event{Kind: KindToken, Text: ev.Text}
					continue
				}
				buffer.WriteString(ev.Text)
				if idx := markerIndex(buffer.String(), f.markers); idx >= 0 {
					tail := buffer.String()[idx:]
					visible.WriteString(tail)
					out <- Event{Kind: KindToken, Text: tail}
					buffer.Reset()
					forwarding = true
				}
			case KindError:
				errored = true
				out <- ev
			}
		}

		// Source ended with buffered post-tool text and no marker seen.
		// Forward the trailing lines so the user still gets an answer.
		if !errored && buffer.Len() > 0 {
			tail := lastLines(buffer.String(), trailingLines)
			if tail != "" {
				visible.WriteString(tail)
				out <- Event{Kind: KindToken, Text: tail}
			}
		}

		out <- Event{Kind: KindFinal, Text: visible.String()}
		out <- Event{Kind: KindDone}
	}()
	return out
}

// markerIndex returns the byte offset of the earliest case-insensitive
// marker occurrence in text, or -1 when none match.
func markerIndex(text string, markers []string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, m := range markers {
		if idx := strings.Index(lower, m); idx >= 0 && (best == -1 || idx < best) {
			best = idx
		}
	}
	return best
}

// lastLines returns the final n non-empty-trimmed lines of text joined
// back together.
func lastLines(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
