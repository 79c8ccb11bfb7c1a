package stream

// Kind discriminates streaming events flowing from the agent to a client.
type Kind int

const (
	// KindToken carries a fragment of assistant-visible text.
	KindToken Kind = iota
	// KindToolStart announces that a tool invocation began.
	KindToolStart
	// KindToolEnd announces that a tool invocation finished.
	KindToolEnd
	// KindError reports a turn-level failure.
	KindError
	// KindFinal carries the complete visible reply for the turn.
	KindFinal
	// KindDone terminates the stream. Always the last event.
	KindDone
)

// Event is one item in a turn's output stream. Text holds token content,
// the final reply, or an error message depending on Kind; Tool names the
// tool for KindToolStart and KindToolEnd.
type Event struct {
	Kind Kind
	Text string
	Tool string
}

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindToolStart:
		return "tool_start"
	case KindToolEnd:
		return "tool_end"
	case KindError:
		return "error"
	case KindFinal:
		return "final"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}
