package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Thread is the per-conversation metadata row. AnalysisComplete is
// monotonic: the store only ever flips it from false to true.
type Thread struct {
	ThreadID         string
	OwnerID          string
	Filename         string
	Pages            int
	Chunks           int
	ATSScore         *int
	AnalysisComplete bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Message is one entry in a thread's append-only history. Seq orders
// messages within a thread. ToolName/ToolPayload are set only for
// tool-call requests and tool results.
type Message struct {
	ThreadID    string
	Seq         int
	Role        string // "user", "assistant", "system", "tool"
	Content     string
	ToolName    string
	ToolPayload string
	CreatedAt   time.Time
}

// ResumeChunk is a piece of extracted resume text awaiting (or done with)
// embedding. Chunks are the direct full-text source for analysis; vectors
// catch up asynchronously.
type ResumeChunk struct {
	ID         string
	ThreadID   string
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
