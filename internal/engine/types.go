package engine

import "encoding/json"

// Message represents a chat message. ToolCalls is populated on assistant
// messages that request tool invocations; ToolName on tool result messages.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// ToolDecl declares a tool the model may call during a chat turn.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  Schema
}

// Schema describes the expected JSON structure for structured output and
// tool parameters.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ChatResult is the outcome of one model invocation. When the model wants
// tools, ToolCalls is non-empty and Content is usually blank.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
