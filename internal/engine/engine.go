package engine

import "context"

// Engine abstracts a local inference backend. Consumers such as the
// conversation controller and the embedding worker use this interface
// instead of depending on a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's
	// response. When tools are provided the model may answer with tool
	// calls instead of content. When jsonSchema is non-nil, structured
	// JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDecl, jsonSchema *Schema) (ChatResult, error)

	// ChatStream sends messages and invokes onToken for each content
	// fragment as it arrives. Tool calls, if any, are returned in the
	// final result after the stream ends.
	ChatStream(ctx context.Context, model string, messages []Message, tools []ToolDecl, onToken func(string)) (ChatResult, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
