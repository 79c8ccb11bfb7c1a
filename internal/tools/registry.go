package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/velichko/resumed/internal/engine"
)

// Handler executes one tool invocation. Arguments arrive as the raw JSON
// the model produced; the returned value is serialized back to the model.
type Handler func(ctx context.Context, threadID string, args json.RawMessage) (any, error)

// Tool pairs a declaration the model sees with the handler that runs it.
type Tool struct {
	Name        string
	Description string
	Parameters  engine.Schema
	Handler     Handler
}

// Registry holds the tools available to the agent. Registration order is
// preserved so the declarations presented to the model are stable.
type Registry struct {
	order  []string
	byName map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
		logger: slog.Default(),
	}
}

// Register adds a tool. Re-registering a name replaces the handler but
// keeps the original position.
func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.byName[t.Name] = t
}

// Declarations returns the tool declarations in registration order.
func (r *Registry) Declarations() []engine.ToolDecl {
	decls := make([]engine.ToolDecl, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		decls = append(decls, engine.ToolDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// Invoke runs the named tool and returns its result serialized as JSON.
// Failures never propagate as errors: unknown tools, handler errors, and
// handler panics all become JSON error payloads so the model can recover
// within the same turn.
func (r *Registry) Invoke(ctx context.Context, name, threadID string, args json.RawMessage) string {
	t, ok := r.byName[name]
	if !ok {
		return errorPayload(fmt.Sprintf("unknown tool %q", name))
	}

	result, err := r.safeCall(ctx, t, threadID, args)
	if err != nil {
		r.logger.Warn("tool invocation failed", "tool", name, "thread_id", threadID, "error", err)
		return errorPayload(err.Error())
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		r.logger.Warn("tool result not serializable", "tool", name, "error", err)
		return errorPayload("tool produced an unserializable result")
	}
	return string(encoded)
}

func (r *Registry) safeCall(ctx context.Context, t Tool, threadID string, args json.RawMessage) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", t.Name, rec)
		}
	}()
	return t.Handler(ctx, threadID, args)
}

func errorPayload(msg string) string {
	encoded, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(encoded)
}
