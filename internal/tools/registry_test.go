package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/velichko/resumed/internal/engine"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes its arguments",
		Parameters:  engine.Schema{Type: "object"},
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			return map[string]string{"thread": threadID, "args": string(args)}, nil
		},
	}
}

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))

	out := r.Invoke(context.Background(), "echo", "t1", json.RawMessage(`{"x":1}`))

	var decoded map[string]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invoke result is not JSON: %v", err)
	}
	if decoded["thread"] != "t1" {
		t.Errorf("thread = %q", decoded["thread"])
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()

	out := r.Invoke(context.Background(), "nope", "t1", nil)

	var decoded map[string]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("error payload is not JSON: %v", err)
	}
	if decoded["error"] == "" {
		t.Errorf("expected error payload, got %q", out)
	}
}

func TestRegistryHandlerErrorBecomesPayload(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Name: "failing",
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	})

	out := r.Invoke(context.Background(), "failing", "t1", nil)

	var decoded map[string]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("error payload is not JSON: %v", err)
	}
	if decoded["error"] != "backend unavailable" {
		t.Errorf("error = %q", decoded["error"])
	}
}

func TestRegistryRecoversFromPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Name: "panics",
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			panic("boom")
		},
	})

	out := r.Invoke(context.Background(), "panics", "t1", nil)

	var decoded map[string]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("error payload is not JSON: %v", err)
	}
	if decoded["error"] == "" {
		t.Error("expected error payload for panicking tool")
	}
}

func TestRegistryDeclarationsPreserveOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"resume_lookup", "ats_score", "job_search"} {
		r.Register(echoTool(name))
	}

	decls := r.Declarations()
	if len(decls) != 3 {
		t.Fatalf("got %d declarations, want 3", len(decls))
	}
	want := []string{"resume_lookup", "ats_score", "job_search"}
	for i, d := range decls {
		if d.Name != want[i] {
			t.Errorf("declaration %d = %q, want %q", i, d.Name, want[i])
		}
	}

	// Re-registration keeps position.
	r.Register(echoTool("ats_score"))
	decls = r.Declarations()
	if len(decls) != 3 || decls[1].Name != "ats_score" {
		t.Errorf("re-registration changed order: %v", decls)
	}
}
