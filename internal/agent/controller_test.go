package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/velichko/resumed/internal/engine"
	"github.com/velichko/resumed/internal/scoring"
	"github.com/velichko/resumed/internal/storage"
	"github.com/velichko/resumed/internal/stream"
	"github.com/velichko/resumed/internal/tools"
)

// scriptedEngine returns canned results per invocation, counting calls.
type scriptedEngine struct {
	calls   atomic.Int32
	chatFn  func(call int, messages []engine.Message) (engine.ChatResult, error)
}

func (s *scriptedEngine) Chat(ctx context.Context, model string, messages []engine.Message, tools []engine.ToolDecl, jsonSchema *engine.Schema) (engine.ChatResult, error) {
	n := int(s.calls.Add(1))
	return s.chatFn(n, messages)
}

func (s *scriptedEngine) ChatStream(ctx context.Context, model string, messages []engine.Message, tools []engine.ToolDecl, onToken func(string)) (engine.ChatResult, error) {
	res, err := s.Chat(ctx, model, messages, tools, nil)
	if err == nil && res.Content != "" && len(res.ToolCalls) == 0 && onToken != nil {
		// Stream the content in two fragments to exercise token handling.
		half := len(res.Content) / 2
		onToken(res.Content[:half])
		onToken(res.Content[half:])
	}
	return res, err
}

func (s *scriptedEngine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return []float32{0.1}, nil
}
func (s *scriptedEngine) IsRunning(ctx context.Context) bool               { return true }
func (s *scriptedEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (s *scriptedEngine) HasModel(ctx context.Context, name string) bool   { return true }
func (s *scriptedEngine) PullModel(ctx context.Context, name string, onProgress func(engine.PullProgress)) error {
	return nil
}

type stubSuggester struct{}

func (stubSuggester) Suggest(ctx context.Context, resumeText string, result scoring.Result) []string {
	return scoring.FallbackSuggestions(result)
}

type stubFacts struct{}

func (stubFacts) Extract(ctx context.Context, resumeText string) scoring.Facts {
	return scoring.Facts{ExperienceYears: 4, EducationSummary: "BSc in Computer Science"}
}

func newTestController(t *testing.T, e engine.Engine, reg *tools.Registry) (*Controller, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if reg == nil {
		reg = tools.NewRegistry()
	}
	c := NewController(Config{
		Store:         store,
		Engine:        e,
		Registry:      reg,
		Suggester:     stubSuggester{},
		Facts:         stubFacts{},
		ChatModel:     "test-model",
		MaxToolRounds: 3,
	})
	return c, store
}

func saveResume(t *testing.T, store *storage.Store, threadID, text string) {
	t.Helper()
	if err := store.SaveThread(storage.Thread{ThreadID: threadID, OwnerID: "alice", Filename: "resume.pdf"}); err != nil {
		t.Fatalf("SaveThread: %v", err)
	}
	if err := store.SaveResumeChunks(threadID, []storage.ResumeChunk{
		{ID: threadID + "-c0", ThreadID: threadID, ChunkIndex: 0, Content: text},
	}); err != nil {
		t.Fatalf("SaveResumeChunks: %v", err)
	}
}

func TestChatDirectAnswerSingleInvocation(t *testing.T) {
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		return engine.ChatResult{Content: "Here is my advice."}, nil
	}}
	c, store := newTestController(t, e, nil)

	reply, err := c.RunTurn(context.Background(), "t1", "any advice?", ModeChat)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply.Content != "Here is my advice." {
		t.Errorf("Content = %q", reply.Content)
	}
	if got := e.calls.Load(); got != 1 {
		t.Errorf("engine invoked %d times, want 1", got)
	}

	history, err := store.GetHistory("t1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history = %+v", history)
	}
}

func TestChatToolLoopGuard(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name: "noisy",
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			return map[string]string{"ok": "yes"}, nil
		},
	})

	// The model requests a tool on every single invocation.
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		return engine.ChatResult{ToolCalls: []engine.ToolCall{
			{Name: "noisy", Arguments: json.RawMessage(`{}`)},
		}}, nil
	}}
	c, _ := newTestController(t, e, reg)

	reply, err := c.RunTurn(context.Background(), "t1", "loop forever", ModeChat)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if got := e.calls.Load(); got != 3 {
		t.Errorf("engine invoked %d times, want MaxToolRounds=3", got)
	}
	if strings.TrimSpace(reply.Content) == "" {
		t.Error("reply content empty after loop exhaustion")
	}
}

func TestChatToolResultFedBack(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name: "resume_lookup",
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			return map[string][]string{"snippets": {"Python, 5 years"}}, nil
		},
	})

	e := &scriptedEngine{chatFn: func(call int, messages []engine.Message) (engine.ChatResult, error) {
		if call == 1 {
			return engine.ChatResult{ToolCalls: []engine.ToolCall{
				{Name: "resume_lookup", Arguments: json.RawMessage(`{"query":"python"}`)},
			}}, nil
		}
		// The tool result must be visible in the conversation.
		last := messages[len(messages)-1]
		if last.Role != "tool" || !strings.Contains(last.Content, "Python, 5 years") {
			return engine.ChatResult{}, fmt.Errorf("tool result missing from messages: %+v", last)
		}
		return engine.ChatResult{Content: "Based on your resume, you have 5 years of Python."}, nil
	}}
	c, _ := newTestController(t, e, reg)

	reply, err := c.RunTurn(context.Background(), "t1", "how much python?", ModeChat)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !strings.Contains(reply.Content, "5 years of Python") {
		t.Errorf("Content = %q", reply.Content)
	}
	if got := e.calls.Load(); got != 2 {
		t.Errorf("engine invoked %d times, want 2", got)
	}
}

func TestEngineFailureApology(t *testing.T) {
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		return engine.ChatResult{}, fmt.Errorf("connection refused")
	}}
	c, store := newTestController(t, e, nil)

	reply, err := c.RunTurn(context.Background(), "t1", "hello", ModeChat)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply.Content != apologyMessage {
		t.Errorf("Content = %q, want apology", reply.Content)
	}
	if got := e.calls.Load(); got != 1 {
		t.Errorf("engine invoked %d times, want 1 (no retry storm)", got)
	}

	history, _ := store.GetHistory("t1")
	if len(history) != 2 {
		t.Errorf("apology exchange not persisted: %+v", history)
	}
}

func TestAutoAnalysisOnFirstTurn(t *testing.T) {
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		return engine.ChatResult{Content: `{"suggestions":["Add keywords."]}`}, nil
	}}
	c, store := newTestController(t, e, nil)
	saveResume(t, store, "t1", "Achieved results with Python. Leadership. jane@example.com linkedin")

	reply, err := c.RunTurn(context.Background(), "t1", "what do you think?", ModeAuto)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply.Analysis == nil {
		t.Fatal("Analysis is nil for first turn with resume")
	}
	if reply.Analysis.Score != 33 {
		t.Errorf("Score = %d, want 33", reply.Analysis.Score)
	}
	if len(reply.Analysis.Suggestions) == 0 {
		t.Error("no suggestions")
	}
	if reply.Analysis.ExperienceYears != 4 {
		t.Errorf("ExperienceYears = %v", reply.Analysis.ExperienceYears)
	}

	thread, err := store.GetThread("t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if !thread.AnalysisComplete {
		t.Error("thread not marked analyzed")
	}
	if thread.ATSScore == nil || *thread.ATSScore != 33 {
		t.Errorf("stored score = %v", thread.ATSScore)
	}
}

func TestAnalysisCompleteRoutesToChat(t *testing.T) {
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		return engine.ChatResult{Content: "Happy to chat about it."}, nil
	}}
	c, store := newTestController(t, e, nil)
	saveResume(t, store, "t1", "Python resume")
	if err := store.MarkAnalysisComplete("t1"); err != nil {
		t.Fatalf("MarkAnalysisComplete: %v", err)
	}

	// Explicit analysis request on an analyzed thread still goes to chat.
	reply, err := c.RunTurn(context.Background(), "t1", "analyze again", ModeAnalysis)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply.Analysis != nil {
		t.Error("analysis re-ran on completed thread")
	}
	if reply.Content != "Happy to chat about it." {
		t.Errorf("Content = %q", reply.Content)
	}
}

func TestAnalysisWithoutResume(t *testing.T) {
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		t.Fatal("engine should not be invoked")
		return engine.ChatResult{}, nil
	}}
	c, store := newTestController(t, e, nil)

	reply, err := c.RunTurn(context.Background(), "t1", "score my resume", ModeAnalysis)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply.Content != noResumeMessage {
		t.Errorf("Content = %q, want instructive message", reply.Content)
	}
	if reply.Analysis != nil {
		t.Error("analysis result for missing resume")
	}

	thread, err := store.GetThread("t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if thread.AnalysisComplete {
		t.Error("thread marked analyzed without a resume")
	}
}

func TestStreamTurnFiltersAndPersists(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name: "resume_lookup",
		Handler: func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
			return map[string]string{"snippet": "Go, 3 years"}, nil
		},
	})

	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		if call == 1 {
			return engine.ChatResult{ToolCalls: []engine.ToolCall{
				{Name: "resume_lookup", Arguments: json.RawMessage(`{"query":"go"}`)},
			}}, nil
		}
		return engine.ChatResult{Content: "Hmm, let me see. Based on your resume, Go is your strongest skill."}, nil
	}}
	c, store := newTestController(t, e, reg)
	saveResume(t, store, "t1", "Go resume")
	if err := store.MarkAnalysisComplete("t1"); err != nil {
		t.Fatalf("MarkAnalysisComplete: %v", err)
	}

	var final string
	var sawDone bool
	for ev := range c.StreamTurn(context.Background(), "t1", "what's my strongest skill?", ModeChat) {
		switch ev.Kind {
		case stream.KindFinal:
			final = ev.Text
		case stream.KindDone:
			sawDone = true
		}
	}
	if !sawDone {
		t.Fatal("stream did not end with done")
	}
	if !strings.HasPrefix(final, "Based on your resume") {
		t.Errorf("final = %q, post-tool preamble should be filtered", final)
	}

	history, err := store.GetHistory("t1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 || history[1].Content != final {
		t.Errorf("persisted history = %+v, want final reply %q", history, final)
	}
}

func TestStreamTurnEngineFailure(t *testing.T) {
	e := &scriptedEngine{chatFn: func(call int, _ []engine.Message) (engine.ChatResult, error) {
		return engine.ChatResult{}, fmt.Errorf("engine down")
	}}
	c, store := newTestController(t, e, nil)

	var sawError, sawFinal, sawDone bool
	for ev := range c.StreamTurn(context.Background(), "t1", "hello", ModeChat) {
		switch ev.Kind {
		case stream.KindError:
			sawError = true
		case stream.KindFinal:
			sawFinal = true
		case stream.KindDone:
			sawDone = true
		}
	}
	if !sawError || !sawFinal || !sawDone {
		t.Errorf("error=%v final=%v done=%v, want all true", sawError, sawFinal, sawDone)
	}

	history, _ := store.GetHistory("t1")
	if len(history) != 0 {
		t.Errorf("failed turn persisted history: %+v", history)
	}
}
