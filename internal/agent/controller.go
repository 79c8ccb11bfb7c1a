package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/velichko/resumed/internal/engine"
	"github.com/velichko/resumed/internal/retrieval"
	"github.com/velichko/resumed/internal/scoring"
	"github.com/velichko/resumed/internal/storage"
	"github.com/velichko/resumed/internal/stream"
	"github.com/velichko/resumed/internal/tools"
)

// analysisProbe is the retrieval query used when a thread has indexed
// vectors but no stored chunk text. It spans the common resume sections
// so the reconstructed text covers the whole document.
const analysisProbe = "skills experience education projects summary contact"

// ThreadStore is the storage surface the controller depends on.
type ThreadStore interface {
	GetThread(threadID string) (storage.Thread, error)
	SaveThread(t storage.Thread) error
	UpdateScore(threadID string, score int) error
	MarkAnalysisComplete(threadID string) error
	AppendMessage(m storage.Message) error
	GetHistory(threadID string) ([]storage.Message, error)
	FullResumeText(threadID string) (string, error)
	HasResume(threadID string) (bool, error)
}

// Suggester produces improvement suggestions for a scored resume.
type Suggester interface {
	Suggest(ctx context.Context, resumeText string, result scoring.Result) []string
}

// FactsExtractor pulls structured facts out of resume text.
type FactsExtractor interface {
	Extract(ctx context.Context, resumeText string) scoring.Facts
}

// SnippetSearcher answers semantic queries against a thread's resume index.
type SnippetSearcher interface {
	Query(ctx context.Context, threadID, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// Controller drives conversation turns: it routes between analysis and
// chat, runs the bounded tool loop, and owns what gets persisted to the
// thread history.
type Controller struct {
	store         ThreadStore
	engine        engine.Engine
	registry      *tools.Registry
	suggester     Suggester
	facts         FactsExtractor
	searcher      SnippetSearcher
	chatModel     string
	maxToolRounds int
	logger        *slog.Logger
}

// Config carries the controller's dependencies and tuning.
type Config struct {
	Store         ThreadStore
	Engine        engine.Engine
	Registry      *tools.Registry
	Suggester     Suggester
	Facts         FactsExtractor
	Searcher      SnippetSearcher
	ChatModel     string
	MaxToolRounds int
}

// NewController creates a Controller. MaxToolRounds defaults to 10 when
// unset; it bounds model invocations per turn so a tool-happy model
// cannot loop forever.
func NewController(cfg Config) *Controller {
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 10
	}
	return &Controller{
		store:         cfg.Store,
		engine:        cfg.Engine,
		registry:      cfg.Registry,
		suggester:     cfg.Suggester,
		facts:         cfg.Facts,
		searcher:      cfg.Searcher,
		chatModel:     cfg.ChatModel,
		maxToolRounds: rounds,
		logger:        slog.Default(),
	}
}

// ThreadState reports where a thread sits in its lifecycle.
func (c *Controller) ThreadState(threadID string) (State, error) {
	thread, err := c.store.GetThread(threadID)
	if errors.Is(err, storage.ErrNotFound) {
		return StateNoResume, nil
	}
	if err != nil {
		return StateNoResume, err
	}
	if thread.AnalysisComplete {
		return StateChat, nil
	}
	has, err := c.store.HasResume(threadID)
	if err != nil {
		return StateNoResume, err
	}
	if has {
		return StateNeedsAnalysis, nil
	}
	return StateNoResume, nil
}

// RunTurn executes one conversation turn and returns the reply. Analysis
// runs when the caller asks for it, or automatically the first time a
// thread with an uploaded resume is addressed. Once analysis is complete
// the thread stays conversational.
func (c *Controller) RunTurn(ctx context.Context, threadID, text string, mode Mode) (Reply, error) {
	if err := c.ensureThread(threadID); err != nil {
		return Reply{}, err
	}

	state, err := c.ThreadState(threadID)
	if err != nil {
		return Reply{}, err
	}

	wantAnalysis := mode == ModeAnalysis || (mode == ModeAuto && state == StateNeedsAnalysis)
	if wantAnalysis && state == StateChat {
		// Analysis already done; requests route to chat instead of re-running.
		wantAnalysis = false
	}

	if wantAnalysis {
		return c.Analyze(ctx, threadID, text)
	}
	return c.runChat(ctx, threadID, text)
}

// Analyze scores the thread's resume, decorates the result, marks the
// thread analyzed, and persists the exchange. userText may be empty when
// analysis is triggered by an upload rather than a chat message.
func (c *Controller) Analyze(ctx context.Context, threadID, userText string) (Reply, error) {
	if err := c.ensureThread(threadID); err != nil {
		return Reply{}, err
	}

	resumeText, err := c.resumeText(ctx, threadID)
	if err != nil {
		return Reply{}, err
	}
	if resumeText == "" {
		reply := Reply{ThreadID: threadID, Content: noResumeMessage}
		if err := c.persistExchange(threadID, userText, reply.Content); err != nil {
			return Reply{}, err
		}
		return reply, nil
	}

	scored := scoring.Score(resumeText)
	result := &AnalysisResult{
		Score:           scored.Total,
		Breakdown:       scored.Breakdown,
		MatchedKeywords: scored.MatchedKeywords,
		MatchedVerbs:    scored.MatchedVerbs,
	}
	if c.suggester != nil {
		result.Suggestions = c.suggester.Suggest(ctx, resumeText, scored)
	} else {
		result.Suggestions = scoring.FallbackSuggestions(scored)
	}
	if c.facts != nil {
		facts := c.facts.Extract(ctx, resumeText)
		result.ExperienceYears = facts.ExperienceYears
		result.EducationSummary = facts.EducationSummary
	}

	if err := c.store.UpdateScore(threadID, result.Score); err != nil {
		return Reply{}, fmt.Errorf("saving score: %w", err)
	}
	if err := c.store.MarkAnalysisComplete(threadID); err != nil {
		return Reply{}, fmt.Errorf("marking analysis complete: %w", err)
	}

	content := analysisSummary(result)
	if err := c.persistExchange(threadID, userText, content); err != nil {
		return Reply{}, err
	}

	c.logger.Info("resume analyzed", "thread_id", threadID, "score", result.Score)
	return Reply{ThreadID: threadID, Content: content, Analysis: result}, nil
}

// runChat runs the bounded tool loop for a conversational turn.
func (c *Controller) runChat(ctx context.Context, threadID, text string) (Reply, error) {
	msgs, decls, err := c.chatSetup(ctx, threadID, text)
	if err != nil {
		return Reply{}, err
	}

	var content string
	answered := false
	for round := 0; round < c.maxToolRounds; round++ {
		res, err := c.engine.Chat(ctx, c.chatModel, msgs, decls, nil)
		if err != nil {
			if ctx.Err() != nil {
				return Reply{}, ctx.Err()
			}
			c.logger.Warn("chat invocation failed", "thread_id", threadID, "round", round, "error", err)
			content = apologyMessage
			answered = true
			break
		}

		if len(res.ToolCalls) == 0 {
			content = res.Content
			answered = true
			break
		}

		msgs = c.applyToolCalls(ctx, threadID, msgs, res, nil)
		if res.Content != "" {
			content = res.Content
		}
	}

	if !answered {
		c.logger.Warn("tool loop budget exhausted", "thread_id", threadID, "rounds", c.maxToolRounds)
		if strings.TrimSpace(content) == "" {
			content = "I wasn't able to finish researching that. Could you rephrase or narrow the question?"
		}
	}

	if err := c.persistExchange(threadID, text, content); err != nil {
		return Reply{}, err
	}
	return Reply{ThreadID: threadID, Content: content}, nil
}

// StreamTurn executes one turn, emitting events as they happen. The
// returned channel always ends with exactly one final event followed by
// done. The assistant reply is persisted only when the turn finishes
// without error or cancellation.
func (c *Controller) StreamTurn(ctx context.Context, threadID, text string, mode Mode) <-chan stream.Event {
	raw := make(chan stream.Event)
	var persistVisible bool
	go func() {
		defer close(raw)
		persistVisible = c.streamProduce(ctx, threadID, text, mode, raw)
	}()

	filtered := stream.NewFilter().Run(raw)

	out := make(chan stream.Event)
	go func() {
		defer close(out)
		errored := false
		for ev := range filtered {
			if ev.Kind == stream.KindError {
				errored = true
			}
			if ev.Kind == stream.KindFinal && persistVisible && !errored && ctx.Err() == nil && ev.Text != "" {
				if err := c.persistExchange(threadID, text, ev.Text); err != nil {
					c.logger.Error("persisting streamed reply failed", "thread_id", threadID, "error", err)
				}
			}
			out <- ev
		}
	}()
	return out
}

// streamProduce writes raw events for one turn. It reports whether the
// tee should persist the filtered visible content (analysis turns persist
// themselves).
func (c *Controller) streamProduce(ctx context.Context, threadID, text string, mode Mode, raw chan<- stream.Event) bool {
	if err := c.ensureThread(threadID); err != nil {
		raw <- stream.Event{Kind: stream.KindError, Text: apologyMessage}
		return false
	}

	state, err := c.ThreadState(threadID)
	if err != nil {
		raw <- stream.Event{Kind: stream.KindError, Text: apologyMessage}
		return false
	}

	wantAnalysis := mode == ModeAnalysis || (mode == ModeAuto && state == StateNeedsAnalysis)
	if wantAnalysis && state != StateChat {
		reply, err := c.Analyze(ctx, threadID, text)
		if err != nil {
			c.logger.Warn("streamed analysis failed", "thread_id", threadID, "error", err)
			raw <- stream.Event{Kind: stream.KindError, Text: apologyMessage}
			return false
		}
		raw <- stream.Event{Kind: stream.KindToken, Text: reply.Content}
		return false
	}

	msgs, decls, err := c.chatSetup(ctx, threadID, text)
	if err != nil {
		raw <- stream.Event{Kind: stream.KindError, Text: apologyMessage}
		return false
	}

	for round := 0; round < c.maxToolRounds; round++ {
		res, err := c.engine.ChatStream(ctx, c.chatModel, msgs, decls, func(tok string) {
			raw <- stream.Event{Kind: stream.KindToken, Text: tok}
		})
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.Warn("streamed chat invocation failed", "thread_id", threadID, "round", round, "error", err)
			raw <- stream.Event{Kind: stream.KindError, Text: apologyMessage}
			return false
		}

		if len(res.ToolCalls) == 0 {
			return true
		}

		msgs = c.applyToolCalls(ctx, threadID, msgs, res, raw)
	}

	c.logger.Warn("tool loop budget exhausted", "thread_id", threadID, "rounds", c.maxToolRounds)
	return true
}

// chatSetup builds the message list (system prompt, history, current user
// message) and the tool declarations for a chat turn.
func (c *Controller) chatSetup(ctx context.Context, threadID, text string) ([]engine.Message, []engine.ToolDecl, error) {
	has, err := c.store.HasResume(threadID)
	if err != nil {
		return nil, nil, err
	}

	decls := c.registry.Declarations()
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}

	msgs := []engine.Message{{Role: "system", Content: buildSystemPrompt(has, names)}}

	history, err := c.store.GetHistory(threadID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading history: %w", err)
	}
	for _, m := range history {
		if (m.Role == "user" || m.Role == "assistant") && m.Content != "" {
			msgs = append(msgs, engine.Message{Role: m.Role, Content: m.Content})
		}
	}

	msgs = append(msgs, engine.Message{Role: "user", Content: text})
	return msgs, decls, nil
}

// applyToolCalls invokes each requested tool and appends the assistant
// request plus tool results to the message list. When raw is non-nil,
// tool lifecycle events are emitted around each invocation.
func (c *Controller) applyToolCalls(ctx context.Context, threadID string, msgs []engine.Message, res engine.ChatResult, raw chan<- stream.Event) []engine.Message {
	msgs = append(msgs, engine.Message{
		Role:      "assistant",
		Content:   res.Content,
		ToolCalls: res.ToolCalls,
	})

	for _, call := range res.ToolCalls {
		if raw != nil {
			raw <- stream.Event{Kind: stream.KindToolStart, Tool: call.Name}
		}
		out := c.registry.Invoke(ctx, call.Name, threadID, call.Arguments)
		if raw != nil {
			raw <- stream.Event{Kind: stream.KindToolEnd, Tool: call.Name}
		}
		msgs = append(msgs, engine.Message{
			Role:     "tool",
			Content:  out,
			ToolName: call.Name,
		})
	}
	return msgs
}

// resumeText loads the thread's full resume text, falling back to a
// section-spanning retrieval probe when only vectors survive.
func (c *Controller) resumeText(ctx context.Context, threadID string) (string, error) {
	text, err := c.store.FullResumeText(threadID)
	if err != nil {
		return "", fmt.Errorf("loading resume text: %w", err)
	}
	if text != "" {
		return text, nil
	}

	if c.searcher == nil {
		return "", nil
	}
	records, err := c.searcher.Query(ctx, threadID, analysisProbe, 20)
	if err != nil {
		c.logger.Warn("analysis probe failed", "thread_id", threadID, "error", err)
		return "", nil
	}
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.TextChunk
	}
	return strings.Join(parts, "\n"), nil
}

// ensureThread creates a bare thread row if none exists, so history and
// analysis state have somewhere to attach.
func (c *Controller) ensureThread(threadID string) error {
	_, err := c.store.GetThread(threadID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.store.SaveThread(storage.Thread{ThreadID: threadID})
	}
	return err
}

// persistExchange appends the user message (when present) and the final
// assistant reply to the thread history. Intermediate tool traffic is
// deliberately not persisted.
func (c *Controller) persistExchange(threadID, userText, assistantText string) error {
	if userText != "" {
		if err := c.store.AppendMessage(storage.Message{
			ThreadID: threadID,
			Role:     "user",
			Content:  userText,
		}); err != nil {
			return fmt.Errorf("persisting user message: %w", err)
		}
	}
	if err := c.store.AppendMessage(storage.Message{
		ThreadID: threadID,
		Role:     "assistant",
		Content:  assistantText,
	}); err != nil {
		return fmt.Errorf("persisting assistant message: %w", err)
	}
	return nil
}
