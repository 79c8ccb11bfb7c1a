package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/velichko/resumed/internal/agent"
	"github.com/velichko/resumed/internal/ingest"
	"github.com/velichko/resumed/internal/storage"
	"github.com/velichko/resumed/internal/stream"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 10 << 20 // 10MB
)

// Conversationalist runs conversation turns. Implemented by agent.Controller.
type Conversationalist interface {
	RunTurn(ctx context.Context, threadID, text string, mode agent.Mode) (agent.Reply, error)
	StreamTurn(ctx context.Context, threadID, text string, mode agent.Mode) <-chan stream.Event
	Analyze(ctx context.Context, threadID, userText string) (agent.Reply, error)
}

// Uploader ingests uploaded resume documents. Implemented by ingest.Ingestor.
type Uploader interface {
	Ingest(ctx context.Context, data []byte, threadID, ownerID, filename string) (ingest.IngestResult, error)
}

// ThreadReader exposes read access to threads and their history.
type ThreadReader interface {
	GetThread(threadID string) (storage.Thread, error)
	ListThreadsByOwner(ownerID string) ([]storage.Thread, error)
	GetHistory(threadID string) ([]storage.Message, error)
}

// AppDeps carries the handler dependencies.
type AppDeps struct {
	Agent    Conversationalist
	Ingestor Uploader
	Threads  ThreadReader
	Token    string
}

// NewAppHandler builds the HTTP routing tree. Conversation endpoints are
// open; thread management requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/resume/upload", handleUpload(deps))
	r.Post("/chat", handleChat(deps))
	r.Post("/chat/stream", handleChatStream(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/threads", handleListThreads(deps))
		r.Get("/threads/{id}", handleGetThread(deps))
		r.Get("/threads/{id}/history", handleGetHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// UploadResponse is returned by POST /resume/upload. Analysis runs
// synchronously on the extracted text, so the score arrives with the
// upload response; vector indexing catches up in the background.
type UploadResponse struct {
	ThreadID string                `json:"thread_id"`
	Filename string                `json:"filename"`
	Pages    int                   `json:"pages"`
	Chunks   int                   `json:"chunks"`
	Message  string                `json:"message"`
	Analysis *agent.AnalysisResult `json:"analysis,omitempty"`
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read upload: %v", err)
			return
		}

		threadID := r.FormValue("thread_id")
		if threadID == "" {
			threadID = uuid.New().String()
		}
		ownerID := r.FormValue("owner_id")

		result, err := deps.Ingestor.Ingest(r.Context(), data, threadID, ownerID, header.Filename)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "failed to process resume: %v", err)
			return
		}

		reply, err := deps.Agent.Analyze(r.Context(), threadID, "")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to analyze resume: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(UploadResponse{
			ThreadID: threadID,
			Filename: header.Filename,
			Pages:    result.Pages,
			Chunks:   result.Chunks,
			Message:  reply.Content,
			Analysis: reply.Analysis,
		})
	}
}

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Mode     string `json:"mode,omitempty"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return ChatRequest{}, false
	}
	if req.Message == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
		return ChatRequest{}, false
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.New().String()
	}
	switch agent.Mode(req.Mode) {
	case agent.ModeAuto, agent.ModeAnalysis, agent.ModeChat:
	default:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown mode %q", req.Mode)
		return ChatRequest{}, false
	}
	return req, true
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		reply, err := deps.Agent.RunTurn(r.Context(), req.ThreadID, req.Message, agent.Mode(req.Mode))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "turn failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}
}

// sseEvent is the JSON payload of one server-sent event.
type sseEvent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Tool  string `json:"tool,omitempty"`
	Error string `json:"error,omitempty"`
}

func handleChatStream(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		for ev := range deps.Agent.StreamTurn(r.Context(), req.ThreadID, req.Message, agent.Mode(req.Mode)) {
			payload := sseEvent{Type: ev.Kind.String()}
			switch ev.Kind {
			case stream.KindToken, stream.KindFinal:
				payload.Text = ev.Text
			case stream.KindToolStart, stream.KindToolEnd:
				payload.Tool = ev.Tool
			case stream.KindError:
				payload.Error = ev.Text
			}
			writeSSE(w, payload)
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, payload sseEvent) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func handleListThreads(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		if owner == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner query parameter is required")
			return
		}

		threads, err := deps.Threads.ListThreadsByOwner(owner)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list threads: %v", err)
			return
		}
		if threads == nil {
			threads = []storage.Thread{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(threadsResponse(threads))
	}
}

// ThreadView is the wire shape of one thread's metadata.
type ThreadView struct {
	ThreadID         string `json:"thread_id"`
	OwnerID          string `json:"owner_id,omitempty"`
	Filename         string `json:"filename,omitempty"`
	Pages            int    `json:"pages"`
	Chunks           int    `json:"chunks"`
	ATSScore         *int   `json:"ats_score,omitempty"`
	AnalysisComplete bool   `json:"analysis_complete"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func threadsResponse(threads []storage.Thread) []ThreadView {
	views := make([]ThreadView, len(threads))
	for i, t := range threads {
		views[i] = threadView(t)
	}
	return views
}

func threadView(t storage.Thread) ThreadView {
	return ThreadView{
		ThreadID:         t.ThreadID,
		OwnerID:          t.OwnerID,
		Filename:         t.Filename,
		Pages:            t.Pages,
		Chunks:           t.Chunks,
		ATSScore:         t.ATSScore,
		AnalysisComplete: t.AnalysisComplete,
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        t.UpdatedAt.Format(time.RFC3339),
	}
}

func handleGetThread(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		thread, err := deps.Threads.GetThread(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get thread: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(threadView(thread))
	}
}

// MessageView is the wire shape of one history entry.
type MessageView struct {
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func handleGetHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Threads.GetThread(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get thread: %v", err)
			return
		}

		history, err := deps.Threads.GetHistory(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get history: %v", err)
			return
		}

		views := make([]MessageView, len(history))
		for i, m := range history {
			views[i] = MessageView{
				Seq:       m.Seq,
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
