// Package server is the HTTP surface: the chat API used by the web UI, the
// protocol envelope endpoint and the static front-end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"todo-assistant/internal/approval"
	"todo-assistant/internal/bridge"
	"todo-assistant/internal/protocol"
	"todo-assistant/internal/tools"
)

const maxBodyBytes = 1 << 20

type Chat interface {
	Thread(ctx context.Context, userID string) (string, error)
	Handle(ctx context.Context, userID, message string) (bridge.Reply, error)
	ToolResponse(ctx context.Context, d bridge.Decision) (bridge.Reply, error)
	History(ctx context.Context, userID string) ([]bridge.HistoryEntry, error)
	// Owner reports the user a thread belongs to.
	Owner(threadID string) (string, bool)
}

type Protocol interface {
	Process(ctx context.Context, req protocol.Request) protocol.Response
}

type Catalogue interface {
	Definitions() []tools.Definition
}

// Allowlist decides which user ids may use the chat API.
type Allowlist interface {
	IsAllowed(userID string) bool
}

// Observer records one sample per served request.
type Observer interface {
	ObserveHTTP(route string, code int, elapsed time.Duration)
}

type Options struct {
	Chat      Chat
	Protocol  Protocol
	Catalogue Catalogue
	// StaticDir holds the web UI; index.html is served for unknown paths.
	StaticDir string
	// Metrics and MCPStream are mounted at /metrics and /mcp/sse when set.
	Metrics   http.Handler
	MCPStream http.Handler
	Observer  Observer
	// Allow is optional; without it every user id is accepted.
	Allow Allowlist
}

type Server struct {
	opts Options
	mux  *http.ServeMux
}

func New(opts Options) *Server {
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the full handler chain including CORS.
func (s *Server) Handler() http.Handler {
	return cors(s.mux)
}

func (s *Server) routes() {
	s.handle("POST /api/thread", s.handleThread)
	s.handle("POST /api/chat", s.handleChat)
	s.handle("POST /api/tool-response", s.handleToolResponse)
	s.handle("GET /api/history/{userId}", s.handleHistory)

	s.handle("POST /mcp", s.handleMCP)
	s.handle("GET /mcp/health", s.handleMCPHealth)
	s.handle("GET /mcp/tools", s.handleMCPTools)

	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
	if s.opts.MCPStream != nil {
		s.mux.Handle("/mcp/sse", s.opts.MCPStream)
	}
	if s.opts.StaticDir != "" {
		s.mux.Handle("GET /", spa(s.opts.StaticDir))
	}
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	s.mux.Handle(pattern, s.instrument(route, h))
}

type threadRequest struct {
	UserID string `json:"userId"`
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !s.allowed(w, req.UserID) {
		return
	}
	threadID, err := s.opts.Chat.Thread(r.Context(), req.UserID)
	if err != nil {
		log.Printf("❌ Error creating thread: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create or get thread")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"threadId": threadID})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil || req.UserID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "userId and message are required")
		return
	}
	if !s.allowed(w, req.UserID) {
		return
	}

	reply, err := s.opts.Chat.Handle(r.Context(), req.UserID, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, bridge.ErrAwaitingApproval):
		writeJSON(w, http.StatusConflict, struct {
			Error string `json:"error"`
			bridge.Reply
		}{bridge.AwaitingMessage, reply})
	case errors.Is(err, bridge.ErrNoResponse):
		writeError(w, http.StatusInternalServerError, "No assistant response found")
	default:
		log.Printf("❌ Error in chat: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process chat")
	}
}

func (s *Server) handleToolResponse(w http.ResponseWriter, r *http.Request) {
	var d bridge.Decision
	if err := decode(r, &d); err != nil || d.ThreadID == "" || d.RunID == "" {
		writeError(w, http.StatusBadRequest, "threadId and runId are required")
		return
	}
	if s.opts.Allow != nil {
		owner, _ := s.opts.Chat.Owner(d.ThreadID)
		if !s.allowed(w, owner) {
			return
		}
	}

	reply, err := s.opts.Chat.ToolResponse(r.Context(), d)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, approval.ErrNoPending), errors.Is(err, approval.ErrStaleRun):
		writeError(w, http.StatusConflict, "No pending tool calls for this run")
	case errors.Is(err, bridge.ErrNoResponse):
		writeError(w, http.StatusInternalServerError, "No assistant response found")
	default:
		log.Printf("❌ Error handling tool response: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process tool response")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !s.allowed(w, userID) {
		return
	}
	entries, err := s.opts.Chat.History(r.Context(), userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
	case errors.Is(err, bridge.ErrNoThread):
		writeError(w, http.StatusNotFound, "No thread found for this user")
	default:
		log.Printf("❌ Error fetching history: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat history")
	}
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req protocol.Request
	if err := decode(r, &req); err != nil {
		log.Printf("⚠️ Malformed MCP request: %v", err)
		writeJSON(w, http.StatusBadRequest, protocol.ErrInvalidRequest)
		return
	}
	if req.Version == "" {
		req.Version = protocol.Version
	}
	if req.Tools == nil {
		req.Tools = s.tools()
	}
	writeJSON(w, http.StatusOK, s.opts.Protocol.Process(r.Context(), req))
}

func (s *Server) handleMCPHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": protocol.Version})
}

func (s *Server) handleMCPTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": protocol.Version, "tools": s.tools()})
}

func (s *Server) allowed(w http.ResponseWriter, userID string) bool {
	if s.opts.Allow == nil || s.opts.Allow.IsAllowed(userID) {
		return true
	}
	log.Printf("🚫 Rejected request from user %s", userID)
	writeError(w, http.StatusForbidden, "User is not allowed")
	return false
}

func (s *Server) tools() []protocol.Tool {
	if s.opts.Catalogue == nil {
		return []protocol.Tool{}
	}
	return protocol.ToolsFrom(s.opts.Catalogue.Definitions())
}

// spa serves files from dir and falls back to index.html.
func spa(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(r.URL.Path))); err == nil && !info.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, index)
	})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
