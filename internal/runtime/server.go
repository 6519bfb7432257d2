package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhound420/acp-agents-skill/internal/acp"
)

// AgentFunc is a hosted agent implementation. It may emit intermediate
// thoughts while working and returns the final output text.
type AgentFunc func(ctx context.Context, task string, emit func(thought string)) (string, error)

type agentEntry struct {
	desc acp.AgentDescriptor
	fn   AgentFunc
}

// Config holds runtime server configuration.
type Config struct {
	Name        string
	Description string
	Version     string
	Addr        string

	// OnThought, if set, is called with every intermediate thought an
	// agent emits while running.
	OnThought func(agent, thought string)
	// OnResult, if set, is called when a run finishes.
	OnResult func(agent, status, output string, elapsedMs int64)
}

// Server exposes registered agents over the ACP HTTP surface: the
// discovery manifest, the liveness ping, and sync/stream runs. Routes are
// composed explicitly on one mux; extra routes may be mounted alongside.
type Server struct {
	cfg    Config
	mu     sync.RWMutex
	agents map[string]*agentEntry
	order  []string
	mux    *http.ServeMux
	server *http.Server
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		agents: make(map[string]*agentEntry),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc(acp.DiscoveryPath, s.handleManifest)
	s.mux.HandleFunc(acp.PingPath, s.handlePing)
	s.mux.HandleFunc(acp.RunsPath, s.handleRuns)
	return s
}

// RegisterAgent adds a named agent to the server and its manifest.
// Re-registering a name overwrites the previous agent.
func (s *Server) RegisterAgent(name, description string, capabilities []string, fn AgentFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[name]; !ok {
		s.order = append(s.order, name)
	}
	s.agents[name] = &agentEntry{
		desc: acp.AgentDescriptor{
			Name:         name,
			Description:  description,
			Capabilities: capabilities,
		},
		fn: fn,
	}
}

// Handle mounts an additional route on the server's mux.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Handler returns the composed HTTP surface.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server until Stop or failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	log.Printf("[Runtime] ACP server starting on %s", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	manifest := acp.Manifest{
		Schema:      "https://open-acp.org/specs/agent.json",
		Name:        s.cfg.Name,
		Description: s.cfg.Description,
		Version:     s.cfg.Version,
	}
	for _, name := range s.order {
		manifest.Agents = append(manifest.Agents, s.agents[name].desc)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(manifest)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req acp.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRunError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	s.mu.RLock()
	entry, ok := s.agents[req.AgentName]
	s.mu.RUnlock()
	if !ok {
		writeRunError(w, http.StatusNotFound, fmt.Sprintf("unknown agent %q", req.AgentName))
		return
	}

	task := strings.TrimSpace(acp.JoinText(req.Input))
	if req.Mode == acp.ModeStream {
		s.runStream(w, r, req.AgentName, entry, task)
		return
	}
	s.runSync(w, r, entry, task)
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request, entry *agentEntry, task string) {
	start := time.Now()
	name := entry.desc.Name
	output, err := entry.fn(r.Context(), task, func(thought string) {
		if s.cfg.OnThought != nil {
			s.cfg.OnThought(name, thought)
		}
	})

	resp := acp.RunResponse{Status: acp.StatusCompleted}
	if err != nil {
		resp.Status = acp.StatusError
		resp.Error = err.Error()
		resp.Output = []acp.Message{acp.TextMessage(err.Error())}
	} else {
		resp.Output = []acp.Message{acp.TextMessage(output)}
	}
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(name, resp.Status, acp.JoinText(resp.Output), time.Since(start).Milliseconds())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) runStream(w http.ResponseWriter, r *http.Request, name string, entry *agentEntry, task string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRunError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	runID := uuid.New().String()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Run-ID", runID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev acp.StreamEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	log.Printf("[Runtime] Run %s: agent=%s mode=stream", runID, name)

	start := time.Now()
	output, err := entry.fn(r.Context(), task, func(thought string) {
		send(acp.StreamEvent{Type: acp.EventGeneric, Generic: &acp.GenericEvent{Thought: thought}})
		if s.cfg.OnThought != nil {
			s.cfg.OnThought(name, thought)
		}
	})
	if err != nil {
		send(acp.StreamEvent{Type: acp.EventRunFailed, Run: &acp.RunStatus{Error: err.Error()}})
		if s.cfg.OnResult != nil {
			s.cfg.OnResult(name, acp.StatusError, err.Error(), time.Since(start).Milliseconds())
		}
		return
	}

	if output != "" {
		msg := acp.TextMessage(output)
		send(acp.StreamEvent{Type: acp.EventMessage, Message: &msg})
	}
	send(acp.StreamEvent{Type: acp.EventRunCompleted})
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(name, acp.StatusCompleted, output, time.Since(start).Milliseconds())
	}
}

func writeRunError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(acp.RunResponse{
		Status: acp.StatusError,
		Error:  msg,
		Output: []acp.Message{acp.TextMessage(msg)},
	})
}
