// Package dashboard serves the interactive research console: REST endpoints
// for driving sessions turn by turn, a websocket feed that mirrors every
// session change, and the scenario library behind both. It exists for the
// exploratory half of the workflow, where a researcher probes a model by
// hand before committing a scenario to batch runs.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/shanefrancis93/anchor-research/engine"
	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/metrics"
	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/sessionstore"
)

const (
	defaultAddr = ":8080"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second

	// maxBodySize caps request bodies. Session messages are short; anything
	// near this limit is a client bug.
	maxBodySize int64 = 1 << 20
)

// Server exposes the dashboard over HTTP.
type Server struct {
	addr         string
	library      *Library
	store        sessionstore.Store
	manager      *Manager
	hub          *Hub
	engineOpts   engine.Options
	resultsDir   string
	defaultModel string

	mu      sync.Mutex
	httpSrv *http.Server

	stopOnce sync.Once
	stopCh   chan struct{}

	watcher     *scenario.Watcher
	watchCancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithStore sets the session store. Defaults to an in-memory store, which
// loses sessions on restart; pass a Redis store to keep them.
func WithStore(store sessionstore.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithResultsDir points the transcripts listing at a directory of transcript
// files. Without it the listing is empty.
func WithResultsDir(dir string) Option {
	return func(s *Server) { s.resultsDir = dir }
}

// WithDefaultModel sets the model used when a create request names none.
func WithDefaultModel(model string) Option {
	return func(s *Server) { s.defaultModel = model }
}

// WithEngineOptions sets the sampling options for primary calls. Anchor
// probes keep their fixed temperature regardless.
func WithEngineOptions(opts engine.Options) Option {
	return func(s *Server) { s.engineOpts = opts }
}

// NewServer builds a dashboard server over a scenario library and a driver
// factory. The hub starts immediately; the HTTP listener waits for
// ListenAndServe or Serve.
func NewServer(library *Library, factory DriverFactory, opts ...Option) *Server {
	s := &Server{
		addr:    defaultAddr,
		library: library,
		hub:     NewHub(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = sessionstore.NewMemoryStore()
	}
	s.manager = NewManager(s.store, library, factory, s.engineOpts)
	go s.hub.Run(s.stopCh)
	return s
}

// Handler returns the routing table. Exposed separately so tests can drive
// the API without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/scenarios", s.handleScenarios)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/message", s.handleMessage)
	mux.HandleFunc("POST /api/sessions/{id}/fork", s.handleFork)
	mux.HandleFunc("GET /api/transcripts", s.handleTranscripts)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /ws", s.hub.ServeWS)

	return mux
}

// ListenAndServe starts the server on the configured address and blocks
// until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	srv := s.newHTTPServer()
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.startWatcher()
	logger.Info("dashboard listening", "addr", s.addr)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on ln. Useful when the caller owns the listener,
// as tests do.
func (s *Server) Serve(ln net.Listener) error {
	srv := s.newHTTPServer()
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.startWatcher()
	logger.Info("dashboard listening", "addr", ln.Addr().String())

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the watcher, disconnects websocket clients, and drains the
// HTTP server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.watchCancel != nil {
			s.watchCancel()
		}
		if s.watcher != nil {
			_ = s.watcher.Stop()
		}
		close(s.stopCh)

		s.mu.Lock()
		srv := s.httpSrv
		s.mu.Unlock()
		if srv != nil {
			err = srv.Shutdown(ctx)
		}
	})
	return err
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// startWatcher wires scenario file changes to library reloads and websocket
// pushes. A watcher failure downgrades to a log line; the dashboard still
// works, it just stops noticing edits.
func (s *Server) startWatcher() {
	dir := s.library.Dir()
	if dir == "" {
		return
	}

	w, err := scenario.NewWatcher(dir)
	if err != nil {
		logger.Warn("scenario watcher unavailable", "dir", dir, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		logger.Warn("scenario watcher failed to start", "dir", dir, "error", err)
		return
	}
	s.watcher = w
	s.watchCancel = cancel

	go func() {
		for {
			select {
			case <-s.stopCh:
				return
			case _, ok := <-w.Events():
				if !ok {
					return
				}
				if err := s.library.Reload(); err != nil {
					logger.Warn("scenario reload failed", "dir", dir, "error", err)
					continue
				}
				logger.Info("scenario library reloaded", "dir", dir, "scenarios", len(s.library.All()))
				s.hub.Broadcast(Event{Type: EventScenariosUpdated, Payload: s.library.Names()})
			}
		}
	}()
}

// scenarioSummary is the wire shape of a scenario listing entry. The
// description ships pre-rendered so the browser never parses markdown.
type scenarioSummary struct {
	Name            string   `json:"name"`
	BehaviorTested  string   `json:"behavior_tested,omitempty"`
	MaxUserTurns    int      `json:"max_user_turns"`
	ProbesPerPoint  int      `json:"probes_per_point"`
	AnchorQuestions []string `json:"anchor_questions,omitempty"`
	Branches        []string `json:"branches"`
	DescriptionHTML string   `json:"description_html,omitempty"`
}

// transcriptSummary is the wire shape of a completed-run listing entry.
type transcriptSummary struct {
	File        string `json:"file"`
	RunID       string `json:"run_id"`
	Scenario    string `json:"scenario"`
	Branch      string `json:"branch"`
	Model       string `json:"model"`
	Turns       int    `json:"turns"`
	TotalTokens int    `json:"total_tokens"`
	Timestamp   string `json:"timestamp,omitempty"`
	Labeled     bool   `json:"labeled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	all := s.library.All()
	out := make([]scenarioSummary, 0, len(all))
	for _, sc := range all {
		out = append(out, scenarioSummary{
			Name:            sc.Name,
			BehaviorTested:  sc.BehaviorTested,
			MaxUserTurns:    sc.MaxUserTurns,
			ProbesPerPoint:  sc.ProbesPerPoint,
			AnchorQuestions: sc.AnchorQuestions,
			Branches:        sc.BranchIDs(),
			DescriptionHTML: renderMarkdown(sc.Description),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario string `json:"scenario"`
		Model    string `json:"model"`
		Branch   string `json:"branch"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, "scenario is required")
		return
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	if model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	session, err := s.manager.Create(r.Context(), req.Scenario, model, req.Branch)
	switch {
	case errors.Is(err, ErrUnknownScenario):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrUnknownBranch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.hub.Broadcast(Event{Type: EventSessionUpdated, Payload: session})
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*sessionstore.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	session, err := s.manager.Step(r.Context(), r.PathValue("id"), req.Content)
	switch {
	case errors.Is(err, sessionstore.ErrNotFound), errors.Is(err, sessionstore.ErrInvalidID):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrSessionDone):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.hub.Broadcast(Event{Type: EventSessionUpdated, Payload: session})
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Fork(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	s.hub.Broadcast(Event{Type: EventSessionUpdated, Payload: session})
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleTranscripts(w http.ResponseWriter, _ *http.Request) {
	out := []transcriptSummary{}
	if s.resultsDir == "" {
		writeJSON(w, http.StatusOK, out)
		return
	}

	paths, err := results.List(s.resultsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusOK, out)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, path := range paths {
		ts, err := results.LoadAll(path)
		if err != nil {
			continue
		}
		for _, t := range ts {
			out = append(out, transcriptSummary{
				File:        filepath.Base(path),
				RunID:       t.RunID,
				Scenario:    t.Scenario,
				Branch:      t.Branch,
				Model:       t.Model,
				Turns:       len(t.Metrics),
				TotalTokens: t.TotalTokens,
				Timestamp:   t.Timestamp,
				Labeled:     len(t.ManualLabels) > 0,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeBody parses a JSON request body into dst, writing the error response
// itself when parsing fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeSessionError maps store errors onto status codes shared by the
// session lookup handlers.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionstore.ErrNotFound), errors.Is(err, sessionstore.ErrInvalidID):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
