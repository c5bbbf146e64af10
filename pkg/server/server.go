// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes workflows over HTTP.
//
// The surface is a small REST API for invoking workflows (one-shot JSON
// or SSE streaming), plus discovery endpoints: the workflow and tool
// listings, A2A agent cards for opted-in workflows, health and
// Prometheus metrics. Hydrated workflows are swappable at runtime so
// serve --watch can replace a definition without dropping in-flight
// requests on other workflows.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weftworks/weft/pkg/a2acard"
	"github.com/weftworks/weft/pkg/driver"
	"github.com/weftworks/weft/pkg/hydrator"
	"github.com/weftworks/weft/pkg/metrics"
	"github.com/weftworks/weft/pkg/observability"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/workflow"
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, host:port.
	Addr string

	// BaseURL is the externally visible URL used in A2A cards.
	BaseURL string

	// Driver executes workflows. Required.
	Driver *driver.Driver

	// Registry holds the loaded workflow definitions. Required.
	Registry *workflow.Registry

	// Tools backs the GET /v1/tools listing. Nil serves an empty list.
	Tools *tool.Registry

	// Observer records run outcomes and serves /metrics. Nil disables
	// both.
	Observer *observability.Observer
}

// Server is the HTTP surface over a set of hydrated workflows.
type Server struct {
	addr     string
	baseURL  string
	driver   *driver.Driver
	registry *workflow.Registry
	tools    *tool.Registry
	observer *observability.Observer

	mu        sync.RWMutex
	workflows map[string]*hydrator.HydratedWorkflow
	cards     *a2acard.Catalog

	httpServer *http.Server
}

// New creates a Server. Hydrated workflows are installed with
// SetWorkflow before or after Start.
func New(opts Options) *Server {
	s := &Server{
		addr:      opts.Addr,
		baseURL:   opts.BaseURL,
		driver:    opts.Driver,
		registry:  opts.Registry,
		tools:     opts.Tools,
		observer:  opts.Observer,
		workflows: make(map[string]*hydrator.HydratedWorkflow),
	}
	s.cards = a2acard.NewCatalog(opts.Registry.Entries(), opts.BaseURL)
	return s
}

// SetWorkflow installs or replaces the hydrated workflow serving a name
// and returns the previous one, if any. The caller owns closing the
// returned workflow once in-flight runs have drained.
func (s *Server) SetWorkflow(name string, hw *hydrator.HydratedWorkflow) *hydrator.HydratedWorkflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.workflows[name]
	s.workflows[name] = hw
	s.cards = a2acard.NewCatalog(s.registry.Entries(), s.baseURL)
	return old
}

// DropWorkflow removes a workflow from the serving set and returns the
// hydrated instance for the caller to close.
func (s *Server) DropWorkflow(name string) *hydrator.HydratedWorkflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.workflows[name]
	delete(s.workflows, name)
	s.cards = a2acard.NewCatalog(s.registry.Entries(), s.baseURL)
	return old
}

func (s *Server) workflow(name string) (*hydrator.HydratedWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hw, ok := s.workflows[name]
	return hw, ok
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workflows", s.handleListWorkflows)
		r.Post("/workflows/{name}/run", s.handleRun)
		r.Post("/workflows/{name}/run/stream", s.handleRunStream)
		r.Get("/tools", s.handleListTools)
	})
	r.Get("/a2a/cards", s.handleCards)
	r.Get("/a2a/{name}", s.handleCard)
	r.Get("/healthz", s.handleHealth)
	if s.observer != nil {
		r.Method(http.MethodGet, "/metrics", s.observer.Handler())
	}
	return r
}

// Start serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("HTTP server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// runRequest is the body of the run endpoints.
type runRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (*runRequest, bool) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	return &req, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hw, ok := s.workflow(name)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found: "+name)
		return
	}
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	result, err := s.driver.Run(r.Context(), hw, req.UserID, req.SessionID, req.Message)
	if s.observer != nil {
		var usage metrics.UsageSummary
		if result != nil {
			usage = result.Usage
		}
		s.observer.RecordRun(r.Context(), name, usage, err)
	}
	if err != nil {
		slog.Error("Workflow run failed", "workflow", name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hw, ok := s.workflow(name)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found: "+name)
		return
	}
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	stream, err := s.driver.RunStreaming(r.Context(), hw, req.UserID, req.SessionID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runErr := serveSSE(w, stream)
	if s.observer != nil {
		s.observer.RecordRun(r.Context(), name, stream.Usage(), runErr)
	}
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	type item struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Mode        string `json:"mode"`
		Serving     bool   `json:"serving"`
	}

	entries := s.registry.Entries()
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		_, serving := s.workflow(e.Definition.Name)
		items = append(items, item{
			Name:        e.Definition.Name,
			Description: e.Definition.Description,
			Mode:        string(e.Definition.Orchestration.Mode),
			Serving:     serving,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": items, "total": len(items)})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	var defs []tool.Definition
	if s.tools != nil {
		defs = s.tools.Metadata()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": defs, "total": len(defs)})
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cards := s.cards.All()
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards, "total": len(cards)})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.RLock()
	card, ok := s.cards.Get(name)
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no agent card for workflow: "+name)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs requests without wrapping the ResponseWriter,
// which would break http.Flusher for SSE.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
