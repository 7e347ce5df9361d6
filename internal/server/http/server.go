// Package http implements the read-only HTTP API for the session engine:
// plain GET routes mirroring the JSON-RPC surface, for simple polling
// clients and for the engine's own integration tests.
//
// Grounded on the teacher's internal/server/workspacehttp.Server
// (gorilla/mux route registration, host:port addr construction, graceful
// Start/Stop over *http.Server) narrowed to GET-only query routes backed
// by internal/query, internal/search, internal/discovery, and
// internal/telemetry instead of workspace/session CRUD.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/discovery"
	"github.com/sessionlens/sessionlens/internal/notify"
	"github.com/sessionlens/sessionlens/internal/pathresolver"
	"github.com/sessionlens/sessionlens/internal/query"
	"github.com/sessionlens/sessionlens/internal/search"
	"github.com/sessionlens/sessionlens/internal/sessionindex"
	"github.com/sessionlens/sessionlens/internal/telemetry"
	"github.com/sessionlens/sessionlens/internal/watcher"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	home       string
	limits     config.LimitsConfig
	watcher    *watcher.Manager
}

// New creates a Server bound to host:port, resolving projects under home
// (normally the current user's home directory) and serving indexes through
// mgr.
func New(host string, port int, home string, limits config.LimitsConfig, mgr *watcher.Manager) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		home:    home,
		limits:  limits,
		watcher: mgr,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/sessions", s.handleProjectSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/events", s.handleSessionEvents).Methods(http.MethodGet)
	api.HandleFunc("/sessions/raw", s.handleSessionRawJSON).Methods(http.MethodGet)
	api.HandleFunc("/sessions/search", s.handleSessionSearch).Methods(http.MethodGet)
	api.HandleFunc("/sessions/file-diffs", s.handleFileDiffs).Methods(http.MethodGet)
	api.HandleFunc("/sessions/status", s.handleSessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/subagents/events", s.handleSubAgentEvents).Methods(http.MethodGet)
	api.HandleFunc("/subagents/raw", s.handleSubAgentRawJSON).Methods(http.MethodGet)
	api.HandleFunc("/subagents/search", s.handleSubAgentSearch).Methods(http.MethodGet)
	api.HandleFunc("/telemetry", s.handleTelemetryList).Methods(http.MethodGet)
	api.HandleFunc("/telemetry/evaluation", s.handleTelemetryGet).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := discovery.ListProjects(s.home)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectSessions(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query param: project"))
		return
	}
	sessions, err := discovery.GetSessionsForProject(s.home, project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// ensureSessionIndex makes sure (project, sid) is watched and returns its
// current index snapshot. Mirrors watch_session being implied by a query
// for a polling HTTP client that never calls the explicit watch/unwatch
// RPC methods.
func (s *Server) ensureSessionIndex(project, sid string) (sessionindex.Snapshot, notify.IndexStatus, error) {
	if _, exists := pathresolver.SessionFilePath(s.home, project, sid); !exists {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, query.ErrNotFound
	}
	if err := s.watcher.WatchSession(project, sid); err != nil {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, err
	}
	status := s.watcher.Status(project, sid)
	idx, ok := s.watcher.Index(project, sid)
	if !ok {
		return sessionindex.Snapshot{}, status, nil
	}
	return idx.Snapshot(), status, nil
}

func (s *Server) ensureSubAgentIndex(project, agentID string) (sessionindex.Snapshot, notify.IndexStatus, error) {
	if _, exists := pathresolver.SubAgentFilePath(s.home, project, agentID); !exists {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, query.ErrNotFound
	}
	if err := s.watcher.WatchSubAgent(project, agentID); err != nil {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, err
	}
	status := s.watcher.SubAgentStatus(project, agentID)
	idx, ok := s.watcher.SubAgentIndex(project, agentID)
	if !ok {
		return sessionindex.Snapshot{}, status, nil
	}
	return idx.Snapshot(), status, nil
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	sid := r.URL.Query().Get("sid")
	if project == "" || sid == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, sid"))
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", s.limits.DefaultPageLimit)

	snap, status, err := s.ensureSessionIndex(project, sid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if status.State != notify.IndexStatusReady {
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	page, err := query.GetEvents(snap, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSubAgentEvents(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	agentID := r.URL.Query().Get("agent")
	if project == "" || agentID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, agent"))
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", s.limits.DefaultPageLimit)

	snap, status, err := s.ensureSubAgentIndex(project, agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if status.State != notify.IndexStatusReady {
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	page, err := query.GetEvents(snap, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSubAgentRawJSON(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	agentID := r.URL.Query().Get("agent")
	if project == "" || agentID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, agent"))
		return
	}
	byteOffset := queryInt64(r, "offset", -1)
	if byteOffset < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing or invalid required query param: offset"))
		return
	}

	path, exists := pathresolver.SubAgentFilePath(s.home, project, agentID)
	if !exists {
		writeError(w, http.StatusNotFound, query.ErrNotFound)
		return
	}

	raw, ok := query.GetRawJSON(path, byteOffset)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleSubAgentSearch(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	agentID := r.URL.Query().Get("agent")
	q := r.URL.Query().Get("q")
	if project == "" || agentID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, agent"))
		return
	}

	snap, status, err := s.ensureSubAgentIndex(project, agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if status.State != notify.IndexStatusReady {
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	resp, err := search.Search(snap, q, s.limits.SearchResultCap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionRawJSON(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	sid := r.URL.Query().Get("sid")
	if project == "" || sid == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, sid"))
		return
	}
	byteOffset := queryInt64(r, "offset", -1)
	if byteOffset < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing or invalid required query param: offset"))
		return
	}

	path, exists := pathresolver.SessionFilePath(s.home, project, sid)
	if !exists {
		writeError(w, http.StatusNotFound, query.ErrNotFound)
		return
	}

	raw, ok := query.GetRawJSON(path, byteOffset)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleSessionSearch(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	sid := r.URL.Query().Get("sid")
	q := r.URL.Query().Get("q")
	if project == "" || sid == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, sid"))
		return
	}

	snap, status, err := s.ensureSessionIndex(project, sid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if status.State != notify.IndexStatusReady {
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	resp, err := search.Search(snap, q, s.limits.SearchResultCap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileDiffs(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	sid := r.URL.Query().Get("sid")
	relPath := r.URL.Query().Get("path")
	if project == "" || sid == "" || relPath == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, sid, path"))
		return
	}

	snap, status, err := s.ensureSessionIndex(project, sid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if status.State != notify.IndexStatusReady {
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	diffs, err := query.GetFileDiffs(project, relPath, snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	sid := r.URL.Query().Get("sid")
	if project == "" || sid == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, sid"))
		return
	}
	writeJSON(w, http.StatusOK, s.watcher.Status(project, sid))
}

func (s *Server) handleTelemetryList(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query param: project"))
		return
	}
	evals, err := telemetry.ListPolicyEvaluations(project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, evals)
}

func (s *Server) handleTelemetryGet(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	filename := r.URL.Query().Get("filename")
	if project == "" || filename == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query params: project, filename"))
		return
	}
	eval, ok := telemetry.GetPolicyEvaluation(project, filename)
	if !ok {
		writeError(w, http.StatusNotFound, query.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode http response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
