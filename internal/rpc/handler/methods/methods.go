// Package methods binds every read-only query operation to a JSON-RPC
// method name and registers it on a handler.Registry.
//
// Grounded on the teacher's internal/rpc/handler method-registration
// packages (one RegisterMethods-style function per concern, each handler
// unmarshalling json.RawMessage params into a small local struct) narrowed
// to the project/session/search/telemetry read surface backed by
// internal/discovery, internal/query, internal/search, internal/telemetry,
// and internal/watcher instead of the teacher's workspace/agent command
// surface.
package methods

import (
	"context"
	"encoding/json"

	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/discovery"
	"github.com/sessionlens/sessionlens/internal/notify"
	"github.com/sessionlens/sessionlens/internal/pathresolver"
	"github.com/sessionlens/sessionlens/internal/query"
	"github.com/sessionlens/sessionlens/internal/rpc/handler"
	"github.com/sessionlens/sessionlens/internal/rpc/message"
	"github.com/sessionlens/sessionlens/internal/search"
	"github.com/sessionlens/sessionlens/internal/sessionindex"
	"github.com/sessionlens/sessionlens/internal/telemetry"
	"github.com/sessionlens/sessionlens/internal/watcher"
)

// Service implements handler.MethodService, exposing the engine's read-only
// query operations as JSON-RPC methods.
type Service struct {
	home    string
	limits  config.LimitsConfig
	watcher *watcher.Manager
}

// New creates a Service resolving projects under home and serving indexes
// through mgr.
func New(home string, limits config.LimitsConfig, mgr *watcher.Manager) *Service {
	return &Service{home: home, limits: limits, watcher: mgr}
}

// RegisterMethods registers every method this service provides on r.
func (s *Service) RegisterMethods(r *handler.Registry) {
	r.Register("get_projects", s.getProjects)
	r.Register("get_project_sessions", s.getProjectSessions)
	r.Register("get_session_events", s.getSessionEvents)
	r.Register("get_event_raw_json", s.getEventRawJSON)
	r.Register("get_events_by_offsets", s.getEventsByOffsets)
	r.Register("search_session_events", s.searchSessionEvents)
	r.Register("get_session_file_edits", s.getSessionFileEdits)
	r.Register("get_file_diffs", s.getFileDiffs)
	r.Register("get_file_edit_context", s.getFileEditContext)
	r.Register("get_index_status", s.getIndexStatus)
	r.Register("watch_session", s.watchSession)
	r.Register("unwatch_session", s.unwatchSession)
	r.Register("get_subagent_events", s.getSubAgentEvents)
	r.Register("get_subagent_raw_json", s.getSubAgentRawJSON)
	r.Register("watch_subagent", s.watchSubAgent)
	r.Register("unwatch_subagent", s.unwatchSubAgent)
	r.Register("watch_telemetry", s.watchTelemetry)
	r.Register("unwatch_telemetry", s.unwatchTelemetry)
	r.Register("search_subagent_events", s.searchSubAgentEvents)
	r.Register("get_policy_evaluations", s.getPolicyEvaluations)
	r.Register("get_policy_evaluation", s.getPolicyEvaluation)
}

func unmarshalParams(params json.RawMessage, v interface{}) *message.Error {
	if len(params) == 0 {
		return message.ErrInvalidParams("missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return message.ErrInvalidParams(err.Error())
	}
	return nil
}

// ensureSessionIndex watches (project, sid) if not already watched and
// returns its current snapshot and status. Mirrors watch_session being
// implied by any read-only call for clients that never subscribe
// explicitly.
//
// Every read handler that calls this (and ensureSubAgentIndex below) returns
// the IndexStatus{Building} value as-is when the build hasn't finished yet,
// rather than falling back to a direct scan of the JSONL file for that one
// call. The initial build is async but typically finishes in well under a
// second for realistic session sizes, so a client is expected to retry the
// call (or wait for the index-ready notification) instead of the server
// computing a one-off scan path for the race window.
func (s *Service) ensureSessionIndex(project, sid string) (sessionindex.Snapshot, notify.IndexStatus, *message.Error) {
	if _, exists := pathresolver.SessionFilePath(s.home, project, sid); !exists {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, message.ErrSessionNotFound(sid)
	}
	if err := s.watcher.WatchSession(project, sid); err != nil {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, message.ErrInternalError(err.Error())
	}
	status := s.watcher.Status(project, sid)
	idx, ok := s.watcher.Index(project, sid)
	if !ok {
		return sessionindex.Snapshot{}, status, nil
	}
	return idx.Snapshot(), status, nil
}

func (s *Service) ensureSubAgentIndex(project, agentID string) (sessionindex.Snapshot, notify.IndexStatus, *message.Error) {
	if _, exists := pathresolver.SubAgentFilePath(s.home, project, agentID); !exists {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, message.ErrSessionNotFound(agentID)
	}
	if err := s.watcher.WatchSubAgent(project, agentID); err != nil {
		return sessionindex.Snapshot{}, notify.IndexStatus{}, message.ErrInternalError(err.Error())
	}
	status := s.watcher.SubAgentStatus(project, agentID)
	idx, ok := s.watcher.SubAgentIndex(project, agentID)
	if !ok {
		return sessionindex.Snapshot{}, status, nil
	}
	return idx.Snapshot(), status, nil
}

type projectParams struct {
	Project string `json:"project"`
}

func (s *Service) getProjects(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	projects, err := discovery.ListProjects(s.home)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return projects, nil
}

func (s *Service) getProjectSessions(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p projectParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" {
		return nil, message.ErrInvalidParams("missing required param: project")
	}
	sessions, err := discovery.GetSessionsForProject(s.home, p.Project)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return sessions, nil
}

type sessionPageParams struct {
	Project string `json:"project"`
	SID     string `json:"sid"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
}

func (s *Service) getSessionEvents(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p sessionPageParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}
	if p.Limit <= 0 {
		p.Limit = s.limits.DefaultPageLimit
	}

	snap, status, merr := s.ensureSessionIndex(p.Project, p.SID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}

	page, err := query.GetEvents(snap, p.Offset, p.Limit)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return page, nil
}

type rawJSONParams struct {
	Project    string `json:"project"`
	SID        string `json:"sid"`
	ByteOffset int64  `json:"byte_offset"`
}

func (s *Service) getEventRawJSON(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p rawJSONParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}
	path, exists := pathresolver.SessionFilePath(s.home, p.Project, p.SID)
	if !exists {
		return nil, message.ErrSessionNotFound(p.SID)
	}
	raw, ok := query.GetRawJSON(path, p.ByteOffset)
	if !ok {
		return nil, nil
	}
	return raw, nil
}

type eventsByOffsetsParams struct {
	Project string            `json:"project"`
	SID     string            `json:"sid"`
	Pairs   []query.SeqOffset `json:"pairs"`
}

func (s *Service) getEventsByOffsets(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p eventsByOffsetsParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}
	path, exists := pathresolver.SessionFilePath(s.home, p.Project, p.SID)
	if !exists {
		return nil, message.ErrSessionNotFound(p.SID)
	}
	return query.GetEventsByOffsets(path, p.Pairs), nil
}

type searchParams struct {
	Project string `json:"project"`
	SID     string `json:"sid"`
	Query   string `json:"query"`
}

func (s *Service) searchSessionEvents(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p searchParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}

	snap, status, merr := s.ensureSessionIndex(p.Project, p.SID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}

	resp, err := search.Search(snap, p.Query, s.limits.SearchResultCap)
	if err != nil {
		return nil, message.ErrSearchError(err.Error())
	}
	return resp, nil
}

func (s *Service) getSessionFileEdits(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p sessionPageParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}

	snap, status, merr := s.ensureSessionIndex(p.Project, p.SID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}
	return query.GetFileEdits(snap), nil
}

type fileDiffsParams struct {
	Project string `json:"project"`
	SID     string `json:"sid"`
	Path    string `json:"path"`
}

func (s *Service) getFileDiffs(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p fileDiffsParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" || p.Path == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid, path")
	}

	snap, status, merr := s.ensureSessionIndex(p.Project, p.SID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}

	diffs, err := query.GetFileDiffs(p.Project, p.Path, snap)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return diffs, nil
}

type fileEditContextParams struct {
	Project   string `json:"project"`
	SID       string `json:"sid"`
	Path      string `json:"path"`
	EditIndex int    `json:"edit_index"`
}

func (s *Service) getFileEditContext(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p fileEditContextParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" || p.Path == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid, path")
	}

	snap, status, merr := s.ensureSessionIndex(p.Project, p.SID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}

	events, err := query.GetEditContext(snap, p.Path, p.EditIndex)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return events, nil
}

func (s *Service) getIndexStatus(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p sessionPageParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}
	return s.watcher.Status(p.Project, p.SID), nil
}

func (s *Service) watchSession(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p projectSIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}
	if _, exists := pathresolver.SessionFilePath(s.home, p.Project, p.SID); !exists {
		return nil, message.ErrSessionNotFound(p.SID)
	}
	if err := s.watcher.WatchSession(p.Project, p.SID); err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return map[string]bool{"watching": true}, nil
}

func (s *Service) unwatchSession(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p projectSIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.SID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, sid")
	}
	s.watcher.UnwatchSession(p.Project, p.SID)
	return map[string]bool{"watching": false}, nil
}

type projectSIDParams struct {
	Project string `json:"project"`
	SID     string `json:"sid"`
}

type subAgentPageParams struct {
	Project string `json:"project"`
	AgentID string `json:"agent_id"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
}

func (s *Service) getSubAgentEvents(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p subAgentPageParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.AgentID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, agent_id")
	}
	if p.Limit <= 0 {
		p.Limit = s.limits.DefaultPageLimit
	}

	snap, status, merr := s.ensureSubAgentIndex(p.Project, p.AgentID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}

	page, err := query.GetEvents(snap, p.Offset, p.Limit)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return page, nil
}

type subAgentRawJSONParams struct {
	Project    string `json:"project"`
	AgentID    string `json:"agent_id"`
	ByteOffset int64  `json:"byte_offset"`
}

func (s *Service) getSubAgentRawJSON(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p subAgentRawJSONParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.AgentID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, agent_id")
	}
	path, exists := pathresolver.SubAgentFilePath(s.home, p.Project, p.AgentID)
	if !exists {
		return nil, message.ErrSessionNotFound(p.AgentID)
	}
	raw, ok := query.GetRawJSON(path, p.ByteOffset)
	if !ok {
		return nil, nil
	}
	return raw, nil
}

type subAgentWatchParams struct {
	Project string `json:"project"`
	AgentID string `json:"agent_id"`
}

func (s *Service) watchSubAgent(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p subAgentWatchParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.AgentID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, agent_id")
	}
	if _, exists := pathresolver.SubAgentFilePath(s.home, p.Project, p.AgentID); !exists {
		return nil, message.ErrSessionNotFound(p.AgentID)
	}
	if err := s.watcher.WatchSubAgent(p.Project, p.AgentID); err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return map[string]bool{"watching": true}, nil
}

func (s *Service) unwatchSubAgent(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p subAgentWatchParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.AgentID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, agent_id")
	}
	s.watcher.UnwatchSubAgent(p.Project, p.AgentID)
	return map[string]bool{"watching": false}, nil
}

func (s *Service) watchTelemetry(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p projectParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" {
		return nil, message.ErrInvalidParams("missing required param: project")
	}
	if err := s.watcher.WatchTelemetry(p.Project); err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return map[string]bool{"watching": true}, nil
}

func (s *Service) unwatchTelemetry(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p projectParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" {
		return nil, message.ErrInvalidParams("missing required param: project")
	}
	s.watcher.UnwatchTelemetry(p.Project)
	return map[string]bool{"watching": false}, nil
}

type subAgentSearchParams struct {
	Project string `json:"project"`
	AgentID string `json:"agent_id"`
	Query   string `json:"query"`
}

func (s *Service) searchSubAgentEvents(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p subAgentSearchParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.AgentID == "" {
		return nil, message.ErrInvalidParams("missing required params: project, agent_id")
	}

	snap, status, merr := s.ensureSubAgentIndex(p.Project, p.AgentID)
	if merr != nil {
		return nil, merr
	}
	if status.State != notify.IndexStatusReady {
		return status, nil
	}

	resp, err := search.Search(snap, p.Query, s.limits.SearchResultCap)
	if err != nil {
		return nil, message.ErrSearchError(err.Error())
	}
	return resp, nil
}

func (s *Service) getPolicyEvaluations(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p projectParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" {
		return nil, message.ErrInvalidParams("missing required param: project")
	}
	evals, err := telemetry.ListPolicyEvaluations(p.Project)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	return evals, nil
}

type policyEvaluationParams struct {
	Project  string `json:"project"`
	Filename string `json:"filename"`
}

func (s *Service) getPolicyEvaluation(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p policyEvaluationParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Project == "" || p.Filename == "" {
		return nil, message.ErrInvalidParams("missing required params: project, filename")
	}
	eval, ok := telemetry.GetPolicyEvaluation(p.Project, p.Filename)
	if !ok {
		return nil, message.NewError(message.FileNotFound, "policy evaluation not found")
	}
	return eval, nil
}
