// Package watcher registers debounced, non-recursive filesystem watches on
// individual session and sub-agent JSONL files (and on a project's
// telemetry directory), keeping a SessionIndex incrementally up to date and
// publishing change notifications through the hub.
//
// Grounded on the teacher's internal/adapters/watcher package: the
// coalescing-window technique and the subscribe/unsubscribe lifecycle carry
// over, narrowed from recursive whole-tree watching with rename-pairing to
// single-path watches keyed per (project, session).
package watcher

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/sessionlens/sessionlens/internal/adapters/indexcache"
	"github.com/sessionlens/sessionlens/internal/hub"
	"github.com/sessionlens/sessionlens/internal/notify"
	"github.com/sessionlens/sessionlens/internal/pathresolver"
	"github.com/sessionlens/sessionlens/internal/sessionindex"
	"github.com/sessionlens/sessionlens/internal/telemetry"
)

// DefaultDebounceWindow is the coalescing window applied to every watch.
const DefaultDebounceWindow = 500 * time.Millisecond

type entryKind string

const (
	kindSession   entryKind = "session"
	kindSubAgent  entryKind = "subagent"
	kindTelemetry entryKind = "telemetry"
)

type entry struct {
	kind        entryKind
	projectPath string
	sessionID   string
	agentID     string

	fsw       *fsnotify.Watcher
	debouncer *debouncer
	done      chan struct{}

	indexMu    sync.RWMutex
	index      *sessionindex.Index
	cachedHint *notify.IndexStatus // advisory only, cleared once index is built
}

// Manager owns every active watch and the SessionIndex for each watched
// session or sub-agent file. Request handlers call Index/SubAgentIndex to
// obtain a handle and then call Snapshot on it themselves, never holding
// Manager's own lock during I/O.
type Manager struct {
	home           string
	hub            *hub.Hub
	debounceWindow time.Duration
	cache          *indexcache.Cache

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewManager creates a Manager that resolves session/sub-agent paths under
// home and publishes notifications through h.
func NewManager(home string, h *hub.Hub) *Manager {
	return &Manager{
		home:           home,
		hub:            h,
		debounceWindow: DefaultDebounceWindow,
		entries:        make(map[string]*entry),
	}
}

// WithCache attaches a persistent line-offset cache: every successful index
// build is written through to c, so a session reopened after an engine
// restart can report a status immediately from the cached offsets while
// buildIndexAsync's full rebuild is still in flight. Returns m for chaining.
func (m *Manager) WithCache(c *indexcache.Cache) *Manager {
	m.cache = c
	return m
}

func sessionKey(project, sid string) string      { return project + ":" + sid }
func subAgentKey(project, agentID string) string { return project + ":agent:" + agentID }
func telemetryKey(project string) string         { return project + ":telemetry" }

// WatchSession registers a watch on the session file for (project, sid). A
// second call under the same key is a no-op.
func (m *Manager) WatchSession(project, sid string) error {
	key := sessionKey(project, sid)
	path, exists := pathresolver.SessionFilePath(m.home, project, sid)
	if !exists {
		return fmt.Errorf("watcher: session file not found: %s", path)
	}

	e, registered, err := m.register(key, kindSession, project, path)
	if err != nil || registered {
		return err
	}
	e.sessionID = sid
	e.debouncer = newDebouncer(m.debounceWindow, func() { m.onIndexedTick(key, e, notify.NewSessionChanged(project, sid)) })
	m.seedCachedHint(e, path)

	go m.buildIndexAsync(key, e, path, project)
	go m.eventLoop(e)
	return nil
}

// WatchSubAgent registers a watch on a sub-agent's session file.
func (m *Manager) WatchSubAgent(project, agentID string) error {
	key := subAgentKey(project, agentID)
	path, exists := pathresolver.SubAgentFilePath(m.home, project, agentID)
	if !exists {
		return fmt.Errorf("watcher: sub-agent file not found: %s", path)
	}

	e, registered, err := m.register(key, kindSubAgent, project, path)
	if err != nil || registered {
		return err
	}
	e.agentID = agentID
	e.debouncer = newDebouncer(m.debounceWindow, func() { m.onIndexedTick(key, e, notify.NewSubAgentChanged(project, agentID)) })
	m.seedCachedHint(e, path)

	go m.buildIndexAsync(key, e, path, project)
	go m.eventLoop(e)
	return nil
}

// WatchTelemetry watches <project>/.cupcake/telemetry, creating the
// directory if it does not yet exist, and publishes telemetry-changed for
// any ".json" file event inside it.
func (m *Manager) WatchTelemetry(project string) error {
	key := telemetryKey(project)
	dir := telemetry.Dir(project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	e, registered, err := m.register(key, kindTelemetry, project, dir)
	if err != nil || registered {
		return err
	}
	e.debouncer = newDebouncer(m.debounceWindow, func() { m.hub.Publish(notify.NewTelemetryChanged(project)) })

	go m.telemetryEventLoop(e)
	return nil
}

// register adds a watch for a non-recursive fsnotify target, returning
// (entry, alreadyRegistered, error). On alreadyRegistered==true the
// existing entry is not touched.
func (m *Manager) register(key string, kind entryKind, project, target string) (*entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		return nil, true, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, false, err
	}
	if err := fsw.Add(target); err != nil {
		_ = fsw.Close()
		return nil, false, err
	}

	e := &entry{
		kind:        kind,
		projectPath: project,
		fsw:         fsw,
		done:        make(chan struct{}),
	}
	m.entries[key] = e
	return e, false, nil
}

// seedCachedHint looks up a previously persisted line-offset count for path
// and, on a hit, stashes an advisory "ready" status on e so Status/
// SubAgentStatus has something better than Building to report while the
// real rebuild (always performed, never skipped) is still in flight.
func (m *Manager) seedCachedHint(e *entry, path string) {
	if m.cache == nil {
		return
	}
	stat, err := os.Stat(path)
	if err != nil {
		return
	}
	offsets, ok, err := m.cache.Get(path, stat.ModTime(), stat.Size())
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("index cache lookup failed")
		return
	}
	if !ok {
		return
	}
	hint := notify.IndexStatus{State: notify.IndexStatusReady, TotalEvents: len(offsets)}
	e.indexMu.Lock()
	e.cachedHint = &hint
	e.indexMu.Unlock()
}

func (m *Manager) buildIndexAsync(key string, e *entry, path, projectRoot string) {
	idx, err := sessionindex.Build(path, projectRoot)

	m.mu.RLock()
	_, stillWatched := m.entries[key]
	m.mu.RUnlock()
	if !stillWatched {
		return
	}

	e.indexMu.Lock()
	e.index = idx
	e.cachedHint = nil
	e.indexMu.Unlock()

	var status notify.IndexStatus
	if err != nil {
		status = notify.IndexStatus{State: notify.IndexStatusError, Error: err.Error()}
	} else {
		snap := idx.Snapshot()
		status = notify.IndexStatus{
			State:          notify.IndexStatusReady,
			TotalEvents:    len(snap.LineOffsets),
			FileEditsCount: len(snap.FileEdits),
		}
		if m.cache != nil {
			if putErr := m.cache.Put(path, snap.LastMtime, snap.FileSize, snap.LineOffsets); putErr != nil {
				log.Warn().Err(putErr).Str("path", path).Msg("index cache write failed")
			}
		}
	}

	if e.kind == kindSubAgent {
		m.hub.Publish(notify.NewIndexReady(e.projectPath, e.agentID, status))
	} else {
		m.hub.Publish(notify.NewIndexReady(e.projectPath, e.sessionID, status))
	}
}

// onIndexedTick updates the entry's index (if built) and publishes n
// regardless of the update's outcome.
func (m *Manager) onIndexedTick(key string, e *entry, n *notify.Notification) {
	e.indexMu.RLock()
	idx := e.index
	e.indexMu.RUnlock()

	if idx != nil {
		if _, err := idx.Update(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("session index update failed")
		}
	}

	m.hub.Publish(n)
}

func (m *Manager) eventLoop(e *entry) {
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-e.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				e.debouncer.trigger()
			}
		case err, ok := <-e.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (m *Manager) telemetryEventLoop(e *entry) {
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-e.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			e.debouncer.trigger()
		case err, ok := <-e.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("telemetry watcher error")
		}
	}
}

// UnwatchSession drops the watch for (project, sid) and evicts its index,
// guaranteeing the underlying OS watch resource is released.
func (m *Manager) UnwatchSession(project, sid string) {
	m.unwatch(sessionKey(project, sid))
}

// UnwatchSubAgent drops the watch for a sub-agent session.
func (m *Manager) UnwatchSubAgent(project, agentID string) {
	m.unwatch(subAgentKey(project, agentID))
}

// UnwatchTelemetry drops the watch on a project's telemetry directory.
func (m *Manager) UnwatchTelemetry(project string) {
	m.unwatch(telemetryKey(project))
}

func (m *Manager) unwatch(key string) {
	m.mu.Lock()
	e, exists := m.entries[key]
	if exists {
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if !exists {
		return
	}

	close(e.done)
	e.debouncer.stop()
	_ = e.fsw.Close()
}

// Index returns the current index handle for a watched session, if its
// initial build has completed.
func (m *Manager) Index(project, sid string) (*sessionindex.Index, bool) {
	return m.entryIndex(sessionKey(project, sid))
}

// SubAgentIndex returns the current index handle for a watched sub-agent
// session, if its initial build has completed.
func (m *Manager) SubAgentIndex(project, agentID string) (*sessionindex.Index, bool) {
	return m.entryIndex(subAgentKey(project, agentID))
}

func (m *Manager) entryIndex(key string) (*sessionindex.Index, bool) {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()
	if !exists {
		return nil, false
	}
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()
	return e.index, e.index != nil
}

// Status reports the lifecycle state of a watched session's index: Building
// while the initial build is still in flight, Error if it failed, Ready
// otherwise. There is no scan path for reads before Ready: the RPC and
// HTTP layers hand a non-Ready status back to the caller instead of
// querying.
func (m *Manager) Status(project, sid string) notify.IndexStatus {
	return m.status(sessionKey(project, sid))
}

// SubAgentStatus reports the lifecycle state of a watched sub-agent index.
func (m *Manager) SubAgentStatus(project, agentID string) notify.IndexStatus {
	return m.status(subAgentKey(project, agentID))
}

func (m *Manager) status(key string) notify.IndexStatus {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()
	if !exists {
		return notify.IndexStatus{State: notify.IndexStatusError, Error: "not watched"}
	}

	e.indexMu.RLock()
	idx := e.index
	hint := e.cachedHint
	e.indexMu.RUnlock()
	if idx == nil {
		if hint != nil {
			return *hint
		}
		return notify.IndexStatus{State: notify.IndexStatusBuilding}
	}

	snap := idx.Snapshot()
	if snap.BuildError != "" {
		return notify.IndexStatus{State: notify.IndexStatusError, Error: snap.BuildError}
	}
	return notify.IndexStatus{
		State:          notify.IndexStatusReady,
		TotalEvents:    len(snap.LineOffsets),
		FileEditsCount: len(snap.FileEdits),
	}
}

// isWatched reports whether key (as built by the exported key helpers) is
// currently registered. Exercised by tests.
func (m *Manager) isWatched(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.entries[key]
	return exists
}
