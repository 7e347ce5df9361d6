// Package notify defines the change notifications the watcher fans out to
// a host UI through the hub and the WebSocket/RPC transports.
package notify

import (
	"encoding/json"
	"time"
)

// Name identifies a notification kind. Names are stable strings matching
// the method names used on the JSON-RPC notification channel.
type Name string

const (
	// SessionChanged fires after every debounce tick on a watched session
	// file, once per batch, regardless of whether the update produced any
	// change.
	SessionChanged Name = "session-changed"
	// SubAgentChanged fires for watched sub-agent files.
	SubAgentChanged Name = "subagent-changed"
	// IndexReady fires exactly once per successful subscribe, after the
	// asynchronous initial index build completes (or fails).
	IndexReady Name = "index-ready"
	// TelemetryChanged fires when a project's telemetry directory gains,
	// loses, or modifies a JSON file.
	TelemetryChanged Name = "telemetry-changed"
)

// Notification is the base envelope for every change notification. Payload
// carries the camelCase-keyed fields described for each Name.
type Notification struct {
	Name      Name        `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ToJSON serializes the notification.
func (n *Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// New creates a notification with the current time.
func New(name Name, payload interface{}) *Notification {
	return &Notification{Name: name, Timestamp: time.Now().UTC(), Payload: payload}
}

// SessionChangedPayload is the payload for a session-changed notification.
type SessionChangedPayload struct {
	ProjectPath string `json:"projectPath"`
	SessionID   string `json:"sessionId"`
}

// NewSessionChanged builds a session-changed notification.
func NewSessionChanged(projectPath, sessionID string) *Notification {
	return New(SessionChanged, SessionChangedPayload{ProjectPath: projectPath, SessionID: sessionID})
}

// SubAgentChangedPayload is the payload for a subagent-changed notification.
type SubAgentChangedPayload struct {
	ProjectPath string `json:"projectPath"`
	AgentID     string `json:"agentId"`
}

// NewSubAgentChanged builds a subagent-changed notification.
func NewSubAgentChanged(projectPath, agentID string) *Notification {
	return New(SubAgentChanged, SubAgentChangedPayload{ProjectPath: projectPath, AgentID: agentID})
}

// IndexStatusState enumerates the lifecycle of a SessionIndex build.
type IndexStatusState string

const (
	IndexStatusBuilding IndexStatusState = "building"
	IndexStatusReady    IndexStatusState = "ready"
	IndexStatusError    IndexStatusState = "error"
)

// IndexStatus summarizes the state of a SessionIndex for a host caller.
type IndexStatus struct {
	State          IndexStatusState `json:"state"`
	TotalEvents    int              `json:"totalEvents"`
	FileEditsCount int              `json:"fileEditsCount"`
	Error          string           `json:"error,omitempty"`
}

// IndexReadyPayload is the payload for an index-ready notification.
type IndexReadyPayload struct {
	ProjectPath string      `json:"projectPath"`
	SessionID   string      `json:"sessionId"`
	Status      IndexStatus `json:"status"`
}

// NewIndexReady builds an index-ready notification.
func NewIndexReady(projectPath, sessionID string, status IndexStatus) *Notification {
	return New(IndexReady, IndexReadyPayload{ProjectPath: projectPath, SessionID: sessionID, Status: status})
}

// TelemetryChangedPayload is the payload for a telemetry-changed notification.
type TelemetryChangedPayload struct {
	ProjectPath string `json:"projectPath"`
}

// NewTelemetryChanged builds a telemetry-changed notification.
func NewTelemetryChanged(projectPath string) *Notification {
	return New(TelemetryChanged, TelemetryChangedPayload{ProjectPath: projectPath})
}
