// Package telemetry reads policy-evaluation records written by a companion
// policy-engine process as individual JSON files under a project's
// .cupcake/telemetry directory. The engine never writes these files, only
// reads them back.
package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir returns the well-known telemetry directory for a project.
func Dir(projectPath string) string {
	return filepath.Join(projectPath, ".cupcake", "telemetry")
}

// PolicyEvaluation is one telemetry record, summarized to the fields a host
// caller needs.
type PolicyEvaluation struct {
	Filename   string `json:"filename"`
	Timestamp  string `json:"timestamp"`
	EventType  string `json:"eventType,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Decision   string `json:"decision,omitempty"`
	DurationMs int64  `json:"durationMs"`
	TraceID    string `json:"traceId"`
}

type rawRecord struct {
	Timestamp       string      `json:"timestamp"`
	TraceID         string      `json:"trace_id"`
	TotalDurationMs int64       `json:"total_duration_ms"`
	RawEvent        rawEvent    `json:"raw_event"`
	Response        rawResponse `json:"response"`
	Phases          []rawPhase  `json:"phases"`
}

type rawEvent struct {
	HookEventName string `json:"hook_event_name"`
	ToolName      string `json:"tool_name"`
}

type rawResponse struct {
	Decision json.RawMessage `json:"decision"`
}

type rawPhase struct {
	Evaluation struct {
		FinalDecision json.RawMessage `json:"final_decision"`
	} `json:"evaluation"`
}

// decisionName extracts the tag name out of a tagged-union object encoded
// as a single-key JSON object, e.g. {"allow": {...}} → "allow".
func decisionName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	for k := range m {
		return k
	}
	return ""
}

// ListPolicyEvaluations reads every *.json file directly under a project's
// telemetry directory, newest-first by timestamp. Missing or unparseable
// files are skipped rather than failing the whole call.
func ListPolicyEvaluations(projectPath string) ([]PolicyEvaluation, error) {
	dir := Dir(projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var evals []PolicyEvaluation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		eval, ok := readPolicyEvaluation(filepath.Join(dir, entry.Name()), entry.Name())
		if !ok {
			continue
		}
		evals = append(evals, eval)
	}

	sort.Slice(evals, func(i, j int) bool {
		return evals[i].Timestamp > evals[j].Timestamp
	})
	return evals, nil
}

// GetPolicyEvaluation reads a single named telemetry file.
func GetPolicyEvaluation(projectPath, filename string) (PolicyEvaluation, bool) {
	path := filepath.Join(Dir(projectPath), filename)
	return readPolicyEvaluation(path, filename)
}

func readPolicyEvaluation(path, filename string) (PolicyEvaluation, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyEvaluation{}, false
	}

	var rec rawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return PolicyEvaluation{}, false
	}

	decision := decisionName(rec.Response.Decision)
	if decision == "" {
		for i := len(rec.Phases) - 1; i >= 0; i-- {
			if d := decisionName(rec.Phases[i].Evaluation.FinalDecision); d != "" {
				decision = d
				break
			}
		}
	}

	return PolicyEvaluation{
		Filename:   filename,
		Timestamp:  rec.Timestamp,
		EventType:  rec.RawEvent.HookEventName,
		ToolName:   rec.RawEvent.ToolName,
		Decision:   decision,
		DurationMs: rec.TotalDurationMs,
		TraceID:    rec.TraceID,
	}, true
}
