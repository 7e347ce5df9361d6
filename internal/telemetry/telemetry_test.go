package telemetry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEvalFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDir(t *testing.T) {
	got := Dir("/Users/alice/proj")
	want := filepath.Join("/Users/alice/proj", ".cupcake", "telemetry")
	if got != want {
		t.Errorf("Dir = %q, want %q", got, want)
	}
}

func TestListPolicyEvaluations_DecisionFromResponse(t *testing.T) {
	project := t.TempDir()
	dir := Dir(project)
	content := `{
		"timestamp": "2026-07-29T10:00:00Z",
		"trace_id": "trace-1",
		"total_duration_ms": 42,
		"raw_event": {"hook_event_name": "PreToolUse", "tool_name": "Bash"},
		"response": {"decision": {"allow": {}}},
		"phases": []
	}`
	writeEvalFile(t, dir, "eval1.json", content)

	evals, err := ListPolicyEvaluations(project)
	if err != nil {
		t.Fatalf("ListPolicyEvaluations: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
	e := evals[0]
	if e.Filename != "eval1.json" {
		t.Errorf("Filename = %q", e.Filename)
	}
	if e.Decision != "allow" {
		t.Errorf("Decision = %q, want allow", e.Decision)
	}
	if e.ToolName != "Bash" {
		t.Errorf("ToolName = %q", e.ToolName)
	}
	if e.EventType != "PreToolUse" {
		t.Errorf("EventType = %q", e.EventType)
	}
	if e.DurationMs != 42 {
		t.Errorf("DurationMs = %d", e.DurationMs)
	}
	if e.TraceID != "trace-1" {
		t.Errorf("TraceID = %q", e.TraceID)
	}
}

func TestListPolicyEvaluations_DecisionFallsBackToLastPhase(t *testing.T) {
	project := t.TempDir()
	dir := Dir(project)
	content := `{
		"timestamp": "2026-07-29T11:00:00Z",
		"trace_id": "trace-2",
		"total_duration_ms": 10,
		"raw_event": {"hook_event_name": "PreToolUse"},
		"response": {},
		"phases": [
			{"evaluation": {"final_decision": {"ask": {}}}},
			{"evaluation": {"final_decision": {"deny": {"reason": "policy"}}}}
		]
	}`
	writeEvalFile(t, dir, "eval2.json", content)

	evals, err := ListPolicyEvaluations(project)
	if err != nil {
		t.Fatalf("ListPolicyEvaluations: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
	if evals[0].Decision != "deny" {
		t.Errorf("Decision = %q, want deny (last phase)", evals[0].Decision)
	}
}

func TestListPolicyEvaluations_SortedNewestFirst(t *testing.T) {
	project := t.TempDir()
	dir := Dir(project)
	writeEvalFile(t, dir, "early.json", `{"timestamp":"2026-07-29T09:00:00Z","trace_id":"a"}`)
	writeEvalFile(t, dir, "late.json", `{"timestamp":"2026-07-29T12:00:00Z","trace_id":"b"}`)

	evals, err := ListPolicyEvaluations(project)
	if err != nil {
		t.Fatalf("ListPolicyEvaluations: %v", err)
	}
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
	if evals[0].Filename != "late.json" || evals[1].Filename != "early.json" {
		t.Errorf("expected newest-first order, got %+v", evals)
	}
}

func TestListPolicyEvaluations_SkipsNonJSONAndMalformed(t *testing.T) {
	project := t.TempDir()
	dir := Dir(project)
	writeEvalFile(t, dir, "notes.txt", "ignore me")
	writeEvalFile(t, dir, "broken.json", "{not valid json")
	writeEvalFile(t, dir, "good.json", `{"timestamp":"2026-07-29T09:00:00Z","trace_id":"a"}`)

	evals, err := ListPolicyEvaluations(project)
	if err != nil {
		t.Fatalf("ListPolicyEvaluations: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation (malformed/non-json skipped), got %d: %+v", len(evals), evals)
	}
}

func TestListPolicyEvaluations_NoDirReturnsNil(t *testing.T) {
	project := t.TempDir()
	evals, err := ListPolicyEvaluations(project)
	if err != nil {
		t.Fatalf("ListPolicyEvaluations: %v", err)
	}
	if evals != nil {
		t.Errorf("expected nil, got %+v", evals)
	}
}

func TestGetPolicyEvaluation_Found(t *testing.T) {
	project := t.TempDir()
	dir := Dir(project)
	writeEvalFile(t, dir, "eval.json", `{"timestamp":"2026-07-29T09:00:00Z","trace_id":"a","response":{"decision":{"allow":{}}}}`)

	eval, ok := GetPolicyEvaluation(project, "eval.json")
	if !ok {
		t.Fatal("expected evaluation found")
	}
	if eval.Decision != "allow" {
		t.Errorf("Decision = %q", eval.Decision)
	}
}

func TestGetPolicyEvaluation_NotFound(t *testing.T) {
	project := t.TempDir()
	_, ok := GetPolicyEvaluation(project, "missing.json")
	if ok {
		t.Fatal("expected not found")
	}
}
