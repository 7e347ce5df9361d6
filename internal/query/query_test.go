package query

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sessionlens/sessionlens/internal/sessionindex"
)

func buildIndex(t *testing.T, dir, content, projectRoot string) *sessionindex.Index {
	t.Helper()
	path := filepath.Join(dir, "s1.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := sessionindex.Build(path, projectRoot)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

// S1 Pagination: a session with 3 lines L0,L1,L2.
func TestGetEvents_S1Pagination(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user","uuid":"u0","message":{"role":"user","content":"zero"}}` + "\n" +
		`{"type":"user","uuid":"u1","message":{"role":"user","content":"one"}}` + "\n" +
		`{"type":"user","uuid":"u2","message":{"role":"user","content":"two"}}` + "\n"
	idx := buildIndex(t, dir, content, dir)
	snap := idx.Snapshot()

	page, err := GetEvents(snap, 0, 2)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(page.Events) != 2 || page.Events[0].Sequence != 2 || page.Events[1].Sequence != 1 {
		t.Fatalf("unexpected page: %+v", page.Events)
	}
	if !page.HasMore {
		t.Error("expected HasMore=true")
	}

	page, err = GetEvents(snap, 2, 2)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].Sequence != 0 {
		t.Fatalf("unexpected page: %+v", page.Events)
	}
	if page.HasMore {
		t.Error("expected HasMore=false")
	}
}

// S2 Raw JSON: file "a\nb\r\nc". get_raw_json(2) == "b", get_raw_json(5) == "c".
func TestGetRawJSON_S2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.txt")
	if err := os.WriteFile(path, []byte("a\nb\r\nc"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := GetRawJSON(path, 2)
	if !ok || got != "b" {
		t.Errorf("GetRawJSON(2) = %q, %v, want %q, true", got, ok, "b")
	}
	got, ok = GetRawJSON(path, 5)
	if !ok || got != "c" {
		t.Errorf("GetRawJSON(5) = %q, %v, want %q, true", got, ok, "c")
	}
}

// S6 Edit context: E parent=B, B parent=A, A user external.
func TestGetEditContext_S6(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user","uuid":"A","userType":"external","message":{"role":"user","content":"start"}}` + "\n" +
		`{"type":"assistant","uuid":"B","parentUuid":"A","message":{"role":"assistant","content":"thinking"}}` + "\n" +
		`{"type":"assistant","uuid":"E","parentUuid":"B","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/proj/a.go","old_string":"x","new_string":"y"}}]}}` + "\n"
	idx := buildIndex(t, dir, content, "/proj")
	snap := idx.Snapshot()

	chain, err := GetEditContext(snap, "a.go", 0)
	if err != nil {
		t.Fatalf("GetEditContext: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3, got %d: %+v", len(chain), chain)
	}
	if chain[0].UUID != "A" || chain[1].UUID != "B" || chain[2].UUID != "E" {
		t.Errorf("chain order = [%s,%s,%s], want [A,B,E]", chain[0].UUID, chain[1].UUID, chain[2].UUID)
	}
}

func TestGetEditContext_OutOfRange(t *testing.T) {
	dir := t.TempDir()
	idx := buildIndex(t, dir, `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}`+"\n", dir)
	snap := idx.Snapshot()

	_, err := GetEditContext(snap, "nonexistent.go", 0)
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetFileDiffs_S3Shape(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"assistant","uuid":"u1","timestamp":"t1","message":{"role":"assistant","content":[{"type":"tool_use","name":"Write","input":{"file_path":"/proj/src/a.rs","content":"x"}}]}}` + "\n" +
		`{"type":"assistant","uuid":"u2","timestamp":"t2","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/proj/src/a.rs","old_string":"x","new_string":"y"}}]}}` + "\n"
	idx := buildIndex(t, dir, content, "/proj")
	snap := idx.Snapshot()

	diffs, err := GetFileDiffs("/proj", "src/a.rs", snap)
	if err != nil {
		t.Fatalf("GetFileDiffs: %v", err)
	}
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs, got %+v", diffs)
	}
	if diffs[0].NewString != "x" || diffs[0].Sequence != 0 {
		t.Errorf("diffs[0] = %+v", diffs[0])
	}
	if diffs[1].OldString != "x" || diffs[1].NewString != "y" || diffs[1].Sequence != 1 {
		t.Errorf("diffs[1] = %+v", diffs[1])
	}
}

func TestGetEventsByOffsets_PreservesOrderAndSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user","uuid":"u0","message":{"role":"user","content":"zero"}}` + "\n" +
		`{"type":"user","uuid":"u1","message":{"role":"user","content":"one"}}` + "\n"
	idx := buildIndex(t, dir, content, dir)

	pairs := []SeqOffset{
		{Sequence: 1, ByteOffset: idx.LineOffsets[1].ByteOffset},
		{Sequence: 0, ByteOffset: idx.LineOffsets[0].ByteOffset},
		{Sequence: 99, ByteOffset: 999999},
	}
	events := GetEventsByOffsets(idx.Path, pairs)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Sequence != 1 || events[1].Sequence != 0 {
		t.Errorf("order mismatch: %d, %d", events[0].Sequence, events[1].Sequence)
	}
}
