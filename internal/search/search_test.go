package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sessionlens/sessionlens/internal/sessionindex"
)

func buildSnapshot(t *testing.T, content string) sessionindex.Snapshot {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "s1.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := sessionindex.Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx.Snapshot()
}

func TestSearch_EmptyQueryYieldsZeroResponse(t *testing.T) {
	snap := buildSnapshot(t, `{"type":"user","message":{"role":"user","content":"hello"}}`+"\n")
	resp, err := Search(snap, "   ", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) != 0 || resp.TotalSearched != 0 {
		t.Errorf("expected zero response, got %+v", resp)
	}
}

func TestSearch_S5TwoLinesOneMatches(t *testing.T) {
	content := `{"type":"user","message":{"role":"user","content":"error in bash"}}` + "\n" +
		`{"type":"user","message":{"role":"user","content":"error in python"}}` + "\n"
	snap := buildSnapshot(t, content)

	resp, err := Search(snap, "error AND bash", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", resp.Matches)
	}
	if resp.Matches[0].Sequence != 0 {
		t.Errorf("Sequence = %d, want 0", resp.Matches[0].Sequence)
	}
	if resp.TotalSearched != 2 {
		t.Errorf("TotalSearched = %d, want 2", resp.TotalSearched)
	}
}

func TestSearch_MaxResultsTruncates(t *testing.T) {
	var content string
	for i := 0; i < 10; i++ {
		content += `{"type":"user","message":{"role":"user","content":"needle here"}}` + "\n"
	}
	snap := buildSnapshot(t, content)

	resp, err := Search(snap, "needle", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(resp.Matches))
	}
	if !resp.Truncated {
		t.Error("expected Truncated=true")
	}
}

// The matcher runs over the raw line, so a key outside message.content
// (e.g. gitBranch) can produce a hit whose snippet necessarily falls back
// to the raw line, flagged via MatchedRawLine.
func TestSearch_MatchedRawLineWhenHitOutsideExtractedText(t *testing.T) {
	content := `{"type":"user","gitBranch":"feature-needle","message":{"role":"user","content":"unrelated text"}}` + "\n"
	snap := buildSnapshot(t, content)

	resp, err := Search(snap, "needle", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", resp.Matches)
	}
	if !resp.Matches[0].MatchedRawLine {
		t.Error("expected MatchedRawLine=true")
	}
}
