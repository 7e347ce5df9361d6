package sessionindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSessionFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild_LineOffsetTotality(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}` + "\n" +
		`{"type":"assistant","uuid":"u2","parentUuid":"u1","message":{"role":"assistant","content":"ok"}}` + "\n"
	path := writeSessionFile(t, dir, "s1.jsonl", content)

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var total int64
	for _, o := range idx.LineOffsets {
		total += o.ByteLength
	}
	if total != int64(len(content)) {
		t.Errorf("sum of byte lengths = %d, want %d", total, len(content))
	}
	if len(idx.LineOffsets) > 0 && idx.LineOffsets[0].ByteOffset != 0 {
		t.Errorf("first offset = %d, want 0", idx.LineOffsets[0].ByteOffset)
	}
}

func TestBuild_UUIDToLineAndParentOf(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}` + "\n" +
		`{"type":"assistant","uuid":"u2","parentUuid":"u1","message":{"role":"assistant","content":"ok"}}` + "\n"
	path := writeSessionFile(t, dir, "s1.jsonl", content)

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if idx.UUIDToLine["u1"] != 0 || idx.UUIDToLine["u2"] != 1 {
		t.Errorf("UUIDToLine = %+v", idx.UUIDToLine)
	}
	if idx.ParentOf["u2"] != "u1" {
		t.Errorf("ParentOf[u2] = %q, want u1", idx.ParentOf["u2"])
	}
}

func TestBuild_DuplicateUUIDKeepsSmallestLine(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user","uuid":"dup","message":{"role":"user","content":"first"}}` + "\n" +
		`{"type":"user","uuid":"dup","message":{"role":"user","content":"second"}}` + "\n"
	path := writeSessionFile(t, dir, "s1.jsonl", content)

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.UUIDToLine["dup"] != 0 {
		t.Errorf("UUIDToLine[dup] = %d, want 0", idx.UUIDToLine["dup"])
	}
}

// S3 File edits: Write then Edit with non-empty old_string -> Modified.
func TestBuild_S3WriteThenEditIsModified(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"assistant","uuid":"u1","message":{"role":"assistant","content":[{"type":"tool_use","name":"Write","input":{"file_path":"/proj/src/a.rs","content":"x"}}]}}` + "\n" +
		`{"type":"assistant","uuid":"u2","parentUuid":"u1","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/proj/src/a.rs","old_string":"x","new_string":"y"}}]}}` + "\n"
	path := writeSessionFile(t, dir, "s1.jsonl", content)

	idx, err := Build(path, "/proj")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(idx.FileEdits) != 1 {
		t.Fatalf("expected 1 file edit, got %+v", idx.FileEdits)
	}
	if idx.FileEdits[0].Path != "src/a.rs" {
		t.Errorf("Path = %q, want src/a.rs", idx.FileEdits[0].Path)
	}
	if idx.FileEdits[0].EditType != EditModified {
		t.Errorf("EditType = %q, want Modified", idx.FileEdits[0].EditType)
	}
}

// S4 Added vs Modified: only Write with no prior Edit having non-empty old_string -> Added.
func TestBuild_S4WriteOnlyIsAdded(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"assistant","uuid":"u1","message":{"role":"assistant","content":[{"type":"tool_use","name":"Write","input":{"file_path":"/proj/src/b.rs","content":"x"}}]}}` + "\n"
	path := writeSessionFile(t, dir, "s1.jsonl", content)

	idx, err := Build(path, "/proj")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(idx.FileEdits) != 1 || idx.FileEdits[0].EditType != EditAdded {
		t.Fatalf("expected single Added edit, got %+v", idx.FileEdits)
	}
}

func TestUpdate_Unchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeSessionFile(t, dir, "s1.jsonl", `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}`+"\n")

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result, err := idx.Update()
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result != Unchanged {
		t.Errorf("result = %q, want Unchanged", result)
	}
}

func TestUpdate_AppendedTail(t *testing.T) {
	dir := t.TempDir()
	path := writeSessionFile(t, dir, "s1.jsonl", `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}`+"\n")

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(idx.LineOffsets) != 1 {
		t.Fatalf("expected 1 line after build, got %d", len(idx.LineOffsets))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"type":"assistant","uuid":"u2","parentUuid":"u1","message":{"role":"assistant","content":"ok"}}` + "\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// Ensure mtime actually advances on fast filesystems.
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(path, future, future)

	result, err := idx.Update()
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result != Updated {
		t.Errorf("result = %q, want Updated", result)
	}
	if len(idx.LineOffsets) != 2 {
		t.Errorf("expected 2 lines after update, got %d", len(idx.LineOffsets))
	}
	if idx.UUIDToLine["u2"] != 1 {
		t.Errorf("UUIDToLine[u2] = %d, want 1", idx.UUIDToLine["u2"])
	}
}

func TestUpdate_TruncationForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	path := writeSessionFile(t, dir, "s1.jsonl",
		`{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}`+"\n"+
			`{"type":"user","uuid":"u2","message":{"role":"user","content":"bye"}}`+"\n")

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(idx.LineOffsets) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(idx.LineOffsets))
	}

	if err := os.WriteFile(path, []byte(`{"type":"user","uuid":"u3","message":{"role":"user","content":"new"}}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(path, future, future)

	result, err := idx.Update()
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result != Rebuilt {
		t.Errorf("result = %q, want Rebuilt", result)
	}
	if len(idx.LineOffsets) != 1 {
		t.Errorf("expected 1 line after rebuild, got %d", len(idx.LineOffsets))
	}
}

func TestRelativizePath(t *testing.T) {
	tests := []struct {
		path, root, want string
	}{
		{"/proj/src/a.rs", "/proj", "src/a.rs"},
		{"/other/src/a.rs", "/proj", "/other/src/a.rs"},
		{"/proj", "/proj", "/proj"},
	}
	for _, tt := range tests {
		got := RelativizePath(tt.path, tt.root)
		if got != tt.want {
			t.Errorf("RelativizePath(%q, %q) = %q, want %q", tt.path, tt.root, got, tt.want)
		}
	}
}

func TestRelativizePath_Idempotent(t *testing.T) {
	once := RelativizePath("/proj/src/a.rs", "/proj")
	twice := RelativizePath(once, "/proj")
	if once != twice {
		t.Errorf("not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestSnapshot_IndependentOfSubsequentMutation(t *testing.T) {
	dir := t.TempDir()
	path := writeSessionFile(t, dir, "s1.jsonl", `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}`+"\n")

	idx, err := Build(path, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	snap := idx.Snapshot()
	if len(snap.LineOffsets) != 1 {
		t.Fatalf("expected 1 line offset in snapshot, got %d", len(snap.LineOffsets))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"type":"user","uuid":"u2","message":{"role":"user","content":"more"}}` + "\n")
	f.Close()
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(path, future, future)

	if _, err := idx.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(snap.LineOffsets) != 1 {
		t.Errorf("snapshot mutated after Update: %d offsets", len(snap.LineOffsets))
	}
}
