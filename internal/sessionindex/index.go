// Package sessionindex builds and incrementally maintains the in-memory
// index of a single session JSONL file: line offsets, the UUID/parent
// graph, and per-file edit derivations. The index is mutated only by its
// owner (the watcher); concurrent readers take a Snapshot, a structural
// copy safe to use without holding the index's lock across I/O.
package sessionindex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sessionlens/sessionlens/internal/jsonl"
	"github.com/sessionlens/sessionlens/internal/sessionevent"
)

// EditType classifies how a file was touched within a session.
type EditType string

const (
	EditAdded    EditType = "Added"
	EditModified EditType = "Modified"
	EditDeleted  EditType = "Deleted" // reserved; never inferred by the engine
)

// FileEdit is a derived per-file-path summary of edits observed in a session.
type FileEdit struct {
	Path         string   `json:"path"`
	EditType     EditType `json:"editType"`
	LastEditedAt string   `json:"lastEditedAt,omitempty"`
}

// UpdateResult reports what an incremental update actually did.
type UpdateResult string

const (
	Unchanged UpdateResult = "Unchanged"
	Updated   UpdateResult = "Updated"
	Rebuilt   UpdateResult = "Rebuilt"
)

type editAccum struct {
	hadPriorContent bool
	lastEditedAt    string
}

// Index is the authoritative, mutable per-session structure. Build it once
// with Build, then call Update on each filesystem-change tick.
type Index struct {
	mu sync.RWMutex

	Path        string
	ProjectRoot string

	LineOffsets     []jsonl.LineOffset
	FileSize        int64
	LastMtime       time.Time
	FileEdits       []FileEdit
	FileToEditLines map[string][]int
	UUIDToLine      map[string]int
	ParentOf        map[string]string
	BuildError      string

	editState   map[string]*editAccum
	lastByte    byte
	hasLastByte bool
}

// Snapshot is a read-only structural copy of an Index, safe to hand to
// concurrent readers without holding the index's mutex during I/O.
type Snapshot struct {
	Path            string
	ProjectRoot     string
	LineOffsets     []jsonl.LineOffset
	FileSize        int64
	LastMtime       time.Time
	FileEdits       []FileEdit
	FileToEditLines map[string][]int
	UUIDToLine      map[string]int
	ParentOf        map[string]string
	BuildError      string
}

// Build performs the initial index construction for the session file at
// path, relativizing file-edit paths against projectRoot.
func Build(path, projectRoot string) (*Index, error) {
	idx := &Index{Path: path, ProjectRoot: projectRoot}
	if err := idx.rebuildLocked(); err != nil {
		idx.BuildError = err.Error()
		return idx, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	return idx, nil
}

// Update stats the file and either no-ops (Unchanged), appends the new
// tail (Updated), or falls back to a full rebuild (Rebuilt) when
// truncation or rewrite is detected.
func (idx *Index) Update() (UpdateResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	stat, err := os.Stat(idx.Path)
	if err != nil {
		return "", wrapOpenErr(idx.Path, err)
	}

	if stat.ModTime().Equal(idx.LastMtime) && stat.Size() == idx.FileSize {
		return Unchanged, nil
	}

	if stat.Size() < idx.FileSize {
		if err := idx.rebuildLocked(); err != nil {
			idx.BuildError = err.Error()
			return "", err
		}
		return Rebuilt, nil
	}

	if idx.FileSize > 0 && idx.hasLastByte {
		file, err := os.Open(idx.Path)
		if err != nil {
			return "", err
		}
		buf := make([]byte, 1)
		_, readErr := file.ReadAt(buf, idx.FileSize-1)
		file.Close()
		if readErr != nil || buf[0] != idx.lastByte {
			if err := idx.rebuildLocked(); err != nil {
				idx.BuildError = err.Error()
				return "", err
			}
			return Rebuilt, nil
		}
	}

	if err := idx.appendLocked(stat); err != nil {
		idx.BuildError = err.Error()
		return "", err
	}
	return Updated, nil
}

func (idx *Index) rebuildLocked() error {
	file, err := os.Open(idx.Path)
	if err != nil {
		return wrapOpenErr(idx.Path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	idx.LineOffsets = nil
	idx.UUIDToLine = make(map[string]int)
	idx.ParentOf = make(map[string]string)
	idx.FileToEditLines = make(map[string][]int)
	idx.editState = make(map[string]*editAccum)
	idx.BuildError = ""

	reader := jsonl.NewReader(file, 0)
	var pos int64
	seq := 0
	for {
		line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapReadErr(err)
		}
		idx.LineOffsets = append(idx.LineOffsets, jsonl.LineOffset{ByteOffset: pos, ByteLength: int64(line.BytesRead)})
		idx.indexLine(seq, pos, line.Data)
		pos += int64(line.BytesRead)
		seq++
	}

	idx.deriveFileEdits()
	idx.FileSize = stat.Size()
	idx.LastMtime = stat.ModTime()
	idx.refreshLastByte(file)
	return nil
}

func (idx *Index) appendLocked(stat os.FileInfo) error {
	file, err := os.Open(idx.Path)
	if err != nil {
		return wrapOpenErr(idx.Path, err)
	}
	defer file.Close()

	if _, err := file.Seek(idx.FileSize, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	reader := jsonl.NewReader(file, 0)
	pos := idx.FileSize
	seq := len(idx.LineOffsets)
	for {
		line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapReadErr(err)
		}
		idx.LineOffsets = append(idx.LineOffsets, jsonl.LineOffset{ByteOffset: pos, ByteLength: int64(line.BytesRead)})
		idx.indexLine(seq, pos, line.Data)
		pos += int64(line.BytesRead)
		seq++
	}

	idx.deriveFileEdits()
	idx.FileSize = stat.Size()
	idx.LastMtime = stat.ModTime()
	idx.refreshLastByte(file)
	return nil
}

func (idx *Index) refreshLastByte(file *os.File) {
	if idx.FileSize == 0 {
		idx.hasLastByte = false
		return
	}
	buf := make([]byte, 1)
	if _, err := file.ReadAt(buf, idx.FileSize-1); err == nil {
		idx.lastByte = buf[0]
		idx.hasLastByte = true
	}
}

func (idx *Index) indexLine(seq int, offset int64, raw []byte) {
	ev, ok := sessionevent.ParseLine(seq, offset, raw)
	if !ok {
		return
	}

	if ev.UUID != "" {
		if _, exists := idx.UUIDToLine[ev.UUID]; !exists {
			idx.UUIDToLine[ev.UUID] = seq
		}
		if ev.ParentUUID != "" {
			idx.ParentOf[ev.UUID] = ev.ParentUUID
		}
	}

	if ev.EventType != "assistant" {
		return
	}

	for _, edit := range ExtractToolUseEdits(raw) {
		relPath := RelativizePath(edit.FilePath, idx.ProjectRoot)
		idx.FileToEditLines[relPath] = append(idx.FileToEditLines[relPath], seq)

		acc, exists := idx.editState[relPath]
		if !exists {
			acc = &editAccum{}
			idx.editState[relPath] = acc
		}
		if edit.Timestamp != "" {
			acc.lastEditedAt = edit.Timestamp
		}
		if edit.ToolName == "Edit" && edit.OldString != "" {
			acc.hadPriorContent = true
		}
	}
}

func (idx *Index) deriveFileEdits() {
	paths := make([]string, 0, len(idx.editState))
	for p := range idx.editState {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	edits := make([]FileEdit, 0, len(paths))
	for _, p := range paths {
		acc := idx.editState[p]
		editType := EditAdded
		if acc.hadPriorContent {
			editType = EditModified
		}
		edits = append(edits, FileEdit{Path: p, EditType: editType, LastEditedAt: acc.lastEditedAt})
	}
	idx.FileEdits = edits
}

// Snapshot returns a structural copy of the index's current state.
func (idx *Index) Snapshot() Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	lineOffsets := make([]jsonl.LineOffset, len(idx.LineOffsets))
	copy(lineOffsets, idx.LineOffsets)

	fileEdits := make([]FileEdit, len(idx.FileEdits))
	copy(fileEdits, idx.FileEdits)

	fileToEditLines := make(map[string][]int, len(idx.FileToEditLines))
	for k, v := range idx.FileToEditLines {
		lines := make([]int, len(v))
		copy(lines, v)
		fileToEditLines[k] = lines
	}

	uuidToLine := make(map[string]int, len(idx.UUIDToLine))
	for k, v := range idx.UUIDToLine {
		uuidToLine[k] = v
	}

	parentOf := make(map[string]string, len(idx.ParentOf))
	for k, v := range idx.ParentOf {
		parentOf[k] = v
	}

	return Snapshot{
		Path:            idx.Path,
		ProjectRoot:     idx.ProjectRoot,
		LineOffsets:     lineOffsets,
		FileSize:        idx.FileSize,
		LastMtime:       idx.LastMtime,
		FileEdits:       fileEdits,
		FileToEditLines: fileToEditLines,
		UUIDToLine:      uuidToLine,
		ParentOf:        parentOf,
		BuildError:      idx.BuildError,
	}
}

// RelativizePath strips projectRoot (and one leading separator) from p.
// If p does not start with projectRoot, p is returned verbatim. Applying
// RelativizePath twice with the same projectRoot is idempotent.
func RelativizePath(p, projectRoot string) string {
	if projectRoot == "" {
		return p
	}
	cleanRoot := filepath.Clean(projectRoot)
	cleanPath := filepath.Clean(p)
	if cleanPath == cleanRoot {
		return p
	}
	prefix := cleanRoot + string(filepath.Separator)
	if !strings.HasPrefix(cleanPath, prefix) {
		return p
	}
	return strings.TrimPrefix(cleanPath, prefix)
}

func wrapOpenErr(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

func wrapReadErr(err error) error {
	if errors.Is(err, jsonl.ErrLineTooLong) {
		return fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
