// Package query implements the read-only operations that serve paginated
// event retrieval, raw-JSON lookups, file-edit/diff extraction, and
// parent-chain edit-context walks over a session's index snapshot.
//
// All operations take a sessionindex.Snapshot rather than a live *Index:
// callers clone a handle under the index's mutex and then run I/O and
// parsing without holding that lock, per the engine's concurrency model.
package query

import (
	"errors"
	"io"
	"os"

	"github.com/sessionlens/sessionlens/internal/jsonl"
	"github.com/sessionlens/sessionlens/internal/sessionevent"
	"github.com/sessionlens/sessionlens/internal/sessionindex"
)

// ErrNotFound is returned when a requested file/edit-index has no match.
var ErrNotFound = errors.New("query: not found")

// DefaultLimit is applied by GetEvents when the caller passes limit <= 0.
const DefaultLimit = 200

// EventsPage is the result of a paginated newest-first event read.
type EventsPage struct {
	Events     []*sessionevent.Event
	TotalCount int
	Offset     int
	HasMore    bool
}

// GetEvents returns up to limit events in newest-first order starting
// after offset already-seen (newest) events.
func GetEvents(snap sessionindex.Snapshot, offset, limit int) (EventsPage, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	total := len(snap.LineOffsets)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return EventsPage{TotalCount: total, Offset: offset, HasMore: false}, nil
	}

	take := limit
	if total-offset < take {
		take = total - offset
	}

	file, err := os.Open(snap.Path)
	if err != nil {
		return EventsPage{}, err
	}
	defer file.Close()

	events := make([]*sessionevent.Event, 0, take)
	for i := 0; i < take; i++ {
		lineIdx := total - offset - 1 - i
		lo := snap.LineOffsets[lineIdx]
		raw, err := readLineAt(file, lo)
		if err != nil {
			continue
		}
		if ev, ok := sessionevent.ParseLine(lineIdx, lo.ByteOffset, raw); ok {
			events = append(events, ev)
		}
	}

	return EventsPage{
		Events:     events,
		TotalCount: total,
		Offset:     offset,
		HasMore:    offset+take < total,
	}, nil
}

// GetRawJSON seeks to byteOffset and returns that line's raw text with any
// trailing "\n"/"\r\n" stripped. Returns ("", false) on any I/O failure.
func GetRawJSON(path string, byteOffset int64) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	if _, err := file.Seek(byteOffset, io.SeekStart); err != nil {
		return "", false
	}
	reader := jsonl.NewReader(file, 0)
	line, err := reader.Next()
	if err != nil {
		return "", false
	}
	return string(line.Data), true
}

// SeqOffset pairs a line's sequence number with its byte offset, the unit
// GetEventsByOffsets reads by.
type SeqOffset struct {
	Sequence   int
	ByteOffset int64
}

// GetEventsByOffsets reads and parses each pair's line, preserving input
// order. Pairs that fail to read or parse are skipped.
func GetEventsByOffsets(path string, pairs []SeqOffset) []*sessionevent.Event {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var out []*sessionevent.Event
	for _, p := range pairs {
		if _, err := file.Seek(p.ByteOffset, io.SeekStart); err != nil {
			continue
		}
		reader := jsonl.NewReader(file, 0)
		line, err := reader.Next()
		if err != nil {
			continue
		}
		if ev, ok := sessionevent.ParseLine(p.Sequence, p.ByteOffset, line.Data); ok {
			out = append(out, ev)
		}
	}
	return out
}

// GetFileEdits returns a copy of the snapshot's derived file edits.
func GetFileEdits(snap sessionindex.Snapshot) []sessionindex.FileEdit {
	out := make([]sessionindex.FileEdit, len(snap.FileEdits))
	copy(out, snap.FileEdits)
	return out
}

// FileDiff is one ordered Edit/Write operation against a single file.
type FileDiff struct {
	OldString string
	NewString string
	Sequence  int
	Timestamp string
}

// GetFileDiffs scans only the lines recorded in FileToEditLines for
// relFilePath (a line-index acceleration over a full file scan), returning
// the ordered Edit/Write operations against that path.
func GetFileDiffs(projectRoot, relFilePath string, snap sessionindex.Snapshot) ([]FileDiff, error) {
	lines, ok := snap.FileToEditLines[relFilePath]
	if !ok {
		return nil, nil
	}

	file, err := os.Open(snap.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var diffs []FileDiff
	seq := 0
	for _, lineIdx := range lines {
		if lineIdx < 0 || lineIdx >= len(snap.LineOffsets) {
			continue
		}
		raw, err := readLineAt(file, snap.LineOffsets[lineIdx])
		if err != nil {
			continue
		}
		for _, edit := range sessionindex.ExtractToolUseEdits(raw) {
			if sessionindex.RelativizePath(edit.FilePath, projectRoot) != relFilePath {
				continue
			}
			diffs = append(diffs, FileDiff{
				OldString: edit.OldString,
				NewString: edit.NewString,
				Sequence:  seq,
				Timestamp: edit.Timestamp,
			})
			seq++
		}
	}
	return diffs, nil
}

// GetEditContext walks the parent-chain from the edit-index-th recorded
// edit of relFilePath, collecting ancestors until it reaches a user event
// with userType "external" or the chain terminates. The returned chain is
// ordered from that external-user ancestor (inclusive, if found) down to
// the edit event itself.
func GetEditContext(snap sessionindex.Snapshot, relFilePath string, editIndex int) ([]*sessionevent.Event, error) {
	lines, ok := snap.FileToEditLines[relFilePath]
	if !ok || editIndex < 0 || editIndex >= len(lines) {
		return nil, ErrNotFound
	}

	file, err := os.Open(snap.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	editLine := lines[editIndex]
	editEvent, err := readEventAt(file, snap, editLine)
	if err != nil {
		return nil, ErrNotFound
	}

	chain := []*sessionevent.Event{editEvent}
	visited := map[string]bool{}
	currentUUID := editEvent.UUID

	for {
		parentUUID, ok := snap.ParentOf[currentUUID]
		if !ok || visited[parentUUID] {
			break
		}
		visited[parentUUID] = true

		parentLine, ok := snap.UUIDToLine[parentUUID]
		if !ok {
			break
		}
		parentEvent, err := readEventAt(file, snap, parentLine)
		if err != nil {
			break
		}

		chain = append([]*sessionevent.Event{parentEvent}, chain...)
		currentUUID = parentEvent.UUID

		if parentEvent.EventType == "user" && parentEvent.UserType == "external" {
			break
		}
	}

	return chain, nil
}

func readEventAt(file *os.File, snap sessionindex.Snapshot, lineIdx int) (*sessionevent.Event, error) {
	if lineIdx < 0 || lineIdx >= len(snap.LineOffsets) {
		return nil, ErrNotFound
	}
	lo := snap.LineOffsets[lineIdx]
	raw, err := readLineAt(file, lo)
	if err != nil {
		return nil, err
	}
	ev, ok := sessionevent.ParseLine(lineIdx, lo.ByteOffset, raw)
	if !ok {
		return nil, ErrNotFound
	}
	return ev, nil
}

func readLineAt(file *os.File, lo jsonl.LineOffset) ([]byte, error) {
	buf := make([]byte, lo.ByteLength)
	if _, err := file.ReadAt(buf, lo.ByteOffset); err != nil {
		return nil, err
	}
	return trimNewline(buf), nil
}

func trimNewline(b []byte) []byte {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
		if n > 0 && b[n-1] == '\r' {
			n--
		}
	}
	return b[:n]
}
