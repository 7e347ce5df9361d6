package search

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/sessionlens/sessionlens/internal/jsonl"
	"github.com/sessionlens/sessionlens/internal/sessionindex"
)

// DefaultMaxResults caps the number of matches returned before Truncated
// is set.
const DefaultMaxResults = 10000

// Match is one search hit.
type Match struct {
	Sequence   int    `json:"sequence"`
	ByteOffset int64  `json:"byteOffset"`
	Snippet    string `json:"snippet"`

	// MatchedRawLine is true when the query matched only the raw JSON
	// line and not the extracted preview text used to build the
	// snippet — the matcher and the snippet source deliberately diverge
	// (see Search); this flags when that happened for a given hit.
	MatchedRawLine bool `json:"matchedRawLine"`
}

// Response is the result of a search over a session's lines.
type Response struct {
	Matches       []Match `json:"matches"`
	TotalSearched int     `json:"totalSearched"`
	Truncated     bool    `json:"truncated"`
}

// Search runs queryStr over every line in snap, matching against each
// line's full raw JSON text and building snippets from extracted event
// text. Returns a zero Response if queryStr is empty or whitespace-only.
func Search(snap sessionindex.Snapshot, queryStr string, maxResults int) (Response, error) {
	q := Parse(queryStr)
	if q == nil {
		return Response{}, nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	file, err := os.Open(snap.Path)
	if err != nil {
		return Response{}, err
	}
	defer file.Close()

	terms := q.Terms()
	var resp Response

	for seq, lo := range snap.LineOffsets {
		raw, err := readLineAt(file, lo)
		if err != nil {
			continue
		}
		resp.TotalSearched++

		lowerLine := strings.ToLower(string(raw))
		if !q.Matches(lowerLine) {
			continue
		}

		snippetSource := extractSnippetSourceText(raw)
		matchesExtracted := q.Matches(strings.ToLower(snippetSource))

		snippet := ""
		if matchesExtracted {
			snippet = BuildSnippet(snippetSource, terms)
		}
		matchedRawLine := !matchesExtracted || snippet == ""
		if snippet == "" {
			snippet = BuildSnippet(string(raw), terms)
		}

		resp.Matches = append(resp.Matches, Match{
			Sequence:       seq,
			ByteOffset:     lo.ByteOffset,
			Snippet:        snippet,
			MatchedRawLine: matchedRawLine,
		})

		if len(resp.Matches) >= maxResults {
			resp.Truncated = true
			break
		}
	}

	return resp, nil
}

type rawSnippetLine struct {
	Message *rawSnippetMessage `json:"message"`
	Content string             `json:"content"`
	Summary string             `json:"summary"`
}

type rawSnippetMessage struct {
	Content json.RawMessage `json:"content"`
}

type rawSnippetBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// extractSnippetSourceText implements the snippet-source precedence rule:
// message.content → text/thinking/tool_use ("[name] <input>") → content
// → summary → the raw line itself.
func extractSnippetSourceText(raw []byte) string {
	var line rawSnippetLine
	if err := json.Unmarshal(raw, &line); err == nil {
		if line.Message != nil && len(line.Message.Content) > 0 {
			if text, ok := extractFromContent(line.Message.Content); ok {
				return text
			}
		}
		if line.Content != "" {
			return line.Content
		}
		if line.Summary != "" {
			return line.Summary
		}
	}
	return string(raw)
}

func extractFromContent(content json.RawMessage) (string, bool) {
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString, true
	}

	var blocks []rawSnippetBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return "", false
	}
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			return b.Text, true
		}
	}
	for _, b := range blocks {
		if b.Type == "thinking" && b.Thinking != "" {
			return b.Thinking, true
		}
	}
	for _, b := range blocks {
		if b.Type == "tool_use" {
			return "[" + b.Name + "] " + string(b.Input), true
		}
	}
	return "", false
}

func readLineAt(file *os.File, lo jsonl.LineOffset) ([]byte, error) {
	buf := make([]byte, lo.ByteLength)
	if _, err := file.ReadAt(buf, lo.ByteOffset); err != nil {
		return nil, err
	}
	n := len(buf)
	if n > 0 && buf[n-1] == '\n' {
		n--
		if n > 0 && buf[n-1] == '\r' {
			n--
		}
	}
	return buf[:n], nil
}
