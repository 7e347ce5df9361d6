// Package sessionevent parses a single line of a session JSONL file into a
// normalized Event record, extracting only the fields the engine needs for
// indexing and preview. Unknown fields are ignored; malformed lines yield
// (nil, false) rather than an error, since a single bad line must never
// abort indexing of the rest of the file.
package sessionevent

import "encoding/json"

// previewMaxChars bounds Event.Preview to the extraction rule's ≤500 char
// limit (char-count, not byte-count — never split a UTF-8 scalar).
const previewMaxChars = 500

// CompactMetadata carries the context-compaction fields passed through
// from a system event of subtype compact_boundary.
type CompactMetadata struct {
	Trigger   string `json:"trigger,omitempty"`
	PreTokens int     `json:"preTokens,omitempty"`
}

// Event is one normalized line of a session JSONL file.
type Event struct {
	Sequence   int    `json:"sequence"`
	ByteOffset int64  `json:"byteOffset"`
	UUID       string `json:"uuid,omitempty"`
	ParentUUID string `json:"parentUuid,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	EventType  string `json:"eventType"`
	Subtype    string `json:"subtype,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Preview    string `json:"preview"`

	CompactMetadata *CompactMetadata `json:"compactMetadata,omitempty"`
	Summary         string           `json:"summary,omitempty"`

	LogicalParentUUID string `json:"logicalParentUuid,omitempty"`
	LeafUUID          string `json:"leafUuid,omitempty"`

	LaunchedAgentID          string `json:"launchedAgentId,omitempty"`
	LaunchedAgentDescription string `json:"launchedAgentDescription,omitempty"`
	LaunchedAgentPrompt      string `json:"launchedAgentPrompt,omitempty"`
	LaunchedAgentIsAsync     bool   `json:"launchedAgentIsAsync,omitempty"`
	LaunchedAgentStatus      string `json:"launchedAgentStatus,omitempty"`

	UserType         string `json:"userType,omitempty"`
	IsCompactSummary bool   `json:"isCompactSummary,omitempty"`
	IsToolResult     bool   `json:"isToolResult"`
	IsMeta           bool   `json:"isMeta"`
}

type rawLine struct {
	Type               string           `json:"type"`
	UUID               string           `json:"uuid"`
	ParentUUID         string           `json:"parentUuid"`
	Timestamp          string           `json:"timestamp"`
	Subtype            string           `json:"subtype"`
	Message            *rawMessage      `json:"message"`
	Content            string           `json:"content"`
	Summary            string           `json:"summary"`
	LogicalParentUUID  string           `json:"logicalParentUuid"`
	LeafUUID           string           `json:"leafUuid"`
	CompactMetadata    *rawCompact      `json:"compactMetadata"`
	ToolUseResult      *rawToolUseResult `json:"toolUseResult"`
	UserType           string           `json:"userType"`
	IsCompactSummary   bool             `json:"isCompactSummary"`
	IsMeta             bool             `json:"isMeta"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Content   json.RawMessage `json:"content"`
	ToolUseID string          `json:"tool_use_id"`
}

type rawCompact struct {
	Trigger   string `json:"trigger"`
	PreTokens int    `json:"preTokens"`
}

type rawToolUseResult struct {
	AgentID     string `json:"agentId"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	IsAsync     bool   `json:"isAsync"`
	Status      string `json:"status"`
}

// ParseLine parses a single JSONL line into a normalized Event. seq and
// offset are supplied by the caller (the line's index and byte position
// within the file); they are not derivable from the line content itself.
// Returns (nil, false) if the line does not decode as a JSON object.
func ParseLine(seq int, offset int64, raw []byte) (*Event, bool) {
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return nil, false
	}

	var rl rawLine
	if err := json.Unmarshal(raw, &rl); err != nil {
		return nil, false
	}

	eventType := rl.Type
	if eventType == "" {
		eventType = "unknown"
	}

	ev := &Event{
		Sequence:          seq,
		ByteOffset:        offset,
		UUID:              rl.UUID,
		ParentUUID:        rl.ParentUUID,
		Timestamp:         rl.Timestamp,
		EventType:         eventType,
		Subtype:           rl.Subtype,
		LogicalParentUUID: rl.LogicalParentUUID,
		LeafUUID:          rl.LeafUUID,
		UserType:          rl.UserType,
		IsCompactSummary:  rl.IsCompactSummary,
		IsMeta:            rl.IsMeta,
	}

	if rl.CompactMetadata != nil {
		ev.CompactMetadata = &CompactMetadata{
			Trigger:   rl.CompactMetadata.Trigger,
			PreTokens: rl.CompactMetadata.PreTokens,
		}
	}
	if rl.ToolUseResult != nil {
		ev.LaunchedAgentID = rl.ToolUseResult.AgentID
		ev.LaunchedAgentDescription = rl.ToolUseResult.Description
		ev.LaunchedAgentPrompt = rl.ToolUseResult.Prompt
		ev.LaunchedAgentIsAsync = rl.ToolUseResult.IsAsync
		ev.LaunchedAgentStatus = rl.ToolUseResult.Status
	}

	switch eventType {
	case "user", "assistant":
		if rl.Message != nil {
			preview, toolName, isToolResult := extractMessagePreview(rl.Message.Content)
			ev.Preview = preview
			ev.ToolName = toolName
			ev.IsToolResult = isToolResult
		}
	case "system":
		ev.Preview = truncateString(rl.Content, previewMaxChars)
	case "summary":
		ev.Summary = rl.Summary
		ev.Preview = truncateString(rl.Summary, previewMaxChars)
	}

	return ev, true
}

// extractMessagePreview implements the message.content extraction rule:
// a plain string wins outright; an array prefers text, then thinking, then
// tool_use, then tool_result, then falls back to stringifying the first
// element. tool_name is the comma-joined list of a literal "thinking" token
// (if any thinking block is present) followed by each tool_use block's name.
func extractMessagePreview(content json.RawMessage) (preview string, toolName string, isToolResult bool) {
	if len(content) == 0 {
		return "", "", false
	}

	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return truncateString(asString, previewMaxChars), "", false
	}

	var blocks []rawContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return "", "", false
	}
	if len(blocks) == 0 {
		return "", "", false
	}

	var toolNames []string
	hasThinking := false
	for _, b := range blocks {
		switch b.Type {
		case "thinking":
			hasThinking = true
		case "tool_use":
			toolNames = append(toolNames, b.Name)
		case "tool_result":
			isToolResult = true
		}
	}

	var names []string
	if hasThinking {
		names = append(names, "thinking")
	}
	names = append(names, toolNames...)
	toolName = joinComma(names)

	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			return truncateString(b.Text, previewMaxChars), toolName, isToolResult
		}
	}
	for _, b := range blocks {
		if b.Type == "thinking" && b.Thinking != "" {
			return truncateString(b.Thinking, previewMaxChars), toolName, isToolResult
		}
	}
	for _, b := range blocks {
		if b.Type == "tool_use" {
			return "[Tool: " + b.Name + "]", toolName, isToolResult
		}
	}
	for _, b := range blocks {
		if b.Type == "tool_result" {
			return truncateString(toolResultText(b.Content), previewMaxChars), toolName, isToolResult
		}
	}

	return truncateString(stringifyBlock(blocks[0]), previewMaxChars), toolName, isToolResult
}

// toolResultText extracts a tool_result block's content as a string,
// accepting either a plain string or an array of {type,text} items.
func toolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}
	var items []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &items); err == nil {
		var parts []string
		for _, it := range items {
			if it.Type == "text" && it.Text != "" {
				parts = append(parts, it.Text)
			}
		}
		return joinNewline(parts)
	}
	return string(content)
}

func stringifyBlock(b rawContentBlock) string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(data)
}

func joinComma(items []string) string {
	return join(items, ", ")
}

func joinNewline(items []string) string {
	return join(items, "\n")
}

func join(items []string, sep string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for _, s := range items[1:] {
		out += sep + s
	}
	return out
}

// truncateString truncates s to at most maxChars Unicode scalars, never
// splitting a multi-byte rune.
func truncateString(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
