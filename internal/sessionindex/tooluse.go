package sessionindex

import "encoding/json"

// ToolUseEdit is one Edit/Write tool invocation touching a file path,
// extracted from an assistant event's message.content array.
type ToolUseEdit struct {
	ToolName  string // "Edit" or "Write"
	FilePath  string
	OldString string
	NewString string
	Timestamp string
}

type rawAssistantLine struct {
	Timestamp string      `json:"timestamp"`
	Message   *rawMessage `json:"message"`
}

type rawMessage struct {
	Content json.RawMessage `json:"content"`
}

type rawToolUseBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type rawEditInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
	Content   string `json:"content"`
}

// ExtractToolUseEdits scans one raw assistant JSONL line for Edit/Write
// tool_use blocks with a file_path input, in appearance order.
func ExtractToolUseEdits(raw []byte) []ToolUseEdit {
	var line rawAssistantLine
	if err := json.Unmarshal(raw, &line); err != nil || line.Message == nil {
		return nil
	}

	var blocks []rawToolUseBlock
	if err := json.Unmarshal(line.Message.Content, &blocks); err != nil {
		return nil
	}

	var edits []ToolUseEdit
	for _, b := range blocks {
		if b.Type != "tool_use" || (b.Name != "Edit" && b.Name != "Write") {
			continue
		}
		var input rawEditInput
		if err := json.Unmarshal(b.Input, &input); err != nil {
			continue
		}
		if input.FilePath == "" {
			continue
		}

		newString := input.NewString
		if b.Name == "Write" {
			newString = input.Content
		}

		edits = append(edits, ToolUseEdit{
			ToolName:  b.Name,
			FilePath:  input.FilePath,
			OldString: input.OldString,
			NewString: newString,
			Timestamp: line.Timestamp,
		})
	}
	return edits
}
