// Package pathresolver translates a logical project path into the on-disk
// encoded directory name used under ~/.claude/projects/, and produces
// absolute paths for session and sub-agent files.
//
// The encoding is lossy and ambiguous (paths that differ only by replacing
// "/" or " " with "-" collide), so this package never attempts to invert it.
// Recovering a project's true path is Discovery's job (internal/discovery),
// which reads it back out of session content.
package pathresolver

import (
	"os"
	"path/filepath"
	"strings"
)

// EncodeProjectPath converts every "/" and " " in p into "-", matching the
// directory-naming scheme the agent tool uses under ~/.claude/projects/.
//
// This is a literal character replacement on p as given, not a cleaned or
// normalized path: the agent tool does no cleaning before encoding, so a
// trailing separator or a "."/".." segment must round-trip into the exact
// same directory name it wrote, or SessionFilePath/GetSessionsForProject
// will miss it.
func EncodeProjectPath(p string) string {
	replaced := strings.ReplaceAll(p, "/", "-")
	replaced = strings.ReplaceAll(replaced, " ", "-")
	return replaced
}

// ProjectsDir returns "<home>/.claude/projects".
func ProjectsDir(home string) string {
	return filepath.Join(home, ".claude", "projects")
}

// SessionFilePath returns the absolute path of a session's JSONL file and
// whether it exists on disk.
func SessionFilePath(home, project, sid string) (string, bool) {
	path := filepath.Join(ProjectsDir(home), EncodeProjectPath(project), sid+".jsonl")
	return path, fileExists(path)
}

// SubAgentFilePath returns the absolute path of a sub-agent session's JSONL
// file and whether it exists on disk.
func SubAgentFilePath(home, project, agentID string) (string, bool) {
	path := filepath.Join(ProjectsDir(home), EncodeProjectPath(project), "agent-"+agentID+".jsonl")
	return path, fileExists(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
