// Package discovery enumerates projects and sessions from the well-known
// ~/.claude/projects directory tree, recovering each project's true
// absolute path by reading cwd back out of session content (the
// pathresolver's directory-name encoding is lossy and not invertible).
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sessionlens/sessionlens/internal/jsonl"
	"github.com/sessionlens/sessionlens/internal/pathresolver"
)

// cwdProbeLines bounds how many lines of the first session file are
// scanned while recovering a project's true path.
const cwdProbeLines = 100

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUIDFormat reports whether s is a UUID-shaped string: five hyphen-
// separated hex groups of lengths 8-4-4-4-12, case-insensitive.
func IsUUIDFormat(s string) bool {
	return uuidPattern.MatchString(s)
}

// Project is one discovered project directory.
type Project struct {
	Path          string `json:"path"`
	AgentType     string `json:"agentType"`
	ProjectName   string `json:"projectName"`
	SessionCount  int    `json:"sessionCount"`
	SubagentCount int    `json:"subagentCount"`
	LastActivity  string `json:"lastActivity"`
}

// Session is a lightweight session record as returned by the project
// listing view — heavier fields are populated only when the session
// itself has been opened and indexed.
type Session struct {
	ID           string `json:"id"`
	LastActivity string `json:"lastActivity"`
	Slug         string `json:"slug,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Model        string `json:"model,omitempty"`
	Version      string `json:"version,omitempty"`
	GitBranch    string `json:"gitBranch,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// IsActive reports whether the session was modified within the last five
// minutes of now, a heuristic signal that an agent may still be running.
func (s Session) IsActive(now time.Time) bool {
	t, err := time.Parse(time.RFC3339, s.LastActivity)
	if err != nil {
		return false
	}
	return now.Sub(t) <= 5*time.Minute && !now.Before(t)
}

// ListProjects enumerates <home>/.claude/projects/*, recovering each
// project's true path and excluding directories whose encoded name isn't
// rooted under the user-home prefix or looks like a temp folder.
func ListProjects(home string) ([]Project, error) {
	projectsDir := pathresolver.ProjectsDir(home)
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var projects []Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.Contains(name, "private-var-folders") || !strings.HasPrefix(name, "-Users-") {
			continue
		}

		dirPath := filepath.Join(projectsDir, name)
		sessionCount, subagentCount, latestMtime, firstSessionFile := scanProjectDir(dirPath)
		if sessionCount == 0 {
			// No session files to recover the true path from.
			continue
		}

		cwd, ok := recoverCWD(firstSessionFile)
		if !ok {
			continue
		}

		lastActivity := latestMtime
		if lastActivity.IsZero() {
			if info, err := os.Stat(dirPath); err == nil {
				lastActivity = info.ModTime()
			}
		}

		projects = append(projects, Project{
			Path:          cwd,
			AgentType:     "ClaudeCode",
			ProjectName:   filepath.Base(cwd),
			SessionCount:  sessionCount,
			SubagentCount: subagentCount,
			LastActivity:  lastActivity.UTC().Format(time.RFC3339),
		})
	}

	return projects, nil
}

func scanProjectDir(dirPath string) (sessionCount, subagentCount int, latestMtime time.Time, firstSessionFile string) {
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return 0, 0, time.Time{}, ""
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
			continue
		}
		stem := strings.TrimSuffix(f.Name(), ".jsonl")

		switch {
		case strings.HasPrefix(stem, "agent-"):
			subagentCount++
		case IsUUIDFormat(stem):
			sessionCount++
			if firstSessionFile == "" {
				firstSessionFile = filepath.Join(dirPath, f.Name())
			}
		default:
			continue
		}

		if info, err := f.Info(); err == nil && info.ModTime().After(latestMtime) {
			latestMtime = info.ModTime()
		}
	}

	return sessionCount, subagentCount, latestMtime, firstSessionFile
}

func recoverCWD(path string) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	reader := jsonl.NewReader(file, 0)
	for i := 0; i < cwdProbeLines; i++ {
		line, err := reader.Next()
		if err != nil {
			break
		}
		var rec struct {
			CWD string `json:"cwd"`
		}
		if err := json.Unmarshal(line.Data, &rec); err != nil {
			continue
		}
		if rec.CWD != "" {
			return rec.CWD, true
		}
	}
	return "", false
}

// GetSessionsForProject reconstructs the encoded directory for project
// via the path resolver and returns its session files as lightweight
// Session records populated only with id and last_activity.
func GetSessionsForProject(home, project string) ([]Session, error) {
	dirPath := filepath.Join(pathresolver.ProjectsDir(home), pathresolver.EncodeProjectPath(project))
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []Session
	for _, f := range entries {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
			continue
		}
		stem := strings.TrimSuffix(f.Name(), ".jsonl")
		if strings.HasPrefix(stem, "agent-") || !IsUUIDFormat(stem) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, Session{
			ID:           stem,
			LastActivity: info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity > sessions[j].LastActivity
	})

	return sessions, nil
}
