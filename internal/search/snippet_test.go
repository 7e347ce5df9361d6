package search

import (
	"strings"
	"testing"
)

func TestBuildSnippet_NoMatch(t *testing.T) {
	if got := BuildSnippet("nothing relevant here", []string{"missing"}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestBuildSnippet_ShortTextNoEllipsis(t *testing.T) {
	got := BuildSnippet("a short error message", []string{"error"})
	if got != "a short error message" {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "...") {
		t.Errorf("did not expect ellipsis: %q", got)
	}
}

func TestBuildSnippet_ClippedWithEllipsis(t *testing.T) {
	prefix := strings.Repeat("xxxx ", 40)
	suffix := strings.Repeat(" yyyy", 40)
	text := prefix + " error " + suffix
	got := BuildSnippet(text, []string{"error"})
	if !strings.HasPrefix(got, "...") {
		t.Errorf("expected leading ellipsis: %q", got[:20])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected trailing ellipsis: %q", got[len(got)-20:])
	}
	if !strings.Contains(got, "error") {
		t.Error("expected snippet to contain the matched term")
	}
}

func TestBuildSnippet_NeverSplitsWord(t *testing.T) {
	text := strings.Repeat("a", 70) + "errorword" + strings.Repeat("b", 70)
	got := BuildSnippet(text, []string{"error"})
	if !strings.Contains(got, "errorword") {
		t.Errorf("expected whole word preserved, got %q", got)
	}
}

// S5: query "error AND bash" over two lines; matches only the first.
func TestBuildSnippet_S5(t *testing.T) {
	q := Parse("error AND bash")
	line1 := `{"content":"error in bash"}`
	line2 := `{"content":"error in python"}`

	if !q.Matches(strings.ToLower(line1)) {
		t.Error("expected match on line1")
	}
	if q.Matches(strings.ToLower(line2)) {
		t.Error("expected no match on line2")
	}

	snippet := BuildSnippet("error in bash", q.Terms())
	if !strings.Contains(snippet, "error") {
		t.Errorf("snippet %q missing matched term", snippet)
	}
}

func TestBuildSnippet_UTF8Safety(t *testing.T) {
	inputs := []string{
		strings.Repeat("日本語", 50) + " needle " + strings.Repeat("文字", 50),
		strings.Repeat("─", 80) + " needle " + strings.Repeat("━", 80),
		strings.Repeat("😀", 80) + " needle " + strings.Repeat("🎉", 80),
	}
	for _, text := range inputs {
		got := BuildSnippet(text, []string{"needle"})
		if !strings.Contains(got, "needle") {
			t.Errorf("snippet missing needle for input class: %q", got)
		}
		if !validUTF8(got) {
			t.Errorf("snippet is not valid UTF-8: %q", got)
		}
	}
}

func validUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
