package enrich

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ParsedOutput holds facts extracted from the free-form output text of a
// completed task tool invocation. Everything here is best-effort string
// matching over natural-language text; fields may be wrong or incomplete
// and callers must treat them as hints only.
type ParsedOutput struct {
	Tools        []string `json:"tools"`
	FilesRead    []string `json:"files_read"`
	FilesWritten []string `json:"files_written"`
	Summary      string   `json:"summary"`
	HasErrors    bool     `json:"has_errors"`
}

const (
	maxTrackedFiles   = 10
	summaryTargetLen  = 200
	summaryMaxLen     = 300
	summaryScanLines  = 5
)

var recognizedTools = map[string]struct{}{
	"bash": {}, "read": {}, "write": {}, "edit": {},
	"grep": {}, "glob": {}, "task": {},
}

var toolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Called|Using|Executed|Running|Invoking)\s+(\w+)(?:\s+tool)?`),
	regexp.MustCompile(`\[(\w+)\]`),
	regexp.MustCompile(`(?i)Tool:\s*(\w+)`),
}

var readPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?i)(?:Reading|Read|Opened)\\s+[`\"']?([^\\s`\"']+\\.\\w+)[`\"']?"),
	regexp.MustCompile(`(?i)File:\s*([^\s]+\.\w+)`),
}

var writePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?i)(?:Writing|Wrote|Created|Modified|Updated)\\s+[`\"']?([^\\s`\"']+\\.\\w+)[`\"']?"),
}

// Substring match, deliberately unanchored: a benign mention like
// "no_errors_here.txt" trips the flag. Accepted as a known limitation.
var errorMarkers = []string{"error", "failed", "exception", "unable to"}

// ParseOutput extracts tool names, touched file paths, an error flag and a
// short summary from task output text. It never fails; unmatched input
// yields empty collections.
func ParseOutput(text string) ParsedOutput {
	out := ParsedOutput{
		Tools:        []string{},
		FilesRead:    []string{},
		FilesWritten: []string{},
	}
	if text == "" {
		return out
	}

	seen := map[string]struct{}{}
	for _, re := range toolPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.ToLower(m[1])
			if _, ok := recognizedTools[name]; !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out.Tools = append(out.Tools, name)
		}
	}

	out.FilesRead = collectPaths(text, readPatterns)
	out.FilesWritten = collectPaths(text, writePatterns)

	lower := strings.ToLower(text)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			out.HasErrors = true
			break
		}
	}

	out.Summary = summarize(text)
	return out
}

func collectPaths(text string, patterns []*regexp.Regexp) []string {
	paths := []string{}
	seen := map[string]struct{}{}
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			p := m[1]
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
			if len(paths) == maxTrackedFiles {
				return paths
			}
		}
	}
	return paths
}

// summarize joins the first few meaningful lines, skipping blanks and
// bracket/heading lines, and truncates the result.
func summarize(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > summaryScanLines {
		lines = lines[:summaryScanLines]
	}
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
		if utf8.RuneCountInString(strings.Join(kept, " ")) > summaryTargetLen {
			break
		}
	}
	summary := strings.Join(kept, " ")
	if utf8.RuneCountInString(summary) > summaryMaxLen {
		summary = string([]rune(summary)[:summaryMaxLen])
	}
	return summary
}
