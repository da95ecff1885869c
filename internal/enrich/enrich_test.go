package enrich

import (
	"encoding/json"
	"testing"
)

func decodeEvent(t *testing.T, raw string) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestEnrichCompletedSubagentTask(t *testing.T) {
	ev := decodeEvent(t, `{
		"type": "message.part.updated",
		"properties": {
			"part": {
				"type": "tool",
				"tool": "task",
				"state": {
					"status": "completed",
					"input": {"subagent_type": "reviewer", "description": "review the diff"},
					"output": "Reading main.py. Wrote report.md. Done."
				}
			}
		}
	}`)

	got := Enrich(ev)
	if got["_is_subagent"] != true {
		t.Fatalf("expected _is_subagent=true, got %#v", got["_is_subagent"])
	}
	if got["_subagent_type"] != "reviewer" {
		t.Fatalf("expected subagent_type=reviewer, got %#v", got["_subagent_type"])
	}
	if got["_subagent_description"] != "review the diff" {
		t.Fatalf("unexpected description: %#v", got["_subagent_description"])
	}
	if got["_tool_category"] != CategorySubagent {
		t.Fatalf("expected subagent category, got %#v", got["_tool_category"])
	}
	parsed, ok := got["_subagent_parsed"].(ParsedOutput)
	if !ok {
		t.Fatalf("expected ParsedOutput, got %#v", got["_subagent_parsed"])
	}
	if len(parsed.FilesRead) != 1 || parsed.FilesRead[0] != "main.py" {
		t.Fatalf("expected files_read=[main.py], got %#v", parsed.FilesRead)
	}
	if len(parsed.FilesWritten) != 1 || parsed.FilesWritten[0] != "report.md" {
		t.Fatalf("expected files_written=[report.md], got %#v", parsed.FilesWritten)
	}
}

func TestEnrichRunningTaskHasNoParsedOutput(t *testing.T) {
	ev := decodeEvent(t, `{
		"type": "message.part.updated",
		"properties": {"part": {"type": "tool", "tool": "task", "state": {"status": "running"}}}
	}`)
	got := Enrich(ev)
	if got["_is_subagent"] != true {
		t.Fatalf("expected _is_subagent=true")
	}
	if got["_subagent_type"] != "general" {
		t.Fatalf("expected default subagent_type=general, got %#v", got["_subagent_type"])
	}
	if _, ok := got["_subagent_parsed"]; ok {
		t.Fatalf("running task should not carry parsed output")
	}
}

func TestEnrichGrepTool(t *testing.T) {
	ev := decodeEvent(t, `{
		"type": "message.part.updated",
		"properties": {"part": {"type": "tool", "tool": "grep", "state": {"status": "completed"}}}
	}`)
	got := Enrich(ev)
	if got["_tool_category"] != CategorySearch {
		t.Fatalf("expected search category, got %#v", got["_tool_category"])
	}
	if _, ok := got["_is_subagent"]; ok {
		t.Fatalf("grep must not be marked subagent")
	}
}

func TestEnrichIgnoresOtherEventTypes(t *testing.T) {
	ev := decodeEvent(t, `{"type": "session.idle", "properties": {"x": 1}}`)
	got := Enrich(ev)
	if len(got) != 2 {
		t.Fatalf("non-tool event must pass through untouched, got %#v", got)
	}
}

func TestEnrichTolerantOfMissingNestedFields(t *testing.T) {
	got := Enrich(decodeEvent(t, `{"type": "message.part.updated"}`))
	if _, ok := got["_tool_category"]; ok {
		t.Fatalf("missing part must not be categorized")
	}
	got = Enrich(decodeEvent(t, `{"type": "message.part.updated", "properties": {"part": {"type": "tool"}}}`))
	if got["_tool_category"] != CategoryOther {
		t.Fatalf("tool part without name should categorize as other, got %#v", got["_tool_category"])
	}
}

func TestCategoryCaseInsensitive(t *testing.T) {
	cases := map[string]string{
		"Bash": CategoryExecution,
		"READ": CategoryFile,
		"edit": CategoryFile,
		"Glob": CategorySearch,
		"task": CategorySubagent,
		"ls":   CategoryOther,
		"":     CategoryOther,
	}
	for tool, want := range cases {
		if got := Category(tool); got != want {
			t.Fatalf("Category(%q)=%q, want %q", tool, got, want)
		}
	}
}
