// Package enrich annotates upstream agent events with derived metadata:
// tool categories, subagent markers and facts parsed out of completed
// task output. All added fields are underscore-prefixed so they can never
// collide with keys the upstream agent defines.
package enrich

// Event is one decoded SSE payload. Upstream event shapes are not
// contractually fixed, so this stays an open string-keyed document and
// every nested lookup defaults instead of failing.
type Event map[string]any

// Enrich annotates a tool invocation event in place and returns it.
// Events that are not message.part.updated tool parts pass through
// untouched. Enrichment only ever adds fields.
func Enrich(ev Event) Event {
	if ev == nil {
		return ev
	}
	if s, _ := ev["type"].(string); s != "message.part.updated" {
		return ev
	}
	properties, _ := ev["properties"].(map[string]any)
	part, _ := properties["part"].(map[string]any)
	if partType, _ := part["type"].(string); partType != "tool" {
		return ev
	}

	tool, _ := part["tool"].(string)
	state, _ := part["state"].(map[string]any)
	status, _ := state["status"].(string)

	if tool == "task" {
		input, _ := state["input"].(map[string]any)
		ev["_is_subagent"] = true
		ev["_subagent_type"] = stringField(input, "subagent_type", "general")
		ev["_subagent_description"] = stringField(input, "description", "")

		if status == "completed" {
			output, _ := state["output"].(string)
			ev["_subagent_parsed"] = ParseOutput(output)
		}
	}

	ev["_tool_category"] = Category(tool)
	return ev
}

func stringField(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}
