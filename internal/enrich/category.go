package enrich

import "strings"

// Tool categories surfaced to the frontend for rendering.
const (
	CategoryExecution = "execution"
	CategoryFile      = "file"
	CategorySearch    = "search"
	CategorySubagent  = "subagent"
	CategoryOther     = "other"
)

var toolCategories = map[string]string{
	"bash":  CategoryExecution,
	"read":  CategoryFile,
	"write": CategoryFile,
	"edit":  CategoryFile,
	"grep":  CategorySearch,
	"glob":  CategorySearch,
	"task":  CategorySubagent,
}

// Category maps a tool name to its display category. Unknown tools
// fall back to "other".
func Category(tool string) string {
	if c, ok := toolCategories[strings.ToLower(tool)]; ok {
		return c
	}
	return CategoryOther
}
