package hookintake

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// maxValueBytes bounds any single filtered argument value so a runaway
// tool payload (a full file body, a giant diff) can't flood the event
// store.
const maxValueBytes = 512

// toolWhitelists maps known tool names to the input keys worth keeping.
// Everything else about a call — full file contents, entire diffs — is
// dropped; the event store records what happened, not the payload.
var toolWhitelists = map[string][]string{
	"read":  {"file_path", "offset", "limit"},
	"write": {"file_path"},
	"edit":  {"file_path"},
	"grep":  {"pattern", "path", "glob", "type"},
	"glob":  {"pattern", "path"},
	"bash":  {"command", "description"},
	"task":  {"description", "subagent_type"},
}

// Filter maps a tool name and its raw input object to a size-bounded
// argument set and a one-line human summary, so the event store records
// enough to reconstruct what happened without absorbing arbitrary blobs.
func Filter(toolName string, input map[string]any) (filtered map[string]any, summary string) {
	keys, known := toolWhitelists[strings.ToLower(toolName)]
	if !known {
		return map[string]any{}, toolName
	}

	filtered = make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := input[k]
		if !ok {
			continue
		}
		filtered[k] = truncate(v)
	}
	return filtered, summarize(toolName, filtered)
}

func truncate(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if len(s) <= maxValueBytes {
		return s
	}
	const ellipsis = "…"
	return s[:maxValueBytes-len(ellipsis)] + ellipsis
}

// summarize renders a stable, human-readable one-liner from the
// filtered args, e.g. "bash: go test ./...".
func summarize(toolName string, filtered map[string]any) string {
	if len(filtered) == 0 {
		return toolName
	}
	keys := make([]string, 0, len(filtered))
	for k := range filtered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	first := fmt.Sprint(filtered[keys[0]])
	return fmt.Sprintf("%s: %s", strings.ToLower(toolName), first)
}

// marshalArgs renders filtered args as the JSON blob stored alongside
// an event row.
func marshalArgs(filtered map[string]any) []byte {
	data, err := json.Marshal(filtered)
	if err != nil {
		return nil
	}
	return data
}
