package hookintake

import "testing"

func TestFilterKnownToolKeepsWhitelistedKeys(t *testing.T) {
	filtered, summary := Filter("bash", map[string]any{
		"command":     "go test ./...",
		"description": "run tests",
		"secret":      "should be dropped",
	})
	if _, ok := filtered["secret"]; ok {
		t.Error("filter kept an unwhitelisted key")
	}
	if filtered["command"] != "go test ./..." {
		t.Errorf("command = %v, want unchanged", filtered["command"])
	}
	if summary == "" {
		t.Error("expected non-empty summary")
	}
}

func TestFilterUnknownToolYieldsEmptyArgsAndToolNameSummary(t *testing.T) {
	filtered, summary := Filter("some_custom_tool", map[string]any{"anything": "value"})
	if len(filtered) != 0 {
		t.Errorf("expected empty args for unknown tool, got %v", filtered)
	}
	if summary != "some_custom_tool" {
		t.Errorf("summary = %q, want tool name", summary)
	}
}

func TestFilterTruncatesOversizedValues(t *testing.T) {
	big := make([]byte, maxValueBytes+100)
	for i := range big {
		big[i] = 'x'
	}
	filtered, _ := Filter("read", map[string]any{"file_path": string(big)})
	got, ok := filtered["file_path"].(string)
	if !ok {
		t.Fatal("file_path missing or not a string")
	}
	if len(got) > maxValueBytes+2 {
		t.Errorf("filtered value length = %d, want <= %d", len(got), maxValueBytes+2)
	}
}
