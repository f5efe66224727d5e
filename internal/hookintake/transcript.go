package hookintake

import (
	"bufio"
	"encoding/json"
	"os"
)

// transcriptUsage is the token-usage shape summed over every assistant
// turn in a runner's transcript file.
type transcriptUsage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	ModelUsed           string
}

type transcriptLine struct {
	Message struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// parseTranscriptUsage scans a JSONL transcript for usage blocks,
// accumulating token counts across every assistant turn —
// each turn reports its own incremental usage, so the running total is
// the sum, not the last value. A missing or unreadable file is not an
// error: transcripts are an optional enrichment, not a hard dependency.
func parseTranscriptUsage(path string) (*transcriptUsage, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var total transcriptUsage
	seen := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Message.Usage.InputTokens == 0 && line.Message.Usage.OutputTokens == 0 {
			continue
		}
		seen = true
		total.InputTokens += line.Message.Usage.InputTokens
		total.OutputTokens += line.Message.Usage.OutputTokens
		total.CacheReadTokens += line.Message.Usage.CacheReadInputTokens
		total.CacheCreationTokens += line.Message.Usage.CacheCreationInputTokens
		if line.Message.Model != "" {
			total.ModelUsed = line.Message.Model
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !seen {
		return nil, nil
	}
	return &total, nil
}
