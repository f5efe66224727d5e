package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/overstory-run/overstory/internal/model"
)

// legacySession is the flat JSON row shape written by pre-registry releases
// that kept sessions.json as the single source of truth. Field names match
// the JSON on disk, not the Go struct field names.
type legacySession struct {
	ID              string  `json:"id"`
	AgentName       string  `json:"agentName"`
	Capability      string  `json:"capability"`
	WorktreePath    string  `json:"worktreePath"`
	BranchName      string  `json:"branchName"`
	BeadID          string  `json:"beadId"`
	TmuxSession     string  `json:"tmuxSession"`
	State           string  `json:"state"`
	PID             *int    `json:"pid,omitempty"`
	ParentAgent     *string `json:"parentAgent,omitempty"`
	Depth           int     `json:"depth"`
	RunID           *string `json:"runId,omitempty"`
	StartedAt       string  `json:"startedAt"`
	LastActivity    string  `json:"lastActivity"`
	StalledSince    *string `json:"stalledSince,omitempty"`
	EscalationLevel int     `json:"escalationLevel"`
}

// readLegacySessions parses a sessions.json file from a prior, file-backed
// release. A missing file is not an error — most projects never had one.
func readLegacySessions(path string) ([]*model.AgentSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading legacy sessions file %s: %w", path, err)
	}

	var raw []legacySession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing legacy sessions file %s: %w", path, err)
	}

	out := make([]*model.AgentSession, 0, len(raw))
	for _, r := range raw {
		sess := &model.AgentSession{
			ID:              r.ID,
			AgentName:       r.AgentName,
			Capability:      r.Capability,
			WorktreePath:    r.WorktreePath,
			BranchName:      r.BranchName,
			BeadID:          r.BeadID,
			TmuxSession:     r.TmuxSession,
			State:           r.State,
			PID:             r.PID,
			ParentAgent:     r.ParentAgent,
			Depth:           r.Depth,
			RunID:           r.RunID,
			StartedAt:       parseRFC3339Loose(r.StartedAt),
			LastActivity:    parseRFC3339Loose(r.LastActivity),
			EscalationLevel: r.EscalationLevel,
		}
		if r.StalledSince != nil {
			t := parseRFC3339Loose(*r.StalledSince)
			sess.StalledSince = &t
		}
		out = append(out, sess)
	}
	return out, nil
}

func parseRFC3339Loose(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
