// Package model defines the data types shared across Overstory's stores:
// AgentSession, Run, Message, Event, SessionMetrics, TokenSnapshot, and
// MergeQueueEntry. Timestamps are RFC 3339 UTC with millisecond precision;
// the time.Time zero value means "unset".
package model

import "time"

// AgentSession is one row per known agent.
type AgentSession struct {
	ID              string
	AgentName       string
	Capability      string
	WorktreePath    string
	BranchName      string
	BeadID          string
	TmuxSession     string
	State           string
	PID             *int
	ParentAgent     *string
	Depth           int
	RunID           *string
	StartedAt       time.Time
	LastActivity    time.Time
	StalledSince    *time.Time
	EscalationLevel int
}

// Run is one batch of agent activity initiated by a coordinator.
type Run struct {
	ID                   string
	StartedAt            time.Time
	CompletedAt          *time.Time
	AgentCount           int
	CoordinatorSessionID *string
	Status               string
}

// Message priority levels.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Message types.
const (
	MessageTypeStatus  = "status"
	MessageTypeResult  = "result"
	MessageTypeRequest = "request"
)

// Message is one piece of mail exchanged between agents.
type Message struct {
	ID        string
	From      string
	To        string
	Subject   string
	Body      string
	Type      string
	Priority  string
	ThreadID  string
	Payload   []byte
	Read      bool
	CreatedAt time.Time
}

// Event levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event types.
const (
	EventToolStart  = "tool_start"
	EventToolEnd    = "tool_end"
	EventSessionEnd = "session_end"
	EventError      = "error"
	EventCustom     = "custom"
)

// Event is an append-only observation written by hooks.
type Event struct {
	ID             int64
	RunID          string
	AgentName      string
	SessionID      string
	EventType      string
	ToolName       string
	ToolArgs       []byte
	ToolDurationMs *int64
	Level          string
	Data           []byte
	CreatedAt      time.Time
}

// SessionMetrics is one row per (AgentName, BeadID): cumulative usage
// counters and merge outcome for that agent's work on that bead.
type SessionMetrics struct {
	AgentName          string
	BeadID             string
	RunID              string
	ParentAgent        string
	InputTokens        int64
	OutputTokens       int64
	CacheReadTokens    int64
	CacheCreationTokens int64
	EstimatedCostUsd   *float64
	ModelUsed          string
	DurationMs         int64
	MergeResult        string
	UpdatedAt          time.Time
}

// TokenSnapshot is a periodic usage observation during a live session.
// No primary-key uniqueness: history is retained.
type TokenSnapshot struct {
	ID                  int64
	AgentName           string
	BeadID              string
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	EstimatedCostUsd    *float64
	ModelUsed           string
	CreatedAt           time.Time
}

// Merge queue entry statuses.
const (
	MergeStatusPending  = "pending"
	MergeStatusMerging  = "merging"
	MergeStatusMerged   = "merged"
	MergeStatusRejected = "rejected"
)

// MergeQueueEntry is one queued merge request from a completed worker.
type MergeQueueEntry struct {
	ID            int64
	BranchName    string
	BeadID        string
	AgentName     string
	FilesModified []string
	Status        string
	EnqueuedAt    time.Time
	ResolvedTier  *int
}
