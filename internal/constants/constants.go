// Package constants centralizes filesystem layout and timing defaults shared
// across Overstory's packages, mirroring how the host fleet keeps its own
// directory names and timeouts in one place rather than scattered literals.
package constants

import (
	"path/filepath"
	"time"
)

// Per-project control directory layout (relative to $OVS, the project's
// control directory root).
const (
	ConfigFile       = "config.yaml"
	ManifestFile     = "agent-manifest.json"
	AgentDefsDir     = "agent-defs"
	AgentsDir        = "agents"
	SessionsDB       = "sessions.db"
	MailDB           = "mail.db"
	MetricsDB        = "metrics.db"
	EventsDB         = "events.db"
	MergeQueueDB     = "merge-queue.db"
	LegacySessionsJSON = "sessions.json"
	WorktreesDir     = "worktrees"
	LogsDir          = "logs"
	CurrentRunFile   = "current-run.txt"
	NudgeStateFile   = "nudge-state.json"
	OrchestratorTmux = "orchestrator-tmux.json"
	PendingNudgesDir = "pending-nudges"
	WatchdogPIDFile  = "watchdog.pid"
	HooksManifest    = "hooks.json"
	CostTierFile     = "overstory.toml"
)

// Log subdirectory / file names under logs/{name}/.
const (
	CurrentSessionPointer = ".current-session"
	LastSnapshotFile      = ".last-snapshot"
	TranscriptPathFile    = ".transcript-path"
	EventsNDJSON          = "events.ndjson"
	ToolsNDJSON           = "tools.ndjson"
)

// Capability set.
const (
	CapabilityCoordinator = "coordinator"
	CapabilityMonitor     = "monitor"
	CapabilityLead        = "lead"
	CapabilityScout       = "scout"
	CapabilityBuilder     = "builder"
	CapabilityReviewer    = "reviewer"
	CapabilityMerger      = "merger"
)

// SentinelOrchestrator is the reserved recipient/nudge-target name for the
// operator's own session rather than any one capability's agent.
const SentinelOrchestrator = "orchestrator"

// PersistentCapabilities is the set of capabilities that run at the project
// root rather than in a per-agent working copy, and that are exempted from
// the session-end → completed transition (their Stop hook fires every turn).
var PersistentCapabilities = map[string]bool{
	CapabilityCoordinator: true,
	CapabilityMonitor:     true,
}

// IsPersistentCapability reports whether a capability runs persistently at
// the project root instead of in a per-agent working copy.
func IsPersistentCapability(capability string) bool {
	return PersistentCapabilities[capability]
}

// Session states.
const (
	StateBooting   = "booting"
	StateWorking   = "working"
	StateStalled   = "stalled"
	StateCompleted = "completed"
	StateZombie    = "zombie"
)

// Run statuses.
const (
	RunActive    = "active"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// Hook-derived event types recorded in the event store.
const (
	EventToolStart    = "tool_start"
	EventToolEnd      = "tool_end"
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventError        = "error"
)

// Timing defaults. Project config may override most of these.
const (
	DefaultStaleThreshold  = 10 * time.Minute
	DefaultZombieThreshold = 30 * time.Minute
	DefaultWatchdogTick    = 15 * time.Second
	DefaultGracePeriod     = 2 * time.Second
	DefaultWaitForTUI      = 15 * time.Second
	NudgeDebounceWindow    = 500 * time.Millisecond
	NudgeRetryDelay        = 500 * time.Millisecond
	NudgeRetryAttempts     = 3
	SnapshotDebounceWindow = 30 * time.Second
	BeaconFollowupDelay1   = 1 * time.Second
	BeaconFollowupDelay2   = 2 * time.Second
	SQLiteBusyTimeoutMs    = 5000
)

// SessionName returns the multiplexer session name for a given project and
// agent name: "overstory-{projectName}-{agentName}".
func SessionName(projectName, agentName string) string {
	return "overstory-" + projectName + "-" + agentName
}

// BranchName returns the exclusive source-control branch name for an agent:
// "overstory/{agentName}/{beadId}".
func BranchName(agentName, beadID string) string {
	return "overstory/" + agentName + "/" + beadID
}

// WorktreePath returns the absolute working-copy path for an agent.
func WorktreePath(projectRoot, baseDir, agentName string) string {
	if baseDir == "" {
		baseDir = WorktreesDir
	}
	return filepath.Join(projectRoot, baseDir, agentName)
}
