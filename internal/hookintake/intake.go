// Package hookintake is the entry point an agent's AI runner calls on
// every tool-start, tool-end, and session-end hook: it turns a small
// JSON payload on stdin into session-state transitions and rows in the
// event and metrics stores. Every step here is fire-and-forget — a
// failure here must never abort the tool call or the session that
// triggered it.
package hookintake

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/filelock"
	"github.com/overstory-run/overstory/internal/logging"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/util"
)

// Payload is the JSON shape an AI runner's hook emits on stdin. Legacy
// callers that invoke the entry point with flags instead of stdin are
// handled by ParsePayload's caller, not here.
type Payload struct {
	HookEvent      string         `json:"hookEvent"`
	AgentName      string         `json:"agentName"`
	SessionID      string         `json:"sessionId"`
	ToolName       string         `json:"toolName"`
	ToolInput      map[string]any `json:"toolInput"`
	TranscriptPath string         `json:"transcriptPath"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Intake processes hook payloads against the session, event, metrics,
// and auto-record stores.
type Intake struct {
	ProjectRoot string
	Sessions    *store.SessionStore
	Events      *store.EventStore
	Metrics     *store.MetricsStore
	Recorder    *AutoRecorder // nil disables auto-record (e.g. in tests)
	Log         *logging.Logger

	lastSnapshot map[string]time.Time // per-agent throttle for token_snapshots
}

// New returns an Intake wired to the given stores.
func New(projectRoot string, sessions *store.SessionStore, events *store.EventStore, metrics *store.MetricsStore, recorder *AutoRecorder) *Intake {
	return &Intake{
		ProjectRoot:  projectRoot,
		Sessions:     sessions,
		Events:       events,
		Metrics:      metrics,
		Recorder:     recorder,
		Log:          logging.New("hookintake"),
		lastSnapshot: map[string]time.Time{},
	}
}

// ParsePayload reads and decodes a hook payload from r (normally
// os.Stdin).
func ParsePayload(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hook payload: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing hook payload: %w", err)
	}
	return &p, nil
}

// Handle dispatches a payload to the matching hook-event handler. It
// never returns an error that should abort the caller — failures are
// logged and swallowed, consistent with the fire-and-forget contract
// every hook-intake write makes.
func (in *Intake) Handle(p *Payload) {
	in.writeLegacyLog(p)

	switch p.HookEvent {
	case "tool-start":
		in.Log.Discard("handle_tool_start", func() error { return in.handleToolStart(p) })
	case "tool-end":
		in.Log.Discard("handle_tool_end", func() error { return in.handleToolEnd(p) })
	case "session-end":
		in.Log.Discard("handle_session_end", func() error { return in.handleSessionEnd(p) })
	default:
		in.Log.Warn("unknown_hook_event", "event", p.HookEvent)
	}
}

func (in *Intake) handleToolStart(p *Payload) error {
	if err := in.Sessions.UpdateLastActivity(p.AgentName); err != nil {
		return fmt.Errorf("updating last activity for %s: %w", p.AgentName, err)
	}
	if sess, err := in.Sessions.GetByName(p.AgentName); err == nil && sess != nil && sess.State == constants.StateBooting {
		_ = in.Sessions.UpdateState(p.AgentName, constants.StateWorking)
	}

	filtered, summary := Filter(p.ToolName, p.ToolInput)
	_, err := in.Events.Append(&model.Event{
		AgentName: p.AgentName,
		SessionID: p.SessionID,
		EventType: constants.EventToolStart,
		ToolName:  p.ToolName,
		ToolArgs:  marshalArgs(filtered),
		Level:     "info",
		Data:      []byte(fmt.Sprintf(`{"summary":%q}`, summary)),
	})
	return err
}

func (in *Intake) handleToolEnd(p *Payload) error {
	filtered, summary := Filter(p.ToolName, p.ToolInput)
	err := in.Events.CorrelateToolEnd(&model.Event{
		AgentName: p.AgentName,
		SessionID: p.SessionID,
		EventType: constants.EventToolEnd,
		ToolName:  p.ToolName,
		ToolArgs:  marshalArgs(filtered),
		Level:     "info",
		Data:      []byte(fmt.Sprintf(`{"summary":%q}`, summary)),
	})
	if err != nil {
		return err
	}

	if p.SessionID != "" && in.shouldSnapshot(p.AgentName) {
		in.Log.Discard("record_token_snapshot", func() error {
			return in.recordSnapshot(p)
		})
	}
	return nil
}

func (in *Intake) shouldSnapshot(agentName string) bool {
	last, ok := in.lastSnapshot[agentName]
	if ok && time.Since(last) < constants.SnapshotDebounceWindow {
		return false
	}
	in.lastSnapshot[agentName] = time.Now()
	return true
}

func (in *Intake) recordSnapshot(p *Payload) error {
	usage, err := parseTranscriptUsage(p.TranscriptPath)
	if err != nil || usage == nil {
		return err
	}
	cost := store.EstimateCostUsd(usage.ModelUsed, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, usage.CacheCreationTokens)
	_, err = in.Metrics.RecordSnapshot(&model.TokenSnapshot{
		AgentName:           p.AgentName,
		InputTokens:         usage.InputTokens,
		OutputTokens:        usage.OutputTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		CacheCreationTokens: usage.CacheCreationTokens,
		EstimatedCostUsd:    &cost,
		ModelUsed:           usage.ModelUsed,
	})
	return err
}

func (in *Intake) handleSessionEnd(p *Payload) error {
	sess, err := in.Sessions.GetByName(p.AgentName)
	if err != nil {
		return fmt.Errorf("looking up %s at session end: %w", p.AgentName, err)
	}
	if sess == nil {
		return nil
	}

	persistent := constants.IsPersistentCapability(sess.Capability)
	if !persistent {
		if err := in.Sessions.UpdateState(p.AgentName, constants.StateCompleted); err != nil {
			return fmt.Errorf("completing %s: %w", p.AgentName, err)
		}
	}

	if usage, uerr := parseTranscriptUsage(p.TranscriptPath); uerr == nil && usage != nil {
		cost := store.EstimateCostUsd(usage.ModelUsed, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, usage.CacheCreationTokens)
		in.Log.Discard("upsert_session_metrics", func() error {
			return in.Metrics.UpsertMetrics(&model.SessionMetrics{
				AgentName:           p.AgentName,
				BeadID:              sess.BeadID,
				RunID:               derefOr(sess.RunID, ""),
				ParentAgent:         derefOr(sess.ParentAgent, ""),
				InputTokens:         usage.InputTokens,
				OutputTokens:        usage.OutputTokens,
				CacheReadTokens:     usage.CacheReadTokens,
				CacheCreationTokens: usage.CacheCreationTokens,
				EstimatedCostUsd:    &cost,
				ModelUsed:           usage.ModelUsed,
			})
		})
	}

	if !persistent && sess.Capability == constants.CapabilityLead {
		in.Log.Discard("write_coordinator_nudge_marker", func() error {
			return in.writeCoordinatorNudgeMarker(sess)
		})
	}

	if !persistent && in.Recorder != nil {
		in.Log.Discard("auto_record", func() error {
			return in.Recorder.Run(sess)
		})
	}

	_, err = in.Events.Append(&model.Event{
		AgentName: p.AgentName,
		SessionID: p.SessionID,
		EventType: constants.EventSessionEnd,
		Level:     "info",
	})
	return err
}

func (in *Intake) writeLegacyLog(p *Payload) {
	in.Log.Discard("write_legacy_log", func() error {
		dir := in.ProjectRoot + "/" + constants.LogsDir + "/" + p.AgentName
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(dir+"/"+constants.EventsNDJSON, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		line := fmt.Sprintf("%s %s tool=%s session=%s\n", time.Now().UTC().Format(time.RFC3339), p.HookEvent, p.ToolName, p.SessionID)
		_, err = f.WriteString(line)
		return err
	})
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

// pendingNudgeMarker is the shape of a pending-nudges/{agent}.json file: a
// record that the next supervision pass should nudge the coordinator about
// a lead that finished without a persistent session of its own to poll.
type pendingNudgeMarker struct {
	AgentName string    `json:"agentName"`
	BeadID    string    `json:"beadId"`
	EndedAt   time.Time `json:"endedAt"`
}

// writeCoordinatorNudgeMarker drops a pending-nudges/{agent}.json marker
// for a lead agent's session end, so the watchdog's next reconciliation
// pass can nudge the coordinator that it finished — the coordinator never
// sees the session-end hook itself when the lead ran in its own pane.
func (in *Intake) writeCoordinatorNudgeMarker(sess *model.AgentSession) error {
	path := in.ProjectRoot + "/" + constants.PendingNudgesDir + "/" + sess.AgentName + ".json"
	return filelock.WithLock(path, func() error {
		return util.EnsureDirAndWriteJSON(path, &pendingNudgeMarker{
			AgentName: sess.AgentName,
			BeadID:    sess.BeadID,
			EndedAt:   time.Now().UTC(),
		})
	})
}
