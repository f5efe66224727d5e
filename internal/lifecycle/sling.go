package lifecycle

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/ovserr"
)

// SlingRequest is the validated input to a worker spawn.
type SlingRequest struct {
	BeadID         string
	Capability     string
	Name           string
	SpecPath       string
	Files          []string
	ParentAgent    string
	Depth          int
	ForceHierarchy bool
}

// validate implements sling step 1.
func (r *SlingRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return validationError("name", "must not be empty")
	}
	if strings.TrimSpace(r.Capability) == "" {
		return validationError("capability", "must not be empty")
	}
	if r.Depth < 0 {
		return validationError("depth", "must be >= 0")
	}
	return nil
}

// Sling runs the eighteen-step worker spawn pipeline described for the
// lifecycle engine: validate, enforce hierarchy and depth, claim a
// registry slot, stagger, claim the work item, materialize the working
// copy, birth the terminal session, and deliver the beacon.
func (e *Engine) Sling(req SlingRequest) (*model.AgentSession, error) {
	// Step 1: parse and validate inputs.
	if err := req.validate(); err != nil {
		return nil, err
	}

	// Step 2: reject privileged identity. Overstory itself never runs the
	// AI runner as root — a root-owned working copy would make every
	// later git operation fail confusingly instead of failing here.
	if os.Geteuid() == 0 {
		return nil, ovserr.NewAgentError(req.Name, "refusing to sling as root", nil)
	}

	// Step 3: load project configuration and the capability manifest.
	manifest, err := loadManifestFor(e.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("loading capability manifest: %w", err)
	}

	// Step 4: enforce hierarchy.
	if !req.ForceHierarchy {
		if req.ParentAgent == "" && req.Capability != constants.CapabilityLead {
			return nil, &ovserr.HierarchyError{
				AgentName:           req.Name,
				RequestedCapability: req.Capability,
				Reason:              "non-lead capability requires a parentAgent unless forceHierarchy is set",
			}
		}
	}

	// Step 5: enforce depth.
	maxDepth := 4
	if e.Config != nil && e.Config.MaxDepth > 0 {
		maxDepth = e.Config.MaxDepth
	}
	if req.Depth > maxDepth {
		return nil, ovserr.NewAgentError(req.Name, fmt.Sprintf("depth %d exceeds maxDepth %d", req.Depth, maxDepth), nil)
	}

	// Step 6: validate capability is defined by the manifest.
	capDef, ok := manifest.Find(req.Capability)
	if !ok {
		return nil, validationError("capability", fmt.Sprintf("capability %q not defined in manifest", req.Capability))
	}

	// Step 7: resolve or create the enclosing run.
	run, err := e.resolveOrCreateRun()
	if err != nil {
		return nil, err
	}

	// Step 8: claim a registry slot.
	active, err := e.Sessions.GetActive()
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	if e.MaxConcurrent > 0 && len(active) >= e.MaxConcurrent {
		return nil, ovserr.NewAgentError(req.Name, fmt.Sprintf("active session count %d at limit %d", len(active), e.MaxConcurrent), nil)
	}
	if existing, err := e.Sessions.GetByName(req.Name); err != nil {
		return nil, fmt.Errorf("checking existing session %q: %w", req.Name, err)
	} else if existing != nil && isLive(existing.State) {
		return nil, ovserr.NewAgentError(req.Name, fmt.Sprintf("session %q already claimed", req.Name), nil)
	}

	// Step 9: enforce stagger.
	staggerMs := 0
	if e.Config != nil {
		staggerMs = e.Config.StaggerMs
	}
	if delay := calculateStaggerDelay(active, staggerMs, time.Now()); delay > 0 {
		time.Sleep(delay)
	}

	// Step 10: if a tracker is enabled, require the work item be workable.
	if e.TrackerEnabled && req.BeadID != "" {
		workable, err := e.Tracker.IsWorkable(req.BeadID)
		if err != nil {
			return nil, fmt.Errorf("checking work item %s: %w", req.BeadID, err)
		}
		if !workable {
			return nil, ovserr.NewAgentError(req.Name, fmt.Sprintf("work item %s is not workable", req.BeadID), nil)
		}
	}

	// Step 11: create the working copy on its own branch.
	branchName := constants.BranchName(req.Name, req.BeadID)
	worktreePath := constants.WorktreePath(e.ProjectRoot, e.Config.WorktreeBaseDir, req.Name)
	if err := e.createWorkingCopy(worktreePath, branchName); err != nil {
		return nil, fmt.Errorf("creating working copy for %s: %w", req.Name, err)
	}

	// Step 12: materialize the instruction overlay. On failure, clean up
	// the working copy we just created.
	if err := materializeOverlay(worktreePath, capDef, req.SpecPath, req.Files); err != nil {
		_ = os.RemoveAll(worktreePath)
		return nil, fmt.Errorf("materializing overlay for %s: %w", req.Name, err)
	}

	// Step 13: deploy hooks; claim the work item (non-fatal if already
	// claimed by someone else's race).
	if err := deployHooks(worktreePath, req.Capability); err != nil {
		_ = os.RemoveAll(worktreePath)
		return nil, fmt.Errorf("deploying hooks for %s: %w", req.Name, err)
	}
	if e.TrackerEnabled && req.BeadID != "" {
		e.Log.Discard("claim_work_item", func() error {
			return e.Tracker.ClaimWorkItem(req.BeadID, req.Name)
		})
	}

	// Step 14 + 15: birth the terminal session.
	sessionID := uuid.NewString()
	tmuxName := constants.SessionName(e.Config.ProjectName, req.Name)
	runnerCmd := composeRunnerCommand(e.Config, capDef, e.CostTier)

	if err := e.Tmux.NewSessionWithCommand(tmuxName, worktreePath, runnerCmd); err != nil {
		_ = os.RemoveAll(worktreePath)
		return nil, fmt.Errorf("starting session %s: %w", tmuxName, err)
	}

	// Step 16: record the session row before sending the beacon.
	now := time.Now().UTC()
	sess := &model.AgentSession{
		ID:              sessionID,
		AgentName:       req.Name,
		Capability:      req.Capability,
		WorktreePath:    worktreePath,
		BranchName:      branchName,
		BeadID:          req.BeadID,
		TmuxSession:     tmuxName,
		State:           constants.StateBooting,
		ParentAgent:     nonEmptyPtr(req.ParentAgent),
		Depth:           req.Depth,
		RunID:           &run.ID,
		StartedAt:       now,
		LastActivity:    now,
		EscalationLevel: 0,
	}
	if err := e.Sessions.Upsert(sess); err != nil {
		_ = e.Tmux.KillSession(tmuxName)
		_ = os.RemoveAll(worktreePath)
		return nil, fmt.Errorf("registering session %s: %w", req.Name, err)
	}

	// Step 17: increment the run's agent count.
	if err := e.Sessions.IncrementAgentCount(run.ID); err != nil {
		e.Log.Warn("increment_agent_count_failed", "run", run.ID, "err", err)
	}

	// Step 18: wait for the pane to render, then deliver the beacon.
	beacon := composeBeacon(req, capDef)
	if err := e.deliverBeacon(tmuxName, beacon); err != nil {
		e.Log.Warn("beacon_delivery_failed", "agent", req.Name, "err", err)
	}

	return sess, nil
}

func isLive(state string) bool {
	return state == constants.StateBooting || state == constants.StateWorking || state == constants.StateStalled
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// deliverBeacon polls the pane for non-empty output (bounded), sends the
// beacon, and follows with two bare Enter presses — the first one may be
// consumed by the runner's own re-render.
func (e *Engine) deliverBeacon(tmuxName, beacon string) error {
	deadline := time.Now().Add(constants.DefaultWaitForTUI)
	for time.Now().Before(deadline) {
		content, err := e.Tmux.CapturePane(tmuxName, 5)
		if err == nil && strings.TrimSpace(content) != "" {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}

	if err := e.Tmux.NudgeSession(tmuxName, beacon); err != nil {
		return err
	}
	time.Sleep(constants.BeaconFollowupDelay1)
	_ = e.Tmux.NudgeSession(tmuxName, "")
	time.Sleep(constants.BeaconFollowupDelay2 - constants.BeaconFollowupDelay1)
	_ = e.Tmux.NudgeSession(tmuxName, "")
	return nil
}

func composeBeacon(req SlingRequest, capDef config.CapabilityDef) string {
	if req.SpecPath != "" {
		return fmt.Sprintf("Begin work on %s as %s. See %s for the task spec.", req.BeadID, req.Name, req.SpecPath)
	}
	return fmt.Sprintf("Begin work on %s as %s.", req.BeadID, req.Name)
}
