package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	sessions, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	now := time.Now().UTC()
	if err := sessions.Upsert(&model.AgentSession{
		AgentName: "builder-1", Capability: "builder", WorktreePath: dir,
		TmuxSession: "proj-builder-1", State: "working",
		StartedAt: now, LastActivity: now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	return &app{root: dir, sessions: sessions}
}

func TestPrintStatusOnceListsActiveAgents(t *testing.T) {
	a := newTestApp(t)
	statusAgent, statusAll = "", false
	prevJSON := jsonOutput
	jsonOutput = false
	defer func() { jsonOutput = prevJSON }()

	buf := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(buf)

	if err := printStatusOnce(c, a); err != nil {
		t.Fatalf("printStatusOnce: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("builder-1")) {
		t.Errorf("output = %q, want it to mention builder-1", buf.String())
	}
}

func TestPrintStatusOnceJSON(t *testing.T) {
	a := newTestApp(t)
	statusAgent, statusAll = "", false
	prevJSON := jsonOutput
	jsonOutput = true
	defer func() { jsonOutput = prevJSON }()

	buf := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(buf)

	if err := printStatusOnce(c, a); err != nil {
		t.Fatalf("printStatusOnce: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"AgentName": "builder-1"`)) {
		t.Errorf("output = %q, want JSON with AgentName field", buf.String())
	}
}

func TestPrintStatusOnceJSONIncludesCostUsage(t *testing.T) {
	dir := t.TempDir()
	sessions, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	now := time.Now().UTC()
	if err := sessions.Upsert(&model.AgentSession{
		AgentName: "builder-1", Capability: "builder", WorktreePath: dir,
		TmuxSession: "proj-builder-1", State: "working",
		StartedAt: now, LastActivity: now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	metrics, err := store.OpenMetricsStore(filepath.Join(dir, "metrics.db"))
	if err != nil {
		t.Fatalf("OpenMetricsStore: %v", err)
	}
	t.Cleanup(func() { metrics.Close() })
	cost := 1.23
	if _, err := metrics.RecordSnapshot(&model.TokenSnapshot{AgentName: "builder-1", InputTokens: 10, EstimatedCostUsd: &cost}); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
	if err := metrics.UpsertMetrics(&model.SessionMetrics{AgentName: "builder-1", BeadID: "bead-1", EstimatedCostUsd: &cost}); err != nil {
		t.Fatalf("UpsertMetrics: %v", err)
	}

	a := &app{root: dir, sessions: sessions, metrics: metrics}
	statusAgent, statusAll, statusMergeQueue = "", false, false
	prevJSON := jsonOutput
	jsonOutput = true
	defer func() { jsonOutput = prevJSON }()

	buf := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(buf)

	if err := printStatusOnce(c, a); err != nil {
		t.Fatalf("printStatusOnce: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"estimatedCostUsd": 1.23`)) {
		t.Errorf("output = %q, want costUsage with estimatedCostUsd 1.23", buf.String())
	}
}

func TestPrintStatusOnceMergeQueue(t *testing.T) {
	dir := t.TempDir()
	mergeQueue, err := store.OpenMergeQueueStore(filepath.Join(dir, "merge-queue.db"))
	if err != nil {
		t.Fatalf("OpenMergeQueueStore: %v", err)
	}
	t.Cleanup(func() { mergeQueue.Close() })
	if _, err := mergeQueue.Enqueue(&model.MergeQueueEntry{
		BranchName: "overstory/builder-1/bead-1", AgentName: "builder-1", BeadID: "bead-1",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	a := &app{root: dir, mergeQueue: mergeQueue}

	prevJSON, prevMQ := jsonOutput, statusMergeQueue
	jsonOutput, statusMergeQueue = false, true
	defer func() { jsonOutput, statusMergeQueue = prevJSON, prevMQ }()

	buf := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(buf)

	if err := printStatusOnce(c, a); err != nil {
		t.Fatalf("printStatusOnce: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("builder-1")) {
		t.Errorf("output = %q, want it to mention builder-1", buf.String())
	}
}
