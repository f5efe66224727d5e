package store

import (
	"path/filepath"
	"testing"

	"github.com/overstory-run/overstory/internal/model"
)

func openTestMetricsStore(t *testing.T) *MetricsStore {
	t.Helper()
	m, err := OpenMetricsStore(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("OpenMetricsStore: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestEstimateCostUsdKnownModel(t *testing.T) {
	cost := EstimateCostUsd("claude-sonnet-4", 1_000_000, 1_000_000, 0, 0)
	want := 3.0 + 15.0
	if cost != want {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}

func TestEstimateCostUsdUnknownModelFallsBackToSonnetRate(t *testing.T) {
	known := EstimateCostUsd("claude-sonnet-4", 500_000, 0, 0, 0)
	unknown := EstimateCostUsd("some-future-model", 500_000, 0, 0, 0)
	if known != unknown {
		t.Errorf("unknown model cost = %v, want fallback to match known sonnet cost %v", unknown, known)
	}
}

func TestEstimateCostUsdCacheReadIsCheaperThanFreshInput(t *testing.T) {
	fresh := EstimateCostUsd("claude-sonnet-4", 1_000_000, 0, 0, 0)
	cached := EstimateCostUsd("claude-sonnet-4", 0, 0, 1_000_000, 0)
	if cached >= fresh {
		t.Errorf("cached cost %v should be cheaper than fresh input cost %v", cached, fresh)
	}
}

func TestMetricsGetLatestSnapshotsReturnsMostRecentPerAgent(t *testing.T) {
	m := openTestMetricsStore(t)

	cost1 := 0.10
	if _, err := m.RecordSnapshot(&model.TokenSnapshot{AgentName: "builder-1", InputTokens: 100, EstimatedCostUsd: &cost1}); err != nil {
		t.Fatalf("RecordSnapshot 1: %v", err)
	}
	cost2 := 0.25
	if _, err := m.RecordSnapshot(&model.TokenSnapshot{AgentName: "builder-1", InputTokens: 250, EstimatedCostUsd: &cost2}); err != nil {
		t.Fatalf("RecordSnapshot 2: %v", err)
	}
	cost3 := 0.05
	if _, err := m.RecordSnapshot(&model.TokenSnapshot{AgentName: "scout-1", InputTokens: 50, EstimatedCostUsd: &cost3}); err != nil {
		t.Fatalf("RecordSnapshot 3: %v", err)
	}

	latest, err := m.GetLatestSnapshots()
	if err != nil {
		t.Fatalf("GetLatestSnapshots: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("len(latest) = %d, want 2", len(latest))
	}

	byAgent := map[string]*model.TokenSnapshot{}
	for _, ts := range latest {
		byAgent[ts.AgentName] = ts
	}
	if byAgent["builder-1"].InputTokens != 250 {
		t.Errorf("builder-1 latest InputTokens = %d, want 250 (the more recent snapshot)", byAgent["builder-1"].InputTokens)
	}
}

func TestMetricsCumulativeCostForAgentSumsAcrossBeads(t *testing.T) {
	m := openTestMetricsStore(t)

	cost1, cost2 := 1.5, 2.25
	if err := m.UpsertMetrics(&model.SessionMetrics{AgentName: "builder-1", BeadID: "bead-1", EstimatedCostUsd: &cost1}); err != nil {
		t.Fatalf("UpsertMetrics 1: %v", err)
	}
	if err := m.UpsertMetrics(&model.SessionMetrics{AgentName: "builder-1", BeadID: "bead-2", EstimatedCostUsd: &cost2}); err != nil {
		t.Fatalf("UpsertMetrics 2: %v", err)
	}

	total, err := m.CumulativeCostForAgent("builder-1")
	if err != nil {
		t.Fatalf("CumulativeCostForAgent: %v", err)
	}
	if total != 3.75 {
		t.Errorf("total = %v, want 3.75", total)
	}
}

func TestMetricsCumulativeCostForAgentWithNoRowsIsZero(t *testing.T) {
	m := openTestMetricsStore(t)

	total, err := m.CumulativeCostForAgent("nobody")
	if err != nil {
		t.Fatalf("CumulativeCostForAgent: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %v, want 0", total)
	}
}
