package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/overstory-run/overstory/internal/config"
)

func TestComposeRunnerCommandNoModel(t *testing.T) {
	cfg := &config.ProjectConfig{RunnerCommand: "claude", RunnerArgs: []string{"--dangerously-skip-permissions"}}
	got := composeRunnerCommand(cfg, config.CapabilityDef{Capability: "builder"}, nil)
	want := "claude --dangerously-skip-permissions"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestComposeRunnerCommandManifestModel(t *testing.T) {
	cfg := &config.ProjectConfig{RunnerCommand: "claude"}
	capDef := config.CapabilityDef{Capability: "builder", Model: "claude-opus"}
	got := composeRunnerCommand(cfg, capDef, nil)
	want := "claude --model claude-opus"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestComposeRunnerCommandCostTierOverridesManifest(t *testing.T) {
	cfg := &config.ProjectConfig{RunnerCommand: "claude"}
	capDef := config.CapabilityDef{Capability: "builder", Model: "claude-opus"}
	tier := &config.CostTierOverride{Tier: "standard", Overrides: map[string]string{"builder": "claude-haiku"}}
	got := composeRunnerCommand(cfg, capDef, tier)
	want := "claude --model claude-haiku"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestComposeRunnerCommandDefaultsToClaude(t *testing.T) {
	cfg := &config.ProjectConfig{}
	got := composeRunnerCommand(cfg, config.CapabilityDef{Capability: "builder"}, nil)
	if got != "claude" {
		t.Errorf("got %q, want %q", got, "claude")
	}
}

func TestMaterializeOverlayWritesSpecAndFiles(t *testing.T) {
	worktree := t.TempDir()

	specPath := filepath.Join(t.TempDir(), "task.md")
	if err := os.WriteFile(specPath, []byte("do the thing"), 0644); err != nil {
		t.Fatalf("writing spec fixture: %v", err)
	}
	refPath := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(refPath, []byte("context"), 0644); err != nil {
		t.Fatalf("writing ref fixture: %v", err)
	}

	err := materializeOverlay(worktree, config.CapabilityDef{}, specPath, []string{refPath})
	if err != nil {
		t.Fatalf("materializeOverlay: %v", err)
	}

	task, err := os.ReadFile(filepath.Join(worktree, ".overstory", "TASK.md"))
	if err != nil {
		t.Fatalf("reading TASK.md: %v", err)
	}
	if string(task) != "do the thing" {
		t.Errorf("TASK.md = %q, want %q", task, "do the thing")
	}

	ref, err := os.ReadFile(filepath.Join(worktree, ".overstory", "refs", "notes.txt"))
	if err != nil {
		t.Fatalf("reading ref file: %v", err)
	}
	if string(ref) != "context" {
		t.Errorf("ref file = %q, want %q", ref, "context")
	}
}

func TestMaterializeOverlayMissingSpecFails(t *testing.T) {
	worktree := t.TempDir()
	err := materializeOverlay(worktree, config.CapabilityDef{}, filepath.Join(worktree, "missing.md"), nil)
	if err == nil {
		t.Fatal("expected an error for a missing spec file")
	}
}

func TestDeployHooksWritesManifest(t *testing.T) {
	worktree := t.TempDir()
	if err := deployHooks(worktree, "builder"); err != nil {
		t.Fatalf("deployHooks: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(worktree, ".overstory", "hooks", "hooks.json"))
	if err != nil {
		t.Fatalf("reading hooks manifest: %v", err)
	}
	if string(data) != `{"capability":"builder","persistent":false}` {
		t.Errorf("manifest = %s", data)
	}
}
