package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/vcs"
)

func loadManifestFor(projectRoot string) (*config.Manifest, error) {
	return config.LoadManifest(projectRoot)
}

// createWorkingCopy implements sling step 11: clone the project's
// canonical checkout into a fresh working copy and check out a new,
// exclusively-owned branch.
func (e *Engine) createWorkingCopy(worktreePath, branchName string) error {
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0755); err != nil {
		return fmt.Errorf("creating worktrees directory: %w", err)
	}

	canonical := e.workingCopyGit(e.ProjectRoot)
	bareStore := filepath.Join(e.ProjectRoot, ".overstory-objects")

	if _, err := os.Stat(bareStore); os.IsNotExist(err) {
		if err := canonical.CloneBare(e.ProjectRoot, bareStore); err != nil {
			return fmt.Errorf("creating shared object store: %w", err)
		}
	}

	if err := canonical.CloneWithReference(e.ProjectRoot, worktreePath, bareStore); err != nil {
		return fmt.Errorf("cloning working copy: %w", err)
	}

	wc := vcs.New(worktreePath)
	branch, err := canonical.CurrentBranch()
	if err != nil {
		branch = "main"
	}
	if err := wc.CreateBranch(branchName, branch); err != nil {
		return fmt.Errorf("creating branch %s: %w", branchName, err)
	}
	return nil
}

// materializeOverlay implements sling step 12: write the capability's
// instruction file, plus any caller-supplied spec and reference files,
// into the working copy.
func materializeOverlay(worktreePath string, capDef config.CapabilityDef, specPath string, files []string) error {
	overlayDir := filepath.Join(worktreePath, ".overstory")
	if err := os.MkdirAll(overlayDir, 0755); err != nil {
		return fmt.Errorf("creating overlay directory: %w", err)
	}

	if capDef.DefFile != "" {
		defSrc := filepath.Join(worktreePath, "..", "..", constants.AgentDefsDir, capDef.DefFile)
		if data, err := os.ReadFile(defSrc); err == nil {
			if err := os.WriteFile(filepath.Join(overlayDir, "CAPABILITY.md"), data, 0644); err != nil {
				return fmt.Errorf("writing capability overlay: %w", err)
			}
		}
	}

	if specPath != "" {
		data, err := os.ReadFile(specPath)
		if err != nil {
			return fmt.Errorf("reading spec file %s: %w", specPath, err)
		}
		if err := os.WriteFile(filepath.Join(overlayDir, "TASK.md"), data, 0644); err != nil {
			return fmt.Errorf("writing task overlay: %w", err)
		}
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("reading reference file %s: %w", f, err)
		}
		dest := filepath.Join(overlayDir, "refs", filepath.Base(f))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating refs directory: %w", err)
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return fmt.Errorf("writing reference file %s: %w", dest, err)
		}
	}
	return nil
}

// deployHooks implements the hook half of sling step 13: writes a hook
// manifest naming the capability and whether it is persistent into the
// working copy's host-configuration directory so the AI runner picks it
// up on start.
func deployHooks(worktreePath, capability string) error {
	hooksDir := filepath.Join(worktreePath, ".overstory", "hooks")
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}
	manifest := fmt.Sprintf(`{"capability":%q,"persistent":%t}`, capability, constants.IsPersistentCapability(capability))
	return os.WriteFile(filepath.Join(hooksDir, constants.HooksManifest), []byte(manifest), 0644)
}

// composeRunnerCommand builds the AI-runner invocation for a capability.
// Model selection, in priority order: the project's cost-tier override for
// this capability, then the manifest's own model field, then the runner's
// built-in default (no --model flag at all).
func composeRunnerCommand(cfg *config.ProjectConfig, capDef config.CapabilityDef, tier *config.CostTierOverride) string {
	cmd := cfg.RunnerCommand
	if cmd == "" {
		cmd = "claude"
	}
	args := append([]string{}, cfg.RunnerArgs...)

	model := capDef.Model
	if tier != nil {
		if m := tier.ModelFor(capDef.Capability); m != "" {
			model = m
		}
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	return strings.TrimSpace(cmd + " " + strings.Join(args, " "))
}
