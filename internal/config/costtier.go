package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/overstory-run/overstory/internal/constants"
)

// CostTier names a predefined model-selection override.
type CostTier string

const (
	TierStandard CostTier = "standard"
	TierEconomy  CostTier = "economy"
	TierBudget   CostTier = "budget"
)

// tierModels maps a tier to the model override for each capability it
// manages. An empty string means "use the runner's own default".
var tierModels = map[CostTier]map[string]string{
	TierStandard: {
		"lead": "", "scout": "", "builder": "", "reviewer": "", "merger": "",
	},
	TierEconomy: {
		"lead": "claude-sonnet-4", "scout": "claude-haiku-4", "builder": "",
		"reviewer": "claude-sonnet-4", "merger": "claude-sonnet-4",
	},
	TierBudget: {
		"lead": "claude-sonnet-4", "scout": "claude-haiku-4", "builder": "claude-sonnet-4",
		"reviewer": "claude-haiku-4", "merger": "claude-haiku-4",
	},
}

// IsValidTier reports whether name is one of the predefined tiers.
func IsValidTier(name string) bool {
	_, ok := tierModels[CostTier(name)]
	return ok
}

// CostTierOverride is the parsed form of overstory.toml: a project-level
// default tier plus any capability-specific exceptions to it.
type CostTierOverride struct {
	Tier       string            `toml:"tier"`
	Overrides  map[string]string `toml:"overrides"`
}

// LoadCostTierOverride reads overstory.toml from a project's control
// directory. A missing file yields the standard tier with no overrides.
func LoadCostTierOverride(controlDir string) (*CostTierOverride, error) {
	path := filepath.Join(controlDir, constants.CostTierFile)
	out := &CostTierOverride{Tier: string(TierStandard)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return out, nil
	}
	if _, err := toml.DecodeFile(path, out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if !IsValidTier(out.Tier) {
		return nil, fmt.Errorf("%s: unknown cost tier %q", path, out.Tier)
	}
	return out, nil
}

// ModelFor resolves the model override for a capability, checking the
// override's per-capability exceptions before falling back to the tier's
// default for that capability.
func (o *CostTierOverride) ModelFor(capability string) string {
	if m, ok := o.Overrides[capability]; ok {
		return m
	}
	return tierModels[CostTier(o.Tier)][capability]
}
