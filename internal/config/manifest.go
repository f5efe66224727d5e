package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/overstory-run/overstory/internal/constants"
)

// CapabilityDef is one entry in agent-manifest.json: the fixed roster of
// capabilities a project has made available to sling, together with the
// Markdown file under agent-defs/ describing that capability's behavior.
type CapabilityDef struct {
	Capability string   `json:"capability"`
	DefFile    string   `json:"defFile"`
	Model      string   `json:"model,omitempty"`
	Tools      []string `json:"tools,omitempty"`
	CanSpawn   []string `json:"canSpawn,omitempty"`
	MaxDepth   int      `json:"maxDepth,omitempty"`
}

// Manifest is the parsed agent-manifest.json.
type Manifest struct {
	Capabilities []CapabilityDef `json:"capabilities"`
}

// LoadManifest reads agent-manifest.json from a project's control
// directory.
func LoadManifest(controlDir string) (*Manifest, error) {
	path := filepath.Join(controlDir, constants.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// Find returns the definition for a capability, or (nil, false).
func (m *Manifest) Find(capability string) (CapabilityDef, bool) {
	for _, c := range m.Capabilities {
		if c.Capability == capability {
			return c, true
		}
	}
	return CapabilityDef{}, false
}

// DefPath resolves a capability's definition file to an absolute path
// under agent-defs/.
func DefPath(controlDir string, def CapabilityDef) string {
	return filepath.Join(controlDir, constants.AgentDefsDir, def.DefFile)
}
