// Package expertise is the external-interface-only client for the
// domain-expertise service Overstory consults when slinging a lead or
// builder into an unfamiliar area of a repository — out of scope to
// implement, narrowed here to the lookup the lifecycle engine calls.
package expertise

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Advice is the subset of an expertise lookup result the lifecycle engine
// attaches to a spawn's beacon message.
type Advice struct {
	Area    string   `json:"area"`
	Summary string   `json:"summary"`
	Files   []string `json:"files,omitempty"`
}

// Client wraps the expertise service's CLI as a subprocess.
type Client struct {
	Bin string // defaults to "mulch"
}

// New returns a Client using the default binary name.
func New() *Client {
	return &Client{Bin: "mulch"}
}

// Lookup queries domain expertise for a working-copy path. A non-zero
// exit or malformed output is tolerated by callers as "no advice
// available" rather than a spawn-blocking failure.
func (c *Client) Lookup(workDir string) (*Advice, error) {
	bin := c.Bin
	if bin == "" {
		bin = "mulch"
	}
	cmd := exec.Command(bin, "advise", "--json")
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("expertise lookup: %s", stderr.String())
	}
	var advice Advice
	if err := json.Unmarshal(stdout.Bytes(), &advice); err != nil {
		return nil, fmt.Errorf("parsing expertise advice: %w", err)
	}
	return &advice, nil
}

// Lookuper is the narrow interface lifecycle code depends on, so tests can
// substitute a fake instead of shelling out.
type Lookuper interface {
	Lookup(workDir string) (*Advice, error)
}

var _ Lookuper = (*Client)(nil)
