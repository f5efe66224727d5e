// Package tracker is the external-interface-only client for the issue
// tracker Overstory draws work items from. It wraps the tracker's CLI as
// a subprocess, the same "bd"-style integration the host fleet uses for
// its own issue tracker, narrowed to the handful of operations the
// lifecycle engine actually needs: resolving a work item, and claiming it
// so two agents can't be slung onto the same one.
package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// WorkItem is the subset of tracker fields the lifecycle engine reads.
type WorkItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assignedTo,omitempty"`
}

// Client wraps the tracker CLI, scoped to a tracker database directory.
type Client struct {
	DBDir string
	Bin   string // defaults to "bd"
}

// New returns a Client rooted at dbDir.
func New(dbDir string) *Client {
	return &Client{DBDir: dbDir, Bin: "bd"}
}

func (c *Client) run(args ...string) ([]byte, error) {
	bin := c.Bin
	if bin == "" {
		bin = "bd"
	}
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "BEADS_DIR="+c.DBDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tracker %s: %s", args[0], stderr.String())
	}
	return stdout.Bytes(), nil
}

// FetchWorkItem resolves a single work item by ID.
func (c *Client) FetchWorkItem(id string) (*WorkItem, error) {
	out, err := c.run("show", id, "--json")
	if err != nil {
		return nil, fmt.Errorf("fetching work item %s: %w", id, err)
	}
	var item WorkItem
	if err := json.Unmarshal(out, &item); err != nil {
		return nil, fmt.Errorf("parsing work item %s: %w", id, err)
	}
	return &item, nil
}

// ClaimWorkItem assigns a work item to an agent, the atomic step that
// prevents two slung agents from picking up the same bead.
func (c *Client) ClaimWorkItem(id, agentName string) error {
	_, err := c.run("update", id, "--assignee", agentName, "--status", "in_progress")
	if err != nil {
		return fmt.Errorf("claiming work item %s for %s: %w", id, agentName, err)
	}
	return nil
}

// IsWorkable reports whether a work item is open and unclaimed.
func (c *Client) IsWorkable(id string) (bool, error) {
	item, err := c.FetchWorkItem(id)
	if err != nil {
		return false, err
	}
	return item.Status != "closed" && item.AssignedTo == "", nil
}

// Show is a tracker-lookup interface that *Client satisfies, so code can
// depend on it instead of *Client directly and be tested against a fake.
type Show interface {
	FetchWorkItem(id string) (*WorkItem, error)
}

var _ Show = (*Client)(nil)
