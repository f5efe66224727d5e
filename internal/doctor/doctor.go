// Package doctor implements `overstory doctor`: a small set of narrow,
// independent checks against a project's control directory, each
// reporting ok/warning/critical with an optional fix hint in its details.
// No check repairs what it finds.
package doctor

import (
	"fmt"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/tmux"
)

// Status is the outcome of running one check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Context carries what every check needs: the project's control
// directory and a resolved project config (nil if config.yaml is
// missing or invalid — a check should treat that as its own finding,
// not crash on it).
type Context struct {
	ProjectRoot string
	Config      *config.ProjectConfig
}

// Result is one check's outcome.
type Result struct {
	Name    string
	Status  Status
	Message string
	Details []string
}

// Check is a single, independently runnable diagnostic.
type Check interface {
	Name() string
	Run(ctx *Context) *Result
}

// All returns the full narrow check set `overstory doctor` runs.
func All() []Check {
	return []Check{
		&SessionRegistryCheck{},
		&TmuxAvailableCheck{},
		&CurrentRunConsistencyCheck{},
	}
}

// RunAll runs every check in order and returns their results.
func RunAll(ctx *Context) []*Result {
	results := make([]*Result, 0, len(All()))
	for _, c := range All() {
		results = append(results, c.Run(ctx))
	}
	return results
}

// SessionRegistryCheck verifies the session database can be opened
// without error — a corrupt or lock-contended sessions.db is the single
// most disruptive failure mode for every other command.
type SessionRegistryCheck struct{}

func (c *SessionRegistryCheck) Name() string { return "session-registry-openable" }

func (c *SessionRegistryCheck) Run(ctx *Context) *Result {
	path := ctx.ProjectRoot + "/sessions.db"
	s, _, err := store.OpenSessionStore(path, "")
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusCritical, Message: fmt.Sprintf("cannot open session registry: %v", err)}
	}
	defer s.Close()
	return &Result{Name: c.Name(), Status: StatusOK, Message: "session registry opens cleanly"}
}

// TmuxAvailableCheck verifies the tmux binary is on PATH and a server
// can be queried — every lifecycle operation depends on it.
type TmuxAvailableCheck struct{}

func (c *TmuxAvailableCheck) Name() string { return "tmux-available" }

func (c *TmuxAvailableCheck) Run(ctx *Context) *Result {
	t := tmux.New()
	if !t.IsAvailable() {
		return &Result{Name: c.Name(), Status: StatusCritical, Message: "tmux binary not found on PATH"}
	}
	return &Result{Name: c.Name(), Status: StatusOK, Message: "tmux is available"}
}

// CurrentRunConsistencyCheck verifies current-run.txt, if present, names
// a run that actually exists and is still active — a leftover pointer
// from a crashed coordinator silently makes every subsequent Sling join
// the wrong run.
type CurrentRunConsistencyCheck struct{}

func (c *CurrentRunConsistencyCheck) Name() string { return "current-run-consistency" }

func (c *CurrentRunConsistencyCheck) Run(ctx *Context) *Result {
	runFile := ctx.ProjectRoot + "/current-run.txt"
	data, err := readFileTolerant(runFile)
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: fmt.Sprintf("cannot read current-run.txt: %v", err)}
	}
	if data == "" {
		return &Result{Name: c.Name(), Status: StatusOK, Message: "no current-run.txt (no active run)"}
	}

	path := ctx.ProjectRoot + "/sessions.db"
	s, _, err := store.OpenSessionStore(path, "")
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: fmt.Sprintf("cannot verify run: %v", err)}
	}
	defer s.Close()

	run, err := s.GetRun(data)
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: fmt.Sprintf("cannot look up run %s: %v", data, err)}
	}
	if run == nil {
		return &Result{Name: c.Name(), Status: StatusCritical, Message: fmt.Sprintf("current-run.txt names unknown run %s", data), Details: []string{"remove current-run.txt and re-run the coordinator"}}
	}
	if run.Status != "active" {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: fmt.Sprintf("current-run.txt names run %s which is already %s", data, run.Status)}
	}
	return &Result{Name: c.Name(), Status: StatusOK, Message: fmt.Sprintf("current-run.txt names active run %s", data)}
}
