// Package vcs adapts the working-copy operations Overstory's lifecycle
// engine needs from a source-control backend: creating an agent's
// isolated working copy, giving it its own exclusive branch, and checking
// branch state ahead of a merge-queue attempt. The only backend wired up
// is git, invoked as a subprocess exactly the way the rest of Overstory's
// adapters shell out to their external tool.
package vcs

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Git wraps git operations rooted at a repository path.
type Git struct {
	Dir string
}

// New returns a Git adapter rooted at dir.
func New(dir string) *Git {
	return &Git{Dir: dir}
}

func (g *Git) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether Dir is inside a git working tree.
func (g *Git) IsRepo() bool {
	_, err := g.run("rev-parse", "--is-inside-work-tree")
	return err == nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranch creates a new branch from base and checks it out.
func (g *Git) CreateBranch(name, base string) error {
	_, err := g.run("checkout", "-b", name, base)
	return err
}

// Checkout switches to an existing branch.
func (g *Git) Checkout(name string) error {
	_, err := g.run("checkout", name)
	return err
}

// BranchExists reports whether a local branch exists.
func (g *Git) BranchExists(name string) (bool, error) {
	_, err := g.run("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// RemoteBranchExists reports whether a branch exists on a remote.
func (g *Git) RemoteBranchExists(remote, name string) (bool, error) {
	_, err := g.run("show-ref", "--verify", "--quiet", "refs/remotes/"+remote+"/"+name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// HasUncommittedChanges reports whether the working tree has uncommitted
// changes.
func (g *Git) HasUncommittedChanges() (bool, error) {
	out, err := g.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Add stages the given paths (or everything, if paths is empty).
func (g *Git) Add(paths ...string) error {
	args := append([]string{"add"}, paths...)
	if len(paths) == 0 {
		args = append(args, "-A")
	}
	_, err := g.run(args...)
	return err
}

// Commit commits the staged changes.
func (g *Git) Commit(message string) error {
	_, err := g.run("commit", "-m", message)
	return err
}

// ListBranches returns every local branch name.
func (g *Git) ListBranches() ([]string, error) {
	out, err := g.run("for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CloneWithReference clones src into dst, borrowing objects from
// referenceRepo to avoid fetching them again. With --dissociate the
// borrowed objects are copied into the clone, so it does not depend on
// referenceRepo afterwards. Used for every agent working copy.
func (g *Git) CloneWithReference(src, dst, referenceRepo string) error {
	_, err := exec.Command("git", "clone", "--reference", referenceRepo, "--dissociate", src, dst).CombinedOutput()
	return err
}

// CloneBare creates a bare mirror clone of src at dst, the shared object
// store every agent's working copy clones against via CloneWithReference.
func (g *Git) CloneBare(src, dst string) error {
	_, err := exec.Command("git", "clone", "--bare", src, dst).CombinedOutput()
	return err
}

// FetchBranch fetches a single branch from a remote.
func (g *Git) FetchBranch(remote, branch string) error {
	_, err := g.run("fetch", remote, branch)
	return err
}

// FetchPrune fetches from a remote and prunes stale remote-tracking
// branches.
func (g *Git) FetchPrune(remote string) error {
	_, err := g.run("fetch", "--prune", remote)
	return err
}

// Merge merges a branch into the current branch.
func (g *Git) Merge(branch string) error {
	_, err := g.run("merge", "--no-ff", branch)
	return err
}

// CheckConflicts reports whether merging branch into the current branch
// would conflict, without leaving the working tree in a merge state —
// the merge queue's pre-flight check before attempting a real merge.
func (g *Git) CheckConflicts(branch string) (bool, error) {
	_, err := g.run("merge-tree", "--write-tree", "HEAD", branch)
	if err != nil {
		return true, nil
	}
	return false, nil
}

// RemoteTrackingBranchExists reports whether a remote-tracking ref exists
// locally for remote/branch.
func (g *Git) RemoteTrackingBranchExists(remote, branch string) (bool, error) {
	return g.RemoteBranchExists(remote, branch)
}

// PruneStaleBranches deletes local branches whose upstream is gone — the
// housekeeping pass run after a merge queue cycle completes.
func (g *Git) PruneStaleBranches(remote string) ([]string, error) {
	out, err := g.run("branch", "-vv")
	if err != nil {
		return nil, err
	}
	var pruned []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if !strings.Contains(line, ": gone]") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if _, err := g.run("branch", "-D", name); err == nil {
			pruned = append(pruned, name)
		}
	}
	return pruned, nil
}

// Rev resolves a revision expression (branch, tag, HEAD~N) to a commit SHA.
func (g *Git) Rev(expr string) (string, error) {
	return g.run("rev-parse", expr)
}

// Status returns porcelain status output.
func (g *Git) Status() (string, error) {
	return g.run("status", "--porcelain")
}
