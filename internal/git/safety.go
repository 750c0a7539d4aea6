// Package git provides the git-based safety net around pipeline runs.
// Before implementation starts, the engine creates a branch. After the
// run finishes, the user reviews the total diff and accepts (merge) or
// rejects (delete branch) the changes.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Safety manages the per-pipeline safety branch. All unit work for a
// pipeline happens on its branch; acceptance and rejection operate at
// the pipeline level.
type Safety struct {
	workDir string
}

// New creates a Safety instance for the given working directory.
func New(workDir string) *Safety {
	return &Safety{workDir: workDir}
}

// IsGitRepo checks if the working directory is a git repository.
func (s *Safety) IsGitRepo() bool {
	out, err := s.output("rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CurrentBranch returns the name of the current git branch.
func (s *Safety) CurrentBranch() (string, error) {
	out, err := s.output("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return out, nil
}

// BaseBranch detects the main/master branch name.
func (s *Safety) BaseBranch() (string, error) {
	// Try common names.
	for _, name := range []string{"main", "master"} {
		if s.BranchExists(name) {
			return name, nil
		}
	}
	// Fall back to current branch.
	return s.CurrentBranch()
}

// BranchName generates the safety branch name for a pipeline.
// Format: steward/pipeline-{id}
func BranchName(pipelineID int64) string {
	return fmt.Sprintf("steward/pipeline-%d", pipelineID)
}

// BranchExists checks if a branch exists.
func (s *Safety) BranchExists(branch string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", branch)
	cmd.Dir = s.workDir
	return cmd.Run() == nil
}

// HasUncommittedChanges checks for uncommitted changes in the working tree.
func (s *Safety) HasUncommittedChanges() bool {
	out, err := s.output("status", "--porcelain")
	return err == nil && out != ""
}

// CreateBranch creates a new branch from the current HEAD and switches
// to it. If the branch already exists, it just switches to it.
func (s *Safety) CreateBranch(branch string) error {
	if s.BranchExists(branch) {
		return s.Checkout(branch)
	}
	return s.run("checkout", "-b", branch)
}

// Checkout switches to an existing branch.
func (s *Safety) Checkout(branch string) error {
	return s.run("checkout", branch)
}

// CommitAll stages all changes and commits with the given message.
// Returns true if a commit was made, false if there was nothing to commit.
func (s *Safety) CommitAll(message string) (bool, error) {
	if err := s.run("add", "-A"); err != nil {
		return false, err
	}

	// Check if there are staged changes.
	diffCmd := exec.Command("git", "diff", "--cached", "--quiet")
	diffCmd.Dir = s.workDir
	if err := diffCmd.Run(); err == nil {
		// No staged changes — nothing to commit.
		return false, nil
	}

	if err := s.run("commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Diff returns the diff between the base branch and the pipeline
// branch — everything the run introduced.
func (s *Safety) Diff(baseBranch, branch string) (string, error) {
	cmd := exec.Command("git", "diff", baseBranch+"..."+branch)
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}

// DiffStat returns a summary of changes (files changed, insertions, deletions).
func (s *Safety) DiffStat(baseBranch, branch string) (string, error) {
	cmd := exec.Command("git", "diff", "--stat", baseBranch+"..."+branch)
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff --stat: %w", err)
	}
	return string(out), nil
}

// MergeBranch merges the pipeline branch into the base branch.
// This is the "accept" action.
func (s *Safety) MergeBranch(baseBranch, branch string) error {
	if err := s.Checkout(baseBranch); err != nil {
		return err
	}
	return s.run("merge", branch, "--no-ff", "-m", fmt.Sprintf("Merge %s", branch))
}

// DeleteBranch deletes a branch. Used by "reject" and post-merge cleanup.
func (s *Safety) DeleteBranch(branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	return s.run("branch", flag, branch)
}

// RejectBranch switches back to the base branch and force-deletes the
// pipeline branch — discard all produced work.
func (s *Safety) RejectBranch(baseBranch, branch string) error {
	if err := s.Checkout(baseBranch); err != nil {
		return err
	}
	return s.DeleteBranch(branch, true)
}

// LogCommits returns the one-line commit log for the pipeline branch
// since it diverged from base.
func (s *Safety) LogCommits(baseBranch, branch string) (string, error) {
	out, err := s.output("log", "--oneline", baseBranch+".."+branch)
	if err != nil {
		return "", fmt.Errorf("git log: %w", err)
	}
	return out, nil
}

// run executes a git command, surfacing stderr in the returned error.
func (s *Safety) run(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(out)))
	}
	return nil
}

// output executes a git command and returns its trimmed stdout.
func (s *Safety) output(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
