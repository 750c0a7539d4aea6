package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// initTestRepo creates a temporary git repo with an initial commit.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %s failed: %s\n%s", strings.Join(args, " "), err, out)
		}
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "test")

	// Create initial commit.
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644)
	run("add", ".")
	run("commit", "-m", "initial commit")

	return dir
}

func TestIsGitRepo(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	if !s.IsGitRepo() {
		t.Fatal("expected IsGitRepo to return true")
	}

	// Non-git directory.
	if New(t.TempDir()).IsGitRepo() {
		t.Fatal("expected IsGitRepo to return false for non-git dir")
	}
}

func TestCurrentBranch(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	branch, err := s.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Fatalf("expected 'main', got %q", branch)
	}
}

func TestBaseBranch(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	base, err := s.BaseBranch()
	if err != nil {
		t.Fatalf("BaseBranch: %v", err)
	}
	if base != "main" {
		t.Fatalf("expected 'main', got %q", base)
	}
}

func TestBranchName(t *testing.T) {
	got := BranchName(42)
	if got != "steward/pipeline-42" {
		t.Fatalf("expected 'steward/pipeline-42', got %q", got)
	}
}

func TestCreateBranch_AndCheckout(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	if err := s.CreateBranch("steward/pipeline-1"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	branch, _ := s.CurrentBranch()
	if branch != "steward/pipeline-1" {
		t.Fatalf("expected 'steward/pipeline-1', got %q", branch)
	}

	// Switch back to main.
	if err := s.Checkout("main"); err != nil {
		t.Fatalf("Checkout main: %v", err)
	}

	// CreateBranch on an existing branch should just switch to it.
	if err := s.CreateBranch("steward/pipeline-1"); err != nil {
		t.Fatalf("CreateBranch existing: %v", err)
	}
	branch, _ = s.CurrentBranch()
	if branch != "steward/pipeline-1" {
		t.Fatalf("expected 'steward/pipeline-1' after re-create, got %q", branch)
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	// Clean repo — no changes.
	if s.HasUncommittedChanges() {
		t.Fatal("expected no uncommitted changes in fresh repo")
	}

	os.WriteFile(filepath.Join(dir, "new.txt"), []byte("content"), 0644)
	if !s.HasUncommittedChanges() {
		t.Fatal("expected uncommitted changes after creating a file")
	}
}

func TestCommitAll(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	// Nothing to commit.
	committed, err := s.CommitAll("empty commit")
	if err != nil {
		t.Fatalf("CommitAll empty: %v", err)
	}
	if committed {
		t.Fatal("expected no commit when nothing changed")
	}

	os.WriteFile(filepath.Join(dir, "code.go"), []byte("package main\n"), 0644)

	committed, err = s.CommitAll("add code.go")
	if err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if !committed {
		t.Fatal("expected a commit to be made")
	}
	if s.HasUncommittedChanges() {
		t.Fatal("expected clean state after commit")
	}
}

func TestDiff_And_DiffStat(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	s.CreateBranch("steward/pipeline-1")
	os.WriteFile(filepath.Join(dir, "feature.go"), []byte("package feature\n"), 0644)
	s.CommitAll("add feature")

	diff, err := s.Diff("main", "steward/pipeline-1")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(diff, "feature.go") {
		t.Fatalf("expected diff to contain 'feature.go', got: %s", diff)
	}

	stat, err := s.DiffStat("main", "steward/pipeline-1")
	if err != nil {
		t.Fatalf("DiffStat: %v", err)
	}
	if !strings.Contains(stat, "feature.go") {
		t.Fatalf("expected stat to contain 'feature.go', got: %s", stat)
	}
}

func TestMergeBranch(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	s.CreateBranch("steward/pipeline-1")
	os.WriteFile(filepath.Join(dir, "feature.go"), []byte("package feature\n"), 0644)
	s.CommitAll("add feature")

	if err := s.MergeBranch("main", "steward/pipeline-1"); err != nil {
		t.Fatalf("MergeBranch: %v", err)
	}

	branch, _ := s.CurrentBranch()
	if branch != "main" {
		t.Fatalf("expected 'main' after merge, got %q", branch)
	}
	if _, err := os.Stat(filepath.Join(dir, "feature.go")); os.IsNotExist(err) {
		t.Fatal("expected feature.go to exist on main after merge")
	}
}

func TestRejectBranch(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	s.CreateBranch("steward/pipeline-1")
	os.WriteFile(filepath.Join(dir, "bad-code.go"), []byte("package bad\n"), 0644)
	s.CommitAll("bad changes")

	if err := s.RejectBranch("main", "steward/pipeline-1"); err != nil {
		t.Fatalf("RejectBranch: %v", err)
	}

	branch, _ := s.CurrentBranch()
	if branch != "main" {
		t.Fatalf("expected 'main' after reject, got %q", branch)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad-code.go")); !os.IsNotExist(err) {
		t.Fatal("expected bad-code.go to NOT exist on main after reject")
	}
	if s.BranchExists("steward/pipeline-1") {
		t.Fatal("expected branch to be deleted after reject")
	}
}

func TestLogCommits(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	s.CreateBranch("steward/pipeline-1")
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("a\n"), 0644)
	s.CommitAll("first unit")
	os.WriteFile(filepath.Join(dir, "b.go"), []byte("b\n"), 0644)
	s.CommitAll("second unit")

	log, err := s.LogCommits("main", "steward/pipeline-1")
	if err != nil {
		t.Fatalf("LogCommits: %v", err)
	}
	if lines := strings.Split(log, "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 commits, got %d: %s", len(lines), log)
	}
}

func TestFullWorkflow_CreateWorkAcceptReject(t *testing.T) {
	dir := initTestRepo(t)
	s := New(dir)

	// 1. Create safety branch.
	branch := BranchName(1)
	if err := s.CreateBranch(branch); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	// 2. Two units of work land on it.
	os.WriteFile(filepath.Join(dir, "auth.go"), []byte("package auth\n"), 0644)
	if committed, _ := s.CommitAll("checkpoint: auth module"); !committed {
		t.Fatal("expected commit for unit 1")
	}
	os.WriteFile(filepath.Join(dir, "auth_test.go"), []byte("package auth\n"), 0644)
	if committed, _ := s.CommitAll("checkpoint: auth tests"); !committed {
		t.Fatal("expected commit for unit 2")
	}

	// 3. User reviews the total diff.
	diff, _ := s.Diff("main", branch)
	if !strings.Contains(diff, "auth.go") || !strings.Contains(diff, "auth_test.go") {
		t.Fatalf("diff should contain both files, got: %s", diff)
	}

	// 4. Accept — merge into main.
	if err := s.MergeBranch("main", branch); err != nil {
		t.Fatalf("merge: %v", err)
	}
	for _, f := range []string{"auth.go", "auth_test.go"} {
		if _, err := os.Stat(filepath.Join(dir, f)); os.IsNotExist(err) {
			t.Fatalf("expected %s on main after accept", f)
		}
	}

	// 5. Reject flow with a second run.
	branch2 := BranchName(2)
	s.CreateBranch(branch2)
	os.WriteFile(filepath.Join(dir, "bad.go"), []byte("bad\n"), 0644)
	s.CommitAll("checkpoint: bad code")

	s.RejectBranch("main", branch2)

	if _, err := os.Stat(filepath.Join(dir, "bad.go")); !os.IsNotExist(err) {
		t.Fatal("bad.go should not exist on main after reject")
	}
}
