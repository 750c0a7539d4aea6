package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/imkarma/steward/internal/config"
)

// CLIRunner spawns an external CLI process (claude, gemini, codex, etc.)
// and passes the rendered context as the final argument.
type CLIRunner struct {
	name string
	cfg  config.Worker
}

// NewCLIRunner creates a runner that spawns CLI processes.
func NewCLIRunner(name string, cfg config.Worker) *CLIRunner {
	return &CLIRunner{name: name, cfg: cfg}
}

func (r *CLIRunner) Name() string { return r.name }
func (r *CLIRunner) Mode() string { return "cli" }

// Run spawns the CLI worker process with the prompt.
//
// The prompt is passed as the last argument to the command.
// For example, if cmd="claude" and args=["--model", "sonnet"],
// the full command becomes: claude --print --model sonnet "the prompt"
//
// The worker runs in the specified working directory (repo root) so it
// has access to the project files.
func (r *CLIRunner) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	args := append(r.cfg.EffectiveArgs(), req.Prompt)

	// Apply timeout from config or request.
	timeout := time.Duration(r.cfg.DefaultTimeout()) * time.Second
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Cmd, args...)
	cmd.Dir = req.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	resp := &Response{
		Output:   stdout.String(),
		Duration: time.Since(start).Seconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			resp.ExitCode = -1
			resp.Error = fmt.Errorf("worker %s timed out after %ds", r.name, int(timeout.Seconds()))
			return resp, resp.Error
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			resp.ExitCode = exitErr.ExitCode()
		} else {
			resp.ExitCode = -1
		}

		// Include stderr in error context.
		if s := strings.TrimSpace(stderr.String()); s != "" {
			resp.Error = fmt.Errorf("worker %s exited with code %d: %s", r.name, resp.ExitCode, s)
		} else {
			resp.Error = fmt.Errorf("worker %s exited with code %d: %w", r.name, resp.ExitCode, err)
		}

		// Still return the response — partial output may be useful.
		return resp, nil
	}

	resp.ExitCode = 0
	return resp, nil
}

// CLIAvailable checks if the CLI command exists in PATH.
func CLIAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
