package dispatch

import (
	"context"
	"fmt"

	"github.com/imkarma/steward/internal/config"
)

// Dispatcher resolves capabilities to workers and runs steps through
// them. It is the only place the engine touches worker processes.
type Dispatcher struct {
	cfg     *config.Config
	workDir string

	// newRunner is swappable for tests.
	newRunner func(name string, w config.Worker) (Runner, error)
}

// New creates a dispatcher for the given config and repo root.
func New(cfg *config.Config, workDir string) *Dispatcher {
	return &Dispatcher{cfg: cfg, workDir: workDir, newRunner: NewRunner}
}

// Dispatch runs one step: resolve the capability, invoke the worker,
// parse and validate the payload.
func (d *Dispatcher) Dispatch(ctx context.Context, capability string, kind Kind, prompt string) (*Payload, error) {
	name, worker, ok := d.cfg.WorkerFor(capability)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWorker, capability)
	}

	runner, err := d.newRunner(name, worker)
	if err != nil {
		return nil, err
	}

	resp, err := runner.Run(ctx, Request{
		Prompt:     prompt,
		WorkDir:    d.workDir,
		TimeoutSec: worker.TimeoutSec,
	})
	if err != nil {
		return nil, &DispatchError{Worker: name, Step: string(kind), Reason: err.Error()}
	}
	if resp.ExitCode != 0 {
		reason := fmt.Sprintf("exit code %d", resp.ExitCode)
		if resp.Error != nil {
			reason = resp.Error.Error()
		}
		return nil, &DispatchError{Worker: name, Step: string(kind), Reason: reason, Output: resp.Output}
	}

	payload, err := ParsePayload(resp.Output, kind)
	if err != nil {
		return nil, &DispatchError{Worker: name, Step: string(kind), Reason: err.Error(), Output: resp.Output}
	}
	return payload, nil
}

// Available reports whether a capability can be served right now.
func (d *Dispatcher) Available(capability string) bool {
	_, worker, ok := d.cfg.WorkerFor(capability)
	if !ok {
		return false
	}
	if worker.Mode == "cli" {
		return CLIAvailable(worker.Cmd)
	}
	return true
}
