// Package dispatch hands work to opaque workers and parses their
// structured replies. Workers are external processes or HTTP APIs; the
// engine only sees the typed payload each one prints, never the worker's
// internals.
package dispatch

import (
	"context"
	"fmt"

	"github.com/imkarma/steward/internal/config"
)

// Request contains everything a worker needs for one step.
type Request struct {
	Prompt     string // Full rendered context
	WorkDir    string // Working directory (repo root)
	TimeoutSec int    // Max execution time
}

// Response is the raw worker result, before payload parsing.
type Response struct {
	Output   string  // Worker's text output
	ExitCode int     // 0 = success, non-zero = failure
	Duration float64 // Execution time in seconds
	Error    error   // Any execution error
}

// Runner is the interface all worker adapters implement.
type Runner interface {
	// Run executes the worker with the given request.
	Run(ctx context.Context, req Request) (*Response, error)

	// Name returns the worker's configured name.
	Name() string

	// Mode returns "cli" or "api".
	Mode() string
}

// NewRunner creates the appropriate runner for a worker config.
func NewRunner(name string, w config.Worker) (Runner, error) {
	switch w.Mode {
	case "cli":
		return NewCLIRunner(name, w), nil
	case "api":
		return NewAPIRunner(name, w)
	default:
		return nil, fmt.Errorf("unknown worker mode: %s", w.Mode)
	}
}
