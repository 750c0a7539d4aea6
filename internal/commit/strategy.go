// Package commit decides when the engine creates version-control
// checkpoints during implementation. The strategy is chosen once per
// run and applied uniformly to every unit.
package commit

import "fmt"

// Strategy names a checkpoint cadence.
type Strategy string

const (
	// PerTask commits after every completed unit.
	PerTask Strategy = "per-task"
	// PerPhase commits after the last unit of each phase.
	PerPhase Strategy = "per-phase"
	// PerFeature commits once, after the final unit of the run.
	PerFeature Strategy = "per-feature"
	// Manual never commits automatically.
	Manual Strategy = "manual"
)

// Strategies lists every valid strategy, in documentation order.
func Strategies() []Strategy {
	return []Strategy{PerTask, PerPhase, PerFeature, Manual}
}

// Parse validates a strategy string from configuration or a flag.
func Parse(s string) (Strategy, error) {
	switch Strategy(s) {
	case PerTask, PerPhase, PerFeature, Manual:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown commit strategy %q (valid: per-task, per-phase, per-feature, manual)", s)
}

// Point describes where in the run a unit just finished.
type Point struct {
	// UnitDone is set whenever a unit reached its committed state.
	UnitDone bool
	// PhaseDone is set when the unit was the last in its phase.
	PhaseDone bool
	// RunDone is set when the unit was the last of the whole run.
	RunDone bool
}

// AutoCommitsAt reports whether the strategy creates a checkpoint at
// the given point.
func (s Strategy) AutoCommitsAt(p Point) bool {
	switch s {
	case PerTask:
		return p.UnitDone
	case PerPhase:
		return p.PhaseDone
	case PerFeature:
		return p.RunDone
	}
	return false
}

// Message formats the checkpoint message for a completed unit.
func Message(s Strategy, phase string, unit string) string {
	switch s {
	case PerPhase:
		return fmt.Sprintf("checkpoint: phase %s complete", phase)
	case PerFeature:
		return "checkpoint: implementation complete"
	default:
		return fmt.Sprintf("checkpoint: %s", unit)
	}
}
