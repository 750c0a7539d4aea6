package pipeline

import (
	"fmt"
	"os"

	"github.com/imkarma/steward/internal/artifact"
	"github.com/imkarma/steward/internal/store"
)

// Finding is one discrepancy between the recorded pipeline state and
// reality on disk.
type Finding struct {
	Severity string // warning, error
	Message  string
}

// Diagnose audits a pipeline without changing anything: accepted
// documents must exist on disk, units must not be stuck mid-execution,
// and an awaiting pipeline must actually have a stop point.
func (e *Engine) Diagnose(pipelineID int64) ([]Finding, error) {
	p, err := e.Store.GetPipeline(pipelineID)
	if err != nil {
		return nil, err
	}

	var findings []Finding

	artifacts, err := e.Store.ListArtifacts(p.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if !artifact.State(a.State).Accepted() {
			continue
		}
		if a.FilePath == "" {
			findings = append(findings, Finding{"error",
				fmt.Sprintf("%s is accepted but has no recorded file", a.Type)})
			continue
		}
		if _, err := os.Stat(a.FilePath); err != nil {
			findings = append(findings, Finding{"error",
				fmt.Sprintf("%s file missing on disk: %s", a.Type, a.FilePath)})
		}
	}

	if p.State == store.StateCompleted {
		for _, a := range artifacts {
			if !artifact.State(a.State).Terminal() {
				findings = append(findings, Finding{"warning",
					fmt.Sprintf("pipeline is completed but %s is still %s", a.Type, a.State)})
			}
		}
	}

	units, err := e.Store.ListUnits(p.ID)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		if u.State == store.UnitExecuting {
			findings = append(findings, Finding{"warning",
				fmt.Sprintf("unit %q is stuck in executing (likely an interrupted run)", u.Title)})
		}
	}

	if p.State == store.StateAwaitingApproval && p.PendingStop == "" {
		findings = append(findings, Finding{"error",
			"pipeline awaits approval but records no stop point"})
	}
	if p.State == store.StateEscalated {
		open, err := e.Store.ListOpenEscalations(p.ID)
		if err != nil {
			return nil, err
		}
		if len(open) == 0 {
			findings = append(findings, Finding{"warning",
				"pipeline is escalated but every escalation is resolved; run it to resume"})
		}
	}

	return findings, nil
}

// Resync repairs what Diagnose can repair mechanically: stuck units go
// back to pending. It returns the number of units reset.
func (e *Engine) Resync(pipelineID int64) (int, error) {
	n, err := e.Store.ResetStaleUnits(pipelineID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.Store.AddEvent(pipelineID, "", "resynced", fmt.Sprintf("%d stale unit(s) reset to pending", n))
	}
	return n, nil
}
