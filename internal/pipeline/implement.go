package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imkarma/steward/internal/artifact"
	"github.com/imkarma/steward/internal/commit"
	"github.com/imkarma/steward/internal/dispatch"
	"github.com/imkarma/steward/internal/escalate"
	"github.com/imkarma/steward/internal/git"
	"github.com/imkarma/steward/internal/store"
)

// prepareUnits makes sure the implementation phase has work. A run
// whose plan produced no breakdown gets a single unit covering the
// whole request.
func (e *Engine) prepareUnits(p *store.Pipeline) error {
	units, err := e.Store.ListUnits(p.ID)
	if err != nil {
		return err
	}
	if len(units) > 0 {
		return nil
	}
	return e.Store.CreateUnits(p.ID, []store.TaskUnit{
		{Title: p.Title, Description: p.Description, Phase: "1"},
	})
}

// storeUnits persists the plan's breakdown.
func (e *Engine) storeUnits(pipelineID int64, units []dispatch.Unit) error {
	rows := make([]store.TaskUnit, 0, len(units))
	for _, u := range units {
		rows = append(rows, store.TaskUnit{Title: u.Title, Description: u.Description, Phase: u.Phase})
	}
	return e.Store.CreateUnits(pipelineID, rows)
}

// runUnits executes pending units strictly in order, stopping on
// escalations and blocks. All file changes happen on the pipeline's
// safety branch.
func (e *Engine) runUnits(ctx context.Context, p *store.Pipeline) (*Status, error) {
	if err := e.ensureBranch(p); err != nil {
		return nil, err
	}

	units, err := e.Store.ListUnits(p.ID)
	if err != nil {
		return nil, err
	}
	strategy := e.strategy(p)

	for {
		u, err := e.Store.NextPendingUnit(p.ID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			break
		}

		status, err := e.executeUnit(ctx, p, u, strategy, units)
		if status != nil || err != nil {
			return status, err
		}
	}

	e.Store.AddEvent(p.ID, "", "implementation_complete", fmt.Sprintf("%d unit(s) finished", len(units)))
	return nil, e.Store.UpdatePipelineState(p.ID, store.StateCompleted)
}

// executeUnit runs one unit through execute → verify → commit. A nil,
// nil return means the unit completed and the next one may start.
func (e *Engine) executeUnit(ctx context.Context, p *store.Pipeline, u *store.TaskUnit, strategy commit.Strategy, all []store.TaskUnit) (*Status, error) {
	e.logf("unit %d/%d: %s", u.Seq+1, len(all), u.Title)
	if err := e.Store.UpdateUnitState(u.ID, store.UnitExecuting, ""); err != nil {
		return nil, err
	}

	payload, err := e.Dispatcher.Dispatch(ctx, "execute", dispatch.KindExecute, e.unitPrompt(p, u, nil))
	if status, herr := e.handleStepFailure(p, &u.ID, payload, err, fmt.Sprintf("execute unit %q", u.Title)); status != nil || herr != nil {
		return status, herr
	}

	// Quality check. A failed verification gets one corrective pass
	// before the unit is declared failed.
	if e.Dispatcher.Available("verify") {
		passed, details, err := e.verifyUnit(ctx, p, u, payload.Summary)
		if err != nil {
			return nil, err
		}
		if !passed {
			e.logf("verification failed, retrying: %s", details)
			payload, err = e.Dispatcher.Dispatch(ctx, "execute", dispatch.KindExecute,
				e.unitPrompt(p, u, []string{"Previous attempt failed verification: " + details}))
			if status, herr := e.handleStepFailure(p, &u.ID, payload, err, fmt.Sprintf("re-execute unit %q", u.Title)); status != nil || herr != nil {
				return status, herr
			}
			passed, details, err = e.verifyUnit(ctx, p, u, payload.Summary)
			if err != nil {
				return nil, err
			}
			if !passed {
				e.Store.UpdateUnitState(u.ID, store.UnitFailed, details)
				reason := fmt.Sprintf("unit %q failed verification twice: %s", u.Title, details)
				if err := e.Store.UpdatePipelineState(p.ID, store.StateFailed); err != nil {
					return nil, err
				}
				e.Store.AddEvent(p.ID, "", "unit_failed", reason)
				return &Status{State: store.StateFailed, Message: reason}, nil
			}
		}
	}
	if err := e.Store.UpdateUnitState(u.ID, store.UnitQualityChecked, payload.Summary); err != nil {
		return nil, err
	}

	// Checkpoint per the run's strategy.
	point := e.commitPoint(u, all)
	if strategy.AutoCommitsAt(point) && e.gitReady() {
		committed, err := e.Git.CommitAll(commit.Message(strategy, u.Phase, u.Title))
		if err != nil {
			e.logf("commit: %v", err)
		} else if committed {
			e.Store.UpdateUnitState(u.ID, store.UnitCommitted, "")
		}
	}

	if err := e.Store.UpdateUnitState(u.ID, store.UnitCompleted, ""); err != nil {
		return nil, err
	}
	e.Store.AddEvent(p.ID, "", "unit_completed", u.Title)
	return nil, nil
}

// RunSingleUnit executes exactly one pending unit and stops, regardless
// of how much work remains. Useful for supervised step-through runs.
func (e *Engine) RunSingleUnit(ctx context.Context, pipelineID, unitID int64) (*Status, error) {
	p, err := e.Store.GetPipeline(pipelineID)
	if err != nil {
		return nil, err
	}
	if p.State != store.StateImplementation {
		return nil, fmt.Errorf("pipeline %d is %s, not in implementation", p.ID, p.State)
	}
	if err := e.ensureBranch(p); err != nil {
		return nil, err
	}

	units, err := e.Store.ListUnits(p.ID)
	if err != nil {
		return nil, err
	}
	for i := range units {
		if units[i].ID != unitID {
			continue
		}
		if units[i].State != store.UnitPending {
			return nil, fmt.Errorf("unit %d is %s, not pending", unitID, units[i].State)
		}
		status, err := e.executeUnit(ctx, p, &units[i], e.strategy(p), units)
		if status != nil || err != nil {
			return status, err
		}
		return &Status{State: store.StateImplementation, Message: fmt.Sprintf("unit %q completed", units[i].Title)}, nil
	}
	return nil, fmt.Errorf("unit %d not found in pipeline %d", unitID, pipelineID)
}

// unitPrompt assembles the execution context for a unit. Execution is
// creation-class: the governing plan, when present, must be readable.
func (e *Engine) unitPrompt(p *store.Pipeline, u *store.TaskUnit, notes []string) string {
	c := dispatch.NewContext(
		"implementer",
		fmt.Sprintf("Implement this work unit: %s", u.Title),
	)
	c.AddSection("Unit", u.Description)
	c.AddSection("Request", p.Description)

	for _, t := range []artifact.Type{artifact.TypeWorkPlan, artifact.TypeDesign} {
		up, err := e.Store.GetArtifact(p.ID, string(t))
		if err != nil || !artifact.State(up.State).Accepted() {
			continue
		}
		c.AttachFile(fmt.Sprintf("Approved %s", t), up.FilePath, false)
	}
	for _, n := range notes {
		c.Note(n)
	}
	return c.Render()
}

// verifyUnit asks the verification worker to check the unit's result.
func (e *Engine) verifyUnit(ctx context.Context, p *store.Pipeline, u *store.TaskUnit, summary string) (bool, string, error) {
	c := dispatch.NewContext(
		"verifier",
		fmt.Sprintf("Verify the implementation of: %s", u.Title),
	)
	c.AddSection("Unit", u.Description)
	c.AddSection("Implementation Summary", summary)

	payload, err := e.Dispatcher.Dispatch(ctx, "verify", dispatch.KindVerify, c.Render())
	if err != nil {
		return false, "", err
	}
	if payload.Status != dispatch.StatusOK || payload.Verification == nil {
		return false, "verifier did not return a result", nil
	}
	return payload.Verification.Passed, payload.Verification.Details, nil
}

// commitPoint describes where the finished unit sits in the run.
func (e *Engine) commitPoint(u *store.TaskUnit, all []store.TaskUnit) commit.Point {
	point := commit.Point{UnitDone: true, PhaseDone: true, RunDone: true}
	for _, other := range all {
		if other.Seq <= u.Seq {
			continue
		}
		point.RunDone = false
		if other.Phase == u.Phase {
			point.PhaseDone = false
		}
	}
	return point
}

// handleStepFailure maps a dispatch outcome onto pipeline state. A nil,
// nil return means the step succeeded and its payload is usable.
func (e *Engine) handleStepFailure(p *store.Pipeline, unitID *int64, payload *dispatch.Payload, err error, step string) (*Status, error) {
	if err != nil {
		// A missing capability is an environment problem the user must
		// fix, not a worker fault.
		if errors.Is(err, dispatch.ErrNoWorker) {
			reason := fmt.Sprintf("%s: %v", step, err)
			if berr := e.Store.BlockPipeline(p.ID, reason); berr != nil {
				return nil, berr
			}
			return &Status{State: store.StateBlocked, Message: reason}, nil
		}
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	switch payload.Status {
	case dispatch.StatusEscalation:
		req := escalate.Route(*payload.Escalation)
		if req == nil {
			// The router judged the reported conflict routine.
			e.Store.AddEvent(p.ID, "", "escalation_dismissed", string(payload.Escalation.Kind))
			return nil, nil
		}
		options, _ := json.Marshal(req.SuggestedOptions)
		if _, err := e.Store.CreateEscalation(p.ID, unitID, string(req.Kind), string(req.Severity), req.Context, string(options)); err != nil {
			return nil, err
		}
		if unitID != nil {
			e.Store.UpdateUnitState(*unitID, store.UnitEscalationNeeded, "")
		}
		if err := e.Store.UpdatePipelineState(p.ID, store.StateEscalated); err != nil {
			return nil, err
		}
		return &Status{State: store.StateEscalated,
			Message: fmt.Sprintf("%s escalated: %s", step, req.Context)}, nil

	case dispatch.StatusBlocked:
		reason := fmt.Sprintf("%s: %s", step, payload.BlockedReason)
		if err := e.Store.BlockPipeline(p.ID, reason); err != nil {
			return nil, err
		}
		return &Status{State: store.StateBlocked, Message: reason}, nil
	}
	return nil, nil
}

// resumeEscalatedUnits returns units paused on now-resolved escalations
// to the pending queue.
func (e *Engine) resumeEscalatedUnits(pipelineID int64) error {
	units, err := e.Store.ListUnits(pipelineID)
	if err != nil {
		return err
	}
	for _, u := range units {
		if u.State == store.UnitEscalationNeeded {
			if err := e.Store.UpdateUnitState(u.ID, store.UnitPending, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureBranch puts the working tree on the pipeline's safety branch,
// creating it on first use.
func (e *Engine) ensureBranch(p *store.Pipeline) error {
	if !e.gitReady() {
		return nil
	}

	if p.GitBranch == "" {
		branch := git.BranchName(p.ID)
		if err := e.Git.CreateBranch(branch); err != nil {
			return fmt.Errorf("create safety branch: %w", err)
		}
		if err := e.Store.SetGitBranch(p.ID, branch); err != nil {
			return err
		}
		p.GitBranch = branch
		return nil
	}

	current, err := e.Git.CurrentBranch()
	if err != nil {
		return err
	}
	if current != p.GitBranch {
		if err := e.Git.CreateBranch(p.GitBranch); err != nil {
			return fmt.Errorf("switch to safety branch %s: %w", p.GitBranch, err)
		}
	}
	return nil
}

func (e *Engine) gitReady() bool {
	return e.Git != nil && e.Git.IsGitRepo()
}
