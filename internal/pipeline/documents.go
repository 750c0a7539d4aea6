package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/imkarma/steward/internal/artifact"
	"github.com/imkarma/steward/internal/dispatch"
	"github.com/imkarma/steward/internal/gate"
	"github.com/imkarma/steward/internal/plan"
	"github.com/imkarma/steward/internal/revise"
	"github.com/imkarma/steward/internal/store"
)

// nextDocument produces the first unaccepted planned document, then
// parks at its approval stop. When every document is accepted it
// prepares the implementation phase and returns nil to continue.
func (e *Engine) nextDocument(ctx context.Context, p *store.Pipeline) (*Status, error) {
	artifacts, err := e.Store.ListArtifacts(p.ID)
	if err != nil {
		return nil, err
	}

	for _, a := range artifacts {
		if artifact.State(a.State).Accepted() {
			continue
		}
		return e.produceDocument(ctx, p, &a)
	}

	// Document phase complete.
	if err := e.prepareUnits(p); err != nil {
		return nil, err
	}
	return nil, e.Store.UpdatePipelineState(p.ID, store.StateImplementation)
}

// produceDocument runs author → gate → revise for one document, records
// the full gate history, and parks the pipeline at the document's
// approval stop on acceptance.
func (e *Engine) produceDocument(ctx context.Context, p *store.Pipeline, a *store.Artifact) (*Status, error) {
	t := artifact.Type(a.Type)
	def, ok := artifact.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", a.Type)
	}

	e.logf("producing %s document", t)

	// A re-authored document (after rejection or an unresolved block)
	// starts a fresh lifecycle from draft.
	if artifact.State(a.State) != artifact.StateDraft {
		if err := e.Store.UpdateArtifactState(a.ID, string(artifact.StateDraft)); err != nil {
			return nil, err
		}
		a.State = string(artifact.StateDraft)
	}

	prompt, err := e.authorPrompt(p, t, def)
	if err != nil {
		return nil, err
	}

	payload, err := e.Dispatcher.Dispatch(ctx, def.CreateCapability, dispatch.KindAuthor, prompt)
	if status, herr := e.handleStepFailure(p, nil, payload, err,
		fmt.Sprintf("author %s", t)); status != nil || herr != nil {
		return status, herr
	}

	// A plan document carries the implementation breakdown; persist it
	// now so approval of the document approves the units with it.
	if t == artifact.TypeWorkPlan && len(payload.Units) > 0 {
		if err := e.storeUnits(p.ID, payload.Units); err != nil {
			return nil, err
		}
	}

	version := 1
	loop := &revise.Loop{
		MaxAttempts: e.Cfg.Pipeline.MaxRevisions,
		Gate: func(ctx context.Context, doc string) ([]gate.Result, error) {
			if err := e.setArtifactState(a, artifact.StateGateChecking); err != nil {
				return nil, err
			}
			results, err := e.Gate.Check(def, doc, func() (gate.Review, error) {
				return e.qualityReview(ctx, p, t, doc)
			})
			for _, r := range results {
				detail, _ := json.Marshal(r)
				e.Store.AddGateRecord(a.ID, version, string(r.Stage), string(r.Verdict), string(detail))
			}
			return results, err
		},
		Revise: func(ctx context.Context, doc string, findings []gate.Result) (string, error) {
			if err := e.setArtifactState(a, artifact.StateNeedsRevision); err != nil {
				return "", err
			}
			if err := e.setArtifactState(a, artifact.StateRevising); err != nil {
				return "", err
			}
			version++
			return e.reviseDocument(ctx, p, t, doc, findings)
		},
	}

	outcome, err := loop.Run(ctx, payload.Document)
	if err != nil {
		if errors.Is(err, revise.ErrUnresolvable) || errors.Is(err, revise.ErrRejected) {
			state := artifact.StateNeedsRevision
			if errors.Is(err, revise.ErrRejected) {
				state = artifact.StateRejected
			}
			if serr := e.setArtifactState(a, state); serr != nil {
				return nil, serr
			}
			reason := fmt.Sprintf("%s document did not pass the gate: %v", t, err)
			if berr := e.Store.BlockPipeline(p.ID, reason); berr != nil {
				return nil, berr
			}
			return &Status{State: store.StateBlocked, Message: reason}, nil
		}
		return nil, err
	}

	// Persist the accepted text and park at the approval stop.
	path := artifact.FilePath(e.DocsDir, t, p.ID, version)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(outcome.Document), 0644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	if err := e.Store.SetArtifactFile(a.ID, path, version); err != nil {
		return nil, err
	}

	state := artifact.StateApproved
	if outcome.Verdict == gate.VerdictApprovedWithConditions {
		state = artifact.StateApprovedWithConditions
	}
	if err := e.setArtifactState(a, state); err != nil {
		return nil, err
	}
	e.Store.AddEvent(p.ID, "", "document_accepted",
		fmt.Sprintf("%s v%d (%s, %d revision(s))", t, version, outcome.Verdict, outcome.Attempts))

	stop := ArtifactStop(string(t))
	if err := e.Store.SetPendingStop(p.ID, stop); err != nil {
		return nil, err
	}
	if err := e.Store.UpdatePipelineState(p.ID, store.StateAwaitingApproval); err != nil {
		return nil, err
	}
	return &Status{State: store.StateAwaitingApproval, Stop: stop,
		Message: fmt.Sprintf("%s ready for review at %s", t, path)}, nil
}

// authorPrompt assembles the creation context. Authoring is a
// creation-class step: a missing approved upstream is fatal.
func (e *Engine) authorPrompt(p *store.Pipeline, t artifact.Type, def artifact.Definition) (string, error) {
	c := dispatch.NewContext(
		fmt.Sprintf("%s author", t),
		fmt.Sprintf("Produce the %s document for: %s", t, p.Title),
	)
	c.AddSection("Request", p.Description)
	c.AddSection("Classification", p.Classification)
	c.AddSection("Mandatory Sections", sectionList(def.MandatorySections))

	for _, dep := range def.DependsOn {
		up, err := e.Store.GetArtifact(p.ID, string(dep))
		if err != nil {
			continue // upstream was not planned for this run
		}
		if !artifact.State(up.State).Accepted() || up.FilePath == "" {
			return "", fmt.Errorf("%s requires accepted %s before authoring", t, dep)
		}
		if err := c.AttachFile(fmt.Sprintf("Approved %s", dep), up.FilePath, true); err != nil {
			return "", err
		}
	}
	return c.Render(), nil
}

// qualityReview fans perspective reviews out and merges them for the
// quality gate. Consistency is scoped first: the first document of a
// run has nothing to conflict with, so reviewers are told to skip that
// analysis instead of comparing against nothing.
func (e *Engine) qualityReview(ctx context.Context, p *store.Pipeline, t artifact.Type, doc string) (gate.Review, error) {
	targets := e.reviewTargets(p, t)
	names := make([]string, 0, len(targets))
	for _, a := range targets {
		names = append(names, a.Type)
	}
	scope := plan.Consistency(names)

	prompts := map[string]string{}
	for _, perspective := range e.Cfg.Pipeline.Perspectives {
		c := dispatch.NewContext(
			fmt.Sprintf("%s reviewer", perspective),
			fmt.Sprintf("Review the %s document below strictly from the %s perspective. Score every rubric dimension.", t, perspective),
		)
		c.AddSection("Document", doc)
		if scope.Skipped {
			c.Note("Cross-document consistency: " + scope.Reason)
		} else {
			for _, up := range targets {
				c.AttachFile(fmt.Sprintf("Approved %s", up.Type), up.FilePath, false)
			}
		}
		prompts[perspective] = c.Render()
	}
	return e.Dispatcher.FanOutReview(ctx, "review.quality", prompts, e.Cfg.Pipeline.FanOutWorkers)
}

// reviewTargets lists the run's already accepted documents, the only
// things the one under review can conflict with. Review is
// analysis-class: nothing here is fatal.
func (e *Engine) reviewTargets(p *store.Pipeline, t artifact.Type) []store.Artifact {
	artifacts, err := e.Store.ListArtifacts(p.ID)
	if err != nil {
		return nil
	}
	var out []store.Artifact
	for _, a := range artifacts {
		if a.Type == string(t) || !artifact.State(a.State).Accepted() || a.FilePath == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// setArtifactState applies one lifecycle edge, refusing moves the
// transition table does not allow. Only the driver writes document
// states, and only through this.
func (e *Engine) setArtifactState(a *store.Artifact, to artifact.State) error {
	from := artifact.State(a.State)
	if !artifact.CanTransition(from, to) {
		return fmt.Errorf("%s document cannot move from %s to %s", a.Type, from, to)
	}
	if err := e.Store.UpdateArtifactState(a.ID, string(to)); err != nil {
		return err
	}
	a.State = string(to)
	return nil
}

// reviseDocument routes the document back to its dedicated reviser with
// the gate findings.
func (e *Engine) reviseDocument(ctx context.Context, p *store.Pipeline, t artifact.Type, doc string, findings []gate.Result) (string, error) {
	c := dispatch.NewContext(
		fmt.Sprintf("%s reviser", t),
		fmt.Sprintf("Revise the %s document to resolve every finding below. Address each item explicitly; do not drop accepted content.", t),
	)
	c.AddSection("Current Document", doc)

	detail, err := json.Marshal(findings)
	if err != nil {
		return "", fmt.Errorf("encode findings: %w", err)
	}
	c.AddSection("Gate Findings", string(detail))

	payload, err := e.Dispatcher.Dispatch(ctx, revise.CapabilityFor(t), dispatch.KindRevise, c.Render())
	if err != nil {
		return "", err
	}
	if payload.Status != dispatch.StatusOK {
		return "", fmt.Errorf("reviser did not return a document (status %s)", payload.Status)
	}
	return payload.Document, nil
}

func sectionList(sections []string) string {
	out := ""
	for _, s := range sections {
		out += "- " + s + "\n"
	}
	return out
}
