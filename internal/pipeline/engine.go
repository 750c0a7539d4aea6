// Package pipeline drives a work request through the full lifecycle:
// classification, document planning, gated document production, human
// approval stops, and unit-by-unit implementation. The engine advances
// as far as it can and parks whenever a human decision is required; it
// never guesses past a stop point.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/imkarma/steward/internal/artifact"
	"github.com/imkarma/steward/internal/classify"
	"github.com/imkarma/steward/internal/commit"
	"github.com/imkarma/steward/internal/config"
	"github.com/imkarma/steward/internal/dispatch"
	"github.com/imkarma/steward/internal/gate"
	"github.com/imkarma/steward/internal/git"
	"github.com/imkarma/steward/internal/plan"
	"github.com/imkarma/steward/internal/store"
)

// StopClassification is the first approval stop point. Artifact stops
// use the "artifact:<type>" form.
const StopClassification = "classification"

// ArtifactStop names the approval stop for a document type.
func ArtifactStop(artifactType string) string {
	return "artifact:" + artifactType
}

// Dispatcher is the slice of the dispatch layer the engine uses.
// *dispatch.Dispatcher satisfies it; tests substitute fakes.
type Dispatcher interface {
	Dispatch(ctx context.Context, capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error)
	FanOutReview(ctx context.Context, capability string, prompts map[string]string, maxWorkers int) (gate.Review, error)
	Available(capability string) bool
}

// Engine wires the stores and workers together for one project.
type Engine struct {
	Store      *store.Store
	Dispatcher Dispatcher
	Gate       *gate.Controller
	Cfg        *config.Config
	Git        *git.Safety
	DocsDir    string
	WorkDir    string

	// Out receives progress lines; nil silences them.
	Out io.Writer
}

// Status is what Run reports back: where the pipeline stopped and why.
type Status struct {
	State   store.PipelineState
	Stop    string // stop point, when awaiting approval
	Message string
}

// Submit creates a pipeline, classifies the request, and parks at the
// classification stop. Classification is deterministic and local, so it
// runs inline.
func (e *Engine) Submit(req classify.Request) (*store.Pipeline, *classify.Classification, error) {
	p, err := e.Store.CreatePipeline(req.Title, req.Description)
	if err != nil {
		return nil, nil, err
	}

	c := classify.Classify(req)
	data, err := json.Marshal(c)
	if err != nil {
		return nil, nil, fmt.Errorf("encode classification: %w", err)
	}
	if err := e.Store.SetClassification(p.ID, string(data)); err != nil {
		return nil, nil, err
	}

	strategy := e.Cfg.Pipeline.CommitStrategy
	if err := e.Store.SetCommitStrategy(p.ID, strategy); err != nil {
		return nil, nil, err
	}

	if err := e.Store.SetPendingStop(p.ID, StopClassification); err != nil {
		return nil, nil, err
	}
	if err := e.Store.UpdatePipelineState(p.ID, store.StateAwaitingApproval); err != nil {
		return nil, nil, err
	}
	e.Store.AddEvent(p.ID, "", "classified",
		fmt.Sprintf("scale=%s confidence=%s artifacts=%v", c.Scale, c.Confidence, c.RequiredArtifacts))

	return p, &c, nil
}

// Run advances the pipeline until it reaches a stop: an approval point,
// an open escalation, a block, or completion.
func (e *Engine) Run(ctx context.Context, pipelineID int64) (*Status, error) {
	for {
		p, err := e.Store.GetPipeline(pipelineID)
		if err != nil {
			return nil, err
		}

		switch p.State {
		case store.StateAwaitingApproval:
			granted, err := e.Store.HasApproval(p.ID, p.PendingStop)
			if err != nil {
				return nil, err
			}
			if !granted {
				return &Status{State: p.State, Stop: p.PendingStop,
					Message: fmt.Sprintf("waiting for approval at %s", p.PendingStop)}, nil
			}
			if err := e.resumeFromStop(p); err != nil {
				return nil, err
			}

		case store.StatePlanning:
			if err := e.planDocuments(p); err != nil {
				return nil, err
			}

		case store.StateDocumentPhase:
			stopped, err := e.nextDocument(ctx, p)
			if err != nil {
				return nil, err
			}
			if stopped != nil {
				return stopped, nil
			}

		case store.StateImplementation:
			stopped, err := e.runUnits(ctx, p)
			if err != nil {
				return nil, err
			}
			if stopped != nil {
				return stopped, nil
			}

		case store.StateEscalated:
			open, err := e.Store.ListOpenEscalations(p.ID)
			if err != nil {
				return nil, err
			}
			if len(open) > 0 {
				return &Status{State: p.State,
					Message: fmt.Sprintf("%d escalation(s) awaiting resolution", len(open))}, nil
			}
			// Every escalation resolved — resume the phase that was
			// paused, not past it.
			if err := e.resumeEscalatedUnits(p.ID); err != nil {
				return nil, err
			}
			next, err := e.resumeState(p.ID)
			if err != nil {
				return nil, err
			}
			if err := e.Store.UpdatePipelineState(p.ID, next); err != nil {
				return nil, err
			}

		case store.StateBlocked:
			return &Status{State: p.State, Message: p.BlockedReason}, nil

		case store.StateCompleted, store.StateFailed:
			return &Status{State: p.State, Message: "pipeline finished"}, nil

		default:
			return nil, fmt.Errorf("pipeline %d in unexpected state %s", p.ID, p.State)
		}
	}
}

// resumeState picks where a resolved escalation returns to. A document
// escalation leaves planned documents unaccepted, so those runs go back
// through the document phase; otherwise implementation continues.
func (e *Engine) resumeState(pipelineID int64) (store.PipelineState, error) {
	artifacts, err := e.Store.ListArtifacts(pipelineID)
	if err != nil {
		return "", err
	}
	for _, a := range artifacts {
		if !artifact.State(a.State).Accepted() {
			return store.StateDocumentPhase, nil
		}
	}
	return store.StateImplementation, nil
}

// resumeFromStop clears an approved stop and moves to the next state.
func (e *Engine) resumeFromStop(p *store.Pipeline) error {
	stop := p.PendingStop
	if err := e.Store.SetPendingStop(p.ID, ""); err != nil {
		return err
	}

	next := store.StateDocumentPhase
	if stop == StopClassification {
		next = store.StatePlanning
	}
	return e.Store.UpdatePipelineState(p.ID, next)
}

// planDocuments expands the stored classification into artifact rows.
// A plan with no documents goes straight to implementation.
func (e *Engine) planDocuments(p *store.Pipeline) error {
	c, err := e.classification(p)
	if err != nil {
		return err
	}

	specs, err := plan.Build(*c)
	if err != nil {
		return err
	}

	for _, spec := range specs {
		if _, err := e.Store.CreateArtifact(p.ID, string(spec.Type)); err != nil {
			return err
		}
	}
	e.Store.AddEvent(p.ID, "", "planned", fmt.Sprintf("%d document(s) planned", len(specs)))

	if len(specs) == 0 {
		e.logf("no documents required, moving to implementation")
		if err := e.prepareUnits(p); err != nil {
			return err
		}
		return e.Store.UpdatePipelineState(p.ID, store.StateImplementation)
	}
	return e.Store.UpdatePipelineState(p.ID, store.StateDocumentPhase)
}

// classification decodes the stored classification record.
func (e *Engine) classification(p *store.Pipeline) (*classify.Classification, error) {
	if p.Classification == "" {
		return nil, fmt.Errorf("pipeline %d has no classification", p.ID)
	}
	var c classify.Classification
	if err := json.Unmarshal([]byte(p.Classification), &c); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	return &c, nil
}

// strategy returns the run's commit strategy.
func (e *Engine) strategy(p *store.Pipeline) commit.Strategy {
	s, err := commit.Parse(p.CommitStrategy)
	if err != nil {
		return commit.PerTask
	}
	return s
}

func (e *Engine) logf(format string, args ...any) {
	if e.Out != nil {
		fmt.Fprintf(e.Out, format+"\n", args...)
	}
}
