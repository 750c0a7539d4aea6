package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imkarma/steward/internal/classify"
	"github.com/imkarma/steward/internal/config"
	"github.com/imkarma/steward/internal/dispatch"
	"github.com/imkarma/steward/internal/escalate"
	"github.com/imkarma/steward/internal/gate"
	"github.com/imkarma/steward/internal/store"
)

// fakeDispatcher scripts worker behavior per capability. Every fan-out
// prompt set is recorded so tests can check what reviewers were shown.
type fakeDispatcher struct {
	dispatch      func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error)
	review        gate.Review
	reviewPrompts []map[string]string
	available     map[string]bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
	return f.dispatch(capability, kind, prompt)
}

func (f *fakeDispatcher) FanOutReview(_ context.Context, _ string, prompts map[string]string, _ int) (gate.Review, error) {
	f.reviewPrompts = append(f.reviewPrompts, prompts)
	return f.review, nil
}

func (f *fakeDispatcher) Available(capability string) bool {
	return f.available[capability]
}

func goodReview() gate.Review {
	return gate.Review{Scores: gate.Scores{Consistency: 90, Completeness: 90, Compliance: 90, Feasibility: 90}}
}

const completeCommon = `## Conventions
Standard Go style.

## Decisions
SQLite for persistence.
`

const completeDesign = `## Overview
A design.

## Architecture
Layers.

## Interfaces
APIs.

## Acceptance Criteria
It works.
`

const completeWorkplan = `## Overview
The plan.

## Phases
Phase 1.

## Tasks
The tasks.

## Risks
Few.
`

func okPayload(doc string) *dispatch.Payload {
	return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "done", Document: doc}
}

func newTestEngine(t *testing.T, fd *fakeDispatcher) *Engine {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "steward.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	return &Engine{
		Store:      s,
		Dispatcher: fd,
		Gate:       gate.NewController(cfg.Pipeline.QualityHigh, cfg.Pipeline.QualityMedium),
		Cfg:        cfg,
		DocsDir:    filepath.Join(dir, "docs"),
		WorkDir:    dir,
	}
}

// approveThrough advances the pipeline, approving every stop point it
// reaches, until it lands somewhere that is not awaiting approval.
func approveThrough(t *testing.T, e *Engine, pid int64) *Status {
	t.Helper()
	for i := 0; i < 20; i++ {
		status, err := e.Run(context.Background(), pid)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if status.State != store.StateAwaitingApproval {
			return status
		}
		if err := e.Store.AddApproval(pid, status.Stop, ""); err != nil {
			t.Fatalf("AddApproval: %v", err)
		}
	}
	t.Fatal("pipeline never left the approval loop")
	return nil
}

func TestSubmit_ParksAtClassificationStop(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{})

	p, c, err := e.Submit(classify.Request{
		Title:         "Fix typo in error message",
		AffectedFiles: []string{"internal/api/errors.go"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.Scale != classify.ScaleSmall {
		t.Errorf("expected small scale, got %s", c.Scale)
	}

	got, _ := e.Store.GetPipeline(p.ID)
	if got.State != store.StateAwaitingApproval || got.PendingStop != StopClassification {
		t.Errorf("expected awaiting at classification, got %s/%s", got.State, got.PendingStop)
	}
	if got.Classification == "" {
		t.Error("classification not persisted")
	}
}

func TestRun_WaitsWithoutApproval(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{})
	p, _, _ := e.Submit(classify.Request{Title: "x", AffectedFiles: []string{"a.go"}})

	status, err := e.Run(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.State != store.StateAwaitingApproval || status.Stop != StopClassification {
		t.Errorf("expected to wait at classification, got %+v", status)
	}
}

// A small request plans no documents and goes straight from approval to
// a single-unit implementation.
func TestRun_SmallScaleSkipsDocumentPhase(t *testing.T) {
	fd := &fakeDispatcher{
		dispatch: func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
			if kind != dispatch.KindExecute {
				return nil, fmt.Errorf("unexpected %s dispatch to %s", kind, capability)
			}
			return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "implemented"}, nil
		},
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "Fix typo", AffectedFiles: []string{"a.go", "b.go"}})

	status := approveThrough(t, e, p.ID)
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}

	units, _ := e.Store.ListUnits(p.ID)
	if len(units) != 1 || units[0].State != store.UnitCompleted {
		t.Errorf("expected one completed fallback unit, got %+v", units)
	}
	artifacts, _ := e.Store.ListArtifacts(p.ID)
	if len(artifacts) != 0 {
		t.Errorf("small scale must plan no documents, got %d", len(artifacts))
	}
}

// A medium request produces design and workplan documents, each gated
// and individually approved, then executes the plan's units.
func TestRun_MediumScaleFullLifecycle(t *testing.T) {
	fd := &fakeDispatcher{review: goodReview()}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		switch capability {
		case "author.common":
			return okPayload(completeCommon), nil
		case "author.design":
			return okPayload(completeDesign), nil
		case "author.workplan":
			p := okPayload(completeWorkplan)
			p.Units = []dispatch.Unit{
				{Title: "wire store", Phase: "1"},
				{Title: "add endpoint", Phase: "2"},
			}
			return p, nil
		case "execute":
			return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "implemented"}, nil
		}
		return nil, fmt.Errorf("unexpected capability %s", capability)
	}
	e := newTestEngine(t, fd)

	p, c, _ := e.Submit(classify.Request{
		Title:         "Add export endpoint",
		Description:   "Stream CSV exports.",
		AffectedFiles: []string{"a.go", "b.go", "c.go", "d.go"},
	})
	if c.Scale != classify.ScaleMedium {
		t.Fatalf("expected medium, got %s", c.Scale)
	}

	status := approveThrough(t, e, p.ID)
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}

	// Every planned document accepted, on disk, with gate history.
	for _, typ := range []string{"common", "design", "workplan"} {
		a, err := e.Store.GetArtifact(p.ID, typ)
		if err != nil {
			t.Fatalf("artifact %s: %v", typ, err)
		}
		if a.State != "approved" {
			t.Errorf("%s state: %s", typ, a.State)
		}
		records, _ := e.Store.ListGateRecords(a.ID)
		if len(records) != 2 {
			t.Errorf("%s: expected structural+quality records, got %d", typ, len(records))
		}
	}

	// Units came from the workplan payload, not the fallback.
	units, _ := e.Store.ListUnits(p.ID)
	if len(units) != 2 || units[0].Title != "wire store" {
		t.Fatalf("plan units not persisted: %+v", units)
	}
	for _, u := range units {
		if u.State != store.UnitCompleted {
			t.Errorf("unit %q not completed: %s", u.Title, u.State)
		}
	}
}

// A structurally incomplete draft is revised and re-gated; the history
// keeps both rounds.
func TestRun_DocumentRevisionRound(t *testing.T) {
	incomplete := strings.Replace(completeDesign, "## Acceptance Criteria\nIt works.\n", "", 1)

	fd := &fakeDispatcher{review: goodReview()}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		switch {
		case capability == "author.common":
			return okPayload(completeCommon), nil
		case capability == "author.design" && kind == dispatch.KindAuthor:
			return okPayload(incomplete), nil
		case capability == "revise.design" && kind == dispatch.KindRevise:
			return okPayload(completeDesign), nil
		case capability == "author.workplan":
			return okPayload(completeWorkplan), nil
		case capability == "execute":
			return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "ok"}, nil
		}
		return nil, fmt.Errorf("unexpected %s/%s", capability, kind)
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "work", AffectedFiles: []string{"a.go", "b.go", "c.go", "d.go"}})

	status := approveThrough(t, e, p.ID)
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}

	a, _ := e.Store.GetArtifact(p.ID, "design")
	if a.Version != 2 {
		t.Errorf("expected accepted version 2, got %d", a.Version)
	}
	records, _ := e.Store.ListGateRecords(a.ID)
	// Round 1: structural needs_revision. Round 2: structural + quality.
	if len(records) != 3 {
		t.Fatalf("expected 3 gate records, got %d", len(records))
	}
	if records[0].Verdict != "needs_revision" || records[0].Version != 1 {
		t.Errorf("first record: %+v", records[0])
	}
	if records[2].Stage != "quality" || records[2].Version != 2 {
		t.Errorf("last record: %+v", records[2])
	}
}

// An escalation raised mid-unit pauses the pipeline; resolving it lets
// the run resume and finish.
func TestRun_EscalationPausesAndResumes(t *testing.T) {
	escalated := false
	fd := &fakeDispatcher{}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		if !escalated {
			escalated = true
			return &dispatch.Payload{
				Status:  dispatch.StatusEscalation,
				Summary: "found a conflict",
				Escalation: &escalate.Event{
					Kind:    escalate.KindNewDependency,
					Context: "needs a new redis client dependency",
				},
			}, nil
		}
		return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "implemented"}, nil
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "work", AffectedFiles: []string{"a.go"}})

	status := approveThrough(t, e, p.ID)
	if status.State != store.StateEscalated {
		t.Fatalf("expected escalated, got %+v", status)
	}

	open, _ := e.Store.ListOpenEscalations(p.ID)
	if len(open) != 1 || open[0].Kind != "new_dependency" || open[0].Severity != "critical" {
		t.Fatalf("escalation not recorded: %+v", open)
	}
	units, _ := e.Store.ListUnits(p.ID)
	if units[0].State != store.UnitEscalationNeeded {
		t.Errorf("unit should be paused, got %s", units[0].State)
	}

	// Human resolves; the next run resumes and completes.
	if err := e.Store.ResolveEscalation(open[0].ID, "approve the dependency"); err != nil {
		t.Fatalf("ResolveEscalation: %v", err)
	}
	status, err := e.Run(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Run after resolution: %v", err)
	}
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed after resolution, got %+v", status)
	}
}

// An escalation raised while authoring a document must resume back into
// the document phase, not skip past it into implementation.
func TestRun_DocumentEscalationResumesDocumentPhase(t *testing.T) {
	escalated := false
	fd := &fakeDispatcher{review: goodReview()}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		switch capability {
		case "author.common":
			return okPayload(completeCommon), nil
		case "author.design":
			if !escalated {
				escalated = true
				return &dispatch.Payload{
					Status:  dispatch.StatusEscalation,
					Summary: "contract conflict",
					Escalation: &escalate.Event{
						Kind:    escalate.KindInterfaceChange,
						Context: "the export API contract must change",
					},
				}, nil
			}
			return okPayload(completeDesign), nil
		case "author.workplan":
			return okPayload(completeWorkplan), nil
		case "execute":
			return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "implemented"}, nil
		}
		return nil, fmt.Errorf("unexpected capability %s", capability)
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "work", AffectedFiles: []string{"a.go", "b.go", "c.go", "d.go"}})

	status := approveThrough(t, e, p.ID)
	if status.State != store.StateEscalated {
		t.Fatalf("expected escalated, got %+v", status)
	}
	open, _ := e.Store.ListOpenEscalations(p.ID)
	if len(open) != 1 {
		t.Fatalf("escalation not recorded: %+v", open)
	}
	if err := e.Store.ResolveEscalation(open[0].ID, "change the contract"); err != nil {
		t.Fatalf("ResolveEscalation: %v", err)
	}

	// The resumed run has to finish the document phase before any unit
	// executes, and may only complete with every document accepted.
	status = approveThrough(t, e, p.ID)
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}
	for _, typ := range []string{"common", "design", "workplan"} {
		a, err := e.Store.GetArtifact(p.ID, typ)
		if err != nil {
			t.Fatalf("artifact %s: %v", typ, err)
		}
		if a.State != "approved" {
			t.Errorf("%s not approved after resume: %s", typ, a.State)
		}
	}
	units, _ := e.Store.ListUnits(p.ID)
	if len(units) == 0 {
		t.Fatal("no units executed after resume")
	}
	for _, u := range units {
		if u.State != store.UnitCompleted {
			t.Errorf("unit %q not completed: %s", u.Title, u.State)
		}
	}
}

// The run's first document has nothing to conflict with, so its
// reviewers are told consistency is out of scope; later documents get
// the accepted ones attached for comparison.
func TestRun_ReviewScopesConsistencyTargets(t *testing.T) {
	fd := &fakeDispatcher{review: goodReview()}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		switch capability {
		case "author.common":
			return okPayload(completeCommon), nil
		case "author.design":
			return okPayload(completeDesign), nil
		case "author.workplan":
			return okPayload(completeWorkplan), nil
		case "execute":
			return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "implemented"}, nil
		}
		return nil, fmt.Errorf("unexpected capability %s", capability)
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "work", AffectedFiles: []string{"a.go", "b.go", "c.go", "d.go"}})
	status := approveThrough(t, e, p.ID)
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}

	// One fan-out per document: common, design, workplan.
	if len(fd.reviewPrompts) != 3 {
		t.Fatalf("expected 3 review fan-outs, got %d", len(fd.reviewPrompts))
	}
	for _, prompt := range fd.reviewPrompts[0] {
		if !strings.Contains(prompt, "no comparison targets") {
			t.Errorf("first review should note the consistency skip:\n%s", prompt)
		}
	}
	for _, prompt := range fd.reviewPrompts[1] {
		if !strings.Contains(prompt, "Approved common") {
			t.Errorf("design review should carry the accepted common document:\n%s", prompt)
		}
	}
	for _, prompt := range fd.reviewPrompts[2] {
		if !strings.Contains(prompt, "Approved design") || !strings.Contains(prompt, "Approved common") {
			t.Errorf("workplan review should carry both accepted documents:\n%s", prompt)
		}
	}
}

// An unsalvageable document is rejected and blocks the run; once the
// human answers, it restarts from a fresh draft and can still pass.
func TestRun_RejectedDocumentRestartsFromDraft(t *testing.T) {
	fd := &fakeDispatcher{review: gate.Review{
		Scores:        gate.Scores{Consistency: 20, Completeness: 20, Compliance: 20, Feasibility: 20},
		Unsalvageable: true,
	}}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		switch capability {
		case "author.common":
			return okPayload(completeCommon), nil
		case "author.design":
			return okPayload(completeDesign), nil
		case "author.workplan":
			return okPayload(completeWorkplan), nil
		case "execute":
			return &dispatch.Payload{Status: dispatch.StatusOK, Summary: "implemented"}, nil
		}
		return nil, fmt.Errorf("unexpected capability %s", capability)
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "work", AffectedFiles: []string{"a.go", "b.go", "c.go", "d.go"}})
	status := approveThrough(t, e, p.ID)
	if status.State != store.StateBlocked {
		t.Fatalf("expected blocked after rejection, got %+v", status)
	}
	a, _ := e.Store.GetArtifact(p.ID, "common")
	if a.State != "rejected" {
		t.Fatalf("expected rejected common document, got %s", a.State)
	}

	fd.review = goodReview()
	if err := e.Store.UnblockPipeline(p.ID, store.StateDocumentPhase, "rewrite it from scratch"); err != nil {
		t.Fatalf("UnblockPipeline: %v", err)
	}
	status = approveThrough(t, e, p.ID)
	if status.State != store.StateCompleted {
		t.Fatalf("expected completed after restart, got %+v", status)
	}
	a, _ = e.Store.GetArtifact(p.ID, "common")
	if a.State != "approved" {
		t.Errorf("restarted document should be approved, got %s", a.State)
	}
}

func TestRun_MissingCapabilityBlocks(t *testing.T) {
	fd := &fakeDispatcher{}
	fd.dispatch = func(capability string, kind dispatch.Kind, prompt string) (*dispatch.Payload, error) {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrNoWorker, capability)
	}
	e := newTestEngine(t, fd)

	p, _, _ := e.Submit(classify.Request{Title: "work", AffectedFiles: []string{"a.go"}})

	status := approveThrough(t, e, p.ID)
	if status.State != store.StateBlocked {
		t.Fatalf("expected blocked, got %+v", status)
	}

	got, _ := e.Store.GetPipeline(p.ID)
	if got.BlockedReason == "" {
		t.Error("blocked reason not recorded")
	}
}

func TestDiagnoseAndResync(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{})
	p, _ := e.Store.CreatePipeline("work", "")

	e.Store.CreateUnits(p.ID, []store.TaskUnit{{Title: "a"}})
	units, _ := e.Store.ListUnits(p.ID)
	e.Store.UpdateUnitState(units[0].ID, store.UnitExecuting, "")

	findings, err := e.Diagnose(p.ID)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if len(findings) == 0 {
		t.Fatal("expected a finding for the stuck unit")
	}

	n, err := e.Resync(p.ID)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 unit reset, got %d", n)
	}

	findings, _ = e.Diagnose(p.ID)
	for _, f := range findings {
		if strings.Contains(f.Message, "stuck") {
			t.Errorf("stuck finding should be gone after resync: %+v", f)
		}
	}

	// A completed pipeline still carrying an unfinished document is a
	// discrepancy worth surfacing.
	q, _ := e.Store.CreatePipeline("done early", "")
	e.Store.CreateArtifact(q.ID, "design")
	e.Store.UpdatePipelineState(q.ID, store.StateCompleted)
	findings, _ = e.Diagnose(q.ID)
	found := false
	for _, f := range findings {
		if strings.Contains(f.Message, "completed but") {
			found = true
		}
	}
	if !found {
		t.Error("expected a finding for the unfinished document on a completed pipeline")
	}
}
