package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/imkarma/steward/internal/config"
	"github.com/imkarma/steward/internal/gate"
)

// fakeRunner answers every run from a fixed function.
type fakeRunner struct {
	name string
	run  func(req Request) (*Response, error)
}

func (f *fakeRunner) Run(_ context.Context, req Request) (*Response, error) { return f.run(req) }
func (f *fakeRunner) Name() string                                          { return f.name }
func (f *fakeRunner) Mode() string                                          { return "cli" }

func testDispatcher(t *testing.T, run func(req Request) (*Response, error)) *Dispatcher {
	t.Helper()
	cfg := &config.Config{
		Workers: map[string]config.Worker{
			"w": {Capabilities: []string{"author.design", "review.quality", "execute"}, Mode: "cli", Cmd: "fake"},
		},
	}
	d := New(cfg, t.TempDir())
	d.newRunner = func(name string, _ config.Worker) (Runner, error) {
		return &fakeRunner{name: name, run: run}, nil
	}
	return d
}

func TestDispatch_Success(t *testing.T) {
	d := testDispatcher(t, func(req Request) (*Response, error) {
		return &Response{Output: `{"status":"ok","summary":"done","document":"## Overview\nx\n"}`}, nil
	})

	p, err := d.Dispatch(context.Background(), "author.design", KindAuthor, "prompt")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if p.Summary != "done" {
		t.Errorf("summary: %q", p.Summary)
	}
}

func TestDispatch_NoWorker(t *testing.T) {
	d := testDispatcher(t, nil)
	_, err := d.Dispatch(context.Background(), "author.uxrd", KindAuthor, "prompt")
	if !errors.Is(err, ErrNoWorker) {
		t.Fatalf("expected ErrNoWorker, got %v", err)
	}
}

func TestDispatch_NonZeroExit(t *testing.T) {
	d := testDispatcher(t, func(req Request) (*Response, error) {
		return &Response{ExitCode: 2, Output: "partial", Error: fmt.Errorf("boom")}, nil
	})

	_, err := d.Dispatch(context.Background(), "execute", KindExecute, "prompt")
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if de.Output != "partial" {
		t.Errorf("partial output lost: %q", de.Output)
	}
}

func TestDispatch_BadPayload(t *testing.T) {
	d := testDispatcher(t, func(req Request) (*Response, error) {
		return &Response{Output: "no structure at all"}, nil
	})

	_, err := d.Dispatch(context.Background(), "execute", KindExecute, "prompt")
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
}

func reviewOutput(t *testing.T, scores gate.Scores, issues ...gate.Issue) string {
	t.Helper()
	p := Payload{Status: StatusOK, Summary: "reviewed", Review: &gate.Review{Scores: scores, Issues: issues}}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestFanOutReview_MergesByMinimum(t *testing.T) {
	scoresByPerspective := map[string]gate.Scores{
		"consistency":  {Consistency: 70, Completeness: 95, Compliance: 95, Feasibility: 95},
		"completeness": {Consistency: 95, Completeness: 85, Compliance: 95, Feasibility: 95},
		"compliance":   {Consistency: 95, Completeness: 95, Compliance: 90, Feasibility: 95},
	}

	d := testDispatcher(t, func(req Request) (*Response, error) {
		// The prompt carries its perspective name.
		for name, scores := range scoresByPerspective {
			if strings.Contains(req.Prompt, name) {
				return &Response{Output: reviewOutput(t, scores)}, nil
			}
		}
		return nil, fmt.Errorf("unknown perspective in prompt %q", req.Prompt)
	})

	prompts := map[string]string{}
	for name := range scoresByPerspective {
		prompts[name] = "review from the " + name + " perspective"
	}

	merged, err := d.FanOutReview(context.Background(), "review.quality", prompts, 2)
	if err != nil {
		t.Fatalf("FanOutReview: %v", err)
	}

	want := gate.Scores{Consistency: 70, Completeness: 85, Compliance: 90, Feasibility: 95}
	if merged.Scores != want {
		t.Errorf("merged scores: got %+v, want %+v", merged.Scores, want)
	}
}

func TestFanOutReview_PropagatesFailure(t *testing.T) {
	var calls atomic.Int32
	d := testDispatcher(t, func(req Request) (*Response, error) {
		calls.Add(1)
		if strings.Contains(req.Prompt, "compliance") {
			return &Response{ExitCode: 1, Error: fmt.Errorf("crashed")}, nil
		}
		return &Response{Output: reviewOutput(t, gate.Scores{Consistency: 90, Completeness: 90, Compliance: 90, Feasibility: 90})}, nil
	})

	prompts := map[string]string{
		"consistency": "consistency",
		"compliance":  "compliance",
	}
	if _, err := d.FanOutReview(context.Background(), "review.quality", prompts, 2); err == nil {
		t.Fatal("expected a perspective failure to fail the fan-out")
	}
	// The barrier still waits for every dispatch.
	if calls.Load() != 2 {
		t.Errorf("expected 2 dispatches, got %d", calls.Load())
	}
}

func TestFanOutReview_RejectsNonReviewReply(t *testing.T) {
	// A valid payload, but an escalation rather than a review. The
	// fan-out must fail the perspective cleanly instead of merging it.
	d := testDispatcher(t, func(req Request) (*Response, error) {
		out := `{"status":"escalation","summary":"conflict","escalation":{"kind":"new_dependency","context":"wants a cache library"}}`
		return &Response{Output: out}, nil
	})

	_, err := d.FanOutReview(context.Background(), "review.quality",
		map[string]string{"consistency": "review from the consistency perspective"}, 1)
	if err == nil {
		t.Fatal("expected an error when a reviewer replies without a review")
	}
	if !strings.Contains(err.Error(), "instead of a review") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMergeReviews_UnionsIssuesAndPriors(t *testing.T) {
	merged := MergeReviews([]gate.Review{
		{Scores: gate.Scores{Consistency: 90, Completeness: 90, Compliance: 90, Feasibility: 90},
			Issues: []gate.Issue{{Severity: gate.SeverityMinor, Description: "a"}}},
		{Scores: gate.Scores{Consistency: 80, Completeness: 95, Compliance: 95, Feasibility: 95},
			Issues:     []gate.Issue{{Severity: gate.SeverityMajor, Description: "b"}},
			PriorItems: []gate.PriorItem{{ID: "P1", Severity: gate.SeverityMinor, Resolution: gate.Resolved}}},
	})

	if len(merged.Issues) != 2 {
		t.Errorf("expected 2 issues, got %d", len(merged.Issues))
	}
	if len(merged.PriorItems) != 1 {
		t.Errorf("expected 1 prior item, got %d", len(merged.PriorItems))
	}
	if merged.Scores.Consistency != 80 {
		t.Errorf("expected min consistency 80, got %d", merged.Scores.Consistency)
	}
}

func TestMergeReviews_Empty(t *testing.T) {
	merged := MergeReviews(nil)
	if merged.Scores.Min() != 0 {
		t.Errorf("empty merge should zero out, got %+v", merged.Scores)
	}
}
