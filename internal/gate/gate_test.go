package gate

import (
	"testing"

	"github.com/imkarma/steward/internal/artifact"
)

func testController() *Controller {
	return NewController(80, 60)
}

func prdDef(t *testing.T) artifact.Definition {
	t.Helper()
	def, ok := artifact.Lookup(artifact.TypePRD)
	if !ok {
		t.Fatal("prd definition missing")
	}
	return def
}

const completePRD = `# Feature PRD

## Overview
A thing that does things.

## Goals
Make it work.

## Requirements
It must do the thing.

## Acceptance Criteria
The thing is done.
`

func goodReview() Review {
	return Review{Scores: Scores{Consistency: 90, Completeness: 88, Compliance: 85, Feasibility: 92}}
}

// Scenario: a document missing its acceptance-criteria section produces
// a single structural needs_revision result and no quality result.
func TestCheck_StructuralShortCircuit(t *testing.T) {
	doc := `# Feature PRD

## Overview
A thing.

## Goals
Goals here.

## Requirements
Reqs here.
`

	reviewCalled := false
	results, err := testController().Check(prdDef(t), doc, func() (Review, error) {
		reviewCalled = true
		return goodReview(), nil
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result (quality skipped), got %d", len(results))
	}
	if results[0].Stage != StageStructural {
		t.Errorf("expected structural stage, got %s", results[0].Stage)
	}
	if results[0].Verdict != VerdictNeedsRevision {
		t.Errorf("expected needs_revision, got %s", results[0].Verdict)
	}
	if len(results[0].MissingSections) != 1 || results[0].MissingSections[0] != "Acceptance Criteria" {
		t.Errorf("expected missing 'Acceptance Criteria', got %v", results[0].MissingSections)
	}
	if reviewCalled {
		t.Error("quality review must not run on a structurally incomplete document")
	}
}

func TestCheck_EmptySectionCountsAsMissing(t *testing.T) {
	doc := `## Overview
Something.

## Goals

## Requirements
Reqs.

## Acceptance Criteria
Done means done.
`
	results, err := testController().Check(prdDef(t), doc, func() (Review, error) {
		t.Fatal("review must not run")
		return Review{}, nil
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if results[0].Verdict != VerdictNeedsRevision {
		t.Errorf("expected needs_revision for empty Goals, got %s", results[0].Verdict)
	}
}

func TestCheck_BothStagesOnCompleteDocument(t *testing.T) {
	results, err := testController().Check(prdDef(t), completePRD, func() (Review, error) {
		return goodReview(), nil
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Stage != StageStructural || results[0].Verdict != VerdictApproved {
		t.Errorf("structural: got %s/%s", results[0].Stage, results[0].Verdict)
	}
	if results[1].Stage != StageQuality || results[1].Verdict != VerdictApproved {
		t.Errorf("quality: got %s/%s", results[1].Stage, results[1].Verdict)
	}
}

func TestQuality_Verdicts(t *testing.T) {
	tests := []struct {
		name   string
		review Review
		want   Verdict
	}{
		{
			"all high, clean",
			Review{Scores: Scores{90, 85, 88, 95}},
			VerdictApproved,
		},
		{
			"one dimension below high",
			Review{Scores: Scores{90, 75, 88, 95}},
			VerdictApprovedWithConditions,
		},
		{
			"minor issue blocks approved but not conditions",
			Review{
				Scores: Scores{90, 85, 88, 95},
				Issues: []Issue{{Severity: SeverityMinor, Description: "typo"}},
			},
			VerdictApprovedWithConditions,
		},
		{
			"major issue forces revision",
			Review{
				Scores: Scores{90, 85, 88, 95},
				Issues: []Issue{{Severity: SeverityMajor, Description: "wrong interface"}},
			},
			VerdictNeedsRevision,
		},
		{
			"critical issue forces revision",
			Review{
				Scores: Scores{90, 85, 88, 95},
				Issues: []Issue{{Severity: SeverityCritical, Description: "violates contract"}},
			},
			VerdictNeedsRevision,
		},
		{
			"below medium forces revision",
			Review{Scores: Scores{55, 85, 88, 95}},
			VerdictNeedsRevision,
		},
		{
			"unsalvageable is rejected",
			Review{Scores: Scores{20, 10, 15, 5}, Unsalvageable: true},
			VerdictRejected,
		},
	}

	c := testController()
	for _, tc := range tests {
		got := c.Quality(tc.review)
		if got.Verdict != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got.Verdict)
		}
	}
}

func TestQuality_PriorItemReconciliation(t *testing.T) {
	c := testController()

	// An unresolved critical prior item blocks approved even with
	// perfect scores.
	rev := Review{
		Scores: Scores{95, 95, 95, 95},
		PriorItems: []PriorItem{
			{ID: "C1", Severity: SeverityCritical, Resolution: PartiallyResolved},
		},
	}
	if got := c.Quality(rev); got.Verdict != VerdictNeedsRevision {
		t.Errorf("unresolved critical prior: expected needs_revision, got %s", got.Verdict)
	}

	// Resolved critical prior items no longer block.
	rev.PriorItems[0].Resolution = Resolved
	if got := c.Quality(rev); got.Verdict != VerdictApproved {
		t.Errorf("resolved critical prior: expected approved, got %s", got.Verdict)
	}

	// An unresolved minor prior item only downgrades to conditions.
	rev.PriorItems = []PriorItem{{ID: "M1", Severity: SeverityMinor, Resolution: Unresolved}}
	if got := c.Quality(rev); got.Verdict != VerdictApprovedWithConditions {
		t.Errorf("unresolved minor prior: expected approved_with_conditions, got %s", got.Verdict)
	}
}

func TestMissingSections_CaseInsensitive(t *testing.T) {
	doc := `## OVERVIEW
text

## acceptance criteria
text
`
	missing := MissingSections([]string{"Overview", "Acceptance Criteria"}, doc)
	if len(missing) != 0 {
		t.Errorf("expected case-insensitive match, got missing %v", missing)
	}
}

func TestScores_Min(t *testing.T) {
	s := Scores{Consistency: 80, Completeness: 60, Compliance: 90, Feasibility: 75}
	if s.Min() != 60 {
		t.Errorf("expected min 60, got %d", s.Min())
	}
}
