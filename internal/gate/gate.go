// Package gate implements the two-stage acceptance check applied to
// every produced document: a structural completeness check, then a
// quality check against a fixed rubric. The structural stage
// short-circuits — quality analysis is never spent on a document that
// is certain to be rejected.
package gate

import (
	"time"

	"github.com/imkarma/steward/internal/artifact"
)

// Stage identifies which of the two checks produced a result.
type Stage string

const (
	StageStructural Stage = "structural"
	StageQuality    Stage = "quality"
)

// Verdict is the outcome of a gate stage.
type Verdict string

const (
	VerdictApproved               Verdict = "approved"
	VerdictApprovedWithConditions Verdict = "approved_with_conditions"
	VerdictNeedsRevision          Verdict = "needs_revision"
	VerdictRejected               Verdict = "rejected"
)

// Issue severities.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// Issue is a single problem found during review.
type Issue struct {
	Severity    string `json:"severity"` // critical, major, minor
	Description string `json:"description"`
}

// Scores holds the per-dimension rubric scores (0-100).
type Scores struct {
	Consistency  int `json:"consistency"`
	Completeness int `json:"completeness"`
	Compliance   int `json:"compliance"`
	Feasibility  int `json:"feasibility"`
}

// Min returns the lowest dimension score; verdicts key off the weakest
// dimension, not the average.
func (s Scores) Min() int {
	min := s.Consistency
	for _, v := range []int{s.Completeness, s.Compliance, s.Feasibility} {
		if v < min {
			min = v
		}
	}
	return min
}

// Prior-item resolutions for re-gating after an earlier conditional pass.
type Resolution string

const (
	Resolved          Resolution = "resolved"
	PartiallyResolved Resolution = "partially_resolved"
	Unresolved        Resolution = "unresolved"
)

// PriorItem is an issue carried forward from an earlier review. On
// re-gate, each one must be individually classified.
type PriorItem struct {
	ID         string     `json:"id"`
	Severity   string     `json:"severity"`
	Resolution Resolution `json:"resolution"`
	Note       string     `json:"note,omitempty"`
}

// Review is the merged outcome of the quality evaluation: rubric scores,
// issues found, and the reconciliation of any prior items.
type Review struct {
	Scores        Scores      `json:"scores"`
	Issues        []Issue     `json:"issues,omitempty"`
	PriorItems    []PriorItem `json:"prior_items,omitempty"`
	Unsalvageable bool        `json:"unsalvageable,omitempty"`
}

// Result is one immutable gate record. Results are appended to a
// document's gate history and never mutated afterwards.
type Result struct {
	Stage           Stage    `json:"stage"`
	Verdict         Verdict  `json:"verdict"`
	MissingSections []string `json:"missing_sections,omitempty"`
	Issues          []Issue  `json:"issues,omitempty"`
	Scores          *Scores  `json:"scores,omitempty"`
	At              time.Time
}

// Controller applies the two checks using published thresholds.
type Controller struct {
	high   int
	medium int
}

// NewController builds a controller from the configured thresholds.
func NewController(high, medium int) *Controller {
	return &Controller{high: high, medium: medium}
}

// Check runs the two ordered stages. The review callback is only
// invoked when the structural check passes; a structurally incomplete
// document yields a single needs_revision result and the quality stage
// is skipped entirely.
func (c *Controller) Check(def artifact.Definition, doc string, review func() (Review, error)) ([]Result, error) {
	structural := c.Structural(def, doc)
	if structural.Verdict != VerdictApproved {
		return []Result{structural}, nil
	}

	rev, err := review()
	if err != nil {
		return []Result{structural}, err
	}
	return []Result{structural, c.Quality(rev)}, nil
}

// Structural verifies presence and non-emptiness of every mandatory
// section for the document's type.
func (c *Controller) Structural(def artifact.Definition, doc string) Result {
	missing := MissingSections(def.MandatorySections, doc)
	r := Result{Stage: StageStructural, At: time.Now().UTC()}
	if len(missing) > 0 {
		r.Verdict = VerdictNeedsRevision
		r.MissingSections = missing
		return r
	}
	r.Verdict = VerdictApproved
	return r
}

// Quality grades a merged review against the thresholds:
//
//	approved                 all scores >= high, zero unresolved critical items
//	approved_with_conditions all scores >= medium, only minor open items
//	needs_revision           anything below
//	rejected                 the reviewer judged rework unsalvageable
func (c *Controller) Quality(rev Review) Result {
	r := Result{
		Stage:  StageQuality,
		Issues: openIssues(rev),
		Scores: &rev.Scores,
		At:     time.Now().UTC(),
	}

	if rev.Unsalvageable {
		r.Verdict = VerdictRejected
		return r
	}

	worst := worstSeverity(r.Issues)
	min := rev.Scores.Min()

	switch {
	case min >= c.high && worst == "" && criticalPriorsResolved(rev.PriorItems):
		r.Verdict = VerdictApproved
	case min >= c.medium && (worst == "" || worst == SeverityMinor):
		r.Verdict = VerdictApprovedWithConditions
	default:
		r.Verdict = VerdictNeedsRevision
	}
	return r
}

// openIssues merges the review's issues with prior items that were not
// fully resolved; an unresolved prior item counts at its own severity.
func openIssues(rev Review) []Issue {
	issues := make([]Issue, len(rev.Issues))
	copy(issues, rev.Issues)

	for _, p := range rev.PriorItems {
		if p.Resolution == Resolved {
			continue
		}
		desc := p.ID
		if p.Note != "" {
			desc += ": " + p.Note
		}
		issues = append(issues, Issue{Severity: p.Severity, Description: "prior item " + desc})
	}
	return issues
}

func criticalPriorsResolved(items []PriorItem) bool {
	for _, p := range items {
		if p.Severity == SeverityCritical && p.Resolution != Resolved {
			return false
		}
	}
	return true
}

// worstSeverity returns the most severe severity present, or "" if none.
func worstSeverity(issues []Issue) string {
	rank := map[string]int{SeverityMinor: 1, SeverityMajor: 2, SeverityCritical: 3}
	worst := ""
	for _, i := range issues {
		if rank[i.Severity] > rank[worst] {
			worst = i.Severity
		}
	}
	return worst
}
