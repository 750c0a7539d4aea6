// Package revise runs the bounded gate-and-revise cycle for a single
// document. The source behavior looped until the gate passed; here the
// cycle is capped so a document that cannot converge surfaces as an
// explicit failure instead of spinning.
package revise

import (
	"context"
	"errors"
	"fmt"

	"github.com/imkarma/steward/internal/artifact"
	"github.com/imkarma/steward/internal/gate"
)

// ErrUnresolvable means the revision cap was reached without an
// accepted verdict. The document needs a human decision.
var ErrUnresolvable = errors.New("revision limit reached without acceptance")

// ErrRejected means the gate judged the document unsalvageable; further
// revision is pointless and the pipeline should restart the document.
var ErrRejected = errors.New("document rejected as unsalvageable")

// Outcome is the result of one converged cycle.
type Outcome struct {
	Document string        // Final accepted document text
	Verdict  gate.Verdict  // approved or approved_with_conditions
	Attempts int           // Revision rounds consumed (0 = first draft passed)
	History  []gate.Result // Every gate result, in order
}

// Loop drives the cycle. Revise and Gate are injected so the loop stays
// testable without live workers.
type Loop struct {
	// MaxAttempts caps revision rounds after the initial draft.
	MaxAttempts int

	// Revise produces a new document version from the latest gate
	// findings.
	Revise func(ctx context.Context, doc string, findings []gate.Result) (string, error)

	// Gate checks one document version.
	Gate func(ctx context.Context, doc string) ([]gate.Result, error)
}

// Run gates the draft and revises until acceptance, rejection, or the
// attempt cap. The returned history spans every round, including the
// final one.
func (l *Loop) Run(ctx context.Context, doc string) (*Outcome, error) {
	if l.MaxAttempts <= 0 {
		return nil, fmt.Errorf("revise loop: MaxAttempts must be positive")
	}

	var history []gate.Result
	current := doc

	for attempt := 0; ; attempt++ {
		results, err := l.Gate(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("gate attempt %d: %w", attempt, err)
		}
		history = append(history, results...)

		verdict := finalVerdict(results)
		switch verdict {
		case gate.VerdictApproved, gate.VerdictApprovedWithConditions:
			return &Outcome{Document: current, Verdict: verdict, Attempts: attempt, History: history}, nil
		case gate.VerdictRejected:
			return &Outcome{Document: current, Verdict: verdict, Attempts: attempt, History: history}, ErrRejected
		}

		if attempt >= l.MaxAttempts {
			return &Outcome{Document: current, Verdict: verdict, Attempts: attempt, History: history},
				fmt.Errorf("%w after %d attempts", ErrUnresolvable, attempt)
		}

		current, err = l.Revise(ctx, current, results)
		if err != nil {
			return nil, fmt.Errorf("revise attempt %d: %w", attempt+1, err)
		}
	}
}

// finalVerdict is the verdict of the last stage that ran.
func finalVerdict(results []gate.Result) gate.Verdict {
	if len(results) == 0 {
		return gate.VerdictNeedsRevision
	}
	return results[len(results)-1].Verdict
}

// CapabilityFor maps a document type to the capability its revision
// dispatches require.
func CapabilityFor(t artifact.Type) string {
	def, ok := artifact.Lookup(t)
	if !ok {
		return ""
	}
	return def.ReviseCapability
}
