package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/imkarma/steward/internal/escalate"
	"github.com/imkarma/steward/internal/gate"
)

// Kind classifies what a dispatched step is expected to produce. The
// payload contract differs per kind, and validation is strict: a worker
// that omits the required field fails the step.
type Kind string

const (
	KindAuthor  Kind = "author"  // produce a document
	KindRevise  Kind = "revise"  // revise a document against gate findings
	KindReview  Kind = "review"  // quality-review a document
	KindExecute Kind = "execute" // implement one work unit
	KindVerify  Kind = "verify"  // verify an implemented unit
)

// Payload statuses.
const (
	StatusOK         = "ok"
	StatusEscalation = "escalation"
	StatusBlocked    = "blocked"
)

// Unit is one implementation work unit extracted from a plan payload.
type Unit struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Phase       string `json:"phase,omitempty"`
}

// Verification is the outcome of a verify step.
type Verification struct {
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

// Payload is the structured reply every worker must print. Prose around
// the JSON object is tolerated and stripped; the object itself is the
// contract.
type Payload struct {
	Status        string          `json:"status"`
	Summary       string          `json:"summary"`
	Document      string          `json:"document,omitempty"`
	Review        *gate.Review    `json:"review,omitempty"`
	Escalation    *escalate.Event `json:"escalation,omitempty"`
	Units         []Unit          `json:"units,omitempty"`
	Verification  *Verification   `json:"verification,omitempty"`
	BlockedReason string          `json:"blocked_reason,omitempty"`
}

// ErrNoWorker indicates no configured worker declares the required
// capability. Callers treat this as a blocked environment, not a bug.
var ErrNoWorker = errors.New("no worker declares the required capability")

// DispatchError is a step failure attributable to a worker: a bad exit,
// an unparseable reply, or a payload missing its contract fields.
type DispatchError struct {
	Worker string
	Step   string
	Reason string
	Output string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %s: %s", e.Step, e.Worker, e.Reason)
}

// ParsePayload extracts and validates the payload object from raw
// worker output.
func ParsePayload(output string, kind Kind) (*Payload, error) {
	raw, ok := extractJSON(output)
	if !ok {
		return nil, fmt.Errorf("no JSON object in worker output")
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if err := p.validate(kind); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Payload) validate(kind Kind) error {
	switch p.Status {
	case StatusOK:
	case StatusEscalation:
		if p.Escalation == nil {
			return fmt.Errorf("status escalation without an escalation report")
		}
		return nil
	case StatusBlocked:
		if p.BlockedReason == "" {
			return fmt.Errorf("status blocked without a reason")
		}
		return nil
	default:
		return fmt.Errorf("unknown payload status %q", p.Status)
	}

	switch kind {
	case KindAuthor, KindRevise:
		if strings.TrimSpace(p.Document) == "" {
			return fmt.Errorf("%s payload has no document", kind)
		}
	case KindReview:
		if p.Review == nil {
			return fmt.Errorf("review payload has no review")
		}
	case KindExecute:
		if strings.TrimSpace(p.Summary) == "" {
			return fmt.Errorf("execute payload has no summary")
		}
	case KindVerify:
		if p.Verification == nil {
			return fmt.Errorf("verify payload has no verification")
		}
	}
	return nil
}

// extractJSON pulls the outermost JSON object out of worker output,
// tolerating prose and markdown code fences around it.
func extractJSON(output string) (string, bool) {
	s := output
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
