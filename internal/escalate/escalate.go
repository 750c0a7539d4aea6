// Package escalate classifies execution-time conflicts and decides
// whether to halt for human input. The rules are a fixed, enumerable
// set rather than a judgment call: the categories and their severities
// cannot be overridden by configuration, and any genuine ambiguity
// escalates instead of guessing.
package escalate

// Kind is the category of a raised conflict.
type Kind string

const (
	KindInterfaceChange     Kind = "interface_change"     // Public contract/signature change
	KindDependencyReversal  Kind = "dependency_reversal"  // Dependency-direction reversal
	KindNewDependency       Kind = "new_dependency"       // New external dependency
	KindSafetyBypass        Kind = "safety_bypass"        // Bypassing a safety/quality mechanism
	KindDuplication         Kind = "duplication"          // Suspected duplicate functionality
	KindAmbiguity           Kind = "ambiguity"            // Multiple valid readings of a judgment item
	KindEnvironmentBlocked  Kind = "environment_blocked"  // Required execution capability missing
)

// Severity of an escalation. Critical escalations always block the
// phase; they are never downgraded.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Signal is one of the five similarity signals scored on a duplication
// finding.
type Signal string

const (
	SignalDomain     Signal = "domain"
	SignalIO         Signal = "io"
	SignalProcessing Signal = "processing"
	SignalPlacement  Signal = "placement"
	SignalNaming     Signal = "naming"
)

// Event is a conflict observed during implementation, in structured
// form. The router never parses free text to decide.
type Event struct {
	Kind    Kind   `json:"kind"`
	Context string `json:"context,omitempty"`

	// Signals apply to duplication findings.
	Signals []Signal `json:"signals,omitempty"`

	// Interpretations and GoverningSilent apply to ambiguity findings:
	// the number of valid readings of the judgment item, and whether
	// the governing document is silent on the point.
	Interpretations int  `json:"interpretations,omitempty"`
	GoverningSilent bool `json:"governing_silent,omitempty"`

	// SuggestedOptions are resolution paths proposed by the reporter.
	SuggestedOptions []string `json:"suggested_options,omitempty"`
}

// Request is a decision to halt: the affected work pauses until a human
// supplies a resolution. There is no timeout and no default.
type Request struct {
	Kind             Kind
	Severity         Severity
	Context          string
	SuggestedOptions []string
}

// mandatoryKinds always escalate at critical severity, regardless of
// any other evidence on the event.
var mandatoryKinds = map[Kind]bool{
	KindInterfaceChange:    true,
	KindDependencyReversal: true,
	KindNewDependency:      true,
	KindSafetyBypass:       true,
}

// Route classifies an event. A nil return means continue: the conflict
// does not warrant halting.
func Route(e Event) *Request {
	if mandatoryKinds[e.Kind] {
		return request(e, SeverityCritical)
	}

	switch e.Kind {
	case KindDuplication:
		return routeDuplication(e)
	case KindAmbiguity:
		// Two or more valid interpretations, or a silent governing
		// document, always escalates — never guess.
		if e.Interpretations >= 2 || e.GoverningSilent {
			return request(e, SeverityHigh)
		}
		return nil
	case KindEnvironmentBlocked:
		return request(e, SeverityHigh)
	}
	return nil
}

// routeDuplication scores the five similarity signals:
//
//	3+ matches            escalate
//	exactly 2 matches     escalate only for domain+processing or io+processing
//	0-1 matches           continue
func routeDuplication(e Event) *Request {
	signals := map[Signal]bool{}
	for _, s := range e.Signals {
		signals[s] = true
	}

	switch len(signals) {
	case 0, 1:
		return nil
	case 2:
		if signals[SignalProcessing] && (signals[SignalDomain] || signals[SignalIO]) {
			return request(e, SeverityMedium)
		}
		return nil
	default:
		return request(e, SeverityHigh)
	}
}

func request(e Event, sev Severity) *Request {
	opts := e.SuggestedOptions
	if len(opts) == 0 {
		// A halt must always surface at least one resolution path.
		opts = defaultOptions(e.Kind)
	}
	return &Request{
		Kind:             e.Kind,
		Severity:         sev,
		Context:          e.Context,
		SuggestedOptions: opts,
	}
}

func defaultOptions(k Kind) []string {
	switch k {
	case KindInterfaceChange:
		return []string{"approve the new contract", "keep the existing contract and rework the change"}
	case KindDependencyReversal:
		return []string{"approve the reversed dependency", "introduce an interface to restore the direction"}
	case KindNewDependency:
		return []string{"approve the dependency", "implement without it"}
	case KindSafetyBypass:
		return []string{"restore the bypassed mechanism", "approve the bypass with justification"}
	case KindDuplication:
		return []string{"reuse the existing implementation", "proceed with the duplicate and record why"}
	case KindEnvironmentBlocked:
		return []string{"provision the missing capability", "descope the affected unit"}
	default:
		return []string{"clarify the governing document", "choose one interpretation explicitly"}
	}
}
