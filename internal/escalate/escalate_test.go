package escalate

import "testing"

func TestRoute_MandatoryKinds(t *testing.T) {
	for _, kind := range []Kind{KindInterfaceChange, KindDependencyReversal, KindNewDependency, KindSafetyBypass} {
		req := Route(Event{Kind: kind, Context: "found during unit 3"})
		if req == nil {
			t.Fatalf("%s: expected escalation, got continue", kind)
		}
		if req.Severity != SeverityCritical {
			t.Errorf("%s: expected critical, got %s", kind, req.Severity)
		}
		if len(req.SuggestedOptions) == 0 {
			t.Errorf("%s: escalation carries no resolution options", kind)
		}
	}
}

// Scenario: an existing helper with overlapping domain and identical
// processing pattern but different I/O, placement, and naming. Two
// signals match, and the pair includes processing with domain, so the
// unit escalates rather than duplicating the logic.
func TestRoute_DuplicationTwoSignalsDomainProcessing(t *testing.T) {
	req := Route(Event{
		Kind:    KindDuplication,
		Signals: []Signal{SignalDomain, SignalProcessing},
	})
	if req == nil {
		t.Fatal("domain+processing overlap must escalate")
	}
	if req.Severity != SeverityMedium {
		t.Errorf("expected medium severity, got %s", req.Severity)
	}
}

func TestRoute_DuplicationSignalThresholds(t *testing.T) {
	tests := []struct {
		name     string
		signals  []Signal
		escalate bool
	}{
		{"no signals", nil, false},
		{"single signal", []Signal{SignalNaming}, false},
		{"two weak signals", []Signal{SignalPlacement, SignalNaming}, false},
		{"domain without processing", []Signal{SignalDomain, SignalNaming}, false},
		{"io plus processing", []Signal{SignalIO, SignalProcessing}, true},
		{"three signals", []Signal{SignalDomain, SignalPlacement, SignalNaming}, true},
		{"all five", []Signal{SignalDomain, SignalIO, SignalProcessing, SignalPlacement, SignalNaming}, true},
		{"duplicate entries count once", []Signal{SignalNaming, SignalNaming, SignalNaming}, false},
	}

	for _, tc := range tests {
		req := Route(Event{Kind: KindDuplication, Signals: tc.signals})
		if (req != nil) != tc.escalate {
			t.Errorf("%s: escalate=%v, want %v", tc.name, req != nil, tc.escalate)
		}
	}
}

func TestRoute_AmbiguityAlwaysEscalates(t *testing.T) {
	req := Route(Event{Kind: KindAmbiguity, Interpretations: 2})
	if req == nil {
		t.Fatal("two valid interpretations must escalate")
	}
	if req.Severity != SeverityHigh {
		t.Errorf("expected high severity, got %s", req.Severity)
	}

	if Route(Event{Kind: KindAmbiguity, GoverningSilent: true}) == nil {
		t.Error("silent governing document must escalate")
	}
	if Route(Event{Kind: KindAmbiguity, Interpretations: 1}) != nil {
		t.Error("a single clear reading must not escalate")
	}
}

func TestRoute_EnvironmentBlocked(t *testing.T) {
	req := Route(Event{Kind: KindEnvironmentBlocked, Context: "docker unavailable"})
	if req == nil {
		t.Fatal("missing capability must escalate")
	}
	if req.Severity != SeverityHigh {
		t.Errorf("expected high severity, got %s", req.Severity)
	}
}

func TestRoute_CarriesReporterOptions(t *testing.T) {
	opts := []string{"merge into pkg/auth", "keep separate"}
	req := Route(Event{Kind: KindNewDependency, SuggestedOptions: opts})
	if req == nil {
		t.Fatal("expected escalation")
	}
	if len(req.SuggestedOptions) != 2 || req.SuggestedOptions[0] != opts[0] {
		t.Errorf("reporter options dropped: %v", req.SuggestedOptions)
	}
}
