// Package classify turns a work request into a scale and artifact
// classification. Classification is a pure function of the request:
// identical requests always produce identical classifications, so
// concurrent classification needs no synchronization.
package classify

import (
	"sort"
	"strings"

	"github.com/imkarma/steward/internal/artifact"
)

// Scale classifies a request's size and drives which documents are mandatory.
type Scale string

const (
	ScaleSmall  Scale = "small"  // 1-2 affected files
	ScaleMedium Scale = "medium" // 3-5 affected files
	ScaleLarge  Scale = "large"  // 6+ affected files
)

// Confidence marks whether the scale assignment rests on real evidence.
type Confidence string

const (
	ConfidenceConfirmed   Confidence = "confirmed"
	ConfidenceProvisional Confidence = "provisional"
)

// Trigger is an independent boolean condition that forces document types
// regardless of scale. Triggers only ever add requirements.
type Trigger string

const (
	TriggerDataFlow     Trigger = "data_flow"
	TriggerContract     Trigger = "contract_change"
	TriggerArchitecture Trigger = "architecture"
	TriggerDependency   Trigger = "external_dependency"
	TriggerInteraction  Trigger = "ui_interaction"
)

// Triggers lists all known trigger conditions in stable order.
func Triggers() []Trigger {
	return []Trigger{TriggerDataFlow, TriggerContract, TriggerArchitecture, TriggerDependency, TriggerInteraction}
}

// ValidTrigger reports whether t names a known trigger condition.
func ValidTrigger(t Trigger) bool {
	for _, known := range Triggers() {
		if t == known {
			return true
		}
	}
	return false
}

// Request is an immutable work request. Affected files and trigger
// conditions arrive as structured input (from the submitter or an
// upstream detection step); the classifier never infers them from
// free text.
type Request struct {
	Title         string
	Description   string
	TaskType      string // feature, fix, refactor, chore
	AffectedFiles []string
	Triggers      []Trigger

	// Prior context, carried along read-only.
	RecentChanges []string
	RelatedIssues []string
}

// Classification is the result of classifying one request.
type Classification struct {
	TaskType          string          `json:"task_type"`
	Essence           string          `json:"essence"`
	Scale             Scale           `json:"scale"`
	Confidence        Confidence      `json:"confidence"`
	AffectedFiles     []string        `json:"affected_files,omitempty"`
	Triggers          []Trigger       `json:"triggers,omitempty"`
	RequiredArtifacts []artifact.Type `json:"required_artifacts,omitempty"`

	// ScopeDependencies holds the unresolved questions whose answers
	// could change the scale. Non-empty exactly when Confidence is
	// provisional.
	ScopeDependencies []string `json:"scope_dependencies,omitempty"`
}

// requiredByScale maps a confirmed scale to its mandatory document types.
var requiredByScale = map[Scale][]artifact.Type{
	ScaleSmall:  {},
	ScaleMedium: {artifact.TypeDesign, artifact.TypeWorkPlan},
	ScaleLarge:  {artifact.TypePRD, artifact.TypeDesign, artifact.TypeWorkPlan},
}

// requiredByTrigger maps each trigger condition to the document types it
// forces. Evaluated independently of scale.
var requiredByTrigger = map[Trigger][]artifact.Type{
	TriggerDataFlow:     {artifact.TypeDesign},
	TriggerContract:     {artifact.TypeDesign},
	TriggerArchitecture: {artifact.TypeADR},
	TriggerDependency:   {artifact.TypeADR},
	TriggerInteraction:  {artifact.TypeUXRD},
}

// Classify maps a request to its classification. Deterministic and
// side-effect-free: scale comes from a fixed threshold table on the
// affected-file count, never from subjective weighting. When the file
// count cannot be estimated, the result is provisional and carries the
// open questions instead of a guess.
func Classify(req Request) Classification {
	files := normalizeFiles(req.AffectedFiles)
	triggers := normalizeTriggers(req.Triggers)

	c := Classification{
		TaskType:      req.TaskType,
		Essence:       essence(req),
		AffectedFiles: files,
		Triggers:      triggers,
		Confidence:    ConfidenceConfirmed,
	}
	if c.TaskType == "" {
		c.TaskType = "feature"
	}

	switch n := len(files); {
	case n == 0:
		// No evidence for a file count. Assume the midpoint but mark
		// it provisional and name the questions that would settle it.
		c.Scale = ScaleMedium
		c.Confidence = ConfidenceProvisional
		c.ScopeDependencies = scopeQuestions(triggers)
	case n <= 2:
		c.Scale = ScaleSmall
	case n <= 5:
		c.Scale = ScaleMedium
	default:
		c.Scale = ScaleLarge
	}

	c.RequiredArtifacts = requiredArtifacts(c.Scale, triggers)
	return c
}

// requiredArtifacts unions scale-mandated and trigger-forced types.
// Triggers can only add requirements, never remove scale-mandated ones.
func requiredArtifacts(scale Scale, triggers []Trigger) []artifact.Type {
	want := map[artifact.Type]bool{}
	for _, t := range requiredByScale[scale] {
		want[t] = true
	}
	for _, tr := range triggers {
		for _, t := range requiredByTrigger[tr] {
			want[t] = true
		}
	}

	// Emit in the artifact table's stable order.
	var out []artifact.Type
	for _, t := range artifact.Types() {
		if want[t] {
			out = append(out, t)
		}
	}
	return out
}

// scopeQuestions returns the fixed open questions for an unestimable scope.
func scopeQuestions(triggers []Trigger) []string {
	qs := []string{
		"Which files or packages does this change touch?",
		"Is the change contained to one module, or does it cross module boundaries?",
	}
	if len(triggers) == 0 {
		qs = append(qs, "Do any trigger conditions apply (data flow, contract, architecture, external dependency, interaction)?")
	}
	return qs
}

// essence is a short normalized statement of what the request is about:
// the first sentence of the description, falling back to the title.
func essence(req Request) string {
	text := strings.TrimSpace(req.Description)
	if text == "" {
		return strings.TrimSpace(req.Title)
	}
	if idx := strings.IndexAny(text, ".\n"); idx > 0 {
		text = text[:idx]
	}
	const maxLen = 140
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return strings.TrimSpace(text)
}

// normalizeFiles deduplicates and sorts so that input order never
// affects the result.
func normalizeFiles(files []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func normalizeTriggers(triggers []Trigger) []Trigger {
	seen := map[Trigger]bool{}
	for _, t := range triggers {
		seen[t] = true
	}
	var out []Trigger
	for _, t := range Triggers() {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}
