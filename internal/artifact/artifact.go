// Package artifact defines the document types steward tracks through the
// review pipeline, their lifecycle states, and the per-type configuration
// tables that drive planning, gating, and revision routing. The engine
// never branches on a document's content — everything type-specific lives
// in these tables.
package artifact

import (
	"fmt"
	"path/filepath"
)

// Type identifies a kind of governing document.
type Type string

const (
	TypeCommon   Type = "common"   // Cross-cutting technical/UX decisions shared by all documents
	TypePRD      Type = "prd"      // Product requirements
	TypeADR      Type = "adr"      // Architecture decision record
	TypeUXRD     Type = "uxrd"     // UX requirements
	TypeDesign   Type = "design"   // Technical design
	TypeWorkPlan Type = "workplan" // Phased implementation plan
	TypeTaskFile Type = "taskfile" // Per-unit execution record
)

// State is the lifecycle state of a produced document.
type State string

const (
	StateDraft                  State = "draft"
	StateGateChecking           State = "gate_checking"
	StateApproved               State = "approved"
	StateApprovedWithConditions State = "approved_with_conditions"
	StateNeedsRevision          State = "needs_revision"
	StateRevising               State = "revising"
	StateRejected               State = "rejected"
)

// Terminal reports whether a state ends the gate/revision cycle.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateApprovedWithConditions, StateRejected:
		return true
	}
	return false
}

// Accepted reports whether a document in this state may be used as
// upstream context by later steps.
func (s State) Accepted() bool {
	return s == StateApproved || s == StateApprovedWithConditions
}

// transitions lists the allowed lifecycle edges. Only the pipeline driver
// moves a document between states, and only at step boundaries.
var transitions = map[State][]State{
	StateDraft:         {StateGateChecking},
	StateGateChecking:  {StateApproved, StateApprovedWithConditions, StateNeedsRevision, StateRejected},
	StateNeedsRevision: {StateRevising},
	StateRevising:      {StateGateChecking},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Spec describes one planned document: what to produce, whether its
// review is a hard stop point, and which planned documents must be
// approved before it can start.
type Spec struct {
	Type      Type
	Mandatory bool
	DependsOn []Type
}

// Definition is the per-type configuration table entry.
type Definition struct {
	// Category is the storage subdirectory for this type.
	Category string

	// MandatorySections must all be present and non-empty for the
	// structural gate check to pass.
	MandatorySections []string

	// DependsOn lists upstream types that must be approved first,
	// when they are part of the same plan.
	DependsOn []Type

	// CreateCapability and ReviseCapability name the worker
	// capabilities for producing and revising this type. Revision
	// routing is one-to-one: there is never a choice of reviser.
	CreateCapability string
	ReviseCapability string
}

var definitions = map[Type]Definition{
	TypeCommon: {
		Category:          "common",
		MandatorySections: []string{"Conventions", "Decisions"},
		CreateCapability:  "author.common",
		ReviseCapability:  "revise.common",
	},
	TypePRD: {
		Category:          "prd",
		MandatorySections: []string{"Overview", "Goals", "Requirements", "Acceptance Criteria"},
		DependsOn:         []Type{TypeCommon},
		CreateCapability:  "author.prd",
		ReviseCapability:  "revise.prd",
	},
	TypeADR: {
		Category:          "adr",
		MandatorySections: []string{"Context", "Decision", "Consequences"},
		DependsOn:         []Type{TypeCommon},
		CreateCapability:  "author.adr",
		ReviseCapability:  "revise.adr",
	},
	TypeUXRD: {
		Category:          "uxrd",
		MandatorySections: []string{"Overview", "User Flows", "Interaction Requirements"},
		DependsOn:         []Type{TypeCommon, TypePRD},
		CreateCapability:  "author.uxrd",
		ReviseCapability:  "revise.uxrd",
	},
	TypeDesign: {
		Category:          "design",
		MandatorySections: []string{"Overview", "Architecture", "Interfaces", "Acceptance Criteria"},
		DependsOn:         []Type{TypeCommon, TypePRD, TypeADR, TypeUXRD},
		CreateCapability:  "author.design",
		ReviseCapability:  "revise.design",
	},
	TypeWorkPlan: {
		Category:          "workplan",
		MandatorySections: []string{"Overview", "Phases", "Tasks", "Risks"},
		DependsOn:         []Type{TypePRD, TypeDesign},
		CreateCapability:  "author.workplan",
		ReviseCapability:  "revise.workplan",
	},
	TypeTaskFile: {
		Category:          "tasks",
		MandatorySections: []string{"Objective", "Steps", "Verification"},
		DependsOn:         []Type{TypeWorkPlan},
		CreateCapability:  "execute",
		ReviseCapability:  "execute",
	},
}

// ordered is the stable iteration order for all type tables. Common
// comes first because everything may reference it.
var ordered = []Type{TypeCommon, TypePRD, TypeADR, TypeUXRD, TypeDesign, TypeWorkPlan, TypeTaskFile}

// Types returns all known types in stable order.
func Types() []Type {
	out := make([]Type, len(ordered))
	copy(out, ordered)
	return out
}

// Lookup returns the configuration table entry for a type.
func Lookup(t Type) (Definition, bool) {
	def, ok := definitions[t]
	return def, ok
}

// Valid reports whether t is a known type.
func Valid(t Type) bool {
	_, ok := definitions[t]
	return ok
}

// FilePath returns the fixed storage location for a document instance:
// a category directory plus a sequential identifier and version. The
// engine depends only on being able to read/write by (type, identifier).
func FilePath(docsDir string, t Type, pipelineID int64, version int) string {
	def := definitions[t]
	name := fmt.Sprintf("%s-%d-v%d.md", t, pipelineID, version)
	return filepath.Join(docsDir, def.Category, name)
}
