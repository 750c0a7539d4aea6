package store

import "time"

// PipelineState is the coarse phase a pipeline run is in.
type PipelineState string

const (
	StateClassifying      PipelineState = "classifying"
	StatePlanning         PipelineState = "planning"
	StateDocumentPhase    PipelineState = "document_phase"
	StateAwaitingApproval PipelineState = "awaiting_approval"
	StateImplementation   PipelineState = "implementation"
	StateCompleted        PipelineState = "completed"
	StateEscalated        PipelineState = "escalated"
	StateBlocked          PipelineState = "blocked"
	StateFailed           PipelineState = "failed"
)

// Terminal reports whether the pipeline has reached a final state.
func (s PipelineState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// UnitState is the execution state of one implementation work unit.
type UnitState string

const (
	UnitPending          UnitState = "pending"
	UnitExecuting        UnitState = "executing"
	UnitEscalationNeeded UnitState = "escalation_needed"
	UnitQualityChecked   UnitState = "quality_checked"
	UnitCommitted        UnitState = "committed"
	UnitCompleted        UnitState = "completed"
	UnitFailed           UnitState = "failed"
)

// Pipeline is one orchestrated run: a work request moving through
// classification, planning, the document phase, and implementation.
type Pipeline struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	State       PipelineState `json:"state"`

	// PendingStop names the stop point the pipeline is parked at while
	// in awaiting_approval: "classification" or "artifact:<type>".
	PendingStop string `json:"pending_stop,omitempty"`

	// Classification is the serialized classification record.
	Classification string `json:"classification,omitempty"`

	CommitStrategy string    `json:"commit_strategy,omitempty"`
	GitBranch      string    `json:"git_branch,omitempty"`
	BlockedReason  string    `json:"blocked_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Artifact is one planned document and its lifecycle state. The file
// itself lives on disk; the row tracks state and version.
type Artifact struct {
	ID         int64     `json:"id"`
	PipelineID int64     `json:"pipeline_id"`
	Type       string    `json:"type"`
	State      string    `json:"state"`
	Version    int       `json:"version"`
	FilePath   string    `json:"file_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GateRecord is one immutable gate result for a document version.
// Records are append-only; re-gates add rows, never rewrite them.
type GateRecord struct {
	ID         int64     `json:"id"`
	ArtifactID int64     `json:"artifact_id"`
	Version    int       `json:"version"`
	Stage      string    `json:"stage"`
	Verdict    string    `json:"verdict"`
	Detail     string    `json:"detail,omitempty"` // serialized gate.Result
	CreatedAt  time.Time `json:"created_at"`
}

// TaskUnit is one implementation work unit from the approved plan.
// Units execute strictly in (phase, seq) order.
type TaskUnit struct {
	ID          int64     `json:"id"`
	PipelineID  int64     `json:"pipeline_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Seq         int       `json:"seq"`
	State       UnitState `json:"state"`
	Summary     string    `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Escalation is a halted conflict awaiting a human resolution.
type Escalation struct {
	ID         int64      `json:"id"`
	PipelineID int64      `json:"pipeline_id"`
	UnitID     *int64     `json:"unit_id,omitempty"`
	Kind       string     `json:"kind"`
	Severity   string     `json:"severity"`
	Context    string     `json:"context,omitempty"`
	Options    string     `json:"options,omitempty"` // serialized suggested options
	Status     string     `json:"status"`            // open, resolved
	Resolution string     `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Approval records a human sign-off at a stop point.
type Approval struct {
	ID         int64     `json:"id"`
	PipelineID int64     `json:"pipeline_id"`
	Point      string    `json:"point"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is one entry in a pipeline's activity log.
type Event struct {
	ID         int64     `json:"id"`
	PipelineID int64     `json:"pipeline_id"`
	Actor      string    `json:"actor,omitempty"`
	Type       string    `json:"event_type"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
