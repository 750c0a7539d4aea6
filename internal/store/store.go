package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides access to the steward database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipelines (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		title           TEXT NOT NULL,
		description     TEXT DEFAULT '',
		state           TEXT NOT NULL DEFAULT 'classifying',
		pending_stop    TEXT DEFAULT '',
		classification  TEXT DEFAULT '',
		commit_strategy TEXT DEFAULT '',
		git_branch      TEXT DEFAULT '',
		blocked_reason  TEXT DEFAULT '',
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id INTEGER NOT NULL REFERENCES pipelines(id),
		type        TEXT NOT NULL,
		state       TEXT NOT NULL DEFAULT 'draft',
		version     INTEGER NOT NULL DEFAULT 1,
		file_path   TEXT DEFAULT '',
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL,
		UNIQUE(pipeline_id, type)
	);

	CREATE TABLE IF NOT EXISTS gate_results (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL REFERENCES artifacts(id),
		version     INTEGER NOT NULL,
		stage       TEXT NOT NULL,
		verdict     TEXT NOT NULL,
		detail      TEXT DEFAULT '',
		created_at  DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_units (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id INTEGER NOT NULL REFERENCES pipelines(id),
		title       TEXT NOT NULL,
		description TEXT DEFAULT '',
		phase       TEXT DEFAULT '',
		seq         INTEGER NOT NULL,
		state       TEXT NOT NULL DEFAULT 'pending',
		summary     TEXT DEFAULT '',
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS escalations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id INTEGER NOT NULL REFERENCES pipelines(id),
		unit_id     INTEGER REFERENCES task_units(id),
		kind        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		context     TEXT DEFAULT '',
		options     TEXT DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'open',
		resolution  TEXT DEFAULT '',
		created_at  DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS approvals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id INTEGER NOT NULL REFERENCES pipelines(id),
		point       TEXT NOT NULL,
		note        TEXT DEFAULT '',
		created_at  DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id INTEGER NOT NULL REFERENCES pipelines(id),
		actor       TEXT DEFAULT '',
		event_type  TEXT NOT NULL,
		content     TEXT DEFAULT '',
		timestamp   DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Migrate existing databases: add new columns if missing.
	s.addColumnIfMissing("pipelines", "git_branch", "TEXT DEFAULT ''")
	s.addColumnIfMissing("pipelines", "commit_strategy", "TEXT DEFAULT ''")

	return nil
}

// addColumnIfMissing adds a column to a table if it doesn't exist yet.
// Used for schema migrations on existing databases.
func (s *Store) addColumnIfMissing(table, column, colDef string) {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue *string
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return
		}
		if name == column {
			return // Column already exists.
		}
	}

	s.db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + colDef)
}

// --- Pipelines ---

const pipelineColumns = `id, title, description, state, pending_stop, classification, commit_strategy, git_branch, blocked_reason, created_at, updated_at`

// CreatePipeline inserts a new pipeline and returns it with the
// generated ID.
func (s *Store) CreatePipeline(title, description string) (*Pipeline, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO pipelines (title, description, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		title, description, string(StateClassifying), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline: %w", err)
	}

	id, _ := res.LastInsertId()
	s.AddEvent(id, "", "created", fmt.Sprintf("Pipeline created: %s", title))

	return &Pipeline{
		ID:          id,
		Title:       title,
		Description: description,
		State:       StateClassifying,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetPipeline returns a single pipeline by ID.
func (s *Store) GetPipeline(id int64) (*Pipeline, error) {
	row := s.db.QueryRow(`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`, id)

	var p Pipeline
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.State, &p.PendingStop,
		&p.Classification, &p.CommitStrategy, &p.GitBranch, &p.BlockedReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	return &p, nil
}

// ListPipelines returns all pipelines, optionally filtered by state.
func (s *Store) ListPipelines(state string) ([]Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines`
	var args []any
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []Pipeline
	for rows.Next() {
		var p Pipeline
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.State, &p.PendingStop,
			&p.Classification, &p.CommitStrategy, &p.GitBranch, &p.BlockedReason,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

// UpdatePipelineState changes the state of a pipeline.
func (s *Store) UpdatePipelineState(id int64, state PipelineState) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), now, id,
	)
	if err != nil {
		return fmt.Errorf("update pipeline state: %w", err)
	}
	s.AddEvent(id, "", "state_changed", fmt.Sprintf("State changed to %s", state))
	return nil
}

// SetPendingStop parks the pipeline at a stop point (empty clears it).
func (s *Store) SetPendingStop(id int64, stop string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET pending_stop = ?, updated_at = ? WHERE id = ?`,
		stop, now, id,
	)
	if err != nil {
		return fmt.Errorf("set pending stop: %w", err)
	}
	return nil
}

// SetClassification stores the serialized classification record.
func (s *Store) SetClassification(id int64, classification string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET classification = ?, updated_at = ? WHERE id = ?`,
		classification, now, id,
	)
	if err != nil {
		return fmt.Errorf("set classification: %w", err)
	}
	return nil
}

// SetCommitStrategy records the strategy chosen for this run.
func (s *Store) SetCommitStrategy(id int64, strategy string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET commit_strategy = ?, updated_at = ? WHERE id = ?`,
		strategy, now, id,
	)
	if err != nil {
		return fmt.Errorf("set commit strategy: %w", err)
	}
	return nil
}

// SetGitBranch records the git safety branch for a pipeline.
func (s *Store) SetGitBranch(id int64, branch string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET git_branch = ?, updated_at = ? WHERE id = ?`,
		branch, now, id,
	)
	if err != nil {
		return fmt.Errorf("set git branch: %w", err)
	}
	return nil
}

// BlockPipeline marks a pipeline as blocked with a reason.
func (s *Store) BlockPipeline(id int64, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET state = ?, blocked_reason = ?, updated_at = ? WHERE id = ?`,
		string(StateBlocked), reason, now, id,
	)
	if err != nil {
		return fmt.Errorf("block pipeline: %w", err)
	}
	s.AddEvent(id, "", "blocked", reason)
	return nil
}

// UnblockPipeline clears the blocked reason and returns the pipeline to
// the given state with the user's answer recorded.
func (s *Store) UnblockPipeline(id int64, state PipelineState, answer string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE pipelines SET state = ?, blocked_reason = '', updated_at = ? WHERE id = ?`,
		string(state), now, id,
	)
	if err != nil {
		return fmt.Errorf("unblock pipeline: %w", err)
	}
	s.AddEvent(id, "user", "unblocked", fmt.Sprintf("User answered: %s", answer))
	return nil
}

// --- Artifacts ---

const artifactColumns = `id, pipeline_id, type, state, version, file_path, created_at, updated_at`

// CreateArtifact registers a planned document at version 1.
func (s *Store) CreateArtifact(pipelineID int64, artifactType string) (*Artifact, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO artifacts (pipeline_id, type, state, version, created_at, updated_at)
		 VALUES (?, ?, 'draft', 1, ?, ?)`,
		pipelineID, artifactType, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Artifact{
		ID: id, PipelineID: pipelineID, Type: artifactType,
		State: "draft", Version: 1, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetArtifact returns the document row for a pipeline and type.
func (s *Store) GetArtifact(pipelineID int64, artifactType string) (*Artifact, error) {
	row := s.db.QueryRow(
		`SELECT `+artifactColumns+` FROM artifacts WHERE pipeline_id = ? AND type = ?`,
		pipelineID, artifactType,
	)
	var a Artifact
	err := row.Scan(&a.ID, &a.PipelineID, &a.Type, &a.State, &a.Version, &a.FilePath, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	return &a, nil
}

// ListArtifacts returns all documents for a pipeline in creation order.
func (s *Store) ListArtifacts(pipelineID int64) ([]Artifact, error) {
	rows, err := s.db.Query(
		`SELECT `+artifactColumns+` FROM artifacts WHERE pipeline_id = ? ORDER BY id`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.PipelineID, &a.Type, &a.State, &a.Version, &a.FilePath, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// UpdateArtifactState changes a document's lifecycle state.
func (s *Store) UpdateArtifactState(id int64, state string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE artifacts SET state = ?, updated_at = ? WHERE id = ?`,
		state, now, id,
	)
	if err != nil {
		return fmt.Errorf("update artifact state: %w", err)
	}
	return nil
}

// SetArtifactFile records the on-disk path and version of the latest
// accepted document text.
func (s *Store) SetArtifactFile(id int64, filePath string, version int) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE artifacts SET file_path = ?, version = ?, updated_at = ? WHERE id = ?`,
		filePath, version, now, id,
	)
	if err != nil {
		return fmt.Errorf("set artifact file: %w", err)
	}
	return nil
}

// AddGateRecord appends one gate result to a document's history.
func (s *Store) AddGateRecord(artifactID int64, version int, stage, verdict, detail string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO gate_results (artifact_id, version, stage, verdict, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		artifactID, version, stage, verdict, detail, now,
	)
	return err
}

// ListGateRecords returns a document's full gate history, oldest first.
func (s *Store) ListGateRecords(artifactID int64) ([]GateRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, artifact_id, version, stage, verdict, detail, created_at
		 FROM gate_results WHERE artifact_id = ? ORDER BY id`,
		artifactID,
	)
	if err != nil {
		return nil, fmt.Errorf("query gate results: %w", err)
	}
	defer rows.Close()

	var records []GateRecord
	for rows.Next() {
		var r GateRecord
		if err := rows.Scan(&r.ID, &r.ArtifactID, &r.Version, &r.Stage, &r.Verdict, &r.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gate record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Task units ---

const unitColumns = `id, pipeline_id, title, description, phase, seq, state, summary, created_at, updated_at`

// CreateUnits inserts the implementation units for a pipeline in plan
// order. Seq is assigned from position.
func (s *Store) CreateUnits(pipelineID int64, units []TaskUnit) error {
	now := time.Now().UTC()
	for i, u := range units {
		_, err := s.db.Exec(
			`INSERT INTO task_units (pipeline_id, title, description, phase, seq, state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pipelineID, u.Title, u.Description, u.Phase, i, string(UnitPending), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert unit %d: %w", i, err)
		}
	}
	return nil
}

// ListUnits returns all units for a pipeline in execution order.
func (s *Store) ListUnits(pipelineID int64) ([]TaskUnit, error) {
	rows, err := s.db.Query(
		`SELECT `+unitColumns+` FROM task_units WHERE pipeline_id = ? ORDER BY seq`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var units []TaskUnit
	for rows.Next() {
		var u TaskUnit
		if err := rows.Scan(&u.ID, &u.PipelineID, &u.Title, &u.Description, &u.Phase, &u.Seq, &u.State, &u.Summary, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// NextPendingUnit returns the lowest-seq pending unit, or nil when the
// run has no work left.
func (s *Store) NextPendingUnit(pipelineID int64) (*TaskUnit, error) {
	row := s.db.QueryRow(
		`SELECT `+unitColumns+` FROM task_units
		 WHERE pipeline_id = ? AND state = ? ORDER BY seq LIMIT 1`,
		pipelineID, string(UnitPending),
	)
	var u TaskUnit
	err := row.Scan(&u.ID, &u.PipelineID, &u.Title, &u.Description, &u.Phase, &u.Seq, &u.State, &u.Summary, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending unit: %w", err)
	}
	return &u, nil
}

// UpdateUnitState changes a unit's state, optionally recording the
// execution summary.
func (s *Store) UpdateUnitState(id int64, state UnitState, summary string) error {
	now := time.Now().UTC()
	var err error
	if summary != "" {
		_, err = s.db.Exec(
			`UPDATE task_units SET state = ?, summary = ?, updated_at = ? WHERE id = ?`,
			string(state), summary, now, id,
		)
	} else {
		_, err = s.db.Exec(
			`UPDATE task_units SET state = ?, updated_at = ? WHERE id = ?`,
			string(state), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update unit state: %w", err)
	}
	return nil
}

// ResetStaleUnits finds units stuck mid-execution (likely from a crash)
// and resets them to pending.
func (s *Store) ResetStaleUnits(pipelineID int64) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE task_units SET state = ?, updated_at = ?
		 WHERE pipeline_id = ? AND state = ?`,
		string(UnitPending), now, pipelineID, string(UnitExecuting),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale units: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Escalations ---

// CreateEscalation records a halted conflict.
func (s *Store) CreateEscalation(pipelineID int64, unitID *int64, kind, severity, context, options string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO escalations (pipeline_id, unit_id, kind, severity, context, options, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'open', ?)`,
		pipelineID, unitID, kind, severity, context, options, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert escalation: %w", err)
	}
	id, _ := res.LastInsertId()
	s.AddEvent(pipelineID, "", "escalated", fmt.Sprintf("%s (%s): %s", kind, severity, context))
	return id, nil
}

// ListOpenEscalations returns unresolved escalations, optionally
// limited to one pipeline (0 = all).
func (s *Store) ListOpenEscalations(pipelineID int64) ([]Escalation, error) {
	query := `SELECT id, pipeline_id, unit_id, kind, severity, context, options, status, resolution, created_at, resolved_at
	 FROM escalations WHERE status = 'open'`
	var args []any
	if pipelineID > 0 {
		query += ` AND pipeline_id = ?`
		args = append(args, pipelineID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var escalations []Escalation
	for rows.Next() {
		var e Escalation
		var unitID sql.NullInt64
		var resolvedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.PipelineID, &unitID, &e.Kind, &e.Severity, &e.Context, &e.Options, &e.Status, &e.Resolution, &e.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		if unitID.Valid {
			e.UnitID = &unitID.Int64
		}
		if resolvedAt.Valid {
			e.ResolvedAt = &resolvedAt.Time
		}
		escalations = append(escalations, e)
	}
	return escalations, rows.Err()
}

// ResolveEscalation records the human resolution and closes the
// escalation.
func (s *Store) ResolveEscalation(id int64, resolution string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE escalations SET status = 'resolved', resolution = ?, resolved_at = ? WHERE id = ? AND status = 'open'`,
		resolution, now, id,
	)
	if err != nil {
		return fmt.Errorf("resolve escalation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("escalation %d not found or already resolved", id)
	}
	return nil
}

// --- Approvals ---

// AddApproval records a human sign-off at a stop point.
func (s *Store) AddApproval(pipelineID int64, point, note string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO approvals (pipeline_id, point, note, created_at) VALUES (?, ?, ?, ?)`,
		pipelineID, point, note, now,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	s.AddEvent(pipelineID, "user", "approved", point)
	return nil
}

// HasApproval reports whether a stop point has been signed off.
func (s *Store) HasApproval(pipelineID int64, point string) (bool, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*) FROM approvals WHERE pipeline_id = ? AND point = ?`,
		pipelineID, point,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("check approval: %w", err)
	}
	return n > 0, nil
}

// --- Events ---

// AddEvent records an entry in a pipeline's activity log.
func (s *Store) AddEvent(pipelineID int64, actor, eventType, content string) {
	now := time.Now().UTC()
	s.db.Exec(
		`INSERT INTO events (pipeline_id, actor, event_type, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		pipelineID, actor, eventType, content, now,
	)
}

// GetEvents returns all events for a pipeline in order.
func (s *Store) GetEvents(pipelineID int64) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, pipeline_id, actor, event_type, content, timestamp FROM events WHERE pipeline_id = ? ORDER BY id`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.PipelineID, &e.Actor, &e.Type, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
