package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitesim/reactor/pkg/errors"
)

// Run is the persisted record of one simulation run: its signature/parameter
// source, seed, and final status. SPEC_FULL §11 stores one row per run so a
// trajectory can be replayed or audited after the process that produced it
// has exited.
type Run struct {
	ID           string
	SignatureFn  string
	ParameterFn  string
	Seed1        uint64
	Seed2        uint64
	SimLimit     float64
	SimLimitKind string // "time" | "event"
	Status       string // "running" | "completed" | "failed" | "stopped"
	StartedAt    time.Time
	FinishedAt   *time.Time
	Metadata     map[string]interface{}
}

// Snapshot is one persisted site-graph mixture state captured during a run,
// keyed by the simulation time or event count at capture.
type Snapshot struct {
	ID        string
	RunID     string
	Stamp     float64
	KappaText string
	CreatedAt time.Time
}

// ObservablePoint is one sampled value of one named observable at a given
// stamp, the row-oriented counterpart to monitor.Series used for durable
// storage and downstream querying.
type ObservablePoint struct {
	RunID string
	Name  string
	Stamp float64
	Value float64
}

// RunRepo persists runs, snapshots and observable samples to Postgres over a
// pgx connection pool.
type RunRepo struct {
	pool *pgxpool.Pool
	log  Logger
}

// NewRunRepo returns a repository over the runs/snapshots/observable_points
// tables.
func NewRunRepo(pool *pgxpool.Pool, log Logger) *RunRepo {
	return &RunRepo{pool: pool, log: log}
}

// CreateRun inserts a new run row with status "running".
func (r *RunRepo) CreateRun(ctx context.Context, run *Run) error {
	meta, _ := json.Marshal(run.Metadata)
	query := `
		INSERT INTO runs (signature_fn, parameter_fn, seed1, seed2, sim_limit, sim_limit_kind, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, 'running', $7)
		RETURNING id, started_at
	`
	err := r.pool.QueryRow(ctx, query,
		run.SignatureFn, run.ParameterFn, run.Seed1, run.Seed2, run.SimLimit, run.SimLimitKind, meta,
	).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "failed to create run")
	}
	return nil
}

// FinishRun records a run's terminal status (completed, failed or stopped).
func (r *RunRepo) FinishRun(ctx context.Context, id string, status string) error {
	query := `UPDATE runs SET status = $1, finished_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "failed to finish run")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("run not found: " + id)
	}
	return nil
}

// GetRun fetches a run by id.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, signature_fn, parameter_fn, seed1, seed2, sim_limit, sim_limit_kind,
		       status, started_at, finished_at, metadata
		FROM runs WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)
	run := &Run{}
	var meta []byte
	err := row.Scan(
		&run.ID, &run.SignatureFn, &run.ParameterFn, &run.Seed1, &run.Seed2,
		&run.SimLimit, &run.SimLimitKind, &run.Status, &run.StartedAt, &run.FinishedAt, &meta,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("run not found")
		}
		return nil, errors.Wrap(err, errors.CodeDBQueryError, "failed to scan run")
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &run.Metadata)
	}
	return run, nil
}

// SaveSnapshot inserts a mixture snapshot in its textual site-graph form.
func (r *RunRepo) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO snapshots (run_id, stamp, kappa_text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query, snap.RunID, snap.Stamp, snap.KappaText).
		Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "failed to save snapshot")
	}
	return nil
}

// ListSnapshots returns every snapshot for a run, ordered by capture stamp.
func (r *RunRepo) ListSnapshots(ctx context.Context, runID string) ([]*Snapshot, error) {
	query := `SELECT id, run_id, stamp, kappa_text, created_at FROM snapshots WHERE run_id = $1 ORDER BY stamp ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDBQueryError, "failed to list snapshots")
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		s := &Snapshot{}
		if err := rows.Scan(&s.ID, &s.RunID, &s.Stamp, &s.KappaText, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.CodeDBQueryError, "failed to scan snapshot")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveObservablePoints bulk-inserts a batch of sampled observable values via
// pgx's CopyFrom, the high-volume ingestion path for trajectory data recorded
// every monitor.Sample tick.
func (r *RunRepo) SaveObservablePoints(ctx context.Context, points []ObservablePoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(points))
	for i, p := range points {
		rows[i] = []interface{}{p.RunID, p.Name, p.Stamp, p.Value}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"observable_points"},
		[]string{"run_id", "name", "stamp", "value"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "failed to bulk-insert observable points")
	}
	return nil
}
