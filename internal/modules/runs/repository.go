package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles run history database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// runsColumns is the column list for the optimization_runs table.
// Order must match scanRun.
const runsColumns = `id, set_id, variant, parameters, weights, risk, shrinkage, ratio,
status, error_kind, error_message, duration_ms, created_at`

// NewRepository creates a new run history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Insert records a run. ID and CreatedAt are populated here.
func (r *Repository) Insert(run *Run) error {
	if run == nil {
		return fmt.Errorf("run must not be nil")
	}
	if run.Variant == "" {
		return fmt.Errorf("run variant must not be empty")
	}
	if run.Status != StatusOK && run.Status != StatusFailed {
		return fmt.Errorf("unknown run status %q", run.Status)
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().Unix()

	params := run.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode run parameters: %w", err)
	}

	var weightsJSON sql.NullString
	if run.Weights != nil {
		encoded, err := json.Marshal(run.Weights)
		if err != nil {
			return fmt.Errorf("failed to encode run weights: %w", err)
		}
		weightsJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	query := `
		INSERT INTO optimization_runs
		(id, set_id, variant, parameters, weights, risk, shrinkage, ratio,
		 status, error_kind, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID,
		nullString(run.SetID),
		run.Variant,
		string(paramsJSON),
		weightsJSON,
		nullFloat(run.Risk),
		nullFloat(run.Shrinkage),
		nullFloat(run.Ratio),
		run.Status,
		run.ErrorKind,
		run.ErrorMessage,
		run.DurationMS,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	run.CreatedAt = time.Unix(now, 0).UTC()

	r.log.Info().
		Str("id", run.ID).
		Str("variant", run.Variant).
		Str("status", run.Status).
		Msg("Optimization run recorded")

	return nil
}

// GetByID retrieves a run by ID.
// Returns nil without error when the run does not exist.
func (r *Repository) GetByID(id string) (*Run, error) {
	query := "SELECT " + runsColumns + " FROM optimization_runs WHERE id = ?"

	run, err := r.scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List retrieves runs, newest first, optionally limited
func (r *Repository) List(limit int) ([]Run, error) {
	var rows *sql.Rows
	var err error

	if limit > 0 {
		query := "SELECT " + runsColumns + " FROM optimization_runs ORDER BY created_at DESC, id LIMIT ?"
		rows, err = r.db.Query(query, limit)
	} else {
		query := "SELECT " + runsColumns + " FROM optimization_runs ORDER BY created_at DESC, id"
		rows, err = r.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	return r.collectRuns(rows)
}

// ListBySet retrieves all runs for a stored returns set, newest first
func (r *Repository) ListBySet(setID string) ([]Run, error) {
	query := "SELECT " + runsColumns + " FROM optimization_runs WHERE set_id = ? ORDER BY created_at DESC, id"

	rows, err := r.db.Query(query, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs by set: %w", err)
	}
	defer rows.Close()

	return r.collectRuns(rows)
}

// Helper methods

func (r *Repository) collectRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanRun(row rowScanner) (*Run, error) {
	var run Run
	var setID, weightsJSON, errorKind, errorMessage sql.NullString
	var paramsJSON string
	var risk, shrinkage, ratio sql.NullFloat64
	var createdAtUnix int64

	err := row.Scan(
		&run.ID,
		&setID,
		&run.Variant,
		&paramsJSON,
		&weightsJSON,
		&risk,
		&shrinkage,
		&ratio,
		&run.Status,
		&errorKind,
		&errorMessage,
		&run.DurationMS,
		&createdAtUnix,
	)
	if err != nil {
		return nil, err
	}

	if setID.Valid {
		run.SetID = &setID.String
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode run parameters: %w", err)
	}
	if weightsJSON.Valid {
		if err := json.Unmarshal([]byte(weightsJSON.String), &run.Weights); err != nil {
			return nil, fmt.Errorf("failed to decode run weights: %w", err)
		}
	}
	if risk.Valid {
		run.Risk = &risk.Float64
	}
	if shrinkage.Valid {
		run.Shrinkage = &shrinkage.Float64
	}
	if ratio.Valid {
		run.Ratio = &ratio.Float64
	}
	if errorKind.Valid {
		run.ErrorKind = errorKind.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	run.CreatedAt = time.Unix(createdAtUnix, 0).UTC()

	return &run, nil
}

// Helper functions

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
