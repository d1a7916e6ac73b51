package returns

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/modules/optimization"
)

// Repository handles returns-set database operations.
// Sets are immutable once saved: there is no update, only save and delete.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new returns repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "returns").Logger(),
	}
}

// Save stores a returns matrix under a fresh identifier.
// The matrix has already been validated by its constructor, so only the
// name needs checking here.
func (r *Repository) Save(name string, rm *optimization.ReturnsMatrix) (*SetSummary, error) {
	if name == "" {
		return nil, fmt.Errorf("returns set name must not be empty")
	}
	if rm == nil {
		return nil, fmt.Errorf("returns matrix must not be nil")
	}

	labels := rm.Labels()
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode asset labels: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().Unix()

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO returns_sets (id, name, asset_labels, scenarios, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, id, name, string(labelsJSON), rm.Scenarios(), now)
		if err != nil {
			return fmt.Errorf("failed to insert returns set: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO returns_values (set_id, scenario, asset_idx, value)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for s := 0; s < rm.Scenarios(); s++ {
			for i := 0; i < rm.Assets(); i++ {
				if _, err := stmt.Exec(id, s, i, rm.At(s, i)); err != nil {
					return fmt.Errorf("failed to insert value at scenario %d asset %d: %w", s, i, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("id", id).
		Str("name", name).
		Int("assets", rm.Assets()).
		Int("scenarios", rm.Scenarios()).
		Msg("Returns set saved")

	return &SetSummary{
		ID:        id,
		Name:      name,
		Assets:    rm.Assets(),
		Scenarios: rm.Scenarios(),
		CreatedAt: time.Unix(now, 0).UTC(),
	}, nil
}

// GetSummary retrieves a stored set's metadata.
// Returns nil without error when the set does not exist.
func (r *Repository) GetSummary(id string) (*SetSummary, error) {
	query := "SELECT id, name, asset_labels, scenarios, created_at FROM returns_sets WHERE id = ?"

	summary, _, err := r.scanSummary(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get returns set: %w", err)
	}

	return summary, nil
}

// GetMatrix retrieves a stored set's values as a ReturnsMatrix.
// Returns nil without error when the set does not exist.
func (r *Repository) GetMatrix(id string) (*optimization.ReturnsMatrix, error) {
	query := "SELECT id, name, asset_labels, scenarios, created_at FROM returns_sets WHERE id = ?"

	summary, labels, err := r.scanSummary(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get returns set: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT scenario, asset_idx, value
		FROM returns_values
		WHERE set_id = ?
		ORDER BY scenario, asset_idx
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get returns values: %w", err)
	}
	defer rows.Close()

	data := make([][]float64, summary.Scenarios)
	for s := range data {
		data[s] = make([]float64, summary.Assets)
	}

	count := 0
	for rows.Next() {
		var scenario, assetIdx int
		var value float64
		if err := rows.Scan(&scenario, &assetIdx, &value); err != nil {
			return nil, fmt.Errorf("failed to scan returns value: %w", err)
		}
		if scenario < 0 || scenario >= summary.Scenarios || assetIdx < 0 || assetIdx >= summary.Assets {
			return nil, fmt.Errorf("returns set %s has out-of-range cell (scenario %d, asset %d)", id, scenario, assetIdx)
		}
		data[scenario][assetIdx] = value
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read returns values: %w", err)
	}

	if expected := summary.Scenarios * summary.Assets; count != expected {
		return nil, fmt.Errorf("returns set %s is incomplete: %d of %d values", id, count, expected)
	}

	rm, err := optimization.NewReturnsMatrix(labels, data)
	if err != nil {
		return nil, fmt.Errorf("stored returns set %s failed validation: %w", id, err)
	}

	return rm, nil
}

// List retrieves summaries of all stored sets, newest first
func (r *Repository) List() ([]SetSummary, error) {
	rows, err := r.db.Query(`
		SELECT id, name, asset_labels, scenarios, created_at
		FROM returns_sets
		ORDER BY created_at DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list returns sets: %w", err)
	}
	defer rows.Close()

	var summaries []SetSummary
	for rows.Next() {
		summary, _, err := r.scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan returns set: %w", err)
		}
		summaries = append(summaries, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read returns sets: %w", err)
	}

	return summaries, nil
}

// Delete removes a stored set and its values.
// Returns false when the set did not exist.
func (r *Repository) Delete(id string) (bool, error) {
	deleted := false

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM returns_values WHERE set_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete returns values: %w", err)
		}

		result, err := tx.Exec("DELETE FROM returns_sets WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete returns set: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted = affected > 0

		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		r.log.Info().Str("id", id).Msg("Returns set deleted")
	}

	return deleted, nil
}

// Helper methods

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanSummary(row rowScanner) (*SetSummary, []string, error) {
	var summary SetSummary
	var labelsJSON string
	var createdAtUnix int64

	err := row.Scan(&summary.ID, &summary.Name, &labelsJSON, &summary.Scenarios, &createdAtUnix)
	if err != nil {
		return nil, nil, err
	}

	var labels []string
	if err := json.Unmarshal([]byte(labelsJSON), &labels); err != nil {
		return nil, nil, fmt.Errorf("failed to decode asset labels: %w", err)
	}

	summary.Assets = len(labels)
	summary.CreatedAt = time.Unix(createdAtUnix, 0).UTC()

	return &summary, labels, nil
}
