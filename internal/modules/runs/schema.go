package runs

import "database/sql"

// RunsSchema defines the optimization run history table.
// Parameters and weights are stored as JSON text; timestamps are Unix seconds.
const RunsSchema = `
CREATE TABLE IF NOT EXISTS optimization_runs (
    id TEXT PRIMARY KEY,
    set_id TEXT,
    variant TEXT NOT NULL,
    parameters TEXT NOT NULL,
    weights TEXT,
    risk REAL,
    shrinkage REAL,
    ratio REAL,
    status TEXT NOT NULL,
    error_kind TEXT,
    error_message TEXT,
    duration_ms INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_optimization_runs_created ON optimization_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_optimization_runs_set ON optimization_runs(set_id);
`

// InitSchema ensures the run history table exists
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(RunsSchema)
	return err
}
