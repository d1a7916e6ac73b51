package returns

import "database/sql"

// ReturnsSchema defines the tables for stored returns sets.
// Values are kept in a separate table, one row per (scenario, asset) cell,
// so sets of any shape fit the same schema.
const ReturnsSchema = `
CREATE TABLE IF NOT EXISTS returns_sets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    asset_labels TEXT NOT NULL,
    scenarios INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS returns_values (
    set_id TEXT NOT NULL REFERENCES returns_sets(id),
    scenario INTEGER NOT NULL,
    asset_idx INTEGER NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (set_id, scenario, asset_idx)
);

CREATE INDEX IF NOT EXISTS idx_returns_values_set ON returns_values(set_id);
`

// InitSchema ensures the returns tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(ReturnsSchema)
	return err
}
