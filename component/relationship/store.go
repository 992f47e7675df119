package relationship

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS treatment_relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider_id INTEGER NOT NULL,
    patient_id INTEGER NOT NULL,
    relationship_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_relationships_provider_patient
    ON treatment_relationships(provider_id, patient_id);
`

// Store persists treatment relationships in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at the given path and initializes the schema.
// WAL mode keeps concurrent lookups from blocking on mutations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// HasActiveRelationship reports whether an ACTIVE relationship exists between
// provider and patient whose window contains the current time.
func (s *Store) HasActiveRelationship(ctx context.Context, providerID int64, patientID int64) (bool, error) {
	const query = `
SELECT COUNT(1) FROM treatment_relationships
WHERE provider_id = ? AND patient_id = ? AND status = 'ACTIVE'
  AND start_date <= ? AND (end_date IS NULL OR end_date > ?)`

	now := time.Now().UTC()
	var count int
	if err := s.db.QueryRowContext(ctx, query, providerID, patientID, now, now).Scan(&count); err != nil {
		return false, errors.Wrap(err, "failed to query treatment relationships")
	}
	return count > 0, nil
}

// Insert records a new active relationship starting now.
func (s *Store) Insert(ctx context.Context, providerID int64, patientID int64, relationshipType string) error {
	const query = `
INSERT INTO treatment_relationships (provider_id, patient_id, relationship_type, status, start_date)
VALUES (?, ?, ?, 'ACTIVE', ?)`

	_, err := s.db.ExecContext(ctx, query, providerID, patientID, relationshipType, time.Now().UTC())
	return errors.Wrap(err, "failed to insert treatment relationship")
}

// End marks every active relationship between provider and patient as ended.
func (s *Store) End(ctx context.Context, providerID int64, patientID int64) error {
	const query = `
UPDATE treatment_relationships
SET status = 'ENDED', end_date = ?
WHERE provider_id = ? AND patient_id = ? AND status = 'ACTIVE'`

	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), providerID, patientID)
	return errors.Wrap(err, "failed to end treatment relationship")
}
