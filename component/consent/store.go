package consent

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/medshare/hub/component/abac"
)

const schema = `
CREATE TABLE IF NOT EXISTS consents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id INTEGER NOT NULL,
    granted_to_user_id INTEGER NOT NULL,
    purpose TEXT NOT NULL,
    data_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'GRANTED',
    granted_at TIMESTAMP NOT NULL,
    valid_until TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_consents_patient_user
    ON consents(patient_id, granted_to_user_id);
`

// Grant describes a consent to be recorded.
type Grant struct {
	PatientID       int64
	GrantedToUserID int64
	Purpose         abac.ConsentPurpose
	DataType        abac.ConsentDataType
	// ValidUntil bounds the consent's validity; nil means open-ended.
	ValidUntil *time.Time
}

// Record is a stored consent.
type Record struct {
	ID              int64                `json:"id"`
	PatientID       int64                `json:"patientId"`
	GrantedToUserID int64                `json:"grantedToUserId"`
	Purpose         abac.ConsentPurpose  `json:"purpose"`
	DataType        abac.ConsentDataType `json:"dataType"`
	Status          string               `json:"status"`
	GrantedAt       time.Time            `json:"grantedAt"`
	ValidUntil      *time.Time           `json:"validUntil,omitempty"`
}

// Store persists consents in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at the given path and initializes the schema.
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

// HasValidConsent reports whether a GRANTED, unexpired consent exists for the
// tuple. A consent recorded for data type ALL matches any requested data type.
func (s *Store) HasValidConsent(ctx context.Context, patientID int64, userID int64, purpose abac.ConsentPurpose, dataType abac.ConsentDataType) (bool, error) {
	const query = `
SELECT COUNT(1) FROM consents
WHERE patient_id = ? AND granted_to_user_id = ? AND purpose = ?
  AND (data_type = ? OR data_type = ?)
  AND status = 'GRANTED'
  AND (valid_until IS NULL OR valid_until > ?)`

	var count int
	err := s.db.QueryRowContext(ctx, query,
		patientID, userID, string(purpose),
		string(dataType), string(abac.DataTypeAll),
		time.Now().UTC(),
	).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "failed to query consents")
	}
	return count > 0, nil
}

// Insert records a new GRANTED consent and returns its id.
func (s *Store) Insert(ctx context.Context, grant Grant) (int64, error) {
	const query = `
INSERT INTO consents (patient_id, granted_to_user_id, purpose, data_type, status, granted_at, valid_until)
VALUES (?, ?, ?, ?, 'GRANTED', ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		grant.PatientID, grant.GrantedToUserID,
		string(grant.Purpose), string(grant.DataType),
		time.Now().UTC(), grant.ValidUntil,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert consent")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read consent id")
	}
	return id, nil
}

// Revoke marks the consent revoked.
func (s *Store) Revoke(ctx context.Context, consentID int64) error {
	const query = `UPDATE consents SET status = 'REVOKED' WHERE id = ? AND status = 'GRANTED'`
	_, err := s.db.ExecContext(ctx, query, consentID)
	return errors.Wrap(err, "failed to revoke consent")
}

// ExpireOverdue marks GRANTED consents whose validity window has passed as
// EXPIRED and returns how many were affected.
func (s *Store) ExpireOverdue(ctx context.Context) (int64, error) {
	const query = `
UPDATE consents SET status = 'EXPIRED'
WHERE status = 'GRANTED' AND valid_until IS NOT NULL AND valid_until <= ?`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire consents")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count expired consents")
	}
	return affected, nil
}

// ListByPatient returns every consent for a patient, newest first.
func (s *Store) ListByPatient(ctx context.Context, patientID int64) ([]Record, error) {
	const query = `
SELECT id, patient_id, granted_to_user_id, purpose, data_type, status, granted_at, valid_until
FROM consents WHERE patient_id = ? ORDER BY granted_at DESC`

	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list consents")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var purpose, dataType string
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.GrantedToUserID, &purpose, &dataType, &rec.Status, &rec.GrantedAt, &rec.ValidUntil); err != nil {
			return nil, errors.Wrap(err, "failed to scan consent row")
		}
		rec.Purpose = abac.ConsentPurpose(purpose)
		rec.DataType = abac.ConsentDataType(dataType)
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "failed to iterate consent rows")
}
