package audit

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_logs (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    patient_id INTEGER NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    decision TEXT NOT NULL,
    policy_matched TEXT NOT NULL,
    deny_reason TEXT,
    is_emergency BOOLEAN NOT NULL DEFAULT 0,
    justification TEXT,
    ip_address TEXT,
    session_id TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_logs_user ON access_logs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_access_logs_patient ON access_logs(patient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_access_logs_emergency ON access_logs(is_emergency, created_at);
`

// Store persists access logs in SQLite.
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

// Insert persists one entry.
func (s *Store) Insert(ctx context.Context, entry Entry) error {
	const query = `
INSERT INTO access_logs (id, user_id, patient_id, resource_type, resource_id, action,
    decision, policy_matched, deny_reason, is_emergency, justification, ip_address, session_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.PatientID, entry.ResourceType, entry.ResourceID, entry.Action,
		entry.Decision, entry.PolicyMatched, entry.DenyReason, entry.IsEmergency,
		entry.Justification, entry.IPAddress, entry.SessionID, entry.CreatedAt,
	)
	return errors.Wrap(err, "failed to insert access log")
}

// RecentByUser returns the newest entries for a user.
func (s *Store) RecentByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	const query = selectColumns + ` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
	return s.queryEntries(ctx, query, userID, limit)
}

// RecentByPatient returns the newest entries for a patient.
func (s *Store) RecentByPatient(ctx context.Context, patientID int64, limit int) ([]Entry, error) {
	const query = selectColumns + ` WHERE patient_id = ? ORDER BY created_at DESC LIMIT ?`
	return s.queryEntries(ctx, query, patientID, limit)
}

// EmergencyAccesses returns break-glass entries since the given time.
func (s *Store) EmergencyAccesses(ctx context.Context, since time.Time) ([]Entry, error) {
	const query = selectColumns + ` WHERE is_emergency = 1 AND created_at >= ? ORDER BY created_at DESC`
	return s.queryEntries(ctx, query, since)
}

// DeleteOlderThan removes entries created before the cutoff and returns how
// many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete access logs")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted access logs")
	}
	return affected, nil
}

const selectColumns = `
SELECT id, user_id, patient_id, resource_type, resource_id, action,
    decision, policy_matched, deny_reason, is_emergency, justification, ip_address, session_id, created_at
FROM access_logs`

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query access logs")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var denyReason, justification, ipAddress, sessionID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.PatientID, &e.ResourceType, &e.ResourceID, &e.Action,
			&e.Decision, &e.PolicyMatched, &denyReason, &e.IsEmergency,
			&justification, &ipAddress, &sessionID, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan access log row")
		}
		e.DenyReason = denyReason.String
		e.Justification = justification.String
		e.IPAddress = ipAddress.String
		e.SessionID = sessionID.String
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to iterate access log rows")
}
