package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/component/abac"
	"github.com/medshare/hub/lib/logging"
)

// Config holds the configuration for the audit component.
type Config struct {
	// DatabasePath is the SQLite database file holding access logs.
	DatabasePath string `koanf:"databasepath"`
	// QueueSize is the capacity of the in-memory entry queue.
	QueueSize int `koanf:"queuesize"`
	// RetentionDays is how long entries are kept before the prune job removes
	// them. Zero disables pruning.
	RetentionDays int `koanf:"retentiondays"`
	// PruneSchedule is a cron expression for the retention prune job.
	PruneSchedule string `koanf:"pruneschedule"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:  "data/audit.db",
		QueueSize:     256,
		RetentionDays: 2555, // 7 years
		PruneSchedule: "0 3 * * *",
	}
}

// Entry is a single access-log record. Every authorization attempt is logged,
// permit and deny alike.
type Entry struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"userId"`
	PatientID     int64     `json:"patientId"`
	ResourceType  string    `json:"resourceType"`
	ResourceID    int64     `json:"resourceId"`
	Action        string    `json:"action"`
	Decision      string    `json:"decision"`
	PolicyMatched string    `json:"policyMatched"`
	DenyReason    string    `json:"denyReason,omitempty"`
	IsEmergency   bool      `json:"isEmergency"`
	Justification string    `json:"justification,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	SessionID     string    `json:"sessionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewEntry builds an audit entry from a decision and its request context.
func NewEntry(subject abac.SubjectAttributes, resource abac.ResourceAttributes, environment abac.EnvironmentAttributes, action abac.Action, decision abac.Decision) Entry {
	outcome := "DENY"
	if decision.Permitted {
		outcome = "PERMIT"
	}
	return Entry{
		ID:            uuid.NewString(),
		UserID:        subject.UserID,
		PatientID:     resource.PatientID,
		ResourceType:  resource.ResourceType,
		ResourceID:    resource.ResourceID,
		Action:        string(action),
		Decision:      outcome,
		PolicyMatched: decision.PolicyMatched,
		DenyReason:    decision.DenyReason,
		IsEmergency:   environment.IsEmergency,
		Justification: environment.Justification,
		IPAddress:     environment.IPAddress,
		SessionID:     environment.SessionID,
		CreatedAt:     time.Now().UTC(),
	}
}

var _ component.Lifecycle = (*Component)(nil)

// Component is the asynchronous audit sink. LogAccess enqueues entries on a
// buffered channel drained by a background worker, so the authorization
// response path never waits on persistence. Worker failures are logged, never
// propagated to callers.
type Component struct {
	store     *Store
	queue     chan Entry
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	cron      *cron.Cron
	schedule  string
	retention time.Duration
}

// New creates the audit component backed by a SQLite store.
func New(config Config) (*Component, error) {
	store, err := NewStore(config.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audit store")
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().QueueSize
	}
	return &Component{
		store:     store,
		queue:     make(chan Entry, queueSize),
		cron:      cron.New(),
		schedule:  config.PruneSchedule,
		retention: time.Duration(config.RetentionDays) * 24 * time.Hour,
	}, nil
}

func (c *Component) Start() error {
	c.wg.Add(1)
	go c.drain()

	if c.schedule != "" && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.schedule, c.prune); err != nil {
			return errors.Wrap(err, "failed to schedule audit retention prune")
		}
		c.cron.Start()
	}
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.cron.Stop()

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.store.Close()
}

// LogAccess enqueues an entry without blocking. When the queue is full the
// entry is dropped and the drop is logged; an audit backlog must never turn
// into an authorization failure. Entries arriving after Stop are dropped the
// same way, so a request still in flight during shutdown cannot hit the
// closed queue.
func (c *Component) LogAccess(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		slog.Warn("Audit component stopped, dropping entry",
			logging.UserID(entry.UserID),
			logging.PatientID(entry.PatientID),
			slog.String("decision", entry.Decision))
		return
	}

	select {
	case c.queue <- entry:
	default:
		slog.Error("Audit queue full, dropping entry",
			logging.UserID(entry.UserID),
			logging.PatientID(entry.PatientID),
			slog.String("decision", entry.Decision))
	}
}

func (c *Component) drain() {
	defer c.wg.Done()
	for entry := range c.queue {
		if err := c.store.Insert(context.Background(), entry); err != nil {
			slog.Error("Failed to persist audit entry", logging.Error(err))
			continue
		}
		if entry.IsEmergency {
			slog.Warn("Emergency access logged",
				logging.UserID(entry.UserID),
				logging.PatientID(entry.PatientID),
				slog.String("justification", entry.Justification))
		}
	}
}

func (c *Component) prune() {
	cutoff := time.Now().UTC().Add(-c.retention)
	removed, err := c.store.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		slog.Error("Audit retention prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("Audit entries pruned", slog.Int64("count", removed))
	}
}

// RecentByUser returns the newest entries for a user.
func (c *Component) RecentByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	return c.store.RecentByUser(ctx, userID, limit)
}

// RecentByPatient returns the newest entries for a patient.
func (c *Component) RecentByPatient(ctx context.Context, patientID int64, limit int) ([]Entry, error) {
	return c.store.RecentByPatient(ctx, patientID, limit)
}

// EmergencyAccesses returns break-glass entries since the given time, for
// compliance review.
func (c *Component) EmergencyAccesses(ctx context.Context, since time.Time) ([]Entry, error) {
	return c.store.EmergencyAccesses(ctx, since)
}

func (c *Component) RegisterHttpHandlers(_ *http.ServeMux, internalMux *http.ServeMux) {
	internalMux.HandleFunc("GET /audit/users/{id}", c.handleUserLogs)
	internalMux.HandleFunc("GET /audit/patients/{id}", c.handlePatientLogs)
	internalMux.HandleFunc("GET /audit/emergency", c.handleEmergencyLogs)
}

func (c *Component) handleUserLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	entries, err := c.RecentByUser(r.Context(), id, queryLimit(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to query audit log", logging.Error(err))
		http.Error(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (c *Component) handlePatientLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	entries, err := c.RecentByPatient(r.Context(), id, queryLimit(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to query audit log", logging.Error(err))
		http.Error(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (c *Component) handleEmergencyLogs(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	entries, err := c.EmergencyAccesses(r.Context(), since)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to query emergency accesses", logging.Error(err))
		http.Error(w, "failed to query emergency accesses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", logging.Error(err))
	}
}
