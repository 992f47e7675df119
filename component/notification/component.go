package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/lib/logging"
)

// Config holds the configuration for the notification component.
type Config struct {
	// OutboxSize caps how many recent alerts are kept for review.
	OutboxSize int `koanf:"outboxsize"`
}

func DefaultConfig() Config {
	return Config{OutboxSize: 500}
}

// Alert is a supervisor notification triggered by a break-glass permit.
type Alert struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	PatientID int64     `json:"patientId"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

var _ component.Lifecycle = (*Component)(nil)

// Component dispatches emergency supervisor alerts. Dispatch is
// fire-and-forget: alerts are logged and kept in a bounded in-memory outbox
// for compliance review; delivery mechanics (mail, pager) live outside this
// system.
type Component struct {
	mu         sync.Mutex
	outbox     []Alert
	outboxSize int
}

// New creates the notification component.
func New(config Config) *Component {
	size := config.OutboxSize
	if size <= 0 {
		size = DefaultConfig().OutboxSize
	}
	return &Component{outboxSize: size}
}

func (c *Component) Start() error {
	// Nothing to do
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	// Nothing to do
	return nil
}

// SendEmergencyAlert records and logs a supervisor alert. It never blocks the
// authorization response path and never fails the caller.
func (c *Component) SendEmergencyAlert(userID int64, patientID int64, reason string) {
	alert := Alert{
		ID:        uuid.NewString(),
		UserID:    userID,
		PatientID: patientID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.outbox = append(c.outbox, alert)
	if len(c.outbox) > c.outboxSize {
		c.outbox = c.outbox[len(c.outbox)-c.outboxSize:]
	}
	c.mu.Unlock()

	slog.Warn("Supervisor alert for emergency access",
		logging.UserID(userID),
		logging.PatientID(patientID),
		slog.String("reason", reason))
}

// Alerts returns the retained alerts, newest last.
func (c *Component) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	alerts := make([]Alert, len(c.outbox))
	copy(alerts, c.outbox)
	return alerts
}

func (c *Component) RegisterHttpHandlers(_ *http.ServeMux, internalMux *http.ServeMux) {
	internalMux.HandleFunc("GET /notifications/emergency", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Alerts()); err != nil {
			slog.ErrorContext(r.Context(), "Failed to write response", logging.Error(err))
		}
	})
}
