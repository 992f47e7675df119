package relationship

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/component/abac"
	"github.com/medshare/hub/lib/logging"
)

// Config holds the configuration for the relationship component.
type Config struct {
	// DatabasePath is the SQLite database file holding treatment relationships.
	DatabasePath string `koanf:"databasepath"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "data/relationships.db",
	}
}

// DecisionInvalidator drops cached authorization decisions. Relationship
// mutations must invalidate before the mutation is considered complete, so a
// stale permit is never served afterwards.
type DecisionInvalidator interface {
	InvalidateAll()
}

var _ component.Lifecycle = (*Component)(nil)
var _ abac.RelationshipLookup = (*Component)(nil)

// Component answers treatment-relationship lookups for the policy engine and
// manages the relationship records themselves.
type Component struct {
	store       *Store
	invalidator DecisionInvalidator
}

// New creates the relationship component backed by a SQLite store.
func New(config Config) (*Component, error) {
	store, err := NewStore(config.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open relationship store")
	}
	return &Component{store: store}, nil
}

// SetInvalidator wires the decision cache invalidation hook. Called by the
// composition root after the cache exists.
func (c *Component) SetInvalidator(invalidator DecisionInvalidator) {
	c.invalidator = invalidator
}

func (c *Component) Start() error {
	// Nothing to do
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	return c.store.Close()
}

// HasActiveRelationship reports whether the provider currently has an active
// treatment relationship with the patient.
func (c *Component) HasActiveRelationship(ctx context.Context, providerID int64, patientID int64) (bool, error) {
	return c.store.HasActiveRelationship(ctx, providerID, patientID)
}

// Start records a new active treatment relationship and invalidates cached
// decisions before returning.
func (c *Component) StartRelationship(ctx context.Context, providerID int64, patientID int64, relationshipType string) error {
	if err := c.store.Insert(ctx, providerID, patientID, relationshipType); err != nil {
		return errors.Wrap(err, "failed to start treatment relationship")
	}
	c.invalidate()
	slog.InfoContext(ctx, "Treatment relationship started",
		logging.UserID(providerID), logging.PatientID(patientID))
	return nil
}

// EndRelationship marks the relationship ended and invalidates cached
// decisions before returning.
func (c *Component) EndRelationship(ctx context.Context, providerID int64, patientID int64) error {
	if err := c.store.End(ctx, providerID, patientID); err != nil {
		return errors.Wrap(err, "failed to end treatment relationship")
	}
	c.invalidate()
	slog.InfoContext(ctx, "Treatment relationship ended",
		logging.UserID(providerID), logging.PatientID(patientID))
	return nil
}

func (c *Component) invalidate() {
	if c.invalidator != nil {
		c.invalidator.InvalidateAll()
	}
}

func (c *Component) RegisterHttpHandlers(_ *http.ServeMux, internalMux *http.ServeMux) {
	internalMux.HandleFunc("POST /relationships", c.handleStart)
	internalMux.HandleFunc("POST /relationships/end", c.handleEnd)
}

type relationshipRequest struct {
	ProviderID       int64  `json:"providerId"`
	PatientID        int64  `json:"patientId"`
	RelationshipType string `json:"relationshipType"`
}

func (c *Component) handleStart(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to parse request body", http.StatusBadRequest)
		return
	}
	if req.ProviderID <= 0 || req.PatientID <= 0 {
		http.Error(w, "providerId and patientId are required", http.StatusBadRequest)
		return
	}
	if req.RelationshipType == "" {
		req.RelationshipType = "PRIMARY_CARE"
	}
	if err := c.StartRelationship(r.Context(), req.ProviderID, req.PatientID, req.RelationshipType); err != nil {
		slog.ErrorContext(r.Context(), "Failed to start relationship", logging.Error(err))
		http.Error(w, "failed to start relationship", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *Component) handleEnd(w http.ResponseWriter, r *http.Request) {
	providerID, err1 := strconv.ParseInt(r.URL.Query().Get("provider"), 10, 64)
	patientID, err2 := strconv.ParseInt(r.URL.Query().Get("patient"), 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "provider and patient query parameters are required", http.StatusBadRequest)
		return
	}
	if err := c.EndRelationship(r.Context(), providerID, patientID); err != nil {
		slog.ErrorContext(r.Context(), "Failed to end relationship", logging.Error(err))
		http.Error(w, "failed to end relationship", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
