package consent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/component/abac"
	"github.com/medshare/hub/lib/logging"
)

// Config holds the configuration for the consent component.
type Config struct {
	// DatabasePath is the SQLite database file holding consent records.
	DatabasePath string `koanf:"databasepath"`
	// ExpirySchedule is a cron expression for the expired-consent sweep.
	// Empty disables the sweep.
	ExpirySchedule string `koanf:"expiryschedule"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:   "data/consents.db",
		ExpirySchedule: "*/15 * * * *",
	}
}

// DecisionInvalidator drops cached authorization decisions. Consent mutations
// must invalidate before the mutation is considered complete.
type DecisionInvalidator interface {
	InvalidateAll()
}

var _ component.Lifecycle = (*Component)(nil)
var _ abac.ConsentLookup = (*Component)(nil)

// Component answers consent lookups for the policy engine and manages the
// consent records themselves: grants, revocations, and scheduled expiry.
type Component struct {
	store       *Store
	invalidator DecisionInvalidator
	cron        *cron.Cron
	schedule    string
}

// New creates the consent component backed by a SQLite store.
func New(config Config) (*Component, error) {
	store, err := NewStore(config.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open consent store")
	}
	return &Component{
		store:    store,
		cron:     cron.New(),
		schedule: config.ExpirySchedule,
	}, nil
}

// SetInvalidator wires the decision cache invalidation hook. Called by the
// composition root after the cache exists.
func (c *Component) SetInvalidator(invalidator DecisionInvalidator) {
	c.invalidator = invalidator
}

func (c *Component) Start() error {
	if c.schedule == "" {
		slog.Info("Consent expiry sweep not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return errors.Wrapf(err, "invalid consent expiry schedule %q", c.schedule)
	}
	if _, err := c.cron.AddFunc(c.schedule, c.sweepExpired); err != nil {
		return errors.Wrap(err, "failed to schedule consent expiry sweep")
	}
	c.cron.Start()
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	stopped := c.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.store.Close()
}

// HasValidConsent reports whether the patient granted the user a currently
// valid consent for the purpose and data type. A consent for DataTypeAll
// covers every data type.
func (c *Component) HasValidConsent(ctx context.Context, patientID int64, userID int64, purpose abac.ConsentPurpose, dataType abac.ConsentDataType) (bool, error) {
	return c.store.HasValidConsent(ctx, patientID, userID, purpose, dataType)
}

// Grant records a consent and invalidates cached decisions before returning.
func (c *Component) Grant(ctx context.Context, grant Grant) (int64, error) {
	id, err := c.store.Insert(ctx, grant)
	if err != nil {
		return 0, errors.Wrap(err, "failed to grant consent")
	}
	c.invalidate()
	slog.InfoContext(ctx, "Consent granted",
		logging.PatientID(grant.PatientID),
		logging.UserID(grant.GrantedToUserID),
		slog.String("purpose", string(grant.Purpose)))
	return id, nil
}

// Revoke marks a consent revoked and invalidates cached decisions before
// returning.
func (c *Component) Revoke(ctx context.Context, consentID int64) error {
	if err := c.store.Revoke(ctx, consentID); err != nil {
		return errors.Wrap(err, "failed to revoke consent")
	}
	c.invalidate()
	slog.InfoContext(ctx, "Consent revoked", slog.Int64("consent_id", consentID))
	return nil
}

// ListByPatient returns every consent record for a patient.
func (c *Component) ListByPatient(ctx context.Context, patientID int64) ([]Record, error) {
	return c.store.ListByPatient(ctx, patientID)
}

func (c *Component) sweepExpired() {
	ctx := context.Background()
	expired, err := c.store.ExpireOverdue(ctx)
	if err != nil {
		slog.Error("Consent expiry sweep failed", logging.Error(err))
		return
	}
	if expired > 0 {
		c.invalidate()
		slog.Info("Expired consents swept", slog.Int64("count", expired))
	}
}

func (c *Component) invalidate() {
	if c.invalidator != nil {
		c.invalidator.InvalidateAll()
	}
}

func (c *Component) RegisterHttpHandlers(_ *http.ServeMux, internalMux *http.ServeMux) {
	internalMux.HandleFunc("POST /consents", c.handleGrant)
	internalMux.HandleFunc("POST /consents/{id}/revoke", c.handleRevoke)
	internalMux.HandleFunc("GET /consents", c.handleList)
}

type grantRequest struct {
	PatientID       int64  `json:"patientId"`
	GrantedToUserID int64  `json:"grantedToUserId"`
	Purpose         string `json:"purpose"`
	DataType        string `json:"dataType"`
	ValidUntil      string `json:"validUntil"`
}

func (c *Component) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to parse request body", http.StatusBadRequest)
		return
	}
	if req.PatientID <= 0 || req.GrantedToUserID <= 0 {
		http.Error(w, "patientId and grantedToUserId are required", http.StatusBadRequest)
		return
	}
	// Enum typos are rejected here: a consent stored with an unknown purpose
	// or data type would never match a lookup.
	purpose := abac.ConsentPurpose(strings.ToUpper(req.Purpose))
	if !purpose.Valid() {
		http.Error(w, "unknown consent purpose", http.StatusBadRequest)
		return
	}
	dataType := abac.ConsentDataType(strings.ToUpper(req.DataType))
	if !dataType.Valid() {
		http.Error(w, "unknown consent data type", http.StatusBadRequest)
		return
	}
	grant := Grant{
		PatientID:       req.PatientID,
		GrantedToUserID: req.GrantedToUserID,
		Purpose:         purpose,
		DataType:        dataType,
	}
	if req.ValidUntil != "" {
		validUntil, err := time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			http.Error(w, "validUntil must be RFC 3339", http.StatusBadRequest)
			return
		}
		grant.ValidUntil = &validUntil
	}
	id, err := c.Grant(r.Context(), grant)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to grant consent", logging.Error(err))
		http.Error(w, "failed to grant consent", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int64{"consentId": id})
}

func (c *Component) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid consent id", http.StatusBadRequest)
		return
	}
	if err := c.Revoke(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "Failed to revoke consent", logging.Error(err))
		http.Error(w, "failed to revoke consent", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.ParseInt(r.URL.Query().Get("patient"), 10, 64)
	if err != nil {
		http.Error(w, "patient query parameter is required", http.StatusBadRequest)
		return
	}
	records, err := c.ListByPatient(r.Context(), patientID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list consents", logging.Error(err))
		http.Error(w, "failed to list consents", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
