package authz

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/component/abac"
	"github.com/medshare/hub/component/audit"
	"github.com/medshare/hub/lib/logging"
)

// Config holds the configuration for the authz component.
type Config struct {
	Enabled bool `koanf:"enabled"`
}

func DefaultConfig() Config {
	return Config{Enabled: true}
}

// DecisionEvaluator is the engine surface this component needs. Satisfied by
// both abac.Evaluator and abac.CachedEvaluator.
type DecisionEvaluator interface {
	EvaluateAccess(ctx context.Context, subject abac.SubjectAttributes, resource abac.ResourceAttributes, environment abac.EnvironmentAttributes, action abac.Action) (abac.Decision, error)
	RegisteredPolicies() []string
}

// AuditSink receives an entry for every decision, permit and deny alike.
type AuditSink interface {
	LogAccess(entry audit.Entry)
}

// Notifier receives supervisor alerts for break-glass permits.
type Notifier interface {
	SendEmergencyAlert(userID int64, patientID int64, reason string)
}

var _ component.Lifecycle = (*Component)(nil)

// Component is the policy decision endpoint. It assembles attribute snapshots
// from the request, consults the evaluator, dispatches audit and notification
// obligations, and returns the boundary decision shape.
type Component struct {
	evaluator DecisionEvaluator
	auditSink AuditSink
	notifier  Notifier
}

// New creates the authz component with its collaborators.
func New(evaluator DecisionEvaluator, auditSink AuditSink, notifier Notifier) *Component {
	return &Component{
		evaluator: evaluator,
		auditSink: auditSink,
		notifier:  notifier,
	}
}

func (c *Component) Start() error {
	// Nothing to do
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	// Nothing to do
	return nil
}

func (c *Component) RegisterHttpHandlers(_ *http.ServeMux, internalMux *http.ServeMux) {
	internalMux.HandleFunc("POST /authz", c.handleDecision)
	internalMux.HandleFunc("GET /authz/policies", c.handlePolicies)
}

// Request is the JSON shape of an authorization request.
type Request struct {
	Subject     SubjectInput     `json:"subject"`
	Resource    ResourceInput    `json:"resource"`
	Environment EnvironmentInput `json:"environment"`
	Action      string           `json:"action"`
	// Content optionally carries the response payload the caller intends to
	// return; redaction obligations are applied to it on a permit.
	Content map[string]any `json:"content,omitempty"`
}

type SubjectInput struct {
	UserID             int64    `json:"userId"`
	Role               string   `json:"role"`
	Department         string   `json:"department,omitempty"`
	Certifications     []string `json:"certifications,omitempty"`
	EmergencyCertified bool     `json:"emergencyCertified,omitempty"`
	Employer           string   `json:"employer,omitempty"`
	Location           string   `json:"location,omitempty"`
}

type ResourceInput struct {
	ResourceID       int64  `json:"resourceId"`
	ResourceType     string `json:"resourceType"`
	PatientID        int64  `json:"patientId"`
	SensitivityLevel string `json:"sensitivityLevel,omitempty"`
	RecordType       string `json:"recordType,omitempty"`
	CreatedBy        int64  `json:"createdBy,omitempty"`
}

type EnvironmentInput struct {
	CurrentTime   *time.Time `json:"currentTime,omitempty"`
	IPAddress     string     `json:"ipAddress,omitempty"`
	DeviceType    string     `json:"deviceType,omitempty"`
	IsEmergency   bool       `json:"isEmergency,omitempty"`
	Justification string     `json:"justification,omitempty"`
	SessionID     string     `json:"sessionId,omitempty"`
}

// Response is the JSON shape of an authorization decision.
type Response struct {
	Permitted     bool           `json:"permitted"`
	PolicyMatched string         `json:"policyMatched"`
	Obligations   []string       `json:"obligations"`
	DenyReason    *string        `json:"denyReason"`
	Content       map[string]any `json:"content,omitempty"`
}

func (c *Component) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to parse request body", http.StatusBadRequest)
		return
	}

	subject, resource, environment, action := req.attributes()

	decision, err := c.evaluator.EvaluateAccess(r.Context(), subject, resource, environment, action)
	if err != nil {
		switch {
		case abac.IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case abac.IsCollaboratorUnavailable(err):
			// A failed lookup is not a deny. Surface it so the caller can
			// fail closed or retry.
			slog.ErrorContext(r.Context(), "Collaborator unavailable during evaluation", logging.Error(err))
			http.Error(w, "authorization collaborator unavailable", http.StatusBadGateway)
		default:
			slog.ErrorContext(r.Context(), "Evaluation failed", logging.Error(err))
			http.Error(w, "authorization evaluation failed", http.StatusInternalServerError)
		}
		return
	}

	c.auditSink.LogAccess(audit.NewEntry(subject, resource, environment, action, decision))

	if decision.HasObligation(abac.ObligationSupervisorNotification) {
		c.notifier.SendEmergencyAlert(subject.UserID, resource.PatientID, environment.Justification)
	}

	resp := Response{
		Permitted:     decision.Permitted,
		PolicyMatched: decision.PolicyMatched,
		Obligations:   decision.Obligations,
	}
	if !decision.Permitted {
		resp.DenyReason = &decision.DenyReason
	}
	if decision.Permitted && req.Content != nil {
		resp.Content = abac.Redact(decision, req.Content)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write response", logging.Error(err))
	}
}

func (c *Component) handlePolicies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.evaluator.RegisteredPolicies()); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write response", logging.Error(err))
	}
}

func (r Request) attributes() (abac.SubjectAttributes, abac.ResourceAttributes, abac.EnvironmentAttributes, abac.Action) {
	subject := abac.SubjectAttributes{
		UserID:             r.Subject.UserID,
		Role:               abac.Role(r.Subject.Role),
		Department:         r.Subject.Department,
		Certifications:     r.Subject.Certifications,
		EmergencyCertified: r.Subject.EmergencyCertified,
		Employer:           r.Subject.Employer,
		Location:           r.Subject.Location,
	}
	resource := abac.ResourceAttributes{
		ResourceID:       r.Resource.ResourceID,
		ResourceType:     r.Resource.ResourceType,
		PatientID:        r.Resource.PatientID,
		SensitivityLevel: abac.SensitivityLevel(r.Resource.SensitivityLevel),
		RecordType:       r.Resource.RecordType,
		CreatedBy:        r.Resource.CreatedBy,
	}
	environment := abac.EnvironmentAttributes{
		IPAddress:     r.Environment.IPAddress,
		DeviceType:    r.Environment.DeviceType,
		IsEmergency:   r.Environment.IsEmergency,
		Justification: r.Environment.Justification,
		SessionID:     r.Environment.SessionID,
	}
	if r.Environment.CurrentTime != nil {
		environment.CurrentTime = *r.Environment.CurrentTime
	}
	if environment.SessionID == "" {
		environment.SessionID = uuid.NewString()
	}
	return subject, resource, environment, abac.Action(r.Action)
}
