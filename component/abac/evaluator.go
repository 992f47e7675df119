package abac

import (
	"context"
	"log/slog"
	"time"

	"github.com/medshare/hub/lib/logging"
)

// Evaluator is the central policy decision engine. It filters the catalog to
// applicable policies, evaluates them in ascending priority order, returns the
// first permit, and falls back to a default deny when nothing applies.
//
// The evaluator is stateless and reentrant: the catalog is built once at
// startup and only read afterwards, so concurrent evaluation needs no locking.
type Evaluator struct {
	catalog Catalog
	metrics *Metrics
}

// NewEvaluator creates an evaluator over the given catalog. Metrics may be
// nil, in which case no collectors are updated.
func NewEvaluator(catalog Catalog, metrics *Metrics) *Evaluator {
	slog.Info("Initialized policy evaluator",
		slog.Int("policies", len(catalog.Policies())),
		slog.Any("catalog", catalog.Names()))
	return &Evaluator{catalog: catalog, metrics: metrics}
}

// EvaluateAccess decides whether the subject may perform the action on the
// resource in the given environment.
//
// A deny is a valid outcome, not an error. An error is returned only when the
// request is malformed (ValidationError) or a collaborator lookup failed
// (CollaboratorError).
func (e *Evaluator) EvaluateAccess(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, environment EnvironmentAttributes, action Action) (Decision, error) {
	if err := validateRequest(subject, resource, action); err != nil {
		return Decision{}, err
	}

	start := time.Now()

	slog.DebugContext(ctx, "Evaluating access",
		logging.UserID(subject.UserID),
		logging.ResourceID(resource.ResourceID),
		logging.Action(string(action)))

	var applicable []Policy
	for _, policy := range e.catalog.Policies() {
		if policy.IsApplicable(subject, resource, environment, action) {
			applicable = append(applicable, policy)
		}
	}

	if len(applicable) == 0 {
		slog.WarnContext(ctx, "No applicable policies found, denying by default",
			logging.UserID(subject.UserID), logging.Action(string(action)))
		decision := Deny(PolicyNameDefaultDeny, "No applicable policy found")
		e.metrics.observeDecision(decision, time.Since(start).Seconds())
		return decision, nil
	}

	for _, policy := range applicable {
		decision, err := policy.Evaluate(ctx, subject, resource, environment, action)
		if err != nil {
			e.metrics.observeCollaboratorError(err)
			return Decision{}, err
		}

		if decision.Permitted {
			slog.InfoContext(ctx, "Access permitted",
				logging.PolicyName(policy.Name()),
				logging.UserID(subject.UserID),
				slog.Duration("duration", time.Since(start)))
			e.metrics.observeDecision(decision, time.Since(start).Seconds())
			return decision, nil
		}

		// The per-policy reason is not surfaced to the caller on the
		// aggregate deny path, but it is preserved in the logs.
		slog.DebugContext(ctx, "Policy denied",
			logging.PolicyName(policy.Name()),
			slog.String("reason", decision.DenyReason))
	}

	slog.InfoContext(ctx, "Access denied, no policy granted access",
		logging.UserID(subject.UserID),
		slog.Int("policies_evaluated", len(applicable)),
		slog.Duration("duration", time.Since(start)))

	decision := Deny(PolicyNameAllPoliciesDenied, "No policy granted access to this resource")
	e.metrics.observeDecision(decision, time.Since(start).Seconds())
	return decision, nil
}

// RegisteredPolicies lists the catalog contents in evaluation order, for the
// registry endpoint.
func (e *Evaluator) RegisteredPolicies() []string {
	return e.catalog.Names()
}

func validateRequest(subject SubjectAttributes, resource ResourceAttributes, action Action) error {
	if action == "" {
		return &ValidationError{Field: "action", Reason: "must not be empty"}
	}
	if !action.Valid() {
		return &ValidationError{Field: "action", Reason: "unknown action"}
	}
	if subject.UserID <= 0 {
		return &ValidationError{Field: "subject.userId", Reason: "must be a positive identifier"}
	}
	if resource.ResourceType == "" {
		return &ValidationError{Field: "resource.resourceType", Reason: "must not be empty"}
	}
	return nil
}
