package abac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/medshare/hub/lib/logging"
)

// minJustificationLength is the minimum number of characters (after trimming)
// a break-glass justification must contain.
const minJustificationLength = 10

// EmergencyOverridePolicy implements break-glass access: an
// emergency-certified user may access patient data during a declared emergency
// regardless of other restrictions. It trades strict preconditions
// (certification, emergency flag, detailed justification) for an unconditional
// grant, and attaches heightened audit obligations to every permit.
type EmergencyOverridePolicy struct{}

func (p EmergencyOverridePolicy) Name() string {
	return "EmergencyOverridePolicy"
}

func (p EmergencyOverridePolicy) Priority() int {
	return 1
}

func (p EmergencyOverridePolicy) IsApplicable(_ SubjectAttributes, _ ResourceAttributes, environment EnvironmentAttributes, _ Action) bool {
	return environment.IsEmergency
}

func (p EmergencyOverridePolicy) Evaluate(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, environment EnvironmentAttributes, _ Action) (Decision, error) {
	slog.WarnContext(ctx, "Evaluating emergency override, break-glass access requested",
		logging.UserID(subject.UserID), logging.PatientID(resource.PatientID))

	if !subject.EmergencyCertified {
		return Deny(p.Name(), "User is not emergency-certified for break-glass access"), nil
	}

	if !environment.IsEmergency {
		return Deny(p.Name(), "Request not flagged as emergency"), nil
	}

	justification := strings.TrimSpace(environment.Justification)
	if justification == "" {
		return Deny(p.Name(), "Emergency access requires justification"), nil
	}

	if len(justification) < minJustificationLength {
		return Deny(p.Name(), "Emergency justification must be detailed (minimum 10 characters)"), nil
	}

	slog.WarnContext(ctx, "Emergency access granted",
		logging.UserID(subject.UserID),
		logging.PatientID(resource.PatientID),
		slog.String("justification", environment.Justification))

	return PermitWithObligations(p.Name(), []string{
		ObligationEnhancedAudit,
		ObligationSupervisorNotification,
		ObligationRequireJustification,
		ObligationTemporaryAccess,
	}), nil
}
