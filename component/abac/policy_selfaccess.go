package abac

import (
	"context"
	"log/slog"

	"github.com/medshare/hub/lib/logging"
)

// PatientSelfAccessPolicy lets a patient read their own medical records at any
// time, regardless of sensitivity. The policy verifies that the authenticated
// subject is actually the patient the resource belongs to; it does not trust
// the calling layer to have bound the two beforehand.
type PatientSelfAccessPolicy struct{}

func (p PatientSelfAccessPolicy) Name() string {
	return "PatientSelfAccessPolicy"
}

func (p PatientSelfAccessPolicy) Priority() int {
	return 2
}

func (p PatientSelfAccessPolicy) IsApplicable(subject SubjectAttributes, resource ResourceAttributes, _ EnvironmentAttributes, action Action) bool {
	return subject.HasRole(RolePatient) &&
		action.Is(ActionRead) &&
		resource.IsMedicalRecord()
}

func (p PatientSelfAccessPolicy) Evaluate(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, _ EnvironmentAttributes, _ Action) (Decision, error) {
	if !subject.HasRole(RolePatient) {
		return Deny(p.Name(), "Not a patient"), nil
	}

	if subject.UserID != resource.PatientID {
		return Deny(p.Name(), "Patients may only access their own medical records"), nil
	}

	slog.DebugContext(ctx, "Patient accessing their own records",
		logging.UserID(subject.UserID), logging.PatientID(resource.PatientID))

	return Permit(p.Name()), nil
}
