package abac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/medshare/hub/lib/logging"
)

// psychiatryDepartment is the department affiliation required to read
// psychiatric records under the treating physician policy.
const psychiatryDepartment = "psychiatry"

// TreatingPhysicianPolicy grants doctors read access to records of patients
// they have an active treatment relationship with, during business hours or
// a declared emergency. Psychiatric records additionally require a psychiatry
// department affiliation.
type TreatingPhysicianPolicy struct {
	relationships RelationshipLookup
}

// NewTreatingPhysicianPolicy constructs the policy with its relationship
// collaborator.
func NewTreatingPhysicianPolicy(relationships RelationshipLookup) *TreatingPhysicianPolicy {
	return &TreatingPhysicianPolicy{relationships: relationships}
}

func (p *TreatingPhysicianPolicy) Name() string {
	return "TreatingPhysicianPolicy"
}

func (p *TreatingPhysicianPolicy) Priority() int {
	return 3
}

func (p *TreatingPhysicianPolicy) IsApplicable(subject SubjectAttributes, resource ResourceAttributes, _ EnvironmentAttributes, action Action) bool {
	return subject.HasRole(RoleDoctor) &&
		action.Is(ActionRead) &&
		resource.IsMedicalRecord()
}

func (p *TreatingPhysicianPolicy) Evaluate(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, environment EnvironmentAttributes, _ Action) (Decision, error) {
	hasRelationship, err := p.relationships.HasActiveRelationship(ctx, subject.UserID, resource.PatientID)
	if err != nil {
		return Decision{}, &CollaboratorError{Collaborator: "relationship", Err: err}
	}

	if !hasRelationship {
		return Deny(p.Name(), "No active treatment relationship with patient"), nil
	}

	if !environment.IsBusinessHours() && !environment.IsEmergency {
		return Deny(p.Name(), "Access outside business hours requires emergency override"), nil
	}

	if resource.HasSensitivityLevel(SensitivityPsychiatric) &&
		!strings.EqualFold(subject.Department, psychiatryDepartment) {
		return Deny(p.Name(), "Psychiatric records require psychiatry department affiliation"), nil
	}

	slog.DebugContext(ctx, "Treating physician access granted",
		logging.UserID(subject.UserID), logging.PatientID(resource.PatientID))

	return Permit(p.Name()), nil
}
