package abac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/medshare/hub/lib/logging"
)

// InsuranceClaimsPolicy grants insurance adjusters read access to billing and
// diagnosis records when the patient consented to insurance data sharing.
// Highly sensitive records are never released, and every permit obligates the
// caller to redact clinical notes and sensitive diagnoses from the response.
type InsuranceClaimsPolicy struct {
	consents ConsentLookup
}

// NewInsuranceClaimsPolicy constructs the policy with its consent
// collaborator.
func NewInsuranceClaimsPolicy(consents ConsentLookup) *InsuranceClaimsPolicy {
	return &InsuranceClaimsPolicy{consents: consents}
}

func (p *InsuranceClaimsPolicy) Name() string {
	return "InsuranceClaimsPolicy"
}

func (p *InsuranceClaimsPolicy) Priority() int {
	return 4
}

func (p *InsuranceClaimsPolicy) IsApplicable(subject SubjectAttributes, resource ResourceAttributes, _ EnvironmentAttributes, action Action) bool {
	return subject.HasRole(RoleInsuranceAdjuster) &&
		action.Is(ActionRead) &&
		resource.IsMedicalRecord()
}

func (p *InsuranceClaimsPolicy) Evaluate(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, _ EnvironmentAttributes, _ Action) (Decision, error) {
	hasConsent, err := p.consents.HasValidConsent(ctx, resource.PatientID, subject.UserID, PurposeInsurance, DataTypeBilling)
	if err != nil {
		return Decision{}, &CollaboratorError{Collaborator: "consent", Err: err}
	}

	if !hasConsent {
		return Deny(p.Name(), "No valid patient consent for insurance data sharing"), nil
	}

	if !strings.EqualFold(resource.RecordType, RecordTypeBilling) &&
		!strings.EqualFold(resource.RecordType, RecordTypeDiagnosis) {
		return Deny(p.Name(), "Insurance adjusters can only access billing and diagnosis records"), nil
	}

	if resource.IsHighlySensitive() {
		return Deny(p.Name(), "Insurance adjusters cannot access highly sensitive diagnoses"), nil
	}

	slog.DebugContext(ctx, "Insurance adjuster access granted with redaction",
		logging.UserID(subject.UserID), logging.PatientID(resource.PatientID))

	return PermitWithObligations(p.Name(), []string{
		ObligationRedactClinicalNotes,
		ObligationRedactSensitiveDiagnoses,
	}), nil
}
