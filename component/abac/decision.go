package abac

// Obligation tags attached to permit decisions. The engine treats them as
// opaque, except for the two redaction tags which drive the canonical content
// transform in redact.go.
const (
	ObligationEnhancedAudit            = "enhanced_audit"
	ObligationSupervisorNotification   = "supervisor_notification"
	ObligationRequireJustification     = "require_justification"
	ObligationTemporaryAccess          = "temporary_access"
	ObligationRedactClinicalNotes      = "redact_clinical_notes"
	ObligationRedactSensitiveDiagnoses = "redact_sensitive_diagnoses"
)

// Names reported for the evaluator's own decisions, when no policy permitted.
const (
	PolicyNameDefaultDeny       = "DefaultDeny"
	PolicyNameAllPoliciesDenied = "AllPoliciesDenied"
)

// Decision is the outcome of policy evaluation. It is immutable once
// constructed: a deny never carries obligations, and a permit never carries a
// deny reason.
type Decision struct {
	Permitted     bool     `json:"permitted"`
	PolicyMatched string   `json:"policyMatched"`
	Obligations   []string `json:"obligations"`
	DenyReason    string   `json:"denyReason,omitempty"`
}

// Permit creates a permit decision without obligations.
func Permit(policyName string) Decision {
	return Decision{
		Permitted:     true,
		PolicyMatched: policyName,
		Obligations:   []string{},
	}
}

// PermitWithObligations creates a permit decision carrying the given
// obligations. Insertion order is preserved; the slice is copied so the
// decision does not alias caller memory.
func PermitWithObligations(policyName string, obligations []string) Decision {
	copied := make([]string, len(obligations))
	copy(copied, obligations)
	return Decision{
		Permitted:     true,
		PolicyMatched: policyName,
		Obligations:   copied,
	}
}

// Deny creates a deny decision with the given reason.
func Deny(policyName string, reason string) Decision {
	return Decision{
		Permitted:     false,
		PolicyMatched: policyName,
		Obligations:   []string{},
		DenyReason:    reason,
	}
}

// HasObligation reports whether the decision carries the given obligation tag.
func (d Decision) HasObligation(tag string) bool {
	for _, o := range d.Obligations {
		if o == tag {
			return true
		}
	}
	return false
}
