package abac

// Fields removed from response content by the redaction obligations.
var (
	clinicalNoteFields       = []string{"clinicalNotes", "providerComments"}
	sensitiveDiagnosisFields = []string{"sensitiveDiagnoses", "psychiatricNotes"}
)

// Redact applies the decision's redaction obligations to a string-keyed
// content mapping and returns the filtered copy. The input map is never
// mutated, and persisted storage is never touched: redaction only shapes the
// response payload handed back to the caller.
//
// The transform is idempotent: reapplying it to already-redacted content is a
// no-op. Content is returned unchanged when the decision is a deny or carries
// no redaction obligations.
func Redact(decision Decision, content map[string]any) map[string]any {
	if content == nil {
		return nil
	}

	filtered := make(map[string]any, len(content))
	for k, v := range content {
		filtered[k] = v
	}

	if !decision.Permitted {
		return filtered
	}

	if decision.HasObligation(ObligationRedactClinicalNotes) {
		for _, field := range clinicalNoteFields {
			delete(filtered, field)
		}
	}

	if decision.HasObligation(ObligationRedactSensitiveDiagnoses) {
		for _, field := range sensitiveDiagnosisFields {
			delete(filtered, field)
		}
	}

	return filtered
}
