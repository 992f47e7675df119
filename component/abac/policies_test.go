package abac

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRelationships is a RelationshipLookup returning a fixed answer.
type stubRelationships struct {
	active bool
	err    error
	calls  int
}

func (s *stubRelationships) HasActiveRelationship(_ context.Context, _ int64, _ int64) (bool, error) {
	s.calls++
	return s.active, s.err
}

// stubConsents is a ConsentLookup returning a fixed answer and recording the
// queried tuple.
type stubConsents struct {
	valid    bool
	err      error
	purpose  ConsentPurpose
	dataType ConsentDataType
	calls    int
}

func (s *stubConsents) HasValidConsent(_ context.Context, _ int64, _ int64, purpose ConsentPurpose, dataType ConsentDataType) (bool, error) {
	s.calls++
	s.purpose = purpose
	s.dataType = dataType
	return s.valid, s.err
}

func businessHours() EnvironmentAttributes {
	return EnvironmentAttributes{
		CurrentTime: time.Date(2026, 1, 30, 14, 0, 0, 0, time.Local),
	}
}

func afterHours() EnvironmentAttributes {
	return EnvironmentAttributes{
		CurrentTime: time.Date(2026, 1, 30, 22, 0, 0, 0, time.Local),
	}
}

func TestEmergencyOverridePolicy(t *testing.T) {
	policy := EmergencyOverridePolicy{}
	subject := SubjectAttributes{UserID: 10, Role: RoleDoctor, EmergencyCertified: true}
	resource := ResourceAttributes{ResourceID: 100, ResourceType: ResourceTypeMedicalRecord, PatientID: 50}
	emergency := EnvironmentAttributes{
		IsEmergency:   true,
		Justification: "Patient in critical condition, immediate access required for life-saving treatment",
	}

	t.Run("applicable only when emergency flagged", func(t *testing.T) {
		assert.True(t, policy.IsApplicable(subject, resource, emergency, ActionRead))
		assert.False(t, policy.IsApplicable(subject, resource, businessHours(), ActionRead))
	})

	t.Run("valid break-glass permits with full obligation set", func(t *testing.T) {
		decision, err := policy.Evaluate(context.Background(), subject, resource, emergency, ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, "EmergencyOverridePolicy", decision.PolicyMatched)
		assert.Equal(t, []string{
			ObligationEnhancedAudit,
			ObligationSupervisorNotification,
			ObligationRequireJustification,
			ObligationTemporaryAccess,
		}, decision.Obligations)
	})

	t.Run("denies uncertified user", func(t *testing.T) {
		uncertified := subject
		uncertified.EmergencyCertified = false
		decision, err := policy.Evaluate(context.Background(), uncertified, resource, emergency, ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Equal(t, "EmergencyOverridePolicy", decision.PolicyMatched)
		assert.Contains(t, decision.DenyReason, "not emergency-certified")
	})

	t.Run("denies empty justification", func(t *testing.T) {
		env := emergency
		env.Justification = "   "
		decision, err := policy.Evaluate(context.Background(), subject, resource, env, ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "requires justification")
	})

	t.Run("denies short justification", func(t *testing.T) {
		env := emergency
		env.Justification = "because"
		decision, err := policy.Evaluate(context.Background(), subject, resource, env, ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "minimum 10 characters")
	})
}

func TestPatientSelfAccessPolicy(t *testing.T) {
	policy := PatientSelfAccessPolicy{}
	patient := SubjectAttributes{UserID: 50, Role: RolePatient}
	ownRecord := ResourceAttributes{ResourceID: 100, ResourceType: ResourceTypeMedicalRecord, PatientID: 50}

	t.Run("applicable for patient read of medical record", func(t *testing.T) {
		assert.True(t, policy.IsApplicable(patient, ownRecord, businessHours(), ActionRead))
		assert.False(t, policy.IsApplicable(patient, ownRecord, businessHours(), ActionWrite))
		assert.False(t, policy.IsApplicable(SubjectAttributes{Role: RoleDoctor}, ownRecord, businessHours(), ActionRead))
	})

	t.Run("patient reads own record", func(t *testing.T) {
		decision, err := policy.Evaluate(context.Background(), patient, ownRecord, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, "PatientSelfAccessPolicy", decision.PolicyMatched)
		assert.Empty(t, decision.Obligations)
	})

	t.Run("patient cannot read another patient's record", func(t *testing.T) {
		otherRecord := ownRecord
		otherRecord.PatientID = 51
		decision, err := policy.Evaluate(context.Background(), patient, otherRecord, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "their own medical records")
	})

	t.Run("sensitivity does not matter for self access", func(t *testing.T) {
		sensitive := ownRecord
		sensitive.SensitivityLevel = SensitivityHIV
		decision, err := policy.Evaluate(context.Background(), patient, sensitive, afterHours(), ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
	})
}

func TestTreatingPhysicianPolicy(t *testing.T) {
	doctor := SubjectAttributes{UserID: 10, Role: RoleDoctor, Department: "cardiology"}
	record := ResourceAttributes{ResourceID: 100, ResourceType: ResourceTypeMedicalRecord, PatientID: 50, SensitivityLevel: SensitivityStandard}

	t.Run("applicable for doctor read of medical record", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{})
		assert.True(t, policy.IsApplicable(doctor, record, businessHours(), ActionRead))
		assert.False(t, policy.IsApplicable(doctor, record, businessHours(), ActionDelete))
		assert.False(t, policy.IsApplicable(SubjectAttributes{Role: RolePatient}, record, businessHours(), ActionRead))
	})

	t.Run("permits with active relationship during business hours", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{active: true})
		decision, err := policy.Evaluate(context.Background(), doctor, record, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, "TreatingPhysicianPolicy", decision.PolicyMatched)
		assert.Empty(t, decision.Obligations)
	})

	t.Run("denies without relationship", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{active: false})
		decision, err := policy.Evaluate(context.Background(), doctor, record, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "No active treatment relationship")
	})

	t.Run("denies outside business hours without emergency", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{active: true})
		decision, err := policy.Evaluate(context.Background(), doctor, record, afterHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Equal(t, "TreatingPhysicianPolicy", decision.PolicyMatched)
		assert.Contains(t, decision.DenyReason, "outside business hours")
	})

	t.Run("permits outside business hours during emergency", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{active: true})
		env := afterHours()
		env.IsEmergency = true
		decision, err := policy.Evaluate(context.Background(), doctor, record, env, ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
	})

	t.Run("psychiatric records require psychiatry department", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{active: true})
		psychiatric := record
		psychiatric.SensitivityLevel = SensitivityPsychiatric

		decision, err := policy.Evaluate(context.Background(), doctor, psychiatric, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "psychiatry department")

		psychiatrist := doctor
		psychiatrist.Department = "Psychiatry"
		decision, err = policy.Evaluate(context.Background(), psychiatrist, psychiatric, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
	})

	t.Run("lookup failure surfaces as collaborator error", func(t *testing.T) {
		policy := NewTreatingPhysicianPolicy(&stubRelationships{err: errors.New("connection refused")})
		_, err := policy.Evaluate(context.Background(), doctor, record, businessHours(), ActionRead)
		require.Error(t, err)
		assert.True(t, IsCollaboratorUnavailable(err))
	})
}

func TestConsentEnums(t *testing.T) {
	t.Run("known values are valid, case-insensitively", func(t *testing.T) {
		assert.True(t, PurposeInsurance.Valid())
		assert.True(t, ConsentPurpose("insurance").Valid())
		assert.True(t, DataTypeAll.Valid())
		assert.True(t, ConsentDataType("billing").Valid())
	})

	t.Run("unknown values are invalid", func(t *testing.T) {
		assert.False(t, ConsentPurpose("").Valid())
		assert.False(t, ConsentPurpose("INSURENCE").Valid())
		assert.False(t, ConsentDataType("").Valid())
		assert.False(t, ConsentDataType("BILING").Valid())
	})
}

func TestInsuranceClaimsPolicy(t *testing.T) {
	adjuster := SubjectAttributes{UserID: 30, Role: RoleInsuranceAdjuster, Employer: "Acme Insurance"}
	billing := ResourceAttributes{
		ResourceID:       100,
		ResourceType:     ResourceTypeMedicalRecord,
		PatientID:        50,
		SensitivityLevel: SensitivityStandard,
		RecordType:       RecordTypeBilling,
	}

	t.Run("applicable for adjuster read of medical record", func(t *testing.T) {
		policy := NewInsuranceClaimsPolicy(&stubConsents{})
		assert.True(t, policy.IsApplicable(adjuster, billing, businessHours(), ActionRead))
		assert.False(t, policy.IsApplicable(adjuster, billing, businessHours(), ActionExport))
		assert.False(t, policy.IsApplicable(SubjectAttributes{Role: RoleDoctor}, billing, businessHours(), ActionRead))
	})

	t.Run("permits billing record with consent, obligating redaction", func(t *testing.T) {
		consents := &stubConsents{valid: true}
		policy := NewInsuranceClaimsPolicy(consents)
		decision, err := policy.Evaluate(context.Background(), adjuster, billing, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, []string{ObligationRedactClinicalNotes, ObligationRedactSensitiveDiagnoses}, decision.Obligations)
		assert.Equal(t, PurposeInsurance, consents.purpose)
		assert.Equal(t, DataTypeBilling, consents.dataType)
	})

	t.Run("denies without consent", func(t *testing.T) {
		policy := NewInsuranceClaimsPolicy(&stubConsents{valid: false})
		decision, err := policy.Evaluate(context.Background(), adjuster, billing, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "No valid patient consent")
	})

	t.Run("denies non-billing record types", func(t *testing.T) {
		policy := NewInsuranceClaimsPolicy(&stubConsents{valid: true})
		visitNotes := billing
		visitNotes.RecordType = "VISIT_NOTES"
		decision, err := policy.Evaluate(context.Background(), adjuster, visitNotes, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "billing and diagnosis records")
	})

	t.Run("denies highly sensitive records even with consent", func(t *testing.T) {
		policy := NewInsuranceClaimsPolicy(&stubConsents{valid: true})
		sensitive := billing
		sensitive.RecordType = RecordTypeDiagnosis
		sensitive.SensitivityLevel = SensitivityHIV
		decision, err := policy.Evaluate(context.Background(), adjuster, sensitive, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Contains(t, decision.DenyReason, "highly sensitive")
	})

	t.Run("lookup failure surfaces as collaborator error", func(t *testing.T) {
		policy := NewInsuranceClaimsPolicy(&stubConsents{err: errors.New("timeout")})
		_, err := policy.Evaluate(context.Background(), adjuster, billing, businessHours(), ActionRead)
		require.Error(t, err)
		assert.True(t, IsCollaboratorUnavailable(err))
	})
}
