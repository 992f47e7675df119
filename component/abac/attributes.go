package abac

import (
	"strings"
	"time"
)

// Role is the role of the user requesting access.
type Role string

const (
	RoleDoctor            Role = "DOCTOR"
	RolePatient           Role = "PATIENT"
	RolePharmacist        Role = "PHARMACIST"
	RoleAdmin             Role = "ADMIN"
	RoleInsuranceAdjuster Role = "INSURANCE_ADJUSTER"
)

// Action is the operation being attempted on a resource.
type Action string

const (
	ActionRead   Action = "READ"
	ActionWrite  Action = "WRITE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionExport Action = "EXPORT"
	ActionPrint  Action = "PRINT"
)

// Valid reports whether the action is one of the known actions.
func (a Action) Valid() bool {
	switch Action(strings.ToUpper(string(a))) {
	case ActionRead, ActionWrite, ActionUpdate, ActionDelete, ActionExport, ActionPrint:
		return true
	}
	return false
}

// Is does a case-insensitive comparison against another action.
func (a Action) Is(other Action) bool {
	return strings.EqualFold(string(a), string(other))
}

// SensitivityLevel classifies how restricted a resource is.
type SensitivityLevel string

const (
	SensitivityPublic      SensitivityLevel = "PUBLIC"
	SensitivityStandard    SensitivityLevel = "STANDARD"
	SensitivityPsychiatric SensitivityLevel = "PSYCHIATRIC"
	SensitivityHIV         SensitivityLevel = "HIV"
	SensitivityCritical    SensitivityLevel = "CRITICAL"
)

// ResourceTypeMedicalRecord is the resource type the policy catalog reasons about.
const ResourceTypeMedicalRecord = "MEDICAL_RECORD"

// Record types relevant to the insurance claims policy.
const (
	RecordTypeBilling   = "BILLING"
	RecordTypeDiagnosis = "DIAGNOSIS"
)

// SubjectAttributes describes the user requesting access. It is an immutable
// snapshot assembled once per request by the calling layer; it performs no
// lookups of its own.
type SubjectAttributes struct {
	UserID             int64
	Role               Role
	Department         string
	Certifications     []string
	EmergencyCertified bool
	Employer           string
	Location           string
}

// HasRole does a case-insensitive comparison against the subject's role.
func (s SubjectAttributes) HasRole(role Role) bool {
	return strings.EqualFold(string(s.Role), string(role))
}

// HasCertification does a case-insensitive membership test over the subject's
// certification set.
func (s SubjectAttributes) HasCertification(name string) bool {
	for _, cert := range s.Certifications {
		if strings.EqualFold(cert, name) {
			return true
		}
	}
	return false
}

// ResourceAttributes describes the resource being accessed.
type ResourceAttributes struct {
	ResourceID       int64
	ResourceType     string
	PatientID        int64
	SensitivityLevel SensitivityLevel
	RecordType       string
	CreatedBy        int64
}

// HasSensitivityLevel does a case-insensitive comparison against the
// resource's sensitivity level.
func (r ResourceAttributes) HasSensitivityLevel(level SensitivityLevel) bool {
	return strings.EqualFold(string(r.SensitivityLevel), string(level))
}

// IsHighlySensitive reports whether the resource carries one of the
// sensitivity levels that trigger the strictest access rules.
func (r ResourceAttributes) IsHighlySensitive() bool {
	return r.HasSensitivityLevel(SensitivityPsychiatric) ||
		r.HasSensitivityLevel(SensitivityHIV) ||
		r.HasSensitivityLevel(SensitivityCritical)
}

// IsMedicalRecord does a case-insensitive comparison against the medical
// record resource type.
func (r ResourceAttributes) IsMedicalRecord() bool {
	return strings.EqualFold(r.ResourceType, ResourceTypeMedicalRecord)
}

// EnvironmentAttributes describes the context in which the request is made.
type EnvironmentAttributes struct {
	CurrentTime   time.Time
	IPAddress     string
	DeviceType    string
	IsEmergency   bool
	Justification string
	SessionID     string
}

// clock returns the request time, falling back to the wall clock when the
// caller did not supply one.
func (e EnvironmentAttributes) clock() time.Time {
	if e.CurrentTime.IsZero() {
		return time.Now()
	}
	return e.CurrentTime
}

// IsBusinessHours reports whether the request time falls strictly between
// 08:00 and 20:00 local time. Both bounds are exclusive: a request at exactly
// 08:00:00 or 20:00:00 is outside business hours.
func (e EnvironmentAttributes) IsBusinessHours() bool {
	t := e.clock()
	sinceMidnight := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return sinceMidnight > 8*time.Hour && sinceMidnight < 20*time.Hour
}

// IsWeekend reports whether the request time falls on a Saturday or Sunday.
func (e EnvironmentAttributes) IsWeekend() bool {
	switch e.clock().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
