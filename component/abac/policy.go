package abac

import (
	"context"
	"sort"
	"strings"
)

// Policy is the capability contract shared by every rule in the catalog.
// Priority 1 is the highest; the evaluator consults policies in ascending
// priority order and stops at the first permit.
type Policy interface {
	// Name identifies the policy in decisions and audit entries.
	Name() string
	// Priority orders evaluation; lower numbers are evaluated first.
	Priority() int
	// IsApplicable reports whether this policy should be evaluated for the
	// given request context. It must be a pure function of its inputs.
	IsApplicable(subject SubjectAttributes, resource ResourceAttributes, environment EnvironmentAttributes, action Action) bool
	// Evaluate produces this policy's decision. An error means a collaborator
	// lookup failed, not that access was denied.
	Evaluate(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, environment EnvironmentAttributes, action Action) (Decision, error)
}

// Catalog is the fixed, priority-sorted set of policies. It is assembled once
// at startup and never mutated afterwards, so it is safe for concurrent reads.
type Catalog struct {
	policies []Policy
}

// NewCatalog builds a catalog from the given policies, sorted ascending by
// priority. The sort is stable: ties keep registration order.
func NewCatalog(policies ...Policy) Catalog {
	sorted := make([]Policy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return Catalog{policies: sorted}
}

// Policies returns the catalog contents in evaluation order.
func (c Catalog) Policies() []Policy {
	return c.policies
}

// Names lists the catalog's policy names in evaluation order, for logging and
// the registry endpoint.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.policies))
	for _, p := range c.policies {
		names = append(names, p.Name())
	}
	return names
}

// RelationshipLookup answers whether a provider currently has an active
// treatment relationship with a patient. Implemented by the relationship
// component; consumed by the treating physician policy.
type RelationshipLookup interface {
	HasActiveRelationship(ctx context.Context, providerID int64, patientID int64) (bool, error)
}

// ConsentPurpose is the purpose a consent was granted for.
type ConsentPurpose string

const (
	PurposeTreatment    ConsentPurpose = "TREATMENT"
	PurposeInsurance    ConsentPurpose = "INSURANCE"
	PurposeResearch     ConsentPurpose = "RESEARCH"
	PurposeFamilyAccess ConsentPurpose = "FAMILY_ACCESS"
	PurposeOther        ConsentPurpose = "OTHER"
)

// Valid reports whether the purpose is one of the known purposes.
func (p ConsentPurpose) Valid() bool {
	switch ConsentPurpose(strings.ToUpper(string(p))) {
	case PurposeTreatment, PurposeInsurance, PurposeResearch, PurposeFamilyAccess, PurposeOther:
		return true
	}
	return false
}

// ConsentDataType is the category of data a consent covers.
type ConsentDataType string

const (
	DataTypeAll           ConsentDataType = "ALL"
	DataTypeLabResults    ConsentDataType = "LAB_RESULTS"
	DataTypePrescriptions ConsentDataType = "PRESCRIPTIONS"
	DataTypeVisitNotes    ConsentDataType = "VISIT_NOTES"
	DataTypeImaging       ConsentDataType = "IMAGING"
	DataTypeBilling       ConsentDataType = "BILLING"
)

// Valid reports whether the data type is one of the known categories.
func (d ConsentDataType) Valid() bool {
	switch ConsentDataType(strings.ToUpper(string(d))) {
	case DataTypeAll, DataTypeLabResults, DataTypePrescriptions, DataTypeVisitNotes, DataTypeImaging, DataTypeBilling:
		return true
	}
	return false
}

// ConsentLookup answers whether a patient granted a user valid consent for a
// purpose and data type. Implemented by the consent component; consumed by the
// insurance claims policy.
type ConsentLookup interface {
	HasValidConsent(ctx context.Context, patientID int64, userID int64, purpose ConsentPurpose, dataType ConsentDataType) (bool, error)
}
