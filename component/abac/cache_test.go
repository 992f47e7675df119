package abac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPolicy permits everything and counts evaluations, so cache behavior
// is observable through the wrapped evaluator.
type countingPolicy struct {
	evaluations int
}

func (p *countingPolicy) Name() string  { return "CountingPolicy" }
func (p *countingPolicy) Priority() int { return 1 }

func (p *countingPolicy) IsApplicable(SubjectAttributes, ResourceAttributes, EnvironmentAttributes, Action) bool {
	return true
}

func (p *countingPolicy) Evaluate(context.Context, SubjectAttributes, ResourceAttributes, EnvironmentAttributes, Action) (Decision, error) {
	p.evaluations++
	return Permit("CountingPolicy"), nil
}

func TestCachedEvaluator(t *testing.T) {
	ctx := context.Background()
	subject := SubjectAttributes{UserID: 10, Role: RoleDoctor}
	resource := ResourceAttributes{ResourceID: 100, ResourceType: ResourceTypeMedicalRecord, PatientID: 50}

	newCached := func(ttl time.Duration) (*CachedEvaluator, *countingPolicy) {
		policy := &countingPolicy{}
		return NewCachedEvaluator(NewEvaluator(NewCatalog(policy), nil), ttl, nil), policy
	}

	t.Run("identical requests reuse the cached decision", func(t *testing.T) {
		cached, policy := newCached(time.Minute)

		first, err := cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)
		second, err := cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, policy.evaluations)
	})

	t.Run("different actions are cached separately", func(t *testing.T) {
		cached, policy := newCached(time.Minute)

		_, err := cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)
		_, err = cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionWrite)
		require.NoError(t, err)

		assert.Equal(t, 2, policy.evaluations)
	})

	t.Run("emergency requests are always evaluated fresh", func(t *testing.T) {
		cached, policy := newCached(time.Minute)
		env := EnvironmentAttributes{
			CurrentTime:   time.Date(2026, 1, 30, 3, 0, 0, 0, time.Local),
			IsEmergency:   true,
			Justification: "Patient coding in ICU, need medication history now",
		}

		for i := 0; i < 3; i++ {
			_, err := cached.EvaluateAccess(ctx, subject, resource, env, ActionRead)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, policy.evaluations)
	})

	t.Run("emergency evaluation does not seed the cache", func(t *testing.T) {
		cached, policy := newCached(time.Minute)
		env := businessHours()
		env.IsEmergency = true
		env.Justification = "Cardiac arrest on ward 4, retrieving allergy list"

		_, err := cached.EvaluateAccess(ctx, subject, resource, env, ActionRead)
		require.NoError(t, err)
		_, err = cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)

		assert.Equal(t, 2, policy.evaluations)
	})

	t.Run("invalidate all forces re-evaluation", func(t *testing.T) {
		cached, policy := newCached(time.Minute)

		_, err := cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)
		cached.InvalidateAll()
		_, err = cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)

		assert.Equal(t, 2, policy.evaluations)
	})

	t.Run("expired entries are re-evaluated", func(t *testing.T) {
		cached, policy := newCached(10 * time.Millisecond)

		_, err := cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)
		time.Sleep(25 * time.Millisecond)
		_, err = cached.EvaluateAccess(ctx, subject, resource, businessHours(), ActionRead)
		require.NoError(t, err)

		assert.Equal(t, 2, policy.evaluations)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		relationships := &stubRelationships{err: assert.AnError}
		evaluator := NewEvaluator(NewCatalog(NewTreatingPhysicianPolicy(relationships)), nil)
		cached := NewCachedEvaluator(evaluator, time.Minute, nil)
		doctor := SubjectAttributes{UserID: 10, Role: RoleDoctor}

		_, err := cached.EvaluateAccess(ctx, doctor, resource, businessHours(), ActionRead)
		require.Error(t, err)

		// The collaborator recovers; the next call must reach it.
		relationships.err = nil
		relationships.active = true
		decision, err := cached.EvaluateAccess(ctx, doctor, resource, businessHours(), ActionRead)
		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, 2, relationships.calls)
	})

	t.Run("registered policies delegate to the inner evaluator", func(t *testing.T) {
		cached, _ := newCached(time.Minute)
		assert.Equal(t, []string{"CountingPolicy"}, cached.RegisteredPolicies())
	})
}
