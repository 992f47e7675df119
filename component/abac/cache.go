package abac

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long a decision may be reused before it must be
// re-evaluated.
const DefaultCacheTTL = 60 * time.Second

// CachedEvaluator wraps an Evaluator with a TTL-bounded decision cache keyed
// by (subject, resource, action).
//
// Emergency requests are never served from or written to the cache: the
// justification varies per request and must be validated and audited
// individually, and a stale permit could bypass live certification checks.
// The guard is evaluated before any cache read or write.
type CachedEvaluator struct {
	inner   *Evaluator
	cache   *gocache.Cache
	metrics *Metrics
}

// NewCachedEvaluator wraps the evaluator with a decision cache using the given
// TTL. A non-positive TTL falls back to DefaultCacheTTL.
func NewCachedEvaluator(inner *Evaluator, ttl time.Duration, metrics *Metrics) *CachedEvaluator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedEvaluator{
		inner:   inner,
		cache:   gocache.New(ttl, 2*ttl),
		metrics: metrics,
	}
}

// EvaluateAccess returns a cached decision when one exists for the request
// key, evaluating and caching otherwise. Errors are never cached.
func (c *CachedEvaluator) EvaluateAccess(ctx context.Context, subject SubjectAttributes, resource ResourceAttributes, environment EnvironmentAttributes, action Action) (Decision, error) {
	if environment.IsEmergency {
		c.metrics.observeCacheBypass()
		return c.inner.EvaluateAccess(ctx, subject, resource, environment, action)
	}

	key := cacheKey(subject, resource, action)
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.observeCacheHit()
		return cached.(Decision), nil
	}
	c.metrics.observeCacheMiss()

	decision, err := c.inner.EvaluateAccess(ctx, subject, resource, environment, action)
	if err != nil {
		return Decision{}, err
	}

	c.cache.SetDefault(key, decision)
	return decision, nil
}

// InvalidateAll drops every cached decision. Consent and relationship
// mutations call this before the mutation is considered complete, so a stale
// permit is never served after a grant or revoke.
func (c *CachedEvaluator) InvalidateAll() {
	c.cache.Flush()
}

// RegisteredPolicies exposes the wrapped evaluator's catalog.
func (c *CachedEvaluator) RegisteredPolicies() []string {
	return c.inner.RegisteredPolicies()
}

func cacheKey(subject SubjectAttributes, resource ResourceAttributes, action Action) string {
	return fmt.Sprintf("%d:%d:%s", subject.UserID, resource.ResourceID, action)
}
