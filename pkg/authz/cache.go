package authz

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is the default time-to-live for cached authorization results.
const DefaultCacheTTL = 10 * time.Second

// sweepThreshold is the per-tenant size at which expired decisions are
// dropped on insert.
const sweepThreshold = 1024

type decisionKey struct {
	user     string
	groups   string
	resource string
	verb     string
}

type decision struct {
	allowed   bool
	expiresAt time.Time
}

// CachedAuthorizer memoises the decisions of another Authorizer for a short
// TTL. Decisions are partitioned by tenant so that a policy change scoped to
// some tenants leaves the others warm. Errors are never cached.
type CachedAuthorizer struct {
	inner   Authorizer
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	tenants map[string]map[decisionKey]decision
}

// NewCachedAuthorizer wraps inner with a decision cache of the given TTL.
func NewCachedAuthorizer(inner Authorizer, ttl time.Duration) *CachedAuthorizer {
	return &CachedAuthorizer{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		tenants: make(map[string]map[decisionKey]decision),
	}
}

// Authorize answers from the cache and asks the inner Authorizer on a miss.
func (c *CachedAuthorizer) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	key := decisionKey{
		user:     req.User,
		groups:   strings.Join(req.Groups, "\x00"),
		resource: req.Resource,
		verb:     req.Verb,
	}

	c.mu.RLock()
	d, ok := c.tenants[req.Tenant][key]
	c.mu.RUnlock()
	if ok && c.now().Before(d.expiresAt) {
		return d.allowed, nil
	}

	allowed, err := c.inner.Authorize(ctx, req)
	if err != nil {
		return false, err
	}

	now := c.now()
	c.mu.Lock()
	entries := c.tenants[req.Tenant]
	if entries == nil {
		entries = make(map[decisionKey]decision)
		c.tenants[req.Tenant] = entries
	}
	if len(entries) >= sweepThreshold {
		for k, e := range entries {
			if !now.Before(e.expiresAt) {
				delete(entries, k)
			}
		}
	}
	entries[key] = decision{allowed: allowed, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return allowed, nil
}

// Purge drops every cached decision.
func (c *CachedAuthorizer) Purge() {
	c.mu.Lock()
	c.tenants = make(map[string]map[decisionKey]decision)
	c.mu.Unlock()
}

// PurgeTenants drops the cached decisions of the named tenants.
func (c *CachedAuthorizer) PurgeTenants(tenants ...string) {
	c.mu.Lock()
	for _, t := range tenants {
		delete(c.tenants, t)
	}
	c.mu.Unlock()
}

// Invalidate drops the decisions a policy change can affect. It is meant to
// be registered with PolicyAuthorizer.OnReload.
func (c *CachedAuthorizer) Invalidate(change PolicyChange) {
	if change.AllTenants {
		c.Purge()
		return
	}
	c.PurgeTenants(change.Tenants...)
}
