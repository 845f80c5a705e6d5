package authz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// mockAuthorizer is a test Authorizer that counts calls and returns a configurable result.
type mockAuthorizer struct {
	allowed bool
	err     error
	calls   atomic.Int64
}

func (m *mockAuthorizer) Authorize(_ context.Context, _ AuthzRequest) (bool, error) {
	m.calls.Add(1)
	return m.allowed, m.err
}

func TestCachedAuthorizer_CacheHit(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, time.Minute)

	req := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"}

	for i := 0; i < 3; i++ {
		allowed, err := cached.Authorize(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Error("expected allowed=true")
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1 (cache hit should not call inner)", inner.calls.Load())
	}
}

func TestCachedAuthorizer_CacheExpiry(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, 10*time.Second)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	req := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"}

	_, _ = cached.Authorize(context.Background(), req)
	now = now.Add(5 * time.Second)
	_, _ = cached.Authorize(context.Background(), req)
	if inner.calls.Load() != 1 {
		t.Fatalf("inner calls = %d, want 1 before expiry", inner.calls.Load())
	}

	now = now.Add(6 * time.Second)
	_, _ = cached.Authorize(context.Background(), req)
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2 after cache expiry", inner.calls.Load())
	}
}

func TestCachedAuthorizer_DifferentKeys(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, time.Minute)

	reqs := []AuthzRequest{
		{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"},
		{User: "bob", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"},
		{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "globex"},
		{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme", Groups: []string{"inspectors"}},
	}
	for _, req := range reqs {
		_, _ = cached.Authorize(context.Background(), req)
	}

	if inner.calls.Load() != int64(len(reqs)) {
		t.Errorf("inner calls = %d, want %d (different cache keys)", inner.calls.Load(), len(reqs))
	}
}

func TestCachedAuthorizer_CachesDenials(t *testing.T) {
	inner := &mockAuthorizer{allowed: false}
	cached := NewCachedAuthorizer(inner, time.Minute)

	req := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbDelete, Tenant: "acme"}

	for i := 0; i < 2; i++ {
		if allowed, _ := cached.Authorize(context.Background(), req); allowed {
			t.Error("expected allowed=false")
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1 (denial should be cached)", inner.calls.Load())
	}
}

func TestCachedAuthorizer_ErrorsAreNotCached(t *testing.T) {
	inner := &mockAuthorizer{err: errors.New("policy unavailable")}
	cached := NewCachedAuthorizer(inner, time.Minute)

	req := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"}

	for i := 0; i < 2; i++ {
		if _, err := cached.Authorize(context.Background(), req); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls.Load())
	}
}

func TestCachedAuthorizer_Purge(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, time.Minute)

	req := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"}
	_, _ = cached.Authorize(context.Background(), req)

	cached.Purge()
	inner.allowed = false

	allowed, _ := cached.Authorize(context.Background(), req)
	if allowed {
		t.Error("expected fresh decision after purge")
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls.Load())
	}
}

func TestCachedAuthorizer_InvalidateScopedToTenants(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, time.Minute)

	acme := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "acme"}
	globex := AuthzRequest{User: "alice", Resource: ResourceForms, Verb: VerbGet, Tenant: "globex"}
	_, _ = cached.Authorize(context.Background(), acme)
	_, _ = cached.Authorize(context.Background(), globex)

	cached.Invalidate(PolicyChange{Tenants: []string{"acme"}})
	inner.allowed = false

	if allowed, _ := cached.Authorize(context.Background(), acme); allowed {
		t.Error("expected a fresh decision for the changed tenant")
	}
	if allowed, _ := cached.Authorize(context.Background(), globex); !allowed {
		t.Error("expected the cached decision for an unchanged tenant")
	}
	if inner.calls.Load() != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls.Load())
	}

	cached.Invalidate(PolicyChange{AllTenants: true})
	if allowed, _ := cached.Authorize(context.Background(), globex); allowed {
		t.Error("expected a fresh decision after a policy-wide change")
	}
}

func TestCachedAuthorizer_SweepsExpiredDecisions(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, time.Second)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	for i := 0; i < sweepThreshold; i++ {
		_, _ = cached.Authorize(context.Background(), AuthzRequest{User: fmt.Sprintf("u%d", i), Tenant: "acme"})
	}
	now = now.Add(2 * time.Second)
	_, _ = cached.Authorize(context.Background(), AuthzRequest{User: "late", Tenant: "acme"})

	cached.mu.RLock()
	size := len(cached.tenants["acme"])
	cached.mu.RUnlock()
	if size != 1 {
		t.Errorf("cached decisions = %d, want 1 after the sweep", size)
	}
}
