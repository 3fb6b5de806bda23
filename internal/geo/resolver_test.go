package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/vigil/internal/audit"
)

type countingProvider struct {
	loc     *audit.Location
	err     error
	lookups int
}

func (p *countingProvider) Lookup(ctx context.Context, ip string) (*audit.Location, error) {
	p.lookups++
	if p.err != nil {
		return nil, p.err
	}
	return p.loc, nil
}

func TestResolve_SkipsPrivateAddresses(t *testing.T) {
	provider := &countingProvider{loc: &audit.Location{Country: "Colombia"}}
	r := NewResolver(provider, NewMemoryCache(0), ResolverConfig{})

	for _, ip := range []string{"", "unknown", "127.0.0.1", "10.0.0.5", "192.168.1.9", "not-an-ip", "::1"} {
		if loc := r.Resolve(context.Background(), ip); loc != nil {
			t.Errorf("Resolve(%q) = %v, want nil", ip, loc)
		}
	}
	if provider.lookups != 0 {
		t.Errorf("provider lookups = %d, want 0 for skipped addresses", provider.lookups)
	}
}

func TestResolve_CachesLookups(t *testing.T) {
	provider := &countingProvider{loc: &audit.Location{Country: "Colombia", City: "Bogota"}}
	r := NewResolver(provider, NewMemoryCache(0), ResolverConfig{})
	ctx := context.Background()

	first := r.Resolve(ctx, "203.0.113.7")
	second := r.Resolve(ctx, "203.0.113.7")

	if first == nil || first.Country != "Colombia" {
		t.Fatalf("Resolve() = %v, want Colombia", first)
	}
	if second == nil || second.Country != "Colombia" {
		t.Fatalf("second Resolve() = %v, want cached Colombia", second)
	}
	if provider.lookups != 1 {
		t.Errorf("provider lookups = %d, want 1 (second hit served from cache)", provider.lookups)
	}
}

func TestResolve_QuotaExhaustion(t *testing.T) {
	provider := &countingProvider{loc: &audit.Location{Country: "Colombia"}}
	r := NewResolver(provider, NewMemoryCache(0), ResolverConfig{DailyQuota: 2})
	ctx := context.Background()

	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"}
	var results []*audit.Location
	for _, ip := range ips {
		results = append(results, r.Resolve(ctx, ip))
	}

	if results[0] == nil || results[1] == nil {
		t.Error("first two lookups should succeed within quota")
	}
	if results[2] != nil {
		t.Errorf("Resolve() = %v, want nil once quota is exhausted", results[2])
	}
	if provider.lookups != 2 {
		t.Errorf("provider lookups = %d, want 2", provider.lookups)
	}

	// Cached entries still resolve after exhaustion.
	if loc := r.Resolve(ctx, "203.0.113.1"); loc == nil {
		t.Error("cached IP should resolve even with quota exhausted")
	}
}

func TestResolve_QuotaResetsAfterWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	provider := &countingProvider{loc: &audit.Location{Country: "Colombia"}}
	r := NewResolver(provider, NewMemoryCache(0), ResolverConfig{
		DailyQuota:  1,
		QuotaWindow: 24 * time.Hour,
		Now:         func() time.Time { return now },
	})
	ctx := context.Background()

	if loc := r.Resolve(ctx, "203.0.113.1"); loc == nil {
		t.Fatal("first lookup should succeed")
	}
	if loc := r.Resolve(ctx, "203.0.113.2"); loc != nil {
		t.Fatal("second lookup should be quota-blocked")
	}

	now = now.Add(25 * time.Hour)
	if loc := r.Resolve(ctx, "203.0.113.3"); loc == nil {
		t.Error("lookup after window rollover should succeed")
	}
}

func TestResolve_ProviderFailure(t *testing.T) {
	provider := &countingProvider{err: errors.New("upstream down")}
	cache := NewMemoryCache(0)
	r := NewResolver(provider, cache, ResolverConfig{})

	if loc := r.Resolve(context.Background(), "203.0.113.7"); loc != nil {
		t.Errorf("Resolve() = %v, want nil on provider failure", loc)
	}
	// Failures are not cached; the next attempt retries the provider.
	r.Resolve(context.Background(), "203.0.113.7")
	if provider.lookups != 2 {
		t.Errorf("provider lookups = %d, want 2 (failures not cached)", provider.lookups)
	}
	if cache.Len() != 0 {
		t.Errorf("cache Len() = %d, want 0 after failed lookups", cache.Len())
	}
}
