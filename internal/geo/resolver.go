// Package geo resolves client IP addresses to locations through a
// TTL cache and a daily lookup quota. Resolution is best-effort
// enrichment: every failure mode degrades to "no location", never an
// error on the audit write path.
package geo

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/onnwee/vigil/internal/audit"
)

// Defaults for the resolver.
const (
	DefaultDailyQuota    = 900
	DefaultCacheTTL      = 24 * time.Hour
	DefaultLookupTimeout = 2 * time.Second
	DefaultQuotaWindow   = 24 * time.Hour
)

// Provider performs the external IP lookup. Implementations must honor
// context cancellation; the resolver enforces its own hard timeout.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*audit.Location, error)
}

// Cache stores resolved locations keyed by IP. Implementations must
// never return an entry older than their TTL.
type Cache interface {
	Get(ctx context.Context, ip string) (*audit.Location, bool)
	Set(ctx context.Context, ip string, loc *audit.Location)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// DailyQuota caps external lookups per quota window.
	DailyQuota int
	// QuotaWindow is the counter reset period.
	QuotaWindow time.Duration
	// LookupTimeout is the hard timeout on one provider call.
	LookupTimeout time.Duration
	// Logger for lookup activity.
	Logger *slog.Logger
	// Metrics for cache/quota tracking. Optional.
	Metrics *Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Resolver is the geolocation cache and rate limiter. It is constructed
// once at process start and passed by reference wherever lookups are
// needed; there is no package-level singleton.
type Resolver struct {
	provider Provider
	cache    Cache
	config   ResolverConfig

	// Quota state. The check-then-increment sequence is serialized
	// under mu so concurrent lookups cannot run the counter past the
	// limit unboundedly.
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// NewResolver creates a Resolver over a provider and cache.
func NewResolver(provider Provider, cache Cache, config ResolverConfig) *Resolver {
	if config.DailyQuota == 0 {
		config.DailyQuota = DefaultDailyQuota
	}
	if config.QuotaWindow == 0 {
		config.QuotaWindow = DefaultQuotaWindow
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Resolver{
		provider: provider,
		cache:    cache,
		config:   config,
		resetAt:  config.Now().Add(config.QuotaWindow),
	}
}

// Resolve maps an IP to a location. Returns nil for private/loopback
// addresses, on cache-miss-with-exhausted-quota, and on any lookup
// timeout or failure. Resolve never returns an error and never blocks
// beyond the configured lookup timeout.
func (r *Resolver) Resolve(ctx context.Context, ip string) *audit.Location {
	if ip == "" || ip == "unknown" || isPrivateIP(ip) {
		if r.config.Metrics != nil {
			r.config.Metrics.IncLookup(LookupSkipped)
		}
		return nil
	}

	if loc, ok := r.cache.Get(ctx, ip); ok {
		if r.config.Metrics != nil {
			r.config.Metrics.IncLookup(LookupCacheHit)
		}
		return loc
	}

	if !r.quotaAllows() {
		if r.config.Metrics != nil {
			r.config.Metrics.IncLookup(LookupQuotaExhausted)
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	loc, err := r.provider.Lookup(lookupCtx, ip)
	if err != nil {
		// Soft failure: no cache write, no quota consumption beyond
		// the attempt already counted below being skipped.
		r.config.Logger.Debug("geolocation lookup failed", "ip", ip, "error", err)
		if r.config.Metrics != nil {
			r.config.Metrics.IncLookup(LookupError)
		}
		return nil
	}

	r.commitQuota()
	r.cache.Set(ctx, ip, loc)
	if r.config.Metrics != nil {
		r.config.Metrics.IncLookup(LookupResolved)
	}
	return loc
}

// quotaAllows rolls the reset window forward when crossed and reports
// whether another external lookup is permitted.
func (r *Resolver) quotaAllows() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.config.Now()
	if !now.Before(r.resetAt) {
		r.count = 0
		r.resetAt = now.Add(r.config.QuotaWindow)
	}
	return r.count < r.config.DailyQuota
}

// commitQuota counts one successful external lookup.
func (r *Resolver) commitQuota() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

// isPrivateIP reports whether an address should skip geolocation
// entirely. Unparseable addresses are treated as private.
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return true
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
