package delivery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"killwatch/internal/events"
	"killwatch/internal/interest"
	"killwatch/internal/metrics"

	"golang.org/x/time/rate"
)

const defaultDigestWindow = 15 * time.Minute
const defaultDigestCap = 100

// Stats are the per-profile operator counters spec.md §7 names.
type Stats struct {
	Processed        atomic.Int64
	Notified         atomic.Int64
	Dropped          atomic.Int64
	RateLimited      atomic.Int64
	EnrichmentFailed atomic.Int64
	PartialDeliveries atomic.Int64
}

type profileRoute struct {
	providers []Provider
	limiter   *rate.Limiter
	bypass    bool

	digestWindow time.Duration
	digestCap    int

	mu          sync.Mutex
	digestBatch []events.Decision
	digestTimer *time.Timer

	stats   Stats
	metrics *metrics.Metrics
}

// Router fans out finished Decisions to each profile's configured
// providers, applying the per-profile token bucket and digest batching
// spec §4.8 describes. Grounded on the teacher's KillmailProcessor batch
// timer for the digest path and on BotService's rate limiter shape for the
// token bucket, generalized to golang.org/x/time/rate rather than the
// teacher's hand-rolled map-based limiter.
type Router struct {
	mu      sync.RWMutex
	routes  map[string]*profileRoute
	metrics *metrics.Metrics
}

// NewRouter builds an empty Router. m may be nil. Call Register once per
// profile before routing decisions for it.
func NewRouter(m *metrics.Metrics) *Router {
	return &Router{routes: make(map[string]*profileRoute), metrics: m}
}

// Register wires a profile's delivery providers and rate limit config.
func (r *Router) Register(profile *interest.Profile, providers ...Provider) {
	rl := profile.RateLimit
	maxPerHour := rl.MaxPerHour
	if maxPerHour <= 0 {
		maxPerHour = 60
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = maxPerHour
	}
	window := time.Duration(rl.DigestWindowSeconds) * time.Second
	if window <= 0 {
		window = defaultDigestWindow
	}

	route := &profileRoute{
		providers:    providers,
		limiter:      rate.NewLimiter(rate.Limit(float64(maxPerHour)/3600.0), burst),
		bypass:       rl.BypassForAlwaysNotify,
		digestWindow: window,
		digestCap:    defaultDigestCap,
		metrics:      r.metrics,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[profile.Name] = route
}

// Route delivers or batches one profile's Decision according to its tier.
func (r *Router) Route(ctx context.Context, profileName string, d events.Decision) {
	r.mu.RLock()
	route, ok := r.routes[profileName]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("delivery: no route registered for profile", "profile", profileName)
		return
	}

	if d.EnrichmentFailed {
		route.stats.EnrichmentFailed.Add(1)
	}

	switch d.Tier {
	case events.TierDrop:
		route.stats.Dropped.Add(1)
	case events.TierLog:
		route.stats.Processed.Add(1)
		route.deliver(ctx, profileName, d)
	case events.TierDigest:
		route.stats.Processed.Add(1)
		route.enqueueDigest(ctx, profileName, d)
	default: // notify, priority
		route.stats.Processed.Add(1)
		if route.allow(d) {
			route.stats.Notified.Add(1)
			route.deliver(ctx, profileName, d)
		} else {
			route.stats.RateLimited.Add(1)
			d.RateLimited = true
			if r.metrics != nil {
				r.metrics.RateLimited.WithLabelValues(profileName).Inc()
			}
			slog.Info("delivery: rate limited", "profile", profileName, "kill_id", d.KillID, "tier", d.Tier)
		}
	}

	if r.metrics != nil {
		r.metrics.DecisionsByTier.WithLabelValues(profileName, string(d.Tier)).Inc()
	}
}

// Stats returns the counters for profileName, or nil if unregistered.
func (r *Router) Stats(profileName string) *Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[profileName]
	if !ok {
		return nil
	}
	return &route.stats
}

// FlushDigests forces every profile's pending digest batch out immediately,
// used on shutdown so no digest member is lost to an unfired timer.
func (r *Router) FlushDigests(ctx context.Context) {
	r.mu.RLock()
	routes := make(map[string]*profileRoute, len(r.routes))
	for name, route := range r.routes {
		routes[name] = route
	}
	r.mu.RUnlock()

	for name, route := range routes {
		route.flushDigest(ctx, name)
	}
}

func (route *profileRoute) allow(d events.Decision) bool {
	if route.bypass && hasAlwaysNotifyMatch(d) {
		return true
	}
	return route.limiter.Allow()
}

func hasAlwaysNotifyMatch(d events.Decision) bool {
	for _, m := range d.RuleMatches {
		if m.Matched && m.Kind == "always_notify" {
			return true
		}
	}
	return false
}

func (route *profileRoute) deliver(ctx context.Context, profileName string, d events.Decision) {
	var failures int
	for _, p := range route.providers {
		if err := p.Send(ctx, profileName, d); err != nil {
			failures++
			slog.Error("delivery: provider send failed", "provider", p.Name(), "profile", profileName, "kill_id", d.KillID, "error", err)
		}
	}
	if failures > 0 && failures < len(route.providers) {
		route.stats.PartialDeliveries.Add(1)
		if route.metrics != nil {
			route.metrics.PartialDeliveries.WithLabelValues(profileName).Inc()
		}
		slog.Warn("delivery: partial delivery", "profile", profileName, "kill_id", d.KillID, "failures", failures, "providers", len(route.providers))
	}
}

func (route *profileRoute) enqueueDigest(ctx context.Context, profileName string, d events.Decision) {
	route.mu.Lock()
	defer route.mu.Unlock()

	route.digestBatch = append(route.digestBatch, d)

	if len(route.digestBatch) >= route.digestCap {
		route.flushDigestLocked(ctx, profileName)
		return
	}

	if route.digestTimer == nil {
		route.digestTimer = time.AfterFunc(route.digestWindow, func() {
			route.flushDigest(ctx, profileName)
		})
	}
}

func (route *profileRoute) flushDigest(ctx context.Context, profileName string) {
	route.mu.Lock()
	defer route.mu.Unlock()
	route.flushDigestLocked(ctx, profileName)
}

func (route *profileRoute) flushDigestLocked(ctx context.Context, profileName string) {
	if route.digestTimer != nil {
		route.digestTimer.Stop()
		route.digestTimer = nil
	}
	if len(route.digestBatch) == 0 {
		return
	}

	members := make([]int64, len(route.digestBatch))
	var maxInterest float64
	var dominant string
	for i, d := range route.digestBatch {
		members[i] = d.KillID
		if d.Interest > maxInterest {
			maxInterest = d.Interest
			dominant = d.DominantCategory
		}
	}

	summary := events.Decision{
		Profile:          profileName,
		Tier:             events.TierDigest,
		Interest:         maxInterest,
		DominantCategory: dominant,
		DigestMembers:    members,
	}
	route.digestBatch = nil

	if route.metrics != nil {
		route.metrics.DigestFlushes.WithLabelValues(profileName).Inc()
	}

	for _, p := range route.providers {
		if err := p.Send(ctx, profileName, summary); err != nil {
			slog.Error("delivery: digest provider send failed", "provider", p.Name(), "profile", profileName, "error", err)
		}
	}
}
