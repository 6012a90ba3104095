package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"killwatch/internal/events"
	"killwatch/internal/interest"
	"killwatch/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	mu   sync.Mutex
	sent []events.Decision
}

func (p *recordingProvider) Name() string { return "recording" }
func (p *recordingProvider) Send(ctx context.Context, profile string, d events.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, d)
	return nil
}
func (p *recordingProvider) all() []events.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Decision, len(p.sent))
	copy(out, p.sent)
	return out
}

func profileWithRateLimit(name string, maxPerHour, burst int, bypass bool) *interest.Profile {
	return &interest.Profile{
		Name: name,
		RateLimit: interest.RateLimitConfig{
			MaxPerHour:            maxPerHour,
			Burst:                 burst,
			BypassForAlwaysNotify: bypass,
		},
	}
}

func TestRouteDropsDropTierWithoutDelivery(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierDrop})

	require.Empty(t, provider.all())
	require.Equal(t, int64(1), r.Stats("p").Dropped.Load())
}

func TestRouteDeliversLogTierImmediately(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierLog})

	require.Len(t, provider.all(), 1)
}

func TestRouteNotifyExhaustsTokenBucketAndMarksRateLimited(t *testing.T) {
	p := profileWithRateLimit("p", 3600, 1, false)
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierNotify})
	r.Route(context.Background(), "p", events.Decision{KillID: 2, Tier: events.TierNotify})

	require.Len(t, provider.all(), 1, "burst of 1 allows only the first notify through")
	require.Equal(t, int64(1), r.Stats("p").RateLimited.Load())
	require.Equal(t, int64(1), r.Stats("p").Notified.Load())
}

func TestRouteAlwaysNotifyBypassesExhaustedBucket(t *testing.T) {
	p := profileWithRateLimit("p", 3600, 1, true)
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	d1 := events.Decision{KillID: 1, Tier: events.TierNotify}
	d2 := events.Decision{KillID: 2, Tier: events.TierNotify, RuleMatches: []events.RuleMatch{
		{Name: "war-target", Kind: "always_notify", Matched: true},
	}}

	r.Route(context.Background(), "p", d1)
	r.Route(context.Background(), "p", d2)

	require.Len(t, provider.all(), 2, "always_notify match bypasses the exhausted bucket when configured")
}

func TestRouteBatchesDigestTierAndFlushesOnCap(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	p.RateLimit.DigestWindowSeconds = 3600 // long enough that only the cap should trigger flush
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)
	r.routes["p"].digestCap = 3

	for i := int64(1); i <= 3; i++ {
		r.Route(context.Background(), "p", events.Decision{KillID: i, Tier: events.TierDigest, Interest: float64(i) / 10})
	}

	sent := provider.all()
	require.Len(t, sent, 1)
	require.Equal(t, []int64{1, 2, 3}, sent[0].DigestMembers)
}

func TestRouteDigestFlushesOnTimer(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	p.RateLimit.DigestWindowSeconds = 1
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierDigest})

	require.Eventually(t, func() bool {
		return len(provider.all()) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFlushDigestsForcesOutPendingBatch(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	p.RateLimit.DigestWindowSeconds = 3600
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierDigest})
	r.FlushDigests(context.Background())

	require.Len(t, provider.all(), 1)
}

func TestRouteTracksEnrichmentFailedCounter(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	provider := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierLog, EnrichmentFailed: true})

	require.Equal(t, int64(1), r.Stats("p").EnrichmentFailed.Load())
}

func TestRouteUnregisteredProfileIsNoop(t *testing.T) {
	r := NewRouter(nil)
	require.NotPanics(t, func() {
		r.Route(context.Background(), "missing", events.Decision{KillID: 1, Tier: events.TierNotify})
	})
}

func TestRoutePartialDeliveryIsCounted(t *testing.T) {
	p := profileWithRateLimit("p", 10, 10, false)
	ok := &recordingProvider{}
	r := NewRouter(nil)
	r.Register(p, ok, failProvider{})

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierLog})

	require.Len(t, ok.all(), 1)
	require.Equal(t, int64(1), r.Stats("p").PartialDeliveries.Load())
}

func TestRouteIncrementsMetricsByTierAndRateLimit(t *testing.T) {
	m := metrics.New()
	p := profileWithRateLimit("p", 3600, 1, false)
	provider := &recordingProvider{}
	r := NewRouter(m)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierNotify})
	r.Route(context.Background(), "p", events.Decision{KillID: 2, Tier: events.TierNotify})

	// Both decisions are counted under their notify tier; the second is also
	// counted as rate limited.
	require.Equal(t, float64(2), testutil.ToFloat64(m.DecisionsByTier.WithLabelValues("p", string(events.TierNotify))))
	require.Equal(t, float64(1), testutil.ToFloat64(m.RateLimited.WithLabelValues("p")))
}

func TestFlushDigestsIncrementsDigestFlushMetric(t *testing.T) {
	m := metrics.New()
	p := profileWithRateLimit("p", 10, 10, false)
	p.RateLimit.DigestWindowSeconds = 3600
	provider := &recordingProvider{}
	r := NewRouter(m)
	r.Register(p, provider)

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierDigest})
	r.FlushDigests(context.Background())

	require.Equal(t, float64(1), testutil.ToFloat64(m.DigestFlushes.WithLabelValues("p")))
}

func TestRoutePartialDeliveryIncrementsMetric(t *testing.T) {
	m := metrics.New()
	p := profileWithRateLimit("p", 10, 10, false)
	ok := &recordingProvider{}
	r := NewRouter(m)
	r.Register(p, ok, failProvider{})

	r.Route(context.Background(), "p", events.Decision{KillID: 1, Tier: events.TierLog})

	require.Equal(t, float64(1), testutil.ToFloat64(m.PartialDeliveries.WithLabelValues("p")))
}

type failProvider struct{}

func (failProvider) Name() string { return "fail" }
func (failProvider) Send(ctx context.Context, profile string, d events.Decision) error {
	return context.DeadlineExceeded
}
