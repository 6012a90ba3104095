package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interest"
	"killwatch/internal/interestmap"
	"killwatch/internal/signals"
	"killwatch/pkg/eveclient"

	"github.com/stretchr/testify/require"
)

type constProvider struct {
	category        string
	value           float64
	prefetchCapable bool
}

func (p constProvider) Category() string      { return p.category }
func (p constProvider) PrefetchCapable() bool { return p.prefetchCapable }
func (p constProvider) Score(in signals.Input) events.SignalScore {
	return events.SignalScore{Category: p.category, Score: p.value, Match: p.value >= 0.3}
}

type fakeSource struct {
	events []*events.Event
}

func (s *fakeSource) Run(ctx context.Context, handle func(*events.Event)) error {
	for _, ev := range s.events {
		handle(ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingRouter struct {
	mu        sync.Mutex
	decisions []events.Decision
}

func (r *recordingRouter) Route(ctx context.Context, profile string, d events.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func (r *recordingRouter) all() []events.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Decision, len(r.decisions))
	copy(out, r.decisions)
	return out
}

type staticMapSource struct{}

func (staticMapSource) Load() *interestmap.Map { return &interestmap.Map{} }

func baseEvent() *events.Event {
	return &events.Event{
		KillID:    42,
		Timestamp: time.Now(),
		SystemID:  1,
		Victim:    events.Combatant{CorporationID: 100, ShipTypeID: 587},
		Attackers: []events.Combatant{{CorporationID: 200, FinalBlow: true}},
	}
}

func bypassProfile(name string, value float64) *interest.Profile {
	return &interest.Profile{
		Name:         name,
		Blend:        interest.BlendMax,
		PrefetchMode: interest.PrefetchBypass,
		Thresholds:   interest.Thresholds{Digest: 0.1, Notify: 0.2, Priority: 0.9},
		Categories: []interest.CategoryConfig{
			{Name: "value", Weight: 1.0, Providers: []signals.Provider{
				constProvider{category: "value", value: value, prefetchCapable: true},
			}},
		},
	}
}

func strictProfile(name string, value float64) *interest.Profile {
	return &interest.Profile{
		Name:         name,
		Blend:        interest.BlendWeighted,
		PrefetchMode: interest.PrefetchStrict,
		Thresholds:   interest.Thresholds{Digest: 0.1, Notify: 0.95, Priority: 0.99},
		Categories: []interest.CategoryConfig{
			{Name: "value", Weight: 1.0, Providers: []signals.Provider{
				constProvider{category: "value", value: value, prefetchCapable: true},
			}},
		},
	}
}

func TestLoopDedupesRepeatedKillID(t *testing.T) {
	ev := baseEvent()
	router := &recordingRouter{}
	loop, err := New(Config{
		Source:   &fakeSource{events: []*events.Event{ev, ev}},
		Activity: activity.NewCache(nil),
		Map:      staticMapSource{},
		Enrich:   eveclient.NewFake(),
		Router:   router,
		Profiles: []*interest.Profile{bypassProfile("p", 0.05)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	require.Len(t, router.all(), 1, "second occurrence of the same kill id must be dropped by dedup")
}

func TestLoopRecordsActivityRegardlessOfDecision(t *testing.T) {
	ev := baseEvent()
	cache := activity.NewCache(nil)
	loop, err := New(Config{
		Source:   &fakeSource{events: []*events.Event{ev}},
		Activity: cache,
		Map:      staticMapSource{},
		Enrich:   eveclient.NewFake(),
		Router:   &recordingRouter{},
		Profiles: []*interest.Profile{bypassProfile("p", 0.0)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	recent := cache.Recent(ev.SystemID, 60)
	require.Equal(t, 1, recent.ShipKills)
}

func TestLoopFansOutToEveryProfile(t *testing.T) {
	ev := baseEvent()
	router := &recordingRouter{}
	loop, err := New(Config{
		Source:   &fakeSource{events: []*events.Event{ev}},
		Activity: activity.NewCache(nil),
		Map:      staticMapSource{},
		Enrich:   eveclient.NewFake(),
		Router:   router,
		Profiles: []*interest.Profile{bypassProfile("alpha", 0.05), bypassProfile("beta", 0.05)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	decisions := router.all()
	require.Len(t, decisions, 2)
	seen := map[string]bool{}
	for _, d := range decisions {
		seen[d.Profile] = true
	}
	require.True(t, seen["alpha"])
	require.True(t, seen["beta"])
}

func TestLoopBypassModeAlwaysFetches(t *testing.T) {
	ev := baseEvent()
	router := &recordingRouter{}
	fake := eveclient.NewFake()
	fake.KillDetails[ev.KillID] = eveclient.KillDetail{VictimName: "Victim", ShipName: "Rifter"}

	loop, err := New(Config{
		Source:   &fakeSource{events: []*events.Event{ev}},
		Activity: activity.NewCache(nil),
		Map:      staticMapSource{},
		Enrich:   fake,
		Router:   router,
		Profiles: []*interest.Profile{bypassProfile("p", 0.05)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	decisions := router.all()
	require.Len(t, decisions, 1)
	require.True(t, decisions[0].FetchPerformed)
	require.Equal(t, 1, fake.CallCounts["GetKillDetails"])
}

func TestLoopStrictModeSkipsFetchBelowThreshold(t *testing.T) {
	ev := baseEvent()
	router := &recordingRouter{}
	fake := eveclient.NewFake()

	loop, err := New(Config{
		Source:   &fakeSource{events: []*events.Event{ev}},
		Activity: activity.NewCache(nil),
		Map:      staticMapSource{},
		Enrich:   fake,
		Router:   router,
		Profiles: []*interest.Profile{strictProfile("p", 0.1)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	decisions := router.all()
	require.Len(t, decisions, 1)
	require.False(t, decisions[0].FetchPerformed)
	require.Equal(t, 0, fake.CallCounts["GetKillDetails"])
}

func TestLoopEnrichmentFailureFloorsAtLogTier(t *testing.T) {
	ev := baseEvent()
	router := &recordingRouter{}
	fake := &failingEnrich{}

	loop, err := New(Config{
		Source:   &fakeSource{events: []*events.Event{ev}},
		Activity: activity.NewCache(nil),
		Map:      staticMapSource{},
		Enrich:   fake,
		Router:   router,
		Profiles: []*interest.Profile{bypassProfile("p", 0.0)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	decisions := router.all()
	require.Len(t, decisions, 1)
	require.True(t, decisions[0].EnrichmentFailed)
	require.True(t, decisions[0].Tier.AtLeast(events.TierLog))
}

type failingEnrich struct{}

func (failingEnrich) ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return nil, nil
}
func (failingEnrich) GetCharacterContext(ctx context.Context, characterID int64) (eveclient.CharacterContext, error) {
	return eveclient.CharacterContext{}, nil
}
func (failingEnrich) GetKillDetails(ctx context.Context, killID int64) (eveclient.KillDetail, error) {
	return eveclient.KillDetail{}, context.DeadlineExceeded
}
func (failingEnrich) GetPrices(ctx context.Context, typeIDs []int64) (map[int64]float64, error) {
	return nil, nil
}
