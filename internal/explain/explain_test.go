package explain

import (
	"context"
	"testing"
	"time"

	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interest"
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

func baseEvent() *events.Event {
	return &events.Event{
		KillID:    1,
		Timestamp: time.Now(),
		SystemID:  1,
		Victim:    events.Combatant{CorporationID: 100, ShipTypeID: 587},
		Attackers: []events.Combatant{{CorporationID: 200, FinalBlow: true}},
	}
}

func bypassProfile(value float64) *interest.Profile {
	return &interest.Profile{
		Name:         "p",
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

func strictProfile(value float64) *interest.Profile {
	return &interest.Profile{
		Name:         "p",
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

func TestExplainSkipsFetchWhenGateDeclines(t *testing.T) {
	p := strictProfile(0.1)
	exp := Explain(context.Background(), p, baseEvent(), Dependencies{Activity: activity.NewCache(nil), Enrich: eveclient.NewFake()})

	require.False(t, exp.Prefetch.Fetch)
	require.Nil(t, exp.PostFetch)
	require.Equal(t, int64(1), exp.PreFetch.KillID)
}

func TestExplainIncludesPostFetchDecisionWhenGateFetches(t *testing.T) {
	p := bypassProfile(0.05)
	fake := eveclient.NewFake()
	fake.KillDetails[1] = eveclient.KillDetail{VictimName: "Victim", ShipName: "Rifter"}

	exp := Explain(context.Background(), p, baseEvent(), Dependencies{Activity: activity.NewCache(nil), Enrich: fake})

	require.True(t, exp.Prefetch.Fetch)
	require.NotNil(t, exp.PostFetch)
	require.True(t, exp.PostFetch.FetchPerformed)
}

func TestExplainNeverMutatesActivityCache(t *testing.T) {
	cache := activity.NewCache(nil)
	p := bypassProfile(0.05)

	Explain(context.Background(), p, baseEvent(), Dependencies{Activity: cache, Enrich: eveclient.NewFake()})

	recent := cache.Recent(1, 60)
	require.Equal(t, 0, recent.ShipKills, "explain must never record into the Activity Cache")
}

func TestSimulateReportsTierDistributionAndNotifyRate(t *testing.T) {
	p := bypassProfile(0.05) // below notify threshold of 0.2
	notifyP := bypassProfile(0.5)
	evs := []*events.Event{baseEvent(), baseEvent(), baseEvent()}

	result := Simulate(p, evs, Dependencies{Activity: activity.NewCache(nil)})
	require.Equal(t, 3, result.EventCount)
	require.InDelta(t, 0.0, result.NotifyRate, 1e-9)

	resultNotify := Simulate(notifyP, evs, Dependencies{Activity: activity.NewCache(nil)})
	require.InDelta(t, 1.0, resultNotify.NotifyRate, 1e-9)
}

func TestSimulateEmptyReplayReturnsZeroValue(t *testing.T) {
	p := bypassProfile(0.5)
	result := Simulate(p, nil, Dependencies{Activity: activity.NewCache(nil)})
	require.Equal(t, 0, result.EventCount)
}

func TestSimulateComputesPerCategoryAverage(t *testing.T) {
	p := bypassProfile(0.4)
	evs := []*events.Event{baseEvent(), baseEvent()}
	result := Simulate(p, evs, Dependencies{Activity: activity.NewCache(nil)})
	require.InDelta(t, 0.4, result.CategoryAverage["value"], 1e-9)
}
