package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"killwatch/internal/events"

	"github.com/stretchr/testify/require"
)

func TestToEventRejectsMissingAttackers(t *testing.T) {
	pkg := &wirePackage{KillID: 1}
	_, err := pkg.toEvent()
	require.Error(t, err)
}

func TestToEventConvertsWireShape(t *testing.T) {
	charID := int64(555)
	pkg := &wirePackage{
		KillID: 42,
		Killmail: wireKillmail{
			KillmailTime:  time.Unix(1000, 0),
			SolarSystemID: 30000142,
			Victim:        wireCombatant{CorporationID: 100, ShipTypeID: 587},
			Attackers: []wireCombatant{
				{CharacterID: &charID, CorporationID: 200, FinalBlow: true},
			},
		},
		ZKB: wireZKBHints{TotalValue: 1_500_000, NPC: false, Solo: true},
	}

	ev, err := pkg.toEvent()
	require.NoError(t, err)
	require.Equal(t, int64(42), ev.KillID)
	require.Equal(t, int64(30000142), ev.SystemID)
	require.Len(t, ev.Attackers, 1)
	require.True(t, ev.Attackers[0].FinalBlow)
	require.True(t, ev.ZKB.Solo)
}

func TestPollHandlesNullPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{Package: nil})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, QueueID: "q", TTWMin: 1, TTWMax: 10, NullThreshold: 5, HTTPTimeout: 5 * time.Second})
	ev, _, err := c.poll(context.Background())
	require.NoError(t, err)
	require.Nil(t, ev)
	require.Equal(t, int64(1), c.metrics.NullResponses.Load())
}

func TestPollParsesKillmailPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{Package: &wirePackage{
			KillID: 7,
			Killmail: wireKillmail{
				SolarSystemID: 1,
				Victim:        wireCombatant{CorporationID: 10, ShipTypeID: 587},
				Attackers:     []wireCombatant{{CorporationID: 20, FinalBlow: true}},
			},
		}})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, QueueID: "q", TTWMin: 1, TTWMax: 10, NullThreshold: 5, HTTPTimeout: 5 * time.Second})
	ev, _, err := c.poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, int64(7), ev.KillID)
	require.Equal(t, int64(0), c.metrics.EventsFound.Load(), "poll() itself doesn't bump EventsFound; only Run does")
}

func TestPollTreatsMalformedPackageAsSkip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{Package: &wirePackage{KillID: 9}}) // no attackers
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, QueueID: "q", TTWMin: 1, TTWMax: 10, NullThreshold: 5, HTTPTimeout: 5 * time.Second})
	ev, _, err := c.poll(context.Background())
	require.NoError(t, err, "malformed payloads are skipped, not propagated as poll errors")
	require.Nil(t, ev)
	require.Equal(t, int64(1), c.metrics.ParseErrors.Load())
}

func TestPollReturnsErrorOnRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, QueueID: "q", TTWMin: 1, TTWMax: 10, NullThreshold: 5, HTTPTimeout: 5 * time.Second})
	_, _, err := c.poll(context.Background())
	require.Error(t, err)
	require.Equal(t, StateRunning, c.State(), "state is restored to running after the throttle window")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{Package: nil})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, QueueID: "q", TTWMin: 1, TTWMax: 1, NullThreshold: 5, HTTPTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var received atomic.Int64
	err := c.Run(ctx, func(ev *events.Event) { received.Add(1) })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateStopped, c.State())
}

func TestAdaptiveTTWGrowsAfterNullThreshold(t *testing.T) {
	c := New(Config{TTWMin: 1, TTWMax: 10, NullThreshold: 2})
	require.Equal(t, 1, c.adaptiveTTW())

	c.nullStreak = 2
	require.Equal(t, 10, c.adaptiveTTW())
}
