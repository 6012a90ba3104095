// Package activity implements the Activity Cache: a single-writer,
// many-reader rolling per-system event tracker feeding the activity signal
// and the pattern-escalation machinery. The concurrency discipline mirrors
// the teacher's zkillboard RedisQConsumer — one mutex-guarded struct
// advancing state on every event, with readers taking a consistent
// snapshot under the same lock rather than touching internal slices
// directly — and the historical-average persistence mirrors the teacher's
// Aggregator's period-bucketed timeseries writes.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"killwatch/internal/events"
)

const (
	windowMinutes   = 60
	evictionSilence = 4 * time.Hour
	minHistoryHours = 24.0
)

// bucket holds one minute's worth of counters for a system.
type bucket struct {
	minute        int64 // unix minute
	shipKills     int
	podKills      int
	npcKills      int
	attackerCorps map[int64]struct{}
}

// ActivitySlice is the read-only view handed to signal providers.
type ActivitySlice struct {
	SystemID          int64
	ShipKills         int
	PodKills          int
	NPCKills          int
	RepeatedAttackers map[int64]int // corp_id -> number of the slice's minute buckets the corp appeared in
}

// systemState is the per-system mutable record.
type systemState struct {
	buckets       []bucket // ring, length windowMinutes
	lastTouch     time.Time
	histHours     float64   // number of hours of observation contributing to histAvg
	histAvg       float64   // per-hour baseline
	histRolledAt  time.Time // last time the hourly rollup folded in a sample
	escalation    *events.PatternEscalation
	escCached     time.Time // when escalation was last (re)computed
}

// Repository persists and restores a system's historical average across
// eviction, the way the teacher's zkillboard Repository persists timeseries
// documents to MongoDB.
type Repository interface {
	SaveHistoricalAverage(ctx context.Context, systemID int64, avgPerHour float64, hours float64) error
	LoadHistoricalAverage(ctx context.Context, systemID int64) (avgPerHour float64, hours float64, found bool)
}

// Cache is the Activity Cache. Zero value is not usable; use NewCache.
type Cache struct {
	mu   sync.RWMutex
	data map[int64]*systemState

	repo Repository

	now func() time.Time
}

// NewCache creates an empty Activity Cache. repo may be nil, in which case
// eviction simply drops history instead of persisting it.
func NewCache(repo Repository) *Cache {
	return &Cache{
		data: make(map[int64]*systemState),
		repo: repo,
		now:  time.Now,
	}
}

func (c *Cache) state(systemID int64) *systemState {
	st, ok := c.data[systemID]
	if !ok {
		st = &systemState{buckets: make([]bucket, windowMinutes), histRolledAt: c.now()}
		if c.repo != nil {
			if avg, hours, found := c.repo.LoadHistoricalAverage(context.Background(), systemID); found {
				st.histAvg = avg
				st.histHours = hours
			}
		}
		c.data[systemID] = st
	}
	return st
}

func unixMinute(t time.Time) int64 { return t.Unix() / 60 }

// Record advances the system's current bucket and increments counters. It
// is O(1) and must be called exactly once per ingested event, unconditional
// of any profile's eventual decision.
func (c *Cache) Record(ev *events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(ev.SystemID)
	now := ev.Timestamp
	st.lastTouch = now

	idx := int(unixMinute(now) % windowMinutes)
	b := &st.buckets[idx]
	if b.minute != unixMinute(now) {
		// Bucket slot reused or fresh: reset it to the current minute.
		*b = bucket{minute: unixMinute(now), attackerCorps: make(map[int64]struct{})}
	}
	if b.attackerCorps == nil {
		b.attackerCorps = make(map[int64]struct{})
	}

	if ev.Victim.ShipTypeID != 0 {
		if ev.ZKB.NPC {
			b.npcKills++
		} else if isPod(ev.Victim.ShipTypeID) {
			b.podKills++
		} else {
			b.shipKills++
		}
	}
	for corp := range ev.AttackerCorporations() {
		b.attackerCorps[corp] = struct{}{}
	}

	c.rollupHistoricalAvg(st, now)

	// Invalidate cached escalation: new data may change the verdict.
	st.escalation = nil
}

// rollupHistoricalAvg folds the last hour's ship-kill count into the
// long-lived exponential average whenever at least an hour has elapsed
// since the previous rollup, accumulating observed hours toward the
// 24h minimum needed before HistoricalAvg reports a non-zero baseline.
func (c *Cache) rollupHistoricalAvg(st *systemState, now time.Time) {
	if st.histRolledAt.IsZero() {
		st.histRolledAt = now
		return
	}
	elapsed := now.Sub(st.histRolledAt)
	if elapsed < time.Hour {
		return
	}

	nowMin := unixMinute(now)
	sample := 0
	for m := nowMin - windowMinutes + 1; m <= nowMin; m++ {
		idx := int(((m % windowMinutes) + windowMinutes) % windowMinutes)
		b := st.buckets[idx]
		if b.minute == m {
			sample += b.shipKills
		}
	}

	const decay = 0.8 // weight given to prior history vs. the new hourly sample
	if st.histHours == 0 {
		st.histAvg = float64(sample)
	} else {
		st.histAvg = st.histAvg*decay + float64(sample)*(1-decay)
	}
	st.histHours += elapsed.Hours()
	st.histRolledAt = now
}

// isPod reports whether a ship type id is one of the two capsule hulls.
// These are well-known constants in the upstream universe and are treated
// as a fixed fact rather than a catalog lookup, the same way the teacher
// hardcodes a handful of universally-stable type ids.
func isPod(shipTypeID int64) bool {
	return shipTypeID == 670 || shipTypeID == 33328
}

// Recent returns counts over the last sinceMinutes (capped at the window
// size) plus the set of attacker corporations seen, with how many of the
// window's buckets they appeared in (used by gatecamp detection).
func (c *Cache) Recent(systemID int64, sinceMinutes int) ActivitySlice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.data[systemID]
	if !ok {
		return ActivitySlice{SystemID: systemID, RepeatedAttackers: map[int64]int{}}
	}

	if sinceMinutes > windowMinutes {
		sinceMinutes = windowMinutes
	}

	nowMin := unixMinute(c.now())
	slice := ActivitySlice{SystemID: systemID, RepeatedAttackers: map[int64]int{}}

	for m := nowMin - int64(sinceMinutes) + 1; m <= nowMin; m++ {
		idx := int(((m % windowMinutes) + windowMinutes) % windowMinutes)
		b := st.buckets[idx]
		if b.minute != m {
			continue
		}
		slice.ShipKills += b.shipKills
		slice.PodKills += b.podKills
		slice.NPCKills += b.npcKills
		for corp := range b.attackerCorps {
			slice.RepeatedAttackers[corp]++
		}
	}

	return slice
}

// HistoricalAvg returns the per-hour baseline for a system, or 0 if fewer
// than 24h of observation have accumulated.
func (c *Cache) HistoricalAvg(systemID int64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.data[systemID]
	if !ok || st.histHours < minHistoryHours {
		return 0
	}
	return st.histAvg
}

// Evict sweeps systems untouched for more than evictionSilence, persisting
// their historical average (if a repository is configured) and dropping
// them from memory. Intended to run on a periodic ticker, mirroring the
// teacher's background-task loop in BaseModule.
func (c *Cache) Evict(ctx context.Context) {
	c.mu.Lock()
	cutoff := c.now().Add(-evictionSilence)
	var toEvict []int64
	for id, st := range c.data {
		if st.lastTouch.Before(cutoff) {
			toEvict = append(toEvict, id)
		}
	}
	type pending struct {
		id    int64
		avg   float64
		hours float64
	}
	var persist []pending
	for _, id := range toEvict {
		st := c.data[id]
		persist = append(persist, pending{id: id, avg: st.histAvg, hours: st.histHours})
		delete(c.data, id)
	}
	c.mu.Unlock()

	if c.repo == nil {
		return
	}
	for _, p := range persist {
		if err := c.repo.SaveHistoricalAverage(ctx, p.id, p.avg, p.hours); err != nil {
			slog.Warn("activity: failed to persist historical average on eviction",
				"system_id", p.id, "error", err)
		}
	}
}
