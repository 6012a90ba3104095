// Package ingestion implements the Ingestion Loop (C8): the long-poll
// consumer that dedups, records activity unconditionally, and fans each
// event out across every configured profile's prefetch→fetch→score→deliver
// pipeline. Sequencing follows the teacher's RedisQConsumer/
// KillmailProcessor split (a consumer that hands events to a processor),
// generalized from one Mongo write path to N profile pipelines.
package ingestion

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interest"
	"killwatch/internal/interestmap"
	"killwatch/internal/metrics"
	"killwatch/internal/prefetch"
	"killwatch/internal/rules"
	"killwatch/internal/topology"
	"killwatch/pkg/eveclient"

	"golang.org/x/time/rate"
)

// Source is anything that can long-poll events and hand them to a handler,
// satisfied by *relay.Client.
type Source interface {
	Run(ctx context.Context, handle func(*events.Event)) error
}

// Router is the Delivery Router contract the loop hands finished
// Decisions to.
type Router interface {
	Route(ctx context.Context, profileName string, d events.Decision)
}

// MapSource supplies the current InterestMap snapshot, satisfied by
// *interestmap.Publisher.
type MapSource interface {
	Load() *interestmap.Map
}

// EventLog archives raw events for later explain/simulate replay. Archival
// failures are logged and otherwise ignored: losing a replay record must
// never block or fail live delivery.
type EventLog interface {
	Append(ctx context.Context, ev *events.Event) error
}

const dedupCacheSize = 10_000

// Config wires a Loop's dependencies.
type Config struct {
	Source       Source
	Activity     *activity.Cache
	Map          MapSource
	Graph        *topology.Graph
	Enrich       eveclient.Client
	Router       Router
	EventLog     EventLog // optional
	Metrics      *metrics.Metrics // optional
	Dedup        Dedup // optional, defaults to an in-process LRU
	Profiles     []*interest.Profile
	EnrichLimit  int // max concurrent enrichment fetches, default 8
	DrainTimeout time.Duration // default 30s
}

// Loop is the Ingestion Loop.
type Loop struct {
	source   Source
	cache    *activity.Cache
	mapSrc   MapSource
	graph    *topology.Graph
	enrich   eveclient.Client
	router   Router
	eventLog EventLog
	metrics  *metrics.Metrics
	profiles []*interest.Profile

	dedup Dedup
	sem   chan struct{}
	lim   *rate.Limiter

	drainTimeout time.Duration

	wg sync.WaitGroup
}

// New builds a Loop. Profiles are sorted by name once, up front, so that
// per-event fan-out order is deterministic as spec §4.7 requires.
func New(cfg Config) (*Loop, error) {
	dedup := cfg.Dedup
	if dedup == nil {
		d, err := newLRUDedup(dedupCacheSize)
		if err != nil {
			return nil, err
		}
		dedup = d
	}

	limit := cfg.EnrichLimit
	if limit == 0 {
		limit = 8
	}
	drain := cfg.DrainTimeout
	if drain == 0 {
		drain = 30 * time.Second
	}

	profiles := make([]*interest.Profile, len(cfg.Profiles))
	copy(profiles, cfg.Profiles)
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	return &Loop{
		source:       cfg.Source,
		cache:        cfg.Activity,
		mapSrc:       cfg.Map,
		graph:        cfg.Graph,
		enrich:       cfg.Enrich,
		router:       cfg.Router,
		eventLog:     cfg.EventLog,
		metrics:      cfg.Metrics,
		profiles:     profiles,
		dedup:        dedup,
		sem:          make(chan struct{}, limit),
		lim:          rate.NewLimiter(rate.Limit(limit), limit),
		drainTimeout: drain,
	}, nil
}

// Run blocks, consuming the source until ctx is cancelled, then drains
// in-flight per-event fan-out with a bounded deadline per spec §5's
// cancellation sequence.
func (l *Loop) Run(ctx context.Context) error {
	err := l.source.Run(ctx, func(ev *events.Event) {
		l.ingest(ctx, ev)
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(l.drainTimeout):
		slog.Warn("ingestion: drain timeout exceeded, aborting in-flight fan-out", "timeout", l.drainTimeout)
	}

	return err
}

// ingest runs one event through dedup, activity recording, and the
// per-profile pipeline. Profiles run concurrently (ordering across
// profiles is not guaranteed per spec §5) but each profile's own fetch
// path is sequential, preserving within-profile ordering as the caller
// invokes ingest once per event in receipt order.
func (l *Loop) ingest(ctx context.Context, ev *events.Event) {
	if l.metrics != nil {
		l.metrics.EventsIngested.Inc()
	}

	hit, err := l.dedup.SeenOrMark(ctx, ev.KillID)
	if err != nil {
		slog.Warn("ingestion: dedup check failed, treating as not seen", "kill_id", ev.KillID, "error", err)
	}
	if hit {
		if l.metrics != nil {
			l.metrics.EventsDeduped.Inc()
		}
		return
	}

	l.cache.Record(ev)

	if l.eventLog != nil {
		if err := l.eventLog.Append(ctx, ev); err != nil {
			slog.Warn("ingestion: event archival failed", "kill_id", ev.KillID, "error", err)
		}
	}

	mp := l.mapSrc.Load()

	var pwg sync.WaitGroup
	for _, p := range l.profiles {
		p := p
		pwg.Add(1)
		l.wg.Add(1)
		go func() {
			defer pwg.Done()
			defer l.wg.Done()
			l.runProfile(ctx, p, ev, mp)
		}()
	}
	pwg.Wait()
}

func (l *Loop) runProfile(ctx context.Context, p *interest.Profile, ev *events.Event, mp *interestmap.Map) {
	preInput := interest.EvalInput{Event: ev, Map: mp, Activity: l.cache, Graph: l.graph}
	preDecision := interest.Evaluate(p, preInput)

	categoryScoreMap := make(map[string]events.SignalScore, len(preDecision.SignalScores))
	for _, cs := range preDecision.SignalScores {
		categoryScoreMap[cs.Category] = cs
	}
	ruleCtx := &rules.Context{Event: ev, Map: mp, Activity: l.cache, Graph: l.graph, CategoryScores: categoryScoreMap}

	gate := prefetch.Evaluate(p, ruleCtx, preDecision.SignalScores, prefetch.Mode(p.PrefetchMode))

	final := preDecision
	if gate.Fetch {
		if l.metrics != nil {
			l.metrics.EnrichmentFetches.Inc()
		}
		enriched, err := l.fetchEnriched(ctx, ev)
		if err != nil {
			if l.metrics != nil {
				l.metrics.EnrichmentFailures.Inc()
			}
			slog.Warn("ingestion: enrichment fetch failed", "kill_id", ev.KillID, "profile", p.Name, "error", err)
			final.EnrichmentFailed = true
			if !final.Tier.AtLeast(events.TierLog) {
				final.Tier = events.TierLog
			}
		} else {
			postInput := interest.EvalInput{Event: ev, Enriched: enriched, Map: mp, Activity: l.cache, Graph: l.graph}
			final = interest.Evaluate(p, postInput)
		}
	}

	if l.router != nil {
		l.router.Route(ctx, p.Name, final)
	}
}

// fetchEnriched acquires a concurrency slot (bounded at EnrichLimit) and a
// rate-limiter token before calling the enrichment client, implementing
// spec §5's "concurrent up to a configured ceiling... per-endpoint token
// buckets".
func (l *Loop) fetchEnriched(ctx context.Context, ev *events.Event) (*events.EnrichedEvent, error) {
	select {
	case l.sem <- struct{}{}:
		defer func() { <-l.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}

	return eveclient.Enrich(ctx, l.enrich, ev)
}
