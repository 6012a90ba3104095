// Package explain implements C10: side-effect-free replay of the Interest
// Engine for operator debugging (explain) and offline batch analysis
// (simulate). Neither function delivers, mutates the Activity Cache, or
// records dedup state — every dependency is passed in explicitly, the way
// the teacher threads context.Context and explicit service references
// rather than touching package-level state.
package explain

import (
	"context"

	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interest"
	"killwatch/internal/interestmap"
	"killwatch/internal/prefetch"
	"killwatch/internal/rules"
	"killwatch/internal/topology"
	"killwatch/pkg/eveclient"
)

// Dependencies bundles the read-only state an Explain/Simulate call needs.
// Activity is read but never written: both entry points take a snapshot
// reference and must not call Record.
type Dependencies struct {
	Map      *interestmap.Map
	Activity *activity.Cache
	Graph    *topology.Graph
	Enrich   eveclient.Client
}

// SignalDetail is one signal provider's contribution to a category, named
// explicitly so Explain's output doesn't require the caller to cross
// reference Components by position.
type SignalDetail struct {
	Category   string
	Score      float64
	Components map[string]float64
}

// Explanation is explain(profile, kill_id)'s full instrumentation per
// spec §4.9: every signal's score, every rule's result, the prefetch
// decision and the final tier. It carries no rate-limit state.
type Explanation struct {
	PreFetch   events.Decision
	PostFetch  *events.Decision // nil if the prefetch gate declined to fetch
	Prefetch   prefetch.Decision
	RuleMatches []events.RuleMatch
	Signals    []SignalDetail
}

// Explain re-runs the full pipeline for one event against one profile,
// including a real enrichment fetch if the gate calls for it, but performs
// no delivery and no Activity Cache mutation.
func Explain(ctx context.Context, p *interest.Profile, ev *events.Event, deps Dependencies) Explanation {
	preInput := interest.EvalInput{Event: ev, Map: deps.Map, Activity: deps.Activity, Graph: deps.Graph}
	preDecision := interest.Evaluate(p, preInput)

	categoryScoreMap := make(map[string]events.SignalScore, len(preDecision.SignalScores))
	for _, cs := range preDecision.SignalScores {
		categoryScoreMap[cs.Category] = cs
	}
	ruleCtx := &rules.Context{Event: ev, Map: deps.Map, Activity: deps.Activity, Graph: deps.Graph, CategoryScores: categoryScoreMap}
	gateDecision := prefetch.Evaluate(p, ruleCtx, preDecision.SignalScores, prefetch.Mode(p.PrefetchMode))

	exp := Explanation{
		PreFetch:    preDecision,
		Prefetch:    gateDecision,
		RuleMatches: preDecision.RuleMatches,
		Signals:     signalDetails(preDecision.SignalScores),
	}

	if gateDecision.Fetch && deps.Enrich != nil {
		enriched, err := eveclient.Enrich(ctx, deps.Enrich, ev)
		if err == nil {
			postInput := interest.EvalInput{Event: ev, Enriched: enriched, Map: deps.Map, Activity: deps.Activity, Graph: deps.Graph}
			post := interest.Evaluate(p, postInput)
			exp.PostFetch = &post
			exp.Signals = signalDetails(post.SignalScores)
			exp.RuleMatches = post.RuleMatches
		}
	}

	return exp
}

func signalDetails(scores []events.SignalScore) []SignalDetail {
	out := make([]SignalDetail, len(scores))
	for i, s := range scores {
		out[i] = SignalDetail{Category: s.Category, Score: s.Score, Components: s.Components}
	}
	return out
}

// SimulateResult is simulate(profile, time_range)'s aggregate report.
type SimulateResult struct {
	EventCount      int
	TierCounts      map[events.Tier]int
	NotifyRate      float64 // fraction reaching notify or priority
	CategoryAverage map[string]float64
}

// Simulate runs the pipeline against a captured replay of raw events and
// reports aggregate statistics. It never fetches enrichment (the replay is
// historical, so a live fetch would be neither side-effect-free nor
// reproducible) and never touches the Activity Cache beyond reading the
// snapshot already present in deps.
func Simulate(p *interest.Profile, evs []*events.Event, deps Dependencies) SimulateResult {
	result := SimulateResult{
		TierCounts:      make(map[events.Tier]int),
		CategoryAverage: make(map[string]float64),
	}
	if len(evs) == 0 {
		return result
	}

	categorySums := make(map[string]float64)
	categoryCounts := make(map[string]int)
	var notifyOrHigher int

	for _, ev := range evs {
		in := interest.EvalInput{Event: ev, Map: deps.Map, Activity: deps.Activity, Graph: deps.Graph}
		d := interest.Evaluate(p, in)
		result.TierCounts[d.Tier]++
		if d.Tier.AtLeast(events.TierNotify) {
			notifyOrHigher++
		}
		for _, s := range d.SignalScores {
			categorySums[s.Category] += s.Score
			categoryCounts[s.Category]++
		}
	}

	result.EventCount = len(evs)
	result.NotifyRate = float64(notifyOrHigher) / float64(len(evs))
	for cat, sum := range categorySums {
		result.CategoryAverage[cat] = sum / float64(categoryCounts[cat])
	}
	return result
}
