package interest

import (
	"math"

	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interestmap"
	"killwatch/internal/rules"
	"killwatch/internal/signals"
	"killwatch/internal/topology"
)

// EvalInput bundles what Evaluate needs for one (profile, event) pass.
type EvalInput struct {
	Event    *events.Event
	Enriched *events.EnrichedEvent // nil during the prefetch pass
	Map      *interestmap.Map
	Activity *activity.Cache
	Graph    *topology.Graph
}

// Evaluate runs the full Interest Calculator pass: score every enabled
// category, blend, apply escalation, run rules, and assign a tier.
func Evaluate(p *Profile, in EvalInput) events.Decision {
	scoreIn := signals.Input{Event: in.Event, Enriched: in.Enriched, Map: in.Map, Activity: in.Activity}

	categoryScores := make(map[string]events.SignalScore, len(p.Categories))
	var signalScores []events.SignalScore

	for _, cat := range p.EnabledCategories() {
		cs, ok := scoreCategory(cat, scoreIn)
		if !ok {
			continue // zero configured signals: excluded per spec §4.5
		}
		categoryScores[cat.Name] = cs
		signalScores = append(signalScores, cs)
	}

	interestValue := blend(p, categoryScores)

	var escalation *events.PatternEscalation
	if in.Activity != nil {
		if esc := in.Activity.Escalation(in.Event.SystemID); esc != nil {
			escalation = esc
			interestValue = math.Min(interestValue*esc.Multiplier, 1.0)
		}
	}

	ruleCtx := &rules.Context{
		Event:          in.Event,
		Enriched:       in.Enriched,
		CategoryScores: categoryScores,
		Map:            in.Map,
		Activity:       in.Activity,
		Graph:          in.Graph,
	}
	var verdict rules.Verdict
	if p.Rules != nil {
		verdict = p.Rules.Evaluate(ruleCtx)
	}

	tier := assignTier(p, interestValue, verdict)

	dominant := dominantCategory(categoryScores)

	return events.Decision{
		KillID:           in.Event.KillID,
		Profile:          p.Name,
		Tier:             tier,
		Interest:         interestValue,
		DominantCategory: dominant,
		SignalScores:     signalScores,
		RuleMatches:      verdict.Matches,
		Escalation:       escalation,
		FetchPerformed:   in.Enriched != nil,
	}
}

// scoreCategory runs every provider in a category and folds their scores
// into one category-level SignalScore per spec §4.5: mean of signal scores
// weighted by per-signal weight (default 1.0), then multiplied by the
// penalty factor.
func scoreCategory(cat CategoryConfig, in signals.Input) (events.SignalScore, bool) {
	if len(cat.Providers) == 0 {
		return events.SignalScore{}, false
	}

	var weightedSum, weightTotal float64
	components := make(map[string]float64, len(cat.Providers))
	prefetchCapable := true

	for _, provider := range cat.Providers {
		s := provider.Score(in)
		w := 1.0
		if cw, ok := cat.SignalWeights[s.Category]; ok {
			w = cw
		}
		weightedSum += w * s.Score
		weightTotal += w
		components[s.Category] = s.Score
		if !provider.PrefetchCapable() {
			prefetchCapable = false
		}
	}

	raw := 0.0
	if weightTotal > 0 {
		raw = weightedSum / weightTotal
	}

	penalty := 0.0
	for _, pen := range cat.Penalties {
		penalty += pen
	}
	raw = clamp01(raw * clamp01(1-penalty))

	return events.SignalScore{
		Category:        cat.Name,
		Score:           raw,
		Match:           raw >= signals.DefaultMatchThreshold,
		PrefetchCapable: prefetchCapable,
		Components:      components,
	}, true
}

// blend combines category scores per the profile's configured BlendMode.
func blend(p *Profile, categoryScores map[string]events.SignalScore) float64 {
	enabled := p.EnabledCategories()
	if len(enabled) == 0 {
		return 0
	}

	switch p.Blend {
	case BlendMax:
		max := 0.0
		for _, c := range enabled {
			if s, ok := categoryScores[c.Name]; ok && s.Score > max {
				max = s.Score
			}
		}
		return max

	case BlendLinear:
		var weightedSum, weightTotal float64
		for _, c := range enabled {
			s, ok := categoryScores[c.Name]
			if !ok {
				continue
			}
			weightedSum += c.Weight * s.Score
			weightTotal += c.Weight
		}
		if weightTotal == 0 {
			return 0
		}
		return weightedSum / weightTotal

	default: // BlendWeighted: RMS
		var weightedSumSq, weightTotal float64
		for _, c := range enabled {
			s, ok := categoryScores[c.Name]
			if !ok {
				continue
			}
			weightedSumSq += c.Weight * s.Score * s.Score
			weightTotal += c.Weight
		}
		if weightTotal == 0 {
			return 0
		}
		return math.Sqrt(weightedSumSq / weightTotal)
	}
}

// assignTier picks the highest tier whose threshold is met, with
// always_notify/priority rule verdicts forcing a floor per spec §4.5.
func assignTier(p *Profile, interestValue float64, v rules.Verdict) events.Tier {
	if v.Drop {
		return events.TierDrop
	}
	// A failed gate with a log threshold demotes to log; the interest
	// thresholds cannot lift it back above log.
	if v.Log {
		return events.TierLog
	}

	tier := events.TierDrop
	switch {
	case interestValue >= p.Thresholds.Priority:
		tier = events.TierPriority
	case interestValue >= p.Thresholds.Notify:
		tier = events.TierNotify
	case interestValue >= p.Thresholds.Digest:
		tier = events.TierDigest
	}

	if v.ForceNotify {
		floor := events.TierNotify
		if v.ForcePriority {
			floor = events.TierPriority
		}
		if floor.AtLeast(tier) {
			tier = floor
		}
	}

	return tier
}

func dominantCategory(categoryScores map[string]events.SignalScore) string {
	best := ""
	bestScore := -1.0
	for name, s := range categoryScores {
		if s.Score > bestScore {
			bestScore = s.Score
			best = name
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
