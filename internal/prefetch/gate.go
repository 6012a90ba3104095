// Package prefetch implements the Prefetch Gate (C7): the decision of
// whether an enrichment fetch is worth its cost before the Interest
// Calculator's full, post-fetch pass runs. It consumes only what the
// Interest Calculator can produce from a raw Event — the prefetch-known
// subset of category scores — plus whatever prefetch-capable always_notify
// rules say.
package prefetch

import (
	"log/slog"
	"math"

	"killwatch/internal/events"
	"killwatch/internal/interest"
	"killwatch/internal/rules"
)

// Mode selects how aggressively the gate fetches. Mirrors
// interest.PrefetchMode; kept as its own type so this package doesn't need
// to import interest for anything but the category weight/score inputs.
type Mode string

const (
	ModeBypass       Mode = "bypass"
	ModeStrict       Mode = "strict"
	ModeConservative Mode = "conservative"
)

// minCategoriesForRMSMargin is the n the spec's adjusted-threshold formula
// treats as the floor (§4.6.1: max(1/sqrt(n), 1/sqrt(5))).
const minCategoriesForRMSMargin = 5

// Decision is the gate's verdict for one (profile, event) pair.
type Decision struct {
	Fetch         bool
	PrefetchScore float64 // linear mean over prefetch-known categories; 0 if none
	UpperBound    float64
	KnownCount    int
	ModeUsed      Mode // the mode actually applied, after any auto-derivation/coercion
	Coerced       bool // true if strict was coerced to conservative (no prefetch-known categories)
}

// Evaluate runs the gate against a raw Event. categoryScores must be the
// category-level SignalScores the Interest Calculator would produce from
// Event alone (Enriched left nil) — the caller runs that pre-fetch pass and
// hands the result here rather than this package re-deriving it.
func Evaluate(p *interest.Profile, ruleCtx *rules.Context, categoryScores []events.SignalScore, mode Mode) Decision {
	var knownWeightedSum, knownWeightTotal float64
	var unknownWeightedSum, unknownWeightTotal float64
	knownCount := 0

	for _, cs := range categoryScores {
		cat, ok := p.CategoryByName(cs.Category)
		if !ok || cat.Weight <= 0 {
			continue
		}
		if cs.PrefetchCapable {
			knownWeightedSum += cat.Weight * cs.Score
			knownWeightTotal += cat.Weight
			knownCount++
		} else {
			unknownWeightedSum += cat.Weight
			unknownWeightTotal += cat.Weight
		}
	}

	unknownAssumption := p.UnknownAssumption
	if unknownAssumption == 0 {
		unknownAssumption = 1.0
	}

	var prefetchScore float64
	prefetchScoreIsNull := knownWeightTotal == 0
	if !prefetchScoreIsNull {
		prefetchScore = knownWeightedSum / knownWeightTotal
	}

	upperBoundNumerator := knownWeightedSum + unknownWeightedSum*unknownAssumption
	upperBoundDenominator := knownWeightTotal + unknownWeightTotal
	upperBound := 0.0
	if upperBoundDenominator > 0 {
		upperBound = upperBoundNumerator / upperBoundDenominator
	}

	if p.Rules != nil && p.Rules.AlwaysNotifyPrefetchCapable(ruleCtx) {
		return Decision{
			Fetch:         true,
			PrefetchScore: prefetchScore,
			UpperBound:    upperBound,
			KnownCount:    knownCount,
			ModeUsed:      mode,
		}
	}

	effectiveMode := mode
	if effectiveMode == "" {
		effectiveMode = autoDerive(p, categoryScores)
	}

	d := Decision{PrefetchScore: prefetchScore, UpperBound: upperBound, KnownCount: knownCount}

	switch effectiveMode {
	case ModeBypass:
		d.Fetch = true
		d.ModeUsed = ModeBypass

	case ModeStrict:
		if knownCount == 0 {
			slog.Warn("prefetch: strict mode has no prefetch-known categories, coercing to conservative",
				"profile", p.Name)
			d.ModeUsed = ModeConservative
			d.Coerced = true
			d.Fetch = conservativeFetch(prefetchScore, upperBound, prefetchScoreIsNull, p.Thresholds.Notify)
			break
		}
		d.ModeUsed = ModeStrict
		threshold := adjustedThreshold(p.Thresholds.Notify, len(p.EnabledCategories()))
		d.Fetch = prefetchScore >= threshold

	default: // conservative
		d.ModeUsed = ModeConservative
		d.Fetch = conservativeFetch(prefetchScore, upperBound, prefetchScoreIsNull, p.Thresholds.Notify)
	}

	return d
}

func conservativeFetch(prefetchScore, upperBound float64, isNull bool, threshold float64) bool {
	if isNull {
		return true
	}
	return prefetchScore >= threshold || upperBound >= threshold
}

// adjustedThreshold implements spec §4.6.1's RMS safety margin for strict
// mode: prefetch aggregates with a linear mean while the post-fetch pass
// aggregates with RMS, and the two diverge with worst-case ratio sqrt(n).
func adjustedThreshold(postFetchThreshold float64, n int) float64 {
	margin := math.Max(1/math.Sqrt(float64(n)), 1/math.Sqrt(float64(minCategoriesForRMSMargin)))
	return postFetchThreshold * margin
}

// autoDerive implements spec §4.6 step 6: strict iff every configured
// category is prefetch-capable and no always_notify rule depends on
// post-fetch data; otherwise conservative.
func autoDerive(p *interest.Profile, categoryScores []events.SignalScore) Mode {
	for _, cs := range categoryScores {
		if !cs.PrefetchCapable {
			return ModeConservative
		}
	}
	if p.Rules != nil && !p.Rules.PrefetchCapable() {
		return ModeConservative
	}
	return ModeStrict
}
