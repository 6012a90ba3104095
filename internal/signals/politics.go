package signals

import (
	"killwatch/internal/events"
)

// PoliticsAggregation selects how per-group scores combine into the raw
// politics score, per spec §4.3.1.
type PoliticsAggregation string

const (
	AggregationRequireAll PoliticsAggregation = "require_all" // min(group_scores)
	AggregationRequireAny PoliticsAggregation = "require_any" // max(group_scores), the default
)

// PoliticsConfig names which InterestMap entity groups this provider
// consults and how their scores combine.
type PoliticsConfig struct {
	Groups      []string // keys into Map.EntityGroups
	Aggregation PoliticsAggregation
	Penalties   []float64 // e.g. known-alt discount, summed and subtracted

	// PrefetchOK is true when every group in Groups is known (at profile
	// build time, from the interest map's own entity weights) to carry
	// only Victim/SoloModifier weight, never Attacker or FinalBlow. The
	// provider can't determine this itself: it only sees group names here
	// and resolves their weights from Map at Score time, too late for
	// PrefetchCapable's no-argument contract.
	PrefetchOK bool
}

type politicsProvider struct{ cfg PoliticsConfig }

// NewPoliticsProvider builds the politics signal.
func NewPoliticsProvider(cfg PoliticsConfig) Provider {
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggregationRequireAny
	}
	return &politicsProvider{cfg: cfg}
}

func (p *politicsProvider) Category() string { return CategoryPolitics }

// PrefetchCapable reports whether every configured group weights only
// Victim/SoloModifier. Attacker matches come from the enriched attacker
// list (nil pre-fetch) and final-blow matches are scored with the same
// soloMod an enrichment-dependent attacker weight would use, so either one
// configured makes the raw score enrichment-dependent and the category
// cannot be evaluated pre-fetch.
func (p *politicsProvider) PrefetchCapable() bool {
	return p.cfg.PrefetchOK
}

func (p *politicsProvider) Score(in Input) events.SignalScore {
	groupScores := make([]float64, 0, len(p.cfg.Groups))
	components := make(map[string]float64, len(p.cfg.Groups))

	soloMod := 1.0
	finalBlow, hasFinalBlow := in.Event.FinalBlow()

	for _, name := range p.cfg.Groups {
		g, ok := in.Map.EntityGroups[name]
		if !ok {
			continue
		}
		if len(in.Event.Attackers) == 1 {
			soloMod = g.Weights.SoloModifier
		}

		victimMatch := 0.0
		if g.Matches(in.Event.Victim) {
			victimMatch = 1.0
		}
		finalBlowMatch := 0.0
		if hasFinalBlow && g.Matches(finalBlow) {
			finalBlowMatch = 1.0
		}
		attackerMatch := 0.0
		if in.Enriched != nil {
			for _, a := range in.Enriched.Attackers {
				if g.Matches(a) {
					attackerMatch = 1.0
					break
				}
			}
		}

		gs := maxf(
			victimMatch*g.Weights.Victim,
			finalBlowMatch*g.Weights.FinalBlow*soloMod,
			attackerMatch*g.Weights.Attacker*soloMod,
		)
		groupScores = append(groupScores, gs)
		components[name] = gs
	}

	raw := 0.0
	if len(groupScores) > 0 {
		switch p.cfg.Aggregation {
		case AggregationRequireAll:
			raw = minSlice(groupScores)
		default:
			raw = maxSlice(groupScores)
		}
	}

	penalty := 0.0
	for _, pen := range p.cfg.Penalties {
		penalty += pen
	}
	raw = clamp01(raw * clamp01(1-penalty))

	return score(CategoryPolitics, raw, components)
}

func maxf(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func maxSlice(vs []float64) float64 { return maxf(vs...) }

func minSlice(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
