package signals

import (
	"killwatch/internal/events"
)

// WarConfig names InterestMap entity groups treated as active war targets.
// The same EntityGroup.Weights used by politics controls how much each
// role contributes.
type WarConfig struct {
	Groups []string
}

type warProvider struct{ cfg WarConfig }

// NewWarProvider builds the war signal.
func NewWarProvider(cfg WarConfig) Provider {
	return &warProvider{cfg: cfg}
}

func (p *warProvider) Category() string { return CategoryWar }

// PrefetchCapable is false: confirming an attacker-side war target match
// needs the enrichment pass for the same reason politics does.
func (p *warProvider) PrefetchCapable() bool { return false }

func (p *warProvider) Score(in Input) events.SignalScore {
	best := 0.0
	components := make(map[string]float64, len(p.cfg.Groups))

	for _, name := range p.cfg.Groups {
		g, ok := in.Map.EntityGroups[name]
		if !ok {
			continue
		}
		gs := 0.0
		if g.Matches(in.Event.Victim) {
			gs = maxf(gs, g.Weights.Victim)
		}
		if in.Enriched != nil {
			for _, a := range in.Enriched.Attackers {
				if g.Matches(a) {
					gs = maxf(gs, g.Weights.Attacker)
				}
			}
		}
		components[name] = gs
		best = maxf(best, gs)
	}

	return score(CategoryWar, best, components)
}
