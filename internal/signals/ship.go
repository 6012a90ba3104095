package signals

import (
	"context"

	"killwatch/internal/events"
	"killwatch/pkg/catalog"
)

// capitalGroupIDs are the well-known SDE group ids for capital and
// supercapital hulls (dreadnought, carrier, force auxiliary, supercarrier,
// titan). Treated as a fixed fact, the same way internal/activity hardcodes
// the two capsule type ids rather than looking them up.
var capitalGroupIDs = map[int64]struct{}{
	485:  {}, // Dreadnought
	547:  {}, // Carrier
	1538: {}, // Force Auxiliary
	659:  {}, // Supercarrier
	30:   {}, // Titan
}

// ShipConfig configures the ship provider: explicit prefer/avoid weights
// per victim ship type id, plus an optional additive boost for capital
// hulls (the groups in capitalGroupIDs).
type ShipConfig struct {
	Prefer       map[int64]float64
	Avoid        map[int64]struct{}
	CapitalBoost float64
}

type shipProvider struct {
	cfg     ShipConfig
	catalog catalog.DB
}

// NewShipProvider builds the ship signal. catalog is used to classify a
// victim hull as capital-class via its SDE group id.
func NewShipProvider(cfg ShipConfig, cat catalog.DB) Provider {
	return &shipProvider{cfg: cfg, catalog: cat}
}

func (p *shipProvider) Category() string    { return CategoryShip }
func (p *shipProvider) PrefetchCapable() bool { return true }

func (p *shipProvider) Score(in Input) events.SignalScore {
	typeID := in.Event.Victim.ShipTypeID
	components := map[string]float64{}

	if _, avoided := p.cfg.Avoid[typeID]; avoided {
		return score(CategoryShip, 0, components)
	}

	raw := 0.0
	if v, ok := p.cfg.Prefer[typeID]; ok {
		raw = v
		components["prefer_match"] = v
	}

	if p.cfg.CapitalBoost > 0 {
		if t, ok := p.catalog.Type(context.Background(), typeID); ok {
			if _, isCapital := capitalGroupIDs[t.GroupID]; isCapital {
				raw += p.cfg.CapitalBoost
				components["capital_boost"] = p.cfg.CapitalBoost
			}
		}
	}

	return score(CategoryShip, raw, components)
}
