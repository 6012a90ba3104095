package signals

import (
	"killwatch/internal/events"
)

// RoutesConfig configures the routes provider. HasShipFilter must reflect
// whether any route this provider will evaluate against carries a ship
// filter — it determines PrefetchCapable per spec §4.3's table.
type RoutesConfig struct {
	HasShipFilter bool
}

type routesProvider struct{ cfg RoutesConfig }

// NewRoutesProvider builds the routes signal.
func NewRoutesProvider(cfg RoutesConfig) Provider {
	return &routesProvider{cfg: cfg}
}

func (p *routesProvider) Category() string { return CategoryRoutes }

// PrefetchCapable is true only when no configured route carries a ship
// filter: an unfiltered route membership check needs only system_id, but a
// filtered one needs the enrichment pass to trust the victim's resolved
// ship class (see internal/interestmap.Map.InAnyRoute).
func (p *routesProvider) PrefetchCapable() bool { return !p.cfg.HasShipFilter }

func (p *routesProvider) Score(in Input) events.SignalScore {
	var shipTypeID int64
	if in.Enriched != nil {
		shipTypeID = in.Enriched.Victim.ShipTypeID
	}

	raw := 0.0
	if in.Map.InAnyRoute(in.Event.SystemID, shipTypeID) {
		raw = 1.0
	}

	return score(CategoryRoutes, raw, nil)
}
