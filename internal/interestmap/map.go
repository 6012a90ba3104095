// Package interestmap implements the Interest Map: a per-profile bundle of
// precomputed artifacts (geographic scores, route membership, asset
// systems, entity watchlist groups) that signal providers consult instead
// of recomputing graph-derived facts on every event. Republishing follows
// the teacher's copy-on-write discipline for config-driven state: a rebuild
// produces a brand new *Map and swaps an atomic.Pointer, so in-flight
// evaluations keep the version they started with.
package interestmap

import (
	"fmt"
	"sync/atomic"

	"killwatch/internal/events"
	"killwatch/internal/topology"
)

// AssetKind classifies an asset system.
type AssetKind string

const (
	AssetStructure AssetKind = "structure"
	AssetOffice    AssetKind = "office"
)

// RoleWeights are the per-role multipliers an entity group applies in
// politics scoring (see internal/signals' politics provider).
type RoleWeights struct {
	Victim     float64
	FinalBlow  float64
	Attacker   float64
	SoloModifier float64
}

// EntityGroup is a named watchlist of corporations/alliances/factions,
// together with the role weights a politics- or war-target provider
// applies when a killmail party matches it.
type EntityGroup struct {
	Name         string
	Corporations map[int64]struct{}
	Alliances    map[int64]struct{}
	Factions     map[int64]struct{}
	Weights      RoleWeights
}

// Matches reports whether c (a victim, final-blow attacker, or ordinary
// attacker) belongs to this group by corp, alliance, or faction id.
func (g EntityGroup) Matches(c events.Combatant) bool {
	if c.CorporationID != 0 {
		if _, ok := g.Corporations[c.CorporationID]; ok {
			return true
		}
	}
	if c.AllianceID != nil {
		if _, ok := g.Alliances[*c.AllianceID]; ok {
			return true
		}
	}
	if c.FactionID != nil {
		if _, ok := g.Factions[*c.FactionID]; ok {
			return true
		}
	}
	return false
}

// Route is a named waypoint chain with its BFS-expanded system membership
// and an optional ship-class filter (empty means "match any ship").
type Route struct {
	Name           string
	Systems        map[int64]struct{}
	ShipTypeFilter map[int64]struct{} // empty = no filter
}

// Map is one immutable snapshot of an Interest Map. Construct via Build;
// never mutate a published Map in place.
type Map struct {
	ProfileVersion   int
	TopologyVersion  int
	GeographicScores map[int64]float64
	Routes           map[string]Route
	AssetSystems     map[int64]AssetKind
	EntityGroups     map[string]EntityGroup
}

// GeographicScore returns the precomputed score for a system, 0 if absent.
func (m *Map) GeographicScore(systemID int64) float64 {
	return m.GeographicScores[systemID]
}

// InAnyRoute reports whether systemID is a member of any configured route,
// and if shipTypeID is nonzero, that the route's filter (if any) admits it.
func (m *Map) InAnyRoute(systemID int64, shipTypeID int64) bool {
	for _, route := range m.Routes {
		if _, ok := route.Systems[systemID]; !ok {
			continue
		}
		if len(route.ShipTypeFilter) == 0 {
			return true
		}
		if shipTypeID == 0 {
			continue // filter present but ship unknown pre-fetch: this route can't confirm a match
		}
		if _, ok := route.ShipTypeFilter[shipTypeID]; ok {
			return true
		}
	}
	return false
}

// AssetKindAt returns the asset classification for a system, "" if none.
func (m *Map) AssetKindAt(systemID int64) AssetKind {
	return m.AssetSystems[systemID]
}

// Validate enforces the graph-membership invariant: every system id
// referenced anywhere in the map must exist in the topology graph.
func (m *Map) Validate(g *topology.Graph) error {
	for id := range m.GeographicScores {
		if _, ok := g.Attrs(id); !ok {
			return fmt.Errorf("interestmap: geographic score references unknown system %d", id)
		}
	}
	for _, route := range m.Routes {
		for id := range route.Systems {
			if _, ok := g.Attrs(id); !ok {
				return fmt.Errorf("interestmap: route %q references unknown system %d", route.Name, id)
			}
		}
	}
	for id := range m.AssetSystems {
		if _, ok := g.Attrs(id); !ok {
			return fmt.Errorf("interestmap: asset system %d not in topology", id)
		}
	}
	return nil
}

// Publisher holds the currently-live Map behind an atomic pointer and
// exposes a lock-free read path; rebuilds publish a replacement, never
// mutate the value in place.
type Publisher struct {
	current atomic.Pointer[Map]
}

// NewPublisher creates a Publisher initially holding m.
func NewPublisher(m *Map) *Publisher {
	p := &Publisher{}
	p.current.Store(m)
	return p
}

// Load returns the currently published Map.
func (p *Publisher) Load() *Map {
	return p.current.Load()
}

// Publish atomically swaps in a new Map.
func (p *Publisher) Publish(m *Map) {
	p.current.Store(m)
}
