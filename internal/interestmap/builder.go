package interestmap

import (
	"fmt"

	"killwatch/internal/topology"
)

// GeoSpec is the geographic-score portion of a profile, expressed as raw
// per-system and per-region overrides before region scores are expanded
// down to their member systems.
type GeoSpec struct {
	SystemScores map[int64]float64
	RegionScores map[int64]float64
}

// RouteSpec names a route by its waypoint chain; Build expands the chain
// into the full set of systems along the shortest path between consecutive
// waypoints.
type RouteSpec struct {
	Name           string
	Waypoints      []int64
	ShipTypeFilter []int64
}

// AssetSpec lists systems holding player structures or corp offices.
type AssetSpec struct {
	Structures []int64
	Offices    []int64
}

// EntitySpec is one named watchlist entry from the profile.
type EntitySpec struct {
	Name         string
	Corporations []int64
	Alliances    []int64
	Factions     []int64
	Weights      RoleWeights
}

// BuildInput bundles everything a profile contributes toward an Interest
// Map, independent of how the profile was loaded (YAML, flags, tests).
type BuildInput struct {
	Geo      GeoSpec
	Routes   []RouteSpec
	Assets   AssetSpec
	Entities []EntitySpec
}

// Build compiles a BuildInput against a topology snapshot into a new,
// immutable Map. Region scores are expanded to every system in the region
// that doesn't already carry an explicit per-system override. Route
// waypoints are expanded via the graph's shortest path between consecutive
// stops, so a route naming 3 waypoints can cover a chain of many systems.
func Build(g *topology.Graph, in BuildInput, profileVersion, topologyVersion int) (*Map, error) {
	geo := make(map[int64]float64, len(in.Geo.SystemScores))
	for regionID, score := range in.Geo.RegionScores {
		for systemID := range g.RegionSystems(regionID) {
			geo[systemID] = score
		}
	}
	for systemID, score := range in.Geo.SystemScores {
		geo[systemID] = score
	}

	routes := make(map[string]Route, len(in.Routes))
	for _, rs := range in.Routes {
		if len(rs.Waypoints) == 0 {
			continue
		}
		systems := map[int64]struct{}{rs.Waypoints[0]: {}}
		for i := 0; i+1 < len(rs.Waypoints); i++ {
			leg := g.Path(rs.Waypoints[i], rs.Waypoints[i+1])
			if leg == nil {
				return nil, fmt.Errorf("interestmap: route %q has no path between waypoints %d and %d",
					rs.Name, rs.Waypoints[i], rs.Waypoints[i+1])
			}
			for _, id := range leg {
				systems[id] = struct{}{}
			}
		}
		var filter map[int64]struct{}
		if len(rs.ShipTypeFilter) > 0 {
			filter = make(map[int64]struct{}, len(rs.ShipTypeFilter))
			for _, t := range rs.ShipTypeFilter {
				filter[t] = struct{}{}
			}
		}
		routes[rs.Name] = Route{Name: rs.Name, Systems: systems, ShipTypeFilter: filter}
	}

	assets := make(map[int64]AssetKind, len(in.Assets.Structures)+len(in.Assets.Offices))
	for _, id := range in.Assets.Structures {
		assets[id] = AssetStructure
	}
	for _, id := range in.Assets.Offices {
		assets[id] = AssetOffice
	}

	groups := make(map[string]EntityGroup, len(in.Entities))
	for _, es := range in.Entities {
		groups[es.Name] = EntityGroup{
			Name:         es.Name,
			Corporations: toSet(es.Corporations),
			Alliances:    toSet(es.Alliances),
			Factions:     toSet(es.Factions),
			Weights:      es.Weights,
		}
	}

	m := &Map{
		ProfileVersion:   profileVersion,
		TopologyVersion:  topologyVersion,
		GeographicScores: geo,
		Routes:           routes,
		AssetSystems:     assets,
		EntityGroups:     groups,
	}
	if err := m.Validate(g); err != nil {
		return nil, err
	}
	return m, nil
}

func toSet(ids []int64) map[int64]struct{} {
	if len(ids) == 0 {
		return nil
	}
	s := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
