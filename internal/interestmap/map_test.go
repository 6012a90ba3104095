package interestmap

import (
	"context"
	"testing"

	"killwatch/internal/topology"
	"killwatch/pkg/catalog"

	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	systems []catalog.SystemAttrs
	links   []catalog.SystemLink
}

func (f *fakeDB) System(ctx context.Context, id int64) (catalog.SystemAttrs, bool) {
	for _, s := range f.systems {
		if s.SystemID == id {
			return s, true
		}
	}
	return catalog.SystemAttrs{}, false
}
func (f *fakeDB) AllSystems(ctx context.Context) ([]catalog.SystemAttrs, error) { return f.systems, nil }
func (f *fakeDB) AllLinks(ctx context.Context) ([]catalog.SystemLink, error)    { return f.links, nil }
func (f *fakeDB) Type(ctx context.Context, id int64) (catalog.TypeAttrs, bool) {
	return catalog.TypeAttrs{}, false
}
func (f *fakeDB) TypesByGroup(ctx context.Context, id int64) []catalog.TypeAttrs { return nil }

func chain() *topology.Graph {
	db := &fakeDB{
		systems: []catalog.SystemAttrs{
			{SystemID: 1, Name: "Alpha", Security: 0.9, RegionID: 1},
			{SystemID: 2, Name: "Bravo", Security: 0.5, RegionID: 1},
			{SystemID: 3, Name: "Charlie", Security: 0.1, RegionID: 1},
			{SystemID: 4, Name: "Delta", Security: -0.2, RegionID: 2},
		},
		links: []catalog.SystemLink{{A: 1, B: 2}, {A: 2, B: 3}, {A: 3, B: 4}},
	}
	g, err := topology.NewGraph(context.Background(), db)
	if err != nil {
		panic(err)
	}
	return g
}

func TestBuildExpandsRegionScores(t *testing.T) {
	g := chain()
	in := BuildInput{
		Geo: GeoSpec{
			RegionScores: map[int64]float64{1: 0.3},
			SystemScores: map[int64]float64{2: 0.9}, // overrides the region default for Bravo
		},
	}

	m, err := Build(g, in, 1, 1)
	require.NoError(t, err)

	require.InDelta(t, 0.3, m.GeographicScore(1), 0.0001)
	require.InDelta(t, 0.9, m.GeographicScore(2), 0.0001)
	require.InDelta(t, 0.3, m.GeographicScore(3), 0.0001)
	require.Equal(t, 0.0, m.GeographicScore(4)) // region 2 never scored
}

func TestBuildExpandsRouteAcrossWaypoints(t *testing.T) {
	g := chain()
	in := BuildInput{
		Routes: []RouteSpec{{Name: "trade-run", Waypoints: []int64{1, 4}}},
	}

	m, err := Build(g, in, 1, 1)
	require.NoError(t, err)

	require.True(t, m.InAnyRoute(2, 0))
	require.True(t, m.InAnyRoute(3, 0))
	require.False(t, m.InAnyRoute(99, 0))
}

func TestBuildRouteShipFilter(t *testing.T) {
	g := chain()
	in := BuildInput{
		Routes: []RouteSpec{{Name: "hauler-route", Waypoints: []int64{1, 2}, ShipTypeFilter: []int64{648}}},
	}

	m, err := Build(g, in, 1, 1)
	require.NoError(t, err)

	require.True(t, m.InAnyRoute(2, 648))
	require.False(t, m.InAnyRoute(2, 999))
	require.False(t, m.InAnyRoute(2, 0), "ship unknown pre-fetch cannot confirm a filtered route")
}

func TestBuildRejectsUnknownRouteWaypoint(t *testing.T) {
	g := chain()
	in := BuildInput{
		Routes: []RouteSpec{{Name: "bogus", Waypoints: []int64{1, 9999}}},
	}

	_, err := Build(g, in, 1, 1)
	require.Error(t, err)
}

func TestBuildAssetsAndEntities(t *testing.T) {
	g := chain()
	in := BuildInput{
		Assets: AssetSpec{Structures: []int64{2}, Offices: []int64{3}},
		Entities: []EntitySpec{
			{Name: "hostiles", Corporations: []int64{500}, Weights: RoleWeights{Attacker: 2.0}},
		},
	}

	m, err := Build(g, in, 1, 1)
	require.NoError(t, err)

	require.Equal(t, AssetStructure, m.AssetKindAt(2))
	require.Equal(t, AssetOffice, m.AssetKindAt(3))
	require.Contains(t, m.EntityGroups, "hostiles")
	require.Contains(t, m.EntityGroups["hostiles"].Corporations, int64(500))
}

func TestPublisherCopyOnWrite(t *testing.T) {
	g := chain()
	m1, err := Build(g, BuildInput{Geo: GeoSpec{SystemScores: map[int64]float64{1: 0.5}}}, 1, 1)
	require.NoError(t, err)

	pub := NewPublisher(m1)
	held := pub.Load()

	m2, err := Build(g, BuildInput{Geo: GeoSpec{SystemScores: map[int64]float64{1: 0.9}}}, 2, 1)
	require.NoError(t, err)
	pub.Publish(m2)

	require.InDelta(t, 0.5, held.GeographicScore(1), 0.0001, "in-flight reader keeps the version it started with")
	require.InDelta(t, 0.9, pub.Load().GeographicScore(1), 0.0001)
}

func TestValidateRejectsUnknownSystem(t *testing.T) {
	g := chain()
	m := &Map{GeographicScores: map[int64]float64{9999: 1.0}}
	require.Error(t, m.Validate(g))
}
