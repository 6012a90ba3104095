package rules

import (
	"context"
	"testing"
	"time"

	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interestmap"
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

func testGraph(t *testing.T) *topology.Graph {
	db := &fakeDB{systems: []catalog.SystemAttrs{{SystemID: 1, Name: "Jita", Security: 0.9, RegionID: 1}}}
	g, err := topology.NewGraph(context.Background(), db)
	require.NoError(t, err)
	return g
}

func baseEvent() *events.Event {
	return &events.Event{
		KillID:    1,
		Timestamp: time.Now(),
		SystemID:  1,
		Victim:    events.Combatant{CorporationID: 100, ShipTypeID: 670},
		Attackers: []events.Combatant{{CorporationID: 200, FinalBlow: true}},
	}
}

func TestNPCOnlyAndPodOnly(t *testing.T) {
	ev := baseEvent()
	ev.ZKB.NPC = true
	ctx := &Context{Event: ev}

	require.True(t, NPCOnly().Evaluate(ctx))
	require.True(t, PodOnly().Evaluate(ctx), "victim ship type 670 is a capsule")
}

func TestCorpMemberVictimAndHighValue(t *testing.T) {
	ev := baseEvent()
	ev.ZKB.TotalValue = 2_000_000_000
	ctx := &Context{Event: ev}

	require.True(t, CorpMemberVictim(100).Evaluate(ctx))
	require.False(t, CorpMemberVictim(999).Evaluate(ctx))
	require.True(t, HighValue(1_000_000_000).Evaluate(ctx))
}

func TestGroupRolePrefetchCapability(t *testing.T) {
	victimRule := NewGroupRole("r1", "hostiles", RoleVictim)
	attackerRule := NewGroupRole("r2", "hostiles", RoleAttacker)

	require.True(t, victimRule.PrefetchCapable())
	require.False(t, attackerRule.PrefetchCapable())
}

func TestGroupRoleEvaluation(t *testing.T) {
	im := &interestmap.Map{
		EntityGroups: map[string]interestmap.EntityGroup{
			"hostiles": {Name: "hostiles", Corporations: map[int64]struct{}{100: {}, 200: {}}},
		},
	}
	ev := baseEvent()
	ctx := &Context{Event: ev, Map: im}

	require.True(t, NewGroupRole("r", "hostiles", RoleVictim).Evaluate(ctx))
	require.False(t, NewGroupRole("r", "hostiles", RoleAttacker).Evaluate(ctx), "no Enriched yet")

	enriched := &events.EnrichedEvent{Event: *ev}
	ctx.Enriched = enriched
	require.True(t, NewGroupRole("r", "hostiles", RoleAttacker).Evaluate(ctx))
}

func TestValueAndShipAndSystemTemplates(t *testing.T) {
	ev := baseEvent()
	ev.ZKB.TotalValue = 500
	ctx := &Context{Event: ev}

	require.True(t, NewValueBelow("v", 1000).Evaluate(ctx))
	require.False(t, NewValueAbove("v", 1000).Evaluate(ctx))
	require.True(t, NewShipClass("s", []int64{670, 33328}).Evaluate(ctx))
	require.True(t, NewSystemMatch("sys", []int64{1, 2}).Evaluate(ctx))
	require.True(t, NewAttackerCount("ac", CmpEQ, 1).Evaluate(ctx))
	require.False(t, NewSoloKill("solo").Evaluate(ctx))
}

func TestSecurityBandTemplate(t *testing.T) {
	g := testGraph(t)
	ev := baseEvent()
	ctx := &Context{Event: ev, Graph: g}

	hs := NewSecurityBand("hs", []topology.SecurityBand{topology.BandHighSec}, g)
	ls := NewSecurityBand("ls", []topology.SecurityBand{topology.BandLowSec}, g)
	require.True(t, hs.Evaluate(ctx))
	require.False(t, ls.Evaluate(ctx))
}

type fakeShipGroupLookup struct{ groups map[int64]int64 }

func (f fakeShipGroupLookup) GroupIDFor(typeID int64) (int64, bool) {
	g, ok := f.groups[typeID]
	return g, ok
}

func TestShipGroupTemplate(t *testing.T) {
	ev := baseEvent()
	ev.Victim.ShipTypeID = 19720
	ctx := &Context{Event: ev}

	lookup := fakeShipGroupLookup{groups: map[int64]int64{19720: 485}}
	require.True(t, NewShipGroup("cap", []int64{485}, lookup).Evaluate(ctx))
	require.False(t, NewShipGroup("cap", []int64{547}, lookup).Evaluate(ctx))
}

func TestCombinatorAllAndAny(t *testing.T) {
	ev := baseEvent()
	ctx := &Context{Event: ev}

	allTrue := All("both", NPCOnly(), PodOnly())
	anyTrue := Any("either", NPCOnly(), PodOnly())

	require.False(t, allTrue.Evaluate(ctx)) // NPC is false by default
	require.True(t, anyTrue.Evaluate(ctx))  // PodOnly matches
}

func TestCombinatorPrefetchCapableIsConservative(t *testing.T) {
	c := All("mix", NPCOnly(), GatecampDetected())
	require.False(t, c.PrefetchCapable())
}

func TestEnginePrecedenceAlwaysIgnoreWinsOverAlwaysNotify(t *testing.T) {
	ev := baseEvent()
	ev.ZKB.NPC = true
	ctx := &Context{Event: ev}

	eng := New([]Declaration{
		{Name: "ignore-npc", Rule: NPCOnly(), Effect: EffectAlwaysIgnore},
		{Name: "notify-pod", Rule: PodOnly(), Effect: EffectAlwaysNotify},
	})

	v := eng.Evaluate(ctx)
	require.True(t, v.Drop)
	require.False(t, v.ForceNotify)
}

func TestEngineGateFailureDropsOrLogs(t *testing.T) {
	ev := baseEvent()
	ctx := &Context{Event: ev}

	dropping := New([]Declaration{{Name: "gate", Rule: All("g", NPCOnly()), Effect: EffectGate}})
	v := dropping.Evaluate(ctx)
	require.True(t, v.Drop)
	require.False(t, v.Log)

	logging := New([]Declaration{{Name: "gate", Rule: All("g", NPCOnly()), Effect: EffectGate, LogThreshold: true}})
	v2 := logging.Evaluate(ctx)
	require.False(t, v2.Drop)
	require.True(t, v2.Log)
}

func TestEngineAlwaysNotifyForcePriority(t *testing.T) {
	ev := baseEvent()
	ev.ZKB.TotalValue = 5_000_000_000
	ctx := &Context{Event: ev}

	eng := New([]Declaration{
		{Name: "big-kill", Rule: HighValue(1_000_000_000), Effect: EffectAlwaysNotify, ForcePriority: true},
	})
	v := eng.Evaluate(ctx)
	require.True(t, v.ForceNotify)
	require.True(t, v.ForcePriority)
}

func TestAlwaysNotifyPrefetchCapableOverride(t *testing.T) {
	eng := New([]Declaration{
		{Name: "big-kill", Rule: HighValue(1_000_000_000), Effect: EffectAlwaysNotify},
		{Name: "hostile-attacker", Rule: NewGroupRole("r", "hostiles", RoleAttacker), Effect: EffectAlwaysNotify},
	})

	ev := baseEvent()
	ev.ZKB.TotalValue = 2_000_000_000
	ctx := &Context{Event: ev}

	require.True(t, eng.AlwaysNotifyPrefetchCapable(ctx))
}

func TestExpressionPrefetchCapabilityFromVars(t *testing.T) {
	safe, err := NewExpression("cheap", "value > 500000000")
	require.NoError(t, err)
	require.True(t, safe.PrefetchCapable())

	unsafe, err := NewExpression("needs-fetch", "attacker_corp_match == true")
	require.NoError(t, err)
	require.False(t, unsafe.PrefetchCapable())
}

func TestExpressionEvaluation(t *testing.T) {
	rule, err := NewExpression("big-and-solo", "value > 1000000000 && solo == true")
	require.NoError(t, err)

	ev := baseEvent()
	ev.ZKB.TotalValue = 2_000_000_000
	ev.ZKB.Solo = true
	ctx := &Context{Event: ev}

	require.True(t, rule.Evaluate(ctx))
}

func TestExpressionGroupRolePredicateEvaluation(t *testing.T) {
	rule, err := NewExpression("hostile-victim", "victim_in_group_hostiles == true")
	require.NoError(t, err)
	require.True(t, rule.PrefetchCapable(), "victim_in_group_* needs only the raw event")

	im := &interestmap.Map{
		EntityGroups: map[string]interestmap.EntityGroup{
			"hostiles": {Name: "hostiles", Corporations: map[int64]struct{}{100: {}}},
		},
	}
	ev := baseEvent()
	ctx := &Context{Event: ev, Map: im}

	require.True(t, rule.Evaluate(ctx))
}

func TestExpressionAttackerGroupPredicateRequiresEnrichment(t *testing.T) {
	rule, err := NewExpression("hostile-attacker", "attacker_in_group_hostiles == true")
	require.NoError(t, err)
	require.False(t, rule.PrefetchCapable(), "attacker_in_group_* needs the enriched attacker list")

	im := &interestmap.Map{
		EntityGroups: map[string]interestmap.EntityGroup{
			"hostiles": {Name: "hostiles", Corporations: map[int64]struct{}{200: {}}},
		},
	}
	ev := baseEvent()
	ctx := &Context{Event: ev, Map: im}

	require.False(t, rule.Evaluate(ctx), "no Enriched yet")

	ctx.Enriched = &events.EnrichedEvent{Event: *ev}
	require.True(t, rule.Evaluate(ctx))
}

func TestExpressionInvalidSyntaxIsConfigError(t *testing.T) {
	_, err := NewExpression("broken", "value >>> 1")
	require.Error(t, err)
}

func TestActivityDependentBuiltinNotPrefetchCapable(t *testing.T) {
	require.False(t, GatecampDetected().PrefetchCapable())
}

func TestGatecampDetectedReadsActivityCache(t *testing.T) {
	c := activity.NewCache(nil)
	ev := baseEvent()
	ev.SystemID = 2
	base := ev.Timestamp
	for i, corp := range []int64{1, 1, 2} {
		c.Record(&events.Event{
			KillID:    int64(i + 10),
			SystemID:  2,
			Timestamp: base.Add(-time.Duration(i) * time.Minute),
			Victim:    events.Combatant{ShipTypeID: 587},
			Attackers: []events.Combatant{{CorporationID: corp, FinalBlow: true}},
		})
	}
	ctx := &Context{Event: &events.Event{SystemID: 2, Timestamp: base}, Activity: c}
	require.True(t, GatecampDetected().Evaluate(ctx))
}
