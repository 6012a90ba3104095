package rules

import "killwatch/internal/interestmap"

// Built-in rules are the fixed, always-available predicates named in
// spec §4.4 alongside the template registry. Each is prefetch-capable
// unless documented otherwise.

type npcOnlyRule struct{}

// NPCOnly builds the npc_only built-in: matches when zkb reports the
// killmail as NPC-only.
func NPCOnly() Rule { return npcOnlyRule{} }

func (npcOnlyRule) Name() string          { return "npc_only" }
func (npcOnlyRule) PrefetchCapable() bool { return true }
func (npcOnlyRule) Evaluate(ctx *Context) bool {
	return ctx.Event.ZKB.NPC
}

type podOnlyRule struct{}

// PodOnly builds the pod_only built-in: matches when the victim hull is a
// capsule.
func PodOnly() Rule { return podOnlyRule{} }

func (podOnlyRule) Name() string          { return "pod_only" }
func (podOnlyRule) PrefetchCapable() bool { return true }
func (podOnlyRule) Evaluate(ctx *Context) bool {
	return ctx.Event.Victim.ShipTypeID == 670 || ctx.Event.Victim.ShipTypeID == 33328
}

type corpMemberVictimRule struct {
	corpID int64
}

// CorpMemberVictim builds the corp_member_victim built-in: matches when the
// victim belongs to the operator's own corporation.
func CorpMemberVictim(corpID int64) Rule { return corpMemberVictimRule{corpID: corpID} }

func (corpMemberVictimRule) Name() string          { return "corp_member_victim" }
func (corpMemberVictimRule) PrefetchCapable() bool { return true }
func (r corpMemberVictimRule) Evaluate(ctx *Context) bool {
	return ctx.Event.Victim.CorporationID == r.corpID
}

type highValueRule struct {
	threshold float64
}

// HighValue builds the high_value built-in: matches when the killmail's
// total value meets or exceeds threshold.
func HighValue(threshold float64) Rule { return highValueRule{threshold: threshold} }

func (highValueRule) Name() string          { return "high_value" }
func (highValueRule) PrefetchCapable() bool { return true }
func (r highValueRule) Evaluate(ctx *Context) bool {
	return ctx.Event.ZKB.TotalValue >= r.threshold
}

type gatecampDetectedRule struct{}

// GatecampDetected builds the gatecamp_detected built-in: matches when the
// Activity Cache currently reports a gatecamp-class escalation for the
// kill's system. Not prefetch-capable: it depends on a cache read that the
// engine's prefetch classification treats the same as any activity-backed
// predicate.
func GatecampDetected() Rule { return gatecampDetectedRule{} }

func (gatecampDetectedRule) Name() string          { return "gatecamp_detected" }
func (gatecampDetectedRule) PrefetchCapable() bool { return false }
func (r gatecampDetectedRule) Evaluate(ctx *Context) bool {
	esc := ctx.Activity.Escalation(ctx.Event.SystemID)
	return esc != nil
}

type watchlistMatchRule struct {
	groupName      string
	attackerScope  bool // legacy flag: also match on any attacker role, not just victim
}

// WatchlistMatch builds the watchlist_activity/watchlist_match built-in:
// matches when the victim (and, if attackerScope is set, any attacker)
// belongs to the named InterestMap entity group.
func WatchlistMatch(groupName string, attackerScope bool) Rule {
	return watchlistMatchRule{groupName: groupName, attackerScope: attackerScope}
}

func (watchlistMatchRule) Name() string { return "watchlist_match" }

// PrefetchCapable is false whenever attacker scope is enabled, since
// attacker affiliation is only trusted post-enrichment (see
// internal/signals' politics provider for the same reasoning).
func (r watchlistMatchRule) PrefetchCapable() bool { return !r.attackerScope }

func (r watchlistMatchRule) Evaluate(ctx *Context) bool {
	g, ok := ctx.Map.EntityGroups[r.groupName]
	if !ok {
		return false
	}
	if g.Matches(ctx.Event.Victim) {
		return true
	}
	if r.attackerScope && ctx.Enriched != nil {
		for _, a := range ctx.Enriched.Attackers {
			if g.Matches(a) {
				return true
			}
		}
	}
	return false
}

type structureKillRule struct{}

// StructureKill builds the structure_kill built-in: matches when the kill
// occurred at an InterestMap-classified structure system. This is a proxy
// for "the kill IS a structure" in the absence of a dedicated structure
// victim-type classification signal.
func StructureKill() Rule { return structureKillRule{} }

func (structureKillRule) Name() string          { return "structure_kill" }
func (structureKillRule) PrefetchCapable() bool { return true }
func (r structureKillRule) Evaluate(ctx *Context) bool {
	return ctx.Map.AssetKindAt(ctx.Event.SystemID) == interestmap.AssetStructure
}
