// Package events defines the core data model that flows through the
// ingestion pipeline: the raw Event arriving from the relay, the
// EnrichedEvent produced after an on-demand fetch, and the Decision the
// Interest Engine hands to the Delivery Router. Shapes mirror the upstream
// relay's killmail/zkb envelope the way the teacher's zkillboard DTOs do,
// trimmed to the fields the core actually consumes.
package events

import "time"

// Tier is the discrete notification outcome assigned to a Decision.
type Tier string

const (
	TierDrop     Tier = "drop"
	TierLog      Tier = "log"
	TierDigest   Tier = "digest"
	TierNotify   Tier = "notify"
	TierPriority Tier = "priority"
)

// tierRank orders tiers for comparisons like "tier >= notify".
var tierRank = map[Tier]int{
	TierDrop:     0,
	TierLog:      1,
	TierDigest:   2,
	TierNotify:   3,
	TierPriority: 4,
}

// AtLeast reports whether t is the same as or a stronger tier than other.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// Combatant is one party in a killmail, victim or attacker. Optional ID
// fields are nil when the relay's pre-fetch hint doesn't carry them (most
// commonly faction_id, and any attacker field before enrichment).
type Combatant struct {
	CharacterID  *int64
	CorporationID int64
	AllianceID   *int64
	FactionID    *int64
	ShipTypeID   int64
	WeaponTypeID *int64 // attacker only
	FinalBlow    bool   // attacker only
}

// ZKBHints carries the zkillboard-style pre-fetch value hints that are
// available before any enrichment call.
type ZKBHints struct {
	TotalValue float64
	NPC        bool
	Solo       bool
}

// Event is the immutable raw record arriving from the upstream relay.
type Event struct {
	KillID     int64
	Timestamp  time.Time
	SystemID   int64
	Victim     Combatant
	Attackers  []Combatant // non-empty
	ZKB        ZKBHints
}

// AttackerCorporations returns the distinct set of attacker corporation ids,
// used by gatecamp detection and politics aggregation.
func (e *Event) AttackerCorporations() map[int64]struct{} {
	out := make(map[int64]struct{}, len(e.Attackers))
	for _, a := range e.Attackers {
		out[a.CorporationID] = struct{}{}
	}
	return out
}

// FinalBlow returns the attacker marked final_blow, if any.
func (e *Event) FinalBlow() (Combatant, bool) {
	for _, a := range e.Attackers {
		if a.FinalBlow {
			return a, true
		}
	}
	return Combatant{}, false
}

// EnrichedEvent extends Event with fields that require a fetch to the
// enrichment client: resolved names, catalog placement, and gatecamp
// evidence detail. A nil *EnrichedEvent anywhere downstream means "no fetch
// was performed"; callers must fall back to Event-only evaluation.
type EnrichedEvent struct {
	Event

	VictimName      string
	ShipName        string
	RegionID        int64
	ConstellationID int64

	AttackerNames map[int64]string // character_id -> name, best-effort
}

// SignalScore is the normalized [0,1] output of one signal provider plus
// enough detail to explain it.
type SignalScore struct {
	Category        string
	Score           float64
	Match           bool
	PrefetchCapable bool
	Components      map[string]float64
}

// PatternEscalation is the multiplier applied to interest after blending,
// driven by a detected activity pattern (gatecamp, spike, sustained).
type PatternEscalation struct {
	Multiplier float64
	Reason     string
	ExpiresAt  time.Time
}

// RuleMatch records one rule engine evaluation outcome, for explain output.
type RuleMatch struct {
	Name   string
	Kind   string // "always_ignore", "always_notify", "require_all", "require_any", "gate"
	Matched bool
	Tier   Tier // tier forced by this rule, if matched and forcing
}

// Decision is the final output of the Interest Engine for one (profile,
// event) pair.
type Decision struct {
	KillID           int64
	Profile          string
	Tier             Tier
	Interest         float64
	DominantCategory string
	SignalScores     []SignalScore
	RuleMatches      []RuleMatch
	Escalation       *PatternEscalation
	FetchPerformed   bool
	RateLimited      bool
	EnrichmentFailed bool

	// DigestMembers is populated only for a synthetic digest-window summary
	// Decision; it lists the kill_ids the summary aggregates.
	DigestMembers []int64
}
