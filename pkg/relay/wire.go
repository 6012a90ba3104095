package relay

import (
	"fmt"
	"time"

	"killwatch/internal/events"
)

// wireResponse is the raw long-poll envelope: `{"package": null}` on an
// empty poll, `{"package": {...}}` once a killmail is available.
type wireResponse struct {
	Package *wirePackage `json:"package"`
}

type wirePackage struct {
	KillID   int64         `json:"killID"`
	Killmail wireKillmail  `json:"killmail"`
	ZKB      wireZKBHints  `json:"zkb"`
}

type wireKillmail struct {
	KillmailTime  time.Time       `json:"killmail_time"`
	SolarSystemID int64           `json:"solar_system_id"`
	Victim        wireCombatant   `json:"victim"`
	Attackers     []wireCombatant `json:"attackers"`
}

type wireCombatant struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID int64  `json:"corporation_id"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	FactionID     *int64 `json:"faction_id,omitempty"`
	ShipTypeID    int64  `json:"ship_type_id"`
	WeaponTypeID  *int64 `json:"weapon_type_id,omitempty"`
	FinalBlow     bool   `json:"final_blow"`
}

type wireZKBHints struct {
	TotalValue float64 `json:"totalValue"`
	NPC        bool    `json:"npc"`
	Solo       bool    `json:"solo"`
}

// toEvent converts the wire payload into the core's Event shape. Malformed
// payloads (no attackers, zero kill id) return an error so the caller can
// log and skip per spec §6 rather than propagate a half-built Event.
func (p *wirePackage) toEvent() (*events.Event, error) {
	if p.KillID == 0 {
		return nil, fmt.Errorf("relay: missing kill id")
	}
	if len(p.Killmail.Attackers) == 0 {
		return nil, fmt.Errorf("relay: kill %d has no attackers", p.KillID)
	}

	attackers := make([]events.Combatant, len(p.Killmail.Attackers))
	for i, a := range p.Killmail.Attackers {
		attackers[i] = a.toCombatant()
	}

	return &events.Event{
		KillID:    p.KillID,
		Timestamp: p.Killmail.KillmailTime,
		SystemID:  p.Killmail.SolarSystemID,
		Victim:    p.Killmail.Victim.toCombatant(),
		Attackers: attackers,
		ZKB: events.ZKBHints{
			TotalValue: p.ZKB.TotalValue,
			NPC:        p.ZKB.NPC,
			Solo:       p.ZKB.Solo,
		},
	}, nil
}

func (c wireCombatant) toCombatant() events.Combatant {
	return events.Combatant{
		CharacterID:   c.CharacterID,
		CorporationID: c.CorporationID,
		AllianceID:    c.AllianceID,
		FactionID:     c.FactionID,
		ShipTypeID:    c.ShipTypeID,
		WeaponTypeID:  c.WeaponTypeID,
		FinalBlow:     c.FinalBlow,
	}
}
