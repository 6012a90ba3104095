package eveclient

import (
	"context"

	"killwatch/internal/events"
)

// Enrich assembles an EnrichedEvent from two Client calls, GetKillDetails
// and ResolveNames, shared by the Ingestion Loop's fetch path and Explain's replay
// so both compose enrichment results identically. Name resolution failures
// for individual attackers are tolerated (best-effort per
// events.EnrichedEvent's doc comment); a failure of GetKillDetails itself
// is fatal since region and constellation placement feed the geography
// signal directly.
func Enrich(ctx context.Context, client Client, ev *events.Event) (*events.EnrichedEvent, error) {
	detail, err := client.GetKillDetails(ctx, ev.KillID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(ev.Attackers)+1)
	if ev.Victim.CharacterID != nil {
		ids = append(ids, *ev.Victim.CharacterID)
	}
	for _, a := range ev.Attackers {
		if a.CharacterID != nil {
			ids = append(ids, *a.CharacterID)
		}
	}
	names, err := client.ResolveNames(ctx, ids)
	if err != nil {
		names = map[int64]string{}
	}

	victimName := detail.VictimName
	if victimName == "" && ev.Victim.CharacterID != nil {
		victimName = names[*ev.Victim.CharacterID]
	}

	attackerNames := detail.AttackerNames
	if attackerNames == nil {
		attackerNames = map[int64]string{}
	}
	for id, name := range names {
		if _, ok := attackerNames[id]; !ok {
			attackerNames[id] = name
		}
	}

	return &events.EnrichedEvent{
		Event:           *ev,
		VictimName:      victimName,
		ShipName:        detail.ShipName,
		RegionID:        detail.RegionID,
		ConstellationID: detail.ConstellationID,
		AttackerNames:   attackerNames,
	}, nil
}
