// Package eventlog persists raw events to Mongo for explain/simulate
// replay, the same collection-per-concern pattern the teacher's
// zkillboard Repository uses for its killmail archive. The Ingestion Loop
// writes every event it sees (mirroring the way it unconditionally records
// into the Activity Cache); C10's HTTP surface reads back by kill id or
// time range.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"killwatch/internal/events"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "killwatch_events"

// document is the Mongo-facing shape of events.Event.
type document struct {
	KillID    int64              `bson:"kill_id"`
	Timestamp time.Time          `bson:"timestamp"`
	SystemID  int64              `bson:"system_id"`
	Victim    combatantDoc       `bson:"victim"`
	Attackers []combatantDoc     `bson:"attackers"`
	ZKB       events.ZKBHints    `bson:"zkb"`
}

type combatantDoc struct {
	CharacterID   *int64 `bson:"character_id,omitempty"`
	CorporationID int64  `bson:"corporation_id"`
	AllianceID    *int64 `bson:"alliance_id,omitempty"`
	FactionID     *int64 `bson:"faction_id,omitempty"`
	ShipTypeID    int64  `bson:"ship_type_id"`
	WeaponTypeID  *int64 `bson:"weapon_type_id,omitempty"`
	FinalBlow     bool   `bson:"final_blow"`
}

func toDocument(ev *events.Event) document {
	attackers := make([]combatantDoc, len(ev.Attackers))
	for i, a := range ev.Attackers {
		attackers[i] = toCombatantDoc(a)
	}
	return document{
		KillID:    ev.KillID,
		Timestamp: ev.Timestamp,
		SystemID:  ev.SystemID,
		Victim:    toCombatantDoc(ev.Victim),
		Attackers: attackers,
		ZKB:       ev.ZKB,
	}
}

func toCombatantDoc(c events.Combatant) combatantDoc {
	return combatantDoc{
		CharacterID:   c.CharacterID,
		CorporationID: c.CorporationID,
		AllianceID:    c.AllianceID,
		FactionID:     c.FactionID,
		ShipTypeID:    c.ShipTypeID,
		WeaponTypeID:  c.WeaponTypeID,
		FinalBlow:     c.FinalBlow,
	}
}

func (d document) toEvent() *events.Event {
	attackers := make([]events.Combatant, len(d.Attackers))
	for i, a := range d.Attackers {
		attackers[i] = a.toCombatant()
	}
	return &events.Event{
		KillID:    d.KillID,
		Timestamp: d.Timestamp,
		SystemID:  d.SystemID,
		Victim:    d.Victim.toCombatant(),
		Attackers: attackers,
		ZKB:       d.ZKB,
	}
}

func (c combatantDoc) toCombatant() events.Combatant {
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

// Store is the Mongo-backed archive satisfying internal/explain's
// EventLookup interface.
type Store struct {
	coll *mongo.Collection
}

// New wraps a Mongo database handle, creating the kill_id index used by
// ByKillID the first time a Store is constructed.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	coll := db.Collection(collectionName)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kill_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: create indexes: %w", err)
	}
	return &Store{coll: coll}, nil
}

// Append records one event, upserting on kill_id so a duplicate relay
// delivery before Ingestion Loop's dedup window doesn't error out.
func (s *Store) Append(ctx context.Context, ev *events.Event) error {
	doc := toDocument(ev)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"kill_id": ev.KillID}, doc, options.Replace().SetUpsert(true))
	return err
}

// ByKillID implements explain.EventLookup.
func (s *Store) ByKillID(ctx context.Context, killID int64) (*events.Event, bool) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"kill_id": killID}).Decode(&doc)
	if err != nil {
		return nil, false
	}
	return doc.toEvent(), true
}

// InRange implements explain.EventLookup.
func (s *Store) InRange(ctx context.Context, start, end time.Time) ([]*events.Event, error) {
	cur, err := s.coll.Find(ctx, bson.M{"timestamp": bson.M{"$gte": start, "$lte": end}})
	if err != nil {
		return nil, fmt.Errorf("eventlog: query range: %w", err)
	}
	defer cur.Close(ctx)

	var out []*events.Event
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("eventlog: decode: %w", err)
		}
		out = append(out, doc.toEvent())
	}
	return out, cur.Err()
}
