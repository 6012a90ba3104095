package relay

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Snapshot captures the consumer's lifecycle state at a point in time, the
// same fields the teacher's RedisQConsumer.getState() reports for its
// status endpoint.
type Snapshot struct {
	QueueID     string    `bson:"queue_id"`
	State       string    `bson:"state"`
	NullStreak  int       `bson:"null_streak"`
	BackoffLvl  int       `bson:"backoff_lvl"`
	LastPoll    time.Time `bson:"last_poll"`
	TotalPolls  int64     `bson:"total_polls"`
	EventsFound int64     `bson:"events_found"`
	HTTPErrors  int64     `bson:"http_errors"`
	ParseErrors int64     `bson:"parse_errors"`
	SavedAt     time.Time `bson:"saved_at"`
}

// Snapshot returns the client's current state for persistence or reporting.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		QueueID:     c.cfg.QueueID,
		State:       c.State().String(),
		NullStreak:  c.nullStreak,
		BackoffLvl:  c.backoffLvl,
		LastPoll:    c.lastPoll,
		TotalPolls:  c.metrics.TotalPolls.Load(),
		EventsFound: c.metrics.EventsFound.Load(),
		HTTPErrors:  c.metrics.HTTPErrors.Load(),
		ParseErrors: c.metrics.ParseErrors.Load(),
	}
}

const stateCollectionName = "killwatch_relay_state"

// StatePersister upserts the consumer's snapshot into Mongo, one document
// per queue id, mirroring the teacher's SaveConsumerState. This is status
// reporting only; the loop never loads a snapshot back to resume a
// position, since the relay protocol has no cursor to resume from.
type StatePersister struct {
	coll *mongo.Collection
}

// NewStatePersister wraps a Mongo database handle.
func NewStatePersister(ctx context.Context, db *mongo.Database) (*StatePersister, error) {
	coll := db.Collection(stateCollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "queue_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("relay: create state index: %w", err)
	}
	return &StatePersister{coll: coll}, nil
}

// Save upserts the given snapshot keyed by QueueID.
func (p *StatePersister) Save(ctx context.Context, snap Snapshot) error {
	snap.SavedAt = time.Now()
	_, err := p.coll.ReplaceOne(ctx, bson.M{"queue_id": snap.QueueID}, snap, options.Replace().SetUpsert(true))
	return err
}
