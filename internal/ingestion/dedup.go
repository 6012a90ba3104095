package ingestion

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup reports whether a kill id has already been seen and marks it seen
// in one call, the suppression check ingest runs before activity recording
// or any profile fan-out. The default is an in-process LRU, scoped to one
// instance; RedisDedup backs the same check with a shared TTL set so
// multiple killwatch instances polling the same relay queue suppress the
// same duplicate instead of each delivering its own copy.
type Dedup interface {
	SeenOrMark(ctx context.Context, killID int64) (bool, error)
}

type lruDedup struct {
	cache *lru.Cache[int64, struct{}]
}

func newLRUDedup(size int) (*lruDedup, error) {
	c, err := lru.New[int64, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &lruDedup{cache: c}, nil
}

func (d *lruDedup) SeenOrMark(ctx context.Context, killID int64) (bool, error) {
	_, hit := d.cache.Get(killID)
	d.cache.Add(killID, struct{}{})
	return hit, nil
}
