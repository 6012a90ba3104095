package ingestion

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupKeyTTL bounds how long a kill id is remembered across instances.
// Relay redelivery of the same kill within this window is suppressed; after
// it expires, a repeat delivery is treated as new, the same tradeoff the
// in-process LRU makes once a kill id is evicted for capacity.
const dedupKeyTTL = 2 * time.Hour

// RedisDedup shares dedup state across killwatch instances polling the same
// relay queue, using Redis's SETNX-with-expiry as an atomic seen-or-mark
// check, the way pkg/database.Redis's Set/Exists pair is used elsewhere for
// single-flight-style locks.
type RedisDedup struct {
	client *redis.Client
	prefix string
}

// NewRedisDedup wraps a live Redis client. prefix namespaces keys so
// killwatch can share a Redis instance with other tenants.
func NewRedisDedup(client *redis.Client, prefix string) *RedisDedup {
	if prefix == "" {
		prefix = "killwatch:dedup:"
	}
	return &RedisDedup{client: client, prefix: prefix}
}

func (d *RedisDedup) key(killID int64) string {
	return d.prefix + strconv.FormatInt(killID, 10)
}

// SeenOrMark returns true if killID was already marked within the TTL
// window. SETNX's atomicity means two instances racing on the same kill id
// never both report "not seen".
func (d *RedisDedup) SeenOrMark(ctx context.Context, killID int64) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(killID), 1, dedupKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
