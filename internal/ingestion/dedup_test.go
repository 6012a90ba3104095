package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUDedupMarksFirstSeenFalseAndRepeatTrue(t *testing.T) {
	d, err := newLRUDedup(8)
	require.NoError(t, err)

	hit, err := d.SeenOrMark(context.Background(), 100)
	require.NoError(t, err)
	assert.False(t, hit, "first sighting is never reported as a hit")

	hit, err = d.SeenOrMark(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, hit, "repeat kill id is reported as seen")
}

func TestLRUDedupTracksKillIDsIndependently(t *testing.T) {
	d, err := newLRUDedup(8)
	require.NoError(t, err)

	hit1, _ := d.SeenOrMark(context.Background(), 1)
	hit2, _ := d.SeenOrMark(context.Background(), 2)

	assert.False(t, hit1)
	assert.False(t, hit2)
}
