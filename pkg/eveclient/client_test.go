package eveclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveNamesCachesAcrossCalls(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var ids []int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		out := make(map[int64]string, len(ids))
		for _, id := range ids {
			out[id] = "name-of-" + string(rune('A'+int(id)))
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewHTTP(DefaultHTTPConfig(srv.URL))

	out1, err := c.ResolveNames(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, out1, 2)
	require.Equal(t, int64(1), hits.Load())

	out2, err := c.ResolveNames(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, out1, out2)
	require.Equal(t, int64(1), hits.Load(), "second call should be served entirely from cache")
}

func TestResolveNamesOnlyFetchesMissingIDs(t *testing.T) {
	var lastRequested []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequested))
		out := make(map[int64]string, len(lastRequested))
		for _, id := range lastRequested {
			out[id] = "n"
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewHTTP(DefaultHTTPConfig(srv.URL))
	_, err := c.ResolveNames(context.Background(), []int64{1})
	require.NoError(t, err)

	_, err = c.ResolveNames(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []int64{2}, lastRequested, "id 1 was already cached")
}

func TestGetCharacterContextFetchesAndCaches(t *testing.T) {
	var hits atomic.Int64
	allianceID := int64(999)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(CharacterContext{CorporationID: 100, AllianceID: &allianceID})
	}))
	defer srv.Close()

	c := NewHTTP(DefaultHTTPConfig(srv.URL))
	cc, err := c.GetCharacterContext(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(100), cc.CorporationID)

	_, err = c.GetCharacterContext(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(1), hits.Load())
}

func TestGetKillDetailsPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTP(DefaultHTTPConfig(srv.URL))
	_, err := c.GetKillDetails(context.Background(), 1)
	require.Error(t, err)
}

func TestFakeResolveNamesOnlyReturnsSeeded(t *testing.T) {
	f := NewFake()
	f.Names[1] = "Alice"

	out, err := f.ResolveNames(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, map[int64]string{1: "Alice"}, out)
	require.Equal(t, 1, f.CallCounts["ResolveNames"])
}

func TestDefaultHTTPConfigTimeout(t *testing.T) {
	cfg := DefaultHTTPConfig("http://example.invalid")
	require.Equal(t, 10*time.Second, cfg.Timeout)
}
