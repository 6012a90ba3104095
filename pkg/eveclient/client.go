// Package eveclient implements the enrichment client contract consumed by
// the Ingestion Loop (spec §6): name resolution, character affiliation
// context, full kill detail, and price lookups. The default implementation
// wraps an ESI-shaped HTTP client the way the teacher's
// pkg/evegateway/killmails.KillmailClient does (context-scoped requests,
// otel tracing, one attempt per request with no retry), fronted by a TTL+LRU cache per method since
// every one of these lookups is safe to cache for minutes.
package eveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CharacterContext is the affiliation snapshot the Rule Engine and politics
// signal need to trust an attacker's corp/alliance/faction membership.
type CharacterContext struct {
	CorporationID int64
	AllianceID    *int64
	FactionID     *int64
}

// KillDetail carries the resolved names and catalog placement the
// EnrichedEvent needs beyond what the raw relay payload provides.
type KillDetail struct {
	VictimName      string
	ShipName        string
	RegionID        int64
	ConstellationID int64
	AttackerNames   map[int64]string
}

// Client is the four-method enrichment contract the core depends on. All
// methods are expected to be internally batched/cached by the
// implementation; the core never retries on its own.
type Client interface {
	ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error)
	GetCharacterContext(ctx context.Context, characterID int64) (CharacterContext, error)
	GetKillDetails(ctx context.Context, killID int64) (KillDetail, error)
	GetPrices(ctx context.Context, typeIDs []int64) (map[int64]float64, error)
}

// HTTPConfig configures the default HTTP-backed Client.
type HTTPConfig struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	CacheSize   int           // entries per method cache, default 4096
	CacheTTL    time.Duration // default 10 minutes
}

// DefaultHTTPConfig mirrors the teacher's ESI client defaults.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:   baseURL,
		UserAgent: "killwatch/1.0",
		Timeout:   10 * time.Second,
		CacheSize: 4096,
		CacheTTL:  10 * time.Minute,
	}
}

type httpClient struct {
	cfg HTTPConfig
	hc  *http.Client

	names       *expirable.LRU[int64, string]
	charCtx     *expirable.LRU[int64, CharacterContext]
	killDetails *expirable.LRU[int64, KillDetail]
	prices      *expirable.LRU[int64, float64]
}

// NewHTTP builds the default HTTP-backed enrichment client.
func NewHTTP(cfg HTTPConfig) Client {
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 4096
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &httpClient{
		cfg:         cfg,
		hc:          &http.Client{Timeout: cfg.Timeout},
		names:       expirable.NewLRU[int64, string](cfg.CacheSize, nil, cfg.CacheTTL),
		charCtx:     expirable.NewLRU[int64, CharacterContext](cfg.CacheSize, nil, cfg.CacheTTL),
		killDetails: expirable.NewLRU[int64, KillDetail](cfg.CacheSize, nil, cfg.CacheTTL),
		prices:      expirable.NewLRU[int64, float64](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

func (c *httpClient) ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	tracer := otel.Tracer("eveclient")
	ctx, span := tracer.Start(ctx, "ResolveNames", trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	out := make(map[int64]string, len(ids))
	var missing []int64
	for _, id := range ids {
		if name, ok := c.names.Get(id); ok {
			out[id] = name
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var resolved map[int64]string
	if err := c.post(ctx, "/universe/names/", missing, &resolved); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve names failed")
		return nil, fmt.Errorf("eveclient: resolve names: %w", err)
	}
	for id, name := range resolved {
		c.names.Add(id, name)
		out[id] = name
	}
	return out, nil
}

func (c *httpClient) GetCharacterContext(ctx context.Context, characterID int64) (CharacterContext, error) {
	tracer := otel.Tracer("eveclient")
	ctx, span := tracer.Start(ctx, "GetCharacterContext", trace.WithAttributes(attribute.Int64("character_id", characterID)))
	defer span.End()

	if cc, ok := c.charCtx.Get(characterID); ok {
		return cc, nil
	}

	var cc CharacterContext
	url := fmt.Sprintf("%s/characters/%d/", c.cfg.BaseURL, characterID)
	if err := c.get(ctx, url, &cc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "character context fetch failed")
		return CharacterContext{}, fmt.Errorf("eveclient: character context: %w", err)
	}
	c.charCtx.Add(characterID, cc)
	return cc, nil
}

func (c *httpClient) GetKillDetails(ctx context.Context, killID int64) (KillDetail, error) {
	tracer := otel.Tracer("eveclient")
	ctx, span := tracer.Start(ctx, "GetKillDetails", trace.WithAttributes(attribute.Int64("kill_id", killID)))
	defer span.End()

	if kd, ok := c.killDetails.Get(killID); ok {
		return kd, nil
	}

	var kd KillDetail
	url := fmt.Sprintf("%s/killmails/%d/", c.cfg.BaseURL, killID)
	if err := c.get(ctx, url, &kd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kill details fetch failed")
		return KillDetail{}, fmt.Errorf("eveclient: kill details: %w", err)
	}
	c.killDetails.Add(killID, kd)
	return kd, nil
}

func (c *httpClient) GetPrices(ctx context.Context, typeIDs []int64) (map[int64]float64, error) {
	tracer := otel.Tracer("eveclient")
	ctx, span := tracer.Start(ctx, "GetPrices", trace.WithAttributes(attribute.Int("count", len(typeIDs))))
	defer span.End()

	out := make(map[int64]float64, len(typeIDs))
	var missing []int64
	for _, id := range typeIDs {
		if price, ok := c.prices.Get(id); ok {
			out[id] = price
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var resolved map[int64]float64
	if err := c.post(ctx, "/markets/prices/", missing, &resolved); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prices fetch failed")
		return nil, fmt.Errorf("eveclient: prices: %w", err)
	}
	for id, price := range resolved {
		c.prices.Add(id, price)
		out[id] = price
	}
	return out, nil
}

func (c *httpClient) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return c.do(req, out)
}

func (c *httpClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out interface{}) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
