package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"killwatch/internal/events"
	"killwatch/internal/killerrors"
)

// webhookPayload is the generic JSON body posted to a configured webhook
// URL. Field names are stable across killwatch versions since operators
// wire dashboards against them.
type webhookPayload struct {
	Profile          string             `json:"profile"`
	KillID           int64              `json:"kill_id"`
	Tier             events.Tier        `json:"tier"`
	Interest         float64            `json:"interest"`
	DominantCategory string             `json:"dominant_category"`
	SignalScores     []events.SignalScore `json:"signal_scores"`
	FetchPerformed   bool               `json:"fetch_performed"`
	EnrichmentFailed bool               `json:"enrichment_failed"`
}

// WebhookProvider POSTs a JSON payload to a configured URL, grounded on the
// teacher's internal/discord.BotService HTTP client (fixed timeout,
// request-scoped context, User-Agent header, status-code-and-body error
// reporting) but generalized to any webhook endpoint rather than Discord's
// API specifically.
type WebhookProvider struct {
	name string
	url  string
	hc   *http.Client
}

// NewWebhookProvider builds a WebhookProvider posting to url, named name so
// a profile can route to several distinct webhooks through the same
// provider kind.
func NewWebhookProvider(name, url string) *WebhookProvider {
	return &WebhookProvider{
		name: name,
		url:  url,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookProvider) Name() string { return p.name }

func (p *WebhookProvider) Send(ctx context.Context, profile string, d events.Decision) error {
	body, err := json.Marshal(webhookPayload{
		Profile:          profile,
		KillID:           d.KillID,
		Tier:             d.Tier,
		Interest:         d.Interest,
		DominantCategory: d.DominantCategory,
		SignalScores:     d.SignalScores,
		FetchPerformed:   d.FetchPerformed,
		EnrichmentFailed: d.EnrichmentFailed,
	})
	if err != nil {
		return killerrors.New(killerrors.KindDeliveryFailed, "webhook.Send", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return killerrors.New(killerrors.KindDeliveryFailed, "webhook.Send", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "killwatch/1.0")

	resp, err := p.hc.Do(req)
	if err != nil {
		return killerrors.NewRetryable(killerrors.KindDeliveryFailed, "webhook.Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return killerrors.NewRetryable(killerrors.KindDeliveryFailed, "webhook.Send",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return killerrors.New(killerrors.KindDeliveryFailed, "webhook.Send",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	return nil
}
