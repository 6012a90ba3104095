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

// tierColor maps a Tier to a Discord embed side-bar color, brightest for
// the tiers an operator most wants to notice at a glance.
var tierColor = map[events.Tier]int{
	events.TierDigest:   0x5865F2,
	events.TierNotify:   0xF59E0B,
	events.TierPriority: 0xED4245,
}

type discordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Color       int                `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordWebhookBody struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordProvider posts a Decision as a Discord webhook embed. Grounded on
// the teacher's internal/discord.BotService HTTP client (context-scoped
// requests, fixed timeout, status-and-body error reporting) adapted to
// Discord's documented webhook execute endpoint rather than the bot API
// the teacher uses for guild/role management — no corpus code sends
// webhook messages, so the payload shape itself follows Discord's public
// contract, not an existing file.
type DiscordProvider struct {
	webhookURL string
	hc         *http.Client
}

// NewDiscordProvider builds a DiscordProvider posting to webhookURL.
func NewDiscordProvider(webhookURL string) *DiscordProvider {
	return &DiscordProvider{
		webhookURL: webhookURL,
		hc:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *DiscordProvider) Name() string { return "discord" }

func (p *DiscordProvider) Send(ctx context.Context, profile string, d events.Decision) error {
	embed := discordEmbed{
		Title:       fmt.Sprintf("[%s] kill %d", d.Tier, d.KillID),
		Description: fmt.Sprintf("profile %s, interest %.2f, dominant %s", profile, d.Interest, d.DominantCategory),
		Color:       tierColor[d.Tier],
	}
	for _, s := range d.SignalScores {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name: s.Category, Value: fmt.Sprintf("%.2f", s.Score), Inline: true,
		})
	}

	body, err := json.Marshal(discordWebhookBody{Embeds: []discordEmbed{embed}})
	if err != nil {
		return killerrors.New(killerrors.KindDeliveryFailed, "discord.Send", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return killerrors.New(killerrors.KindDeliveryFailed, "discord.Send", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "killwatch/1.0")

	resp, err := p.hc.Do(req)
	if err != nil {
		return killerrors.NewRetryable(killerrors.KindDeliveryFailed, "discord.Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return killerrors.NewRetryable(killerrors.KindDeliveryFailed, "discord.Send",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return killerrors.New(killerrors.KindDeliveryFailed, "discord.Send",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	return nil
}
