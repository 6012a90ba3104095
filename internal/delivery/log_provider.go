package delivery

import (
	"context"
	"log/slog"

	"killwatch/internal/events"
)

// LogProvider writes decisions through log/slog, grounded on the teacher's
// structured-logging convention throughout the zkillboard services. Useful
// as the default provider for profiles with no external delivery
// configured, and for debugging other providers side by side.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider builds a LogProvider. A nil logger falls back to
// slog.Default().
func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Send(ctx context.Context, profile string, d events.Decision) error {
	p.logger.Info("killwatch decision",
		"profile", profile,
		"kill_id", d.KillID,
		"tier", d.Tier,
		"interest", d.Interest,
		"dominant_category", d.DominantCategory,
		"fetch_performed", d.FetchPerformed,
		"enrichment_failed", d.EnrichmentFailed,
	)
	return nil
}
