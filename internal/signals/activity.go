package signals

import (
	"killwatch/internal/events"
)

// ActivityConfig configures the activity provider's non-escalated scoring.
type ActivityConfig struct {
	WindowMinutes  int     // default 60
	SaturationKills float64 // ship-kill count that saturates the score at 1.0; default 5
}

type activityProvider struct{ cfg ActivityConfig }

// NewActivityProvider builds the activity signal.
func NewActivityProvider(cfg ActivityConfig) Provider {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 60
	}
	if cfg.SaturationKills <= 0 {
		cfg.SaturationKills = 5
	}
	return &activityProvider{cfg: cfg}
}

func (p *activityProvider) Category() string    { return CategoryActivity }
func (p *activityProvider) PrefetchCapable() bool { return false }

func (p *activityProvider) Score(in Input) events.SignalScore {
	systemID := in.Event.SystemID

	if esc := in.Activity.Escalation(systemID); esc != nil {
		return score(CategoryActivity, 1.0, map[string]float64{"escalation_multiplier": esc.Multiplier})
	}

	recent := in.Activity.Recent(systemID, p.cfg.WindowMinutes)
	raw := float64(recent.ShipKills) / p.cfg.SaturationKills

	return score(CategoryActivity, raw, map[string]float64{"recent_ship_kills": float64(recent.ShipKills)})
}
