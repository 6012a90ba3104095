package signals

import (
	"killwatch/internal/events"
)

// TimeWindow is a UTC time-of-day span, inclusive of Start, exclusive of
// End. A window that wraps midnight (End < Start) is supported.
type TimeWindow struct {
	StartMinute int // minutes since 00:00 UTC
	EndMinute   int
}

func (w TimeWindow) contains(minuteOfDay int) bool {
	if w.StartMinute <= w.EndMinute {
		return minuteOfDay >= w.StartMinute && minuteOfDay < w.EndMinute
	}
	return minuteOfDay >= w.StartMinute || minuteOfDay < w.EndMinute
}

// TimeConfig configures the time provider.
type TimeConfig struct {
	Windows []TimeWindow
}

type timeProvider struct{ cfg TimeConfig }

// NewTimeProvider builds the time signal.
func NewTimeProvider(cfg TimeConfig) Provider {
	return &timeProvider{cfg: cfg}
}

func (p *timeProvider) Category() string    { return CategoryTime }
func (p *timeProvider) PrefetchCapable() bool { return true }

func (p *timeProvider) Score(in Input) events.SignalScore {
	ts := in.Event.Timestamp.UTC()
	minuteOfDay := ts.Hour()*60 + ts.Minute()

	raw := 0.0
	for _, w := range p.cfg.Windows {
		if w.contains(minuteOfDay) {
			raw = 1.0
			break
		}
	}

	return score(CategoryTime, raw, nil)
}
