package signals

import (
	"killwatch/internal/events"
	"killwatch/internal/topology"
)

// LocationConfig configures the location provider. GeoWeight controls the
// blend between the InterestMap's operator-classified geographic score and
// the system's intrinsic security-band score; spec §4.3 leaves the exact
// blend ratio unspecified ("blended with"), so this mirrors the
// politics/activity style of a configurable weighted blend rather than
// inventing a fixed constant.
type LocationConfig struct {
	GeoWeight      float64 // default 0.7
	BandScores     map[topology.SecurityBand]float64
}

// DefaultLocationConfig returns the stock band scoring: nullsec and lowsec
// score higher than highsec, reflecting typical operator interest in
// dangerous space.
func DefaultLocationConfig() LocationConfig {
	return LocationConfig{
		GeoWeight: 0.7,
		BandScores: map[topology.SecurityBand]float64{
			topology.BandHighSec: 0.1,
			topology.BandLowSec:  0.6,
			topology.BandNullSec: 1.0,
		},
	}
}

type locationProvider struct {
	cfg   LocationConfig
	graph *topology.Graph
}

// NewLocationProvider builds the location signal. It needs the topology
// graph (not just the InterestMap) to resolve a system's security band.
func NewLocationProvider(cfg LocationConfig, graph *topology.Graph) Provider {
	return &locationProvider{cfg: cfg, graph: graph}
}

func (p *locationProvider) Category() string    { return CategoryLocation }
func (p *locationProvider) PrefetchCapable() bool { return true }

func (p *locationProvider) Score(in Input) events.SignalScore {
	geo := in.Map.GeographicScore(in.Event.SystemID)

	band := 0.0
	if attrs, ok := p.graph.Attrs(in.Event.SystemID); ok {
		band = p.cfg.BandScores[topology.Band(attrs.Security)]
	}

	w := p.cfg.GeoWeight
	raw := w*geo + (1-w)*band

	return score(CategoryLocation, raw, map[string]float64{
		"geographic_score": geo,
		"band_score":       band,
	})
}
