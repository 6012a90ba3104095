package signals

import (
	"killwatch/internal/events"
	"killwatch/internal/interestmap"
)

type assetsProvider struct{}

// NewAssetsProvider builds the assets signal. It has no configuration: the
// asset classification lives entirely in the InterestMap.
func NewAssetsProvider() Provider { return assetsProvider{} }

func (assetsProvider) Category() string    { return CategoryAssets }
func (assetsProvider) PrefetchCapable() bool { return true }

func (assetsProvider) Score(in Input) events.SignalScore {
	raw := 0.0
	switch in.Map.AssetKindAt(in.Event.SystemID) {
	case interestmap.AssetStructure:
		raw = 1.0
	case interestmap.AssetOffice:
		raw = 0.8
	}
	return score(CategoryAssets, raw, nil)
}
