package eveclient

import "context"

// Fake is an in-memory Client for tests: callers seed the maps it should
// answer from and can inspect CallCounts to assert caching/batching
// behavior in callers without standing up an HTTP server.
type Fake struct {
	Names       map[int64]string
	Contexts    map[int64]CharacterContext
	KillDetails map[int64]KillDetail
	Prices      map[int64]float64

	CallCounts map[string]int
}

// NewFake builds an empty Fake with initialized maps.
func NewFake() *Fake {
	return &Fake{
		Names:       map[int64]string{},
		Contexts:    map[int64]CharacterContext{},
		KillDetails: map[int64]KillDetail{},
		Prices:      map[int64]float64{},
		CallCounts:  map[string]int{},
	}
}

func (f *Fake) ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	f.CallCounts["ResolveNames"]++
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := f.Names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *Fake) GetCharacterContext(ctx context.Context, characterID int64) (CharacterContext, error) {
	f.CallCounts["GetCharacterContext"]++
	return f.Contexts[characterID], nil
}

func (f *Fake) GetKillDetails(ctx context.Context, killID int64) (KillDetail, error) {
	f.CallCounts["GetKillDetails"]++
	return f.KillDetails[killID], nil
}

func (f *Fake) GetPrices(ctx context.Context, typeIDs []int64) (map[int64]float64, error) {
	f.CallCounts["GetPrices"]++
	out := make(map[int64]float64, len(typeIDs))
	for _, id := range typeIDs {
		if p, ok := f.Prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

var _ Client = (*Fake)(nil)
