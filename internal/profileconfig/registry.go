package profileconfig

import (
	"sync/atomic"

	"killwatch/internal/interest"
)

// Registry is a published, swappable set of profiles, the same
// copy-on-write discipline internal/interestmap.Publisher uses for the
// Interest Map: a reload builds an entirely new snapshot and swaps an
// atomic.Pointer, so in-flight evaluations never see a half-updated set.
type Registry struct {
	ptr atomic.Pointer[map[string]*interest.Profile]
}

// NewRegistry builds a Registry from an initial profile set.
func NewRegistry(profiles []*interest.Profile) *Registry {
	r := &Registry{}
	r.Publish(profiles)
	return r
}

// Publish atomically replaces the registry's contents.
func (r *Registry) Publish(profiles []*interest.Profile) {
	m := make(map[string]*interest.Profile, len(profiles))
	for _, p := range profiles {
		m[p.Name] = p
	}
	r.ptr.Store(&m)
}

// Get implements internal/explain's ProfileLookup.
func (r *Registry) Get(name string) (*interest.Profile, bool) {
	m := r.ptr.Load()
	if m == nil {
		return nil, false
	}
	p, ok := (*m)[name]
	return p, ok
}

// All returns every currently published profile, in no particular order;
// used to drive per-profile wiring (ingestion fan-out, delivery routes) at
// startup and after a reload.
func (r *Registry) All() []*interest.Profile {
	m := r.ptr.Load()
	if m == nil {
		return nil
	}
	out := make([]*interest.Profile, 0, len(*m))
	for _, p := range *m {
		out = append(out, p)
	}
	return out
}
