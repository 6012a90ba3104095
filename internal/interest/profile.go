// Package interest implements the Interest Calculator (C6): turns a
// configured Profile plus an Event or EnrichedEvent into a Decision. The
// profile schema itself is a YAML document, loaded and validated once at
// startup/reload the way the teacher loads its own YAML-adjacent
// configuration, never re-validated on the hot path.
package interest

import (
	"fmt"
	"math"

	"killwatch/internal/killerrors"
	"killwatch/internal/rules"
	"killwatch/internal/signals"
)

// BlendMode selects how category scores combine into the overall interest
// value, per spec §4.5.
type BlendMode string

const (
	BlendWeighted BlendMode = "weighted" // RMS, the default
	BlendLinear   BlendMode = "linear"
	BlendMax      BlendMode = "max" // requires prefetch.mode = bypass
)

// CategoryConfig is one category's weight and the signal providers
// contributing to it.
type CategoryConfig struct {
	Name          string
	Weight        float64 // 0 disables the category
	Providers     []signals.Provider
	SignalWeights map[string]float64 // per-signal weight within the category, default 1.0
	Penalties     []float64
}

// Thresholds names the score each tier's floor sits at. Ordering is
// validated at load: Digest <= Notify <= Priority.
type Thresholds struct {
	Digest   float64
	Notify   float64
	Priority float64
}

// RateLimitConfig configures the per-profile token bucket the Delivery
// Router enforces (spec §4.8); kept here since it's part of profile
// configuration even though C9 owns its runtime behavior.
type RateLimitConfig struct {
	MaxPerHour             int
	Burst                  int
	BypassForAlwaysNotify  bool
	DigestWindowSeconds    int // default 900 (15 min)
}

// PrefetchMode mirrors internal/prefetch.Mode but is declared here too
// since a profile's configured mode is validated as part of profile load
// (§4.5's weight-validation rule applies to the whole profile, not just
// weights).
type PrefetchMode string

const (
	PrefetchBypass       PrefetchMode = "bypass"
	PrefetchStrict       PrefetchMode = "strict"
	PrefetchConservative PrefetchMode = "conservative"
	PrefetchAuto         PrefetchMode = "" // auto-derive per §4.6 step 6
)

// Profile is one operator-configured notification policy.
type Profile struct {
	Name               string
	Blend              BlendMode
	Categories         []CategoryConfig
	Rules              *rules.Engine
	Thresholds         Thresholds
	RateLimit          RateLimitConfig
	PrefetchMode       PrefetchMode
	UnknownAssumption  float64 // default 1.0, see spec §4.6 step 3

	// LegacyWatchlistAttackerScope records the profile's choice of legacy
	// watchlist_activity role scope: false (default) is victim role only,
	// true is victim or any attacker role. profileconfig copies it here but
	// builds every watchlist_match rule victim-only, so the value does not
	// change rule evaluation.
	LegacyWatchlistAttackerScope bool
}

// Validate enforces spec §4.5's weight-validation rule, run once at
// profile load time and never on the hot path.
func (p *Profile) Validate() error {
	if len(p.Categories) == 0 {
		return killerrors.New(killerrors.KindConfigInvalid, "Profile.Validate",
			fmt.Errorf("profile %q: no categories configured", p.Name))
	}

	anyNonZero := false
	for _, c := range p.Categories {
		if c.Weight < 0 {
			return killerrors.New(killerrors.KindConfigInvalid, "Profile.Validate",
				fmt.Errorf("profile %q: category %q has negative weight", p.Name, c.Name))
		}
		if math.IsInf(c.Weight, 0) || math.IsNaN(c.Weight) {
			return killerrors.New(killerrors.KindConfigInvalid, "Profile.Validate",
				fmt.Errorf("profile %q: category %q has non-finite weight", p.Name, c.Name))
		}
		if c.Weight > 0 {
			anyNonZero = true
		}
	}
	if !anyNonZero {
		return killerrors.New(killerrors.KindConfigInvalid, "Profile.Validate",
			fmt.Errorf("profile %q: at least one category must have non-zero weight", p.Name))
	}

	if p.Thresholds.Digest > p.Thresholds.Notify || p.Thresholds.Notify > p.Thresholds.Priority {
		return killerrors.New(killerrors.KindConfigInvalid, "Profile.Validate",
			fmt.Errorf("profile %q: thresholds must satisfy digest <= notify <= priority, got %v",
				p.Name, p.Thresholds))
	}

	if p.Blend == BlendMax && p.PrefetchMode != PrefetchBypass {
		return killerrors.New(killerrors.KindConfigInvalid, "Profile.Validate",
			fmt.Errorf("profile %q: blend mode 'max' requires prefetch.mode = bypass", p.Name))
	}

	if p.UnknownAssumption == 0 {
		p.UnknownAssumption = 1.0
	}

	return nil
}

// CategoryByName finds a configured category, used by rule templates that
// reference categories by name (category_match, category_score).
func (p *Profile) CategoryByName(name string) (CategoryConfig, bool) {
	for _, c := range p.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryConfig{}, false
}

// EnabledCategories returns categories with nonzero weight, in configured
// order — disabled categories are excluded from both blending and gates
// per spec §4.5.
func (p *Profile) EnabledCategories() []CategoryConfig {
	var out []CategoryConfig
	for _, c := range p.Categories {
		if c.Weight > 0 {
			out = append(out, c)
		}
	}
	return out
}

