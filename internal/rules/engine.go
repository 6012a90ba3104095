package rules

import "killwatch/internal/events"

// Verdict is the engine's precedence-ordered output, consumed by the
// Interest Calculator before threshold-based tier assignment runs.
type Verdict struct {
	Drop          bool // always_ignore matched, or a gate failed with no log_threshold
	Log           bool // a gate failed but log_threshold is met: demote instead of drop
	ForceNotify   bool // always_notify matched
	ForcePriority bool // an always_notify rule with ForcePriority matched
	BypassRateLimit bool
	Matches       []events.RuleMatch
}

// Engine holds a profile's ordered rule declarations and evaluates them per
// spec §4.4's fixed precedence: always_ignore, then always_notify, then
// gates, leaving threshold assignment (step 4) to the caller.
type Engine struct {
	declarations []Declaration
}

// New builds an Engine from a profile's rule declarations. Order within
// each effect class does not affect the outcome (all always_ignore rules
// are OR'd together, likewise always_notify and gates), but evaluation
// runs in the order given for matches reporting.
func New(declarations []Declaration) *Engine {
	return &Engine{declarations: declarations}
}

// Evaluate runs every declaration and folds the results per precedence.
// always_ignore short-circuits nothing else being evaluated is not
// required by the spec (rule_matches should reflect every rule's result
// for explain/simulate), so every declaration always runs.
func (e *Engine) Evaluate(ctx *Context) Verdict {
	var v Verdict
	var ignoreMatched bool
	var gateFailed bool
	var gateLogOnly bool

	for _, d := range e.declarations {
		matched := d.Rule.Evaluate(ctx)
		v.Matches = append(v.Matches, events.RuleMatch{
			Name:    d.Name,
			Kind:    string(d.Effect),
			Matched: matched,
		})

		switch d.Effect {
		case EffectAlwaysIgnore:
			if matched {
				ignoreMatched = true
			}
		case EffectAlwaysNotify:
			if matched {
				v.ForceNotify = true
				if d.ForcePriority {
					v.ForcePriority = true
				}
				if d.BypassRateLimit {
					v.BypassRateLimit = true
				}
			}
		case EffectGate:
			// A gate rule's Evaluate returning false means the gate's
			// condition (require_all/require_any, already folded into the
			// rule via All()/Any()) was NOT satisfied: the gate fails.
			if !matched {
				gateFailed = true
				if d.LogThreshold {
					gateLogOnly = true
				}
			}
		}
	}

	// Precedence: always_ignore wins outright, even over always_notify
	// (safety-over-efficiency per spec §4.4's closing rule).
	if ignoreMatched {
		v.Drop = true
		v.ForceNotify = false
		v.ForcePriority = false
		return v
	}

	if v.ForceNotify {
		// always_notify bypasses scoring gates but not rate limits unless
		// explicitly configured; gate failures are moot once it fires.
		return v
	}

	if gateFailed {
		if gateLogOnly {
			v.Log = true
		} else {
			v.Drop = true
		}
	}

	return v
}

// PrefetchCapable reports whether every declared rule can be evaluated
// from raw Event fields alone. The Prefetch Gate uses this to decide
// whether an always_notify rule can force a fetch pre-enrichment (step 4
// of §4.6) and whether any gate needs the full pass before it can be
// trusted.
func (e *Engine) PrefetchCapable() bool {
	for _, d := range e.declarations {
		if !d.Rule.PrefetchCapable() {
			return false
		}
	}
	return true
}

// AlwaysNotifyPrefetchCapable reports whether any always_notify rule that
// is itself prefetch-capable would match against ctx (built from a raw
// Event, Enriched left nil). Used by the Prefetch Gate's always-notify
// override (§4.6 step 4).
func (e *Engine) AlwaysNotifyPrefetchCapable(ctx *Context) bool {
	for _, d := range e.declarations {
		if d.Effect != EffectAlwaysNotify {
			continue
		}
		if !d.Rule.PrefetchCapable() {
			continue
		}
		if d.Rule.Evaluate(ctx) {
			return true
		}
	}
	return false
}
