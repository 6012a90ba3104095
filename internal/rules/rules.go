// Package rules implements the Rule Engine (C5): built-in and
// operator-defined rules evaluated in a fixed precedence order ahead of
// threshold-based tier assignment. Template rules are a closed registry of
// parameterized predicates; expression rules are a small govaluate AST,
// not gated by any feature flag. Both share the Rule interface so the engine
// never needs to know which kind it's holding.
package rules

import (
	"killwatch/internal/activity"
	"killwatch/internal/events"
	"killwatch/internal/interestmap"
	"killwatch/internal/topology"
)

// Context is everything a rule may consult. CategoryScores is populated by
// the Interest Calculator before rules run; it is nil-safe to read (a
// missing category is simply absent from the map).
type Context struct {
	Event          *events.Event
	Enriched       *events.EnrichedEvent
	CategoryScores map[string]events.SignalScore
	Map            *interestmap.Map
	Activity       *activity.Cache
	Graph          *topology.Graph
}

// Rule is the shared shape for built-in, template, and expression rules.
type Rule interface {
	Name() string
	Evaluate(ctx *Context) bool
	// PrefetchCapable reports whether Evaluate can be trusted using only
	// Context.Event (Context.Enriched == nil).
	PrefetchCapable() bool
}

// Declaration is the operator-facing configuration for one rule: what it
// evaluates (a Rule, built from a template/expression/builtin factory
// elsewhere) and what effect a match produces.
type Declaration struct {
	Name           string
	Rule           Rule
	Effect         Effect
	LogThreshold   bool // only meaningful for Effect == EffectGate: a failed gate demotes to log instead of drop
	ForcePriority  bool // only meaningful for Effect == EffectAlwaysNotify
	BypassRateLimit bool // only meaningful for Effect == EffectAlwaysNotify
}

// Effect names the three rule effects of spec §4.4's precedence order.
// Precedence step 4 (thresholds) has no Effect value: it is the Interest
// Calculator's responsibility, not the engine's.
type Effect string

const (
	EffectAlwaysIgnore Effect = "always_ignore"
	EffectAlwaysNotify Effect = "always_notify"
	EffectGate         Effect = "gate"
)
