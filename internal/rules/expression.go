package rules

import (
	"fmt"
	"strings"

	"killwatch/internal/killerrors"

	"github.com/casbin/govaluate"
)

// ExpressionEnabled names an on/off switch for the expression rule mode.
// Nothing reads it: profile loading builds an expression rule for every
// rule that carries an expression, with no flag check.
type ExpressionEnabled bool

// expressionRule wraps a parsed govaluate AST. Parameters exposed to the
// expression are category scores/match flags (`score_<category>`,
// `match_<category>` as a bool), `value`, `solo`, `npc`, `attacker_count`,
// `activity_escalated`, and one group-role predicate per InterestMap entity
// group (`victim_in_group_<name>`, `final_blow_in_group_<name>`,
// `attacker_in_group_<name>`), mirroring the group_role template.
// Prefetch capability is derived from which parameters the expression
// actually references (govaluate.Vars()), not declared by the operator:
// any reference to a parameter in prefetchUnsafeParams, or to an
// attacker_in_group_* predicate, makes the whole expression
// non-prefetch-capable, the "conservative default" spec §4.4 calls for.
type expressionRule struct {
	name            string
	expr            *govaluate.EvaluableExpression
	prefetchCapable bool
}

// prefetchUnsafeParams are expression parameters that require enrichment
// or an activity-cache read to populate meaningfully.
var prefetchUnsafeParams = map[string]struct{}{
	"attacker_corp_match":  {},
	"attacker_alliance_id": {},
	"activity_escalated":   {},
}

// attackerGroupParamPrefix names the dynamic per-group attacker predicate;
// its group suffix varies per profile, so it can't live in
// prefetchUnsafeParams as a fixed key.
const attackerGroupParamPrefix = "attacker_in_group_"

// NewExpression parses expr and builds a Rule from it. Returns a
// killerrors.Error of kind KindConfigInvalid on a parse failure, since an
// invalid expression in a profile is an operator configuration mistake,
// not a runtime condition.
func NewExpression(name, expr string) (Rule, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, killerrors.New(killerrors.KindConfigInvalid, "rules.NewExpression",
			fmt.Errorf("rule %q: %w", name, err))
	}

	capable := true
	for _, v := range compiled.Vars() {
		_, unsafe := prefetchUnsafeParams[v]
		if unsafe || strings.HasPrefix(v, attackerGroupParamPrefix) {
			capable = false
			break
		}
	}

	return &expressionRule{name: name, expr: compiled, prefetchCapable: capable}, nil
}

func (r *expressionRule) Name() string          { return r.name }
func (r *expressionRule) PrefetchCapable() bool { return r.prefetchCapable }

func (r *expressionRule) Evaluate(ctx *Context) bool {
	params := buildExpressionParams(ctx)
	result, err := r.expr.Evaluate(params)
	if err != nil {
		return false
	}
	matched, ok := result.(bool)
	return ok && matched
}

func buildExpressionParams(ctx *Context) map[string]interface{} {
	params := map[string]interface{}{
		"value":          ctx.Event.ZKB.TotalValue,
		"solo":           ctx.Event.ZKB.Solo,
		"npc":            ctx.Event.ZKB.NPC,
		"attacker_count": float64(len(ctx.Event.Attackers)),
	}
	for category, s := range ctx.CategoryScores {
		params["score_"+category] = s.Score
		params["match_"+category] = s.Match
	}
	if ctx.Activity != nil {
		params["activity_escalated"] = ctx.Activity.Escalation(ctx.Event.SystemID) != nil
	}
	if ctx.Map != nil {
		finalBlow, hasFinalBlow := ctx.Event.FinalBlow()
		for name, g := range ctx.Map.EntityGroups {
			params["victim_in_group_"+name] = g.Matches(ctx.Event.Victim)
			params["final_blow_in_group_"+name] = hasFinalBlow && g.Matches(finalBlow)

			attackerMatch := false
			if ctx.Enriched != nil {
				for _, a := range ctx.Enriched.Attackers {
					if g.Matches(a) {
						attackerMatch = true
						break
					}
				}
			}
			params[attackerGroupParamPrefix+name] = attackerMatch
		}
	}
	return params
}
