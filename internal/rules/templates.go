package rules

import (
	"killwatch/internal/topology"
)

// TemplateKind is one entry in the closed template registry from spec
// §4.4. No other template names exist; adding one is a code change, not a
// configuration change — that's the point of "closed".
type TemplateKind string

const (
	TemplateGroupRole      TemplateKind = "group_role"
	TemplateCategoryMatch  TemplateKind = "category_match"
	TemplateCategoryScore  TemplateKind = "category_score"
	TemplateValueAbove     TemplateKind = "value_above"
	TemplateValueBelow     TemplateKind = "value_below"
	TemplateShipClass      TemplateKind = "ship_class"
	TemplateShipGroup      TemplateKind = "ship_group"
	TemplateSecurityBand   TemplateKind = "security_band"
	TemplateSystemMatch    TemplateKind = "system_match"
	TemplateAttackerCount  TemplateKind = "attacker_count"
	TemplateSoloKill       TemplateKind = "solo_kill"
)

// Role scopes a group_role template match.
type Role string

const (
	RoleVictim    Role = "victim"
	RoleAttacker  Role = "attacker"
	RoleFinalBlow Role = "final_blow"
	RoleAny       Role = "any"
)

// Comparator is the operator for numeric template parameters.
type Comparator string

const (
	CmpGTE Comparator = "gte"
	CmpLTE Comparator = "lte"
	CmpEQ  Comparator = "eq"
)

func compare(v float64, cmp Comparator, threshold float64) bool {
	switch cmp {
	case CmpLTE:
		return v <= threshold
	case CmpEQ:
		return v == threshold
	default:
		return v >= threshold
	}
}

type templateRule struct {
	kind TemplateKind
	name string

	groupRole     Role
	groupName     string
	category      string
	cmp           Comparator
	threshold     float64
	shipTypeIDs   map[int64]struct{}
	shipGroupIDs  map[int64]struct{}
	bands         map[topology.SecurityBand]struct{}
	systemIDs     map[int64]struct{}

	catalog shipGroupLookup
	graph   *topology.Graph
}

// shipGroupLookup is the minimal dependency ship_group needs: resolving a
// victim's type id to its SDE group id.
type shipGroupLookup interface {
	GroupIDFor(typeID int64) (int64, bool)
}

// NewGroupRole builds the group_role template: matches when the given role
// belongs to the named InterestMap entity group. role=victim is
// prefetch-capable per spec §4.4's explicit statement for this template;
// all other roles are not.
func NewGroupRole(name, groupName string, role Role) Rule {
	return &templateRule{kind: TemplateGroupRole, name: name, groupName: groupName, groupRole: role}
}

// NewCategoryMatch builds the category_match template: matches when the
// named signal category's Match flag is true. prefetchCapable must reflect
// whether every signal configured in that category is itself
// prefetch-capable (the caller knows the profile's signal configuration;
// this template has no independent way to derive it).
func NewCategoryMatch(name, category string, prefetchCapable bool) Rule {
	return &categoryMatchRule{name: name, category: category, prefetchCapable: prefetchCapable}
}

// NewCategoryScore builds the category_score template: matches when the
// named category's score compares against threshold per cmp.
func NewCategoryScore(name, category string, cmp Comparator, threshold float64, prefetchCapable bool) Rule {
	return &categoryScoreRule{name: name, category: category, cmp: cmp, threshold: threshold, prefetchCapable: prefetchCapable}
}

// NewValueAbove builds the value_above template.
func NewValueAbove(name string, threshold float64) Rule {
	return &templateRule{kind: TemplateValueAbove, name: name, threshold: threshold}
}

// NewValueBelow builds the value_below template.
func NewValueBelow(name string, threshold float64) Rule {
	return &templateRule{kind: TemplateValueBelow, name: name, threshold: threshold}
}

// NewShipClass builds the ship_class template: matches when the victim's
// raw ship type id is in the given set.
func NewShipClass(name string, typeIDs []int64) Rule {
	set := make(map[int64]struct{}, len(typeIDs))
	for _, id := range typeIDs {
		set[id] = struct{}{}
	}
	return &templateRule{kind: TemplateShipClass, name: name, shipTypeIDs: set}
}

// NewShipGroup builds the ship_group template: matches when the victim's
// ship belongs to one of the given SDE group ids, resolved via catalog.
func NewShipGroup(name string, groupIDs []int64, catalog shipGroupLookup) Rule {
	set := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		set[id] = struct{}{}
	}
	return &templateRule{kind: TemplateShipGroup, name: name, shipGroupIDs: set, catalog: catalog}
}

// NewSecurityBand builds the security_band template: matches when the
// kill's system falls in one of the given bands.
func NewSecurityBand(name string, bands []topology.SecurityBand, graph *topology.Graph) Rule {
	set := make(map[topology.SecurityBand]struct{}, len(bands))
	for _, b := range bands {
		set[b] = struct{}{}
	}
	return &templateRule{kind: TemplateSecurityBand, name: name, bands: set, graph: graph}
}

// NewSystemMatch builds the system_match template.
func NewSystemMatch(name string, systemIDs []int64) Rule {
	set := make(map[int64]struct{}, len(systemIDs))
	for _, id := range systemIDs {
		set[id] = struct{}{}
	}
	return &templateRule{kind: TemplateSystemMatch, name: name, systemIDs: set}
}

// NewAttackerCount builds the attacker_count template.
func NewAttackerCount(name string, cmp Comparator, count float64) Rule {
	return &templateRule{kind: TemplateAttackerCount, name: name, cmp: cmp, threshold: count}
}

// NewSoloKill builds the solo_kill template: matches zkb.solo.
func NewSoloKill(name string) Rule {
	return &templateRule{kind: TemplateSoloKill, name: name}
}

func (r *templateRule) Name() string { return r.name }

func (r *templateRule) PrefetchCapable() bool {
	switch r.kind {
	case TemplateGroupRole:
		return r.groupRole == RoleVictim
	case TemplateValueAbove, TemplateValueBelow, TemplateShipClass, TemplateShipGroup,
		TemplateSecurityBand, TemplateSystemMatch, TemplateAttackerCount, TemplateSoloKill:
		return true
	default:
		return false
	}
}

func (r *templateRule) Evaluate(ctx *Context) bool {
	switch r.kind {
	case TemplateGroupRole:
		g, ok := ctx.Map.EntityGroups[r.groupName]
		if !ok {
			return false
		}
		switch r.groupRole {
		case RoleVictim:
			return g.Matches(ctx.Event.Victim)
		case RoleFinalBlow:
			fb, ok := ctx.Event.FinalBlow()
			return ok && g.Matches(fb)
		case RoleAttacker:
			if ctx.Enriched == nil {
				return false
			}
			for _, a := range ctx.Enriched.Attackers {
				if g.Matches(a) {
					return true
				}
			}
			return false
		default: // RoleAny
			if g.Matches(ctx.Event.Victim) {
				return true
			}
			if ctx.Enriched == nil {
				return false
			}
			for _, a := range ctx.Enriched.Attackers {
				if g.Matches(a) {
					return true
				}
			}
			return false
		}

	case TemplateValueAbove:
		return ctx.Event.ZKB.TotalValue >= r.threshold
	case TemplateValueBelow:
		return ctx.Event.ZKB.TotalValue < r.threshold
	case TemplateShipClass:
		_, ok := r.shipTypeIDs[ctx.Event.Victim.ShipTypeID]
		return ok
	case TemplateShipGroup:
		groupID, ok := r.catalog.GroupIDFor(ctx.Event.Victim.ShipTypeID)
		if !ok {
			return false
		}
		_, ok = r.shipGroupIDs[groupID]
		return ok
	case TemplateSecurityBand:
		attrs, ok := r.graph.Attrs(ctx.Event.SystemID)
		if !ok {
			return false
		}
		_, ok = r.bands[topology.Band(attrs.Security)]
		return ok
	case TemplateSystemMatch:
		_, ok := r.systemIDs[ctx.Event.SystemID]
		return ok
	case TemplateAttackerCount:
		return compare(float64(len(ctx.Event.Attackers)), r.cmp, r.threshold)
	case TemplateSoloKill:
		return ctx.Event.ZKB.Solo
	default:
		return false
	}
}

type categoryMatchRule struct {
	name            string
	category        string
	prefetchCapable bool
}

func (r *categoryMatchRule) Name() string          { return r.name }
func (r *categoryMatchRule) PrefetchCapable() bool { return r.prefetchCapable }
func (r *categoryMatchRule) Evaluate(ctx *Context) bool {
	s, ok := ctx.CategoryScores[r.category]
	return ok && s.Match
}

type categoryScoreRule struct {
	name            string
	category        string
	cmp             Comparator
	threshold       float64
	prefetchCapable bool
}

func (r *categoryScoreRule) Name() string          { return r.name }
func (r *categoryScoreRule) PrefetchCapable() bool { return r.prefetchCapable }
func (r *categoryScoreRule) Evaluate(ctx *Context) bool {
	s, ok := ctx.CategoryScores[r.category]
	if !ok {
		return false
	}
	return compare(s.Score, r.cmp, r.threshold)
}
