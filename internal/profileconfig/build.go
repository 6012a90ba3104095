package profileconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"killwatch/internal/interest"
	"killwatch/internal/interestmap"
	"killwatch/internal/rules"
	"killwatch/internal/signals"
	"killwatch/internal/topology"
	"killwatch/pkg/catalog"

	"gopkg.in/yaml.v3"
)

// groupLookup adapts catalog.DB to rules.shipGroupLookup without exporting
// that adapter from the rules package itself.
type groupLookup struct {
	cat catalog.DB
}

func (g groupLookup) GroupIDFor(typeID int64) (int64, bool) {
	t, ok := g.cat.Type(context.Background(), typeID)
	if !ok {
		return 0, false
	}
	return t.GroupID, true
}

// LoadDir reads every *.yaml file in dir and parses it into a Document,
// the way the teacher's config loaders scan a directory rather than
// requiring one combined file.
func LoadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("profileconfig: read dir %s: %w", dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("profileconfig: read %s: %w", path, err)
		}
		var doc Document
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("profileconfig: parse %s: %w", path, err)
		}
		if doc.Name == "" {
			doc.Name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// BuildProfile turns one Document into a validated *interest.Profile,
// resolving signal providers and rule declarations against the given
// topology graph and catalog DB.
func BuildProfile(doc Document, graph *topology.Graph, cat catalog.DB) (*interest.Profile, error) {
	categories := make([]interest.CategoryConfig, 0, len(doc.Categories))
	// prefetchCapable per category, needed by category_match/category_score
	// rule resolution below.
	capableByCategory := make(map[string]bool, len(doc.Categories))

	for _, cs := range doc.Categories {
		provider, capable, err := buildProvider(cs, doc, graph, cat)
		if err != nil {
			return nil, fmt.Errorf("profile %q: category %q: %w", doc.Name, cs.Name, err)
		}
		capableByCategory[cs.Name] = capable
		categories = append(categories, interest.CategoryConfig{
			Name:      cs.Name,
			Weight:    cs.Weight,
			Providers: []signals.Provider{provider},
		})
	}

	decls := make([]rules.Declaration, 0, len(doc.Rules))
	for _, rs := range doc.Rules {
		rule, err := buildRule(rs, graph, cat, capableByCategory)
		if err != nil {
			return nil, fmt.Errorf("profile %q: rule %q: %w", doc.Name, rs.Name, err)
		}
		decls = append(decls, rules.Declaration{
			Name:            rs.Name,
			Rule:            rule,
			Effect:          rules.Effect(rs.Effect),
			LogThreshold:    rs.LogThreshold,
			ForcePriority:   rs.ForcePriority,
			BypassRateLimit: rs.BypassRateLimit,
		})
	}

	p := &interest.Profile{
		Name:         doc.Name,
		Blend:        interest.BlendMode(doc.Blend),
		Categories:   categories,
		Rules:        rules.New(decls),
		Thresholds: interest.Thresholds{
			Digest:   doc.Thresholds.Digest,
			Notify:   doc.Thresholds.Notify,
			Priority: doc.Thresholds.Priority,
		},
		RateLimit: interest.RateLimitConfig{
			MaxPerHour:            doc.RateLimit.MaxPerHour,
			Burst:                 doc.RateLimit.Burst,
			BypassForAlwaysNotify: doc.RateLimit.BypassForAlwaysNotify,
			DigestWindowSeconds:   doc.RateLimit.DigestWindowSeconds,
		},
		PrefetchMode:                 interest.PrefetchMode(doc.PrefetchMode),
		UnknownAssumption:            doc.UnknownAssumption,
		LegacyWatchlistAttackerScope: doc.LegacyWatchlistAttackerScope,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func buildProvider(cs CategorySpec, doc Document, graph *topology.Graph, cat catalog.DB) (signals.Provider, bool, error) {
	switch cs.Name {
	case signals.CategoryActivity:
		return signals.NewActivityProvider(signals.ActivityConfig{
			WindowMinutes:   cs.Activity.WindowMinutes,
			SaturationKills: cs.Activity.SaturationKills,
		}), false, nil

	case signals.CategoryLocation:
		lc := defaultLocationConfig()
		if cs.Location.GeoWeight > 0 {
			lc.GeoWeight = cs.Location.GeoWeight
		}
		if cs.Location.HighSecScore != nil {
			lc.BandScores[topology.BandHighSec] = *cs.Location.HighSecScore
		}
		if cs.Location.LowSecScore != nil {
			lc.BandScores[topology.BandLowSec] = *cs.Location.LowSecScore
		}
		if cs.Location.NullSecScore != nil {
			lc.BandScores[topology.BandNullSec] = *cs.Location.NullSecScore
		}
		return signals.NewLocationProvider(lc, graph), true, nil

	case signals.CategoryPolitics:
		prefetchOK := politicsGroupsAreVictimOnly(cs.Politics.Groups, doc.InterestMap.Entities)
		return signals.NewPoliticsProvider(signals.PoliticsConfig{
			Groups:      cs.Politics.Groups,
			Aggregation: signals.PoliticsAggregation(cs.Politics.Aggregation),
			Penalties:   cs.Politics.Penalties,
			PrefetchOK:  prefetchOK,
		}), prefetchOK, nil

	case signals.CategoryRoutes:
		return signals.NewRoutesProvider(signals.RoutesConfig{
			HasShipFilter: cs.Routes.HasShipFilter,
		}), !cs.Routes.HasShipFilter, nil

	case signals.CategoryAssets:
		return signals.NewAssetsProvider(), true, nil

	case signals.CategoryWar:
		return signals.NewWarProvider(signals.WarConfig{Groups: cs.War.Groups}), false, nil

	case signals.CategoryShip:
		avoid := make(map[int64]struct{}, len(cs.Ship.Avoid))
		for _, id := range cs.Ship.Avoid {
			avoid[id] = struct{}{}
		}
		return signals.NewShipProvider(signals.ShipConfig{
			Prefer:       cs.Ship.Prefer,
			Avoid:        avoid,
			CapitalBoost: cs.Ship.CapitalBoost,
		}, cat), true, nil

	case signals.CategoryTime:
		windows := make([]signals.TimeWindow, len(cs.Time.Windows))
		for i, w := range cs.Time.Windows {
			windows[i] = signals.TimeWindow{StartMinute: w.StartMinute, EndMinute: w.EndMinute}
		}
		return signals.NewTimeProvider(signals.TimeConfig{Windows: windows}), true, nil

	case signals.CategoryValue:
		return signals.NewValueProvider(signals.ValueConfig{
			Mode:      signals.ValueMode(cs.Value.Mode),
			Pivot:     cs.Value.Pivot,
			Steepness: cs.Value.Steepness,
		}), true, nil

	default:
		return nil, false, fmt.Errorf("unknown signal category %q", cs.Name)
	}
}

// politicsGroupsAreVictimOnly reports whether every named group resolves to
// an interest-map entity weighting only Victim/SoloModifier. A group that
// can't be resolved here is treated conservatively as enrichment-dependent,
// since its weights are unknown until the interest map is rebuilt.
func politicsGroupsAreVictimOnly(groups []string, entities []EntitySpecYAML) bool {
	if len(groups) == 0 {
		return true
	}
	byName := make(map[string]EntitySpecYAML, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}
	for _, name := range groups {
		e, ok := byName[name]
		if !ok {
			return false
		}
		if e.Weights.Attacker != 0 || e.Weights.FinalBlow != 0 {
			return false
		}
	}
	return true
}

func defaultLocationConfig() signals.LocationConfig {
	cfg := signals.DefaultLocationConfig()
	bands := make(map[topology.SecurityBand]float64, len(cfg.BandScores))
	for k, v := range cfg.BandScores {
		bands[k] = v
	}
	cfg.BandScores = bands
	return cfg
}

func buildRule(rs RuleSpec, graph *topology.Graph, cat catalog.DB, capable map[string]bool) (rules.Rule, error) {
	switch {
	case rs.Builtin != "":
		return buildBuiltin(rs)
	case len(rs.RequireAll) > 0:
		children, err := buildChildren(rs.RequireAll, graph, cat, capable)
		if err != nil {
			return nil, err
		}
		return rules.All(rs.Name, children...), nil
	case len(rs.RequireAny) > 0:
		children, err := buildChildren(rs.RequireAny, graph, cat, capable)
		if err != nil {
			return nil, err
		}
		return rules.Any(rs.Name, children...), nil
	case rs.Expression != "":
		return rules.NewExpression(rs.Name, rs.Expression)
	case rs.Template != "":
		return buildTemplate(rs, graph, cat, capable)
	default:
		return nil, fmt.Errorf("rule %q declares neither builtin, template, expression, require_all, nor require_any", rs.Name)
	}
}

func buildChildren(specs []RuleSpec, graph *topology.Graph, cat catalog.DB, capable map[string]bool) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(specs))
	for _, cs := range specs {
		r, err := buildRule(cs, graph, cat, capable)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func buildBuiltin(rs RuleSpec) (rules.Rule, error) {
	switch rs.Builtin {
	case "npc_only":
		return rules.NPCOnly(), nil
	case "pod_only":
		return rules.PodOnly(), nil
	case "corp_member_victim":
		return rules.CorpMemberVictim(rs.CorpID), nil
	case "high_value":
		return rules.HighValue(rs.Threshold), nil
	case "gatecamp_detected":
		return rules.GatecampDetected(), nil
	case "watchlist_match":
		return rules.WatchlistMatch(rs.GroupName, false), nil
	case "structure_kill":
		return rules.StructureKill(), nil
	default:
		return nil, fmt.Errorf("unknown builtin %q", rs.Builtin)
	}
}

func buildTemplate(rs RuleSpec, graph *topology.Graph, cat catalog.DB, capable map[string]bool) (rules.Rule, error) {
	cmp := rules.Comparator(rs.Comparator)
	if cmp == "" {
		cmp = rules.CmpGTE
	}
	switch rules.TemplateKind(rs.Template) {
	case rules.TemplateGroupRole:
		return rules.NewGroupRole(rs.Name, rs.GroupName, rules.Role(rs.Role)), nil
	case rules.TemplateCategoryMatch:
		return rules.NewCategoryMatch(rs.Name, rs.Category, capable[rs.Category]), nil
	case rules.TemplateCategoryScore:
		return rules.NewCategoryScore(rs.Name, rs.Category, cmp, rs.Threshold, capable[rs.Category]), nil
	case rules.TemplateValueAbove:
		return rules.NewValueAbove(rs.Name, rs.Threshold), nil
	case rules.TemplateValueBelow:
		return rules.NewValueBelow(rs.Name, rs.Threshold), nil
	case rules.TemplateShipClass:
		return rules.NewShipClass(rs.Name, rs.ShipTypeIDs), nil
	case rules.TemplateShipGroup:
		return rules.NewShipGroup(rs.Name, rs.ShipGroupIDs, groupLookup{cat: cat}), nil
	case rules.TemplateSecurityBand:
		bands := make([]topology.SecurityBand, len(rs.SecurityBands))
		for i, b := range rs.SecurityBands {
			bands[i] = topology.SecurityBand(b)
		}
		return rules.NewSecurityBand(rs.Name, bands, graph), nil
	case rules.TemplateSystemMatch:
		return rules.NewSystemMatch(rs.Name, rs.SystemIDs), nil
	case rules.TemplateAttackerCount:
		return rules.NewAttackerCount(rs.Name, cmp, rs.Threshold), nil
	case rules.TemplateSoloKill:
		return rules.NewSoloKill(rs.Name), nil
	default:
		return nil, fmt.Errorf("unknown template %q", rs.Template)
	}
}

// BuildInterestMap turns a Document's interest_map block into the
// interestmap.BuildInput its package expects.
func BuildInterestMap(doc Document) interestmap.BuildInput {
	routes := make([]interestmap.RouteSpec, len(doc.InterestMap.Routes))
	for i, r := range doc.InterestMap.Routes {
		routes[i] = interestmap.RouteSpec{Name: r.Name, Waypoints: r.Waypoints, ShipTypeFilter: r.ShipTypeFilter}
	}
	entities := make([]interestmap.EntitySpec, len(doc.InterestMap.Entities))
	for i, e := range doc.InterestMap.Entities {
		entities[i] = interestmap.EntitySpec{
			Name:         e.Name,
			Corporations: e.Corporations,
			Alliances:    e.Alliances,
			Factions:     e.Factions,
			Weights: interestmap.RoleWeights{
				Victim:       e.Weights.Victim,
				FinalBlow:    e.Weights.FinalBlow,
				Attacker:     e.Weights.Attacker,
				SoloModifier: e.Weights.SoloModifier,
			},
		}
	}
	return interestmap.BuildInput{
		Geo: interestmap.GeoSpec{
			SystemScores: doc.InterestMap.GeoSystemScores,
			RegionScores: doc.InterestMap.GeoRegionScores,
		},
		Routes:   routes,
		Assets:   interestmap.AssetSpec{Structures: doc.InterestMap.AssetStructures, Offices: doc.InterestMap.AssetOffices},
		Entities: entities,
	}
}

// MergeInterestMaps combines every document's interest_map block into one
// BuildInput. The Ingestion Loop consults a single published Map per
// event rather than one per profile, so every profile's geographic
// overrides, routes, assets, and watchlist entities are folded together;
// later documents win on a per-system or per-region score collision.
func MergeInterestMaps(docs []Document) interestmap.BuildInput {
	merged := interestmap.BuildInput{
		Geo: interestmap.GeoSpec{
			SystemScores: make(map[int64]float64),
			RegionScores: make(map[int64]float64),
		},
	}
	for _, doc := range docs {
		in := BuildInterestMap(doc)
		for id, score := range in.Geo.SystemScores {
			merged.Geo.SystemScores[id] = score
		}
		for id, score := range in.Geo.RegionScores {
			merged.Geo.RegionScores[id] = score
		}
		merged.Routes = append(merged.Routes, in.Routes...)
		merged.Assets.Structures = append(merged.Assets.Structures, in.Assets.Structures...)
		merged.Assets.Offices = append(merged.Assets.Offices, in.Assets.Offices...)
		merged.Entities = append(merged.Entities, in.Entities...)
	}
	return merged
}
