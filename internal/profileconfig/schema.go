// Package profileconfig loads operator-facing profile YAML into the
// runtime types internal/interest, internal/rules, internal/signals, and
// internal/interestmap actually consume. The split mirrors the teacher's
// config/runtime layering in the ariadne reference repo: a flat YAML
// schema decoded with gopkg.in/yaml.v3, then a build step that resolves
// names and weights into live objects closing over the topology graph and
// catalog DB. Profiles are read once at startup and again on every
// fsnotify change via internal/interestmap.Watcher's RebuildFunc.
package profileconfig

// Document is the top-level shape of one profile YAML file.
type Document struct {
	Name         string            `yaml:"name"`
	Blend        string            `yaml:"blend"`
	PrefetchMode string            `yaml:"prefetch_mode"`
	Thresholds   ThresholdsSpec    `yaml:"thresholds"`
	RateLimit    RateLimitSpec     `yaml:"rate_limit"`
	Categories   []CategorySpec    `yaml:"categories"`
	Rules        []RuleSpec        `yaml:"rules"`
	InterestMap  InterestMapSpec   `yaml:"interest_map"`
	Delivery     []DeliverySpec    `yaml:"delivery"`
	UnknownAssumption float64      `yaml:"unknown_assumption"`
	LegacyWatchlistAttackerScope bool `yaml:"legacy_watchlist_attacker_scope"`
}

// ThresholdsSpec mirrors interest.Thresholds.
type ThresholdsSpec struct {
	Digest   float64 `yaml:"digest"`
	Notify   float64 `yaml:"notify"`
	Priority float64 `yaml:"priority"`
}

// RateLimitSpec mirrors interest.RateLimitConfig.
type RateLimitSpec struct {
	MaxPerHour            int  `yaml:"max_per_hour"`
	Burst                 int  `yaml:"burst"`
	BypassForAlwaysNotify bool `yaml:"bypass_for_always_notify"`
	DigestWindowSeconds   int  `yaml:"digest_window_seconds"`
}

// CategorySpec names one signal category, its weight, and the provider
// configuration feeding it. Name selects which internal/signals
// constructor to use; the per-category sub-specs below are a union, only
// the one matching Name is read.
type CategorySpec struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`

	Activity ActivitySpec `yaml:"activity"`
	Location LocationSpec `yaml:"location"`
	Politics PoliticsSpec `yaml:"politics"`
	Routes   RoutesSpec   `yaml:"routes"`
	Ship     ShipSpec     `yaml:"ship"`
	Time     TimeSpec     `yaml:"time"`
	Value    ValueSpec    `yaml:"value"`
	War      WarSpec      `yaml:"war"`
	// assets has no configuration fields.
}

type ActivitySpec struct {
	WindowMinutes   int     `yaml:"window_minutes"`
	SaturationKills float64 `yaml:"saturation_kills"`
}

type LocationSpec struct {
	GeoWeight       float64            `yaml:"geo_weight"`
	HighSecScore    *float64           `yaml:"highsec_score"`
	LowSecScore     *float64           `yaml:"lowsec_score"`
	NullSecScore    *float64           `yaml:"nullsec_score"`
}

type PoliticsSpec struct {
	Groups      []string  `yaml:"groups"`
	Aggregation string    `yaml:"aggregation"`
	Penalties   []float64 `yaml:"penalties"`
}

type RoutesSpec struct {
	HasShipFilter bool `yaml:"has_ship_filter"`
}

type ShipSpec struct {
	Prefer       map[int64]float64 `yaml:"prefer"`
	Avoid        []int64           `yaml:"avoid"`
	CapitalBoost float64           `yaml:"capital_boost"`
}

type TimeSpec struct {
	Windows []TimeWindowSpec `yaml:"windows"`
}

type TimeWindowSpec struct {
	StartMinute int `yaml:"start_minute"`
	EndMinute   int `yaml:"end_minute"`
}

type ValueSpec struct {
	Mode      string  `yaml:"mode"`
	Pivot     float64 `yaml:"pivot"`
	Steepness float64 `yaml:"steepness"`
}

type WarSpec struct {
	Groups []string `yaml:"groups"`
}

// RuleSpec declares one rule: which template/expression/builtin it wraps
// and what effect a match carries, matching rules.Declaration but in
// YAML-friendly scalar form.
type RuleSpec struct {
	Name            string `yaml:"name"`
	Effect          string `yaml:"effect"` // always_ignore | always_notify | gate
	LogThreshold    bool   `yaml:"log_threshold"`
	ForcePriority   bool   `yaml:"force_priority"`
	BypassRateLimit bool   `yaml:"bypass_rate_limit"`

	Builtin    string `yaml:"builtin"`    // npc_only | pod_only | corp_member_victim | high_value | gatecamp_detected | watchlist_match | structure_kill
	CorpID     int64  `yaml:"corp_id"`    // corp_member_victim
	Threshold  float64 `yaml:"threshold"` // high_value / value_above / value_below / category_score / attacker_count
	GroupName  string `yaml:"group_name"` // watchlist_match / group_role

	Template   string   `yaml:"template"`
	Role       string   `yaml:"role"`       // group_role
	Category   string   `yaml:"category"`   // category_match / category_score
	Comparator string   `yaml:"comparator"` // category_score / value_above-below / attacker_count: gte|lte|eq
	ShipTypeIDs []int64 `yaml:"ship_type_ids"`
	ShipGroupIDs []int64 `yaml:"ship_group_ids"`
	SecurityBands []string `yaml:"security_bands"`
	SystemIDs  []int64  `yaml:"system_ids"`

	RequireAll []RuleSpec `yaml:"require_all"`
	RequireAny []RuleSpec `yaml:"require_any"`

	Expression string `yaml:"expression"`
}

// InterestMapSpec mirrors interestmap.BuildInput in YAML form.
type InterestMapSpec struct {
	GeoSystemScores map[int64]float64 `yaml:"geo_system_scores"`
	GeoRegionScores map[int64]float64 `yaml:"geo_region_scores"`
	Routes          []RouteSpecYAML   `yaml:"routes"`
	AssetStructures []int64           `yaml:"asset_structures"`
	AssetOffices    []int64           `yaml:"asset_offices"`
	Entities        []EntitySpecYAML  `yaml:"entities"`
}

type RouteSpecYAML struct {
	Name           string  `yaml:"name"`
	Waypoints      []int64 `yaml:"waypoints"`
	ShipTypeFilter []int64 `yaml:"ship_type_filter"`
}

type EntitySpecYAML struct {
	Name         string  `yaml:"name"`
	Corporations []int64 `yaml:"corporations"`
	Alliances    []int64 `yaml:"alliances"`
	Factions     []int64 `yaml:"factions"`
	Weights      RoleWeightsSpec `yaml:"weights"`
}

type RoleWeightsSpec struct {
	Victim       float64 `yaml:"victim"`
	FinalBlow    float64 `yaml:"final_blow"`
	Attacker     float64 `yaml:"attacker"`
	SoloModifier float64 `yaml:"solo_modifier"`
}

// DeliverySpec names one delivery provider attached to a profile, resolved
// by internal/delivery at wiring time (profileconfig only carries the
// declaration, not live provider instances, since providers need shared
// HTTP clients the config loader has no business owning).
type DeliverySpec struct {
	Kind    string `yaml:"kind"` // log | webhook | discord | email
	Target  string `yaml:"target"` // webhook/discord URL, or email address
}
