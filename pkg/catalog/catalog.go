// Package catalog defines the read-only Catalog DB the core consumes for
// static-universe lookups: ship class/group for a type_id, and
// region/constellation/security placement for a system_id. It is the
// trimmed-down successor of the teacher's pkg/sde, which imported the full
// EVE Online Static Data Export (agents, blueprints, certificates, skins,
// market groups, ...). Only the lookups the Topology Graph and the Signal
// Providers actually need survive here; the rest of the SDE surface has no
// consumer in this module and was dropped rather than carried as dead code.
package catalog

import "context"

// SystemAttrs describes one star system node for the Topology Graph.
type SystemAttrs struct {
	SystemID        int64
	Name            string
	Security        float64 // security status, e.g. 0.5, -0.3
	RegionID        int64
	ConstellationID int64
}

// SystemLink is one undirected stargate connection between two systems.
type SystemLink struct {
	A, B int64
}

// TypeAttrs describes one item type (ship, module, structure, ...) for the
// ship/assets signal providers.
type TypeAttrs struct {
	TypeID  int64
	Name    string
	GroupID int64
	// CategoryID is the SDE category (6 = ship, 65 = structure, ...).
	CategoryID int64
}

// DB is the read-only interface the core queries. Missing rows are returned
// as (zero, false); the core never mutates this store.
type DB interface {
	// System returns a system's attributes.
	System(ctx context.Context, systemID int64) (SystemAttrs, bool)

	// AllSystems returns every system node, for Topology Graph construction.
	AllSystems(ctx context.Context) ([]SystemAttrs, error)

	// AllLinks returns every stargate edge, for Topology Graph construction.
	AllLinks(ctx context.Context) ([]SystemLink, error)

	// Type returns an item type's attributes (used for ship classification
	// and structure/office detection in the assets signal).
	Type(ctx context.Context, typeID int64) (TypeAttrs, bool)

	// TypesByGroup returns every type in a group, used to validate ship
	// category configuration at startup.
	TypesByGroup(ctx context.Context, groupID int64) []TypeAttrs
}
