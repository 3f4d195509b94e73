package identity

import "strings"

// Canonical role names used throughout the approval engine.
const (
	RoleRequester        = "requester"
	RoleLogisticsManager = "logistics_manager"
	RoleLogisticsOfficer = "logistics_officer"
	RoleWarehouseOp      = "warehouse_operator"
	RoleDirector         = "director"
	RoleSeniorDirector   = "senior_director"
	RoleAdmin            = "administrator"
)

// defaultAliasPairs lists equivalent role spellings found across the
// directory integrations. Expansion is bidirectional.
var defaultAliasPairs = map[string][]string{
	RoleLogisticsManager: {"logistics-manager", "warehouse_manager", "logistics_supervisor"},
	RoleLogisticsOfficer: {"logistics-officer", "supply_officer"},
	RoleWarehouseOp:      {"warehouse-operator", "warehouse_staff"},
	RoleDirector:         {"parish_director", "regional_director"},
	RoleSeniorDirector:   {"senior-director", "executive_director"},
	RoleAdmin:            {"admin", "platform_admin"},
}

// AliasTable expands equivalent role spellings in both directions. It is
// built once at startup and reused; alias sets are never re-derived per
// request.
type AliasTable struct {
	groups map[string]RoleSet
}

// NewAliasTable precomputes the bidirectional expansion for the given pairs.
func NewAliasTable(pairs map[string][]string) *AliasTable {
	groups := map[string]RoleSet{}
	for canonical, aliases := range pairs {
		members := NewRoleSet(normalizeRole(canonical))
		for _, a := range aliases {
			members.Add(normalizeRole(a))
		}
		// Every spelling maps to the full equivalence group.
		for m := range members {
			groups[m] = members
		}
	}
	return &AliasTable{groups: groups}
}

// DefaultAliasTable builds the table for the built-in alias pairs.
func DefaultAliasTable() *AliasTable {
	return NewAliasTable(defaultAliasPairs)
}

// Expand returns the union of the equivalence groups of all given roles.
// Roles without an alias group map to themselves.
func (t *AliasTable) Expand(roles ...string) RoleSet {
	out := RoleSet{}
	for _, r := range roles {
		norm := normalizeRole(r)
		if group, ok := t.groups[norm]; ok {
			for m := range group {
				out.Add(m)
			}
			continue
		}
		out.Add(norm)
	}
	return out
}

// Equivalent reports whether two role spellings belong to the same group.
func (t *AliasTable) Equivalent(a, b string) bool {
	return t.Expand(a).Intersects(t.Expand(b))
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
