package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorContextRoundTrip(t *testing.T) {
	actor := Actor{ID: "u-1", Roles: []string{RoleDirector}}
	ctx := WithActor(context.Background(), actor)

	got, ok := ActorFrom(ctx)
	require.True(t, ok)
	require.Equal(t, actor, got)

	_, ok = ActorFrom(context.Background())
	require.False(t, ok)
}

func TestRoleSet(t *testing.T) {
	s := NewRoleSet("a", "b")
	require.True(t, s.Has("a"))
	require.False(t, s.Has("c"))
	require.True(t, s.Intersects(NewRoleSet("c", "b")))
	require.False(t, s.Intersects(NewRoleSet("x")))
	require.Equal(t, []string{"a", "b"}, s.Values())
}

func TestAliasExpansionBidirectional(t *testing.T) {
	table := DefaultAliasTable()

	// canonical → aliases
	set := table.Expand(RoleLogisticsManager)
	require.True(t, set.Has("warehouse_manager"))
	require.True(t, set.Has("logistics-manager"))

	// alias → canonical (and siblings)
	set = table.Expand("Executive_Director")
	require.True(t, set.Has(RoleSeniorDirector))

	require.True(t, table.Equivalent("warehouse_manager", "logistics_supervisor"))
	require.False(t, table.Equivalent("warehouse_manager", RoleDirector))
}

func TestAliasExpansionUnknownRolePassesThrough(t *testing.T) {
	table := DefaultAliasTable()
	set := table.Expand("Field_Medic")
	require.True(t, set.Has("field_medic"))
	require.Len(t, set, 1)
}

func TestPermissions(t *testing.T) {
	table := DefaultAliasTable()

	require.True(t, HasPermission(table, []string{"warehouse_manager"}, PermApprove),
		"alias spelling grants the canonical role's permissions")
	require.True(t, HasPermission(table, []string{RoleRequester}, PermDraft))
	require.False(t, HasPermission(table, []string{RoleRequester}, PermApprove))
	require.False(t, HasPermission(table, []string{RoleWarehouseOp}, PermSubmit))
	require.True(t, HasPermission(table, []string{"admin"}, PermGenerate))
}
