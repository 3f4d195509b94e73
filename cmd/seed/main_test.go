package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoCatalogIntegrity(t *testing.T) {
	t.Parallel()

	items := demoCatalog()
	require.NotEmpty(t, items)

	byID := make(map[string]catalogItem, len(items))
	for _, item := range items {
		_, dup := byID[item.ID]
		require.False(t, dup, "duplicate catalog item id %s", item.ID)
		byID[item.ID] = item

		assert.NotEmpty(t, item.Name, "item %s needs a name", item.ID)
		assert.NotEmpty(t, item.Category, "item %s needs a category", item.ID)

		cost, err := decimal.NewFromString(item.UnitCost)
		require.NoError(t, err, "item %s unit cost must parse", item.ID)
		assert.True(t, cost.IsPositive(), "item %s unit cost must be positive", item.ID)
	}

	// The scenario needs at least one critical item and one restricted
	// donation item so escalation paths show up in demo previews.
	var critical, restricted bool
	for _, item := range items {
		if item.Critical {
			critical = true
		}
		if item.Restriction != "" {
			restricted = true
		}
	}
	assert.True(t, critical)
	assert.True(t, restricted)
}
