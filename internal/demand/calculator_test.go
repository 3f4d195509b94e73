package demand

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reliefgrid.io/reliefgrid/internal/policy"
)

var testWindows = policy.PhaseWindows{
	DemandWindowHours:    72,
	PlanningWindowHours:  10,
	FreshMaxHours:        6,
	WarnMaxHours:         24,
	ProcurementLeadHours: 120,
}

func newTestCalculator(t *testing.T, mutate func(*CalculatorParams)) *Calculator {
	t.Helper()
	params := CalculatorParams{
		Windows:            testWindows,
		Phase:              policy.PhaseStabilized,
		Mapper:             policy.NewInboundMapper(policy.InboundMapping{ConfirmedTransferCodes: []string{"IN_TRANSIT"}, ConfirmedDonationCodes: []string{"CONFIRMED"}}),
		SafetyFactor:       1.25,
		HorizonAHours:      72,
		ProcurementModeled: true,
	}
	if mutate != nil {
		mutate(&params)
	}
	return NewCalculator(params)
}

func asOf(now time.Time, age time.Duration) *time.Time {
	t := now.Add(-age)
	return &t
}

func TestGapComputation(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, nil)

	// burn_rate=10, planning=10h, safety=1.25, available=5, inbound=0:
	// gap = 10*10*1.25 - 5 = 120.0
	snap := calc.Compute(ItemInputs{
		ItemID:          "WTR-001",
		AvailableQty:    5,
		BurnRowsPresent: true,
		BurnWindowTotal: 720, // 720 / 72h window = 10/h
		InventoryAsOf:   asOf(now, time.Hour),
	}, now)

	require.InDelta(t, 10.0, snap.BurnRatePerHour, 1e-9)
	require.Equal(t, BurnSourceCalculated, snap.BurnRateSource)
	require.InDelta(t, 125.0, snap.RequiredQty, 1e-9)
	require.InDelta(t, 120.0, snap.GapQty, 1e-9)
	require.NotNil(t, snap.TimeToStockoutHours)
	require.InDelta(t, 0.5, *snap.TimeToStockoutHours, 1e-9)
	require.Equal(t, FreshnessFresh, snap.Freshness)
}

func TestGapFloorsAtZero(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, func(p *CalculatorParams) { p.SafetyFactor = 1.0 })

	// burn_rate=1, planning=10h, safety=1, available=50: gap = max(0, 10-50) = 0
	snap := calc.Compute(ItemInputs{
		ItemID:          "BLK-001",
		AvailableQty:    50,
		BurnRowsPresent: true,
		BurnWindowTotal: 72,
		InventoryAsOf:   asOf(now, time.Hour),
	}, now)

	require.InDelta(t, 0.0, snap.GapQty, 1e-9)
	require.GreaterOrEqual(t, snap.GapQty, 0.0)
}

func TestZeroBurnFreshIsConfirmedIdle(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, nil)

	for _, age := range []time.Duration{time.Hour, 12 * time.Hour} { // FRESH, WARN
		snap := calc.Compute(ItemInputs{
			ItemID:             "TNT-001",
			AvailableQty:       10,
			BurnRowsPresent:    false,
			CategoryAvgPerHour: 4,
			InventoryAsOf:      asOf(now, age),
		}, now)

		require.Nil(t, snap.TimeToStockoutHours, "zero demand yields the no-current-demand sentinel")
		require.Equal(t, BurnSourceNone, snap.BurnRateSource)
		require.False(t, snap.HasWarning(WarnBurnRateEstimated))
		require.True(t, snap.HasWarning(WarnNoBurnRows))
	}

	// UNKNOWN freshness behaves the same.
	snap := calc.Compute(ItemInputs{ItemID: "TNT-001", CategoryAvgPerHour: 4}, now)
	require.Equal(t, FreshnessUnknown, snap.Freshness)
	require.Nil(t, snap.TimeToStockoutHours)
	require.False(t, snap.HasWarning(WarnBurnRateEstimated))
}

func TestZeroBurnStaleFallsBackToCategoryAverage(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, nil)

	snap := calc.Compute(ItemInputs{
		ItemID:             "MED-001",
		AvailableQty:       10,
		BurnRowsPresent:    false,
		CategoryAvgPerHour: 4,
		InventoryAsOf:      asOf(now, 48*time.Hour), // STALE
	}, now)

	require.Equal(t, FreshnessStale, snap.Freshness)
	require.Equal(t, BurnSourceCategoryFallback, snap.BurnRateSource)
	require.InDelta(t, 4.0, snap.BurnRatePerHour, 1e-9)
	require.True(t, snap.HasWarning(WarnBurnRateEstimated))
	require.Equal(t, ConfidenceLow, snap.Confidence.Level)
}

func TestStrictInboundOnlyCountsConfirmedCodes(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, func(p *CalculatorParams) { p.SafetyFactor = 1.0 })

	snap := calc.Compute(ItemInputs{
		ItemID:          "WTR-002",
		AvailableQty:    0,
		BurnRowsPresent: true,
		BurnWindowTotal: 720, // 10/h → required 100
		InboundTransfers: []PipelineEntry{
			{Qty: 30, StatusCode: "IN_TRANSIT"}, // confirmed
			{Qty: 50, StatusCode: "REQUESTED"},  // speculative
		},
		InboundDonations: []PipelineEntry{
			{Qty: 20, StatusCode: "CONFIRMED"}, // confirmed
			{Qty: 99, StatusCode: "PLEDGED"},   // speculative
		},
		InventoryAsOf: asOf(now, time.Hour),
	}, now)

	// gap = 100 - (0 + 30 + 20) = 50; speculative 149 units are ignored.
	require.InDelta(t, 50.0, snap.GapQty, 1e-9)
	require.InDelta(t, 80.0, snap.InboundTransferQty, 1e-9)
	require.InDelta(t, 119.0, snap.InboundDonationQty, 1e-9)
	// time to stockout uses strict supply only: 50/10 = 5h
	require.InDelta(t, 5.0, *snap.TimeToStockoutHours, 1e-9)
}

func TestBestEffortMappingDowngradesConfidence(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, func(p *CalculatorParams) {
		p.Mapper = policy.NewInboundMapper(policy.InboundMapping{}) // defaults → best effort
	})

	snap := calc.Compute(ItemInputs{
		ItemID:           "WTR-003",
		BurnRowsPresent:  true,
		BurnWindowTotal:  720,
		InboundTransfers: []PipelineEntry{{Qty: 10, StatusCode: "IN_TRANSIT"}},
		InventoryAsOf:    asOf(now, time.Hour),
	}, now)

	require.True(t, snap.HasWarning(WarnInboundBestEffort))
	require.Equal(t, ConfidenceMedium, snap.Confidence.Level)
}

func TestSourceWarningsCarryThrough(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, nil)

	snap := calc.Compute(ItemInputs{
		ItemID:         "MED-002",
		SourceWarnings: []string{WarnDBUnavailable},
	}, now)

	require.True(t, snap.HasWarning(WarnDBUnavailable))
	require.Equal(t, ConfidenceLow, snap.Confidence.Level)
	require.InDelta(t, 0.0, snap.GapQty, 1e-9)
}

func TestFreshnessBands(t *testing.T) {
	now := time.Now()
	calc := newTestCalculator(t, nil)

	tests := []struct {
		name string
		asOf *time.Time
		want Freshness
	}{
		{"fresh", asOf(now, 2*time.Hour), FreshnessFresh},
		{"warn", asOf(now, 12*time.Hour), FreshnessWarn},
		{"stale", asOf(now, 48*time.Hour), FreshnessStale},
		{"unknown", nil, FreshnessUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := calc.Compute(ItemInputs{ItemID: "X", InventoryAsOf: tt.asOf}, now)
			require.Equal(t, tt.want, snap.Freshness)
		})
	}
}
