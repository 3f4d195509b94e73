package demand

import (
	"time"

	"reliefgrid.io/reliefgrid/internal/policy"
)

// DefaultSafetyFactor buffers raw demand into a stock target.
const DefaultSafetyFactor = 1.25

// Calculator turns aggregator inputs into item demand snapshots for one
// (event, warehouse scope, phase) calculation run.
type Calculator struct {
	windows      policy.PhaseWindows
	phase        policy.Phase
	mapper       *policy.InboundMapper
	safetyFactor float64

	horizonAHours      float64
	procurementModeled bool
}

// CalculatorParams configures a calculation run.
type CalculatorParams struct {
	Windows            policy.PhaseWindows
	Phase              policy.Phase
	Mapper             *policy.InboundMapper
	SafetyFactor       float64 // zero means DefaultSafetyFactor
	HorizonAHours      float64
	ProcurementModeled bool
}

// NewCalculator builds a calculator for one run.
func NewCalculator(p CalculatorParams) *Calculator {
	safety := p.SafetyFactor
	if safety <= 0 {
		safety = DefaultSafetyFactor
	}
	return &Calculator{
		windows:            p.Windows,
		phase:              p.Phase,
		mapper:             p.Mapper,
		safetyFactor:       safety,
		horizonAHours:      p.HorizonAHours,
		procurementModeled: p.ProcurementModeled,
	}
}

// SafetyFactor returns the effective safety factor for this run.
func (c *Calculator) SafetyFactor() float64 { return c.safetyFactor }

// Compute produces the demand snapshot for one item. A failed data source
// degrades into warnings and zeroed inputs upstream; Compute itself never
// returns an error.
func (c *Calculator) Compute(in ItemInputs, now time.Time) ItemDemandSnapshot {
	snap := ItemDemandSnapshot{
		ItemID:                in.ItemID,
		ItemName:              in.ItemName,
		Category:              in.Category,
		AvailableQty:          in.AvailableQty,
		InboundProcurementQty: in.InboundProcurementQty,
		UnitCost:              in.UnitCost,
		TransferScope:         in.TransferScope,
		DonationRestriction:   in.DonationRestriction,
		Critical:              in.Critical,
	}
	snap.Warnings = append(snap.Warnings, in.SourceWarnings...)

	snap.Freshness = c.classifyFreshness(in.InventoryAsOf, now)

	// Strict inbound: only quantities whose status code is allow-listed count
	// toward supply; the rest of the pipeline is speculative.
	var strictTransfer, strictDonation float64
	for _, e := range in.InboundTransfers {
		snap.InboundTransferQty += e.Qty
		if c.mapper.ConfirmedTransfer(e.StatusCode) {
			strictTransfer += e.Qty
		}
	}
	for _, e := range in.InboundDonations {
		snap.InboundDonationQty += e.Qty
		if c.mapper.ConfirmedDonation(e.StatusCode) {
			strictDonation += e.Qty
		}
	}
	if c.mapper.BestEffort() && (len(in.InboundTransfers) > 0 || len(in.InboundDonations) > 0) {
		snap.Warnings = appendUnique(snap.Warnings, WarnInboundBestEffort)
	}
	strictInbound := strictTransfer + strictDonation

	snap.BurnRatePerHour, snap.BurnRateSource = c.resolveBurnRate(in, snap.Freshness, &snap.Warnings)
	if in.BurnFromSecondary && snap.BurnRateSource == BurnSourceCalculated {
		snap.Warnings = appendUnique(snap.Warnings, WarnBurnSecondarySource)
	}

	required := snap.BurnRatePerHour * c.windows.PlanningWindowHours * c.safetyFactor
	if required < 0 {
		required = 0
	}
	snap.RequiredQty = required

	gap := required - (in.AvailableQty + strictInbound)
	if gap < 0 {
		gap = 0
	}
	snap.GapQty = gap

	if snap.BurnRatePerHour > 0 {
		tts := (in.AvailableQty + strictInbound) / snap.BurnRatePerHour
		snap.TimeToStockoutHours = &tts
	}

	snap.Horizon = c.allocate(gap, snap.TimeToStockoutHours, in.Critical, &snap.Warnings)
	snap.Confidence = Synthesize(snap.BurnRateSource, snap.Warnings)

	return snap
}

// resolveBurnRate applies the fallback tiers of the burn model.
//
// Zero burn with FRESH/WARN/UNKNOWN freshness is confirmed idle: no estimate.
// Zero burn with STALE freshness means no recent visibility: fall back to
// the category average and flag the estimate.
func (c *Calculator) resolveBurnRate(in ItemInputs, fresh Freshness, warnings *[]string) (float64, BurnRateSource) {
	if in.BurnRowsPresent && in.BurnWindowTotal > 0 {
		return in.BurnWindowTotal / c.windows.DemandWindowHours, BurnSourceCalculated
	}

	if fresh == FreshnessStale && in.CategoryAvgPerHour > 0 {
		*warnings = appendUnique(*warnings, WarnBurnRateEstimated)
		if !in.BurnRowsPresent {
			*warnings = appendUnique(*warnings, WarnNoBurnRows)
		}
		return in.CategoryAvgPerHour, BurnSourceCategoryFallback
	}

	if !in.BurnRowsPresent {
		*warnings = appendUnique(*warnings, WarnNoBurnRows)
		return 0, BurnSourceNone
	}
	// Rows exist and sum to zero: confirmed idle.
	return 0, BurnSourceCalculated
}

func (c *Calculator) classifyFreshness(asOf *time.Time, now time.Time) Freshness {
	if asOf == nil {
		return FreshnessUnknown
	}
	ageHours := now.Sub(*asOf).Hours()
	switch {
	case ageHours <= c.windows.FreshMaxHours:
		return FreshnessFresh
	case ageHours <= c.windows.WarnMaxHours:
		return FreshnessWarn
	default:
		return FreshnessStale
	}
}

func appendUnique(warnings []string, code string) []string {
	for _, w := range warnings {
		if w == code {
			return warnings
		}
	}
	return append(warnings, code)
}
