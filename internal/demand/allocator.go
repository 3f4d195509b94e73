package demand

import "reliefgrid.io/reliefgrid/internal/policy"

// allocate splits a gap across the three horizons.
//
// Horizon A covers a fixed near-term transfer window; horizon B fills the
// remainder of the planning window; horizon C is procurement, which may be
// absent from the deployment schema entirely (nil, not zero).
func (c *Calculator) allocate(gap float64, tts *float64, critical bool, warnings *[]string) HorizonAllocation {
	alloc := HorizonAllocation{}

	aHours := c.horizonAHours
	if aHours > c.windows.PlanningWindowHours {
		aHours = c.windows.PlanningWindowHours
	}
	bHours := c.windows.PlanningWindowHours - aHours

	if gap > 0 && aHours+bHours > 0 {
		alloc.TransferQty = gap * aHours / (aHours + bHours)
		alloc.DonationQty = gap - alloc.TransferQty
	}

	if c.procurementModeled {
		zero := 0.0
		alloc.ProcurementQty = &zero
	} else {
		alloc.ProcurementQty = nil
		*warnings = appendUnique(*warnings, WarnProcurementUnavailable)
	}

	criticalSurge := critical && c.phase == policy.PhaseSurge

	alloc.ActivateDonation = alloc.DonationQty > 0
	alloc.ActivateProcurement = (alloc.ProcurementQty != nil && *alloc.ProcurementQty > 0) ||
		(criticalSurge && tts != nil && *tts < c.windows.ProcurementLeadHours)
	alloc.ActivateAll = gap > 0

	// A critical item during SURGE forces every channel flag, even when the
	// computed procurement quantity is null or zero. Approvers rely on the
	// flags to pre-stage donation and procurement channels before a gap
	// materializes, so zero-gap critical items still light up.
	if criticalSurge {
		alloc.ActivateDonation = true
		alloc.ActivateProcurement = true
		alloc.ActivateAll = true
	}

	return alloc
}
