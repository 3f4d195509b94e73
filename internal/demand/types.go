// Package demand computes per-item supply gaps for a response event:
// burn rates with fallback tiers, required quantities, horizon allocation
// across the three fulfillment channels, and confidence synthesis.
package demand

import (
	"time"

	"github.com/shopspring/decimal"
)

// BurnRateSource identifies how an item's burn rate was obtained.
type BurnRateSource string

// Burn rate sources, from strongest to weakest.
const (
	BurnSourceCalculated       BurnRateSource = "CALCULATED"
	BurnSourceCategoryFallback BurnRateSource = "CATEGORY_FALLBACK"
	BurnSourceNone             BurnRateSource = "NONE"
)

// Freshness classifies the age of the inventory snapshot behind a calculation.
type Freshness string

// Freshness bands.
const (
	FreshnessFresh   Freshness = "FRESH"
	FreshnessWarn    Freshness = "WARN"
	FreshnessStale   Freshness = "STALE"
	FreshnessUnknown Freshness = "UNKNOWN"
)

// Warning codes attached to item snapshots. These drive confidence synthesis
// and are surfaced verbatim to reviewers.
const (
	WarnNoBurnRows             = "no_burn_rows_in_window"
	WarnBurnRateEstimated      = "burn_rate_estimated"
	WarnBurnSourceNone         = "burn_rate_source_none"
	WarnDBUnavailable          = "db_unavailable"
	WarnInboundBestEffort      = "inbound_mapping_best_effort"
	WarnProcurementUnavailable = "procurement_unavailable_in_schema"
	WarnBurnSecondarySource    = "burn_from_secondary_source"
	WarnRestoredFromSnapshot   = "restored_from_snapshot"
)

// ConfidenceLevel is the synthesized trust band for an item calculation.
type ConfidenceLevel string

// Confidence bands.
const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence pairs a level with the diagnostic codes that produced it.
type Confidence struct {
	Level   ConfidenceLevel `json:"level"`
	Reasons []string        `json:"reasons"`
}

// HorizonAllocation splits a gap across the three fulfillment channels.
// ProcurementQty is nil when the procurement channel is not modeled in this
// deployment; nil means "channel unavailable", which is distinct from 0
// ("available but not needed").
type HorizonAllocation struct {
	TransferQty    float64  `json:"transfer_qty"`    // horizon A
	DonationQty    float64  `json:"donation_qty"`    // horizon B
	ProcurementQty *float64 `json:"procurement_qty"` // horizon C, nullable

	ActivateDonation    bool `json:"activate_donation"`
	ActivateProcurement bool `json:"activate_procurement"`
	ActivateAll         bool `json:"activate_all"`
}

// PipelineEntry is one inbound pipeline row (transfer or donation) with its
// externally defined status code.
type PipelineEntry struct {
	Qty        float64 `json:"qty"`
	StatusCode string  `json:"status_code"`
}

// ItemInputs is the raw per-item slice fetched from the data aggregator.
// Missing sources arrive zeroed with a warning in SourceWarnings; the
// calculator never aborts the batch for one item.
type ItemInputs struct {
	ItemID   string
	ItemName string
	Category string

	AvailableQty          float64
	InboundTransfers      []PipelineEntry
	InboundDonations      []PipelineEntry
	InboundProcurementQty float64

	BurnWindowTotal    float64
	BurnRowsPresent    bool
	BurnFromSecondary  bool
	CategoryAvgPerHour float64

	InventoryAsOf *time.Time

	UnitCost            *decimal.Decimal
	TransferScope       string
	DonationRestriction string
	Critical            bool

	SourceWarnings []string
}

// HasSourceWarning reports whether the warning is already attached.
func (in *ItemInputs) HasSourceWarning(warning string) bool {
	for _, w := range in.SourceWarnings {
		if w == warning {
			return true
		}
	}
	return false
}

// ItemDemandSnapshot is the per-item calculation result, ephemeral until
// committed into a needs list.
type ItemDemandSnapshot struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Category string `json:"category"`

	AvailableQty          float64 `json:"available_qty"`
	InboundTransferQty    float64 `json:"inbound_transfer_qty"`
	InboundDonationQty    float64 `json:"inbound_donation_qty"`
	InboundProcurementQty float64 `json:"inbound_procurement_qty"`

	BurnRatePerHour float64        `json:"burn_rate_per_hour"`
	BurnRateSource  BurnRateSource `json:"burn_rate_source"`

	RequiredQty float64 `json:"required_qty"`
	GapQty      float64 `json:"gap_qty"`

	// TimeToStockoutHours is nil when burn rate is zero ("no current demand").
	TimeToStockoutHours *float64 `json:"time_to_stockout_hours"`

	Freshness Freshness `json:"freshness"`

	Horizon    HorizonAllocation `json:"horizon"`
	Confidence Confidence        `json:"confidence"`
	Warnings   []string          `json:"warnings"`

	UnitCost            *decimal.Decimal `json:"unit_cost,omitempty"`
	TransferScope       string           `json:"transfer_scope,omitempty"`
	DonationRestriction string           `json:"donation_restriction,omitempty"`
	Critical            bool             `json:"critical"`
}

// Trivial reports whether the snapshot carries no signal worth caching:
// zero burn, zero gap, and no stockout pressure.
func (s ItemDemandSnapshot) Trivial() bool {
	return s.BurnRatePerHour == 0 && s.GapQty == 0 && s.RequiredQty == 0
}

// HasWarning reports whether code is present in the snapshot's warnings.
func (s ItemDemandSnapshot) HasWarning(code string) bool {
	for _, w := range s.Warnings {
		if w == code {
			return true
		}
	}
	return false
}
