// Package approval resolves the authority required to approve a needs list:
// the tier, the approver role set, the permitted fulfillment methods, and
// whether Appendix-C escalation applies.
package approval

import (
	"fmt"

	"github.com/shopspring/decimal"

	"reliefgrid.io/reliefgrid/internal/demand"
	"reliefgrid.io/reliefgrid/internal/identity"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/policy"
)

// Method is a selected fulfillment method for the whole list.
type Method string

// Fulfillment methods.
const (
	MethodTransfer    Method = "transfer"
	MethodDonation    Method = "donation"
	MethodProcurement Method = "procurement"
)

// ParseMethod validates an optional method string; empty means unset.
func ParseMethod(raw string) (*Method, error) {
	if raw == "" {
		return nil, nil
	}
	switch Method(raw) {
	case MethodTransfer, MethodDonation, MethodProcurement:
		m := Method(raw)
		return &m, nil
	default:
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			fmt.Sprintf("unknown fulfillment method %q", raw))
	}
}

// Tier is the authority level required for approval.
type Tier string

// Tiers, from least to most authority.
const (
	TierLogistics Tier = "TIER_1_LOGISTICS"
	TierDirector  Tier = "TIER_2_DIRECTOR"
	TierExecutive Tier = "TIER_3_EXECUTIVE"
)

// Procurement method names unlocked per cost band.
const (
	ProcDirectPurchase  = "direct_purchase"
	ProcLimitedTender   = "limited_tender"
	ProcIntlBidding     = "international_bidding"
	warnCostMissing     = "cost_missing_conservative_tier"
	warnEscalationLines = "escalation_required_lines"
)

// Decision is the resolved approval authority for one needs list.
type Decision struct {
	Tier               Tier             `json:"tier"`
	ApproverRoles      identity.RoleSet `json:"approver_roles"`
	MethodsAllowed     []string         `json:"methods_allowed"`
	Rationale          string           `json:"rationale"`
	EscalationRequired bool             `json:"escalation_required"`
	Warnings           []string         `json:"warnings"`
	TotalEstimatedCost *decimal.Decimal `json:"total_estimated_cost,omitempty"`
}

// costBands are the per-phase thresholds separating the three tiers.
// SURGE loosens the bands so field approvals keep moving; BASELINE tightens
// them back to standing policy.
var costBands = map[policy.Phase]struct{ lowMax, midMax decimal.Decimal }{
	policy.PhaseSurge:      {lowMax: decimal.NewFromInt(20000), midMax: decimal.NewFromInt(200000)},
	policy.PhaseStabilized: {lowMax: decimal.NewFromInt(10000), midMax: decimal.NewFromInt(100000)},
	policy.PhaseBaseline:   {lowMax: decimal.NewFromInt(5000), midMax: decimal.NewFromInt(50000)},
}

// Resolver computes approval decisions. The alias table is precomputed at
// startup and shared.
type Resolver struct {
	aliases *identity.AliasTable
}

// NewResolver creates a Resolver.
func NewResolver(aliases *identity.AliasTable) *Resolver {
	return &Resolver{aliases: aliases}
}

// Input is everything the resolver needs for one list.
type Input struct {
	Lines          []Line
	Phase          policy.Phase
	Method         *Method // nil when unset
	SubmitterRoles []string
}

// Line is the per-line view the resolver consumes: effective quantity,
// pricing, and the channel attributes that drive Appendix-C escalation.
type Line struct {
	ItemID              string
	Qty                 float64 // effective (overridden when present)
	UnitCost            *decimal.Decimal
	TransferQty         float64
	TransferScope       string
	DonationQty         float64
	DonationRestriction string
}

// LineFromSnapshot builds a resolver line from a committed demand snapshot.
func LineFromSnapshot(s demand.ItemDemandSnapshot, effectiveQty float64) Line {
	return Line{
		ItemID:              s.ItemID,
		Qty:                 effectiveQty,
		UnitCost:            s.UnitCost,
		TransferQty:         s.Horizon.TransferQty,
		TransferScope:       s.TransferScope,
		DonationQty:         s.Horizon.DonationQty,
		DonationRestriction: s.DonationRestriction,
	}
}

// Resolve computes the approval decision for a list.
func (r *Resolver) Resolve(in Input) Decision {
	total, costMissing := aggregateCost(in.Lines)

	var d Decision
	switch {
	case in.Method != nil && *in.Method == MethodTransfer:
		d = r.resolveTransfer(in.SubmitterRoles)
	case in.Method != nil && *in.Method == MethodDonation:
		d = Decision{
			Tier:           TierExecutive,
			ApproverRoles:  r.aliases.Expand(identity.RoleSeniorDirector),
			MethodsAllowed: []string{string(MethodDonation)},
			Rationale:      "donation fulfillment routes to the senior-director role set",
		}
	default:
		d = r.resolveByCost(total, costMissing, in.Phase)
	}

	if !costMissing {
		d.TotalEstimatedCost = &total
	} else {
		d.Warnings = append(d.Warnings, warnCostMissing)
	}

	if escalated := escalationRequired(in.Lines); escalated {
		d.EscalationRequired = true
		d.Warnings = append(d.Warnings, warnEscalationLines)
	}

	return d
}

// resolveTransfer: transfers always sit in the lowest band, approved by
// logistics managers. A logistics submitter cannot self-approve, so the
// approver set widens to the director role as an approve-on-behalf
// allowance.
func (r *Resolver) resolveTransfer(submitterRoles []string) Decision {
	approvers := r.aliases.Expand(identity.RoleLogisticsManager)
	rationale := "transfer fulfillment is approved by logistics managers"

	submitter := r.aliases.Expand(submitterRoles...)
	if submitter.Intersects(r.aliases.Expand(identity.RoleLogisticsManager, identity.RoleLogisticsOfficer)) {
		for role := range r.aliases.Expand(identity.RoleDirector) {
			approvers.Add(role)
		}
		rationale += "; submitter holds a logistics role, director may approve on behalf"
	}

	return Decision{
		Tier:           TierLogistics,
		ApproverRoles:  approvers,
		MethodsAllowed: []string{string(MethodTransfer)},
		Rationale:      rationale,
	}
}

// resolveByCost applies the phase-banded cost table for procurement or an
// unset method. Missing or unreliable cost forces the most conservative band.
func (r *Resolver) resolveByCost(total decimal.Decimal, costMissing bool, phase policy.Phase) Decision {
	bands, ok := costBands[phase]
	if !ok {
		bands = costBands[policy.PhaseBaseline]
	}

	switch {
	case costMissing:
		return Decision{
			Tier:           TierExecutive,
			ApproverRoles:  r.aliases.Expand(identity.RoleSeniorDirector),
			MethodsAllowed: []string{ProcDirectPurchase, ProcLimitedTender, ProcIntlBidding},
			Rationale:      "estimated cost unavailable; most conservative tier applies",
		}
	case total.LessThanOrEqual(bands.lowMax):
		return Decision{
			Tier:           TierLogistics,
			ApproverRoles:  r.aliases.Expand(identity.RoleLogisticsManager),
			MethodsAllowed: []string{ProcDirectPurchase},
			Rationale:      fmt.Sprintf("estimated cost %s within the low band for phase %s", total.StringFixed(2), phase),
		}
	case total.LessThanOrEqual(bands.midMax):
		return Decision{
			Tier:           TierDirector,
			ApproverRoles:  r.aliases.Expand(identity.RoleDirector),
			MethodsAllowed: []string{ProcDirectPurchase, ProcLimitedTender},
			Rationale:      fmt.Sprintf("estimated cost %s within the mid band for phase %s", total.StringFixed(2), phase),
		}
	default:
		return Decision{
			Tier:           TierExecutive,
			ApproverRoles:  r.aliases.Expand(identity.RoleSeniorDirector),
			MethodsAllowed: []string{ProcDirectPurchase, ProcLimitedTender, ProcIntlBidding},
			Rationale:      fmt.Sprintf("estimated cost %s exceeds the mid band for phase %s", total.StringFixed(2), phase),
		}
	}
}

// aggregateCost sums unit cost × effective quantity. Any line with quantity
// and no price degrades the whole list to "cost missing".
func aggregateCost(lines []Line) (decimal.Decimal, bool) {
	total := decimal.Zero
	missing := false
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		if l.UnitCost == nil {
			missing = true
			continue
		}
		total = total.Add(l.UnitCost.Mul(decimal.NewFromFloat(l.Qty)))
	}
	return total, missing
}

// Authorize verifies an approver against a resolved decision: the approver
// must differ from the submitter and hold a role intersecting the decision's
// approver set (alias spellings expand both ways).
func (r *Resolver) Authorize(d Decision, submitterID, approverID string, approverRoles []string) error {
	if submitterID == approverID {
		return apperrors.ErrSelfApprovalf(approverID)
	}
	if !r.aliases.Expand(approverRoles...).Intersects(d.ApproverRoles) {
		return apperrors.Forbidden(apperrors.CodeApproverRole,
			"approver role set does not intersect the required approver roles").
			WithParams(map[string]interface{}{
				"required_roles": d.ApproverRoles.Values(),
				"tier":           string(d.Tier),
			})
	}
	return nil
}
