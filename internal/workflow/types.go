// Package workflow models the needs-list aggregate and its persistent,
// auditable state machine. Two interchangeable store backends implement the
// Store contract; exactly one is selected at process start.
package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"reliefgrid.io/reliefgrid/internal/approval"
	"reliefgrid.io/reliefgrid/internal/demand"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/policy"
)

// Status is the workflow state of a needs list.
type Status string

// Workflow states.
const (
	StatusDraft           Status = "DRAFT"
	StatusModified        Status = "MODIFIED" // returned for changes
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusUnderReview     Status = "UNDER_REVIEW" // escalated
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusInPreparation   Status = "IN_PREPARATION"
	StatusDispatched      Status = "DISPATCHED"
	StatusReceived        Status = "RECEIVED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
	StatusSuperseded      Status = "SUPERSEDED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusSuperseded:
		return true
	}
	return false
}

// Editable reports whether line overrides may still be written.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusModified
}

// PendingReview reports whether review comments may be written.
func (s Status) PendingReview() bool {
	return s == StatusPendingApproval || s == StatusUnderReview
}

// allowedTransitions is the full transition table. Guards beyond the shape
// of the graph (actor separation, role authorization, escalation blocks)
// live in the engine.
var allowedTransitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval, StatusSuperseded},
	StatusModified:        {StatusPendingApproval, StatusSuperseded},
	StatusPendingApproval: {StatusModified, StatusRejected, StatusUnderReview, StatusApproved, StatusSuperseded},
	StatusUnderReview:     {StatusModified, StatusRejected, StatusApproved},
	StatusApproved:        {StatusInPreparation, StatusCancelled},
	StatusInPreparation:   {StatusDispatched, StatusCancelled},
	StatusDispatched:      {StatusReceived},
	StatusReceived:        {StatusCompleted},
}

// CanTransition reports whether the transition exists in the table.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// supersedableStatuses are the "early" states a newer draft may displace.
// Records already UNDER_REVIEW or beyond are never superseded.
var supersedableStatuses = []Status{StatusDraft, StatusModified, StatusPendingApproval}

// Supersedable reports whether a record in this status may be displaced by
// a newer draft for the same scope and actor.
func (s Status) Supersedable() bool {
	for _, c := range supersedableStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// ReturnReasonCode is the closed enum for "request changes" decisions.
type ReturnReasonCode string

// Return reason codes.
const (
	ReasonQtyAdjustment        ReturnReasonCode = "QTY_ADJUSTMENT"
	ReasonDataQuality          ReturnReasonCode = "DATA_QUALITY"
	ReasonMissingJustification ReturnReasonCode = "MISSING_JUSTIFICATION"
	ReasonScopeMismatch        ReturnReasonCode = "SCOPE_MISMATCH"
	ReasonPolicyCompliance     ReturnReasonCode = "POLICY_COMPLIANCE"
	ReasonOther                ReturnReasonCode = "OTHER"
)

// ParseReturnReasonCode validates a raw reason code.
func ParseReturnReasonCode(raw string) (ReturnReasonCode, error) {
	switch ReturnReasonCode(raw) {
	case ReasonQtyAdjustment, ReasonDataQuality, ReasonMissingJustification,
		ReasonScopeMismatch, ReasonPolicyCompliance, ReasonOther:
		return ReturnReasonCode(raw), nil
	default:
		return "", apperrors.BadRequest(apperrors.CodeInvalidReasonCode,
			fmt.Sprintf("unknown return reason code %q", raw))
	}
}

// LineOverride replaces a computed quantity while the list is editable.
// The original computed value is always retained on the snapshot.
type LineOverride struct {
	ItemID string    `json:"item_id"`
	Qty    float64   `json:"qty"`
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// ReviewNote is a per-item comment written while the list awaits approval.
type ReviewNote struct {
	ItemID  string    `json:"item_id"`
	Comment string    `json:"comment"`
	Actor   string    `json:"actor"`
	At      time.Time `json:"at"`
}

// AuditEntry is one append-only status transition record. Audit rows are
// never mutated or deleted.
type AuditEntry struct {
	ID         string           `json:"id"`
	FromStatus Status           `json:"from_status"`
	ToStatus   Status           `json:"to_status"`
	Actor      string           `json:"actor"`
	At         time.Time        `json:"at"`
	Reason     string           `json:"reason,omitempty"`
	ReasonCode ReturnReasonCode `json:"reason_code,omitempty"`
}

// Line is one committed item snapshot plus its optional override.
type Line struct {
	Snapshot demand.ItemDemandSnapshot `json:"snapshot"`
	Override *LineOverride             `json:"override,omitempty"`
}

// EffectiveQty returns the overridden quantity when present, otherwise the
// computed gap.
func (l Line) EffectiveQty() float64 {
	if l.Override != nil {
		return l.Override.Qty
	}
	return l.Snapshot.GapQty
}

// NeedsList is the aggregate root.
type NeedsList struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	EventID    string       `json:"event_id"`
	Warehouses []string     `json:"warehouses"` // sorted
	Phase      policy.Phase `json:"phase"`

	PresetVersion       string    `json:"preset_version"`
	CalculatedAt        time.Time `json:"calculated_at"`
	DemandWindowHours   float64   `json:"demand_window_hours"`
	PlanningWindowHours float64   `json:"planning_window_hours"`
	SafetyFactor        float64   `json:"safety_factor"`

	Status Status           `json:"status"`
	Method *approval.Method `json:"method,omitempty"`

	Lines       []Line       `json:"lines"`
	ReviewNotes []ReviewNote `json:"review_notes,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SubmittedBy string     `json:"submitted_by,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`

	// Decision is the point-in-time approval summary captured at submit and
	// finalized at approval.
	Decision *approval.Decision `json:"decision,omitempty"`

	Supersedes   []string `json:"supersedes,omitempty"`
	SupersededBy string   `json:"superseded_by,omitempty"`

	Audit []AuditEntry `json:"audit"`
}

// ScopeKey identifies the supersession scope: one response event, one
// warehouse set, one phase. Warehouses are order-insensitive.
func ScopeKey(eventID string, warehouses []string, phase policy.Phase) string {
	sorted := append([]string(nil), warehouses...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%s|%s", eventID, strings.Join(sorted, ","), phase)
}

// Scope returns the list's supersession scope key.
func (n *NeedsList) Scope() string {
	return ScopeKey(n.EventID, n.Warehouses, n.Phase)
}

// FindLine returns the line for an item id, or nil.
func (n *NeedsList) FindLine(itemID string) *Line {
	for i := range n.Lines {
		if n.Lines[i].Snapshot.ItemID == itemID {
			return &n.Lines[i]
		}
	}
	return nil
}

// ApprovalLines projects the list into resolver lines using effective
// quantities.
func (n *NeedsList) ApprovalLines() []approval.Line {
	out := make([]approval.Line, 0, len(n.Lines))
	for _, l := range n.Lines {
		out = append(out, approval.LineFromSnapshot(l.Snapshot, l.EffectiveQty()))
	}
	return out
}
