package workflow

import (
	"fmt"

	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
)

// ApplyTransition mutates the record in place after verifying the
// compare-and-set precondition and the transition table. Both backends call
// this inside their atomic section so the status graph is enforced once.
func ApplyTransition(n *NeedsList, req TransitionRequest, auditID string) error {
	matched := len(req.From) == 0
	for _, s := range req.From {
		if n.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return apperrors.ErrStatusConflictf(string(n.Status), string(req.To))
	}
	if !CanTransition(n.Status, req.To) {
		return apperrors.ErrStatusConflictf(string(n.Status), string(req.To))
	}

	entry := AuditEntry{
		ID:         auditID,
		FromStatus: n.Status,
		ToStatus:   req.To,
		Actor:      req.Actor,
		At:         req.At,
		Reason:     req.Reason,
		ReasonCode: req.ReasonCode,
	}

	n.Status = req.To
	n.UpdatedAt = req.At
	n.Audit = append(n.Audit, entry)

	switch req.To {
	case StatusPendingApproval:
		at := req.At
		n.SubmittedBy = req.Actor
		n.SubmittedAt = &at
	case StatusApproved:
		at := req.At
		n.ApprovedBy = req.Actor
		n.ApprovedAt = &at
	}
	if req.Decision != nil {
		n.Decision = req.Decision
	}
	if req.Method != nil {
		n.Method = req.Method
	}
	return nil
}

// ApplyLineOverride mutates the record in place after verifying the record
// is still editable and the item exists.
func ApplyLineOverride(n *NeedsList, ov LineOverride) error {
	if !n.Status.Editable() {
		return apperrors.ErrStatusConflictf(string(n.Status), "edit_lines")
	}
	line := n.FindLine(ov.ItemID)
	if line == nil {
		return apperrors.BadRequest(apperrors.CodeInvalidItemKey,
			fmt.Sprintf("item %q is not on this needs list", ov.ItemID))
	}
	if ov.Qty < 0 {
		return apperrors.BadRequest(apperrors.CodeValidationFailed,
			"override quantity must be non-negative")
	}
	snapshot := ov
	line.Override = &snapshot
	n.UpdatedAt = ov.At
	return nil
}

// ApplyReviewNote mutates the record in place after verifying the record is
// awaiting review and the item exists.
func ApplyReviewNote(n *NeedsList, note ReviewNote) error {
	if !n.Status.PendingReview() {
		return apperrors.ErrStatusConflictf(string(n.Status), "review_comment")
	}
	if n.FindLine(note.ItemID) == nil {
		return apperrors.BadRequest(apperrors.CodeInvalidItemKey,
			fmt.Sprintf("item %q is not on this needs list", note.ItemID))
	}
	n.ReviewNotes = append(n.ReviewNotes, note)
	n.UpdatedAt = note.At
	return nil
}

// MatchesFilter reports whether the record satisfies every set field.
func (n *NeedsList) MatchesFilter(f ListFilter) bool {
	if f.EventID != "" && n.EventID != f.EventID {
		return false
	}
	if f.CreatedBy != "" && n.CreatedBy != f.CreatedBy {
		return false
	}
	if f.Phase != "" && n.Phase != f.Phase {
		return false
	}
	if f.Warehouse != "" {
		found := false
		for _, w := range n.Warehouses {
			if w == f.Warehouse {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if n.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
