package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/approval"
	"reliefgrid.io/reliefgrid/internal/identity"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

// Reviewer reminder thresholds. Past the second one the reminder also
// advises escalating past the silent approver.
const (
	reminderMinDwell      = 4 * time.Hour
	reminderEscalateAfter = 8 * time.Hour
)

// SubmitRequest sends a draft into review.
type SubmitRequest struct {
	ID     string
	Actor  identity.Actor
	Method *approval.Method // overrides the method chosen at draft time

	// AllowEmpty submits a list whose lines all resolve to zero quantity.
	// Requires an explicit justification.
	AllowEmpty     bool
	EmptyRationale string
}

// Submit resolves the approval decision and moves the record to
// PENDING_APPROVAL. An all-zero list is rejected unless explicitly forced.
//
// Any actor holding the submit permission may submit a draft they did not
// create: delegation is modeled through the permission grant rather than a
// per-record delegate list. Cross-actor submissions are logged and the
// audit trail records the actual submitter.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*workflow.NeedsList, error) {
	if err := e.requirePermission(req.Actor, identity.PermSubmit); err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if rec.CreatedBy != req.Actor.ID {
		e.log.Info("draft submitted on behalf of its creator",
			zap.String("needs_list_id", rec.ID),
			zap.String("created_by", rec.CreatedBy),
			zap.String("submitted_by", req.Actor.ID))
	}

	method := rec.Method
	if req.Method != nil {
		method = req.Method
	}

	var effectiveTotal float64
	for _, l := range rec.Lines {
		effectiveTotal += l.EffectiveQty()
	}
	if effectiveTotal <= 0 {
		if !req.AllowEmpty {
			return nil, apperrors.BadRequest(apperrors.CodeEmptyNeedsList,
				"every line resolves to zero quantity; submit with an explicit empty-list justification or revise the lines")
		}
		if req.EmptyRationale == "" {
			return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
				"submitting an empty list requires a justification")
		}
	}

	decision := e.resolver.Resolve(approval.Input{
		Lines:          rec.ApprovalLines(),
		Phase:          rec.Phase,
		Method:         method,
		SubmitterRoles: req.Actor.Roles,
	})

	reason := "submitted for approval"
	if effectiveTotal <= 0 {
		reason = "submitted empty: " + req.EmptyRationale
	}

	return e.metered(e.store.Transition(ctx, req.ID, workflow.TransitionRequest{
		From:     []workflow.Status{workflow.StatusDraft, workflow.StatusModified},
		To:       workflow.StatusPendingApproval,
		Actor:    req.Actor.ID,
		At:       e.now(),
		Reason:   reason,
		Decision: &decision,
		Method:   method,
	}))
}

// Comment adds a per-item review note while the record awaits a decision.
func (e *Engine) Comment(ctx context.Context, actor identity.Actor, id, itemID, comment string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermComment); err != nil {
		return nil, err
	}
	if comment == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed, "comment must not be empty")
	}
	return e.store.AddReviewNote(ctx, id, workflow.ReviewNote{
		ItemID:  itemID,
		Comment: comment,
		Actor:   actor.ID,
		At:      e.now(),
	})
}

// Return sends the record back to the submitter for changes. The reason code
// comes from the closed enum; OTHER requires free text.
func (e *Engine) Return(ctx context.Context, actor identity.Actor, id, rawCode, reason string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermReview); err != nil {
		return nil, err
	}
	code, err := workflow.ParseReturnReasonCode(rawCode)
	if err != nil {
		return nil, err
	}
	if code == workflow.ReasonOther && reason == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"reason code OTHER requires a free-text reason")
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeReviewer(rec, actor); err != nil {
		return nil, err
	}
	return e.metered(e.store.Transition(ctx, id, workflow.TransitionRequest{
		From:       []workflow.Status{workflow.StatusPendingApproval, workflow.StatusUnderReview},
		To:         workflow.StatusModified,
		Actor:      actor.ID,
		At:         e.now(),
		Reason:     reason,
		ReasonCode: code,
	}))
}

// authorizeReviewer gates every review-stage verb: the actor must differ
// from the submitter and hold a role from the resolved approver set.
func (e *Engine) authorizeReviewer(rec *workflow.NeedsList, actor identity.Actor) error {
	decision, err := e.decisionFor(rec)
	if err != nil {
		return err
	}
	return e.resolver.Authorize(*decision, rec.SubmittedBy, actor.ID, actor.Roles)
}

// Reject terminally declines the record. Requires the same authority as
// approving it.
func (e *Engine) Reject(ctx context.Context, actor identity.Actor, id, reason string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermReview); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"a rejection requires a reason")
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeReviewer(rec, actor); err != nil {
		return nil, err
	}
	return e.metered(e.store.Transition(ctx, id, workflow.TransitionRequest{
		From:   []workflow.Status{workflow.StatusPendingApproval, workflow.StatusUnderReview},
		To:     workflow.StatusRejected,
		Actor:  actor.ID,
		At:     e.now(),
		Reason: reason,
	}))
}

// Escalate moves the record into UNDER_REVIEW for a higher-authority
// decision. Mandatory before approval when the resolver flagged escalation.
// Like return and reject it is a reviewer verb: the escalating actor must
// differ from the submitter and supply a reason.
func (e *Engine) Escalate(ctx context.Context, actor identity.Actor, id, reason string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermReview); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"an escalation requires a reason")
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeReviewer(rec, actor); err != nil {
		return nil, err
	}
	return e.metered(e.store.Transition(ctx, id, workflow.TransitionRequest{
		From:   []workflow.Status{workflow.StatusPendingApproval},
		To:     workflow.StatusUnderReview,
		Actor:  actor.ID,
		At:     e.now(),
		Reason: reason,
	}))
}

// Approve finalizes the decision. The approver must differ from the
// submitter and hold a role from the resolved approver set; a record whose
// decision demands escalation cannot be approved straight from
// PENDING_APPROVAL.
func (e *Engine) Approve(ctx context.Context, actor identity.Actor, id, note string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermApprove); err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	decision, err := e.decisionFor(rec)
	if err != nil {
		return nil, err
	}
	if err := e.resolver.Authorize(*decision, rec.SubmittedBy, actor.ID, actor.Roles); err != nil {
		return nil, err
	}
	if decision.EscalationRequired && rec.Status == workflow.StatusPendingApproval {
		return nil, apperrors.Conflict(apperrors.CodeEscalationRequired,
			"this record requires escalated review before approval").
			WithParams(map[string]interface{}{"needs_list_id": id})
	}
	return e.metered(e.store.Transition(ctx, id, workflow.TransitionRequest{
		From:     []workflow.Status{workflow.StatusPendingApproval, workflow.StatusUnderReview},
		To:       workflow.StatusApproved,
		Actor:    actor.ID,
		At:       e.now(),
		Reason:   note,
		Decision: decision,
	}))
}

// decisionFor returns the decision captured at submit, re-resolving from the
// stored lines when no capture exists.
func (e *Engine) decisionFor(rec *workflow.NeedsList) (*approval.Decision, error) {
	if rec.Decision != nil {
		return rec.Decision, nil
	}
	if rec.SubmittedAt == nil {
		return nil, apperrors.ErrStatusConflictf(string(rec.Status), "approval decision")
	}
	d := e.resolver.Resolve(approval.Input{
		Lines:  rec.ApprovalLines(),
		Phase:  rec.Phase,
		Method: rec.Method,
	})
	return &d, nil
}

// Reminder summarizes how long a record has sat in review.
type Reminder struct {
	NeedsListID     string        `json:"needs_list_id"`
	PendingFor      time.Duration `json:"pending_for"`
	ApproverRoles   []string      `json:"approver_roles"`
	EscalateAdvised bool          `json:"escalate_advised"`
}

// ReviewReminder produces a reminder for a record that has been awaiting a
// decision for at least the minimum dwell. Earlier calls are rejected so
// reviewers are not spammed.
func (e *Engine) ReviewReminder(ctx context.Context, actor identity.Actor, id string) (*Reminder, error) {
	if err := e.requirePermission(actor, identity.PermReview); err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.PendingReview() || rec.SubmittedAt == nil {
		return nil, apperrors.ErrStatusConflictf(string(rec.Status), "review_reminder")
	}
	dwell := e.now().Sub(*rec.SubmittedAt)
	if dwell < reminderMinDwell {
		return nil, apperrors.Conflict(apperrors.CodeReminderTooEarly,
			"record has not been pending long enough for a reminder").
			WithParams(map[string]interface{}{
				"pending_for": dwell.String(),
				"minimum":     reminderMinDwell.String(),
			})
	}
	var roles []string
	if rec.Decision != nil {
		roles = rec.Decision.ApproverRoles.Values()
	}
	return &Reminder{
		NeedsListID:     rec.ID,
		PendingFor:      dwell,
		ApproverRoles:   roles,
		EscalateAdvised: dwell >= reminderEscalateAfter,
	}, nil
}

// metered wraps store transitions with the transition counter.
func (e *Engine) metered(rec *workflow.NeedsList, err error) (*workflow.NeedsList, error) {
	if err != nil {
		return nil, err
	}
	if e.metrics != nil && len(rec.Audit) > 0 {
		last := rec.Audit[len(rec.Audit)-1]
		e.metrics.Transitions.WithLabelValues(string(last.FromStatus), string(last.ToStatus)).Inc()
	}
	return rec, nil
}
