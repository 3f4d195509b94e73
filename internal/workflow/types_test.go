package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefgrid.io/reliefgrid/internal/demand"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/policy"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusPendingApproval, true},
		{StatusModified, StatusPendingApproval, true},
		{StatusPendingApproval, StatusModified, true},
		{StatusPendingApproval, StatusRejected, true},
		{StatusPendingApproval, StatusUnderReview, true},
		{StatusPendingApproval, StatusApproved, true},
		{StatusUnderReview, StatusApproved, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusApproved, StatusInPreparation, true},
		{StatusApproved, StatusCancelled, true},
		{StatusInPreparation, StatusDispatched, true},
		{StatusInPreparation, StatusCancelled, true},
		{StatusDispatched, StatusReceived, true},
		{StatusReceived, StatusCompleted, true},

		{StatusDraft, StatusApproved, false},
		{StatusDraft, StatusDispatched, false},
		{StatusApproved, StatusDispatched, false}, // must start preparation first
		{StatusDispatched, StatusCancelled, false},
		{StatusReceived, StatusCancelled, false},
		{StatusRejected, StatusPendingApproval, false},
		{StatusCompleted, StatusDraft, false},
		{StatusSuperseded, StatusPendingApproval, false},
		{StatusCancelled, StatusApproved, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusCancelled, StatusSuperseded} {
		assert.True(t, s.Terminal(), s)
		assert.Empty(t, allowedTransitions[s], "terminal status %s must have no outgoing edges", s)
	}
	for _, s := range []Status{StatusDraft, StatusApproved, StatusDispatched} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestSupersedableStatuses(t *testing.T) {
	assert.True(t, StatusDraft.Supersedable())
	assert.True(t, StatusModified.Supersedable())
	assert.True(t, StatusPendingApproval.Supersedable())
	assert.False(t, StatusUnderReview.Supersedable())
	assert.False(t, StatusApproved.Supersedable())
	assert.False(t, StatusDispatched.Supersedable())
}

func TestScopeKeyOrderInsensitive(t *testing.T) {
	a := ScopeKey("ev-1", []string{"wh-b", "wh-a"}, policy.PhaseSurge)
	b := ScopeKey("ev-1", []string{"wh-a", "wh-b"}, policy.PhaseSurge)
	assert.Equal(t, a, b)

	c := ScopeKey("ev-1", []string{"wh-a"}, policy.PhaseSurge)
	assert.NotEqual(t, a, c)

	d := ScopeKey("ev-1", []string{"wh-a", "wh-b"}, policy.PhaseStabilized)
	assert.NotEqual(t, a, d)
}

func TestParseReturnReasonCode(t *testing.T) {
	got, err := ParseReturnReasonCode("QTY_ADJUSTMENT")
	require.NoError(t, err)
	assert.Equal(t, ReasonQtyAdjustment, got)

	_, err = ParseReturnReasonCode("BECAUSE_I_SAID_SO")
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidReasonCode, appErr.Code)
}

func TestEffectiveQtyPrefersOverride(t *testing.T) {
	l := Line{Snapshot: demand.ItemDemandSnapshot{ItemID: "itm-1", GapQty: 120}}
	assert.Equal(t, 120.0, l.EffectiveQty())

	l.Override = &LineOverride{ItemID: "itm-1", Qty: 80, Reason: "shelter census revised"}
	assert.Equal(t, 80.0, l.EffectiveQty())
	assert.Equal(t, 120.0, l.Snapshot.GapQty, "computed value stays on the snapshot")
}

func newTestList(status Status) *NeedsList {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return &NeedsList{
		ID:         "nl-1",
		Number:     "NL-2026-000017",
		EventID:    "ev-1",
		Warehouses: []string{"wh-a"},
		Phase:      policy.PhaseSurge,
		Status:     status,
		Lines: []Line{
			{Snapshot: demand.ItemDemandSnapshot{ItemID: "itm-water", GapQty: 40}},
		},
		CreatedBy: "user-field",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestApplyTransitionStamps(t *testing.T) {
	n := newTestList(StatusDraft)
	at := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)

	err := ApplyTransition(n, TransitionRequest{
		From:  []Status{StatusDraft, StatusModified},
		To:    StatusPendingApproval,
		Actor: "user-field",
		At:    at,
	}, "aud-1")
	require.NoError(t, err)

	assert.Equal(t, StatusPendingApproval, n.Status)
	assert.Equal(t, "user-field", n.SubmittedBy)
	require.NotNil(t, n.SubmittedAt)
	assert.Equal(t, at, *n.SubmittedAt)
	require.Len(t, n.Audit, 1)
	assert.Equal(t, StatusDraft, n.Audit[0].FromStatus)
	assert.Equal(t, StatusPendingApproval, n.Audit[0].ToStatus)
	assert.Equal(t, "aud-1", n.Audit[0].ID)
}

func TestApplyTransitionCASConflict(t *testing.T) {
	n := newTestList(StatusApproved)
	err := ApplyTransition(n, TransitionRequest{
		From:  []Status{StatusDraft, StatusModified},
		To:    StatusPendingApproval,
		Actor: "user-field",
		At:    time.Now().UTC(),
	}, "aud-1")
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeStatusConflict, appErr.Code)
	assert.Equal(t, StatusApproved, n.Status, "record untouched on conflict")
	assert.Empty(t, n.Audit)
}

func TestApplyTransitionRejectsEdgesOutsideTable(t *testing.T) {
	n := newTestList(StatusApproved)
	err := ApplyTransition(n, TransitionRequest{
		From:  []Status{StatusApproved},
		To:    StatusDispatched,
		Actor: "user-ops",
		At:    time.Now().UTC(),
	}, "aud-1")
	require.Error(t, err)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, apperrors.CodeStatusConflict, appErr.Code)
}

func TestApplyLineOverride(t *testing.T) {
	n := newTestList(StatusDraft)
	at := time.Now().UTC()

	err := ApplyLineOverride(n, LineOverride{ItemID: "itm-water", Qty: 25, Reason: "partial truck", Actor: "user-field", At: at})
	require.NoError(t, err)
	assert.Equal(t, 25.0, n.Lines[0].EffectiveQty())

	err = ApplyLineOverride(n, LineOverride{ItemID: "itm-missing", Qty: 5, Actor: "user-field", At: at})
	require.Error(t, err)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, apperrors.CodeInvalidItemKey, appErr.Code)

	err = ApplyLineOverride(n, LineOverride{ItemID: "itm-water", Qty: -1, Actor: "user-field", At: at})
	require.Error(t, err)

	n.Status = StatusPendingApproval
	err = ApplyLineOverride(n, LineOverride{ItemID: "itm-water", Qty: 10, Actor: "user-field", At: at})
	require.Error(t, err)
	appErr, _ = apperrors.IsAppError(err)
	assert.Equal(t, apperrors.CodeStatusConflict, appErr.Code, "no edits once submitted")
}

func TestApplyReviewNote(t *testing.T) {
	n := newTestList(StatusPendingApproval)
	at := time.Now().UTC()

	err := ApplyReviewNote(n, ReviewNote{ItemID: "itm-water", Comment: "verify shelter count", Actor: "user-mgr", At: at})
	require.NoError(t, err)
	require.Len(t, n.ReviewNotes, 1)

	n.Status = StatusDraft
	err = ApplyReviewNote(n, ReviewNote{ItemID: "itm-water", Comment: "too early", Actor: "user-mgr", At: at})
	require.Error(t, err)
}

func TestMatchesFilter(t *testing.T) {
	n := newTestList(StatusPendingApproval)

	assert.True(t, n.MatchesFilter(ListFilter{}))
	assert.True(t, n.MatchesFilter(ListFilter{EventID: "ev-1", Warehouse: "wh-a", Phase: policy.PhaseSurge}))
	assert.True(t, n.MatchesFilter(ListFilter{Statuses: []Status{StatusDraft, StatusPendingApproval}}))

	assert.False(t, n.MatchesFilter(ListFilter{EventID: "ev-2"}))
	assert.False(t, n.MatchesFilter(ListFilter{Warehouse: "wh-z"}))
	assert.False(t, n.MatchesFilter(ListFilter{Statuses: []Status{StatusApproved}}))
	assert.False(t, n.MatchesFilter(ListFilter{CreatedBy: "someone-else"}))
}
