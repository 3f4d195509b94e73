package filestore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefgrid.io/reliefgrid/internal/demand"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/policy"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func draft(number, creator string, warehouses ...string) *workflow.NeedsList {
	if len(warehouses) == 0 {
		warehouses = []string{"wh-a"}
	}
	now := time.Now().UTC()
	return &workflow.NeedsList{
		ID:         uuid.NewString(),
		Number:     number,
		EventID:    "ev-1",
		Warehouses: warehouses,
		Phase:      policy.PhaseSurge,
		Status:     workflow.StatusDraft,
		Lines: []workflow.Line{
			{Snapshot: demand.ItemDemandSnapshot{ItemID: "itm-water", GapQty: 40}},
		},
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateDraftAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	in := draft("NL-2026-000001", "user-a")
	stored, superseded, err := s.CreateDraft(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, superseded)
	assert.Equal(t, workflow.StatusDraft, stored.Status)

	got, err := s.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Number, got.Number)
	require.Len(t, got.Lines, 1)

	_, err = s.Get(ctx, "nope")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNeedsListNotFound, appErr.Code)
}

func TestCreateDraftSupersedesSameScopeSameCreator(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first := draft("NL-2026-000001", "user-a", "wh-a", "wh-b")
	_, _, err := s.CreateDraft(ctx, first)
	require.NoError(t, err)

	// Same scope, warehouses listed in the other order.
	second := draft("NL-2026-000002", "user-a", "wh-b", "wh-a")
	stored, superseded, err := s.CreateDraft(ctx, second)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, superseded)
	assert.Equal(t, []string{first.ID}, stored.Supersedes)

	old, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSuperseded, old.Status)
	assert.Equal(t, second.ID, old.SupersededBy)
	require.NotEmpty(t, old.Audit)
	assert.Equal(t, workflow.StatusSuperseded, old.Audit[len(old.Audit)-1].ToStatus)
}

func TestCreateDraftLeavesOtherScopesAndCreatorsAlone(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	otherCreator := draft("NL-2026-000001", "user-b")
	otherScope := draft("NL-2026-000002", "user-a", "wh-z")
	_, _, err := s.CreateDraft(ctx, otherCreator)
	require.NoError(t, err)
	_, _, err = s.CreateDraft(ctx, otherScope)
	require.NoError(t, err)

	_, superseded, err := s.CreateDraft(ctx, draft("NL-2026-000003", "user-a"))
	require.NoError(t, err)
	assert.Empty(t, superseded)

	for _, id := range []string{otherCreator.ID, otherScope.ID} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusDraft, got.Status)
	}
}

func TestCreateDraftNeverTouchesApprovedRecords(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first := draft("NL-2026-000001", "user-a")
	_, _, err := s.CreateDraft(ctx, first)
	require.NoError(t, err)

	now := time.Now().UTC()
	advance := func(to workflow.Status, from ...workflow.Status) {
		_, err := s.Transition(ctx, first.ID, workflow.TransitionRequest{
			From: from, To: to, Actor: "user-x", At: now,
		})
		require.NoError(t, err)
	}
	advance(workflow.StatusPendingApproval, workflow.StatusDraft)
	advance(workflow.StatusApproved, workflow.StatusPendingApproval)

	_, superseded, err := s.CreateDraft(ctx, draft("NL-2026-000002", "user-a"))
	require.NoError(t, err)
	assert.Empty(t, superseded)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, got.Status)
}

func TestCreateDraftDuplicateNumber(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.CreateDraft(ctx, draft("NL-2026-000001", "user-a"))
	require.NoError(t, err)

	dup := draft("NL-2026-000001", "user-b")
	_, _, err = s.CreateDraft(ctx, dup)
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDuplicateNumber, appErr.Code)

	_, err = s.Get(ctx, dup.ID)
	require.Error(t, err, "failed create must not persist the record")
}

func TestTransitionCASAndAudit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := draft("NL-2026-000001", "user-a")
	_, _, err := s.CreateDraft(ctx, rec)
	require.NoError(t, err)

	at := time.Now().UTC()
	got, err := s.Transition(ctx, rec.ID, workflow.TransitionRequest{
		From:  []workflow.Status{workflow.StatusDraft, workflow.StatusModified},
		To:    workflow.StatusPendingApproval,
		Actor: "user-a",
		At:    at,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPendingApproval, got.Status)
	assert.Equal(t, "user-a", got.SubmittedBy)
	require.Len(t, got.Audit, 1)

	// Stale CAS: record is no longer a draft.
	_, err = s.Transition(ctx, rec.ID, workflow.TransitionRequest{
		From:  []workflow.Status{workflow.StatusDraft},
		To:    workflow.StatusPendingApproval,
		Actor: "user-a",
		At:    at,
	})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeStatusConflict, appErr.Code)

	// The failed call must not have appended an audit row.
	after, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, after.Audit, 1)
}

func TestOverridesAndNotesPersist(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := draft("NL-2026-000001", "user-a")
	_, _, err := s.CreateDraft(ctx, rec)
	require.NoError(t, err)

	at := time.Now().UTC()
	got, err := s.ApplyOverride(ctx, rec.ID, workflow.LineOverride{
		ItemID: "itm-water", Qty: 25, Reason: "partial truck", Actor: "user-a", At: at,
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Lines[0].EffectiveQty())

	_, err = s.Transition(ctx, rec.ID, workflow.TransitionRequest{
		From: []workflow.Status{workflow.StatusDraft}, To: workflow.StatusPendingApproval,
		Actor: "user-a", At: at,
	})
	require.NoError(t, err)

	got, err = s.AddReviewNote(ctx, rec.ID, workflow.ReviewNote{
		ItemID: "itm-water", Comment: "verify census", Actor: "user-mgr", At: at,
	})
	require.NoError(t, err)
	require.Len(t, got.ReviewNotes, 1)

	// Reopen the store against the same directory; state survives.
	reopened, err := New(s.dir, nil)
	require.NoError(t, err)
	again, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, again.Lines[0].EffectiveQty())
	assert.Len(t, again.ReviewNotes, 1)
}

func TestListFiltersAndOrders(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := draft("NL-2026-000001", "user-a", "wh-a")
	a.CreatedAt = time.Now().UTC().Add(-time.Hour)
	b := draft("NL-2026-000002", "user-b", "wh-b")
	b.CreatedAt = time.Now().UTC()
	_, _, err := s.CreateDraft(ctx, a)
	require.NoError(t, err)
	_, _, err = s.CreateDraft(ctx, b)
	require.NoError(t, err)

	all, err := s.List(ctx, workflow.ListFilter{EventID: "ev-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "newest first")

	byWarehouse, err := s.List(ctx, workflow.ListFilter{Warehouse: "wh-b"})
	require.NoError(t, err)
	require.Len(t, byWarehouse, 1)
	assert.Equal(t, b.ID, byWarehouse[0].ID)

	limited, err := s.List(ctx, workflow.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetReturnsCopy(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := draft("NL-2026-000001", "user-a")
	_, _, err := s.CreateDraft(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	got.Lines[0].Snapshot.GapQty = 999

	again, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, again.Lines[0].Snapshot.GapQty)
}
