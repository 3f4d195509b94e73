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

// DraftRequest commits a calculation into a persistent draft.
type DraftRequest struct {
	Scope  Scope
	Actor  identity.Actor
	Method *approval.Method // optional pre-selection

	// IncludeZeroGap keeps lines with no computed gap, for manual top-ups.
	IncludeZeroGap bool
}

// DraftResult is the stored draft plus what it displaced.
type DraftResult struct {
	NeedsList  *workflow.NeedsList `json:"needs_list"`
	Superseded []string            `json:"superseded"`

	RestoredFromSnapshot bool `json:"restored_from_snapshot"`
}

// CreateDraft runs a fresh calculation, commits it as a DRAFT, and
// atomically supersedes the actor's open records in the same scope. Record
// number collisions retry with backoff up to the configured attempt bound.
func (e *Engine) CreateDraft(ctx context.Context, req DraftRequest) (*DraftResult, error) {
	if err := e.requirePermission(req.Actor, identity.PermDraft); err != nil {
		return nil, err
	}
	preview, err := e.Preview(ctx, req.Actor, req.Scope)
	if err != nil {
		return nil, err
	}
	windows, err := e.windows.Windows(req.Scope.Phase)
	if err != nil {
		return nil, err
	}

	lines := make([]workflow.Line, 0, len(preview.Items))
	for _, it := range preview.Items {
		if it.GapQty <= 0 && !req.IncludeZeroGap {
			continue
		}
		lines = append(lines, workflow.Line{Snapshot: it})
	}

	now := e.now()
	list := &workflow.NeedsList{
		ID:                  newID(),
		EventID:             req.Scope.EventID,
		Warehouses:          append([]string(nil), req.Scope.Warehouses...),
		Phase:               req.Scope.Phase,
		PresetVersion:       preview.Preset,
		CalculatedAt:        preview.CalculatedAt,
		DemandWindowHours:   windows.DemandWindowHours,
		PlanningWindowHours: windows.PlanningWindowHours,
		SafetyFactor:        preview.SafetyFactor,
		Status:              workflow.StatusDraft,
		Method:              req.Method,
		Lines:               lines,
		CreatedBy:           req.Actor.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	stored, superseded, err := e.createWithNumberRetry(ctx, list)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil && len(superseded) > 0 {
		e.metrics.Supersessions.Add(float64(len(superseded)))
	}
	e.log.Info("needs list drafted",
		zap.String("needs_list_id", stored.ID),
		zap.String("number", stored.Number),
		zap.Int("lines", len(stored.Lines)),
		zap.Strings("superseded", superseded))

	return &DraftResult{
		NeedsList:            stored,
		Superseded:           superseded,
		RestoredFromSnapshot: preview.RestoredFromSnapshot,
	}, nil
}

// createWithNumberRetry regenerates the record number on duplicate
// collisions, backing off between attempts. Any other error is final.
func (e *Engine) createWithNumberRetry(ctx context.Context, list *workflow.NeedsList) (*workflow.NeedsList, []string, error) {
	var lastNumber string
	for attempt := 1; attempt <= e.numberMaxAttempts; attempt++ {
		lastNumber = e.numberGen(e.now())
		list.Number = lastNumber

		stored, superseded, err := e.store.CreateDraft(ctx, list)
		if err == nil {
			return stored, superseded, nil
		}
		appErr, ok := apperrors.IsAppError(err)
		if !ok || appErr.Code != apperrors.CodeDuplicateNumber {
			return nil, nil, err
		}
		e.log.Warn("record number collision",
			zap.String("number", lastNumber),
			zap.Int("attempt", attempt))
		if e.numberBackoff > 0 && attempt < e.numberMaxAttempts {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(e.numberBackoff):
			}
		}
	}
	return nil, nil, apperrors.ErrDuplicateNumberf(lastNumber, e.numberMaxAttempts)
}

// Get returns one record.
func (e *Engine) Get(ctx context.Context, actor identity.Actor, id string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermPreview); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, id)
}

// List returns records matching the filter.
func (e *Engine) List(ctx context.Context, actor identity.Actor, f workflow.ListFilter) ([]*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermPreview); err != nil {
		return nil, err
	}
	return e.store.List(ctx, f)
}

// EditLine overrides a computed quantity while the record is editable. The
// computed value stays on the snapshot for the audit trail.
func (e *Engine) EditLine(ctx context.Context, actor identity.Actor, id string, itemID string, qty float64, reason string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermEditLines); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"an override requires a reason")
	}
	return e.store.ApplyOverride(ctx, id, workflow.LineOverride{
		ItemID: itemID,
		Qty:    qty,
		Reason: reason,
		Actor:  actor.ID,
		At:     e.now(),
	})
}
