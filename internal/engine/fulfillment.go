package engine

import (
	"context"

	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/identity"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

// StartPreparation moves an approved record into picking and packing.
func (e *Engine) StartPreparation(ctx context.Context, actor identity.Actor, id string) (*workflow.NeedsList, error) {
	return e.execute(ctx, actor, id, workflow.StatusApproved, workflow.StatusInPreparation, "")
}

// MarkDispatched records that the shipment left the warehouse. Requires
// preparation to have started; approval alone is not enough.
func (e *Engine) MarkDispatched(ctx context.Context, actor identity.Actor, id string) (*workflow.NeedsList, error) {
	return e.execute(ctx, actor, id, workflow.StatusInPreparation, workflow.StatusDispatched, "")
}

// MarkReceived records arrival at the destination.
func (e *Engine) MarkReceived(ctx context.Context, actor identity.Actor, id string) (*workflow.NeedsList, error) {
	return e.execute(ctx, actor, id, workflow.StatusDispatched, workflow.StatusReceived, "")
}

// MarkCompleted closes out a received record.
func (e *Engine) MarkCompleted(ctx context.Context, actor identity.Actor, id string) (*workflow.NeedsList, error) {
	return e.execute(ctx, actor, id, workflow.StatusReceived, workflow.StatusCompleted, "")
}

func (e *Engine) execute(ctx context.Context, actor identity.Actor, id string, from, to workflow.Status, reason string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermExecute); err != nil {
		return nil, err
	}
	return e.metered(e.store.Transition(ctx, id, workflow.TransitionRequest{
		From:   []workflow.Status{from},
		To:     to,
		Actor:  actor.ID,
		At:     e.now(),
		Reason: reason,
	}))
}

// Cancel aborts an approved or in-preparation record. Stock already moving
// cannot be cancelled, only received and reconciled.
func (e *Engine) Cancel(ctx context.Context, actor identity.Actor, id, reason string) (*workflow.NeedsList, error) {
	if err := e.requirePermission(actor, identity.PermCancel); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"a cancellation requires a reason")
	}
	return e.metered(e.store.Transition(ctx, id, workflow.TransitionRequest{
		From:   []workflow.Status{workflow.StatusApproved, workflow.StatusInPreparation},
		To:     workflow.StatusCancelled,
		Actor:  actor.ID,
		At:     e.now(),
		Reason: reason,
	}))
}

// GenerateTransfers turns an approved record's transfer allocations into
// transfer orders on the warehouse ledger. The record's status is untouched;
// StartPreparation drives the workflow forward.
func (e *Engine) GenerateTransfers(ctx context.Context, actor identity.Actor, id string) ([]string, error) {
	if err := e.requirePermission(actor, identity.PermGenerate); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, apperrors.Unavailable(apperrors.CodeStorageFailure,
			"no warehouse ledger gateway is configured")
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != workflow.StatusApproved && rec.Status != workflow.StatusInPreparation {
		return nil, apperrors.ErrStatusConflictf(string(rec.Status), "generate_transfers")
	}

	var orders []TransferOrder
	for _, l := range rec.Lines {
		qty := l.Snapshot.Horizon.TransferQty
		if l.Override != nil && l.EffectiveQty() < qty {
			qty = l.EffectiveQty()
		}
		if qty <= 0 {
			continue
		}
		orders = append(orders, TransferOrder{
			NeedsListID:     rec.ID,
			NeedsListNumber: rec.Number,
			ItemID:          l.Snapshot.ItemID,
			Qty:             qty,
			Warehouses:      rec.Warehouses,
		})
	}
	if len(orders) == 0 {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"no line carries a transfer allocation")
	}

	ids, err := e.ledger.CreateTransferOrders(ctx, orders)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure,
			"create transfer orders on the warehouse ledger", 502)
	}
	e.log.Info("transfer orders generated",
		zap.String("needs_list_id", rec.ID),
		zap.Int("orders", len(ids)))
	return ids, nil
}
