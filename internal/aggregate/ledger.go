package aggregate

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/engine"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
)

// CreateTransferOrders writes generated transfer orders into the ledger's
// transfer_orders table in one transaction and returns the created ids.
// Orders fan out to every destination warehouse in the needs-list scope.
func (a *PG) CreateTransferOrders(ctx context.Context, orders []engine.TransferOrder) ([]string, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "begin transfer tx", 500)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		for _, wh := range o.Warehouses {
			query, args, err := a.sb.
				Insert("transfer_orders").
				Columns("dest_warehouse_id", "item_id", "qty", "status", "source_ref").
				Values(wh, o.ItemID, o.Qty, "REQUESTED", o.NeedsListNumber).
				Suffix("RETURNING id").
				ToSql()
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "build transfer insert", 500)
			}
			var id int64
			if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "insert transfer order", 502)
			}
			ids = append(ids, strconv.FormatInt(id, 10))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "commit transfer orders", 502)
	}
	a.log.Info("transfer orders created",
		zap.Int("count", len(ids)),
		zap.String("numbers", strings.Join(numbersOf(orders), ",")))
	return ids, nil
}

func numbersOf(orders []engine.TransferOrder) []string {
	seen := map[string]bool{}
	var out []string
	for _, o := range orders {
		if !seen[o.NeedsListNumber] {
			seen[o.NeedsListNumber] = true
			out = append(out, o.NeedsListNumber)
		}
	}
	return out
}

var (
	_ engine.Aggregator    = (*PG)(nil)
	_ engine.LedgerGateway = (*PG)(nil)
)
