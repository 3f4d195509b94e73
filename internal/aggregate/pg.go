// Package aggregate reads the per-item calculation inputs from the legacy
// warehouse ledger database: catalog attributes, inventory levels, the
// trailing consumption window, and the inbound pipeline. The ledger schema
// is owned by another system; everything here is read-only.
package aggregate

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/demand"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
)

// PG is the pgx-backed aggregator.
type PG struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	sb   sq.StatementBuilderType
	now  func() time.Time
}

// NewPG opens a pool against the ledger database. An unreachable ledger is
// not fatal at startup; previews degrade to cached snapshots until it
// returns. A nil logger disables logging.
func NewPG(ctx context.Context, dsn string, log *zap.Logger) (*PG, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "create ledger pool", 500)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		log.Warn("ledger database unreachable at startup, previews will degrade to snapshots", zap.Error(err))
	}
	return &PG{
		pool: pool,
		log:  log.Named("aggregate"),
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the connection pool.
func (a *PG) Close() { a.pool.Close() }

// itemAccumulator collects one item's inputs across the source queries.
type itemAccumulator map[string]*demand.ItemInputs

func (acc itemAccumulator) get(itemID string) *demand.ItemInputs {
	in, ok := acc[itemID]
	if !ok {
		in = &demand.ItemInputs{ItemID: itemID}
		acc[itemID] = in
	}
	return in
}

// ItemInputs assembles the calculation inputs for every catalog item with
// any signal in the scope: stock on hand, consumption in the window, or an
// inbound pipeline entry.
//
// Each source degrades independently. A failed query leaves its fields
// zeroed and marks every item in the scope db_unavailable, which the
// calculator downgrades to low confidence. Only when every source fails is
// the ledger reported as down, so the caller can fall back to a snapshot.
func (a *PG) ItemInputs(ctx context.Context, eventID string, warehouses []string, demandWindowHours float64) ([]demand.ItemInputs, error) {
	acc := itemAccumulator{}
	since := a.now().Add(-time.Duration(demandWindowHours * float64(time.Hour)))

	primary := []struct {
		name string
		load func() error
	}{
		{"inventory", func() error { return a.loadInventory(ctx, acc, warehouses) }},
		{"consumption", func() error { return a.loadConsumption(ctx, acc, eventID, warehouses, since) }},
		{"transfers", func() error { return a.loadTransfers(ctx, acc, warehouses) }},
		{"donations", func() error { return a.loadDonations(ctx, acc, eventID) }},
	}
	enrichment := []struct {
		name string
		load func() error
	}{
		{"catalog", func() error { return a.loadCatalog(ctx, acc) }},
		{"category_averages", func() error { return a.loadCategoryAverages(ctx, acc) }},
	}

	var failed int
	var lastErr error
	for _, src := range primary {
		if err := src.load(); err != nil {
			a.log.Warn("ledger source unavailable, degrading",
				zap.String("source", src.name),
				zap.String("event_id", eventID),
				zap.Error(err))
			failed++
			lastErr = err
		}
	}
	if failed == len(primary) {
		return nil, apperrors.Wrap(lastErr, apperrors.CodeStorageFailure,
			"ledger database unavailable", 503)
	}
	for _, src := range enrichment {
		if err := src.load(); err != nil {
			a.log.Warn("ledger source unavailable, degrading",
				zap.String("source", src.name),
				zap.String("event_id", eventID),
				zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		for _, in := range acc {
			if !in.HasSourceWarning(demand.WarnDBUnavailable) {
				in.SourceWarnings = append(in.SourceWarnings, demand.WarnDBUnavailable)
			}
		}
	}

	out := make([]demand.ItemInputs, 0, len(acc))
	for _, in := range acc {
		out = append(out, *in)
	}
	a.log.Debug("aggregated item inputs",
		zap.String("event_id", eventID),
		zap.Int("items", len(out)),
		zap.Int("degraded_sources", failed))
	return out, nil
}

// loadInventory sums stock on hand per item and keeps the oldest as-of
// timestamp across the warehouse set, so freshness reflects the weakest
// source.
func (a *PG) loadInventory(ctx context.Context, acc itemAccumulator, warehouses []string) error {
	query, args, err := a.sb.
		Select("item_id", "SUM(qty_on_hand)", "MIN(counted_at)").
		From("inventory_levels").
		Where(sq.Eq{"warehouse_id": warehouses}).
		GroupBy("item_id").
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build inventory query", 500)
	}
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query inventory levels", 500)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID string
		var qty float64
		var asOf time.Time
		if err := rows.Scan(&itemID, &qty, &asOf); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan inventory row", 500)
		}
		in := acc.get(itemID)
		in.AvailableQty = qty
		at := asOf
		in.InventoryAsOf = &at
	}
	return rows.Err()
}

func (a *PG) loadConsumption(ctx context.Context, acc itemAccumulator, eventID string, warehouses []string, since time.Time) error {
	query, args, err := a.sb.
		Select("item_id", "SUM(qty)", "COUNT(*)").
		From("consumption_log").
		Where(sq.Eq{"event_id": eventID, "warehouse_id": warehouses}).
		Where(sq.GtOrEq{"consumed_at": since}).
		GroupBy("item_id").
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build consumption query", 500)
	}
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query consumption log", 500)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID string
		var total float64
		var count int64
		if err := rows.Scan(&itemID, &total, &count); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan consumption row", 500)
		}
		in := acc.get(itemID)
		in.BurnWindowTotal = total
		in.BurnRowsPresent = count > 0
	}
	return rows.Err()
}

func (a *PG) loadTransfers(ctx context.Context, acc itemAccumulator, warehouses []string) error {
	query, args, err := a.sb.
		Select("item_id", "qty", "status").
		From("transfer_orders").
		Where(sq.Eq{"dest_warehouse_id": warehouses}).
		Where(sq.NotEq{"status": "CLOSED"}).
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build transfer query", 500)
	}
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query transfer pipeline", 500)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, status string
		var qty float64
		if err := rows.Scan(&itemID, &qty, &status); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan transfer row", 500)
		}
		in := acc.get(itemID)
		in.InboundTransfers = append(in.InboundTransfers, demand.PipelineEntry{Qty: qty, StatusCode: status})
	}
	return rows.Err()
}

func (a *PG) loadDonations(ctx context.Context, acc itemAccumulator, eventID string) error {
	query, args, err := a.sb.
		Select("item_id", "qty", "status").
		From("donation_pledges").
		Where(sq.Eq{"event_id": eventID}).
		Where(sq.NotEq{"status": "CLOSED"}).
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build donation query", 500)
	}
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query donation pipeline", 500)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, status string
		var qty float64
		if err := rows.Scan(&itemID, &qty, &status); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan donation row", 500)
		}
		in := acc.get(itemID)
		in.InboundDonations = append(in.InboundDonations, demand.PipelineEntry{Qty: qty, StatusCode: status})
	}
	return rows.Err()
}

// loadCatalog fills item attributes for every accumulated item. Items with
// no catalog row keep zero values plus a source warning; one bad item never
// fails the batch.
func (a *PG) loadCatalog(ctx context.Context, acc itemAccumulator) error {
	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	query, args, err := a.sb.
		Select("item_id", "name", "category", "unit_cost", "transfer_scope", "donation_restriction", "critical").
		From("item_catalog").
		Where(sq.Eq{"item_id": ids}).
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build catalog query", 500)
	}
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query item catalog", 500)
	}
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var itemID, name, category string
		var unitCost *decimal.Decimal
		var scope, restriction *string
		var critical bool
		if err := rows.Scan(&itemID, &name, &category, &unitCost, &scope, &restriction, &critical); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan catalog row", 500)
		}
		in := acc.get(itemID)
		in.ItemName = name
		in.Category = category
		in.UnitCost = unitCost
		if scope != nil {
			in.TransferScope = *scope
		}
		if restriction != nil {
			in.DonationRestriction = *restriction
		}
		in.Critical = critical
		seen[itemID] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, in := range acc {
		if !seen[id] {
			in.SourceWarnings = append(in.SourceWarnings, "item_missing_from_catalog")
		}
	}
	return nil
}

func (a *PG) loadCategoryAverages(ctx context.Context, acc itemAccumulator) error {
	categories := map[string]bool{}
	for _, in := range acc {
		if in.Category != "" {
			categories[in.Category] = true
		}
	}
	if len(categories) == 0 {
		return nil
	}
	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	query, args, err := a.sb.
		Select("category", "avg_qty_per_hour").
		From("category_burn_rates").
		Where(sq.Eq{"category": names}).
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build category query", 500)
	}
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query category burn rates", 500)
	}
	defer rows.Close()

	avgs := map[string]float64{}
	for rows.Next() {
		var category string
		var avg float64
		if err := rows.Scan(&category, &avg); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan category row", 500)
		}
		avgs[category] = avg
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, in := range acc {
		in.CategoryAvgPerHour = avgs[in.Category]
	}
	return nil
}
