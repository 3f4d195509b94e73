// Package main seeds a development ledger database for ReliefGrid.
//
// In production the warehouse ledger is owned by another system; this
// command creates the ledger tables and loads a small demo scenario so the
// replenishment engine can be exercised locally. Seeding is idempotent.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/config"
	"reliefgrid.io/reliefgrid/internal/pkg/logger"
)

const (
	demoEventID   = "ev-demo-hurricane"
	demoWarehouse = "wh-demo-central"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect ledger database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping ledger database: %w", err)
	}

	logger.Info("Starting ledger seeding...")

	if err := createLedgerTables(ctx, pool); err != nil {
		return fmt.Errorf("create ledger tables: %w", err)
	}
	if err := seedCatalog(ctx, pool); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	if err := seedScenario(ctx, pool); err != nil {
		return fmt.Errorf("seed scenario: %w", err)
	}

	logger.Info("Ledger seeding completed successfully",
		zap.String("event_id", demoEventID),
		zap.String("warehouse", demoWarehouse),
	)
	return nil
}

func createLedgerTables(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS item_catalog (
			item_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			unit_cost NUMERIC,
			transfer_scope TEXT,
			donation_restriction TEXT,
			critical BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_levels (
			warehouse_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			qty_on_hand DOUBLE PRECISION NOT NULL,
			counted_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (warehouse_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS consumption_log (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			warehouse_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			consumed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_orders (
			id BIGSERIAL PRIMARY KEY,
			dest_warehouse_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			source_ref TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS donation_pledges (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS category_burn_rates (
			category TEXT PRIMARY KEY,
			avg_qty_per_hour DOUBLE PRECISION NOT NULL
		)`,
	} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// catalogItem defines one demo catalog entry.
type catalogItem struct {
	ID          string
	Name        string
	Category    string
	UnitCost    string
	Scope       string
	Restriction string
	Critical    bool
}

func demoCatalog() []catalogItem {
	return []catalogItem{
		{ID: "itm-water-1l", Name: "Bottled Water 1L", Category: "water", UnitCost: "1.25", Scope: "intra_parish", Critical: true},
		{ID: "itm-mre", Name: "Ready-to-Eat Meal", Category: "food", UnitCost: "8.50", Scope: "cross_parish", Critical: true},
		{ID: "itm-tarp", Name: "Heavy Duty Tarpaulin", Category: "shelter", UnitCost: "22.00", Scope: "cross_parish"},
		{ID: "itm-hygiene-kit", Name: "Family Hygiene Kit", Category: "hygiene", UnitCost: "14.75", Restriction: "earmarked_only"},
		{ID: "itm-first-aid", Name: "First Aid Kit", Category: "medical", UnitCost: "31.00", Scope: "cross_parish", Critical: true},
	}
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	for _, item := range demoCatalog() {
		_, err := pool.Exec(ctx,
			`INSERT INTO item_catalog (item_id, name, category, unit_cost, transfer_scope, donation_restriction, critical)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
			 ON CONFLICT (item_id) DO NOTHING`,
			item.ID, item.Name, item.Category, item.UnitCost, item.Scope, item.Restriction, item.Critical)
		if err != nil {
			return fmt.Errorf("insert catalog item %s: %w", item.ID, err)
		}
		logger.Info("Seeded catalog item", zap.String("item", item.ID))
	}
	for category, avg := range map[string]float64{
		"water": 12.5, "food": 9.0, "shelter": 1.5, "hygiene": 3.0, "medical": 0.8,
	} {
		_, err := pool.Exec(ctx,
			`INSERT INTO category_burn_rates (category, avg_qty_per_hour) VALUES ($1, $2)
			 ON CONFLICT (category) DO UPDATE SET avg_qty_per_hour = EXCLUDED.avg_qty_per_hour`,
			category, avg)
		if err != nil {
			return fmt.Errorf("insert category rate %s: %w", category, err)
		}
	}
	return nil
}

// seedScenario loads inventory, a trailing consumption pattern, and an
// inbound pipeline for the demo event. Re-running replaces the scenario
// rather than duplicating it.
func seedScenario(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now().UTC()

	if _, err := pool.Exec(ctx,
		`DELETE FROM consumption_log WHERE event_id = $1`, demoEventID); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx,
		`DELETE FROM donation_pledges WHERE event_id = $1`, demoEventID); err != nil {
		return err
	}

	stock := map[string]float64{
		"itm-water-1l":    450,
		"itm-mre":         1200,
		"itm-tarp":        80,
		"itm-hygiene-kit": 35,
		"itm-first-aid":   15,
	}
	for itemID, qty := range stock {
		_, err := pool.Exec(ctx,
			`INSERT INTO inventory_levels (warehouse_id, item_id, qty_on_hand, counted_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (warehouse_id, item_id) DO UPDATE SET qty_on_hand = EXCLUDED.qty_on_hand, counted_at = EXCLUDED.counted_at`,
			demoWarehouse, itemID, qty, now.Add(-90*time.Minute))
		if err != nil {
			return fmt.Errorf("insert inventory %s: %w", itemID, err)
		}
	}

	// Hourly draws over the last two days. First aid intentionally gets no
	// rows so the category fallback path is visible in previews.
	draws := map[string]float64{
		"itm-water-1l":    30,
		"itm-mre":         18,
		"itm-tarp":        2,
		"itm-hygiene-kit": 4,
	}
	for itemID, qty := range draws {
		for h := 1; h <= 48; h++ {
			_, err := pool.Exec(ctx,
				`INSERT INTO consumption_log (event_id, warehouse_id, item_id, qty, consumed_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				demoEventID, demoWarehouse, itemID, qty, now.Add(-time.Duration(h)*time.Hour))
			if err != nil {
				return fmt.Errorf("insert consumption %s: %w", itemID, err)
			}
		}
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO transfer_orders (dest_warehouse_id, item_id, qty, status)
		 VALUES ($1, 'itm-water-1l', 600, 'IN_TRANSIT')`, demoWarehouse); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO donation_pledges (event_id, item_id, qty, status)
		 VALUES ($1, 'itm-mre', 400, 'PLEDGED')`, demoEventID); err != nil {
		return err
	}

	logger.Info("Seeded demo scenario",
		zap.Int("items", len(stock)),
		zap.Int("consumption_hours", 48),
	)
	return nil
}
