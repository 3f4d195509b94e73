// Package app is the composition root. Bootstrap stays orchestration-only:
// it builds each component from config and wires them, with no business
// logic of its own.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/aggregate"
	"reliefgrid.io/reliefgrid/internal/api"
	"reliefgrid.io/reliefgrid/internal/config"
	"reliefgrid.io/reliefgrid/internal/engine"
	"reliefgrid.io/reliefgrid/internal/identity"
	"reliefgrid.io/reliefgrid/internal/metrics"
	"reliefgrid.io/reliefgrid/internal/pkg/logger"
	"reliefgrid.io/reliefgrid/internal/pkg/worker"
	"reliefgrid.io/reliefgrid/internal/policy"
	"reliefgrid.io/reliefgrid/internal/snapshot"
	"reliefgrid.io/reliefgrid/internal/workflow"
	"reliefgrid.io/reliefgrid/internal/workflow/filestore"
	"reliefgrid.io/reliefgrid/internal/workflow/pgstore"
)

// Application holds composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	Pools  *worker.Pools

	store  workflow.Store
	ledger *aggregate.PG
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.L()

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		CalcPoolSize:    cfg.Worker.CalcPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	store, err := newStore(ctx, cfg, log)
	if err != nil {
		pools.Shutdown()
		return nil, fmt.Errorf("init workflow store: %w", err)
	}

	cache, err := snapshot.New(cfg.Snapshot.Dir, log)
	if err != nil {
		pools.Shutdown()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}

	// The warehouse ledger is a separate system from the workflow store; it
	// backs both the demand aggregator and transfer order creation.
	ledger, err := aggregate.NewPG(ctx, cfg.Database.DSN(), log)
	if err != nil {
		pools.Shutdown()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("init ledger aggregator: %w", err)
	}

	windows, err := policy.LoadWindowPolicy(cfg.Policy.Preset)
	if err != nil {
		pools.Shutdown()
		_ = store.Close(ctx)
		ledger.Close()
		return nil, fmt.Errorf("load window policy: %w", err)
	}
	mapper := policy.NewInboundMapper(policy.InboundMapping{
		ConfirmedTransferCodes: cfg.Inbound.ConfirmedTransferCodes,
		ConfirmedDonationCodes: cfg.Inbound.ConfirmedDonationCodes,
		SpeculativeCodes:       cfg.Inbound.SpeculativeCodes,
	})

	aliases := identity.DefaultAliasTable()
	registry := prometheus.NewRegistry()

	eng, err := engine.New(engine.Params{
		Store:   store,
		Cache:   cache,
		Agg:     ledger,
		Ledger:  ledger,
		Pools:   pools,
		Windows: windows,
		Mapper:  mapper,
		Aliases: aliases,
		Metrics: metrics.New(registry),
		Log:     log,

		SafetyFactor:       cfg.Policy.SafetyFactor,
		HorizonAHours:      cfg.Policy.HorizonAHours,
		ProcurementModeled: cfg.Policy.ProcurementModeled,
		CriticalItems:      cfg.Policy.CriticalItems,
		CriticalCategories: cfg.Policy.CriticalCategories,

		NumberMaxAttempts: cfg.Numbering.MaxAttempts,
		NumberBackoff:     cfg.Numbering.Backoff,
	})
	if err != nil {
		pools.Shutdown()
		_ = store.Close(ctx)
		ledger.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	router := api.NewRouter(api.RouterParams{
		Engine:      eng,
		Aliases:     aliases,
		Pools:       pools,
		StoreDriver: cfg.Store.Driver,
		Registry:    registry,
	})

	return &Application{
		Config: cfg,
		Router: router,
		Pools:  pools,
		store:  store,
		ledger: ledger,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (workflow.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFile:
		return filestore.New(cfg.Store.Dir, log)
	case config.StoreDriverPostgres:
		return pgstore.New(ctx, cfg.Database.DSN(), log)
	case config.StoreDriverDisabled:
		return workflow.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
