package app

import (
	"context"

	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/pkg/logger"
)

// Shutdown gracefully releases all application components: worker pools
// first so no in-flight calculation touches a closed store, then the
// workflow store and the ledger pool.
func (a *Application) Shutdown() {
	ctx := context.Background()

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			logger.Error("failed to close workflow store", zap.Error(err))
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	logger.Info("application components released")
}
