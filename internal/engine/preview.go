package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/demand"
	"reliefgrid.io/reliefgrid/internal/identity"
	"reliefgrid.io/reliefgrid/internal/snapshot"
)

// PreviewResult is one full calculation run. Nothing here is persisted; a
// preview becomes durable only when committed into a draft.
type PreviewResult struct {
	Scope        Scope                       `json:"-"`
	Phase        string                      `json:"phase"`
	Preset       string                      `json:"preset"`
	SafetyFactor float64                     `json:"safety_factor"`
	CalculatedAt time.Time                   `json:"calculated_at"`
	Items        []demand.ItemDemandSnapshot `json:"items"`

	// RestoredFromSnapshot marks a result served from the cache because the
	// aggregation sources were unreachable.
	RestoredFromSnapshot bool           `json:"restored_from_snapshot"`
	SnapshotAge          *time.Duration `json:"snapshot_age,omitempty"`
}

// Preview runs a demand calculation for the scope without persisting
// anything. When the aggregation sources are down it falls back to the last
// cached calculation, clearly marked and degraded to low confidence.
func (e *Engine) Preview(ctx context.Context, actor identity.Actor, scope Scope) (*PreviewResult, error) {
	if err := e.requirePermission(actor, identity.PermPreview); err != nil {
		return nil, err
	}
	if err := scope.validate(); err != nil {
		return nil, err
	}
	windows, err := e.windows.Windows(scope.Phase)
	if err != nil {
		return nil, err
	}
	now := e.now()
	started := time.Now()

	inputs, aggErr := e.agg.ItemInputs(ctx, scope.EventID, scope.Warehouses, windows.DemandWindowHours)
	if aggErr != nil {
		return e.restoreFromCache(ctx, scope, now, aggErr)
	}

	calc := demand.NewCalculator(demand.CalculatorParams{
		Windows:            windows,
		Phase:              scope.Phase,
		Mapper:             e.mapper,
		SafetyFactor:       e.safetyFactor,
		HorizonAHours:      e.horizonAHours,
		ProcurementModeled: e.procurementModeled,
	})

	items, err := e.computeAll(ctx, calc, inputs, now)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })

	if e.metrics != nil {
		for _, it := range items {
			e.metrics.Calculations.WithLabelValues(string(it.Confidence.Level)).Inc()
		}
		e.metrics.CalcDuration.Observe(time.Since(started).Seconds())
	}

	// An all-trivial run with burn data missing is a transient data gap, not
	// a real all-zero picture: serve the last snapshot instead of presenting
	// empty gaps to approvers, and never overwrite the cache with it.
	if allTrivial(items) {
		if burnDataMissing(items) {
			restored, err := e.restoreFromCache(ctx, scope, now, nil)
			if err != nil {
				return nil, err
			}
			if restored != nil {
				return restored, nil
			}
		}
	} else if e.cache != nil {
		key := snapshot.Key{EventID: scope.EventID, Warehouses: scope.Warehouses, Phase: scope.Phase}
		if err := e.cache.Save(ctx, key, items, now); err != nil {
			return nil, err
		}
	}

	e.log.Info("preview computed",
		zap.String("event_id", scope.EventID),
		zap.String("phase", string(scope.Phase)),
		zap.Int("items", len(items)))

	return &PreviewResult{
		Scope:        scope,
		Phase:        string(scope.Phase),
		Preset:       e.windows.Preset(),
		SafetyFactor: calc.SafetyFactor(),
		CalculatedAt: now,
		Items:        items,
	}, nil
}

// computeAll fans per-item calculations out over the calc pool. Each task
// owns its wait-group slot so a context cancelled mid-flight can never
// strand the wait; submission failures (pool closed, context already
// cancelled) degrade to inline execution of the same task.
func (e *Engine) computeAll(ctx context.Context, calc *demand.Calculator, inputs []demand.ItemInputs, now time.Time) ([]demand.ItemDemandSnapshot, error) {
	items := make([]demand.ItemDemandSnapshot, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		e.markCritical(&inputs[i])
		i := i
		run := func(taskCtx context.Context) {
			defer wg.Done()
			if taskCtx.Err() != nil {
				return
			}
			items[i] = calc.Compute(inputs[i], now)
		}
		wg.Add(1)
		if e.pools == nil || e.pools.Calc.Submit(ctx, run) != nil {
			run(ctx)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func allTrivial(items []demand.ItemDemandSnapshot) bool {
	for _, it := range items {
		if !it.Trivial() {
			return false
		}
	}
	return true
}

func burnDataMissing(items []demand.ItemDemandSnapshot) bool {
	for _, it := range items {
		if it.HasWarning(demand.WarnNoBurnRows) || it.BurnRateSource == demand.BurnSourceNone {
			return true
		}
	}
	return false
}

// restoreFromCache answers a preview from the snapshot cache during a source
// outage or an all-trivial degraded run. Every restored item is flagged and
// re-synthesized to low confidence; with no cached entry the caller's
// aggErr surfaces (nil for the degraded-run path, letting the caller keep
// its computed result).
func (e *Engine) restoreFromCache(ctx context.Context, scope Scope, now time.Time, aggErr error) (*PreviewResult, error) {
	if e.cache == nil {
		return nil, aggErr
	}
	key := snapshot.Key{EventID: scope.EventID, Warehouses: scope.Warehouses, Phase: scope.Phase}
	cached, err := e.cache.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, aggErr
	}

	items := make([]demand.ItemDemandSnapshot, len(cached.Items))
	for i, it := range cached.Items {
		for _, code := range []string{demand.WarnDBUnavailable, demand.WarnRestoredFromSnapshot} {
			if !it.HasWarning(code) {
				it.Warnings = append(it.Warnings, code)
			}
		}
		it.Confidence = demand.Synthesize(it.BurnRateSource, it.Warnings)
		items[i] = it
	}

	age := cached.Age(now)
	if e.metrics != nil {
		e.metrics.SnapshotRestores.Inc()
	}
	e.log.Warn("preview restored from snapshot cache",
		zap.String("event_id", scope.EventID),
		zap.Duration("snapshot_age", age),
		zap.Error(aggErr))

	return &PreviewResult{
		Scope:                scope,
		Phase:                string(scope.Phase),
		Preset:               e.windows.Preset(),
		SafetyFactor:         e.safetyFactor,
		CalculatedAt:         cached.SavedAt,
		Items:                items,
		RestoredFromSnapshot: true,
		SnapshotAge:          &age,
	}, nil
}
