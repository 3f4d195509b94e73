// Package engine orchestrates the replenishment lifecycle: demand previews,
// draft creation with supersession, the review workflow, and fulfillment
// progression. Handlers stay thin; every rule lives here or below.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/approval"
	"reliefgrid.io/reliefgrid/internal/demand"
	"reliefgrid.io/reliefgrid/internal/identity"
	"reliefgrid.io/reliefgrid/internal/metrics"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/pkg/worker"
	"reliefgrid.io/reliefgrid/internal/policy"
	"reliefgrid.io/reliefgrid/internal/snapshot"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

// Scope identifies one calculation target: a response event, the warehouses
// feeding it, and its operational phase.
type Scope struct {
	EventID    string
	Warehouses []string
	Phase      policy.Phase
}

func (s Scope) validate() error {
	if s.EventID == "" {
		return apperrors.BadRequest(apperrors.CodeValidationFailed, "event id is required")
	}
	if len(s.Warehouses) == 0 {
		return apperrors.BadRequest(apperrors.CodeValidationFailed, "at least one warehouse is required")
	}
	return nil
}

// Aggregator fetches the raw per-item inputs for a scope from the upstream
// inventory, consumption, and pipeline sources. Consumption is summed over
// the trailing demand window. Implementations degrade per-item source
// failures into zeroed fields plus SourceWarnings; a returned error means
// the sources are unreachable as a whole.
type Aggregator interface {
	ItemInputs(ctx context.Context, eventID string, warehouses []string, demandWindowHours float64) ([]demand.ItemInputs, error)
}

// TransferOrder is one outbound stock movement derived from an approved
// needs list.
type TransferOrder struct {
	NeedsListID     string   `json:"needs_list_id"`
	NeedsListNumber string   `json:"needs_list_number"`
	ItemID          string   `json:"item_id"`
	Qty             float64  `json:"qty"`
	Warehouses      []string `json:"warehouses"`
}

// LedgerGateway hands generated transfer orders to the warehouse ledger.
type LedgerGateway interface {
	CreateTransferOrders(ctx context.Context, orders []TransferOrder) ([]string, error)
}

// NumberGenerator produces candidate record numbers. Collisions are retried
// by the draft path.
type NumberGenerator func(now time.Time) string

// DefaultNumberGenerator issues NL-<year>-<6 digits> candidates.
func DefaultNumberGenerator(now time.Time) string {
	return fmt.Sprintf("NL-%d-%06d", now.Year(), rand.Intn(1_000_000))
}

// Params wires an Engine.
type Params struct {
	Store    workflow.Store
	Cache    *snapshot.Cache
	Agg      Aggregator
	Ledger   LedgerGateway
	Pools    *worker.Pools
	Windows  *policy.WindowPolicy
	Mapper   *policy.InboundMapper
	Aliases  *identity.AliasTable
	Resolver *approval.Resolver
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	SafetyFactor       float64
	HorizonAHours      float64
	ProcurementModeled bool
	CriticalItems      []string
	CriticalCategories []string

	NumberMaxAttempts int
	NumberBackoff     time.Duration
	NumberGen         NumberGenerator

	Now func() time.Time
}

// Engine is the replenishment engine.
type Engine struct {
	store    workflow.Store
	cache    *snapshot.Cache
	agg      Aggregator
	ledger   LedgerGateway
	pools    *worker.Pools
	windows  *policy.WindowPolicy
	mapper   *policy.InboundMapper
	aliases  *identity.AliasTable
	resolver *approval.Resolver
	metrics  *metrics.Metrics
	log      *zap.Logger

	safetyFactor       float64
	horizonAHours      float64
	procurementModeled bool
	criticalItems      map[string]bool
	criticalCategories map[string]bool

	numberMaxAttempts int
	numberBackoff     time.Duration
	numberGen         NumberGenerator

	now func() time.Time
}

// New builds an Engine from Params, applying defaults for optional fields.
func New(p Params) (*Engine, error) {
	if p.Store == nil || p.Agg == nil || p.Windows == nil || p.Mapper == nil {
		return nil, fmt.Errorf("engine: store, aggregator, window policy, and inbound mapper are required")
	}
	if p.Aliases == nil {
		p.Aliases = identity.DefaultAliasTable()
	}
	if p.Resolver == nil {
		p.Resolver = approval.NewResolver(p.Aliases)
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.NumberGen == nil {
		p.NumberGen = DefaultNumberGenerator
	}
	if p.NumberMaxAttempts < 1 {
		p.NumberMaxAttempts = 5
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	e := &Engine{
		store:              p.Store,
		cache:              p.Cache,
		agg:                p.Agg,
		ledger:             p.Ledger,
		pools:              p.Pools,
		windows:            p.Windows,
		mapper:             p.Mapper,
		aliases:            p.Aliases,
		resolver:           p.Resolver,
		metrics:            p.Metrics,
		log:                p.Log.Named("engine"),
		safetyFactor:       p.SafetyFactor,
		horizonAHours:      p.HorizonAHours,
		procurementModeled: p.ProcurementModeled,
		criticalItems:      map[string]bool{},
		criticalCategories: map[string]bool{},
		numberMaxAttempts:  p.NumberMaxAttempts,
		numberBackoff:      p.NumberBackoff,
		numberGen:          p.NumberGen,
		now:                p.Now,
	}
	for _, id := range p.CriticalItems {
		e.criticalItems[id] = true
	}
	for _, c := range p.CriticalCategories {
		e.criticalCategories[c] = true
	}
	return e, nil
}

func (e *Engine) requirePermission(actor identity.Actor, permission string) error {
	if identity.HasPermission(e.aliases, actor.Roles, permission) {
		return nil
	}
	return apperrors.Forbidden(apperrors.CodePermissionDenied,
		"actor role set does not grant this operation").
		WithParams(map[string]interface{}{"actor": actor.ID, "permission": permission})
}

// markCritical applies the configured critical item/category lists on top of
// whatever the aggregator already flagged.
func (e *Engine) markCritical(in *demand.ItemInputs) {
	if e.criticalItems[in.ItemID] || e.criticalCategories[in.Category] {
		in.Critical = true
	}
}

func newID() string { return uuid.NewString() }
