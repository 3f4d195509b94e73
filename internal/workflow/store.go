package workflow

import (
	"context"
	"time"

	"reliefgrid.io/reliefgrid/internal/approval"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/policy"
)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	EventID   string
	Warehouse string
	Phase     policy.Phase
	Statuses  []Status
	CreatedBy string
	Limit     int
}

// TransitionRequest is a compare-and-set status change. The store applies it
// only when the record's current status is in From, appends the audit row,
// and stamps the submit/approve metadata implied by To.
type TransitionRequest struct {
	From       []Status
	To         Status
	Actor      string
	At         time.Time
	Reason     string
	ReasonCode ReturnReasonCode

	// Decision and Method are captured at submit and refreshed at approval.
	Decision *approval.Decision
	Method   *approval.Method
}

// Store is the persistence contract shared by the file and postgres
// backends. Every mutation is atomic within the backend: a draft create
// and its supersessions commit together, and a transition commits together
// with its audit row.
type Store interface {
	// CreateDraft persists a new DRAFT and atomically marks every
	// supersedable record with the same scope key and creator as SUPERSEDED,
	// returning the stored list and the superseded ids. A duplicate list
	// number fails the whole operation with CodeDuplicateNumber.
	CreateDraft(ctx context.Context, list *NeedsList) (*NeedsList, []string, error)

	// Get returns a record by id, CodeNeedsListNotFound when absent.
	Get(ctx context.Context, id string) (*NeedsList, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]*NeedsList, error)

	// Transition applies a compare-and-set status change. When the current
	// status is not in req.From it fails with CodeStatusConflict and leaves
	// the record untouched.
	Transition(ctx context.Context, id string, req TransitionRequest) (*NeedsList, error)

	// ApplyOverride writes a line override on an editable record.
	ApplyOverride(ctx context.Context, id string, ov LineOverride) (*NeedsList, error)

	// AddReviewNote appends a reviewer comment on a record awaiting approval.
	AddReviewNote(ctx context.Context, id string, note ReviewNote) (*NeedsList, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// ErrStoreDisabled is returned by the disabled backend for every operation.
func ErrStoreDisabled() error {
	return apperrors.Unavailable(apperrors.CodeStoreDisabled,
		"needs-list persistence is disabled in this deployment")
}

// Disabled is the no-op backend selected by store.driver=disabled. Preview
// calculations still work; anything touching persistence fails loudly.
type Disabled struct{}

func (Disabled) CreateDraft(context.Context, *NeedsList) (*NeedsList, []string, error) {
	return nil, nil, ErrStoreDisabled()
}

func (Disabled) Get(context.Context, string) (*NeedsList, error) { return nil, ErrStoreDisabled() }

func (Disabled) List(context.Context, ListFilter) ([]*NeedsList, error) {
	return nil, ErrStoreDisabled()
}

func (Disabled) Transition(context.Context, string, TransitionRequest) (*NeedsList, error) {
	return nil, ErrStoreDisabled()
}

func (Disabled) ApplyOverride(context.Context, string, LineOverride) (*NeedsList, error) {
	return nil, ErrStoreDisabled()
}

func (Disabled) AddReviewNote(context.Context, string, ReviewNote) (*NeedsList, error) {
	return nil, ErrStoreDisabled()
}

func (Disabled) Close(context.Context) error { return nil }

var _ Store = Disabled{}
