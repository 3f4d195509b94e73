// Package pgstore persists needs lists in PostgreSQL. The full aggregate
// lives as a JSONB payload alongside the columns needed for filtering and
// compare-and-set transitions; each transition additionally appends a row to
// an append-only audit table in the same transaction.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS needs_lists (
	id            TEXT PRIMARY KEY,
	number        TEXT NOT NULL UNIQUE,
	event_id      TEXT NOT NULL,
	scope_key     TEXT NOT NULL,
	phase         TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_by    TEXT NOT NULL,
	superseded_by TEXT NOT NULL DEFAULT '',
	payload       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_needs_lists_scope ON needs_lists (scope_key, created_by, status);
CREATE INDEX IF NOT EXISTS idx_needs_lists_event ON needs_lists (event_id, created_at DESC);

CREATE TABLE IF NOT EXISTS needs_list_audit (
	id            TEXT PRIMARY KEY,
	needs_list_id TEXT NOT NULL REFERENCES needs_lists (id),
	from_status   TEXT NOT NULL,
	to_status     TEXT NOT NULL,
	actor         TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	reason_code   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_needs_list_audit_record ON needs_list_audit (needs_list_id, created_at);
`

// Store is the postgres-backed workflow store.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	sb   sq.StatementBuilderType
}

// New connects, verifies the connection, and applies the schema. A nil
// logger disables store logging.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "create connection pool", 500)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "ping database", 500)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "apply schema", 500)
	}
	return &Store{
		pool: pool,
		log:  log.Named("pgstore"),
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// FromPool wraps an existing pool. Used by tests that manage their own pool.
func FromPool(pool *pgxpool.Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log.Named("pgstore"), sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// EnsureSchema applies the DDL; New does this automatically.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "apply schema", 500)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encode(n *workflow.NeedsList) ([]byte, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "encode needs list", 500)
	}
	return raw, nil
}

func decode(raw []byte) (*workflow.NeedsList, error) {
	var n workflow.NeedsList
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "decode needs list", 500)
	}
	return &n, nil
}

// upsertRow writes the aggregate row inside the given transaction.
func (s *Store) upsertRow(ctx context.Context, tx pgx.Tx, n *workflow.NeedsList) error {
	raw, err := encode(n)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert("needs_lists").
		Columns("id", "number", "event_id", "scope_key", "phase", "status",
			"created_by", "superseded_by", "payload", "created_at", "updated_at").
		Values(n.ID, n.Number, n.EventID, n.Scope(), string(n.Phase), string(n.Status),
			n.CreatedBy, n.SupersededBy, raw, n.CreatedAt, n.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			superseded_by = EXCLUDED.superseded_by,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build upsert", 500)
	}
	_, err = tx.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return apperrors.ErrDuplicateNumberf(n.Number, 1)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "write needs list", 500)
	}
	return nil
}

// insertAuditRows appends the not-yet-persisted tail of the aggregate's
// audit trail. Audit rows are insert-only.
func (s *Store) insertAuditRows(ctx context.Context, tx pgx.Tx, recordID string, entries []workflow.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ib := s.sb.Insert("needs_list_audit").
		Columns("id", "needs_list_id", "from_status", "to_status", "actor", "reason", "reason_code", "created_at").
		Suffix("ON CONFLICT (id) DO NOTHING")
	for _, e := range entries {
		ib = ib.Values(e.ID, recordID, string(e.FromStatus), string(e.ToStatus),
			e.Actor, e.Reason, string(e.ReasonCode), e.At)
	}
	query, args, err := ib.ToSql()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "build audit insert", 500)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "write audit rows", 500)
	}
	return nil
}

// lockRow loads an aggregate FOR UPDATE inside the transaction.
func (s *Store) lockRow(ctx context.Context, tx pgx.Tx, id string) (*workflow.NeedsList, error) {
	var raw []byte
	err := tx.QueryRow(ctx,
		`SELECT payload FROM needs_lists WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNeedsListNotFoundf(id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "lock needs list", 500)
	}
	return decode(raw)
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "begin transaction", 500)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "commit transaction", 500)
	}
	return nil
}

// CreateDraft inserts the new draft and supersedes open records in the same
// scope by the same creator, all in one transaction.
func (s *Store) CreateDraft(ctx context.Context, list *workflow.NeedsList) (*workflow.NeedsList, []string, error) {
	stored := *list
	var superseded []string
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT payload FROM needs_lists
			 WHERE scope_key = $1 AND created_by = $2 AND status = ANY($3)
			 FOR UPDATE`,
			stored.Scope(), stored.CreatedBy,
			[]string{string(workflow.StatusDraft), string(workflow.StatusModified), string(workflow.StatusPendingApproval)})
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "query open records", 500)
		}
		var open []*workflow.NeedsList
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan open record", 500)
			}
			rec, err := decode(raw)
			if err != nil {
				rows.Close()
				return err
			}
			open = append(open, rec)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageFailure, "iterate open records", 500)
		}

		for _, rec := range open {
			req := workflow.TransitionRequest{
				To:     workflow.StatusSuperseded,
				Actor:  stored.CreatedBy,
				At:     stored.CreatedAt,
				Reason: fmt.Sprintf("superseded by %s", stored.Number),
			}
			if err := workflow.ApplyTransition(rec, req, uuid.NewString()); err != nil {
				return apperrors.Wrap(err, apperrors.CodeSupersedeConflict, "supersede open record", 409)
			}
			rec.SupersededBy = stored.ID
			if err := s.upsertRow(ctx, tx, rec); err != nil {
				return err
			}
			if err := s.insertAuditRows(ctx, tx, rec.ID, rec.Audit[len(rec.Audit)-1:]); err != nil {
				return err
			}
			superseded = append(superseded, rec.ID)
		}

		stored.Supersedes = superseded
		return s.upsertRow(ctx, tx, &stored)
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("draft created",
		zap.String("needs_list_id", stored.ID),
		zap.String("number", stored.Number),
		zap.Int("superseded", len(superseded)))
	return &stored, superseded, nil
}

// Get loads an aggregate by id.
func (s *Store) Get(ctx context.Context, id string) (*workflow.NeedsList, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM needs_lists WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNeedsListNotFoundf(id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "read needs list", 500)
	}
	return decode(raw)
}

// List returns matching aggregates newest first.
func (s *Store) List(ctx context.Context, f workflow.ListFilter) ([]*workflow.NeedsList, error) {
	qb := s.sb.Select("payload").From("needs_lists").OrderBy("created_at DESC")
	if f.EventID != "" {
		qb = qb.Where(sq.Eq{"event_id": f.EventID})
	}
	if f.CreatedBy != "" {
		qb = qb.Where(sq.Eq{"created_by": f.CreatedBy})
	}
	if f.Phase != "" {
		qb = qb.Where(sq.Eq{"phase": string(f.Phase)})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		qb = qb.Where(sq.Eq{"status": statuses})
	}
	if f.Warehouse != "" {
		qb = qb.Where(sq.Expr("jsonb_exists(payload->'warehouses', ?)", f.Warehouse))
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "build list query", 500)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "list needs lists", 500)
	}
	defer rows.Close()

	var out []*workflow.NeedsList
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan needs list", 500)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "iterate needs lists", 500)
	}
	return out, nil
}

// Transition applies a compare-and-set status change and its audit row in
// one transaction. The row lock makes concurrent transitions serialize; the
// loser fails the CAS check.
func (s *Store) Transition(ctx context.Context, id string, req workflow.TransitionRequest) (*workflow.NeedsList, error) {
	var out *workflow.NeedsList
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := workflow.ApplyTransition(rec, req, uuid.NewString()); err != nil {
			return err
		}
		if err := s.upsertRow(ctx, tx, rec); err != nil {
			return err
		}
		if err := s.insertAuditRows(ctx, tx, rec.ID, rec.Audit[len(rec.Audit)-1:]); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("status transition",
		zap.String("needs_list_id", id),
		zap.String("to", string(req.To)),
		zap.String("actor", req.Actor))
	return out, nil
}

// ApplyOverride writes a line override on an editable record.
func (s *Store) ApplyOverride(ctx context.Context, id string, ov workflow.LineOverride) (*workflow.NeedsList, error) {
	return s.mutate(ctx, id, func(rec *workflow.NeedsList) error {
		return workflow.ApplyLineOverride(rec, ov)
	})
}

// AddReviewNote appends a reviewer comment on a record awaiting approval.
func (s *Store) AddReviewNote(ctx context.Context, id string, note workflow.ReviewNote) (*workflow.NeedsList, error) {
	return s.mutate(ctx, id, func(rec *workflow.NeedsList) error {
		return workflow.ApplyReviewNote(rec, note)
	})
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*workflow.NeedsList) error) (*workflow.NeedsList, error) {
	var out *workflow.NeedsList
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		if err := s.upsertRow(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AuditTrail reads the append-only audit rows for a record, oldest first.
func (s *Store) AuditTrail(ctx context.Context, id string) ([]workflow.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, from_status, to_status, actor, reason, reason_code, created_at
		 FROM needs_list_audit WHERE needs_list_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "read audit trail", 500)
	}
	defer rows.Close()

	var out []workflow.AuditEntry
	for rows.Next() {
		var e workflow.AuditEntry
		var from, to, code string
		var at time.Time
		if err := rows.Scan(&e.ID, &from, &to, &e.Actor, &e.Reason, &code, &at); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "scan audit row", 500)
		}
		e.FromStatus = workflow.Status(from)
		e.ToStatus = workflow.Status(to)
		e.ReasonCode = workflow.ReturnReasonCode(code)
		e.At = at
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "iterate audit rows", 500)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

var _ workflow.Store = (*Store)(nil)
