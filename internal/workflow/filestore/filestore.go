// Package filestore persists needs lists as a single JSON document on local
// disk, guarded by an advisory file lock so concurrent processes sharing the
// directory serialize their writes. It backs ephemeral and single-node
// deployments; postgres is the durable backend.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

const (
	stateFile = "needslists.json"
	lockFile  = "needslists.lock"
)

// Store is the file-backed workflow store.
type Store struct {
	dir  string
	lock *flock.Flock
	log  *zap.Logger
}

type state struct {
	Records map[string]*workflow.NeedsList `json:"records"`
}

// New opens (creating if needed) a file store rooted at dir. A nil logger
// disables store logging.
func New(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure,
			"create store directory", 500)
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
		log:  log.Named("filestore"),
	}
	return s, nil
}

func (s *Store) statePath() string { return filepath.Join(s.dir, stateFile) }

func (s *Store) load() (*state, error) {
	raw, err := os.ReadFile(s.statePath())
	if os.IsNotExist(err) {
		return &state{Records: map[string]*workflow.NeedsList{}}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "read state file", 500)
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "decode state file", 500)
	}
	if st.Records == nil {
		st.Records = map[string]*workflow.NeedsList{}
	}
	return &st, nil
}

// persist writes the state to a temp file then renames it into place, so a
// crash mid-write never leaves a truncated document.
func (s *Store) persist(st *state) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "encode state", 500)
	}
	tmp, err := os.CreateTemp(s.dir, stateFile+".tmp-*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "create temp state file", 500)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "write temp state file", 500)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "close temp state file", 500)
	}
	if err := os.Rename(tmpName, s.statePath()); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "replace state file", 500)
	}
	return nil
}

// withExclusive runs fn while holding the exclusive advisory lock, persisting
// the state afterwards when fn succeeds.
func (s *Store) withExclusive(ctx context.Context, fn func(*state) error) error {
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		return apperrors.Wrap(err, apperrors.CodeSnapshotLock, "acquire store lock", 503)
	}
	defer s.lock.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.persist(st)
}

// withShared runs fn on a read-only view under the shared advisory lock.
func (s *Store) withShared(ctx context.Context, fn func(*state) error) error {
	locked, err := s.lock.TryRLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		return apperrors.Wrap(err, apperrors.CodeSnapshotLock, "acquire store read lock", 503)
	}
	defer s.lock.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	return fn(st)
}

func clone(n *workflow.NeedsList) *workflow.NeedsList {
	raw, err := json.Marshal(n)
	if err != nil {
		return n
	}
	var out workflow.NeedsList
	if err := json.Unmarshal(raw, &out); err != nil {
		return n
	}
	return &out
}

// CreateDraft stores the new draft and marks open records in the same scope
// by the same creator as superseded, all under one lock acquisition.
func (s *Store) CreateDraft(ctx context.Context, list *workflow.NeedsList) (*workflow.NeedsList, []string, error) {
	stored := clone(list)
	var superseded []string
	err := s.withExclusive(ctx, func(st *state) error {
		for _, rec := range st.Records {
			if rec.Number == stored.Number && rec.ID != stored.ID {
				return apperrors.ErrDuplicateNumberf(stored.Number, 1)
			}
		}
		scope := stored.Scope()
		for _, rec := range st.Records {
			if rec.ID == stored.ID || rec.CreatedBy != stored.CreatedBy {
				continue
			}
			if rec.Scope() != scope || !rec.Status.Supersedable() {
				continue
			}
			req := workflow.TransitionRequest{
				To:     workflow.StatusSuperseded,
				Actor:  stored.CreatedBy,
				At:     stored.CreatedAt,
				Reason: fmt.Sprintf("superseded by %s", stored.Number),
			}
			if err := applySupersede(rec, req, stored.ID); err != nil {
				return err
			}
			superseded = append(superseded, rec.ID)
		}
		sort.Strings(superseded)
		stored.Supersedes = superseded
		st.Records[stored.ID] = stored
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("draft created",
		zap.String("needs_list_id", stored.ID),
		zap.String("number", stored.Number),
		zap.Int("superseded", len(superseded)))
	return clone(stored), superseded, nil
}

func applySupersede(rec *workflow.NeedsList, req workflow.TransitionRequest, byID string) error {
	if err := workflow.ApplyTransition(rec, req, uuid.NewString()); err != nil {
		return apperrors.Wrap(err, apperrors.CodeSupersedeConflict,
			"supersede open record", 409)
	}
	rec.SupersededBy = byID
	return nil
}

// Get returns a deep copy so callers cannot mutate stored state.
func (s *Store) Get(ctx context.Context, id string) (*workflow.NeedsList, error) {
	var out *workflow.NeedsList
	err := s.withShared(ctx, func(st *state) error {
		rec, ok := st.Records[id]
		if !ok {
			return apperrors.ErrNeedsListNotFoundf(id)
		}
		out = clone(rec)
		return nil
	})
	return out, err
}

// List returns matching records newest first.
func (s *Store) List(ctx context.Context, f workflow.ListFilter) ([]*workflow.NeedsList, error) {
	var out []*workflow.NeedsList
	err := s.withShared(ctx, func(st *state) error {
		for _, rec := range st.Records {
			if rec.MatchesFilter(f) {
				out = append(out, clone(rec))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Transition applies a compare-and-set status change with its audit row.
func (s *Store) Transition(ctx context.Context, id string, req workflow.TransitionRequest) (*workflow.NeedsList, error) {
	var out *workflow.NeedsList
	err := s.withExclusive(ctx, func(st *state) error {
		rec, ok := st.Records[id]
		if !ok {
			return apperrors.ErrNeedsListNotFoundf(id)
		}
		next := clone(rec)
		if err := workflow.ApplyTransition(next, req, uuid.NewString()); err != nil {
			return err
		}
		st.Records[id] = next
		out = clone(next)
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
	err := s.withExclusive(ctx, func(st *state) error {
		rec, ok := st.Records[id]
		if !ok {
			return apperrors.ErrNeedsListNotFoundf(id)
		}
		next := clone(rec)
		if err := fn(next); err != nil {
			return err
		}
		st.Records[id] = next
		out = clone(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close is a no-op; locks are released per operation.
func (s *Store) Close(context.Context) error { return nil }

var _ workflow.Store = (*Store)(nil)
