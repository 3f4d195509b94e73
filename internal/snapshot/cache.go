// Package snapshot caches the last good demand calculation per scope so a
// preview can still answer, clearly marked, while the aggregation sources
// are down. Entries live as JSON files guarded by advisory file locks.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"reliefgrid.io/reliefgrid/internal/demand"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
	"reliefgrid.io/reliefgrid/internal/policy"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

const lockRetryInterval = 25 * time.Millisecond

// Key identifies one cached calculation scope.
type Key struct {
	EventID    string
	Warehouses []string
	Phase      policy.Phase
}

// Cached is one stored calculation with its provenance timestamp.
type Cached struct {
	SavedAt time.Time                   `json:"saved_at"`
	Items   []demand.ItemDemandSnapshot `json:"items"`
}

// Age returns how old the cached calculation is.
func (c *Cached) Age(now time.Time) time.Duration { return now.Sub(c.SavedAt) }

// Cache is the file-backed snapshot store.
type Cache struct {
	dir string
	log *zap.Logger
}

// New opens (creating if needed) a cache rooted at dir. A nil logger
// disables cache logging.
func New(dir string, log *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure,
			"create snapshot directory", 500)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{dir: dir, log: log.Named("snapshot")}, nil
}

// paths derives stable file names from the scope key so warehouse order
// never splits a scope across two entries.
func (c *Cache) paths(key Key) (dataPath, lockPath string) {
	sum := sha256.Sum256([]byte(workflow.ScopeKey(key.EventID, key.Warehouses, key.Phase)))
	name := hex.EncodeToString(sum[:16])
	return filepath.Join(c.dir, name+".json"), filepath.Join(c.dir, name+".lock")
}

func lockErr(err error) error {
	return apperrors.Wrap(err, apperrors.CodeSnapshotLock,
		"snapshot cache lock unavailable", 503)
}

// Save stores the full item array for the scope, idle items included, so a
// later restore reproduces the calculation exactly. Whether a run is worth
// saving at all is the caller's call. A lock that cannot be acquired is a
// hard error; silently proceeding unlocked could interleave writers and
// corrupt the entry.
func (c *Cache) Save(ctx context.Context, key Key, items []demand.ItemDemandSnapshot, at time.Time) error {
	dataPath, lockPath := c.paths(key)
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return lockErr(err)
	}
	defer fl.Unlock()

	raw, err := json.Marshal(Cached{SavedAt: at, Items: items})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "encode snapshot", 500)
	}
	tmp, err := os.CreateTemp(c.dir, "snap-*.tmp")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "create temp snapshot", 500)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "write snapshot", 500)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "close snapshot", 500)
	}
	if err := os.Rename(tmpName, dataPath); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeStorageFailure, "replace snapshot", 500)
	}

	c.log.Debug("snapshot saved",
		zap.String("event_id", key.EventID),
		zap.Int("items", len(items)))
	return nil
}

// Load returns the cached calculation for the scope, or nil when no entry
// exists. Lock acquisition failure is a hard error, never a silent miss.
func (c *Cache) Load(ctx context.Context, key Key) (*Cached, error) {
	dataPath, lockPath := c.paths(key)
	fl := flock.New(lockPath)
	locked, err := fl.TryRLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return nil, lockErr(err)
	}
	defer fl.Unlock()

	raw, err := os.ReadFile(dataPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "read snapshot", 500)
	}
	var cached Cached
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailure, "decode snapshot", 500)
	}
	return &cached, nil
}
