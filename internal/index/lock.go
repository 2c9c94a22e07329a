package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/semidx/semidx/internal/errors"
)

const lockFileName = "index.lock"

// Lock is an advisory file lock guarding a data directory so only one
// indexer writes at a time.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the indexer lock for dataDir without blocking. It
// returns ErrCodeIndexLocked when another process already holds it.
func AcquireLock(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	fl := flock.New(filepath.Join(dataDir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeIndexLocked,
			fmt.Sprintf("another indexer holds the lock on %s", dataDir), nil).
			WithSuggestion("wait for the running index operation to finish")
	}
	return &Lock{fl: fl}, nil
}

// Release gives the lock back.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
