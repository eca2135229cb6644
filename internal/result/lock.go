package result

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockName = ".expandbench.lock"

var ErrLocked = errors.New("another run holds the corpus lock")

// RunLock serializes runs over one corpus. Metrics, reports and expanded
// programs are written next to the inputs, so runs are locked on the corpus
// root whatever results directory they use.
type RunLock struct {
	fl   *flock.Flock
	path string
}

func AcquireRunLock(dir string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, lockName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &RunLock{fl: fl, path: path}, nil
}

func (l *RunLock) Path() string { return l.path }

func (l *RunLock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return nil
}
