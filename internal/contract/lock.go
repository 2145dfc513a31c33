package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFile = ".contract_build.lock"

// staleLockAge is how old a lock file must be before it is presumed
// abandoned by a crashed process and broken.
const staleLockAge = 10 * time.Minute

// Lock is an exclusive per-template build lock. The builder itself assumes
// exclusive access; callers (CLI, HTTP handlers) acquire this around a build
// to keep two writers from racing on the same artifact directory. Readers
// need no lock: artifact writes are atomic renames.
type Lock struct {
	path string
}

// AcquireLock takes the build lock for templateDir, breaking a stale lock
// left behind by a dead process.
func AcquireLock(templateDir string) (*Lock, error) {
	if err := os.MkdirAll(templateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating template dir: %w", err)
	}
	path := filepath.Join(templateDir, lockFile)
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("writing lock file: %w", cerr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}
		info, statErr := os.Stat(path)
		if statErr == nil && time.Since(info.ModTime()) < staleLockAge {
			return nil, fmt.Errorf("another build holds the lock for %s", templateDir)
		}
		// Stale or vanished lock: remove and retry once.
		_ = os.Remove(path)
	}
	return nil, fmt.Errorf("could not acquire build lock for %s", templateDir)
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	return os.Remove(l.path)
}
