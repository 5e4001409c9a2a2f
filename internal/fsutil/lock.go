// Package fsutil holds the file-system plumbing shared by the WMDA downloader
// and the KIR ligand cache: a per-directory inter-process lock and atomic
// file replacement.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockName is the lock file created inside a data directory.
const LockName = ".imgtsero.lock"

// AcquireLock takes the data-directory lock, polling until timeout. The
// returned func releases it and is never nil.
func AcquireLock(dir string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return func() {}, fmt.Errorf("cannot create data dir %s: %w", dir, err)
	}
	lockPath := filepath.Join(dir, LockName)
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire lock %s: %w", lockPath, err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("another imgtsero process is writing to %s (lock: %s)", dir, lockPath)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
