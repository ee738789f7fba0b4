package mdfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// LockFileName lives under the state directory while the daemon runs.
// Cooperating tools (auto-committers, editors with sync plugins) check for it
// before mutating the working tree. The lock is advisory.
const LockFileName = ".sync.lock"

// Lock holds the daemon lockfile: an OS-level flock plus the owning pid
// written into the file for humans and shell scripts.
type Lock struct {
	fl   *flock.Flock
	path string
}

// AcquireLock takes the daemon lock under stateDir. It fails without blocking
// when another process already holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, LockFileName)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		holder := readLockPid(path)
		if holder > 0 {
			return nil, fmt.Errorf("another sync daemon is running (pid %d)", holder)
		}
		return nil, fmt.Errorf("another sync daemon is running")
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("writing lock pid: %w", err)
	}
	return &Lock{fl: fl, path: path}, nil
}

// Release unlocks and removes the lockfile.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the lockfile location.
func (l *Lock) Path() string {
	return l.path
}

func readLockPid(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return pid
}
