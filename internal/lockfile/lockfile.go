/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// lockfile package provides cross-process mutual exclusion based on OS file locks.
// It serializes server installations started by concurrent proxy processes.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
)

// Represents a file that can be locked and unlocked.
// The lock holder records its process ID in the file.
// Lockfile is NOT goroutine-safe.
type Lockfile struct {
	path   string
	file   *os.File
	locked bool
}

const (
	DefaultLockRetryInterval = 50 * time.Millisecond
)

var (
	ErrUnlocked    = errors.New("lockfile has not been locked, I/O operations are not allowed")
	ErrNeedAbsPath = errors.New("lockfiles must be created using absolute path")
)

// Creates a new Lockfile instance for given path. The actual file is not created or locked yet.
// The path must be an absolute path.
func NewLockfile(path string) (*Lockfile, error) {
	if len(path) == 0 || !filepath.IsAbs(path) {
		return nil, ErrNeedAbsPath
	}

	return &Lockfile{
		path: path,
	}, nil
}

func (l *Lockfile) Path() string {
	return l.path
}

func (l *Lockfile) Locked() bool {
	return l.locked
}

// Releases the lock (if held) and closes the underlying file.
func (l *Lockfile) Close() error {
	unlockErr := l.Unlock()
	if l.file != nil {
		closeErr := l.file.Close()
		l.file = nil
		return errors.Join(unlockErr, closeErr)
	} else {
		return unlockErr
	}
}

// TryLock polls for the lock until it is acquired or ctx is done. The parent directory is created if necessary.
// Once the lock is held, the file contains the ID of the current process.
func (l *Lockfile) TryLock(ctx context.Context, retryInterval time.Duration) error {
	if l.locked {
		return nil
	}

	if retryInterval <= 0 {
		retryInterval = DefaultLockRetryInterval
	}
	retryInterval = wait.Jitter(retryInterval, 0.1)

	if mkdirErr := os.MkdirAll(filepath.Dir(l.path), osutil.PermissionOwnerAllOthersReadExecute); mkdirErr != nil {
		return fmt.Errorf("could not create directory for lockfile '%s': %w", l.path, mkdirErr)
	}

	pollErr := wait.PollUntilContextCancel(ctx, retryInterval, true /* poll immediately */, func(_ context.Context) (bool, error) {
		if l.file == nil {
			file, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, osutil.PermissionOnlyOwnerReadWrite)
			if openErr != nil {
				return false, openErr
			}
			l.file = file
		}

		lockErr := doLock(l.file)
		if lockErr == nil {
			l.locked = true
			return true, nil
		}
		if isAlreadyLockedError(lockErr) {
			// Expected error if another process holds the lock
			return false, nil
		} else {
			return false, lockErr
		}
	})
	if pollErr != nil {
		return fmt.Errorf("could not lock '%s': %w", l.path, pollErr)
	}

	return l.recordOwner()
}

func (l *Lockfile) recordOwner() error {
	if truncateErr := l.file.Truncate(0); truncateErr != nil {
		return truncateErr
	}
	if _, seekErr := l.file.Seek(0, io.SeekStart); seekErr != nil {
		return seekErr
	}
	_, writeErr := l.file.WriteString(strconv.Itoa(os.Getpid()))
	return writeErr
}

// Owner returns the process ID recorded by the current lock holder.
func (l *Lockfile) Owner() (int, error) {
	if l.file == nil || !l.locked {
		return 0, ErrUnlocked
	}

	if _, seekErr := l.file.Seek(0, io.SeekStart); seekErr != nil {
		return 0, seekErr
	}
	content, readErr := io.ReadAll(l.file)
	if readErr != nil {
		return 0, readErr
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

func (l *Lockfile) Unlock() error {
	if l.file == nil || !l.locked {
		return nil
	}

	// Clear the locked flag regardless of the result of unlocking.
	l.locked = false

	return doUnlock(l.file)
}

// WithLock runs action while holding the lock at path.
func WithLock(ctx context.Context, path string, action func() error) error {
	lf, newErr := NewLockfile(path)
	if newErr != nil {
		return newErr
	}

	if lockErr := lf.TryLock(ctx, DefaultLockRetryInterval); lockErr != nil {
		_ = lf.Close()
		return lockErr
	}

	actionErr := action()
	return errors.Join(actionErr, lf.Close())
}

var _ io.Closer = (*Lockfile)(nil)
