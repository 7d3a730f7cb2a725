//go:build windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lockfile

import (
	"errors"
	"math"
	"os"

	"golang.org/x/sys/windows"
)

func doLock(f *os.File) error {
	// Exclusive lock on the entire file. Locks of a terminated process are released
	// asynchronously, so callers should unlock explicitly.
	var overlapped windows.Overlapped
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,              // reserved, must be zero
		math.MaxUint32, // number of bytes to lock
		math.MaxUint32, // number of bytes to lock, high-order DWORD
		&overlapped,
	)
}

func doUnlock(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(
		windows.Handle(f.Fd()),
		0,
		math.MaxUint32,
		math.MaxUint32,
		&overlapped,
	)
}

func isAlreadyLockedError(err error) bool {
	return errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
