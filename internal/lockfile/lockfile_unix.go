//go:build !windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lockfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func doLock(f *os.File) error {
	// Advisory lock associated with the open file description.
	// It is released automatically when the descriptor is closed or the process exits ("man 2 flock").
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func doUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func isAlreadyLockedError(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK)
}
