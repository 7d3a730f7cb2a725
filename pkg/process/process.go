/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package process watches processes that the language server proxy does not own,
// typically the editor that started it.
package process

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	ps "github.com/shirou/gopsutil/v4/process"
)

const UnknownPID int64 = -1

var ErrorProcessNotFound = errors.New("process not found")

// ProcessHandle identifies a process. The identity time guards against PID reuse.
type ProcessHandle struct {
	Pid          int32
	IdentityTime time.Time
}

func (h ProcessHandle) String() string {
	return fmt.Sprintf("%d", h.Pid)
}

// Int64ToPid converts a PID given on the command line.
func Int64ToPid(pid int64) (int32, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return 0, fmt.Errorf("invalid process ID %d", pid)
	}
	return int32(pid), nil
}

// NewProcessHandle finds a running process and records its creation time.
func NewProcessHandle(ctx context.Context, pid int32) (ProcessHandle, error) {
	proc, procErr := findPsProcess(ctx, pid)
	if procErr != nil {
		return ProcessHandle{}, procErr
	}

	return ProcessHandle{
		Pid:          pid,
		IdentityTime: identityTime(ctx, proc),
	}, nil
}

// IsRunning reports whether the process identified by the handle still runs.
// A different process that reuses the PID does not count.
func IsRunning(ctx context.Context, handle ProcessHandle) (bool, error) {
	proc, procErr := findPsProcess(ctx, handle.Pid)
	if errors.Is(procErr, ErrorProcessNotFound) {
		return false, nil
	}
	if procErr != nil {
		return false, procErr
	}

	if handle.IdentityTime.IsZero() {
		return true, nil
	}

	current := identityTime(ctx, proc)
	// Creation time is not always available (e.g. insufficient permissions); assume the PID was not reused.
	return current.IsZero() || current.Equal(handle.IdentityTime), nil
}

func findPsProcess(ctx context.Context, pid int32) (*ps.Process, error) {
	proc, procErr := ps.NewProcessWithContext(ctx, pid)
	if procErr != nil {
		if errors.Is(procErr, ps.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("process with pid %d does not exist: %w", pid, ErrorProcessNotFound)
		}
		return nil, procErr
	}
	return proc, nil
}

func identityTime(ctx context.Context, proc *ps.Process) time.Time {
	createTimestamp, createErr := proc.CreateTimeWithContext(ctx)
	if createErr != nil {
		return time.Time{}
	}
	return time.UnixMilli(createTimestamp)
}
