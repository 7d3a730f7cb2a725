/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultWaitPollInterval = time.Second * 2
)

// WaitableProcess waits for a process that is not a child of the current process.
// Such processes cannot be waited on directly, so their existence is polled.
type WaitableProcess struct {
	WaitPollInterval time.Duration
	handle           ProcessHandle
	err              error
	waitChan         chan struct{}
	waitLock         sync.Mutex
}

func FindWaitableProcess(ctx context.Context, pid int32) (*WaitableProcess, error) {
	handle, handleErr := NewProcessHandle(ctx, pid)
	if handleErr != nil {
		return nil, handleErr
	}

	return &WaitableProcess{
		WaitPollInterval: DefaultWaitPollInterval,
		handle:           handle,
	}, nil
}

func (p *WaitableProcess) Handle() ProcessHandle {
	return p.handle
}

func (p *WaitableProcess) pollingWait(ctx context.Context) {
	p.waitLock.Lock()
	defer p.waitLock.Unlock()

	// Only one polling loop per instance.
	if p.waitChan != nil {
		return
	}

	p.waitChan = make(chan struct{})
	go func() {
		defer close(p.waitChan)

		p.err = wait.PollUntilContextCancel(ctx, p.WaitPollInterval, false, func(ctx context.Context) (bool, error) {
			running, runningErr := IsRunning(ctx, p.handle)
			if runningErr != nil {
				// Transient failure to query the process table; try again on the next tick.
				return false, nil
			}
			return !running, nil
		})
	}()
}

// Wait returns nil when the process has exited, or the context error if the context is done first.
func (p *WaitableProcess) Wait(ctx context.Context) error {
	p.pollingWait(ctx)

	select {
	case <-p.waitChan:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
