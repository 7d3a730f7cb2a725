/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/roslyn-ls/csharp-language-server/pkg/process"
)

type monitorFlags struct {
	pid      int64
	interval uint8
}

func (mf *monitorFlags) register(fs *pflag.FlagSet) {
	fs.Int64VarP(&mf.pid, "monitor", "m", process.UnknownPID, "If present, the language server shuts down when the process with the given ID (typically the editor) exits.")
	fs.Uint8VarP(&mf.interval, "monitor-interval", "i", 0, "If present, specifies the time in seconds between checks for the monitored process.")
}

// MonitorPid returns a context that is cancelled when the process with the given PID exits.
func MonitorPid(ctx context.Context, pid int64, pollInterval uint8, log logr.Logger) (context.Context, error) {
	if pid == process.UnknownPID {
		return ctx, fmt.Errorf("no PID to monitor")
	}

	monitorCtx, monitorCtxCancel := context.WithCancel(ctx)

	monitorPid, err := process.Int64ToPid(pid)
	if err != nil {
		log.Error(err, "Error converting PID", "pid", pid)
		monitorCtxCancel()
		return monitorCtx, err
	}

	monitorProc, err := process.FindWaitableProcess(ctx, monitorPid)
	if err != nil {
		log.Error(err, "Error finding process", "pid", monitorPid)
		monitorCtxCancel()
		return monitorCtx, err
	}

	if pollInterval > 0 {
		monitorProc.WaitPollInterval = time.Second * time.Duration(pollInterval)
	}

	go func() {
		defer monitorCtxCancel()
		if waitErr := monitorProc.Wait(monitorCtx); waitErr != nil {
			if errors.Is(waitErr, context.Canceled) {
				log.V(1).Info("Monitoring cancelled by context", "pid", monitorPid)
			} else {
				log.Error(waitErr, "Error waiting for process", "pid", monitorPid)
			}
		} else {
			log.Info("Monitored process exited, shutting down", "pid", monitorPid)
		}
	}()

	return monitorCtx, nil
}

// Monitor applies the --monitor flag. If no process is monitored, or it cannot be found, ctx is returned unchanged
// apart from being cancellable.
func (mf *monitorFlags) Monitor(ctx context.Context, log logr.Logger) context.Context {
	if mf.pid == process.UnknownPID {
		return ctx
	}

	// Errors are logged by MonitorPid and a usable context is always returned.
	monitorCtx, _ := MonitorPid(ctx, mf.pid, mf.interval, log)
	return monitorCtx
}
