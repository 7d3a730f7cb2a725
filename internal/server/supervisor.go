/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"

	"github.com/roslyn-ls/csharp-language-server/internal/lsproxy"
	"github.com/roslyn-ls/csharp-language-server/internal/workspace"
	"github.com/roslyn-ls/csharp-language-server/pkg/logger"
)

const maxStderrLineSize = 256 * 1024

// ErrServerExited is wrapped by the error returned when the server process exits unsuccessfully.
var ErrServerExited = errors.New("language server exited unsuccessfully")

// LaunchedServer is a running language server process.
type LaunchedServer struct {
	// Stdin is the server's standard input (the proxy writes client messages here).
	Stdin io.WriteCloser

	// Stdout is the server's standard output (the proxy reads server messages from here).
	Stdout io.ReadCloser

	cmd *exec.Cmd

	// done is closed when the process has exited.
	done chan struct{}

	// mu protects exitCode and exitErr.
	mu       sync.Mutex
	exitCode int
	exitErr  error
}

func (ls *LaunchedServer) Pid() int {
	return ls.cmd.Process.Pid
}

// Done returns a channel that is closed when the server process exits.
func (ls *LaunchedServer) Done() <-chan struct{} {
	return ls.done
}

// Wait blocks until the server process exits.
func (ls *LaunchedServer) Wait() error {
	<-ls.done
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.exitErr
}

// ExitCode returns the process exit code. Only valid after Wait() returns.
func (ls *LaunchedServer) ExitCode() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.exitCode
}

// Kill stops the server process immediately.
func (ls *LaunchedServer) Kill() error {
	killErr := ls.cmd.Process.Kill()
	if errors.Is(killErr, os.ErrProcessDone) {
		return nil
	}
	return killErr
}

// Launch starts the server at serverPath. The process is killed when ctx is cancelled.
//
// The standard streams are plain OS pipes owned by the caller, so the proxy can keep reading
// server output that is still buffered after the process has exited.
func Launch(ctx context.Context, serverPath ServerPath, config ServerConfig, log logr.Logger) (*LaunchedServer, error) {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	env, envErr := buildEnv(config.EnvFiles)
	if envErr != nil {
		return nil, envErr
	}

	name, args := serverPath.Command(config.DotnetPath)
	args = append(args, config.Args()...)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env

	stdinReader, stdinWriter, stdinErr := os.Pipe()
	if stdinErr != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", stdinErr)
	}
	stdoutReader, stdoutWriter, stdoutErr := os.Pipe()
	if stdoutErr != nil {
		closeAll(stdinReader, stdinWriter)
		return nil, fmt.Errorf("failed to create stdout pipe: %w", stdoutErr)
	}
	stderrReader, stderrWriter, stderrErr := os.Pipe()
	if stderrErr != nil {
		closeAll(stdinReader, stdinWriter, stdoutReader, stdoutWriter)
		return nil, fmt.Errorf("failed to create stderr pipe: %w", stderrErr)
	}

	cmd.Stdin = stdinReader
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	startErr := cmd.Start()
	// The child has its own copies of these now.
	closeAll(stdinReader, stdoutWriter, stderrWriter)
	if startErr != nil {
		closeAll(stdinWriter, stdoutReader, stderrReader)
		return nil, fmt.Errorf("failed to start language server '%s': %w", name, startErr)
	}

	server := &LaunchedServer{
		Stdin:    stdinWriter,
		Stdout:   stdoutReader,
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	log.Info("Launched language server", "command", name, "args", args, "pid", server.Pid())

	go logStderr(stderrReader, log.WithName("stderr"))

	go func() {
		waitErr := cmd.Wait()
		server.mu.Lock()
		server.exitCode = cmd.ProcessState.ExitCode()
		server.exitErr = waitErr
		server.mu.Unlock()
		close(server.done)

		if waitErr != nil {
			log.V(1).Info("Language server process exited with error", "pid", server.Pid(), "exitCode", cmd.ProcessState.ExitCode(), "error", waitErr.Error())
		} else {
			log.V(1).Info("Language server process exited", "pid", server.Pid())
		}
	}()

	return server, nil
}

// ServerLocator finds (installing if necessary) the language server to run.
type ServerLocator interface {
	Ensure(ctx context.Context) (ServerPath, error)
}

// Supervisor runs one proxied language server session.
type Supervisor struct {
	config  ServerConfig
	locator ServerLocator
	log     logr.Logger
}

func NewSupervisor(config ServerConfig, locator ServerLocator, log logr.Logger) *Supervisor {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Supervisor{
		config:  config,
		locator: locator,
		log:     log,
	}
}

// Run makes sure the server is installed, launches it and proxies the client streams to it
// until the session is over. It then waits (for at most the exit grace period) for the server to exit.
// The error is non-nil if the proxy failed or the server exited unsuccessfully.
func (s *Supervisor) Run(ctx context.Context, client lsproxy.Stream) error {
	serverPath, installErr := s.locator.Ensure(ctx)
	if installErr != nil {
		return installErr
	}

	server, launchErr := Launch(ctx, serverPath, s.config, s.log)
	if launchErr != nil {
		return launchErr
	}

	proxy := lsproxy.NewProxy(client, lsproxy.Stream{In: server.Stdout, Out: server.Stdin}, lsproxy.ProxyConfig{
		FindFiles:    workspace.FindFiles,
		PathToURI:    workspace.PathToURI,
		DrainTimeout: s.config.DrainTimeout,
		Logger:       s.log.WithName("proxy"),
	})
	proxyErr := proxy.Run(ctx)
	if proxyErr != nil && ctx.Err() == nil {
		s.log.Error(proxyErr, "Proxy session failed")
	}

	closeAll(server.Stdin)

	select {
	case <-server.Done():
	case <-time.After(s.config.ExitGracePeriod):
		s.log.Info("Language server did not exit after the session ended, killing it", "pid", server.Pid())
		if killErr := server.Kill(); killErr != nil {
			s.log.Error(killErr, "Could not kill language server", "pid", server.Pid())
		}
	}

	waitErr := server.Wait()
	closeAll(server.Stdout)

	if ctx.Err() != nil {
		// The server was killed because we are shutting down.
		return errors.Join(proxyErr, ctx.Err())
	}
	if waitErr != nil {
		return errors.Join(proxyErr, fmt.Errorf("%w (exit code %d): %w", ErrServerExited, server.ExitCode(), waitErr))
	}
	return proxyErr
}

// buildEnv returns the current environment extended with the variables from envFiles
// and the logging session ID.
func buildEnv(envFiles []string) ([]string, error) {
	env := os.Environ()

	if len(envFiles) > 0 {
		fileVars, readErr := godotenv.Read(envFiles...)
		if readErr != nil {
			return nil, fmt.Errorf("could not read environment files %v: %w", envFiles, readErr)
		}
		for _, key := range slices.Sorted(maps.Keys(fileVars)) {
			env = append(env, key+"="+fileVars[key])
		}
	}

	return append(env, logger.SessionEnv()), nil
}

// logStderr relays the server's stderr line by line until the stream ends.
// Lines longer than maxStderrLineSize are truncated; the rest of the line is still read and dropped.
func logStderr(stderr io.ReadCloser, log logr.Logger) {
	defer stderr.Close()

	reader := bufio.NewReader(stderr)
	line := make([]byte, 0, 4096)
	truncated := false
	for {
		fragment, isPrefix, readErr := reader.ReadLine()
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				log.V(1).Info("Stopped relaying language server stderr", "error", readErr.Error())
			}
			return
		}

		room := maxStderrLineSize - len(line)
		if len(fragment) > room {
			fragment = fragment[:room]
			truncated = true
		}
		line = append(line, fragment...)
		if isPrefix {
			continue
		}

		if truncated {
			log.Info(string(line), "truncated", true)
		} else {
			log.Info(string(line))
		}
		line = line[:0]
		truncated = false
	}
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
