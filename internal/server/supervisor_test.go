/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roslyn-ls/csharp-language-server/internal/lsproxy"
	"github.com/roslyn-ls/csharp-language-server/internal/workspace"
	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
	"github.com/roslyn-ls/csharp-language-server/pkg/testutil"
)

type fixedServer ServerPath

func (fs fixedServer) Ensure(_ context.Context) (ServerPath, error) {
	return ServerPath(fs), nil
}

type capturedLog struct {
	lock  sync.Mutex
	lines []string
}

func (cl *capturedLog) logger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		cl.lock.Lock()
		defer cl.lock.Unlock()
		cl.lines = append(cl.lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1})
}

func (cl *capturedLog) contains(s string) bool {
	cl.lock.Lock()
	defer cl.lock.Unlock()
	for _, line := range cl.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// fakeServerSetup returns a configuration that runs the test binary as the language server.
func fakeServerSetup(t *testing.T, envLines ...string) (ServerConfig, fixedServer) {
	t.Helper()

	dir := t.TempDir()
	envFile := filepath.Join(dir, "fake-server.env")
	envContent := fakeServerEnvVar + "=1\n" + strings.Join(envLines, "\n") + "\n"
	require.NoError(t, os.WriteFile(envFile, []byte(envContent), osutil.PermissionOnlyOwnerReadWrite))

	config, configErr := ServerConfig{
		InstallRoot:     filepath.Join(dir, "server"),
		LogDir:          filepath.Join(dir, "log"),
		EnvFiles:        []string{envFile},
		ExitGracePeriod: 5 * time.Second,
		DrainTimeout:    500 * time.Millisecond,
	}.WithDefaults()
	require.NoError(t, configErr)

	return config, fixedServer(ServerPath{Path: os.Args[0]})
}

func frame(payload string) []byte {
	return lsproxy.Encode([]byte(payload))
}

func TestSupervisorProxiesSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "App.sln"), nil, osutil.PermissionOwnerReadWriteOthersRead))

	config, server := fakeServerSetup(t)
	log := &capturedLog{}
	supervisor := NewSupervisor(config, server, log.logger())

	clientIn, clientWriter := io.Pipe()
	clientOut := testutil.NewBufferWriter()

	runResult := make(chan error, 1)
	go func() {
		runResult <- supervisor.Run(ctx, lsproxy.Stream{In: clientIn, Out: clientOut})
	}()

	initialize := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":%q}}`, workspace.PathToURI(root))
	_, writeErr := clientWriter.Write(frame(initialize))
	require.NoError(t, writeErr)

	expectedSolution := fmt.Sprintf(`"params":{"solution":%q}`, workspace.PathToURI(filepath.Join(root, "App.sln")))
	waitErr := clientOut.WaitFor(ctx, func(content []byte) bool {
		return bytes.Contains(content, lsproxy.PullDiagnosticsProvider) &&
			bytes.Contains(content, []byte(`"method":"solution/open"`)) &&
			bytes.Contains(content, []byte(expectedSolution))
	})
	require.NoError(t, waitErr, "client output: %s", string(clientOut.Bytes()))

	_, writeErr = clientWriter.Write(frame(`{"jsonrpc":"2.0","method":"initialized","params":{}}`))
	require.NoError(t, writeErr)
	waitErr = clientOut.WaitFor(ctx, func(content []byte) bool {
		return bytes.Contains(content, []byte(`"method":"initialized"`))
	})
	require.NoError(t, waitErr, "client output: %s", string(clientOut.Bytes()))

	_, writeErr = clientWriter.Write(frame(`{"jsonrpc":"2.0","method":"exit"}`))
	require.NoError(t, writeErr)
	_ = clientWriter.Close()

	select {
	case runErr := <-runResult:
		require.NoError(t, runErr)
	case <-ctx.Done():
		t.Fatal("supervisor did not finish after the server exited")
	}

	assert.False(t, bytes.Contains(clientOut.Bytes(), []byte(`"interFileDependencies":false`)),
		"the server's own diagnostic provider must not reach the client")
	assert.True(t, log.contains("Launched language server"))
}

func TestSupervisorReportsFailingServerExit(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	config, server := fakeServerSetup(t, fakeServerExitCodeEnvVar+"=3")
	supervisor := NewSupervisor(config, server, logr.Discard())

	clientIn, clientWriter := io.Pipe()
	clientOut := testutil.NewBufferWriter()

	runResult := make(chan error, 1)
	go func() {
		runResult <- supervisor.Run(ctx, lsproxy.Stream{In: clientIn, Out: clientOut})
	}()

	_, writeErr := clientWriter.Write(frame(`{"jsonrpc":"2.0","method":"exit"}`))
	require.NoError(t, writeErr)
	_ = clientWriter.Close()

	select {
	case runErr := <-runResult:
		require.ErrorIs(t, runErr, ErrServerExited)
		assert.Contains(t, runErr.Error(), "exit code 3")
	case <-ctx.Done():
		t.Fatal("supervisor did not finish after the server exited")
	}
}

func TestSupervisorStopsOnCancellation(t *testing.T) {
	t.Parallel()

	testCtx, testCancel := testutil.GetTestContext(t, 30*time.Second)
	defer testCancel()

	ctx, cancel := context.WithCancel(testCtx)

	config, server := fakeServerSetup(t)
	supervisor := NewSupervisor(config, server, logr.Discard())

	clientIn, clientWriter := io.Pipe()
	defer clientWriter.Close()
	clientOut := testutil.NewBufferWriter()

	runResult := make(chan error, 1)
	go func() {
		runResult <- supervisor.Run(ctx, lsproxy.Stream{In: clientIn, Out: clientOut})
	}()

	// Make sure the session is up before cancelling.
	_, writeErr := clientWriter.Write(frame(`{"jsonrpc":"2.0","method":"$/ping"}`))
	require.NoError(t, writeErr)
	require.NoError(t, clientOut.WaitFor(testCtx, func(content []byte) bool {
		return bytes.Contains(content, []byte(`"method":"$/ping"`))
	}))

	cancel()

	select {
	case runErr := <-runResult:
		require.ErrorIs(t, runErr, context.Canceled)
	case <-testCtx.Done():
		t.Fatal("supervisor did not stop after cancellation")
	}
}

func TestSupervisorRelaysServerStderr(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	config, server := fakeServerSetup(t, fakeServerGreetingEnvVar+"=fake server says hello")
	log := &capturedLog{}

	launched, launchErr := Launch(ctx, ServerPath(server), config, log.logger())
	require.NoError(t, launchErr)

	require.NoError(t, launched.Stdin.Close())
	require.NoError(t, launched.Wait())
	assert.Equal(t, 0, launched.ExitCode())

	require.Eventually(t, func() bool {
		return log.contains("fake server says hello")
	}, 10*time.Second, 20*time.Millisecond)

	_ = launched.Stdout.Close()
}

func TestLogStderrKeepsReadingAfterOverlongLine(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	reader, writer := io.Pipe()
	log := &capturedLog{}
	relayed := make(chan struct{})
	go func() {
		logStderr(reader, log.logger())
		close(relayed)
	}()

	// Writes fail with io.ErrClosedPipe if the relay stops reading.
	_, writeErr := writer.Write([]byte(strings.Repeat("x", maxStderrLineSize+1024) + "\n"))
	require.NoError(t, writeErr)
	_, writeErr = writer.Write([]byte("still relaying\n"))
	require.NoError(t, writeErr)
	require.NoError(t, writer.Close())

	select {
	case <-relayed:
	case <-ctx.Done():
		t.Fatal("stderr relay did not finish")
	}

	assert.True(t, log.contains(`"truncated"=true`))
	assert.True(t, log.contains("still relaying"))
	assert.False(t, log.contains(strings.Repeat("x", maxStderrLineSize+1)))
}

func TestLaunchFailsForMissingEnvFile(t *testing.T) {
	t.Parallel()

	config, server := fakeServerSetup(t)
	config.EnvFiles = append(config.EnvFiles, filepath.Join(t.TempDir(), "missing.env"))

	_, launchErr := Launch(context.Background(), ServerPath(server), config, logr.Discard())
	require.Error(t, launchErr)
	assert.Contains(t, launchErr.Error(), "missing.env")
}

func TestLaunchFailsForMissingServer(t *testing.T) {
	t.Parallel()

	config, _ := fakeServerSetup(t)
	missing := ServerPath{Path: filepath.Join(t.TempDir(), osutil.ExecutableName("no-such-server"))}

	_, launchErr := Launch(context.Background(), missing, config, logr.Discard())
	require.Error(t, launchErr)
}
