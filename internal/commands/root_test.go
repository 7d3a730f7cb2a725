/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roslyn-ls/csharp-language-server/internal/config"
	"github.com/roslyn-ls/csharp-language-server/internal/server"
	"github.com/roslyn-ls/csharp-language-server/internal/version"
	"github.com/roslyn-ls/csharp-language-server/pkg/logger"
	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
	"github.com/roslyn-ls/csharp-language-server/pkg/process"
	"github.com/roslyn-ls/csharp-language-server/pkg/testutil"
)

func newTestRoot(t *testing.T, args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	// Keep the user's configuration file out of the tests.
	t.Setenv(config.CSHARP_LS_CONFIG, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv(config.CSHARP_LS_OFFLINE, "")

	log := logger.New("commands-test")
	log.SetLevel(zapcore.ErrorLevel)
	t.Cleanup(log.Flush)

	root, rootErr := NewRootCommand(log)
	require.NoError(t, rootErr)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	return root, &out
}

func TestVersionCommandPrintsJSON(t *testing.T) {
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	root, out := newTestRoot(t, "version")
	require.NoError(t, root.ExecuteContext(ctx))

	var versionOutput version.VersionOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &versionOutput))
	assert.Equal(t, runtime.Version(), versionOutput.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, versionOutput.Platform)
	assert.NotEmpty(t, versionOutput.Version)
}

func TestInfoCommandDescribesServer(t *testing.T) {
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	serverDir := t.TempDir()
	root, out := newTestRoot(t, "info", "--server-dir", serverDir, "--server-version", "9.9.9-test", "--offline")
	require.NoError(t, root.ExecuteContext(ctx))

	var info struct {
		Version string         `json:"version"`
		Server  languageServer `json:"server"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, "9.9.9-test", info.Server.Version)
	assert.Equal(t, serverDir, info.Server.InstallRoot)
	assert.Equal(t, server.CurrentRuntimeID(), info.Server.RuntimeID)
	assert.True(t, strings.HasPrefix(info.Server.Path, filepath.Join(serverDir, "9.9.9-test")))
	assert.False(t, info.Server.Installed)
	assert.True(t, info.Server.Offline)
}

func TestDownloadOfflineWithoutServerFails(t *testing.T) {
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	root, out := newTestRoot(t, "--download", "--offline", "--server-dir", t.TempDir())
	require.ErrorIs(t, root.ExecuteContext(ctx), server.ErrServerNotInstalled)
	assert.Empty(t, out.Bytes())
}

func TestProxyOfflineWithoutServerFails(t *testing.T) {
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	root, out := newTestRoot(t, "--offline", "--server-dir", t.TempDir())
	require.ErrorIs(t, root.ExecuteContext(ctx), server.ErrServerNotInstalled)
	assert.Empty(t, out.Bytes(), "nothing may be written to the client when there is no server")
}

func TestRootRejectsPositionalArguments(t *testing.T) {
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	root, _ := newTestRoot(t, "--offline", "unexpected")
	require.Error(t, root.ExecuteContext(ctx))
}

func TestRootHelpIsNotIndented(t *testing.T) {
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	root, out := newTestRoot(t, "--help")
	for _, line := range strings.Split(root.Long, "\n") {
		assert.False(t, strings.HasPrefix(line, "\t"), "indented help line: %q", line)
	}

	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "\nThe language server is downloaded on first use.")
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	t.Setenv(config.CSHARP_LS_OFFLINE, "")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
serverVersion: 1.0.0-file
serverDir: /from/file
removeOldServerVersions: false
envFiles: [file.env]
serverArgs: [--fromFile]
`), osutil.PermissionOnlyOwnerReadWrite))

	sf := &serverFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	sf.register(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", configPath,
		"--server-version", "2.0.0-flag",
		"--env-file", "flag.env",
		"--server-arg", "--fromFlag",
	}))

	cfg, loadErr := sf.loadConfig(fs)
	require.NoError(t, loadErr)

	assert.Equal(t, "2.0.0-flag", cfg.ServerVersion)
	assert.Equal(t, "/from/file", cfg.ServerDir)
	assert.False(t, *cfg.RemoveOldServerVersions, "an unset flag does not override the file")
	assert.Equal(t, []string{filepath.Join(dir, "file.env"), "flag.env"}, cfg.EnvFiles)
	assert.Equal(t, []string{"--fromFile", "--fromFlag"}, cfg.ServerArgs)
	assert.Empty(t, cfg.ServerLogLevel)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	t.Parallel()

	sf := &serverFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	sf.register(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))

	_, loadErr := sf.loadConfig(fs)
	require.Error(t, loadErr)
}

func TestMonitorPid(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	_, monitorErr := MonitorPid(ctx, process.UnknownPID, 0, logr.Discard())
	require.Error(t, monitorErr)

	parentCtx, parentCancel := context.WithCancel(ctx)
	monitorCtx, monitorErr := MonitorPid(parentCtx, int64(os.Getpid()), 1, logr.Discard())
	require.NoError(t, monitorErr)

	select {
	case <-monitorCtx.Done():
		require.Fail(t, "the monitored process is running, the context must not be done")
	case <-time.After(50 * time.Millisecond):
	}

	parentCancel()
	select {
	case <-monitorCtx.Done():
	case <-ctx.Done():
		require.Fail(t, "the monitor context must end with its parent")
	}
}

func TestMonitorFlagsWithoutPid(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	mf := &monitorFlags{pid: process.UnknownPID}
	assert.Equal(t, ctx, mf.Monitor(ctx, logr.Discard()))
}
