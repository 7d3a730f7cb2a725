/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/roslyn-ls/csharp-language-server/internal/lockfile"
	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
	"github.com/roslyn-ls/csharp-language-server/pkg/resiliency"
)

const (
	installLockName      = ".install.lock"
	restoreProjectName   = "ServerDownload.csproj"
	restorePackagesDir   = "out"
	packageIdPrefix      = ServerAssemblyName + "."
	buildDirPattern      = "csharp-language-server-restore-"
	packageContentSubdir = "content"
	packageServerSubdir  = "LanguageServer"
)

// The project is never built. Restoring it makes NuGet download the server package into ./out.
const restoreProject = `<Project Sdk="Microsoft.NET.Sdk">
    <PropertyGroup>
        <RestoreSources>` + PackageFeed + `</RestoreSources>
        <RestorePackagesPath>` + restorePackagesDir + `</RestorePackagesPath>
        <TargetFramework>netstandard2.0</TargetFramework>
        <DisableImplicitNuGetFallbackFolder>true</DisableImplicitNuGetFallbackFolder>
        <DisableImplicitFrameworkReferences>true</DisableImplicitFrameworkReferences>
    </PropertyGroup>

    <ItemGroup>
        <PackageDownload Include="$(LanguageServerPackage)" Version="[$(LanguageServerVersion)]" />
    </ItemGroup>
</Project>
`

// CommandResult is the outcome of running an external command to completion.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs a program in dir and waits for it to finish.
// A non-zero exit code is reported in the result, not as an error.
type CommandRunner func(ctx context.Context, dir string, name string, args ...string) (CommandResult, error)

// ErrServerNotInstalled is returned when the server is missing and downloads are not allowed.
var ErrServerNotInstalled = errors.New("language server is not installed and downloading is disabled")

// RestoreError is returned when dotnet restore fails.
type RestoreError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("dotnet restore failed with exit code %d\nstdout: %s\nstderr: %s", e.ExitCode, e.Stdout, e.Stderr)
}

// Installer downloads the language server package for the configured version and this machine's runtime.
type Installer struct {
	config     ServerConfig
	rid        string
	log        logr.Logger
	runCommand CommandRunner
	newBackoff func() backoff.BackOff
}

// InstallerOption customizes an Installer.
type InstallerOption func(*Installer)

// WithRuntimeID overrides the detected runtime identifier.
func WithRuntimeID(rid string) InstallerOption {
	return func(i *Installer) { i.rid = rid }
}

// WithCommandRunner replaces the function used to run dotnet.
func WithCommandRunner(runner CommandRunner) InstallerOption {
	return func(i *Installer) { i.runCommand = runner }
}

// WithRestoreBackoff replaces the retry policy for dotnet restore.
func WithRestoreBackoff(newBackoff func() backoff.BackOff) InstallerOption {
	return func(i *Installer) { i.newBackoff = newBackoff }
}

// NewInstaller creates an installer. The configuration must have defaults applied (see ServerConfig.WithDefaults).
func NewInstaller(config ServerConfig, log logr.Logger, opts ...InstallerOption) *Installer {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	i := &Installer{
		config:     config,
		rid:        CurrentRuntimeID(),
		log:        log,
		runCommand: RunCommand,
		newBackoff: func() backoff.BackOff {
			return resiliency.NewExponentialBackoff(2*time.Second, 15*time.Second, time.Minute)
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Installer) RuntimeID() string {
	return i.rid
}

// ServerPath returns where the server is (or would be) installed.
func (i *Installer) ServerPath() ServerPath {
	return serverPathFor(i.config.VersionDir(), i.rid)
}

// Ensure installs the server unless it is already installed, and returns its location.
// Concurrent calls (including from other processes) are serialized with a lock file in the install root.
func (i *Installer) Ensure(ctx context.Context) (ServerPath, error) {
	serverPath := i.ServerPath()
	if serverPath.Installed() {
		i.log.V(1).Info("Language server is installed", "path", serverPath.Path)
		return serverPath, nil
	}

	if i.config.Offline {
		return ServerPath{}, fmt.Errorf("%w: %s (%s) expected at '%s'", ErrServerNotInstalled, i.config.Version, i.rid, serverPath.Path)
	}

	lockPath := filepath.Join(i.config.InstallRoot, installLockName)
	installErr := lockfile.WithLock(ctx, lockPath, func() error {
		// Another process may have finished the installation while we were waiting for the lock.
		if serverPath.Installed() {
			return nil
		}

		if i.config.RemoveOldVersions {
			if removeErr := i.removeOtherVersions(); removeErr != nil {
				return removeErr
			}
		}

		return i.install(ctx)
	})
	if installErr != nil {
		return ServerPath{}, fmt.Errorf("could not install language server %s (%s): %w", i.config.Version, i.rid, installErr)
	}

	if !serverPath.Installed() {
		return ServerPath{}, fmt.Errorf("language server package %s (%s) does not contain '%s'", i.config.Version, i.rid, serverPath.Path)
	}

	return serverPath, nil
}

func (i *Installer) install(ctx context.Context) error {
	i.log.Info("Installing language server", "version", i.config.Version, "runtime", i.rid, "installRoot", i.config.InstallRoot)

	buildDir, tempErr := os.MkdirTemp("", buildDirPattern)
	if tempErr != nil {
		return fmt.Errorf("could not create package restore directory: %w", tempErr)
	}
	defer func() {
		if removeErr := os.RemoveAll(buildDir); removeErr != nil {
			i.log.V(1).Info("Could not remove package restore directory", "path", buildDir, "error", removeErr.Error())
		}
	}()

	projectPath := filepath.Join(buildDir, restoreProjectName)
	if writeErr := os.WriteFile(projectPath, []byte(restoreProject), osutil.PermissionOwnerReadWriteOthersRead); writeErr != nil {
		return fmt.Errorf("could not write '%s': %w", projectPath, writeErr)
	}

	packageId := packageIdPrefix + i.rid
	restoreErr := resiliency.Retry(ctx, i.newBackoff(), func() error {
		return i.restore(ctx, buildDir, packageId)
	}, func(attemptErr error, delay time.Duration) {
		i.log.Info("Package restore failed, retrying", "error", attemptErr.Error(), "delay", delay)
	})
	if restoreErr != nil {
		return restoreErr
	}

	// NuGet stores packages under lowercased id and version.
	packageServerDir := filepath.Join(buildDir, restorePackagesDir,
		strings.ToLower(packageId), strings.ToLower(i.config.Version),
		packageContentSubdir, packageServerSubdir, i.rid)
	if !osutil.DirExists(packageServerDir) {
		return fmt.Errorf("restored package does not contain the expected directory '%s'", packageServerDir)
	}

	versionDir := i.config.VersionDir()
	if mkdirErr := os.MkdirAll(versionDir, osutil.PermissionOwnerAllOthersReadExecute); mkdirErr != nil {
		return fmt.Errorf("could not create '%s': %w", versionDir, mkdirErr)
	}

	targetDir := filepath.Join(versionDir, i.rid)
	// A partial installation left behind by an interrupted run.
	if removeErr := os.RemoveAll(targetDir); removeErr != nil {
		return fmt.Errorf("could not remove incomplete installation '%s': %w", targetDir, removeErr)
	}

	if moveErr := osutil.MoveDir(packageServerDir, targetDir); moveErr != nil {
		return fmt.Errorf("could not move language server to '%s': %w", targetDir, moveErr)
	}

	i.log.Info("Language server installed", "path", targetDir)
	return nil
}

func (i *Installer) restore(ctx context.Context, buildDir, packageId string) error {
	result, runErr := i.runCommand(ctx, buildDir, i.config.DotnetPath,
		"restore",
		"-p:LanguageServerPackage="+packageId,
		"-p:LanguageServerVersion="+i.config.Version,
	)
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) {
			return resiliency.Permanent(fmt.Errorf("the .NET SDK is required to download the language server: %w", runErr))
		}
		return runErr
	}

	if result.ExitCode != 0 {
		return &RestoreError{
			ExitCode: result.ExitCode,
			Stdout:   string(result.Stdout),
			Stderr:   string(result.Stderr),
		}
	}
	return nil
}

// removeOtherVersions deletes every installed version except the configured one.
func (i *Installer) removeOtherVersions() error {
	entries, readErr := os.ReadDir(i.config.InstallRoot)
	if errors.Is(readErr, os.ErrNotExist) {
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("could not list installed server versions: %w", readErr)
	}

	var removeErrs []error
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == i.config.Version {
			continue
		}

		oldVersionDir := filepath.Join(i.config.InstallRoot, entry.Name())
		i.log.Info("Removing old language server version", "path", oldVersionDir)
		if removeErr := os.RemoveAll(oldVersionDir); removeErr != nil {
			removeErrs = append(removeErrs, removeErr)
		}
	}

	return errors.Join(removeErrs...)
}

// RunCommand is the default CommandRunner.
func RunCommand(ctx context.Context, dir string, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && ctx.Err() == nil {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, runErr
}
