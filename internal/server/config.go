/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultVersion is the Microsoft.CodeAnalysis.LanguageServer package version used when none is configured.
	DefaultVersion = "4.12.0-3.24461.2"

	// DefaultLogLevel is passed to the server as --logLevel.
	DefaultLogLevel = "Information"

	// DefaultDotnetPath is the dotnet host used for package restore and for running the neutral server.
	DefaultDotnetPath = "dotnet"

	// DefaultExitGracePeriod is how long the server gets to exit on its own once the session is over.
	DefaultExitGracePeriod = 5 * time.Second

	// PackageFeed is the NuGet feed that publishes the language server packages.
	PackageFeed = "https://pkgs.dev.azure.com/azure-public/vside/_packaging/vs-impl/nuget/v3/index.json"

	productDirName = "csharp-language-server"
	serverDirName  = "server"
	logDirName     = "log"
)

// ServerConfig describes which language server to use and how to run it.
type ServerConfig struct {
	// Version of the Microsoft.CodeAnalysis.LanguageServer package. Defaults to DefaultVersion.
	Version string

	// InstallRoot is the directory that holds installed server versions, one subdirectory per version.
	// Defaults to <user cache dir>/csharp-language-server/server.
	InstallRoot string

	// Offline forbids downloading the server. Ensure fails if the configured version is not installed.
	Offline bool

	// RemoveOldVersions makes the installer delete other installed versions before installing a new one.
	RemoveOldVersions bool

	// LogDir is passed to the server as --extensionLogDirectory.
	// Defaults to <user cache dir>/csharp-language-server/log.
	LogDir string

	// LogLevel is passed to the server as --logLevel. Defaults to DefaultLogLevel.
	LogLevel string

	// ExtraArgs are appended to the server command line.
	ExtraArgs []string

	// EnvFiles are dotenv files whose variables are added to the server environment.
	// Later files take precedence.
	EnvFiles []string

	// DotnetPath is the dotnet host executable. Defaults to DefaultDotnetPath (looked up on PATH).
	DotnetPath string

	// ExitGracePeriod is how long the server may take to exit after the session ends before it is killed.
	// Defaults to DefaultExitGracePeriod.
	ExitGracePeriod time.Duration

	// DrainTimeout is passed to the proxy, see lsproxy.ProxyConfig.
	DrainTimeout time.Duration
}

// DefaultCacheRoot returns <user cache dir>/csharp-language-server.
func DefaultCacheRoot() (string, error) {
	cacheDir, cacheErr := os.UserCacheDir()
	if cacheErr != nil {
		return "", fmt.Errorf("could not determine the user cache directory: %w", cacheErr)
	}
	return filepath.Join(cacheDir, productDirName), nil
}

// WithDefaults returns a copy of the configuration with all unset values filled in.
func (c ServerConfig) WithDefaults() (ServerConfig, error) {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DotnetPath == "" {
		c.DotnetPath = DefaultDotnetPath
	}
	if c.ExitGracePeriod <= 0 {
		c.ExitGracePeriod = DefaultExitGracePeriod
	}

	if c.InstallRoot == "" || c.LogDir == "" {
		cacheRoot, cacheErr := DefaultCacheRoot()
		if cacheErr != nil {
			return c, cacheErr
		}
		if c.InstallRoot == "" {
			c.InstallRoot = filepath.Join(cacheRoot, serverDirName)
		}
		if c.LogDir == "" {
			c.LogDir = filepath.Join(cacheRoot, logDirName)
		}
	}

	installRoot, absErr := filepath.Abs(c.InstallRoot)
	if absErr != nil {
		return c, fmt.Errorf("invalid server install directory '%s': %w", c.InstallRoot, absErr)
	}
	c.InstallRoot = installRoot

	return c, nil
}

// VersionDir is the directory that holds all runtime flavors of the configured version.
func (c ServerConfig) VersionDir() string {
	return filepath.Join(c.InstallRoot, c.Version)
}

// Args returns the server command line arguments that follow the server executable or assembly.
func (c ServerConfig) Args() []string {
	args := []string{
		"--logLevel=" + c.LogLevel,
		"--extensionLogDirectory", c.LogDir,
		"--stdio",
	}
	return append(args, c.ExtraArgs...)
}
