/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package config loads the proxy configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roslyn-ls/csharp-language-server/internal/lsproxy"
	"github.com/roslyn-ls/csharp-language-server/internal/server"
	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
)

const (
	CSHARP_LS_CONFIG        = "CSHARP_LS_CONFIG"        // Path of the configuration file
	CSHARP_LS_OFFLINE       = "CSHARP_LS_OFFLINE"       // If enabled, the language server is never downloaded
	CSHARP_LS_DRAIN_TIMEOUT = "CSHARP_LS_DRAIN_TIMEOUT" // Default for drainTimeout

	configDirName  = "csharp-language-server"
	configFileName = "config.yaml"
)

// Config is the content of the configuration file. Every field is optional.
type Config struct {
	// ServerVersion is the Microsoft.CodeAnalysis.LanguageServer package version.
	ServerVersion string `yaml:"serverVersion,omitempty"`

	// ServerDir is the directory where server versions are installed.
	ServerDir string `yaml:"serverDir,omitempty"`

	// RemoveOldServerVersions deletes other installed versions when a new version is installed.
	RemoveOldServerVersions *bool `yaml:"removeOldServerVersions,omitempty"`

	// Offline disables downloading the server.
	Offline *bool `yaml:"offline,omitempty"`

	// ServerLogLevel is passed to the server as --logLevel (e.g. Trace, Debug, Information).
	ServerLogLevel string `yaml:"serverLogLevel,omitempty"`

	// ServerLogDir is passed to the server as --extensionLogDirectory.
	ServerLogDir string `yaml:"serverLogDir,omitempty"`

	// ServerArgs are extra arguments for the server.
	ServerArgs []string `yaml:"serverArgs,omitempty"`

	// EnvFiles are dotenv files applied to the server environment.
	// Relative paths are resolved against the directory of the configuration file.
	EnvFiles []string `yaml:"envFiles,omitempty"`

	// DotnetPath is the dotnet host executable.
	DotnetPath string `yaml:"dotnetPath,omitempty"`

	// DrainTimeout is how long the proxy waits for the client input to end after the server output has ended.
	DrainTimeout time.Duration `yaml:"drainTimeout,omitempty"`

	// ExitGracePeriod is how long the server may take to exit after the session ends.
	ExitGracePeriod time.Duration `yaml:"exitGracePeriod,omitempty"`
}

// Default returns the configuration used when there is no configuration file.
func Default() *Config {
	removeOld := true
	offline := osutil.EnvVarSwitchEnabled(CSHARP_LS_OFFLINE)

	return &Config{
		ServerVersion:           server.DefaultVersion,
		RemoveOldServerVersions: &removeOld,
		Offline:                 &offline,
		DrainTimeout:            osutil.EnvVarDurationValWithDefault(CSHARP_LS_DRAIN_TIMEOUT, lsproxy.DefaultDrainTimeout),
	}
}

// DefaultPath returns the configuration file location: CSHARP_LS_CONFIG if set,
// otherwise <user config dir>/csharp-language-server/config.yaml.
func DefaultPath() string {
	if path := osutil.EnvVarStringWithDefault(CSHARP_LS_CONFIG, ""); path != "" {
		return path
	}

	configDir, configDirErr := os.UserConfigDir()
	if configDirErr != nil {
		return ""
	}
	return filepath.Join(configDir, configDirName, configFileName)
}

// ParseConfig parses YAML configuration. Unknown fields are an error.
func ParseConfig(content []byte) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if decodeErr := decoder.Decode(&cfg); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return nil, fmt.Errorf("unable to parse configuration: %w", decodeErr)
	}

	if cfg.DrainTimeout < 0 || cfg.ExitGracePeriod < 0 {
		return nil, fmt.Errorf("unable to parse configuration: durations must not be negative")
	}

	return &cfg, nil
}

// Load returns the default configuration overlaid with the configuration file at path.
// If required is false, a missing file is not an error.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, readErr := os.ReadFile(path)
	if errors.Is(readErr, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if readErr != nil {
		return nil, fmt.Errorf("unable to read configuration file '%s': %w", path, readErr)
	}

	fileCfg, parseErr := ParseConfig(content)
	if parseErr != nil {
		return nil, fmt.Errorf("'%s': %w", path, parseErr)
	}

	baseDir := filepath.Dir(path)
	for i, envFile := range fileCfg.EnvFiles {
		if !filepath.IsAbs(envFile) {
			fileCfg.EnvFiles[i] = filepath.Join(baseDir, envFile)
		}
	}

	cfg.Merge(fileCfg)
	return cfg, nil
}

// Merge overwrites the values of c with the values that are set in other.
// Lists are appended.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.ServerVersion != "" {
		c.ServerVersion = other.ServerVersion
	}
	if other.ServerDir != "" {
		c.ServerDir = other.ServerDir
	}
	if other.RemoveOldServerVersions != nil {
		c.RemoveOldServerVersions = other.RemoveOldServerVersions
	}
	if other.Offline != nil {
		c.Offline = other.Offline
	}
	if other.ServerLogLevel != "" {
		c.ServerLogLevel = other.ServerLogLevel
	}
	if other.ServerLogDir != "" {
		c.ServerLogDir = other.ServerLogDir
	}
	if other.DotnetPath != "" {
		c.DotnetPath = other.DotnetPath
	}
	if other.DrainTimeout > 0 {
		c.DrainTimeout = other.DrainTimeout
	}
	if other.ExitGracePeriod > 0 {
		c.ExitGracePeriod = other.ExitGracePeriod
	}

	c.ServerArgs = append(c.ServerArgs, other.ServerArgs...)
	c.EnvFiles = append(c.EnvFiles, other.EnvFiles...)
}

// ServerConfig converts the configuration to the language server settings, with defaults applied.
func (c *Config) ServerConfig() (server.ServerConfig, error) {
	sc := server.ServerConfig{
		Version:         c.ServerVersion,
		InstallRoot:     c.ServerDir,
		LogDir:          c.ServerLogDir,
		LogLevel:        c.ServerLogLevel,
		ExtraArgs:       c.ServerArgs,
		EnvFiles:        c.EnvFiles,
		DotnetPath:      c.DotnetPath,
		ExitGracePeriod: c.ExitGracePeriod,
		DrainTimeout:    c.DrainTimeout,
	}
	if c.RemoveOldServerVersions != nil {
		sc.RemoveOldVersions = *c.RemoveOldServerVersions
	}
	if c.Offline != nil {
		sc.Offline = *c.Offline
	}
	return sc.WithDefaults()
}
