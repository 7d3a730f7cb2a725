/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package commands implements the csharp-language-server command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roslyn-ls/csharp-language-server/internal/config"
	"github.com/roslyn-ls/csharp-language-server/internal/lsproxy"
	"github.com/roslyn-ls/csharp-language-server/internal/server"
	"github.com/roslyn-ls/csharp-language-server/internal/version"
	"github.com/roslyn-ls/csharp-language-server/pkg/logger"
)

const (
	configFlagName          = "config"
	serverVersionFlagName   = "server-version"
	serverDirFlagName       = "server-dir"
	removeOldFlagName       = "remove-old-server-versions"
	offlineFlagName         = "offline"
	envFileFlagName         = "env-file"
	serverArgFlagName       = "server-arg"
	serverLogLevelFlagName  = "server-log-level"
	downloadFlagName        = "download"
	downloadFlagShortName   = "d"
	removeOldFlagShortName  = "r"
	serverLogLevelShortName = "l"
)

// serverFlags are the flags that select and configure the language server.
// They are persistent so that subcommands such as "info" see the same server.
type serverFlags struct {
	configPath     string
	serverVersion  string
	serverDir      string
	removeOld      bool
	offline        bool
	envFiles       []string
	serverArgs     []string
	serverLogLevel string
}

func (sf *serverFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&sf.configPath, configFlagName, "", "Path to the YAML configuration file (default: <user config dir>/csharp-language-server/config.yaml).")
	fs.StringVar(&sf.serverVersion, serverVersionFlagName, server.DefaultVersion, "Version of the Microsoft.CodeAnalysis.LanguageServer package to use.")
	fs.StringVar(&sf.serverDir, serverDirFlagName, "", "Directory where language server versions are installed (default: <user cache dir>/csharp-language-server/server).")
	fs.BoolVarP(&sf.removeOld, removeOldFlagName, removeOldFlagShortName, true, "Remove other installed language server versions when a new version is installed.")
	fs.BoolVar(&sf.offline, offlineFlagName, false, "Never download the language server; fail if it is not installed.")
	fs.StringArrayVar(&sf.envFiles, envFileFlagName, nil, "A .env file with variables for the language server environment. Can be repeated; later files take precedence.")
	fs.StringArrayVar(&sf.serverArgs, serverArgFlagName, nil, "An extra argument for the language server. Can be repeated.")
	fs.StringVarP(&sf.serverLogLevel, serverLogLevelFlagName, serverLogLevelShortName, server.DefaultLogLevel, "Log level of the language server (e.g. Trace, Debug, Information, Warning, Error).")
}

// loadConfig returns the effective configuration: defaults, overlaid with the configuration file,
// overlaid with the flags that were set on the command line.
func (sf *serverFlags) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	configPath := sf.configPath
	required := fs.Changed(configFlagName)
	if !required {
		configPath = config.DefaultPath()
	}

	cfg, loadErr := config.Load(configPath, required)
	if loadErr != nil {
		return nil, loadErr
	}

	overrides := &config.Config{}
	if fs.Changed(serverVersionFlagName) {
		overrides.ServerVersion = sf.serverVersion
	}
	if fs.Changed(serverDirFlagName) {
		overrides.ServerDir = sf.serverDir
	}
	if fs.Changed(removeOldFlagName) {
		overrides.RemoveOldServerVersions = &sf.removeOld
	}
	if fs.Changed(offlineFlagName) {
		overrides.Offline = &sf.offline
	}
	if fs.Changed(serverLogLevelFlagName) {
		overrides.ServerLogLevel = sf.serverLogLevel
	}
	overrides.EnvFiles = sf.envFiles
	overrides.ServerArgs = sf.serverArgs

	cfg.Merge(overrides)
	return cfg, nil
}

func (sf *serverFlags) serverConfig(fs *pflag.FlagSet) (server.ServerConfig, error) {
	cfg, loadErr := sf.loadConfig(fs)
	if loadErr != nil {
		return server.ServerConfig{}, loadErr
	}
	return cfg.ServerConfig()
}

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	sf := &serverFlags{}
	mf := &monitorFlags{}
	var download bool

	rootCmd := &cobra.Command{
		SilenceErrors: true,
		Use:           "csharp-language-server",
		Short:         "Runs the Roslyn C# language server over standard input and output",
		Long: `Runs the Roslyn C# language server over standard input and output.

The language server is downloaded on first use. When the editor initializes the session,
the solution (or the projects) found under the workspace root are opened automatically.`,
		SilenceUsage:     true,
		Version:          version.Version().Version,
		Args:             cobra.NoArgs,
		PersistentPreRun: LogVersion(log.Logger, "Starting csharp-language-server..."),
		RunE: func(cmd *cobra.Command, _ []string) error {
			serverConfig, configErr := sf.serverConfig(cmd.Flags())
			if configErr != nil {
				return configErr
			}

			installer := server.NewInstaller(serverConfig, log.WithName("installer"))
			ctx := cmd.Context()

			if download {
				serverPath, installErr := installer.Ensure(ctx)
				if installErr != nil {
					return installErr
				}
				log.Info("Language server is ready", "path", serverPath.Path)
				return nil
			}

			ctx = mf.Monitor(ctx, log.WithName("monitor"))
			supervisor := server.NewSupervisor(serverConfig, installer, log.WithName("supervisor"))
			return supervisor.Run(ctx, lsproxy.Stream{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	log.AddLevelFlag(rootCmd.PersistentFlags())
	sf.register(rootCmd.PersistentFlags())
	mf.register(rootCmd.Flags())
	rootCmd.Flags().BoolVarP(&download, downloadFlagName, downloadFlagShortName, false, "Download the language server (if needed) and exit.")

	var err error
	var cmd *cobra.Command

	if cmd, err = NewVersionCommand(log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	if cmd, err = NewInfoCommand(log, sf); err != nil {
		return nil, fmt.Errorf("could not set up 'info' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	return rootCmd, nil
}
