/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roslyn-ls/csharp-language-server/internal/server"
	"github.com/roslyn-ls/csharp-language-server/internal/version"
	"github.com/roslyn-ls/csharp-language-server/pkg/logger"
)

func NewInfoCommand(log *logger.Logger, sf *serverFlags) (*cobra.Command, error) {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Prints information about the application and the language server it uses.",
		Long:  `Prints information about the application and the language server it uses.`,
		RunE:  getInfo(log, sf),
		Args:  cobra.NoArgs,
	}

	return infoCmd, nil
}

type languageServer struct {
	Version     string `json:"version"`
	RuntimeID   string `json:"runtimeId"`
	InstallRoot string `json:"installRoot"`
	Path        string `json:"path"`
	Installed   bool   `json:"installed"`
	Offline     bool   `json:"offline"`
}

type information struct {
	version.VersionOutput
	Server languageServer `json:"server"`
}

func getInfo(log *logger.Logger, sf *serverFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log := log.WithName("info")

		serverConfig, configErr := sf.serverConfig(cmd.Flags())
		if configErr != nil {
			return configErr
		}

		installer := server.NewInstaller(serverConfig, log)
		serverPath := installer.ServerPath()

		info := information{
			VersionOutput: version.Version(),
			Server: languageServer{
				Version:     serverConfig.Version,
				RuntimeID:   installer.RuntimeID(),
				InstallRoot: serverConfig.InstallRoot,
				Path:        serverPath.Path,
				Installed:   serverPath.Installed(),
				Offline:     serverConfig.Offline,
			},
		}

		infoStr, err := json.Marshal(info)
		if err != nil {
			log.Error(err, "Could not serialize application information")
			return err
		}

		_, err = cmd.OutOrStdout().Write(WithNewline(infoStr))
		return err
	}
}
