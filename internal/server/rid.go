/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
)

const (
	// NeutralRuntimeID selects the platform-independent server package, which runs on the dotnet host.
	NeutralRuntimeID = "neutral"

	ServerAssemblyName = "Microsoft.CodeAnalysis.LanguageServer"
)

// musl dynamic loaders are named /lib/ld-musl-<arch>.so.1
var muslLoaderPattern = "/lib/ld-musl-*.so.1"

// CurrentRuntimeID returns the .NET runtime identifier of the server package that matches this machine.
func CurrentRuntimeID() string {
	return runtimeID(runtime.GOOS, runtime.GOARCH, isMuslLibc)
}

func runtimeID(goos, goarch string, isMusl func() bool) string {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x64"
	case "arm64":
		arch = "arm64"
	default:
		return NeutralRuntimeID
	}

	switch goos {
	case "windows":
		return "win-" + arch
	case "darwin":
		return "osx-" + arch
	case "linux":
		if isMusl() {
			return "linux-musl-" + arch
		}
		return "linux-" + arch
	default:
		return NeutralRuntimeID
	}
}

func isMuslLibc() bool {
	matches, globErr := filepath.Glob(muslLoaderPattern)
	return globErr == nil && len(matches) > 0
}

// ServerPath locates an installed server. A server that is an assembly runs with "dotnet exec".
type ServerPath struct {
	Path       string
	IsAssembly bool
}

// serverPathFor returns where the server binary for rid lives inside versionDir.
func serverPathFor(versionDir, rid string) ServerPath {
	exeDir := filepath.Join(versionDir, rid)

	switch {
	case rid == NeutralRuntimeID:
		return ServerPath{Path: filepath.Join(exeDir, ServerAssemblyName+".dll"), IsAssembly: true}
	case strings.HasPrefix(rid, "win-"):
		return ServerPath{Path: filepath.Join(exeDir, ServerAssemblyName+".exe")}
	default:
		return ServerPath{Path: filepath.Join(exeDir, ServerAssemblyName)}
	}
}

// Command returns the program and leading arguments that start the server.
func (sp ServerPath) Command(dotnetPath string) (string, []string) {
	if sp.IsAssembly {
		return dotnetPath, []string{"exec", sp.Path}
	}
	return sp.Path, nil
}

func (sp ServerPath) Installed() bool {
	return osutil.FileExists(sp.Path)
}
