/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package workspace

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
)

const (
	fileScheme    = "file"
	localhostName = "localhost"
)

var (
	ErrNotFileURI   = errors.New("URI does not use the file scheme")
	ErrRemoteHost   = errors.New("file URI refers to a remote host")
	ErrEmptyURIPath = errors.New("file URI has no path")
)

// PathToURI converts a file system path to a file:// URI. Relative paths are made absolute first.
func PathToURI(path string) string {
	if absPath, absErr := filepath.Abs(path); absErr == nil {
		path = absPath
	}

	uri := url.URL{Scheme: fileScheme}
	slashed := filepath.ToSlash(path)

	switch {
	case osutil.IsWindows() && strings.HasPrefix(slashed, "//"):
		// UNC path: //host/share/...
		host, rest, _ := strings.Cut(strings.TrimPrefix(slashed, "//"), "/")
		uri.Host = host
		uri.Path = "/" + rest
	case osutil.IsWindows():
		// Drive letter path: C:/... becomes /C:/...
		uri.Path = "/" + slashed
	default:
		uri.Path = slashed
	}

	return uri.String()
}

// URIToPath converts a file:// URI to a file system path. It is the inverse of PathToURI.
// Host "localhost" is treated as the local machine. Dot segments are resolved.
func URIToPath(uri string) (string, error) {
	parsed, parseErr := url.Parse(uri)
	if parseErr != nil {
		return "", fmt.Errorf("invalid URI '%s': %w", uri, parseErr)
	}

	if !strings.EqualFold(parsed.Scheme, fileScheme) {
		return "", fmt.Errorf("'%s': %w", uri, ErrNotFileURI)
	}

	host := parsed.Host
	if strings.EqualFold(host, localhostName) {
		host = ""
	}

	path := parsed.Path
	if path == "" && host == "" {
		return "", fmt.Errorf("'%s': %w", uri, ErrEmptyURIPath)
	}

	if osutil.IsWindows() {
		return windowsPathFromURI(host, path), nil
	}

	if host != "" {
		return "", fmt.Errorf("'%s': %w", uri, ErrRemoteHost)
	}

	return filepath.Clean(path), nil
}

func windowsPathFromURI(host string, path string) string {
	if host != "" {
		return filepath.Clean(`\\` + strings.ToLower(host) + filepath.FromSlash(path))
	}

	// /C:/foo -> C:/foo
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}

	return filepath.Clean(filepath.FromSlash(path))
}
