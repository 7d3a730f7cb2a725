/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roslyn-ls/csharp-language-server/internal/workspace"
)

func TestIsInitializeRequest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		payload  string
		expected bool
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":null}}`, true},
		{`{"jsonrpc":"2.0","id":"abc","method":"initialize"}`, true},
		{`{"jsonrpc":"2.0","method":"initialize"}`, false},
		{`{"jsonrpc":"2.0","method":"initialized","params":{}}`, false},
		{`{"jsonrpc":"2.0","id":2,"method":"textDocument/hover","params":{"text":"initialize"}}`, false},
		{`[{"jsonrpc":"2.0","id":1,"method":"initialize"}]`, false},
		{`{"jsonrpc":"2.0","id":1,"method":"initialize"`, false},
		{`initialize`, false},
		{``, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, IsInitializeRequest([]byte(tc.payload)), tc.payload)
	}
}

func TestIsInitializedNotification(t *testing.T) {
	t.Parallel()

	assert.True(t, IsInitializedNotification([]byte(`{"jsonrpc":"2.0","method":"initialized","params":{}}`)))
	assert.False(t, IsInitializedNotification([]byte(`{"jsonrpc":"2.0","id":3,"method":"initialized"}`)))
	assert.False(t, IsInitializedNotification([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))
}

func TestIsCapabilitiesResponse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		payload  string
		expected bool
	}{
		{`{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"hoverProvider":true}}}`, true},
		{`{"jsonrpc":"2.0","id":"other","result":{"serverInfo":{},"capabilities":{}}}`, true},
		{`{"jsonrpc":"2.0","id":1,"result":{"serverInfo":{"name":"capabilities"}}}`, false},
		{`{"jsonrpc":"2.0","method":"window/logMessage","params":{"message":"\"capabilities\": {}"}}`, false},
		{`{"jsonrpc":"2.0","id":1,"result":null}`, false},
		{`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"capabilities"}}`, false},
		{`{"result":{"capabilities":{}}`, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, IsCapabilitiesResponse([]byte(tc.payload)), tc.payload)
	}
}

func initializeWithParams(params string) []byte {
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":%s}`, params))
}

func TestExtractRootPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rootUri := workspace.PathToURI(root)

	fromUri, err := ExtractRootPath(initializeWithParams(fmt.Sprintf(`{"rootUri":%q,"rootPath":"/ignored"}`, rootUri)))
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), fromUri)

	fromPath, err := ExtractRootPath(initializeWithParams(fmt.Sprintf(`{"rootUri":null,"rootPath":%q}`, root)))
	require.NoError(t, err)
	assert.Equal(t, root, fromPath)
}

func TestExtractRootPathFailures(t *testing.T) {
	t.Parallel()

	_, err := ExtractRootPath([]byte(`{"jsonrpc":"2.0","method":"initialized"}`))
	require.ErrorIs(t, err, ErrNotInitializeRequest)

	_, err = ExtractRootPath(initializeWithParams(`{"capabilities":{}}`))
	require.ErrorIs(t, err, ErrMissingRootPath)

	_, err = ExtractRootPath(initializeWithParams(`{"rootUri":null,"rootPath":""}`))
	require.ErrorIs(t, err, ErrMissingRootPath)

	_, err = ExtractRootPath([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.ErrorIs(t, err, ErrMissingRootPath)

	_, err = ExtractRootPath(initializeWithParams(`{"rootUri":"https://example.com/repo"}`))
	require.ErrorIs(t, err, ErrMissingRootPath)
	require.ErrorIs(t, err, workspace.ErrNotFileURI)

	_, err = ExtractRootPath(initializeWithParams(`{"rootUri":"","rootPath":""}`))
	require.ErrorIs(t, err, ErrMissingRootPath)
}

func TestExtractRootPathFallsBackToRootPath(t *testing.T) {
	t.Parallel()

	for _, params := range []string{
		`{"rootUri":"","rootPath":"/work"}`,
		`{"rootUri":"https://example.com/repo","rootPath":"/work"}`,
	} {
		rootPath, err := ExtractRootPath(initializeWithParams(params))
		require.NoError(t, err, params)
		assert.Equal(t, "/work", rootPath, params)
	}
}
