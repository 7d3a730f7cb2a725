/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestForcePullDiagnosticsReplacesProvider(t *testing.T) {
	t.Parallel()

	const template = `{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"textDocumentSync":2,"diagnosticProvider":%s,"hoverProvider":true},"serverInfo":{"name":"roslyn"}}}`
	original := strings.Replace(template, "%s", `{"interFileDependencies":false,"workspaceDiagnostics":false}`, 1)
	expected := strings.Replace(template, "%s", string(PullDiagnosticsProvider), 1)

	patched, err := ForcePullDiagnostics([]byte(original))
	require.NoError(t, err)
	assert.Equal(t, expected, string(patched))
}

func TestForcePullDiagnosticsAddsProvider(t *testing.T) {
	t.Parallel()

	original := `{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"textDocumentSync":2,"hoverProvider":true}}}`

	patched, err := ForcePullDiagnostics([]byte(original))
	require.NoError(t, err)

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"textDocumentSync":2,"hoverProvider":true,`+
		`"diagnosticProvider":{"interFileDependencies":true,"workDoneProgress":true,"workspaceDiagnostics":true}}}}`, string(patched))

	// Existing fields keep their positions.
	assert.True(t, strings.HasPrefix(string(patched), `{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"textDocumentSync":2,"hoverProvider":true`))
}

func TestForcePullDiagnosticsIsIdempotent(t *testing.T) {
	t.Parallel()

	original := []byte(`{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"diagnosticProvider":null}}}`)

	once, err := ForcePullDiagnostics(original)
	require.NoError(t, err)
	twice, err := ForcePullDiagnostics(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.True(t, gjson.GetBytes(once, "result.capabilities.diagnosticProvider.workspaceDiagnostics").Bool())
}

func TestForcePullDiagnosticsDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	original := []byte(`{"id":1,"result":{"capabilities":{"diagnosticProvider":{"interFileDependencies":false}}}}`)
	snapshot := bytes.Clone(original)

	_, err := ForcePullDiagnostics(original)
	require.NoError(t, err)
	assert.Equal(t, snapshot, original)
}

func TestForcePullDiagnosticsRejectsOtherMessages(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`{"jsonrpc":"2.0","id":1,"result":{}}`,
		`{"jsonrpc":"2.0","method":"initialized","params":{}}`,
		`not json`,
	} {
		_, err := ForcePullDiagnostics([]byte(payload))
		assert.Error(t, err, payload)
	}
}
