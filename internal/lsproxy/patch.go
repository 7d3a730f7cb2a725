/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"errors"
	"fmt"

	"github.com/tidwall/sjson"
)

const diagnosticProviderPath = "result.capabilities.diagnosticProvider"

// PullDiagnosticsProvider is the diagnosticProvider value forced into the server capabilities.
// It makes clients that support pull diagnostics ask the server for them,
// including workspace-wide diagnostics.
var PullDiagnosticsProvider = []byte(`{"interFileDependencies":true,"workDoneProgress":true,"workspaceDiagnostics":true}`)

var errNotCapabilitiesResponse = errors.New("message does not contain result.capabilities")

// ForcePullDiagnostics sets result.capabilities.diagnosticProvider to PullDiagnosticsProvider,
// replacing whatever the server declared. The rest of the document is left untouched,
// byte for byte, so field order is preserved. Applying it more than once has no further effect.
func ForcePullDiagnostics(payload []byte) ([]byte, error) {
	if !IsCapabilitiesResponse(payload) {
		return nil, errNotCapabilitiesResponse
	}

	patched, setErr := sjson.SetRawBytes(payload, diagnosticProviderPath, PullDiagnosticsProvider)
	if setErr != nil {
		return nil, fmt.Errorf("failed to set %s: %w", diagnosticProviderPath, setErr)
	}

	return patched, nil
}
