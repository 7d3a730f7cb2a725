/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/roslyn-ls/csharp-language-server/internal/workspace"
)

const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
)

// The matcher answers questions about a payload without unmarshaling it.
// Payloads that are not valid JSON never match anything.

func parsePayload(payload []byte) (gjson.Result, bool) {
	if !gjson.ValidBytes(payload) {
		return gjson.Result{}, false
	}
	doc := gjson.ParseBytes(payload)
	return doc, doc.IsObject()
}

// IsInitializeRequest returns true for a request with method "initialize".
func IsInitializeRequest(payload []byte) bool {
	doc, ok := parsePayload(payload)
	if !ok {
		return false
	}
	return doc.Get("method").String() == MethodInitialize && doc.Get("id").Exists()
}

// IsInitializedNotification returns true for the "initialized" notification the client
// sends once it has processed the initialize response.
func IsInitializedNotification(payload []byte) bool {
	doc, ok := parsePayload(payload)
	if !ok {
		return false
	}
	return doc.Get("method").String() == MethodInitialized && !doc.Get("id").Exists()
}

// IsCapabilitiesResponse returns true if the message has a result.capabilities field.
// The check is structural: neither the id nor the (absent) method is consulted.
func IsCapabilitiesResponse(payload []byte) bool {
	doc, ok := parsePayload(payload)
	if !ok {
		return false
	}
	return doc.Get("result.capabilities").Exists()
}

// ExtractRootPath returns the workspace root declared by an initialize request.
// params.rootUri takes precedence over params.rootPath; rootPath is used when rootUri
// is absent, empty, or not a file URI.
func ExtractRootPath(payload []byte) (string, error) {
	if !IsInitializeRequest(payload) {
		return "", ErrNotInitializeRequest
	}

	params := gjson.GetBytes(payload, "params")

	var uriErr error
	if rootUri := params.Get("rootUri"); rootUri.Type == gjson.String {
		rootPath, convErr := workspace.URIToPath(rootUri.String())
		if convErr == nil {
			return rootPath, nil
		}
		uriErr = convErr
	}

	if rootPath := params.Get("rootPath"); rootPath.Type == gjson.String && rootPath.String() != "" {
		return rootPath.String(), nil
	}

	if uriErr != nil {
		return "", fmt.Errorf("%w: %w", ErrMissingRootPath, uriErr)
	}
	return "", ErrMissingRootPath
}
