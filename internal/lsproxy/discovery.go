/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"encoding/json"
	"fmt"
	"iter"
)

const (
	MethodSolutionOpen = "solution/open"
	MethodProjectOpen  = "project/open"

	SolutionExtension = "sln"
	ProjectExtension  = "csproj"
)

// FindFilesFunc enumerates files under root that have the given extension (without the dot).
// Each call starts a fresh enumeration.
type FindFilesFunc func(root string, extension string) iter.Seq[string]

// PathToURIFunc converts a file system path to a file:// URI.
type PathToURIFunc func(path string) string

// Notification is a JSON-RPC notification sent by the proxy on its own behalf.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type SolutionParams struct {
	Solution string `json:"solution"`
}

type ProjectParams struct {
	Projects []string `json:"projects"`
}

func newNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// Frame serializes the notification and frames it for the wire.
func (n *Notification) Frame() (*Message, error) {
	payload, marshalErr := json.Marshal(n)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to serialize %s notification: %w", n.Method, marshalErr)
	}
	return NewMessage(payload), nil
}

// DiscoveryBridge locates the solution or projects to open for a workspace root.
type DiscoveryBridge struct {
	FindFiles FindFilesFunc
	PathToURI PathToURIFunc
}

// Discover returns the notification that tells the server what to load for the workspace at root.
// A solution wins over projects; only the first solution found is used. If there is neither,
// the result is nil.
func (b DiscoveryBridge) Discover(root string) *Notification {
	for solution := range b.FindFiles(root, SolutionExtension) {
		return newNotification(MethodSolutionOpen, SolutionParams{
			Solution: b.PathToURI(solution),
		})
	}

	projects := []string{}
	for project := range b.FindFiles(root, ProjectExtension) {
		projects = append(projects, b.PathToURI(project))
	}

	if len(projects) == 0 {
		return nil
	}

	return newNotification(MethodProjectOpen, ProjectParams{
		Projects: projects,
	})
}
