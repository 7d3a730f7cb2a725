/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"io"

	"github.com/go-logr/logr"
)

// NewWorkspaceDiscoveryInspector returns the client-to-server inspector. It forwards the first
// initialize request unchanged, follows it with a solution/open or project/open notification
// for the declared workspace root, and then ends inspection.
func NewWorkspaceDiscoveryInspector(bridge DiscoveryBridge, log logr.Logger) Inspector {
	return InspectorFunc(func(msg *Message, w io.Writer) (bool, error) {
		if !IsInitializeRequest(msg.Payload) {
			if IsInitializedNotification(msg.Payload) {
				log.Info("Client sent initialized before any initialize request")
			}
			_, writeErr := msg.WriteTo(w)
			return false, writeErr
		}

		if _, writeErr := msg.WriteTo(w); writeErr != nil {
			return false, writeErr
		}

		root, rootErr := ExtractRootPath(msg.Payload)
		if rootErr != nil {
			log.Info("Workspace discovery skipped", "reason", rootErr.Error())
			return true, nil
		}

		notification := bridge.Discover(root)
		if notification == nil {
			log.Info("No solution or project files found", "root", root)
			return true, nil
		}

		framed, frameErr := notification.Frame()
		if frameErr != nil {
			log.Error(frameErr, "Could not create workspace notification", "root", root)
			return true, nil
		}

		log.Info("Opening workspace", "root", root, "method", notification.Method, "params", notification.Params)
		_, writeErr := framed.WriteTo(w)
		return true, writeErr
	})
}

// NewPullDiagnosticsInspector returns the server-to-client inspector. It patches the first
// message that carries server capabilities so that pull diagnostics are advertised, and then
// ends inspection. Everything before it is forwarded unchanged.
func NewPullDiagnosticsInspector(log logr.Logger) Inspector {
	return InspectorFunc(func(msg *Message, w io.Writer) (bool, error) {
		if !IsCapabilitiesResponse(msg.Payload) {
			_, writeErr := msg.WriteTo(w)
			return false, writeErr
		}

		patched, patchErr := ForcePullDiagnostics(msg.Payload)
		if patchErr != nil {
			log.Error(patchErr, "Could not force pull diagnostics, forwarding server capabilities unchanged")
			_, writeErr := msg.WriteTo(w)
			return true, writeErr
		}

		log.V(1).Info("Forced pull diagnostics capability")
		_, writeErr := NewMessage(patched).WriteTo(w)
		return true, writeErr
	})
}
