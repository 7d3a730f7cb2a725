/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package lsproxy implements a message-aware stdio proxy that sits between an LSP
client (the editor) and the Roslyn language server.

# Architecture Overview

Bytes flow through two pumps, one per direction. Each pump starts out inspecting:
it decodes complete Content-Length framed messages and hands them to an Inspector.
Once the inspector has acted, the pump switches to passthrough for the rest of the
session and copies raw bytes without decoding anything.

	client stdin  --> [client-to-server pump] --> server stdin
	client stdout <-- [server-to-client pump] <-- server stdout

The proxy intercepts:
  - the first initialize request: forwarded unchanged, then followed by a
    solution/open notification (first *.sln under the workspace root) or a
    project/open notification (all *.csproj files) sent to the server
  - the first response carrying result.capabilities: diagnosticProvider is replaced
    so that the client uses pull diagnostics

Messages that are not acted upon, including payloads that are not valid JSON,
are forwarded byte for byte. A pump that never sees its trigger keeps inspecting
(and forwarding) until its source ends.

# Shutdown

There are no timeouts on individual messages. When the client input ends, the
server input is closed. When the server output ends, the client input is closed
if possible. A framing error on either side ends the session.
*/
package lsproxy
