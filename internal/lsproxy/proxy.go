/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

const DefaultDrainTimeout = 2 * time.Second

var ErrProxyAlreadyRan = errors.New("proxy has already been run")

// Stream is one peer of the proxy: In carries what the peer sends, Out carries what the proxy
// sends to the peer. In and Out are closed by the proxy when they implement io.Closer and the
// session ends; the client's Out is never closed.
type Stream struct {
	In  io.Reader
	Out io.Writer
}

// ProxyConfig contains configuration options for the proxy.
type ProxyConfig struct {
	// FindFiles enumerates workspace files for solution/project discovery. Required.
	FindFiles FindFilesFunc

	// PathToURI converts discovered file paths to URIs. Required.
	PathToURI PathToURIFunc

	// DrainTimeout is how long the proxy keeps waiting for the client input to end
	// after the backing server output has ended. If zero, DefaultDrainTimeout is used.
	DrainTimeout time.Duration

	// Logger is the logger for the proxy. If nil, logging is disabled.
	Logger logr.Logger
}

// Proxy connects an LSP client to a backing server with one pump per direction.
// The client-to-server pump opens the workspace after initialize;
// the server-to-client pump forces pull diagnostics into the server capabilities.
type Proxy struct {
	client Stream
	server Stream

	clientToServer *Pump
	serverToClient *Pump

	drainTimeout time.Duration
	log          logr.Logger

	runOnce sync.Once
}

func NewProxy(client, server Stream, config ProxyConfig) *Proxy {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	drainTimeout := config.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}

	bridge := DiscoveryBridge{
		FindFiles: config.FindFiles,
		PathToURI: config.PathToURI,
	}

	return &Proxy{
		client: client,
		server: server,
		clientToServer: NewPump(ClientToServer, client.In, server.Out,
			NewWorkspaceDiscoveryInspector(bridge, log.WithName("discovery")), log),
		serverToClient: NewPump(ServerToClient, server.In, client.Out,
			NewPullDiagnosticsInspector(log.WithName("capabilities")), log),
		drainTimeout: drainTimeout,
		log:          log,
	}
}

func (p *Proxy) ClientToServerState() PumpState {
	return p.clientToServer.State()
}

func (p *Proxy) ServerToClientState() PumpState {
	return p.serverToClient.State()
}

// Run pumps messages in both directions and blocks until the session is over.
// The session is over when the backing server output ends and the client input has ended
// (or did not end within the drain timeout), when either pump fails, or when ctx is cancelled.
// A clean end of both streams returns nil; cancellation of ctx is reported as ctx.Err().
func (p *Proxy) Run(ctx context.Context) error {
	runErr := ErrProxyAlreadyRan
	p.runOnce.Do(func() {
		runErr = p.run(ctx)
	})
	return runErr
}

func (p *Proxy) run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	serverOutputDone := make(chan struct{})
	var serverToClientErr error

	group.Go(func() error {
		// The server learns that the client is gone through end of its input.
		defer p.closeQuietly(p.server.Out, "backing server input")
		return filterShutdownError(p.clientToServer.Run(), p.log)
	})

	group.Go(func() error {
		defer close(serverOutputDone)
		serverToClientErr = filterShutdownError(p.serverToClient.Run(), p.log)
		return serverToClientErr
	})

	go func() {
		select {
		case <-groupCtx.Done():
			p.log.V(1).Info("Closing proxy streams", "reason", context.Cause(groupCtx))
			p.closeQuietly(p.client.In, "client input")
			p.closeQuietly(p.server.In, "backing server output")
			p.closeQuietly(p.server.Out, "backing server input")
		case <-serverOutputDone:
			p.closeQuietly(p.client.In, "client input")
		}
	}()

	waitResult := make(chan error, 1)
	go func() {
		waitResult <- group.Wait()
	}()

	select {
	case waitErr := <-waitResult:
		return errors.Join(waitErr, ctx.Err())

	case <-serverOutputDone:
		select {
		case waitErr := <-waitResult:
			return errors.Join(waitErr, ctx.Err())
		case <-time.After(p.drainTimeout):
			p.log.Info("Client input did not end after the backing server output ended, no longer waiting for it")
			return serverToClientErr
		}
	}
}

func (p *Proxy) closeQuietly(v any, what string) {
	closer, isCloser := v.(io.Closer)
	if !isCloser {
		return
	}
	if closeErr := closer.Close(); closeErr != nil && !isClosedStreamError(closeErr) {
		p.log.V(1).Info("Error closing stream", "stream", what, "error", closeErr)
	}
}
