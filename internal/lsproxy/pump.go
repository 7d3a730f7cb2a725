/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// Direction indicates the flow direction of the bytes moved by a pump.
type Direction int

const (
	// ClientToServer is the flow from the editor to the backing server.
	ClientToServer Direction = iota
	// ServerToClient is the flow from the backing server to the editor.
	ServerToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client-to-server"
	case ServerToClient:
		return "server-to-client"
	default:
		return "unknown"
	}
}

// PumpState is the phase a pump is in. The only transition is Inspecting -> Passthrough.
type PumpState int32

const (
	// Inspecting means every message is decoded and offered to the pump's Inspector.
	Inspecting PumpState = iota
	// Passthrough means bytes are copied verbatim with no decoding.
	Passthrough
)

func (s PumpState) String() string {
	switch s {
	case Inspecting:
		return "inspecting"
	case Passthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Inspector looks at each message a pump reads while inspecting. It is responsible for writing
// the message (as is, modified, or followed by messages of its own) to w, and returns done=true
// once the pump should stop inspecting for the rest of the session.
type Inspector interface {
	Inspect(msg *Message, w io.Writer) (done bool, err error)
}

// InspectorFunc adapts a function to the Inspector interface.
type InspectorFunc func(msg *Message, w io.Writer) (bool, error)

func (f InspectorFunc) Inspect(msg *Message, w io.Writer) (bool, error) {
	return f(msg, w)
}

// Pump moves messages from one side of the proxy to the other.
type Pump struct {
	direction Direction
	decoder   *Decoder
	dst       io.Writer
	inspector Inspector
	log       logr.Logger

	// state is written only by the goroutine running the pump.
	state atomic.Int32

	inspected atomic.Int64
}

func NewPump(direction Direction, src io.Reader, dst io.Writer, inspector Inspector, log logr.Logger) *Pump {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	p := &Pump{
		direction: direction,
		decoder:   NewDecoder(src),
		dst:       dst,
		inspector: inspector,
		log:       log.WithValues("direction", direction.String()),
	}
	p.state.Store(int32(Inspecting))
	return p
}

func (p *Pump) State() PumpState {
	return PumpState(p.state.Load())
}

// Inspected returns the number of messages decoded while the pump was inspecting.
func (p *Pump) Inspected() int64 {
	return p.inspected.Load()
}

// Run pumps until the source reaches end of stream. A clean end of stream returns nil.
func (p *Pump) Run() error {
	for {
		switch p.State() {
		case Inspecting:
			done, inspectErr := p.inspectNext()
			if errors.Is(inspectErr, io.EOF) {
				p.log.V(1).Info("Source ended while inspecting", "messages", p.Inspected())
				return nil
			}
			if inspectErr != nil {
				return fmt.Errorf("%s pump: %w", p.direction, inspectErr)
			}
			if done {
				p.state.Store(int32(Passthrough))
				p.log.V(1).Info("Switched to passthrough", "messages", p.Inspected())
			}

		case Passthrough:
			written, copyErr := io.Copy(p.dst, p.decoder.Buffered())
			p.log.V(1).Info("Source ended in passthrough", "bytes", written)
			if copyErr != nil {
				return fmt.Errorf("%s pump: %w", p.direction, copyErr)
			}
			return nil

		default:
			return fmt.Errorf("%s pump: invalid state %d", p.direction, p.State())
		}
	}
}

func (p *Pump) inspectNext() (bool, error) {
	msg, readErr := p.decoder.Next()
	if readErr != nil {
		return false, readErr
	}
	p.inspected.Add(1)

	done, inspectErr := p.inspector.Inspect(msg, p.dst)
	if inspectErr != nil {
		return false, fmt.Errorf("failed to forward message: %w", inspectErr)
	}
	return done, nil
}
