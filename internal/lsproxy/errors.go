/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-logr/logr"
)

var (
	// ErrFraming is wrapped by every error caused by malformed or truncated message framing.
	ErrFraming = errors.New("invalid message framing")

	// ErrNotInitializeRequest is returned when a root path is requested from a message
	// that is not an initialize request.
	ErrNotInitializeRequest = errors.New("message is not an initialize request")

	// ErrMissingRootPath is returned when an initialize request carries neither rootUri nor rootPath.
	ErrMissingRootPath = errors.New("root URI/path was not given by the client")
)

// FramingError describes a framing desync. The stream cannot be read past it.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrFraming.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrFraming.Error(), e.Reason)
}

func (e *FramingError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFraming, e.Err}
	}
	return []error{ErrFraming}
}

func newFramingError(reason string, err error) *FramingError {
	return &FramingError{Reason: reason, Err: err}
}

// IsFramingError returns true if the error was caused by a framing desync.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFraming)
}

// isClosedStreamError reports errors that a pump gets after the proxy (or the peer) closed
// one of its streams. They mean "end of stream", not failure.
func isClosedStreamError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}

// filterShutdownError drops errors that are expected side effects of the session ending.
func filterShutdownError(err error, log logr.Logger) error {
	if err == nil {
		return nil
	}

	if !IsFramingError(err) && isClosedStreamError(err) {
		log.V(1).Info("Filtering expected stream shutdown error", "error", err)
		return nil
	}

	return err
}
