/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// BufferWriter is an io.WriteCloser that accumulates everything written to it.
// All methods are goroutine-safe. Writes fail with io.ErrClosedPipe after Close().
// The number of Write calls is tracked, so tests can tell how output was chunked.
type BufferWriter struct {
	data   []byte
	writes int
	lock   *sync.Mutex
	closed bool
}

func NewBufferWriter() *BufferWriter {
	return &BufferWriter{
		lock: &sync.Mutex{},
	}
}

func (bw *BufferWriter) Write(p []byte) (int, error) {
	bw.lock.Lock()
	defer bw.lock.Unlock()

	if bw.closed {
		return 0, io.ErrClosedPipe
	}

	bw.writes++
	bw.data = append(bw.data, p...)
	return len(p), nil
}

func (bw *BufferWriter) Bytes() []byte {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bytes.Clone(bw.data)
}

func (bw *BufferWriter) Writes() int {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bw.writes
}

func (bw *BufferWriter) Close() error {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	bw.closed = true
	return nil
}

func (bw *BufferWriter) IsClosed() bool {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bw.closed
}

// WaitFor polls the accumulated content until cond returns true or ctx is done.
func (bw *BufferWriter) WaitFor(ctx context.Context, cond func(content []byte) bool) error {
	return wait.PollUntilContextCancel(ctx, 10*time.Millisecond, true, func(_ context.Context) (bool, error) {
		return cond(bw.Bytes()), nil
	})
}

var _ io.WriteCloser = (*BufferWriter)(nil)
