/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() backoff.BackOff {
	return NewExponentialBackoff(time.Millisecond, 5*time.Millisecond, 5*time.Second)
}

func TestRetryGetSucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	val, err := RetryGet(context.Background(), fastBackoff(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", val)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal")
	attempts := 0
	retries := 0
	err := Retry(context.Background(), fastBackoff(), func() error {
		attempts++
		if attempts == 2 {
			return Permanent(fatal)
		}
		return errors.New("transient")
	}, func(error, time.Duration) {
		retries++
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, retries)
}

func TestRetryReportsLastAttemptErrorOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	transient := errors.New("still failing")
	err := Retry(ctx, fastBackoff(), func() error {
		return transient
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMakePanicErrorIsPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MakePanicError(nil, logr.Discard()))

	err := MakePanicError("boom", logr.Discard())
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "boom")

	sentinel := errors.New("sentinel")
	err = MakePanicError(sentinel, logr.Discard())
	assert.ErrorIs(t, err, sentinel)
}
