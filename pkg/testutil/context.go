/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"context"
	"fmt"
	"os"
	"time"
)

const testContextTimeoutEnvVar = "CSHARP_LS_TEST_CONTEXT_TIMEOUT"

type deadliner interface {
	Deadline() (time.Time, bool)
	Cleanup(func())
}

// GetTestContext returns a context that ends no later than the test deadline and no later than
// testTimeout (if non-zero). The CSHARP_LS_TEST_CONTEXT_TIMEOUT environment variable (a duration,
// e.g. "10m") overrides both, which is handy when debugging tests.
// The context is cancelled when the test finishes.
func GetTestContext(t deadliner, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := newTestContext(t, testTimeout)
	t.Cleanup(cancel)
	return ctx, cancel
}

func newTestContext(t deadliner, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	if timeoutStr, found := os.LookupEnv(testContextTimeoutEnvVar); found {
		timeout, parseErr := time.ParseDuration(timeoutStr)
		if parseErr != nil {
			panic(fmt.Sprintf("Context timeout value '%s' is invalid: %s", timeoutStr, parseErr.Error()))
		}
		return context.WithTimeout(context.Background(), timeout)
	}

	deadline, haveDeadline := t.Deadline()

	switch {
	case !haveDeadline && testTimeout == 0:
		return context.WithCancel(context.Background())

	case haveDeadline && testTimeout == 0:
		return context.WithDeadline(context.Background(), deadline)

	case !haveDeadline && testTimeout != 0:
		return context.WithTimeout(context.Background(), testTimeout)

	default:
		testDeadline := time.Now().Add(testTimeout)
		// Take shorter of the two deadlines
		if testDeadline.Before(deadline) {
			return context.WithDeadline(context.Background(), testDeadline)
		} else {
			return context.WithDeadline(context.Background(), deadline)
		}
	}
}
