// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package test contains timing helpers for tests of blocking and
// asynchronous code.
package test // import "github.com/zeriontech/hardware-wallet-connection/pkg/test"

import (
	"time"

	"github.com/stretchr/testify/require"
)

// Terminates runs fn in a goroutine and returns whether it returned within
// the given timeout.
func Terminates(timeout time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return true
	case <-time.NewTimer(timeout).C:
		return false
	}
}

// AssertTerminates fails the test if fn does not return within timeout.
func AssertTerminates(t require.TestingT, timeout time.Duration, fn func(), msgAndArgs ...interface{}) {
	if !Terminates(timeout, fn) {
		require.Fail(t, "function did not terminate in time", msgAndArgs...)
	}
}

// AssertNotTerminates fails the test if fn returns within timeout.
func AssertNotTerminates(t require.TestingT, timeout time.Duration, fn func(), msgAndArgs ...interface{}) {
	if Terminates(timeout, fn) {
		require.Fail(t, "function terminated unexpectedly", msgAndArgs...)
	}
}

// Closed returns whether ch is closed (or has a value ready) within timeout.
func Closed(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.NewTimer(timeout).C:
		return false
	}
}
