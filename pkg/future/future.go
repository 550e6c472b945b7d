// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package future provides a result that is settled at most once and can be
// awaited by any number of goroutines.
package future // import "github.com/zeriontech/hardware-wallet-connection/pkg/future"

import (
	"context"
	"sync"
)

// Future holds the eventual outcome of an asynchronous operation.
// Only the first settlement counts; later ones are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New creates an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Settle settles the future with value and err. Returns whether this call
// settled the future.
func (f *Future[T]) Settle(value T, err error) (settled bool) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		settled = true
	})
	return
}

// Resolve settles the future successfully.
func (f *Future[T]) Resolve(value T) bool { return f.Settle(value, nil) }

// Reject settles the future with an error.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.Settle(zero, err)
}

// Done returns a channel that is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the outcome without blocking. ok is false while the future
// is unsettled.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		return value, nil, false
	}
}

// Await blocks until the future is settled or ctx is done. A done context
// does not settle the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
