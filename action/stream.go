// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package action

import (
	"context"
	"sync"

	"github.com/zeriontech/hardware-wallet-connection/pkg/sync/atomic"
)

// Emitter receives the states of a device action.
type Emitter[T any] func(State[T])

// Stream is a cold stream of device action states. Nothing happens on the
// device before Subscribe is called. The returned function unsubscribes,
// after which emit is not called anymore.
type Stream[T any] interface {
	Subscribe(emit Emitter[T]) (unsubscribe func())
}

// StreamFunc adapts a subscribe function to the Stream interface.
type StreamFunc[T any] func(emit Emitter[T]) (unsubscribe func())

// Subscribe calls f.
func (f StreamFunc[T]) Subscribe(emit Emitter[T]) func() { return f(emit) }

// DeviceAction is what a device signer returns for one operation: the states
// of the action and a best-effort abort of the device side.
type DeviceAction[T any] struct {
	Stream Stream[T]
	Cancel func()
}

// NewStream creates a cold stream. Each subscription runs start in a new
// goroutine with a context that is cancelled on unsubscribe. The emitter
// passed to start drops every state after the first terminal one and every
// state after unsubscribing.
func NewStream[T any](start func(ctx context.Context, emit Emitter[T])) Stream[T] {
	if start == nil {
		panic("nil start function")
	}
	return StreamFunc[T](func(emit Emitter[T]) func() {
		ctx, cancel := context.WithCancel(context.Background())
		s := &subscription[T]{emit: emit, cancel: cancel}
		go start(ctx, s.put)
		return s.unsubscribe
	})
}

type subscription[T any] struct {
	mutex        sync.Mutex
	emit         Emitter[T]
	terminated   bool // guarded by mutex
	unsubscribed atomic.Bool
	cancel       context.CancelFunc
}

func (s *subscription[T]) put(st State[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.terminated || s.unsubscribed.IsSet() {
		return
	}
	s.terminated = st.Terminal()
	s.emit(st)
}

// unsubscribe does not take the mutex since it may be called from within
// emit.
func (s *subscription[T]) unsubscribe() {
	s.unsubscribed.Set()
	s.cancel()
}

// Map converts the output of the Completed state of s with fn. If fn fails,
// the Completed state is replaced by an Error state carrying the failure.
func Map[T, U any](s Stream[T], fn func(T) (U, error)) Stream[U] {
	return StreamFunc[U](func(emit Emitter[U]) func() {
		return s.Subscribe(func(st State[T]) {
			if st.Status != StatusCompleted {
				emit(State[U]{Status: st.Status, Interaction: st.Interaction, Err: st.Err})
				return
			}
			out, err := fn(st.Output)
			if err != nil {
				emit(Error[U](err))
				return
			}
			emit(Completed(out))
		})
	})
}

// Of returns a stream that emits states on subscription, in order.
func Of[T any](states ...State[T]) Stream[T] {
	return NewStream(func(_ context.Context, emit Emitter[T]) {
		for _, st := range states {
			emit(st)
		}
	})
}
