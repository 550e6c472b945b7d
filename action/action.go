// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package action turns the state stream of a device action into a single
// awaitable and cancellable result.
//
// A device action reports its progress as a sequence of States. NotStarted
// and Pending states may repeat or be skipped; exactly one terminal state
// (Stopped, Completed or Error) ends the sequence. Run subscribes to such a
// stream and settles an Action from the terminal state:
//   Completed settles with the output,
//   Stopped settles with the user rejection error,
//   Error settles with the normalized error.
// Pending states are reported to the OnInteraction callback.
package action // import "github.com/zeriontech/hardware-wallet-connection/action"

import (
	"context"
	"sync"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/pkg/future"
)

type options struct {
	name          string
	log           log.Logger
	onInteraction func(Interaction)
	onFailure     []func(*deviceerr.Error)
}

// Option configures Run.
type Option func(*options)

// OnInteraction sets the callback for Pending states. It is called in
// emission order and never after the action settled or was cancelled.
func OnInteraction(fn func(Interaction)) Option {
	return func(o *options) { o.onInteraction = fn }
}

// OnFailure adds a callback that receives the error of a failed action. It
// runs after the action settled, on the goroutine that delivers the device
// states, and must not block.
func OnFailure(fn func(*deviceerr.Error)) Option {
	return func(o *options) { o.onFailure = append(o.onFailure, fn) }
}

// WithName names the action in log messages.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger that reports the outcome of the action.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.log = l }
}

// Action is a running device action.
type Action[T any] struct {
	options
	result *future.Future[T]

	emitMutex sync.Mutex // serializes state handling

	mutex       sync.Mutex
	unsubscribe func()
	finished    bool
	cancelled   bool
}

// Run subscribes to stream and returns the action driven by it. The stream
// is subscribed exactly once, before Run returns.
func Run[T any](stream Stream[T], opts ...Option) *Action[T] {
	if stream == nil {
		log.Panic("action: nil stream")
	}
	a := &Action[T]{result: future.New[T]()}
	for _, opt := range opts {
		opt(&a.options)
	}
	if a.name == "" {
		a.name = "device action"
	}
	if a.log == nil {
		a.log = log.WithField("component", "action")
	}

	unsub := stream.Subscribe(a.handle)
	a.mutex.Lock()
	a.unsubscribe = unsub
	stop := a.finished || a.cancelled
	a.mutex.Unlock()
	if stop && unsub != nil {
		unsub()
	}
	return a
}

// Fail returns an action that already failed with err. It is used for input
// errors found before the device is involved.
func Fail[T any](err error, opts ...Option) *Action[T] {
	return Run[T](StreamFunc[T](func(emit Emitter[T]) func() {
		emit(Error[T](err))
		return func() {}
	}), opts...)
}

func (a *Action[T]) handle(st State[T]) {
	a.emitMutex.Lock()
	defer a.emitMutex.Unlock()

	a.mutex.Lock()
	if a.finished || a.cancelled {
		a.mutex.Unlock()
		return
	}
	a.finished = st.Terminal()
	unsub := a.unsubscribe
	a.mutex.Unlock()

	var zero T
	switch st.Status {
	case StatusPending:
		a.log.WithField("interaction", st.Interaction).Tracef("%s pending", a.name)
		if a.onInteraction != nil {
			a.onInteraction(st.Interaction)
		}
		return
	case StatusStopped:
		a.settle(zero, deviceerr.Rejected())
	case StatusCompleted:
		a.settle(st.Output, nil)
	case StatusError:
		a.settle(zero, deviceerr.Normalize(st.Err))
	default:
		return
	}

	if unsub != nil {
		unsub()
	}
}

func (a *Action[T]) settle(out T, err *deviceerr.Error) {
	if err != nil {
		a.log.WithError(err).WithField("kind", deviceerr.Classify(err)).Warnf("%s failed", a.name)
		a.result.Reject(err)
		for _, fn := range a.onFailure {
			fn(err)
		}
		return
	}
	a.result.Resolve(out)
	a.log.Debugf("%s completed", a.name)
}

// Cancel unsubscribes from the stream. It does not settle the action, which
// stays pending unless it already settled. Calling Cancel after settlement or
// twice is a no-op.
func (a *Action[T]) Cancel() {
	a.mutex.Lock()
	if a.finished || a.cancelled {
		a.mutex.Unlock()
		return
	}
	a.cancelled = true
	unsub := a.unsubscribe
	a.mutex.Unlock()

	a.log.Debugf("%s cancelled", a.name)
	if unsub != nil {
		unsub()
	}
}

// Cancelled returns whether Cancel took effect.
func (a *Action[T]) Cancelled() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.cancelled
}

// Done returns a channel that is closed when the action settled.
func (a *Action[T]) Done() <-chan struct{} { return a.result.Done() }

// Result returns the outcome without blocking. ok is false while the action
// is unsettled.
func (a *Action[T]) Result() (out T, err error, ok bool) { return a.result.Result() }

// Await waits for the outcome or for ctx to be done. A done context does not
// cancel the action, callers do that with Cancel.
func (a *Action[T]) Await(ctx context.Context) (T, error) { return a.result.Await(ctx) }
