// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package session holds the connection to one signing device.
//
// A Session pairs the ID issued by a Provider with the queue that serializes
// all commands sent to the device. Sessions are plain values handed to every
// call; there is no registry of current sessions.
package session // import "github.com/zeriontech/hardware-wallet-connection/session"

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/queue"
)

// Session is an open connection to a device.
type Session struct {
	id       ID
	deviceID string
	queue    *queue.Queue
	log      log.Logger
}

type options struct {
	debug bool
	log   log.Logger
}

// Option configures a Session.
type Option func(*options)

// WithDebug enables the queue's check for overlapping device calls.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithLogger sets the logger of the session and its queue.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.log = l }
}

// New wraps an already issued session ID.
func New(id ID, deviceID string, opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = log.Get()
	}
	l := o.log.WithFields(log.Fields{"session": string(id), "device": deviceID})
	return &Session{
		id:       id,
		deviceID: deviceID,
		queue:    queue.New(queue.WithDebug(o.debug), queue.WithLogger(l.WithField("component", "queue"))),
		log:      l,
	}
}

// Open connects to the device d and returns the session.
func Open(ctx context.Context, p Provider, d Descriptor, opts ...Option) (*Session, error) {
	id, err := p.Connect(ctx, d)
	if err != nil {
		return nil, errors.WithMessagef(err, "connecting to device %s", d.DeviceID)
	}
	return New(id, d.DeviceID, opts...), nil
}

// Restore returns a session for a device that is already connected, without
// prompting the user. If no device is connected, the Disconnected error is
// returned.
func Restore(ctx context.Context, p Provider, opts ...Option) (*Session, error) {
	conns, err := p.ListConnected(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "listing connected devices")
	}
	if len(conns) == 0 {
		return nil, deviceerr.Disconnected()
	}
	return New(conns[0].SessionID, conns[0].DeviceID, opts...), nil
}

// OpenFirst discovers devices of the given kind and connects to the first
// one found.
func OpenFirst(ctx context.Context, p Provider, kind Kind, opts ...Option) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found, err := p.Discover(ctx, kind)
	if err != nil {
		return nil, errors.WithMessage(err, "discovering devices")
	}
	select {
	case d, ok := <-found:
		if !ok {
			return nil, deviceerr.Disconnected()
		}
		return Open(ctx, p, d, opts...)
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "discovering devices")
	}
}

// ID returns the session ID.
func (s *Session) ID() ID { return s.id }

// DeviceID returns the ID of the connected device.
func (s *Session) DeviceID() string { return s.deviceID }

// Log returns the logger of the session.
func (s *Session) Log() log.Logger { return s.log }

// Queue returns the queue that serializes the session's device calls.
func (s *Session) Queue() *queue.Queue { return s.queue }

// Close rejects all queued and future calls. A call in progress is not
// interrupted.
func (s *Session) Close() error { return s.queue.Close() }

// ErrClosed is the error of device actions on a closed session.
func ErrClosed() *deviceerr.Error {
	return &deviceerr.Error{Message: "session closed", Tag: deviceerr.TagDisconnectedDevice}
}

// Call runs fn in the session's device slot.
func Call[T any](ctx context.Context, s *Session, fn func(context.Context, ID) (T, error)) (T, error) {
	res, err := queue.Do(ctx, s.queue, func(ctx context.Context) (T, error) {
		return fn(ctx, s.id)
	})
	if errors.Is(err, queue.ErrClosed) {
		return res, ErrClosed()
	}
	return res, err
}

// Serialize returns a stream that runs the device action created by open in
// the session's device slot. The slot is reserved when the stream is
// subscribed, so actions reach the device in subscription order. The slot is
// held until the action emits a terminal state or the stream is
// unsubscribed; unsubscribing also calls the action's Cancel.
func Serialize[T any](s *Session, open func(ID) action.DeviceAction[T]) action.Stream[T] {
	return action.StreamFunc[T](func(emit action.Emitter[T]) func() {
		t := s.queue.Reserve()
		return action.NewStream(func(ctx context.Context, emit action.Emitter[T]) {
			defer t.Release()
			if err := t.Wait(ctx); err != nil {
				if errors.Is(err, queue.ErrClosed) {
					emit(action.Error[T](ErrClosed()))
				}
				return
			}

			da := open(s.id)
			terminated := make(chan struct{})
			var once sync.Once
			unsubscribe := da.Stream.Subscribe(func(st action.State[T]) {
				emit(st)
				if st.Terminal() {
					once.Do(func() { close(terminated) })
				}
			})
			select {
			case <-terminated:
			case <-ctx.Done():
				s.log.Debug("aborting device action")
				if da.Cancel != nil {
					da.Cancel()
				}
			}
			unsubscribe()
		}).Subscribe(emit)
	})
}
