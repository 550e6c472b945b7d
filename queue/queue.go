// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package queue serializes access to an exclusive device transport.
//
// A Queue admits exactly one holder at a time. Callers take a place in line
// with Reserve and are granted the slot in strict reservation order. The
// blocking helpers Run and Do and the asynchronous Enqueue are built on top of
// tickets.
package queue // import "github.com/zeriontech/hardware-wallet-connection/queue"

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/log"
	psync "github.com/zeriontech/hardware-wallet-connection/pkg/sync"
)

// ErrClosed is returned for reservations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO single-slot execution queue. The zero value is not usable,
// create queues with New.
type Queue struct {
	psync.Closer

	mutex   sync.Mutex
	waiting []*Ticket // reserved, not yet granted
	holder  *Ticket   // granted, not yet released
	active  int       // granted tickets; never above 1 unless the queue is broken

	debug bool
	log   log.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithDebug enables the development-mode check on the number of active
// tickets. Violations are logged as warnings.
func WithDebug(debug bool) Option {
	return func(q *Queue) { q.debug = debug }
}

// WithLogger sets the logger of the queue.
func WithLogger(l log.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := new(Queue)
	for _, opt := range opts {
		opt(q)
	}
	if q.log == nil {
		q.log = log.WithField("component", "queue")
	}
	q.OnClose(q.rejectWaiting)
	return q
}

// Reserve takes a place at the end of the line. The returned ticket becomes
// ready once all earlier tickets were released or abandoned. On a closed
// queue, the ticket is ready immediately and carries ErrClosed.
func (q *Queue) Reserve() *Ticket {
	t := &Ticket{q: q, ready: make(chan struct{})}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.IsClosed() {
		t.state, t.err = abandoned, ErrClosed
		close(t.ready)
		return t
	}
	q.waiting = append(q.waiting, t)
	q.grant()
	return t
}

// Len returns the number of tickets waiting for the slot.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.waiting)
}

// grant hands the slot to the head of the line if it is free.
// q.mutex must be held.
func (q *Queue) grant() {
	if q.holder != nil || len(q.waiting) == 0 {
		return
	}
	t := q.waiting[0]
	q.waiting[0] = nil
	q.waiting = q.waiting[1:]

	t.state = granted
	q.holder = t
	q.active++
	if q.debug && q.active > 1 {
		q.log.WithField("active", q.active).Warn("more than one active device call")
	}
	close(t.ready)
}

// release frees the slot held by t and grants it to the next ticket.
// q.mutex must be held.
func (q *Queue) release(t *Ticket) {
	if q.holder == t {
		q.holder = nil
	}
	q.active--
	q.grant()
}

// remove drops a waiting ticket from the line.
// q.mutex must be held.
func (q *Queue) remove(t *Ticket) {
	for i, w := range q.waiting {
		if w == t {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

func (q *Queue) rejectWaiting() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, t := range q.waiting {
		t.state, t.err = abandoned, ErrClosed
		close(t.ready)
	}
	q.waiting = nil
}

// Run waits for the slot, executes fn and releases the slot afterwards. The
// error of fn is returned as-is. If ctx is done before the slot is granted,
// the reservation is abandoned and ctx.Err() is returned.
func (q *Queue) Run(ctx context.Context, fn func(context.Context) error) error {
	t := q.Reserve()
	if err := t.Wait(ctx); err != nil {
		return err
	}
	defer t.Release()
	return fn(ctx)
}

// Do is the value returning version of Queue.Run.
func Do[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (res T, err error) {
	err = q.Run(ctx, func(ctx context.Context) error {
		res, err = fn(ctx)
		return err
	})
	return
}
