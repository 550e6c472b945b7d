// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package queue

import "context"

type ticketState int

const (
	waiting ticketState = iota
	granted
	released
	abandoned
)

// Ticket is a place in a Queue's line.
type Ticket struct {
	q     *Queue
	ready chan struct{}
	state ticketState // guarded by q.mutex
	err   error
}

// Ready returns a channel that is closed when the ticket is granted the slot
// or rejected by a closing queue.
func (t *Ticket) Ready() <-chan struct{} { return t.ready }

// Err returns ErrClosed if the ticket was rejected. It must only be called
// after Ready is closed.
func (t *Ticket) Err() error { return t.err }

// Wait blocks until the ticket is granted. If ctx is done first, the ticket
// is abandoned and the context error is returned.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return t.err
	case <-ctx.Done():
		t.Abandon()
		return ctx.Err()
	}
}

// Release frees the slot. Releasing a ticket that was never granted
// abandons it instead. Repeated calls are no-ops.
func (t *Ticket) Release() {
	t.Abandon()
}

// Abandon leaves the line. A granted ticket frees the slot for the next one.
func (t *Ticket) Abandon() {
	q := t.q
	q.mutex.Lock()
	defer q.mutex.Unlock()

	switch t.state {
	case waiting:
		t.state = abandoned
		q.remove(t)
	case granted:
		t.state = released
		q.release(t)
	}
}
