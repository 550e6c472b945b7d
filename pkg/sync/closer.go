// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package sync contains synchronization primitives shared by the queue and
// session packages.
package sync // import "github.com/zeriontech/hardware-wallet-connection/pkg/sync"

import (
	"sync"

	"github.com/pkg/errors"
)

// Closer is a utility type to implement closable objects. The zero value is
// ready to use. Closer must not be copied after first use.
type Closer struct {
	once     sync.Once
	mutex    sync.Mutex
	closed   chan struct{}
	isClosed bool
	onClose  []func()
}

func (c *Closer) initOnce() {
	c.once.Do(func() { c.closed = make(chan struct{}) })
}

// Closed returns a channel that is closed when Close is called.
func (c *Closer) Closed() <-chan struct{} {
	c.initOnce()
	return c.closed
}

// IsClosed returns whether the Closer is closed.
func (c *Closer) IsClosed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isClosed
}

// Close closes the Closer and runs the registered OnClose handlers in
// registration order. Closing twice returns an error.
func (c *Closer) Close() error {
	c.initOnce()
	c.mutex.Lock()
	if c.isClosed {
		c.mutex.Unlock()
		return errors.New("already closed")
	}
	c.isClosed = true
	close(c.closed)
	handlers := c.onClose
	c.onClose = nil
	c.mutex.Unlock()

	for _, fn := range handlers {
		fn()
	}
	return nil
}

// OnClose registers fn to be run on Close. Returns false and does not
// register fn if the Closer is already closed.
func (c *Closer) OnClose(fn func()) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.isClosed {
		return false
	}
	c.onClose = append(c.onClose, fn)
	return true
}
