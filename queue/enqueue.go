// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package queue

import "github.com/zeriontech/hardware-wallet-connection/pkg/future"

// Enqueue schedules invoke on q and returns a future of its outcome. The
// place in line is taken before Enqueue returns, so calls start in the order
// Enqueue was called. The outcome of invoke is passed through untranslated.
func Enqueue[T any](q *Queue, invoke func() (T, error)) *future.Future[T] {
	f := future.New[T]()
	t := q.Reserve()
	go func() {
		<-t.Ready()
		if err := t.Err(); err != nil {
			f.Reject(err)
			return
		}
		defer t.Release()
		f.Settle(invoke())
	}()
	return f
}
