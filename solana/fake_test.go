// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package solana_test

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/session"
	"github.com/zeriontech/hardware-wallet-connection/solana"
)

// recordingDevice answers address requests with the sha256 of the path as
// public key. It records the requested paths and whether two requests ever
// ran at the same time. Signing is not supported.
type recordingDevice struct {
	solana.Device

	mutex   sync.Mutex
	paths   []string
	active  int
	overlap bool
}

var _ solana.Device = (*recordingDevice)(nil)

func pathKey(path string) []byte {
	k := sha256.Sum256([]byte(path))
	return k[:]
}

func (d *recordingDevice) GetAddress(_ session.ID, path string, _ bool) action.DeviceAction[[]byte] {
	return action.DeviceAction[[]byte]{
		Stream: action.NewStream(func(_ context.Context, emit action.Emitter[[]byte]) {
			d.mutex.Lock()
			d.paths = append(d.paths, path)
			d.active++
			d.overlap = d.overlap || d.active > 1
			d.mutex.Unlock()

			time.Sleep(10 * time.Millisecond)

			d.mutex.Lock()
			d.active--
			d.mutex.Unlock()
			emit(action.Completed(pathKey(path)))
		}),
		Cancel: func() {},
	}
}

func (d *recordingDevice) requests() ([]string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.paths...), d.overlap
}
