// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package eth_test

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// recordingDevice answers address requests with an address derived from the
// path. It records the requested paths and whether two requests ever ran at
// the same time. Signing is not supported.
type recordingDevice struct {
	eth.Device

	mutex   sync.Mutex
	paths   []string
	active  int
	overlap bool
}

var _ eth.Device = (*recordingDevice)(nil)

func (d *recordingDevice) GetAddress(_ session.ID, path string, _ bool) action.DeviceAction[eth.AddressResult] {
	return action.DeviceAction[eth.AddressResult]{
		Stream: action.NewStream(func(_ context.Context, emit action.Emitter[eth.AddressResult]) {
			d.begin(path)
			emit(action.NotStarted[eth.AddressResult]())
			time.Sleep(10 * time.Millisecond)
			d.end()
			emit(action.Completed(eth.AddressResult{
				Address: common.BytesToAddress(crypto.Keccak256([]byte(path))),
			}))
		}),
		Cancel: func() {},
	}
}

func (d *recordingDevice) begin(path string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.paths = append(d.paths, path)
	d.active++
	if d.active > 1 {
		d.overlap = true
	}
}

func (d *recordingDevice) end() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.active--
}

func (d *recordingDevice) requests() ([]string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.paths...), d.overlap
}
