// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Pool holds the exchangers of devices opened by the embedder and issues
// session IDs for them. It implements session.Provider; discovery reports
// the added devices.
type Pool struct {
	mutex   sync.RWMutex
	devices map[string]pooled
	conns   map[session.ID]string
}

type pooled struct {
	desc session.Descriptor
	ex   Exchanger
}

var _ session.Provider = (*Pool)(nil)

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		devices: make(map[string]pooled),
		conns:   make(map[session.ID]string),
	}
}

// Add makes the device desc, reachable through ex, available for
// connection. A device with the same ID is replaced.
func (p *Pool) Add(desc session.Descriptor, ex Exchanger) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.devices[desc.DeviceID] = pooled{desc: desc, ex: ex}
}

// Remove drops the device and all its connections.
func (p *Pool) Remove(deviceID string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.devices, deviceID)
	for id, dev := range p.conns {
		if dev == deviceID {
			delete(p.conns, id)
		}
	}
}

// Discover implements session.Provider.
func (p *Pool) Discover(ctx context.Context, kind session.Kind) (<-chan session.Descriptor, error) {
	p.mutex.RLock()
	found := make([]session.Descriptor, 0, len(p.devices))
	for _, d := range p.devices {
		if d.desc.Kind == kind {
			found = append(found, d.desc)
		}
	}
	p.mutex.RUnlock()

	out := make(chan session.Descriptor, len(found))
	for _, d := range found {
		out <- d
	}
	close(out)
	return out, nil
}

// Connect implements session.Provider.
func (p *Pool) Connect(ctx context.Context, desc session.Descriptor) (session.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WithStack(err)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, ok := p.devices[desc.DeviceID]; !ok {
		return "", &deviceerr.Error{
			Message: "Device not recognized: " + desc.DeviceID,
			Tag:     deviceerr.TagDeviceNotRecognized,
		}
	}
	id := session.ID(uuid.NewString())
	p.conns[id] = desc.DeviceID
	return id, nil
}

// ListConnected implements session.Provider.
func (p *Pool) ListConnected(context.Context) ([]session.Connected, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	conns := make([]session.Connected, 0, len(p.conns))
	for id, dev := range p.conns {
		conns = append(conns, session.Connected{DeviceID: dev, SessionID: id})
	}
	return conns, nil
}

// Exchanger returns the exchanger of connection id.
func (p *Pool) Exchanger(id session.ID) (Exchanger, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	dev, ok := p.conns[id]
	if !ok {
		return nil, deviceerr.Disconnected()
	}
	return p.devices[dev].ex, nil
}
