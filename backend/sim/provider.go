// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package sim

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Provider is a session.Provider for simulated devices.
type Provider struct {
	mutex   sync.Mutex
	devices []*Device
	conns   map[session.ID]*Device
}

var _ session.Provider = (*Provider)(nil)

// NewProvider returns a provider that discovers the given devices.
func NewProvider(devices ...*Device) *Provider {
	return &Provider{
		devices: devices,
		conns:   make(map[session.ID]*Device),
	}
}

// Plug makes d discoverable.
func (p *Provider) Plug(d *Device) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.devices = append(p.devices, d)
}

// Discover implements session.Provider.
func (p *Provider) Discover(ctx context.Context, kind session.Kind) (<-chan session.Descriptor, error) {
	p.mutex.Lock()
	var found []session.Descriptor
	for _, d := range p.devices {
		if d.kind == kind {
			found = append(found, d.Descriptor())
		}
	}
	p.mutex.Unlock()

	out := make(chan session.Descriptor)
	go func() {
		defer close(out)
		for _, desc := range found {
			select {
			case out <- desc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Connect implements session.Provider.
func (p *Provider) Connect(ctx context.Context, desc session.Descriptor) (session.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WithStack(err)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, d := range p.devices {
		if d.id != desc.DeviceID {
			continue
		}
		id := session.ID(uuid.NewString())
		p.conns[id] = d
		d.attach(id)
		return id, nil
	}
	return "", &deviceerr.Error{
		Message: "Device not recognized: " + desc.DeviceID,
		Tag:     deviceerr.TagDeviceNotRecognized,
	}
}

// ListConnected implements session.Provider.
func (p *Provider) ListConnected(context.Context) ([]session.Connected, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	conns := make([]session.Connected, 0, len(p.conns))
	for id, d := range p.conns {
		conns = append(conns, session.Connected{DeviceID: d.id, SessionID: id})
	}
	return conns, nil
}

// Disconnect closes the connection id. Later actions on it fail with a
// disconnected error.
func (p *Provider) Disconnect(id session.ID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if d, ok := p.conns[id]; ok {
		d.detach(id)
		delete(p.conns, id)
	}
}

// Unplug disconnects every connection of d and stops discovering it.
func (p *Provider) Unplug(d *Device) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for id, c := range p.conns {
		if c == d {
			d.detach(id)
			delete(p.conns, id)
		}
	}
	for i, c := range p.devices {
		if c == d {
			p.devices = append(p.devices[:i], p.devices[i+1:]...)
			break
		}
	}
}
