// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package sim provides a simulated signing device and a provider for it.
//
// The simulated device runs the Ethereum and Solana apps on keys derived
// from a mnemonic. It reports the same progress states and errors as a real
// device, including prompts answered by a configurable Responder, refusing
// overlapping actions and a locked state.
package sim // import "github.com/zeriontech/hardware-wallet-connection/backend/sim"

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Response is the simulated user's reaction to a prompt.
type Response int

// Responses.
const (
	// Approve confirms the prompt.
	Approve Response = iota
	// Reject declines the prompt on the device, which reports status 6985.
	Reject
	// Stop ends the action without output or error.
	Stop
	// Ignore leaves the prompt open until the action is cancelled.
	Ignore
)

// Prompt is shown on the device when an action needs confirmation.
type Prompt struct {
	Interaction action.Interaction
	Path        string
}

// Responder decides how the simulated user reacts to prompts.
type Responder func(Prompt) Response

// AlwaysApprove approves every prompt.
func AlwaysApprove(Prompt) Response { return Approve }

// Device is a simulated signing device.
type Device struct {
	id   string
	name string
	kind session.Kind
	keys *keyring
	log  log.Logger

	mutex     sync.Mutex
	responder Responder
	latency   time.Duration
	locked    bool
	busy      bool
	sessions  map[session.ID]struct{}
}

// Option configures a Device.
type Option func(*config)

type config struct {
	id, name  string
	kind      session.Kind
	mnemonic  string
	responder Responder
	latency   time.Duration
}

// WithID sets the device ID. By default a random one is used.
func WithID(id string) Option { return func(c *config) { c.id = id } }

// WithName sets the device name.
func WithName(name string) Option { return func(c *config) { c.name = name } }

// WithKind sets the transport kind the device is discovered on.
func WithKind(kind session.Kind) Option { return func(c *config) { c.kind = kind } }

// WithMnemonic sets the mnemonic the keys are derived from.
func WithMnemonic(mnemonic string) Option { return func(c *config) { c.mnemonic = mnemonic } }

// WithResponder sets how prompts are answered.
func WithResponder(r Responder) Option { return func(c *config) { c.responder = r } }

// WithLatency sets how long the device takes to process an action.
func WithLatency(d time.Duration) Option { return func(c *config) { c.latency = d } }

// NewDevice creates a simulated device.
func NewDevice(opts ...Option) (*Device, error) {
	c := config{
		name:      "Simulated Nano",
		kind:      session.USB,
		mnemonic:  DefaultMnemonic,
		responder: AlwaysApprove,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	keys, err := newKeyring(c.mnemonic)
	if err != nil {
		return nil, err
	}
	return &Device{
		id:        c.id,
		name:      c.name,
		kind:      c.kind,
		keys:      keys,
		log:       log.WithFields(log.Fields{"component": "sim", "device": c.id}),
		responder: c.responder,
		latency:   c.latency,
		sessions:  make(map[session.ID]struct{}),
	}, nil
}

// ID returns the device ID.
func (d *Device) ID() string { return d.id }

// Descriptor returns the discovery descriptor of the device.
func (d *Device) Descriptor() session.Descriptor {
	return session.Descriptor{DeviceID: d.id, Name: d.name, Kind: d.kind}
}

// SetResponder replaces the prompt responder.
func (d *Device) SetResponder(r Responder) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.responder = r
}

// Lock locks the device. Actions fail until Unlock is called.
func (d *Device) Lock() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.locked = true
}

// Unlock unlocks the device.
func (d *Device) Unlock() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.locked = false
}

// Busy returns whether an action is outstanding on the device.
func (d *Device) Busy() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.busy
}

func (d *Device) attach(id session.ID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.sessions[id] = struct{}{}
}

func (d *Device) detach(id session.ID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.sessions, id)
}

func (d *Device) connected(id session.ID) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, ok := d.sessions[id]
	return ok
}

// begin marks the device busy. It fails if another action is outstanding.
func (d *Device) begin() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.busy {
		return false
	}
	d.busy = true
	return true
}

func (d *Device) end() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.busy = false
}

func (d *Device) state() (Responder, time.Duration, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.responder, d.latency, d.locked
}

// Errors reported by the simulated device, in the shapes real device stacks
// use.
var (
	errRejected = deviceerr.Raw{Message: "Condition not satisfied", ErrorCode: deviceerr.CodeUserRejected, Tag: "EthAppCommandError"}
	errLocked   = deviceerr.Raw{Message: "Device is locked", ErrorCode: deviceerr.CodeDeviceLocked, Tag: deviceerr.TagDeviceLocked}
	errBusy     = "LedgerError: Previous action unfinished (error code: 6f01) (tag: UnfinishedActionError)"
	errGone     = map[string]interface{}{"message": "Device disconnected", "_tag": deviceerr.TagDeviceDisconnected}
)

// simulate creates a device action. The action first checks the session and
// the device state, then shows a prompt for interaction unless it is
// InteractionNone, and finally calls produce.
//
// An ignored prompt keeps the device busy until the action's Cancel is
// called, like a real device whose host stopped listening.
func simulate[T any](d *Device, id session.ID, interaction action.Interaction, path string, produce func() (T, error)) action.DeviceAction[T] {
	abort := make(chan struct{})
	var once sync.Once

	stream := action.NewStream(func(ctx context.Context, emit action.Emitter[T]) {
		emit(action.NotStarted[T]())
		if !d.connected(id) {
			emit(action.Error[T](errGone))
			return
		}
		if !d.begin() {
			emit(action.Error[T](errBusy))
			return
		}
		defer d.end()

		responder, latency, locked := d.state()
		if locked {
			emit(action.Pending[T](action.InteractionUnlockDevice))
			emit(action.Error[T](errLocked))
			return
		}
		emit(action.Pending[T](action.InteractionNone))

		if interaction != action.InteractionNone {
			emit(action.Pending[T](interaction))
			switch responder(Prompt{Interaction: interaction, Path: path}) {
			case Reject:
				emit(action.Error[T](errRejected))
				return
			case Stop:
				emit(action.Stopped[T]())
				return
			case Ignore:
				<-abort
				d.log.WithField("path", path).Debug("prompt aborted")
				return
			}
		}

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-abort:
				return
			case <-ctx.Done():
				return
			}
		}
		out, err := produce()
		if err != nil {
			emit(action.Error[T](err))
			return
		}
		emit(action.Completed(out))
	})

	return action.DeviceAction[T]{
		Stream: stream,
		Cancel: func() { once.Do(func() { close(abort) }) },
	}
}
