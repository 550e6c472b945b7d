// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package session

import "context"

// ID identifies a connection to a device, as issued by a Provider.
type ID string

// Kind is a transport kind.
type Kind string

// Transport kinds.
const (
	USB Kind = "usb"
	HID Kind = "hid"
	BLE Kind = "ble"
)

// Descriptor describes a discovered device.
type Descriptor struct {
	DeviceID string
	Name     string
	Kind     Kind
}

// Connected is a device with an open connection.
type Connected struct {
	DeviceID  string
	SessionID ID
}

// Provider manages the transport to devices. Discovery and connection
// handling are up to the provider, sessions only use the issued IDs.
type Provider interface {
	// Discover reports devices reachable over transports of the given kind.
	// The channel is closed when discovery ends or ctx is done.
	Discover(ctx context.Context, kind Kind) (<-chan Descriptor, error)
	// Connect opens a connection to a discovered device.
	Connect(ctx context.Context, d Descriptor) (ID, error)
	// ListConnected returns the devices with open connections.
	ListConnected(ctx context.Context) ([]Connected, error)
}
