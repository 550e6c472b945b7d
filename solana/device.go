// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package solana

import (
	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Device is the Solana app of a signing device. Every method starts one
// device action on the session id. Paths are passed in canonical form, e.g.
// 44'/501'/0'.
type Device interface {
	// GetAddress returns the ed25519 public key at path.
	GetAddress(id session.ID, path string, verify bool) action.DeviceAction[[]byte]
	// SignTransaction signs a serialized transaction and returns the 64 byte
	// signature.
	SignTransaction(id session.ID, path string, tx []byte) action.DeviceAction[[]byte]
	// SignMessage signs an off-chain message and returns the 64 byte
	// signature.
	SignMessage(id session.ID, path string, message []byte) action.DeviceAction[[]byte]
}
