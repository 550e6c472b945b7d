// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package sim

import (
	"crypto/ed25519"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/session"
	"github.com/zeriontech/hardware-wallet-connection/solana"
)

// Solana returns the Solana app of the device.
func (d *Device) Solana() solana.Device { return solanaApp{d} }

type solanaApp struct{ d *Device }

var _ solana.Device = solanaApp{}

// GetAddress implements solana.Device.
func (a solanaApp) GetAddress(id session.ID, path string, verify bool) action.DeviceAction[[]byte] {
	interaction := action.InteractionNone
	if verify {
		interaction = action.InteractionVerifyAddress
	}
	return simulate(a.d, id, interaction, path, func() ([]byte, error) {
		key, err := a.d.keys.ed25519(path)
		if err != nil {
			return nil, err
		}
		return []byte(key.Public().(ed25519.PublicKey)), nil
	})
}

// SignTransaction implements solana.Device.
func (a solanaApp) SignTransaction(id session.ID, path string, tx []byte) action.DeviceAction[[]byte] {
	return simulate(a.d, id, action.InteractionSignTransaction, path, func() ([]byte, error) {
		return a.sign(path, tx)
	})
}

// SignMessage implements solana.Device.
func (a solanaApp) SignMessage(id session.ID, path string, message []byte) action.DeviceAction[[]byte] {
	return simulate(a.d, id, action.InteractionSignPersonalMessage, path, func() ([]byte, error) {
		return a.sign(path, message)
	})
}

func (a solanaApp) sign(path string, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, deviceerr.FromStatus(0x6a80, "")
	}
	key, err := a.d.keys.ed25519(path)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, payload), nil
}
