// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package sim

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Ethereum returns the Ethereum app of the device.
func (d *Device) Ethereum() eth.Device { return ethApp{d} }

type ethApp struct{ d *Device }

var _ eth.Device = ethApp{}

// GetAddress implements eth.Device.
func (a ethApp) GetAddress(id session.ID, path string, verify bool) action.DeviceAction[eth.AddressResult] {
	interaction := action.InteractionNone
	if verify {
		interaction = action.InteractionVerifyAddress
	}
	return simulate(a.d, id, interaction, path, func() (eth.AddressResult, error) {
		key, err := a.d.keys.secp256k1(path)
		if err != nil {
			return eth.AddressResult{}, err
		}
		return eth.AddressResult{
			Address:   crypto.PubkeyToAddress(key.PublicKey),
			PublicKey: crypto.FromECDSAPub(&key.PublicKey),
		}, nil
	})
}

// SignTransaction implements eth.Device. Like the device app, it reports the
// low byte of the EIP-155 value for legacy transactions and the recovery id
// for typed ones.
func (a ethApp) SignTransaction(id session.ID, path string, unsigned []byte) action.DeviceAction[eth.Signature] {
	return simulate(a.d, id, action.InteractionSignTransaction, path, func() (eth.Signature, error) {
		if len(unsigned) == 0 {
			return eth.Signature{}, deviceerr.FromStatus(0x6a80, "")
		}
		sig, err := a.sign(path, crypto.Keccak256(unsigned))
		if err != nil {
			return eth.Signature{}, err
		}
		if unsigned[0] >= 0xc0 {
			chainID, err := legacyChainID(unsigned)
			if err != nil {
				return eth.Signature{}, err
			}
			if chainID == nil || chainID.Sign() == 0 {
				sig.V += 27
			} else {
				sig.V = uint64(byte(chainID.Uint64()*2 + 35 + sig.V))
			}
		}
		return sig, nil
	})
}

// SignPersonalMessage implements eth.Device.
func (a ethApp) SignPersonalMessage(id session.ID, path string, message []byte) action.DeviceAction[eth.Signature] {
	return simulate(a.d, id, action.InteractionSignPersonalMessage, path, func() (eth.Signature, error) {
		sig, err := a.sign(path, accounts.TextHash(message))
		sig.V += 27
		return sig, err
	})
}

// SignTypedDataHash implements eth.Device.
func (a ethApp) SignTypedDataHash(id session.ID, path string, domainSeparator, structHash common.Hash) action.DeviceAction[eth.Signature] {
	return simulate(a.d, id, action.InteractionSignTypedData, path, func() (eth.Signature, error) {
		digest := crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator[:], structHash[:])
		sig, err := a.sign(path, digest)
		sig.V += 27
		return sig, err
	})
}

func (a ethApp) sign(path string, hash []byte) (eth.Signature, error) {
	key, err := a.d.keys.secp256k1(path)
	if err != nil {
		return eth.Signature{}, err
	}
	raw, err := crypto.Sign(hash, key)
	if err != nil {
		return eth.Signature{}, err
	}
	sig, _ := eth.SignatureFromBytes(raw)
	return sig, nil
}

// legacyChainID reads the chain id of an EIP-155 signing payload. Pre
// EIP-155 payloads have six elements and no chain id.
func legacyChainID(unsigned []byte) (*big.Int, error) {
	var fields []rlp.RawValue
	if err := rlp.DecodeBytes(unsigned, &fields); err != nil {
		return nil, deviceerr.FromStatus(0x6a80, "")
	}
	if len(fields) < 7 {
		return nil, nil
	}
	chainID := new(big.Int)
	if err := rlp.DecodeBytes(fields[6], chainID); err != nil {
		return nil, deviceerr.FromStatus(0x6a80, "")
	}
	return chainID, nil
}
