// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package eth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Device is the Ethereum app of a signing device. Every method starts one
// device action on the session id. Paths are passed in canonical form, e.g.
// 44'/60'/0'/0/1.
type Device interface {
	// GetAddress derives the address at path. With verify set, the user is
	// asked to confirm the address on the device.
	GetAddress(id session.ID, path string, verify bool) action.DeviceAction[AddressResult]
	// SignTransaction signs the unsigned serialization of a transaction.
	SignTransaction(id session.ID, path string, unsigned []byte) action.DeviceAction[Signature]
	// SignPersonalMessage signs message with the personal message prefix.
	SignPersonalMessage(id session.ID, path string, message []byte) action.DeviceAction[Signature]
	// SignTypedDataHash signs the EIP-712 digest of the two hashes.
	SignTypedDataHash(id session.ID, path string, domainSeparator, structHash common.Hash) action.DeviceAction[Signature]
}

// AddressResult is the output of Device.GetAddress.
type AddressResult struct {
	Address   common.Address
	PublicKey hexutil.Bytes // uncompressed secp256k1 key, may be empty
}

// Signature is a secp256k1 signature as returned by the device. V is the
// device's recovery value: 27 or 28 for messages, the recovery id for typed
// transactions and the low byte of the EIP-155 value for legacy ones.
type Signature struct {
	V    uint64
	R, S common.Hash
}

// Join returns r ‖ s ‖ v with v in one byte.
func (s Signature) Join() hexutil.Bytes {
	sig := make([]byte, 0, crypto.SignatureLength)
	sig = append(sig, s.R[:]...)
	sig = append(sig, s.S[:]...)
	return append(sig, byte(s.V))
}

// MessageSignature returns r ‖ s ‖ (v - 27), the encoding of message and
// typed data signatures.
func (s Signature) MessageSignature() hexutil.Bytes {
	v := s.V
	if v >= 27 {
		v -= 27
	}
	return Signature{V: v, R: s.R, S: s.S}.Join()
}

// SignatureFromBytes splits a 65 byte r ‖ s ‖ v signature.
func SignatureFromBytes(sig []byte) (Signature, bool) {
	if len(sig) != crypto.SignatureLength {
		return Signature{}, false
	}
	return Signature{
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
		V: uint64(sig[64]),
	}, true
}
