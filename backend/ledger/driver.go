// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package ledger drives the Ethereum app of Ledger devices with APDU
// commands. Devices are reached through an Exchanger, usually one created by
// NewHIDExchanger on an opened HID device.
package ledger // import "github.com/zeriontech/hardware-wallet-connection/backend/ledger"

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

const (
	claEthereum byte = 0xe0

	insGetAddress          byte = 0x02 // public key and address of a path
	insSignTransaction     byte = 0x04 // sign an unsigned transaction
	insGetConfiguration    byte = 0x06 // app flags and version
	insSignPersonalMessage byte = 0x08 // sign with the personal message prefix
	insSignTypedData       byte = 0x0c // sign EIP-712 domain and message hashes

	p1First   byte = 0x00
	p1More    byte = 0x80
	p1Silent  byte = 0x00
	p1Confirm byte = 0x01
	p2NoChain byte = 0x00

	chunkLimit = 255

	// eip155Size is the size of the trailing chain id, r and s of a legacy
	// signing payload. The app misparses a last chunk holding only them.
	eip155Size = 3
	maxDepth   = 10
)

// Resolver returns the exchanger of a session.
type Resolver interface {
	Exchanger(id session.ID) (Exchanger, error)
}

// Driver implements eth.Device for the Ledger Ethereum app.
type Driver struct {
	conns Resolver
	log   log.Logger
}

var _ eth.Device = (*Driver)(nil)

// NewDriver returns a driver for the devices reachable through conns.
func NewDriver(conns Resolver) *Driver {
	return &Driver{conns: conns, log: log.WithField("component", "ledger")}
}

// command runs fn as a device action. The prompt state for interaction is
// emitted before fn, which blocks while the device waits for the user.
func command[T any](d *Driver, id session.ID, interaction action.Interaction, fn func(Exchanger) (T, error)) action.DeviceAction[T] {
	stream := action.NewStream(func(ctx context.Context, emit action.Emitter[T]) {
		emit(action.NotStarted[T]())
		ex, err := d.conns.Exchanger(id)
		if err != nil {
			emit(action.Error[T](err))
			return
		}
		emit(action.Pending[T](action.InteractionNone))
		if interaction != action.InteractionNone {
			emit(action.Pending[T](interaction))
		}
		out, err := fn(ex)
		if ctx.Err() != nil {
			d.log.WithField("session", id).Debug("dropping result of abandoned command")
			return
		}
		if err != nil {
			emit(action.Error[T](err))
			return
		}
		emit(action.Completed(out))
	})
	return action.DeviceAction[T]{
		Stream: stream,
		// A command in flight can only be ended on the device.
		Cancel: func() {},
	}
}

func exchange(ex Exchanger, ins, p1, p2 byte, data []byte) ([]byte, error) {
	reply, sw, err := ex.Exchange(claEthereum, ins, p1, p2, data)
	if err != nil {
		return nil, err
	}
	if sw != StatusOK {
		return nil, deviceerr.FromStatus(sw, "")
	}
	return reply, nil
}

// encodePath serializes path as a component count followed by big endian
// components.
func encodePath(path string) ([]byte, error) {
	dp, err := derivation.Parse(path)
	if err != nil {
		return nil, err
	}
	if len(dp) > maxDepth {
		return nil, deviceerr.Malformed("derivation path %q deeper than %d", path, maxDepth)
	}
	buf := make([]byte, 1+4*len(dp))
	buf[0] = byte(len(dp))
	for i, c := range dp {
		binary.BigEndian.PutUint32(buf[1+4*i:], c)
	}
	return buf, nil
}

// parseSignature reads a v ‖ r ‖ s reply.
func parseSignature(reply []byte) (eth.Signature, error) {
	if len(reply) != crypto.SignatureLength {
		return eth.Signature{}, &deviceerr.Error{Message: "reply lacks signature"}
	}
	return eth.Signature{
		V: uint64(reply[0]),
		R: common.BytesToHash(reply[1:33]),
		S: common.BytesToHash(reply[33:65]),
	}, nil
}

// sendChunked sends payload in chunks of at most size bytes and returns the
// reply to the last one.
func sendChunked(ex Exchanger, ins byte, payload []byte, size int) ([]byte, error) {
	var (
		reply []byte
		err   error
		p1    = p1First
	)
	for len(payload) > 0 {
		n := size
		if n > len(payload) {
			n = len(payload)
		}
		if reply, err = exchange(ex, ins, p1, 0, payload[:n]); err != nil {
			return nil, err
		}
		payload = payload[n:]
		p1 = p1More
	}
	return reply, nil
}

// GetAddress implements eth.Device.
func (d *Driver) GetAddress(id session.ID, path string, verify bool) action.DeviceAction[eth.AddressResult] {
	interaction, p1 := action.InteractionNone, p1Silent
	if verify {
		interaction, p1 = action.InteractionVerifyAddress, p1Confirm
	}
	return command(d, id, interaction, func(ex Exchanger) (eth.AddressResult, error) {
		data, err := encodePath(path)
		if err != nil {
			return eth.AddressResult{}, err
		}
		reply, err := exchange(ex, insGetAddress, p1, p2NoChain, data)
		if err != nil {
			return eth.AddressResult{}, err
		}
		return parseAddressReply(reply)
	})
}

// parseAddressReply reads the public key and the hex address, both length
// prefixed.
func parseAddressReply(reply []byte) (eth.AddressResult, error) {
	if len(reply) < 1 || len(reply) < 1+int(reply[0]) {
		return eth.AddressResult{}, &deviceerr.Error{Message: "reply lacks public key entry"}
	}
	pub := append([]byte(nil), reply[1:1+int(reply[0])]...)
	reply = reply[1+int(reply[0]):]
	if len(reply) < 1 || len(reply) < 1+int(reply[0]) {
		return eth.AddressResult{}, &deviceerr.Error{Message: "reply lacks address entry"}
	}
	var addr common.Address
	if _, err := hex.Decode(addr[:], reply[1:1+int(reply[0])]); err != nil {
		return eth.AddressResult{}, &deviceerr.Error{Message: "invalid address in reply: " + err.Error()}
	}
	return eth.AddressResult{Address: addr, PublicKey: pub}, nil
}

// SignTransaction implements eth.Device.
func (d *Driver) SignTransaction(id session.ID, path string, unsigned []byte) action.DeviceAction[eth.Signature] {
	return command(d, id, action.InteractionSignTransaction, func(ex Exchanger) (eth.Signature, error) {
		data, err := encodePath(path)
		if err != nil {
			return eth.Signature{}, err
		}
		if len(unsigned) == 0 {
			return eth.Signature{}, deviceerr.Malformed("empty transaction")
		}
		payload := append(data, unsigned...)
		size := chunkLimit
		if unsigned[0] >= 0xc0 {
			for ; len(payload)%size <= eip155Size; size-- {
			}
		}
		reply, err := sendChunked(ex, insSignTransaction, payload, size)
		if err != nil {
			return eth.Signature{}, err
		}
		return parseSignature(reply)
	})
}

// SignPersonalMessage implements eth.Device.
func (d *Driver) SignPersonalMessage(id session.ID, path string, message []byte) action.DeviceAction[eth.Signature] {
	return command(d, id, action.InteractionSignPersonalMessage, func(ex Exchanger) (eth.Signature, error) {
		data, err := encodePath(path)
		if err != nil {
			return eth.Signature{}, err
		}
		payload := binary.BigEndian.AppendUint32(data, uint32(len(message)))
		payload = append(payload, message...)
		reply, err := sendChunked(ex, insSignPersonalMessage, payload, chunkLimit)
		if err != nil {
			return eth.Signature{}, err
		}
		return parseSignature(reply)
	})
}

// SignTypedDataHash implements eth.Device.
func (d *Driver) SignTypedDataHash(id session.ID, path string, domainSeparator, structHash common.Hash) action.DeviceAction[eth.Signature] {
	return command(d, id, action.InteractionSignTypedData, func(ex Exchanger) (eth.Signature, error) {
		data, err := encodePath(path)
		if err != nil {
			return eth.Signature{}, err
		}
		payload := append(data, domainSeparator[:]...)
		payload = append(payload, structHash[:]...)
		reply, err := exchange(ex, insSignTypedData, p1First, 0, payload)
		if err != nil {
			return eth.Signature{}, err
		}
		return parseSignature(reply)
	})
}

// Version is the version of the Ethereum app.
type Version [3]byte

// Version reads the app configuration.
func (d *Driver) Version(id session.ID) action.DeviceAction[Version] {
	return command(d, id, action.InteractionNone, func(ex Exchanger) (Version, error) {
		reply, err := exchange(ex, insGetConfiguration, 0, 0, nil)
		if err != nil {
			return Version{}, err
		}
		if len(reply) != 4 {
			return Version{}, &deviceerr.Error{Message: "invalid version reply"}
		}
		return Version{reply[1], reply[2], reply[3]}, nil
	})
}
