// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package ledger

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
)

// StatusOK is the status word of a successful command.
const StatusOK uint16 = 0x9000

// Exchanger sends one APDU command to a device and returns the response data
// and the status word.
type Exchanger interface {
	Exchange(cla, ins, p1, p2 byte, data []byte) (reply []byte, sw uint16, err error)
}

// hidExchanger frames APDUs for the HID transport.
//
// Every HID packet is 64 bytes and starts with the channel id 0x0101, the
// APDU tag 0x05 and a big endian sequence number. The first packet of a
// message carries the message length in two more bytes.
type hidExchanger struct {
	mutex  sync.Mutex
	device io.ReadWriter
	log    log.Logger
}

const hidPacketSize = 64

var hidHeader = []byte{0x01, 0x01, 0x05, 0x00, 0x00}

// NewHIDExchanger returns an Exchanger that talks to an opened HID device.
func NewHIDExchanger(device io.ReadWriter) Exchanger {
	return &hidExchanger{device: device, log: log.WithField("component", "ledger-hid")}
}

func transportError(err error, msg string) *deviceerr.Error {
	if err != nil {
		msg = errors.WithMessage(err, msg).Error()
	}
	return &deviceerr.Error{Message: msg, Tag: deviceerr.TagTransportError}
}

func (h *hidExchanger) Exchange(cla, ins, p1, p2 byte, data []byte) ([]byte, uint16, error) {
	if len(data) > 255 {
		return nil, 0, deviceerr.Malformed("apdu data too long: %d bytes", len(data))
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	apdu := make([]byte, 2, 7+len(data))
	binary.BigEndian.PutUint16(apdu, uint16(5+len(data)))
	apdu = append(apdu, cla, ins, p1, p2, byte(len(data)))
	apdu = append(apdu, data...)

	chunk := make([]byte, 0, hidPacketSize)
	space := hidPacketSize - len(hidHeader)
	for seq := 0; len(apdu) > 0; seq++ {
		chunk = append(chunk[:0], hidHeader...)
		binary.BigEndian.PutUint16(chunk[3:], uint16(seq))
		n := len(apdu)
		if n > space {
			n = space
		}
		chunk = append(chunk, apdu[:n]...)
		apdu = apdu[n:]
		// Packets are always sent in full, zero padded.
		for len(chunk) < hidPacketSize {
			chunk = append(chunk, 0)
		}

		h.log.WithField("chunk", hexutil.Bytes(chunk)).Trace("hid packet sent")
		if _, err := h.device.Write(chunk); err != nil {
			return nil, 0, transportError(err, "writing to device")
		}
	}

	var reply []byte
	chunk = chunk[:hidPacketSize]
	for seq := 0; ; seq++ {
		if _, err := io.ReadFull(h.device, chunk); err != nil {
			return nil, 0, transportError(err, "reading from device")
		}
		h.log.WithField("chunk", hexutil.Bytes(chunk)).Trace("hid packet received")
		if chunk[0] != 0x01 || chunk[1] != 0x01 || chunk[2] != 0x05 {
			return nil, 0, transportError(nil, "invalid reply header")
		}
		if int(binary.BigEndian.Uint16(chunk[3:5])) != seq {
			return nil, 0, transportError(nil, "unexpected reply sequence")
		}
		var payload []byte
		if seq == 0 {
			reply = make([]byte, 0, int(binary.BigEndian.Uint16(chunk[5:7])))
			payload = chunk[7:]
		} else {
			payload = chunk[5:]
		}
		if left := cap(reply) - len(reply); left > len(payload) {
			reply = append(reply, payload...)
		} else {
			reply = append(reply, payload[:left]...)
			break
		}
	}
	if len(reply) < 2 {
		return nil, 0, transportError(nil, "reply lacks status word")
	}
	n := len(reply) - 2
	return reply[:n], binary.BigEndian.Uint16(reply[n:]), nil
}
