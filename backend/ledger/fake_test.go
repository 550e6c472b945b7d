// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

type sentCommand struct {
	Ins, P1, P2 byte
	Data        []byte
}

// fakeApp is an Exchanger emulating the Ethereum app with a single key.
type fakeApp struct {
	key *ecdsa.PrivateKey

	mutex    sync.Mutex
	commands []sentCommand
	status   uint16 // if set, returned for every command
	buf      []byte
}

func newFakeApp() *fakeApp {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &fakeApp{key: key}
}

func (a *fakeApp) Exchange(cla, ins, p1, p2 byte, data []byte) ([]byte, uint16, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.commands = append(a.commands, sentCommand{ins, p1, p2, append([]byte(nil), data...)})
	if a.status != 0 {
		return nil, a.status, nil
	}
	if cla != claEthereum {
		return nil, 0x6e00, nil
	}

	switch ins {
	case insGetAddress:
		pub := crypto.FromECDSAPub(&a.key.PublicKey)
		addr := []byte(hex.EncodeToString(crypto.PubkeyToAddress(a.key.PublicKey).Bytes()))
		reply := append([]byte{byte(len(pub))}, pub...)
		reply = append(reply, byte(len(addr)))
		return append(reply, addr...), StatusOK, nil

	case insGetConfiguration:
		return []byte{0x01, 1, 10, 3}, StatusOK, nil

	case insSignTypedData:
		payload := skipPath(data)
		if len(payload) != 64 {
			return nil, 0x6a80, nil
		}
		hash := crypto.Keccak256([]byte{0x19, 0x01}, payload)
		return a.sign(hash, 27), StatusOK, nil

	case insSignPersonalMessage:
		if p1 == p1First {
			data = skipPath(data)
			a.buf = append([]byte(nil), data...)
		} else {
			a.buf = append(a.buf, data...)
		}
		size := int(binary.BigEndian.Uint32(a.buf[:4]))
		if len(a.buf)-4 < size {
			return nil, StatusOK, nil
		}
		return a.sign(accounts.TextHash(a.buf[4:]), 27), StatusOK, nil

	case insSignTransaction:
		if p1 == p1First {
			a.buf = append([]byte(nil), skipPath(data)...)
		} else {
			a.buf = append(a.buf, data...)
		}
		list, offset := a.buf, byte(0)
		if len(list) > 0 && list[0] < 0xc0 {
			list = list[1:]
		}
		if _, _, rest, err := rlp.Split(list); err != nil || len(rest) != 0 {
			return nil, StatusOK, nil
		}
		if a.buf[0] >= 0xc0 {
			var fields []rlp.RawValue
			if err := rlp.DecodeBytes(a.buf, &fields); err != nil {
				return nil, 0x6a80, nil
			}
			var chainID uint64
			if err := rlp.DecodeBytes(fields[6], &chainID); err != nil {
				return nil, 0x6a80, nil
			}
			offset = byte(chainID*2 + 35)
		}
		return a.sign(crypto.Keccak256(a.buf), offset), StatusOK, nil
	}
	return nil, 0x6d00, nil
}

// sign returns v ‖ r ‖ s with v offset by offset.
func (a *fakeApp) sign(hash []byte, offset byte) []byte {
	sig, err := crypto.Sign(hash, a.key)
	if err != nil {
		panic(err)
	}
	return append([]byte{sig[64] + offset}, sig[:64]...)
}

func (a *fakeApp) recorded() []sentCommand {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]sentCommand(nil), a.commands...)
}

func skipPath(data []byte) []byte {
	return data[1+4*int(data[0]):]
}

// fakeHID is a HID device in front of an Exchanger.
type fakeHID struct {
	app Exchanger

	mutex   sync.Mutex
	in      []byte // reassembled request
	want    int
	out     bytes.Buffer
	badHead bool
}

func (h *fakeHID) Write(p []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(p) != hidPacketSize {
		panic("short hid packet")
	}
	seq := binary.BigEndian.Uint16(p[3:5])
	if seq == 0 {
		h.want = int(binary.BigEndian.Uint16(p[5:7]))
		h.in = append([]byte(nil), p[7:]...)
	} else {
		h.in = append(h.in, p[5:]...)
	}
	if len(h.in) < h.want {
		return len(p), nil
	}
	apdu := h.in[:h.want]
	data := apdu[5 : 5+int(apdu[4])]
	reply, sw, err := h.app.Exchange(apdu[0], apdu[1], apdu[2], apdu[3], data)
	if err != nil {
		return 0, err
	}
	h.frame(binary.BigEndian.AppendUint16(reply, sw))
	return len(p), nil
}

func (h *fakeHID) frame(reply []byte) {
	msg := binary.BigEndian.AppendUint16(nil, uint16(len(reply)))
	msg = append(msg, reply...)
	for seq := 0; len(msg) > 0; seq++ {
		packet := make([]byte, hidPacketSize)
		copy(packet, hidHeader)
		if h.badHead {
			packet[2] = 0x02
		}
		binary.BigEndian.PutUint16(packet[3:], uint16(seq))
		n := copy(packet[5:], msg)
		msg = msg[n:]
		h.out.Write(packet)
	}
}

func (h *fakeHID) Read(p []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.out.Read(p)
}
