// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package eth

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
)

// Quantity is an integer given either as a JSON number or as a hex or
// decimal string.
type Quantity big.Int

// NewQuantity returns the quantity of v.
func NewQuantity(v int64) *Quantity { return (*Quantity)(big.NewInt(v)) }

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	text := string(bytes.TrimSpace(data))
	if len(text) > 0 && text[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	v, ok := math.ParseBig256(text)
	if !ok {
		return deviceerr.Malformed("invalid quantity %s", string(data))
	}
	*q = Quantity(*v)
	return nil
}

// MarshalText implements encoding.TextMarshaler, rendering hex.
func (q *Quantity) MarshalText() ([]byte, error) {
	return []byte(hexutil.EncodeBig(q.Big())), nil
}

// Big returns q as big integer. A nil quantity is nil.
func (q *Quantity) Big() *big.Int {
	if q == nil {
		return nil
	}
	return (*big.Int)(q)
}

func (q *Quantity) uint64(field string) (uint64, error) {
	if q == nil {
		return 0, deviceerr.Malformed("missing %s", field)
	}
	b := q.Big()
	if b.Sign() < 0 || !b.IsUint64() {
		return 0, deviceerr.Malformed("%s out of range", field)
	}
	return b.Uint64(), nil
}

// TxRequest is a transaction as sent by dapps. Gas may be given as gas or
// gasLimit. From is only used to check the signature.
type TxRequest struct {
	From                 *common.Address   `json:"from,omitempty"`
	To                   *common.Address   `json:"to,omitempty"`
	Value                *Quantity         `json:"value,omitempty"`
	Data                 hexutil.Bytes     `json:"data,omitempty"`
	ChainID              *Quantity         `json:"chainId,omitempty"`
	Nonce                *Quantity         `json:"nonce,omitempty"`
	Gas                  *Quantity         `json:"gas,omitempty"`
	GasLimit             *Quantity         `json:"gasLimit,omitempty"`
	GasPrice             *Quantity         `json:"gasPrice,omitempty"`
	MaxFeePerGas         *Quantity         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *Quantity         `json:"maxPriorityFeePerGas,omitempty"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
	Type                 *Quantity         `json:"type,omitempty"`
}

// ParseTxRequest decodes a JSON transaction request.
func ParseTxRequest(data []byte) (*TxRequest, error) {
	var req TxRequest
	if err := json.Unmarshal(data, &req); err != nil {
		if de, ok := err.(*deviceerr.Error); ok {
			return nil, de
		}
		return nil, deviceerr.Malformed("failed to parse transaction: %v", err)
	}
	return &req, nil
}

func (r *TxRequest) txType() (uint8, error) {
	if r.Type != nil {
		t, err := r.Type.uint64("type")
		if err != nil {
			return 0, err
		}
		switch t {
		case types.LegacyTxType, types.AccessListTxType, types.DynamicFeeTxType:
			return uint8(t), nil
		}
		return 0, deviceerr.Malformed("unsupported transaction type %d", t)
	}
	switch {
	case r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil:
		return types.DynamicFeeTxType, nil
	case r.AccessList != nil:
		return types.AccessListTxType, nil
	}
	return types.LegacyTxType, nil
}

// Transaction builds the unsigned transaction and returns it with its chain
// id. Missing required fields are malformed input.
func (r *TxRequest) Transaction() (*types.Transaction, *big.Int, error) {
	if r.ChainID == nil {
		return nil, nil, deviceerr.Malformed("missing chainId")
	}
	chainID := r.ChainID.Big()
	if chainID.Sign() <= 0 {
		return nil, nil, deviceerr.Malformed("invalid chainId %v", chainID)
	}
	nonce, err := r.Nonce.uint64("nonce")
	if err != nil {
		return nil, nil, err
	}
	gasQ := r.Gas
	if gasQ == nil {
		gasQ = r.GasLimit
	}
	gas, err := gasQ.uint64("gas")
	if err != nil {
		return nil, nil, err
	}
	value := new(big.Int)
	if r.Value != nil {
		value.Set(r.Value.Big())
	}
	var al types.AccessList
	if r.AccessList != nil {
		al = *r.AccessList
	}

	typ, err := r.txType()
	if err != nil {
		return nil, nil, err
	}
	var inner types.TxData
	switch typ {
	case types.DynamicFeeTxType:
		if r.MaxFeePerGas == nil || r.MaxPriorityFeePerGas == nil {
			return nil, nil, deviceerr.Malformed("missing maxFeePerGas or maxPriorityFeePerGas")
		}
		inner = &types.DynamicFeeTx{
			ChainID:    chainID,
			Nonce:      nonce,
			GasTipCap:  r.MaxPriorityFeePerGas.Big(),
			GasFeeCap:  r.MaxFeePerGas.Big(),
			Gas:        gas,
			To:         r.To,
			Value:      value,
			Data:       r.Data,
			AccessList: al,
		}
	case types.AccessListTxType:
		if r.GasPrice == nil {
			return nil, nil, deviceerr.Malformed("missing gasPrice")
		}
		inner = &types.AccessListTx{
			ChainID:    chainID,
			Nonce:      nonce,
			GasPrice:   r.GasPrice.Big(),
			Gas:        gas,
			To:         r.To,
			Value:      value,
			Data:       r.Data,
			AccessList: al,
		}
	default:
		if r.GasPrice == nil {
			return nil, nil, deviceerr.Malformed("missing gasPrice")
		}
		inner = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: r.GasPrice.Big(),
			Gas:      gas,
			To:       r.To,
			Value:    value,
			Data:     r.Data,
		}
	}
	return types.NewTx(inner), chainID, nil
}

// UnsignedBytes returns the serialization a device signs: the EIP-155
// encoding for legacy transactions and the type prefixed payload for typed
// ones.
func UnsignedBytes(tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	var (
		enc []byte
		err error
	)
	switch tx.Type() {
	case types.DynamicFeeTxType:
		enc, err = rlp.EncodeToBytes([]interface{}{chainID, tx.Nonce(), tx.GasTipCap(), tx.GasFeeCap(), tx.Gas(), tx.To(), tx.Value(), tx.Data(), tx.AccessList()})
		enc = append([]byte{tx.Type()}, enc...)
	case types.AccessListTxType:
		enc, err = rlp.EncodeToBytes([]interface{}{chainID, tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(), tx.AccessList()})
		enc = append([]byte{tx.Type()}, enc...)
	case types.LegacyTxType:
		enc, err = rlp.EncodeToBytes([]interface{}{tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(), chainID, uint(0), uint(0)})
	default:
		return nil, deviceerr.Malformed("unsupported transaction type %d", tx.Type())
	}
	return enc, err
}

// SignedTx is the output of a transaction signing.
type SignedTx struct {
	Serialized hexutil.Bytes  `json:"serialized"`
	Hash       common.Hash    `json:"hash"`
	From       common.Address `json:"from"`
	Signature  hexutil.Bytes  `json:"signature"` // r ‖ s ‖ v as reported by the device
}

// AssembleTx attaches the device signature to tx and returns the signed
// serialization. If from is given, the recovered sender must match it.
func AssembleTx(tx *types.Transaction, chainID *big.Int, sig Signature, from *common.Address) (*SignedTx, error) {
	raw := make([]byte, crypto.SignatureLength)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	if tx.Type() == types.LegacyTxType {
		raw[64] = byte(sig.V) - byte(chainID.Uint64()*2+35)
	} else {
		v := sig.V
		if v >= 27 {
			v -= 27
		}
		raw[64] = byte(v)
	}
	if raw[64] > 1 {
		return nil, &deviceerr.Error{Message: "invalid signature recovery value"}
	}

	signer := types.LatestSignerForChainID(chainID)
	signed, err := tx.WithSignature(signer, raw)
	if err != nil {
		return nil, &deviceerr.Error{Message: "invalid signature: " + err.Error()}
	}
	sender, err := types.Sender(signer, signed)
	if err != nil {
		return nil, &deviceerr.Error{Message: "invalid signature: " + err.Error()}
	}
	if from != nil && *from != sender {
		return nil, &deviceerr.Error{Message: "signature does not match from address " + from.Hex()}
	}
	serialized, err := signed.MarshalBinary()
	if err != nil {
		return nil, &deviceerr.Error{Message: "encoding signed transaction: " + err.Error()}
	}
	return &SignedTx{
		Serialized: serialized,
		Hash:       signed.Hash(),
		From:       sender,
		Signature:  sig.Join(),
	}, nil
}
