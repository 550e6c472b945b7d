// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/typeddata"
)

// Account is an account derived on the wallet's device.
type Account struct {
	wallet  *Wallet
	path    string
	address common.Address
}

// Address returns the address of the account.
func (a *Account) Address() common.Address { return a.address }

// Path returns the canonical derivation path.
func (a *Account) Path() string { return a.path }

// Wallet returns the wallet the account belongs to.
func (a *Account) Wallet() *Wallet { return a.wallet }

// SignData signs data as a personal message and returns r ‖ s ‖ (v - 27).
func (a *Account) SignData(ctx context.Context, data []byte) ([]byte, error) {
	sess, err := a.wallet.session()
	if err != nil {
		return nil, err
	}
	return call(ctx, a.wallet, a.wallet.signer.SignMessage(sess, a.path, data))
}

// SignTypedData signs EIP-712 typed data given in any form accepted by
// typeddata.Decode.
func (a *Account) SignTypedData(ctx context.Context, td interface{}) ([]byte, error) {
	sess, err := a.wallet.session()
	if err != nil {
		return nil, err
	}
	return call(ctx, a.wallet, a.wallet.signer.SignTypedData(sess, a.path, td))
}

// SignTx signs req. The request's from address defaults to the account.
func (a *Account) SignTx(ctx context.Context, req *eth.TxRequest) (*eth.SignedTx, error) {
	sess, err := a.wallet.session()
	if err != nil {
		return nil, err
	}
	if req != nil && req.From == nil {
		r := *req
		r.From = &a.address
		req = &r
	}
	return call(ctx, a.wallet, a.wallet.signer.SignTransaction(sess, a.path, req))
}

// VerifySignature returns whether sig is a personal message signature of
// data by addr. Malformed signatures are an error.
func VerifySignature(data, sig []byte, addr common.Address) (bool, error) {
	return verify(accounts.TextHash(data), sig, addr)
}

// VerifyTypedData returns whether sig is a signature of td by addr.
func VerifyTypedData(td interface{}, sig []byte, addr common.Address) (bool, error) {
	typed, err := typeddata.Decode(td)
	if err != nil {
		return false, err
	}
	c, err := typeddata.Canonicalize(typed)
	if err != nil {
		return false, err
	}
	return verify(c.Digest().Bytes(), sig, addr)
}

// verify recovers the signer of hash from an r ‖ s ‖ v signature with v
// either 0/1 or 27/28.
func verify(hash, sig []byte, addr common.Address) (bool, error) {
	if len(sig) != crypto.SignatureLength {
		return false, errors.Errorf("invalid signature length %d", len(sig))
	}
	s := append([]byte(nil), sig...)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, s)
	if err != nil {
		return false, errors.Wrap(err, "recovering signer")
	}
	return crypto.PubkeyToAddress(*pub) == addr, nil
}
