// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package eth signs Ethereum transactions, messages and typed data with a
// signing device.
//
// A Signer validates its input, turns it into the device's format, and runs
// the device action in the session's device slot. Each operation returns an
// *action.Action that is awaited or cancelled by the caller.
package eth // import "github.com/zeriontech/hardware-wallet-connection/eth"

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/session"
	"github.com/zeriontech/hardware-wallet-connection/typeddata"
)

// Account is a derived address.
type Account struct {
	DerivationPath string         `json:"derivationPath"`
	Address        common.Address `json:"address"`
}

// AddressRequest selects Count consecutive accounts of a scheme starting at
// index From.
type AddressRequest struct {
	Scheme derivation.Scheme
	From   uint32
	Count  uint32
}

// ErrorEvent reports a failed operation.
type ErrorEvent struct {
	Op  string
	Err *deviceerr.Error
}

// Signer is the Ethereum signing front end of a device.
type Signer struct {
	device Device
	log    log.Logger

	errFeed event.Feed
	scope   event.SubscriptionScope
}

// NewSigner creates a signer for the Ethereum app of device.
func NewSigner(device Device) *Signer {
	return &Signer{
		device: device,
		log:    log.WithField("component", "eth"),
	}
}

// SubscribeErrors delivers an ErrorEvent for every failed operation to ch.
// Events are sent asynchronously and may arrive out of order.
func (s *Signer) SubscribeErrors(ch chan<- ErrorEvent) event.Subscription {
	return s.scope.Track(s.errFeed.Subscribe(ch))
}

// Close ends all error subscriptions.
func (s *Signer) Close() {
	s.scope.Close()
}

func (s *Signer) options(op string, sess *session.Session, opts []action.Option) []action.Option {
	l := s.log
	if sess != nil {
		l = sess.Log().WithField("component", "eth")
	}
	return append([]action.Option{
		action.WithName(op),
		action.WithLogger(l),
		action.OnFailure(func(err *deviceerr.Error) {
			go s.errFeed.Send(ErrorEvent{Op: op, Err: err})
		}),
	}, opts...)
}

func run[T any](s *Signer, op string, sess *session.Session, stream action.Stream[T], opts []action.Option) *action.Action[T] {
	return action.Run(stream, s.options(op, sess, opts)...)
}

func fail[T any](s *Signer, op string, sess *session.Session, err error, opts []action.Option) *action.Action[T] {
	return action.Fail[T](err, s.options(op, sess, opts)...)
}

// GetAddress derives the account at path.
func (s *Signer) GetAddress(sess *session.Session, path string, opts ...action.Option) *action.Action[Account] {
	return s.getAddress(sess, path, false, opts)
}

// VerifyAddress derives the account at path and has the user confirm it on
// the device.
func (s *Signer) VerifyAddress(sess *session.Session, path string, opts ...action.Option) *action.Action[Account] {
	return s.getAddress(sess, path, true, opts)
}

func (s *Signer) getAddress(sess *session.Session, path string, verify bool, opts []action.Option) *action.Action[Account] {
	const op = "get address"
	canonical, err := prepare(sess, path)
	if err != nil {
		return fail[Account](s, op, sess, err, opts)
	}
	stream := session.Serialize(sess, func(id session.ID) action.DeviceAction[AddressResult] {
		return s.device.GetAddress(id, canonical, verify)
	})
	return run(s, op, sess, action.Map(stream, func(r AddressResult) (Account, error) {
		return Account{DerivationPath: canonical, Address: r.Address}, nil
	}), opts)
}

// GetAddressByIndex derives account index of scheme.
func (s *Signer) GetAddressByIndex(sess *session.Session, scheme derivation.Scheme, index uint32, opts ...action.Option) *action.Action[Account] {
	path, err := derivation.Path(scheme, index)
	if err != nil {
		return fail[Account](s, "get address", sess, err, opts)
	}
	return s.GetAddress(sess, path, opts...)
}

// GetAddresses derives the requested accounts one after another and returns
// them in index order. If ctx is done, the outstanding derivation is
// cancelled and the context error returned.
func (s *Signer) GetAddresses(ctx context.Context, sess *session.Session, req AddressRequest, opts ...action.Option) ([]Account, error) {
	if req.Scheme.Family() != derivation.Ethereum {
		return nil, deviceerr.Malformed("scheme %s does not derive Ethereum accounts", req.Scheme)
	}
	paths, err := derivation.Paths(req.Scheme, req.From, req.Count)
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(paths))
	for _, path := range paths {
		a := s.GetAddress(sess, path, opts...)
		acc, err := a.Await(ctx)
		if err != nil {
			a.Cancel()
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// SignTransaction signs req with the key at path and returns the signed
// transaction.
func (s *Signer) SignTransaction(sess *session.Session, path string, req *TxRequest, opts ...action.Option) *action.Action[*SignedTx] {
	const op = "sign transaction"
	canonical, err := prepare(sess, path)
	if err != nil {
		return fail[*SignedTx](s, op, sess, err, opts)
	}
	if req == nil {
		return fail[*SignedTx](s, op, sess, deviceerr.Malformed("missing transaction"), opts)
	}
	tx, chainID, err := req.Transaction()
	if err != nil {
		return fail[*SignedTx](s, op, sess, err, opts)
	}
	unsigned, err := UnsignedBytes(tx, chainID)
	if err != nil {
		return fail[*SignedTx](s, op, sess, err, opts)
	}

	stream := session.Serialize(sess, func(id session.ID) action.DeviceAction[Signature] {
		return s.device.SignTransaction(id, canonical, unsigned)
	})
	return run(s, op, sess, action.Map(stream, func(sig Signature) (*SignedTx, error) {
		return AssembleTx(tx, chainID, sig, req.From)
	}), opts)
}

// SignMessage signs message as a personal message. The signature is
// returned as r ‖ s ‖ (v - 27).
func (s *Signer) SignMessage(sess *session.Session, path string, message []byte, opts ...action.Option) *action.Action[hexutil.Bytes] {
	const op = "sign message"
	canonical, err := prepare(sess, path)
	if err != nil {
		return fail[hexutil.Bytes](s, op, sess, err, opts)
	}
	msg := append([]byte(nil), message...)
	stream := session.Serialize(sess, func(id session.ID) action.DeviceAction[Signature] {
		return s.device.SignPersonalMessage(id, canonical, msg)
	})
	return run(s, op, sess, action.Map(stream, messageSignature), opts)
}

// SignTypedData canonicalizes td and signs its hashes. td may be given in
// any form accepted by typeddata.Decode. The signature is returned as
// r ‖ s ‖ (v - 27).
func (s *Signer) SignTypedData(sess *session.Session, path string, td interface{}, opts ...action.Option) *action.Action[hexutil.Bytes] {
	const op = "sign typed data"
	canonical, err := prepare(sess, path)
	if err != nil {
		return fail[hexutil.Bytes](s, op, sess, err, opts)
	}
	typed, err := typeddata.Decode(td)
	if err != nil {
		return fail[hexutil.Bytes](s, op, sess, err, opts)
	}
	c, err := typeddata.Canonicalize(typed)
	if err != nil {
		return fail[hexutil.Bytes](s, op, sess, err, opts)
	}
	stream := session.Serialize(sess, func(id session.ID) action.DeviceAction[Signature] {
		return s.device.SignTypedDataHash(id, canonical, c.DomainSeparator, c.StructHash)
	})
	return run(s, op, sess, action.Map(stream, messageSignature), opts)
}

// prepare checks the session and returns the canonical form of path.
func prepare(sess *session.Session, path string) (string, error) {
	if sess == nil {
		return "", deviceerr.Disconnected()
	}
	return derivation.Canonical(path)
}

func messageSignature(sig Signature) (hexutil.Bytes, error) {
	return sig.MessageSignature(), nil
}

// MessageBytes interprets a message argument: 0x-prefixed hex is decoded,
// anything else is taken as UTF-8 text.
func MessageBytes(message string) []byte {
	if strings.HasPrefix(message, "0x") {
		if b, err := hexutil.Decode(message); err == nil {
			return b
		}
	}
	return []byte(message)
}
