// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package solana signs Solana transactions and messages with a signing
// device. Addresses and signatures are base58 encoded.
package solana // import "github.com/zeriontech/hardware-wallet-connection/solana"

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"

	"github.com/ethereum/go-ethereum/event"
	"github.com/mr-tron/base58"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Account is a derived Solana address.
type Account struct {
	DerivationPath string `json:"derivationPath"`
	Address        string `json:"address"`
}

// AddressRequest selects Count consecutive accounts of a scheme starting at
// index From.
type AddressRequest struct {
	Scheme derivation.Scheme
	From   uint32
	Count  uint32
}

// Signature is an ed25519 signature.
type Signature []byte

// String returns the base58 encoding of s.
func (s Signature) String() string { return base58.Encode(s) }

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrorEvent reports a failed operation.
type ErrorEvent struct {
	Op  string
	Err *deviceerr.Error
}

// Signer is the Solana signing front end of a device.
type Signer struct {
	device Device
	log    log.Logger

	errFeed event.Feed
	scope   event.SubscriptionScope
}

// NewSigner creates a signer for the Solana app of device.
func NewSigner(device Device) *Signer {
	return &Signer{
		device: device,
		log:    log.WithField("component", "solana"),
	}
}

// SubscribeErrors delivers an ErrorEvent for every failed operation to ch.
// Events are sent asynchronously and may arrive out of order.
func (s *Signer) SubscribeErrors(ch chan<- ErrorEvent) event.Subscription {
	return s.scope.Track(s.errFeed.Subscribe(ch))
}

// Close ends all error subscriptions.
func (s *Signer) Close() { s.scope.Close() }

func (s *Signer) options(op string, sess *session.Session, opts []action.Option) []action.Option {
	l := s.log
	if sess != nil {
		l = sess.Log().WithField("component", "solana")
	}
	return append([]action.Option{
		action.WithName(op),
		action.WithLogger(l),
		action.OnFailure(func(err *deviceerr.Error) {
			go s.errFeed.Send(ErrorEvent{Op: op, Err: err})
		}),
	}, opts...)
}

// AddressFromPublicKey returns the base58 address of an ed25519 key.
func AddressFromPublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", &deviceerr.Error{Message: "invalid public key length"}
	}
	return base58.Encode(pub), nil
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
		return action.Fail[Account](err, s.options(op, sess, opts)...)
	}
	stream := session.Serialize(sess, func(id session.ID) action.DeviceAction[[]byte] {
		return s.device.GetAddress(id, canonical, verify)
	})
	return action.Run(action.Map(stream, func(pub []byte) (Account, error) {
		addr, err := AddressFromPublicKey(pub)
		return Account{DerivationPath: canonical, Address: addr}, err
	}), s.options(op, sess, opts)...)
}

// GetAddresses derives the requested accounts one after another and returns
// them in index order.
func (s *Signer) GetAddresses(ctx context.Context, sess *session.Session, req AddressRequest, opts ...action.Option) ([]Account, error) {
	if req.Scheme.Family() != derivation.Solana {
		return nil, deviceerr.Malformed("scheme %s does not derive Solana accounts", req.Scheme)
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

// SignTransaction signs a base64 encoded serialized transaction message.
func (s *Signer) SignTransaction(sess *session.Session, path string, tx string, opts ...action.Option) *action.Action[Signature] {
	const op = "sign transaction"
	canonical, err := prepare(sess, path)
	if err != nil {
		return action.Fail[Signature](err, s.options(op, sess, opts)...)
	}
	payload, err := base64.StdEncoding.DecodeString(tx)
	if err != nil || len(payload) == 0 {
		return action.Fail[Signature](deviceerr.Malformed("invalid base64 transaction"), s.options(op, sess, opts)...)
	}
	return s.sign(op, sess, opts, func(id session.ID) action.DeviceAction[[]byte] {
		return s.device.SignTransaction(id, canonical, payload)
	})
}

// SignMessage signs an off-chain message.
func (s *Signer) SignMessage(sess *session.Session, path string, message []byte, opts ...action.Option) *action.Action[Signature] {
	const op = "sign message"
	canonical, err := prepare(sess, path)
	if err != nil {
		return action.Fail[Signature](err, s.options(op, sess, opts)...)
	}
	if len(message) == 0 {
		return action.Fail[Signature](deviceerr.Malformed("empty message"), s.options(op, sess, opts)...)
	}
	msg := append([]byte(nil), message...)
	return s.sign(op, sess, opts, func(id session.ID) action.DeviceAction[[]byte] {
		return s.device.SignMessage(id, canonical, msg)
	})
}

func (s *Signer) sign(op string, sess *session.Session, opts []action.Option, open func(session.ID) action.DeviceAction[[]byte]) *action.Action[Signature] {
	stream := action.Map(session.Serialize(sess, open), func(sig []byte) (Signature, error) {
		if len(sig) != ed25519.SignatureSize {
			return nil, &deviceerr.Error{Message: "invalid signature length"}
		}
		return Signature(sig), nil
	})
	return action.Run(stream, s.options(op, sess, opts)...)
}

// prepare checks the session and returns the canonical form of path, which
// must be a Solana path.
func prepare(sess *session.Session, path string) (string, error) {
	if sess == nil {
		return "", deviceerr.Disconnected()
	}
	dp, err := derivation.Parse(path)
	if err != nil {
		return "", err
	}
	if len(dp) < 2 || (dp[0] != 0x80000000+501 && dp[1] != 0x80000000+501) {
		return "", deviceerr.Malformed("derivation path %q is not a Solana path", path)
	}
	return derivation.Format(dp), nil
}
