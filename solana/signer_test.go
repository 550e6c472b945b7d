// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package solana_test

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/backend/sim"
	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/session"
	"github.com/zeriontech/hardware-wallet-connection/solana"
)

const (
	timeout = time.Second
	path    = "44'/501'/0'"
)

func setup(t *testing.T) (*sim.Device, *session.Session, *solana.Signer) {
	t.Helper()
	d, err := sim.NewDevice()
	require.NoError(t, err)
	s, err := session.OpenFirst(context.Background(), sim.NewProvider(d), session.USB)
	require.NoError(t, err)
	signer := solana.NewSigner(d.Solana())
	t.Cleanup(func() {
		signer.Close()
		s.Close()
	})
	return d, s, signer
}

func await[T any](t *testing.T, a *action.Action[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Await(ctx)
}

func publicKey(t *testing.T, acc solana.Account) ed25519.PublicKey {
	t.Helper()
	pub, err := base58.Decode(acc.Address)
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)
	return pub
}

func TestGetAddresses(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)

	accs, err := signer.GetAddresses(context.Background(), s, solana.AddressRequest{Scheme: derivation.SolanaBIP44Change, From: 1, Count: 2})
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Equal(t, "44'/501'/1'/0'", accs[0].DerivationPath)
	assert.Equal(t, "44'/501'/2'/0'", accs[1].DerivationPath)
	assert.NotEqual(t, accs[0].Address, accs[1].Address)

	acc, err := await(t, signer.VerifyAddress(s, "m/44'/501'/1'/0'"))
	require.NoError(t, err)
	assert.Equal(t, accs[0], acc)

	deprecated, err := await(t, signer.GetAddress(s, "501'/0'/0/0"))
	require.NoError(t, err)
	publicKey(t, deprecated)

	_, err = signer.GetAddresses(context.Background(), s, solana.AddressRequest{Scheme: derivation.BIP44, Count: 1})
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
	_, err = await(t, signer.GetAddress(s, "44'/60'/0'/0/0"))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
}

func TestGetAddresses_Sequential(t *testing.T) {
	t.Parallel()
	d := new(recordingDevice)
	s := session.New("conn", "recorder")
	defer s.Close()
	signer := solana.NewSigner(d)
	defer signer.Close()

	accs, err := signer.GetAddresses(context.Background(), s, solana.AddressRequest{Scheme: derivation.SolanaBIP44, From: 2, Count: 3})
	require.NoError(t, err)
	require.Len(t, accs, 3)

	paths, overlap := d.requests()
	assert.Equal(t, []string{"44'/501'/2'", "44'/501'/3'", "44'/501'/4'"}, paths)
	assert.False(t, overlap, "derivations must not run concurrently")
	for i, acc := range accs {
		addr, err := solana.AddressFromPublicKey(pathKey(paths[i]))
		require.NoError(t, err)
		assert.Equal(t, solana.Account{DerivationPath: paths[i], Address: addr}, acc)
	}
}

func TestSign(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)
	acc, err := await(t, signer.GetAddress(s, path))
	require.NoError(t, err)
	pub := publicKey(t, acc)

	msg := []byte("hello solana")
	sig, err := await(t, signer.SignMessage(s, path, msg))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, msg, sig))

	tx := []byte{1, 0, 1, 3, 7, 7, 7}
	sig, err = await(t, signer.SignTransaction(s, path, base64.StdEncoding.EncodeToString(tx)))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, tx, sig))

	text, err := sig.MarshalText()
	require.NoError(t, err)
	decoded, err := base58.Decode(string(text))
	require.NoError(t, err)
	assert.Equal(t, []byte(sig), decoded)
}

func TestMalformed(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)
	events := make(chan solana.ErrorEvent, 4)
	sub := signer.SubscribeErrors(events)
	defer sub.Unsubscribe()

	_, err := await(t, signer.SignTransaction(s, path, "%%%"))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
	ev := <-events
	assert.Equal(t, "sign transaction", ev.Op)

	_, err = await(t, signer.SignMessage(s, path, nil))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
	assert.Equal(t, "sign message", (<-events).Op)

	_, err = await(t, signer.SignMessage(nil, path, []byte("x")))
	assert.True(t, deviceerr.IsDisconnected(deviceerr.Normalize(err)))
}

func TestAddressFromPublicKey(t *testing.T) {
	t.Parallel()
	addr, err := solana.AddressFromPublicKey(make([]byte, ed25519.PublicKeySize))
	require.NoError(t, err)
	assert.Equal(t, "11111111111111111111111111111111", addr)

	_, err = solana.AddressFromPublicKey([]byte{1})
	assert.Error(t, err)
}
