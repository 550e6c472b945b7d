// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package eth_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/backend/sim"
	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/session"
	"github.com/zeriontech/hardware-wallet-connection/typeddata"
)

const (
	timeout = time.Second
	path    = "44'/60'/0'/0/0"
)

func setup(t *testing.T, opts ...sim.Option) (*sim.Device, *session.Session, *eth.Signer) {
	t.Helper()
	d, err := sim.NewDevice(opts...)
	require.NoError(t, err)
	s, err := session.OpenFirst(context.Background(), sim.NewProvider(d), session.USB)
	require.NoError(t, err)
	signer := eth.NewSigner(d.Ethereum())
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

func TestGetAddresses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, s, signer := setup(t)

	accs, err := signer.GetAddresses(ctx, s, eth.AddressRequest{Scheme: derivation.BIP44, From: 2, Count: 3})
	require.NoError(t, err)
	require.Len(t, accs, 3)
	for i, acc := range accs {
		want, err := derivation.Path(derivation.BIP44, uint32(2+i))
		require.NoError(t, err)
		assert.Equal(t, want, acc.DerivationPath)

		single, err := await(t, signer.GetAddress(s, "m/"+want))
		require.NoError(t, err)
		assert.Equal(t, acc, single)
	}
	assert.NotEqual(t, accs[0].Address, accs[1].Address)

	byIndex, err := await(t, signer.GetAddressByIndex(s, derivation.BIP44, 3))
	require.NoError(t, err)
	assert.Equal(t, accs[1], byIndex)

	_, err = signer.GetAddresses(ctx, s, eth.AddressRequest{Scheme: derivation.SolanaBIP44, Count: 1})
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
	_, err = signer.GetAddresses(ctx, s, eth.AddressRequest{Scheme: "nope", Count: 1})
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
}

func TestGetAddresses_Sequential(t *testing.T) {
	t.Parallel()
	d := new(recordingDevice)
	s := session.New("conn", "recorder")
	defer s.Close()
	signer := eth.NewSigner(d)
	defer signer.Close()

	accs, err := signer.GetAddresses(context.Background(), s, eth.AddressRequest{Scheme: derivation.BIP44, From: 2, Count: 3})
	require.NoError(t, err)
	require.Len(t, accs, 3)

	paths, overlap := d.requests()
	assert.Equal(t, []string{"44'/60'/0'/0/2", "44'/60'/0'/0/3", "44'/60'/0'/0/4"}, paths)
	assert.False(t, overlap, "derivations must not run concurrently")
	for i, acc := range accs {
		assert.Equal(t, paths[i], acc.DerivationPath)
		assert.Equal(t, common.BytesToAddress(crypto.Keccak256([]byte(paths[i]))), acc.Address)
	}
}

func TestVerifyAddress(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)

	var interactions []action.Interaction
	acc, err := await(t, signer.VerifyAddress(s, path, action.OnInteraction(func(i action.Interaction) {
		interactions = append(interactions, i)
	})))
	require.NoError(t, err)
	assert.Equal(t, path, acc.DerivationPath)
	assert.Equal(t, []action.Interaction{action.InteractionNone, action.InteractionVerifyAddress}, interactions)
}

func TestSignMessage(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)
	acc, err := await(t, signer.GetAddress(s, path))
	require.NoError(t, err)

	sig, err := await(t, signer.SignMessage(s, path, eth.MessageBytes("hello")))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.LessOrEqual(t, sig[64], byte(1))

	pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello")), sig)
	require.NoError(t, err)
	assert.Equal(t, acc.Address, crypto.PubkeyToAddress(*pub))
}

const mailJSON = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"},
      {"name": "verifyingContract", "type": "address"}
    ],
    "Person": [
      {"name": "name", "type": "string"},
      {"name": "wallet", "type": "address"}
    ],
    "Mail": [
      {"name": "from", "type": "Person"},
      {"name": "to", "type": "Person"},
      {"name": "contents", "type": "string"}
    ]
  },
  "primaryType": "Mail",
  "domain": {
    "name": "Ether Mail",
    "version": "1",
    "chainId": 1,
    "verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
  },
  "message": {
    "from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
    "to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
    "contents": "Hello, Bob!"
  }
}`

func TestSignTypedData(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)
	acc, err := await(t, signer.GetAddress(s, path))
	require.NoError(t, err)

	sig, err := await(t, signer.SignTypedData(s, path, mailJSON))
	require.NoError(t, err)

	td, err := typeddata.Parse([]byte(mailJSON))
	require.NoError(t, err)
	c, err := typeddata.Canonicalize(td)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2"), c.Digest())

	pub, err := crypto.SigToPub(c.Digest().Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, acc.Address, crypto.PubkeyToAddress(*pub))

	_, err = await(t, signer.SignTypedData(s, path, `{"types":{},"primaryType":"Missing","domain":{},"message":{}}`))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))
}

func TestSignTransaction(t *testing.T) {
	t.Parallel()
	_, s, signer := setup(t)
	acc, err := await(t, signer.GetAddress(s, path))
	require.NoError(t, err)

	for _, js := range []string{
		`{"chainId":"0x1","nonce":"0x0","gas":"0x5208","gasPrice":"0x3b9aca00","to":"0x000000000000000000000000000000000000dEaD","value":"0x1"}`,
		`{"chainId":"0x89","nonce":"0x7","gas":"0x5208","maxFeePerGas":"0x2","maxPriorityFeePerGas":"0x1","to":"0x000000000000000000000000000000000000dEaD"}`,
		`{"chainId":56,"nonce":1,"gasLimit":21000,"gasPrice":5,"accessList":[]}`,
	} {
		req, err := eth.ParseTxRequest([]byte(js))
		require.NoError(t, err)
		req.From = &acc.Address

		signed, err := await(t, signer.SignTransaction(s, path, req))
		require.NoError(t, err, js)
		assert.Equal(t, acc.Address, signed.From)

		var tx types.Transaction
		require.NoError(t, tx.UnmarshalBinary(signed.Serialized))
		sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
		require.NoError(t, err)
		assert.Equal(t, acc.Address, sender)
		assert.Equal(t, signed.Hash, tx.Hash())
	}
}

func TestMalformedInputNeverReachesDevice(t *testing.T) {
	t.Parallel()
	d, s, signer := setup(t)
	prompted := false
	d.SetResponder(func(sim.Prompt) sim.Response {
		prompted = true
		return sim.Approve
	})

	_, err := await(t, signer.SignMessage(s, "44'/60'/x", []byte("hi")))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))

	req, err := eth.ParseTxRequest([]byte(`{"nonce":0,"gas":21000,"gasPrice":1}`))
	require.NoError(t, err)
	_, err = await(t, signer.SignTransaction(s, path, req))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))

	_, err = await(t, signer.SignTransaction(s, path, nil))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))

	_, err = await(t, signer.SignTypedData(s, path, "{"))
	assert.Equal(t, deviceerr.MalformedInput, deviceerr.Classify(err))

	_, err = await(t, signer.GetAddress(nil, path))
	assert.True(t, deviceerr.IsDisconnected(deviceerr.Normalize(err)))
	assert.False(t, prompted)
}

func TestRejection(t *testing.T) {
	t.Parallel()
	d, s, signer := setup(t)
	d.SetResponder(func(sim.Prompt) sim.Response { return sim.Reject })

	_, err := await(t, signer.SignMessage(s, path, []byte("hi")))
	assert.Equal(t, deviceerr.UserRejected, deviceerr.Classify(err))

	d.SetResponder(func(sim.Prompt) sim.Response { return sim.Stop })
	_, err = await(t, signer.SignMessage(s, path, []byte("hi")))
	assert.Equal(t, deviceerr.UserRejected, deviceerr.Classify(err))
}

func TestErrorFeed(t *testing.T) {
	t.Parallel()
	d, s, signer := setup(t)
	events := make(chan eth.ErrorEvent, 4)
	sub := signer.SubscribeErrors(events)
	defer sub.Unsubscribe()

	d.Lock()
	_, err := await(t, signer.GetAddress(s, path))
	require.Error(t, err)
	select {
	case ev := <-events:
		assert.Equal(t, "get address", ev.Op)
		assert.True(t, deviceerr.IsDeviceLocked(ev.Err))
	case <-time.After(timeout):
		t.Fatal("no error event")
	}

	_, err = await(t, signer.SignMessage(s, "bad", nil))
	require.Error(t, err)
	ev := <-events
	assert.Equal(t, "sign message", ev.Op)
	assert.True(t, deviceerr.IsMalformedInput(ev.Err))
}

func TestErrorFeed_UnreadSubscriber(t *testing.T) {
	t.Parallel()
	d, s, signer := setup(t)
	d.SetResponder(func(sim.Prompt) sim.Response { return sim.Reject })

	events := make(chan eth.ErrorEvent)
	sub := signer.SubscribeErrors(events)
	defer sub.Unsubscribe()

	_, err := await(t, signer.SignMessage(s, path, []byte("hi")))
	assert.Equal(t, deviceerr.UserRejected, deviceerr.Classify(err))

	d.SetResponder(sim.AlwaysApprove)
	_, err = await(t, signer.GetAddress(s, path))
	assert.NoError(t, err, "device slot must be free while the event is undelivered")

	select {
	case ev := <-events:
		assert.Equal(t, "sign message", ev.Op)
	case <-time.After(timeout):
		t.Fatal("no error event")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	d, s, signer := setup(t, sim.WithResponder(func(sim.Prompt) sim.Response { return sim.Ignore }))

	prompted := make(chan struct{}, 1)
	a := signer.SignMessage(s, path, []byte("hi"), action.OnInteraction(func(i action.Interaction) {
		if i == action.InteractionSignPersonalMessage {
			prompted <- struct{}{}
		}
	}))
	select {
	case <-prompted:
	case <-time.After(timeout):
		t.Fatal("no prompt")
	}
	a.Cancel()
	assert.True(t, a.Cancelled())
	assert.Eventually(t, func() bool { return !d.Busy() }, timeout, 5*time.Millisecond)
	_, _, settled := a.Result()
	assert.False(t, settled)

	d.SetResponder(sim.AlwaysApprove)
	_, err := await(t, signer.GetAddress(s, path))
	assert.NoError(t, err)
}
