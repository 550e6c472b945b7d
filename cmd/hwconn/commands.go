// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/solana"
	"github.com/zeriontech/hardware-wallet-connection/typeddata"
	"github.com/zeriontech/hardware-wallet-connection/wallet"
)

var (
	pathsCommand = &cli.Command{
		Name:   "paths",
		Usage:  "Print the derivation paths of a scheme",
		Flags:  []cli.Flag{schemeFlag, fromFlag, countFlag},
		Action: paths,
	}
	addressesCommand = &cli.Command{
		Name:   "addresses",
		Usage:  "Derive the addresses of a scheme",
		Flags:  []cli.Flag{schemeFlag, fromFlag, countFlag},
		Action: addresses,
	}
	signMessageCommand = &cli.Command{
		Name:      "sign-message",
		Usage:     "Sign a personal message, given as text or 0x-prefixed hex",
		ArgsUsage: "<message>",
		Flags:     []cli.Flag{pathFlag, solanaFlag},
		Action:    signMessage,
	}
	signTypedDataCommand = &cli.Command{
		Name:      "sign-typed-data",
		Usage:     "Sign EIP-712 typed data read from a file or stdin",
		ArgsUsage: "[<file>]",
		Flags:     []cli.Flag{pathFlag},
		Action:    signTypedData,
	}
	typedDataHashCommand = &cli.Command{
		Name:      "typed-data-hash",
		Usage:     "Print the EIP-712 hashes of typed data read from a file or stdin",
		ArgsUsage: "[<file>]",
		Action:    typedDataHash,
	}
	signTxCommand = &cli.Command{
		Name:      "sign-tx",
		Usage:     "Sign a JSON transaction request read from a file or stdin, or a base64 Solana transaction",
		ArgsUsage: "[<file>]",
		Flags:     []cli.Flag{pathFlag, solanaFlag},
		Action:    signTx,
	}
	dumpConfigCommand = &cli.Command{
		Name:   "dump-config",
		Usage:  "Print the effective configuration",
		Action: dumpConfig,
	}
)

func scheme(ctx *cli.Context) (derivation.Scheme, uint32, uint32, error) {
	s, err := derivation.ParseScheme(ctx.String(schemeFlag.Name))
	if err != nil {
		return "", 0, 0, err
	}
	from, count := ctx.Uint(fromFlag.Name), ctx.Uint(countFlag.Name)
	if from > derivation.MaxIndex || count > derivation.MaxIndex {
		return "", 0, 0, errors.New("account range out of bounds")
	}
	return s, uint32(from), uint32(count), nil
}

func paths(ctx *cli.Context) error {
	s, from, count, err := scheme(ctx)
	if err != nil {
		return err
	}
	ps, err := derivation.Paths(s, from, count)
	if err != nil {
		return err
	}
	return printJSON(ctx, ps)
}

func addresses(ctx *cli.Context) error {
	s, from, count, err := scheme(ctx)
	if err != nil {
		return err
	}
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if s.Family() == derivation.Solana {
		signer := solana.NewSigner(e.device.Solana())
		defer signer.Close()
		accs, err := signer.GetAddresses(ctx.Context, e.sess, solana.AddressRequest{Scheme: s, From: from, Count: count}, prompt(ctx))
		if err != nil {
			return err
		}
		return printJSON(ctx, accs)
	}

	w := wallet.New(e.provider, e.device.Ethereum(), wallet.WithCache(e.cache), wallet.WithTimeout(e.timeout()))
	if err := w.Connect(ctx.Context); err != nil {
		return err
	}
	derived, err := w.Derive(ctx.Context, s, from, count)
	if err != nil {
		return err
	}
	accs := make([]eth.Account, len(derived))
	for i, a := range derived {
		accs[i] = eth.Account{DerivationPath: a.Path(), Address: a.Address()}
	}
	return printJSON(ctx, accs)
}

func signMessage(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one message argument")
	}
	msg := eth.MessageBytes(ctx.Args().First())
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if ctx.Bool(solanaFlag.Name) {
		signer := solana.NewSigner(e.device.Solana())
		defer signer.Close()
		sig, err := await(ctx, e, signer.SignMessage(e.sess, ctx.String(pathFlag.Name), msg, prompt(ctx)))
		if err != nil {
			return err
		}
		return printJSON(ctx, map[string]interface{}{"signature": sig})
	}

	signer := eth.NewSigner(e.device.Ethereum())
	defer signer.Close()
	sig, err := await(ctx, e, signer.SignMessage(e.sess, ctx.String(pathFlag.Name), msg, prompt(ctx)))
	if err != nil {
		return err
	}
	return printJSON(ctx, map[string]interface{}{"signature": sig})
}

func signTypedData(ctx *cli.Context) error {
	input, err := readInput(ctx)
	if err != nil {
		return err
	}
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	signer := eth.NewSigner(e.device.Ethereum())
	defer signer.Close()
	sig, err := await(ctx, e, signer.SignTypedData(e.sess, ctx.String(pathFlag.Name), input, prompt(ctx)))
	if err != nil {
		return err
	}
	return printJSON(ctx, map[string]interface{}{"signature": sig})
}

func typedDataHash(ctx *cli.Context) error {
	input, err := readInput(ctx)
	if err != nil {
		return err
	}
	td, err := typeddata.Parse(input)
	if err != nil {
		return err
	}
	c, err := typeddata.Canonicalize(td)
	if err != nil {
		return err
	}
	return printJSON(ctx, struct {
		DomainSeparator common.Hash `json:"domainSeparator"`
		StructHash      common.Hash `json:"structHash"`
		Digest          common.Hash `json:"digest"`
	}{c.DomainSeparator, c.StructHash, c.Digest()})
}

func signTx(ctx *cli.Context) error {
	input, err := readInput(ctx)
	if err != nil {
		return err
	}
	var req *eth.TxRequest
	if !ctx.Bool(solanaFlag.Name) {
		if req, err = eth.ParseTxRequest(input); err != nil {
			return err
		}
	}
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if ctx.Bool(solanaFlag.Name) {
		signer := solana.NewSigner(e.device.Solana())
		defer signer.Close()
		sig, err := await(ctx, e, signer.SignTransaction(e.sess, ctx.String(pathFlag.Name), string(bytes.TrimSpace(input)), prompt(ctx)))
		if err != nil {
			return err
		}
		return printJSON(ctx, map[string]interface{}{"signature": sig})
	}

	signer := eth.NewSigner(e.device.Ethereum())
	defer signer.Close()
	signed, err := await(ctx, e, signer.SignTransaction(e.sess, ctx.String(pathFlag.Name), req, prompt(ctx)))
	if err != nil {
		return err
	}
	return printJSON(ctx, signed)
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return cfg.Write(ctx.App.Writer)
}

// readInput reads the file named by the first argument, or stdin.
func readInput(ctx *cli.Context) ([]byte, error) {
	if ctx.NArg() > 1 {
		return nil, errors.New("expected at most one file argument")
	}
	if file := ctx.Args().First(); file != "" && file != "-" {
		data, err := os.ReadFile(file)
		return data, errors.WithStack(err)
	}
	data, err := io.ReadAll(ctx.App.Reader)
	return data, errors.WithStack(err)
}
