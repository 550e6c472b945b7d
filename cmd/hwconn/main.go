// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// hwconn derives addresses and signs messages, typed data and transactions
// with a signing device. It runs against the simulated device; embedders
// plug real transports into the library packages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/addrcache"
	"github.com/zeriontech/hardware-wallet-connection/backend/sim"
	"github.com/zeriontech/hardware-wallet-connection/config"
	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
	"github.com/zeriontech/hardware-wallet-connection/log"
	plogrus "github.com/zeriontech/hardware-wallet-connection/log/logrus"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "TOML configuration file",
		EnvVars: []string{"HWCONN_CONFIG"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "log level (trace, debug, info, warn, error)",
	}
	pathFlag = &cli.StringFlag{
		Name:  "path",
		Usage: "derivation path",
		Value: "44'/60'/0'/0/0",
	}
	schemeFlag = &cli.StringFlag{
		Name:  "scheme",
		Usage: "derivation scheme (ledger, ledgerLive, bip44, solanaBip44, solanaBip44Change, solanaDeprecated)",
		Value: "bip44",
	}
	fromFlag = &cli.UintFlag{
		Name:  "from",
		Usage: "first account index",
	}
	countFlag = &cli.UintFlag{
		Name:  "count",
		Usage: "number of accounts",
		Value: 5,
	}
	solanaFlag = &cli.BoolFlag{
		Name:  "solana",
		Usage: "use the Solana app",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "hwconn",
		Usage: "sign with a hardware wallet",
		Flags: []cli.Flag{configFileFlag, logLevelFlag},
		Before: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			plogrus.Set(plogrus.ParseLevel(cfg.Log.Level), plogrus.Formatter(cfg.Log.Format == "json"))
			return nil
		},
		Commands: []*cli.Command{
			pathsCommand,
			addressesCommand,
			signMessageCommand,
			signTypedDataCommand,
			typedDataHashCommand,
			signTxCommand,
			dumpConfigCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, deviceerr.Describe(err))
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String(configFileFlag.Name))
	if err != nil {
		return cfg, err
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = ctx.String(logLevelFlag.Name)
	}
	return cfg, nil
}

// env is what a command needs to talk to the device.
type env struct {
	cfg      config.Config
	device   *sim.Device
	provider *sim.Provider
	sess     *session.Session
	cache    *addrcache.Cache
}

func setup(ctx *cli.Context) (*env, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	mnemonic := cfg.Device.Mnemonic
	if mnemonic == "" {
		mnemonic = sim.DefaultMnemonic
	}
	// The device ID keys the address cache, so it is stable per mnemonic.
	id := "sim-" + crypto.Keccak256Hash([]byte(mnemonic)).Hex()[2:10]
	device, err := sim.NewDevice(sim.WithID(id), sim.WithKind(cfg.Device.Kind), sim.WithMnemonic(mnemonic))
	if err != nil {
		return nil, err
	}
	provider := sim.NewProvider(device)
	sess, err := session.OpenFirst(ctx.Context, provider, cfg.Device.Kind, session.WithDebug(cfg.Device.Debug))
	if err != nil {
		return nil, err
	}

	var cache *addrcache.Cache
	if cfg.Addresses.CachePath != "" {
		cache, err = addrcache.Open(cfg.Addresses.CachePath, cfg.Addresses.CacheSize)
	} else {
		cache, err = addrcache.NewMemory(cfg.Addresses.CacheSize)
	}
	if err != nil {
		sess.Close()
		return nil, err
	}
	return &env{cfg: cfg, device: device, provider: provider, sess: sess, cache: cache}, nil
}

func (e *env) Close() {
	if err := e.cache.Close(); err != nil {
		log.WithError(err).Warn("closing address cache")
	}
	e.sess.Close()
}

func (e *env) timeout() time.Duration { return time.Duration(e.cfg.Device.Timeout) }

// prompt reports device interactions the user has to perform.
func prompt(ctx *cli.Context) action.Option {
	return action.OnInteraction(func(i action.Interaction) {
		if i != action.InteractionNone {
			fmt.Fprintf(ctx.App.ErrWriter, "waiting for device: %s\n", i)
		}
	})
}

// await waits for a within the configured timeout and cancels it if the
// wait ends early.
func await[T any](ctx *cli.Context, e *env, a *action.Action[T]) (T, error) {
	c := ctx.Context
	if t := e.timeout(); t > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, t)
		defer cancel()
	}
	out, err := a.Await(c)
	if err != nil && c.Err() != nil {
		a.Cancel()
		return out, errors.Wrap(c.Err(), "waiting for device")
	}
	return out, err
}

func printJSON(ctx *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = fmt.Fprintln(ctx.App.Writer, string(out))
	return errors.WithStack(err)
}
