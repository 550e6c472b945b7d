// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package wallet offers a blocking account API on top of the Ethereum
// signer. A Wallet holds the session of one device and the accounts derived
// on it; every call waits for the device and is bounded by a timeout.
package wallet // import "github.com/zeriontech/hardware-wallet-connection/wallet"

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/action"
	"github.com/zeriontech/hardware-wallet-connection/addrcache"
	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/eth"
	"github.com/zeriontech/hardware-wallet-connection/log"
	"github.com/zeriontech/hardware-wallet-connection/session"
)

// DefaultTimeout bounds every device call unless configured otherwise.
const DefaultTimeout = 2 * time.Minute

// ErrNotConnected is returned by calls that need a connected wallet.
var ErrNotConnected = errors.New("wallet not connected")

// Wallet is a signing device reached through a session provider.
type Wallet struct {
	provider session.Provider
	signer   *eth.Signer
	cache    *addrcache.Cache
	kind     session.Kind
	timeout  time.Duration
	sessOpts []session.Option
	log      log.Logger

	mutex    sync.Mutex
	sess     *session.Session
	accounts []*Account
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithKind sets the transport kind used to discover the device.
func WithKind(kind session.Kind) Option { return func(w *Wallet) { w.kind = kind } }

// WithTimeout bounds device calls. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(w *Wallet) { w.timeout = d } }

// WithCache looks up and stores derived addresses in c.
func WithCache(c *addrcache.Cache) Option { return func(w *Wallet) { w.cache = c } }

// WithSessionOptions sets the options of the sessions the wallet opens.
func WithSessionOptions(opts ...session.Option) Option {
	return func(w *Wallet) { w.sessOpts = opts }
}

// New returns a disconnected wallet for the Ethereum app dev reached through
// p.
func New(p session.Provider, dev eth.Device, opts ...Option) *Wallet {
	w := &Wallet{
		provider: p,
		signer:   eth.NewSigner(dev),
		kind:     session.USB,
		timeout:  DefaultTimeout,
		log:      log.WithField("component", "wallet"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Signer returns the underlying signer, e.g. to subscribe to its errors.
func (w *Wallet) Signer() *eth.Signer { return w.signer }

// Connect restores the session of an already connected device or, if there
// is none, connects to the first discovered one.
func (w *Wallet) Connect(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.sess != nil {
		return errors.New("wallet already connected")
	}

	sess, err := session.Restore(ctx, w.provider, w.sessOpts...)
	if err != nil {
		w.log.WithError(err).Debug("no connected device, discovering")
		if sess, err = session.OpenFirst(ctx, w.provider, w.kind, w.sessOpts...); err != nil {
			return err
		}
	}
	w.sess = sess
	w.log.WithField("device", sess.DeviceID()).Info("wallet connected")
	return nil
}

// Disconnect closes the session and forgets the derived accounts.
func (w *Wallet) Disconnect() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.sess == nil {
		return ErrNotConnected
	}
	err := w.sess.Close()
	w.sess, w.accounts = nil, nil
	return errors.WithMessage(err, "closing session")
}

// Status describes the connection.
func (w *Wallet) Status() (string, error) {
	sess, err := w.session()
	if err != nil {
		return "", err
	}
	return "connected to " + sess.DeviceID(), nil
}

// Session returns the current session.
func (w *Wallet) Session() (*session.Session, error) { return w.session() }

func (w *Wallet) session() (*session.Session, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.sess == nil {
		return nil, ErrNotConnected
	}
	return w.sess, nil
}

// Accounts returns the accounts derived so far, in derivation order.
func (w *Wallet) Accounts() []*Account {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([]*Account{}, w.accounts...)
}

// Contains returns whether acc was derived by this wallet.
func (w *Wallet) Contains(acc *Account) bool {
	if acc == nil {
		return false
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for _, a := range w.accounts {
		if a == acc || (a.path == acc.path && a.address == acc.address) {
			return true
		}
	}
	return false
}

// Derive returns count accounts of scheme starting at index from. Cached
// addresses are not requested from the device.
func (w *Wallet) Derive(ctx context.Context, scheme derivation.Scheme, from, count uint32) ([]*Account, error) {
	if scheme.Family() != derivation.Ethereum {
		return nil, errors.Errorf("scheme %s does not derive Ethereum accounts", scheme)
	}
	paths, err := derivation.Paths(scheme, from, count)
	if err != nil {
		return nil, err
	}
	accs := make([]*Account, 0, len(paths))
	for _, path := range paths {
		acc, err := w.Account(ctx, path)
		if err != nil {
			return nil, err
		}
		accs = append(accs, acc)
	}
	return accs, nil
}

// Account returns the account at path, deriving it if needed.
func (w *Wallet) Account(ctx context.Context, path string) (*Account, error) {
	sess, err := w.session()
	if err != nil {
		return nil, err
	}
	canonical, err := derivation.Canonical(path)
	if err != nil {
		return nil, err
	}

	derive := func(ctx context.Context, path string) (string, error) {
		acc, err := call(ctx, w, w.signer.GetAddress(sess, path))
		return acc.Address.Hex(), err
	}
	var hex string
	if w.cache != nil {
		hex, err = w.cache.Resolve(ctx, sess.DeviceID(), canonical, derive)
	} else {
		hex, err = derive(ctx, canonical)
	}
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(hex) {
		return nil, errors.Errorf("invalid address %q", hex)
	}
	return w.add(&Account{wallet: w, path: canonical, address: common.HexToAddress(hex)}), nil
}

// add records acc unless an equal account is known, which is returned
// instead.
func (w *Wallet) add(acc *Account) *Account {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for _, a := range w.accounts {
		if a.path == acc.path {
			return a
		}
	}
	w.accounts = append(w.accounts, acc)
	return acc
}

// call waits for a within the wallet's timeout. If the wait ends early, a is
// cancelled.
func call[T any](ctx context.Context, w *Wallet, a *action.Action[T]) (T, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	out, err := a.Await(ctx)
	if err != nil && ctx.Err() != nil {
		a.Cancel()
		return out, errors.Wrap(ctx.Err(), "waiting for device")
	}
	return out, err
}
