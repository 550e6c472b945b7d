// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package sim

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/zeriontech/hardware-wallet-connection/derivation"
)

// DefaultMnemonic is the mnemonic of simulated devices unless configured
// otherwise. Never use it for real funds.
const DefaultMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// keyring derives per-path keys from a mnemonic seed. The derivation expands
// the seed with HKDF keyed by the canonical path. It is deterministic but
// not BIP-32 compatible.
type keyring struct {
	seed []byte

	mutex sync.Mutex
	secp  map[string]*ecdsa.PrivateKey
	ed    map[string]ed25519.PrivateKey
}

func newKeyring(mnemonic string) (*keyring, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Wrap(err, "invalid mnemonic")
	}
	return &keyring{
		seed: seed,
		secp: make(map[string]*ecdsa.PrivateKey),
		ed:   make(map[string]ed25519.PrivateKey),
	}, nil
}

func (k *keyring) expand(domain, path string) (io.Reader, string, error) {
	canonical, err := derivation.Canonical(path)
	if err != nil {
		return nil, "", err
	}
	return hkdf.New(sha256.New, k.seed, []byte(domain), []byte(canonical)), canonical, nil
}

// secp256k1 returns the Ethereum key at path.
func (k *keyring) secp256k1(path string) (*ecdsa.PrivateKey, error) {
	r, canonical, err := k.expand("secp256k1", path)
	if err != nil {
		return nil, err
	}
	k.mutex.Lock()
	defer k.mutex.Unlock()
	if key, ok := k.secp[canonical]; ok {
		return key, nil
	}

	buf := make([]byte, 32)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "expanding seed")
		}
		// Candidates outside the curve order are skipped.
		if key, err := crypto.ToECDSA(buf); err == nil {
			k.secp[canonical] = key
			return key, nil
		}
	}
}

// ed25519 returns the Solana key at path.
func (k *keyring) ed25519(path string) (ed25519.PrivateKey, error) {
	r, canonical, err := k.expand("ed25519", path)
	if err != nil {
		return nil, err
	}
	k.mutex.Lock()
	defer k.mutex.Unlock()
	if key, ok := k.ed[canonical]; ok {
		return key, nil
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, errors.Wrap(err, "expanding seed")
	}
	key := ed25519.NewKeyFromSeed(seed)
	k.ed[canonical] = key
	return key, nil
}
