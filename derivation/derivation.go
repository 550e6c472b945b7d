// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package derivation maps account indices to the derivation paths of the
// supported wallet layouts and validates user supplied paths.
package derivation // import "github.com/zeriontech/hardware-wallet-connection/derivation"

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
)

// Scheme is a derivation path layout.
type Scheme string

// Supported schemes. The Solana schemes only use hardened indices where
// ed25519 derivation requires them.
const (
	Ledger            Scheme = "ledger"            // 44'/60'/0'/i
	LedgerLive        Scheme = "ledgerLive"        // 44'/60'/i'/0/0
	BIP44             Scheme = "bip44"             // 44'/60'/0'/0/i
	SolanaBIP44       Scheme = "solanaBip44"       // 44'/501'/i'
	SolanaBIP44Change Scheme = "solanaBip44Change" // 44'/501'/i'/0'
	SolanaDeprecated  Scheme = "solanaDeprecated"  // 501'/i'/0/0
)

// Family is the chain family a scheme derives keys for.
type Family int

// Chain families.
const (
	Ethereum Family = iota
	Solana
)

// MaxIndex is the largest account index. Indices are hardened in some
// schemes, which leaves 31 bits.
const MaxIndex = 1<<31 - 1

var formats = map[Scheme]string{
	Ledger:            "44'/60'/0'/%d",
	LedgerLive:        "44'/60'/%d'/0/0",
	BIP44:             "44'/60'/0'/0/%d",
	SolanaBIP44:       "44'/501'/%d'",
	SolanaBIP44Change: "44'/501'/%d'/0'",
	SolanaDeprecated:  "501'/%d'/0/0",
}

// Schemes returns all schemes of family f.
func Schemes(f Family) []Scheme {
	if f == Solana {
		return []Scheme{SolanaBIP44, SolanaBIP44Change, SolanaDeprecated}
	}
	return []Scheme{Ledger, LedgerLive, BIP44}
}

// Family returns the chain family of s.
func (s Scheme) Family() Family {
	if strings.HasPrefix(string(s), "solana") {
		return Solana
	}
	return Ethereum
}

// Valid returns whether s is a known scheme.
func (s Scheme) Valid() bool {
	_, ok := formats[s]
	return ok
}

// ParseScheme returns the scheme with the given name.
func ParseScheme(name string) (Scheme, error) {
	if s := Scheme(name); s.Valid() {
		return s, nil
	}
	return "", deviceerr.Malformed("unknown derivation scheme %q", name)
}

// Path returns the derivation path of account index in scheme s. Paths are
// returned without the leading "m/".
func Path(s Scheme, index uint32) (string, error) {
	format, ok := formats[s]
	if !ok {
		return "", deviceerr.Malformed("unknown derivation scheme %q", string(s))
	}
	if index > MaxIndex {
		return "", deviceerr.Malformed("account index %d out of range", index)
	}
	return fmt.Sprintf(format, index), nil
}

// Paths returns the paths of count consecutive account indices starting at
// from.
func Paths(s Scheme, from, count uint32) ([]string, error) {
	if uint64(from)+uint64(count) > MaxIndex+1 {
		return nil, deviceerr.Malformed("account range %d+%d out of range", from, count)
	}
	paths := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := Path(s, from+i)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Parse parses an absolute derivation path with or without the leading
// "m/".
func Parse(path string) (accounts.DerivationPath, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, deviceerr.Malformed("empty derivation path")
	}
	if !strings.HasPrefix(trimmed, "m/") {
		trimmed = "m/" + trimmed
	}
	dp, err := accounts.ParseDerivationPath(trimmed)
	if err != nil {
		return nil, deviceerr.Malformed("invalid derivation path %q: %v", path, err)
	}
	return dp, nil
}

// Validate returns a malformed input error if path is not a valid derivation
// path.
func Validate(path string) error {
	_, err := Parse(path)
	return err
}

// Canonical returns path in the form produced by Path.
func Canonical(path string) (string, error) {
	dp, err := Parse(path)
	if err != nil {
		return "", err
	}
	return Format(dp), nil
}

// Format renders dp without the leading "m/".
func Format(dp accounts.DerivationPath) string {
	return strings.TrimPrefix(dp.String(), "m/")
}
