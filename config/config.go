// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package config holds the settings of the hwconn tools. Settings are read
// from a TOML file and can be overridden by HWCONN_* environment variables.
package config // import "github.com/zeriontech/hardware-wallet-connection/config"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"

	"github.com/zeriontech/hardware-wallet-connection/session"
)

// Config is the complete configuration.
type Config struct {
	Log       Log
	Device    Device
	Addresses Addresses
}

// Log configures logging.
type Log struct {
	Level  string // logrus level name
	Format string // "text" or "json"
}

// Device configures the device connection.
type Device struct {
	Kind     session.Kind
	Mnemonic string `toml:",omitempty"` // of the simulated device
	Debug    bool   // warn on overlapping device actions
	Timeout  Duration
}

// Addresses configures the address cache.
type Addresses struct {
	CachePath string `toml:",omitempty"` // in memory if empty
	CacheSize int
}

// Duration is a time.Duration written as a string like "90s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(err, "invalid duration")
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Log:       Log{Level: "info", Format: "text"},
		Device:    Device{Kind: session.USB, Timeout: Duration(2 * time.Minute)},
		Addresses: Addresses{CacheSize: 1024},
	}
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load reads the file on top of the defaults and applies the environment.
// An empty file name only applies the environment.
func Load(file string) (Config, error) {
	cfg := Default()
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return cfg, errors.WithStack(err)
		}
		defer f.Close()

		err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
		// Add file name to errors that have a line number.
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(file + ", " + err.Error())
		}
		if err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Environment variables overriding file settings.
const (
	EnvLogLevel     = "HWCONN_LOG_LEVEL"
	EnvLogFormat    = "HWCONN_LOG_FORMAT"
	EnvMnemonic     = "HWCONN_MNEMONIC"
	EnvDebug        = "HWCONN_DEBUG"
	EnvTimeout      = "HWCONN_TIMEOUT"
	EnvAddressCache = "HWCONN_ADDRESS_CACHE"
)

// ApplyEnv overrides settings with the variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvMnemonic); ok {
		c.Device.Mnemonic = v
	}
	if v, ok := lookup(EnvDebug); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", EnvDebug)
		}
		c.Device.Debug = debug
	}
	if v, ok := lookup(EnvTimeout); ok {
		if err := c.Device.Timeout.UnmarshalText([]byte(v)); err != nil {
			return errors.WithMessagef(err, "parsing %s", EnvTimeout)
		}
	}
	if v, ok := lookup(EnvAddressCache); ok {
		c.Addresses.CachePath = v
	}
	return nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Device.Kind {
	case session.USB, session.HID, session.BLE:
	default:
		return errors.Errorf("unknown transport kind %q", c.Device.Kind)
	}
	if c.Device.Mnemonic != "" && !bip39.IsMnemonicValid(c.Device.Mnemonic) {
		return errors.New("invalid mnemonic")
	}
	if c.Device.Timeout < 0 {
		return errors.New("negative timeout")
	}
	if c.Addresses.CacheSize < 0 {
		return errors.New("negative address cache size")
	}
	return nil
}

// Write encodes c as TOML. The mnemonic is never written.
func (c Config) Write(w io.Writer) error {
	c.Device.Mnemonic = ""
	return errors.WithStack(tomlSettings.NewEncoder(w).Encode(c))
}
