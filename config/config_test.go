// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeriontech/hardware-wallet-connection/session"
)

const mnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "hwconn.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestLoad(t *testing.T) {
	file := writeFile(t, `
[Log]
Level = "debug"
Format = "json"

[Device]
Kind = "ble"
Timeout = "30s"

[Addresses]
CachePath = "/tmp/hwconn-cache"
CacheSize = 64
`)
	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, session.BLE, cfg.Device.Kind)
	assert.Equal(t, Duration(30*time.Second), cfg.Device.Timeout)
	assert.Equal(t, Addresses{CachePath: "/tmp/hwconn-cache", CacheSize: 64}, cfg.Addresses)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, "[Device]\nColor = \"red\"\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "[Log\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hwconn.toml")

	_, err = Load(writeFile(t, "[Log]\nFormat = \"xml\"\n"))
	assert.EqualError(t, err, `unknown log format "xml"`)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:     "trace",
		EnvLogFormat:    "json",
		EnvMnemonic:     mnemonic,
		EnvDebug:        "true",
		EnvTimeout:      "5s",
		EnvAddressCache: "/var/cache/hwconn",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "trace", cfg.Log.Level)
	assert.Equal(t, mnemonic, cfg.Device.Mnemonic)
	assert.True(t, cfg.Device.Debug)
	assert.Equal(t, Duration(5*time.Second), cfg.Device.Timeout)
	assert.Equal(t, "/var/cache/hwconn", cfg.Addresses.CachePath)

	env[EnvDebug] = "maybe"
	assert.Error(t, cfg.ApplyEnv(lookup))
	env[EnvDebug] = "0"
	env[EnvTimeout] = "soon"
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Device.Mnemonic = "abandon abandon"
	assert.EqualError(t, cfg.Validate(), "invalid mnemonic")

	cfg = Default()
	cfg.Device.Kind = "nfc"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Addresses.CacheSize = -1
	assert.Error(t, cfg.Validate())
}

func TestWrite(t *testing.T) {
	cfg := Default()
	cfg.Device.Mnemonic = mnemonic
	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.NotContains(t, buf.String(), "legal")
	assert.Contains(t, buf.String(), "2m0s")

	file := writeFile(t, buf.String())
	back, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, Default(), back)
}
