// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package addrcache

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

func TestCache_PutGet(t *testing.T) {
	c, err := NewMemory(2)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get("nano", "44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put("nano", "m/44'/60'/0'/0/0", addr))
	got, ok, err := c.Get("nano", "44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	// Entries evicted from memory are read from the database.
	require.NoError(t, c.Put("nano", "44'/60'/0'/0/1", "b"))
	require.NoError(t, c.Put("nano", "44'/60'/0'/0/2", "c"))
	got, ok, err = c.Get("nano", "44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	_, ok, err = c.Get("other", "44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_NilArgs(t *testing.T) {
	c, err := NewMemory(0)
	require.NoError(t, err)
	defer c.Close()

	err = c.Put("nano", "44'/60'/0'/0/0", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value")

	assert.Error(t, c.Put("", "44'/60'/0'/0/0", addr))
	assert.Error(t, c.Put("a/b", "44'/60'/0'/0/0", addr))
	assert.Error(t, c.Put("nano", "not a path", addr))
	_, _, err = c.Get("nano", "")
	assert.Error(t, err)
}

func TestCache_ListForget(t *testing.T) {
	c, err := NewMemory(16)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("nano", "44'/60'/0'/0/0", "a"))
	require.NoError(t, c.Put("nano", "44'/501'/0'", "b"))
	require.NoError(t, c.Put("nano2", "44'/60'/0'/0/0", "c"))

	entries, err := c.List("nano")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"44'/60'/0'/0/0": "a", "44'/501'/0'": "b"}, entries)

	require.NoError(t, c.Forget("nano"))
	entries, err = c.List("nano")
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, ok, err := c.Get("nano", "44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err = c.List("nano2")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCache_Resolve(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemory(16)
	require.NoError(t, err)
	defer c.Close()

	calls := 0
	derive := func(_ context.Context, path string) (string, error) {
		calls++
		return addr, nil
	}
	for i := 0; i < 3; i++ {
		got, err := c.Resolve(ctx, "nano", "44'/60'/0'/0/0", derive)
		require.NoError(t, err)
		assert.Equal(t, addr, got)
	}
	assert.Equal(t, 1, calls)

	_, err = c.Resolve(ctx, "nano", "44'/60'/0'/0/1", func(context.Context, string) (string, error) {
		return "", errors.New("device gone")
	})
	assert.EqualError(t, err, "device gone")
	_, ok, err := c.Get("nano", "44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Persistent(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, c.Put("nano", "44'/60'/0'/0/0", addr))
	require.NoError(t, c.Close())

	c, err = Open(dir, 4)
	require.NoError(t, err)
	defer c.Close()
	got, ok, err := c.Get("nano", "44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, addr, got)
}
