// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package future

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFuture_SettleOnce tests that only the first settlement is observed.
func TestFuture_SettleOnce(t *testing.T) {
	t.Parallel()

	f := New[int]()
	_, _, ok := f.Result()
	assert.False(t, ok, "fresh future must be unsettled")

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Reject(errors.New("late")))
	assert.False(t, f.Resolve(2))

	v, err, ok := f.Result()
	require.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
}

// TestFuture_Await tests that Await respects both settlement and context.
func TestFuture_Await(t *testing.T) {
	t.Parallel()

	f := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	_, _, ok := f.Result()
	assert.False(t, ok, "context expiry must not settle the future")

	go f.Reject(errors.New("device gone"))
	_, err = f.Await(context.Background())
	assert.EqualError(t, err, "device gone")
}
