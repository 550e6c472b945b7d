// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNone(t *testing.T) {
	assert.Same(t, None, None.WithField("a", 1))
	assert.Same(t, None, None.WithFields(Fields{"a": 1}))
	assert.Same(t, None, None.WithError(nil))
	assert.NotPanics(t, func() { None.Warnf("invisible %d", 1) })
	assert.Panics(t, func() { None.Panic("visible") })
}

func TestSet(t *testing.T) {
	defer Set(nil)

	Set(nil)
	assert.Equal(t, Logger(None), Get(), "nil resets to None")
}
