// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package logrus

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeriontech/hardware-wallet-connection/log"
)

func TestFromLogrus_Fields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	l := FromLogrus(logger).
		WithField("component", "queue").
		WithFields(log.Fields{"session": "abc"}).
		WithError(errors.New("boom"))
	l.Warnf("active calls: %d", 2)

	require.Len(t, hook.Entries, 1)
	e := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, e.Level)
	assert.Equal(t, "active calls: 2", e.Message)
	assert.Equal(t, "queue", e.Data["component"])
	assert.Equal(t, "abc", e.Data["session"])
	assert.EqualError(t, e.Data[logrus.ErrorKey].(error), "boom")
}

func TestSet(t *testing.T) {
	defer log.Set(nil)

	Set(logrus.DebugLevel, Formatter(true))
	l, ok := log.Get().(*Logger)
	require.True(t, ok, "Set must install a logrus logger")
	assert.Equal(t, logrus.DebugLevel, l.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Logger.Formatter)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}
