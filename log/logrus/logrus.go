// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package logrus provides the adapter from sirupsen/logrus to the framework
// logger interface.
package logrus // import "github.com/zeriontech/hardware-wallet-connection/log/logrus"

import (
	"github.com/sirupsen/logrus"

	"github.com/zeriontech/hardware-wallet-connection/log"
)

// Logger wraps a logrus entry so that the field methods return framework
// loggers.
type Logger struct {
	*logrus.Entry
}

var _ log.Logger = (*Logger)(nil)

// Set sets a logrus logger with the given level and formatter as the
// framework logger.
func Set(level logrus.Level, formatter logrus.Formatter) {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	log.Set(FromLogrus(logger))
}

// FromLogrus creates a framework logger from a logrus logger.
func FromLogrus(l *logrus.Logger) *Logger {
	return &Logger{logrus.NewEntry(l)}
}

// ParseLevel parses a level name, falling back to info on unknown names.
func ParseLevel(name string) logrus.Level {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Formatter returns the text formatter or, if json is set, the JSON formatter.
func Formatter(json bool) logrus.Formatter {
	if json {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}

// WithField calls WithField on the wrapped entry.
func (l *Logger) WithField(key string, value interface{}) log.Logger {
	return &Logger{l.Entry.WithField(key, value)}
}

// WithFields calls WithFields on the wrapped entry.
func (l *Logger) WithFields(fs log.Fields) log.Logger {
	return &Logger{l.Entry.WithFields(logrus.Fields(fs))}
}

// WithError calls WithError on the wrapped entry.
func (l *Logger) WithError(err error) log.Logger {
	return &Logger{l.Entry.WithError(err)}
}
