// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"os"
)

// None is the non-logging logger. Fatal* and Panic* still exit and panic.
var None = &none{}

type none struct{}

var _ Logger = (*none)(nil)

func (none) Printf(string, ...interface{}) {}
func (none) Print(...interface{})          {}
func (none) Println(...interface{})        {}

func (none) Fatalf(string, ...interface{}) { os.Exit(1) }
func (none) Fatal(...interface{})          { os.Exit(1) }
func (none) Fatalln(...interface{})        { os.Exit(1) }

func (none) Panicf(format string, args ...interface{}) { panic(fmt.Sprintf(format, args...)) }
func (none) Panic(args ...interface{})                 { panic(fmt.Sprint(args...)) }
func (none) Panicln(args ...interface{})               { panic(fmt.Sprintln(args...)) }

func (none) Tracef(string, ...interface{}) {}
func (none) Debugf(string, ...interface{}) {}
func (none) Infof(string, ...interface{})  {}
func (none) Warnf(string, ...interface{})  {}
func (none) Errorf(string, ...interface{}) {}

func (none) Trace(...interface{}) {}
func (none) Debug(...interface{}) {}
func (none) Info(...interface{})  {}
func (none) Warn(...interface{})  {}
func (none) Error(...interface{}) {}

func (none) Traceln(...interface{}) {}
func (none) Debugln(...interface{}) {}
func (none) Infoln(...interface{})  {}
func (none) Warnln(...interface{})  {}
func (none) Errorln(...interface{}) {}

func (n *none) WithField(string, interface{}) Logger { return n }
func (n *none) WithFields(Fields) Logger             { return n }
func (n *none) WithError(error) Logger               { return n }
