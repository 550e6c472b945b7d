// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package atomic contains atomic flags.
package atomic // import "github.com/zeriontech/hardware-wallet-connection/pkg/sync/atomic"

import "sync/atomic"

// Bool is an atomic boolean flag. The zero value is false.
type Bool int32

// IsSet returns whether the flag is set.
func (b *Bool) IsSet() bool { return atomic.LoadInt32((*int32)(b)) != 0 }

// Set sets the flag.
func (b *Bool) Set() { atomic.StoreInt32((*int32)(b), 1) }

// TrySet sets the flag and returns whether it was unset before.
func (b *Bool) TrySet() bool { return atomic.SwapInt32((*int32)(b), 1) == 0 }

// Unset clears the flag.
func (b *Bool) Unset() { atomic.StoreInt32((*int32)(b), 0) }
