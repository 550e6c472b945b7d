// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package deviceerr

import "strings"

// Status words used as classification criteria.
const (
	CodeUserRejected     = "6985"
	CodeUnfinishedAction = "6f01"
	CodeDeviceLocked     = "5515"
	CodeInvalidIns       = "6d00"
	CodeInvalidCla       = "6e00"
	CodeAppNotOpen       = "6e01"
)

// Tags used as classification criteria.
const (
	TagMalformedInput                 = "MalformedInput"
	TagDeviceLocked                   = "DeviceLockedError"
	TagTransportError                 = "TransportError"
	TagTransportOpenUserCancelled     = "TransportOpenUserCancelled"
	TagTransportInterfaceNotAvailable = "TransportInterfaceNotAvailable"
	TagDeviceNotRecognized            = "DeviceNotRecognizedError"
	TagDeviceDisconnected             = "DeviceDisconnectedError"
	TagDisconnectedDevice             = "DisconnectedDevice"
)

// Kind is the class of a normalized error.
type Kind int

// Error kinds, as returned by Classify.
const (
	Unknown Kind = iota
	UserRejected
	DeviceBusy
	DeviceLocked
	AppNotOpen
	TransportFault
	MalformedInput
)

func (k Kind) String() string {
	switch k {
	case UserRejected:
		return "UserRejected"
	case DeviceBusy:
		return "DeviceBusy"
	case DeviceLocked:
		return "DeviceLocked"
	case AppNotOpen:
		return "AppNotOpen"
	case TransportFault:
		return "TransportFault"
	case MalformedInput:
		return "MalformedInput"
	}
	return "Unknown"
}

// hasCode compares status words exactly, ignoring the case of hex digits.
func hasCode(e *Error, codes ...string) bool {
	if e == nil || e.Code == "" {
		return false
	}
	for _, c := range codes {
		if strings.EqualFold(e.Code, c) {
			return true
		}
	}
	return false
}

func hasTag(e *Error, tags ...string) bool {
	if e == nil || e.Tag == "" {
		return false
	}
	for _, t := range tags {
		if e.Tag == t {
			return true
		}
	}
	return false
}

// IsUserRejection returns whether the user declined the action on the device.
func IsUserRejection(e *Error) bool { return hasCode(e, CodeUserRejected) }

// IsUnfinishedAction returns whether a previous action is still outstanding
// on the device.
func IsUnfinishedAction(e *Error) bool { return hasCode(e, CodeUnfinishedAction) }

// IsDeviceLocked returns whether the device must be unlocked first.
func IsDeviceLocked(e *Error) bool {
	return hasCode(e, CodeDeviceLocked) || hasTag(e, TagDeviceLocked)
}

// IsAppNotOpen returns whether the required device app is not running.
func IsAppNotOpen(e *Error) bool {
	return hasCode(e, CodeInvalidIns, CodeInvalidCla, CodeAppNotOpen)
}

// IsTransportFault returns whether the connection to the device failed.
func IsTransportFault(e *Error) bool {
	return hasTag(e,
		TagTransportError,
		TagTransportOpenUserCancelled,
		TagTransportInterfaceNotAvailable,
		TagDeviceNotRecognized,
		TagDeviceDisconnected,
		TagDisconnectedDevice)
}

// IsDisconnected returns whether the device is gone.
func IsDisconnected(e *Error) bool {
	return hasTag(e, TagDeviceDisconnected, TagDisconnectedDevice)
}

// IsMalformedInput returns whether the error was raised by input validation.
func IsMalformedInput(e *Error) bool { return hasTag(e, TagMalformedInput) }

// Classify normalizes err and returns its kind.
func Classify(err interface{}) Kind {
	e := Normalize(err)
	switch {
	case IsMalformedInput(e):
		return MalformedInput
	case IsUserRejection(e):
		return UserRejected
	case IsUnfinishedAction(e):
		return DeviceBusy
	case IsDeviceLocked(e):
		return DeviceLocked
	case IsAppNotOpen(e):
		return AppNotOpen
	case IsTransportFault(e):
		return TransportFault
	}
	return Unknown
}

// Describe returns a hint for the user on how to resolve err.
func Describe(err interface{}) string {
	e := Normalize(err)
	switch Classify(e) {
	case UserRejected:
		return "The action was rejected on the device"
	case DeviceBusy:
		return "Another action is still pending on the device. Finish or cancel it and try again"
	case DeviceLocked:
		return "Please unlock your device"
	case AppNotOpen:
		if strings.EqualFold(e.Code, CodeInvalidIns) {
			return "Please make sure that your ledger device is unlocked and Ethereum app is running"
		}
		return "Please make sure Ethereum app is running on the device"
	case TransportFault:
		switch e.Tag {
		case TagTransportOpenUserCancelled:
			return "No device selected"
		case TagTransportInterfaceNotAvailable:
			return "Device not available. If your device is currently being used by another app, try disconnecting it from that app"
		}
		return "Connection error. Try reconnecting your ledger device"
	case MalformedInput:
		return e.Message
	}
	return e.Error()
}
