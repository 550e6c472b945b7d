// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package deviceerr normalizes the error values produced by signing devices
// and their transports into a single error type.
//
// Every error leaving a device action passes through Normalize exactly once.
// Callers branch on the result with the pure predicates of this package,
// e.g. IsUserRejection, or with Classify.
package deviceerr // import "github.com/zeriontech/hardware-wallet-connection/deviceerr"

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// UnknownMessage is the message of errors whose value carried none.
const UnknownMessage = "Unknown error"

// Error is a normalized device error. Code holds the device status word in
// hex if known, Tag the error class reported by the device stack.
type Error struct {
	Message string
	Code    string
	Tag     string
}

// Error renders the error as
//  LedgerError: <message> (error code: <code>) (tag: <tag>)
// leaving out the code and tag groups if they are empty. Normalize parses this
// form back into an equal value.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("LedgerError: ")
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " (error code: %s)", e.Code)
	}
	if e.Tag != "" {
		fmt.Fprintf(&b, " (tag: %s)", e.Tag)
	}
	return b.String()
}

// ErrorCode returns the device status word.
func (e *Error) ErrorCode() string { return e.Code }

// ErrorTag returns the error class.
func (e *Error) ErrorTag() string { return e.Tag }

// Raw is the structured error shape of device stacks. It is accepted by
// Normalize.
type Raw struct {
	Message       string `json:"message,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Tag           string `json:"_tag,omitempty"`
	OriginalError *Raw   `json:"originalError,omitempty"`
}

// Error implements the error interface so Raw values can travel as errors.
func (r *Raw) Error() string {
	if r.Message == "" {
		return UnknownMessage
	}
	return r.Message
}

var ledgerErrorPattern = regexp.MustCompile(
	`^LedgerError:\s*(.+?)(?:\s*\(error code:\s*(.+?)\))?(?:\s*\(tag:\s*(.+?)\))?$`)

// Normalize converts an error value of any shape into an *Error. It never
// fails and never panics. Accepted shapes are the rendered string form of
// Error, other strings, *Error (also wrapped), Raw, decoded JSON objects,
// values with ErrorCode or Tag methods and plain errors. Everything else
// yields an Error with the UnknownMessage.
func Normalize(raw interface{}) *Error {
	switch v := raw.(type) {
	case nil:
		return &Error{Message: UnknownMessage}
	case *Error:
		if v == nil {
			return &Error{Message: UnknownMessage}
		}
		return v
	case Error:
		return &v
	case string:
		return parse(v)
	case Raw:
		return fromRaw(&v)
	case *Raw:
		if v == nil {
			return &Error{Message: UnknownMessage}
		}
		return fromRaw(v)
	case map[string]interface{}:
		return fromMap(v)
	case error:
		return fromError(v)
	case fmt.Stringer:
		return parse(v.String())
	}
	return &Error{Message: UnknownMessage}
}

func parse(s string) *Error {
	m := ledgerErrorPattern.FindStringSubmatch(s)
	if m == nil {
		if s == "" {
			s = UnknownMessage
		}
		return &Error{Message: s}
	}
	return &Error{
		Message: strings.TrimSpace(m[1]),
		Code:    m[2],
		Tag:     m[3],
	}
}

func fromRaw(r *Raw) *Error {
	e := &Error{Message: r.Message, Code: r.ErrorCode, Tag: r.Tag}
	if e.Message == "" {
		e.Message = UnknownMessage
	}
	if e.Code == "" && r.OriginalError != nil {
		e.Code = r.OriginalError.ErrorCode
	}
	return e
}

func fromMap(m map[string]interface{}) *Error {
	e := &Error{
		Message: stringField(m, "message"),
		Code:    stringField(m, "errorCode"),
		Tag:     stringField(m, "_tag"),
	}
	if e.Message == "" {
		e.Message = UnknownMessage
	}
	if e.Code == "" {
		if orig, ok := m["originalError"].(map[string]interface{}); ok {
			e.Code = stringField(orig, "errorCode")
		}
	}
	if e.Tag == "" {
		e.Tag = stringField(m, "tag")
	}
	return e
}

// stringField reads a string or number valued key. Numbers are status words
// in decimal, as transports report statusCode, and are rendered as four hex
// digits: 27013 becomes "6985". A number written as 6985 is read as the
// decimal 6985, not as the code 6985.
func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return statusString(int64(v))
	case int:
		return statusString(int64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return statusString(n)
		}
		return v.String()
	}
	return ""
}

func statusString(sw int64) string {
	return fmt.Sprintf("%04x", sw)
}

type (
	coder  interface{ ErrorCode() string }
	tagger interface{ Tag() string }
	// originalErrorer exposes the error wrapped by a device stack.
	originalErrorer interface{ OriginalError() error }
)

func fromError(err error) *Error {
	var ne *Error
	if errors.As(err, &ne) && ne != nil {
		return ne
	}
	var raw *Raw
	if errors.As(err, &raw) && raw != nil {
		return fromRaw(raw)
	}

	msg := err.Error()
	if strings.HasPrefix(msg, "LedgerError:") {
		return parse(msg)
	}
	e := &Error{Message: msg}
	if e.Message == "" {
		e.Message = UnknownMessage
	}
	var c coder
	if errors.As(err, &c) {
		e.Code = c.ErrorCode()
	}
	var o originalErrorer
	if e.Code == "" && errors.As(err, &o) {
		if c, ok := o.OriginalError().(coder); ok {
			e.Code = c.ErrorCode()
		}
	}
	var t tagger
	if errors.As(err, &t) {
		e.Tag = t.Tag()
	}
	return e
}

// Rejected returns the error of a user rejecting an action on the device.
func Rejected() *Error {
	return &Error{Message: "Condition not satisfied", Code: CodeUserRejected, Tag: "EthAppCommandError"}
}

// Malformed returns an input validation error. Such errors are raised before
// any device interaction.
func Malformed(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Tag: TagMalformedInput}
}

// Disconnected returns the error for a missing or lost device connection.
func Disconnected() *Error {
	return &Error{Message: "Device disconnected", Tag: TagDisconnectedDevice}
}

// FromStatus returns the error for an APDU status word.
func FromStatus(sw uint16, message string) *Error {
	if message == "" {
		message = statusMessages[sw]
	}
	if message == "" {
		message = fmt.Sprintf("Unexpected status word %04x", sw)
	}
	return &Error{Message: message, Code: fmt.Sprintf("%04x", sw), Tag: "DeviceExchangeError"}
}

var statusMessages = map[uint16]string{
	0x6985: "Condition not satisfied",
	0x5515: "Device is locked",
	0x6d00: "Invalid instruction",
	0x6e00: "Invalid class",
	0x6e01: "App not open",
	0x6a80: "Invalid data",
	0x6a84: "Not enough memory space",
	0x6b00: "Incorrect parameters",
	0x6f01: "Previous action unfinished",
}
