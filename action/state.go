// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package action

import "fmt"

// Status is the variant of a State.
type Status int

// Device action statuses. Stopped, Completed and Error are terminal.
const (
	StatusNotStarted Status = iota
	StatusPending
	StatusStopped
	StatusCompleted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NotStarted"
	case StatusPending:
		return "Pending"
	case StatusStopped:
		return "Stopped"
	case StatusCompleted:
		return "Completed"
	case StatusError:
		return "Error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal returns whether no state may follow a state with this status.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusError
}

// Interaction is the user or device interaction a pending action waits for.
// The set is open: unknown values are passed on unchanged.
type Interaction string

// Known interactions.
const (
	InteractionNone                        Interaction = "none"
	InteractionUnlockDevice                Interaction = "unlock-device"
	InteractionAllowSecureConnection       Interaction = "allow-secure-connection"
	InteractionConfirmOpenApp              Interaction = "confirm-open-app"
	InteractionSignTransaction             Interaction = "sign-transaction"
	InteractionSignTypedData               Interaction = "sign-typed-data"
	InteractionSignPersonalMessage         Interaction = "sign-personal-message"
	InteractionVerifyAddress               Interaction = "verify-address"
	InteractionAllowListApps               Interaction = "allow-list-apps"
	InteractionSignDelegationAuthorization Interaction = "sign-delegation-authorization"
	InteractionWeb3ChecksOptIn             Interaction = "web3-checks-opt-in"
	InteractionVerifySafeAddress           Interaction = "verify-safe-address"
)

// State is one observation of a device action. Only the fields belonging to
// Status are meaningful.
type State[T any] struct {
	Status      Status
	Interaction Interaction // StatusPending
	Output      T           // StatusCompleted
	Err         interface{} // StatusError, raw error of any shape
}

// NotStarted is the state of a registered action the device did not pick up
// yet.
func NotStarted[T any]() State[T] { return State[T]{Status: StatusNotStarted} }

// Pending is the state of an action waiting for interaction i.
func Pending[T any](i Interaction) State[T] {
	return State[T]{Status: StatusPending, Interaction: i}
}

// Stopped is the state of an action that ended without output or error.
func Stopped[T any]() State[T] { return State[T]{Status: StatusStopped} }

// Completed is the state of an action that produced out.
func Completed[T any](out T) State[T] {
	return State[T]{Status: StatusCompleted, Output: out}
}

// Error is the state of a failed action.
func Error[T any](raw interface{}) State[T] {
	return State[T]{Status: StatusError, Err: raw}
}

// Terminal returns whether s ends the action.
func (s State[T]) Terminal() bool { return s.Status.Terminal() }
