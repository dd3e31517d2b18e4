package engine

import (
	"errors"
	"fmt"
)

// ContractError reports a misuse of the Machine API.
//
// Contract errors are programmer errors, not runtime conditions: the engine
// panics with a *ContractError instead of returning it. Collaborator failures
// (a failed fetch, a failed mutation call) never surface this way; handlers
// turn them into error-bearing states.
type ContractError struct {
	// Code identifies the violated contract.
	Code ContractErrorCode

	// Message is a human-readable description.
	Message string

	// MachineID identifies the machine the violation happened on, if known.
	MachineID string
}

// ContractErrorCode categorizes contract violations.
type ContractErrorCode string

const (
	// ErrCodeSpecAlreadySet indicates Spec was called twice on one machine.
	ErrCodeSpecAlreadySet ContractErrorCode = "SPEC_ALREADY_SET"

	// ErrCodeSpecNotSet indicates Dispatch or States was used before Spec.
	ErrCodeSpecNotSet ContractErrorCode = "SPEC_NOT_SET"

	// ErrCodeNoSubscriber indicates Dispatch was called while nobody
	// collects the machine's states.
	ErrCodeNoSubscriber ContractErrorCode = "NO_SUBSCRIBER"

	// ErrCodeConcurrentSubscriber indicates a second subscriber tried to
	// attach while one is active.
	ErrCodeConcurrentSubscriber ContractErrorCode = "CONCURRENT_SUBSCRIBER"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.MachineID != "" {
		return fmt.Sprintf("%s: %s (machine=%s)", e.Code, e.Message, e.MachineID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsContractError reports whether err is a *ContractError with the given code.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error, code ContractErrorCode) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// RecoverContractError converts a recovered panic value back into a
// *ContractError. It returns nil for anything else.
//
//	defer func() {
//	    if ce := engine.RecoverContractError(recover()); ce != nil { ... }
//	}()
func RecoverContractError(v any) *ContractError {
	if v == nil {
		return nil
	}
	err, ok := v.(error)
	if !ok {
		return nil
	}
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

func newContractError(code ContractErrorCode, machineID, message string) *ContractError {
	return &ContractError{
		Code:      code,
		Message:   message,
		MachineID: machineID,
	}
}

const specNotSetMessage = `no state machine spec is defined; call Spec before using the machine:

	m := engine.New[State, Event](initial)
	m.Spec(func(s *engine.Spec[State, Event]) {
	    engine.InState[Loading](s, func(b *engine.Block[Loading, State, Event]) {
	        b.OnEnter(load)
	    })
	})`
