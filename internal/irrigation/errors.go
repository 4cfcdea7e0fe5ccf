package irrigation

import (
	"errors"
	"fmt"
)

// Domain errors for the irrigation package.
//
// The API layer maps them to status codes with errors.Is:
//
//	if errors.Is(err, irrigation.ErrValidation) {
//	    // 400
//	}
var (
	// ErrValidation is returned for input that is rejected before any
	// mutation, such as a moisture value outside [0, 100].
	ErrValidation = errors.New("irrigation: validation failed")

	// ErrInvalidAction is returned when an action is not ON or OFF.
	ErrInvalidAction = fmt.Errorf("%w: action must be ON or OFF", ErrValidation)

	// ErrInvalidTrigger is returned when a trigger is not manual or auto.
	ErrInvalidTrigger = fmt.Errorf("%w: trigger must be manual or auto", ErrValidation)

	// ErrDeviceNotFound is returned when no active device matches the caller.
	ErrDeviceNotFound = errors.New("irrigation: device not found")

	// ErrConflict is returned when a concurrent CurrentStatus write was
	// detected and the retry budget is exhausted. Safe to retry.
	ErrConflict = errors.New("irrigation: concurrent update conflict")

	// ErrPersistence is returned when the store fails. Nothing of the
	// failed operation is committed.
	ErrPersistence = errors.New("irrigation: persistence failure")

	// errStatusNotFound is internal: the status row is created lazily.
	errStatusNotFound = errors.New("irrigation: status not found")
)
