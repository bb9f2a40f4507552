package utils

import (
	"errors"
	"fmt"
)

// ErrorClass groups failures by what the caller can do about them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassResource
	ClassTiming
	ClassIdempotency
	ClassAdministrative
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassResource:
		return "resource"
	case ClassTiming:
		return "timing"
	case ClassIdempotency:
		return "idempotency"
	case ClassAdministrative:
		return "administrative"
	default:
		return "internal"
	}
}

// Retryable reports whether the same call may succeed later without a
// privilege change.
func (c ErrorClass) Retryable() bool {
	return c == ClassResource || c == ClassTiming
}

// NetworkError is a classified sentinel. Call sites wrap it with fmt.Errorf
// and %w to attach context; errors.Is keeps matching the sentinel.
type NetworkError struct {
	Class ErrorClass
	Code  string
	msg   string
}

func NewNetworkError(class ErrorClass, code, msg string) *NetworkError {
	return &NetworkError{Class: class, Code: code, msg: msg}
}

func (e *NetworkError) Error() string {
	return e.msg
}

var (
	ErrUnknownNode           = NewNetworkError(ClassValidation, "UnknownNode", "unknown node")
	ErrUnknownAction         = NewNetworkError(ClassValidation, "UnknownAction", "unknown action")
	ErrAlreadyRegistered     = NewNetworkError(ClassValidation, "AlreadyRegistered", "owner already registered")
	ErrUnknownParameter      = NewNetworkError(ClassValidation, "UnknownParameter", "unknown parameter")
	ErrInvalidParameter      = NewNetworkError(ClassValidation, "InvalidParameter", "invalid parameter value")
	ErrInvalidAmount         = NewNetworkError(ClassValidation, "InvalidAmount", "invalid amount")
	ErrUnknownCycle          = NewNetworkError(ClassValidation, "UnknownCycle", "unknown cycle")
	ErrInsufficientBalance   = NewNetworkError(ClassResource, "InsufficientBalance", "insufficient balance")
	ErrInsufficientStake     = NewNetworkError(ClassResource, "InsufficientStake", "insufficient stake")
	ErrInsufficientInfluence = NewNetworkError(ClassResource, "InsufficientInfluence", "insufficient influence")
	ErrCycleStillActive      = NewNetworkError(ClassTiming, "CycleStillActive", "cycle still active")
	ErrNoSealedCycle         = NewNetworkError(ClassTiming, "NoSealedCycle", "no sealed cycle")
	ErrCycleNotSealed        = NewNetworkError(ClassTiming, "CycleNotSealed", "cycle not sealed")
	ErrAlreadyClaimed        = NewNetworkError(ClassIdempotency, "AlreadyClaimed", "reward already claimed")
	ErrUnauthorized          = NewNetworkError(ClassAdministrative, "Unauthorized", "unauthorized")
	ErrContractPaused        = NewNetworkError(ClassAdministrative, "ContractPaused", "contract paused")
	ErrArithmeticOverflow    = NewNetworkError(ClassInternal, "ArithmeticOverflow", "arithmetic overflow")
	ErrNotInitialized        = NewNetworkError(ClassInternal, "NotInitialized", "network state not initialized")
	ErrAlreadyInitialized    = NewNetworkError(ClassValidation, "AlreadyInitialized", "network state already initialized")
)

// ClassOf returns the class of the first NetworkError in err's chain.
// Unclassified errors are internal.
func ClassOf(err error) ErrorClass {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Class
	}
	return ClassInternal
}

// CodeOf returns the stable error code used on the wire, or "Internal".
func CodeOf(err error) string {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return "Internal"
}

func IsRetryable(err error) bool {
	return err != nil && ClassOf(err).Retryable()
}

// Wrapf annotates a sentinel with formatted context.
func Wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
