package unlock

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLocked is returned when a credential is submitted outside the
	// Locked state.
	ErrNotLocked = errors.New("session is not locked")
	// ErrLoggedOut is returned for any operation after logout.
	ErrLoggedOut = errors.New("session is logged out")
	// ErrLocked is returned when the user key is read while locked.
	ErrLocked = errors.New("vault is locked")
)

// MaxPinAttempts is the number of consecutive PIN failures that forces a
// logout.
const MaxPinAttempts = 5

// FailureKind is the user-facing category of a failed unlock.
type FailureKind int

const (
	InvalidCredential FailureKind = iota + 1
	MethodUnavailable
	NetworkUnavailable
	TooManyAttempts
	Internal
)

// Failure is the only error Submit returns for a failed verification. It
// carries a fixed message; the underlying cause is logged, not exposed.
type Failure struct {
	Kind   FailureKind
	Method Method
	// Remaining is the number of PIN attempts left before logout.
	Remaining int
}

func (f *Failure) Error() string {
	switch f.Kind {
	case InvalidCredential:
		switch f.Method {
		case MethodMasterPassword:
			return "Invalid master password."
		case MethodPIN:
			return "Invalid PIN."
		case MethodBiometrics:
			return "Biometric unlock failed."
		}
		return "Invalid credential."
	case MethodUnavailable:
		return fmt.Sprintf("Unlock with %s is not available.", f.Method)
	case NetworkUnavailable:
		return "Could not reach the server. Try again."
	case TooManyAttempts:
		return "Too many failed PIN attempts. You have been logged out."
	case Internal:
		return "An unexpected error occurred."
	default:
		panic(fmt.Sprintf("unlock: unknown failure kind %d", int(f.Kind)))
	}
}

// IsFailure reports whether err is a *Failure of kind k.
func IsFailure(err error, k FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == k
}
