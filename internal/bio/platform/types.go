// Package platform is the operating-system side of biometric unlock: a
// biometric prompt and secure storage for the biometric key.
package platform

import "errors"

var (
	// ErrUnsupported signals that biometrics are not available on this platform.
	ErrUnsupported = errors.New("biometric unlock not supported on this platform")
	// ErrCancelled is returned when the user or system dismissed the prompt.
	ErrCancelled = errors.New("biometric prompt cancelled")
	// ErrNotFound is returned when no key is stored for a user.
	ErrNotFound = errors.New("biometric key not found")
)

const defaultService = "com.vaultlock.biometric"

// Native is the platform bridge for the running OS.
type Native struct {
	service string
}

// New returns a bridge storing keys under the secure-storage service name.
// An empty name selects the default.
func New(service string) *Native {
	if service == "" {
		service = defaultService
	}
	return &Native{service: service}
}
