package unlock

import "fmt"

// State is the position of a session in the unlock flow.
type State int

const (
	// Locked waits for a credential.
	Locked State = iota
	// Verifying is held while a credential is being checked.
	Verifying
	// Unlocked means the user key is installed.
	Unlocked
	// PasswordChangeRequired means the user key is installed but the master
	// password failed the enforced policy and must be changed first.
	PasswordChangeRequired
	// LoggedOut is terminal; user state has been cleared.
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Verifying:
		return "verifying"
	case Unlocked:
		return "unlocked"
	case PasswordChangeRequired:
		return "password-change-required"
	case LoggedOut:
		return "logged-out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// HasKey reports whether the user key is installed in s.
func (s State) HasKey() bool {
	return s == Unlocked || s == PasswordChangeRequired
}
