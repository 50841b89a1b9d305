package unlock

import (
	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

var everUnlockedDef = state.Define("unlock.everBeenUnlocked", state.Memory, state.ClearOnLogout)

// Session is the per-user context owned by a Machine: who is unlocking, the
// live user key and the failure counter of the current locked period.
type Session struct {
	User  uuid.UUID
	Email string
	Key   *KeyCell

	state       State
	pinFailures int
}

// NewSession starts a locked session for user.
func NewSession(user uuid.UUID, email string) *Session {
	return &Session{User: user, Email: email, Key: NewKeyCell(), state: Locked}
}
