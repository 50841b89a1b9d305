package masterpassword

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

// ForceSetPasswordReason records why the user must set a new password
// before the vault can be used.
type ForceSetPasswordReason int

const (
	ReasonNone ForceSetPasswordReason = iota
	ReasonAdminForcePasswordReset
	ReasonWeakMasterPassword
	ReasonTdeUserWithoutPasswordHasPasswordResetPermission
	ReasonTdeOffboarding
)

func (r ForceSetPasswordReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAdminForcePasswordReset:
		return "admin-force-password-reset"
	case ReasonWeakMasterPassword:
		return "weak-master-password"
	case ReasonTdeUserWithoutPasswordHasPasswordResetPermission:
		return "tde-user-without-password"
	case ReasonTdeOffboarding:
		return "tde-offboarding"
	default:
		return fmt.Sprintf("ForceSetPasswordReason(%d)", int(r))
	}
}

// ForceSetPasswordReason returns the stored reason, ReasonNone when unset.
func (s *Service) ForceSetPasswordReason(user uuid.UUID) (ForceSetPasswordReason, error) {
	r, _, err := state.Get[ForceSetPasswordReason](s.state, user, forceSetReasonDef)
	return r, err
}

// SetForceSetPasswordReason stores r. ReasonNone removes the entry.
func (s *Service) SetForceSetPasswordReason(user uuid.UUID, r ForceSetPasswordReason) error {
	if r == ReasonNone {
		return s.state.Remove(user, forceSetReasonDef)
	}
	return state.Set(s.state, user, forceSetReasonDef, r)
}
