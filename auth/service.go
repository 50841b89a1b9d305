package auth

import (
	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

var masterPasswordPolicyDef = state.Define("policy.masterPassword", state.Disk, state.ClearOnLogout)

// PolicyService stores the master-password policy last reported by the
// server for each user.
type PolicyService struct {
	state *state.Provider
}

// NewPolicyService returns a PolicyService backed by p.
func NewPolicyService(p *state.Provider) *PolicyService {
	return &PolicyService{state: p}
}

// MasterPasswordPolicyOptions returns the stored policy, or nil.
func (s *PolicyService) MasterPasswordPolicyOptions(user uuid.UUID) (*PolicyOptions, error) {
	opts, ok, err := state.Get[PolicyOptions](s.state, user, masterPasswordPolicyDef)
	if err != nil || !ok {
		return nil, err
	}
	return &opts, nil
}

// SetMasterPasswordPolicyOptions replaces the stored policy. nil clears it.
func (s *PolicyService) SetMasterPasswordPolicyOptions(user uuid.UUID, opts *PolicyOptions) error {
	if opts == nil {
		return s.state.Remove(user, masterPasswordPolicyDef)
	}
	return state.Set(s.state, user, masterPasswordPolicyDef, *opts)
}

// EvaluateMasterPassword reports whether pw meets opts.
func (s *PolicyService) EvaluateMasterPassword(score int, pw string, opts *PolicyOptions) bool {
	return EvaluateMasterPassword(score, pw, opts)
}
