package masterpassword

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/vaultlock/auth"
	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
)

// ChangeRequest describes a master password change.
type ChangeRequest struct {
	Current string
	New     string
	Hint    string
	// Validate tunes the checks applied to New.
	Validate auth.ValidateOptions
}

// ChangePassword verifies the current password, validates the new one,
// rewraps the user key under the new master key and posts the change. The
// stored wrapped key, local hash and force-set reason are updated only after
// the server accepts, wrapped key first so the local hash never outruns it.
func (s *Service) ChangePassword(ctx context.Context, user uuid.UUID, req ChangeRequest) error {
	if s.api == nil {
		return errors.New("changing the master password requires a server connection")
	}
	if req.Current == req.New {
		return fmt.Errorf("%w: new password must differ from the current one", auth.ErrPolicyViolation)
	}

	material, err := s.unlockMaterial(user)
	if err != nil {
		return err
	}
	oldKey, err := s.DeriveMasterKey(req.Current, material.Salt, material.Kdf)
	if err != nil {
		return err
	}
	defer oldKey.Wipe()
	uk, err := s.DecryptUserKeyWithMasterKey(oldKey, material.MasterKeyWrappedUserKey)
	if err != nil {
		return ErrInvalidMasterPassword
	}
	defer uk.Wipe()

	if req.Validate.Email == "" {
		req.Validate.Email = material.Salt
	}
	if err := auth.ValidateMasterPasswordAdvanced(ctx, req.New, req.Validate); err != nil {
		return err
	}

	newKey, err := s.DeriveMasterKey(req.New, material.Salt, material.Kdf)
	if err != nil {
		return err
	}
	defer newKey.Wipe()
	wrapped, err := keys.WrapUserKey(uk, newKey)
	if err != nil {
		return fmt.Errorf("wrap user key: %w", err)
	}

	oldHash, err := keys.HashMasterKey(oldKey, req.Current, keys.ServerAuthorization)
	if err != nil {
		return err
	}
	newHash, err := keys.HashMasterKey(newKey, req.New, keys.ServerAuthorization)
	if err != nil {
		return err
	}
	err = api.PostPassword(ctx, s.api, api.PasswordRequest{
		MasterPasswordHash:    oldHash,
		NewMasterPasswordHash: newHash,
		MasterPasswordHint:    req.Hint,
		Key:                   wrapped.String(),
	})
	if errors.Is(err, api.ErrInvalidCredential) {
		return ErrInvalidMasterPassword
	}
	if err != nil {
		return fmt.Errorf("post password: %w", err)
	}

	if err := s.options.SetMasterKeyWrappedUserKey(user, wrapped); err != nil {
		return fmt.Errorf("store rewrapped user key: %w", err)
	}
	local, err := keys.HashMasterKey(newKey, req.New, keys.LocalAuthorization)
	if err != nil {
		return err
	}
	if err := s.SetMasterKeyHash(user, local); err != nil {
		return err
	}
	if err := s.SetForceSetPasswordReason(user, ReasonNone); err != nil {
		return err
	}
	s.log.Info().Str("user", user.String()).Msg("master password changed")
	return nil
}
