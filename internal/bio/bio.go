// Package bio implements biometric unlock: a random biometric key held in
// platform secure storage wraps the user key, and releasing it requires a
// successful OS biometric prompt.
package bio

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/bio/platform"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

var (
	// ErrNotEnabled is returned when biometric unlock is off for the user.
	ErrNotEnabled = errors.New("biometric unlock is not enabled")
	// ErrFailed covers every failed or cancelled biometric unlock.
	ErrFailed = errors.New("biometric unlock failed")
)

var (
	unlockEnabledDef    = state.Define("bio.biometricUnlockEnabled", state.Disk, state.ClearOnLogout)
	encryptedUserKeyDef = state.Define("bio.biometricEncryptedUserKey", state.Disk, state.ClearOnLogout)
	promptCancelledDef  = state.Define("bio.promptCancelled", state.Memory, state.ClearOnLogout)
)

// Platform is the OS bridge: biometric prompt plus secure storage.
type Platform interface {
	SupportsBiometric(ctx context.Context) (bool, error)
	SupportsSecureStorage() bool
	IsReady(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, reason string) error
	GetKey(user uuid.UUID) ([]byte, error)
	SetKey(user uuid.UUID, key []byte) error
	DeleteKey(user uuid.UUID) error
	HasKey(user uuid.UUID) (bool, error)
}

var _ Platform = (*platform.Native)(nil)

// Service manages biometric unlock for all users on this device.
type Service struct {
	platform Platform
	state    *state.Provider
	log      zerolog.Logger
}

// NewService wires the service.
func NewService(p Platform, sp *state.Provider, log zerolog.Logger) *Service {
	return &Service{platform: p, state: sp, log: log}
}

// SupportsBiometric reports OS support.
func (s *Service) SupportsBiometric(ctx context.Context) (bool, error) {
	return s.platform.SupportsBiometric(ctx)
}

// SupportsSecureStorage reports whether the platform has secure storage.
func (s *Service) SupportsSecureStorage() bool {
	return s.platform.SupportsSecureStorage()
}

// BiometricUnlockEnabled reports the per-user setting.
func (s *Service) BiometricUnlockEnabled(user uuid.UUID) (bool, error) {
	v, _, err := state.Get[bool](s.state, user, unlockEnabledDef)
	return v, err
}

// HasEncryptedUserKey reports whether both halves of the biometric slot
// exist: the wrapped user key and the key in secure storage.
func (s *Service) HasEncryptedUserKey(_ context.Context, user uuid.UUID) (bool, error) {
	ok, err := s.state.Has(user, encryptedUserKeyDef)
	if err != nil || !ok {
		return false, err
	}
	return s.platform.HasKey(user)
}

// IsBiometricReady reports whether a prompt can be shown right now.
func (s *Service) IsBiometricReady(ctx context.Context, _ uuid.UUID) (bool, error) {
	return s.platform.IsReady(ctx)
}

// PromptCancelled reports whether the user dismissed the prompt during this
// session, which suppresses automatic prompting.
func (s *Service) PromptCancelled(user uuid.UUID) (bool, error) {
	v, _, err := state.Get[bool](s.state, user, promptCancelledDef)
	return v, err
}

// SetPromptCancelled records a dismissed prompt.
func (s *Service) SetPromptCancelled(user uuid.UUID) error {
	return state.Set(s.state, user, promptCancelledDef, true)
}

// ResetPromptCancelled clears the dismissed-prompt flag after an unlock.
func (s *Service) ResetPromptCancelled(user uuid.UUID) error {
	return s.state.Remove(user, promptCancelledDef)
}

// Enable prompts once, stores a fresh biometric key in secure storage and
// the user key wrapped under it.
func (s *Service) Enable(ctx context.Context, user uuid.UUID, userKey keys.UserKey) error {
	if userKey.IsZero() {
		return errors.New("vault must be unlocked to enable biometrics")
	}
	supported, err := s.platform.SupportsBiometric(ctx)
	if err != nil {
		return err
	}
	if !supported {
		return platform.ErrUnsupported
	}
	if err := s.platform.Authenticate(ctx, "Authenticate to enable biometric unlock"); err != nil {
		return fmt.Errorf("biometric authentication: %w", err)
	}

	bk, err := keys.GenerateSymmetricKey()
	if err != nil {
		return err
	}
	defer bk.Wipe()
	wrapped, err := keys.WrapUserKey(userKey, keys.BiometricKey{SymmetricKey: bk})
	if err != nil {
		return fmt.Errorf("wrap user key: %w", err)
	}
	raw := bk.Bytes()
	defer krypto.Zeroize(raw)
	if err := s.platform.SetKey(user, raw); err != nil {
		return err
	}
	if err := state.Set(s.state, user, encryptedUserKeyDef, wrapped.String()); err != nil {
		return err
	}
	if err := state.Set(s.state, user, unlockEnabledDef, true); err != nil {
		return err
	}
	s.log.Info().Str("user", user.String()).Msg("biometric unlock enabled")
	return s.ResetPromptCancelled(user)
}

// Disable removes the biometric key and wrapped user key.
func (s *Service) Disable(user uuid.UUID) error {
	var errs []error
	if s.platform.SupportsSecureStorage() {
		errs = append(errs, s.platform.DeleteKey(user))
	}
	errs = append(errs,
		s.state.Remove(user, encryptedUserKeyDef),
		s.state.Remove(user, unlockEnabledDef),
	)
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.log.Info().Str("user", user.String()).Msg("biometric unlock disabled")
	return nil
}

// Unlock shows the biometric prompt and releases the user key. Every
// failure, including cancellation, is ErrFailed; cancellation also sets the
// prompt-cancelled flag.
func (s *Service) Unlock(ctx context.Context, user uuid.UUID) (keys.UserKey, error) {
	enabled, err := s.BiometricUnlockEnabled(user)
	if err != nil {
		return keys.UserKey{}, err
	}
	if !enabled {
		return keys.UserKey{}, ErrNotEnabled
	}

	raw, ok, err := state.Get[string](s.state, user, encryptedUserKeyDef)
	if err != nil {
		return keys.UserKey{}, err
	}
	if !ok {
		return keys.UserKey{}, ErrNotEnabled
	}

	if err := s.platform.Authenticate(ctx, "Authenticate to unlock your vault"); err != nil {
		if errors.Is(err, platform.ErrCancelled) {
			if serr := s.SetPromptCancelled(user); serr != nil {
				s.log.Warn().Err(serr).Msg("record biometric prompt cancellation")
			}
		}
		s.log.Warn().Err(err).Str("user", user.String()).Msg("biometric prompt failed")
		return keys.UserKey{}, ErrFailed
	}

	keyBytes, err := s.platform.GetKey(user)
	if err != nil {
		s.log.Warn().Err(err).Str("user", user.String()).Msg("biometric key unavailable")
		return keys.UserKey{}, ErrFailed
	}
	bk, err := keys.NewSymmetricKey(keyBytes)
	if err != nil {
		return keys.UserKey{}, ErrFailed
	}
	defer bk.Wipe()

	wrapped, err := keys.ParseEncString(raw)
	if err != nil {
		return keys.UserKey{}, ErrFailed
	}
	uk, err := keys.UnwrapUserKey(wrapped, keys.BiometricKey{SymmetricKey: bk})
	if err != nil {
		return keys.UserKey{}, ErrFailed
	}
	return uk, nil
}
