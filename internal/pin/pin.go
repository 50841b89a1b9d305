// Package pin protects the user key with a PIN-derived key, either on disk
// (persistent) or in process memory only (ephemeral).
package pin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/account"
	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

var (
	// ErrInvalidPin is returned for any PIN mismatch.
	ErrInvalidPin = errors.New("invalid pin")
	// ErrPinDisabled is returned when no PIN is configured.
	ErrPinDisabled = errors.New("pin unlock is not set up")
	// ErrPinUnavailable is returned when an ephemeral PIN must be
	// re-established with another unlock method first.
	ErrPinUnavailable = errors.New("pin unlock is unavailable until the vault is unlocked another way")
	// ErrCorruptState is returned when a stored PIN artifact cannot be parsed.
	// It is a storage fault, not a PIN mismatch.
	ErrCorruptState = errors.New("stored pin state is corrupt")
)

var (
	persistentDef = state.Define("pin.pinKeyEncryptedUserKeyPersistent", state.Disk, state.ClearOnLogout)
	ephemeralDef  = state.Define("pin.pinKeyEncryptedUserKeyEphemeral", state.Memory, state.ClearOnLogout)
	protectedDef  = state.Define("pin.userKeyEncryptedPin", state.Disk, state.ClearOnLogout)
)

// LockType is how the PIN-wrapped user key is stored.
type LockType int

const (
	Disabled LockType = iota
	Persistent
	Ephemeral
)

func (t LockType) String() string {
	switch t {
	case Disabled:
		return "disabled"
	case Persistent:
		return "persistent"
	case Ephemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("LockType(%d)", int(t))
	}
}

// Accounts supplies the salt and KDF used for the PIN key.
type Accounts interface {
	Get(id uuid.UUID) (account.Account, error)
	KdfConfig(id uuid.UUID) (kdf.Config, error)
}

// Service manages PIN artifacts.
type Service struct {
	state    *state.Provider
	accounts Accounts
	log      zerolog.Logger
}

// NewService wires the service.
func NewService(p *state.Provider, accounts Accounts, log zerolog.Logger) *Service {
	return &Service{state: p, accounts: accounts, log: log}
}

func (s *Service) getEnc(user uuid.UUID, d state.Definition) (keys.EncString, bool, error) {
	raw, ok, err := state.Get[string](s.state, user, d)
	if err != nil || !ok {
		return keys.EncString{}, false, err
	}
	enc, err := keys.ParseEncString(raw)
	if err != nil {
		return keys.EncString{}, false, fmt.Errorf("%w: %s", ErrCorruptState, d.Name)
	}
	return enc, true, nil
}

func (s *Service) setEnc(user uuid.UUID, d state.Definition, enc keys.EncString) error {
	return state.Set(s.state, user, d, enc.String())
}

// LockType reports how the PIN is configured for user.
func (s *Service) LockType(user uuid.UUID) (LockType, error) {
	persistent, err := s.state.Has(user, persistentDef)
	if err != nil {
		return Disabled, err
	}
	if persistent {
		return Persistent, nil
	}
	protected, err := s.state.Has(user, protectedDef)
	if err != nil {
		return Disabled, err
	}
	if protected {
		return Ephemeral, nil
	}
	return Disabled, nil
}

// IsPinSet reports whether any PIN is configured.
func (s *Service) IsPinSet(user uuid.UUID) (bool, error) {
	t, err := s.LockType(user)
	return t != Disabled, err
}

// IsPinDecryptionAvailable reports whether the PIN can unlock right now.
func (s *Service) IsPinDecryptionAvailable(_ context.Context, user uuid.UUID) (bool, error) {
	t, err := s.LockType(user)
	if err != nil {
		return false, err
	}
	switch t {
	case Disabled:
		return false, nil
	case Persistent:
		return true, nil
	case Ephemeral:
		return s.state.Has(user, ephemeralDef)
	default:
		panic(fmt.Sprintf("pin: unhandled lock type %v", t))
	}
}

func (s *Service) derivePinKey(user uuid.UUID, pin string) (keys.PinKey, error) {
	a, err := s.accounts.Get(user)
	if err != nil {
		return keys.PinKey{}, err
	}
	cfg, err := s.accounts.KdfConfig(user)
	if err != nil {
		return keys.PinKey{}, err
	}
	return keys.DerivePinKey(pin, a.Email, cfg)
}

// SetPin protects userKey with pin. With ephemeral set, the PIN-wrapped key
// lives only in memory and must be re-established after a restart.
func (s *Service) SetPin(user uuid.UUID, pin string, ephemeral bool, userKey keys.UserKey) error {
	if pin == "" {
		return errors.New("pin is required")
	}
	if userKey.IsZero() {
		return errors.New("vault must be unlocked to set a pin")
	}
	protected, err := keys.EncryptString(pin, userKey.SymmetricKey)
	if err != nil {
		return fmt.Errorf("protect pin: %w", err)
	}
	pinKey, err := s.derivePinKey(user, pin)
	if err != nil {
		return err
	}
	defer pinKey.Wipe()
	wrapped, err := keys.WrapUserKey(userKey, pinKey)
	if err != nil {
		return fmt.Errorf("wrap user key: %w", err)
	}

	if err := s.ClearPin(user); err != nil {
		return err
	}
	if err := s.setEnc(user, protectedDef, protected); err != nil {
		return err
	}
	target := persistentDef
	if ephemeral {
		target = ephemeralDef
	}
	if err := s.setEnc(user, target, wrapped); err != nil {
		return err
	}
	s.log.Info().Str("user", user.String()).Bool("ephemeral", ephemeral).Msg("pin set")
	return nil
}

// ClearPin removes every PIN artifact.
func (s *Service) ClearPin(user uuid.UUID) error {
	return errors.Join(
		s.state.Remove(user, persistentDef),
		s.state.Remove(user, ephemeralDef),
		s.state.Remove(user, protectedDef),
	)
}

// DecryptUserKeyWithPin unwraps the user key and cross-checks the stored
// protected PIN against pin. Any mismatch is ErrInvalidPin.
func (s *Service) DecryptUserKeyWithPin(_ context.Context, user uuid.UUID, pin string) (keys.UserKey, error) {
	t, err := s.LockType(user)
	if err != nil {
		return keys.UserKey{}, err
	}
	var slot state.Definition
	switch t {
	case Disabled:
		return keys.UserKey{}, ErrPinDisabled
	case Persistent:
		slot = persistentDef
	case Ephemeral:
		slot = ephemeralDef
	default:
		panic(fmt.Sprintf("pin: unhandled lock type %v", t))
	}

	wrapped, ok, err := s.getEnc(user, slot)
	if err != nil {
		return keys.UserKey{}, err
	}
	if !ok {
		return keys.UserKey{}, ErrPinUnavailable
	}
	protected, ok, err := s.getEnc(user, protectedDef)
	if err != nil {
		return keys.UserKey{}, err
	}
	if !ok {
		s.log.Warn().Str("user", user.String()).Msg("pin decryption failed: protected pin missing")
		return keys.UserKey{}, ErrInvalidPin
	}

	pinKey, err := s.derivePinKey(user, pin)
	if err != nil {
		return keys.UserKey{}, err
	}
	defer pinKey.Wipe()

	uk, err := keys.UnwrapUserKey(wrapped, pinKey)
	if err != nil {
		s.log.Warn().Str("user", user.String()).Msg("pin decryption failed: user key unwrap")
		return keys.UserKey{}, ErrInvalidPin
	}
	stored, err := keys.DecryptString(protected, uk.SymmetricKey)
	if err != nil || !krypto.CompareConstantTime([]byte(stored), []byte(pin)) {
		uk.Wipe()
		s.log.Warn().Str("user", user.String()).Msg("pin decryption failed: protected pin mismatch")
		return keys.UserKey{}, ErrInvalidPin
	}
	return uk, nil
}

// ReestablishEphemeral rebuilds the in-memory PIN-wrapped key from the
// protected PIN after the vault was unlocked another way. It is a no-op for
// other lock types or when the ephemeral key already exists.
func (s *Service) ReestablishEphemeral(user uuid.UUID, userKey keys.UserKey) error {
	t, err := s.LockType(user)
	if err != nil || t != Ephemeral {
		return err
	}
	if ok, err := s.state.Has(user, ephemeralDef); err != nil || ok {
		return err
	}
	protected, ok, err := s.getEnc(user, protectedDef)
	if err != nil || !ok {
		return err
	}
	pin, err := keys.DecryptString(protected, userKey.SymmetricKey)
	if err != nil {
		return fmt.Errorf("decrypt protected pin: %w", err)
	}
	pinKey, err := s.derivePinKey(user, pin)
	if err != nil {
		return err
	}
	defer pinKey.Wipe()
	wrapped, err := keys.WrapUserKey(userKey, pinKey)
	if err != nil {
		return err
	}
	return s.setEnc(user, ephemeralDef, wrapped)
}
