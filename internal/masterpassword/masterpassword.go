// Package masterpassword verifies the master password offline or online,
// unwraps the master-key-wrapped user key and changes the password.
package masterpassword

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/auth"
	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

var (
	// ErrInvalidMasterPassword is returned for any credential mismatch.
	ErrInvalidMasterPassword = errors.New("invalid master password")
	// ErrNoMasterPassword is returned for accounts without master-password unlock.
	ErrNoMasterPassword = errors.New("account has no master password unlock")
)

var (
	masterKeyHashDef  = state.Define("masterPassword.masterKeyHash", state.Disk, state.ClearOnLogout)
	forceSetReasonDef = state.Define("masterPassword.forceSetPasswordReason", state.Disk, state.ClearOnLogout)
)

// OptionsStore supplies decryption options and accepts a rewrapped user key.
type OptionsStore interface {
	Get(user uuid.UUID) (decryption.Options, error)
	SetMasterKeyWrappedUserKey(user uuid.UUID, wrapped keys.EncString) error
}

// Service implements master-password verification for one device.
type Service struct {
	state   *state.Provider
	api     api.Client
	options OptionsStore
	log     zerolog.Logger
}

// NewService wires the service. client may be nil when only offline
// verification is possible.
func NewService(p *state.Provider, client api.Client, options OptionsStore, log zerolog.Logger) *Service {
	return &Service{state: p, api: client, options: options, log: log}
}

// MasterKeyHash returns the stored local authorization hash, if any.
func (s *Service) MasterKeyHash(user uuid.UUID) (string, bool, error) {
	return state.Get[string](s.state, user, masterKeyHashDef)
}

// SetMasterKeyHash stores a local authorization hash.
func (s *Service) SetMasterKeyHash(user uuid.UUID, hash string) error {
	if hash == "" {
		return errors.New("master key hash is required")
	}
	return state.Set(s.state, user, masterKeyHashDef, hash)
}

// ClearMasterKeyHash removes the local authorization hash.
func (s *Service) ClearMasterKeyHash(user uuid.UUID) error {
	return s.state.Remove(user, masterKeyHashDef)
}

// DeriveMasterKey runs the KDF and logs how long it took.
func (s *Service) DeriveMasterKey(password, salt string, cfg kdf.Config) (keys.MasterKey, error) {
	start := time.Now()
	mk, err := keys.DeriveMasterKey(password, salt, cfg)
	if err != nil {
		return keys.MasterKey{}, err
	}
	s.log.Info().
		Str("kdf", cfg.Type().String()).
		Dur("elapsed", time.Since(start)).
		Msg("derived master key")
	return mk, nil
}

// CompareAndUpdateKeyHash checks password and mk against the stored local
// hash in constant time. A stored hash equal to the server authorization
// hash is accepted once and replaced by the local hash.
func (s *Service) CompareAndUpdateKeyHash(user uuid.UUID, password string, mk keys.MasterKey) (bool, error) {
	stored, ok, err := s.MasterKeyHash(user)
	if err != nil {
		return false, err
	}
	if !ok || password == "" {
		return false, nil
	}

	local, err := keys.HashMasterKey(mk, password, keys.LocalAuthorization)
	if err != nil {
		return false, err
	}
	if krypto.CompareConstantTime([]byte(local), []byte(stored)) {
		return true, nil
	}

	server, err := keys.HashMasterKey(mk, password, keys.ServerAuthorization)
	if err != nil {
		return false, err
	}
	if krypto.CompareConstantTime([]byte(server), []byte(stored)) {
		if err := s.SetMasterKeyHash(user, local); err != nil {
			return false, fmt.Errorf("migrate master key hash: %w", err)
		}
		s.log.Info().Str("user", user.String()).Msg("migrated legacy master key hash")
		return true, nil
	}
	return false, nil
}

// DecryptUserKeyWithMasterKey unwraps the account's master-key-wrapped user key.
func (s *Service) DecryptUserKeyWithMasterKey(mk keys.MasterKey, wrapped keys.EncString) (keys.UserKey, error) {
	return keys.UnwrapUserKey(wrapped, mk)
}

// Result is the outcome of a successful master-password unlock.
type Result struct {
	UserKey   keys.UserKey
	MasterKey keys.MasterKey
	// VerifiedOnline is true when the server checked the password.
	VerifiedOnline bool
	// Policy is the policy returned by online verification, if any.
	Policy *auth.PolicyOptions
}

func (s *Service) unlockMaterial(user uuid.UUID) (*decryption.MasterPasswordUnlock, error) {
	if s.options == nil {
		return nil, ErrNoMasterPassword
	}
	o, err := s.options.Get(user)
	if err != nil {
		return nil, err
	}
	if !o.HasMasterPassword || o.MasterPasswordUnlock == nil {
		return nil, ErrNoMasterPassword
	}
	return o.MasterPasswordUnlock, nil
}

// Unlock verifies password and returns the user key. With a local hash the
// check is offline; otherwise exactly one verification request is sent and
// the local hash is stored on success. Credential mismatches return
// ErrInvalidMasterPassword; transport failures are returned as api errors.
func (s *Service) Unlock(ctx context.Context, user uuid.UUID, password string) (Result, error) {
	material, err := s.unlockMaterial(user)
	if err != nil {
		return Result{}, err
	}
	mk, err := s.DeriveMasterKey(password, material.Salt, material.Kdf)
	if err != nil {
		return Result{}, err
	}

	res := Result{MasterKey: mk}
	_, hasLocal, err := s.MasterKeyHash(user)
	if err != nil {
		return Result{}, err
	}
	if hasLocal {
		ok, err := s.CompareAndUpdateKeyHash(user, password, mk)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, ErrInvalidMasterPassword
		}
	} else {
		policy, err := s.verifyOnline(ctx, mk, password)
		if err != nil {
			return Result{}, err
		}
		res.VerifiedOnline = true
		res.Policy = policy
	}

	uk, err := s.DecryptUserKeyWithMasterKey(mk, material.MasterKeyWrappedUserKey)
	if err != nil {
		return Result{}, ErrInvalidMasterPassword
	}
	res.UserKey = uk

	if res.VerifiedOnline {
		local, err := keys.HashMasterKey(mk, password, keys.LocalAuthorization)
		if err != nil {
			return Result{}, err
		}
		if err := s.SetMasterKeyHash(user, local); err != nil {
			return Result{}, fmt.Errorf("store master key hash: %w", err)
		}
	}
	return res, nil
}

func (s *Service) verifyOnline(ctx context.Context, mk keys.MasterKey, password string) (*auth.PolicyOptions, error) {
	if s.api == nil {
		return nil, &api.NetworkError{Err: errors.New("no api client configured")}
	}
	serverHash, err := keys.HashMasterKey(mk, password, keys.ServerAuthorization)
	if err != nil {
		return nil, err
	}
	resp, err := api.VerifyPassword(ctx, s.api, serverHash)
	if errors.Is(err, api.ErrInvalidCredential) {
		return nil, ErrInvalidMasterPassword
	}
	if err != nil {
		return nil, err
	}
	return auth.PolicyFromResponse(resp), nil
}
