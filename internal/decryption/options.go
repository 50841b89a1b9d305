// Package decryption turns the server's user-decryption options into a
// validated model and computes which unlock methods may be offered.
package decryption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

// ErrNoOptions is returned when no decryption options are stored for a user.
var ErrNoOptions = errors.New("no decryption options stored")

var optionsDef = state.Define("decryption.userOptions", state.Disk, state.ClearOnLogout)

// ValidationError reports a missing or malformed field in the server response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid decryption options (%s): %s", e.Field, e.Reason)
}

// MasterPasswordUnlock holds what is needed to unlock with the master password.
type MasterPasswordUnlock struct {
	Salt                    string
	Kdf                     kdf.Config
	MasterKeyWrappedUserKey keys.EncString
}

// TrustedDeviceOption is set for accounts using device trust.
type TrustedDeviceOption struct {
	HasAdminApproval                 bool
	HasLoginApprovingDevice          bool
	HasManageResetPasswordPermission bool
	IsTdeOffboarding                 bool
	// Device-wrapped key material, present once this device is trusted.
	EncryptedPrivateKey *keys.EncString
	EncryptedUserKey    *keys.EncString
}

// KeyConnectorOption is set for key-connector accounts.
type KeyConnectorOption struct {
	URL string
}

// WebAuthnPrfOption is set when a passkey can unlock the account.
type WebAuthnPrfOption struct {
	EncryptedPrivateKey *keys.EncString
	EncryptedUserKey    *keys.EncString
}

// Options is the validated decryption-options snapshot. A nil option means
// the method is not configured server-side.
type Options struct {
	HasMasterPassword    bool
	MasterPasswordUnlock *MasterPasswordUnlock
	TrustedDevice        *TrustedDeviceOption
	KeyConnector         *KeyConnectorOption
	WebAuthnPrf          *WebAuthnPrfOption
}

// FromResponse validates r. Security-relevant fields are never defaulted.
func FromResponse(r *api.UserDecryptionOptionsResponse) (Options, error) {
	if r == nil {
		return Options{}, &ValidationError{Field: "userDecryptionOptions", Reason: "response is required"}
	}
	o := Options{HasMasterPassword: r.HasMasterPassword}

	if mp := r.MasterPasswordUnlock; mp != nil {
		if mp.Salt == "" {
			return Options{}, &ValidationError{Field: "masterPasswordUnlock.salt", Reason: "salt is required"}
		}
		cfg, err := kdf.Parse(mp.Kdf)
		if err != nil {
			return Options{}, fmt.Errorf("masterPasswordUnlock.kdf: %w", err)
		}
		wrapped, err := requiredEncString("masterPasswordUnlock.masterKeyEncryptedUserKey", mp.MasterKeyEncryptedUserKey)
		if err != nil {
			return Options{}, err
		}
		o.MasterPasswordUnlock = &MasterPasswordUnlock{
			Salt:                    mp.Salt,
			Kdf:                     cfg,
			MasterKeyWrappedUserKey: wrapped,
		}
	}

	if td := r.TrustedDeviceOption; td != nil {
		priv, err := optionalEncString("trustedDeviceOption.encryptedPrivateKey", td.EncryptedPrivateKey)
		if err != nil {
			return Options{}, err
		}
		uk, err := optionalEncString("trustedDeviceOption.encryptedUserKey", td.EncryptedUserKey)
		if err != nil {
			return Options{}, err
		}
		o.TrustedDevice = &TrustedDeviceOption{
			HasAdminApproval:                 td.HasAdminApproval,
			HasLoginApprovingDevice:          td.HasLoginApprovingDevice,
			HasManageResetPasswordPermission: td.HasManageResetPasswordPermission,
			IsTdeOffboarding:                 td.IsTdeOffboarding,
			EncryptedPrivateKey:              priv,
			EncryptedUserKey:                 uk,
		}
	}

	if kc := r.KeyConnectorOption; kc != nil {
		if kc.KeyConnectorURL == "" {
			return Options{}, &ValidationError{Field: "keyConnectorOption.keyConnectorUrl", Reason: "url is required"}
		}
		o.KeyConnector = &KeyConnectorOption{URL: kc.KeyConnectorURL}
	}

	if prf := r.WebAuthnPrfOption; prf != nil {
		priv, err := optionalEncString("webAuthnPrfOption.encryptedPrivateKey", prf.EncryptedPrivateKey)
		if err != nil {
			return Options{}, err
		}
		uk, err := optionalEncString("webAuthnPrfOption.encryptedUserKey", prf.EncryptedUserKey)
		if err != nil {
			return Options{}, err
		}
		o.WebAuthnPrf = &WebAuthnPrfOption{EncryptedPrivateKey: priv, EncryptedUserKey: uk}
	}

	return o, nil
}

func requiredEncString(field, s string) (keys.EncString, error) {
	if s == "" {
		return keys.EncString{}, &ValidationError{Field: field, Reason: "value is required"}
	}
	enc, err := keys.ParseEncString(s)
	if err != nil {
		return keys.EncString{}, &ValidationError{Field: field, Reason: "malformed encrypted value"}
	}
	return enc, nil
}

func optionalEncString(field, s string) (*keys.EncString, error) {
	if s == "" {
		return nil, nil
	}
	enc, err := requiredEncString(field, s)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// Service fetches and caches decryption options per user.
type Service struct {
	api   api.Client
	state *state.Provider
	log   zerolog.Logger
}

// NewService returns a Service. client may be nil for offline use, in which
// case Refresh fails.
func NewService(client api.Client, p *state.Provider, log zerolog.Logger) *Service {
	return &Service{api: client, state: p, log: log}
}

// Refresh downloads, validates and stores the options for user.
func (s *Service) Refresh(ctx context.Context, user uuid.UUID) (Options, error) {
	if s.api == nil {
		return Options{}, errors.New("decryption options: no api client")
	}
	resp, err := api.GetUserDecryptionOptions(ctx, s.api)
	if err != nil {
		return Options{}, fmt.Errorf("fetch decryption options: %w", err)
	}
	return s.Set(user, resp)
}

// Set validates and stores resp for user.
func (s *Service) Set(user uuid.UUID, resp *api.UserDecryptionOptionsResponse) (Options, error) {
	o, err := FromResponse(resp)
	if err != nil {
		return Options{}, err
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return Options{}, fmt.Errorf("encode decryption options: %w", err)
	}
	if err := s.state.SetRaw(user, optionsDef, raw); err != nil {
		return Options{}, err
	}
	s.log.Debug().Str("user", user.String()).Bool("hasMasterPassword", o.HasMasterPassword).Msg("decryption options stored")
	return o, nil
}

// SetMasterKeyWrappedUserKey replaces the master-key-wrapped user key in the
// stored options, keeping every other field.
func (s *Service) SetMasterKeyWrappedUserKey(user uuid.UUID, wrapped keys.EncString) error {
	resp, ok, err := state.Get[api.UserDecryptionOptionsResponse](s.state, user, optionsDef)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoOptions
	}
	if resp.MasterPasswordUnlock == nil {
		return errors.New("decryption options: no master password unlock to update")
	}
	mp := *resp.MasterPasswordUnlock
	mp.MasterKeyEncryptedUserKey = wrapped.String()
	resp.MasterPasswordUnlock = &mp
	_, err = s.Set(user, &resp)
	return err
}

// Get returns the stored options for user.
func (s *Service) Get(user uuid.UUID) (Options, error) {
	resp, ok, err := state.Get[api.UserDecryptionOptionsResponse](s.state, user, optionsDef)
	if err != nil {
		return Options{}, err
	}
	if !ok {
		return Options{}, ErrNoOptions
	}
	return FromResponse(&resp)
}
