// Package devicetrust registers this device with the server so the user
// key can later be recovered with a device key instead of a password.
package devicetrust

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

// ErrNoDeviceKey is returned when this device holds no key for the user.
var ErrNoDeviceKey = errors.New("device is not trusted")

var (
	deviceIDDef          = state.Define("deviceTrust.appId", state.Disk, 0)
	deviceKeyDef         = state.Define("deviceTrust.deviceKey", state.Disk, 0)
	shouldTrustDeviceDef = state.Define("deviceTrust.shouldTrustDevice", state.Disk, state.ClearOnLogout)
)

// Service establishes and uses device trust.
type Service struct {
	state *state.Provider
	api   api.Client
	log   zerolog.Logger
}

// NewService wires the service.
func NewService(p *state.Provider, client api.Client, log zerolog.Logger) *Service {
	return &Service{state: p, api: client, log: log}
}

// DeviceIdentifier returns this installation's id, creating it on first use.
func (s *Service) DeviceIdentifier() (uuid.UUID, error) {
	id, ok, err := state.Get[uuid.UUID](s.state, uuid.Nil, deviceIDDef)
	if err != nil {
		return uuid.Nil, err
	}
	if ok && id != uuid.Nil {
		return id, nil
	}
	id = uuid.New()
	if err := state.Set(s.state, uuid.Nil, deviceIDDef, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ShouldTrustDevice reports whether the user asked to trust this device at
// login.
func (s *Service) ShouldTrustDevice(user uuid.UUID) (bool, error) {
	v, _, err := state.Get[bool](s.state, user, shouldTrustDeviceDef)
	return v, err
}

// SetShouldTrustDevice records the login choice.
func (s *Service) SetShouldTrustDevice(user uuid.UUID, v bool) error {
	if !v {
		return s.state.Remove(user, shouldTrustDeviceDef)
	}
	return state.Set(s.state, user, shouldTrustDeviceDef, true)
}

// DeviceKey returns the stored device key.
func (s *Service) DeviceKey(user uuid.UUID) (keys.DeviceKey, error) {
	raw, ok, err := state.Get[[]byte](s.state, user, deviceKeyDef)
	if err != nil {
		return keys.DeviceKey{}, err
	}
	if !ok {
		return keys.DeviceKey{}, ErrNoDeviceKey
	}
	defer krypto.Zeroize(raw)
	k, err := keys.NewSymmetricKey(raw)
	if err != nil {
		return keys.DeviceKey{}, err
	}
	return keys.DeviceKey{SymmetricKey: k}, nil
}

// TrustDeviceIfRequired trusts the device when the user asked for it at
// login, then clears the request. It reports whether trust was established.
func (s *Service) TrustDeviceIfRequired(ctx context.Context, user uuid.UUID, userKey keys.UserKey) (bool, error) {
	should, err := s.ShouldTrustDevice(user)
	if err != nil || !should {
		return false, err
	}
	if err := s.TrustDevice(ctx, user, userKey); err != nil {
		return false, err
	}
	return true, s.SetShouldTrustDevice(user, false)
}

// TrustDevice generates a device key and RSA key pair and uploads:
// the user key under the device public key, the public key under the user
// key and the private key under the device key.
func (s *Service) TrustDevice(ctx context.Context, user uuid.UUID, userKey keys.UserKey) error {
	if s.api == nil {
		return errors.New("device trust requires a server connection")
	}
	if userKey.IsZero() {
		return errors.New("user key is required")
	}
	deviceID, err := s.DeviceIdentifier()
	if err != nil {
		return err
	}

	dk, err := keys.GenerateSymmetricKey()
	if err != nil {
		return err
	}
	defer dk.Wipe()
	pub, priv, err := krypto.GenerateRSAKeyPair()
	if err != nil {
		return fmt.Errorf("generate device key pair: %w", err)
	}
	defer krypto.Zeroize(priv)

	encUserKey, err := keys.RSAEncrypt(userKey.Bytes(), pub)
	if err != nil {
		return fmt.Errorf("encrypt user key: %w", err)
	}
	encPublic, err := keys.Encrypt(pub, userKey.SymmetricKey)
	if err != nil {
		return fmt.Errorf("encrypt device public key: %w", err)
	}
	encPrivate, err := keys.Encrypt(priv, dk)
	if err != nil {
		return fmt.Errorf("encrypt device private key: %w", err)
	}

	resp, err := api.UpdateTrustedDeviceKeys(ctx, s.api, deviceID.String(), api.TrustedDeviceKeysRequest{
		EncryptedUserKey:    encUserKey.String(),
		EncryptedPublicKey:  encPublic.String(),
		EncryptedPrivateKey: encPrivate.String(),
	})
	if err != nil {
		return fmt.Errorf("upload device keys: %w", err)
	}
	if err := state.Set(s.state, user, deviceKeyDef, dk.Bytes()); err != nil {
		return err
	}
	trusted := resp != nil && resp.IsTrusted
	s.log.Info().Str("user", user.String()).Str("device", deviceID.String()).Bool("trusted", trusted).Msg("device trust established")
	return nil
}

// DecryptUserKeyWithDeviceKey recovers the user key from the server-held
// device-encrypted private key and RSA-encrypted user key. A device key that
// cannot open them is discarded.
func (s *Service) DecryptUserKeyWithDeviceKey(user uuid.UUID, encPrivateKey, encUserKey keys.EncString) (keys.UserKey, error) {
	dk, err := s.DeviceKey(user)
	if err != nil {
		return keys.UserKey{}, err
	}
	defer dk.Wipe()

	priv, err := keys.Decrypt(encPrivateKey, dk.SymmetricKey)
	if err != nil {
		s.discard(user)
		return keys.UserKey{}, keys.ErrUnwrap
	}
	defer krypto.Zeroize(priv)
	raw, err := keys.RSADecrypt(encUserKey, priv)
	if err != nil {
		s.discard(user)
		return keys.UserKey{}, keys.ErrUnwrap
	}
	defer krypto.Zeroize(raw)
	return keys.UserKeyFromBytes(raw)
}

func (s *Service) discard(user uuid.UUID) {
	s.log.Warn().Str("user", user.String()).Msg("device key failed to decrypt; removing it")
	if err := s.state.Remove(user, deviceKeyDef); err != nil {
		s.log.Error().Err(err).Msg("remove device key")
	}
}
