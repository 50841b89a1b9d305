package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
)

// Prelogin returns the KDF settings for email.
func Prelogin(ctx context.Context, c Client, email string) (kdf.Wire, error) {
	raw, err := c.Send(ctx, http.MethodPost, "/accounts/prelogin", PreloginRequest{Email: email}, false, true)
	if err != nil {
		return kdf.Wire{}, err
	}
	w, err := Decode[kdf.Wire](raw)
	if err != nil {
		return kdf.Wire{}, err
	}
	if w == nil {
		return kdf.Wire{}, errors.New("prelogin: empty response")
	}
	return *w, nil
}

// GetUserDecryptionOptions fetches the decryption options of the
// authenticated account.
func GetUserDecryptionOptions(ctx context.Context, c Client) (*UserDecryptionOptionsResponse, error) {
	raw, err := c.Send(ctx, http.MethodGet, "/accounts/decryption-options", nil, true, true)
	if err != nil {
		return nil, err
	}
	resp, err := Decode[UserDecryptionOptionsResponse](raw)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("decryption options: empty response")
	}
	return resp, nil
}

// VerifyPassword sends a server authorization hash. A nil policy means none
// is enforced.
func VerifyPassword(ctx context.Context, c Client, serverHash string) (*MasterPasswordPolicyResponse, error) {
	raw, err := c.Send(ctx, http.MethodPost, "/accounts/verify-password", SecretVerificationRequest{MasterPasswordHash: serverHash}, true, true)
	if err != nil {
		return nil, err
	}
	return Decode[MasterPasswordPolicyResponse](raw)
}

// PostPassword changes the master password.
func PostPassword(ctx context.Context, c Client, req PasswordRequest) error {
	_, err := c.Send(ctx, http.MethodPost, "/accounts/password", req, true, false)
	return err
}

// UpdateTrustedDeviceKeys uploads trust keys for the device identified by
// deviceIdentifier.
func UpdateTrustedDeviceKeys(ctx context.Context, c Client, deviceIdentifier string, req TrustedDeviceKeysRequest) (*DeviceResponse, error) {
	if deviceIdentifier == "" {
		return nil, fmt.Errorf("device identifier is required")
	}
	path := fmt.Sprintf("/devices/%s/keys", url.PathEscape(deviceIdentifier))
	raw, err := c.Send(ctx, http.MethodPut, path, req, true, true)
	if err != nil {
		return nil, err
	}
	return Decode[DeviceResponse](raw)
}
