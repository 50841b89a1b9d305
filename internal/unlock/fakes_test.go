package unlock

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/vaultlock/auth"
	"github.com/Hussein-Mazeh/vaultlock/internal/bio"
	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/masterpassword"
	"github.com/Hussein-Mazeh/vaultlock/internal/pin"
)

type fakeOptions struct {
	opts decryption.UnlockOptions
	err  error
}

func (f *fakeOptions) ComputeAvailableUnlockOptions(context.Context, uuid.UUID) (decryption.UnlockOptions, error) {
	return f.opts, f.err
}

func allOffered() *fakeOptions {
	return &fakeOptions{opts: decryption.UnlockOptions{
		MasterPassword: decryption.MethodOption{Enabled: true},
		PIN:            decryption.MethodOption{Enabled: true},
		Biometrics:     decryption.BiometricsOption{Enabled: true},
	}}
}

func copyKey(uk keys.UserKey) keys.UserKey {
	out, err := keys.UserKeyFromBytes(uk.Bytes())
	if err != nil {
		panic(err)
	}
	return out
}

type fakeMasterPassword struct {
	password string
	uk       keys.UserKey
	online   bool
	policy   *auth.PolicyOptions
	err      error
	calls    int
	reason   masterpassword.ForceSetPasswordReason
}

func (f *fakeMasterPassword) Unlock(_ context.Context, _ uuid.UUID, pw string) (masterpassword.Result, error) {
	f.calls++
	if f.err != nil {
		return masterpassword.Result{}, f.err
	}
	if pw != f.password {
		return masterpassword.Result{}, masterpassword.ErrInvalidMasterPassword
	}
	return masterpassword.Result{UserKey: copyKey(f.uk), VerifiedOnline: f.online, Policy: f.policy}, nil
}

func (f *fakeMasterPassword) SetForceSetPasswordReason(_ uuid.UUID, r masterpassword.ForceSetPasswordReason) error {
	f.reason = r
	return nil
}

type fakePin struct {
	pin           string
	uk            keys.UserKey
	err           error
	calls         int
	reestablished int
}

func (f *fakePin) DecryptUserKeyWithPin(_ context.Context, _ uuid.UUID, p string) (keys.UserKey, error) {
	f.calls++
	if f.err != nil {
		return keys.UserKey{}, f.err
	}
	if p != f.pin {
		return keys.UserKey{}, pin.ErrInvalidPin
	}
	return copyKey(f.uk), nil
}

func (f *fakePin) ReestablishEphemeral(uuid.UUID, keys.UserKey) error {
	f.reestablished++
	return nil
}

type fakeBio struct {
	uk     keys.UserKey
	fail   bool
	resets int
}

func (f *fakeBio) Unlock(context.Context, uuid.UUID) (keys.UserKey, error) {
	if f.fail {
		return keys.UserKey{}, bio.ErrFailed
	}
	return copyKey(f.uk), nil
}

func (f *fakeBio) ResetPromptCancelled(uuid.UUID) error {
	f.resets++
	return nil
}

type fakeDevices struct {
	calls int
	err   error
}

func (f *fakeDevices) TrustDeviceIfRequired(context.Context, uuid.UUID, keys.UserKey) (bool, error) {
	f.calls++
	return f.err == nil, f.err
}

type brokenPolicy struct{}

func (brokenPolicy) SetMasterPasswordPolicyOptions(uuid.UUID, *auth.PolicyOptions) error {
	return errors.New("policy store unavailable")
}

func (brokenPolicy) EvaluateMasterPassword(int, string, *auth.PolicyOptions) bool {
	panic("evaluation exploded")
}

// bogusCredential satisfies Credential without being a known variant.
type bogusCredential struct{}

func (bogusCredential) Method() Method { return MethodPIN }
func (bogusCredential) sealed()        {}
