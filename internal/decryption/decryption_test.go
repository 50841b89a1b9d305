package decryption_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

func wrappedKey(t *testing.T) string {
	t.Helper()
	uk, _ := keys.NewUserKey()
	wk, _ := keys.GenerateSymmetricKey()
	enc, err := keys.WrapUserKey(uk, keys.BiometricKey{SymmetricKey: wk})
	if err != nil {
		t.Fatalf("WrapUserKey: %v", err)
	}
	return enc.String()
}

func decodeResponse(t *testing.T, js string) *api.UserDecryptionOptionsResponse {
	t.Helper()
	var r api.UserDecryptionOptionsResponse
	if err := json.Unmarshal([]byte(js), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &r
}

func TestFromResponseMasterPassword(t *testing.T) {
	r := decodeResponse(t, `{"hasMasterPassword":true,"masterPasswordUnlock":{"salt":"user@example.com","kdf":{"kdfType":0,"iterations":600000},"masterKeyEncryptedUserKey":"`+wrappedKey(t)+`"}}`)
	o, err := decryption.FromResponse(r)
	if err != nil {
		t.Fatalf("FromResponse: %v", err)
	}
	if !o.HasMasterPassword || o.MasterPasswordUnlock == nil {
		t.Fatalf("unexpected options %+v", o)
	}
	if !kdf.Equal(o.MasterPasswordUnlock.Kdf, kdf.DefaultPBKDF2Config()) {
		t.Fatal("kdf mismatch")
	}
	if o.TrustedDevice != nil || o.KeyConnector != nil || o.WebAuthnPrf != nil {
		t.Fatal("absent options must stay nil")
	}
}

func TestFromResponseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing salt":   `{"hasMasterPassword":true,"masterPasswordUnlock":{"kdf":{"kdfType":0,"iterations":600000},"masterKeyEncryptedUserKey":"2.AAAA|AAAA|AAAA"}}`,
		"argon2 partial": `{"hasMasterPassword":true,"masterPasswordUnlock":{"salt":"s","kdf":{"kdfType":1,"iterations":3},"masterKeyEncryptedUserKey":"2.AAAA|AAAA|AAAA"}}`,
		"bad key":        `{"hasMasterPassword":true,"masterPasswordUnlock":{"salt":"s","kdf":{"kdfType":0,"iterations":600000},"masterKeyEncryptedUserKey":"garbage"}}`,
		"empty kc url":   `{"hasMasterPassword":false,"keyConnectorOption":{"keyConnectorUrl":""}}`,
	}
	for name, js := range cases {
		if _, err := decryption.FromResponse(decodeResponse(t, js)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	_, err := decryption.FromResponse(decodeResponse(t, cases["argon2 partial"]))
	if !kdf.IsValidationError(err) {
		t.Fatalf("expected kdf ValidationError, got %v", err)
	}
	_, err = decryption.FromResponse(decodeResponse(t, cases["bad key"]))
	var ve *decryption.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected decryption ValidationError, got %v", err)
	}
}

func TestServiceStoresOptions(t *testing.T) {
	s := decryption.NewService(nil, state.NewProvider(nil), zerolog.Nop())
	user := uuid.New()

	if _, err := s.Get(user); !errors.Is(err, decryption.ErrNoOptions) {
		t.Fatalf("expected ErrNoOptions, got %v", err)
	}
	if _, err := s.Refresh(context.Background(), user); err == nil {
		t.Fatal("Refresh without api client must fail")
	}
	r := decodeResponse(t, `{"hasMasterPassword":false,"trustedDeviceOption":{"hasAdminApproval":true}}`)
	if _, err := s.Set(user, r); err != nil {
		t.Fatalf("Set: %v", err)
	}
	o, err := s.Get(user)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.HasMasterPassword || o.TrustedDevice == nil || !o.TrustedDevice.HasAdminApproval {
		t.Fatalf("unexpected options %+v", o)
	}
}

func TestSetMasterKeyWrappedUserKey(t *testing.T) {
	s := decryption.NewService(nil, state.NewProvider(nil), zerolog.Nop())
	user := uuid.New()

	wk, _ := keys.GenerateSymmetricKey()
	if err := s.SetMasterKeyWrappedUserKey(user, keys.EncString{}); !errors.Is(err, decryption.ErrNoOptions) {
		t.Fatalf("expected ErrNoOptions, got %v", err)
	}
	r := decodeResponse(t, `{"hasMasterPassword":true,"masterPasswordUnlock":{"salt":"user@example.com","kdf":{"kdfType":0,"iterations":600000},"masterKeyEncryptedUserKey":"`+wrappedKey(t)+`"}}`)
	if _, err := s.Set(user, r); err != nil {
		t.Fatalf("Set: %v", err)
	}

	uk, _ := keys.NewUserKey()
	rewrapped, err := keys.WrapUserKey(uk, keys.BiometricKey{SymmetricKey: wk})
	if err != nil {
		t.Fatalf("WrapUserKey: %v", err)
	}
	if err := s.SetMasterKeyWrappedUserKey(user, rewrapped); err != nil {
		t.Fatalf("SetMasterKeyWrappedUserKey: %v", err)
	}
	o, err := s.Get(user)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.MasterPasswordUnlock.MasterKeyWrappedUserKey.String() != rewrapped.String() {
		t.Fatal("wrapped key not replaced")
	}
	if o.MasterPasswordUnlock.Salt != "user@example.com" || !kdf.Equal(o.MasterPasswordUnlock.Kdf, kdf.DefaultPBKDF2Config()) {
		t.Fatal("other master password fields must be kept")
	}
}

func TestBiometricsDisableReasonPriority(t *testing.T) {
	cases := []struct {
		name  string
		facts decryption.BiometricFacts
		want  decryption.BiometricsOption
	}{
		{
			name:  "os unsupported wins over missing keys",
			facts: decryption.BiometricFacts{OSSupported: false, UnlockEnabled: false, SecureStorage: true},
			want:  decryption.BiometricsOption{DisableReason: decryption.NotSupportedOnOperatingSystem},
		},
		{
			name:  "keys missing wins over not ready",
			facts: decryption.BiometricFacts{OSSupported: true, UnlockEnabled: true, SecureStorage: true, KeyStored: false, Ready: false},
			want:  decryption.BiometricsOption{DisableReason: decryption.EncryptedKeysUnavailable},
		},
		{
			name:  "no secure storage skips key check",
			facts: decryption.BiometricFacts{OSSupported: true, UnlockEnabled: true, SecureStorage: false, Ready: false},
			want:  decryption.BiometricsOption{DisableReason: decryption.SystemBiometricsUnavailable},
		},
		{
			name:  "all good",
			facts: decryption.BiometricFacts{OSSupported: true, UnlockEnabled: true, SecureStorage: true, KeyStored: true, Ready: true},
			want:  decryption.BiometricsOption{Enabled: true},
		},
	}
	for _, tc := range cases {
		if got := decryption.Biometrics(tc.facts); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

type fakeOptions struct {
	opts decryption.Options
	err  error
}

func (f fakeOptions) Get(uuid.UUID) (decryption.Options, error) { return f.opts, f.err }

type fakePin struct {
	available bool
	err       error
}

func (f fakePin) IsPinDecryptionAvailable(context.Context, uuid.UUID) (bool, error) {
	return f.available, f.err
}

type fakeBio struct {
	supported, secureStorage, enabled, stored, ready bool
	readyErr                                         error
}

func (f fakeBio) SupportsBiometric(context.Context) (bool, error) { return f.supported, nil }
func (f fakeBio) SupportsSecureStorage() bool                     { return f.secureStorage }
func (f fakeBio) BiometricUnlockEnabled(uuid.UUID) (bool, error)  { return f.enabled, nil }
func (f fakeBio) HasEncryptedUserKey(context.Context, uuid.UUID) (bool, error) {
	return f.stored, nil
}
func (f fakeBio) IsBiometricReady(context.Context, uuid.UUID) (bool, error) {
	return f.ready, f.readyErr
}

func TestComputeAvailableUnlockOptions(t *testing.T) {
	svc := decryption.NewUnlockOptionsService(
		fakeOptions{opts: decryption.Options{HasMasterPassword: true}},
		fakePin{available: true},
		fakeBio{supported: false, secureStorage: true, enabled: false},
		zerolog.Nop(),
	)
	got, err := svc.ComputeAvailableUnlockOptions(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ComputeAvailableUnlockOptions: %v", err)
	}
	want := decryption.UnlockOptions{
		MasterPassword: decryption.MethodOption{Enabled: true},
		PIN:            decryption.MethodOption{Enabled: true},
		Biometrics:     decryption.BiometricsOption{DisableReason: decryption.NotSupportedOnOperatingSystem},
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeAvailableUnlockOptionsMissingOptions(t *testing.T) {
	svc := decryption.NewUnlockOptionsService(
		fakeOptions{err: decryption.ErrNoOptions},
		fakePin{},
		fakeBio{supported: true, secureStorage: true, enabled: true, stored: true, ready: true},
		zerolog.Nop(),
	)
	got, err := svc.ComputeAvailableUnlockOptions(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ComputeAvailableUnlockOptions: %v", err)
	}
	if got.MasterPassword.Enabled || got.PIN.Enabled || !got.Biometrics.Enabled {
		t.Fatalf("unexpected options %+v", got)
	}
}

func TestBiometricBridgeErrorKeepsOtherMethods(t *testing.T) {
	svc := decryption.NewUnlockOptionsService(
		fakeOptions{opts: decryption.Options{HasMasterPassword: true}},
		fakePin{available: true},
		fakeBio{supported: true, secureStorage: true, enabled: true, stored: true, readyErr: errors.New("LAContext failed")},
		zerolog.Nop(),
	)
	got, err := svc.ComputeAvailableUnlockOptions(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ComputeAvailableUnlockOptions: %v", err)
	}
	want := decryption.UnlockOptions{
		MasterPassword: decryption.MethodOption{Enabled: true},
		PIN:            decryption.MethodOption{Enabled: true},
		Biometrics:     decryption.BiometricsOption{DisableReason: decryption.SystemBiometricsUnavailable},
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPinCheckErrorOnlyDisablesPin(t *testing.T) {
	svc := decryption.NewUnlockOptionsService(
		fakeOptions{opts: decryption.Options{HasMasterPassword: true}},
		fakePin{available: true, err: errors.New("store unreadable")},
		fakeBio{},
		zerolog.Nop(),
	)
	got, err := svc.ComputeAvailableUnlockOptions(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ComputeAvailableUnlockOptions: %v", err)
	}
	if !got.MasterPassword.Enabled || got.PIN.Enabled {
		t.Fatalf("unexpected options %+v", got)
	}
}

func TestOptionsReadErrorFailsComputation(t *testing.T) {
	boom := errors.New("disk gone")
	svc := decryption.NewUnlockOptionsService(
		fakeOptions{err: boom},
		fakePin{},
		fakeBio{},
		zerolog.Nop(),
	)
	if _, err := svc.ComputeAvailableUnlockOptions(context.Background(), uuid.New()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped options error, got %v", err)
	}
}
